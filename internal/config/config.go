// Package config provides application configuration loading.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	CORS     CORSConfig     `koanf:"cors"`
	Site     SiteConfig     `koanf:"site"`
	Email    EmailConfig    `koanf:"email"`
	Queue    QueueConfig    `koanf:"queue"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CORSConfig contains CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// SiteConfig contains settings for links embedded in emails.
type SiteConfig struct {
	BaseURL string `koanf:"base_url"`
}

// EmailConfig contains email transport settings. An empty api_key or
// from_address leaves the transport unconfigured and deliveries become
// previews.
type EmailConfig struct {
	APIKey      string        `koanf:"api_key"`
	FromAddress string        `koanf:"from_address"`
	Endpoint    string        `koanf:"endpoint"`
	Timeout     time.Duration `koanf:"timeout"`
	RateLimit   float64       `koanf:"rate_limit"`
}

// QueueConfig contains queue processing and retry settings.
type QueueConfig struct {
	BatchSize   int           `koanf:"batch_size"`
	MaxAttempts int           `koanf:"max_attempts"`
	BackoffStep time.Duration `koanf:"backoff_step"`
	MaxBackoff  time.Duration `koanf:"max_backoff"`
	Worker      WorkerConfig  `koanf:"worker"`
}

// WorkerConfig contains background worker settings.
type WorkerConfig struct {
	Enabled      bool          `koanf:"enabled"`
	BatchSize    int           `koanf:"batch_size"`
	PollInterval time.Duration `koanf:"poll_interval"`
	NumWorkers   int           `koanf:"num_workers"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Site: SiteConfig{
			BaseURL: "https://app.aprendia.com.br",
		},
		Email: EmailConfig{
			Timeout:   10 * time.Second,
			RateLimit: 10,
		},
		Queue: QueueConfig{
			BatchSize:   10,
			MaxAttempts: 3,
			BackoffStep: 15 * time.Minute,
			MaxBackoff:  120 * time.Minute,
			Worker: WorkerConfig{
				Enabled:      false,
				BatchSize:    10,
				PollInterval: time.Minute,
				NumWorkers:   1,
			},
		},
	}
}

// Load reads configuration from defaults, an optional YAML file, and
// APP_-prefixed environment variables, in increasing precedence.
// Nested keys use double underscores: APP_DATABASE__URL maps to database.url.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("APP_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "APP_")
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database.url is required")
	}

	return &cfg, nil
}
