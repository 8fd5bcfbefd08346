// Package email provides email delivery via an HTTP transactional email
// provider.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aprendia/notification-service/internal/notifications"
	"golang.org/x/time/rate"
)

const (
	defaultEndpoint = "https://api.resend.com/emails"
	defaultTimeout  = 10 * time.Second
)

// Config holds email transport configuration.
type Config struct {
	APIKey      string
	FromAddress string
	Endpoint    string        // provider API endpoint, defaults to Resend
	Timeout     time.Duration // request timeout
	RateLimit   float64       // requests per second, 0 disables limiting
}

// Sender implements notifications.Transport against the provider's HTTP API.
type Sender struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewSender creates a new email transport client.
func NewSender(config Config) *Sender {
	if config.Endpoint == "" {
		config.Endpoint = defaultEndpoint
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	slog.Info("email transport configured",
		"configured", config.APIKey != "" && config.FromAddress != "",
		"endpoint", config.Endpoint,
		"from_address", config.FromAddress,
		"rate_limit", config.RateLimit,
	)

	return &Sender{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    limiter,
	}
}

// Configured reports whether the provider credentials are present.
// When false, the dispatcher falls back to preview mode instead of sending.
func (s *Sender) Configured() bool {
	return s.config.APIKey != "" && s.config.FromAddress != ""
}

type apiRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// Send issues a single delivery call to the provider.
func (s *Sender) Send(ctx context.Context, msg notifications.OutboundMessage) ([]byte, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	payload, err := json.Marshal(apiRequest{
		From:    s.config.FromAddress,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ProviderError{Status: resp.StatusCode, Body: string(body)}
	}

	slog.Debug("email accepted by provider", "to", msg.To, "status", resp.StatusCode)
	return body, nil
}

// ProviderError is a non-success response from the email provider.
type ProviderError struct {
	Status int
	Body   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("email provider error %d: %s", e.Status, e.Body)
}
