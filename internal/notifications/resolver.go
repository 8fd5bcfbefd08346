package notifications

import (
	"context"
	"log/slog"

	"golang.org/x/text/language"
)

// Language is a supported communication language tag.
type Language string

// Supported languages.
const (
	LanguagePTBR Language = "pt-BR"
	LanguageENUS Language = "en-US"
)

// DefaultLanguage is used when no stored preference resolves.
const DefaultLanguage = LanguagePTBR

var supportedLanguages = []language.Tag{
	language.MustParse(string(LanguagePTBR)),
	language.MustParse(string(LanguageENUS)),
}

var languageMatcher = language.NewMatcher(supportedLanguages)

// NormalizeLanguage maps a raw stored tag onto a supported language.
// Loose variants such as "pt" or "en" match their regional counterpart;
// unknown or low-confidence tags are rejected.
func NormalizeLanguage(raw string) (Language, bool) {
	if raw == "" {
		return "", false
	}

	tag, err := language.Parse(raw)
	if err != nil {
		return "", false
	}

	_, idx, conf := languageMatcher.Match(tag)
	if conf < language.High {
		return "", false
	}

	if idx == 1 {
		return LanguageENUS, true
	}
	return LanguagePTBR, true
}

// LanguageResolver determines the effective language for a user.
type LanguageResolver struct {
	repo Repository
}

// NewLanguageResolver creates a new language resolver.
func NewLanguageResolver(repo Repository) *LanguageResolver {
	return &LanguageResolver{repo: repo}
}

// Resolve returns the user's preferred language: profile preference first,
// then account metadata, then the system default. Lookup failures are
// absorbed so resolution always succeeds.
func (r *LanguageResolver) Resolve(ctx context.Context, userID string) Language {
	raw, err := r.repo.GetProfileLanguage(ctx, userID)
	if err != nil {
		slog.Debug("profile language lookup failed", "user_id", userID, "error", err)
	} else if lang, ok := NormalizeLanguage(raw); ok {
		return lang
	}

	raw, err = r.repo.GetAccountLanguage(ctx, userID)
	if err != nil {
		slog.Debug("account language lookup failed", "user_id", userID, "error", err)
	} else if lang, ok := NormalizeLanguage(raw); ok {
		return lang
	}

	return DefaultLanguage
}
