package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aprendia/notification-service/internal/pkg/ctxlog"
)

// SendInput describes an immediate send request.
type SendInput struct {
	UserID   string
	Template string
	Payload  json.RawMessage
	To       string // explicit recipient, overrides account email lookup
	DryRun   bool
}

// SendResult is the outcome of an immediate send.
type SendResult struct {
	Language         Language        `json:"language"`
	Delivered        bool            `json:"delivered"`
	ProviderResponse json.RawMessage `json:"providerResponse,omitempty"`
	Preview          *EmailPreview   `json:"preview,omitempty"`
}

// Service implements immediate notification delivery and enqueueing.
type Service struct {
	repo       Repository
	renderer   *Renderer
	resolver   *LanguageResolver
	dispatcher *Dispatcher
}

// NewService creates a new notification service.
func NewService(repo Repository, renderer *Renderer, resolver *LanguageResolver, dispatcher *Dispatcher) *Service {
	return &Service{
		repo:       repo,
		renderer:   renderer,
		resolver:   resolver,
		dispatcher: dispatcher,
	}
}

// Send renders and delivers one notification synchronously. The explicit
// recipient from the input takes precedence over the account email.
func (s *Service) Send(ctx context.Context, input SendInput) (*SendResult, error) {
	logger := ctxlog.FromContext(ctx)

	req, err := ParseTemplateRequest(input.Template, input.Payload)
	if err != nil {
		return nil, err
	}

	lang := s.resolver.Resolve(ctx, input.UserID)

	rendered, err := s.renderer.Render(req, lang)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	to := input.To
	if to == "" {
		to, err = s.repo.GetAccountEmail(ctx, input.UserID)
		if err != nil {
			return nil, err
		}
	}
	if to == "" {
		return nil, ErrRecipientNotFound
	}

	delivery, err := s.dispatcher.Dispatch(ctx, to, rendered, input.DryRun)
	if err != nil {
		return nil, err
	}

	logger.Info("notification sent",
		"user_id", input.UserID,
		"template", input.Template,
		"language", string(lang),
		"delivered", delivery.Delivered,
	)

	return &SendResult{
		Language:         lang,
		Delivered:        delivery.Delivered,
		ProviderResponse: delivery.ProviderResponse,
		Preview:          delivery.Preview,
	}, nil
}

// Enqueue schedules a notification for asynchronous delivery. The entry
// becomes due immediately and is picked up by the next processing run.
func (s *Service) Enqueue(ctx context.Context, userID, template string, payload json.RawMessage) (*QueueEntry, error) {
	if _, err := ParseTemplateRequest(template, payload); err != nil {
		return nil, err
	}

	now := time.Now()
	entry := &QueueEntry{
		ID:           uuid.NewString(),
		UserID:       userID,
		Template:     TemplateKey(template),
		Payload:      payload,
		Status:       QueueStatusPending,
		ScheduledFor: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Enqueue(ctx, entry); err != nil {
		return nil, fmt.Errorf("enqueue notification: %w", err)
	}

	ctxlog.FromContext(ctx).Info("notification enqueued",
		"entry_id", entry.ID,
		"user_id", userID,
		"template", template,
	)

	return entry, nil
}
