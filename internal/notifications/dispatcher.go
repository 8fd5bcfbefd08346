package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// OutboundMessage is the payload handed to the transport provider.
type OutboundMessage struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Transport delivers a rendered email to a single recipient.
type Transport interface {
	// Configured reports whether the transport has the credentials it
	// needs to actually send.
	Configured() bool
	// Send issues one delivery call and returns the provider's raw
	// response body. A non-success provider response is returned as an
	// error carrying status and body.
	Send(ctx context.Context, msg OutboundMessage) ([]byte, error)
}

// EmailPreview describes what would have been sent in dry-run mode.
type EmailPreview struct {
	To    string        `json:"to"`
	Email RenderedEmail `json:"email"`
}

// DeliveryResult is the outcome of a dispatch attempt.
type DeliveryResult struct {
	Delivered        bool
	ProviderResponse json.RawMessage
	Preview          *EmailPreview
}

// Dispatcher hands rendered emails to the outbound transport, or simulates
// delivery when the transport is disabled or a dry run is requested.
// Environments without provider credentials stay functional: they get a
// preview result instead of an error.
type Dispatcher struct {
	transport Transport
}

// NewDispatcher creates a new delivery dispatcher.
func NewDispatcher(transport Transport) *Dispatcher {
	return &Dispatcher{transport: transport}
}

// Dispatch sends the rendered email to the recipient. Retry policy lives in
// the queue processor, not here.
func (d *Dispatcher) Dispatch(ctx context.Context, to string, rendered RenderedEmail, dryRun bool) (DeliveryResult, error) {
	if dryRun || d.transport == nil || !d.transport.Configured() {
		slog.Debug("skipping real delivery, returning preview",
			"to", to,
			"dry_run", dryRun,
		)
		return DeliveryResult{
			Delivered: false,
			Preview:   &EmailPreview{To: to, Email: rendered},
		}, nil
	}

	body, err := d.transport.Send(ctx, OutboundMessage{
		To:      to,
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
		Text:    rendered.Text,
	})
	if err != nil {
		return DeliveryResult{}, fmt.Errorf("transport send: %w", err)
	}

	resp := json.RawMessage(body)
	if !json.Valid(body) {
		resp, _ = json.Marshal(string(body))
	}

	return DeliveryResult{Delivered: true, ProviderResponse: resp}, nil
}
