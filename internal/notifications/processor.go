package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aprendia/notification-service/internal/pkg/ctxlog"
)

// ProcessorConfig controls queue batch processing and retry behavior.
type ProcessorConfig struct {
	DefaultBatchSize int
	MaxAttempts      int
	BackoffStep      time.Duration
	MaxBackoff       time.Duration
}

// DefaultProcessorConfig returns the standard retry policy.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		DefaultBatchSize: 10,
		MaxAttempts:      3,
		BackoffStep:      15 * time.Minute,
		MaxBackoff:       120 * time.Minute,
	}
}

// Entry processing outcomes.
const (
	OutcomeSent    = "sent"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
)

// EntryResult is the outcome of processing a single queue entry.
type EntryResult struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Delivered bool   `json:"delivered,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`
	Error     string `json:"error,omitempty"`
}

// BatchSummary reports the outcome of one queue processing run.
type BatchSummary struct {
	Processed int           `json:"processed"`
	Results   []EntryResult `json:"results"`
}

// Processor drains due queue entries and delivers them. Entries are claimed
// atomically so concurrent runs never deliver the same entry twice.
type Processor struct {
	repo       Repository
	renderer   *Renderer
	resolver   *LanguageResolver
	dispatcher *Dispatcher
	config     ProcessorConfig
}

// NewProcessor creates a new queue processor.
func NewProcessor(repo Repository, renderer *Renderer, resolver *LanguageResolver, dispatcher *Dispatcher, config ProcessorConfig) *Processor {
	if config.DefaultBatchSize <= 0 {
		config.DefaultBatchSize = 10
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BackoffStep <= 0 {
		config.BackoffStep = 15 * time.Minute
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 120 * time.Minute
	}
	return &Processor{
		repo:       repo,
		renderer:   renderer,
		resolver:   resolver,
		dispatcher: dispatcher,
		config:     config,
	}
}

// ProcessQueue fetches due entries and processes them sequentially. A batch
// size of zero or less falls back to the configured default. Individual entry
// failures are recorded in the summary, not returned as errors.
func (p *Processor) ProcessQueue(ctx context.Context, batchSize int, dryRun bool) (*BatchSummary, error) {
	logger := ctxlog.FromContext(ctx)

	if batchSize <= 0 {
		batchSize = p.config.DefaultBatchSize
	}

	entries, err := p.repo.FetchDue(ctx, batchSize)
	if err != nil {
		return nil, fmt.Errorf("fetch due entries: %w", err)
	}
	recordQueueFetched(len(entries))

	summary := &BatchSummary{Results: make([]EntryResult, 0, len(entries))}
	for _, entry := range entries {
		result := p.processEntry(ctx, entry, dryRun)
		summary.Results = append(summary.Results, result)
		summary.Processed++
	}

	logger.Info("queue batch processed",
		"fetched", len(entries),
		"processed", summary.Processed,
		"dry_run", dryRun,
	)

	return summary, nil
}

// processEntry claims and delivers a single entry. Losing the claim race is
// normal under concurrency and reported as skipped.
func (p *Processor) processEntry(ctx context.Context, entry QueueEntry, dryRun bool) EntryResult {
	logger := ctxlog.FromContext(ctx).With("entry_id", entry.ID, "template", string(entry.Template))

	attempts, claimed, err := p.repo.Claim(ctx, entry.ID)
	if err != nil {
		logger.Error("failed to claim queue entry", "error", err)
		recordNotificationSent(string(entry.Template), OutcomeSkipped)
		return EntryResult{ID: entry.ID, Status: OutcomeSkipped, Error: err.Error()}
	}
	if !claimed {
		logger.Debug("queue entry already claimed")
		recordNotificationSent(string(entry.Template), OutcomeSkipped)
		return EntryResult{ID: entry.ID, Status: OutcomeSkipped}
	}

	start := time.Now()
	delivered, err := p.send(ctx, entry, dryRun)
	if err != nil {
		return p.handleSendError(ctx, logger, entry, attempts, err)
	}
	recordNotificationDuration(string(entry.Template), time.Since(start))

	if err := p.repo.MarkSent(ctx, entry.ID); err != nil {
		logger.Error("failed to mark entry sent", "error", err)
		return EntryResult{ID: entry.ID, Status: OutcomeError, Attempts: attempts, Error: err.Error()}
	}

	logger.Info("queue entry delivered", "attempts", attempts, "delivered", delivered)
	recordNotificationSent(string(entry.Template), OutcomeSent)
	return EntryResult{ID: entry.ID, Status: OutcomeSent, Delivered: delivered, Attempts: attempts}
}

// send runs the full delivery pipeline for a claimed entry.
func (p *Processor) send(ctx context.Context, entry QueueEntry, dryRun bool) (bool, error) {
	req, err := ParseTemplateRequest(string(entry.Template), entry.Payload)
	if err != nil {
		return false, fmt.Errorf("parse payload: %w", err)
	}

	lang := p.resolver.Resolve(ctx, entry.UserID)

	rendered, err := p.renderer.Render(req, lang)
	if err != nil {
		return false, fmt.Errorf("render template: %w", err)
	}

	to, err := p.repo.GetAccountEmail(ctx, entry.UserID)
	if err != nil {
		return false, fmt.Errorf("resolve recipient: %w", err)
	}

	result, err := p.dispatcher.Dispatch(ctx, to, rendered, dryRun)
	if err != nil {
		return false, err
	}
	return result.Delivered, nil
}

// handleSendError applies the retry policy after a failed delivery.
func (p *Processor) handleSendError(ctx context.Context, logger *slog.Logger, entry QueueEntry, attempts int, sendErr error) EntryResult {
	if attempts < p.config.MaxAttempts {
		next := time.Now().Add(p.backoff(attempts))
		if err := p.repo.MarkForRetry(ctx, entry.ID, sendErr, next); err != nil {
			logger.Error("failed to schedule retry", "error", err)
		} else {
			logger.Warn("queue entry scheduled for retry",
				"attempts", attempts,
				"next_attempt", next,
				"error", sendErr,
			)
		}
	} else {
		if err := p.repo.MarkFailed(ctx, entry.ID, sendErr); err != nil {
			logger.Error("failed to mark entry failed", "error", err)
		} else {
			logger.Error("queue entry exhausted retries", "attempts", attempts, "error", sendErr)
		}
	}

	recordNotificationSent(string(entry.Template), OutcomeError)
	return EntryResult{ID: entry.ID, Status: OutcomeError, Attempts: attempts, Error: sendErr.Error()}
}

// backoff returns the delay before the next attempt, growing linearly with
// the attempt count up to a cap.
func (p *Processor) backoff(attempts int) time.Duration {
	d := time.Duration(attempts) * p.config.BackoffStep
	if d > p.config.MaxBackoff {
		d = p.config.MaxBackoff
	}
	return d
}
