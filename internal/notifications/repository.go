// Package notifications implements the transactional email delivery
// pipeline: queue processing, template rendering, language resolution and
// transport dispatch.
package notifications

import (
	"context"
	"time"
)

// Repository defines the interface for notification data access.
type Repository interface {
	// Queue lifecycle
	Enqueue(ctx context.Context, entry *QueueEntry) error
	FetchDue(ctx context.Context, limit int) ([]QueueEntry, error)
	// Claim atomically transitions an entry from pending to processing and
	// increments its attempt counter. claimed is false when another worker
	// got there first.
	Claim(ctx context.Context, id string) (attempts int, claimed bool, err error)
	MarkSent(ctx context.Context, id string) error
	MarkForRetry(ctx context.Context, id string, sendErr error, nextAttempt time.Time) error
	MarkFailed(ctx context.Context, id string, sendErr error) error
	GetQueueStats(ctx context.Context) (*QueueStats, error)

	// Recipient lookups
	GetProfileLanguage(ctx context.Context, userID string) (string, error)
	GetAccountLanguage(ctx context.Context, userID string) (string, error)
	GetAccountEmail(ctx context.Context, userID string) (string, error)
}
