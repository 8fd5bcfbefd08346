// Package postgres implements notification storage on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aprendia/notification-service/internal/notifications"
)

// maxErrorLen bounds last_error so oversized provider responses do not bloat
// the queue table.
const maxErrorLen = 500

// Repository is a PostgreSQL-backed notifications.Repository.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Enqueue inserts a new pending queue entry.
func (r *Repository) Enqueue(ctx context.Context, entry *notifications.QueueEntry) error {
	query := `
		INSERT INTO notification_queue (id, user_id, template, payload, attempts, status, scheduled_for, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6, NOW(), NOW())
		RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		entry.ID,
		entry.UserID,
		string(entry.Template),
		entry.Payload,
		string(entry.Status),
		entry.ScheduledFor,
	).Scan(&entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert queue entry: %w", err)
	}

	return nil
}

// FetchDue returns pending entries whose scheduled time has passed, oldest
// first. Entries are not claimed here; Claim does that per entry.
func (r *Repository) FetchDue(ctx context.Context, limit int) ([]notifications.QueueEntry, error) {
	query := `
		SELECT id, user_id, template, payload, attempts, status, scheduled_for, COALESCE(last_error, ''), created_at, updated_at
		FROM notification_queue
		WHERE status = 'pending' AND scheduled_for <= NOW()
		ORDER BY created_at ASC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query due entries: %w", err)
	}
	defer rows.Close()

	var entries []notifications.QueueEntry
	for rows.Next() {
		var e notifications.QueueEntry
		if err := rows.Scan(
			&e.ID,
			&e.UserID,
			&e.Template,
			&e.Payload,
			&e.Attempts,
			&e.Status,
			&e.ScheduledFor,
			&e.LastError,
			&e.CreatedAt,
			&e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue entries: %w", err)
	}

	return entries, nil
}

// Claim atomically moves a pending entry to processing and bumps its attempt
// counter. Returns claimed=false when another worker got there first.
func (r *Repository) Claim(ctx context.Context, id string) (int, bool, error) {
	query := `
		UPDATE notification_queue
		SET status = 'processing', attempts = attempts + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING attempts`

	var attempts int
	err := r.pool.QueryRow(ctx, query, id).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("claim queue entry: %w", err)
	}

	return attempts, true, nil
}

// MarkSent records successful delivery. scheduled_for is stamped with the
// completion time so the row reflects when delivery actually happened.
func (r *Repository) MarkSent(ctx context.Context, id string) error {
	query := `
		UPDATE notification_queue
		SET status = 'sent', last_error = NULL, scheduled_for = NOW(), updated_at = NOW()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark entry sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notifications.ErrEntryNotFound
	}

	return nil
}

// MarkForRetry returns the entry to pending with a future schedule so a later
// run can retry it.
func (r *Repository) MarkForRetry(ctx context.Context, id string, sendErr error, nextAttempt time.Time) error {
	query := `
		UPDATE notification_queue
		SET status = 'pending', last_error = $2, scheduled_for = $3, updated_at = NOW()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, truncateError(sendErr), nextAttempt)
	if err != nil {
		return fmt.Errorf("mark entry for retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notifications.ErrEntryNotFound
	}

	return nil
}

// MarkFailed records a permanently failed entry. As with MarkSent,
// scheduled_for becomes the completion timestamp.
func (r *Repository) MarkFailed(ctx context.Context, id string, sendErr error) error {
	query := `
		UPDATE notification_queue
		SET status = 'failed', last_error = $2, scheduled_for = NOW(), updated_at = NOW()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, truncateError(sendErr))
	if err != nil {
		return fmt.Errorf("mark entry failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notifications.ErrEntryNotFound
	}

	return nil
}

// GetQueueStats returns entry counts per status.
func (r *Repository) GetQueueStats(ctx context.Context) (*notifications.QueueStats, error) {
	query := `SELECT status, COUNT(*) FROM notification_queue GROUP BY status`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query queue stats: %w", err)
	}
	defer rows.Close()

	stats := &notifications.QueueStats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan queue stats: %w", err)
		}
		switch notifications.QueueStatus(status) {
		case notifications.QueueStatusPending:
			stats.Pending = count
		case notifications.QueueStatusProcessing:
			stats.Processing = count
		case notifications.QueueStatusSent:
			stats.Sent = count
		case notifications.QueueStatusFailed:
			stats.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue stats: %w", err)
	}

	return stats, nil
}

// GetProfileLanguage returns the profile's communication language, or empty
// when the profile does not exist or has no preference.
func (r *Repository) GetProfileLanguage(ctx context.Context, userID string) (string, error) {
	query := `SELECT COALESCE(communication_language, '') FROM profiles WHERE account_id = $1`

	var lang string
	err := r.pool.QueryRow(ctx, query, userID).Scan(&lang)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query profile language: %w", err)
	}

	return lang, nil
}

// GetAccountLanguage returns the language stored in the account metadata, or
// empty when absent.
func (r *Repository) GetAccountLanguage(ctx context.Context, userID string) (string, error) {
	query := `SELECT COALESCE(metadata->>'communication_language', '') FROM accounts WHERE id = $1`

	var lang string
	err := r.pool.QueryRow(ctx, query, userID).Scan(&lang)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query account language: %w", err)
	}

	return lang, nil
}

// GetAccountEmail returns the account's email address.
func (r *Repository) GetAccountEmail(ctx context.Context, userID string) (string, error) {
	query := `SELECT email FROM accounts WHERE id = $1`

	var email string
	err := r.pool.QueryRow(ctx, query, userID).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", notifications.ErrRecipientNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query account email: %w", err)
	}

	return email, nil
}

// truncateError bounds the stored error message.
func truncateError(err error) string {
	msg := err.Error()
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	return msg
}
