package notifications

import (
	"encoding/json"
	"time"
)

// QueueStatus represents the status of a queue entry.
type QueueStatus string

// Queue statuses.
const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusSent       QueueStatus = "sent"
	QueueStatusFailed     QueueStatus = "failed"
)

// QueueEntry represents a notification awaiting or having completed delivery.
type QueueEntry struct {
	ID           string
	UserID       string
	Template     TemplateKey
	Payload      json.RawMessage
	Attempts     int
	Status       QueueStatus
	ScheduledFor time.Time
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// QueueStats contains queue size by status.
type QueueStats struct {
	Pending    int
	Processing int
	Sent       int
	Failed     int
}
