package notifications

import (
	"context"
	"sync"
	"time"
)

// fakeRepo is an in-memory Repository for unit tests.
type fakeRepo struct {
	mu sync.Mutex

	entries      map[string]*QueueEntry
	profileLangs map[string]string
	accountLangs map[string]string
	emails       map[string]string

	profileErr error
	accountErr error
	fetchErr   error
	claimErr   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		entries:      make(map[string]*QueueEntry),
		profileLangs: make(map[string]string),
		accountLangs: make(map[string]string),
		emails:       make(map[string]string),
	}
}

func (f *fakeRepo) Enqueue(_ context.Context, entry *QueueEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *entry
	f.entries[entry.ID] = &cp
	return nil
}

func (f *fakeRepo) FetchDue(_ context.Context, limit int) ([]QueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var due []QueueEntry
	now := time.Now()
	for _, e := range f.entries {
		if e.Status == QueueStatusPending && !e.ScheduledFor.After(now) {
			due = append(due, *e)
			if len(due) == limit {
				break
			}
		}
	}
	return due, nil
}

func (f *fakeRepo) Claim(_ context.Context, id string) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return 0, false, f.claimErr
	}
	e, ok := f.entries[id]
	if !ok || e.Status != QueueStatusPending {
		return 0, false, nil
	}
	e.Status = QueueStatusProcessing
	e.Attempts++
	return e.Attempts, true, nil
}

func (f *fakeRepo) MarkSent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	e.Status = QueueStatusSent
	e.LastError = ""
	e.ScheduledFor = time.Now()
	return nil
}

func (f *fakeRepo) MarkForRetry(_ context.Context, id string, sendErr error, nextAttempt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	e.Status = QueueStatusPending
	e.LastError = sendErr.Error()
	e.ScheduledFor = nextAttempt
	return nil
}

func (f *fakeRepo) MarkFailed(_ context.Context, id string, sendErr error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	e.Status = QueueStatusFailed
	e.LastError = sendErr.Error()
	e.ScheduledFor = time.Now()
	return nil
}

func (f *fakeRepo) GetQueueStats(_ context.Context) (*QueueStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &QueueStats{}
	for _, e := range f.entries {
		switch e.Status {
		case QueueStatusPending:
			stats.Pending++
		case QueueStatusProcessing:
			stats.Processing++
		case QueueStatusSent:
			stats.Sent++
		case QueueStatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (f *fakeRepo) GetProfileLanguage(_ context.Context, userID string) (string, error) {
	if f.profileErr != nil {
		return "", f.profileErr
	}
	return f.profileLangs[userID], nil
}

func (f *fakeRepo) GetAccountLanguage(_ context.Context, userID string) (string, error) {
	if f.accountErr != nil {
		return "", f.accountErr
	}
	return f.accountLangs[userID], nil
}

func (f *fakeRepo) GetAccountEmail(_ context.Context, userID string) (string, error) {
	email, ok := f.emails[userID]
	if !ok {
		return "", ErrRecipientNotFound
	}
	return email, nil
}

func (f *fakeRepo) entry(id string) QueueEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.entries[id]
}
