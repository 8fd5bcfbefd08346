//go:build integration

package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aprendia/notification-service/internal/notifications"
	"github.com/aprendia/notification-service/internal/notifications/email"
	"github.com/aprendia/notification-service/internal/notifications/postgres"
	"github.com/aprendia/notification-service/internal/testutil"
)

// newFailingProcessor builds a processor whose transport always gets a 500
// from the provider, with retry delays collapsed so tests can drive several
// attempts quickly.
func newFailingProcessor(t *testing.T) (*notifications.Processor, func()) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"provider exploded"}`))
	}))

	repo := postgres.NewRepository(testDB)
	renderer := notifications.NewRenderer("https://app.example.com")
	resolver := notifications.NewLanguageResolver(repo)
	sender := email.NewSender(email.Config{
		APIKey:      "test-key",
		FromAddress: "noreply@example.com",
		Endpoint:    srv.URL,
	})
	dispatcher := notifications.NewDispatcher(sender)

	p := notifications.NewProcessor(repo, renderer, resolver, dispatcher, notifications.ProcessorConfig{
		DefaultBatchSize: 10,
		MaxAttempts:      3,
		BackoffStep:      time.Millisecond,
		MaxBackoff:       time.Millisecond,
	})
	return p, srv.Close
}

func TestProcessQueue_DrainsEntries(t *testing.T) {
	client := newTestClient(t)
	userID := createAccount(t, "queue-drain@example.com", nil)
	entryID := enqueueEntry(t, userID, "generic-notification", `{"title":"Queued hello"}`)

	resp, err := client.POST("/api/v1/notifications", map[string]any{
		"mode": "process-queue",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary notifications.BatchSummary
	testutil.DecodeJSON(t, resp, &summary)

	require.GreaterOrEqual(t, summary.Processed, 1)
	var found bool
	for _, r := range summary.Results {
		if r.ID == entryID {
			found = true
			assert.Equal(t, "sent", r.Status)
			assert.Equal(t, 1, r.Attempts)
			// transport unconfigured: processed but not delivered
			assert.False(t, r.Delivered)
		}
	}
	require.True(t, found, "queued entry missing from summary")

	status, attempts, lastError := queueEntryState(t, entryID)
	assert.Equal(t, "sent", status)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, lastError)

	// scheduled_for is restamped to the completion time: the entry was
	// enqueued a minute in the past, so it must now read as recent
	scheduledFor := entryScheduledFor(t, entryID)
	assert.WithinDuration(t, time.Now(), scheduledFor, 30*time.Second)
}

func TestProcessQueue_EmptyQueue(t *testing.T) {
	client := newTestClient(t)

	// drain whatever is left over from other tests first
	for {
		resp, err := client.POST("/api/v1/notifications", map[string]any{"mode": "process-queue", "batchSize": 50})
		require.NoError(t, err)
		var summary notifications.BatchSummary
		testutil.DecodeJSON(t, resp, &summary)
		if summary.Processed == 0 {
			assert.NotNil(t, summary.Results)
			assert.Empty(t, summary.Results)
			return
		}
	}
}

func TestClaim_OnlyOneWinnerUnderConcurrency(t *testing.T) {
	userID := createAccount(t, "claim-race@example.com", nil)
	entryID := enqueueEntry(t, userID, "generic-notification", `{}`)

	repo := postgres.NewRepository(testDB)

	const workers = 8
	var wg sync.WaitGroup
	wins := make(chan int, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			attempts, claimed, err := repo.Claim(context.Background(), entryID)
			assert.NoError(t, err)
			if claimed {
				wins <- attempts
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners []int
	for a := range wins {
		winners = append(winners, a)
	}
	require.Len(t, winners, 1, "exactly one worker must win the claim")
	assert.Equal(t, 1, winners[0])

	status, attempts, _ := queueEntryState(t, entryID)
	assert.Equal(t, "processing", status)
	assert.Equal(t, 1, attempts)
}

func TestProcessQueue_RetryBackoffAndFailure(t *testing.T) {
	userID := createAccount(t, "queue-retry@example.com", nil)
	entryID := enqueueEntry(t, userID, "generic-notification", `{"title":"Doomed"}`)

	p, cleanup := newFailingProcessor(t)
	defer cleanup()

	ctx := context.Background()

	// first attempt: rescheduled with the provider error recorded
	summary, err := p.ProcessQueue(ctx, 50, false)
	require.NoError(t, err)
	requireEntryResult(t, summary, entryID, "error", 1)

	status, attempts, lastError := queueEntryState(t, entryID)
	assert.Equal(t, "pending", status)
	assert.Equal(t, 1, attempts)
	assert.Contains(t, lastError, "provider exploded")

	// pull the retry schedule back so the next run picks it up
	makeEntryDue(t, entryID)
	summary, err = p.ProcessQueue(ctx, 50, false)
	require.NoError(t, err)
	requireEntryResult(t, summary, entryID, "error", 2)

	status, attempts, _ = queueEntryState(t, entryID)
	assert.Equal(t, "pending", status)
	assert.Equal(t, 2, attempts)

	// third failure exhausts the retry budget
	makeEntryDue(t, entryID)
	summary, err = p.ProcessQueue(ctx, 50, false)
	require.NoError(t, err)
	requireEntryResult(t, summary, entryID, "error", 3)

	status, attempts, lastError = queueEntryState(t, entryID)
	assert.Equal(t, "failed", status)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, lastError, "provider exploded")
	// terminal failure also restamps scheduled_for with the completion time
	assert.WithinDuration(t, time.Now(), entryScheduledFor(t, entryID), 30*time.Second)

	// failed entries are never fetched again
	makeEntryDue(t, entryID)
	summary, err = p.ProcessQueue(ctx, 50, false)
	require.NoError(t, err)
	for _, r := range summary.Results {
		assert.NotEqual(t, entryID, r.ID)
	}
}

func TestProcessQueue_RetryScheduledInFuture(t *testing.T) {
	userID := createAccount(t, "queue-backoff@example.com", nil)
	entryID := enqueueEntry(t, userID, "generic-notification", `{}`)

	p, cleanup := newFailingProcessorWithBackoff(t, 15*time.Minute)
	defer cleanup()

	_, err := p.ProcessQueue(context.Background(), 50, false)
	require.NoError(t, err)

	var scheduledFor time.Time
	err = testDB.QueryRow(context.Background(),
		`SELECT scheduled_for FROM notification_queue WHERE id = $1`, entryID,
	).Scan(&scheduledFor)
	require.NoError(t, err)

	// first retry lands ~15 minutes out
	assert.True(t, scheduledFor.After(time.Now().Add(10*time.Minute)),
		"retry should be scheduled well in the future, got %v", scheduledFor)

	// leave no pending entry behind for other tests
	_, err = testDB.Exec(context.Background(),
		`UPDATE notification_queue SET status = 'failed' WHERE id = $1`, entryID)
	require.NoError(t, err)
}

func newFailingProcessorWithBackoff(t *testing.T, step time.Duration) (*notifications.Processor, func()) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	repo := postgres.NewRepository(testDB)
	sender := email.NewSender(email.Config{
		APIKey:      "test-key",
		FromAddress: "noreply@example.com",
		Endpoint:    srv.URL,
	})

	p := notifications.NewProcessor(
		repo,
		notifications.NewRenderer("https://app.example.com"),
		notifications.NewLanguageResolver(repo),
		notifications.NewDispatcher(sender),
		notifications.ProcessorConfig{
			DefaultBatchSize: 10,
			MaxAttempts:      3,
			BackoffStep:      step,
			MaxBackoff:       8 * step,
		},
	)
	return p, srv.Close
}

func entryScheduledFor(t *testing.T, id string) time.Time {
	t.Helper()
	var scheduledFor time.Time
	err := testDB.QueryRow(context.Background(),
		`SELECT scheduled_for FROM notification_queue WHERE id = $1`, id,
	).Scan(&scheduledFor)
	require.NoError(t, err)
	return scheduledFor
}

func makeEntryDue(t *testing.T, id string) {
	t.Helper()
	_, err := testDB.Exec(context.Background(),
		`UPDATE notification_queue SET scheduled_for = NOW() - INTERVAL '1 second' WHERE id = $1`, id)
	require.NoError(t, err)
}

func requireEntryResult(t *testing.T, summary *notifications.BatchSummary, id, status string, attempts int) {
	t.Helper()
	for _, r := range summary.Results {
		if r.ID == id {
			require.Equal(t, status, r.Status)
			require.Equal(t, attempts, r.Attempts)
			return
		}
	}
	t.Fatalf("entry %s not found in batch summary", id)
}

func TestProcessQueue_TruncatesLongProviderError(t *testing.T) {
	userID := createAccount(t, "queue-longerror@example.com", nil)
	entryID := enqueueEntry(t, userID, "generic-notification", `{}`)

	// provider responds with a multi-kilobyte body; the stored error must be
	// bounded regardless
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(strings.Repeat("z", 4096)))
	}))
	defer srv.Close()

	repo := postgres.NewRepository(testDB)
	sender := email.NewSender(email.Config{
		APIKey:      "test-key",
		FromAddress: "noreply@example.com",
		Endpoint:    srv.URL,
	})
	p := notifications.NewProcessor(
		repo,
		notifications.NewRenderer("https://app.example.com"),
		notifications.NewLanguageResolver(repo),
		notifications.NewDispatcher(sender),
		notifications.ProcessorConfig{
			DefaultBatchSize: 10,
			MaxAttempts:      3,
			BackoffStep:      time.Millisecond,
			MaxBackoff:       time.Millisecond,
		},
	)

	summary, err := p.ProcessQueue(context.Background(), 50, false)
	require.NoError(t, err)
	requireEntryResult(t, summary, entryID, "error", 1)

	_, _, lastError := queueEntryState(t, entryID)
	assert.Len(t, lastError, 500)

	// leave no pending entry behind for other tests
	_, err = testDB.Exec(context.Background(),
		`UPDATE notification_queue SET status = 'failed' WHERE id = $1`, entryID)
	require.NoError(t, err)
}

func TestProcessQueue_DryRunEndToEnd(t *testing.T) {
	client := newTestClient(t)
	userID := createAccount(t, "queue-dryrun@example.com", map[string]string{"communication_language": "en-US"})
	entryID := enqueueEntry(t, userID, "path-enrollment", `{"pathTitle":"Go 101","pathSlug":"go-101"}`)

	resp, err := client.POST("/api/v1/notifications", map[string]any{
		"mode":      "process-queue",
		"dryRun":    true,
		"batchSize": 50,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary notifications.BatchSummary
	testutil.DecodeJSON(t, resp, &summary)
	requireEntryResult(t, &summary, entryID, "sent", 1)

	status, _, _ := queueEntryState(t, entryID)
	assert.Equal(t, "sent", status)
}
