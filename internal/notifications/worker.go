package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// WorkerConfig controls the background queue polling worker.
type WorkerConfig struct {
	Enabled      bool
	BatchSize    int
	PollInterval time.Duration
	NumWorkers   int
}

// Worker periodically drains the notification queue in the background so
// entries are delivered even when nobody calls the process-queue endpoint.
type Worker struct {
	processor *Processor
	config    WorkerConfig

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewWorker creates a new queue polling worker.
func NewWorker(processor *Processor, config WorkerConfig) *Worker {
	if config.PollInterval <= 0 {
		config.PollInterval = time.Minute
	}
	if config.NumWorkers <= 0 {
		config.NumWorkers = 1
	}
	return &Worker{
		processor: processor,
		config:    config,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the polling goroutines. No-op when disabled.
func (w *Worker) Start() {
	if !w.config.Enabled {
		slog.Info("queue worker disabled")
		return
	}

	slog.Info("starting queue worker",
		"workers", w.config.NumWorkers,
		"poll_interval", w.config.PollInterval,
		"batch_size", w.config.BatchSize,
	)

	for i := 0; i < w.config.NumWorkers; i++ {
		w.wg.Add(1)
		go w.run(i)
	}
}

// Stop signals the polling goroutines and waits for them to finish.
func (w *Worker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	slog.Info("queue worker stopped")
}

func (w *Worker) run(id int) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.processBatch(id)
		}
	}
}

func (w *Worker) processBatch(id int) {
	ctx, cancel := context.WithTimeout(context.Background(), w.config.PollInterval)
	defer cancel()

	summary, err := w.processor.ProcessQueue(ctx, w.config.BatchSize, false)
	if err != nil {
		slog.Error("queue worker batch failed", "worker", id, "error", err)
		return
	}
	if summary.Processed > 0 {
		slog.Debug("queue worker batch done", "worker", id, "processed", summary.Processed)
	}
}
