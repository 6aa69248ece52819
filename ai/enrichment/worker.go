package enrichment

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/notesense/notesense/ai/metrics"
	"github.com/notesense/notesense/store"
)

const (
	// maxAttempts bounds retries of transient failures per event.
	maxAttempts = 3

	// enrichTimeout bounds a single enrichment run, all attempts included.
	enrichTimeout = 60 * time.Second
)

// Worker drains the document change feed through a pool of goroutines.
// It is a terminal sink: every failure is logged and swallowed, since a
// dropped notification must never crash the dispatch mechanism.
type Worker struct {
	enricher *Enricher
	notifier store.Notifier
	exporter *metrics.Exporter
	workers  int

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewWorker creates a new Worker. exporter may be nil.
func NewWorker(enricher *Enricher, notifier store.Notifier, exporter *metrics.Exporter, workers int) *Worker {
	if workers <= 0 {
		workers = 3
	}
	return &Worker{
		enricher: enricher,
		notifier: notifier,
		exporter: exporter,
		workers:  workers,
	}
}

// Start subscribes to the change feed and launches the worker pool.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	events, err := w.notifier.Subscribe(ctx)
	if err != nil {
		cancel()
		return err
	}

	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.worker(ctx, events, i)
	}
	slog.Info("enrichment worker started", "workers", w.workers)
	return nil
}

// Stop cancels the subscription and waits for in-flight runs to finish.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	slog.Info("enrichment worker stopped")
}

func (w *Worker) worker(ctx context.Context, events <-chan *store.ChangeEvent, id int) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			w.process(ctx, event, id)
		}
	}
}

// process runs one event through the enricher with bounded retries.
// Catch-all by design: the worker has no caller to report to.
func (w *Worker) process(ctx context.Context, event *store.ChangeEvent, workerID int) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, enrichTimeout)
	defer cancel()

	slog.Debug("enrichment processing",
		"event_id", event.ID,
		"collection", event.Collection,
		"doc_id", event.DocID,
		"worker", workerID)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = w.enricher.Enrich(ctx, event)
		if lastErr == nil {
			w.exporter.ObserveEnrichment("success", time.Since(start))
			slog.Debug("enrichment completed",
				"event_id", event.ID,
				"doc_id", event.DocID,
				"attempt", attempt,
				"latency_ms", time.Since(start).Milliseconds())
			return
		}

		if ctx.Err() != nil {
			// Shutdown or timeout; not a service verdict.
			w.exporter.ObserveEnrichment("cancelled", time.Since(start))
			slog.Warn("enrichment cancelled",
				"event_id", event.ID,
				"doc_id", event.DocID,
				"error", lastErr)
			return
		}

		classified := ClassifyError(lastErr)
		if !classified.IsTransient() {
			break
		}
		if attempt == maxAttempts {
			break
		}

		w.exporter.IncEnrichmentRetry()
		backoff := classified.RetryAfter * time.Duration(attempt)
		slog.Warn("enrichment transient failure, retrying",
			"event_id", event.ID,
			"doc_id", event.DocID,
			"attempt", attempt,
			"backoff_ms", backoff.Milliseconds(),
			"error", lastErr)

		select {
		case <-ctx.Done():
			w.exporter.ObserveEnrichment("cancelled", time.Since(start))
			return
		case <-time.After(backoff):
		}
	}

	status := "failed"
	if errors.Is(lastErr, ErrMalformedEvent) {
		status = "malformed"
	}
	w.exporter.ObserveEnrichment(status, time.Since(start))
	slog.Error("enrichment failed, event dropped",
		"event_id", event.ID,
		"collection", event.Collection,
		"doc_id", event.DocID,
		"status", status,
		"error", lastErr)
}
