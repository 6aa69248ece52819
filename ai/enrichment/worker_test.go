package enrichment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/notesense/notesense/ai/classify"
	"github.com/notesense/notesense/store"
)

// testNotifier is a single-channel change feed for worker tests.
type testNotifier struct {
	events chan *store.ChangeEvent
}

func newTestNotifier() *testNotifier {
	return &testNotifier{events: make(chan *store.ChangeEvent, 16)}
}

func (n *testNotifier) Subscribe(_ context.Context) (<-chan *store.ChangeEvent, error) {
	return n.events, nil
}

func (n *testNotifier) Publish(_ context.Context, event *store.ChangeEvent) {
	n.events <- event
}

// flakyDriver fails ListCategories a fixed number of times before recovering.
type flakyDriver struct {
	fakeDriver
	mu       sync.Mutex
	failures int
}

func (d *flakyDriver) ListCategories(ctx context.Context) ([]*store.Category, error) {
	d.mu.Lock()
	if d.failures > 0 {
		d.failures--
		d.mu.Unlock()
		return nil, errors.New("connection refused")
	}
	d.mu.Unlock()
	return d.fakeDriver.ListCategories(ctx)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWorker_ProcessesEvent(t *testing.T) {
	driver := newFakeDriver("travel")
	enricher := newTestEnricher(t, driver, &fixedLLM{response: "travel"}, &fixedEmbedder{vector: []float32{1}})
	notifier := newTestNotifier()

	worker := NewWorker(enricher, notifier, nil, 2)
	if err := worker.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer worker.Stop()

	notifier.Publish(context.Background(), testEvent())

	waitFor(t, 2*time.Second, func() bool { return driver.updateCount() == 1 })
}

func TestWorker_DropsMalformedEvent(t *testing.T) {
	driver := newFakeDriver("travel")
	enricher := newTestEnricher(t, driver, &fixedLLM{response: "travel"}, &fixedEmbedder{vector: []float32{1}})
	notifier := newTestNotifier()

	worker := NewWorker(enricher, notifier, nil, 1)
	if err := worker.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer worker.Stop()

	// A payload with no content is dropped, and the worker keeps serving.
	notifier.Publish(context.Background(), &store.ChangeEvent{ID: "bad", Collection: "notes", DocID: "doc-x"})
	notifier.Publish(context.Background(), testEvent())

	waitFor(t, 2*time.Second, func() bool { return driver.updateCount() == 1 })
	if driver.updates[0].ID != "doc-1" {
		t.Errorf("only the well-formed event should be applied, got %q", driver.updates[0].ID)
	}
}

func TestWorker_RetriesTransientFailure(t *testing.T) {
	if testing.Short() {
		t.Skip("retry backoff sleeps; skipping in short mode")
	}

	driver := &flakyDriver{failures: 1}
	driver.fakeDriver.categories = []*store.Category{{Name: "travel"}}
	enricher, err := NewEnricher(store.New(driver, nil), classify.NewClassifier(&fixedLLM{response: "travel"}), &fixedEmbedder{vector: []float32{1}})
	if err != nil {
		t.Fatalf("NewEnricher failed: %v", err)
	}
	notifier := newTestNotifier()

	worker := NewWorker(enricher, notifier, nil, 1)
	if err := worker.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer worker.Stop()

	notifier.Publish(context.Background(), testEvent())

	// First attempt hits the transient category failure, the retry succeeds.
	waitFor(t, 10*time.Second, func() bool { return driver.updateCount() == 1 })
}

func TestWorker_DoesNotRetryPermanentFailure(t *testing.T) {
	driver := newFakeDriver("travel")
	// A permanent service fault: attempted once, then dropped.
	enricher := newTestEnricher(t, driver, &fixedLLM{err: errors.New("invalid request payload")}, &fixedEmbedder{vector: []float32{1}})
	notifier := newTestNotifier()

	worker := NewWorker(enricher, notifier, nil, 1)
	if err := worker.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	notifier.Publish(context.Background(), testEvent())
	notifier.Publish(context.Background(), testEvent())

	// Queue drains without any write and without blocking on backoff.
	waitFor(t, 2*time.Second, func() bool { return len(notifier.events) == 0 })
	worker.Stop()

	if driver.updateCount() != 0 {
		t.Errorf("permanent failures must not write, got %d updates", driver.updateCount())
	}
}

func TestWorker_StopWaitsForWorkers(t *testing.T) {
	driver := newFakeDriver("travel")
	enricher := newTestEnricher(t, driver, &fixedLLM{response: "travel"}, &fixedEmbedder{vector: []float32{1}})
	notifier := newTestNotifier()

	worker := NewWorker(enricher, notifier, nil, 3)
	if err := worker.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		worker.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
