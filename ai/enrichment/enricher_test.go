package enrichment

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/notesense/notesense/ai/classify"
	"github.com/notesense/notesense/ai/core/embedding"
	"github.com/notesense/notesense/ai/core/llm"
	"github.com/notesense/notesense/store"
)

// fakeDriver is an in-memory store.Driver capturing field updates.
type fakeDriver struct {
	mu         sync.Mutex
	categories []*store.Category
	listErr    error
	updateErr  error
	updates    []*store.UpdateDocument
}

func newFakeDriver(categories ...string) *fakeDriver {
	d := &fakeDriver{}
	for _, name := range categories {
		d.categories = append(d.categories, &store.Category{Name: name})
	}
	return d
}

func (d *fakeDriver) GetDocument(_ context.Context, _ *store.FindDocument) (*store.Document, error) {
	return nil, nil
}

func (d *fakeDriver) CreateDocument(_ context.Context, create *store.Document) (*store.Document, error) {
	return create, nil
}

func (d *fakeDriver) UpdateDocumentFields(_ context.Context, update *store.UpdateDocument) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.updateErr != nil {
		return d.updateErr
	}
	d.updates = append(d.updates, update)
	return nil
}

func (d *fakeDriver) ListDocuments(_ context.Context, _ string) ([]*store.Document, error) {
	return nil, nil
}

func (d *fakeDriver) SearchDocuments(_ context.Context, _ *store.SearchDocuments) ([]*store.SearchResult, error) {
	return nil, nil
}

func (d *fakeDriver) ListCategories(_ context.Context) ([]*store.Category, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listErr != nil {
		return nil, d.listErr
	}
	return d.categories, nil
}

func (d *fakeDriver) Notifier() store.Notifier { return nil }

func (d *fakeDriver) Migrate(_ context.Context) error { return nil }

func (d *fakeDriver) Close() error { return nil }

func (d *fakeDriver) updateCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.updates)
}

// fixedLLM backs the classifier in enrichment tests.
type fixedLLM struct {
	response string
	err      error
}

func (f *fixedLLM) Chat(_ context.Context, _ []llm.Message) (string, *llm.CallStats, error) {
	if f.err != nil {
		return "", nil, f.err
	}
	return f.response, &llm.CallStats{}, nil
}

func (f *fixedLLM) ChatWithTools(_ context.Context, _ []llm.Message, _ []llm.ToolDescriptor) (*llm.ChatResponse, *llm.CallStats, error) {
	return nil, nil, errors.New("not used")
}

func (f *fixedLLM) Warmup(_ context.Context) {}

// fixedEmbedder returns a constant vector.
type fixedEmbedder struct {
	vector []float32
	err    error
}

func (f *fixedEmbedder) Embed(_ context.Context, _ string, _ embedding.Task) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func (f *fixedEmbedder) EmbedBatch(_ context.Context, texts []string, _ embedding.Task) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = f.vector
	}
	return vectors, nil
}

func (f *fixedEmbedder) Dimensions() int { return len(f.vector) }

func newTestEnricher(t *testing.T, driver *fakeDriver, service llm.Service, embedder embedding.Provider) *Enricher {
	t.Helper()
	enricher, err := NewEnricher(store.New(driver, nil), classify.NewClassifier(service), embedder)
	if err != nil {
		t.Fatalf("NewEnricher failed: %v", err)
	}
	return enricher
}

func testEvent() *store.ChangeEvent {
	return &store.ChangeEvent{
		ID:         "evt-1",
		Collection: "notes",
		DocID:      "doc-1",
		Content:    "Booked flights to Lisbon for next month",
	}
}

func TestEnrich_WritesBothFields(t *testing.T) {
	driver := newFakeDriver("travel", "food", "work")
	vector := []float32{0.1, 0.2, 0.3}
	enricher := newTestEnricher(t, driver, &fixedLLM{response: "travel"}, &fixedEmbedder{vector: vector})

	if err := enricher.Enrich(context.Background(), testEvent()); err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}

	if driver.updateCount() != 1 {
		t.Fatalf("expected exactly 1 update, got %d", driver.updateCount())
	}
	update := driver.updates[0]
	if update.Collection != "notes" || update.ID != "doc-1" {
		t.Errorf("update addressed %s/%s, want notes/doc-1", update.Collection, update.ID)
	}
	if update.Category == nil || *update.Category != "travel" {
		t.Errorf("expected category 'travel', got %v", update.Category)
	}
	if len(update.Embedding) != len(vector) {
		t.Errorf("expected embedding of dimension %d, got %d", len(vector), len(update.Embedding))
	}
}

func TestEnrich_OutOfSetLabelFallsBack(t *testing.T) {
	driver := newFakeDriver("travel", "food")
	enricher := newTestEnricher(t, driver, &fixedLLM{response: "something unrelated"}, &fixedEmbedder{vector: []float32{1}})

	if err := enricher.Enrich(context.Background(), testEvent()); err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if *driver.updates[0].Category != store.FallbackCategory {
		t.Errorf("expected fallback category, got %q", *driver.updates[0].Category)
	}
}

func TestEnrich_MalformedEvents(t *testing.T) {
	driver := newFakeDriver("travel")
	enricher := newTestEnricher(t, driver, &fixedLLM{response: "travel"}, &fixedEmbedder{vector: []float32{1}})

	tests := []struct {
		name  string
		event *store.ChangeEvent
	}{
		{"nil event", nil},
		{"missing collection", &store.ChangeEvent{DocID: "doc-1", Content: "text"}},
		{"missing doc id", &store.ChangeEvent{Collection: "notes", Content: "text"}},
		{"empty content", &store.ChangeEvent{Collection: "notes", DocID: "doc-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := enricher.Enrich(context.Background(), tt.event)
			if !errors.Is(err, ErrMalformedEvent) {
				t.Errorf("expected ErrMalformedEvent, got %v", err)
			}
		})
	}
	if driver.updateCount() != 0 {
		t.Errorf("malformed events must not write, got %d updates", driver.updateCount())
	}
}

func TestEnrich_SkipsCategoryCollection(t *testing.T) {
	driver := newFakeDriver("travel")
	enricher := newTestEnricher(t, driver, &fixedLLM{response: "travel"}, &fixedEmbedder{vector: []float32{1}})

	event := &store.ChangeEvent{
		ID:         "evt-2",
		Collection: store.CollectionCategories,
		DocID:      "travel",
		Content:    "travel",
	}
	if err := enricher.Enrich(context.Background(), event); err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if driver.updateCount() != 0 {
		t.Errorf("category collection events must be ignored, got %d updates", driver.updateCount())
	}
}

func TestEnrich_CategoryListUnavailable(t *testing.T) {
	driver := newFakeDriver("travel")
	driver.listErr = errors.New("connection refused")
	enricher := newTestEnricher(t, driver, &fixedLLM{response: "travel"}, &fixedEmbedder{vector: []float32{1}})

	err := enricher.Enrich(context.Background(), testEvent())
	if !errors.Is(err, ErrCategoryListUnavailable) {
		t.Fatalf("expected ErrCategoryListUnavailable, got %v", err)
	}
	if driver.updateCount() != 0 {
		t.Errorf("no write expected when the category snapshot is unavailable")
	}
}

func TestEnrich_NoWriteOnClassifierFailure(t *testing.T) {
	driver := newFakeDriver("travel")
	enricher := newTestEnricher(t, driver, &fixedLLM{err: errors.New("rate limit")}, &fixedEmbedder{vector: []float32{1}})

	if err := enricher.Enrich(context.Background(), testEvent()); err == nil {
		t.Fatal("expected error from failing classifier")
	}
	if driver.updateCount() != 0 {
		t.Errorf("failed enrichment must not write partial fields")
	}
}

func TestEnrich_NoWriteOnEmbeddingFailure(t *testing.T) {
	driver := newFakeDriver("travel")
	enricher := newTestEnricher(t, driver, &fixedLLM{response: "travel"}, &fixedEmbedder{err: errors.New("timeout")})

	if err := enricher.Enrich(context.Background(), testEvent()); err == nil {
		t.Fatal("expected error from failing embedder")
	}
	if driver.updateCount() != 0 {
		t.Errorf("failed enrichment must not write partial fields")
	}
}

func TestEnrich_RedeliveryIsIdempotent(t *testing.T) {
	driver := newFakeDriver("travel")
	enricher := newTestEnricher(t, driver, &fixedLLM{response: "travel"}, &fixedEmbedder{vector: []float32{0.5}})

	event := testEvent()
	for i := 0; i < 3; i++ {
		if err := enricher.Enrich(context.Background(), event); err != nil {
			t.Fatalf("Enrich failed on delivery %d: %v", i+1, err)
		}
	}

	// Redelivery recomputes and rewrites the same pair; every update is
	// identical so the document state converges regardless of count.
	if driver.updateCount() != 3 {
		t.Fatalf("expected 3 updates, got %d", driver.updateCount())
	}
	first := driver.updates[0]
	for _, update := range driver.updates[1:] {
		if *update.Category != *first.Category {
			t.Errorf("redelivered category diverged: %q vs %q", *update.Category, *first.Category)
		}
	}
}
