// Package enrichment computes a category and an embedding for every
// document content mutation and writes both back in one field-level update.
package enrichment

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/notesense/notesense/ai/classify"
	"github.com/notesense/notesense/ai/core/embedding"
	"github.com/notesense/notesense/store"
)

// Enricher runs one enrichment pass for one change event.
type Enricher struct {
	store      *store.Store
	classifier *classify.Classifier
	embedder   embedding.Provider
}

// NewEnricher creates a new Enricher.
func NewEnricher(st *store.Store, classifier *classify.Classifier, embedder embedding.Provider) (*Enricher, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if classifier == nil {
		return nil, fmt.Errorf("classifier cannot be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	return &Enricher{store: st, classifier: classifier, embedder: embedder}, nil
}

// Enrich processes a single change event: decode, load the category
// snapshot, classify and embed concurrently, then write both fields back in
// one atomic update. No write happens on any failure before the final step,
// and re-applying the same (category, embedding) pair is a no-op in effect,
// so redelivered events are safe.
func (e *Enricher) Enrich(ctx context.Context, event *store.ChangeEvent) error {
	if err := validateEvent(event); err != nil {
		return err
	}

	// Enriching the reference collection itself would loop.
	if event.Collection == store.CollectionCategories {
		return nil
	}

	// Fresh snapshot per run; stale categories are worse than the extra read.
	categories, err := e.store.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCategoryListUnavailable, err)
	}
	names := make([]string, len(categories))
	for i, category := range categories {
		names[i] = category.Name
	}

	// Classification and embedding are independent; run them concurrently.
	// The write below waits for both so a reader never observes a document
	// with only one of the two fields from this run.
	var category string
	var vector []float32
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		category, err = e.classifier.Classify(groupCtx, event.Content, names)
		return err
	})
	group.Go(func() error {
		var err error
		vector, err = e.embedder.Embed(groupCtx, event.Content, embedding.TaskRetrievalDocument)
		return err
	})
	if err := group.Wait(); err != nil {
		return err
	}

	return e.store.UpdateDocumentFields(ctx, &store.UpdateDocument{
		Collection: event.Collection,
		ID:         event.DocID,
		Category:   &category,
		Embedding:  vector,
	})
}

func validateEvent(event *store.ChangeEvent) error {
	if event == nil {
		return fmt.Errorf("%w: nil event", ErrMalformedEvent)
	}
	if event.Collection == "" || event.DocID == "" {
		return fmt.Errorf("%w: missing document path", ErrMalformedEvent)
	}
	if event.Content == "" {
		return fmt.Errorf("%w: missing content field", ErrMalformedEvent)
	}
	return nil
}
