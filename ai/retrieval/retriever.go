// Package retrieval answers questions over the document collection by
// similarity search plus a single generation call.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/notesense/notesense/ai/core/embedding"
	"github.com/notesense/notesense/store"
)

const (
	// DefaultLimit is the number of nearest documents fed into the prompt.
	DefaultLimit = 5

	// DefaultMaxDistance is the relevance cutoff: documents further than
	// this cosine distance are treated as unrelated to the question.
	DefaultMaxDistance = 0.3
)

// ErrRetrievalFailure wraps every failure of the answer pipeline. Callers
// receive this single error kind; no partial answer is ever returned.
var ErrRetrievalFailure = errors.New("retrieval failure")

// Retriever finds the stored documents nearest to a question.
type Retriever struct {
	store      *store.Store
	embedder   embedding.Provider
	collection string

	limit       int
	maxDistance float32
}

// NewRetriever creates a Retriever over one collection with the default
// limit and distance threshold.
func NewRetriever(st *store.Store, embedder embedding.Provider, collection string) (*Retriever, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection cannot be empty")
	}
	return &Retriever{
		store:       st,
		embedder:    embedder,
		collection:  collection,
		limit:       DefaultLimit,
		maxDistance: DefaultMaxDistance,
	}, nil
}

// Retrieve embeds the question in query mode and returns the top documents
// under the distance threshold, ordered (distance, id).
func (r *Retriever) Retrieve(ctx context.Context, question string) ([]*store.SearchResult, error) {
	start := time.Now()

	vector, err := r.embedder.Embed(ctx, question, embedding.TaskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	results, err := r.store.SearchDocuments(ctx, &store.SearchDocuments{
		Collection:  r.collection,
		Vector:      vector,
		Limit:       r.limit,
		MaxDistance: r.maxDistance,
	})
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}

	slog.Debug("retrieval: search completed",
		"collection", r.collection,
		"results", len(results),
		"duration_ms", time.Since(start).Milliseconds())
	return results, nil
}
