package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/notesense/notesense/ai/core/llm"
	"github.com/notesense/notesense/ai/metrics"
	"github.com/notesense/notesense/store"
)

// docSeparator joins retrieved document contents in the context block.
const docSeparator = "\n\n-"

const answerSystemPrompt = `You are an assistant that answers questions using the user's saved notes. Use only the information in the context below. If the context is empty or does not contain the answer, say that no relevant information was found in the notes. Be concise.

Context:
%s`

// Answerer composes retrieval with one generation call.
type Answerer struct {
	retriever *Retriever
	llm       llm.Service
	exporter  *metrics.Exporter
}

// NewAnswerer creates a new Answerer. exporter may be nil.
func NewAnswerer(retriever *Retriever, service llm.Service, exporter *metrics.Exporter) (*Answerer, error) {
	if retriever == nil {
		return nil, fmt.Errorf("retriever cannot be nil")
	}
	if service == nil {
		return nil, fmt.Errorf("llm service cannot be nil")
	}
	return &Answerer{retriever: retriever, llm: service, exporter: exporter}, nil
}

// Answer returns the model's raw text for the question, grounded in the
// retrieved context. The generation call happens even when zero documents
// pass the threshold: the prompt template, not control flow, decides how a
// "nothing found" answer reads. Any failure surfaces as ErrRetrievalFailure.
func (a *Answerer) Answer(ctx context.Context, question string) (string, error) {
	start := time.Now()

	results, err := a.retriever.Retrieve(ctx, question)
	if err != nil {
		a.exporter.ObserveRetrieval("error", 0)
		return "", fmt.Errorf("%w: %v", ErrRetrievalFailure, err)
	}

	context := formatDocs(results)
	messages := []llm.Message{
		llm.SystemPrompt(fmt.Sprintf(answerSystemPrompt, context)),
		llm.UserMessage(question),
	}

	answer, stats, err := a.llm.Chat(ctx, messages)
	if err != nil {
		a.exporter.ObserveRetrieval("error", len(results))
		return "", fmt.Errorf("%w: %v", ErrRetrievalFailure, err)
	}

	a.exporter.ObserveRetrieval("success", len(results))
	slog.Info("retrieval: answer generated",
		"documents", len(results),
		"tokens", stats.TotalTokens,
		"duration_ms", time.Since(start).Milliseconds())
	return answer, nil
}

// formatDocs concatenates document contents with a visible delimiter.
// Zero results yield an empty context block.
func formatDocs(results []*store.SearchResult) string {
	contents := make([]string, len(results))
	for i, result := range results {
		contents[i] = result.Document.Content
	}
	return strings.Join(contents, docSeparator)
}
