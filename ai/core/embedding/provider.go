// Package embedding provides the vector embedding provider.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// Task selects the retrieval tuning applied to an embedding call. Documents
// and queries are embedded differently so that stored vectors and question
// vectors land in the same search space.
type Task string

const (
	TaskRetrievalDocument Task = "RETRIEVAL_DOCUMENT"
	TaskRetrievalQuery    Task = "RETRIEVAL_QUERY"
)

// Provider is the vector embedding service interface.
type Provider interface {
	// Embed generates a vector for a single text under the given task.
	Embed(ctx context.Context, text string, task Task) ([]float32, error)

	// EmbedBatch generates vectors for multiple texts under the given task.
	EmbedBatch(ctx context.Context, texts []string, task Task) ([][]float32, error)

	// Dimensions returns the vector dimension.
	Dimensions() int
}

// Config represents embedding provider configuration. Any OpenAI-compatible
// endpoint works (openai, siliconflow, ollama, dashscope, ...).
type Config struct {
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
}

type provider struct {
	client     *openai.Client
	model      string
	dimensions int
}

// Instruction prefixes for retrieval-tuned models (bge style). Models that
// ignore instructions are unaffected beyond a few extra tokens.
var taskPrefixes = map[Task]string{
	TaskRetrievalQuery: "Represent this sentence for searching relevant passages: ",
}

// NewProvider creates a new embedding Provider.
func NewProvider(cfg *Config) (Provider, error) {
	if cfg.Model == "" {
		return nil, errors.New("embedding model required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &provider{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}, nil
}

func (p *provider) Embed(ctx context.Context, text string, task Task) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text}, task)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, errors.New("empty embedding result")
	}
	return vectors[0], nil
}

func (p *provider) EmbedBatch(ctx context.Context, texts []string, task Task) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided for embedding")
	}

	input := texts
	if prefix := taskPrefixes[task]; prefix != "" {
		input = make([]string, len(texts))
		for i, text := range texts {
			input[i] = prefix + text
		}
	}

	req := openai.EmbeddingRequest{
		Input:      input,
		Model:      openai.EmbeddingModel(p.model),
		Dimensions: p.dimensions,
	}

	resp, err := p.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create embeddings failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("empty embedding response")
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		if p.dimensions > 0 && len(data.Embedding) != p.dimensions {
			return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(data.Embedding), p.dimensions)
		}
		vectors[i] = data.Embedding
	}
	return vectors, nil
}

func (p *provider) Dimensions() int {
	return p.dimensions
}
