// Package ai bundles configuration for the AI services.
package ai

import (
	"errors"

	"github.com/notesense/notesense/ai/core/embedding"
	"github.com/notesense/notesense/ai/core/llm"
	"github.com/notesense/notesense/internal/profile"
)

// Config represents AI configuration. Each consumer gets its own generation
// config because sampling differs per role: the classifier runs near-greedy,
// the retrieval answerer moderate, the agent loop high.
type Config struct {
	Embedding  embedding.Config
	Classifier llm.Config
	Retrieval  llm.Config
	Agent      llm.Config
	Enabled    bool
}

// Sampling settings per role. The classifier emits one category word, the
// answerer grounds itself in retrieved context, the agent explores tools.
const (
	classifierTemperature = 0.1
	classifierMaxTokens   = 70
	retrievalTemperature  = 0.5
	agentTemperature      = 0.9
)

// NewConfigFromProfile builds the AI configuration from the instance profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	base := llm.Config{
		Provider: p.LLMProvider,
		Model:    p.LLMModel,
		APIKey:   p.LLMAPIKey,
		BaseURL:  p.LLMBaseURL,
		Timeout:  p.LLMTimeout,
	}

	classifier := base
	classifier.Temperature = classifierTemperature
	classifier.MaxTokens = classifierMaxTokens
	if p.ClassifierModel != "" {
		classifier.Model = p.ClassifierModel
	}

	retrieval := base
	retrieval.Temperature = retrievalTemperature

	agent := base
	agent.Temperature = agentTemperature

	return &Config{
		Embedding: embedding.Config{
			Model:      p.EmbeddingModel,
			APIKey:     p.EmbeddingAPIKey,
			BaseURL:    p.EmbeddingBaseURL,
			Dimensions: p.EmbeddingDimensions,
		},
		Classifier: classifier,
		Retrieval:  retrieval,
		Agent:      agent,
		Enabled:    p.IsAIEnabled(),
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Retrieval.APIKey == "" {
		return errors.New("llm api key required")
	}
	if c.Embedding.Model == "" {
		return errors.New("embedding model required")
	}
	if c.Embedding.Dimensions <= 0 {
		return errors.New("embedding dimensions must be positive")
	}
	return nil
}
