package ai

import (
	"testing"

	"github.com/notesense/notesense/internal/profile"
)

func testProfile() *profile.Profile {
	return &profile.Profile{
		LLMProvider:         "openai",
		LLMAPIKey:           "sk-test",
		LLMModel:            "gpt-4o",
		LLMTimeout:          60,
		EmbeddingModel:      "text-embedding-3-small",
		EmbeddingDimensions: 768,
	}
}

func TestNewConfigFromProfile_PerRoleSampling(t *testing.T) {
	cfg := NewConfigFromProfile(testProfile())

	if cfg.Classifier.Temperature != 0.1 {
		t.Errorf("classifier temperature = %v, want 0.1", cfg.Classifier.Temperature)
	}
	if cfg.Classifier.MaxTokens != 70 {
		t.Errorf("classifier max tokens = %d, want 70", cfg.Classifier.MaxTokens)
	}
	if cfg.Retrieval.Temperature != 0.5 {
		t.Errorf("retrieval temperature = %v, want 0.5", cfg.Retrieval.Temperature)
	}
	if cfg.Agent.Temperature != 0.9 {
		t.Errorf("agent temperature = %v, want 0.9", cfg.Agent.Temperature)
	}

	// All roles share the provider credentials.
	for name, role := range map[string]string{
		"classifier": cfg.Classifier.APIKey,
		"retrieval":  cfg.Retrieval.APIKey,
		"agent":      cfg.Agent.APIKey,
	} {
		if role != "sk-test" {
			t.Errorf("%s api key not inherited: %q", name, role)
		}
	}

	if !cfg.Enabled {
		t.Error("config should be enabled when the api key is set")
	}
}

func TestNewConfigFromProfile_ClassifierModelOverride(t *testing.T) {
	p := testProfile()
	p.ClassifierModel = "gpt-4o-mini"
	cfg := NewConfigFromProfile(p)

	if cfg.Classifier.Model != "gpt-4o-mini" {
		t.Errorf("classifier model = %q, want gpt-4o-mini", cfg.Classifier.Model)
	}
	if cfg.Retrieval.Model != "gpt-4o" {
		t.Errorf("retrieval model = %q, want gpt-4o", cfg.Retrieval.Model)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := NewConfigFromProfile(testProfile())
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	disabled := NewConfigFromProfile(&profile.Profile{})
	if err := disabled.Validate(); err != nil {
		t.Errorf("disabled config should validate: %v", err)
	}

	noEmbedding := testProfile()
	noEmbedding.EmbeddingModel = ""
	if err := NewConfigFromProfile(noEmbedding).Validate(); err == nil {
		t.Error("expected error for missing embedding model")
	}

	badDims := testProfile()
	badDims.EmbeddingDimensions = 0
	if err := NewConfigFromProfile(badDims).Validate(); err == nil {
		t.Error("expected error for non-positive embedding dimensions")
	}
}
