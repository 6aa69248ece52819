package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start the main server.
type Profile struct {
	// Generation LLM configuration (OpenAI-compatible protocol). Used for
	// RAG answers and the agent loop.
	LLMProvider string // Provider identifier: openai, deepseek, siliconflow, ollama, zai
	LLMAPIKey   string
	LLMBaseURL  string // Optional, has a default per provider
	LLMModel    string
	LLMTimeout  int // Request timeout in seconds (default: 120)

	// Classifier LLM configuration. A lightweight model is enough: the
	// classifier emits a single category word.
	ClassifierModel string // Defaults to LLMModel when empty

	// Embedding configuration
	EmbeddingProvider   string
	EmbeddingModel      string
	EmbeddingAPIKey     string
	EmbeddingBaseURL    string
	EmbeddingDimensions int

	// Agent tool credentials
	SearchAPIKey   string // Google Programmable Search
	SearchEngineID string
	PlacesAPIKey   string // Google Places

	// Document collection served by retrieval and enrichment
	Collection string

	// Server / storage
	Mode     string
	Addr     string
	Port     int
	UNIXSock string
	Data     string
	Driver   string
	DSN      string
	Version  string

	AIEnabled bool
}

// Provider default endpoints and models for the generation LLM.
// Used when LLM_BASE_URL / LLM_MODEL are not explicitly set.
var llmProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o",
	},
	"deepseek": {
		BaseURL: "https://api.deepseek.com",
		Model:   "deepseek-chat",
	},
	"siliconflow": {
		BaseURL: "https://api.siliconflow.cn/v1",
		Model:   "Qwen/Qwen2.5-72B-Instruct",
	},
	"zai": {
		BaseURL: "https://open.bigmodel.cn/api/paas/v4",
		Model:   "glm-4.7",
	},
	"ollama": {
		BaseURL: "http://localhost:11434",
		Model:   "llama3.1",
	},
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if the generation LLM API key is configured.
func (p *Profile) IsAIEnabled() bool {
	return p.LLMAPIKey != ""
}

// getEnvOrDefault returns an environment variable value or a default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns an environment variable value as int or a default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.LLMProvider = getEnvOrDefault("NOTESENSE_LLM_PROVIDER", "openai")
	p.LLMAPIKey = getEnvOrDefault("NOTESENSE_LLM_API_KEY", "")
	p.LLMBaseURL = getEnvOrDefault("NOTESENSE_LLM_BASE_URL", "")
	p.LLMModel = getEnvOrDefault("NOTESENSE_LLM_MODEL", "")
	p.LLMTimeout = getEnvOrDefaultInt("NOTESENSE_LLM_TIMEOUT_SECONDS", 120)
	p.ClassifierModel = getEnvOrDefault("NOTESENSE_CLASSIFIER_MODEL", "")

	p.AIEnabled = p.LLMAPIKey != ""

	if p.LLMProvider != "" {
		if _, ok := llmProviderDefaults[p.LLMProvider]; !ok {
			slog.Warn("unknown LLM provider, using default: openai", "provider", p.LLMProvider)
			p.LLMProvider = "openai"
		}
	}
	if defaults, ok := llmProviderDefaults[p.LLMProvider]; ok {
		if p.LLMBaseURL == "" {
			p.LLMBaseURL = defaults.BaseURL
		}
		if p.LLMModel == "" {
			p.LLMModel = defaults.Model
		}
	}

	p.EmbeddingProvider = getEnvOrDefault("NOTESENSE_EMBEDDING_PROVIDER", "openai")
	p.EmbeddingModel = getEnvOrDefault("NOTESENSE_EMBEDDING_MODEL", "text-embedding-3-small")
	p.EmbeddingAPIKey = getEnvOrDefault("NOTESENSE_EMBEDDING_API_KEY", p.LLMAPIKey)
	p.EmbeddingBaseURL = getEnvOrDefault("NOTESENSE_EMBEDDING_BASE_URL", "")
	p.EmbeddingDimensions = getEnvOrDefaultInt("NOTESENSE_EMBEDDING_DIMENSIONS", 768)

	p.SearchAPIKey = getEnvOrDefault("NOTESENSE_SEARCH_API_KEY", "")
	p.SearchEngineID = getEnvOrDefault("NOTESENSE_SEARCH_ENGINE_ID", "")
	p.PlacesAPIKey = getEnvOrDefault("NOTESENSE_PLACES_API_KEY", "")

	p.Collection = getEnvOrDefault("NOTESENSE_COLLECTION", "notes")
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to an absolute path if a relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case the user supplies one.
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		p.Data = "/var/opt/notesense"
	}
	if p.Data == "" {
		p.Data = "."
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("notesense_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn required for postgres driver")
	}

	return nil
}
