// Package server wires the AI services together and serves the HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/notesense/notesense/ai"
	agent "github.com/notesense/notesense/ai/agents"
	"github.com/notesense/notesense/ai/agents/registry"
	"github.com/notesense/notesense/ai/agents/tools"
	"github.com/notesense/notesense/ai/classify"
	"github.com/notesense/notesense/ai/core/embedding"
	"github.com/notesense/notesense/ai/core/llm"
	"github.com/notesense/notesense/ai/enrichment"
	"github.com/notesense/notesense/ai/metrics"
	"github.com/notesense/notesense/ai/retrieval"
	"github.com/notesense/notesense/internal/profile"
	apiv1 "github.com/notesense/notesense/server/router/api/v1"
	"github.com/notesense/notesense/store"
)

type Server struct {
	profile *profile.Profile
	store   *store.Store

	echoServer *echo.Echo
	worker     *enrichment.Worker
	exporter   *metrics.Exporter
}

// NewServer builds the full service graph: generation and embedding
// services, the enrichment worker on the store's change feed, the retrieval
// answerer, and the agent runner with its tool registry.
func NewServer(ctx context.Context, profile *profile.Profile, st *store.Store) (*Server, error) {
	aiConfig := ai.NewConfigFromProfile(profile)
	if err := aiConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ai config: %w", err)
	}
	if !aiConfig.Enabled {
		return nil, fmt.Errorf("ai is not configured: set NOTESENSE_LLM_API_KEY")
	}

	exporter := metrics.NewExporter(metrics.DefaultConfig())

	classifierLLM, err := llm.NewService(&aiConfig.Classifier)
	if err != nil {
		return nil, fmt.Errorf("create classifier llm: %w", err)
	}
	retrievalLLM, err := llm.NewService(&aiConfig.Retrieval)
	if err != nil {
		return nil, fmt.Errorf("create retrieval llm: %w", err)
	}
	agentLLM, err := llm.NewService(&aiConfig.Agent)
	if err != nil {
		return nil, fmt.Errorf("create agent llm: %w", err)
	}
	embedder, err := embedding.NewProvider(&aiConfig.Embedding)
	if err != nil {
		return nil, fmt.Errorf("create embedding provider: %w", err)
	}

	enricher, err := enrichment.NewEnricher(st, classify.NewClassifier(classifierLLM), embedder)
	if err != nil {
		return nil, fmt.Errorf("create enricher: %w", err)
	}
	worker := enrichment.NewWorker(enricher, st.Notifier(), exporter, 3)

	retriever, err := retrieval.NewRetriever(st, embedder, profile.Collection)
	if err != nil {
		return nil, fmt.Errorf("create retriever: %w", err)
	}
	answerer, err := retrieval.NewAnswerer(retriever, retrievalLLM, exporter)
	if err != nil {
		return nil, fmt.Errorf("create answerer: %w", err)
	}

	toolRegistry, err := buildToolRegistry(profile)
	if err != nil {
		return nil, fmt.Errorf("build tool registry: %w", err)
	}
	runner, err := agent.NewRunner(agentLLM, toolRegistry, exporter, agent.DefaultMaxSteps)
	if err != nil {
		return nil, fmt.Errorf("create agent runner: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI: true, LogStatus: true, LogLatency: true,
		LogValuesFunc: logRequest,
	}))

	s := &Server{
		profile:    profile,
		store:      st,
		echoServer: e,
		worker:     worker,
		exporter:   exporter,
	}

	apiService := apiv1.NewAPIV1Service(profile, st, answerer, runner)
	apiService.RegisterRoutes(e.Group("/api/v1"))

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})
	e.GET("/metrics", echo.WrapHandler(exporter.Handler()))

	// Warm up the generation connection in the background.
	go retrievalLLM.Warmup(ctx)

	return s, nil
}

// Start launches the enrichment worker and the HTTP listener. The listener
// runs in its own goroutine; fatal listen errors are logged.
func (s *Server) Start(ctx context.Context) error {
	if err := s.worker.Start(ctx); err != nil {
		return fmt.Errorf("start enrichment worker: %w", err)
	}

	go func() {
		addr := fmt.Sprintf("%s:%d", s.profile.Addr, s.profile.Port)
		if s.profile.UNIXSock != "" {
			s.echoServer.ListenerNetwork = "unix"
			addr = s.profile.UNIXSock
		}
		err := s.echoServer.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to serve http", "error", err)
		}
	}()
	return nil
}

// Shutdown drains the HTTP server, then stops the enrichment worker so
// in-flight runs finish their write-backs.
func (s *Server) Shutdown(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_ = s.echoServer.Shutdown(shutdownCtx)
	s.worker.Stop()
}

// buildToolRegistry registers every tool whose credentials are configured.
// The agent works with whatever subset is available.
func buildToolRegistry(profile *profile.Profile) (*registry.ToolRegistry, error) {
	toolRegistry := registry.NewToolRegistry()

	if profile.SearchAPIKey != "" && profile.SearchEngineID != "" {
		searchTool, err := tools.NewWebSearchTool(profile.SearchAPIKey, profile.SearchEngineID)
		if err != nil {
			return nil, err
		}
		if err := toolRegistry.Register(searchTool); err != nil {
			return nil, err
		}
	}
	if profile.PlacesAPIKey != "" {
		placesTool, err := tools.NewPlacesSearchTool(profile.PlacesAPIKey)
		if err != nil {
			return nil, err
		}
		if err := toolRegistry.Register(placesTool); err != nil {
			return nil, err
		}
	}
	if err := toolRegistry.Register(tools.NewSummarizeURLTool()); err != nil {
		return nil, err
	}

	return toolRegistry, nil
}

func logRequest(_ echo.Context, v middleware.RequestLoggerValues) error {
	if v.Status >= http.StatusInternalServerError {
		slog.Error("request failed", "uri", v.URI, "status", v.Status, "latency", v.Latency)
	} else {
		slog.Debug("request", "uri", v.URI, "status", v.Status, "latency", v.Latency)
	}
	return nil
}
