// Package v1 exposes the query entry points over HTTP.
package v1

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/semaphore"

	agent "github.com/notesense/notesense/ai/agents"
	"github.com/notesense/notesense/ai/retrieval"
	"github.com/notesense/notesense/internal/profile"
	"github.com/notesense/notesense/store"
)

// maxConcurrentRuns bounds in-flight agent runs; each run can fan out into
// several model and tool calls.
const maxConcurrentRuns = 8

type APIV1Service struct {
	Profile  *profile.Profile
	Store    *store.Store
	Answerer *retrieval.Answerer
	Runner   *agent.Runner

	runSemaphore *semaphore.Weighted
}

func NewAPIV1Service(profile *profile.Profile, store *store.Store, answerer *retrieval.Answerer, runner *agent.Runner) *APIV1Service {
	return &APIV1Service{
		Profile:      profile,
		Store:        store,
		Answerer:     answerer,
		Runner:       runner,
		runSemaphore: semaphore.NewWeighted(maxConcurrentRuns),
	}
}

// Input is the request body for both query entry points.
type Input struct {
	Input string `json:"input"`
}

// Output is the response body for both query entry points.
type Output struct {
	Output string `json:"output"`
}

// RegisterRoutes registers the v1 API routes on the echo group.
func (s *APIV1Service) RegisterRoutes(group *echo.Group) {
	group.POST("/retrieve-notes", s.retrieveNotes)
	group.POST("/expand-context", s.expandContext)
}

// retrieveNotes answers a question from the stored notes via similarity
// search. Callers get either a clean answer or a single diagnostic message.
func (s *APIV1Service) retrieveNotes(c echo.Context) error {
	var input Input
	if err := c.Bind(&input); err != nil || input.Input == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "input is required")
	}

	answer, err := s.Answerer.Answer(c.Request().Context(), input.Input)
	if err != nil {
		slog.Error("retrieve-notes failed", "error", err)
		return echo.NewHTTPError(http.StatusBadGateway, "failed to answer from notes")
	}
	return c.JSON(http.StatusOK, Output{Output: answer})
}

// expandContext answers a question through the tool-calling agent.
func (s *APIV1Service) expandContext(c echo.Context) error {
	var input Input
	if err := c.Bind(&input); err != nil || input.Input == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "input is required")
	}

	ctx := c.Request().Context()
	if err := s.runSemaphore.Acquire(ctx, 1); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "too many concurrent requests")
	}
	defer s.runSemaphore.Release(1)

	run, err := s.Runner.Run(ctx, input.Input)
	if err != nil {
		// The run carries the fixed diagnostic; details stay in the log.
		slog.Error("expand-context run failed", "run_id", run.ID, "error", err)
	}
	return c.JSON(http.StatusOK, Output{Output: run.Answer})
}
