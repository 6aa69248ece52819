// Package tools implements the external actions available to the agent:
// web search, place lookup, and URL summarization.
package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/notesense/notesense/ai/timeout"
)

// maxResponseBytes caps how much of an external response body is read.
const maxResponseBytes = 1 << 20 // 1 MiB

// httpClient is shared by all tools; per-call deadlines come from the
// request context.
var httpClient = &http.Client{Timeout: timeout.HTTPRequest}

// fetch performs a rate-limited GET and returns the response body. Non-2xx
// statuses are errors; bodies are capped at maxResponseBytes.
func fetch(ctx context.Context, limiter *rate.Limiter, url string) ([]byte, error) {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, nil
}
