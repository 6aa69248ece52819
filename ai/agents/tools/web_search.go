package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"golang.org/x/time/rate"
)

const searchEndpoint = "https://www.googleapis.com/customsearch/v1"

// defaultSearchResults is the number of results returned per query.
const defaultSearchResults = 5

// WebSearchTool searches the web through the Programmable Search JSON API.
type WebSearchTool struct {
	apiKey   string
	engineID string
	endpoint string
	limiter  *rate.Limiter
}

// NewWebSearchTool creates a new web search tool.
func NewWebSearchTool(apiKey, engineID string) (*WebSearchTool, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("search api key cannot be empty")
	}
	if engineID == "" {
		return nil, fmt.Errorf("search engine id cannot be empty")
	}
	return &WebSearchTool{
		apiKey:   apiKey,
		engineID: engineID,
		endpoint: searchEndpoint,
		limiter:  rate.NewLimiter(rate.Limit(2), 4),
	}, nil
}

func (t *WebSearchTool) Name() string {
	return "google_search"
}

func (t *WebSearchTool) Description() string {
	return "Searches in Google for up to date information, examples: information about characters, news about sports, TV shows, episodes, general topics. Input: {\"query\": \"search keywords\"}."
}

func (t *WebSearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query.",
			},
		},
		"required":             []string{"query"},
		"additionalProperties": false,
	}
}

type webSearchInput struct {
	Query string `json:"query"`
}

type webSearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

// Run executes the search and returns a JSON list of results.
func (t *WebSearchTool) Run(ctx context.Context, input string) (string, error) {
	var searchInput webSearchInput
	if err := json.Unmarshal([]byte(input), &searchInput); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if searchInput.Query == "" {
		return "", fmt.Errorf("query is required")
	}

	query := url.Values{}
	query.Set("key", t.apiKey)
	query.Set("cx", t.engineID)
	query.Set("q", searchInput.Query)
	query.Set("num", fmt.Sprintf("%d", defaultSearchResults))

	body, err := fetch(ctx, t.limiter, t.endpoint+"?"+query.Encode())
	if err != nil {
		return "", fmt.Errorf("search request failed: %w", err)
	}

	var response struct {
		Items []struct {
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
			Link    string `json:"link"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("decode search response: %w", err)
	}

	results := make([]webSearchResult, len(response.Items))
	for i, item := range response.Items {
		results[i] = webSearchResult{Title: item.Title, Snippet: item.Snippet, Link: item.Link}
	}

	output, err := json.Marshal(map[string]any{"results": results})
	if err != nil {
		return "", fmt.Errorf("encode search results: %w", err)
	}
	return string(output), nil
}
