package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"golang.org/x/time/rate"
)

const placesEndpoint = "https://maps.googleapis.com/maps/api/place/textsearch/json"

// maxPlaceResults caps how many places are returned to the model.
const maxPlaceResults = 5

// PlacesSearchTool looks up places through the Maps Places text search API.
type PlacesSearchTool struct {
	apiKey   string
	endpoint string
	limiter  *rate.Limiter
}

// NewPlacesSearchTool creates a new place lookup tool.
func NewPlacesSearchTool(apiKey string) (*PlacesSearchTool, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("places api key cannot be empty")
	}
	return &PlacesSearchTool{
		apiKey:   apiKey,
		endpoint: placesEndpoint,
		limiter:  rate.NewLimiter(rate.Limit(2), 4),
	}, nil
}

func (t *PlacesSearchTool) Name() string {
	return "search_places"
}

func (t *PlacesSearchTool) Description() string {
	return "Searches for information (address, phone numbers, opinions, details) of places like hairdressers, restaurants, monuments and their data using the Google Maps Places API. Input: {\"query\": \"place description\"}."
}

func (t *PlacesSearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "What to look for, e.g. 'hairdresser near Shibuya'.",
			},
		},
		"required":             []string{"query"},
		"additionalProperties": false,
	}
}

type placesInput struct {
	Query string `json:"query"`
}

type placeResult struct {
	Name    string  `json:"name"`
	Address string  `json:"address"`
	Rating  float64 `json:"rating,omitempty"`
	Open    *bool   `json:"open_now,omitempty"`
}

// Run executes the lookup and returns a JSON list of places.
func (t *PlacesSearchTool) Run(ctx context.Context, input string) (string, error) {
	var searchInput placesInput
	if err := json.Unmarshal([]byte(input), &searchInput); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if searchInput.Query == "" {
		return "", fmt.Errorf("query is required")
	}

	query := url.Values{}
	query.Set("query", searchInput.Query)
	query.Set("key", t.apiKey)

	body, err := fetch(ctx, t.limiter, t.endpoint+"?"+query.Encode())
	if err != nil {
		return "", fmt.Errorf("places request failed: %w", err)
	}

	var response struct {
		Status  string `json:"status"`
		Results []struct {
			Name             string  `json:"name"`
			FormattedAddress string  `json:"formatted_address"`
			Rating           float64 `json:"rating"`
			OpeningHours     *struct {
				OpenNow bool `json:"open_now"`
			} `json:"opening_hours"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("decode places response: %w", err)
	}
	if response.Status != "OK" && response.Status != "ZERO_RESULTS" {
		return "", fmt.Errorf("places api status: %s", response.Status)
	}

	results := []placeResult{}
	for _, place := range response.Results {
		if len(results) >= maxPlaceResults {
			break
		}
		result := placeResult{
			Name:    place.Name,
			Address: place.FormattedAddress,
			Rating:  place.Rating,
		}
		if place.OpeningHours != nil {
			open := place.OpeningHours.OpenNow
			result.Open = &open
		}
		results = append(results, result)
	}

	output, err := json.Marshal(map[string]any{"places": results})
	if err != nil {
		return "", fmt.Errorf("encode places results: %w", err)
	}
	return string(output), nil
}
