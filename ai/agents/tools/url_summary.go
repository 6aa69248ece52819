package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/time/rate"
)

// maxContentChars caps how much page text is fed back to the model.
const maxContentChars = 8000

var (
	scriptRegexp = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagRegexp    = regexp.MustCompile(`(?s)<[^>]+>`)
	spaceRegexp  = regexp.MustCompile(`\s+`)
)

// SummarizeURLTool fetches a web page and returns its visible text for the
// model to summarize or act on.
type SummarizeURLTool struct {
	limiter *rate.Limiter
}

// NewSummarizeURLTool creates a new URL content tool.
func NewSummarizeURLTool() *SummarizeURLTool {
	return &SummarizeURLTool{
		limiter: rate.NewLimiter(rate.Limit(1), 2),
	}
}

func (t *SummarizeURLTool) Name() string {
	return "summarize_url"
}

func (t *SummarizeURLTool) Description() string {
	return "Use this tool when asked for summaries or content of URLs. It gets the text content of the URL so you can summarize or answer questions about it. Input: {\"url\": \"https://...\"}."
}

func (t *SummarizeURLTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The http or https URL to fetch.",
			},
		},
		"required":             []string{"url"},
		"additionalProperties": false,
	}
}

type summarizeInput struct {
	URL string `json:"url"`
}

// Run fetches the page and returns {"content": ..., "link": ...}.
func (t *SummarizeURLTool) Run(ctx context.Context, input string) (string, error) {
	var fetchInput summarizeInput
	if err := json.Unmarshal([]byte(input), &fetchInput); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}

	parsed, err := url.Parse(fetchInput.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", fmt.Errorf("invalid url: %q", fetchInput.URL)
	}

	body, err := fetch(ctx, t.limiter, fetchInput.URL)
	if err != nil {
		return "", fmt.Errorf("fetch url failed: %w", err)
	}

	content := truncateRunes(extractText(string(body)), maxContentChars)

	output, err := json.Marshal(map[string]string{
		"content": content,
		"link":    fetchInput.URL,
	})
	if err != nil {
		return "", fmt.Errorf("encode page content: %w", err)
	}
	return string(output), nil
}

// truncateRunes cuts s to at most max bytes without splitting a rune.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// extractText strips markup down to whitespace-normalized visible text.
func extractText(html string) string {
	text := scriptRegexp.ReplaceAllString(html, " ")
	text = tagRegexp.ReplaceAllString(text, " ")
	text = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'").Replace(text)
	return strings.TrimSpace(spaceRegexp.ReplaceAllString(text, " "))
}
