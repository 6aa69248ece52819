// Package classify assigns a single category label to free text.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/notesense/notesense/ai/core/llm"
	"github.com/notesense/notesense/store"
)

// Classifier selects one category from a reference set, or the fallback
// label when the text fits none of them.
type Classifier struct {
	llm llm.Service
}

// NewClassifier creates a new Classifier. The provided service should run
// near-greedy sampling; classification has exactly one right shape of answer.
func NewClassifier(service llm.Service) *Classifier {
	return &Classifier{llm: service}
}

const promptTemplate = `Classify the following text into these categories %s, if the text does not correspond to any category classify it as %s. Respond only with the word/words of the category only. Only one category available, in case of a note belonging to different ones you must pick the closest one but only one. text: %s, category:`

// Classify returns exactly one label from categories, or the fallback. The
// model's answer is normalized and checked for membership so a rambling
// response can never leak an out-of-set label.
func (c *Classifier) Classify(ctx context.Context, text string, categories []string) (string, error) {
	if len(categories) == 0 {
		return store.FallbackCategory, nil
	}

	prompt := fmt.Sprintf(promptTemplate, formatCategories(categories), store.FallbackCategory, text)

	start := time.Now()
	response, _, err := c.llm.Chat(ctx, []llm.Message{llm.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("classification failed: %w", err)
	}

	label := normalizeLabel(response, categories)
	slog.Debug("classify: label selected",
		"label", label,
		"raw_length", len(response),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return label, nil
}

func formatCategories(categories []string) string {
	return "[" + strings.Join(categories, ", ") + "]"
}

// normalizeLabel trims the model output and snaps it onto the category set.
// Membership is matched case-insensitively; anything else becomes fallback.
func normalizeLabel(response string, categories []string) string {
	label := strings.TrimSpace(response)
	label = strings.Trim(label, `"'.`)
	for _, category := range categories {
		if strings.EqualFold(label, category) {
			return category
		}
	}
	return store.FallbackCategory
}
