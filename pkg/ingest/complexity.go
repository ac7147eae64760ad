package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/seekerhq/seeker/pkg/llm"
	"github.com/seekerhq/seeker/pkg/models"
)

const complexityPrompt = `Classify how complex it is to research user pain points for the topic below.

Topic: %s

Consider how fragmented the user base is, how many competing products exist, and how spread out the discussion is across the web.

Answer with exactly one word: simple, medium, or complex.`

// AssessComplexity classifies a topic with one LLM call. Unparseable
// answers fall back to medium.
func AssessComplexity(ctx context.Context, client llm.Client, model, topic string) (models.Complexity, error) {
	resp, err := client.Complete(ctx, &llm.Request{
		Model:       model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: fmt.Sprintf(complexityPrompt, topic)}},
		Temperature: 0.0,
		MaxTokens:   8,
	})
	if err != nil {
		return "", fmt.Errorf("complexity assessment failed: %w", err)
	}
	word := strings.ToLower(strings.TrimSpace(resp.Content))
	if idx := strings.IndexAny(word, " \n.,"); idx > 0 {
		word = word[:idx]
	}
	switch models.Complexity(word) {
	case models.ComplexitySimple, models.ComplexityMedium, models.ComplexityComplex:
		return models.Complexity(word), nil
	default:
		return models.ComplexityMedium, nil
	}
}

// IterationCapFor maps complexity to the session iteration budget.
func IterationCapFor(c models.Complexity) int {
	switch c {
	case models.ComplexitySimple:
		return 30
	case models.ComplexityComplex:
		return 100
	default:
		return 60
	}
}
