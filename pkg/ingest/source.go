// Package ingest implements the source-ingestion agent: task seeding,
// the iteration scheduler with per-source circuit breakers and adaptive
// concurrency, and the LLM extraction pipeline.
package ingest

import (
	"context"

	"github.com/seekerhq/seeker/pkg/models"
)

// DeepComments controls whether a fetch also pulls comment threads.
type DeepComments string

const (
	DeepCommentsAuto   DeepComments = "auto"
	DeepCommentsAlways DeepComments = "always"
	DeepCommentsNever  DeepComments = "never"
)

// SourceEntity is a source-side grouping (a forum, a repo, a category)
// a task can be scoped to.
type SourceEntity struct {
	Name  string `json:"name"`
	Label string `json:"label,omitempty"`
}

// Source is the external content-source capability. Implementations
// must be safe for concurrent Search and Fetch calls; per-source rate
// limits and retries are the implementation's responsibility.
type Source interface {
	Name() string

	// AdaptQueries translates semantic query variants into the
	// source's own search grammar.
	AdaptQueries(ctx context.Context, queries []string, topic string) ([]models.SearchTask, error)

	// Discover lists entities relevant to a topic.
	Discover(ctx context.Context, topic string, limit int) ([]SourceEntity, error)

	// Search runs one task and returns a page of discovery refs.
	Search(ctx context.Context, task models.SearchTask) (*models.Page, error)

	// Fetch materializes a ref into a Document.
	Fetch(ctx context.Context, ref models.DocumentRef, deepComments DeepComments) (*models.Document, error)
}
