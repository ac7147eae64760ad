package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/seekerhq/seeker/pkg/models"
	"github.com/seekerhq/seeker/pkg/tools"
)

const (
	webPageSize     = 8
	webExtractChars = 12000
)

// WebSource adapts the generic web search and extract capabilities into
// the Source contract. Cursors are 1-based page numbers.
type WebSource struct {
	searcher  tools.Searcher
	extractor tools.Extractor
	budget    int

	// refs maps ref IDs seen during Search to their URLs so Fetch can
	// resolve them. Refs are fetched within the iteration that found
	// them, so the map never needs to survive a restart.
	refs sync.Map
}

// NewWebSource creates a web source with a per-task result budget.
func NewWebSource(searcher tools.Searcher, extractor tools.Extractor, budget int) *WebSource {
	if budget <= 0 {
		budget = webPageSize
	}
	return &WebSource{searcher: searcher, extractor: extractor, budget: budget}
}

func (w *WebSource) Name() string { return "web" }

// AdaptQueries wraps each query variant in a search task. Web search
// has no special grammar, so queries pass through unchanged.
func (w *WebSource) AdaptQueries(_ context.Context, queries []string, _ string) ([]models.SearchTask, error) {
	tasks := make([]models.SearchTask, 0, len(queries))
	for _, q := range queries {
		tasks = append(tasks, models.SearchTask{
			TaskID: uuid.NewString(),
			Source: w.Name(),
			Mode:   models.TaskModeSearch,
			Query:  q,
			Budget: w.budget,
		})
	}
	return tasks, nil
}

// Discover is a no-op: the open web has no enumerable entities.
func (w *WebSource) Discover(_ context.Context, _ string, _ int) ([]SourceEntity, error) {
	return nil, nil
}

// Search runs one page of the task's query. Ref IDs hash the URL so a
// page reached through different queries de-duplicates.
func (w *WebSource) Search(ctx context.Context, task models.SearchTask) (*models.Page, error) {
	page := 1
	if task.Cursor != "" {
		parsed, err := strconv.Atoi(task.Cursor)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor %q: %w", task.Cursor, err)
		}
		page = parsed
	}
	sp, err := w.searcher.Search(ctx, task.Query, page, webPageSize)
	if err != nil {
		return nil, fmt.Errorf("web search %q failed: %w", task.Query, err)
	}

	out := &models.Page{Exhausted: !sp.HasMore}
	for i, r := range sp.Results {
		out.Items = append(out.Items, models.DocumentRef{
			RefID:   w.refID(r.URL),
			RefType: "web_page",
			Source:  w.Name(),
			TaskID:  task.TaskID,
			Rank:    (page-1)*webPageSize + i,
			Preview: r.Title,
		})
	}
	if sp.HasMore {
		out.NextCursor = strconv.Itoa(page + 1)
	}
	return out, nil
}

// Fetch extracts the page behind a ref. The ref's preview carries the
// URL's title from search time; the extractor's title wins when set.
func (w *WebSource) Fetch(ctx context.Context, ref models.DocumentRef, _ DeepComments) (*models.Document, error) {
	url, ok := w.refs.Load(ref.RefID)
	if !ok {
		return nil, fmt.Errorf("unknown ref %s", ref.RefID)
	}
	ex, err := w.extractor.Extract(ctx, url.(string), webExtractChars)
	if err != nil {
		return nil, fmt.Errorf("web extract %s failed: %w", url, err)
	}
	title := ex.Title
	if title == "" {
		title = ref.Preview
	}
	return &models.Document{
		DocID:       ref.RefID,
		Source:      w.Name(),
		URL:         ex.URL,
		RetrievedAt: time.Now().UTC(),
		Title:       title,
		RawText:     ex.RawContent,
		Metadata: map[string]any{
			"raw_len":   ex.RawLen,
			"truncated": ex.Truncated,
		},
	}, nil
}

func (w *WebSource) refID(url string) string {
	sum := sha256.Sum256([]byte(url))
	id := "web_" + hex.EncodeToString(sum[:8])
	w.refs.Store(id, url)
	return id
}
