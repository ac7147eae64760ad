// Package agent implements the tool-calling LLM loop, the single-task
// sub-agent runner, and the bounded parallel worker runner built on top
// of them.
package agent

import (
	"net/url"
	"strings"
	"time"

	"github.com/seekerhq/seeker/pkg/tools"
)

// WorkerTask is one deep-research sub-task dispatched to a worker.
// Zero-valued caps fall back to the runner's defaults.
type WorkerTask struct {
	ID                 string `json:"id"`
	Prompt             string `json:"prompt"`
	Agent              string `json:"agent,omitempty"`
	MaxWebSearchCalls  int    `json:"max_web_search_calls,omitempty"`
	MaxWebExtractCalls int    `json:"max_web_extract_calls,omitempty"`
	MaxIterations      int    `json:"max_iterations,omitempty"`
}

// SourceMeta is per-URL metadata harvested from web_search results.
type SourceMeta struct {
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// SearchResultMeta is one search hit recorded in a worker's trace.
type SearchResultMeta struct {
	URL     string  `json:"url"`
	Title   string  `json:"title,omitempty"`
	Score   float64 `json:"score,omitempty"`
	Snippet string  `json:"snippet,omitempty"`
}

// SearchTraceEntry summarizes one web_search call.
type SearchTraceEntry struct {
	Query       string             `json:"query"`
	Page        int                `json:"page"`
	PageSize    int                `json:"page_size"`
	HasMore     bool               `json:"has_more"`
	ResultCount int                `json:"result_count"`
	Results     []SearchResultMeta `json:"results"`
}

// ExtractTraceEntry summarizes one web_extract call.
type ExtractTraceEntry struct {
	URL        string `json:"url"`
	RawLen     int    `json:"raw_len"`
	Truncated  bool   `json:"truncated"`
	DurationMS int64  `json:"duration_ms"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// ToolCallRecord is one tool invocation in a worker's trace.
type ToolCallRecord struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Arguments  map[string]any `json:"arguments,omitempty"`
	Success    bool           `json:"success"`
	DurationMS int64          `json:"duration_ms"`
}

// Evidence is one extracted page carried by a worker result, used for
// quote-grounded claims downstream.
type Evidence struct {
	URL       string `json:"url"`
	Title     string `json:"title,omitempty"`
	Excerpt   string `json:"excerpt"`
	RawLen    int    `json:"raw_len"`
	SHA256    string `json:"sha256"`
	Truncated bool   `json:"truncated"`
}

// Trace accumulates everything a sub-agent did: tool calls, per-tool
// counters, the ordered-unique citation set, per-URL source metadata,
// and extracted pages. Owned by a single worker; never shared.
type Trace struct {
	ToolCalls       []ToolCallRecord
	WebSearchCalls  int
	WebExtractCalls int
	Citations       []string
	Sources         map[string]SourceMeta
	SearchPages     []*tools.SearchPage
	Extracts        []ExtractTraceEntry
	Extracted       map[string]*tools.Extracted
	extractedOrder  []string
	citationSeen    map[string]bool
	Iterations      int
}

// NewTrace creates an empty trace.
func NewTrace() *Trace {
	return &Trace{
		Sources:      map[string]SourceMeta{},
		Extracted:    map[string]*tools.Extracted{},
		citationSeen: map[string]bool{},
	}
}

// AddCitation appends a URL preserving first-seen order and uniqueness.
func (t *Trace) AddCitation(url string) {
	if !strings.HasPrefix(url, "http") || t.citationSeen[url] {
		return
	}
	t.citationSeen[url] = true
	t.Citations = append(t.Citations, url)
}

// AddExtracted records an extracted page preserving insertion order.
func (t *Trace) AddExtracted(ext *tools.Extracted) {
	if _, ok := t.Extracted[ext.URL]; !ok {
		t.extractedOrder = append(t.extractedOrder, ext.URL)
	}
	t.Extracted[ext.URL] = ext
}

// ExtractedInOrder returns extracted pages in insertion order.
func (t *Trace) ExtractedInOrder() []*tools.Extracted {
	out := make([]*tools.Extracted, 0, len(t.extractedOrder))
	for _, u := range t.extractedOrder {
		out = append(out, t.Extracted[u])
	}
	return out
}

// WorkerResult is the complete outcome of one worker task. Traces are
// owned by value so callers can share them with the renderer safely.
type WorkerResult struct {
	TaskID          string                `json:"task_id"`
	Output          string                `json:"output"`
	Citations       []string              `json:"citations"`
	Sources         map[string]SourceMeta `json:"sources,omitempty"`
	SearchTrace     []SearchTraceEntry    `json:"search_trace,omitempty"`
	ExtractTrace    []ExtractTraceEntry   `json:"extract_trace,omitempty"`
	Evidence        []Evidence            `json:"evidence,omitempty"`
	WebSearchCalls  int                   `json:"web_search_calls"`
	WebExtractCalls int                   `json:"web_extract_calls"`
	Iterations      int                   `json:"iterations"`
	Duration        time.Duration         `json:"duration_ns"`
	Success         bool                  `json:"success"`
	Error           string                `json:"error,omitempty"`
}

// Domain returns the registrable host of a URL, stripped of "www.".
// Empty on parse failure.
func Domain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}

// UniqueDomains counts distinct domains across the given URLs.
func UniqueDomains(urls []string) int {
	seen := map[string]bool{}
	for _, u := range urls {
		if d := Domain(u); d != "" {
			seen[d] = true
		}
	}
	return len(seen)
}
