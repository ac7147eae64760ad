package tools

import (
	"context"
)

// SearchResult is one hit returned by a Searcher.
type SearchResult struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// SearchPage is one page of web search results.
type SearchPage struct {
	Query    string         `json:"query"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
	HasMore  bool           `json:"has_more"`
	Results  []SearchResult `json:"results"`
}

// Extracted is the payload of one web_extract call.
type Extracted struct {
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
	RawContent string `json:"raw_content"`
	RawLen     int    `json:"raw_len"`
	Truncated  bool   `json:"truncated"`
}

// Searcher is the web search capability behind the web_search tool.
// Implementations must be safe for concurrent use.
type Searcher interface {
	Search(ctx context.Context, query string, page, pageSize int) (*SearchPage, error)
}

// Extractor is the page extraction capability behind web_extract.
type Extractor interface {
	Extract(ctx context.Context, url string, maxChars int) (*Extracted, error)
}

type webSearchParams struct {
	Query    string `json:"query" jsonschema:"description=The search query"`
	Page     int    `json:"page,omitempty" jsonschema:"description=1-based result page,minimum=1"`
	PageSize int    `json:"page_size,omitempty" jsonschema:"description=Results per page,maximum=20"`
}

type webExtractParams struct {
	URL      string `json:"url" jsonschema:"description=The page URL to extract"`
	MaxChars int    `json:"max_chars,omitempty" jsonschema:"description=Truncate extracted text to this many characters"`
}

const (
	defaultPageSize     = 8
	defaultExtractChars = 8000
)

// RegisterWebTools registers web_search and web_extract backed by the
// given capabilities.
func RegisterWebTools(r *Registry, searcher Searcher, extractor Extractor) {
	r.Register("web_search",
		"Search the web. Returns a page of results with url, title, snippet and relevance score.",
		MustSchema(webSearchParams{}),
		func(ctx context.Context, args map[string]any) (any, error) {
			var p webSearchParams
			if err := decodeArgs(args, &p); err != nil {
				return nil, err
			}
			if p.Page < 1 {
				p.Page = 1
			}
			if p.PageSize < 1 {
				p.PageSize = defaultPageSize
			}
			return searcher.Search(ctx, p.Query, p.Page, p.PageSize)
		})

	r.Register("web_extract",
		"Fetch a URL and return its readable text content.",
		MustSchema(webExtractParams{}),
		func(ctx context.Context, args map[string]any) (any, error) {
			var p webExtractParams
			if err := decodeArgs(args, &p); err != nil {
				return nil, err
			}
			if p.MaxChars < 1 {
				p.MaxChars = defaultExtractChars
			}
			return extractor.Extract(ctx, p.URL, p.MaxChars)
		})
}
