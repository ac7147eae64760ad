package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/seekerhq/seeker/pkg/ratelimit"
)

const defaultTavilyBaseURL = "https://api.tavily.com"

// TavilyClient implements Searcher and Extractor against a
// Tavily-compatible search API. Requests are gated by a shared rate
// limiter so parallel workers do not exceed the API budget.
type TavilyClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *ratelimit.Limiter
}

// NewTavilyClient creates a client. baseURL is optional.
func NewTavilyClient(apiKey, baseURL string, limiter *ratelimit.Limiter) *TavilyClient {
	if baseURL == "" {
		baseURL = defaultTavilyBaseURL
	}
	return &TavilyClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: limiter,
	}
}

type tavilySearchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
	Page       int    `json:"page,omitempty"`
}

type tavilySearchResponse struct {
	Results []struct {
		URL     string  `json:"url"`
		Title   string  `json:"title"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search implements Searcher.
func (c *TavilyClient) Search(ctx context.Context, query string, page, pageSize int) (*SearchPage, error) {
	var resp tavilySearchResponse
	err := c.post(ctx, "/search", tavilySearchRequest{Query: query, MaxResults: pageSize, Page: page}, &resp)
	if err != nil {
		return nil, err
	}
	out := &SearchPage{
		Query:    query,
		Page:     page,
		PageSize: pageSize,
		HasMore:  len(resp.Results) >= pageSize,
	}
	for _, r := range resp.Results {
		out.Results = append(out.Results, SearchResult{
			URL:     r.URL,
			Title:   r.Title,
			Snippet: r.Content,
			Score:   r.Score,
		})
	}
	return out, nil
}

type tavilyExtractRequest struct {
	URLs []string `json:"urls"`
}

type tavilyExtractResponse struct {
	Results []struct {
		URL        string `json:"url"`
		RawContent string `json:"raw_content"`
	} `json:"results"`
}

// Extract implements Extractor.
func (c *TavilyClient) Extract(ctx context.Context, url string, maxChars int) (*Extracted, error) {
	var resp tavilyExtractResponse
	if err := c.post(ctx, "/extract", tavilyExtractRequest{URLs: []string{url}}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("no content extracted for %s", url)
	}
	raw := resp.Results[0].RawContent
	ext := &Extracted{URL: url, RawLen: len(raw)}
	if len(raw) > maxChars {
		raw = raw[:maxChars]
		ext.Truncated = true
	}
	ext.RawContent = raw
	return ext, nil
}

func (c *TavilyClient) post(ctx context.Context, path string, body, into any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("search api request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if res.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("search api rate limit exceeded: %s", string(data))
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("search api returned %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
