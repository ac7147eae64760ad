package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/seekerhq/seeker/pkg/llm"
	"github.com/seekerhq/seeker/pkg/tools"
)

// scriptedClient replays a fixed sequence of responses or errors.
// Stream converts the scripted response into chunks so streaming and
// non-streaming paths can share scripts.
type scriptedClient struct {
	mu       sync.Mutex
	script   []scriptStep
	requests []*llm.Request
}

type scriptStep struct {
	resp *llm.Response
	err  error
}

func respond(resp *llm.Response) scriptStep { return scriptStep{resp: resp} }
func fail(err error) scriptStep             { return scriptStep{err: err} }

func textResponse(s string) *llm.Response {
	return &llm.Response{Content: s, Usage: llm.Usage{TotalTokens: 10}}
}

func toolCallResponse(calls ...llm.ToolCall) *llm.Response {
	return &llm.Response{ToolCalls: calls, Usage: llm.Usage{TotalTokens: 5}}
}

func (c *scriptedClient) next(req *llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if len(c.script) == 0 {
		return nil, fmt.Errorf("scripted client exhausted after %d calls", len(c.requests))
	}
	step := c.script[0]
	c.script = c.script[1:]
	if step.err != nil {
		return nil, step.err
	}
	return step.resp, nil
}

func (c *scriptedClient) Complete(_ context.Context, req *llm.Request) (*llm.Response, error) {
	return c.next(req)
}

func (c *scriptedClient) Stream(_ context.Context, req *llm.Request) (<-chan llm.Chunk, error) {
	resp, err := c.next(req)
	if err != nil {
		return nil, err
	}
	ch := make(chan llm.Chunk, len(resp.ToolCalls)+2)
	if resp.Content != "" {
		ch <- llm.TextChunk{Content: resp.Content}
	}
	for i, tc := range resp.ToolCalls {
		ch <- llm.ToolCallChunk{Index: i, ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments}
	}
	ch <- llm.UsageChunk{TotalTokens: resp.Usage.TotalTokens}
	close(ch)
	return ch, nil
}

// blockingClient outlives any reasonable fan-out timeout, forcing the
// runner to abandon the worker.
type blockingClient struct{}

func (blockingClient) Complete(_ context.Context, _ *llm.Request) (*llm.Response, error) {
	time.Sleep(10 * time.Second)
	return nil, errors.New("blocked too long")
}

func (blockingClient) Stream(_ context.Context, _ *llm.Request) (<-chan llm.Chunk, error) {
	time.Sleep(10 * time.Second)
	return nil, errors.New("blocked too long")
}

// fakeSearcher returns one canned page per query.
type fakeSearcher struct {
	pages map[string]*tools.SearchPage
}

func (f *fakeSearcher) Search(_ context.Context, query string, page, pageSize int) (*tools.SearchPage, error) {
	if p, ok := f.pages[query]; ok {
		return p, nil
	}
	return &tools.SearchPage{Query: query, Page: page, PageSize: pageSize}, nil
}

// fakeExtractor returns deterministic content per URL.
type fakeExtractor struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeExtractor) Extract(_ context.Context, url string, maxChars int) (*tools.Extracted, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	content := "content of " + url
	return &tools.Extracted{URL: url, Title: "page " + url, RawContent: content, RawLen: len(content)}, nil
}

func newWebRegistry(searcher tools.Searcher, extractor tools.Extractor) *tools.Registry {
	r := tools.NewRegistry()
	tools.RegisterWebTools(r, searcher, extractor)
	return r
}
