package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekerhq/seeker/pkg/llm"
	"github.com/seekerhq/seeker/pkg/tools"
)

func searchThenAnswer(query, answer string) []scriptStep {
	return []scriptStep{
		respond(toolCallResponse(llm.ToolCall{ID: "c1", Name: "web_search", Arguments: `{"query":"` + query + `"}`})),
		respond(textResponse(answer)),
	}
}

func TestRunner_SpawnParallelCompletesAll(t *testing.T) {
	searcher := &fakeSearcher{pages: map[string]*tools.SearchPage{
		"alpha": {Query: "alpha", Page: 1, PageSize: 8, Results: []tools.SearchResult{
			{URL: "https://a.example.com/1", Title: "A1", Snippet: "sa", Score: 0.9},
		}},
		"beta": {Query: "beta", Page: 1, PageSize: 8, Results: []tools.SearchResult{
			{URL: "https://b.example.com/1", Title: "B1", Snippet: "sb", Score: 0.8},
		}},
	}}
	extractor := &fakeExtractor{}
	registry := newWebRegistry(searcher, extractor)

	// Two tasks, each scripted separately via a shared multi-step script.
	client := &scriptedClient{script: append(searchThenAnswer("alpha", "note a"), searchThenAnswer("beta", "note b")...)}

	runner := NewRunner(client, registry, nil, SubAgentOptions{Model: "m", MaxIterations: 4})
	var order []string
	results := runner.SpawnParallel(context.Background(), []WorkerTask{
		{ID: "t1", Prompt: "research alpha"},
		{ID: "t2", Prompt: "research beta"},
	}, RunnerConfig{MaxWorkers: 1, Timeout: 5 * time.Second}, func(r *WorkerResult) {
		order = append(order, r.TaskID)
	})

	require.Len(t, results, 2)
	require.Len(t, order, 2)
	for _, r := range results {
		assert.True(t, r.Success, "task %s: %s", r.TaskID, r.Error)
		assert.Equal(t, 1, r.WebSearchCalls)
		assert.Len(t, r.Citations, 1)
		require.Len(t, r.SearchTrace, 1)
		assert.Equal(t, 1, r.SearchTrace[0].ResultCount)
	}
}

func TestRunner_OverallTimeoutSynthesizesFailures(t *testing.T) {
	registry := newWebRegistry(&fakeSearcher{}, &fakeExtractor{})
	runner := NewRunner(blockingClient{}, registry, nil, SubAgentOptions{Model: "m", MaxIterations: 2})

	results := runner.SpawnParallel(context.Background(), []WorkerTask{
		{ID: "slow", Prompt: "never finishes"},
	}, RunnerConfig{MaxWorkers: 2, Timeout: 50 * time.Millisecond}, nil)

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, "Overall timeout", results[0].Error)
}

func TestRunner_EvidenceTopUp(t *testing.T) {
	searcher := &fakeSearcher{pages: map[string]*tools.SearchPage{
		"topic": {Query: "topic", Page: 1, PageSize: 8, Results: []tools.SearchResult{
			{URL: "https://one.example.com/a", Title: "One", Snippet: "s1", Score: 0.9},
			{URL: "https://one.example.com/b", Title: "One B", Snippet: "s2", Score: 0.8},
			{URL: "https://two.example.net/c", Title: "Two", Snippet: "s3", Score: 0.7},
		}},
	}}
	extractor := &fakeExtractor{}
	registry := newWebRegistry(searcher, extractor)

	// Model searches but never calls web_extract.
	client := &scriptedClient{script: searchThenAnswer("topic", "note with no extraction")}

	runner := NewRunner(client, registry, nil, SubAgentOptions{Model: "m", MaxIterations: 4})
	results := runner.SpawnParallel(context.Background(), []WorkerTask{{ID: "t", Prompt: "p"}},
		RunnerConfig{
			MaxWorkers:         1,
			Timeout:            5 * time.Second,
			EnableDeepRead:     true,
			MaxWebExtractCalls: 2,
			ExtractMaxChars:    4000,
		}, nil)

	require.Len(t, results, 1)
	res := results[0]
	require.True(t, res.Success, res.Error)

	// One URL per domain, capped by the extract budget.
	assert.Equal(t, []string{"https://one.example.com/a", "https://two.example.net/c"}, extractor.calls)
	require.Len(t, res.Evidence, 2)
	assert.Equal(t, 2, res.WebExtractCalls)
	for _, ev := range res.Evidence {
		assert.NotEmpty(t, ev.SHA256)
		assert.NotEmpty(t, ev.Excerpt)
	}
}

func TestRunner_IterationBudgetFailsWorker(t *testing.T) {
	searcher := &fakeSearcher{pages: map[string]*tools.SearchPage{}}
	registry := newWebRegistry(searcher, &fakeExtractor{})
	client := &scriptedClient{script: []scriptStep{
		respond(toolCallResponse(llm.ToolCall{ID: "c", Name: "web_search", Arguments: `{"query":"q"}`})),
		respond(toolCallResponse(llm.ToolCall{ID: "c2", Name: "web_search", Arguments: `{"query":"q2"}`})),
	}}

	runner := NewRunner(client, registry, nil, SubAgentOptions{Model: "m", MaxIterations: 2})
	results := runner.SpawnParallel(context.Background(), []WorkerTask{{ID: "t", Prompt: "p"}},
		RunnerConfig{MaxWorkers: 1, Timeout: 5 * time.Second}, nil)

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "iteration budget")
}

func TestSubAgent_AllowlistAndCaps(t *testing.T) {
	searcher := &fakeSearcher{pages: map[string]*tools.SearchPage{}}
	registry := newWebRegistry(searcher, &fakeExtractor{})

	client := &scriptedClient{script: []scriptStep{
		respond(toolCallResponse(
			llm.ToolCall{ID: "c1", Name: "forbidden_tool", Arguments: `{}`},
			llm.ToolCall{ID: "c2", Name: "web_search", Arguments: `{"query":"a"}`},
		)),
		respond(toolCallResponse(llm.ToolCall{ID: "c3", Name: "web_search", Arguments: `{"query":"b"}`})),
		respond(textResponse("done")),
	}}

	output, trace, err := RunSubAgent(context.Background(), client, registry, nil,
		WorkerTask{ID: "t", Prompt: "p"},
		SubAgentOptions{
			Model:             "m",
			MaxIterations:     5,
			Allowlist:         []string{"web_search"},
			MaxWebSearchCalls: 1,
		})
	require.NoError(t, err)
	assert.Equal(t, "done", output)

	// The forbidden tool never reached the registry; the second search
	// hit the per-call cap and returned a synthetic failure.
	assert.Equal(t, 1, trace.WebSearchCalls)
	require.Len(t, trace.ToolCalls, 1)
	assert.Equal(t, "web_search", trace.ToolCalls[0].Name)
}
