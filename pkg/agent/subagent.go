package agent

import (
	"context"
	"strings"
	"time"

	"github.com/seekerhq/seeker/pkg/events"
	"github.com/seekerhq/seeker/pkg/llm"
	"github.com/seekerhq/seeker/pkg/tools"
)

// MaxIterationsSentinel is returned as the worker output when the
// iteration budget runs out before a final text response, so callers
// can fail the worker gracefully instead of treating it as empty.
const MaxIterationsSentinel = "Maximum iterations reached without a final response."

// SubAgentOptions configures a single nested agent run.
type SubAgentOptions struct {
	Model              string
	Temperature        float64
	MaxTokens          int
	Stream             bool
	MaxIterations      int
	Allowlist          []string
	MaxWebSearchCalls  int
	MaxWebExtractCalls int

	// ExploreGuidance is the shared system-prompt body; AgentPrompts
	// adds an optional named-agent body selected by WorkerTask.Agent.
	ExploreGuidance string
	AgentPrompts    map[string]string
}

// RunSubAgent runs one nested tool-calling loop for a task, enforcing
// the tool allowlist and per-call caps, and collecting a trace.
func RunSubAgent(
	ctx context.Context,
	client llm.Client,
	registry *tools.Registry,
	emitter *events.Emitter,
	task WorkerTask,
	opts SubAgentOptions,
) (string, *Trace, error) {
	trace := NewTrace()

	allowed := map[string]bool{}
	for _, name := range opts.Allowlist {
		allowed[name] = true
	}

	maxSearch := opts.MaxWebSearchCalls
	if task.MaxWebSearchCalls > 0 {
		maxSearch = task.MaxWebSearchCalls
	}
	maxExtract := opts.MaxWebExtractCalls
	if task.MaxWebExtractCalls > 0 {
		maxExtract = task.MaxWebExtractCalls
	}
	maxIter := opts.MaxIterations
	if task.MaxIterations > 0 {
		maxIter = task.MaxIterations
	}

	// Filter the schema list by allowlist before the LLM sees it.
	var schemas []llm.ToolDefinition
	for _, def := range registry.Schemas() {
		if allowed[def.Name] {
			schemas = append(schemas, def)
		}
	}

	execute := func(ctx context.Context, tc llm.ToolCall) tools.Result {
		// The allowlist gate runs before the implementation does.
		if !allowed[tc.Name] {
			return tools.Failure("tool not allowed: %s", tc.Name)
		}
		if tc.Name == "web_search" && maxSearch > 0 && trace.WebSearchCalls >= maxSearch {
			return tools.Failure("max web_search calls (%d) reached", maxSearch)
		}
		if tc.Name == "web_extract" && maxExtract > 0 && trace.WebExtractCalls >= maxExtract {
			return tools.Failure("max web_extract calls (%d) reached", maxExtract)
		}

		args := DecodeArguments(tc.Arguments)
		start := time.Now()
		res := registry.Execute(ctx, tc.Name, args)
		durationMS := time.Since(start).Milliseconds()

		trace.ToolCalls = append(trace.ToolCalls, ToolCallRecord{
			ID:         tc.ID,
			Name:       tc.Name,
			Arguments:  args,
			Success:    res.Success,
			DurationMS: durationMS,
		})

		switch tc.Name {
		case "web_search":
			trace.WebSearchCalls++
			if res.Success {
				harvestSearch(trace, res.Result)
			}
		case "web_extract":
			trace.WebExtractCalls++
			entry := ExtractTraceEntry{DurationMS: durationMS, Success: res.Success, Error: res.Error}
			if ext, ok := res.Result.(*tools.Extracted); ok && res.Success {
				entry.URL = ext.URL
				entry.RawLen = ext.RawLen
				entry.Truncated = ext.Truncated
				trace.AddExtracted(ext)
				trace.AddCitation(ext.URL)
			} else if u, ok := args["url"].(string); ok {
				entry.URL = u
			}
			trace.Extracts = append(trace.Extracts, entry)
		}
		return res
	}

	loop := NewLoop(client, schemas, execute, emitter, LoopConfig{
		Model:         opts.Model,
		SystemPrompt:  composeSystemPrompt(opts, task),
		MaxIterations: maxIter,
		Temperature:   opts.Temperature,
		MaxTokens:     opts.MaxTokens,
		Stream:        opts.Stream,
		UseTools:      true,
	})

	result, err := loop.Run(ctx, []llm.Message{{Role: llm.RoleUser, Content: task.Prompt}})
	if err != nil {
		return "", trace, err
	}
	trace.Iterations = result.Iterations

	output := result.FinalResponse
	if output == "" {
		output = MaxIterationsSentinel
	}
	return output, trace, nil
}

func composeSystemPrompt(opts SubAgentOptions, task WorkerTask) string {
	parts := make([]string, 0, 2)
	if opts.ExploreGuidance != "" {
		parts = append(parts, opts.ExploreGuidance)
	}
	if body, ok := opts.AgentPrompts[task.Agent]; ok && body != "" {
		parts = append(parts, body)
	}
	return strings.Join(parts, "\n\n")
}

// harvestSearch pulls citations and source metadata out of a successful
// web_search payload.
func harvestSearch(trace *Trace, payload any) {
	page, ok := payload.(*tools.SearchPage)
	if !ok {
		return
	}
	trace.SearchPages = append(trace.SearchPages, page)
	for _, r := range page.Results {
		trace.AddCitation(r.URL)
		if _, exists := trace.Sources[r.URL]; !exists {
			trace.Sources[r.URL] = SourceMeta{Title: r.Title, Snippet: r.Snippet}
		}
	}
}
