package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/seekerhq/seeker/pkg/events"
	"github.com/seekerhq/seeker/pkg/llm"
	"github.com/seekerhq/seeker/pkg/tools"
)

// ReadOnlyTools is the toolset workers get when writes are not allowed.
var ReadOnlyTools = []string{"read", "grep", "list", "web_search", "web_extract"}

const evidenceExcerptChars = 1500

// RunnerConfig bounds one parallel fan-out.
type RunnerConfig struct {
	MaxWorkers         int
	Timeout            time.Duration
	AllowWrites        bool
	MaxWebSearchCalls  int
	MaxWebExtractCalls int
	ExtractMaxChars    int
	EnableDeepRead     bool
}

// Runner fans worker tasks out onto a bounded pool. All worker panics
// and errors become failure results; the caller always gets exactly one
// result per task.
type Runner struct {
	client   llm.Client
	registry *tools.Registry
	emitter  *events.Emitter
	opts     SubAgentOptions
	log      *slog.Logger
}

// NewRunner creates a runner. opts carries the per-worker LLM settings
// and prompt bodies; per-task caps in RunnerConfig override its caps.
func NewRunner(client llm.Client, registry *tools.Registry, emitter *events.Emitter, opts SubAgentOptions) *Runner {
	return &Runner{
		client:   client,
		registry: registry,
		emitter:  emitter,
		opts:     opts,
		log:      slog.With("component", "agent.runner"),
	}
}

// SpawnParallel dispatches tasks onto at most cfg.MaxWorkers concurrent
// workers and blocks until all complete or the overall timeout fires.
// onResult (optional) is invoked exactly once per completed task, in
// completion order. Tasks still in flight at the timeout are abandoned
// and synthesized into failure results.
func (r *Runner) SpawnParallel(ctx context.Context, tasks []WorkerTask, cfg RunnerConfig, onResult func(*WorkerResult)) []*WorkerResult {
	if len(tasks) == 0 {
		return nil
	}
	maxWorkers := cfg.MaxWorkers
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if cfg.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	sem := make(chan struct{}, maxWorkers)
	resultsCh := make(chan *WorkerResult, len(tasks))

	for _, task := range tasks {
		go func(task WorkerTask) {
			select {
			case sem <- struct{}{}:
			case <-runCtx.Done():
				return
			}
			defer func() { <-sem }()

			res := r.runWorker(runCtx, task, cfg)
			select {
			case resultsCh <- res:
			case <-runCtx.Done():
			}
		}(task)
	}

	completed := map[string]bool{}
	results := make([]*WorkerResult, 0, len(tasks))

	deliver := func(res *WorkerResult) {
		results = append(results, res)
		completed[res.TaskID] = true
		r.emitter.Emit(events.WorkerCompletedEvent{
			TaskID:          res.TaskID,
			Success:         res.Success,
			WebSearchCalls:  res.WebSearchCalls,
			WebExtractCalls: res.WebExtractCalls,
			Citations:       len(res.Citations),
			Domains:         UniqueDomains(res.Citations),
			Evidence:        len(res.Evidence),
			DurationMS:      res.Duration.Milliseconds(),
			Error:           res.Error,
		})
		if onResult != nil {
			onResult(res)
		}
	}

collect:
	for len(results) < len(tasks) {
		select {
		case res := <-resultsCh:
			deliver(res)
		case <-runCtx.Done():
			break collect
		}
	}

	// Synthesize failures for tasks abandoned by the timeout.
	for _, task := range tasks {
		if !completed[task.ID] {
			r.log.Warn("worker abandoned by overall timeout", "task_id", task.ID)
			deliver(&WorkerResult{TaskID: task.ID, Success: false, Error: "Overall timeout"})
		}
	}
	return results
}

// runWorker executes one sub-agent and summarizes its trace. Panics and
// errors become failure results; nothing re-raises.
func (r *Runner) runWorker(ctx context.Context, task WorkerTask, cfg RunnerConfig) (res *WorkerResult) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res = &WorkerResult{
				TaskID:   task.ID,
				Success:  false,
				Error:    fmt.Sprintf("worker panicked: %v", p),
				Duration: time.Since(start),
			}
		}
	}()

	opts := r.opts
	if cfg.MaxWebSearchCalls > 0 {
		opts.MaxWebSearchCalls = cfg.MaxWebSearchCalls
	}
	if cfg.MaxWebExtractCalls > 0 {
		opts.MaxWebExtractCalls = cfg.MaxWebExtractCalls
	}
	if cfg.AllowWrites {
		opts.Allowlist = allToolNames(r.registry)
	} else {
		opts.Allowlist = ReadOnlyTools
	}

	output, trace, err := RunSubAgent(ctx, r.client, r.registry, r.emitter, task, opts)
	if err != nil {
		return &WorkerResult{
			TaskID:   task.ID,
			Success:  false,
			Error:    err.Error(),
			Duration: time.Since(start),
		}
	}

	// Deterministic evidence top-up: when the model never deep-read but
	// budget remained, extract a diverse selection of trace URLs so a
	// successful deep-read worker always carries evidence.
	if cfg.EnableDeepRead && trace.WebExtractCalls == 0 {
		budget := opts.MaxWebExtractCalls
		if task.MaxWebExtractCalls > 0 {
			budget = task.MaxWebExtractCalls
		}
		if budget > 0 {
			r.topUpEvidence(ctx, trace, budget, cfg.ExtractMaxChars)
		}
	}

	res = summarize(task, output, trace)
	res.Success = output != MaxIterationsSentinel
	if !res.Success {
		res.Error = "iteration budget exhausted"
	}
	res.Duration = time.Since(start)
	return res
}

// topUpEvidence selects up to budget URLs from the trace, preferring
// URLs with search metadata, one per domain, and extracts them directly
// through the registry.
func (r *Runner) topUpEvidence(ctx context.Context, trace *Trace, budget, maxChars int) {
	ordered := make([]string, 0, len(trace.Citations))
	var bare []string
	for _, u := range trace.Citations {
		if _, ok := trace.Sources[u]; ok {
			ordered = append(ordered, u)
		} else {
			bare = append(bare, u)
		}
	}
	ordered = append(ordered, bare...)

	seenDomain := map[string]bool{}
	var selected []string
	for _, u := range ordered {
		d := Domain(u)
		if d == "" || seenDomain[d] {
			continue
		}
		seenDomain[d] = true
		selected = append(selected, u)
		if len(selected) >= budget {
			break
		}
	}

	for _, u := range selected {
		args := map[string]any{"url": u}
		if maxChars > 0 {
			args["max_chars"] = maxChars
		}
		start := time.Now()
		result := r.registry.Execute(ctx, "web_extract", args)
		entry := ExtractTraceEntry{
			URL:        u,
			DurationMS: time.Since(start).Milliseconds(),
			Success:    result.Success,
			Error:      result.Error,
		}
		if ext, ok := result.Result.(*tools.Extracted); ok && result.Success {
			entry.RawLen = ext.RawLen
			entry.Truncated = ext.Truncated
			trace.AddExtracted(ext)
		}
		trace.Extracts = append(trace.Extracts, entry)
		trace.WebExtractCalls++
	}
}

// summarize converts a trace into the value-typed WorkerResult.
func summarize(task WorkerTask, output string, trace *Trace) *WorkerResult {
	res := &WorkerResult{
		TaskID:          task.ID,
		Output:          output,
		Citations:       append([]string(nil), trace.Citations...),
		Sources:         map[string]SourceMeta{},
		ExtractTrace:    append([]ExtractTraceEntry(nil), trace.Extracts...),
		WebSearchCalls:  trace.WebSearchCalls,
		WebExtractCalls: trace.WebExtractCalls,
		Iterations:      trace.Iterations,
	}
	for u, meta := range trace.Sources {
		res.Sources[u] = meta
	}
	for _, page := range trace.SearchPages {
		entry := SearchTraceEntry{
			Query:       page.Query,
			Page:        page.Page,
			PageSize:    page.PageSize,
			HasMore:     page.HasMore,
			ResultCount: len(page.Results),
		}
		for _, hit := range page.Results {
			entry.Results = append(entry.Results, SearchResultMeta{
				URL:     hit.URL,
				Title:   hit.Title,
				Score:   hit.Score,
				Snippet: hit.Snippet,
			})
		}
		res.SearchTrace = append(res.SearchTrace, entry)
	}
	for _, ext := range trace.ExtractedInOrder() {
		excerpt := ext.RawContent
		if len(excerpt) > evidenceExcerptChars {
			excerpt = excerpt[:evidenceExcerptChars]
		}
		sum := sha256.Sum256([]byte(ext.RawContent))
		res.Evidence = append(res.Evidence, Evidence{
			URL:       ext.URL,
			Title:     ext.Title,
			Excerpt:   excerpt,
			RawLen:    ext.RawLen,
			SHA256:    hex.EncodeToString(sum[:]),
			Truncated: ext.Truncated,
		})
	}
	return res
}

func allToolNames(registry *tools.Registry) []string {
	defs := registry.Schemas()
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	return names
}
