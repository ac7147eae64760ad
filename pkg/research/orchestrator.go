package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/seekerhq/seeker/pkg/agent"
	"github.com/seekerhq/seeker/pkg/events"
)

// Config tunes one deep-research run.
type Config struct {
	Model string

	MinTasks   int
	MaxTasks   int
	BestEffort bool

	Strict            bool
	RequireCitations  bool
	MinTotalCitations int
	MinTotalDomains   int

	EnableRound2   bool
	Round2MaxTasks int
	VerifyMaxTasks int

	EnableWorkerContinuation bool
	EnableDeepRead           bool

	MaxWorkers         int
	Timeout            time.Duration
	MaxWebSearchCalls  int
	MaxWebExtractCalls int
	ExtractMaxChars    int

	// Curated narrows the allowed-citation set for narrative synthesis.
	// Nil disables curation.
	Curated *CurateConfig

	Synthesis SynthesisConfig
}

func (c *Config) applyDefaults() {
	if c.MinTasks <= 0 {
		c.MinTasks = 3
	}
	if c.MaxTasks <= 0 {
		c.MaxTasks = 6
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 3
	}
	if c.MaxWebSearchCalls <= 0 {
		c.MaxWebSearchCalls = 4
	}
	if c.MaxWebExtractCalls <= 0 {
		c.MaxWebExtractCalls = 3
	}
	if c.Round2MaxTasks <= 0 {
		c.Round2MaxTasks = 3
	}
	if c.Synthesis.Model == "" {
		c.Synthesis.Model = c.Model
	}
}

// Outcome is the result of a deep-research run. Attached to RunError on
// fatal failures so callers can persist diagnostics.
type Outcome struct {
	Query      string                `json:"query"`
	Type       ReportType            `json:"type"`
	Plan       *Plan                 `json:"plan,omitempty"`
	Results    []*agent.WorkerResult `json:"results,omitempty"`
	Allowed    []string              `json:"allowed,omitempty"`
	Report     *Report               `json:"report,omitempty"`
	Markdown   string                `json:"markdown,omitempty"`
	StopReason string                `json:"stop_reason,omitempty"`
	Rounds     int                   `json:"rounds"`
}

// WorkerRunner is the fan-out capability, satisfied by *agent.Runner.
type WorkerRunner interface {
	SpawnParallel(ctx context.Context, tasks []agent.WorkerTask, cfg agent.RunnerConfig, onResult func(*agent.WorkerResult)) []*agent.WorkerResult
}

// Orchestrator runs the multi-round plan-and-refine strategy.
type Orchestrator struct {
	cfg     Config
	planner *Planner
	synth   *Synthesizer
	runner  WorkerRunner
	emitter *events.Emitter
	store   *SessionStore // optional
	log     *slog.Logger
}

// NewOrchestrator wires an orchestrator. store may be nil to skip
// on-disk session dumps.
func NewOrchestrator(cfg Config, planner *Planner, synth *Synthesizer, runner WorkerRunner,
	emitter *events.Emitter, store *SessionStore) *Orchestrator {
	cfg.applyDefaults()
	return &Orchestrator{
		cfg:     cfg,
		planner: planner,
		synth:   synth,
		runner:  runner,
		emitter: emitter,
		store:   store,
		log:     slog.With("component", "research.orchestrator"),
	}
}

// Run executes plan, fan-out, optional gap and verify rounds, and
// synthesis for one query.
func (o *Orchestrator) Run(ctx context.Context, query string) (*Outcome, error) {
	rt, catalogSpec := DetectReportType(query)
	outcome := &Outcome{Query: query, Type: rt}

	o.emitter.Emit(events.ProgressEvent{Stage: "plan", Message: "planning research tasks"})
	plan, err := o.planner.Plan(ctx, query, "", o.cfg.MinTasks, o.cfg.MaxTasks, o.cfg.BestEffort)
	if err != nil {
		return nil, err
	}
	outcome.Plan = plan
	o.emitPlan(plan)
	o.storePlan(plan)

	results := o.fanOut(ctx, query, rt, catalogSpec, plan.Tasks, nil)
	outcome.Rounds = 1
	if o.cfg.EnableWorkerContinuation {
		results = o.continueWorkers(ctx, query, rt, catalogSpec, results)
	}
	o.applyInvariants(results)
	if err := o.strictGates(outcome, results); err != nil {
		return nil, err
	}

	if o.cfg.EnableRound2 {
		results = o.extraRound(ctx, query, rt, catalogSpec, results, outcome, "r2_",
			o.cfg.Round2MaxTasks, "Propose follow-up research tasks that fill the gaps in the findings so far.")
		outcome.Rounds++
		if err := o.strictGates(outcome, results); err != nil {
			return nil, err
		}
	}
	if o.cfg.VerifyMaxTasks > 0 {
		results = o.extraRound(ctx, query, rt, catalogSpec, results, outcome, "v_",
			o.cfg.VerifyMaxTasks, "Propose verification tasks seeking corroboration or contradiction of the findings so far.")
		outcome.Rounds++
		if err := o.strictGates(outcome, results); err != nil {
			return nil, err
		}
	}
	outcome.Results = results

	if o.cfg.RequireCitations && successCount(results) == 0 {
		return nil, &RunError{
			Err:     fmt.Errorf("no worker produced results:\n%s", diagnostics(results)),
			Partial: outcome,
		}
	}

	if err := o.synthesize(ctx, outcome, catalogSpec); err != nil {
		return nil, err
	}
	o.storeReport(outcome)
	o.emitter.Emit(events.ProgressEvent{Stage: "done", Message: "report ready"})
	return outcome, nil
}

// fanOut dispatches plan tasks as workers and stores per-worker dumps.
func (o *Orchestrator) fanOut(ctx context.Context, query string, rt ReportType, spec *CatalogSpec,
	tasks []PlanTask, avoid []string) []*agent.WorkerResult {
	workerTasks := make([]agent.WorkerTask, 0, len(tasks))
	for _, t := range tasks {
		workerTasks = append(workerTasks, agent.WorkerTask{
			ID:     t.ID,
			Prompt: o.workerPrompt(query, rt, spec, t, avoid),
		})
	}
	cfg := agent.RunnerConfig{
		MaxWorkers:         o.cfg.MaxWorkers,
		Timeout:            o.cfg.Timeout,
		AllowWrites:        false,
		MaxWebSearchCalls:  o.cfg.MaxWebSearchCalls,
		MaxWebExtractCalls: o.cfg.MaxWebExtractCalls,
		ExtractMaxChars:    o.cfg.ExtractMaxChars,
		EnableDeepRead:     o.cfg.EnableDeepRead,
	}
	return o.runner.SpawnParallel(ctx, workerTasks, cfg, func(res *agent.WorkerResult) {
		o.storeWorker(res)
	})
}

// workerPrompt embeds search budget, pagination bounds, deep-read
// instructions, and the closing directive for the report type.
func (o *Orchestrator) workerPrompt(query string, rt ReportType, spec *CatalogSpec, t PlanTask, avoid []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research task for the query: %s\n\n", query)
	fmt.Fprintf(&b, "Search for: %s\n%s\n\n", t.SearchQuery, t.Instructions)
	fmt.Fprintf(&b, "Run up to %d web_search calls; request further pages only while has_more is true.\n",
		o.cfg.MaxWebSearchCalls)
	if o.cfg.EnableDeepRead {
		fmt.Fprintf(&b, "Deep-read the most promising results: extract up to %d pages with web_extract",
			o.cfg.MaxWebExtractCalls)
		if o.cfg.ExtractMaxChars > 0 {
			fmt.Fprintf(&b, " at %d chars each", o.cfg.ExtractMaxChars)
		}
		b.WriteString(".\n")
	}
	if len(avoid) > 0 {
		b.WriteString("Already-covered URLs, do not reuse:\n")
		for _, u := range avoid {
			b.WriteString("- " + u + "\n")
		}
	}
	if rt == ReportCatalog && spec != nil {
		fmt.Fprintf(&b, "\nFinish with a strict JSON object {\"candidates\": [...]} where each candidate has the fields %s, citing source URLs.\n",
			strings.Join(spec.RequiredFields, ", "))
	} else {
		b.WriteString("\nFinish with a Markdown note summarizing what you found, citing the URLs you used.\n")
	}
	return b.String()
}

// continueWorkers re-dispatches workers that still have search budget,
// merging follow-up results into the originals.
func (o *Orchestrator) continueWorkers(ctx context.Context, query string, rt ReportType,
	spec *CatalogSpec, results []*agent.WorkerResult) []*agent.WorkerResult {
	byID := map[string]*agent.WorkerResult{}
	var followups []PlanTask
	var avoid []string
	for _, r := range results {
		byID[r.TaskID] = r
		avoid = append(avoid, r.Citations...)
	}
	for _, r := range results {
		if !r.Success {
			continue
		}
		remaining := o.cfg.MaxWebSearchCalls - r.WebSearchCalls
		if remaining <= 0 {
			continue
		}
		followups = append(followups, PlanTask{
			ID:           r.TaskID,
			SearchQuery:  query,
			Instructions: fmt.Sprintf("Continue the earlier research with %d more searches, covering sources not yet used.", remaining),
		})
	}
	if len(followups) == 0 {
		return results
	}

	o.log.Info("dispatching worker continuations", "count", len(followups))
	for _, extra := range o.fanOut(ctx, query, rt, spec, followups, avoid) {
		if prior, ok := byID[extra.TaskID]; ok && extra.Success {
			mergeResults(prior, extra)
		}
	}
	return results
}

// mergeResults unions a continuation result into the original.
func mergeResults(dst, src *agent.WorkerResult) {
	seen := toSet(dst.Citations)
	for _, u := range src.Citations {
		if !seen[u] {
			seen[u] = true
			dst.Citations = append(dst.Citations, u)
		}
	}
	if dst.Sources == nil {
		dst.Sources = map[string]agent.SourceMeta{}
	}
	for u, meta := range src.Sources {
		dst.Sources[u] = meta
	}
	dst.SearchTrace = append(dst.SearchTrace, src.SearchTrace...)
	dst.ExtractTrace = append(dst.ExtractTrace, src.ExtractTrace...)
	evSeen := map[string]bool{}
	for _, ev := range dst.Evidence {
		evSeen[ev.URL] = true
	}
	for _, ev := range src.Evidence {
		if !evSeen[ev.URL] {
			dst.Evidence = append(dst.Evidence, ev)
		}
	}
	dst.WebSearchCalls += src.WebSearchCalls
	dst.WebExtractCalls += src.WebExtractCalls
	dst.Iterations += src.Iterations
	if src.Output != "" {
		dst.Output += "\n\n" + src.Output
	}
}

// applyInvariants downgrades successful results with no citations, or
// no evidence when deep-read was requested, to failures.
func (o *Orchestrator) applyInvariants(results []*agent.WorkerResult) {
	for _, r := range results {
		if !r.Success {
			continue
		}
		if len(r.Citations) == 0 {
			r.Success = false
			r.Error = "worker returned no citations"
			continue
		}
		if o.cfg.EnableDeepRead && len(r.Evidence) == 0 {
			r.Success = false
			r.Error = "worker returned no extracted evidence"
		}
	}
}

// strictGates enforces the strict-mode failure conditions.
func (o *Orchestrator) strictGates(outcome *Outcome, results []*agent.WorkerResult) error {
	if !o.cfg.Strict || o.cfg.BestEffort {
		return nil
	}
	outcome.Results = results
	for _, r := range results {
		if !r.Success {
			return &RunError{
				Err:     fmt.Errorf("worker %s failed in strict mode: %s\n%s", r.TaskID, r.Error, diagnostics(results)),
				Partial: outcome,
			}
		}
	}
	citations := unionCitations(results)
	if len(citations) < o.cfg.MinTotalCitations {
		return &RunError{
			Err:     fmt.Errorf("%d total citations below minimum %d\n%s", len(citations), o.cfg.MinTotalCitations, diagnostics(results)),
			Partial: outcome,
		}
	}
	if agent.UniqueDomains(citations) < o.cfg.MinTotalDomains {
		return &RunError{
			Err:     fmt.Errorf("%d unique domains below minimum %d\n%s", agent.UniqueDomains(citations), o.cfg.MinTotalDomains, diagnostics(results)),
			Partial: outcome,
		}
	}
	return nil
}

// extraRound plans and runs a gap-fill or verify round, merging new
// results into the existing list.
func (o *Orchestrator) extraRound(ctx context.Context, query string, rt ReportType, spec *CatalogSpec,
	results []*agent.WorkerResult, outcome *Outcome, prefix string, maxTasks int, directive string) []*agent.WorkerResult {
	memo := BuildMemo(query, rt, outcome.Rounds, results, 0)
	if rt == ReportCatalog && spec != nil {
		memo.TargetItems = spec.TargetItems
		memo.RequiredFields = spec.RequiredFields
	}
	promptContext := directive + "\n\n" + memo.PromptContext()

	plan, err := o.planner.Plan(ctx, query, promptContext, 0, maxTasks, false)
	if err != nil || len(plan.Tasks) == 0 {
		if err != nil {
			o.log.Warn("follow-up planning failed, skipping round", "prefix", prefix, "error", err)
		}
		return results
	}
	plan.Tasks = prefixIDs(plan.Tasks, prefix)
	o.emitPlan(plan)
	o.storeRound(outcome.Rounds+1, plan, memo)

	extra := o.fanOut(ctx, query, rt, spec, plan.Tasks, unionCitations(results))
	o.applyInvariants(extra)
	return append(results, extra...)
}

// synthesize selects the allowed set, runs the synthesizer, and renders
// the report. Synthesis failures wrap the partial outcome.
func (o *Orchestrator) synthesize(ctx context.Context, outcome *Outcome, spec *CatalogSpec) error {
	o.emitter.Emit(events.ProgressEvent{Stage: "synthesize", Message: "synthesizing report"})

	allowed := unionCitations(outcome.Results)
	if outcome.Type == ReportNarrative && o.cfg.Curated != nil {
		if curated := CurateSources(outcome.Results, *o.cfg.Curated); len(curated) > 0 {
			allowed = curated
		}
	}
	outcome.Allowed = allowed

	in := SynthesisInput{
		Query:   outcome.Query,
		Notes:   workerNotes(outcome.Results),
		Allowed: allowed,
		Excerpt: evidenceExcerpts(outcome.Results),
	}

	var report *Report
	var err error
	if outcome.Type == ReportCatalog {
		report, err = o.synth.Catalog(ctx, in, spec)
	} else {
		report, err = o.synth.Narrative(ctx, in)
	}
	if err != nil {
		return &RunError{Err: err, Partial: outcome}
	}
	outcome.Report = report
	outcome.Markdown = Render(report, unionSources(outcome.Results))
	return nil
}

func (o *Orchestrator) emitPlan(plan *Plan) {
	ev := events.ResearchPlanEvent{}
	for _, t := range plan.Tasks {
		ev.Tasks = append(ev.Tasks, events.PlannedTask{
			ID:           t.ID,
			SearchQuery:  t.SearchQuery,
			Instructions: t.Instructions,
		})
	}
	o.emitter.Emit(ev)
}

func (o *Orchestrator) storePlan(plan *Plan) {
	if o.store == nil {
		return
	}
	if err := o.store.SavePlan(plan); err != nil {
		o.log.Warn("failed to persist plan", "error", err)
	}
}

func (o *Orchestrator) storeWorker(res *agent.WorkerResult) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveWorker(res); err != nil {
		o.log.Warn("failed to persist worker result", "task_id", res.TaskID, "error", err)
	}
}

func (o *Orchestrator) storeRound(round int, plan *Plan, memo *Memo) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveRound(round, plan, memo); err != nil {
		o.log.Warn("failed to persist round", "round", round, "error", err)
	}
}

func (o *Orchestrator) storeReport(outcome *Outcome) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveReport(outcome); err != nil {
		o.log.Warn("failed to persist report", "error", err)
	}
}

func unionCitations(results []*agent.WorkerResult) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range results {
		if !r.Success {
			continue
		}
		for _, u := range r.Citations {
			if !seen[u] {
				seen[u] = true
				out = append(out, u)
			}
		}
		for _, ev := range r.Evidence {
			if !seen[ev.URL] {
				seen[ev.URL] = true
				out = append(out, ev.URL)
			}
		}
	}
	return out
}

func unionSources(results []*agent.WorkerResult) map[string]agent.SourceMeta {
	out := map[string]agent.SourceMeta{}
	for _, r := range results {
		for u, meta := range r.Sources {
			out[u] = meta
		}
	}
	return out
}

func evidenceExcerpts(results []*agent.WorkerResult) map[string]string {
	out := map[string]string{}
	for _, r := range results {
		for _, ev := range r.Evidence {
			out[ev.URL] = ev.Excerpt
		}
	}
	return out
}

// workerNotes concatenates successful worker outputs, bounded per
// worker so the synthesis prompt stays manageable.
func workerNotes(results []*agent.WorkerResult) string {
	const perWorkerCap = 4000
	var b strings.Builder
	for _, r := range results {
		if !r.Success || r.Output == "" {
			continue
		}
		out := r.Output
		if len(out) > perWorkerCap {
			out = out[:perWorkerCap]
		}
		fmt.Fprintf(&b, "### %s\n%s\n\n", r.TaskID, out)
	}
	return b.String()
}

func successCount(results []*agent.WorkerResult) int {
	n := 0
	for _, r := range results {
		if r.Success {
			n++
		}
	}
	return n
}
