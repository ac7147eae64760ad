package research

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/seekerhq/seeker/pkg/agent"
	"github.com/seekerhq/seeker/pkg/events"
	"github.com/seekerhq/seeker/pkg/llm"
)

// Draft-strategy stop reasons.
const (
	StopTaskBudgetExhausted = "task_budget_exhausted"
	StopNoNovelQueries      = "no_novel_queries"
	StopNoTasks             = "no_tasks"
	StopSaturated           = "saturated"
	StopMaxIterations       = "max_iterations"
)

// refinerFindingsCap is how many top-ranked findings the draft refiner
// sees each round.
const refinerFindingsCap = 10

// DraftConfig tunes the draft-centric strategy.
type DraftConfig struct {
	MaxRounds           int
	MaxIterations       int // defaults to MaxRounds, minimum 1
	MaxTasksTotal       int
	SaturationThreshold int // new-citation floor per round
	PlanMaxTasks        int
}

func (c *DraftConfig) applyDefaults() {
	if c.MaxRounds <= 0 {
		c.MaxRounds = 3
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = c.MaxRounds
	}
	if c.MaxIterations < 1 {
		c.MaxIterations = 1
	}
	if c.MaxTasksTotal <= 0 {
		c.MaxTasksTotal = 12
	}
	if c.PlanMaxTasks <= 0 {
		c.PlanMaxTasks = 4
	}
}

// DraftOrchestrator runs the draft-centric strategy: a bounded loop of
// plan, fan-out, and draft refinement, feeding the same synthesis and
// rendering pipeline at the end.
type DraftOrchestrator struct {
	base *Orchestrator
	cfg  DraftConfig
	log  *slog.Logger
}

// NewDraftOrchestrator wraps an orchestrator with the draft loop.
func NewDraftOrchestrator(base *Orchestrator, cfg DraftConfig) *DraftOrchestrator {
	cfg.applyDefaults()
	return &DraftOrchestrator{
		base: base,
		cfg:  cfg,
		log:  slog.With("component", "research.draft"),
	}
}

// Run executes the draft loop for one query.
func (d *DraftOrchestrator) Run(ctx context.Context, query string) (*Outcome, error) {
	rt, catalogSpec := DetectReportType(query)
	outcome := &Outcome{Query: query, Type: rt}

	var (
		draft      string
		results    []*agent.WorkerResult
		seenQuery  = map[string]bool{}
		seenURL    = map[string]bool{}
		seenDomain = map[string]bool{}
		tasksTotal int
		stop       string
	)

	for round := 0; round < d.cfg.MaxIterations; round++ {
		outcome.Rounds = round + 1
		promptContext := d.planContext(draft, results)
		plan, err := d.base.planner.Plan(ctx, query, promptContext, 0, d.cfg.PlanMaxTasks, round == 0 && d.base.cfg.BestEffort)
		if err != nil || len(plan.Tasks) == 0 {
			if err != nil {
				d.log.Warn("draft planning failed", "round", round, "error", err)
			}
			stop = StopNoTasks
			break
		}

		novel := novelTasks(plan.Tasks, seenQuery)
		if len(novel) == 0 {
			stop = StopNoNovelQueries
			break
		}
		if remaining := d.cfg.MaxTasksTotal - tasksTotal; len(novel) > remaining {
			novel = novel[:remaining]
		}
		plan.Tasks = prefixIDs(novel, fmt.Sprintf("d%d_", round+1))
		d.base.emitPlan(plan)
		if round > 0 {
			d.base.storeRound(round+1, plan, BuildMemo(query, rt, round, results, 0))
		} else {
			outcome.Plan = plan
			d.base.storePlan(plan)
		}

		roundResults := d.base.fanOut(ctx, query, rt, catalogSpec, plan.Tasks, unionCitations(results))
		d.base.applyInvariants(roundResults)
		results = append(results, roundResults...)
		tasksTotal += len(plan.Tasks)

		newCitations, newDomains := countNew(roundResults, seenURL, seenDomain)
		if tasksTotal >= d.cfg.MaxTasksTotal {
			stop = StopTaskBudgetExhausted
			break
		}
		if newDomains == 0 && newCitations < d.cfg.SaturationThreshold {
			stop = StopSaturated
			break
		}

		refined, err := d.refineDraft(ctx, query, draft, results)
		if err != nil {
			d.log.Warn("draft refinement failed, keeping previous draft", "round", round, "error", err)
		} else {
			draft = refined
		}
	}
	if stop == "" {
		stop = StopMaxIterations
	}
	outcome.StopReason = stop
	outcome.Results = results
	d.base.emitter.Emit(events.ProgressEvent{Stage: "done", Message: "stop reason: " + stop})

	if d.base.cfg.RequireCitations && successCount(results) == 0 {
		return nil, &RunError{
			Err:     fmt.Errorf("no worker produced results:\n%s", diagnostics(results)),
			Partial: outcome,
		}
	}
	if err := d.base.synthesize(ctx, outcome, catalogSpec); err != nil {
		return nil, err
	}
	d.base.storeReport(outcome)
	return outcome, nil
}

// planContext shows the planner the current draft so follow-up tasks
// target its gaps.
func (d *DraftOrchestrator) planContext(draft string, results []*agent.WorkerResult) string {
	if draft == "" {
		return ""
	}
	return fmt.Sprintf("Current draft report:\n%s\n\nPropose tasks that fill the draft's gaps, especially its Still Missing section. %d results collected so far.",
		draft, successCount(results))
}

const refinePrompt = `Refine the draft research report below using the new findings.

Query: %s

Current draft:
%s

Top findings:
%s

Rules:
- Never add claims the findings do not support.
- Mark uncertain information with [TBD].
- End with a "Still Missing" section listing open gaps.

Return the full updated draft as Markdown.`

// refineDraft produces a new draft from the top-ranked findings.
func (d *DraftOrchestrator) refineDraft(ctx context.Context, query, draft string, results []*agent.WorkerResult) (string, error) {
	current := draft
	if current == "" {
		current = "(no draft yet)"
	}
	resp, err := d.base.synth.client.Complete(ctx, &llm.Request{
		Model:       d.base.synth.cfg.Model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: fmt.Sprintf(refinePrompt, query, current, topFindings(results))}},
		Temperature: 0.3,
		MaxTokens:   d.base.synth.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("draft refinement call failed: %w", err)
	}
	return resp.Content, nil
}

// topFindings ranks results by citations + 2*evidence and renders the
// top ten as refiner context.
func topFindings(results []*agent.WorkerResult) string {
	ranked := make([]*agent.WorkerResult, 0, len(results))
	for _, r := range results {
		if r.Success {
			ranked = append(ranked, r)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return len(ranked[i].Citations)+2*len(ranked[i].Evidence) >
			len(ranked[j].Citations)+2*len(ranked[j].Evidence)
	})
	if len(ranked) > refinerFindingsCap {
		ranked = ranked[:refinerFindingsCap]
	}
	var b strings.Builder
	for _, r := range ranked {
		out := r.Output
		if len(out) > 1500 {
			out = out[:1500]
		}
		fmt.Fprintf(&b, "### %s (%d citations, %d evidence)\n%s\n\n",
			r.TaskID, len(r.Citations), len(r.Evidence), out)
	}
	return b.String()
}

// novelTasks filters tasks whose normalized query was already planned.
func novelTasks(tasks []PlanTask, seen map[string]bool) []PlanTask {
	var out []PlanTask
	for _, t := range tasks {
		key := normalizeWS(strings.ToLower(t.SearchQuery))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

// countNew counts citations and domains not seen in prior rounds,
// updating the seen sets.
func countNew(results []*agent.WorkerResult, seenURL, seenDomain map[string]bool) (int, int) {
	newURLs, newDomains := 0, 0
	for _, r := range results {
		if !r.Success {
			continue
		}
		for _, u := range r.Citations {
			if !seenURL[u] {
				seenURL[u] = true
				newURLs++
			}
			if d := agent.Domain(u); d != "" && !seenDomain[d] {
				seenDomain[d] = true
				newDomains++
			}
		}
	}
	return newURLs, newDomains
}
