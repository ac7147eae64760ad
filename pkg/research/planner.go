package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/seekerhq/seeker/pkg/jsonx"
	"github.com/seekerhq/seeker/pkg/llm"
)

// PlanTask is one planned research sub-task.
type PlanTask struct {
	ID           string `json:"id"`
	SearchQuery  string `json:"search_query"`
	Instructions string `json:"instructions"`
}

// Plan is a validated set of tasks plus the raw planner response for
// round dumps.
type Plan struct {
	Tasks    []PlanTask
	Raw      string
	Fallback bool
}

const initialPlanPrompt = `You are a research planner. Given the query below, propose between %d and %d web research sub-tasks.

Query: %s
%s
Return a JSON object: {"tasks": [{"id": "<short_slug>", "search_query": "<what to search>", "instructions": "<what the researcher should find and report>"}]}

Return raw JSON only.`

// Planner asks the LLM for research sub-tasks and validates the result.
type Planner struct {
	client llm.Client
	model  string
	log    *slog.Logger
}

// NewPlanner creates a planner for the given model.
func NewPlanner(client llm.Client, model string) *Planner {
	return &Planner{client: client, model: model, log: slog.With("component", "research.planner")}
}

// Plan requests and validates a plan. Plans below minTasks fail with
// PlanningError unless bestEffort is set, in which case the
// deterministic fallback plan is returned. context is extra prompt
// material (memo text, prior findings); empty for the initial plan.
func (p *Planner) Plan(ctx context.Context, query, promptContext string, minTasks, maxTasks int, bestEffort bool) (*Plan, error) {
	extra := ""
	if promptContext != "" {
		extra = "\n" + promptContext + "\n"
	}
	lo := minTasks
	if lo < 1 {
		lo = 1
	}
	resp, err := p.client.Complete(ctx, &llm.Request{
		Model:       p.model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: fmt.Sprintf(initialPlanPrompt, lo, maxTasks, query, extra)}},
		Temperature: 0.3,
		MaxTokens:   2000,
	})
	if err != nil {
		if bestEffort {
			p.log.Warn("planner call failed, using fallback plan", "error", err)
			return fallbackPlan(query), nil
		}
		return nil, fmt.Errorf("planner call failed: %w", err)
	}

	tasks, parseErr := parsePlan(resp.Content, maxTasks)
	if parseErr != nil || len(tasks) < minTasks {
		reason := fmt.Sprintf("plan yielded %d tasks, need at least %d", len(tasks), minTasks)
		if parseErr != nil {
			reason = parseErr.Error()
		}
		if bestEffort {
			p.log.Warn("invalid plan, using fallback", "reason", reason)
			return fallbackPlan(query), nil
		}
		return nil, &PlanningError{Reason: reason}
	}
	return &Plan{Tasks: tasks, Raw: resp.Content}, nil
}

// parsePlan decodes and strictly validates planner output: tasks with
// a missing query or instructions are filtered, missing IDs default to
// task_<idx>, and the list is capped at maxTasks.
func parsePlan(content string, maxTasks int) ([]PlanTask, error) {
	var payload struct {
		Tasks []PlanTask `json:"tasks"`
	}
	if err := jsonx.DecodeLoose(content, &payload); err != nil {
		return nil, fmt.Errorf("planner returned invalid JSON: %w", err)
	}

	var tasks []PlanTask
	for i, t := range payload.Tasks {
		if strings.TrimSpace(t.SearchQuery) == "" || strings.TrimSpace(t.Instructions) == "" {
			continue
		}
		if strings.TrimSpace(t.ID) == "" {
			t.ID = fmt.Sprintf("task_%d", i)
		}
		tasks = append(tasks, t)
		if maxTasks > 0 && len(tasks) >= maxTasks {
			break
		}
	}
	return tasks, nil
}

// fallbackPlan is the deterministic best-effort plan used when the
// planner cannot produce a valid one.
func fallbackPlan(query string) *Plan {
	return &Plan{
		Fallback: true,
		Tasks: []PlanTask{
			{ID: "overview", SearchQuery: query, Instructions: "Give a broad overview of the topic with cited sources."},
			{ID: "comparison", SearchQuery: query + " comparison alternatives", Instructions: "Compare the main options and alternatives with cited sources."},
			{ID: "recent", SearchQuery: query + " latest news", Instructions: "Summarize recent developments with cited sources."},
		},
	}
}

// prefixIDs namespaces plan task IDs for gap-fill and verify rounds.
func prefixIDs(tasks []PlanTask, prefix string) []PlanTask {
	out := make([]PlanTask, len(tasks))
	for i, t := range tasks {
		t.ID = prefix + t.ID
		out[i] = t
	}
	return out
}
