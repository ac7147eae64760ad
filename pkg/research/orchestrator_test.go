package research

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekerhq/seeker/pkg/agent"
	"github.com/seekerhq/seeker/pkg/events"
)

func newOrchestrator(cfg Config, client *scriptClient, runner WorkerRunner, cb events.Callback) *Orchestrator {
	return NewOrchestrator(cfg,
		NewPlanner(client, "m"),
		NewSynthesizer(client, cfg.Synthesis),
		runner,
		events.NewEmitter(cb),
		nil)
}

func TestOrchestrator_BestEffortFallbackProducesReport(t *testing.T) {
	report := `{"title":"REPORT","summary_bullets":["a"],"findings":[` +
		`{"claim":"c","citations":["https://example.com/overview"]}],"open_questions":[]}`
	client := &scriptClient{responses: []string{"not json", report}}
	runner := &fakeRunner{fn: citingWorker}

	var kinds []events.Kind
	orch := newOrchestrator(Config{Model: "m", BestEffort: true, Synthesis: SynthesisConfig{Model: "m"}},
		client, runner, func(ev events.Event) { kinds = append(kinds, ev.Kind()) })

	outcome, err := orch.Run(context.Background(), "query")
	require.NoError(t, err)

	// The planner's non-JSON response triggered the fallback plan.
	require.NotNil(t, outcome.Plan)
	assert.True(t, outcome.Plan.Fallback)
	var ids []string
	for _, task := range runner.tasks {
		ids = append(ids, task.ID)
	}
	assert.Equal(t, []string{"overview", "comparison", "recent"}, ids)

	assert.True(t, strings.HasPrefix(outcome.Markdown, "# REPORT"))
	assert.Contains(t, outcome.Markdown, "## Sources")
	assert.Contains(t, outcome.Markdown, "[1]")
	assert.Contains(t, outcome.Markdown, "Why:")

	assert.Contains(t, kinds, events.KindResearchPlan)
	assert.Contains(t, kinds, events.KindProgress)
}

func TestOrchestrator_FencedPlanProceeds(t *testing.T) {
	plan := "```json\n{\"tasks\":[" +
		`{"id":"a","search_query":"q1","instructions":"i1"},` +
		`{"id":"b","search_query":"q2","instructions":"i2"},` +
		`{"id":"c","search_query":"q3","instructions":"i3"}]}` + "\n```"
	report := `{"title":"T","summary_bullets":[],"findings":[` +
		`{"claim":"c","citations":["https://example.com/a"]}]}`
	client := &scriptClient{responses: []string{plan, report}}
	runner := &fakeRunner{fn: citingWorker}

	orch := newOrchestrator(Config{Model: "m"}, client, runner, nil)
	outcome, err := orch.Run(context.Background(), "query")
	require.NoError(t, err)
	require.NotNil(t, outcome.Plan)
	assert.False(t, outcome.Plan.Fallback)
	assert.Equal(t, "a", outcome.Plan.Tasks[0].ID)
	assert.NotNil(t, outcome.Report)
}

func TestOrchestrator_InvariantsDowngradeCitationlessWorkers(t *testing.T) {
	plan := `{"tasks":[
		{"id":"a","search_query":"q1","instructions":"i"},
		{"id":"b","search_query":"q2","instructions":"i"},
		{"id":"c","search_query":"q3","instructions":"i"}]}`
	report := `{"title":"T","summary_bullets":[],"findings":[` +
		`{"claim":"c","citations":["https://example.com/a"]}]}`
	client := &scriptClient{responses: []string{plan, report}}
	runner := &fakeRunner{fn: func(task agent.WorkerTask) *agent.WorkerResult {
		res := citingWorker(task)
		if task.ID == "b" {
			res.Citations = nil
		}
		return res
	}}

	orch := newOrchestrator(Config{Model: "m"}, client, runner, nil)
	outcome, err := orch.Run(context.Background(), "query")
	require.NoError(t, err)

	var downgraded *agent.WorkerResult
	for _, r := range outcome.Results {
		if r.TaskID == "b" {
			downgraded = r
		}
	}
	require.NotNil(t, downgraded)
	assert.False(t, downgraded.Success)
	assert.Contains(t, downgraded.Error, "no citations")
	assert.NotContains(t, outcome.Allowed, "https://example.com/b")
}

func TestOrchestrator_StrictGateFailsWithPartial(t *testing.T) {
	plan := `{"tasks":[
		{"id":"a","search_query":"q1","instructions":"i"},
		{"id":"b","search_query":"q2","instructions":"i"},
		{"id":"c","search_query":"q3","instructions":"i"}]}`
	client := &scriptClient{responses: []string{plan}}
	runner := &fakeRunner{fn: func(task agent.WorkerTask) *agent.WorkerResult {
		res := citingWorker(task)
		if task.ID == "b" {
			res.Success = false
			res.Error = "timed out"
		}
		return res
	}}

	orch := newOrchestrator(Config{Model: "m", Strict: true}, client, runner, nil)
	_, err := orch.Run(context.Background(), "query")
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Contains(t, runErr.Error(), "strict mode")
	require.NotNil(t, runErr.Partial)
	assert.NotNil(t, runErr.Partial.Plan)
	assert.Len(t, runErr.Partial.Results, 3)
}

func TestOrchestrator_StrictDomainMinimum(t *testing.T) {
	plan := `{"tasks":[
		{"id":"a","search_query":"q1","instructions":"i"},
		{"id":"b","search_query":"q2","instructions":"i"},
		{"id":"c","search_query":"q3","instructions":"i"}]}`
	client := &scriptClient{responses: []string{plan}}
	runner := &fakeRunner{fn: citingWorker} // all citations share example.com

	orch := newOrchestrator(Config{Model: "m", Strict: true, MinTotalDomains: 2}, client, runner, nil)
	_, err := orch.Run(context.Background(), "query")
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Contains(t, runErr.Error(), "unique domains below minimum")
}

func TestOrchestrator_RequireCitationsWithNoSuccesses(t *testing.T) {
	plan := `{"tasks":[
		{"id":"a","search_query":"q1","instructions":"i"},
		{"id":"b","search_query":"q2","instructions":"i"},
		{"id":"c","search_query":"q3","instructions":"i"}]}`
	client := &scriptClient{responses: []string{plan}}
	runner := &fakeRunner{fn: func(task agent.WorkerTask) *agent.WorkerResult {
		return &agent.WorkerResult{TaskID: task.ID, Success: false, Error: "boom"}
	}}

	orch := newOrchestrator(Config{Model: "m", RequireCitations: true}, client, runner, nil)
	_, err := orch.Run(context.Background(), "query")
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Contains(t, runErr.Error(), "no worker produced results")
	assert.Contains(t, runErr.Error(), "[fail] a")
}

func TestOrchestrator_WorkerContinuationMergesCitations(t *testing.T) {
	plan := `{"tasks":[
		{"id":"a","search_query":"q1","instructions":"i"},
		{"id":"b","search_query":"q2","instructions":"i"},
		{"id":"c","search_query":"q3","instructions":"i"}]}`
	report := `{"title":"T","summary_bullets":[],"findings":[` +
		`{"claim":"c","citations":["https://example.com/a"]}]}`
	client := &scriptClient{responses: []string{plan, report}}

	dispatched := map[string]int{}
	runner := &fakeRunner{fn: func(task agent.WorkerTask) *agent.WorkerResult {
		dispatched[task.ID]++
		res := citingWorker(task)
		if dispatched[task.ID] > 1 {
			res.Citations = []string{"https://followup.com/" + task.ID}
		}
		return res
	}}

	orch := newOrchestrator(Config{
		Model:                    "m",
		EnableWorkerContinuation: true,
		MaxWebSearchCalls:        4, // citingWorker spends 1, leaving budget
	}, client, runner, nil)
	outcome, err := orch.Run(context.Background(), "query")
	require.NoError(t, err)

	assert.Equal(t, 2, dispatched["a"])
	require.Len(t, outcome.Results, 3)
	for _, r := range outcome.Results {
		assert.Contains(t, r.Citations, "https://example.com/"+r.TaskID)
		assert.Contains(t, r.Citations, "https://followup.com/"+r.TaskID)
		assert.Equal(t, 2, r.WebSearchCalls)
	}
}

func TestOrchestrator_Round2PrefixesTasks(t *testing.T) {
	plan := `{"tasks":[
		{"id":"a","search_query":"q1","instructions":"i"},
		{"id":"b","search_query":"q2","instructions":"i"},
		{"id":"c","search_query":"q3","instructions":"i"}]}`
	r2plan := `{"tasks":[{"id":"gap","search_query":"q4","instructions":"i"}]}`
	report := `{"title":"T","summary_bullets":[],"findings":[` +
		`{"claim":"c","citations":["https://example.com/a"]}]}`
	client := &scriptClient{responses: []string{plan, r2plan, report}}
	runner := &fakeRunner{fn: citingWorker}

	orch := newOrchestrator(Config{Model: "m", EnableRound2: true}, client, runner, nil)
	outcome, err := orch.Run(context.Background(), "query")
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Rounds)

	var ids []string
	for _, task := range runner.tasks {
		ids = append(ids, task.ID)
	}
	assert.Contains(t, ids, "r2_gap")
	// The gap round's worker prompt carries the already-covered URLs.
	last := runner.tasks[len(runner.tasks)-1]
	assert.Contains(t, last.Prompt, "do not reuse")
	assert.Contains(t, last.Prompt, "https://example.com/a")
}

func TestOrchestrator_CuratedNarrowsAllowedSet(t *testing.T) {
	plan := `{"tasks":[
		{"id":"a","search_query":"q1","instructions":"i"},
		{"id":"b","search_query":"q2","instructions":"i"},
		{"id":"c","search_query":"q3","instructions":"i"}]}`
	report := `{"title":"T","summary_bullets":[],"findings":[` +
		`{"claim":"c","citations":["https://example.com/a"]}]}`
	client := &scriptClient{responses: []string{plan, report}}
	runner := &fakeRunner{fn: citingWorker}

	orch := newOrchestrator(Config{
		Model:   "m",
		Curated: &CurateConfig{MinPerTask: 1, MaxTotal: 1, MaxPerDomain: 1},
	}, client, runner, nil)
	outcome, err := orch.Run(context.Background(), "query")
	require.NoError(t, err)
	// MinPerTask admits one URL per task; MaxTotal then truncates.
	assert.Len(t, outcome.Allowed, 1)
}

func TestOrchestrator_CatalogQueryUsesCatalogSynthesis(t *testing.T) {
	plan := `{"tasks":[
		{"id":"a","search_query":"q1","instructions":"i"},
		{"id":"b","search_query":"q2","instructions":"i"},
		{"id":"c","search_query":"q3","instructions":"i"}]}`
	report := `{"title":"T","summary_bullets":[],"items":[` +
		`{"name":"Tool","website_url":"https://example.com/a"}]}`
	client := &scriptClient{responses: []string{plan, report}}
	runner := &fakeRunner{fn: citingWorker}

	orch := newOrchestrator(Config{Model: "m"}, client, runner, nil)
	outcome, err := orch.Run(context.Background(), "list 3 code search tools")
	require.NoError(t, err)
	assert.Equal(t, ReportCatalog, outcome.Type)
	require.Len(t, outcome.Report.Items, 1)
	assert.Contains(t, runner.tasks[0].Prompt, `{"candidates"`)
	assert.Contains(t, outcome.Markdown, "### 1. Tool")
}
