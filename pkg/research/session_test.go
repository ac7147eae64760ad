package research

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekerhq/seeker/pkg/agent"
	"github.com/seekerhq/seeker/pkg/storage"
)

func TestSessionStore_Layout(t *testing.T) {
	store, err := NewSessionStore(t.TempDir(), "sess1")
	require.NoError(t, err)

	require.NoError(t, store.SavePlan(&Plan{Tasks: []PlanTask{{ID: "a", SearchQuery: "q"}}}))
	require.NoError(t, store.SaveWorker(&agent.WorkerResult{TaskID: "r2_task/one", Success: true}))
	require.NoError(t, store.SaveRound(2, &Plan{
		Tasks: []PlanTask{{ID: "r2_a"}},
		Raw:   "raw planner output",
	}, &Memo{Round: 1}))

	assert.FileExists(t, filepath.Join(store.Dir, "research", "plan.json"))
	// Task IDs flatten to filesystem-safe names.
	assert.FileExists(t, filepath.Join(store.Dir, "research", "workers", "r2_task_one.json"))
	roundDir := filepath.Join(store.Dir, "research", "rounds", "round_02")
	assert.FileExists(t, filepath.Join(roundDir, "plan.json"))
	assert.FileExists(t, filepath.Join(roundDir, "memo.json"))
	raw, err := os.ReadFile(filepath.Join(roundDir, "planner_raw.txt"))
	require.NoError(t, err)
	assert.Equal(t, "raw planner output", string(raw))
}

func TestSessionStore_SaveReportPreservesCreatedAt(t *testing.T) {
	store, err := NewSessionStore(t.TempDir(), "sess1")
	require.NoError(t, err)

	outcome := &Outcome{Query: "q", Type: ReportNarrative, Rounds: 1, Markdown: "# R\n"}
	require.NoError(t, store.SaveReport(outcome))

	var first SessionMeta
	require.NoError(t, storage.ReadJSON(filepath.Join(store.Dir, "meta.json"), &first))
	assert.Equal(t, "completed", first.Status)
	assert.False(t, first.CreatedAt.IsZero())

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, store.SaveReport(outcome))

	var second SessionMeta
	require.NoError(t, storage.ReadJSON(filepath.Join(store.Dir, "meta.json"), &second))
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt) || second.UpdatedAt.Equal(first.UpdatedAt))

	md, err := os.ReadFile(filepath.Join(store.Dir, "research", "report.md"))
	require.NoError(t, err)
	assert.Equal(t, "# R\n", string(md))
}
