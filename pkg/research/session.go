package research

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/seekerhq/seeker/pkg/agent"
	"github.com/seekerhq/seeker/pkg/storage"
)

// Research session layout:
//
//	<data_dir>/<session_id>/
//	  meta.json
//	  research/
//	    plan.json
//	    workers/<task_id>.json
//	    report.md
//	    rounds/round_<NN>/{plan.json, memo.json, planner_raw.txt}
type SessionStore struct {
	ID  string
	Dir string
}

// SessionMeta is the top-level research session descriptor.
type SessionMeta struct {
	SessionID string    `json:"session_id"`
	Query     string    `json:"query"`
	Type      string    `json:"type"`
	Rounds    int       `json:"rounds"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSessionStore creates the session directory tree.
func NewSessionStore(dataDir, sessionID string) (*SessionStore, error) {
	dir := filepath.Join(dataDir, sessionID)
	for _, sub := range []string{"research/workers", "research/rounds"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create session dir %s: %w", sub, err)
		}
	}
	return &SessionStore{ID: sessionID, Dir: dir}, nil
}

// SavePlan writes the validated plan.
func (s *SessionStore) SavePlan(plan *Plan) error {
	return storage.WriteJSONAtomic(filepath.Join(s.Dir, "research", "plan.json"), plan.Tasks)
}

// SaveWorker writes one worker's full result, trace included.
func (s *SessionStore) SaveWorker(res *agent.WorkerResult) error {
	name := safeName(res.TaskID) + ".json"
	return storage.WriteJSONAtomic(filepath.Join(s.Dir, "research", "workers", name), res)
}

// SaveRound dumps a follow-up round's plan, memo, and raw planner
// response under rounds/round_<NN>/.
func (s *SessionStore) SaveRound(round int, plan *Plan, memo *Memo) error {
	dir := filepath.Join(s.Dir, "research", "rounds", fmt.Sprintf("round_%02d", round))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create round dir: %w", err)
	}
	if err := storage.WriteJSONAtomic(filepath.Join(dir, "plan.json"), plan.Tasks); err != nil {
		return err
	}
	if err := storage.WriteJSONAtomic(filepath.Join(dir, "memo.json"), memo); err != nil {
		return err
	}
	if plan.Raw != "" {
		if err := os.WriteFile(filepath.Join(dir, "planner_raw.txt"), []byte(plan.Raw), 0o644); err != nil {
			return fmt.Errorf("failed to write planner raw: %w", err)
		}
	}
	return nil
}

// SaveReport writes the rendered report and refreshes meta.json.
func (s *SessionStore) SaveReport(outcome *Outcome) error {
	if err := os.WriteFile(filepath.Join(s.Dir, "research", "report.md"), []byte(outcome.Markdown), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	now := time.Now().UTC()
	meta := SessionMeta{
		SessionID: s.ID,
		Query:     outcome.Query,
		Type:      string(outcome.Type),
		Rounds:    outcome.Rounds,
		Status:    "completed",
		CreatedAt: now,
		UpdatedAt: now,
	}
	var prior SessionMeta
	if err := storage.ReadJSON(filepath.Join(s.Dir, "meta.json"), &prior); err == nil {
		meta.CreatedAt = prior.CreatedAt
	}
	return storage.WriteJSONAtomic(filepath.Join(s.Dir, "meta.json"), meta)
}

// safeName flattens a task ID into a filesystem-safe file stem.
func safeName(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
