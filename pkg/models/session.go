package models

import "time"

// SessionStatus is the lifecycle state of an ingestion session.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
	SessionError     SessionStatus = "error"
)

// Complexity is the LLM-assessed topic complexity, mapped to an
// iteration cap by the scheduler.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// SessionStats aggregates per-session counters. Cost is accumulated by
// the scheduler from LLM usage reports.
type SessionStats struct {
	DocsFetched    int                `json:"docs_fetched"`
	DocsFiltered   int                `json:"docs_filtered"`
	SnippetsKept   int                `json:"snippets_kept"`
	SnippetsDropped int               `json:"snippets_dropped"`
	TasksCompleted int                `json:"tasks_completed"`
	TasksFailed    int                `json:"tasks_failed"`
	TotalCostUSD   float64            `json:"total_cost_usd"`
	BySignalType   map[string]int     `json:"by_signal_type,omitempty"`
	ByEntity       map[string]int     `json:"by_entity,omitempty"`
	QueryYield     map[string]Yield   `json:"query_yield,omitempty"`
}

// Yield tracks docs seen and snippets kept for a normalized query, used
// to score queued tasks.
type Yield struct {
	Docs     int `json:"docs"`
	Snippets int `json:"snippets"`
}

// SessionState is the full ingestion-session snapshot. Mutated only by
// the scheduler; persisted atomically on every iteration boundary.
type SessionState struct {
	SessionID     string         `json:"session_id"`
	Topic         string         `json:"topic"`
	Status        SessionStatus  `json:"status"`
	PromptVersion string         `json:"prompt_version"`
	TaskQueue     []SearchTask   `json:"task_queue"`
	VisitedTasks  map[string]bool `json:"visited_tasks"`
	VisitedDocs   map[string]bool `json:"visited_docs"`
	Knowledge     []string       `json:"knowledge"`
	NoveltyHistory []float64     `json:"novelty_history"`
	RecentEmpty   []bool         `json:"recent_empty"`
	Cursors       map[string]string `json:"cursors,omitempty"`
	Stats         SessionStats   `json:"stats"`
	Complexity    Complexity     `json:"complexity,omitempty"`
	MaxIterations int            `json:"max_iterations"`
	Iteration     int            `json:"iteration"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// NewSessionState creates a fresh running session for a topic.
func NewSessionState(sessionID, topic, promptVersion string) *SessionState {
	now := time.Now().UTC()
	return &SessionState{
		SessionID:     sessionID,
		Topic:         topic,
		Status:        SessionRunning,
		PromptVersion: promptVersion,
		VisitedTasks:  map[string]bool{},
		VisitedDocs:   map[string]bool{},
		Cursors:       map[string]string{},
		Stats: SessionStats{
			BySignalType: map[string]int{},
			ByEntity:     map[string]int{},
			QueryYield:   map[string]Yield{},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
