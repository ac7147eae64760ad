package models

// TaskMode selects how a source executes a SearchTask.
// "search" runs the query through the source's search grammar;
// "listing_<type>" walks a source-defined listing (e.g. listing_new).
type TaskMode string

const TaskModeSearch TaskMode = "search"

// SearchTask is one unit of source-side work. Consumed exactly once.
// Cursor is opaque to the scheduler; only the source interprets it.
type SearchTask struct {
	TaskID       string   `json:"task_id"`
	Source       string   `json:"source"`
	SourceEntity string   `json:"source_entity,omitempty"`
	Mode         TaskMode `json:"mode"`
	Query        string   `json:"query,omitempty"`
	Sort         string   `json:"sort,omitempty"`
	TimeFilter   string   `json:"time_filter,omitempty"`
	Cursor       string   `json:"cursor,omitempty"`
	Budget       int      `json:"budget"`
}

// DocumentRef is a lightweight discovery record pointing at a future
// Document. RefID de-duplicates refs before any fetch happens.
type DocumentRef struct {
	RefID        string `json:"ref_id"`
	RefType      string `json:"ref_type"`
	Source       string `json:"source"`
	SourceEntity string `json:"source_entity,omitempty"`
	TaskID       string `json:"task_id"`
	Rank         int    `json:"rank"`
	Preview      string `json:"preview,omitempty"`
}

// Page is one page of discovery results from a source search.
// Invariant: Exhausted implies NextCursor is empty.
type Page struct {
	Items          []DocumentRef `json:"items"`
	NextCursor     string        `json:"next_cursor,omitempty"`
	Exhausted      bool          `json:"exhausted"`
	EstimatedTotal int           `json:"estimated_total,omitempty"`
}
