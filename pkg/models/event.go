package models

import "time"

// Ingestion event kinds appended to events.jsonl. The stream is
// append-only and monotonically ordered within a session.
const (
	EventIterationStarted   = "iteration_started"
	EventIterationCompleted = "iteration_completed"
	EventTaskDispatched     = "task_dispatched"
	EventTaskCompleted      = "task_completed"
	EventTaskFailed         = "task_failed"
	EventCircuitOpen        = "circuit_open"
	EventDocFetched         = "doc_fetched"
	EventDocFiltered        = "doc_filtered"
	EventFetchFailed        = "fetch_failed"
	EventExtractionDone     = "extraction_done"
	EventExtractionFailed   = "extraction_failed"
	EventStopDecision       = "stop_decision"
)

// EventMetrics carries timing and failure-stage tags for an event.
type EventMetrics struct {
	DurationMS int64  `json:"duration_ms,omitempty"`
	ErrorStage string `json:"error_stage,omitempty"`
}

// IngestEvent is one immutable record in a session's event stream.
type IngestEvent struct {
	Kind      string         `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Input     map[string]any `json:"input,omitempty"`
	Output    map[string]any `json:"output,omitempty"`
	Metrics   EventMetrics   `json:"metrics,omitempty"`
}

// NewIngestEvent stamps an event with the current time.
func NewIngestEvent(kind string, input, output map[string]any) IngestEvent {
	return IngestEvent{
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Input:     input,
		Output:    output,
	}
}
