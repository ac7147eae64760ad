// Package events defines the closed set of run events and the emitter
// that delivers them to an optional consumer callback.
//
// Events are value-typed and tagged by kind. Delivery is synchronous on
// the emitting goroutine: no buffering, no ordering guarantees beyond
// caller order, and callback errors are the consumer's problem.
package events

// Kind identifies an event type.
type Kind string

const (
	KindProgress               Kind = "progress"
	KindResearchPlan           Kind = "research_plan"
	KindWorkerCompleted        Kind = "worker_completed"
	KindAssistantResponseStart Kind = "assistant_response_start"
	KindAssistantDelta         Kind = "assistant_delta"
	KindAssistantMessage       Kind = "assistant_message"
	KindDocument               Kind = "document"
	KindToolCall               Kind = "tool_call"
	KindToolResult             Kind = "tool_result"
	KindError                  Kind = "error"
)

// Event is implemented by every event value.
type Event interface {
	Kind() Kind
}

// ProgressEvent reports coarse stage progress.
type ProgressEvent struct {
	Stage   string
	Current int
	Total   int // 0 when unknown
	Message string
}

// PlannedTask is the event-facing shape of one planned research task.
type PlannedTask struct {
	ID           string `json:"id"`
	SearchQuery  string `json:"search_query"`
	Instructions string `json:"instructions"`
}

// ResearchPlanEvent announces a validated plan before fan-out.
type ResearchPlanEvent struct {
	Tasks []PlannedTask
}

// WorkerCompletedEvent summarizes one finished research worker.
type WorkerCompletedEvent struct {
	TaskID          string
	Success         bool
	WebSearchCalls  int
	WebExtractCalls int
	Citations       int
	Domains         int
	Evidence        int
	DurationMS      int64
	Error           string
}

// AssistantResponseStartEvent marks the start of one streamed LLM turn.
type AssistantResponseStartEvent struct {
	Iteration int
}

// AssistantDeltaEvent carries one streamed text chunk.
type AssistantDeltaEvent struct {
	Text string
}

// AssistantMessageEvent carries a complete assistant message.
type AssistantMessageEvent struct {
	Content string
}

// DocumentEvent announces a persisted document.
type DocumentEvent struct {
	DocID  string
	Title  string
	Source string
}

// ToolCallEvent announces a tool invocation requested by the model.
type ToolCallEvent struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResultEvent carries the result of a tool invocation.
type ToolResultEvent struct {
	ID     string
	Name   string
	Result any
}

// ErrorEvent reports a recoverable problem to stream consumers.
type ErrorEvent struct {
	Message string
	Source  string
}

func (ProgressEvent) Kind() Kind               { return KindProgress }
func (ResearchPlanEvent) Kind() Kind           { return KindResearchPlan }
func (WorkerCompletedEvent) Kind() Kind        { return KindWorkerCompleted }
func (AssistantResponseStartEvent) Kind() Kind { return KindAssistantResponseStart }
func (AssistantDeltaEvent) Kind() Kind         { return KindAssistantDelta }
func (AssistantMessageEvent) Kind() Kind       { return KindAssistantMessage }
func (DocumentEvent) Kind() Kind               { return KindDocument }
func (ToolCallEvent) Kind() Kind               { return KindToolCall }
func (ToolResultEvent) Kind() Kind             { return KindToolResult }
func (ErrorEvent) Kind() Kind                  { return KindError }
