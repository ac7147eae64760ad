// Package llm defines the completion port: a stateless request
// interface with streaming and non-streaming modes, plus the chunk
// types the streaming mode is expressed in.
package llm

import (
	"context"
	"strings"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one conversation message.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall // for assistant messages
	ToolCallID string     // for tool result messages
	ToolName   string     // for tool result messages
}

// ToolDefinition describes a tool available to the LLM.
type ToolDefinition struct {
	Name             string
	Description      string
	ParametersSchema string // JSON Schema
}

// ToolCall is an LLM's request to call a tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON
}

// Request is one completion request. Model names are free-form strings
// interpreted by the provider.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []ToolDefinition // nil = no tools
	ToolChoice  string           // "", "auto", "none"
	Temperature float64
	MaxTokens   int
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Add accumulates another usage report.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// Response is a completed (non-streamed) message.
type Response struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}

// Chunk is the interface for all streaming chunk types.
type Chunk interface {
	chunkType() ChunkType
}

// ChunkType identifies the kind of streaming chunk.
type ChunkType string

const (
	ChunkTypeText     ChunkType = "text"
	ChunkTypeToolCall ChunkType = "tool_call"
	ChunkTypeUsage    ChunkType = "usage"
	ChunkTypeError    ChunkType = "error"
)

// TextChunk is an incremental piece of the assistant's text.
type TextChunk struct{ Content string }

// ToolCallChunk is a partial tool call keyed by provider index.
// ID and Name arrive on the first delta for an index; Arguments
// accumulate across deltas.
type ToolCallChunk struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// UsageChunk reports token consumption for this call.
type UsageChunk struct{ InputTokens, OutputTokens, TotalTokens int }

// ErrorChunk signals a provider error mid-stream.
type ErrorChunk struct {
	Message   string
	Retryable bool
}

func (TextChunk) chunkType() ChunkType     { return ChunkTypeText }
func (ToolCallChunk) chunkType() ChunkType { return ChunkTypeToolCall }
func (UsageChunk) chunkType() ChunkType    { return ChunkTypeUsage }
func (ErrorChunk) chunkType() ChunkType    { return ChunkTypeError }

// Client is the completion capability. Implementations are stateless
// per request and safe for concurrent use.
type Client interface {
	// Complete performs a non-streaming completion.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Stream performs a streaming completion. The returned channel is
	// closed when the stream ends; errors arrive as ErrorChunk values.
	Stream(ctx context.Context, req *Request) (<-chan Chunk, error)
}

// IsRateLimited recognizes provider rate-limit errors by substring.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate") && strings.Contains(msg, "limit")
}
