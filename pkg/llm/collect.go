package llm

import (
	"context"
	"fmt"
	"sort"
)

// DeltaFunc receives incremental assistant text during collection.
type DeltaFunc func(text string)

// Collect drains a chunk stream into a Response, reassembling partial
// tool calls by provider index. onDelta (optional) is invoked for each
// text chunk in arrival order. Collection is deterministic: the
// reassembled tool-call list equals the non-streamed list for the same
// underlying model response.
func Collect(ctx context.Context, chunks <-chan Chunk, onDelta DeltaFunc) (*Response, error) {
	resp := &Response{}
	partial := map[int]*ToolCall{}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case c, ok := <-chunks:
			if !ok {
				resp.ToolCalls = assemble(partial)
				return resp, nil
			}
			switch ch := c.(type) {
			case TextChunk:
				resp.Content += ch.Content
				if onDelta != nil {
					onDelta(ch.Content)
				}
			case ToolCallChunk:
				tc, exists := partial[ch.Index]
				if !exists {
					tc = &ToolCall{}
					partial[ch.Index] = tc
				}
				if ch.ID != "" {
					tc.ID = ch.ID
				}
				if ch.Name != "" {
					tc.Name = ch.Name
				}
				tc.Arguments += ch.Arguments
			case UsageChunk:
				resp.Usage.Add(Usage{
					InputTokens:  ch.InputTokens,
					OutputTokens: ch.OutputTokens,
					TotalTokens:  ch.TotalTokens,
				})
			case ErrorChunk:
				return nil, fmt.Errorf("llm stream error: %s", ch.Message)
			}
		}
	}
}

// assemble orders reassembled tool calls by provider index.
func assemble(partial map[int]*ToolCall) []ToolCall {
	if len(partial) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(partial))
	for i := range partial {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	out := make([]ToolCall, 0, len(indexes))
	for _, i := range indexes {
		out = append(out, *partial[i])
	}
	return out
}
