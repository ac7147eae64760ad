package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func streamOf(chunks ...Chunk) <-chan Chunk {
	ch := make(chan Chunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

func TestCollect_TextAndUsage(t *testing.T) {
	var deltas []string
	resp, err := Collect(context.Background(), streamOf(
		TextChunk{Content: "Hello "},
		TextChunk{Content: "world"},
		UsageChunk{InputTokens: 10, OutputTokens: 2, TotalTokens: 12},
	), func(s string) { deltas = append(deltas, s) })

	require.NoError(t, err)
	assert.Equal(t, "Hello world", resp.Content)
	assert.Equal(t, []string{"Hello ", "world"}, deltas)
	assert.Equal(t, 12, resp.Usage.TotalTokens)
	assert.Empty(t, resp.ToolCalls)
}

func TestCollect_ReassemblesToolCallsByIndex(t *testing.T) {
	// Interleaved deltas for two tool calls, arguments split across chunks.
	resp, err := Collect(context.Background(), streamOf(
		ToolCallChunk{Index: 0, ID: "call_a", Name: "web_search"},
		ToolCallChunk{Index: 1, ID: "call_b", Name: "web_extract"},
		ToolCallChunk{Index: 0, Arguments: `{"query":`},
		ToolCallChunk{Index: 1, Arguments: `{"url":"https://x"}`},
		ToolCallChunk{Index: 0, Arguments: `"go"}`},
	), nil)

	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 2)
	assert.Equal(t, ToolCall{ID: "call_a", Name: "web_search", Arguments: `{"query":"go"}`}, resp.ToolCalls[0])
	assert.Equal(t, ToolCall{ID: "call_b", Name: "web_extract", Arguments: `{"url":"https://x"}`}, resp.ToolCalls[1])
}

func TestCollect_ErrorChunk(t *testing.T) {
	_, err := Collect(context.Background(), streamOf(
		TextChunk{Content: "partial"},
		ErrorChunk{Message: "rate limit exceeded", Retryable: true},
	), nil)

	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
}

func TestIsRateLimited(t *testing.T) {
	assert.False(t, IsRateLimited(nil))
	assert.True(t, IsRateLimited(errors.New("429 Rate Limit Exceeded")))
	assert.False(t, IsRateLimited(errors.New("connection refused")))
}
