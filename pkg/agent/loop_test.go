package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekerhq/seeker/pkg/events"
	"github.com/seekerhq/seeker/pkg/llm"
	"github.com/seekerhq/seeker/pkg/tools"
)

func echoRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	r.Register("echo", "echoes the message back", `{"type":"object","properties":{"msg":{"type":"string"}}}`,
		func(_ context.Context, args map[string]any) (any, error) {
			return args["msg"], nil
		})
	return r
}

func TestLoop_ToolCallRoundTrip(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{
		respond(toolCallResponse(llm.ToolCall{ID: "call_1", Name: "echo", Arguments: `{"msg":"hi"}`})),
		respond(textResponse("done")),
	}}
	registry := echoRegistry(t)

	var kinds []events.Kind
	emitter := events.NewEmitter(func(ev events.Event) { kinds = append(kinds, ev.Kind()) })

	loop := NewLoop(client, registry.Schemas(), RegistryExecutor(registry), emitter, LoopConfig{
		Model: "test-model", MaxIterations: 5, UseTools: true,
	})
	result, err := loop.Run(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "go"}})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Iterations)
	assert.Equal(t, "done", result.FinalResponse)
	assert.Equal(t, []events.Kind{events.KindToolCall, events.KindToolResult, events.KindAssistantMessage}, kinds)

	// user, assistant+tool_calls, tool result, final assistant
	require.Len(t, result.Messages, 4)
	toolMsg := result.Messages[2]
	assert.Equal(t, llm.RoleTool, toolMsg.Role)
	assert.Equal(t, "call_1", toolMsg.ToolCallID)
	assert.JSONEq(t, `{"success":true,"result":"hi"}`, toolMsg.Content)
}

func TestLoop_SyntheticToolCallIDs(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{
		respond(toolCallResponse(llm.ToolCall{Name: "echo", Arguments: `{"msg":"x"}`})),
		respond(textResponse("ok")),
	}}
	registry := echoRegistry(t)

	loop := NewLoop(client, registry.Schemas(), RegistryExecutor(registry), nil, LoopConfig{
		Model: "test-model", MaxIterations: 3, UseTools: true,
	})
	result, err := loop.Run(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "go"}})
	require.NoError(t, err)

	assistant := result.Messages[1]
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, "call_0_0", assistant.ToolCalls[0].ID)
	assert.Equal(t, "call_0_0", result.Messages[2].ToolCallID)
}

func TestLoop_EmptyResponseTerminates(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{respond(&llm.Response{})}}
	loop := NewLoop(client, nil, nil, nil, LoopConfig{Model: "m", MaxIterations: 5})

	result, err := loop.Run(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "q"}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Iterations)
	assert.Empty(t, result.FinalResponse)
}

func TestLoop_MaxIterationsExhausted(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{
		respond(toolCallResponse(llm.ToolCall{ID: "a", Name: "echo", Arguments: `{}`})),
		respond(toolCallResponse(llm.ToolCall{ID: "b", Name: "echo", Arguments: `{}`})),
	}}
	registry := echoRegistry(t)
	loop := NewLoop(client, registry.Schemas(), RegistryExecutor(registry), nil, LoopConfig{
		Model: "m", MaxIterations: 2, UseTools: true,
	})

	result, err := loop.Run(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "q"}})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Iterations)
	assert.Empty(t, result.FinalResponse)
}

func TestLoop_RateLimitRetriesOnce(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{
		fail(errors.New("429: rate limit exceeded")),
		respond(textResponse("recovered")),
	}}
	loop := NewLoop(client, nil, nil, nil, LoopConfig{Model: "m", MaxIterations: 2})
	loop.retryDelay = 0

	result, err := loop.Run(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "q"}})
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.FinalResponse)
	assert.Len(t, client.requests, 2)
}

func TestLoop_NonRateLimitErrorSurfaces(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{fail(errors.New("provider unavailable"))}}
	loop := NewLoop(client, nil, nil, nil, LoopConfig{Model: "m", MaxIterations: 2})

	_, err := loop.Run(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "q"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider unavailable")
}

func TestLoop_StreamingMatchesNonStreaming(t *testing.T) {
	script := func() []scriptStep {
		return []scriptStep{
			respond(&llm.Response{
				Content:   "checking",
				ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "echo", Arguments: `{"msg":"s"}`}},
			}),
			respond(textResponse("final answer")),
		}
	}
	registry := echoRegistry(t)

	run := func(stream bool) (*LoopResult, []events.Kind) {
		var kinds []events.Kind
		emitter := events.NewEmitter(func(ev events.Event) { kinds = append(kinds, ev.Kind()) })
		loop := NewLoop(&scriptedClient{script: script()}, registry.Schemas(), RegistryExecutor(registry), emitter, LoopConfig{
			Model: "m", MaxIterations: 4, UseTools: true, Stream: stream,
		})
		result, err := loop.Run(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "q"}})
		require.NoError(t, err)
		return result, kinds
	}

	plain, _ := run(false)
	streamed, kinds := run(true)

	// Reassembled tool calls and final content are identical.
	assert.Equal(t, plain.FinalResponse, streamed.FinalResponse)
	assert.Equal(t, plain.Messages[1].ToolCalls, streamed.Messages[1].ToolCalls)

	assert.Contains(t, kinds, events.KindAssistantResponseStart)
	assert.Contains(t, kinds, events.KindAssistantDelta)
}

func TestLoop_SystemPromptPrepended(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{respond(textResponse("hi"))}}
	loop := NewLoop(client, nil, nil, nil, LoopConfig{
		Model: "m", SystemPrompt: "be terse", MaxIterations: 1,
	})

	_, err := loop.Run(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "q"}})
	require.NoError(t, err)
	require.NotEmpty(t, client.requests)
	first := client.requests[0].Messages[0]
	assert.Equal(t, llm.RoleSystem, first.Role)
	assert.Equal(t, "be terse", first.Content)
}
