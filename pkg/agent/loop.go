package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/seekerhq/seeker/pkg/events"
	"github.com/seekerhq/seeker/pkg/llm"
	"github.com/seekerhq/seeker/pkg/tools"
)

// ToolExecutor dispatches one tool call. Implementations never return
// errors; failures are carried in the Result and shown to the model.
type ToolExecutor func(ctx context.Context, call llm.ToolCall) tools.Result

// RegistryExecutor adapts a tool registry into a ToolExecutor.
func RegistryExecutor(registry *tools.Registry) ToolExecutor {
	return func(ctx context.Context, call llm.ToolCall) tools.Result {
		return registry.Execute(ctx, call.Name, DecodeArguments(call.Arguments))
	}
}

// DecodeArguments best-effort decodes a tool-call argument payload.
// Invalid JSON yields an empty map; the tool reports the real problem.
func DecodeArguments(raw string) map[string]any {
	args := map[string]any{}
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &args)
	}
	return args
}

// LoopConfig configures one tool-calling loop run.
type LoopConfig struct {
	Model         string
	SystemPrompt  string
	MaxIterations int
	Temperature   float64
	MaxTokens     int
	Stream        bool
	UseTools      bool
}

// LoopResult is the outcome of a loop run. FinalResponse is empty when
// the model terminated without text or the iteration budget ran out.
type LoopResult struct {
	Iterations    int
	FinalResponse string
	Usage         llm.Usage
	Messages      []llm.Message
}

const rateLimitRetryDelay = 5 * time.Second

// Loop is the bounded tool-calling iteration loop: it alternates
// between LLM completion and tool execution until the model emits a
// terminal text message or the budget is exhausted.
type Loop struct {
	client  llm.Client
	schemas []llm.ToolDefinition
	execute ToolExecutor
	emitter *events.Emitter
	cfg     LoopConfig
	log     *slog.Logger

	// retryDelay is the rate-limit backoff, injectable in tests.
	retryDelay time.Duration
}

// NewLoop creates a loop. schemas and execute may be nil when
// cfg.UseTools is false.
func NewLoop(client llm.Client, schemas []llm.ToolDefinition, execute ToolExecutor, emitter *events.Emitter, cfg LoopConfig) *Loop {
	return &Loop{
		client:     client,
		schemas:    schemas,
		execute:    execute,
		emitter:    emitter,
		cfg:        cfg,
		log:        slog.With("component", "agent.loop"),
		retryDelay: rateLimitRetryDelay,
	}
}

// Run executes the loop over the given conversation. The system prompt
// is prepended per call, never stored in the conversation.
func (l *Loop) Run(ctx context.Context, messages []llm.Message) (*LoopResult, error) {
	usage := llm.Usage{}

	for iteration := 0; iteration < l.cfg.MaxIterations; iteration++ {
		resp, err := l.callOnce(ctx, messages, iteration)
		if err != nil {
			return nil, fmt.Errorf("llm call failed on iteration %d: %w", iteration+1, err)
		}
		usage.Add(resp.Usage)
		ensureToolCallIDs(iteration, resp.ToolCalls)

		if l.cfg.UseTools && len(resp.ToolCalls) > 0 {
			// Assistant message carries both text (may be empty) and calls.
			messages = append(messages, llm.Message{
				Role:      llm.RoleAssistant,
				Content:   resp.Content,
				ToolCalls: resp.ToolCalls,
			})
			for _, tc := range resp.ToolCalls {
				l.emitter.Emit(events.ToolCallEvent{
					ID:   tc.ID,
					Name: tc.Name,
					Args: DecodeArguments(tc.Arguments),
				})
				res := l.execute(ctx, tc)
				l.emitter.Emit(events.ToolResultEvent{ID: tc.ID, Name: tc.Name, Result: res})

				raw, marshalErr := json.Marshal(res)
				if marshalErr != nil {
					raw = []byte(fmt.Sprintf(`{"success":false,"error":"unserializable result: %v"}`, marshalErr))
				}
				messages = append(messages, llm.Message{
					Role:       llm.RoleTool,
					Content:    string(raw),
					ToolCallID: tc.ID,
					ToolName:   tc.Name,
				})
			}
			continue
		}

		if resp.Content != "" {
			messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
			l.emitter.Emit(events.AssistantMessageEvent{Content: resp.Content})
			return &LoopResult{
				Iterations:    iteration + 1,
				FinalResponse: resp.Content,
				Usage:         usage,
				Messages:      messages,
			}, nil
		}

		// Empty content with no tool calls terminates.
		return &LoopResult{Iterations: iteration + 1, Usage: usage, Messages: messages}, nil
	}

	l.log.Warn("iteration budget exhausted without final response",
		"max_iterations", l.cfg.MaxIterations)
	return &LoopResult{Iterations: l.cfg.MaxIterations, Usage: usage, Messages: messages}, nil
}

// callOnce performs one completion, retrying once on a rate-limit error
// after a fixed backoff.
func (l *Loop) callOnce(ctx context.Context, messages []llm.Message, iteration int) (*llm.Response, error) {
	req := &llm.Request{
		Model:       l.cfg.Model,
		Messages:    l.withSystem(messages),
		Temperature: l.cfg.Temperature,
		MaxTokens:   l.cfg.MaxTokens,
	}
	if l.cfg.UseTools {
		req.Tools = l.schemas
	}

	for attempt := 0; ; attempt++ {
		resp, err := l.call(ctx, req, iteration)
		if err == nil {
			return resp, nil
		}
		if attempt == 0 && llm.IsRateLimited(err) {
			l.log.Warn("rate limited, retrying once", "delay", l.retryDelay, "error", err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(l.retryDelay):
			}
			continue
		}
		return nil, err
	}
}

func (l *Loop) call(ctx context.Context, req *llm.Request, iteration int) (*llm.Response, error) {
	if !l.cfg.Stream {
		return l.client.Complete(ctx, req)
	}
	l.emitter.Emit(events.AssistantResponseStartEvent{Iteration: iteration + 1})
	chunks, err := l.client.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return llm.Collect(ctx, chunks, func(text string) {
		l.emitter.Emit(events.AssistantDeltaEvent{Text: text})
	})
}

func (l *Loop) withSystem(messages []llm.Message) []llm.Message {
	if l.cfg.SystemPrompt == "" {
		return messages
	}
	out := make([]llm.Message, 0, len(messages)+1)
	out = append(out, llm.Message{Role: llm.RoleSystem, Content: l.cfg.SystemPrompt})
	return append(out, messages...)
}

// ensureToolCallIDs replaces empty provider IDs with stable synthetic
// ones so tool results can still be keyed by tool_call_id.
func ensureToolCallIDs(iteration int, calls []llm.ToolCall) {
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = fmt.Sprintf("call_%d_%d", iteration, i)
		}
	}
}
