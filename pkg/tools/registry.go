// Package tools provides the tool registry and the built-in web and
// read-only file tools exposed to agent loops.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/seekerhq/seeker/pkg/llm"
)

// Result is the outcome of one tool execution. Errors never propagate
// out of Execute; they are carried here and shown to the model as a
// tool-result message.
type Result struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Failure builds an unsuccessful result.
func Failure(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Handler implements a tool. args is the decoded argument map.
type Handler func(ctx context.Context, args map[string]any) (any, error)

type entry struct {
	def     llm.ToolDefinition
	handler Handler
}

// Registry maps tool names to schema-described implementations.
// Effectively immutable during a run: register between runs only;
// concurrent reads are safe.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]entry{}}
}

// Register adds a tool, overwriting any existing registration.
func (r *Registry) Register(name, description, parametersSchema string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = entry{
		def: llm.ToolDefinition{
			Name:             name,
			Description:      description,
			ParametersSchema: parametersSchema,
		},
		handler: handler,
	}
}

// Schemas returns the tool definitions, sorted by name.
func (r *Registry) Schemas() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, e := range r.tools {
		out = append(out, e.def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Execute invokes a tool by name. Unknown names and handler panics are
// converted into failure results.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (res Result) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return Failure("tool not found: %s", name)
	}

	defer func() {
		if p := recover(); p != nil {
			res = Failure("tool %s panicked: %v", name, p)
		}
	}()

	out, err := e.handler(ctx, args)
	if err != nil {
		return Failure("%s", err.Error())
	}
	return Result{Success: true, Result: out}
}
