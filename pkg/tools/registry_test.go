package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Execute(t *testing.T) {
	r := NewRegistry()
	r.Register("echo", "echoes", `{"type":"object","properties":{"msg":{"type":"string"}}}`,
		func(_ context.Context, args map[string]any) (any, error) {
			return args["msg"], nil
		})

	res := r.Execute(context.Background(), "echo", map[string]any{"msg": "hi"})
	require.True(t, res.Success)
	assert.Equal(t, "hi", res.Result)
}

func TestRegistry_ExecuteNotFound(t *testing.T) {
	r := NewRegistry()
	res := r.Execute(context.Background(), "nope", nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "tool not found")
}

func TestRegistry_ExecuteError(t *testing.T) {
	r := NewRegistry()
	r.Register("boom", "fails", `{"type":"object"}`,
		func(_ context.Context, _ map[string]any) (any, error) {
			return nil, errors.New("backend unavailable")
		})

	res := r.Execute(context.Background(), "boom", nil)
	assert.False(t, res.Success)
	assert.Equal(t, "backend unavailable", res.Error)
}

func TestRegistry_ExecuteRecoverPanic(t *testing.T) {
	r := NewRegistry()
	r.Register("panic", "panics", `{"type":"object"}`,
		func(_ context.Context, _ map[string]any) (any, error) {
			panic("oh no")
		})

	res := r.Execute(context.Background(), "panic", nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "panicked")
}

func TestRegistry_SchemasSorted(t *testing.T) {
	r := NewRegistry()
	r.Register("zeta", "", `{"type":"object"}`, nil)
	r.Register("alpha", "", `{"type":"object"}`, nil)
	r.Register("zeta", "overwritten", `{"type":"object"}`, nil)

	schemas := r.Schemas()
	require.Len(t, schemas, 2)
	assert.Equal(t, "alpha", schemas[0].Name)
	assert.Equal(t, "zeta", schemas[1].Name)
	assert.Equal(t, "overwritten", schemas[1].Description)
}

func TestSchemaFor(t *testing.T) {
	s, err := SchemaFor(webSearchParams{})
	require.NoError(t, err)
	assert.Contains(t, s, `"query"`)
	assert.Contains(t, s, `"type":"object"`)
	assert.Contains(t, s, `"required"`)
}
