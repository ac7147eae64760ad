package tools

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaFor reflects a parameter struct into an inline JSON Schema
// string of the `{type:"object", properties:{…}, required:[…]}` shape
// the completion port expects.
func SchemaFor(v any) (string, error) {
	r := jsonschema.Reflector{
		DoNotReference: true,
		Anonymous:      true,
	}
	schema := r.Reflect(v)
	schema.Version = ""
	raw, err := json.Marshal(schema)
	if err != nil {
		return "", fmt.Errorf("failed to marshal schema: %w", err)
	}
	return string(raw), nil
}

// MustSchema is SchemaFor for registration-time schemas, where a
// failure is a programming error.
func MustSchema(v any) string {
	s, err := SchemaFor(v)
	if err != nil {
		panic(err)
	}
	return s
}

// decodeArgs round-trips an argument map into a typed parameter struct.
func decodeArgs(args map[string]any, into any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to encode arguments: %w", err)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
