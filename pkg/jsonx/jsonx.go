// Package jsonx decodes the JSON payloads LLMs return, tolerating the
// single-code-fence wrapping models frequently add.
package jsonx

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripCodeFence removes a single surrounding Markdown code fence
// (``` or ```json) if present. Content without a fence is returned
// unchanged.
func StripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Drop the language tag line (e.g. "json").
		trimmed = trimmed[idx+1:]
	}
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

// DecodeLoose unmarshals raw JSON, and on failure retries once after
// stripping a code fence.
func DecodeLoose(s string, v any) error {
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), v); err == nil {
		return nil
	}
	stripped := StripCodeFence(s)
	if err := json.Unmarshal([]byte(stripped), v); err != nil {
		return fmt.Errorf("invalid JSON payload: %w", err)
	}
	return nil
}
