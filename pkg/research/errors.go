// Package research implements the deep-research orchestrator: planning,
// parallel worker fan-out, evidence curation, grounded synthesis, and
// report rendering.
package research

import (
	"fmt"
	"strings"

	"github.com/seekerhq/seeker/pkg/agent"
)

// PlanningError reports empty or invalid planner output. Fatal unless
// best-effort planning is enabled.
type PlanningError struct {
	Reason string
}

func (e *PlanningError) Error() string {
	return "planning failed: " + e.Reason
}

// SynthesisError reports invalid synthesizer JSON after retry, a
// grounding violation after the repair pass, or a coverage violation
// when coverage is enforced.
type SynthesisError struct {
	Stage  string
	Reason string
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed at stage %q: %s", e.Stage, e.Reason)
}

// RunError wraps a fatal run failure with the partial outcome so
// callers can persist diagnostics.
type RunError struct {
	Err     error
	Partial *Outcome
}

func (e *RunError) Error() string {
	return "deep research run failed: " + e.Err.Error()
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// diagnostics formats per-worker success and failure lines for fatal
// error messages.
func diagnostics(results []*agent.WorkerResult) string {
	var b strings.Builder
	for _, r := range results {
		if r.Success {
			fmt.Fprintf(&b, "  [ok]   %s: %d citations, %d evidence, %d searches\n",
				r.TaskID, len(r.Citations), len(r.Evidence), r.WebSearchCalls)
		} else {
			fmt.Fprintf(&b, "  [fail] %s: %s\n", r.TaskID, r.Error)
		}
	}
	return b.String()
}
