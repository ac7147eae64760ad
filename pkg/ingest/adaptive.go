package ingest

// adaptiveWindow is the rolling sample size for the success tracker.
const adaptiveWindow = 20

// successTracker keeps a rolling window of task outcomes and scales the
// worker count down when the recent success rate degrades. Owned by the
// scheduler; updated only on the dispatching goroutine.
type successTracker struct {
	window []bool
}

func newSuccessTracker() *successTracker {
	return &successTracker{}
}

// Record appends one task outcome, evicting the oldest past the window.
func (t *successTracker) Record(success bool) {
	t.window = append(t.window, success)
	if len(t.window) > adaptiveWindow {
		t.window = t.window[len(t.window)-adaptiveWindow:]
	}
}

// SuccessRate returns the fraction of successes in the window, or 1.0
// when no outcomes have been recorded yet.
func (t *successTracker) SuccessRate() float64 {
	if len(t.window) == 0 {
		return 1.0
	}
	ok := 0
	for _, s := range t.window {
		if s {
			ok++
		}
	}
	return float64(ok) / float64(len(t.window))
}

// EffectiveWorkers halves maxWorkers when the rolling success rate
// falls below 0.5, never going under 1.
func (t *successTracker) EffectiveWorkers(maxWorkers int) int {
	if maxWorkers < 1 {
		return 1
	}
	if t.SuccessRate() < 0.5 {
		halved := maxWorkers / 2
		if halved < 1 {
			return 1
		}
		return halved
	}
	return maxWorkers
}
