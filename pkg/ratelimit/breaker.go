package ratelimit

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker state.
type BreakerState string

const (
	BreakerClosed BreakerState = "closed"
	BreakerOpen   BreakerState = "open"
)

// Breaker is a per-source circuit breaker.
//
// Transitions: closed -> open when consecutive failures reach the
// threshold; open -> closed at the first CanExecute call after the
// recovery timeout elapses (failure count clears). A success in closed
// state resets the failure count.
//
// CanExecute is the only gate; callers that proceed must call exactly
// one of RecordSuccess or RecordFailure.
type Breaker struct {
	mu               sync.Mutex
	failureThreshold int
	recoveryTimeout  time.Duration
	failures         int
	state            BreakerState
	openedAt         time.Time

	now func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(failureThreshold int, recoveryTimeout time.Duration) *Breaker {
	return &Breaker{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		state:            BreakerClosed,
		now:              time.Now,
	}
}

// CanExecute reports whether a call may proceed, transitioning an open
// breaker back to closed once the recovery timeout has elapsed.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerClosed {
		return true
	}
	if b.now().Sub(b.openedAt) >= b.recoveryTimeout {
		b.state = BreakerClosed
		b.failures = 0
		return true
	}
	return false
}

// RecordSuccess resets the consecutive-failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerClosed {
		b.failures = 0
	}
}

// RecordFailure counts a failure and opens the breaker at threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.state == BreakerClosed && b.failures >= b.failureThreshold {
		b.state = BreakerOpen
		b.openedAt = b.now()
	}
}

// State returns the current state without side effects.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
