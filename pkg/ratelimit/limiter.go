// Package ratelimit provides the fixed-window rate limiter and the
// per-source circuit breaker used by the ingestion scheduler and the
// web tool implementations.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const window = 60 * time.Second

// Limiter enforces a maximum number of requests per rolling 60-second
// window plus a minimum delay between consecutive requests.
type Limiter struct {
	mu          sync.Mutex
	maxRequests int
	minInterval time.Duration
	timestamps  []time.Time
	last        time.Time

	// Injectable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLimiter creates a limiter allowing maxPerWindow requests per
// 60-second window with at least minInterval between requests.
func NewLimiter(maxPerWindow int, minInterval time.Duration) *Limiter {
	return &Limiter{
		maxRequests: maxPerWindow,
		minInterval: minInterval,
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Wait blocks until both the window and spacing constraints are
// satisfied, then records the request. Returns early on ctx cancel.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		d := l.delay(l.now())
		if d <= 0 {
			now := l.now()
			l.timestamps = append(l.timestamps, now)
			l.last = now
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()
		if err := l.sleep(ctx, d); err != nil {
			return err
		}
	}
}

// delay returns how long the caller must still wait. Caller holds mu.
func (l *Limiter) delay(now time.Time) time.Duration {
	var d time.Duration
	if !l.last.IsZero() {
		if since := now.Sub(l.last); since < l.minInterval {
			d = l.minInterval - since
		}
	}
	// Drop timestamps that fell out of the window.
	cutoff := now.Add(-window)
	kept := l.timestamps[:0]
	for _, ts := range l.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.timestamps = kept

	if l.maxRequests > 0 && len(l.timestamps) >= l.maxRequests {
		until := l.timestamps[0].Add(window).Sub(now)
		if until > d {
			d = until
		}
	}
	return d
}
