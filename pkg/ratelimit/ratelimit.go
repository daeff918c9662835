// Package ratelimit paces calls to a single upstream API.
package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Limiter spaces operations against one upstream backend, incorporating
// optional jitter. The first operation runs immediately; each later one is
// scheduled at least one interval after the previous reservation.
// It is safe for concurrent use by multiple goroutines.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	jitter   float64 // 0.0 to 1.0
	next     time.Time
	now      func() time.Time
}

// Every creates a limiter that allows one operation per interval. A zero
// interval disables pacing.
func Every(interval time.Duration, jitter float64) *Limiter {
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}
	if interval < 0 {
		interval = 0
	}
	return &Limiter{
		interval: interval,
		jitter:   jitter,
		now:      time.Now,
	}
}

// Wait blocks until the caller's reserved slot arrives, or until the context
// is canceled. A canceled wait still consumes its slot so concurrent callers
// keep their spacing.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.interval == 0 {
		return ctx.Err()
	}

	delay := l.reserve()
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// reserve claims the next slot and returns how long the caller must wait for it.
func (l *Limiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	slot := l.next
	if slot.Before(now) {
		slot = now
	}

	step := l.interval
	if l.jitter > 0 {
		// Only positive jitter: the interval is a floor the upstream relies on.
		step += time.Duration(float64(l.interval) * l.jitter * rand.Float64())
	}
	l.next = slot.Add(step)

	return slot.Sub(now)
}
