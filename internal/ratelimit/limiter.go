package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter admits a bounded number of calls per fixed time window.
// The window resets on the first admission after its boundary, so an
// idle limiter carries no state forward.
type Limiter struct {
	limit       int
	window      time.Duration
	windowStart time.Time
	count       int
	now         func() time.Time
	mu          sync.Mutex
}

// New creates a Limiter admitting limit calls per window.
func New(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow reports whether a call is admitted right now without blocking.
// When rejected it returns the time at which the current window resets.
func (l *Limiter) Allow() (bool, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.admit(l.now())
}

// admit performs the check-then-increment under l.mu.
func (l *Limiter) admit(now time.Time) (bool, time.Time) {
	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.window {
		l.windowStart = now
		l.count = 0
	}
	if l.count >= l.limit {
		return false, l.windowStart.Add(l.window)
	}
	l.count++
	return true, l.windowStart.Add(l.window)
}

// Wait blocks until a call is admitted or ctx is done. Callers queued
// behind a full window sleep until the window boundary and re-contend.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		ok, reset := l.admit(now)
		l.mu.Unlock()

		if ok {
			return nil
		}

		timer := time.NewTimer(reset.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
