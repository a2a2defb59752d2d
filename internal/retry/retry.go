package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy describes an exponential backoff retry schedule.
// The delay before attempt n (zero-based) is
// BaseDelay * 2^n plus a random jitter of up to BaseDelay * JitterFraction.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	JitterFraction float64
}

// DefaultPolicy is a conservative schedule suitable for public endpoints.
var DefaultPolicy = Policy{
	MaxAttempts:    3,
	BaseDelay:      200 * time.Millisecond,
	JitterFraction: 0.1,
}

// Delay returns the backoff delay before retrying after the given attempt.
func (p Policy) Delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultPolicy.BaseDelay
	}
	delay := base << uint(attempt)
	if p.JitterFraction > 0 {
		jitterMax := float64(base) * p.JitterFraction
		delay += time.Duration(rand.Float64() * jitterMax)
	}
	return delay
}

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps an error so Do stops retrying and returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Do runs fn under the policy, sleeping between attempts.
// It returns the first success, the first permanent error, or the last
// error once attempts are exhausted. Context cancellation between
// attempts stops the loop; an in-flight attempt is never interrupted
// mid-call, fn is expected to honor ctx itself.
func Do[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}

		var pe *permanentError
		if errors.As(err, &pe) {
			return zero, pe.err
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		if attempt < maxAttempts-1 {
			timer := time.NewTimer(p.Delay(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return zero, lastErr
}
