package noderpc

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitedError is returned when the node answers with a 429-class
// response. It is never retried by the client's own backoff loop;
// callers are expected to honor ResetAt before resubmitting.
type RateLimitedError struct {
	Endpoint string
	ResetAt  time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited by node on %s, resets at %s",
		e.Endpoint, e.ResetAt.Format(time.RFC3339))
}

// RequestError is a transport or server failure for a single endpoint.
// Status is zero for pure network errors.
type RequestError struct {
	Endpoint string
	Status   int
	Err      error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("request to %s failed: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("request to %s failed with status %d", e.Endpoint, e.Status)
}

func (e *RequestError) Unwrap() error { return e.Err }

// ValidationError rejects malformed input before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DecodeError is returned when a node response does not match the
// expected shape. Malformed payloads fail loudly instead of being
// silently defaulted to zero values.
type DecodeError struct {
	Endpoint string
	Field    string
	Reason   string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode %s from %s: %s", e.Field, e.Endpoint, e.Reason)
}

// IsRateLimited reports whether err is a rate-limit rejection and, if
// so, when the window resets.
func IsRateLimited(err error) (time.Time, bool) {
	var rle *RateLimitedError
	if errors.As(err, &rle) {
		return rle.ResetAt, true
	}
	return time.Time{}, false
}
