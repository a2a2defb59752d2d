package breaker

import (
	"fmt"
	"sync"
	"time"
)

// State is the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// OpenError is returned when the circuit rejects a call without
// attempting it. It carries enough state for callers to decide how
// long to back off.
type OpenError struct {
	Failures      int
	LastFailureAt time.Time
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit open after %d failures, last at %s",
		e.Failures, e.LastFailureAt.Format(time.RFC3339))
}

// Config holds circuit breaker configuration.
type Config struct {
	FailureThreshold int
	Cooldown         time.Duration
}

// Breaker stops calls to a failing dependency after consecutive
// failures. While open it rejects immediately; once the cooldown has
// elapsed exactly one trial call is admitted, its outcome decides
// whether the circuit closes again.
type Breaker struct {
	cfg           Config
	state         State
	failures      int
	lastFailureAt time.Time
	trialInFlight bool
	now           func() time.Time
	mu            sync.Mutex
}

// New creates a Breaker in the closed state.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}
}

// Allow reports whether a call may proceed. It returns nil when the
// call is admitted and an *OpenError when the circuit rejects it.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.lastFailureAt) >= b.cfg.Cooldown {
			b.state = StateHalfOpen
			b.trialInFlight = true
			return nil
		}
		return &OpenError{Failures: b.failures, LastFailureAt: b.lastFailureAt}
	case StateHalfOpen:
		// One trial at a time; concurrent callers keep failing fast.
		if b.trialInFlight {
			return &OpenError{Failures: b.failures, LastFailureAt: b.lastFailureAt}
		}
		b.trialInFlight = true
		return nil
	default:
		return nil
	}
}

// RecordSuccess closes the circuit and resets the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
	b.trialInFlight = false
}

// RecordFailure counts a terminal failure. Reaching the threshold while
// closed opens the circuit; any failure while half-open reopens it and
// restarts the cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailureAt = b.now()
	b.failures++

	switch b.state {
	case StateClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.state = StateOpen
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.trialInFlight = false
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
