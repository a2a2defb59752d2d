package breaker

import (
	"errors"
	"testing"
	"time"
)

func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *time.Time) {
	b := New(Config{FailureThreshold: threshold, Cooldown: cooldown})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	for i := 0; i < 3; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("Allow before threshold: %v", err)
		}
		b.RecordFailure()
	}

	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	err := b.Allow()
	var oe *OpenError
	if !errors.As(err, &oe) {
		t.Fatalf("Allow = %v, want *OpenError", err)
	}
	if oe.Failures != 3 {
		t.Errorf("Failures = %d, want 3", oe.Failures)
	}
}

func TestBreaker_SingleTrialAfterCooldown(t *testing.T) {
	b, now := newTestBreaker(2, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	// Still within cooldown.
	*now = now.Add(30 * time.Second)
	if err := b.Allow(); err == nil {
		t.Fatal("Allow during cooldown should fail")
	}

	// Cooldown elapsed: exactly one caller gets through.
	*now = now.Add(31 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("trial Allow: %v", err)
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open", b.State())
	}
	if err := b.Allow(); err == nil {
		t.Fatal("second concurrent Allow during half-open should fail")
	}
}

func TestBreaker_TrialSuccessCloses(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)

	b.RecordFailure()
	*now = now.Add(2 * time.Minute)
	if err := b.Allow(); err != nil {
		t.Fatalf("trial Allow: %v", err)
	}
	b.RecordSuccess()

	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow after close: %v", err)
	}
}

func TestBreaker_TrialFailureReopens(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)

	b.RecordFailure()
	*now = now.Add(2 * time.Minute)
	if err := b.Allow(); err != nil {
		t.Fatalf("trial Allow: %v", err)
	}
	b.RecordFailure()

	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	// Cooldown restarted from the trial failure.
	*now = now.Add(30 * time.Second)
	if err := b.Allow(); err == nil {
		t.Fatal("Allow during restarted cooldown should fail")
	}
	*now = now.Add(31 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow after restarted cooldown: %v", err)
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed after reset", b.State())
	}
}
