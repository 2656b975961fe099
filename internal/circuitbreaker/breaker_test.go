package circuitbreaker

import (
	"testing"
	"time"

	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/testutil"
)

const key = "postgres"

func newBreaker(threshold int) (*CircuitBreaker, *testutil.FakeClock) {
	clock := testutil.NewFakeClock(time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC))
	return New(threshold, 5*time.Second).WithClock(clock), clock
}

func TestAllow_UnknownKey_Allowed(t *testing.T) {
	cb, _ := newBreaker(3)
	if err := cb.Allow(key); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestAllow_BelowThreshold_Allowed(t *testing.T) {
	cb, _ := newBreaker(3)
	cb.RecordFailure(key)
	cb.RecordFailure(key)
	if err := cb.Allow(key); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestAllow_AtThreshold_Open(t *testing.T) {
	cb, _ := newBreaker(3)
	cb.RecordFailure(key)
	cb.RecordFailure(key)
	if !cb.RecordFailure(key) {
		t.Error("expected the third failure to open the breaker")
	}
	if err := cb.Allow(key); err != ErrCircuitOpen {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestAllow_OpenAfterCooldown_HalfOpen(t *testing.T) {
	cb, clock := newBreaker(3)
	cb.RecordFailure(key)
	cb.RecordFailure(key)
	cb.RecordFailure(key)

	clock.Advance(4 * time.Second)
	if err := cb.Allow(key); err == nil {
		t.Fatal("expected ErrCircuitOpen before the cooldown elapsed")
	}

	clock.Advance(time.Second)
	if err := cb.Allow(key); err != nil {
		t.Fatalf("expected nil (probe allowed), got %v", err)
	}
	if err := cb.Allow(key); err == nil {
		t.Fatal("expected ErrCircuitOpen while half-open probe in flight")
	}
}

func TestRecordSuccess_ResetsToClose(t *testing.T) {
	cb, clock := newBreaker(3)
	cb.RecordFailure(key)
	cb.RecordFailure(key)
	cb.RecordFailure(key)
	clock.Advance(5 * time.Second)
	cb.Allow(key)
	cb.RecordSuccess(key)
	if err := cb.Allow(key); err != nil {
		t.Fatalf("expected nil after reset, got %v", err)
	}

	// The failure count starts over.
	cb.RecordFailure(key)
	if err := cb.Allow(key); err != nil {
		t.Fatalf("expected nil after a single new failure, got %v", err)
	}
}

func TestRecordFailure_HalfOpenReOpens(t *testing.T) {
	cb, clock := newBreaker(3)
	cb.RecordFailure(key)
	cb.RecordFailure(key)
	cb.RecordFailure(key)
	clock.Advance(5 * time.Second)
	cb.Allow(key)
	if !cb.RecordFailure(key) {
		t.Error("expected a failed probe to reopen the breaker")
	}
	if err := cb.Allow(key); err == nil {
		t.Fatal("expected ErrCircuitOpen after probe failure re-open")
	}
}

func TestRecordSuccess_ClosedState_NoOp(t *testing.T) {
	cb, _ := newBreaker(3)
	cb.RecordSuccess(key)
	if err := cb.Allow(key); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestIndependentKeys(t *testing.T) {
	cb, _ := newBreaker(2)
	cb.RecordFailure("primary")
	cb.RecordFailure("primary")
	if err := cb.Allow("primary"); err == nil {
		t.Fatal("expected primary open")
	}
	if err := cb.Allow("replica"); err != nil {
		t.Fatalf("expected replica allowed, got %v", err)
	}
}
