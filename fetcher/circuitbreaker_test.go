package fetcher

import (
	"testing"
	"time"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	b := NewCircuitBreaker(3, time.Minute)
	now := time.Now()
	for i := 0; i < 3; i++ {
		if !b.Allow(now) {
			t.Fatalf("expected allow before threshold, attempt %d", i)
		}
		b.RecordFailure(now)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected state open, got %v", b.State())
	}
	if b.Allow(now) {
		t.Fatal("expected breaker to short-circuit while open")
	}
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	b := NewCircuitBreaker(1, 10*time.Millisecond)
	now := time.Now()
	b.Allow(now)
	b.RecordFailure(now)
	if b.State() != StateOpen {
		t.Fatalf("expected open after 1 failure, got %v", b.State())
	}

	later := now.Add(20 * time.Millisecond)
	if !b.Allow(later) {
		t.Fatal("expected half-open probe to be allowed after cooldown")
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half_open, got %v", b.State())
	}
	b.RecordSuccess()
	if b.State() != StateClosed {
		t.Fatalf("expected closed after successful probe, got %v", b.State())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewCircuitBreaker(1, 10*time.Millisecond)
	now := time.Now()
	b.Allow(now)
	b.RecordFailure(now)

	later := now.Add(20 * time.Millisecond)
	b.Allow(later)
	b.RecordFailure(later)
	if b.State() != StateOpen {
		t.Fatalf("expected reopen after failed probe, got %v", b.State())
	}
}

func TestBreakerRegistryPerHost(t *testing.T) {
	r := NewBreakerRegistry(2, time.Minute)
	a := r.Get("host-a")
	b := r.Get("host-b")
	if a == b {
		t.Fatal("expected distinct breakers per host")
	}
	if r.Get("host-a") != a {
		t.Fatal("expected same breaker instance on repeat lookup")
	}
}
