// Circuit breaker per origin host: after a run of consecutive failures the
// breaker opens and fails fast without attempting the network call,
// matching spec §7's "circuit-open errors: fail fast, do not count as new
// failures." After a cooldown it half-opens to probe with a single trial
// request before fully closing again.
//
// Not present in the teacher, which had no concept of an unreliable
// upstream origin (cache-manager's OriginFetcher was assumed reliable);
// modeled here as an explicit state machine in the idiom of the teacher's
// other small stateful types (L1Cache, RequestCoalescer): a mutex-guarded
// struct with pure state-transition methods.
package fetcher

import (
	"sync"
	"time"
)

// BreakerState is one of the three circuit breaker states.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// CircuitBreaker guards a single origin host.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            BreakerState
	failureThreshold int
	cooldown         time.Duration
	consecutiveFails int
	openedAt         time.Time
	halfOpenInFlight bool
}

// NewCircuitBreaker creates a breaker that opens after failureThreshold
// consecutive failures and stays open for cooldown before probing.
func NewCircuitBreaker(failureThreshold int, cooldown time.Duration) *CircuitBreaker {
	if failureThreshold < 1 {
		failureThreshold = 5
	}
	return &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
	}
}

// Allow reports whether a request may proceed, transitioning OPEN->HALF_OPEN
// once the cooldown has elapsed. Only one half-open probe is allowed in
// flight at a time.
func (b *CircuitBreaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Sub(b.openedAt) >= b.cooldown {
			b.state = StateHalfOpen
			b.halfOpenInFlight = true
			return true
		}
		return false
	case StateHalfOpen:
		if b.halfOpenInFlight {
			return false
		}
		b.halfOpenInFlight = true
		return true
	}
	return true
}

// RecordSuccess closes the breaker and resets the failure streak.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.consecutiveFails = 0
	b.halfOpenInFlight = false
}

// RecordFailure increments the failure streak, opening the breaker once the
// threshold is reached or immediately re-opening on a failed half-open probe.
// It reports whether this call is what transitioned the breaker to OPEN.
func (b *CircuitBreaker) RecordFailure(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.state = StateOpen
		b.openedAt = now
		b.halfOpenInFlight = false
		return true
	}

	b.consecutiveFails++
	b.halfOpenInFlight = false
	if b.consecutiveFails >= b.failureThreshold && b.state != StateOpen {
		b.state = StateOpen
		b.openedAt = now
		return true
	}
	return false
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// BreakerRegistry lazily creates and looks up a CircuitBreaker per host.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	threshold int
	cooldown  time.Duration
}

// NewBreakerRegistry creates a registry whose breakers share the given
// threshold/cooldown configuration.
func NewBreakerRegistry(threshold int, cooldown time.Duration) *BreakerRegistry {
	return &BreakerRegistry{
		breakers:  make(map[string]*CircuitBreaker),
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// Get returns the breaker for host, creating it on first use.
func (r *BreakerRegistry) Get(host string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[host]
	if !ok {
		b = NewCircuitBreaker(r.threshold, r.cooldown)
		r.breakers[host] = b
	}
	return b
}
