// Per-host politeness limiting, so a large batch of sources on the same
// domain doesn't hammer it faster than a browser would. Uses
// golang.org/x/time/rate rather than the hand-rolled token bucket in
// pkg/middleware (which guards the HTTP API's inbound request rate, a
// distinct concern) to avoid maintaining two token-bucket implementations
// for the same algorithm.
package fetcher

import (
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiterRegistry lazily creates a token-bucket limiter per host.
type HostLimiterRegistry struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewHostLimiterRegistry creates a registry where each host is allowed rps
// requests per second with the given burst allowance.
func NewHostLimiterRegistry(rps float64, burst int) *HostLimiterRegistry {
	if rps <= 0 {
		rps = 2
	}
	if burst < 1 {
		burst = 1
	}
	return &HostLimiterRegistry{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// Get returns the limiter for host, creating it on first use.
func (r *HostLimiterRegistry) Get(host string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[host]
	if !ok {
		l = rate.NewLimiter(r.rps, r.burst)
		r.limiters[host] = l
	}
	return l
}
