// Package readiness tracks whether the aggregator's "merger" — the wired
// combination of source registry, fetcher, processor, and job runner that
// pipeline.Configure assembles at startup — has finished initializing.
//
// Every endpoint that depends on the merger consults this before doing real
// work, per spec §6: "All endpoints that depend on the merger return 503
// {detail:"Merger not initialized"} before initialization completes." It is
// a tiny, dependency-free package (rather than living on pipeline directly)
// so sourcemanager and jobmanager can consult it too without an import
// cycle back through pipeline, which itself depends on them.
package readiness

import (
	"errors"
	"sync/atomic"
)

// ErrNotInitialized is the exact error surfaced as the 503 response body's
// "detail" field by every merger-dependent endpoint.
var ErrNotInitialized = errors.New("Merger not initialized")

var ready atomic.Bool

// MarkReady records that the merger has finished initializing. Called once
// by pipeline.Configure after source loading and pipeline wiring complete.
func MarkReady() {
	ready.Store(true)
}

// Ready reports whether the merger has finished initializing.
func Ready() bool {
	return ready.Load()
}

// Reset clears readiness. Exposed for tests that need to simulate a
// not-yet-initialized process within a single test binary.
func Reset() {
	ready.Store(false)
}
