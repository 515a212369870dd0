package integration

import (
	"net/http"
	"testing"
)

type addSourceResponse struct {
	Added  bool   `json:"added"`
	Reason string `json:"reason,omitempty"`
}

type clearCacheResponse struct {
	Cleared int `json:"cleared"`
}

// TestSourceCacheInvalidationFlow exercises the source-add and cache-clear
// endpoints: adding a source must not error, a second add of the same URL
// must report added=false, and clearing the cache afterwards must succeed.
func TestSourceCacheInvalidationFlow(t *testing.T) {
	requireService(t)

	t.Run("POST /api/v1/sources", func(t *testing.T) {
		status, body := doJSON(t, http.MethodPost, "/api/v1/sources", map[string]any{
			"url":  "https://example.test/integration-cache-flow.txt",
			"tier": "bulk",
		})
		assertStatusIn(t, status, 200)

		var resp addSourceResponse
		mustUnmarshalJSON(t, body, &resp)
		if !resp.Added {
			t.Fatalf("expected added=true, got reason=%q", resp.Reason)
		}
	})

	t.Run("POST /api/v1/sources - duplicate (expected error)", func(t *testing.T) {
		status, body := doJSON(t, http.MethodPost, "/api/v1/sources", map[string]any{
			"url":  "https://example.test/integration-cache-flow.txt",
			"tier": "bulk",
		})
		assertStatusIn(t, status, 200, 400)

		var resp addSourceResponse
		mustUnmarshalJSON(t, body, &resp)
		if resp.Added {
			t.Fatalf("expected added=false on duplicate")
		}
	})

	t.Run("POST /api/v1/cache/clear", func(t *testing.T) {
		status, body := doJSON(t, http.MethodPost, "/api/v1/cache/clear", nil)
		assertStatusIn(t, status, 200)

		var resp clearCacheResponse
		mustUnmarshalJSON(t, body, &resp)
		if resp.Cleared < 0 {
			t.Fatalf("expected non-negative cleared count")
		}
	})
}
