package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/vpnmerger/aggregator/formatters"
	"github.com/vpnmerger/aggregator/jobmanager"
	"github.com/vpnmerger/aggregator/pkg/middleware"
	"github.com/vpnmerger/aggregator/pkg/models"
	pkgreadiness "github.com/vpnmerger/aggregator/pkg/readiness"
	"github.com/vpnmerger/aggregator/sourcemanager"
)

// ingressLimiter bounds overall HTTP request volume per client IP, ahead of
// any per-source or per-host limiting the fetcher does against VPN
// subscription origins. 20 req/s with a burst of 40 is generous for a
// human operator or a CI pipeline hitting this API, while still protecting
// the process from an accidental hammering loop.
var ingressLimiter = middleware.NewTokenBucket(20, 40)

// NewMux builds a standalone net/http handler exposing spec §6's HTTP API
// surface in one process, for `vpnmerger server`. In an Encore deployment
// (`encore run`/`encore build`) the same operations are reached instead
// through the //encore:api endpoints declared directly on sourcemanager,
// fetcher, jobmanager, and this package; NewMux re-dispatches to the exact
// same Go functions so the two entry points never drift in behavior.
func NewMux(sources *sourcemanager.Service, jobs *jobmanager.Service) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		resp, _ := Health(r.Context())
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("/api/v1/statistics", func(w http.ResponseWriter, r *http.Request) {
		if !requireMerger(w) {
			return
		}
		writeJSON(w, http.StatusOK, sources.GetStatistics())
	})

	mux.HandleFunc("/api/v1/sources", func(w http.ResponseWriter, r *http.Request) {
		if !requireMerger(w) {
			return
		}
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, sources.GetActiveSources())
		case http.MethodPost:
			var req sourcemanager.AddSourceRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			resp, err := sources.AddSource(r.Context(), &req)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			status := http.StatusOK
			if !resp.Added {
				status = http.StatusBadRequest
			}
			writeJSON(w, status, resp)
		case http.MethodDelete:
			url := r.URL.Query().Get("url")
			resp, err := sources.RemoveSource(r.Context(), url)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			status := http.StatusOK
			if !resp.Added {
				status = http.StatusBadRequest
			}
			writeJSON(w, status, resp)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/sources/validate-urls", func(w http.ResponseWriter, r *http.Request) {
		var req ValidateURLsRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		resp, _ := ValidateURLs(r.Context(), &req)
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("/api/v1/configurations", func(w http.ResponseWriter, r *http.Request) {
		if !requireMerger(w) {
			return
		}
		q := r.URL.Query()
		req := &ConfigurationsRequest{
			Limit:      queryInt(q, "limit", 100),
			Offset:     queryInt(q, "offset", 0),
			Protocol:   q.Get("protocol"),
			Location:   q.Get("location"),
			MinQuality: queryFloat(q, "min_quality", 0),
		}
		resp, _ := Configurations(r.Context(), req)
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("/api/v1/pipeline/run", func(w http.ResponseWriter, r *http.Request) {
		if !requireMerger(w) {
			return
		}
		var req jobmanager.SubmitRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Type == "" {
			req.Type = "process"
		}
		if err := validateRequestedFormats(req.Parameters); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		resp, err := jobs.Submit(r.Context(), models.JobType(req.Type), req.Parameters)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, resp)
	})

	mux.HandleFunc("/api/v1/pipeline/status/", func(w http.ResponseWriter, r *http.Request) {
		if !requireMerger(w) {
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/api/v1/pipeline/status/")
		job, ok := jobs.Store().Get(id)
		if !ok {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeJSON(w, http.StatusOK, job)
	})

	mux.HandleFunc("/api/v1/pipeline/cancel", func(w http.ResponseWriter, r *http.Request) {
		if !requireMerger(w) {
			return
		}
		var req jobmanager.CancelRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		writeJSON(w, http.StatusOK, jobs.Cancel(req.JobID))
	})

	mux.HandleFunc("/api/v1/cache/clear", func(w http.ResponseWriter, r *http.Request) {
		if !requireMerger(w) {
			return
		}
		resp, err := ClearCacheFunc(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})

	return middleware.RequestLogger(middleware.RateLimitMiddleware(mux, ingressLimiter, middleware.KeyByIP))
}

// requireMerger writes the spec §6 503 response and reports false if the
// merger (source registry + fetcher + processor + job runner, wired by
// pipeline.Configure) has not finished initializing yet. Handlers that
// depend on the merger call this first and return immediately if it
// reports false.
func requireMerger(w http.ResponseWriter) bool {
	if !pkgreadiness.Ready() {
		writeError(w, http.StatusServiceUnavailable, pkgreadiness.ErrNotInitialized.Error())
		return false
	}
	return true
}

// validateRequestedFormats rejects a pipeline run synchronously if it asks
// for an unknown output format, per spec §6 ("unknown format -> 400"),
// rather than letting the job start and fail asynchronously.
func validateRequestedFormats(params map[string]interface{}) error {
	raw, ok := params["formats"].([]interface{})
	if !ok {
		return nil
	}
	formats := make([]string, 0, len(raw))
	for _, f := range raw {
		if s, ok := f.(string); ok {
			formats = append(formats, s)
		}
	}
	return formatters.Validate(formats)
}

// ClearCacheFunc is overridden by main to point at the concrete fetcher
// instance; kept as an indirection so api does not import fetcher (which
// would otherwise need its own singleton wiring duplicated here).
var ClearCacheFunc = func(ctx context.Context) (interface{}, error) {
	return map[string]int{"cleared": 0}, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "missing request body")
		return false
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func queryInt(q map[string][]string, key string, def int) int {
	v := firstOr(q, key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryFloat(q map[string][]string, key string, def float64) float64 {
	v := firstOr(q, key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func firstOr(q map[string][]string, key, def string) string {
	if vals, ok := q[key]; ok && len(vals) > 0 {
		return vals[0]
	}
	return def
}
