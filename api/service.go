// Package api supplies the cross-cutting endpoints that do not belong to
// any single domain service: health, configuration listing, and bulk URL
// validation. It generalizes the teacher's cache-manager API-endpoint
// idiom ("//encore:api public method=... path=...", "if svc == nil {
// return 503-equivalent }") to the handful of endpoints spec §6 lists that
// sit across sourcemanager/fetcher/jobmanager/pipeline rather than inside
// one of them.
package api

import (
	"context"
	"sort"

	"github.com/vpnmerger/aggregator/pipeline"
	"github.com/vpnmerger/aggregator/pkg/models"
	pkgreadiness "github.com/vpnmerger/aggregator/pkg/readiness"
	"github.com/vpnmerger/aggregator/pkg/security"
	"github.com/vpnmerger/aggregator/pkg/utils"
	"github.com/vpnmerger/aggregator/sourcemanager"
)

// Version is the build-reported version string, matching cmd/vpnmerger's
// own version variable; both are set via -ldflags at build time.
var Version = "dev"

// ErrNotInitialized is returned by endpoints that depend on a service
// component that has not finished starting up, surfaced as a 503 the same
// way the teacher's cache-manager guards return one for a nil svc. Backed
// by pkg/readiness so sourcemanager's and jobmanager's own package-level
// endpoints return the exact same error.
var ErrNotInitialized = pkgreadiness.ErrNotInitialized

// HealthResponse reports process readiness. Components is additive beyond
// spec §6's required {status, version, merger_initialized} shape,
// motivated by original_source's health_checker.py per-service reporting.
type HealthResponse struct {
	Status            string            `json:"status"`
	Version           string            `json:"version"`
	MergerInitialized bool              `json:"merger_initialized"`
	Components        map[string]string `json:"components"`
}

// lastConfigurationsFunc is overridable by tests; in production it reads
// the real pipeline singleton's most recent run.
var lastConfigurationsFunc = pipeline.LastConfigurations

// readiness is overridable by tests; in production it reports whether the
// sourcemanager singleton and the pipeline singleton have each been
// initialized.
var readiness = func() map[string]bool {
	return map[string]bool{
		"sourcemanager": sourcemanager.Initialized(),
		"pipeline":      pipeline.Initialized(),
	}
}

// Health reports overall and per-component readiness.
//
//encore:api public method=GET path=/health
func Health(ctx context.Context) (*HealthResponse, error) {
	components := readiness()
	allUp := true
	view := make(map[string]string, len(components))
	for name, up := range components {
		if up {
			view[name] = "ok"
		} else {
			view[name] = "not_initialized"
			allUp = false
		}
	}
	status := "healthy"
	if !allUp {
		status = "degraded"
	}
	return &HealthResponse{
		Status:            status,
		Version:           Version,
		MergerInitialized: allUp,
		Components:        view,
	}, nil
}

// ValidateURLsRequest is the input to the bulk URL validation endpoint.
type ValidateURLsRequest struct {
	URLs []string `json:"urls"`
}

// URLValidation is the per-URL outcome.
type URLValidation struct {
	URL    string `json:"url"`
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// ValidateURLsResponse wraps the bulk validation results.
type ValidateURLsResponse struct {
	Checked int             `json:"checked"`
	Results []URLValidation `json:"results"`
}

// ValidateURLs checks each URL against the same security policy the
// source manager applies when loading sources.yaml or adding a source at
// runtime, so the CLI's `validate` subcommand and this endpoint never
// drift from what add_source actually enforces.
//
//encore:api public method=POST path=/api/v1/sources/validate-urls
func ValidateURLs(ctx context.Context, req *ValidateURLsRequest) (*ValidateURLsResponse, error) {
	resp := &ValidateURLsResponse{Checked: len(req.URLs)}
	for _, u := range req.URLs {
		v := URLValidation{URL: u, Valid: true}
		if err := security.ValidateSourceURL(u); err != nil {
			v.Valid = false
			v.Reason = err.Error()
		}
		resp.Results = append(resp.Results, v)
	}
	return resp, nil
}

// ConfigurationsRequest carries the pagination and filter parameters from
// the query string.
type ConfigurationsRequest struct {
	Limit      int     `query:"limit"`
	Offset     int     `query:"offset"`
	Protocol   string  `query:"protocol"`
	Location   string  `query:"location"`
	MinQuality float64 `query:"min_quality"`
}

// ConfigurationsResponse is the paginated listing; Total is the
// pre-pagination match count, per spec §6.
type ConfigurationsResponse struct {
	Total   int                        `json:"total"`
	Configs []*models.VPNConfiguration `json:"configs"`
}

// Configurations lists the configurations produced by the most recent
// completed pipeline run, filtered by protocol, a glob/regex location
// pattern matched against the "location" metadata key (pkg/utils.
// MatchPattern, the same matcher the teacher uses for cache-key tag
// filtering), and a minimum quality score, then paginated.
//
//encore:api public method=GET path=/api/v1/configurations
func Configurations(ctx context.Context, req *ConfigurationsRequest) (*ConfigurationsResponse, error) {
	all := lastConfigurationsFunc()

	filtered := make([]*models.VPNConfiguration, 0, len(all))
	for _, cfg := range all {
		if req.Protocol != "" && string(cfg.Protocol) != req.Protocol {
			continue
		}
		if req.MinQuality > 0 && cfg.QualityScore < req.MinQuality {
			continue
		}
		if req.Location != "" {
			loc, _ := cfg.GetMetadata("location")
			matched, err := utils.MatchPattern(req.Location, loc)
			if err != nil || !matched {
				continue
			}
		}
		filtered = append(filtered, cfg)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].QualityScore > filtered[j].QualityScore
	})

	total := len(filtered)
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	return &ConfigurationsResponse{Total: total, Configs: filtered[offset:end]}, nil
}
