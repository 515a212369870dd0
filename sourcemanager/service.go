// Package sourcemanager owns the registry of configuration source URLs:
// loading sources.yaml, adding/removing sources at runtime, recording
// per-fetch performance, computing reputation, and auto-blacklisting
// sources whose reputation has stayed low too long.
//
// Structured as an Encore service the way the teacher structures
// cache-manager: a package-level singleton guarded by sync.Once, CRUD-style
// request/response types, and events published on state transitions.
package sourcemanager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vpnmerger/aggregator/config"
	"github.com/vpnmerger/aggregator/pkg/models"
	"github.com/vpnmerger/aggregator/pkg/pubsub"
	"github.com/vpnmerger/aggregator/pkg/readiness"
	"github.com/vpnmerger/aggregator/pkg/security"
)

// Service owns the in-memory source registry.
//
//encore:service
type Service struct {
	mu      sync.RWMutex
	sources map[string]*models.SourceMetadata
	loaded  bool
}

var svc *Service
var once sync.Once

func initService() (*Service, error) {
	once.Do(func() {
		svc = NewService()
	})
	return svc, nil
}

// NewService constructs an empty source registry. Exposed for the CLI and
// tests, which drive a Service directly rather than through the Encore
// package-level singleton.
func NewService() *Service {
	return &Service{sources: make(map[string]*models.SourceMetadata)}
}

// LoadFromConfig populates the registry from a parsed sources.yaml,
// replacing any existing entries. Used at process startup.
func (s *Service) LoadFromConfig(cfg *config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sources = make(map[string]*models.SourceMetadata)
	for tierName, tierCfg := range cfg.Sources {
		for _, entry := range tierCfg.URLs {
			if err := security.ValidateSourceURL(entry.URL); err != nil {
				return fmt.Errorf("loading source %q: %w", entry.URL, err)
			}
			s.sources[entry.URL] = models.NewSourceMetadata(entry.URL, models.Tier(tierName), entry.Weight)
		}
	}
	s.loaded = true
	return nil
}

// Initialized reports whether the package-level source registry has
// completed its initial sources.yaml load, used by the health endpoint's
// merger_initialized flag.
func Initialized() bool {
	if svc == nil {
		return false
	}
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return svc.loaded
}

// AddSourceRequest is the input to the add-source endpoint.
type AddSourceRequest struct {
	URL  string `json:"url"`
	Tier string `json:"tier,omitempty"`
}

// AddSourceResponse reports the outcome of adding a source.
type AddSourceResponse struct {
	Added  bool   `json:"added"`
	Reason string `json:"reason,omitempty"`
}

// AddSource validates and registers a new source URL, publishing a
// ConfigurationChangeEvent on success.
//
//encore:api public method=POST path=/api/v1/sources
func AddSource(ctx context.Context, req *AddSourceRequest) (*AddSourceResponse, error) {
	if !readiness.Ready() {
		return nil, readiness.ErrNotInitialized
	}
	s, err := initService()
	if err != nil {
		return nil, err
	}
	return s.AddSource(ctx, req)
}

func (s *Service) AddSource(ctx context.Context, req *AddSourceRequest) (*AddSourceResponse, error) {
	if err := security.ValidateSourceURL(req.URL); err != nil {
		return &AddSourceResponse{Added: false, Reason: "invalid: " + err.Error()}, nil
	}

	tier := models.Tier(req.Tier)
	if tier == "" {
		tier = models.TierBulk
	}

	s.mu.Lock()
	if _, exists := s.sources[req.URL]; exists {
		s.mu.Unlock()
		return &AddSourceResponse{Added: false, Reason: "Source already exists"}, nil
	}
	s.sources[req.URL] = models.NewSourceMetadata(req.URL, tier, 0.5)
	s.mu.Unlock()

	event := &pubsub.ConfigurationChangeEvent{
		Version:     pubsub.EventVersion1,
		Service:     "sourcemanager",
		URL:         req.URL,
		Action:      "add",
		TriggeredAt: time.Now(),
	}
	if err := event.Validate(); err == nil {
		_, _ = ConfigurationChangeTopic.Publish(ctx, event)
	}

	return &AddSourceResponse{Added: true}, nil
}

// RemoveSourceRequest identifies a source to remove.
type RemoveSourceRequest struct {
	URL string `json:"url"`
}

// RemoveSource deletes a source from the registry and publishes a removal
// ConfigurationChangeEvent so the fetcher invalidates its cached entries.
//
//encore:api public method=DELETE path=/api/v1/sources
func RemoveSource(ctx context.Context, req *RemoveSourceRequest) (*AddSourceResponse, error) {
	if !readiness.Ready() {
		return nil, readiness.ErrNotInitialized
	}
	s, err := initService()
	if err != nil {
		return nil, err
	}
	return s.RemoveSource(ctx, req.URL)
}

func (s *Service) RemoveSource(ctx context.Context, url string) (*AddSourceResponse, error) {
	s.mu.Lock()
	_, exists := s.sources[url]
	if exists {
		delete(s.sources, url)
	}
	s.mu.Unlock()

	if !exists {
		return &AddSourceResponse{Added: false, Reason: "not found"}, nil
	}

	event := &pubsub.ConfigurationChangeEvent{
		Version:     pubsub.EventVersion1,
		Service:     "sourcemanager",
		URL:         url,
		Action:      "remove",
		TriggeredAt: time.Now(),
	}
	if err := event.Validate(); err == nil {
		_, _ = ConfigurationChangeTopic.Publish(ctx, event)
	}
	return &AddSourceResponse{Added: true}, nil
}

// SourcesResponse lists registered sources ordered by tier priority then URL.
type SourcesResponse struct {
	Sources []SourceView `json:"sources"`
}

// SourceView is the external representation of a registered source.
type SourceView struct {
	URL         string  `json:"url"`
	Tier        string  `json:"tier"`
	Weight      float64 `json:"weight"`
	Enabled     bool    `json:"enabled"`
	Blacklisted bool    `json:"blacklisted"`
	Reputation  float64 `json:"reputation"`
	SuccessRate float64 `json:"success_rate"`
}

// GetActiveSources lists every enabled, non-blacklisted source, ordered by
// tier priority (premium first) then URL.
//
//encore:api public method=GET path=/api/v1/sources
func GetActiveSources(ctx context.Context) (*SourcesResponse, error) {
	if !readiness.Ready() {
		return nil, readiness.ErrNotInitialized
	}
	s, err := initService()
	if err != nil {
		return nil, err
	}
	return s.GetActiveSources(), nil
}

func (s *Service) GetActiveSources() *SourcesResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	views := make([]SourceView, 0, len(s.sources))
	for _, meta := range s.sources {
		if !meta.Enabled || meta.Blacklisted {
			continue
		}
		views = append(views, SourceView{
			URL:         meta.URL,
			Tier:        string(meta.Tier),
			Weight:      meta.Weight,
			Enabled:     meta.Enabled,
			Blacklisted: meta.Blacklisted,
			Reputation:  meta.ReputationScore(now),
			SuccessRate: meta.SuccessRate(),
		})
	}
	sort.Slice(views, func(i, j int) bool {
		ti, tj := models.Tier(views[i].Tier).Priority(), models.Tier(views[j].Tier).Priority()
		if ti != tj {
			return ti > tj
		}
		return views[i].URL < views[j].URL
	})
	return &SourcesResponse{Sources: views}
}

// ReputationOf returns the current reputation score for url, for callers
// (the processor's initial scoring, per §4.4) that need a single source's
// score without listing the whole registry. Unknown URLs score 0.5,
// matching the neutral starting weight NewSourceMetadata assigns.
func (s *Service) ReputationOf(url string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.sources[url]
	if !ok {
		return 0.5
	}
	return meta.ReputationScore(time.Now())
}

// UpdatePerformance records a fetch outcome for url, updates reputation, and
// auto-blacklists the source if its reputation has stayed below threshold
// for lowReputationStreak consecutive samples.
func (s *Service) UpdatePerformance(ctx context.Context, url string, success bool, configCount, responseTimeMs int) error {
	s.mu.Lock()
	meta, exists := s.sources[url]
	if !exists {
		s.mu.Unlock()
		return errors.New("source not found")
	}
	now := time.Now()
	meta.RecordPerformance(models.PerformanceRecord{
		Success:        success,
		ConfigCount:    configCount,
		ResponseTimeMs: responseTimeMs,
		Timestamp:      now,
	})
	shouldBlacklist := meta.NoteReputationSample(now)
	if shouldBlacklist && !meta.Blacklisted {
		meta.Blacklisted = true
		meta.BlacklistReason = "low_reputation"
	}
	blacklistedNow := shouldBlacklist && meta.Blacklisted
	s.mu.Unlock()

	if blacklistedNow {
		event := &pubsub.SourceBlacklistedEvent{
			Version:     pubsub.EventVersion1,
			URL:         url,
			Reason:      "low_reputation",
			TriggeredAt: now,
		}
		if err := event.Validate(); err == nil {
			_, _ = SourceBlacklistedTopic.Publish(ctx, event)
		}
	}
	return nil
}

// StatisticsResponse summarizes the registry for the statistics endpoint.
type StatisticsResponse struct {
	TotalSources      int     `json:"total_sources"`
	SuccessfulSources int     `json:"successful_sources"`
	BlacklistedSources int    `json:"blacklisted_sources"`
	SuccessRate       float64 `json:"success_rate"`
}

// GetStatistics summarizes the current registry state.
//
//encore:api public method=GET path=/api/v1/statistics
func GetStatistics(ctx context.Context) (*StatisticsResponse, error) {
	if !readiness.Ready() {
		return nil, readiness.ErrNotInitialized
	}
	s, err := initService()
	if err != nil {
		return nil, err
	}
	return s.GetStatistics(), nil
}

func (s *Service) GetStatistics() *StatisticsResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := &StatisticsResponse{TotalSources: len(s.sources)}
	for _, meta := range s.sources {
		if meta.Blacklisted {
			resp.BlacklistedSources++
			continue
		}
		if meta.SuccessRate() > 0 {
			resp.SuccessfulSources++
		}
	}
	if resp.TotalSources > 0 {
		resp.SuccessRate = float64(resp.SuccessfulSources) / float64(resp.TotalSources)
	}
	return resp
}
