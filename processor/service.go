// Package processor implements the validation, security-gating,
// deduplication, enhancement, and scoring stage of the pipeline (spec
// §4.4), sitting between the parser bank and the output formatters.
//
// Structured as an Encore service the way sourcemanager and fetcher are:
// a package-level singleton plus //encore:api endpoints, so the job manager
// and HTTP surface can invoke it without a direct dependency cycle back to
// the orchestrator.
package processor

import (
	"context"
	"sync"

	"github.com/vpnmerger/aggregator/pkg/logging"
	"github.com/vpnmerger/aggregator/pkg/models"
	"github.com/vpnmerger/aggregator/pkg/security"
)

// Service runs the processing stage. ReputationOf resolves a source URL to
// its current reputation score for initial scoring; it is set by main to a
// closure over the source manager so this package never imports it
// directly (spec §9: invert ownership, no cyclic references).
//
//encore:service
type Service struct {
	mu           sync.Mutex
	enhancer     *Enhancer
	reputationOf func(sourceURL string) float64
	log          *logging.Logger
}

var svc *Service
var once sync.Once

func initService() (*Service, error) {
	once.Do(func() {
		svc = NewService(nil, nil, nil)
	})
	return svc, nil
}

// NewService constructs a processor. ml and geo may be nil to disable those
// enhancement stages; reputationOf may be nil, in which case every
// configuration scores as if its source had reputation 0.5.
func NewService(ml MLPredictor, geo GeoOptimizer, reputationOf func(string) float64) *Service {
	if reputationOf == nil {
		reputationOf = func(string) float64 { return 0.5 }
	}
	return &Service{
		enhancer:     NewEnhancer(ml, geo),
		reputationOf: reputationOf,
		log:          logging.New("processor"),
	}
}

// SetEnhancers swaps in real ML/geo implementations after construction.
func (s *Service) SetEnhancers(ml MLPredictor, geo GeoOptimizer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enhancer = NewEnhancer(ml, geo)
}

// ProcessRequest is the input to the process-batch endpoint.
type ProcessRequest struct {
	Configs       []*models.VPNConfiguration `json:"configs"`
	DedupStrategy string                     `json:"dedup_strategy,omitempty"`
	Region        string                     `json:"region,omitempty"`
}

// ProcessResponse reports the outcome of a processing batch.
type ProcessResponse struct {
	Configs     []*models.VPNConfiguration `json:"configs"`
	InputCount  int                        `json:"input_count"`
	DroppedUnsafe int                      `json:"dropped_unsafe"`
	Deduplicated int                       `json:"deduplicated"`
}

// Process runs the full stage: security gate, dedup, enhancement, scoring.
//
//encore:api private method=POST path=/internal/process
func Process(ctx context.Context, req *ProcessRequest) (*ProcessResponse, error) {
	s, err := initService()
	if err != nil {
		return nil, err
	}
	strategy := DedupStrategy(req.DedupStrategy)
	if strategy == "" {
		strategy = StrategyExact
	}
	return s.Process(ctx, req.Configs, strategy, req.Region), nil
}

// Process is the programmatic entry point used by the job manager.
func (s *Service) Process(ctx context.Context, configs []*models.VPNConfiguration, strategy DedupStrategy, region string) *ProcessResponse {
	resp := &ProcessResponse{InputCount: len(configs)}

	safe := make([]*models.VPNConfiguration, 0, len(configs))
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			s.log.Debug("dropping invalid configuration", map[string]string{"error": err.Error()})
			resp.DroppedUnsafe++
			continue
		}
		if err := security.ValidateConfiguration(cfg); err != nil {
			s.log.Info("security gate rejected configuration", map[string]string{"server": cfg.Server, "reason": err.Error()})
			resp.DroppedUnsafe++
			continue
		}
		safe = append(safe, cfg)
	}

	ApplyInitialScores(safe, s.reputationOf)

	deduped := Deduplicate(safe, strategy)
	resp.Deduplicated = len(safe) - len(deduped)

	s.mu.Lock()
	enhancer := s.enhancer
	s.mu.Unlock()
	resp.Configs = enhancer.Enhance(ctx, deduped, region)

	return resp
}
