// Package pipeline wires the source manager, fetcher, parser bank,
// processor, and output formatters into the single end-to-end "process"
// job body that the job manager's RunFunc contract expects.
//
// The teacher never has an orchestration package of its own: cache-manager,
// invalidation, and warming each own one concern and talk to each other
// only through pubsub. This package plays the same connective role the
// teacher leaves to its Encore service graph, but since the pipeline here
// is a single synchronous batch job rather than independent services
// reacting to events, it is expressed as one function run inside
// jobmanager's worker pool instead of another pubsub hop.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vpnmerger/aggregator/config"
	"github.com/vpnmerger/aggregator/formatters"
	"github.com/vpnmerger/aggregator/jobmanager"
	"github.com/vpnmerger/aggregator/parsers"
	"github.com/vpnmerger/aggregator/pkg/models"
	"github.com/vpnmerger/aggregator/pkg/readiness"
	"github.com/vpnmerger/aggregator/processor"
	"github.com/vpnmerger/aggregator/sourcemanager"
)

// Params is the decoded form of a "process" job's Parameters map.
type Params struct {
	Formats       []string
	DedupStrategy string
	Region        string
	OutputDir     string
}

// ParseParams decodes a job's untyped parameter map into Params, applying
// defaults for anything omitted.
func ParseParams(raw map[string]interface{}) Params {
	p := Params{DedupStrategy: string(processor.StrategyExact), Formats: []string{"raw"}}
	if v, ok := raw["formats"].([]interface{}); ok {
		formats := make([]string, 0, len(v))
		for _, f := range v {
			if s, ok := f.(string); ok {
				formats = append(formats, s)
			}
		}
		if len(formats) > 0 {
			p.Formats = formats
		}
	}
	if v, ok := raw["dedup_strategy"].(string); ok && v != "" {
		p.DedupStrategy = v
	}
	if v, ok := raw["region"].(string); ok {
		p.Region = v
	}
	if v, ok := raw["output_dir"].(string); ok && v != "" {
		p.OutputDir = v
	}
	return p
}

// Run executes one full aggregation pass: pulls the active source list,
// fetches every source concurrently, parses every returned line, runs the
// configurations through the processor (security gate, dedup, enhancement,
// scoring), then writes the requested output formats. It matches
// jobmanager.RunFunc's signature so it can be registered directly with
// jobmanager.Service.SetRunner.
func Run(ctx context.Context, params map[string]interface{}, progress jobmanager.ProgressFunc) (map[string]interface{}, error) {
	s, err := initPipeline()
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, ParseParams(params), progress)
}

// Service is the concrete orchestrator. It is constructed once by main and
// wired into jobmanager via Run/initPipeline, mirroring the package-level
// singleton pattern every other service in this repo uses.
type Service struct {
	sourcesSvc *sourcemanager.Service
	fetchAll   func(ctx context.Context, urls []string) ([]models.FetchResult, error)
	processor  *processor.Service
	registry   *parsers.Registry
	outputDir  string

	mu        sync.RWMutex
	lastRun   []*models.VPNConfiguration
}

var svc *Service

// Configure installs the concrete service handles main constructs at
// startup. Must be called before the first job of type "process" runs.
// Marks the merger ready (pkg/readiness), which is what every
// merger-dependent endpoint consults before doing real work, per §6.
func Configure(sources *sourcemanager.Service, fetchAll func(ctx context.Context, urls []string) ([]models.FetchResult, error), proc *processor.Service, registry *parsers.Registry, outputDir string) {
	svc = &Service{
		sourcesSvc: sources,
		fetchAll:   fetchAll,
		processor:  proc,
		registry:   registry,
		outputDir:  outputDir,
	}
	readiness.MarkReady()
}

// Initialized reports whether Configure has run, used by the health
// endpoint's merger_initialized flag.
func Initialized() bool {
	return svc != nil
}

func initPipeline() (*Service, error) {
	if svc == nil {
		return nil, fmt.Errorf("pipeline: not configured, call pipeline.Configure at startup")
	}
	return svc, nil
}

// Run drives one batch aggregation from active sources through to written
// output files. Progress is reported at the boundary of each stage:
// 0.1 after the source list is known, 0.5 after fetching, 0.7 after
// parsing, 0.9 after processing, 1.0 (implicit, via jobmanager) on return.
func (s *Service) Run(ctx context.Context, params Params, progress jobmanager.ProgressFunc) (map[string]interface{}, error) {
	outputDir := params.OutputDir
	if outputDir == "" {
		outputDir = s.outputDir
	}
	if err := formatters.Validate(params.Formats); err != nil {
		return nil, err
	}

	active := s.sourcesSvc.GetActiveSources()
	urls := make([]string, 0, len(active.Sources))
	for _, src := range active.Sources {
		urls = append(urls, src.URL)
	}
	progress(0.1, fmt.Sprintf("loaded %d active sources", len(urls)))

	if len(urls) == 0 {
		return map[string]interface{}{
			"configurations_found": float64(0),
			"sources_fetched":      float64(0),
			"output_files":         map[string]string{},
		}, nil
	}

	results, err := s.fetchAll(ctx, urls)
	if err != nil {
		return nil, fmt.Errorf("fetching sources: %w", err)
	}
	progress(0.5, fmt.Sprintf("fetched %d sources", len(results)))

	var parsed []*models.VPNConfiguration
	sourcesFetched := 0
	for _, result := range results {
		if !result.Success {
			continue
		}
		sourcesFetched++
		for _, line := range result.Configs {
			cfg, ok := s.registry.Parse(line)
			if !ok {
				continue
			}
			cfg.SourceURL = result.URL
			parsed = append(parsed, cfg)
		}

		responseMs := int(result.ResponseTime / time.Millisecond)
		_ = s.sourcesSvc.UpdatePerformance(ctx, result.URL, result.Success, len(result.Configs), responseMs)
	}
	progress(0.7, fmt.Sprintf("parsed %d configurations", len(parsed)))

	strategy := processor.DedupStrategy(params.DedupStrategy)
	procResp := s.processor.Process(ctx, parsed, strategy, params.Region)
	progress(0.9, fmt.Sprintf("processed to %d configurations", len(procResp.Configs)))

	s.mu.Lock()
	s.lastRun = procResp.Configs
	s.mu.Unlock()

	paths, err := formatters.WriteAll(outputDir, params.Formats, procResp.Configs)
	if err != nil {
		return nil, fmt.Errorf("writing output: %w", err)
	}

	return map[string]interface{}{
		"configurations_found": float64(len(procResp.Configs)),
		"sources_fetched":      float64(sourcesFetched),
		"sources_total":        float64(len(urls)),
		"dropped_unsafe":       float64(procResp.DroppedUnsafe),
		"deduplicated":         float64(procResp.Deduplicated),
		"output_files":         paths,
	}, nil
}

// LastConfigurations returns the configurations produced by the most
// recently completed pipeline run, for the /api/v1/configurations listing
// endpoint. Returns nil before any run has completed.
func LastConfigurations() []*models.VPNConfiguration {
	if svc == nil {
		return nil
	}
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return svc.lastRun
}

// LoadSourcesConfig reads and validates sources.yaml, returning the parsed
// configuration for the caller to feed into sourcemanager.LoadFromConfig.
// Validation warnings are logged by the caller (main/cmd); only hard
// errors fail the load.
func LoadSourcesConfig(path string) (*config.Config, *config.ValidationResult, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	result := config.Validate(cfg)
	if !result.OK() {
		return nil, result, fmt.Errorf("invalid configuration: %v", result.Errors)
	}
	return cfg, result, nil
}
