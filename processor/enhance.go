// Optional ML and geo enhancement from spec §4.4. Both are best-effort:
// a panicking or error-returning predictor never aborts the pipeline, it
// just leaves the input ordering unchanged. Modeled as pluggable
// interfaces the way the teacher models EvictionPolicy in
// cache-manager/policies.go, so a caller can supply a real model client
// without this package depending on it.
package processor

import (
	"context"
	"fmt"

	"github.com/vpnmerger/aggregator/pkg/logging"
	"github.com/vpnmerger/aggregator/pkg/models"
)

// MLPredictor reorders configurations by predicted quality. Out of scope
// per spec §1 ("we specify how it is consulted, not how it is trained");
// this is the contract a real model-serving client implements.
type MLPredictor interface {
	PredictOrder(ctx context.Context, configs []*models.VPNConfiguration) ([]*models.VPNConfiguration, error)
}

// GeoOptimizer reorders configurations by proximity to a user region.
type GeoOptimizer interface {
	OptimizeForRegion(ctx context.Context, configs []*models.VPNConfiguration, region string) ([]*models.VPNConfiguration, error)
}

// Enhancer applies the optional ML and geo stages, logging and falling back
// to the original ordering on any failure rather than propagating it.
type Enhancer struct {
	ML  MLPredictor
	Geo GeoOptimizer
	log *logging.Logger
}

// NewEnhancer constructs an enhancer. Either predictor/optimizer may be nil,
// in which case that stage is skipped.
func NewEnhancer(ml MLPredictor, geo GeoOptimizer) *Enhancer {
	return &Enhancer{ML: ml, Geo: geo, log: logging.New("processor.enhance")}
}

// Enhance runs the ML stage then the geo stage, each best-effort. A stage
// that errors (or whose recover() catches a panic) is skipped; later stages
// still run against the prior stage's output.
func (e *Enhancer) Enhance(ctx context.Context, configs []*models.VPNConfiguration, region string) []*models.VPNConfiguration {
	configs = e.runML(ctx, configs)
	configs = e.runGeo(ctx, configs, region)
	return configs
}

func (e *Enhancer) runML(ctx context.Context, configs []*models.VPNConfiguration) (out []*models.VPNConfiguration) {
	if e.ML == nil {
		return configs
	}
	out = configs
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("ml predictor panicked, keeping original order", map[string]string{"panic": fmt.Sprint(r)})
			out = configs
		}
	}()
	reordered, err := e.ML.PredictOrder(ctx, configs)
	if err != nil {
		e.log.Warn("ml predictor failed, keeping original order", map[string]string{"error": err.Error()})
		return configs
	}
	return reordered
}

func (e *Enhancer) runGeo(ctx context.Context, configs []*models.VPNConfiguration, region string) (out []*models.VPNConfiguration) {
	if e.Geo == nil || region == "" {
		return configs
	}
	out = configs
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("geo optimizer panicked, keeping prior order", map[string]string{"panic": fmt.Sprint(r)})
			out = configs
		}
	}()
	reordered, err := e.Geo.OptimizeForRegion(ctx, configs, region)
	if err != nil {
		e.log.Warn("geo optimizer failed, keeping prior order", map[string]string{"error": err.Error()})
		return configs
	}
	return reordered
}
