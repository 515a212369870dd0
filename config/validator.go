package config

import (
	"fmt"

	"github.com/vpnmerger/aggregator/pkg/models"
	"github.com/vpnmerger/aggregator/pkg/security"
)

// ValidationResult collects the warnings and errors produced by Validate.
// Warnings never block a pipeline run; errors do.
type ValidationResult struct {
	Warnings []string
	Errors   []string
}

// OK reports whether the configuration has no hard errors.
func (r *ValidationResult) OK() bool {
	return len(r.Errors) == 0
}

func (r *ValidationResult) warnf(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) errorf(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg against the known tier/protocol/format enums and the
// URL security policy. Unknown tiers, protocols, or output formats are
// warnings (spec §6: "Validator warns on unknown tiers/protocols/formats");
// type mismatches already failed at YAML-decode time, and invalid URL
// schemes are hard errors.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	for tierName, tierCfg := range cfg.Sources {
		if !knownTiers[tierName] {
			result.warnf("unknown source tier %q", tierName)
		}
		for _, entry := range tierCfg.URLs {
			if err := security.ValidateSourceURL(entry.URL); err != nil {
				result.errorf("source %q: %v", entry.URL, err)
			}
			if entry.Weight < 0 || entry.Weight > 1 {
				result.errorf("source %q: weight %f out of range [0,1]", entry.URL, entry.Weight)
			}
			for _, p := range entry.Protocols {
				if !knownProtocols[models.Protocol(p)] {
					result.warnf("source %q: unknown protocol %q", entry.URL, p)
				}
			}
		}
	}

	for _, format := range cfg.Output.Formats {
		if !knownFormats[format] {
			result.warnf("unknown output format %q", format)
		}
	}

	if cfg.Processing.MaxConcurrent < 1 {
		result.errorf("processing.max_concurrent must be >= 1, got %d", cfg.Processing.MaxConcurrent)
	}
	if cfg.Processing.TimeoutSec < 1 {
		result.errorf("processing.timeout must be >= 1, got %d", cfg.Processing.TimeoutSec)
	}
	if cfg.Processing.RetryAttempts < 0 {
		result.errorf("processing.retry_attempts must be >= 0, got %d", cfg.Processing.RetryAttempts)
	}

	return result
}
