// Package config loads and validates the sources.yaml configuration file:
// the tiered list of source URLs, processing limits, output formats, and
// cache TTLs that drive a pipeline run.
//
// Loading follows the same read-unmarshal-validate shape used elsewhere in
// the retrieved example pack for YAML project configuration, using
// gopkg.in/yaml.v3 rather than hand-rolled parsing.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vpnmerger/aggregator/pkg/models"
)

// SourceEntry is one entry under a tier's urls list. A bare string in the
// YAML unmarshals into URL only; the object form additionally carries a
// weight and an optional protocol restriction.
type SourceEntry struct {
	URL       string   `yaml:"url"`
	Weight    float64  `yaml:"weight"`
	Protocols []string `yaml:"protocols,omitempty"`
}

// UnmarshalYAML accepts either a bare URL string or the {url, weight,
// protocols} object form.
func (s *SourceEntry) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		s.URL = value.Value
		s.Weight = 1.0
		return nil
	}
	type alias SourceEntry
	var a alias
	if err := value.Decode(&a); err != nil {
		return err
	}
	*s = SourceEntry(a)
	if s.Weight == 0 {
		s.Weight = 1.0
	}
	return nil
}

// TierConfig holds the source list for one reliability tier.
type TierConfig struct {
	URLs []SourceEntry `yaml:"urls"`
}

// ProcessingConfig controls pipeline concurrency and retry behavior.
type ProcessingConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"`
	TimeoutSec    int `yaml:"timeout"`
	RetryAttempts int `yaml:"retry_attempts"`
}

// OutputConfig lists the output formats a pipeline run should emit.
type OutputConfig struct {
	Formats []string `yaml:"formats"`
}

// CacheConfig controls cache entry lifetime.
type CacheConfig struct {
	TTLSec int `yaml:"ttl"`
}

// Config is the parsed form of sources.yaml.
type Config struct {
	Sources    map[string]TierConfig `yaml:"sources"`
	Processing ProcessingConfig      `yaml:"processing"`
	Output     OutputConfig          `yaml:"output"`
	Cache      CacheConfig           `yaml:"cache"`
}

// DefaultConfig returns sensible defaults for processing, output and cache
// when sources.yaml omits those sections.
func DefaultConfig() *Config {
	return &Config{
		Sources: map[string]TierConfig{},
		Processing: ProcessingConfig{
			MaxConcurrent: 20,
			TimeoutSec:    30,
			RetryAttempts: 3,
		},
		Output: OutputConfig{Formats: []string{"raw"}},
		Cache:  CacheConfig{TTLSec: 3600},
	}
}

// Load reads and parses the YAML configuration file at path. It applies
// defaults for omitted sections but does not run semantic validation; call
// Validate separately to surface tier/protocol/format/scheme problems.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.Processing.MaxConcurrent == 0 {
		cfg.Processing.MaxConcurrent = 20
	}
	if cfg.Processing.TimeoutSec == 0 {
		cfg.Processing.TimeoutSec = 30
	}
	if len(cfg.Output.Formats) == 0 {
		cfg.Output.Formats = []string{"raw"}
	}
	if cfg.Cache.TTLSec == 0 {
		cfg.Cache.TTLSec = 3600
	}
	return cfg, nil
}

// knownTiers and knownFormats mirror the enums the validator checks
// unknown values against; both are warnings, not hard errors, per spec.
var knownTiers = map[string]bool{
	string(models.TierPremium):    true,
	string(models.TierReliable):   true,
	string(models.TierBulk):       true,
	string(models.TierExperimental): true,
}

var knownFormats = map[string]bool{
	"raw": true, "base64": true, "json": true, "clash": true, "singbox": true, "csv": true,
}

var knownProtocols = map[models.Protocol]bool{
	models.ProtocolVMess: true, models.ProtocolVLESS: true, models.ProtocolTrojan: true,
	models.ProtocolShadowsocks: true, models.ProtocolShadowsocksR: true, models.ProtocolSS2022: true,
	models.ProtocolHysteria2: true, models.ProtocolTUIC: true, models.ProtocolHTTP: true, models.ProtocolSOCKS5: true,
}
