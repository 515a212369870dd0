package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
sources:
  premium:
    urls:
      - https://example.com/premium1.txt
      - url: https://example.com/premium2.txt
        weight: 0.9
        protocols: [vmess, vless]
  unknown_tier:
    urls:
      - https://example.com/x.txt
processing:
  max_concurrent: 10
  timeout: 15
  retry_attempts: 2
output:
  formats: [raw, clash]
cache:
  ttl: 600
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sources.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadParsesTiersAndEntries(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	premium := cfg.Sources["premium"]
	if len(premium.URLs) != 2 {
		t.Fatalf("expected 2 premium urls, got %d", len(premium.URLs))
	}
	if premium.URLs[0].Weight != 1.0 {
		t.Fatalf("bare string entry should default weight to 1.0, got %f", premium.URLs[0].Weight)
	}
	if premium.URLs[1].Weight != 0.9 {
		t.Fatalf("object entry weight = %f, want 0.9", premium.URLs[1].Weight)
	}
	if cfg.Processing.MaxConcurrent != 10 {
		t.Fatalf("max_concurrent = %d, want 10", cfg.Processing.MaxConcurrent)
	}
}

func TestLoadAppliesDefaultsForMissingSections(t *testing.T) {
	path := writeTempConfig(t, "sources: {}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Processing.MaxConcurrent != 20 {
		t.Fatalf("expected default max_concurrent 20, got %d", cfg.Processing.MaxConcurrent)
	}
	if len(cfg.Output.Formats) != 1 || cfg.Output.Formats[0] != "raw" {
		t.Fatalf("expected default output format [raw], got %v", cfg.Output.Formats)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/sources.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateWarnsOnUnknownTier(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	result := Validate(cfg)
	if !result.OK() {
		t.Fatalf("expected no hard errors, got %v", result.Errors)
	}
	found := false
	for _, w := range result.Warnings {
		if w == `unknown source tier "unknown_tier"` {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected warning about unknown tier, got %v", result.Warnings)
	}
}

func TestValidateErrorsOnInvalidURLScheme(t *testing.T) {
	cfg := &Config{
		Sources: map[string]TierConfig{
			"premium": {URLs: []SourceEntry{{URL: "ftp://example.com/x", Weight: 1}}},
		},
		Processing: ProcessingConfig{MaxConcurrent: 1, TimeoutSec: 1},
	}
	result := Validate(cfg)
	if result.OK() {
		t.Fatal("expected hard error for disallowed scheme")
	}
}

func TestValidateErrorsOnBadProcessingLimits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Processing.MaxConcurrent = 0
	result := Validate(cfg)
	if result.OK() {
		t.Fatal("expected error for max_concurrent < 1")
	}
}
