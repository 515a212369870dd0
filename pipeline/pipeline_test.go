package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/vpnmerger/aggregator/formatters"
	"github.com/vpnmerger/aggregator/parsers"
	"github.com/vpnmerger/aggregator/pkg/models"
	"github.com/vpnmerger/aggregator/processor"
	"github.com/vpnmerger/aggregator/sourcemanager"
)

const sampleVMess = "vmess://eyJ2IjoiMiIsInBzIjoidGVzdCIsImFkZCI6ImV4YW1wbGUuY29tIiwicG9ydCI6IjQ0MyIsImlkIjoiMTIzNDU2NzgtMTIzNC0xMjM0LTEyMzQtMTIzNDU2Nzg5MDEyIiwiYWlkIjoiMCIsIm5ldCI6IndzIiwidHlwZSI6Im5vbmUiLCJob3N0IjoiIiwicGF0aCI6Ii93cyIsInRscyI6InRscyJ9"

func newTestPipeline(t *testing.T, fetchAll func(ctx context.Context, urls []string) ([]models.FetchResult, error)) {
	t.Helper()
	sources := sourcemanager.NewService()
	if _, err := sources.AddSource(context.Background(), &sourcemanager.AddSourceRequest{URL: "https://example.com/sub", Tier: "bulk"}); err != nil {
		t.Fatal(err)
	}
	proc := processor.NewService(nil, nil, func(string) float64 { return 0.8 })
	Configure(sources, fetchAll, proc, parsers.NewRegistry(), t.TempDir())
}

func TestRun_HappyPath(t *testing.T) {
	newTestPipeline(t, func(ctx context.Context, urls []string) ([]models.FetchResult, error) {
		results := make([]models.FetchResult, len(urls))
		for i, u := range urls {
			results[i] = models.FetchResult{URL: u, Success: true, Configs: []string{sampleVMess}}
		}
		return results, nil
	})

	var progressCalls []float64
	result, err := Run(context.Background(), map[string]interface{}{
		"formats": []interface{}{"raw", "json"},
	}, func(p float64, msg string) {
		progressCalls = append(progressCalls, p)
	})
	if err != nil {
		t.Fatal(err)
	}
	if result["configurations_found"].(float64) != 1 {
		t.Fatalf("expected 1 configuration, got %v", result["configurations_found"])
	}
	if len(progressCalls) == 0 {
		t.Fatal("expected progress callbacks")
	}
	for i := 1; i < len(progressCalls); i++ {
		if progressCalls[i] < progressCalls[i-1] {
			t.Fatalf("progress went backwards: %v", progressCalls)
		}
	}

	files, ok := result["output_files"].(map[string]string)
	if !ok {
		t.Fatalf("expected output_files map, got %T", result["output_files"])
	}
	if _, ok := files["raw"]; !ok {
		t.Fatal("expected raw output file path")
	}

	if len(LastConfigurations()) != 1 {
		t.Fatalf("expected LastConfigurations to report 1 entry, got %d", len(LastConfigurations()))
	}
}

func TestRun_NoActiveSources(t *testing.T) {
	sources := sourcemanager.NewService()
	proc := processor.NewService(nil, nil, nil)
	Configure(sources, func(ctx context.Context, urls []string) ([]models.FetchResult, error) {
		t.Fatal("fetchAll should not be called with zero sources")
		return nil, nil
	}, proc, parsers.NewRegistry(), t.TempDir())

	result, err := Run(context.Background(), nil, func(float64, string) {})
	if err != nil {
		t.Fatal(err)
	}
	if result["configurations_found"].(float64) != 0 {
		t.Fatalf("expected 0 configurations, got %v", result["configurations_found"])
	}
}

func TestRun_UnknownFormatRejected(t *testing.T) {
	newTestPipeline(t, func(ctx context.Context, urls []string) ([]models.FetchResult, error) {
		return nil, nil
	})

	_, err := Run(context.Background(), map[string]interface{}{
		"formats": []interface{}{"not-a-format"},
	}, func(float64, string) {})
	var unsupported *formatters.UnsupportedFormatsError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected an UnsupportedFormatsError, got %v", err)
	}
}

func TestRun_FetchFailureIsNonFatal(t *testing.T) {
	newTestPipeline(t, func(ctx context.Context, urls []string) ([]models.FetchResult, error) {
		results := make([]models.FetchResult, len(urls))
		for i, u := range urls {
			results[i] = models.FetchResult{URL: u, Success: false, Error: "connection refused"}
		}
		return results, nil
	})

	result, err := Run(context.Background(), map[string]interface{}{"formats": []interface{}{"raw"}}, func(float64, string) {})
	if err != nil {
		t.Fatal(err)
	}
	if result["sources_fetched"].(float64) != 0 {
		t.Fatalf("expected 0 sources_fetched, got %v", result["sources_fetched"])
	}
}

func TestParseParams_Defaults(t *testing.T) {
	p := ParseParams(nil)
	if len(p.Formats) != 1 || p.Formats[0] != "raw" {
		t.Fatalf("expected default raw format, got %v", p.Formats)
	}
	if p.DedupStrategy != string(processor.StrategyExact) {
		t.Fatalf("expected default exact dedup strategy, got %s", p.DedupStrategy)
	}
}

func TestParseParams_Overrides(t *testing.T) {
	p := ParseParams(map[string]interface{}{
		"formats":        []interface{}{"clash", "singbox"},
		"dedup_strategy": "content_hash",
		"region":         "eu",
		"output_dir":     filepath.Join("tmp", "out"),
	})
	if len(p.Formats) != 2 || p.Formats[0] != "clash" {
		t.Fatalf("unexpected formats: %v", p.Formats)
	}
	if p.DedupStrategy != "content_hash" || p.Region != "eu" {
		t.Fatalf("unexpected overrides: %+v", p)
	}
}
