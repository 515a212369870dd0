package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vpnmerger/aggregator/fetcher"
	"github.com/vpnmerger/aggregator/parsers"
	"github.com/vpnmerger/aggregator/pipeline"
	"github.com/vpnmerger/aggregator/pkg/models"
	"github.com/vpnmerger/aggregator/processor"
	"github.com/vpnmerger/aggregator/sourcemanager"
)

func newProcessCmd(configPath *string) *cobra.Command {
	var outputDir string
	var formats []string
	var dedupStrategy string
	var region string

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run one batch aggregation pass and write the requested output formats",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, result, err := pipeline.LoadSourcesConfig(*configPath)
			if err != nil {
				return handledErr("loading %s: %v", *configPath, err)
			}
			for _, w := range result.Warnings {
				fmt.Fprintln(os.Stderr, "warning:", w)
			}

			sources := sourcemanager.NewService()
			if err := sources.LoadFromConfig(cfg); err != nil {
				return handledErr("loading sources: %v", err)
			}

			fetchSvc := fetcher.NewService(fetcher.DefaultConfig())
			proc := processor.NewService(nil, nil, sources.ReputationOf)
			registry := parsers.NewRegistry()

			if outputDir == "" {
				outputDir = "output"
			}
			pipeline.Configure(sources, adaptFetchAll(fetchSvc), proc, registry, outputDir)

			if len(formats) == 0 {
				formats = cfg.Output.Formats
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
			defer cancel()

			params := pipeline.Params{
				Formats:       formats,
				DedupStrategy: dedupStrategy,
				Region:        region,
				OutputDir:     outputDir,
			}
			result2, err := pipeline.Run(ctx, paramsToMap(params), func(p float64, msg string) {
				fmt.Fprintf(os.Stderr, "[%.0f%%] %s\n", p*100, msg)
			})
			if err != nil {
				return handledErr("pipeline run failed: %v", err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result2)
		},
	}
	cmd.Flags().StringVar(&outputDir, "output-dir", "output", "directory to write formatted output into")
	cmd.Flags().StringSliceVar(&formats, "formats", nil, "output formats to write (defaults to sources.yaml's output.formats)")
	cmd.Flags().StringVar(&dedupStrategy, "dedup-strategy", string(processor.StrategyExact), "deduplication strategy: exact|server_port|server_protocol|content_hash")
	cmd.Flags().StringVar(&region, "region", "", "region hint passed to the geo optimizer enhancement stage")
	return cmd
}

// adaptFetchAll narrows fetcher.Service.FetchAll's *FetchResponse return to
// the plain []models.FetchResult shape pipeline.Service expects, so
// pipeline never needs to import fetcher's request/response wrapper types.
func adaptFetchAll(s *fetcher.Service) func(ctx context.Context, urls []string) ([]models.FetchResult, error) {
	return func(ctx context.Context, urls []string) ([]models.FetchResult, error) {
		resp, err := s.FetchAll(ctx, urls)
		if err != nil {
			return nil, err
		}
		return resp.Results, nil
	}
}

func paramsToMap(p pipeline.Params) map[string]interface{} {
	formats := make([]interface{}, len(p.Formats))
	for i, f := range p.Formats {
		formats[i] = f
	}
	return map[string]interface{}{
		"formats":        formats,
		"dedup_strategy": p.DedupStrategy,
		"region":         p.Region,
		"output_dir":     p.OutputDir,
	}
}
