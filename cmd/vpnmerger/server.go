package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/vpnmerger/aggregator/api"
	"github.com/vpnmerger/aggregator/fetcher"
	"github.com/vpnmerger/aggregator/jobmanager"
	"github.com/vpnmerger/aggregator/monitoring"
	"github.com/vpnmerger/aggregator/parsers"
	"github.com/vpnmerger/aggregator/pipeline"
	"github.com/vpnmerger/aggregator/pkg/models"
	"github.com/vpnmerger/aggregator/processor"
	"github.com/vpnmerger/aggregator/sourcemanager"
)

func newServerCmd(configPath *string) *cobra.Command {
	var addr string
	var outputDir string

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start a standalone HTTP server exposing the aggregator API",
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
			parsers.OnParseError = monitoring.RecordParserError
			jobSvc, err := jobmanager.NewService(jobmanager.DefaultConfig(), nil)
			if err != nil {
				return handledErr("starting job manager: %v", err)
			}

			if outputDir == "" {
				outputDir = "output"
			}
			pipeline.Configure(sources, adaptFetchAll(fetchSvc), proc, registry, outputDir)
			jobSvc.SetRunner(models.JobTypeProcess, pipeline.Run)

			api.Version = version
			api.ClearCacheFunc = func(ctx context.Context) (interface{}, error) {
				return map[string]int{"cleared": fetchSvc.ClearCache()}, nil
			}

			handler := api.NewMux(sources, jobSvc)
			fmt.Fprintf(os.Stderr, "listening on %s\n", addr)
			if err := http.ListenAndServe(addr, handler); err != nil {
				return handledErr("server stopped: %v", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":4000", "address to listen on")
	cmd.Flags().StringVar(&outputDir, "output-dir", "output", "directory pipeline runs write formatted output into")
	return cmd
}
