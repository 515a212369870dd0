package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vpnmerger/aggregator/config"
)

func newValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Lint a sources.yaml configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return handledErr("loading %s: %v", *configPath, err)
			}
			result := config.Validate(cfg)
			for _, w := range result.Warnings {
				fmt.Fprintln(os.Stderr, "warning:", w)
			}
			for _, e := range result.Errors {
				fmt.Fprintln(os.Stderr, "error:", e)
			}
			if !result.OK() {
				return handledErr("%s has %d error(s)", *configPath, len(result.Errors))
			}
			fmt.Printf("%s is valid (%d warning(s))\n", *configPath, len(result.Warnings))
			return nil
		},
	}
}
