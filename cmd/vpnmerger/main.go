// Command vpnmerger is the batch/offline front door to the aggregator:
// run a pipeline pass, lint a sources.yaml, manage the source registry of
// a running server, and report health/version, per §6's CLI surface.
//
// The teacher ships no CLI at all — every operation is an Encore endpoint
// reached through `encore run`. This binary wraps the same Service
// constructors the Encore endpoints use (sourcemanager.NewService,
// fetcher.NewService, processor.NewService, jobmanager.NewService) for the
// subset of operations that make sense to run standalone, exactly the way
// this repo's own *_test.go files already exercise those constructors
// outside the Encore runtime.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=...". Left at
// "dev" for local builds.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		if exitErr, ok := err.(*exitError); ok {
			if exitErr.message != "" {
				fmt.Fprintln(os.Stderr, exitErr.message)
			}
			return exitErr.code
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

// exitError carries the spec's three-way exit code taxonomy (0 success,
// 1 handled error, 2 invalid usage) through cobra's RunE error return.
type exitError struct {
	code    int
	message string
}

func (e *exitError) Error() string { return e.message }

func handledErr(format string, args ...interface{}) error {
	return &exitError{code: 1, message: fmt.Sprintf(format, args...)}
}

func usageErr(format string, args ...interface{}) error {
	return &exitError{code: 2, message: fmt.Sprintf(format, args...)}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var serverAddr string

	root := &cobra.Command{
		Use:           "vpnmerger",
		Short:         "Aggregate, dedupe, and score VPN subscription sources",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "sources.yaml", "path to sources.yaml")
	root.PersistentFlags().StringVar(&serverAddr, "server", "http://localhost:4000", "base URL of a running vpnmerger server")

	root.AddCommand(newProcessCmd(&configPath))
	root.AddCommand(newValidateCmd(&configPath))
	root.AddCommand(newServerCmd(&configPath))
	root.AddCommand(newSourcesCmd(&serverAddr))
	root.AddCommand(newHealthCmd(&serverAddr))
	root.AddCommand(newVersionCmd())
	return root
}
