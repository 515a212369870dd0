package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func newHealthCmd(serverAddr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the health of a running vpnmerger server",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get(*serverAddr + "/health")
			if err != nil {
				return handledErr("contacting %s: %v", *serverAddr, err)
			}
			defer resp.Body.Close()

			var body map[string]interface{}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return handledErr("decoding response: %v", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			_ = enc.Encode(body)

			if resp.StatusCode != http.StatusOK {
				return handledErr("server reported unhealthy status %d", resp.StatusCode)
			}
			if status, _ := body["status"].(string); status != "healthy" {
				return handledErr("server degraded: %s", status)
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "ok")
			return nil
		},
	}
}
