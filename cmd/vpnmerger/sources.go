package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
)

func newSourcesCmd(serverAddr *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage the source registry of a running vpnmerger server",
	}
	cmd.AddCommand(newSourcesListCmd(serverAddr))
	cmd.AddCommand(newSourcesAddCmd(serverAddr))
	cmd.AddCommand(newSourcesRemoveCmd(serverAddr))
	return cmd
}

func newSourcesListCmd(serverAddr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(cmd, *serverAddr+"/api/v1/sources")
		},
	}
}

func newSourcesAddCmd(serverAddr *string) *cobra.Command {
	var tier string
	c := &cobra.Command{
		Use:   "add <url>",
		Short: "Register a new source URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, _ := json.Marshal(map[string]string{"url": args[0], "tier": tier})
			resp, err := http.Post(*serverAddr+"/api/v1/sources", "application/json", bytes.NewReader(body))
			if err != nil {
				return handledErr("contacting %s: %v", *serverAddr, err)
			}
			defer resp.Body.Close()
			return printResponse(cmd, resp)
		},
	}
	c.Flags().StringVar(&tier, "tier", "", "reliability tier (premium|reliable|bulk|experimental)")
	return c
}

func newSourcesRemoveCmd(serverAddr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <url>",
		Short: "Remove a registered source URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequest(http.MethodDelete, *serverAddr+"/api/v1/sources?url="+url.QueryEscape(args[0]), nil)
			if err != nil {
				return handledErr("building request: %v", err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return handledErr("contacting %s: %v", *serverAddr, err)
			}
			defer resp.Body.Close()
			return printResponse(cmd, resp)
		},
	}
}

func getAndPrint(cmd *cobra.Command, addr string) error {
	resp, err := http.Get(addr)
	if err != nil {
		return handledErr("contacting %s: %v", addr, err)
	}
	defer resp.Body.Close()
	return printResponse(cmd, resp)
}

func printResponse(cmd *cobra.Command, resp *http.Response) error {
	var body interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return handledErr("decoding response: %v", err)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(body)
	if resp.StatusCode >= 400 {
		return handledErr("server returned %d", resp.StatusCode)
	}
	return nil
}
