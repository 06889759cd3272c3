package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhyansraj/mcp-mesh/mesh"
	"github.com/dhyansraj/mcp-mesh/proxy"
)

// newCallCommand builds the "call" subcommand: a direct Proxy.Call
// against an agent's /mcp endpoint. Registry-based agent discovery is out
// of scope here since this module implements no registry server.
func newCallCommand() *cobra.Command {
	var agentURL string
	var capability string
	var file string
	var timeoutSeconds int
	var raw bool

	cmd := &cobra.Command{
		Use:   "call <tool-name> [json-arguments]",
		Short: "Call an MCP tool on an agent directly via its endpoint",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if agentURL == "" {
				return fmt.Errorf("meshctl call: --agent-url is required")
			}
			toolName := args[0]

			var toolArgs map[string]any
			switch {
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read arguments file: %w", err)
				}
				if err := json.Unmarshal(data, &toolArgs); err != nil {
					return fmt.Errorf("invalid JSON in arguments file: %w", err)
				}
			case len(args) > 1:
				if err := json.Unmarshal([]byte(args[1]), &toolArgs); err != nil {
					return fmt.Errorf("invalid JSON arguments: %w", err)
				}
			default:
				toolArgs = map[string]any{}
			}

			p := proxy.New(agentURL, capability, toolName, mesh.DependencyKwargs{
				TimeoutSeconds: timeoutSeconds,
				MaxAttempts:    1,
			})

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(timeoutSeconds)*time.Second)
			defer cancel()

			result, err := p.Call(ctx, toolArgs)
			if err != nil {
				return fmt.Errorf("call failed: %w", err)
			}

			return printResult(cmd, result, raw)
		},
	}

	cmd.Flags().StringVar(&agentURL, "agent-url", "", "Agent base URL, e.g. http://localhost:8080")
	cmd.Flags().StringVar(&capability, "capability", "", "Capability name the proxy is built for (not sent with the request)")
	cmd.Flags().StringVar(&file, "file", "", "Read arguments from a JSON file")
	cmd.Flags().IntVar(&timeoutSeconds, "timeout", 30, "Request timeout in seconds")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the raw result without pretty-printing")
	return cmd
}

func printResult(cmd *cobra.Command, result any, raw bool) error {
	if s, ok := result.(string); ok && raw {
		fmt.Fprintln(cmd.OutOrStdout(), s)
		return nil
	}
	body, err := json.Marshal(result)
	if err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), result)
		return nil
	}
	if raw {
		fmt.Fprintln(cmd.OutOrStdout(), string(body))
		return nil
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), string(body))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
	return nil
}
