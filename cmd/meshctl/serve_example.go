package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dhyansraj/mcp-mesh/agentruntime"
	"github.com/dhyansraj/mcp-mesh/config"
	"github.com/dhyansraj/mcp-mesh/mesh"
)

// newServeExampleCommand boots a minimal tool-provider agent: a single
// "echo" tool with no dependencies, useful as a target for `meshctl call`.
func newServeExampleCommand() *cobra.Command {
	var name string
	var port int
	var registryURL string

	cmd := &cobra.Command{
		Use:   "serve-example",
		Short: "Run a minimal echo agent for exercising meshctl call",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := agentruntime.New(agentruntime.Config{
				Raw: config.RawConfig{
					Name:        name,
					Port:        port,
					RegistryURL: registryURL,
				},
			})

			schema, _ := json.Marshal(map[string]any{
				"type":                 "object",
				"properties":           map[string]any{"message": map[string]any{"type": "string"}},
				"required":             []string{"message"},
				"additionalProperties": false,
			})

			err := rt.AddTool(mesh.ToolSpec{
				FunctionName: "echo",
				Capability:   "echo",
				Description:  "Echoes the message argument back to the caller",
				InputSchema:  schema,
			}, func(ctx context.Context, args map[string]any, deps []agentruntime.Dependency) (any, error) {
				message, _ := args["message"].(string)
				return fmt.Sprintf("echo: %s", message), nil
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "serving %q on port %d, registry %s\n", rt.Descriptor().Name, port, registryURL)
			return rt.Start(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&name, "name", "echo-agent", "Agent name")
	cmd.Flags().IntVar(&port, "port", 8080, "HTTP port to bind")
	cmd.Flags().StringVar(&registryURL, "registry-url", "http://localhost:8000", "Registry URL")
	return cmd
}
