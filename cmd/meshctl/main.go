// Command meshctl is a thin demonstration CLI over this module: a "call"
// subcommand issuing a direct tool call against an agent's /mcp endpoint,
// and a "serve-example" subcommand booting a small tool-provider agent to
// call against. It implements no registry server-side behavior.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "meshctl",
		Short: "Call and host MCP Mesh tools from the command line",
	}
	root.AddCommand(newCallCommand())
	root.AddCommand(newServeExampleCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
