package cli

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/flcm/internal/adapters/driving/mcp"
)

var (
	mcpPort int
	mcpHost string
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose documents to MCP hosts",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start a Model Context Protocol server so an assistant host can read,
query and validate pipeline documents and derive next-stage skeletons.

The server speaks JSON-RPC over stdio unless --port is given, in which case
it serves the streamable HTTP transport.

Host configuration:
  {
    "mcpServers": {
      "flcm": {
        "command": "flcm",
        "args": ["mcp", "serve", "--root", "/path/to/notes"]
      }
    }
  }`,
	Example: `  flcm mcp serve --root ~/notes/flcm
  flcm mcp serve --port 8080`,
	Args: cobra.NoArgs,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntVarP(&mcpPort, "port", "p", 0, "serve HTTP on this port instead of stdio")
	mcpServeCmd.Flags().StringVar(&mcpHost, "host", "localhost", "interface to bind with --port")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	if mcpPort < 0 || mcpPort > 65535 {
		return fmt.Errorf("invalid port %d", mcpPort)
	}

	server, err := mcp.NewServer(&mcp.Ports{
		Document: documentService,
		Pipeline: pipelineService,
	})
	if err != nil {
		return err
	}

	if mcpPort == 0 {
		return server.Run(cmd.Context())
	}
	addr := net.JoinHostPort(mcpHost, strconv.Itoa(mcpPort))
	cmd.Printf("MCP server listening on http://%s\n", addr)
	return server.RunHTTP(cmd.Context(), addr)
}
