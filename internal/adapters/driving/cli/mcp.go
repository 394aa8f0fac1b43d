package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/insightpocket/insight-rag/internal/adapters/driving/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server so AI assistants can search
past reports, assemble grounded context and store new reports.

By default, the server communicates over stdio using JSON-RPC.
Use --port to start an HTTP server instead.

Examples:
  # Stdio mode (default)
  insight-rag mcp serve

  # HTTP mode (for MCP Inspector, remote access)
  insight-rag mcp serve --port 8080

Assistant configuration:
  {
    "mcpServers": {
      "insight-rag": {
        "command": "/path/to/insight-rag",
        "args": ["mcp", "serve"]
      }
    }
  }`,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntP("port", "p", 0, "HTTP port (0 = use stdio)")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

// newMCPServer builds the server from the current services.
func newMCPServer(cmd *cobra.Command) (*mcp.Server, error) {
	svc, err := retrieval(cmd)
	if err != nil {
		return nil, err
	}

	ports := &mcp.Ports{
		Retrieval:   svc,
		RecentDays:  recentDays(),
		NewReportID: deps.NewReportID,
		Now:         now,
	}
	return mcp.NewServer(ports)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return fmt.Errorf("getting port flag: %w", err)
	}

	server, err := newMCPServer(cmd)
	if err != nil {
		return err
	}

	if port > 0 {
		addr := fmt.Sprintf(":%d", port)
		fmt.Fprintf(cmd.OutOrStdout(), "MCP server listening on http://localhost%s\n", addr)
		return server.RunHTTP(cmd.Context(), addr)
	}

	return server.Run(cmd.Context())
}
