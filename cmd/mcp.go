package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/magister-tools/magctl/internal/mcpserver"
)

const transportStreamableHTTP = "streamable-http"

var (
	mcpTransport  string
	mcpListenAddr string
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run as an MCP server for AI assistants",
	Long: `Expose school data as MCP (Model Context Protocol) tools.

In this mode magctl acts as an MCP server: AI assistants like Claude or
Cursor can query homework, grades, and schedules, check for changes, and
maintain per-school agent memory. Configure it in your assistant's MCP
settings with the stdio transport (the default), or run it as a shared
streamable-http endpoint.

Authentication is strictly non-interactive here; establish a session with
'magctl login' or stored credentials before wiring up an assistant.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().StringVar(&mcpTransport, "transport", "stdio", "Transport protocol for the MCP server (stdio, streamable-http)")
	mcpCmd.Flags().StringVar(&mcpListenAddr, "listen-addr", ":8899", "Listen address for streamable-http transport (path is fixed to /mcp)")
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()

	// stdio transport owns stdout; suppress the shutdown message there.
	ctx, cancel := signalContext(cmd.Context(), mcpTransport == "stdio")
	defer cancel()

	server, err := mcpserver.NewServer(cfg, mcpTransport, log)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	log.Info("Starting magctl MCP server (transport: %s)...", mcpTransport)
	if mcpTransport == transportStreamableHTTP {
		addr := mcpListenAddr
		if !strings.Contains(addr, ":") {
			addr = ":" + addr
		}
		log.Info("Listening on %s%s", addr, "/mcp")
	}

	if err := server.Start(ctx, mcpListenAddr); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
