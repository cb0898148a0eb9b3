package main

import (
	"github.com/spf13/cobra"

	"github.com/shahryar908/agenticrag/internal/app"
	"github.com/shahryar908/agenticrag/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the ask, add_document and stats tools over MCP stdio",
	Long: `Serve MCP tools on stdin/stdout for MCP clients such as desktop assistants.
Logging stays off stdout so the protocol stream is not corrupted.`,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, _ []string) error {
	svc, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	return mcpserver.New(svc.Engine, svc.Base, cfg.Service.Version, logger).ServeStdio()
}
