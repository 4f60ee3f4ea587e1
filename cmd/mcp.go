package cmd

import (
	"github.com/spf13/cobra"

	"pieces/internal/server"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP (Model Context Protocol) server on stdin/stdout",
	Long:  "Exposes every trigger instance as an MCP tool. Agents can enable, disable and run instances through it.",
	Args:  cobra.NoArgs,
	RunE:  serveMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func serveMCP(cmd *cobra.Command, args []string) error {
	h, err := openHost(cmd.Context())
	if err != nil {
		return err
	}
	defer h.Close()

	srv := server.NewMCPServer(h.engine, h.instances, Version)
	return srv.ServeStdio(cmd.Context())
}
