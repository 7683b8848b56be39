package main

import (
	"github.com/spf13/cobra"

	"github.com/BlueBird-project/ke-client-go/pkg/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve a running client's interactions to MCP agents over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcp.NewServer(flagAdmin).Serve()
	},
}
