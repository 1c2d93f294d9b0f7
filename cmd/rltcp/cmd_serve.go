package main

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"rltcp/internal/logging"
	mcpserver "rltcp/internal/mcp"
	"rltcp/internal/store"
)

func newServeCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server over stdio",
		Long: `Starts an MCP server over stdin/stdout exposing the optimal-order oracle,
NAPFD scoring, test selection, background experiments and the results DB.

The server exits when its parent process goes away.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			srv := mcpserver.NewServer(st, version)
			defer srv.Shutdown()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			log := logging.New("mcp")
			mcpserver.WatchParent(ctx, cancel, log)

			log.Info("starting rltcp MCP server over stdio", "db", dbPath)
			return srv.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", store.DefaultDBPath, "Results DB path")
	return cmd
}
