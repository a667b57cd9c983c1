package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/semsearch/internal/mcp"
)

func newMCPCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP protocol over stdio",
		Long: `Run an MCP server on stdin and stdout for AI assistants.

Tools: search, index_directory, index_stats, clear_index.
Resource: semsearch://files lists the indexed files.

Logs go to the log file only; stdout carries JSON-RPC.`,
		Example: `  # MCP client configuration
  {"command": "semsearch", "args": ["mcp", "--db", "/path/to/.db"]}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}

			st, err := openStack(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer closeStack(st)

			srv, err := mcp.NewServer(mcp.Dependencies{
				Searcher: st.engine,
				Indexer:  st.indexer,
				Files:    st.collection,
				Lock:     st.lock,
				Logger:   slog.Default(),
			}, mcp.Config{
				DefaultTopK: cfg.Search.TopK,
				Threshold:   cfg.Search.Threshold,
			})
			if err != nil {
				return err
			}
			return srv.Serve(ctx)
		},
	}
}
