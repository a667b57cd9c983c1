package cmd

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/semsearch/internal/api"
	"github.com/Aman-CERP/semsearch/internal/output"
)

func newServeCmd(g *globalOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the search API over HTTP until interrupted.

Endpoints:
  GET    /        service information
  POST   /search  {"query": "...", "top_k": 5, "threshold": 0.0}
  POST   /index   {"directory_path": "...", "extensions": [".md"]}
  GET    /stats   collection statistics
  DELETE /clear   remove every passage`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationStderrLogs: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if !g.debug {
				gin.SetMode(gin.ReleaseMode)
			}

			st, err := openStack(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer closeStack(st)

			srvCfg := api.DefaultConfig()
			srvCfg.Addr = addr
			srvCfg.DefaultTopK = cfg.Search.TopK
			srvCfg.Threshold = cfg.Search.Threshold
			srv := api.NewServer(srvCfg, st.engine, st.indexer,
				api.WithLocker(st.lock),
				api.WithLogger(slog.Default()))

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", addr, err)
			}

			out := output.New(cmd.OutOrStdout())
			out.Statusf("🚀", "Listening on http://%s", ln.Addr())
			out.Status("", "Press Ctrl+C to stop")

			return srv.Serve(ctx, ln)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr, :8000)")

	return cmd
}
