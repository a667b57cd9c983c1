// Package cmd implements the semsearch command line.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/semsearch/internal/config"
	"github.com/Aman-CERP/semsearch/internal/errors"
	"github.com/Aman-CERP/semsearch/internal/logging"
	"github.com/Aman-CERP/semsearch/internal/profiling"
	"github.com/Aman-CERP/semsearch/pkg/version"
)

// Command annotations read by the root pre-run hook.
const (
	// annotationNoConfig skips loading configuration, so the command works
	// even when the config is broken.
	annotationNoConfig = "semsearch.no-config"

	// annotationStderrLogs tees the log to stderr. Other commands keep the
	// terminal for their own output, and `mcp` needs stdout for JSON-RPC.
	annotationStderrLogs = "semsearch.stderr-logs"
)

// globalOptions holds the persistent flags and the state built from them.
type globalOptions struct {
	dbPath     string
	configFile string
	debug      bool
	noTUI      bool
	profile    profiling.Options

	cfg      *config.Config
	cleanups []func()
}

// NewRootCmd creates the semsearch root command.
func NewRootCmd() *cobra.Command {
	cmd, _ := newRootCmd()
	return cmd
}

func newRootCmd() (*cobra.Command, *globalOptions) {
	g := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "semsearch",
		Short: "Semantic search over your documents",
		Long: `semsearch indexes Markdown, text and PDF documents into a local vector
collection and finds passages by meaning rather than by keyword.

Index a directory, then search it from the command line, over HTTP
('semsearch serve') or from an MCP client ('semsearch mcp').`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			g.finish()
			return nil
		},
	}
	cmd.SetVersionTemplate("semsearch version {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVar(&g.dbPath, "db", "", "Index directory (overrides store.path)")
	pf.StringVar(&g.configFile, "config", "", "Config file (default: .semsearch.yaml in the working directory)")
	pf.BoolVar(&g.debug, "debug", false, "Log at debug level to "+logging.DefaultLogPath())
	pf.BoolVar(&g.noTUI, "no-tui", false, "Plain progress output instead of the interactive view")
	pf.StringVar(&g.profile.CPU, "profile-cpu", "", "Write a CPU profile to file")
	pf.StringVar(&g.profile.Heap, "profile-mem", "", "Write a heap profile to file")
	pf.StringVar(&g.profile.Trace, "profile-trace", "", "Write an execution trace to file")

	cmd.AddCommand(
		newIndexCmd(g),
		newSearchCmd(g),
		newStatsCmd(g),
		newClearCmd(g),
		newServeCmd(g),
		newMCPCmd(g),
		newConfigCmd(g),
		newVersionCmd(),
		newLogsCmd(),
	)

	return cmd, g
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, g := newRootCmd()
	err := cmd.ExecuteContext(ctx)
	// PersistentPostRunE is skipped when a command fails.
	g.finish()

	if err != nil {
		_, _ = fmt.Fprint(cmd.ErrOrStderr(), errors.FormatForCLI(err))
		return 1
	}
	return 0
}

// setup loads configuration and installs the logger and profilers.
func (g *globalOptions) setup(cmd *cobra.Command) error {
	level := "info"
	if cmd.Annotations[annotationNoConfig] == "" {
		cfg, err := g.loadConfig()
		if err != nil {
			return err
		}
		level = cfg.Server.LogLevel
	}
	if g.debug {
		level = "debug"
	}

	logCfg := logging.StdioConfig(level)
	logCfg.WriteToStderr = cmd.Annotations[annotationStderrLogs] != ""
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	slog.SetDefault(logger)
	g.cleanups = append(g.cleanups, cleanup)

	slog.Debug("command_started",
		slog.String("command", cmd.CommandPath()),
		slog.String("version", version.Version))

	if g.profile.Enabled() {
		session, err := profiling.Start(g.profile)
		if err != nil {
			return err
		}
		g.cleanups = append(g.cleanups, func() {
			if err := session.Stop(); err != nil {
				slog.Warn("profile_write_failed", slog.String("error", err.Error()))
			}
		})
	}
	return nil
}

// finish runs cleanups in reverse order. It is safe to call twice.
func (g *globalOptions) finish() {
	for i := len(g.cleanups) - 1; i >= 0; i-- {
		g.cleanups[i]()
	}
	g.cleanups = nil
}

// loadConfig loads configuration for the working directory once and
// applies --db.
func (g *globalOptions) loadConfig() (*config.Config, error) {
	if g.cfg != nil {
		return g.cfg, nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	cfg, err := config.Load(wd, g.configFile)
	if err != nil {
		return nil, err
	}
	if g.dbPath != "" {
		cfg.Store.Path = g.dbPath
	}

	g.cfg = cfg
	return cfg, nil
}
