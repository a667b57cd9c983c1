package cmd

import (
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/semsearch/internal/errors"
	"github.com/Aman-CERP/semsearch/internal/logging"
	"github.com/Aman-CERP/semsearch/internal/ui"
)

type logsOptions struct {
	lines   int
	follow  bool
	level   string
	pattern string
	file    string
	noColor bool
}

func newLogsCmd() *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the semsearch log",
		Long: `Show recent entries of the semsearch log file, optionally following it.

The log is written as JSON lines to ` + logging.DefaultLogPath() + `.`,
		Example: `  semsearch logs -n 100
  semsearch logs -f --level warn
  semsearch logs --grep index_`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoConfig: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Keep printing new entries")
	cmd.Flags().StringVar(&opts.level, "level", "debug", "Minimum level: debug, info, warn, error")
	cmd.Flags().StringVar(&opts.pattern, "grep", "", "Only lines matching this regular expression")
	cmd.Flags().StringVar(&opts.file, "file", "", "Log file (default: the semsearch log)")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colors")

	return cmd
}

func runLogs(cmd *cobra.Command, opts logsOptions) error {
	level, err := logging.ParseLevel(opts.level)
	if err != nil {
		return errors.ValidationError(err.Error(), nil)
	}

	var pattern *regexp.Regexp
	if opts.pattern != "" {
		pattern, err = regexp.Compile(opts.pattern)
		if err != nil {
			return errors.ValidationError(fmt.Sprintf("invalid --grep pattern: %v", err), nil)
		}
	}

	path, err := logging.FindLogFile(opts.file)
	if err != nil {
		missing := opts.file
		if missing == "" {
			missing = logging.DefaultLogPath()
		}
		return errors.NotFound(missing, err).WithSuggestion("run any semsearch command to create the log")
	}

	out := cmd.OutOrStdout()
	viewer := logging.NewViewer(logging.ViewerConfig{
		MinLevel: level,
		Pattern:  pattern,
		NoColor:  opts.noColor || ui.DetectNoColor() || !ui.IsTTY(out),
	}, out)

	entries, err := viewer.Tail(path, opts.lines)
	if err != nil {
		return err
	}
	viewer.Print(entries)

	if !opts.follow {
		return nil
	}

	ctx := cmd.Context()
	ch := make(chan logging.Entry)
	errCh := make(chan error, 1)
	go func() {
		errCh <- viewer.Follow(ctx, path, ch)
	}()
	for {
		select {
		case e := <-ch:
			viewer.Print([]logging.Entry{e})
		case err := <-errCh:
			return err
		}
	}
}
