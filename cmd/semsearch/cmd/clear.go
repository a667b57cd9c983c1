package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/semsearch/internal/output"
)

const clearPrompt = "Are you sure you want to clear the index?"

func newClearCmd(g *globalOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear all indexed documents",
		Long: `Remove every passage from the index. The collection keeps its metric.

Asks for confirmation unless --yes is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			if !yes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), clearPrompt) {
				out.Status("", "Aborted!")
				return nil
			}

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

			if err := st.lock.TryLock(); err != nil {
				return err
			}
			defer func() { _ = st.lock.Unlock() }()

			if err := st.indexer.Clear(ctx); err != nil {
				return err
			}
			out.Success("Index cleared successfully")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

// confirm asks a yes/no question on out and reads the answer from in.
// Anything but y or yes is a no.
func confirm(in io.Reader, out io.Writer, question string) bool {
	_, _ = fmt.Fprintf(out, "%s [y/N]: ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		_, _ = fmt.Fprintln(out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
