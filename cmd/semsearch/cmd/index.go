package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/semsearch/internal/output"
	"github.com/Aman-CERP/semsearch/internal/scanner"
	"github.com/Aman-CERP/semsearch/internal/ui"
)

// defaultCLIExtensions differ from the config default: PDFs are opt-in on
// the command line.
var defaultCLIExtensions = []string{"md", "txt"}

func newIndexCmd(g *globalOptions) *cobra.Command {
	var extensions []string

	cmd := &cobra.Command{
		Use:   "index <directory>",
		Short: "Index all documents in a directory",
		Long: `Index every matching document under a directory.

Files are parsed, split into overlapping passages and embedded. Re-indexing
a file replaces its passages. Files that fail are reported and skipped.`,
		Example: `  semsearch index ./docs
  semsearch index ./papers -e pdf -e md`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, g, args[0], extensions)
		},
	}

	cmd.Flags().StringSliceVarP(&extensions, "extensions", "e", defaultCLIExtensions,
		"File extensions to index, with or without the leading dot (repeatable)")

	return cmd
}

func runIndex(cmd *cobra.Command, g *globalOptions, dir string, extensions []string) error {
	ctx := cmd.Context()
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("🗂️ ", "Indexing directory: %s", dir)

	exts := scanner.NormalizeExtensions(extensions)

	// Counting first gives the progress view a total. A failure here is
	// reported by the indexer below.
	total := 0
	if files, err := scanner.Collect(ctx, scanner.Options{
		Root:        dir,
		Extensions:  exts,
		ExcludeDirs: cfg.Index.ExcludeDirs,
		IgnoreFiles: cfg.Index.IgnoreFiles,
	}); err == nil {
		total = len(files)
	}

	renderer := ui.NewRenderer(ui.NewConfig(cmd.ErrOrStderr(),
		ui.WithForcePlain(g.noTUI),
		ui.WithDirectory(dir)))
	observer := ui.NewIndexObserver(renderer, total)

	st, err := openStack(ctx, cfg, observer)
	if err != nil {
		return err
	}
	defer closeStack(st)

	// Build the model now so an unusable embedder fails the run instead of
	// every file.
	embedder, err := st.embedder.Get(ctx)
	if err != nil {
		return err
	}

	if err := st.lock.TryLock(); err != nil {
		return err
	}
	defer func() { _ = st.lock.Unlock() }()

	if err := renderer.Start(ctx); err != nil {
		return err
	}
	renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageScanning,
		Total:   total,
		Message: fmt.Sprintf("%d matching files", total),
	})

	start := time.Now()
	res, err := st.indexer.IndexDirectory(ctx, dir, exts)
	if err != nil {
		_ = renderer.Stop()
		return err
	}

	_, _, chunks := observer.Counts()
	renderer.Complete(ui.CompletionStats{
		Files:    res.Indexed,
		Failed:   res.Failed,
		Chunks:   chunks,
		Duration: time.Since(start),
		Embedder: fmt.Sprintf("%s (%d dims)", embedder.ModelName(), embedder.Dimensions()),
	})
	_ = renderer.Stop()

	if warn := res.PartialFailure(); warn != nil {
		slog.Warn("index_partial", slog.Int("indexed", res.Indexed), slog.Int("failed", res.Failed))
	}

	out.IndexResult(res)
	return nil
}
