package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/semsearch/internal/config"
	"github.com/Aman-CERP/semsearch/internal/errors"
	"github.com/Aman-CERP/semsearch/internal/output"
	"github.com/Aman-CERP/semsearch/internal/search"
)

type searchOptions struct {
	topK      int
	threshold float64
	filter    string
	format    string // "text" or "json"
}

// searchJSON is the --format json document.
type searchJSON struct {
	Query   string          `json:"query"`
	Results []search.Result `json:"results"`
	Count   int             `json:"count"`
}

func newSearchCmd(g *globalOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Search indexed documents",
		Long: `Search indexed documents by meaning.

Results are the passages most similar to the query, best first. With
--filter only passages from files whose name contains the filter are kept,
and the threshold is not applied.`,
		Example: `  semsearch search how do I make pasta sauce
  semsearch search "launch window" -k 3 -t 0.3
  semsearch search orbit -f astronomy --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, g, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", search.DefaultTopK, "Number of results to return")
	cmd.Flags().Float64VarP(&opts.threshold, "threshold", "t", config.NewConfig().Search.CLIThreshold,
		"Minimum similarity; when unset, search.cli_threshold from the config")
	cmd.Flags().StringVarP(&opts.filter, "filter", "f", "", "Only files whose name contains this text")
	cmd.Flags().StringVar(&opts.format, "format", "text", "Output format: text, json")

	return cmd
}

func runSearch(cmd *cobra.Command, g *globalOptions, query string, opts searchOptions) error {
	ctx := cmd.Context()

	switch opts.format {
	case "text", "json":
	default:
		return errors.ValidationError(fmt.Sprintf("unknown format %q", opts.format), nil).
			WithSuggestion("use --format text or --format json")
	}
	if opts.topK <= 0 {
		return errors.ValidationError(fmt.Sprintf("top-k must be positive, got %d", opts.topK), nil)
	}

	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("threshold") {
		opts.threshold = cfg.Search.CLIThreshold
	}

	st, err := openStack(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer closeStack(st)

	slog.Info("search_started",
		slog.String("query", query),
		slog.Int("top_k", opts.topK),
		slog.String("filter", opts.filter))

	var results []search.Result
	if opts.filter != "" {
		results, err = st.engine.SearchWithFilter(ctx, query, opts.filter, opts.topK)
	} else {
		results, err = st.engine.Search(ctx, query, opts.topK, opts.threshold)
	}
	if err != nil {
		return err
	}
	results = search.Rounded(results)

	out := output.New(cmd.OutOrStdout())
	if opts.format == "json" {
		return out.JSON(searchJSON{Query: query, Results: results, Count: len(results)})
	}

	out.SearchHeader(query, opts.topK, opts.threshold)
	out.SearchResults(results)
	return nil
}
