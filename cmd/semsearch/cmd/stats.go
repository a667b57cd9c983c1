package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/semsearch/internal/output"
)

// statsJSON is the --json document.
type statsJSON struct {
	TotalChunks    int    `json:"total_chunks"`
	CollectionName string `json:"collection_name"`
	Files          int    `json:"files"`
	Model          string `json:"model,omitempty"`
	Dimensions     int    `json:"dimensions,omitempty"`
	Metric         string `json:"metric"`
	Path           string `json:"path"`
}

func newStatsCmd(g *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
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

			stats, err := st.indexer.Stats(ctx)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if !jsonOutput {
				out.Stats(stats)
				return nil
			}

			files, err := st.collection.Files(ctx)
			if err != nil {
				return err
			}
			return out.JSON(statsJSON{
				TotalChunks:    stats.TotalChunks,
				CollectionName: stats.CollectionName,
				Files:          len(files),
				Model:          st.collection.Model(),
				Dimensions:     st.collection.Dimensions(),
				Metric:         st.collection.Metric().Name(),
				Path:           st.collection.Path(),
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output statistics as JSON")

	return cmd
}
