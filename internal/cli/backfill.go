package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/narra-go/internal/embedding"
)

var backfillTable string

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Regenerate missing or stale embeddings",
	Long: `Walks the embeddable tables and regenerates embeddings for records
that are missing a vector or flagged stale. Requires a reachable
embedding provider.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		embedder, err := embedding.NewEmbedder(cfg)
		if err != nil {
			return fmt.Errorf("init embedder: %w", err)
		}

		service := embedding.NewService(dbClient, embedder, cfg.EmbedProvider)

		var stats *embedding.BackfillStats
		if backfillTable != "" {
			stats, err = service.BackfillTable(cmd.Context(), backfillTable)
		} else {
			stats, err = service.BackfillAll(cmd.Context())
		}
		if err != nil {
			return fmt.Errorf("backfill: %w", err)
		}

		for table, count := range stats.ByType {
			fmt.Printf("%-12s %d embedded\n", table, count)
		}
		fmt.Printf("Total: %d entities, %d embedded, %d skipped, %d failed\n",
			stats.TotalEntities, stats.Embedded, stats.Skipped, stats.Failed)
		return nil
	},
}

func init() {
	backfillCmd.Flags().StringVarP(&backfillTable, "table", "t", "", "restrict to one table (character, location, event, scene)")
}
