package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/narra-go/internal/export"
)

var importOnConflict string

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a YAML world document",
	Long: `Imports a YAML world document. Entities are created in dependency
order; per-row failures are reported and do not stop the run.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}

		doc, err := export.ParseDocument(data)
		if err != nil {
			return fmt.Errorf("parse document: %w", err)
		}

		mode := export.ParseConflictMode(importOnConflict)

		result, err := export.NewExporter(dbClient).Import(cmd.Context(), doc, mode)
		if err != nil {
			return fmt.Errorf("import world: %w", err)
		}

		for _, section := range result.ByType {
			if section.Created+section.Skipped+section.Updated+len(section.Errors) == 0 {
				continue
			}
			fmt.Printf("%-14s created=%d skipped=%d updated=%d errors=%d\n",
				section.EntityType, section.Created, section.Skipped, section.Updated, len(section.Errors))
			if verbose {
				for _, msg := range section.Errors {
					fmt.Printf("  %s\n", msg)
				}
			}
		}
		fmt.Printf("Total: %d created, %d skipped, %d updated, %d errors\n",
			result.TotalCreated, result.TotalSkipped, result.TotalUpdated, result.TotalErrors)

		if result.TotalErrors > 0 && !verbose {
			fmt.Println("Re-run with --verbose for per-row errors")
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importOnConflict, "on-conflict", "error", "conflict handling: error, skip, or update")
}
