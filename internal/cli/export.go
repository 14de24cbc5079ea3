package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/narra-go/internal/export"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the world as YAML",
	Long:  `Exports the full world graph as a YAML document to stdout or a file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		exporter := export.NewExporter(dbClient)

		if exportOutput != "" {
			doc, err := exporter.WriteFile(cmd.Context(), exportOutput)
			if err != nil {
				return fmt.Errorf("export world: %w", err)
			}
			fmt.Printf("Exported %d characters, %d locations, %d events, %d scenes to %s\n",
				len(doc.Characters), len(doc.Locations), len(doc.Events), len(doc.Scenes), exportOutput)
			return nil
		}

		data, err := exporter.ExportYAML(cmd.Context())
		if err != nil {
			return fmt.Errorf("export world: %w", err)
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default stdout)")
}
