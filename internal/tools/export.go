package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/narra-go/internal/export"
)

// ExportInput is the parameter envelope for the export_world tool.
type ExportInput struct {
	OutputPath string `json:"output_path,omitempty" jsonschema:"File to write the YAML document to; omit to return it inline"`
}

// NewExportHandler creates the export_world tool handler.
func NewExportHandler(deps *Dependencies) mcp.ToolHandlerFor[ExportInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ExportInput) (
		*mcp.CallToolResult, any, error,
	) {
		if input.OutputPath != "" {
			doc, err := deps.Exporter.WriteFile(ctx, input.OutputPath)
			if err != nil {
				deps.Logger.Error("export failed", "path", input.OutputPath, "error", err)
				return ErrorFor(err), nil, nil
			}
			resp := &Response{
				Results: []EntityResult{{
					ID:         input.OutputPath,
					EntityType: "export",
					Name:       input.OutputPath,
					Content:    exportSummary(doc),
				}},
				Total: 1,
				Hints: []string{"Re-import with the ImportYaml mutation"},
			}
			return resp.Finalize(), nil, nil
		}

		data, err := deps.Exporter.ExportYAML(ctx)
		if err != nil {
			deps.Logger.Error("export failed", "error", err)
			return ErrorFor(err), nil, nil
		}
		return TextResult(string(data)), nil, nil
	}
}

func exportSummary(doc *export.WorldDocument) string {
	return fmt.Sprintf(
		"exported %d characters, %d locations, %d events, %d scenes, %d relationships, %d knowledge entries, %d notes, %d facts",
		len(doc.Characters), len(doc.Locations), len(doc.Events), len(doc.Scenes),
		len(doc.Relationships), len(doc.Knowledge), len(doc.Notes), len(doc.Facts))
}
