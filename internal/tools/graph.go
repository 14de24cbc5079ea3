package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/narra-go/internal/export"
)

// GraphInput is the parameter envelope for the generate_graph tool.
type GraphInput struct {
	Scope        string `json:"scope,omitempty" jsonschema:"world for the full graph, or a character id for a neighborhood"`
	Depth        int    `json:"depth,omitempty" jsonschema:"Traversal depth for neighborhood scope, default 1"`
	IncludeRoles bool   `json:"include_roles,omitempty" jsonschema:"Annotate nodes with character roles"`
	Direction    string `json:"direction,omitempty" jsonschema:"Mermaid flow direction, TB or LR"`
	Filename     string `json:"filename,omitempty" jsonschema:"Write the diagram to this file instead of returning it inline"`
}

// NewGraphHandler creates the generate_graph tool handler.
func NewGraphHandler(deps *Dependencies) mcp.ToolHandlerFor[GraphInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GraphInput) (
		*mcp.CallToolResult, any, error,
	) {
		scope := input.Scope
		if scope == "" {
			scope = export.ScopeWorld
		}
		depth := clampDepth(input.Depth, 1)

		diagram, err := deps.Exporter.Mermaid(ctx, scope, depth, export.GraphOptions{
			IncludeRoles: input.IncludeRoles,
			Direction:    input.Direction,
		})
		if err != nil {
			deps.Logger.Error("graph generation failed", "scope", scope, "error", err)
			return ErrorFor(err), nil, nil
		}

		if input.Filename != "" {
			if dir := filepath.Dir(input.Filename); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return ErrorFor(fmt.Errorf("create graph directory: %w", err)), nil, nil
				}
			}
			if err := os.WriteFile(input.Filename, []byte(diagram), 0o644); err != nil {
				return ErrorFor(err), nil, nil
			}
			resp := &Response{
				Results: []EntityResult{{
					ID:         input.Filename,
					EntityType: "graph",
					Name:       input.Filename,
					Content:    fmt.Sprintf("relationship graph written for scope %q", scope),
				}},
				Total: 1,
			}
			return resp.Finalize(), nil, nil
		}
		return TextResult(diagram), nil, nil
	}
}
