// Package resources registers the narra:// MCP resource catalog and the
// prompt templates.
package resources

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/narra-go/internal/tools"
)

// RegisterAll registers all resources and prompts with the MCP server.
func RegisterAll(server *mcp.Server, deps *tools.Dependencies) {
	server.AddResource(sessionContextResource(), sessionContextHandler(deps))
	server.AddResource(serverStatsResource(), serverStatsHandler(deps))
	server.AddResource(consistencyIssuesResource(), consistencyIssuesHandler(deps))
	server.AddResource(tensionMatrixResource(), tensionMatrixHandler(deps))
	server.AddResource(importTemplateResource(), staticTextHandler(importTemplateURI, "application/yaml", importTemplateYAML))
	server.AddResource(importSchemaResource(), staticTextHandler(importSchemaURI, "text/markdown", importSchemaDoc))

	server.AddResourceTemplate(entityResourceTemplate(), entityHandler(deps))
	server.AddResourceTemplate(dossierResourceTemplate(), dossierHandler(deps))

	registerPrompts(server)
}

const (
	sessionContextURI    = "narra://session/context"
	serverStatsURI       = "narra://server/stats"
	consistencyIssuesURI = "narra://consistency/issues"
	tensionMatrixURI     = "narra://analysis/tension-matrix"
	importTemplateURI    = "narra://schema/import-template"
	importSchemaURI      = "narra://schema/import-schema"
)

func sessionContextResource() *mcp.Resource {
	return &mcp.Resource{
		Name:        "session_context",
		Title:       "Working context",
		Description: "The current token-budgeted working context: pinned and recently touched entities with summaries",
		MIMEType:    "application/json",
		URI:         sessionContextURI,
	}
}

func serverStatsResource() *mcp.Resource {
	return &mcp.Resource{
		Name:        "server_stats",
		Title:       "Server statistics",
		Description: "Per-method call counts, error counts, and timings since startup",
		MIMEType:    "application/json",
		URI:         serverStatsURI,
	}
}

func consistencyIssuesResource() *mcp.Resource {
	return &mcp.Resource{
		Name:        "consistency_issues",
		Title:       "Consistency issues",
		Description: "Timeline, relationship, and knowledge violations across all characters",
		MIMEType:    "application/json",
		URI:         consistencyIssuesURI,
	}
}

func tensionMatrixResource() *mcp.Resource {
	return &mcp.Resource{
		Name:        "tension_matrix",
		Title:       "Tension matrix",
		Description: "All perceives pairs with tension levels, highest first",
		MIMEType:    "text/plain",
		URI:         tensionMatrixURI,
	}
}

func importTemplateResource() *mcp.Resource {
	return &mcp.Resource{
		Name:        "import_template",
		Title:       "Import template",
		Description: "A minimal YAML world document to copy when authoring an import",
		MIMEType:    "application/yaml",
		URI:         importTemplateURI,
	}
}

func importSchemaResource() *mcp.Resource {
	return &mcp.Resource{
		Name:        "import_schema",
		Title:       "Import schema",
		Description: "Field-by-field documentation of the YAML world document format",
		MIMEType:    "text/markdown",
		URI:         importSchemaURI,
	}
}

func entityResourceTemplate() *mcp.ResourceTemplate {
	return &mcp.ResourceTemplate{
		Name:        "entity",
		Title:       "Entity",
		Description: "A single entity with full details. URI format: narra://entity/{type}:{id}",
		MIMEType:    "application/json",
		URITemplate: "narra://entity/{type}:{id}",
	}
}

func dossierResourceTemplate() *mcp.ResourceTemplate {
	return &mcp.ResourceTemplate{
		Name:        "character_dossier",
		Title:       "Character dossier",
		Description: "Composite intelligence dossier for one character. URI format: narra://character/{id}/dossier",
		MIMEType:    "application/json",
		URITemplate: "narra://character/{id}/dossier",
	}
}

func staticTextHandler(uri, mimeType, text string) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{URI: uri, MIMEType: mimeType, Text: text},
			},
		}, nil
	}
}
