package tools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterAll registers all tools with the MCP server.
// This is called from main after server creation but before Run().
func RegisterAll(server *mcp.Server, deps *Dependencies) {
	// Query tool - all read operations behind one dispatcher
	mcp.AddTool(server, &mcp.Tool{
		Name:        "query",
		Description: "Read the world: get, search, traverse, timelines, analytics, and consistency reports. Pass the operation name plus its parameters.",
	}, NewQueryHandler(deps))

	// Mutate tool - all write operations behind one dispatcher
	mcp.AddTool(server, &mcp.Tool{
		Name:        "mutate",
		Description: "Change the world: create, update, delete, relate, record knowledge, batch imports, and maintenance operations. Critical consistency violations block the write.",
	}, NewMutateHandler(deps))

	// Session tool - working-context and pin management
	mcp.AddTool(server, &mcp.Tool{
		Name:        "session",
		Description: "Manage the working session: assemble a token-budgeted entity context, pin or unpin entities, and begin or end a session.",
	}, NewSessionHandler(deps))

	// Export tool - full world snapshot as YAML
	mcp.AddTool(server, &mcp.Tool{
		Name:        "export_world",
		Description: "Export the entire world as a YAML document, inline or to a file. The document round-trips through the ImportYaml mutation.",
	}, NewExportHandler(deps))

	// Graph tool - Mermaid relationship diagrams
	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_graph",
		Description: "Render the relationship graph as a Mermaid diagram, either the whole world or a character's neighborhood at a given depth.",
	}, NewGraphHandler(deps))
}
