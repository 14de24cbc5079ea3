package tools

import (
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/narra-go/internal/db"
)

// ErrorResult creates a tool error result with an optional recovery hint.
// Returns IsError=true so the model can see the failure and self-correct.
func ErrorResult(msg, hint string) *mcp.CallToolResult {
	text := msg
	if hint != "" {
		text = msg + ". " + hint
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}

// TextResult creates a success result with text content.
func TextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// ErrorFor maps a typed error from the service layers to a tool error
// with a remediation hint.
func ErrorFor(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return ErrorResult(err.Error(), "Check the entity id, or use search to find the right one")
	case errors.Is(err, db.ErrValidation):
		return ErrorResult(err.Error(), "Adjust the parameters and retry")
	case errors.Is(err, db.ErrConflict):
		return ErrorResult(err.Error(), "The record already exists; use an update operation instead")
	case errors.Is(err, db.ErrReferentialIntegrity):
		return ErrorResult(err.Error(), "Update or delete the referencing entities first")
	case errors.Is(err, db.ErrQuery), errors.Is(err, db.ErrDatabase), errors.Is(err, db.ErrTransaction):
		return ErrorResult(err.Error(), "Database error; check that SurrealDB is reachable")
	default:
		return ErrorResult(err.Error(), "")
	}
}
