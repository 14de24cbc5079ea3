package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/narra-go/internal/db"
	"github.com/raphaelgruber/narra-go/internal/session"
)

// SessionInput is the parameter envelope for the session tool.
type SessionInput struct {
	Operation string `json:"operation" jsonschema:"required,GetContext PinEntity UnpinEntity BeginSession or EndSession"`

	ID          string   `json:"id,omitempty" jsonschema:"Entity id for pinning"`
	Mentions    []string `json:"mentions,omitempty" jsonschema:"Entity ids or plain names mentioned in the current exchange"`
	MaxEntities int      `json:"max_entities,omitempty"`
	TokenBudget int      `json:"token_budget,omitempty"`
	DetailLevel string   `json:"detail_level,omitempty" jsonschema:"minimal, summary, or full"`
}

type sessionHandler struct {
	deps *Dependencies
}

// NewSessionHandler creates the session tool dispatcher.
func NewSessionHandler(deps *Dependencies) mcp.ToolHandlerFor[SessionInput, any] {
	h := &sessionHandler{deps: deps}
	return func(ctx context.Context, req *mcp.CallToolRequest, input SessionInput) (
		*mcp.CallToolResult, any, error,
	) {
		result, err := h.dispatch(ctx, input)
		if err != nil {
			h.deps.Logger.Error("session op failed", "operation", input.Operation, "error", err)
			return ErrorFor(err), nil, nil
		}
		return result, nil, nil
	}
}

func (h *sessionHandler) dispatch(ctx context.Context, input SessionInput) (*mcp.CallToolResult, error) {
	switch input.Operation {
	case "GetContext":
		return h.getContext(ctx, input)
	case "PinEntity":
		return h.pin(input)
	case "UnpinEntity":
		return h.unpin(input)
	case "BeginSession":
		return h.begin(ctx)
	case "EndSession":
		return h.end()
	}
	return nil, db.Validationf("unknown session operation %q", input.Operation)
}

func (h *sessionHandler) getContext(ctx context.Context, input SessionInput) (*mcp.CallToolResult, error) {
	budget := input.TokenBudget
	if budget <= 0 {
		budget = session.DefaultContextBudget
	}
	if budget > h.deps.Config.MaxTokenBudget {
		budget = h.deps.Config.MaxTokenBudget
	}

	result, err := h.deps.Context.GetContext(ctx, session.ContextRequest{
		Mentions:    input.Mentions,
		MaxEntities: input.MaxEntities,
		TokenBudget: budget,
		DetailLevel: session.DetailLevel(input.DetailLevel),
	})
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Total:         len(result.Entities),
		TokenEstimate: result.TokenTotal,
	}
	if result.Truncated {
		resp.Truncated = boolPtr(true)
	}
	for _, entity := range result.Entities {
		resp.Results = append(resp.Results, EntityResult{
			ID:         entity.ID,
			EntityType: entity.EntityType,
			Name:       entity.Name,
			Content:    entity.Content,
			Confidence: confidence(entity.Score),
		})
	}
	if result.PinnedCount > 0 {
		resp.Hints = append(resp.Hints,
			fmt.Sprintf("%d pinned entities always included", result.PinnedCount))
	}
	if result.Truncated {
		resp.Hints = append(resp.Hints, "Context truncated by token budget; raise token_budget or pin fewer entities")
	}
	return resp.Finalize(), nil
}

func (h *sessionHandler) pin(input SessionInput) (*mcp.CallToolResult, error) {
	if input.ID == "" {
		return nil, db.Validationf("PinEntity requires id")
	}
	if err := h.deps.State.Pin(input.ID); err != nil {
		return nil, err
	}
	resp := &Response{
		Results: []EntityResult{{ID: input.ID, EntityType: "pin", Name: input.ID, Content: "pinned"}},
		Total:   1,
		Hints:   []string{"Pinned entities are always part of GetContext"},
	}
	return resp.Finalize(), nil
}

func (h *sessionHandler) unpin(input SessionInput) (*mcp.CallToolResult, error) {
	if input.ID == "" {
		return nil, db.Validationf("UnpinEntity requires id")
	}
	if err := h.deps.State.Unpin(input.ID); err != nil {
		return nil, err
	}
	resp := &Response{
		Results: []EntityResult{{ID: input.ID, EntityType: "pin", Name: input.ID, Content: "unpinned"}},
		Total:   1,
	}
	return resp.Finalize(), nil
}

func (h *sessionHandler) begin(ctx context.Context) (*mcp.CallToolResult, error) {
	startup, err := h.deps.Startup.Begin(ctx)
	if err != nil {
		return nil, err
	}

	resp := &Response{Total: len(startup.RecentEntities)}
	for _, entity := range startup.RecentEntities {
		resp.Results = append(resp.Results, EntityResult{
			ID:         entity.ID,
			EntityType: entity.EntityType,
			Name:       entity.Name,
			Content:    entity.Content,
		})
	}
	resp.Hints = append(resp.Hints, startup.Summary)
	if len(startup.PendingDecisions) > 0 {
		pending := make([]string, 0, len(startup.PendingDecisions))
		for _, d := range startup.PendingDecisions {
			pending = append(pending, d.Description)
		}
		resp.Hints = append(resp.Hints, "Pending decisions: "+strings.Join(pending, "; "))
	}
	return resp.Finalize(), nil
}

func (h *sessionHandler) end() (*mcp.CallToolResult, error) {
	h.deps.State.MarkSessionEnd()
	resp := &Response{
		Results: []EntityResult{{ID: "session", EntityType: "session", Name: "session", Content: "ended"}},
		Total:   1,
	}
	return resp.Finalize(), nil
}
