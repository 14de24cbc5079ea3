package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/narra-go/internal/db"
	"github.com/raphaelgruber/narra-go/internal/models"
)

func (h *mutateHandler) createNote(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	if input.Title == "" {
		return nil, db.Validationf("CreateNote requires title")
	}
	note, err := h.deps.Entities.CreateNote(ctx, input.Title, input.Body)
	if err != nil {
		return nil, err
	}
	id := models.RecordIDString(note.ID)

	hints := []string{}
	for _, target := range input.AttachTo {
		if err := h.deps.Entities.AttachNote(ctx, id, target); err != nil {
			hints = append(hints, fmt.Sprintf("attach to %s failed: %v", target, err))
		}
	}

	return h.created(id, "note", note.Title,
		fmt.Sprintf("note created, attached to %d entities", len(input.AttachTo)-len(hints)), hints), nil
}

func (h *mutateHandler) updateNote(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	if input.ID == "" {
		return nil, db.Validationf("UpdateNote requires id")
	}
	fields := map[string]any{}
	if input.Title != "" {
		fields["title"] = input.Title
	}
	if input.Body != "" {
		fields["body"] = input.Body
	}
	if len(fields) == 0 {
		return nil, db.Validationf("UpdateNote requires title or body")
	}
	note, err := h.deps.Entities.UpdateNote(ctx, input.ID, fields)
	if err != nil {
		return nil, err
	}
	h.deps.Summary.Invalidate(input.ID)
	return h.created(models.RecordIDString(note.ID), "note", note.Title, "note updated", nil), nil
}

func (h *mutateHandler) deleteNote(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	if input.ID == "" {
		return nil, db.Validationf("DeleteNote requires id")
	}
	if err := h.deps.Entities.DeleteNote(ctx, input.ID); err != nil {
		return nil, err
	}
	h.deps.Summary.Invalidate(input.ID)
	resp := &Response{
		Results: []EntityResult{{ID: input.ID, EntityType: "note", Name: input.ID, Content: "deleted"}},
		Total:   1,
	}
	return resp.Finalize(), nil
}

func (h *mutateHandler) attachNote(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	if input.NoteID == "" || input.ID == "" {
		return nil, db.Validationf("AttachNote requires note_id and id")
	}
	if err := h.deps.Entities.AttachNote(ctx, input.NoteID, input.ID); err != nil {
		return nil, err
	}
	resp := &Response{
		Results: []EntityResult{{
			ID: input.NoteID, EntityType: "note",
			Name:    input.NoteID,
			Content: "attached to " + input.ID,
		}},
		Total: 1,
	}
	return resp.Finalize(), nil
}

func (h *mutateHandler) detachNote(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	if input.NoteID == "" || input.ID == "" {
		return nil, db.Validationf("DetachNote requires note_id and id")
	}
	if err := h.deps.Entities.DetachNote(ctx, input.NoteID, input.ID); err != nil {
		return nil, err
	}
	resp := &Response{
		Results: []EntityResult{{
			ID: input.NoteID, EntityType: "note",
			Name:    input.NoteID,
			Content: "detached from " + input.ID,
		}},
		Total: 1,
	}
	return resp.Finalize(), nil
}

func (h *mutateHandler) createFact(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	if input.Title == "" || input.Description == "" {
		return nil, db.Validationf("CreateFact requires title and description")
	}
	fact, err := h.deps.Entities.CreateFact(ctx, models.FactInput{
		Title:            input.Title,
		Description:      input.Description,
		Categories:       input.Categories,
		EnforcementLevel: input.EnforcementLevel,
		Scope:            optional(input.Scope),
	})
	if err != nil {
		return nil, err
	}
	hints := []string{}
	if fact.EnforcementLevel == models.EnforcementStrict {
		hints = append(hints, "Strict facts block mutations that contradict them")
	}
	return h.created(models.RecordIDString(fact.ID), "fact", fact.Title,
		fmt.Sprintf("fact created [enforcement=%s]", fact.EnforcementLevel), hints), nil
}

func (h *mutateHandler) updateFact(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	if input.FactID == "" {
		return nil, db.Validationf("UpdateFact requires fact_id")
	}
	fields := map[string]any{}
	if input.Title != "" {
		fields["title"] = input.Title
	}
	if input.Description != "" {
		fields["description"] = input.Description
	}
	if input.Categories != nil {
		fields["categories"] = input.Categories
	}
	if input.EnforcementLevel != "" {
		fields["enforcement_level"] = string(models.ParseEnforcementLevel(input.EnforcementLevel))
	}
	if input.Scope != "" {
		fields["scope"] = input.Scope
	}
	if len(fields) == 0 {
		return nil, db.Validationf("UpdateFact requires at least one field")
	}
	fact, err := h.deps.Entities.UpdateFact(ctx, input.FactID, fields)
	if err != nil {
		return nil, err
	}
	return h.created(models.RecordIDString(fact.ID), "fact", fact.Title, "fact updated", nil), nil
}

func (h *mutateHandler) deleteFact(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	if input.FactID == "" {
		return nil, db.Validationf("DeleteFact requires fact_id")
	}
	if err := h.deps.Entities.DeleteFact(ctx, input.FactID); err != nil {
		return nil, err
	}
	resp := &Response{
		Results: []EntityResult{{ID: input.FactID, EntityType: "fact", Name: input.FactID, Content: "deleted"}},
		Total:   1,
	}
	return resp.Finalize(), nil
}

func (h *mutateHandler) linkFact(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	if input.FactID == "" || input.ID == "" {
		return nil, db.Validationf("LinkFact requires fact_id and id")
	}
	if err := h.deps.Entities.LinkFact(ctx, input.FactID, input.ID); err != nil {
		return nil, err
	}
	resp := &Response{
		Results: []EntityResult{{
			ID: input.FactID, EntityType: "fact",
			Name:    input.FactID,
			Content: "now applies to " + input.ID,
		}},
		Total: 1,
		Hints: []string{"Future mutations of " + input.ID + " are checked against this fact"},
	}
	return resp.Finalize(), nil
}

func (h *mutateHandler) unlinkFact(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	if input.FactID == "" || input.ID == "" {
		return nil, db.Validationf("UnlinkFact requires fact_id and id")
	}
	if err := h.deps.Entities.UnlinkFact(ctx, input.FactID, input.ID); err != nil {
		return nil, err
	}
	resp := &Response{
		Results: []EntityResult{{
			ID: input.FactID, EntityType: "fact",
			Name:    input.FactID,
			Content: "no longer applies to " + input.ID,
		}},
		Total: 1,
	}
	return resp.Finalize(), nil
}

func (h *mutateHandler) createRelationship(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	if input.FromCharacterID == "" || input.ToCharacterID == "" || input.RelType == "" {
		return nil, db.Validationf("CreateRelationship requires from_character_id, to_character_id and rel_type")
	}
	edge, err := h.deps.Relationships.CreateRelationship(ctx, models.RelationshipInput{
		FromCharacterID: input.FromCharacterID,
		ToCharacterID:   input.ToCharacterID,
		RelType:         input.RelType,
		Subtype:         optional(input.Subtype),
		Label:           optional(input.Label),
	})
	if err != nil {
		return nil, err
	}
	edgeID := models.RecordIDString(edge.ID)
	h.deps.Embedding.InvalidateEdgeChange(ctx, edgeID, input.FromCharacterID, input.ToCharacterID)
	h.deps.Summary.Invalidate(input.FromCharacterID)
	h.deps.Summary.Invalidate(input.ToCharacterID)

	hints := []string{}
	if models.SymmetricSubtypes[strings.ToLower(input.Subtype)] {
		hints = append(hints, "Symmetric subtype; consider creating the reverse edge too")
	}
	return h.created(edgeID, "relates_to",
		fmt.Sprintf("%s -> %s", input.FromCharacterID, input.ToCharacterID),
		"relationship created ("+input.RelType+")", hints), nil
}

func (h *mutateHandler) deleteRelationship(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	if input.FromCharacterID == "" || input.ToCharacterID == "" || input.RelType == "" {
		return nil, db.Validationf("DeleteRelationship requires from_character_id, to_character_id and rel_type")
	}
	err := h.deps.Relationships.DeleteRelationship(ctx, input.FromCharacterID, input.ToCharacterID, input.RelType)
	if err != nil {
		return nil, err
	}
	h.deps.Embedding.InvalidateEdgeChange(ctx, "", input.FromCharacterID, input.ToCharacterID)
	resp := &Response{
		Results: []EntityResult{{
			ID:         fmt.Sprintf("%s->%s", input.FromCharacterID, input.ToCharacterID),
			EntityType: "relates_to",
			Name:       input.RelType,
			Content:    "relationship deleted",
		}},
		Total: 1,
	}
	return resp.Finalize(), nil
}

func (h *mutateHandler) upsertPerception(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	if input.ObserverID == "" || input.TargetID == "" {
		return nil, db.Validationf("UpsertPerception requires observer_id and target_id")
	}
	edge, err := h.deps.Relationships.UpsertPerception(ctx, models.PerceptionInput{
		ObserverID:   input.ObserverID,
		TargetID:     input.TargetID,
		Perception:   optional(input.Perception),
		Feelings:     optional(input.Feelings),
		TensionLevel: input.TensionLevel,
		HistoryNotes: optional(input.HistoryNotes),
		RelTypes:     input.RelTypes,
	})
	if err != nil {
		return nil, err
	}
	edgeID := models.RecordIDString(edge.ID)
	h.deps.Embedding.InvalidateEdgeChange(ctx, edgeID, input.ObserverID, input.TargetID)
	h.deps.Summary.Invalidate(input.ObserverID)

	hints := []string{"Run PerceptionGap to compare both directions"}
	if input.TensionLevel != nil && *input.TensionLevel >= 7 {
		hints = append(hints, "High tension; UnresolvedTensions will surface this pair")
	}
	return h.created(edgeID, "perceives",
		fmt.Sprintf("%s -> %s", input.ObserverID, input.TargetID),
		"perception recorded", hints), nil
}

func (h *mutateHandler) addSceneParticipant(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	if input.SceneID == "" || input.CharacterID == "" {
		return nil, db.Validationf("AddSceneParticipant requires scene_id and character_id")
	}
	edge, err := h.deps.Relationships.AddSceneParticipant(ctx, input.SceneID, input.CharacterID,
		optional(input.Role), optional(input.Notes))
	if err != nil {
		return nil, err
	}
	h.deps.Embedding.InvalidateParticipationChange(ctx, input.SceneID, input.CharacterID)
	return h.created(models.RecordIDString(edge.ID), "participates_in",
		fmt.Sprintf("%s in %s", input.CharacterID, input.SceneID),
		"participant added", nil), nil
}

func (h *mutateHandler) addEventInvolvement(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	if input.EventID == "" || input.CharacterID == "" {
		return nil, db.Validationf("AddEventInvolvement requires event_id and character_id")
	}
	edge, err := h.deps.Relationships.AddEventInvolvement(ctx, input.EventID, input.CharacterID,
		optional(input.Role), optional(input.Impact))
	if err != nil {
		return nil, err
	}
	h.deps.Embedding.InvalidateParticipationChange(ctx, input.EventID, input.CharacterID)
	return h.created(models.RecordIDString(edge.ID), "involved_in",
		fmt.Sprintf("%s in %s", input.CharacterID, input.EventID),
		"involvement added", nil), nil
}
