package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/narra-go/internal/analytics"
	"github.com/raphaelgruber/narra-go/internal/db"
	"github.com/raphaelgruber/narra-go/internal/embedding"
	"github.com/raphaelgruber/narra-go/internal/export"
	"github.com/raphaelgruber/narra-go/internal/models"
)

func (h *mutateHandler) batchCreateCharacters(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	if len(input.Characters) == 0 {
		return nil, db.Validationf("BatchCreateCharacters requires characters")
	}
	inputs := make([]models.CharacterInput, 0, len(input.Characters))
	for _, spec := range input.Characters {
		inputs = append(inputs, models.CharacterInput{
			ID:      spec.ID,
			Name:    spec.Name,
			Aliases: spec.Aliases,
			Roles:   spec.Roles,
			Profile: spec.Profile,
		})
	}
	characters, err := h.deps.Entities.CreateCharactersBatch(ctx, inputs)
	if err != nil {
		return nil, err
	}

	resp := &Response{Total: len(characters)}
	for _, c := range characters {
		id := models.RecordIDString(c.ID)
		h.deps.Embedding.SpawnRegeneration(id, "")
		resp.Results = append(resp.Results, EntityResult{
			ID: id, EntityType: "character", Name: c.Name, Content: "created",
		})
	}
	resp.Hints = []string{"Run BackfillEmbeddings once the batch settles"}
	return resp.Finalize(), nil
}

func (h *mutateHandler) batchCreateLocations(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	if len(input.Locations) == 0 {
		return nil, db.Validationf("BatchCreateLocations requires locations")
	}
	resp := &Response{}
	for _, spec := range input.Locations {
		location, err := h.deps.Entities.CreateLocation(ctx, models.LocationInput{
			ID:          spec.ID,
			Name:        spec.Name,
			Description: spec.Description,
			LocType:     spec.LocType,
		})
		if err != nil {
			resp.Hints = append(resp.Hints, fmt.Sprintf("%s: %v", spec.Name, err))
			continue
		}
		id := models.RecordIDString(location.ID)
		h.deps.Embedding.SpawnRegeneration(id, "")
		resp.Results = append(resp.Results, EntityResult{
			ID: id, EntityType: "location", Name: location.Name, Content: "created",
		})
	}
	resp.Total = len(resp.Results)
	return resp.Finalize(), nil
}

func (h *mutateHandler) batchCreateEvents(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	if len(input.Events) == 0 {
		return nil, db.Validationf("BatchCreateEvents requires events")
	}
	resp := &Response{}
	for _, spec := range input.Events {
		event, err := h.deps.Entities.CreateEvent(ctx, models.EventInput{
			ID:            spec.ID,
			Title:         spec.Title,
			Description:   spec.Description,
			Sequence:      spec.Sequence,
			Date:          spec.Date,
			DatePrecision: spec.DatePrecision,
		})
		if err != nil {
			resp.Hints = append(resp.Hints, fmt.Sprintf("%s: %v", spec.Title, err))
			continue
		}
		id := models.RecordIDString(event.ID)
		h.deps.Embedding.SpawnRegeneration(id, "")
		resp.Results = append(resp.Results, EntityResult{
			ID: id, EntityType: "event", Name: event.Title,
			Content: fmt.Sprintf("created at sequence %d", event.Sequence),
		})
	}
	resp.Total = len(resp.Results)
	return resp.Finalize(), nil
}

func (h *mutateHandler) batchCreateRelationships(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	if len(input.Relationships) == 0 {
		return nil, db.Validationf("BatchCreateRelationships requires relationships")
	}
	resp := &Response{}
	for _, spec := range input.Relationships {
		edge, err := h.deps.Relationships.CreateRelationship(ctx, models.RelationshipInput{
			FromCharacterID: spec.FromCharacterID,
			ToCharacterID:   spec.ToCharacterID,
			RelType:         spec.RelType,
			Subtype:         spec.Subtype,
			Label:           spec.Label,
		})
		if err != nil {
			resp.Hints = append(resp.Hints,
				fmt.Sprintf("%s->%s: %v", spec.FromCharacterID, spec.ToCharacterID, err))
			continue
		}
		edgeID := models.RecordIDString(edge.ID)
		h.deps.Embedding.InvalidateEdgeChange(ctx, edgeID, spec.FromCharacterID, spec.ToCharacterID)
		resp.Results = append(resp.Results, EntityResult{
			ID: edgeID, EntityType: "relates_to",
			Name:    fmt.Sprintf("%s -> %s", spec.FromCharacterID, spec.ToCharacterID),
			Content: "created (" + spec.RelType + ")",
		})
	}
	resp.Total = len(resp.Results)
	return resp.Finalize(), nil
}

func (h *mutateHandler) batchRecordKnowledge(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	if len(input.Knowledge) == 0 {
		return nil, db.Validationf("BatchRecordKnowledge requires knowledge")
	}
	resp := &Response{}
	for _, spec := range input.Knowledge {
		knowledge, state, err := h.deps.Knowledge.CreateKnowledge(ctx, models.KnowledgeInput{
			CharacterID:     spec.CharacterID,
			Fact:            spec.Fact,
			Certainty:       spec.Certainty,
			Method:          spec.Method,
			SourceCharacter: spec.SourceCharacterID,
			EventID:         spec.EventID,
		})
		if err != nil {
			resp.Hints = append(resp.Hints, fmt.Sprintf("%s: %v", spec.CharacterID, err))
			continue
		}
		h.deps.Embedding.InvalidateKnowledgeChange(ctx,
			models.RecordIDString(knowledge.ID), spec.CharacterID)
		resp.Results = append(resp.Results, EntityResult{
			ID: models.RecordIDString(state.ID), EntityType: "knows",
			Name:    fmt.Sprintf("%s -> %s", spec.CharacterID, knowledge.Fact),
			Content: "recorded",
		})
	}
	resp.Total = len(resp.Results)
	return resp.Finalize(), nil
}

func (h *mutateHandler) importYaml(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	if input.Import == nil {
		return nil, db.Validationf("ImportYaml requires an import document")
	}
	result, err := h.deps.Exporter.Import(ctx, input.Import, export.ParseConflictMode(input.OnConflict))
	if err != nil {
		return nil, err
	}

	resp := &Response{Total: result.TotalCreated + result.TotalUpdated}
	for _, tr := range result.ByType {
		resp.Results = append(resp.Results, reportRow(
			"import:"+tr.EntityType, "import_result", tr.EntityType, tr))
	}
	resp.Hints = []string{
		fmt.Sprintf("created %d, updated %d, skipped %d, errors %d",
			result.TotalCreated, result.TotalUpdated, result.TotalSkipped, result.TotalErrors),
		"Run BackfillEmbeddings to vectorize the imported world",
	}
	return resp.Finalize(), nil
}

func (h *mutateHandler) backfillEmbeddings(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	var (
		stats *embedding.BackfillStats
		err   error
	)
	if input.EntityType != "" {
		stats, err = h.deps.Embedding.BackfillTable(ctx, input.EntityType)
	} else {
		stats, err = h.deps.Embedding.BackfillAll(ctx)
	}
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Results: []EntityResult{reportRow("backfill", "backfill_result", "embedding backfill", stats)},
		Total:   stats.Embedded,
		Hints: []string{fmt.Sprintf("embedded %d of %d entities (%d failed)",
			stats.Embedded, stats.TotalEntities, stats.Failed)},
	}
	if stats.Failed > 0 {
		resp.Hints = append(resp.Hints, "Check the log for per-entity failures")
	}
	return resp.Finalize(), nil
}

func (h *mutateHandler) baselineArcSnapshots(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	count, err := h.deps.Arcs.Baseline(ctx, input.EntityType)
	if err != nil {
		return nil, err
	}
	resp := &Response{
		Results: []EntityResult{{
			ID: "arc-baseline", EntityType: "arc_snapshot",
			Name:    "baseline snapshots",
			Content: fmt.Sprintf("%d baseline snapshots recorded", count),
		}},
		Total: count,
		Hints: []string{"ArcHistory and ArcDrift now have a starting point"},
	}
	return resp.Finalize(), nil
}

func (h *mutateHandler) savePhases(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	weights := analytics.PhaseWeights{
		Content:      input.ContentWeight,
		Neighborhood: input.NeighborhoodWeight,
		Temporal:     input.TemporalWeight,
	}
	report, err := h.deps.Phases.Detect(ctx, input.K, weights)
	if err != nil {
		return nil, err
	}
	if err := h.deps.Phases.SavePhases(ctx, report.Phases); err != nil {
		return nil, err
	}

	resp := &Response{Total: len(report.Phases)}
	for _, phase := range report.Phases {
		resp.Results = append(resp.Results, reportRow(
			fmt.Sprintf("phase-%d", phase.ClusterID), "phase", phase.Label, phase))
	}
	resp.Hints = []string{"Saved phases replace any previous detection run"}
	return resp.Finalize(), nil
}

func (h *mutateHandler) clearPhases(ctx context.Context) (*mcp.CallToolResult, error) {
	if err := h.deps.DB.Exec(ctx, `DELETE phase`, nil); err != nil {
		return nil, err
	}
	resp := &Response{
		Results: []EntityResult{{ID: "phases", EntityType: "phase", Name: "saved phases", Content: "cleared"}},
		Total:   1,
	}
	return resp.Finalize(), nil
}

func (h *mutateHandler) protectEntity(input MutateInput) (*mcp.CallToolResult, error) {
	if input.ID == "" {
		return nil, db.Validationf("ProtectEntity requires id")
	}
	h.deps.Impact.Protect(input.ID)
	resp := &Response{
		Results: []EntityResult{{ID: input.ID, EntityType: "protection", Name: input.ID, Content: "protected"}},
		Total:   1,
		Hints:   []string{"AnalyzeImpact now reports this entity as critical at any distance"},
	}
	return resp.Finalize(), nil
}

func (h *mutateHandler) unprotectEntity(input MutateInput) (*mcp.CallToolResult, error) {
	if input.ID == "" {
		return nil, db.Validationf("UnprotectEntity requires id")
	}
	h.deps.Impact.Unprotect(input.ID)
	resp := &Response{
		Results: []EntityResult{{ID: input.ID, EntityType: "protection", Name: input.ID, Content: "unprotected"}},
		Total:   1,
	}
	return resp.Finalize(), nil
}

func (h *mutateHandler) recordDecision(input MutateInput) (*mcp.CallToolResult, error) {
	if input.Description == "" {
		return nil, db.Validationf("RecordDecision requires description")
	}
	h.deps.Impact.RecordDecision(input.Description, input.EntityIDs)
	resp := &Response{
		Results: []EntityResult{{
			ID: "decision", EntityType: "decision",
			Name:    input.Description,
			Content: fmt.Sprintf("recorded against %d entities", len(input.EntityIDs)),
		}},
		Total: 1,
	}
	return resp.Finalize(), nil
}

func (h *mutateHandler) deferImplications(input MutateInput) (*mcp.CallToolResult, error) {
	if input.Description == "" {
		return nil, db.Validationf("DeferImplications requires description")
	}
	id, err := h.deps.Impact.DeferImplications(input.Description, input.EntityIDs)
	if err != nil {
		return nil, err
	}
	resp := &Response{
		Results: []EntityResult{{
			ID: id, EntityType: "pending_decision",
			Name:    input.Description,
			Content: "deferred; resolve with ResolveImplication",
		}},
		Total: 1,
		Hints: []string{"Pending decisions surface at session start"},
	}
	return resp.Finalize(), nil
}

func (h *mutateHandler) resolveImplication(input MutateInput) (*mcp.CallToolResult, error) {
	if input.DecisionID == "" {
		return nil, db.Validationf("ResolveImplication requires decision_id")
	}
	if err := h.deps.Impact.ResolveImplication(input.DecisionID); err != nil {
		return nil, err
	}
	resp := &Response{
		Results: []EntityResult{{
			ID: input.DecisionID, EntityType: "pending_decision",
			Name:    input.DecisionID,
			Content: "resolved",
		}},
		Total: 1,
	}
	return resp.Finalize(), nil
}
