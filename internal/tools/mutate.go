package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/narra-go/internal/consistency"
	"github.com/raphaelgruber/narra-go/internal/db"
	"github.com/raphaelgruber/narra-go/internal/export"
	"github.com/raphaelgruber/narra-go/internal/models"
)

// MutateInput is the parameter envelope for the mutate tool. Each
// operation reads the subset of fields it needs.
type MutateInput struct {
	Operation string `json:"operation" jsonschema:"required,Operation tag selecting the write to run"`

	ID     string         `json:"id,omitempty" jsonschema:"Entity id, or caller-chosen slug on creation"`
	Fields map[string]any `json:"fields,omitempty" jsonschema:"Field values for Update"`

	Name    string              `json:"name,omitempty"`
	Aliases []string            `json:"aliases,omitempty"`
	Roles   []string            `json:"roles,omitempty"`
	Profile map[string][]string `json:"profile,omitempty" jsonschema:"Profile sections such as wound or secret mapped to entries"`

	Title         string `json:"title,omitempty"`
	Description   string `json:"description,omitempty"`
	LocType       string `json:"loc_type,omitempty"`
	Sequence      int64  `json:"sequence,omitempty"`
	Date          string `json:"date,omitempty"`
	DatePrecision string `json:"date_precision,omitempty"`

	Summary            string   `json:"summary,omitempty"`
	EventID            string   `json:"event_id,omitempty"`
	LocationID         string   `json:"location_id,omitempty"`
	SceneID            string   `json:"scene_id,omitempty"`
	SecondaryLocations []string `json:"secondary_locations,omitempty"`

	CharacterID       string   `json:"character_id,omitempty"`
	TargetID          string   `json:"target_id,omitempty"`
	Fact              string   `json:"fact,omitempty"`
	Certainty         string   `json:"certainty,omitempty"`
	Method            string   `json:"method,omitempty"`
	SourceCharacterID string   `json:"source_character_id,omitempty"`
	Premises          []string `json:"premises,omitempty"`
	TruthValue        string   `json:"truth_value,omitempty"`

	Body     string   `json:"body,omitempty"`
	AttachTo []string `json:"attach_to,omitempty"`
	NoteID   string   `json:"note_id,omitempty"`

	FactID           string   `json:"fact_id,omitempty"`
	Categories       []string `json:"categories,omitempty"`
	EnforcementLevel string   `json:"enforcement_level,omitempty"`
	Scope            string   `json:"scope,omitempty"`

	FromCharacterID string `json:"from_character_id,omitempty"`
	ToCharacterID   string `json:"to_character_id,omitempty"`
	RelType         string `json:"rel_type,omitempty"`
	Subtype         string `json:"subtype,omitempty"`
	Label           string `json:"label,omitempty"`

	ObserverID   string   `json:"observer_id,omitempty"`
	Perception   string   `json:"perception,omitempty"`
	Feelings     string   `json:"feelings,omitempty"`
	TensionLevel *int     `json:"tension_level,omitempty" jsonschema:"Tension 0-10 from the observer's side"`
	HistoryNotes string   `json:"history_notes,omitempty"`
	RelTypes     []string `json:"rel_types,omitempty"`

	Role   string `json:"role,omitempty"`
	Notes  string `json:"notes,omitempty"`
	Impact string `json:"impact,omitempty"`

	Characters    []export.CharacterSpec    `json:"characters,omitempty"`
	Locations     []export.LocationSpec     `json:"locations,omitempty"`
	Events        []export.EventSpec        `json:"events,omitempty"`
	Relationships []export.RelationshipSpec `json:"relationships,omitempty"`
	Knowledge     []export.KnowledgeSpec    `json:"knowledge,omitempty"`

	Import     *export.WorldDocument `json:"import,omitempty" jsonschema:"World document for ImportYaml"`
	OnConflict string                `json:"on_conflict,omitempty" jsonschema:"error, skip, or update"`

	EntityType  string   `json:"entity_type,omitempty"`
	EntityTypes []string `json:"entity_types,omitempty"`
	EntityIDs   []string `json:"entity_ids,omitempty"`

	K                  int     `json:"k,omitempty" jsonschema:"Phase count, 0 for automatic"`
	ContentWeight      float64 `json:"content_weight,omitempty"`
	NeighborhoodWeight float64 `json:"neighborhood_weight,omitempty"`
	TemporalWeight     float64 `json:"temporal_weight,omitempty"`

	DecisionID string `json:"decision_id,omitempty"`
	Hard       bool   `json:"hard,omitempty"`
}

type mutateHandler struct {
	deps *Dependencies
}

// NewMutateHandler creates the mutate tool dispatcher.
func NewMutateHandler(deps *Dependencies) mcp.ToolHandlerFor[MutateInput, any] {
	h := &mutateHandler{deps: deps}
	return func(ctx context.Context, req *mcp.CallToolRequest, input MutateInput) (
		*mcp.CallToolResult, any, error,
	) {
		result, err := h.dispatch(ctx, input)
		if err != nil {
			h.deps.Logger.Error("mutation failed", "operation", input.Operation, "error", err)
			return ErrorFor(err), nil, nil
		}
		return result, nil, nil
	}
}

func (h *mutateHandler) dispatch(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	switch input.Operation {
	case "CreateCharacter":
		return h.createCharacter(ctx, input)
	case "CreateLocation":
		return h.createLocation(ctx, input)
	case "CreateEvent":
		return h.createEvent(ctx, input)
	case "CreateScene":
		return h.createScene(ctx, input)
	case "Update":
		return h.update(ctx, input)
	case "Delete":
		return h.delete(ctx, input)
	case "RecordKnowledge":
		return h.recordKnowledge(ctx, input)
	case "UpdateCertainty":
		return h.updateCertainty(ctx, input)
	case "DeleteKnowledge":
		return h.deleteKnowledge(ctx, input)
	case "CreateNote":
		return h.createNote(ctx, input)
	case "UpdateNote":
		return h.updateNote(ctx, input)
	case "DeleteNote":
		return h.deleteNote(ctx, input)
	case "AttachNote":
		return h.attachNote(ctx, input)
	case "DetachNote":
		return h.detachNote(ctx, input)
	case "CreateFact":
		return h.createFact(ctx, input)
	case "UpdateFact":
		return h.updateFact(ctx, input)
	case "DeleteFact":
		return h.deleteFact(ctx, input)
	case "LinkFact":
		return h.linkFact(ctx, input)
	case "UnlinkFact":
		return h.unlinkFact(ctx, input)
	case "CreateRelationship":
		return h.createRelationship(ctx, input)
	case "DeleteRelationship":
		return h.deleteRelationship(ctx, input)
	case "UpsertPerception":
		return h.upsertPerception(ctx, input)
	case "AddSceneParticipant":
		return h.addSceneParticipant(ctx, input)
	case "AddEventInvolvement":
		return h.addEventInvolvement(ctx, input)
	case "BatchCreateCharacters":
		return h.batchCreateCharacters(ctx, input)
	case "BatchCreateLocations":
		return h.batchCreateLocations(ctx, input)
	case "BatchCreateEvents":
		return h.batchCreateEvents(ctx, input)
	case "BatchCreateRelationships":
		return h.batchCreateRelationships(ctx, input)
	case "BatchRecordKnowledge":
		return h.batchRecordKnowledge(ctx, input)
	case "ImportYaml":
		return h.importYaml(ctx, input)
	case "BackfillEmbeddings":
		return h.backfillEmbeddings(ctx, input)
	case "BaselineArcSnapshots":
		return h.baselineArcSnapshots(ctx, input)
	case "SavePhases":
		return h.savePhases(ctx, input)
	case "ClearPhases":
		return h.clearPhases(ctx)
	case "ProtectEntity":
		return h.protectEntity(input)
	case "UnprotectEntity":
		return h.unprotectEntity(input)
	case "RecordDecision":
		return h.recordDecision(input)
	case "DeferImplications":
		return h.deferImplications(input)
	case "ResolveImplication":
		return h.resolveImplication(input)
	}
	return nil, db.Validationf("unknown mutate operation %q", input.Operation)
}

// gateCreation runs the consistency checker over a proposed creation.
// Critical violations block; warnings come back as hints.
func (h *mutateHandler) gateCreation(ctx context.Context, entityType string, fields map[string]any) ([]string, *mcp.CallToolResult, error) {
	result, err := h.deps.Consistency.CheckCreation(ctx, entityType, fields)
	if err != nil {
		return nil, nil, err
	}
	if result.HasBlocking {
		return nil, blockedResult(result.All()), nil
	}
	return result.Warnings(), nil, nil
}

// gateMutation is gateCreation for updates to an existing entity.
func (h *mutateHandler) gateMutation(ctx context.Context, entityID string, fields map[string]any) ([]string, *mcp.CallToolResult, error) {
	result, err := h.deps.Consistency.CheckMutation(ctx, entityID, fields)
	if err != nil {
		return nil, nil, err
	}
	if result.HasBlocking {
		return nil, blockedResult(result.All()), nil
	}
	return result.Warnings(), nil, nil
}

func blockedResult(violations []consistency.Violation) *mcp.CallToolResult {
	msg := "mutation blocked by consistency violations:"
	for _, v := range violations {
		msg += "\n- " + v.Message
		if v.SuggestedFix != "" {
			msg += " (" + v.SuggestedFix + ")"
		}
	}
	return ErrorResult(msg, "Resolve the critical violations or adjust the universe facts")
}

// created wraps the common single-entity success envelope, touching the
// session MRU so the new entity shows up as recently active.
func (h *mutateHandler) created(id, entityType, name, content string, hints []string) *mcp.CallToolResult {
	h.deps.State.Touch(id)
	resp := &Response{
		Results: []EntityResult{{ID: id, EntityType: entityType, Name: name, Content: content}},
		Total:   1,
		Hints:   hints,
	}
	return resp.Finalize()
}

func (h *mutateHandler) createCharacter(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	if input.Name == "" {
		return nil, db.Validationf("CreateCharacter requires name")
	}
	fields := map[string]any{"name": input.Name}
	warnings, blocked, err := h.gateCreation(ctx, "character", fields)
	if err != nil {
		return nil, err
	}
	if blocked != nil {
		return blocked, nil
	}

	character, err := h.deps.Entities.CreateCharacter(ctx, models.CharacterInput{
		ID:      input.ID,
		Name:    input.Name,
		Aliases: input.Aliases,
		Roles:   input.Roles,
		Profile: input.Profile,
	})
	if err != nil {
		return nil, err
	}
	id := models.RecordIDString(character.ID)
	h.deps.Embedding.SpawnRegeneration(id, "")
	return h.created(id, "character", character.Name, "character created", warnings), nil
}

func (h *mutateHandler) createLocation(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	if input.Name == "" {
		return nil, db.Validationf("CreateLocation requires name")
	}
	warnings, blocked, err := h.gateCreation(ctx, "location", map[string]any{"name": input.Name})
	if err != nil {
		return nil, err
	}
	if blocked != nil {
		return blocked, nil
	}

	location, err := h.deps.Entities.CreateLocation(ctx, models.LocationInput{
		ID:          input.ID,
		Name:        input.Name,
		Description: optional(input.Description),
		LocType:     input.LocType,
	})
	if err != nil {
		return nil, err
	}
	id := models.RecordIDString(location.ID)
	h.deps.Embedding.SpawnRegeneration(id, "")
	return h.created(id, "location", location.Name, "location created", warnings), nil
}

func (h *mutateHandler) createEvent(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	if input.Title == "" {
		return nil, db.Validationf("CreateEvent requires title")
	}
	warnings, blocked, err := h.gateCreation(ctx, "event", map[string]any{"title": input.Title})
	if err != nil {
		return nil, err
	}
	if blocked != nil {
		return blocked, nil
	}

	event, err := h.deps.Entities.CreateEvent(ctx, models.EventInput{
		ID:            input.ID,
		Title:         input.Title,
		Description:   optional(input.Description),
		Sequence:      input.Sequence,
		Date:          optional(input.Date),
		DatePrecision: optional(input.DatePrecision),
	})
	if err != nil {
		return nil, err
	}
	id := models.RecordIDString(event.ID)
	h.deps.Embedding.SpawnRegeneration(id, "")
	return h.created(id, "event", event.Title,
		fmt.Sprintf("event created at sequence %d", event.Sequence), warnings), nil
}

func (h *mutateHandler) createScene(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	if input.Title == "" || input.EventID == "" || input.LocationID == "" {
		return nil, db.Validationf("CreateScene requires title, event_id and location_id")
	}
	warnings, blocked, err := h.gateCreation(ctx, "scene", map[string]any{"title": input.Title})
	if err != nil {
		return nil, err
	}
	if blocked != nil {
		return blocked, nil
	}

	scene, err := h.deps.Entities.CreateScene(ctx, models.SceneInput{
		ID:                 input.ID,
		Title:              input.Title,
		Summary:            optional(input.Summary),
		EventID:            input.EventID,
		LocationID:         input.LocationID,
		SecondaryLocations: input.SecondaryLocations,
	})
	if err != nil {
		return nil, err
	}
	id := models.RecordIDString(scene.ID)
	h.deps.Embedding.SpawnRegeneration(id, "")
	return h.created(id, "scene", scene.Title, "scene created", warnings), nil
}

func (h *mutateHandler) update(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	if input.ID == "" || len(input.Fields) == 0 {
		return nil, db.Validationf("Update requires id and fields")
	}
	table, _, err := models.SplitEntityID(input.ID)
	if err != nil {
		return nil, db.Validationf("bad entity id: %v", err)
	}

	warnings, blocked, err := h.gateMutation(ctx, input.ID, input.Fields)
	if err != nil {
		return nil, err
	}
	if blocked != nil {
		return blocked, nil
	}

	var name string
	switch table {
	case "character":
		c, err := h.deps.Entities.UpdateCharacter(ctx, input.ID, input.Fields)
		if err != nil {
			return nil, err
		}
		name = c.Name
	case "location":
		l, err := h.deps.Entities.UpdateLocation(ctx, input.ID, input.Fields)
		if err != nil {
			return nil, err
		}
		name = l.Name
	case "event":
		ev, err := h.deps.Entities.UpdateEvent(ctx, input.ID, input.Fields)
		if err != nil {
			return nil, err
		}
		name = ev.Title
	case "scene":
		sc, err := h.deps.Entities.UpdateScene(ctx, input.ID, input.Fields)
		if err != nil {
			return nil, err
		}
		name = sc.Title
	case "fact":
		f, err := h.deps.Entities.UpdateFact(ctx, input.ID, input.Fields)
		if err != nil {
			return nil, err
		}
		name = f.Title
	case "note":
		n, err := h.deps.Entities.UpdateNote(ctx, input.ID, input.Fields)
		if err != nil {
			return nil, err
		}
		name = n.Title
	default:
		return nil, db.Validationf("cannot update entities of type %q", table)
	}

	h.deps.Summary.Invalidate(input.ID)
	h.deps.Embedding.SpawnRegeneration(input.ID, "")
	return h.created(input.ID, table, name, "entity updated", warnings), nil
}

func (h *mutateHandler) delete(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	if input.ID == "" {
		return nil, db.Validationf("Delete requires id")
	}
	table, _, err := models.SplitEntityID(input.ID)
	if err != nil {
		return nil, db.Validationf("bad entity id: %v", err)
	}

	switch table {
	case "character":
		err = h.deps.Entities.DeleteCharacter(ctx, input.ID)
	case "location":
		err = h.deps.Entities.DeleteLocation(ctx, input.ID)
	case "event":
		err = h.deps.Entities.DeleteEvent(ctx, input.ID)
	case "scene":
		err = h.deps.Entities.DeleteScene(ctx, input.ID)
	case "fact":
		err = h.deps.Entities.DeleteFact(ctx, input.ID)
	case "note":
		err = h.deps.Entities.DeleteNote(ctx, input.ID)
	case "knowledge":
		err = h.deps.Knowledge.DeleteKnowledge(ctx, input.ID)
	default:
		return nil, db.Validationf("cannot delete entities of type %q", table)
	}
	if err != nil {
		return nil, err
	}

	h.deps.Summary.Invalidate(input.ID)
	resp := &Response{
		Results: []EntityResult{{ID: input.ID, EntityType: table, Name: input.ID, Content: "deleted"}},
		Total:   1,
	}
	return resp.Finalize(), nil
}

func (h *mutateHandler) recordKnowledge(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	if input.CharacterID == "" {
		return nil, db.Validationf("RecordKnowledge requires character_id")
	}
	if input.Fact == "" && input.TargetID == "" {
		return nil, db.Validationf("RecordKnowledge requires fact text or target_id")
	}

	knowledgeInput := models.KnowledgeInput{
		CharacterID:     input.CharacterID,
		TargetID:        input.TargetID,
		Fact:            input.Fact,
		Certainty:       input.Certainty,
		Method:          input.Method,
		SourceCharacter: input.SourceCharacterID,
		EventID:         input.EventID,
		Premises:        input.Premises,
		TruthValue:      input.TruthValue,
	}

	hints := []string{}
	var stateID, targetLabel string
	if input.TargetID != "" && input.Fact == "" {
		// State about an existing target (knowledge record or character).
		state, err := h.deps.Knowledge.RecordState(ctx, knowledgeInput)
		if err != nil {
			return nil, err
		}
		stateID = models.RecordIDString(state.ID)
		targetLabel = input.TargetID
		if !strings.HasPrefix(input.TargetID, "character:") {
			h.deps.Embedding.InvalidateKnowledgeChange(ctx, input.TargetID, input.CharacterID)
		}
	} else {
		knowledge, state, err := h.deps.Knowledge.CreateKnowledge(ctx, knowledgeInput)
		if err != nil {
			return nil, err
		}
		stateID = models.RecordIDString(state.ID)
		targetLabel = models.RecordIDString(knowledge.ID)
		h.deps.Embedding.InvalidateKnowledgeChange(ctx, targetLabel, input.CharacterID)
	}

	h.deps.Summary.Invalidate(input.CharacterID)
	h.deps.State.Touch(input.CharacterID)
	hints = append(hints, "Run DramaticIronyReport to see who else holds this fact")

	resp := &Response{
		Results: []EntityResult{{
			ID:         stateID,
			EntityType: "knows",
			Name:       fmt.Sprintf("%s -> %s", input.CharacterID, targetLabel),
			Content: fmt.Sprintf("recorded with certainty=%s method=%s",
				models.ParseCertainty(input.Certainty), models.ParseLearningMethod(input.Method)),
		}},
		Total: 1,
		Hints: hints,
	}
	return resp.Finalize(), nil
}

func (h *mutateHandler) updateCertainty(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	if input.CharacterID == "" || input.TargetID == "" || input.Certainty == "" {
		return nil, db.Validationf("UpdateCertainty requires character_id, target_id and certainty")
	}
	state, err := h.deps.Knowledge.UpdateCertainty(ctx, input.CharacterID, input.TargetID,
		models.ParseCertainty(input.Certainty))
	if err != nil {
		return nil, err
	}
	h.deps.Summary.Invalidate(input.CharacterID)
	h.deps.Embedding.InvalidateKnowledgeChange(ctx, input.TargetID, input.CharacterID)

	resp := &Response{
		Results: []EntityResult{{
			ID:         models.RecordIDString(state.ID),
			EntityType: "knows",
			Name:       fmt.Sprintf("%s -> %s", input.CharacterID, input.TargetID),
			Content:    "certainty updated to " + string(state.Certainty),
		}},
		Total: 1,
		Hints: []string{"The previous state is preserved as history"},
	}
	return resp.Finalize(), nil
}

func (h *mutateHandler) deleteKnowledge(ctx context.Context, input MutateInput) (*mcp.CallToolResult, error) {
	if input.ID == "" {
		return nil, db.Validationf("DeleteKnowledge requires id")
	}
	if err := h.deps.Knowledge.DeleteKnowledge(ctx, input.ID); err != nil {
		return nil, err
	}
	resp := &Response{
		Results: []EntityResult{{ID: input.ID, EntityType: "knowledge", Name: input.ID, Content: "deleted"}},
		Total:   1,
	}
	return resp.Finalize(), nil
}

// optional boxes a string, mapping empty to nil.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
