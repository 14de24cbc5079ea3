package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/narra-go/internal/db"
	"github.com/raphaelgruber/narra-go/internal/models"
)

// KnowledgeState pairs a knows edge with its resolved target description.
type KnowledgeState struct {
	Edge        models.KnowsEdge `json:"edge"`
	TargetID    string           `json:"target_id"`
	TargetLabel string           `json:"target_label"`
}

// KnowledgeConflict is a pair of characters holding contradictory current
// states about the same target.
type KnowledgeConflict struct {
	TargetID   string           `json:"target_id"`
	CharacterA string           `json:"character_a"`
	CharacterB string           `json:"character_b"`
	StateA     models.KnowsEdge `json:"state_a"`
	StateB     models.KnowsEdge `json:"state_b"`
	Reason     string           `json:"reason"`
}

// TransmissionHop is one link in a knowledge transmission chain.
type TransmissionHop struct {
	CharacterID string                `json:"character_id"`
	SourceID    *string               `json:"source_id,omitempty"`
	Method      models.LearningMethod `json:"method"`
	LearnedAt   time.Time             `json:"learned_at"`
	Certainty   models.Certainty      `json:"certainty"`
}

// KnowledgeRepository covers knowledge records, knows edges, and the
// temporal queries built on them.
type KnowledgeRepository interface {
	CreateKnowledge(ctx context.Context, input models.KnowledgeInput) (*models.Knowledge, *models.KnowsEdge, error)
	GetKnowledge(ctx context.Context, id string) (*models.Knowledge, error)
	GetCharacterKnowledge(ctx context.Context, characterID string) ([]models.Knowledge, error)
	ListKnowledge(ctx context.Context) ([]models.Knowledge, error)
	DeleteKnowledge(ctx context.Context, id string) error

	// RecordState supersedes any current state the character holds about the
	// target and writes the new one. Target may be a knowledge record or
	// another character.
	RecordState(ctx context.Context, input models.KnowledgeInput) (*models.KnowsEdge, error)
	UpdateCertainty(ctx context.Context, characterID, targetID string, certainty models.Certainty) (*models.KnowsEdge, error)

	GetCurrentStates(ctx context.Context, characterID string) ([]models.KnowsEdge, error)
	GetStateHistory(ctx context.Context, characterID, targetID string) ([]models.KnowsEdge, error)
	GetStatesAtEvent(ctx context.Context, characterID, eventID string) ([]models.KnowsEdge, error)
	GetKnowers(ctx context.Context, targetID string) ([]models.KnowsEdge, error)

	FindConflicts(ctx context.Context, targetID string) ([]KnowledgeConflict, error)
	GetTransmissionChain(ctx context.Context, characterID, targetID string) ([]TransmissionHop, error)
	GetPossibleSources(ctx context.Context, characterID, targetID string) ([]models.KnowsEdge, error)
}

// SurrealKnowledgeRepository implements KnowledgeRepository.
type SurrealKnowledgeRepository struct {
	client *db.Client
}

// NewKnowledgeRepository creates the SurrealDB-backed knowledge repository.
func NewKnowledgeRepository(client *db.Client) *SurrealKnowledgeRepository {
	return &SurrealKnowledgeRepository{client: client}
}

var _ KnowledgeRepository = (*SurrealKnowledgeRepository)(nil)

func optionalRecord(id, table string) (any, error) {
	if id == "" {
		return nil, nil
	}
	return models.RecordID(qualify(id, table))
}

// CreateKnowledge writes the fact record and the owner's initial knows edge
// in one transaction.
func (r *SurrealKnowledgeRepository) CreateKnowledge(ctx context.Context, input models.KnowledgeInput) (*models.Knowledge, *models.KnowsEdge, error) {
	if input.Fact == "" {
		return nil, nil, db.Validationf("knowledge fact text is required")
	}
	if input.CharacterID == "" {
		return nil, nil, db.Validationf("character_id is required")
	}
	charKey := strings.TrimPrefix(input.CharacterID, "character:")
	owner, err := db.QueryOne[models.Character](ctx, r.client,
		`SELECT * FROM type::record("character", $id)`, map[string]any{"id": charKey})
	if err != nil {
		return nil, nil, err
	}
	if owner == nil {
		return nil, nil, &db.NotFoundError{EntityType: "character", ID: input.CharacterID}
	}

	sourceEvent, err := optionalRecord(input.EventID, "event")
	if err != nil {
		return nil, nil, db.Validationf("bad event id: %v", err)
	}
	sourceChar, err := optionalRecord(input.SourceCharacter, "character")
	if err != nil {
		return nil, nil, db.Validationf("bad source character id: %v", err)
	}

	record, err := db.QueryOne[models.Knowledge](ctx, r.client, `
		CREATE type::record("knowledge", $id) SET
			fact = $fact,
			character = type::record("character", $char),
			source_event = $source_event,
			source_character = $source_character
		RETURN AFTER
	`, map[string]any{
		"id":               uuid.NewString(),
		"fact":             input.Fact,
		"char":             charKey,
		"source_event":     sourceEvent,
		"source_character": sourceChar,
	})
	if err != nil {
		return nil, nil, err
	}
	if record == nil {
		return nil, nil, &db.TransactionError{Message: "create knowledge returned no record"}
	}

	state := input
	state.TargetID = models.RecordIDString(record.ID)
	if state.Certainty == "" {
		state.Certainty = string(models.CertaintyKnows)
	}
	if state.Method == "" {
		state.Method = string(models.MethodInitial)
	}
	edge, err := r.RecordState(ctx, state)
	if err != nil {
		return nil, nil, err
	}
	return record, edge, nil
}

func (r *SurrealKnowledgeRepository) GetKnowledge(ctx context.Context, id string) (*models.Knowledge, error) {
	return getByID[models.Knowledge](ctx, r.client, "knowledge", id)
}

func (r *SurrealKnowledgeRepository) GetCharacterKnowledge(ctx context.Context, characterID string) ([]models.Knowledge, error) {
	return db.Query[models.Knowledge](ctx, r.client, `
		SELECT * FROM knowledge
		WHERE character = type::record("character", $id)
		ORDER BY created_at
	`, map[string]any{"id": strings.TrimPrefix(characterID, "character:")})
}

func (r *SurrealKnowledgeRepository) ListKnowledge(ctx context.Context) ([]models.Knowledge, error) {
	return db.Query[models.Knowledge](ctx, r.client, `SELECT * FROM knowledge ORDER BY created_at`, nil)
}

func (r *SurrealKnowledgeRepository) DeleteKnowledge(ctx context.Context, id string) error {
	return deleteWithCascade(ctx, r.client, "knowledge", id, []string{"knows"})
}

// RecordState supersedes the character's current state about the target,
// then relates the new one.
func (r *SurrealKnowledgeRepository) RecordState(ctx context.Context, input models.KnowledgeInput) (*models.KnowsEdge, error) {
	if input.CharacterID == "" || input.TargetID == "" {
		return nil, db.Validationf("character_id and target_id are required")
	}
	charKey := strings.TrimPrefix(input.CharacterID, "character:")
	targetID := input.TargetID
	if !strings.Contains(targetID, ":") {
		targetID = "knowledge:" + targetID
	}
	target, err := models.RecordID(targetID)
	if err != nil {
		return nil, db.Validationf("bad target id: %v", err)
	}
	sourceEvent, err := optionalRecord(input.EventID, "event")
	if err != nil {
		return nil, db.Validationf("bad event id: %v", err)
	}
	sourceChar, err := optionalRecord(input.SourceCharacter, "character")
	if err != nil {
		return nil, db.Validationf("bad source character id: %v", err)
	}

	if err := r.client.Exec(ctx, `
		UPDATE knows SET superseded = true
		WHERE in = type::record("character", $char) AND out = $target AND superseded = false
	`, map[string]any{"char": charKey, "target": target}); err != nil {
		return nil, err
	}

	var truthValue any
	if input.TruthValue != "" {
		truthValue = input.TruthValue
	}
	// States tied to an event take the event's timestamp so as-of-event
	// reconstruction sees them.
	learnedAt := "time::now()"
	if input.EventID != "" {
		learnedAt = "$source_event.created_at"
	}
	row, err := db.QueryOne[models.KnowsEdge](ctx, r.client, fmt.Sprintf(`
		RELATE (type::record("character", $char))->knows->($target) SET
			certainty = $certainty,
			learning_method = $method,
			source_character = $source_character,
			source_event = $source_event,
			premises = $premises,
			truth_value = $truth_value,
			learned_at = %s,
			superseded = false
		RETURN AFTER
	`, learnedAt), map[string]any{
		"char":             charKey,
		"target":           target,
		"certainty":        string(models.ParseCertainty(input.Certainty)),
		"method":           string(models.ParseLearningMethod(input.Method)),
		"source_character": sourceChar,
		"source_event":     sourceEvent,
		"premises":         orEmpty(input.Premises),
		"truth_value":      truthValue,
	})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, &db.TransactionError{Message: "relate returned no knows edge"}
	}
	return row, nil
}

func (r *SurrealKnowledgeRepository) UpdateCertainty(ctx context.Context, characterID, targetID string, certainty models.Certainty) (*models.KnowsEdge, error) {
	current, err := r.currentState(ctx, characterID, targetID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, &db.NotFoundError{EntityType: "knows", ID: characterID + "->" + targetID}
	}
	return r.RecordState(ctx, models.KnowledgeInput{
		CharacterID: characterID,
		TargetID:    targetID,
		Certainty:   string(certainty),
		Method:      string(current.LearningMethod),
		Premises:    current.Premises,
	})
}

func (r *SurrealKnowledgeRepository) currentState(ctx context.Context, characterID, targetID string) (*models.KnowsEdge, error) {
	target, err := models.RecordID(qualify(targetID, "knowledge"))
	if err != nil {
		return nil, db.Validationf("bad target id: %v", err)
	}
	return db.QueryOne[models.KnowsEdge](ctx, r.client, `
		SELECT * FROM knows
		WHERE in = type::record("character", $char) AND out = $target AND superseded = false
	`, map[string]any{"char": strings.TrimPrefix(characterID, "character:"), "target": target})
}

func (r *SurrealKnowledgeRepository) GetCurrentStates(ctx context.Context, characterID string) ([]models.KnowsEdge, error) {
	return db.Query[models.KnowsEdge](ctx, r.client, `
		SELECT * FROM knows
		WHERE in = type::record("character", $char) AND superseded = false
		ORDER BY learned_at
	`, map[string]any{"char": strings.TrimPrefix(characterID, "character:")})
}

func (r *SurrealKnowledgeRepository) GetStateHistory(ctx context.Context, characterID, targetID string) ([]models.KnowsEdge, error) {
	target, err := models.RecordID(qualify(targetID, "knowledge"))
	if err != nil {
		return nil, db.Validationf("bad target id: %v", err)
	}
	return db.Query[models.KnowsEdge](ctx, r.client, `
		SELECT * FROM knows
		WHERE in = type::record("character", $char) AND out = $target
		ORDER BY learned_at
	`, map[string]any{"char": strings.TrimPrefix(characterID, "character:"), "target": target})
}

// GetStatesAtEvent reconstructs the character's knowledge as of an event:
// the latest state per target whose learned_at does not postdate the event.
func (r *SurrealKnowledgeRepository) GetStatesAtEvent(ctx context.Context, characterID, eventID string) ([]models.KnowsEdge, error) {
	event, err := getByID[models.Event](ctx, r.client, "event", eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, &db.NotFoundError{EntityType: "event", ID: eventID}
	}
	all, err := db.Query[models.KnowsEdge](ctx, r.client, `
		SELECT * FROM knows
		WHERE in = type::record("character", $char) AND learned_at <= $cutoff
		ORDER BY learned_at
	`, map[string]any{
		"char":   strings.TrimPrefix(characterID, "character:"),
		"cutoff": event.CreatedAt,
	})
	if err != nil {
		return nil, err
	}
	latest := map[string]models.KnowsEdge{}
	for _, edge := range all {
		latest[models.RecordIDString(edge.Out)] = edge
	}
	out := make([]models.KnowsEdge, 0, len(latest))
	for _, edge := range latest {
		out = append(out, edge)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LearnedAt.Before(out[j].LearnedAt) })
	return out, nil
}

func (r *SurrealKnowledgeRepository) GetKnowers(ctx context.Context, targetID string) ([]models.KnowsEdge, error) {
	target, err := models.RecordID(qualify(targetID, "knowledge"))
	if err != nil {
		return nil, db.Validationf("bad target id: %v", err)
	}
	return db.Query[models.KnowsEdge](ctx, r.client, `
		SELECT * FROM knows WHERE out = $target AND superseded = false
		ORDER BY learned_at
	`, map[string]any{"target": target})
}

// conflicting reports whether two certainties contradict each other.
func conflicting(a, b models.Certainty) bool {
	opposed := func(x, y models.Certainty) bool {
		return (x == models.CertaintyKnows || x == models.CertaintySuspects) && y == models.CertaintyDenies ||
			x == models.CertaintyKnows && y == models.CertaintyBelievesWrongly
	}
	return opposed(a, b) || opposed(b, a)
}

func (r *SurrealKnowledgeRepository) FindConflicts(ctx context.Context, targetID string) ([]KnowledgeConflict, error) {
	knowers, err := r.GetKnowers(ctx, targetID)
	if err != nil {
		return nil, err
	}
	var conflicts []KnowledgeConflict
	for i := 0; i < len(knowers); i++ {
		for j := i + 1; j < len(knowers); j++ {
			a, b := knowers[i], knowers[j]
			reason := ""
			switch {
			case conflicting(a.Certainty, b.Certainty):
				reason = "contradictory certainty"
			case a.TruthValue != nil && b.TruthValue != nil && *a.TruthValue != *b.TruthValue:
				reason = "divergent truth values"
			}
			if reason == "" {
				continue
			}
			conflicts = append(conflicts, KnowledgeConflict{
				TargetID:   qualify(targetID, "knowledge"),
				CharacterA: models.RecordIDString(a.In),
				CharacterB: models.RecordIDString(b.In),
				StateA:     a,
				StateB:     b,
				Reason:     reason,
			})
		}
	}
	return conflicts, nil
}

// GetTransmissionChain follows source_character links backwards from the
// character's current state about the target. Cycles terminate the walk.
func (r *SurrealKnowledgeRepository) GetTransmissionChain(ctx context.Context, characterID, targetID string) ([]TransmissionHop, error) {
	seen := map[string]bool{}
	var chain []TransmissionHop
	current := qualify(characterID, "character")

	for current != "" && !seen[current] {
		seen[current] = true
		state, err := r.currentState(ctx, current, targetID)
		if err != nil {
			return nil, err
		}
		if state == nil {
			break
		}
		hop := TransmissionHop{
			CharacterID: models.RecordIDString(state.In),
			Method:      state.LearningMethod,
			LearnedAt:   state.LearnedAt,
			Certainty:   state.Certainty,
		}
		if state.SourceCharacter != nil {
			src := models.RecordIDString(*state.SourceCharacter)
			hop.SourceID = &src
			current = src
		} else {
			current = ""
		}
		chain = append(chain, hop)
	}
	return chain, nil
}

// GetPossibleSources lists characters who already held a state about the
// target before the given character learned it.
func (r *SurrealKnowledgeRepository) GetPossibleSources(ctx context.Context, characterID, targetID string) ([]models.KnowsEdge, error) {
	own, err := r.currentState(ctx, characterID, targetID)
	if err != nil {
		return nil, err
	}
	if own == nil {
		return nil, &db.NotFoundError{EntityType: "knows", ID: characterID + "->" + targetID}
	}
	knowers, err := r.GetKnowers(ctx, targetID)
	if err != nil {
		return nil, err
	}
	selfID := models.RecordIDString(own.In)
	var sources []models.KnowsEdge
	for _, edge := range knowers {
		if models.RecordIDString(edge.In) == selfID {
			continue
		}
		if edge.LearnedAt.Before(own.LearnedAt) {
			sources = append(sources, edge)
		}
	}
	return sources, nil
}
