package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/raphaelgruber/narra-go/internal/db"
	"github.com/raphaelgruber/narra-go/internal/models"
)

// ConnectedEntity is one BFS result row from the relationship graph.
type ConnectedEntity struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Distance int    `json:"distance"`
	EdgeKind string `json:"edge_kind"`
}

// RelationshipRepository covers relates_to, perceives, and the scene/event
// participation edges, plus graph traversal over them.
type RelationshipRepository interface {
	CreateRelationship(ctx context.Context, input models.RelationshipInput) (*models.RelatesTo, error)
	GetCharacterRelationships(ctx context.Context, characterID string) ([]models.RelatesTo, error)
	ListRelationships(ctx context.Context) ([]models.RelatesTo, error)
	DeleteRelationship(ctx context.Context, fromID, toID, relType string) error

	UpsertPerception(ctx context.Context, input models.PerceptionInput) (*models.Perceives, error)
	GetPerceptionsBy(ctx context.Context, observerID string) ([]models.Perceives, error)
	GetPerceptionsOf(ctx context.Context, targetID string) ([]models.Perceives, error)
	GetPerception(ctx context.Context, observerID, targetID string) (*models.Perceives, error)
	ListPerceptions(ctx context.Context) ([]models.Perceives, error)

	AddSceneParticipant(ctx context.Context, sceneID, characterID string, role, notes *string) (*models.ParticipatesIn, error)
	GetSceneParticipants(ctx context.Context, sceneID string) ([]models.Character, error)
	GetCharacterScenes(ctx context.Context, characterID string) ([]models.Scene, error)
	AddEventInvolvement(ctx context.Context, eventID, characterID string, role, impact *string) (*models.InvolvedIn, error)
	GetEventParticipants(ctx context.Context, eventID string) ([]models.Character, error)
	GetCharacterEvents(ctx context.Context, characterID string) ([]models.Event, error)

	// GetConnectedEntities runs a bounded breadth-first traversal from a
	// character over relates_to and perceives, both directions, up to
	// maxDepth hops.
	GetConnectedEntities(ctx context.Context, characterID string, maxDepth int) ([]ConnectedEntity, error)
}

// SurrealRelationshipRepository implements RelationshipRepository.
type SurrealRelationshipRepository struct {
	client *db.Client
}

// NewRelationshipRepository creates the SurrealDB-backed relationship repository.
func NewRelationshipRepository(client *db.Client) *SurrealRelationshipRepository {
	return &SurrealRelationshipRepository{client: client}
}

var _ RelationshipRepository = (*SurrealRelationshipRepository)(nil)

// MaxTraversalDepth bounds graph BFS; deeper requests are clamped.
const MaxTraversalDepth = 5

func (r *SurrealRelationshipRepository) requireCharacter(ctx context.Context, id string) (string, error) {
	key := strings.TrimPrefix(id, "character:")
	row, err := db.QueryOne[models.Character](ctx, r.client,
		`SELECT * FROM type::record("character", $id)`, map[string]any{"id": key})
	if err != nil {
		return "", err
	}
	if row == nil {
		return "", &db.NotFoundError{EntityType: "character", ID: id}
	}
	return key, nil
}

// --- relates_to ---

func (r *SurrealRelationshipRepository) CreateRelationship(ctx context.Context, input models.RelationshipInput) (*models.RelatesTo, error) {
	if input.RelType == "" {
		return nil, db.Validationf("rel_type is required")
	}
	fromKey, err := r.requireCharacter(ctx, input.FromCharacterID)
	if err != nil {
		return nil, err
	}
	toKey, err := r.requireCharacter(ctx, input.ToCharacterID)
	if err != nil {
		return nil, err
	}
	if fromKey == toKey {
		return nil, db.Validationf("a character cannot relate to itself")
	}
	row, err := db.QueryOne[models.RelatesTo](ctx, r.client, `
		RELATE (type::record("character", $from))->relates_to->(type::record("character", $to)) SET
			rel_type = $rel_type,
			subtype = $subtype,
			label = $label,
			embedding_stale = true
		RETURN AFTER
	`, map[string]any{
		"from":     fromKey,
		"to":       toKey,
		"rel_type": input.RelType,
		"subtype":  input.Subtype,
		"label":    input.Label,
	})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, &db.TransactionError{Message: "relate returned no edge"}
	}
	return row, nil
}

func (r *SurrealRelationshipRepository) GetCharacterRelationships(ctx context.Context, characterID string) ([]models.RelatesTo, error) {
	key := strings.TrimPrefix(characterID, "character:")
	return db.Query[models.RelatesTo](ctx, r.client, `
		SELECT * FROM relates_to
		WHERE in = type::record("character", $id) OR out = type::record("character", $id)
	`, map[string]any{"id": key})
}

func (r *SurrealRelationshipRepository) ListRelationships(ctx context.Context) ([]models.RelatesTo, error) {
	return db.Query[models.RelatesTo](ctx, r.client, `SELECT * FROM relates_to`, nil)
}

func (r *SurrealRelationshipRepository) DeleteRelationship(ctx context.Context, fromID, toID, relType string) error {
	deleted, err := db.Query[map[string]any](ctx, r.client, `
		DELETE relates_to
		WHERE in = type::record("character", $from)
		  AND out = type::record("character", $to)
		  AND rel_type = $rel_type
		RETURN BEFORE
	`, map[string]any{
		"from":     strings.TrimPrefix(fromID, "character:"),
		"to":       strings.TrimPrefix(toID, "character:"),
		"rel_type": relType,
	})
	if err != nil {
		return err
	}
	if len(deleted) == 0 {
		return &db.NotFoundError{EntityType: "relates_to", ID: fmt.Sprintf("%s->%s (%s)", fromID, toID, relType)}
	}
	return nil
}

// --- perceives ---

func (r *SurrealRelationshipRepository) UpsertPerception(ctx context.Context, input models.PerceptionInput) (*models.Perceives, error) {
	observerKey, err := r.requireCharacter(ctx, input.ObserverID)
	if err != nil {
		return nil, err
	}
	targetKey, err := r.requireCharacter(ctx, input.TargetID)
	if err != nil {
		return nil, err
	}
	if observerKey == targetKey {
		return nil, db.Validationf("a character cannot perceive itself")
	}
	if input.TensionLevel != nil && (*input.TensionLevel < 0 || *input.TensionLevel > 10) {
		return nil, db.Validationf("tension_level must be between 0 and 10")
	}

	existing, err := r.GetPerception(ctx, input.ObserverID, input.TargetID)
	if err != nil {
		return nil, err
	}
	vars := map[string]any{
		"perception": input.Perception,
		"feelings":   input.Feelings,
		"tension":    input.TensionLevel,
		"history":    input.HistoryNotes,
		"rel_types":  orEmpty(input.RelTypes),
	}
	if existing != nil {
		vars["edge"] = existing.ID
		row, err := db.QueryOne[models.Perceives](ctx, r.client, `
			UPDATE $edge SET
				perception = $perception,
				feelings = $feelings,
				tension_level = $tension,
				history_notes = $history,
				rel_types = $rel_types,
				embedding_stale = true,
				updated_at = time::now()
			RETURN AFTER
		`, vars)
		if err != nil {
			return nil, err
		}
		return row, nil
	}
	vars["observer"] = observerKey
	vars["target"] = targetKey
	row, err := db.QueryOne[models.Perceives](ctx, r.client, `
		RELATE (type::record("character", $observer))->perceives->(type::record("character", $target)) SET
			perception = $perception,
			feelings = $feelings,
			tension_level = $tension,
			history_notes = $history,
			rel_types = $rel_types,
			embedding_stale = true
		RETURN AFTER
	`, vars)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, &db.TransactionError{Message: "relate returned no perceives edge"}
	}
	return row, nil
}

func (r *SurrealRelationshipRepository) GetPerceptionsBy(ctx context.Context, observerID string) ([]models.Perceives, error) {
	return db.Query[models.Perceives](ctx, r.client,
		`SELECT * FROM perceives WHERE in = type::record("character", $id)`,
		map[string]any{"id": strings.TrimPrefix(observerID, "character:")})
}

func (r *SurrealRelationshipRepository) GetPerceptionsOf(ctx context.Context, targetID string) ([]models.Perceives, error) {
	return db.Query[models.Perceives](ctx, r.client,
		`SELECT * FROM perceives WHERE out = type::record("character", $id)`,
		map[string]any{"id": strings.TrimPrefix(targetID, "character:")})
}

func (r *SurrealRelationshipRepository) GetPerception(ctx context.Context, observerID, targetID string) (*models.Perceives, error) {
	return db.QueryOne[models.Perceives](ctx, r.client, `
		SELECT * FROM perceives
		WHERE in = type::record("character", $observer)
		  AND out = type::record("character", $target)
	`, map[string]any{
		"observer": strings.TrimPrefix(observerID, "character:"),
		"target":   strings.TrimPrefix(targetID, "character:"),
	})
}

func (r *SurrealRelationshipRepository) ListPerceptions(ctx context.Context) ([]models.Perceives, error) {
	return db.Query[models.Perceives](ctx, r.client, `SELECT * FROM perceives`, nil)
}

// --- participation ---

func (r *SurrealRelationshipRepository) AddSceneParticipant(ctx context.Context, sceneID, characterID string, role, notes *string) (*models.ParticipatesIn, error) {
	charKey, err := r.requireCharacter(ctx, characterID)
	if err != nil {
		return nil, err
	}
	sceneKey := strings.TrimPrefix(sceneID, "scene:")
	scene, err := db.QueryOne[models.Scene](ctx, r.client,
		`SELECT * FROM type::record("scene", $id)`, map[string]any{"id": sceneKey})
	if err != nil {
		return nil, err
	}
	if scene == nil {
		return nil, &db.NotFoundError{EntityType: "scene", ID: sceneID}
	}
	row, err := db.QueryOne[models.ParticipatesIn](ctx, r.client, `
		RELATE (type::record("character", $char))->participates_in->(type::record("scene", $scene)) SET
			role = $role,
			notes = $notes
		RETURN AFTER
	`, map[string]any{"char": charKey, "scene": sceneKey, "role": role, "notes": notes})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, &db.TransactionError{Message: "relate returned no participates_in edge"}
	}
	return row, nil
}

func (r *SurrealRelationshipRepository) GetSceneParticipants(ctx context.Context, sceneID string) ([]models.Character, error) {
	return db.Query[models.Character](ctx, r.client, `
		SELECT * FROM character
		WHERE id IN (SELECT VALUE in FROM participates_in WHERE out = type::record("scene", $id))
		ORDER BY name
	`, map[string]any{"id": strings.TrimPrefix(sceneID, "scene:")})
}

func (r *SurrealRelationshipRepository) GetCharacterScenes(ctx context.Context, characterID string) ([]models.Scene, error) {
	return db.Query[models.Scene](ctx, r.client, `
		SELECT * FROM scene
		WHERE id IN (SELECT VALUE out FROM participates_in WHERE in = type::record("character", $id))
		ORDER BY created_at
	`, map[string]any{"id": strings.TrimPrefix(characterID, "character:")})
}

func (r *SurrealRelationshipRepository) AddEventInvolvement(ctx context.Context, eventID, characterID string, role, impact *string) (*models.InvolvedIn, error) {
	charKey, err := r.requireCharacter(ctx, characterID)
	if err != nil {
		return nil, err
	}
	eventKey := strings.TrimPrefix(eventID, "event:")
	event, err := db.QueryOne[models.Event](ctx, r.client,
		`SELECT * FROM type::record("event", $id)`, map[string]any{"id": eventKey})
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, &db.NotFoundError{EntityType: "event", ID: eventID}
	}
	row, err := db.QueryOne[models.InvolvedIn](ctx, r.client, `
		RELATE (type::record("character", $char))->involved_in->(type::record("event", $event)) SET
			role = $role,
			impact = $impact
		RETURN AFTER
	`, map[string]any{"char": charKey, "event": eventKey, "role": role, "impact": impact})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, &db.TransactionError{Message: "relate returned no involved_in edge"}
	}
	return row, nil
}

func (r *SurrealRelationshipRepository) GetEventParticipants(ctx context.Context, eventID string) ([]models.Character, error) {
	return db.Query[models.Character](ctx, r.client, `
		SELECT * FROM character
		WHERE id IN (SELECT VALUE in FROM involved_in WHERE out = type::record("event", $id))
		ORDER BY name
	`, map[string]any{"id": strings.TrimPrefix(eventID, "event:")})
}

func (r *SurrealRelationshipRepository) GetCharacterEvents(ctx context.Context, characterID string) ([]models.Event, error) {
	return db.Query[models.Event](ctx, r.client, `
		SELECT * FROM event
		WHERE id IN (SELECT VALUE out FROM involved_in WHERE in = type::record("character", $id))
		ORDER BY sequence
	`, map[string]any{"id": strings.TrimPrefix(characterID, "character:")})
}

// --- traversal ---

type edgeRow struct {
	In  string `json:"in"`
	Out string `json:"out"`
}

type nameRow struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GetConnectedEntities BFS-walks relates_to and perceives from the character.
// Each level fetches the whole frontier's edges in two queries, so the number
// of round trips is bounded by depth, not graph size.
func (r *SurrealRelationshipRepository) GetConnectedEntities(ctx context.Context, characterID string, maxDepth int) ([]ConnectedEntity, error) {
	if maxDepth > MaxTraversalDepth {
		maxDepth = MaxTraversalDepth
	}
	start := qualify(characterID, "character")
	if _, err := r.requireCharacter(ctx, characterID); err != nil {
		return nil, err
	}
	// Depth zero is the character alone, which the result excludes.
	if maxDepth <= 0 {
		return []ConnectedEntity{}, nil
	}

	visited := map[string]bool{start: true}
	edgeKinds := map[string]string{}
	distances := map[string]int{}
	frontier := []string{start}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		ids := make([]any, 0, len(frontier))
		for _, id := range frontier {
			rid, err := models.RecordID(id)
			if err != nil {
				return nil, db.Validationf("bad record id %q: %v", id, err)
			}
			ids = append(ids, rid)
		}
		var next []string
		for _, edgeTable := range []string{"relates_to", "perceives"} {
			rows, err := db.Query[edgeRow](ctx, r.client, fmt.Sprintf(`
				SELECT <string>in AS in, <string>out AS out FROM %s
				WHERE in IN $frontier OR out IN $frontier
			`, edgeTable), map[string]any{"frontier": ids})
			if err != nil {
				return nil, err
			}
			for _, row := range rows {
				for _, neighbor := range []string{row.In, row.Out} {
					if !visited[neighbor] {
						visited[neighbor] = true
						distances[neighbor] = depth
						edgeKinds[neighbor] = edgeTable
						next = append(next, neighbor)
					}
				}
			}
		}
		frontier = next
	}

	delete(visited, start)
	if len(visited) == 0 {
		return []ConnectedEntity{}, nil
	}

	reached := make([]any, 0, len(visited))
	for id := range visited {
		rid, err := models.RecordID(id)
		if err != nil {
			continue
		}
		reached = append(reached, rid)
	}
	names, err := db.Query[nameRow](ctx, r.client,
		`SELECT <string>id AS id, name FROM character WHERE id IN $ids`,
		map[string]any{"ids": reached})
	if err != nil {
		return nil, err
	}
	nameByID := make(map[string]string, len(names))
	for _, n := range names {
		nameByID[n.ID] = n.Name
	}

	out := make([]ConnectedEntity, 0, len(visited))
	for id := range visited {
		out = append(out, ConnectedEntity{
			ID:       id,
			Name:     nameByID[id],
			Distance: distances[id],
			EdgeKind: edgeKinds[id],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
