package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/raphaelgruber/narra-go/internal/db"
	"github.com/raphaelgruber/narra-go/internal/models"
	"github.com/raphaelgruber/narra-go/internal/vectormath"
)

// regenerationDebounce suppresses repeat regenerations of the same entity
// inside this window.
const regenerationDebounce = 2 * time.Second

// arcTrackedTypes get an arc_snapshot row on every re-embedding.
var arcTrackedTypes = map[string]bool{
	"character":  true,
	"knowledge":  true,
	"perceives":  true,
	"relates_to": true,
}

// Service maintains entity embeddings: marks staleness, regenerates
// composites and vectors in the background, and records arc snapshots.
// Mutations never fail because embedding is unavailable; the stale flag
// stays raised until a later regeneration succeeds.
type Service struct {
	client   *db.Client
	embedder Embedder
	provider string

	mu       sync.Mutex
	inFlight map[string]time.Time

	// sem bounds concurrent background regenerations, same ceiling as
	// backfill, so edge-heavy mutations cannot flood the provider.
	sem *semaphore.Weighted
	wg  sync.WaitGroup

	regenerate func(ctx context.Context, entityID, eventID string) error
}

// NewService creates the embedding service. A nil embedder disables
// regeneration entirely; staleness flags are still maintained.
func NewService(client *db.Client, embedder Embedder, provider string) *Service {
	s := &Service{
		client:   client,
		embedder: embedder,
		provider: provider,
		inFlight: map[string]time.Time{},
		sem:      semaphore.NewWeighted(backfillParallelism),
	}
	s.regenerate = s.Regenerate
	return s
}

// Embedder exposes the underlying provider, nil-safe for health reporting.
func (s *Service) Embedder() Embedder {
	return s.embedder
}

// Available reports whether embedding generation can run right now.
func (s *Service) Available(ctx context.Context) bool {
	return s.embedder != nil && s.embedder.IsAvailable(ctx)
}

// Wait blocks until all spawned regenerations finish. Test and shutdown hook.
func (s *Service) Wait() {
	s.wg.Wait()
}

// MarkStale raises the primary stale flag on an entity.
func (s *Service) MarkStale(ctx context.Context, entityID string) error {
	rid, err := models.RecordID(entityID)
	if err != nil {
		return db.Validationf("bad entity id %q: %v", entityID, err)
	}
	return s.client.Exec(ctx, `UPDATE $ref SET embedding_stale = true`, map[string]any{"ref": rid})
}

// MarkFacetStale raises a facet stale flag on a character.
func (s *Service) MarkFacetStale(ctx context.Context, characterID string, facet models.Facet) error {
	rid, err := models.RecordID(qualify(characterID, "character"))
	if err != nil {
		return db.Validationf("bad character id %q: %v", characterID, err)
	}
	return s.client.Exec(ctx,
		fmt.Sprintf(`UPDATE $ref SET %s = true`, facet.StaleColumn()),
		map[string]any{"ref": rid})
}

// InvalidateEdgeChange handles a relates_to or perceives edge being written:
// both endpoints' social facets and primary composites go stale, and the
// edge itself is queued for re-embedding.
func (s *Service) InvalidateEdgeChange(ctx context.Context, edgeID, fromCharacterID, toCharacterID string) {
	for _, charID := range []string{fromCharacterID, toCharacterID} {
		if err := s.MarkStale(ctx, qualify(charID, "character")); err != nil {
			slog.Warn("mark stale failed", "entity", charID, "error", err)
		}
		if err := s.MarkFacetStale(ctx, charID, models.FacetSocial); err != nil {
			slog.Warn("mark facet stale failed", "entity", charID, "error", err)
		}
		s.SpawnRegeneration(charID, "")
	}
	if edgeID != "" {
		s.SpawnRegeneration(edgeID, "")
	}
}

// InvalidateKnowledgeChange handles knowledge written for a character: the
// owner's primary, social, and narrative embeddings go stale.
func (s *Service) InvalidateKnowledgeChange(ctx context.Context, knowledgeID, ownerCharacterID string) {
	if err := s.MarkStale(ctx, qualify(ownerCharacterID, "character")); err != nil {
		slog.Warn("mark stale failed", "entity", ownerCharacterID, "error", err)
	}
	for _, facet := range []models.Facet{models.FacetSocial, models.FacetNarrative} {
		if err := s.MarkFacetStale(ctx, ownerCharacterID, facet); err != nil {
			slog.Warn("mark facet stale failed", "entity", ownerCharacterID, "error", err)
		}
	}
	if knowledgeID != "" {
		s.SpawnRegeneration(qualify(knowledgeID, "knowledge"), "")
	}
	s.SpawnRegeneration(qualify(ownerCharacterID, "character"), "")
}

// InvalidateParticipationChange handles a character joining a scene or
// event: the participant's narrative facet and the container go stale.
func (s *Service) InvalidateParticipationChange(ctx context.Context, containerID, characterID string) {
	if err := s.MarkFacetStale(ctx, characterID, models.FacetNarrative); err != nil {
		slog.Warn("mark facet stale failed", "entity", characterID, "error", err)
	}
	if err := s.MarkStale(ctx, containerID); err != nil {
		slog.Warn("mark stale failed", "entity", containerID, "error", err)
	}
	s.SpawnRegeneration(containerID, "")
}

// shouldSpawn applies debounce; on proceed the entity is recorded in-flight.
func (s *Service) shouldSpawn(entityID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if last, ok := s.inFlight[entityID]; ok && now.Sub(last) < regenerationDebounce {
		slog.Debug("debounced regeneration", "entity", entityID, "since_ms", now.Sub(last).Milliseconds())
		return false
	}
	s.inFlight[entityID] = now

	if len(s.inFlight) > 1000 {
		cutoff := now.Add(-5 * regenerationDebounce)
		for id, at := range s.inFlight {
			if at.Before(cutoff) {
				delete(s.inFlight, id)
			}
		}
	}
	return true
}

// SpawnRegeneration queues a background regeneration for the entity.
// Fire-and-forget: the caller's mutation returns immediately; the worker
// waits on the shared semaphore so at most backfillParallelism
// regenerations run at once.
func (s *Service) SpawnRegeneration(entityID, eventID string) {
	if s.embedder == nil {
		return
	}
	if !s.shouldSpawn(entityID) {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		var err error
		if err = s.sem.Acquire(ctx, 1); err == nil {
			err = s.regenerate(ctx, entityID, eventID)
			s.sem.Release(1)
		}

		s.mu.Lock()
		delete(s.inFlight, entityID)
		s.mu.Unlock()

		if err != nil {
			slog.Error("embedding regeneration failed", "entity", entityID, "error", err)
		}
	}()
}

// Regenerate rebuilds the composite text for the entity, re-embeds it when
// the text changed, records an arc snapshot for tracked types, and clears
// the stale flag. Synchronous; backfill and tests call it directly.
func (s *Service) Regenerate(ctx context.Context, entityID, eventID string) error {
	if !s.Available(ctx) {
		return fmt.Errorf("embedding provider is not available")
	}

	table, _, err := models.SplitEntityID(entityID)
	if err != nil {
		return db.Validationf("bad entity id %q: %v", entityID, err)
	}
	rid, err := models.RecordID(entityID)
	if err != nil {
		return db.Validationf("bad entity id %q: %v", entityID, err)
	}

	composite, err := s.buildComposite(ctx, table, entityID)
	if err != nil {
		return err
	}

	stored, err := db.QueryOne[compositeRow](ctx, s.client,
		`SELECT composite_text, embedding FROM $ref`, map[string]any{"ref": rid})
	if err != nil {
		return err
	}

	if stored != nil && stored.CompositeText != nil && *stored.CompositeText == composite {
		if err := s.client.Exec(ctx, `UPDATE $ref SET embedding_stale = false`,
			map[string]any{"ref": rid}); err != nil {
			return err
		}
		slog.Debug("composite unchanged, skipped re-embedding", "entity", entityID)
		return nil
	}

	vector, err := s.embedder.Embed(ctx, composite)
	if err != nil {
		return fmt.Errorf("embed %s: %w", entityID, err)
	}

	if arcTrackedTypes[table] {
		var old []float32
		if stored != nil {
			old = stored.Embedding
		}
		s.recordArcSnapshot(ctx, entityID, table, old, vector, eventID)
	}

	if err := s.client.Exec(ctx, `
		UPDATE $ref SET embedding = $embedding, embedding_stale = false, composite_text = $composite
	`, map[string]any{"ref": rid, "embedding": vector, "composite": composite}); err != nil {
		return err
	}

	slog.Info("regenerated embedding", "entity", entityID, "composite_chars", len(composite))

	if table == "character" {
		return s.RegenerateCharacterFacets(ctx, entityID)
	}
	return nil
}

type compositeRow struct {
	CompositeText *string   `json:"composite_text"`
	Embedding     []float32 `json:"embedding"`
}

// recordArcSnapshot appends an embedding snapshot with the drift magnitude
// against the previous vector. Failures are logged, never propagated.
func (s *Service) recordArcSnapshot(ctx context.Context, entityID, table string, old, current []float32, eventID string) {
	var delta *float64
	if len(old) > 0 {
		d := 1 - vectormath.CosineSimilarity(old, current)
		delta = &d
	}

	snapshotType := table
	switch table {
	case "perceives":
		snapshotType = "perspective"
	case "relates_to":
		snapshotType = "relationship"
	}

	var eventRef any
	if eventID != "" {
		if rid, err := models.RecordID(qualify(eventID, "event")); err == nil {
			eventRef = rid
		}
	}

	if err := s.client.Exec(ctx, `
		CREATE arc_snapshot SET
			entity_id = $entity_id,
			entity_type = $entity_type,
			embedding = $embedding,
			delta_magnitude = $delta,
			event_id = $event_ref
	`, map[string]any{
		"entity_id":   entityID,
		"entity_type": snapshotType,
		"embedding":   current,
		"delta":       delta,
		"event_ref":   eventRef,
	}); err != nil {
		slog.Warn("arc snapshot failed", "entity", entityID, "error", err)
	}
}

// RegenerateCharacterFacets rebuilds the four facet composites for a
// character and re-embeds the ones whose text changed.
func (s *Service) RegenerateCharacterFacets(ctx context.Context, characterID string) error {
	id := qualify(characterID, "character")
	rid, err := models.RecordID(id)
	if err != nil {
		return db.Validationf("bad character id %q: %v", characterID, err)
	}
	character, err := db.QueryOne[models.Character](ctx, s.client,
		`SELECT * FROM $ref`, map[string]any{"ref": rid})
	if err != nil {
		return err
	}
	if character == nil {
		return &db.NotFoundError{EntityType: "character", ID: id}
	}

	relationships, err := s.fetchRelationships(ctx, rid)
	if err != nil {
		return err
	}
	perceptionsOf, err := s.fetchPerceptionsOf(ctx, rid)
	if err != nil {
		return err
	}
	scenes, err := s.fetchCharacterScenes(ctx, rid)
	if err != nil {
		return err
	}
	knowledge, err := s.fetchCharacterKnowledge(ctx, rid)
	if err != nil {
		return err
	}

	composites := map[models.Facet]string{
		models.FacetIdentity:   IdentityComposite(character),
		models.FacetPsychology: PsychologyComposite(character),
		models.FacetSocial:     SocialComposite(character, relationships, perceptionsOf),
		models.FacetNarrative:  NarrativeComposite(character.Name, scenes, knowledge),
	}
	stored := map[models.Facet]*string{
		models.FacetIdentity:   character.IdentityComposite,
		models.FacetPsychology: character.PsychologyComposite,
		models.FacetSocial:     character.SocialComposite,
		models.FacetNarrative:  character.NarrativeComposite,
	}

	for _, facet := range models.Facets {
		composite := composites[facet]
		if prev := stored[facet]; prev != nil && *prev == composite && character.FacetEmbedding(facet) != nil {
			if err := s.client.Exec(ctx,
				fmt.Sprintf(`UPDATE $ref SET %s = false`, facet.StaleColumn()),
				map[string]any{"ref": rid}); err != nil {
				return err
			}
			continue
		}
		vector, err := s.embedder.Embed(ctx, composite)
		if err != nil {
			return fmt.Errorf("embed %s facet of %s: %w", facet, id, err)
		}
		if err := s.client.Exec(ctx, fmt.Sprintf(`
			UPDATE $ref SET %s = $embedding, %s_composite = $composite, %s = false
		`, facet.EmbeddingColumn(), facet, facet.StaleColumn()),
			map[string]any{"ref": rid, "embedding": vector, "composite": composite}); err != nil {
			return err
		}
	}
	return nil
}

// --- composite construction per entity type ---

func (s *Service) buildComposite(ctx context.Context, table, entityID string) (string, error) {
	rid, err := models.RecordID(entityID)
	if err != nil {
		return "", db.Validationf("bad entity id %q: %v", entityID, err)
	}

	switch table {
	case "character":
		character, err := db.QueryOne[models.Character](ctx, s.client,
			`SELECT * FROM $ref`, map[string]any{"ref": rid})
		if err != nil {
			return "", err
		}
		if character == nil {
			return "", &db.NotFoundError{EntityType: "character", ID: entityID}
		}
		relationships, err := s.fetchRelationships(ctx, rid)
		if err != nil {
			return "", err
		}
		perceptions, err := s.fetchPerceptionsBy(ctx, rid)
		if err != nil {
			return "", err
		}
		return CharacterComposite(character, relationships, perceptions), nil

	case "location":
		location, err := db.QueryOne[models.Location](ctx, s.client,
			`SELECT * FROM $ref`, map[string]any{"ref": rid})
		if err != nil {
			return "", err
		}
		if location == nil {
			return "", &db.NotFoundError{EntityType: "location", ID: entityID}
		}
		return LocationComposite(location), nil

	case "event":
		event, err := db.QueryOne[models.Event](ctx, s.client,
			`SELECT * FROM $ref`, map[string]any{"ref": rid})
		if err != nil {
			return "", err
		}
		if event == nil {
			return "", &db.NotFoundError{EntityType: "event", ID: entityID}
		}
		return EventComposite(event), nil

	case "scene":
		type sceneRow struct {
			Title        string  `json:"title"`
			Summary      *string `json:"summary"`
			EventTitle   *string `json:"event_title"`
			LocationName *string `json:"location_name"`
		}
		row, err := db.QueryOne[sceneRow](ctx, s.client, `
			SELECT title, summary, event.title AS event_title, location.name AS location_name
			FROM $ref
		`, map[string]any{"ref": rid})
		if err != nil {
			return "", err
		}
		if row == nil {
			return "", &db.NotFoundError{EntityType: "scene", ID: entityID}
		}
		scene := &models.Scene{Title: row.Title, Summary: row.Summary}
		return SceneComposite(scene, deref(row.EventTitle), deref(row.LocationName)), nil

	case "knowledge":
		type knowledgeRow struct {
			Fact          string  `json:"fact"`
			CharacterName *string `json:"character_name"`
		}
		row, err := db.QueryOne[knowledgeRow](ctx, s.client, `
			SELECT fact, character.name AS character_name FROM $ref
		`, map[string]any{"ref": rid})
		if err != nil {
			return "", err
		}
		if row == nil {
			return "", &db.NotFoundError{EntityType: "knowledge", ID: entityID}
		}
		type stateRow struct {
			Certainty      *string `json:"certainty"`
			LearningMethod *string `json:"learning_method"`
		}
		state, err := db.QueryOne[stateRow](ctx, s.client, `
			SELECT certainty, learning_method FROM knows
			WHERE out = $ref ORDER BY learned_at DESC LIMIT 1
		`, map[string]any{"ref": rid})
		if err != nil {
			return "", err
		}
		name := "Someone"
		if row.CharacterName != nil {
			name = *row.CharacterName
		}
		certainty := models.CertaintyKnows
		method := models.LearningMethod("")
		if state != nil {
			if state.Certainty != nil {
				certainty = models.ParseCertainty(*state.Certainty)
			}
			if state.LearningMethod != nil {
				method = models.ParseLearningMethod(*state.LearningMethod)
			}
		}
		return KnowledgeComposite(row.Fact, name, certainty, method), nil

	case "relates_to":
		type relRow struct {
			RelType   string   `json:"rel_type"`
			Subtype   *string  `json:"subtype"`
			Label     *string  `json:"label"`
			FromName  *string  `json:"from_name"`
			FromRoles []string `json:"from_roles"`
			ToName    *string  `json:"to_name"`
			ToRoles   []string `json:"to_roles"`
		}
		row, err := db.QueryOne[relRow](ctx, s.client, `
			SELECT rel_type, subtype, label,
				in.name AS from_name, in.roles AS from_roles,
				out.name AS to_name, out.roles AS to_roles
			FROM $ref
		`, map[string]any{"ref": rid})
		if err != nil {
			return "", err
		}
		if row == nil {
			return "", &db.NotFoundError{EntityType: "relates_to", ID: entityID}
		}
		return RelationshipComposite(
			derefOr(row.FromName, "Unknown"), row.FromRoles,
			derefOr(row.ToName, "Unknown"), row.ToRoles,
			row.RelType, row.Subtype, row.Label), nil

	case "perceives":
		return s.buildPerspectiveComposite(ctx, rid, entityID)

	case "note":
		note, err := db.QueryOne[models.Note](ctx, s.client,
			`SELECT * FROM $ref`, map[string]any{"ref": rid})
		if err != nil {
			return "", err
		}
		if note == nil {
			return "", &db.NotFoundError{EntityType: "note", ID: entityID}
		}
		return NoteComposite(note), nil

	case "fact":
		fact, err := db.QueryOne[models.UniverseFact](ctx, s.client,
			`SELECT * FROM $ref`, map[string]any{"ref": rid})
		if err != nil {
			return "", err
		}
		if fact == nil {
			return "", &db.NotFoundError{EntityType: "fact", ID: entityID}
		}
		return FactComposite(fact), nil

	default:
		return "", db.Validationf("entity type %q has no composite", table)
	}
}

func (s *Service) buildPerspectiveComposite(ctx context.Context, rid any, entityID string) (string, error) {
	type percRow struct {
		RelTypes     []string `json:"rel_types"`
		Feelings     *string  `json:"feelings"`
		Perception   *string  `json:"perception"`
		TensionLevel *int     `json:"tension_level"`
		HistoryNotes *string  `json:"history_notes"`
		ObserverName *string  `json:"observer_name"`
		TargetName   *string  `json:"target_name"`
		ObserverID   string   `json:"observer_id"`
		TargetID     string   `json:"target_id"`
	}
	row, err := db.QueryOne[percRow](ctx, s.client, `
		SELECT rel_types, feelings, perception, tension_level, history_notes,
			in.name AS observer_name, out.name AS target_name,
			<string>in AS observer_id, <string>out AS target_id
		FROM $ref
	`, map[string]any{"ref": rid})
	if err != nil {
		return "", err
	}
	if row == nil {
		return "", &db.NotFoundError{EntityType: "perceives", ID: entityID}
	}

	observerName := derefOr(row.ObserverName, "Someone")
	targetName := derefOr(row.TargetName, "Someone")

	knowledge := s.fetchKnowledgeAbout(ctx, row.ObserverID, targetName)
	sharedScenes := s.fetchSharedScenes(ctx, row.ObserverID, row.TargetID)

	edge := &models.Perceives{
		RelTypes:     row.RelTypes,
		Feelings:     row.Feelings,
		Perception:   row.Perception,
		TensionLevel: row.TensionLevel,
		HistoryNotes: row.HistoryNotes,
	}
	return PerspectiveComposite(observerName, targetName, edge, nil, knowledge, sharedScenes), nil
}

// --- enrichment queries ---

type relRefRow struct {
	RelType    string  `json:"rel_type"`
	TargetName *string `json:"target_name"`
}

func (s *Service) fetchRelationships(ctx context.Context, rid any) ([]RelationshipRef, error) {
	rows, err := db.Query[relRefRow](ctx, s.client, `
		SELECT rel_type, out.name AS target_name FROM relates_to WHERE in = $ref
	`, map[string]any{"ref": rid})
	if err != nil {
		return nil, err
	}
	refs := make([]RelationshipRef, 0, len(rows))
	for _, row := range rows {
		if row.TargetName == nil {
			continue
		}
		refs = append(refs, RelationshipRef{RelType: row.RelType, TargetName: *row.TargetName})
	}
	return refs, nil
}

type percRefRow struct {
	Name       *string `json:"name"`
	Perception *string `json:"perception"`
}

func (s *Service) fetchPerceptionsBy(ctx context.Context, rid any) ([]PerceptionRef, error) {
	rows, err := db.Query[percRefRow](ctx, s.client, `
		SELECT out.name AS name, perception FROM perceives WHERE in = $ref
	`, map[string]any{"ref": rid})
	if err != nil {
		return nil, err
	}
	return toPerceptionRefs(rows), nil
}

func (s *Service) fetchPerceptionsOf(ctx context.Context, rid any) ([]PerceptionRef, error) {
	rows, err := db.Query[percRefRow](ctx, s.client, `
		SELECT in.name AS name, perception FROM perceives WHERE out = $ref
	`, map[string]any{"ref": rid})
	if err != nil {
		return nil, err
	}
	return toPerceptionRefs(rows), nil
}

func toPerceptionRefs(rows []percRefRow) []PerceptionRef {
	refs := make([]PerceptionRef, 0, len(rows))
	for _, row := range rows {
		if row.Name == nil || row.Perception == nil {
			continue
		}
		refs = append(refs, PerceptionRef{Name: *row.Name, Text: *row.Perception})
	}
	return refs
}

type sceneRefRow struct {
	Title   string  `json:"title"`
	Summary *string `json:"summary"`
}

func (s *Service) fetchCharacterScenes(ctx context.Context, rid any) ([]SceneRef, error) {
	rows, err := db.Query[sceneRefRow](ctx, s.client, `
		SELECT out.title AS title, out.summary AS summary FROM participates_in WHERE in = $ref
	`, map[string]any{"ref": rid})
	if err != nil {
		return nil, err
	}
	refs := make([]SceneRef, 0, len(rows))
	for _, row := range rows {
		refs = append(refs, SceneRef{Title: row.Title, Summary: row.Summary})
	}
	return refs, nil
}

type knowledgeRefRow struct {
	Fact      *string `json:"fact"`
	Certainty *string `json:"certainty"`
}

func (s *Service) fetchCharacterKnowledge(ctx context.Context, rid any) ([]KnowledgeRef, error) {
	rows, err := db.Query[knowledgeRefRow](ctx, s.client, `
		SELECT out.fact AS fact, certainty FROM knows
		WHERE in = $ref AND superseded = false AND out.fact IS NOT NONE
		ORDER BY learned_at
	`, map[string]any{"ref": rid})
	if err != nil {
		return nil, err
	}
	return toKnowledgeRefs(rows), nil
}

// fetchKnowledgeAbout finds the observer's knowledge mentioning the target
// by name. Non-critical enrichment; errors degrade to empty.
func (s *Service) fetchKnowledgeAbout(ctx context.Context, observerID, targetName string) []KnowledgeRef {
	observer, err := models.RecordID(observerID)
	if err != nil {
		return nil
	}
	rows, err := db.Query[knowledgeRefRow](ctx, s.client, `
		SELECT out.fact AS fact, certainty FROM knows
		WHERE in = $observer AND out.fact IS NOT NONE AND string::contains(out.fact, $target_name)
		ORDER BY learned_at DESC LIMIT 5
	`, map[string]any{"observer": observer, "target_name": targetName})
	if err != nil {
		slog.Warn("fetch knowledge about failed", "target", targetName, "error", err)
		return nil
	}
	return toKnowledgeRefs(rows)
}

func toKnowledgeRefs(rows []knowledgeRefRow) []KnowledgeRef {
	refs := make([]KnowledgeRef, 0, len(rows))
	for _, row := range rows {
		if row.Fact == nil {
			continue
		}
		certainty := models.CertaintyKnows
		if row.Certainty != nil {
			certainty = models.ParseCertainty(*row.Certainty)
		}
		refs = append(refs, KnowledgeRef{Fact: *row.Fact, Certainty: certainty})
	}
	return refs
}

// fetchSharedScenes intersects the scene sets of two characters, capped at
// five. Non-critical enrichment; errors degrade to empty.
func (s *Service) fetchSharedScenes(ctx context.Context, observerID, targetID string) []SceneRef {
	observer, errA := models.RecordID(observerID)
	target, errB := models.RecordID(targetID)
	if errA != nil || errB != nil {
		return nil
	}

	type sceneIDRow struct {
		Out string `json:"out"`
	}
	scenesOf := func(rid any) map[string]bool {
		rows, err := db.Query[sceneIDRow](ctx, s.client,
			`SELECT <string>out AS out FROM participates_in WHERE in = $ref`,
			map[string]any{"ref": rid})
		if err != nil {
			return nil
		}
		set := make(map[string]bool, len(rows))
		for _, row := range rows {
			set[row.Out] = true
		}
		return set
	}

	setA := scenesOf(observer)
	setB := scenesOf(target)
	var shared []any
	for id := range setA {
		if setB[id] {
			if rid, err := models.RecordID(id); err == nil {
				shared = append(shared, rid)
			}
			if len(shared) == 5 {
				break
			}
		}
	}
	if len(shared) == 0 {
		return nil
	}

	rows, err := db.Query[sceneRefRow](ctx, s.client,
		`SELECT title, summary FROM scene WHERE id IN $ids`,
		map[string]any{"ids": shared})
	if err != nil {
		slog.Warn("fetch shared scenes failed", "error", err)
		return nil
	}
	refs := make([]SceneRef, 0, len(rows))
	for _, row := range rows {
		refs = append(refs, SceneRef{Title: row.Title, Summary: row.Summary})
	}
	return refs
}

func qualify(id, table string) string {
	if strings.Contains(id, ":") {
		return id
	}
	return table + ":" + id
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
