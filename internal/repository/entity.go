// Package repository groups persistence by concern: entities, relationships,
// and knowledge. Implementations are thin over the SurrealDB client; services
// depend only on the interfaces so tests can substitute in-memory fakes.
package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/raphaelgruber/narra-go/internal/db"
	"github.com/raphaelgruber/narra-go/internal/models"
)

// characterBatchSize is the chunk size for bulk character inserts.
const characterBatchSize = 50

// EntityRepository is CRUD over the four entity kinds plus facts and notes.
type EntityRepository interface {
	GetCharacter(ctx context.Context, id string) (*models.Character, error)
	ListCharacters(ctx context.Context) ([]models.Character, error)
	CreateCharacter(ctx context.Context, input models.CharacterInput) (*models.Character, error)
	CreateCharactersBatch(ctx context.Context, inputs []models.CharacterInput) ([]models.Character, error)
	UpdateCharacter(ctx context.Context, id string, fields map[string]any) (*models.Character, error)
	DeleteCharacter(ctx context.Context, id string) error

	GetLocation(ctx context.Context, id string) (*models.Location, error)
	ListLocations(ctx context.Context) ([]models.Location, error)
	CreateLocation(ctx context.Context, input models.LocationInput) (*models.Location, error)
	UpdateLocation(ctx context.Context, id string, fields map[string]any) (*models.Location, error)
	DeleteLocation(ctx context.Context, id string) error

	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListEvents(ctx context.Context) ([]models.Event, error)
	CreateEvent(ctx context.Context, input models.EventInput) (*models.Event, error)
	UpdateEvent(ctx context.Context, id string, fields map[string]any) (*models.Event, error)
	DeleteEvent(ctx context.Context, id string) error

	GetScene(ctx context.Context, id string) (*models.Scene, error)
	ListScenes(ctx context.Context) ([]models.Scene, error)
	CreateScene(ctx context.Context, input models.SceneInput) (*models.Scene, error)
	UpdateScene(ctx context.Context, id string, fields map[string]any) (*models.Scene, error)
	DeleteScene(ctx context.Context, id string) error

	GetFact(ctx context.Context, id string) (*models.UniverseFact, error)
	ListFacts(ctx context.Context) ([]models.UniverseFact, error)
	CreateFact(ctx context.Context, input models.FactInput) (*models.UniverseFact, error)
	UpdateFact(ctx context.Context, id string, fields map[string]any) (*models.UniverseFact, error)
	DeleteFact(ctx context.Context, id string) error

	GetNote(ctx context.Context, id string) (*models.Note, error)
	ListNotes(ctx context.Context) ([]models.Note, error)
	CreateNote(ctx context.Context, title, body string) (*models.Note, error)
	UpdateNote(ctx context.Context, id string, fields map[string]any) (*models.Note, error)
	DeleteNote(ctx context.Context, id string) error
	AttachNote(ctx context.Context, noteID, entityID string) error
	DetachNote(ctx context.Context, noteID, entityID string) error
	LinkFact(ctx context.Context, factID, entityID string) error
	UnlinkFact(ctx context.Context, factID, entityID string) error

	// CountByType returns record counts per entity table (world overview).
	CountByType(ctx context.Context) (map[string]int, error)
}

// SurrealEntityRepository implements EntityRepository over SurrealDB.
type SurrealEntityRepository struct {
	client *db.Client
}

// NewEntityRepository creates the SurrealDB-backed entity repository.
func NewEntityRepository(client *db.Client) *SurrealEntityRepository {
	return &SurrealEntityRepository{client: client}
}

var _ EntityRepository = (*SurrealEntityRepository)(nil)

func keyFor(explicit, table string) string {
	if explicit == "" {
		return uuid.NewString()
	}
	// Accept both "alice" and "character:alice" spellings.
	return strings.TrimPrefix(explicit, table+":")
}

func getByID[T any](ctx context.Context, c *db.Client, table, id string) (*T, error) {
	key := strings.TrimPrefix(id, table+":")
	return db.QueryOne[T](ctx, c, fmt.Sprintf(`SELECT * FROM type::record("%s", $id)`, table),
		map[string]any{"id": key})
}

// --- Characters ---

func (r *SurrealEntityRepository) GetCharacter(ctx context.Context, id string) (*models.Character, error) {
	return getByID[models.Character](ctx, r.client, "character", id)
}

func (r *SurrealEntityRepository) ListCharacters(ctx context.Context) ([]models.Character, error) {
	return db.Query[models.Character](ctx, r.client, `SELECT * FROM character ORDER BY name`, nil)
}

func (r *SurrealEntityRepository) CreateCharacter(ctx context.Context, input models.CharacterInput) (*models.Character, error) {
	if input.Name == "" {
		return nil, db.Validationf("character name is required")
	}
	profile := input.Profile
	if profile == nil {
		profile = map[string][]string{}
	}
	row, err := db.QueryOne[models.Character](ctx, r.client, `
		CREATE type::record("character", $id) SET
			name = $name,
			aliases = $aliases,
			roles = $roles,
			profile = $profile
		RETURN AFTER
	`, map[string]any{
		"id":      keyFor(input.ID, "character"),
		"name":    input.Name,
		"aliases": orEmpty(input.Aliases),
		"roles":   orEmpty(input.Roles),
		"profile": profile,
	})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, &db.TransactionError{Message: "create character returned no record"}
	}
	return row, nil
}

func (r *SurrealEntityRepository) CreateCharactersBatch(ctx context.Context, inputs []models.CharacterInput) ([]models.Character, error) {
	created := make([]models.Character, 0, len(inputs))
	for start := 0; start < len(inputs); start += characterBatchSize {
		end := min(start+characterBatchSize, len(inputs))
		for _, input := range inputs[start:end] {
			c, err := r.CreateCharacter(ctx, input)
			if err != nil {
				return created, &db.TransactionError{
					Message: fmt.Sprintf("batch create failed at %q after %d records: %v", input.Name, len(created), err),
				}
			}
			created = append(created, *c)
		}
	}
	return created, nil
}

func (r *SurrealEntityRepository) UpdateCharacter(ctx context.Context, id string, fields map[string]any) (*models.Character, error) {
	return updateRecord[models.Character](ctx, r.client, "character", id, fields, characterStaleFields(fields))
}

func (r *SurrealEntityRepository) DeleteCharacter(ctx context.Context, id string) error {
	// Knowledge records owned by the character are non-cascadable: they may
	// be targets of other characters' knows edges.
	owned, err := db.Query[countRow](ctx, r.client,
		`SELECT count() AS c FROM knowledge WHERE character = type::record("character", $id) GROUP ALL`,
		map[string]any{"id": strings.TrimPrefix(id, "character:")})
	if err != nil {
		return err
	}
	if len(owned) > 0 && owned[0].C > 0 {
		return &db.ReferentialIntegrityError{
			EntityType: "character", ID: id,
			Message: fmt.Sprintf("%d knowledge records reference this character; delete them first", owned[0].C),
		}
	}
	return deleteWithCascade(ctx, r.client, "character", id,
		[]string{"relates_to", "perceives", "knows", "participates_in", "involved_in"})
}

// --- Locations ---

func (r *SurrealEntityRepository) GetLocation(ctx context.Context, id string) (*models.Location, error) {
	return getByID[models.Location](ctx, r.client, "location", id)
}

func (r *SurrealEntityRepository) ListLocations(ctx context.Context) ([]models.Location, error) {
	return db.Query[models.Location](ctx, r.client, `SELECT * FROM location ORDER BY name`, nil)
}

func (r *SurrealEntityRepository) CreateLocation(ctx context.Context, input models.LocationInput) (*models.Location, error) {
	if input.Name == "" {
		return nil, db.Validationf("location name is required")
	}
	locType := input.LocType
	if locType == "" {
		locType = "place"
	}
	row, err := db.QueryOne[models.Location](ctx, r.client, `
		CREATE type::record("location", $id) SET
			name = $name,
			description = $description,
			loc_type = $loc_type
		RETURN AFTER
	`, map[string]any{
		"id":          keyFor(input.ID, "location"),
		"name":        input.Name,
		"description": input.Description,
		"loc_type":    locType,
	})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, &db.TransactionError{Message: "create location returned no record"}
	}
	return row, nil
}

func (r *SurrealEntityRepository) UpdateLocation(ctx context.Context, id string, fields map[string]any) (*models.Location, error) {
	return updateRecord[models.Location](ctx, r.client, "location", id, fields, simpleStaleFields(fields, "name", "description", "loc_type"))
}

func (r *SurrealEntityRepository) DeleteLocation(ctx context.Context, id string) error {
	if err := blockIfReferenced(ctx, r.client, "scene", "location", "location", id, "scenes use this location"); err != nil {
		return err
	}
	return deleteWithCascade(ctx, r.client, "location", id, nil)
}

// --- Events ---

func (r *SurrealEntityRepository) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	return getByID[models.Event](ctx, r.client, "event", id)
}

func (r *SurrealEntityRepository) ListEvents(ctx context.Context) ([]models.Event, error) {
	return db.Query[models.Event](ctx, r.client, `SELECT * FROM event ORDER BY sequence`, nil)
}

func (r *SurrealEntityRepository) CreateEvent(ctx context.Context, input models.EventInput) (*models.Event, error) {
	if input.Title == "" {
		return nil, db.Validationf("event title is required")
	}
	row, err := db.QueryOne[models.Event](ctx, r.client, `
		CREATE type::record("event", $id) SET
			title = $title,
			description = $description,
			sequence = $sequence,
			date = $date,
			date_precision = $date_precision
		RETURN AFTER
	`, map[string]any{
		"id":             keyFor(input.ID, "event"),
		"title":          input.Title,
		"description":    input.Description,
		"sequence":       input.Sequence,
		"date":           input.Date,
		"date_precision": input.DatePrecision,
	})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, &db.TransactionError{Message: "create event returned no record"}
	}
	return row, nil
}

func (r *SurrealEntityRepository) UpdateEvent(ctx context.Context, id string, fields map[string]any) (*models.Event, error) {
	return updateRecord[models.Event](ctx, r.client, "event", id, fields, simpleStaleFields(fields, "title", "description", "sequence"))
}

func (r *SurrealEntityRepository) DeleteEvent(ctx context.Context, id string) error {
	if err := blockIfReferenced(ctx, r.client, "scene", "event", "event", id, "scenes belong to this event"); err != nil {
		return err
	}
	if err := blockIfReferenced(ctx, r.client, "knowledge", "source_event", "event", id, "knowledge records cite this event"); err != nil {
		return err
	}
	return deleteWithCascade(ctx, r.client, "event", id, []string{"involved_in"})
}

// --- Scenes ---

func (r *SurrealEntityRepository) GetScene(ctx context.Context, id string) (*models.Scene, error) {
	return getByID[models.Scene](ctx, r.client, "scene", id)
}

func (r *SurrealEntityRepository) ListScenes(ctx context.Context) ([]models.Scene, error) {
	return db.Query[models.Scene](ctx, r.client, `SELECT * FROM scene ORDER BY created_at`, nil)
}

func (r *SurrealEntityRepository) CreateScene(ctx context.Context, input models.SceneInput) (*models.Scene, error) {
	if input.Title == "" {
		return nil, db.Validationf("scene title is required")
	}
	if input.EventID == "" || input.LocationID == "" {
		return nil, db.Validationf("scene requires event_id and location_id")
	}
	event, err := r.GetEvent(ctx, input.EventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, &db.NotFoundError{EntityType: "event", ID: input.EventID}
	}
	location, err := r.GetLocation(ctx, input.LocationID)
	if err != nil {
		return nil, err
	}
	if location == nil {
		return nil, &db.NotFoundError{EntityType: "location", ID: input.LocationID}
	}

	secondary := make([]any, 0, len(input.SecondaryLocations))
	for _, loc := range input.SecondaryLocations {
		rid, err := models.RecordID(qualify(loc, "location"))
		if err != nil {
			return nil, db.Validationf("bad secondary location id: %v", err)
		}
		secondary = append(secondary, rid)
	}

	row, err := db.QueryOne[models.Scene](ctx, r.client, `
		CREATE type::record("scene", $id) SET
			title = $title,
			summary = $summary,
			event = $event,
			location = $location,
			secondary_locations = $secondary
		RETURN AFTER
	`, map[string]any{
		"id":        keyFor(input.ID, "scene"),
		"title":     input.Title,
		"summary":   input.Summary,
		"event":     event.ID,
		"location":  location.ID,
		"secondary": secondary,
	})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, &db.TransactionError{Message: "create scene returned no record"}
	}
	return row, nil
}

func (r *SurrealEntityRepository) UpdateScene(ctx context.Context, id string, fields map[string]any) (*models.Scene, error) {
	return updateRecord[models.Scene](ctx, r.client, "scene", id, fields, simpleStaleFields(fields, "title", "summary", "event", "location"))
}

func (r *SurrealEntityRepository) DeleteScene(ctx context.Context, id string) error {
	return deleteWithCascade(ctx, r.client, "scene", id, []string{"participates_in"})
}

// --- Universe facts ---

func (r *SurrealEntityRepository) GetFact(ctx context.Context, id string) (*models.UniverseFact, error) {
	return getByID[models.UniverseFact](ctx, r.client, "fact", id)
}

func (r *SurrealEntityRepository) ListFacts(ctx context.Context) ([]models.UniverseFact, error) {
	return db.Query[models.UniverseFact](ctx, r.client, `SELECT * FROM fact ORDER BY title`, nil)
}

func (r *SurrealEntityRepository) CreateFact(ctx context.Context, input models.FactInput) (*models.UniverseFact, error) {
	if input.Title == "" || input.Description == "" {
		return nil, db.Validationf("fact requires title and description")
	}
	row, err := db.QueryOne[models.UniverseFact](ctx, r.client, `
		CREATE type::record("fact", $id) SET
			title = $title,
			description = $description,
			categories = $categories,
			enforcement_level = $enforcement,
			scope = $scope
		RETURN AFTER
	`, map[string]any{
		"id":          uuid.NewString(),
		"title":       input.Title,
		"description": input.Description,
		"categories":  orEmpty(input.Categories),
		"enforcement": string(models.ParseEnforcementLevel(input.EnforcementLevel)),
		"scope":       input.Scope,
	})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, &db.TransactionError{Message: "create fact returned no record"}
	}
	return row, nil
}

func (r *SurrealEntityRepository) UpdateFact(ctx context.Context, id string, fields map[string]any) (*models.UniverseFact, error) {
	return updateRecord[models.UniverseFact](ctx, r.client, "fact", id, fields, nil)
}

func (r *SurrealEntityRepository) DeleteFact(ctx context.Context, id string) error {
	return deleteWithCascade(ctx, r.client, "fact", id, []string{"applies_to"})
}

// --- Notes ---

func (r *SurrealEntityRepository) GetNote(ctx context.Context, id string) (*models.Note, error) {
	return getByID[models.Note](ctx, r.client, "note", id)
}

func (r *SurrealEntityRepository) ListNotes(ctx context.Context) ([]models.Note, error) {
	return db.Query[models.Note](ctx, r.client, `SELECT * FROM note ORDER BY updated_at DESC`, nil)
}

func (r *SurrealEntityRepository) CreateNote(ctx context.Context, title, body string) (*models.Note, error) {
	if title == "" {
		return nil, db.Validationf("note title is required")
	}
	row, err := db.QueryOne[models.Note](ctx, r.client, `
		CREATE type::record("note", $id) SET title = $title, body = $body RETURN AFTER
	`, map[string]any{"id": uuid.NewString(), "title": title, "body": body})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, &db.TransactionError{Message: "create note returned no record"}
	}
	return row, nil
}

func (r *SurrealEntityRepository) UpdateNote(ctx context.Context, id string, fields map[string]any) (*models.Note, error) {
	return updateRecord[models.Note](ctx, r.client, "note", id, fields, nil)
}

func (r *SurrealEntityRepository) DeleteNote(ctx context.Context, id string) error {
	return deleteWithCascade(ctx, r.client, "note", id, []string{"note_of"})
}

// AttachNote links a note to any entity via note_of. The unique pair
// index makes a repeat attach a conflict.
func (r *SurrealEntityRepository) AttachNote(ctx context.Context, noteID, entityID string) error {
	note, err := r.GetNote(ctx, noteID)
	if err != nil {
		return err
	}
	if note == nil {
		return &db.NotFoundError{EntityType: "note", ID: noteID}
	}
	tb, key, err := models.SplitEntityID(entityID)
	if err != nil {
		return db.Validationf("bad entity id: %v", err)
	}
	err = r.client.Exec(ctx, `
		RELATE (type::record("note", $note))->note_of->(type::record($tb, $key))
	`, map[string]any{"note": keyFor(noteID, "note"), "tb": tb, "key": key})
	if err != nil && strings.Contains(err.Error(), "unique_note_of") {
		return &db.ConflictError{Message: fmt.Sprintf("note %s is already attached to %s", noteID, entityID)}
	}
	return err
}

// DetachNote removes a note_of link.
func (r *SurrealEntityRepository) DetachNote(ctx context.Context, noteID, entityID string) error {
	return r.client.Exec(ctx, `
		DELETE note_of WHERE <string>in = $note AND <string>out = $entity
	`, map[string]any{"note": qualify(noteID, "note"), "entity": entityID})
}

// LinkFact applies a universe fact to an entity.
func (r *SurrealEntityRepository) LinkFact(ctx context.Context, factID, entityID string) error {
	fact, err := r.GetFact(ctx, factID)
	if err != nil {
		return err
	}
	if fact == nil {
		return &db.NotFoundError{EntityType: "fact", ID: factID}
	}
	tb, key, err := models.SplitEntityID(entityID)
	if err != nil {
		return db.Validationf("bad entity id: %v", err)
	}
	existing, err := db.Query[countRow](ctx, r.client, `
		SELECT count() AS c FROM applies_to
		WHERE <string>in = $fact AND <string>out = $entity GROUP ALL
	`, map[string]any{"fact": qualify(factID, "fact"), "entity": qualify(entityID, tb)})
	if err != nil {
		return err
	}
	if len(existing) > 0 && existing[0].C > 0 {
		return &db.ConflictError{Message: fmt.Sprintf("fact %s already applies to %s", factID, entityID)}
	}
	return r.client.Exec(ctx, `
		RELATE (type::record("fact", $fact))->applies_to->(type::record($tb, $key))
	`, map[string]any{"fact": keyFor(factID, "fact"), "tb": tb, "key": key})
}

// UnlinkFact removes an applies_to link.
func (r *SurrealEntityRepository) UnlinkFact(ctx context.Context, factID, entityID string) error {
	return r.client.Exec(ctx, `
		DELETE applies_to WHERE <string>in = $fact AND <string>out = $entity
	`, map[string]any{"fact": qualify(factID, "fact"), "entity": entityID})
}

// --- Counts ---

type typeCountRow struct {
	C int `json:"c"`
}

func (r *SurrealEntityRepository) CountByType(ctx context.Context) (map[string]int, error) {
	counts := map[string]int{}
	for _, table := range []string{"character", "location", "event", "scene", "knowledge", "fact", "note"} {
		rows, err := db.Query[typeCountRow](ctx, r.client,
			fmt.Sprintf(`SELECT count() AS c FROM %s GROUP ALL`, table), nil)
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			counts[table] = rows[0].C
		} else {
			counts[table] = 0
		}
	}
	return counts, nil
}

// --- Shared helpers ---

type countRow struct {
	C int `json:"c"`
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func qualify(id, table string) string {
	if strings.Contains(id, ":") {
		return id
	}
	return table + ":" + id
}

// characterStaleFields maps updated character fields to the stale flags that
// must be raised. Name/aliases/roles touch every facet; profile keys touch
// psychology; the primary composite covers everything.
func characterStaleFields(fields map[string]any) []string {
	stale := map[string]bool{}
	for field := range fields {
		switch field {
		case "name", "aliases", "roles":
			stale["embedding_stale"] = true
			stale["identity_stale"] = true
			stale["psychology_stale"] = true
			stale["social_stale"] = true
			stale["narrative_stale"] = true
		case "profile":
			stale["embedding_stale"] = true
			stale["psychology_stale"] = true
		}
		if strings.HasPrefix(field, "profile.") {
			stale["embedding_stale"] = true
			stale["psychology_stale"] = true
		}
	}
	out := make([]string, 0, len(stale))
	for _, f := range []string{"embedding_stale", "identity_stale", "psychology_stale", "social_stale", "narrative_stale"} {
		if stale[f] {
			out = append(out, f)
		}
	}
	return out
}

// simpleStaleFields raises embedding_stale when any composite-participating
// field is among the updates.
func simpleStaleFields(fields map[string]any, participating ...string) []string {
	for field := range fields {
		for _, p := range participating {
			if field == p {
				return []string{"embedding_stale"}
			}
		}
	}
	return nil
}

// updateRecord applies a partial update, touching updated_at and raising the
// given stale flags. Returns NotFound when the record is absent.
func updateRecord[T any](ctx context.Context, c *db.Client, table, id string, fields map[string]any, staleFlags []string) (*T, error) {
	if len(fields) == 0 {
		return nil, db.Validationf("no fields to update")
	}
	key := strings.TrimPrefix(id, table+":")

	var sets []string
	vars := map[string]any{"id": key}
	i := 0
	for field, value := range fields {
		if !validFieldName(field) {
			return nil, db.Validationf("invalid field name %q", field)
		}
		bind := fmt.Sprintf("v%d", i)
		sets = append(sets, fmt.Sprintf("%s = $%s", field, bind))
		vars[bind] = value
		i++
	}
	sets = append(sets, "updated_at = time::now()")
	for _, flag := range staleFlags {
		sets = append(sets, flag+" = true")
	}

	sql := fmt.Sprintf(`UPDATE type::record("%s", $id) SET %s RETURN AFTER`, table, strings.Join(sets, ", "))
	row, err := db.QueryOne[T](ctx, c, sql, vars)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, &db.NotFoundError{EntityType: table, ID: id}
	}
	return row, nil
}

func validFieldName(field string) bool {
	for _, r := range field {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '.':
		default:
			return false
		}
	}
	return field != ""
}

// blockIfReferenced returns ReferentialIntegrity when rows in refTable still
// point at the record through refField.
func blockIfReferenced(ctx context.Context, c *db.Client, refTable, refField, table, id, message string) error {
	key := strings.TrimPrefix(id, table+":")
	rows, err := db.Query[countRow](ctx, c, fmt.Sprintf(
		`SELECT count() AS c FROM %s WHERE %s = type::record("%s", $id) GROUP ALL`,
		refTable, refField, table), map[string]any{"id": key})
	if err != nil {
		return err
	}
	if len(rows) > 0 && rows[0].C > 0 {
		return &db.ReferentialIntegrityError{EntityType: table, ID: id,
			Message: fmt.Sprintf("%d %s", rows[0].C, message)}
	}
	return nil
}

// deleteWithCascade removes cascadable edges touching the record (either
// endpoint), applies_to and note_of attachments, then the record itself.
// Returns NotFound when nothing was deleted.
func deleteWithCascade(ctx context.Context, c *db.Client, table, id string, edgeTables []string) error {
	key := strings.TrimPrefix(id, table+":")
	rid := fmt.Sprintf(`type::record("%s", $id)`, table)

	edges := append([]string{"applies_to", "note_of"}, edgeTables...)
	for _, edge := range edges {
		if err := c.Exec(ctx, fmt.Sprintf(`DELETE %s WHERE in = %s OR out = %s`, edge, rid, rid),
			map[string]any{"id": key}); err != nil {
			return err
		}
	}

	deleted, err := db.Query[map[string]any](ctx, c,
		fmt.Sprintf(`DELETE %s RETURN BEFORE`, rid), map[string]any{"id": key})
	if err != nil {
		return err
	}
	if len(deleted) == 0 {
		return &db.NotFoundError{EntityType: table, ID: id}
	}
	return nil
}
