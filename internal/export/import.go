package export

import (
	"context"
	"fmt"
	"strings"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/narra-go/internal/db"
	"github.com/raphaelgruber/narra-go/internal/models"
)

// ConflictMode controls what happens when an imported id already exists.
type ConflictMode string

const (
	// ConflictError records an error for the duplicate and continues
	// with the remaining entities.
	ConflictError ConflictMode = "error"
	// ConflictSkip silently skips duplicates.
	ConflictSkip ConflictMode = "skip"
	// ConflictUpdate merges the imported fields into the existing record.
	ConflictUpdate ConflictMode = "update"
)

// ParseConflictMode normalizes a mode string, defaulting to error.
func ParseConflictMode(s string) ConflictMode {
	switch ConflictMode(strings.ToLower(s)) {
	case ConflictSkip, ConflictUpdate:
		return ConflictMode(strings.ToLower(s))
	}
	return ConflictError
}

// ImportTypeResult counts the outcome for one entity kind.
type ImportTypeResult struct {
	EntityType string   `json:"entity_type"`
	Created    int      `json:"created"`
	Skipped    int      `json:"skipped"`
	Updated    int      `json:"updated"`
	Errors     []string `json:"errors,omitempty"`
}

// ImportResult aggregates the whole import run.
type ImportResult struct {
	ByType       []ImportTypeResult `json:"by_type"`
	TotalCreated int                `json:"total_created"`
	TotalSkipped int                `json:"total_skipped"`
	TotalUpdated int                `json:"total_updated"`
	TotalErrors  int                `json:"total_errors"`
}

// ParseDocument decodes a YAML world document.
func ParseDocument(data []byte) (*WorldDocument, error) {
	var doc WorldDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, db.Validationf("malformed world document: %v", err)
	}
	if doc.Version > FormatVersion {
		return nil, db.Validationf("unsupported document version %d", doc.Version)
	}
	return &doc, nil
}

// Import writes a world document into the database in dependency order.
// Per-entity failures are collected, not fatal; the caller decides how
// to surface them. All imported records start with stale embeddings so
// a backfill pass can fill vectors afterwards.
func (e *Exporter) Import(ctx context.Context, doc *WorldDocument, mode ConflictMode) (*ImportResult, error) {
	result := &ImportResult{}

	sections := []func(context.Context, *WorldDocument, ConflictMode) ImportTypeResult{
		e.importCharacters,
		e.importLocations,
		e.importEvents,
		e.importScenes,
		e.importRelationships,
		e.importPerceptions,
		e.importKnowledge,
		e.importNotes,
		e.importFacts,
	}
	for _, section := range sections {
		tr := section(ctx, doc, mode)
		result.ByType = append(result.ByType, tr)
		result.TotalCreated += tr.Created
		result.TotalSkipped += tr.Skipped
		result.TotalUpdated += tr.Updated
		result.TotalErrors += len(tr.Errors)
	}
	return result, nil
}

// markStale flags embeddings for regeneration on tables that carry
// them. Notes and facts have no vectors.
func markStale(table string, merge map[string]any) {
	switch table {
	case "character":
		merge["embedding_stale"] = true
		for _, f := range models.Facets {
			merge[f.StaleColumn()] = true
		}
	case "location", "event", "scene":
		merge["embedding_stale"] = true
	}
}

// fullID normalizes a reference to "table:key" notation. Bare keys get
// the given table prefix; already-qualified ids pass through.
func fullID(table, id string) string {
	if strings.Contains(id, ":") {
		return id
	}
	return table + ":" + id
}

// recordParts splits a normalized reference for type::record binding.
func recordParts(table, id string) (string, string) {
	full := fullID(table, id)
	tb, key, err := models.SplitEntityID(full)
	if err != nil {
		return table, id
	}
	return tb, key
}

func (e *Exporter) exists(ctx context.Context, table, key string) (bool, error) {
	row, err := db.QueryOne[attachmentRow](ctx, e.client,
		`SELECT <string>id AS id FROM type::record($tb, $key)`,
		map[string]any{"tb": table, "key": key})
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

type createdRow struct {
	ID surrealmodels.RecordID `json:"id"`
}

// upsertOne handles the shared create/skip/update flow for records with
// an optional explicit id. content is the CREATE payload, merge the
// UPDATE payload for conflict mode update. Returns the record key on
// fresh creation, empty otherwise.
func (e *Exporter) upsertOne(
	ctx context.Context,
	result *ImportTypeResult,
	mode ConflictMode,
	table, key, label string,
	content, merge map[string]any,
) string {
	if key != "" {
		found, err := e.exists(ctx, table, key)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s %q: %v", table, label, err))
			return ""
		}
		if found {
			switch mode {
			case ConflictSkip:
				result.Skipped++
			case ConflictUpdate:
				markStale(table, merge)
				err := e.client.Exec(ctx,
					`UPDATE type::record($tb, $key) MERGE $data;
					 UPDATE type::record($tb, $key) SET updated_at = time::now()`,
					map[string]any{"tb": table, "key": key, "data": merge})
				if err != nil {
					result.Errors = append(result.Errors, fmt.Sprintf("%s %q: %v", table, label, err))
					return ""
				}
				result.Updated++
			default:
				result.Errors = append(result.Errors, fmt.Sprintf("%s %q already exists", table, label))
			}
			return ""
		}
	}

	sql := `CREATE type::table($tb) CONTENT $data RETURN AFTER`
	vars := map[string]any{"tb": table, "data": content}
	if key != "" {
		sql = `CREATE type::record($tb, $key) CONTENT $data RETURN AFTER`
		vars["key"] = key
	}
	row, err := db.QueryOne[createdRow](ctx, e.client, sql, vars)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s %q: %v", table, label, err))
		return ""
	}
	if row == nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s %q: create returned no record", table, label))
		return ""
	}
	result.Created++
	return recordKey(row.ID)
}

func (e *Exporter) importCharacters(ctx context.Context, doc *WorldDocument, mode ConflictMode) ImportTypeResult {
	result := ImportTypeResult{EntityType: "character"}
	for _, spec := range doc.Characters {
		if spec.Name == "" {
			result.Errors = append(result.Errors, "character with empty name")
			continue
		}
		content := map[string]any{
			"name":    spec.Name,
			"aliases": orEmpty(spec.Aliases),
			"roles":   orEmpty(spec.Roles),
			"profile": orEmptyProfile(spec.Profile),
		}
		merge := map[string]any{"name": spec.Name}
		if spec.Aliases != nil {
			merge["aliases"] = spec.Aliases
		}
		if spec.Roles != nil {
			merge["roles"] = spec.Roles
		}
		if spec.Profile != nil {
			merge["profile"] = spec.Profile
		}
		e.upsertOne(ctx, &result, mode, "character", spec.ID, spec.Name, content, merge)
	}
	return result
}

func (e *Exporter) importLocations(ctx context.Context, doc *WorldDocument, mode ConflictMode) ImportTypeResult {
	result := ImportTypeResult{EntityType: "location"}
	for _, spec := range doc.Locations {
		if spec.Name == "" {
			result.Errors = append(result.Errors, "location with empty name")
			continue
		}
		locType := spec.LocType
		if locType == "" {
			locType = "place"
		}
		content := map[string]any{
			"name":        spec.Name,
			"description": spec.Description,
			"loc_type":    locType,
		}
		merge := map[string]any{"name": spec.Name, "loc_type": locType}
		if spec.Description != nil {
			merge["description"] = *spec.Description
		}
		e.upsertOne(ctx, &result, mode, "location", spec.ID, spec.Name, content, merge)
	}
	return result
}

func (e *Exporter) importEvents(ctx context.Context, doc *WorldDocument, mode ConflictMode) ImportTypeResult {
	result := ImportTypeResult{EntityType: "event"}
	for _, spec := range doc.Events {
		if spec.Title == "" {
			result.Errors = append(result.Errors, "event with empty title")
			continue
		}
		content := map[string]any{
			"title":          spec.Title,
			"description":    spec.Description,
			"sequence":       spec.Sequence,
			"date":           spec.Date,
			"date_precision": spec.DatePrecision,
		}
		merge := map[string]any{"title": spec.Title, "sequence": spec.Sequence}
		if spec.Description != nil {
			merge["description"] = *spec.Description
		}
		if spec.Date != nil {
			merge["date"] = *spec.Date
		}
		if spec.DatePrecision != nil {
			merge["date_precision"] = *spec.DatePrecision
		}
		e.upsertOne(ctx, &result, mode, "event", spec.ID, spec.Title, content, merge)
	}
	return result
}

func (e *Exporter) importScenes(ctx context.Context, doc *WorldDocument, mode ConflictMode) ImportTypeResult {
	result := ImportTypeResult{EntityType: "scene"}
	for _, spec := range doc.Scenes {
		if spec.Title == "" || spec.EventID == "" || spec.LocationID == "" {
			result.Errors = append(result.Errors,
				fmt.Sprintf("scene %q needs title, event_id and location_id", spec.Title))
			continue
		}
		eventTb, eventKey := recordParts("event", spec.EventID)
		locTb, locKey := recordParts("location", spec.LocationID)
		secondary := make([]string, 0, len(spec.SecondaryLocations))
		for _, loc := range spec.SecondaryLocations {
			secondary = append(secondary, fullID("location", loc))
		}

		if spec.ID != "" {
			found, err := e.exists(ctx, "scene", spec.ID)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("scene %q: %v", spec.Title, err))
				continue
			}
			if found {
				switch mode {
				case ConflictSkip:
					result.Skipped++
				case ConflictUpdate:
					merge := map[string]any{"title": spec.Title, "embedding_stale": true}
					if spec.Summary != nil {
						merge["summary"] = *spec.Summary
					}
					err := e.client.Exec(ctx,
						`UPDATE type::record("scene", $key) MERGE $data;
						 UPDATE type::record("scene", $key) SET updated_at = time::now()`,
						map[string]any{"key": spec.ID, "data": merge})
					if err != nil {
						result.Errors = append(result.Errors, fmt.Sprintf("scene %q: %v", spec.Title, err))
						continue
					}
					result.Updated++
				default:
					result.Errors = append(result.Errors, fmt.Sprintf("scene %q already exists", spec.ID))
				}
				continue
			}
		}

		sql := `CREATE type::table($tb) CONTENT $data RETURN AFTER`
		vars := map[string]any{"tb": "scene"}
		if spec.ID != "" {
			sql = `CREATE type::record($tb, $key) CONTENT $data RETURN AFTER`
			vars["key"] = spec.ID
		}
		vars["data"] = map[string]any{
			"title":               spec.Title,
			"summary":             spec.Summary,
			"event":               typedRecord(eventTb, eventKey),
			"location":            typedRecord(locTb, locKey),
			"secondary_locations": recordList(secondary),
		}
		row, err := db.QueryOne[models.Scene](ctx, e.client, sql, vars)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("scene %q: %v", spec.Title, err))
			continue
		}
		if row == nil {
			result.Errors = append(result.Errors, fmt.Sprintf("scene %q: create returned no record", spec.Title))
			continue
		}
		result.Created++

		// Participants attach on fresh creation only; updates leave the
		// existing cast untouched.
		sceneKey := recordKey(row.ID)
		for _, p := range spec.Participants {
			charTb, charKey := recordParts("character", p.CharacterID)
			err := e.client.Exec(ctx,
				`RELATE (type::record($ctb, $ckey))->participates_in->(type::record("scene", $skey))
				 CONTENT { role: $role, notes: $notes }`,
				map[string]any{
					"ctb": charTb, "ckey": charKey, "skey": sceneKey,
					"role": p.Role, "notes": p.Notes,
				})
			if err != nil {
				result.Errors = append(result.Errors,
					fmt.Sprintf("scene %q participant %s: %v", spec.Title, p.CharacterID, err))
			}
		}
	}
	return result
}

func (e *Exporter) importRelationships(ctx context.Context, doc *WorldDocument, _ ConflictMode) ImportTypeResult {
	result := ImportTypeResult{EntityType: "relationship"}
	for _, spec := range doc.Relationships {
		if spec.FromCharacterID == "" || spec.ToCharacterID == "" || spec.RelType == "" {
			result.Errors = append(result.Errors, "relationship needs from, to and rel_type")
			continue
		}
		from := fullID("character", spec.FromCharacterID)
		to := fullID("character", spec.ToCharacterID)

		existing, err := db.Query[attachmentRow](ctx, e.client,
			`SELECT <string>id AS id FROM relates_to
			 WHERE <string>in = $from AND <string>out = $to AND rel_type = $rel`,
			map[string]any{"from": from, "to": to, "rel": spec.RelType})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("relationship %s->%s: %v", from, to, err))
			continue
		}
		if len(existing) > 0 {
			result.Skipped++
			continue
		}

		_, fromKey := recordParts("character", from)
		_, toKey := recordParts("character", to)
		err = e.client.Exec(ctx,
			`RELATE (type::record("character", $from))->relates_to->(type::record("character", $to))
			 CONTENT { rel_type: $rel, subtype: $subtype, label: $label }`,
			map[string]any{
				"from": fromKey, "to": toKey,
				"rel": spec.RelType, "subtype": spec.Subtype, "label": spec.Label,
			})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("relationship %s->%s: %v", from, to, err))
			continue
		}
		result.Created++
	}
	return result
}

func (e *Exporter) importPerceptions(ctx context.Context, doc *WorldDocument, _ ConflictMode) ImportTypeResult {
	result := ImportTypeResult{EntityType: "perception"}
	for _, spec := range doc.Perceptions {
		if spec.ObserverID == "" || spec.TargetID == "" {
			result.Errors = append(result.Errors, "perception needs observer_id and target_id")
			continue
		}
		observer := fullID("character", spec.ObserverID)
		target := fullID("character", spec.TargetID)

		fields := map[string]any{
			"rel_types":       orEmpty(spec.RelTypes),
			"perception":      spec.Perception,
			"feelings":        spec.Feelings,
			"tension_level":   spec.TensionLevel,
			"history_notes":   spec.HistoryNotes,
			"embedding_stale": true,
		}

		existing, err := db.Query[attachmentRow](ctx, e.client,
			`SELECT <string>id AS id FROM perceives
			 WHERE <string>in = $observer AND <string>out = $target`,
			map[string]any{"observer": observer, "target": target})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("perception %s->%s: %v", observer, target, err))
			continue
		}
		if len(existing) > 0 {
			err := e.client.Exec(ctx,
				`UPDATE perceives SET updated_at = time::now() WHERE <string>id = $id;
				 UPDATE perceives MERGE $data WHERE <string>id = $id`,
				map[string]any{"id": existing[0].ID, "data": fields})
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("perception %s->%s: %v", observer, target, err))
				continue
			}
			result.Updated++
			continue
		}

		_, obsKey := recordParts("character", observer)
		_, tgtKey := recordParts("character", target)
		err = e.client.Exec(ctx,
			`RELATE (type::record("character", $observer))->perceives->(type::record("character", $target))
			 CONTENT $data`,
			map[string]any{"observer": obsKey, "target": tgtKey, "data": fields})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("perception %s->%s: %v", observer, target, err))
			continue
		}
		result.Created++
	}
	return result
}

func (e *Exporter) importKnowledge(ctx context.Context, doc *WorldDocument, _ ConflictMode) ImportTypeResult {
	result := ImportTypeResult{EntityType: "knowledge"}
	for _, spec := range doc.Knowledge {
		if spec.CharacterID == "" || spec.Fact == "" {
			result.Errors = append(result.Errors, "knowledge needs character_id and fact")
			continue
		}
		character := fullID("character", spec.CharacterID)

		existing, err := db.Query[attachmentRow](ctx, e.client,
			`SELECT <string>id AS id FROM knowledge
			 WHERE <string>character = $char AND fact = $fact`,
			map[string]any{"char": character, "fact": spec.Fact})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("knowledge for %s: %v", character, err))
			continue
		}
		if len(existing) > 0 {
			result.Skipped++
			continue
		}

		_, charKey := recordParts("character", character)
		vars := map[string]any{
			"char":      charKey,
			"fact":      spec.Fact,
			"certainty": string(models.ParseCertainty(spec.Certainty)),
			"method":    string(models.ParseLearningMethod(spec.Method)),
		}
		sources := ""
		if spec.SourceCharacterID != "" {
			srcTb, srcKey := recordParts("character", spec.SourceCharacterID)
			vars["src"] = typedRecord(srcTb, srcKey)
			sources += ", source_character: $src"
		}
		if spec.EventID != "" {
			evTb, evKey := recordParts("event", spec.EventID)
			vars["event"] = typedRecord(evTb, evKey)
			sources += ", source_event: $event"
		}
		sql := fmt.Sprintf(`
			LET $c = type::record("character", $char);
			LET $k = (CREATE knowledge CONTENT { fact: $fact, character: $c%s })[0].id;
			RELATE $c->knows->$k CONTENT { certainty: $certainty, learning_method: $method%s };
		`, sources, sources)
		if err := e.client.Exec(ctx, sql, vars); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("knowledge for %s: %v", character, err))
			continue
		}
		result.Created++
	}
	return result
}

func (e *Exporter) importNotes(ctx context.Context, doc *WorldDocument, mode ConflictMode) ImportTypeResult {
	result := ImportTypeResult{EntityType: "note"}
	for _, spec := range doc.Notes {
		if spec.Title == "" {
			result.Errors = append(result.Errors, "note with empty title")
			continue
		}
		content := map[string]any{"title": spec.Title, "body": spec.Body}
		merge := map[string]any{"title": spec.Title, "body": spec.Body}
		noteKey := e.upsertOne(ctx, &result, mode, "note", spec.ID, spec.Title, content, merge)

		if noteKey != "" {
			for _, target := range spec.AttachTo {
				tb, key, err := models.SplitEntityID(target)
				if err != nil {
					result.Errors = append(result.Errors,
						fmt.Sprintf("note %q attachment %q: %v", spec.Title, target, err))
					continue
				}
				err = e.client.Exec(ctx,
					`RELATE (type::record("note", $note))->note_of->(type::record($tb, $key))`,
					map[string]any{"note": noteKey, "tb": tb, "key": key})
				if err != nil {
					result.Errors = append(result.Errors,
						fmt.Sprintf("note %q attachment %q: %v", spec.Title, target, err))
				}
			}
		}
	}
	return result
}

func (e *Exporter) importFacts(ctx context.Context, doc *WorldDocument, mode ConflictMode) ImportTypeResult {
	result := ImportTypeResult{EntityType: "fact"}
	for _, spec := range doc.Facts {
		if spec.Title == "" || spec.Description == "" {
			result.Errors = append(result.Errors,
				fmt.Sprintf("fact %q needs title and description", spec.Title))
			continue
		}
		level := string(models.ParseEnforcementLevel(spec.EnforcementLevel))
		content := map[string]any{
			"title":             spec.Title,
			"description":       spec.Description,
			"categories":        orEmpty(spec.Categories),
			"enforcement_level": level,
			"scope":             spec.Scope,
		}
		merge := map[string]any{
			"title":             spec.Title,
			"description":       spec.Description,
			"enforcement_level": level,
		}
		if spec.Categories != nil {
			merge["categories"] = spec.Categories
		}
		if spec.Scope != nil {
			merge["scope"] = *spec.Scope
		}
		factKey := e.upsertOne(ctx, &result, mode, "fact", spec.ID, spec.Title, content, merge)

		if factKey != "" {
			for _, target := range spec.AppliesTo {
				tb, key, err := models.SplitEntityID(target)
				if err != nil {
					result.Errors = append(result.Errors,
						fmt.Sprintf("fact %q link %q: %v", spec.Title, target, err))
					continue
				}
				err = e.client.Exec(ctx,
					`RELATE (type::record("fact", $fact))->applies_to->(type::record($tb, $key))`,
					map[string]any{"fact": factKey, "tb": tb, "key": key})
				if err != nil {
					result.Errors = append(result.Errors,
						fmt.Sprintf("fact %q link %q: %v", spec.Title, target, err))
				}
			}
		}
	}
	return result
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptyProfile(p map[string][]string) map[string][]string {
	if p == nil {
		return map[string][]string{}
	}
	return p
}

func typedRecord(table, key string) any {
	return surrealmodels.NewRecordID(table, key)
}

func recordList(ids []string) []any {
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		tb, key, err := models.SplitEntityID(id)
		if err != nil {
			continue
		}
		out = append(out, surrealmodels.NewRecordID(tb, key))
	}
	return out
}
