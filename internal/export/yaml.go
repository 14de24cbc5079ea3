// Package export serializes the world graph to a portable YAML document
// and renders Mermaid relationship diagrams.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/narra-go/internal/db"
	"github.com/raphaelgruber/narra-go/internal/models"
)

// FormatVersion identifies the document layout. Bump on breaking changes.
const FormatVersion = 1

// WorldDocument is the full export/import format. Every section is
// optional on import; export writes all of them.
type WorldDocument struct {
	Version    int    `yaml:"version" json:"version"`
	ExportedAt string `yaml:"exported_at,omitempty" json:"exported_at,omitempty"`

	Characters    []CharacterSpec    `yaml:"characters,omitempty" json:"characters,omitempty"`
	Locations     []LocationSpec     `yaml:"locations,omitempty" json:"locations,omitempty"`
	Events        []EventSpec        `yaml:"events,omitempty" json:"events,omitempty"`
	Scenes        []SceneSpec        `yaml:"scenes,omitempty" json:"scenes,omitempty"`
	Relationships []RelationshipSpec `yaml:"relationships,omitempty" json:"relationships,omitempty"`
	Perceptions   []PerceptionSpec   `yaml:"perceptions,omitempty" json:"perceptions,omitempty"`
	Knowledge     []KnowledgeSpec    `yaml:"knowledge,omitempty" json:"knowledge,omitempty"`
	Notes         []NoteSpec         `yaml:"notes,omitempty" json:"notes,omitempty"`
	Facts         []FactSpec         `yaml:"facts,omitempty" json:"facts,omitempty"`
}

// CharacterSpec is a character in document form.
type CharacterSpec struct {
	ID      string              `yaml:"id,omitempty" json:"id,omitempty"`
	Name    string              `yaml:"name" json:"name"`
	Aliases []string            `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Roles   []string            `yaml:"roles,omitempty" json:"roles,omitempty"`
	Profile map[string][]string `yaml:"profile,omitempty" json:"profile,omitempty"`
}

// LocationSpec is a location in document form.
type LocationSpec struct {
	ID          string  `yaml:"id,omitempty" json:"id,omitempty"`
	Name        string  `yaml:"name" json:"name"`
	Description *string `yaml:"description,omitempty" json:"description,omitempty"`
	LocType     string  `yaml:"loc_type,omitempty" json:"loc_type,omitempty"`
}

// EventSpec is a timeline event in document form.
type EventSpec struct {
	ID            string  `yaml:"id,omitempty" json:"id,omitempty"`
	Title         string  `yaml:"title" json:"title"`
	Description   *string `yaml:"description,omitempty" json:"description,omitempty"`
	Sequence      int64   `yaml:"sequence" json:"sequence"`
	Date          *string `yaml:"date,omitempty" json:"date,omitempty"`
	DatePrecision *string `yaml:"date_precision,omitempty" json:"date_precision,omitempty"`
}

// ParticipantSpec links a character into a scene.
type ParticipantSpec struct {
	CharacterID string  `yaml:"character_id" json:"character_id"`
	Role        *string `yaml:"role,omitempty" json:"role,omitempty"`
	Notes       *string `yaml:"notes,omitempty" json:"notes,omitempty"`
}

// SceneSpec is a scene in document form, participants inlined.
type SceneSpec struct {
	ID                 string            `yaml:"id,omitempty" json:"id,omitempty"`
	Title              string            `yaml:"title" json:"title"`
	Summary            *string           `yaml:"summary,omitempty" json:"summary,omitempty"`
	EventID            string            `yaml:"event_id" json:"event_id"`
	LocationID         string            `yaml:"location_id" json:"location_id"`
	SecondaryLocations []string          `yaml:"secondary_locations,omitempty" json:"secondary_locations,omitempty"`
	Participants       []ParticipantSpec `yaml:"participants,omitempty" json:"participants,omitempty"`
}

// RelationshipSpec is a relates_to edge in document form.
type RelationshipSpec struct {
	FromCharacterID string  `yaml:"from_character_id" json:"from_character_id"`
	ToCharacterID   string  `yaml:"to_character_id" json:"to_character_id"`
	RelType         string  `yaml:"rel_type" json:"rel_type"`
	Subtype         *string `yaml:"subtype,omitempty" json:"subtype,omitempty"`
	Label           *string `yaml:"label,omitempty" json:"label,omitempty"`
}

// PerceptionSpec is a directed perceives edge in document form.
type PerceptionSpec struct {
	ObserverID   string   `yaml:"observer_id" json:"observer_id"`
	TargetID     string   `yaml:"target_id" json:"target_id"`
	RelTypes     []string `yaml:"rel_types,omitempty" json:"rel_types,omitempty"`
	Perception   *string  `yaml:"perception,omitempty" json:"perception,omitempty"`
	Feelings     *string  `yaml:"feelings,omitempty" json:"feelings,omitempty"`
	TensionLevel *int     `yaml:"tension_level,omitempty" json:"tension_level,omitempty"`
	HistoryNotes *string  `yaml:"history_notes,omitempty" json:"history_notes,omitempty"`
}

// KnowledgeSpec is a current knowledge state in document form.
type KnowledgeSpec struct {
	CharacterID       string `yaml:"character_id" json:"character_id"`
	Fact              string `yaml:"fact" json:"fact"`
	Certainty         string `yaml:"certainty,omitempty" json:"certainty,omitempty"`
	Method            string `yaml:"method,omitempty" json:"method,omitempty"`
	SourceCharacterID string `yaml:"source_character_id,omitempty" json:"source_character_id,omitempty"`
	EventID           string `yaml:"event_id,omitempty" json:"event_id,omitempty"`
}

// NoteSpec is a note plus the entities it attaches to.
type NoteSpec struct {
	ID       string   `yaml:"id,omitempty" json:"id,omitempty"`
	Title    string   `yaml:"title" json:"title"`
	Body     string   `yaml:"body" json:"body"`
	AttachTo []string `yaml:"attach_to,omitempty" json:"attach_to,omitempty"`
}

// FactSpec is a universe fact plus the entities it applies to.
type FactSpec struct {
	ID               string   `yaml:"id,omitempty" json:"id,omitempty"`
	Title            string   `yaml:"title" json:"title"`
	Description      string   `yaml:"description" json:"description"`
	Categories       []string `yaml:"categories,omitempty" json:"categories,omitempty"`
	EnforcementLevel string   `yaml:"enforcement_level,omitempty" json:"enforcement_level,omitempty"`
	Scope            *string  `yaml:"scope,omitempty" json:"scope,omitempty"`
	AppliesTo        []string `yaml:"applies_to,omitempty" json:"applies_to,omitempty"`
}

// Exporter reads the world graph and assembles documents and diagrams.
type Exporter struct {
	client *db.Client
}

// NewExporter creates an exporter over the given connection.
func NewExporter(client *db.Client) *Exporter {
	return &Exporter{client: client}
}

// Export assembles the complete world document.
func (e *Exporter) Export(ctx context.Context) (*WorldDocument, error) {
	doc := &WorldDocument{
		Version:    FormatVersion,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
	}

	var err error
	if doc.Characters, err = e.exportCharacters(ctx); err != nil {
		return nil, err
	}
	if doc.Locations, err = e.exportLocations(ctx); err != nil {
		return nil, err
	}
	if doc.Events, err = e.exportEvents(ctx); err != nil {
		return nil, err
	}
	if doc.Scenes, err = e.exportScenes(ctx); err != nil {
		return nil, err
	}
	if doc.Relationships, err = e.exportRelationships(ctx); err != nil {
		return nil, err
	}
	if doc.Perceptions, err = e.exportPerceptions(ctx); err != nil {
		return nil, err
	}
	if doc.Knowledge, err = e.exportKnowledge(ctx); err != nil {
		return nil, err
	}
	if doc.Notes, err = e.exportNotes(ctx); err != nil {
		return nil, err
	}
	if doc.Facts, err = e.exportFacts(ctx); err != nil {
		return nil, err
	}
	return doc, nil
}

// ExportYAML renders the world document as YAML.
func (e *Exporter) ExportYAML(ctx context.Context) ([]byte, error) {
	doc, err := e.Export(ctx)
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}

// WriteFile exports the world to a YAML file, creating parent
// directories as needed. Returns the document that was written.
func (e *Exporter) WriteFile(ctx context.Context, path string) (*WorldDocument, error) {
	doc, err := e.Export(ctx)
	if err != nil {
		return nil, err
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create export directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, err
	}
	return doc, nil
}

func recordKey(id surrealmodels.RecordID) string {
	return fmt.Sprintf("%v", id.ID)
}

func (e *Exporter) exportCharacters(ctx context.Context) ([]CharacterSpec, error) {
	characters, err := db.Query[models.Character](ctx, e.client, "SELECT * FROM character ORDER BY name ASC", nil)
	if err != nil {
		return nil, err
	}
	specs := make([]CharacterSpec, 0, len(characters))
	for _, c := range characters {
		profile := c.Profile
		if len(profile) == 0 {
			profile = nil
		}
		specs = append(specs, CharacterSpec{
			ID:      recordKey(c.ID),
			Name:    c.Name,
			Aliases: c.Aliases,
			Roles:   c.Roles,
			Profile: profile,
		})
	}
	return specs, nil
}

func (e *Exporter) exportLocations(ctx context.Context) ([]LocationSpec, error) {
	locations, err := db.Query[models.Location](ctx, e.client, "SELECT * FROM location ORDER BY name ASC", nil)
	if err != nil {
		return nil, err
	}
	specs := make([]LocationSpec, 0, len(locations))
	for _, l := range locations {
		specs = append(specs, LocationSpec{
			ID:          recordKey(l.ID),
			Name:        l.Name,
			Description: l.Description,
			LocType:     l.LocType,
		})
	}
	return specs, nil
}

func (e *Exporter) exportEvents(ctx context.Context) ([]EventSpec, error) {
	events, err := db.Query[models.Event](ctx, e.client, "SELECT * FROM event ORDER BY sequence ASC", nil)
	if err != nil {
		return nil, err
	}
	specs := make([]EventSpec, 0, len(events))
	for _, ev := range events {
		specs = append(specs, EventSpec{
			ID:            recordKey(ev.ID),
			Title:         ev.Title,
			Description:   ev.Description,
			Sequence:      ev.Sequence,
			Date:          ev.Date,
			DatePrecision: ev.DatePrecision,
		})
	}
	return specs, nil
}

type participantRow struct {
	ID    string  `json:"id"`
	Role  *string `json:"role,omitempty"`
	Notes *string `json:"notes,omitempty"`
}

func (e *Exporter) exportScenes(ctx context.Context) ([]SceneSpec, error) {
	scenes, err := db.Query[models.Scene](ctx, e.client, "SELECT * FROM scene ORDER BY created_at ASC", nil)
	if err != nil {
		return nil, err
	}
	specs := make([]SceneSpec, 0, len(scenes))
	for _, sc := range scenes {
		sceneID := models.RecordIDString(sc.ID)
		rows, err := db.Query[participantRow](ctx, e.client,
			`SELECT <string>in AS id, role, notes FROM participates_in WHERE <string>out = $scene`,
			map[string]any{"scene": sceneID})
		if err != nil {
			return nil, err
		}
		participants := make([]ParticipantSpec, 0, len(rows))
		for _, row := range rows {
			participants = append(participants, ParticipantSpec{
				CharacterID: row.ID,
				Role:        row.Role,
				Notes:       row.Notes,
			})
		}

		secondary := make([]string, 0, len(sc.SecondaryLocations))
		for _, loc := range sc.SecondaryLocations {
			secondary = append(secondary, models.RecordIDString(loc))
		}
		specs = append(specs, SceneSpec{
			ID:                 recordKey(sc.ID),
			Title:              sc.Title,
			Summary:            sc.Summary,
			EventID:            models.RecordIDString(sc.Event),
			LocationID:         models.RecordIDString(sc.Location),
			SecondaryLocations: secondary,
			Participants:       participants,
		})
	}
	return specs, nil
}

func (e *Exporter) exportRelationships(ctx context.Context) ([]RelationshipSpec, error) {
	edges, err := db.Query[models.RelatesTo](ctx, e.client, "SELECT * FROM relates_to", nil)
	if err != nil {
		return nil, err
	}
	specs := make([]RelationshipSpec, 0, len(edges))
	for _, edge := range edges {
		specs = append(specs, RelationshipSpec{
			FromCharacterID: models.RecordIDString(edge.In),
			ToCharacterID:   models.RecordIDString(edge.Out),
			RelType:         edge.RelType,
			Subtype:         edge.Subtype,
			Label:           edge.Label,
		})
	}
	return specs, nil
}

func (e *Exporter) exportPerceptions(ctx context.Context) ([]PerceptionSpec, error) {
	edges, err := db.Query[models.Perceives](ctx, e.client, "SELECT * FROM perceives", nil)
	if err != nil {
		return nil, err
	}
	specs := make([]PerceptionSpec, 0, len(edges))
	for _, edge := range edges {
		specs = append(specs, PerceptionSpec{
			ObserverID:   models.RecordIDString(edge.In),
			TargetID:     models.RecordIDString(edge.Out),
			RelTypes:     edge.RelTypes,
			Perception:   edge.Perception,
			Feelings:     edge.Feelings,
			TensionLevel: edge.TensionLevel,
			HistoryNotes: edge.HistoryNotes,
		})
	}
	return specs, nil
}

type knowledgeExportRow struct {
	In              surrealmodels.RecordID  `json:"in"`
	FactText        *string                 `json:"fact_text,omitempty"`
	Certainty       string                  `json:"certainty"`
	LearningMethod  string                  `json:"learning_method"`
	SourceCharacter *surrealmodels.RecordID `json:"source_character,omitempty"`
	SourceEvent     *surrealmodels.RecordID `json:"source_event,omitempty"`
}

func (e *Exporter) exportKnowledge(ctx context.Context) ([]KnowledgeSpec, error) {
	rows, err := db.Query[knowledgeExportRow](ctx, e.client,
		`SELECT *, out.fact AS fact_text FROM knows
		 WHERE out.fact IS NOT NONE AND superseded = false`, nil)
	if err != nil {
		return nil, err
	}
	specs := make([]KnowledgeSpec, 0, len(rows))
	for _, row := range rows {
		spec := KnowledgeSpec{
			CharacterID: models.RecordIDString(row.In),
			Certainty:   row.Certainty,
			Method:      row.LearningMethod,
		}
		if row.FactText != nil {
			spec.Fact = *row.FactText
		}
		if row.SourceCharacter != nil {
			spec.SourceCharacterID = models.RecordIDString(*row.SourceCharacter)
		}
		if row.SourceEvent != nil {
			spec.EventID = models.RecordIDString(*row.SourceEvent)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

type attachmentRow struct {
	ID string `json:"id"`
}

func (e *Exporter) exportNotes(ctx context.Context) ([]NoteSpec, error) {
	notes, err := db.Query[models.Note](ctx, e.client, "SELECT * FROM note ORDER BY created_at ASC", nil)
	if err != nil {
		return nil, err
	}
	specs := make([]NoteSpec, 0, len(notes))
	for _, note := range notes {
		rows, err := db.Query[attachmentRow](ctx, e.client,
			`SELECT <string>out AS id FROM note_of WHERE <string>in = $note`,
			map[string]any{"note": models.RecordIDString(note.ID)})
		if err != nil {
			return nil, err
		}
		attachTo := make([]string, 0, len(rows))
		for _, row := range rows {
			attachTo = append(attachTo, row.ID)
		}
		specs = append(specs, NoteSpec{
			ID:       recordKey(note.ID),
			Title:    note.Title,
			Body:     note.Body,
			AttachTo: attachTo,
		})
	}
	return specs, nil
}

func (e *Exporter) exportFacts(ctx context.Context) ([]FactSpec, error) {
	facts, err := db.Query[models.UniverseFact](ctx, e.client, "SELECT * FROM fact ORDER BY created_at ASC", nil)
	if err != nil {
		return nil, err
	}
	specs := make([]FactSpec, 0, len(facts))
	for _, fact := range facts {
		rows, err := db.Query[attachmentRow](ctx, e.client,
			`SELECT <string>out AS id FROM applies_to WHERE <string>in = $fact`,
			map[string]any{"fact": models.RecordIDString(fact.ID)})
		if err != nil {
			return nil, err
		}
		appliesTo := make([]string, 0, len(rows))
		for _, row := range rows {
			appliesTo = append(appliesTo, row.ID)
		}
		specs = append(specs, FactSpec{
			ID:               recordKey(fact.ID),
			Title:            fact.Title,
			Description:      fact.Description,
			Categories:       fact.Categories,
			EnforcementLevel: string(fact.EnforcementLevel),
			Scope:            fact.Scope,
			AppliesTo:        appliesTo,
		})
	}
	return specs, nil
}
