package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// RelatesTo is a character-to-character relationship edge. Stored
// directionally; analytics treat it as symmetric for reachability.
type RelatesTo struct {
	ID      surrealmodels.RecordID `json:"id"`
	In      surrealmodels.RecordID `json:"in"`
	Out     surrealmodels.RecordID `json:"out"`
	RelType string                 `json:"rel_type"`
	Subtype *string                `json:"subtype,omitempty"`
	Label   *string                `json:"label,omitempty"`

	Embedding      []float32 `json:"embedding,omitempty"`
	CompositeText  *string   `json:"composite_text,omitempty"`
	EmbeddingStale bool      `json:"embedding_stale"`

	CreatedAt time.Time `json:"created_at"`
}

// RelationshipInput is the creation payload for a relates_to edge.
type RelationshipInput struct {
	FromCharacterID string  `json:"from_character_id"`
	ToCharacterID   string  `json:"to_character_id"`
	RelType         string  `json:"rel_type"`
	Subtype         *string `json:"subtype,omitempty"`
	Label           *string `json:"label,omitempty"`
}

// HierarchicalSubtypes are relates_to subtypes that imply a strict
// hierarchy; the consistency checker rejects cycles over them.
var HierarchicalSubtypes = map[string]bool{
	"parent_of":   true,
	"mentor_of":   true,
	"superior_of": true,
	"owner_of":    true,
}

// SymmetricSubtypes are relates_to subtypes expected to hold in both
// directions; a one-sided edge is flagged by the consistency checker.
var SymmetricSubtypes = map[string]bool{
	"sibling_of": true,
	"spouse_of":  true,
	"twin_of":    true,
}
