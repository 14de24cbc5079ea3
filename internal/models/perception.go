package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Perceives is a directed edge carrying one observer's view of a target.
// At most one edge exists per (observer, target); updates rewrite it.
type Perceives struct {
	ID           surrealmodels.RecordID `json:"id"`
	In           surrealmodels.RecordID `json:"in"`  // observer
	Out          surrealmodels.RecordID `json:"out"` // target
	Perception   *string                `json:"perception,omitempty"`
	Feelings     *string                `json:"feelings,omitempty"`
	TensionLevel *int                   `json:"tension_level,omitempty"`
	HistoryNotes *string                `json:"history_notes,omitempty"`
	RelTypes     []string               `json:"rel_types"`

	Embedding      []float32 `json:"embedding,omitempty"`
	CompositeText  *string   `json:"composite_text,omitempty"`
	EmbeddingStale bool      `json:"embedding_stale"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PerceptionInput is the creation/update payload for a perceives edge.
type PerceptionInput struct {
	ObserverID   string   `json:"observer_id"`
	TargetID     string   `json:"target_id"`
	Perception   *string  `json:"perception,omitempty"`
	Feelings     *string  `json:"feelings,omitempty"`
	TensionLevel *int     `json:"tension_level,omitempty"`
	HistoryNotes *string  `json:"history_notes,omitempty"`
	RelTypes     []string `json:"rel_types,omitempty"`
}
