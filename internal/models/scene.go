package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Scene is a unit of narrative anchored to an event and a primary location.
type Scene struct {
	ID                 surrealmodels.RecordID   `json:"id"`
	Title              string                   `json:"title"`
	Summary            *string                  `json:"summary,omitempty"`
	Event              surrealmodels.RecordID   `json:"event"`
	Location           surrealmodels.RecordID   `json:"location"`
	SecondaryLocations []surrealmodels.RecordID `json:"secondary_locations,omitempty"`

	Embedding      []float32 `json:"embedding,omitempty"`
	CompositeText  *string   `json:"composite_text,omitempty"`
	EmbeddingStale bool      `json:"embedding_stale"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SceneInput is the creation payload for a scene.
type SceneInput struct {
	ID                 string   `json:"id,omitempty"`
	Title              string   `json:"title"`
	Summary            *string  `json:"summary,omitempty"`
	EventID            string   `json:"event_id"`
	LocationID         string   `json:"location_id"`
	SecondaryLocations []string `json:"secondary_locations,omitempty"`
}
