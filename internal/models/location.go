package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Location is a named place in the world.
type Location struct {
	ID          surrealmodels.RecordID `json:"id"`
	Name        string                 `json:"name"`
	Description *string                `json:"description,omitempty"`
	LocType     string                 `json:"loc_type"`

	Embedding      []float32 `json:"embedding,omitempty"`
	CompositeText  *string   `json:"composite_text,omitempty"`
	EmbeddingStale bool      `json:"embedding_stale"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LocationInput is the creation payload for a location.
type LocationInput struct {
	ID          string  `json:"id,omitempty"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	LocType     string  `json:"loc_type,omitempty"`
}
