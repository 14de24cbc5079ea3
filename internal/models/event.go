package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Event is a point on the story timeline, ordered by sequence.
type Event struct {
	ID            surrealmodels.RecordID `json:"id"`
	Title         string                 `json:"title"`
	Description   *string                `json:"description,omitempty"`
	Sequence      int64                  `json:"sequence"`
	Date          *string                `json:"date,omitempty"`
	DatePrecision *string                `json:"date_precision,omitempty"`

	Embedding      []float32 `json:"embedding,omitempty"`
	CompositeText  *string   `json:"composite_text,omitempty"`
	EmbeddingStale bool      `json:"embedding_stale"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EventInput is the creation payload for an event.
type EventInput struct {
	ID            string  `json:"id,omitempty"`
	Title         string  `json:"title"`
	Description   *string `json:"description,omitempty"`
	Sequence      int64   `json:"sequence"`
	Date          *string `json:"date,omitempty"`
	DatePrecision *string `json:"date_precision,omitempty"`
}
