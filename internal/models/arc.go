package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// ArcSnapshot is an append-only capture of an entity's embedding at a
// point in time. DeltaMagnitude is 1 - cosine(previous, this); nil marks
// the baseline snapshot.
type ArcSnapshot struct {
	ID             surrealmodels.RecordID `json:"id"`
	EntityID       string                 `json:"entity_id"`
	EntityType     string                 `json:"entity_type"`
	Embedding      []float32              `json:"embedding"`
	DeltaMagnitude *float64               `json:"delta_magnitude,omitempty"`
	EventID        *string                `json:"event_id,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}
