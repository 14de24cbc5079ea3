package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// ParticipatesIn links a character to a scene.
type ParticipatesIn struct {
	ID        surrealmodels.RecordID `json:"id"`
	In        surrealmodels.RecordID `json:"in"`
	Out       surrealmodels.RecordID `json:"out"`
	Role      *string                `json:"role,omitempty"`
	Notes     *string                `json:"notes,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// InvolvedIn links a character to an event.
type InvolvedIn struct {
	ID        surrealmodels.RecordID `json:"id"`
	In        surrealmodels.RecordID `json:"in"`
	Out       surrealmodels.RecordID `json:"out"`
	Role      *string                `json:"role,omitempty"`
	Impact    *string                `json:"impact,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}
