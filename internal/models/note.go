package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Note is freeform worldbuilding content attachable to any entity.
type Note struct {
	ID        surrealmodels.RecordID `json:"id"`
	Title     string                 `json:"title"`
	Body      string                 `json:"body"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}
