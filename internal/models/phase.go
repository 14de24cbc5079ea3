package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// SavedPhase is a persisted narrative phase from a detection run.
type SavedPhase struct {
	ID               surrealmodels.RecordID `json:"id"`
	ClusterID        int                    `json:"cluster_id"`
	Label            string                 `json:"label"`
	Members          []string               `json:"members"`
	EntityTypeCounts map[string]int         `json:"entity_type_counts"`
	SequenceRange    []int64                `json:"sequence_range,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
}
