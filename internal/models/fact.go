package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// EnforcementLevel controls how strictly a universe fact gates mutations.
type EnforcementLevel string

const (
	EnforcementInformational EnforcementLevel = "informational"
	EnforcementWarning       EnforcementLevel = "warning"
	EnforcementStrict        EnforcementLevel = "strict"
)

// ParseEnforcementLevel normalizes a level string, defaulting to informational.
func ParseEnforcementLevel(s string) EnforcementLevel {
	switch EnforcementLevel(s) {
	case EnforcementWarning, EnforcementStrict:
		return EnforcementLevel(s)
	}
	return EnforcementInformational
}

// Well-known fact categories. Anything else is treated as a custom category.
const (
	CategoryPhysicsMagic   = "physics_magic"
	CategorySocialCultural = "social_cultural"
	CategoryTechnology     = "technology"
)

// UniverseFact is a world rule or constraint, optionally linked to
// entities via applies_to edges.
type UniverseFact struct {
	ID               surrealmodels.RecordID `json:"id"`
	Title            string                 `json:"title"`
	Description      string                 `json:"description"`
	Categories       []string               `json:"categories"`
	EnforcementLevel EnforcementLevel       `json:"enforcement_level"`
	Scope            *string                `json:"scope,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// FactInput is the creation/update payload for a universe fact.
type FactInput struct {
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Categories       []string `json:"categories,omitempty"`
	EnforcementLevel string   `json:"enforcement_level,omitempty"`
	Scope            *string  `json:"scope,omitempty"`
}
