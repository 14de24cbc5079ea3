package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Facet names a character embedding facet.
type Facet string

const (
	FacetIdentity   Facet = "identity"
	FacetPsychology Facet = "psychology"
	FacetSocial     Facet = "social"
	FacetNarrative  Facet = "narrative"
)

// Facets lists all character facets in canonical order.
var Facets = []Facet{FacetIdentity, FacetPsychology, FacetSocial, FacetNarrative}

// ParseFacet maps a lowercase facet name, reporting false for unknown input.
func ParseFacet(s string) (Facet, bool) {
	switch Facet(s) {
	case FacetIdentity, FacetPsychology, FacetSocial, FacetNarrative:
		return Facet(s), true
	}
	return "", false
}

// EmbeddingColumn returns the character column holding this facet's vector.
func (f Facet) EmbeddingColumn() string { return string(f) + "_embedding" }

// StaleColumn returns the character column holding this facet's stale flag.
func (f Facet) StaleColumn() string { return string(f) + "_stale" }

// Character is a story character with an open profile and four facet
// embeddings alongside the primary composite embedding.
type Character struct {
	ID      surrealmodels.RecordID `json:"id"`
	Name    string                 `json:"name"`
	Aliases []string               `json:"aliases"`
	Roles   []string               `json:"roles"`
	// Profile maps section name (wound, desire, secret, appearance, ...) to
	// ordered bullet lines. Consumers iterate keys in sorted order.
	Profile map[string][]string `json:"profile"`

	Embedding      []float32 `json:"embedding,omitempty"`
	CompositeText  *string   `json:"composite_text,omitempty"`
	EmbeddingStale bool      `json:"embedding_stale"`

	IdentityEmbedding   []float32 `json:"identity_embedding,omitempty"`
	IdentityComposite   *string   `json:"identity_composite,omitempty"`
	IdentityStale       bool      `json:"identity_stale"`
	PsychologyEmbedding []float32 `json:"psychology_embedding,omitempty"`
	PsychologyComposite *string   `json:"psychology_composite,omitempty"`
	PsychologyStale     bool      `json:"psychology_stale"`
	SocialEmbedding     []float32 `json:"social_embedding,omitempty"`
	SocialComposite     *string   `json:"social_composite,omitempty"`
	SocialStale         bool      `json:"social_stale"`
	NarrativeEmbedding  []float32 `json:"narrative_embedding,omitempty"`
	NarrativeComposite  *string   `json:"narrative_composite,omitempty"`
	NarrativeStale      bool      `json:"narrative_stale"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FacetEmbedding returns the stored vector for a facet, nil when missing.
func (c *Character) FacetEmbedding(f Facet) []float32 {
	switch f {
	case FacetIdentity:
		return c.IdentityEmbedding
	case FacetPsychology:
		return c.PsychologyEmbedding
	case FacetSocial:
		return c.SocialEmbedding
	case FacetNarrative:
		return c.NarrativeEmbedding
	}
	return nil
}

// CharacterInput is the creation payload for a character.
type CharacterInput struct {
	ID      string              `json:"id,omitempty"`
	Name    string              `json:"name"`
	Aliases []string            `json:"aliases,omitempty"`
	Roles   []string            `json:"roles,omitempty"`
	Profile map[string][]string `json:"profile,omitempty"`
}
