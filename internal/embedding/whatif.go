package embedding

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/raphaelgruber/narra-go/internal/db"
	"github.com/raphaelgruber/narra-go/internal/models"
	"github.com/raphaelgruber/narra-go/internal/vectormath"
)

// conflictSimilarity is the cosine threshold above which an existing
// knowledge entry counts as a potential conflict with the hypothetical fact.
const conflictSimilarity = 0.7

// WhatIfConflict is an existing knowledge entry close enough to the
// hypothetical fact to contradict or duplicate it.
type WhatIfConflict struct {
	KnowledgeID string  `json:"knowledge_id"`
	Fact        string  `json:"fact"`
	Similarity  float64 `json:"similarity"`
}

// WhatIfReport describes the embedding-space impact of a character
// hypothetically learning a fact.
type WhatIfReport struct {
	CharacterID    string           `json:"character_id"`
	CharacterName  string           `json:"character_name"`
	Fact           string           `json:"fact"`
	Certainty      models.Certainty `json:"certainty"`
	Delta          float64          `json:"delta"`
	ImpactLabel    string           `json:"impact_label"`
	AlreadyKnown   bool             `json:"already_known"`
	CurrentState   string           `json:"current_state,omitempty"`
	Conflicts      []WhatIfConflict `json:"conflicts,omitempty"`
	StaleObservers []string         `json:"stale_observers,omitempty"`
}

// whatIfImpactLabel buckets the hypothetical embedding delta.
func whatIfImpactLabel(delta float64) string {
	switch {
	case delta < 0.02:
		return "negligible"
	case delta < 0.05:
		return "minor"
	case delta < 0.10:
		return "moderate"
	case delta < 0.20:
		return "major"
	default:
		return "transformative"
	}
}

// WhatIf simulates a character learning a knowledge fact: it rebuilds the
// character composite with the fact appended, embeds it, and reports the
// drift against the current embedding, plus likely knowledge conflicts and
// the observer perspectives the change would invalidate. Nothing is written.
func (s *Service) WhatIf(ctx context.Context, characterID, knowledgeID, certainty string) (*WhatIfReport, error) {
	if !s.Available(ctx) {
		return nil, db.Validationf("what-if unavailable: embedding model not loaded, run backfill first")
	}
	charRef := qualify(characterID, "character")
	factRef := qualify(knowledgeID, "knowledge")
	charRID, err := models.RecordID(charRef)
	if err != nil {
		return nil, db.Validationf("bad character id %q: %v", characterID, err)
	}
	factRID, err := models.RecordID(factRef)
	if err != nil {
		return nil, db.Validationf("bad knowledge id %q: %v", knowledgeID, err)
	}

	character, err := db.QueryOne[models.Character](ctx, s.client,
		`SELECT * FROM $ref`, map[string]any{"ref": charRID})
	if err != nil {
		return nil, err
	}
	if character == nil {
		return nil, &db.NotFoundError{EntityType: "character", ID: charRef}
	}
	if len(character.Embedding) == 0 {
		return nil, db.Validationf("character %s has no embedding, run backfill first", charRef)
	}

	type factRow struct {
		Fact string `json:"fact"`
	}
	fact, err := db.QueryOne[factRow](ctx, s.client,
		`SELECT fact FROM $ref`, map[string]any{"ref": factRID})
	if err != nil {
		return nil, err
	}
	if fact == nil {
		return nil, &db.NotFoundError{EntityType: "knowledge", ID: factRef}
	}

	report := &WhatIfReport{
		CharacterID:   charRef,
		CharacterName: character.Name,
		Fact:          fact.Fact,
		Certainty:     models.ParseCertainty(certainty),
	}

	type stateRow struct {
		Certainty string `json:"certainty"`
	}
	state, err := db.QueryOne[stateRow](ctx, s.client, `
		SELECT certainty FROM knows
		WHERE <string>in = $char AND <string>out = $fact AND superseded = false
		LIMIT 1
	`, map[string]any{"char": charRef, "fact": factRef})
	if err != nil {
		return nil, err
	}
	if state != nil {
		report.AlreadyKnown = true
		report.CurrentState = state.Certainty
	}

	current, err := s.buildComposite(ctx, "character", charRef)
	if err != nil {
		return nil, err
	}
	hypothetical := fmt.Sprintf("%s. Additionally, %s",
		strings.TrimRight(current, "."),
		KnowledgeComposite(fact.Fact, character.Name, report.Certainty, models.MethodTold))

	hypotheticalVec, err := s.embedder.Embed(ctx, hypothetical)
	if err != nil {
		return nil, fmt.Errorf("embed hypothetical composite: %w", err)
	}
	report.Delta = vectormath.CosineDistance(character.Embedding, hypotheticalVec)
	report.ImpactLabel = whatIfImpactLabel(report.Delta)

	factVec, err := s.embedder.Embed(ctx, fact.Fact)
	if err != nil {
		return nil, fmt.Errorf("embed fact text: %w", err)
	}
	type knowledgeRow struct {
		ID        string    `json:"id"`
		Fact      string    `json:"fact"`
		Embedding []float32 `json:"embedding"`
	}
	existing, err := db.Query[knowledgeRow](ctx, s.client, `
		SELECT <string>id AS id, fact, embedding FROM knowledge
		WHERE <string>character = $char AND embedding IS NOT NONE
	`, map[string]any{"char": charRef})
	if err != nil {
		return nil, err
	}
	for _, k := range existing {
		if k.ID == factRef {
			continue
		}
		sim := vectormath.CosineSimilarity(factVec, k.Embedding)
		if sim > conflictSimilarity {
			report.Conflicts = append(report.Conflicts, WhatIfConflict{
				KnowledgeID: k.ID,
				Fact:        k.Fact,
				Similarity:  sim,
			})
		}
	}
	sort.Slice(report.Conflicts, func(i, j int) bool {
		return report.Conflicts[i].Similarity > report.Conflicts[j].Similarity
	})

	type observerRow struct {
		Name string `json:"name"`
	}
	observers, err := db.Query[observerRow](ctx, s.client, `
		SELECT in.name AS name FROM perceives
		WHERE <string>out = $char AND embedding IS NOT NONE
	`, map[string]any{"char": charRef})
	if err != nil {
		return nil, err
	}
	for _, o := range observers {
		report.StaleObservers = append(report.StaleObservers, o.Name)
	}
	return report, nil
}
