package analytics

import (
	"context"
	"sort"
	"strings"

	"github.com/raphaelgruber/narra-go/internal/db"
	"github.com/raphaelgruber/narra-go/internal/models"
	"github.com/raphaelgruber/narra-go/internal/vectormath"
)

// SemanticJoin ranks entities across all embeddable tables against one
// query in a single fused ordering. Unlike SemanticSearch it oversamples
// each table before fusing, so a strong match in a small table is not
// crowded out by a large one.
func (s *SearchService) SemanticJoin(ctx context.Context, query string, filter SearchFilter) ([]SearchResult, error) {
	vector, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	limit := filter.EffectiveLimit(defaultSearchLimit)

	oversampled := filter
	oversampled.Limit = min(limit*2, MaxLimit)
	results, err := s.semanticSearchVector(ctx, vector, oversampled)
	if err != nil {
		return nil, err
	}
	return truncate(results, limit), nil
}

// KnowledgeMatch is one semantically similar knowledge entry, with its
// owning character when resolvable.
type KnowledgeMatch struct {
	ID            string  `json:"id"`
	Fact          string  `json:"fact"`
	CharacterName string  `json:"character_name,omitempty"`
	Score         float64 `json:"score"`
}

// SemanticKnowledge searches knowledge entries by meaning, optionally
// restricted to one character's knowledge.
func (s *SearchService) SemanticKnowledge(ctx context.Context, query, characterID string, limit int) ([]KnowledgeMatch, error) {
	vector, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	sql := `
		SELECT <string>id AS id, fact, character.name AS character_name,
			vector::similarity::cosine(embedding, $vec) AS score
		FROM knowledge WHERE embedding IS NOT NONE
	`
	vars := map[string]any{"vec": vector, "limit": limit}
	if characterID != "" {
		sql += ` AND character = type::record("character", $char)`
		vars["char"] = strings.TrimPrefix(characterID, "character:")
	}
	sql += ` ORDER BY score DESC LIMIT $limit`

	type row struct {
		ID            string  `json:"id"`
		Fact          string  `json:"fact"`
		CharacterName *string `json:"character_name"`
		Score         float64 `json:"score"`
	}
	rows, err := db.Query[row](ctx, s.client, sql, vars)
	if err != nil {
		return nil, err
	}
	out := make([]KnowledgeMatch, 0, len(rows))
	for _, r := range rows {
		m := KnowledgeMatch{ID: r.ID, Fact: r.Fact, Score: r.Score}
		if r.CharacterName != nil {
			m.CharacterName = *r.CharacterName
		}
		out = append(out, m)
	}
	return out, nil
}

// RankByQuery scores an explicit candidate id set against a query and
// returns the best matches. This is the ranking phase of semantic graph
// search: the caller supplies the ids a graph traversal reached.
func (s *SearchService) RankByQuery(ctx context.Context, query string, candidateIDs []string, typeFilter []models.EntityType, limit int) ([]SearchResult, error) {
	vector, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	allowed := map[models.EntityType]bool{}
	for _, t := range typeFilter {
		allowed[t] = true
	}

	byTable := map[models.EntityType][]any{}
	for _, id := range candidateIDs {
		table, _, err := models.SplitEntityID(id)
		if err != nil {
			continue
		}
		entityType, ok := models.ParseEntityType(table)
		if !ok || !entityType.IsEmbeddable() {
			continue
		}
		if len(allowed) > 0 && !allowed[entityType] {
			continue
		}
		rid, err := models.RecordID(id)
		if err != nil {
			continue
		}
		byTable[entityType] = append(byTable[entityType], rid)
	}

	type row struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		Embedding []float32 `json:"embedding"`
	}
	var results []SearchResult
	for entityType, ids := range byTable {
		rows, err := db.Query[row](ctx, s.client, `
			SELECT <string>id AS id, `+displayField(entityType)+` AS name, embedding
			FROM type::table($table) WHERE id IN $ids AND embedding IS NOT NONE
		`, map[string]any{"table": string(entityType), "ids": ids})
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			results = append(results, SearchResult{
				ID:         r.ID,
				EntityType: string(entityType),
				Name:       r.Name,
				Score:      vectormath.CosineSimilarity(r.Embedding, vector),
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	return truncate(results, limit), nil
}
