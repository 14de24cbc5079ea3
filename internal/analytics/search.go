package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/raphaelgruber/narra-go/internal/db"
	"github.com/raphaelgruber/narra-go/internal/embedding"
	"github.com/raphaelgruber/narra-go/internal/models"
)

// rrfK is the Reciprocal Rank Fusion constant for hybrid search.
const rrfK = 60

// defaultSearchLimit is used when the filter does not specify one.
const defaultSearchLimit = 10

// SearchResult is one scored hit from any search operation.
type SearchResult struct {
	ID         string  `json:"id"`
	EntityType string  `json:"entity_type"`
	Name       string  `json:"name"`
	Score      float64 `json:"score"`
}

// SearchService runs text, fuzzy, semantic, hybrid, faceted, and reranked
// searches across the embeddable tables.
type SearchService struct {
	client   *db.Client
	embedder embedding.Embedder
	reranker *embedding.CrossEncoderReranker
}

// NewSearchService creates the search service. Both embedder and reranker
// may be nil; the affected operations degrade or fail with clear errors.
func NewSearchService(client *db.Client, embedder embedding.Embedder, reranker *embedding.CrossEncoderReranker) *SearchService {
	return &SearchService{client: client, embedder: embedder, reranker: reranker}
}

type searchRow struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// textSearchFields maps a table to its full-text match clauses. Reference
// numbers pair each field with its score term.
func textSearchClause(t models.EntityType) (where, score string) {
	switch t {
	case models.TypeCharacter, models.TypeLocation:
		return "name @0@ $q OR composite_text @1@ $q",
			"(search::score(0) ?? 0) + (search::score(1) ?? 0)"
	case models.TypeEvent, models.TypeScene:
		return "title @0@ $q OR composite_text @1@ $q",
			"(search::score(0) ?? 0) + (search::score(1) ?? 0)"
	case models.TypeKnowledge:
		return "fact @0@ $q", "search::score(0) ?? 0"
	case models.TypeFact:
		return "title @0@ $q OR description @1@ $q",
			"(search::score(0) ?? 0) + (search::score(1) ?? 0)"
	case models.TypeNote:
		return "title @0@ $q OR body @1@ $q",
			"(search::score(0) ?? 0) + (search::score(1) ?? 0)"
	}
	return "", ""
}

// Search runs BM25 full-text matching over the candidate tables.
func (s *SearchService) Search(ctx context.Context, query string, filter SearchFilter) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, db.Validationf("search query is empty")
	}
	limit := filter.EffectiveLimit(defaultSearchLimit)

	var results []SearchResult
	for _, table := range filter.tables(false) {
		where, score := textSearchClause(table)
		if where == "" {
			continue
		}
		vars := map[string]any{"q": query, "limit": limit}
		predicates := filter.predicateSQL(vars)
		rows, err := db.Query[searchRow](ctx, s.client, fmt.Sprintf(`
			SELECT <string>id AS id, %s AS name, %s AS score
			FROM %s WHERE (%s)%s
			ORDER BY score DESC LIMIT $limit
		`, displayField(table), score, table, where, predicates), vars)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if row.Score < filter.MinScore {
				continue
			}
			results = append(results, SearchResult{
				ID: row.ID, EntityType: string(table), Name: row.Name, Score: row.Score,
			})
		}
	}

	sortResults(results)
	return truncate(results, limit), nil
}

// FuzzySearch approximates string matching with Jaro-Winkler similarity
// over display names, for queries that full-text misses (typos, partial
// names).
func (s *SearchService) FuzzySearch(ctx context.Context, query string, minSimilarity float64, filter SearchFilter) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, db.Validationf("search query is empty")
	}
	if minSimilarity <= 0 {
		minSimilarity = 0.7
	}
	limit := filter.EffectiveLimit(defaultSearchLimit)
	needle := strings.ToLower(query)

	var results []SearchResult
	for _, table := range filter.tables(false) {
		vars := map[string]any{}
		predicates := filter.predicateSQL(vars)
		where := ""
		if predicates != "" {
			where = " WHERE " + strings.TrimPrefix(predicates, " AND ")
		}
		rows, err := db.Query[searchRow](ctx, s.client, fmt.Sprintf(`
			SELECT <string>id AS id, %s AS name, 0 AS score FROM %s%s
		`, displayField(table), table, where), vars)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			similarity := bestFuzzyScore(needle, row.Name)
			if similarity < minSimilarity {
				continue
			}
			results = append(results, SearchResult{
				ID: row.ID, EntityType: string(table), Name: row.Name, Score: similarity,
			})
		}
	}

	sortResults(results)
	return truncate(results, limit), nil
}

// bestFuzzyScore compares the needle against the candidate and each of its
// words, keeping the best Jaro-Winkler similarity.
func bestFuzzyScore(needle, candidate string) float64 {
	haystack := strings.ToLower(candidate)
	best := matchr.JaroWinkler(needle, haystack, false)
	for _, word := range strings.Fields(haystack) {
		if score := matchr.JaroWinkler(needle, word, false); score > best {
			best = score
		}
	}
	return best
}

// SemanticSearch embeds the query and ranks candidates by cosine
// similarity. Requires an available embedding provider.
func (s *SearchService) SemanticSearch(ctx context.Context, query string, filter SearchFilter) ([]SearchResult, error) {
	vector, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.semanticSearchVector(ctx, vector, filter)
}

func (s *SearchService) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if strings.TrimSpace(query) == "" {
		return nil, db.Validationf("search query is empty")
	}
	if s.embedder == nil || !s.embedder.IsAvailable(ctx) {
		return nil, fmt.Errorf("semantic search requires an available embedding provider")
	}
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vector, nil
}

func (s *SearchService) semanticSearchVector(ctx context.Context, vector []float32, filter SearchFilter) ([]SearchResult, error) {
	limit := filter.EffectiveLimit(defaultSearchLimit)

	var results []SearchResult
	for _, table := range filter.tables(true) {
		vars := map[string]any{"vec": vector, "limit": limit}
		predicates := filter.predicateSQL(vars)
		rows, err := db.Query[searchRow](ctx, s.client, fmt.Sprintf(`
			SELECT <string>id AS id, %s AS name,
				vector::similarity::cosine(embedding, $vec) AS score
			FROM %s WHERE embedding IS NOT NONE%s
			ORDER BY score DESC LIMIT $limit
		`, displayField(table), table, predicates), vars)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if row.Score < filter.MinScore {
				continue
			}
			results = append(results, SearchResult{
				ID: row.ID, EntityType: string(table), Name: row.Name, Score: row.Score,
			})
		}
	}

	sortResults(results)
	return truncate(results, limit), nil
}

// HybridSearch fuses text and semantic rankings with Reciprocal Rank
// Fusion. Falls back to text-only when embedding is unavailable.
func (s *SearchService) HybridSearch(ctx context.Context, query string, filter SearchFilter) ([]SearchResult, error) {
	limit := filter.EffectiveLimit(defaultSearchLimit)

	oversampled := filter
	oversampled.Limit = min(limit*2, MaxLimit)

	textResults, err := s.Search(ctx, query, oversampled)
	if err != nil {
		return nil, err
	}

	if s.embedder == nil || !s.embedder.IsAvailable(ctx) {
		return truncate(textResults, limit), nil
	}
	semanticResults, err := s.SemanticSearch(ctx, query, oversampled)
	if err != nil {
		return nil, err
	}

	fused := FuseRRF(limit, textResults, semanticResults)
	return fused, nil
}

// FuseRRF merges ranked lists by Reciprocal Rank Fusion with k=60,
// normalizing the fused score to [0,1].
func FuseRRF(limit int, lists ...[]SearchResult) []SearchResult {
	type entry struct {
		result SearchResult
		score  float64
		order  int
	}
	merged := map[string]*entry{}
	order := 0
	for _, list := range lists {
		for rank, result := range list {
			e, ok := merged[result.ID]
			if !ok {
				e = &entry{result: result, order: order}
				order++
				merged[result.ID] = e
			}
			e.score += 1.0 / float64(rrfK+rank+1)
		}
	}

	entries := make([]*entry, 0, len(merged))
	maxScore := 0.0
	for _, e := range merged {
		entries = append(entries, e)
		if e.score > maxScore {
			maxScore = e.score
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].order < entries[j].order
	})

	out := make([]SearchResult, 0, len(entries))
	for _, e := range entries {
		result := e.result
		if maxScore > 0 {
			result.Score = e.score / maxScore
		} else {
			result.Score = 0
		}
		out = append(out, result)
	}
	return truncate(out, limit)
}

// FacetedSearch ranks characters by similarity against one facet embedding.
func (s *SearchService) FacetedSearch(ctx context.Context, query string, facet models.Facet, filter SearchFilter) ([]SearchResult, error) {
	vector, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	limit := filter.EffectiveLimit(defaultSearchLimit)

	vars := map[string]any{"vec": vector, "limit": limit}
	predicates := filter.predicateSQL(vars)
	rows, err := db.Query[searchRow](ctx, s.client, fmt.Sprintf(`
		SELECT <string>id AS id, name,
			vector::similarity::cosine(%s, $vec) AS score
		FROM character WHERE %s IS NOT NONE%s
		ORDER BY score DESC LIMIT $limit
	`, facet.EmbeddingColumn(), facet.EmbeddingColumn(), predicates), vars)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(rows))
	for _, row := range rows {
		if row.Score < filter.MinScore {
			continue
		}
		results = append(results, SearchResult{
			ID: row.ID, EntityType: "character", Name: row.Name, Score: row.Score,
		})
	}
	return results, nil
}

// MultiFacetSearch scores characters by a weighted sum of facet
// similarities, skipping facets a character is missing.
func (s *SearchService) MultiFacetSearch(ctx context.Context, query string, weights map[models.Facet]float64, filter SearchFilter) ([]SearchResult, error) {
	vector, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(weights) == 0 {
		return nil, db.Validationf("multi_facet_search requires at least one facet weight")
	}
	limit := filter.EffectiveLimit(defaultSearchLimit)

	var scoreTerms []string
	for facet, weight := range weights {
		if _, ok := models.ParseFacet(string(facet)); !ok {
			return nil, db.Validationf("unknown facet %q", facet)
		}
		col := facet.EmbeddingColumn()
		scoreTerms = append(scoreTerms, fmt.Sprintf(
			"(IF %s IS NOT NONE THEN %f * vector::similarity::cosine(%s, $vec) ELSE 0 END)",
			col, weight, col))
	}
	sort.Strings(scoreTerms)

	vars := map[string]any{"vec": vector, "limit": limit}
	predicates := filter.predicateSQL(vars)
	rows, err := db.Query[searchRow](ctx, s.client, fmt.Sprintf(`
		SELECT <string>id AS id, name, %s AS score
		FROM character WHERE true%s
		ORDER BY score DESC LIMIT $limit
	`, strings.Join(scoreTerms, " + "), predicates), vars)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(rows))
	for _, row := range rows {
		if row.Score <= 0 || row.Score < filter.MinScore {
			continue
		}
		results = append(results, SearchResult{
			ID: row.ID, EntityType: "character", Name: row.Name, Score: row.Score,
		})
	}
	return results, nil
}

// RerankedSearch oversamples hybrid search about 2x and reorders the pool
// with the cross-encoder. Without a reranker endpoint it degrades to plain
// hybrid search.
func (s *SearchService) RerankedSearch(ctx context.Context, query string, filter SearchFilter) ([]SearchResult, error) {
	limit := filter.EffectiveLimit(defaultSearchLimit)

	oversampled := filter
	oversampled.Limit = min(limit*2, MaxLimit)
	pool, err := s.HybridSearch(ctx, query, oversampled)
	if err != nil {
		return nil, err
	}
	if s.reranker == nil || len(pool) == 0 {
		return truncate(pool, limit), nil
	}

	documents := make([]string, len(pool))
	for i, result := range pool {
		documents[i] = result.Name
	}
	ranked, err := s.reranker.Rerank(ctx, query, documents)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}

	out := make([]SearchResult, 0, len(ranked))
	for _, doc := range ranked {
		result := pool[doc.Index]
		result.Score = doc.Score
		out = append(out, result)
	}
	return truncate(out, limit), nil
}

func sortResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

func truncate(results []SearchResult, limit int) []SearchResult {
	if len(results) > limit {
		return results[:limit]
	}
	return results
}
