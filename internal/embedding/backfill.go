package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/semaphore"

	"github.com/raphaelgruber/narra-go/internal/db"
)

// backfillParallelism bounds concurrent embed calls during backfill so a
// local provider is not overwhelmed.
const backfillParallelism = 4

// BackfillStats summarizes a backfill run.
type BackfillStats struct {
	TotalEntities int            `json:"total_entities"`
	Embedded      int            `json:"embedded"`
	Skipped       int            `json:"skipped"`
	Failed        int            `json:"failed"`
	ByType        map[string]int `json:"by_type"`
}

func (st *BackfillStats) merge(other BackfillStats) {
	st.TotalEntities += other.TotalEntities
	st.Embedded += other.Embedded
	st.Skipped += other.Skipped
	st.Failed += other.Failed
	for table, n := range other.ByType {
		st.ByType[table] += n
	}
}

// backfillTables lists the record and edge tables carrying embeddings.
var backfillTables = []string{
	"character", "location", "event", "scene", "knowledge", "note", "fact",
	"relates_to", "perceives",
}

// BackfillAll regenerates missing or stale embeddings across every table,
// then character facets. Entities are processed with bounded parallelism.
func (s *Service) BackfillAll(ctx context.Context) (*BackfillStats, error) {
	if !s.Available(ctx) {
		return nil, fmt.Errorf("embedding provider not available, cannot backfill")
	}

	stats := &BackfillStats{ByType: map[string]int{}}
	for _, table := range backfillTables {
		tableStats, err := s.BackfillTable(ctx, table)
		if err != nil {
			return stats, err
		}
		stats.merge(*tableStats)
	}

	facetStats, err := s.backfillCharacterFacets(ctx)
	if err != nil {
		return stats, err
	}
	stats.merge(*facetStats)

	slog.Info("backfill complete", "total", stats.TotalEntities,
		"embedded", stats.Embedded, "skipped", stats.Skipped, "failed", stats.Failed)
	return stats, nil
}

// BackfillTable regenerates embeddings for one table.
func (s *Service) BackfillTable(ctx context.Context, table string) (*BackfillStats, error) {
	valid := false
	for _, t := range backfillTables {
		if t == table {
			valid = true
			break
		}
	}
	if !valid {
		return nil, db.Validationf("unknown backfill table %q", table)
	}

	type idRow struct {
		ID string `json:"id"`
	}
	rows, err := db.Query[idRow](ctx, s.client, fmt.Sprintf(`
		SELECT <string>id AS id FROM %s WHERE embedding IS NONE OR embedding_stale = true
	`, table), nil)
	if err != nil {
		return nil, err
	}

	stats := &BackfillStats{
		TotalEntities: len(rows),
		ByType:        map[string]int{table: 0},
	}
	if len(rows) == 0 {
		return stats, nil
	}
	slog.Info("backfilling table", "table", table, "pending", len(rows))

	sem := semaphore.NewWeighted(backfillParallelism)
	results := make(chan error, len(rows))
	for _, row := range rows {
		if err := sem.Acquire(ctx, 1); err != nil {
			return stats, err
		}
		go func(entityID string) {
			defer sem.Release(1)
			results <- s.Regenerate(ctx, entityID, "")
		}(row.ID)
	}
	for range rows {
		if err := <-results; err != nil {
			stats.Failed++
			slog.Warn("backfill entity failed", "table", table, "error", err)
		} else {
			stats.Embedded++
			stats.ByType[table]++
		}
	}
	return stats, nil
}

// backfillCharacterFacets regenerates facets for characters where any facet
// is stale or missing.
func (s *Service) backfillCharacterFacets(ctx context.Context) (*BackfillStats, error) {
	type idRow struct {
		ID string `json:"id"`
	}
	rows, err := db.Query[idRow](ctx, s.client, `
		SELECT <string>id AS id FROM character
		WHERE identity_embedding IS NONE OR identity_stale = true
		   OR psychology_embedding IS NONE OR psychology_stale = true
		   OR social_embedding IS NONE OR social_stale = true
		   OR narrative_embedding IS NONE OR narrative_stale = true
	`, nil)
	if err != nil {
		return nil, err
	}

	stats := &BackfillStats{
		TotalEntities: len(rows),
		ByType:        map[string]int{"character_facets": 0},
	}
	for _, row := range rows {
		if err := s.RegenerateCharacterFacets(ctx, row.ID); err != nil {
			stats.Failed++
			slog.Warn("facet backfill failed", "character", row.ID, "error", err)
			continue
		}
		stats.Embedded++
		stats.ByType["character_facets"]++
	}
	return stats, nil
}

// HealthReport describes embedding coverage per table.
type HealthReport struct {
	Provider  string                 `json:"provider"`
	Model     string                 `json:"model"`
	Dimension int                    `json:"dimension"`
	Available bool                   `json:"available"`
	Tables    map[string]TableHealth `json:"tables"`
}

// TableHealth is per-table embedding coverage.
type TableHealth struct {
	Total    int `json:"total"`
	Embedded int `json:"embedded"`
	Stale    int `json:"stale"`
	Missing  int `json:"missing"`
}

// Health reports embedding coverage and provider availability.
func (s *Service) Health(ctx context.Context) (*HealthReport, error) {
	report := &HealthReport{
		Provider:  s.provider,
		Available: s.Available(ctx),
		Tables:    map[string]TableHealth{},
	}
	if s.embedder != nil {
		report.Model = s.embedder.Model()
		report.Dimension = s.embedder.Dimension()
	}

	type healthRow struct {
		Total    int `json:"total"`
		Embedded int `json:"embedded"`
		Stale    int `json:"stale"`
	}
	for _, table := range backfillTables {
		rows, err := db.Query[healthRow](ctx, s.client, fmt.Sprintf(`
			SELECT count() AS total,
				count(embedding IS NOT NONE) AS embedded,
				count(embedding_stale = true) AS stale
			FROM %s GROUP ALL
		`, table), nil)
		if err != nil {
			return nil, err
		}
		health := TableHealth{}
		if len(rows) > 0 {
			health.Total = rows[0].Total
			health.Embedded = rows[0].Embedded
			health.Stale = rows[0].Stale
			health.Missing = health.Total - health.Embedded
		}
		report.Tables[table] = health
	}
	return report, nil
}

// EnsureDimension verifies the stored embedding metadata matches the
// configured model, refusing to mix vector spaces.
func (s *Service) EnsureDimension(ctx context.Context) error {
	if s.embedder == nil {
		return nil
	}
	meta, err := s.client.GetEmbeddingMeta(ctx)
	if err != nil {
		return err
	}
	if meta == nil || meta.EmbeddingModel == "" {
		return s.client.RecordEmbeddingMeta(ctx, s.provider, s.embedder.Model(), s.embedder.Dimension())
	}
	if meta.EmbeddingModel != s.embedder.Model() || meta.EmbeddingDimension != s.embedder.Dimension() {
		return fmt.Errorf("embedding model mismatch: database has %s (%d dims), configured %s (%d dims); run backfill after wiping embeddings",
			meta.EmbeddingModel, meta.EmbeddingDimension, s.embedder.Model(), s.embedder.Dimension())
	}
	return nil
}
