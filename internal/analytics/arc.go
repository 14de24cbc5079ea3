package analytics

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/raphaelgruber/narra-go/internal/db"
	"github.com/raphaelgruber/narra-go/internal/vectormath"
)

// ArcSnapshotView is one snapshot row as surfaced to callers.
type ArcSnapshotView struct {
	EntityID       string    `json:"entity_id"`
	EntityType     string    `json:"entity_type"`
	DeltaMagnitude *float64  `json:"delta_magnitude,omitempty"`
	EventID        *string   `json:"event_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ArcHistory summarizes an entity's snapshot trail.
type ArcHistory struct {
	EntityID        string            `json:"entity_id"`
	Snapshots       []ArcSnapshotView `json:"snapshots"`
	CumulativeDrift float64           `json:"cumulative_drift"`
	NetDisplacement float64           `json:"net_displacement"`
	Band            string            `json:"band"`
}

// ArcComparison relates two entities' arcs over a shared window.
type ArcComparison struct {
	EntityA              string  `json:"entity_a"`
	EntityB              string  `json:"entity_b"`
	SnapshotsA           int     `json:"snapshots_a"`
	SnapshotsB           int     `json:"snapshots_b"`
	Convergence          float64 `json:"convergence"`
	TrajectorySimilarity float64 `json:"trajectory_similarity"`
}

// ArcDriftEntry is one entity in the drift leaderboard.
type ArcDriftEntry struct {
	EntityID     string  `json:"entity_id"`
	EntityType   string  `json:"entity_type"`
	TotalDrift   float64 `json:"total_drift"`
	Displacement float64 `json:"displacement"`
	Efficiency   float64 `json:"efficiency"`
}

// ArcService reads and aggregates arc snapshots.
type ArcService struct {
	client *db.Client
}

// NewArcService creates the arc service.
func NewArcService(client *db.Client) *ArcService {
	return &ArcService{client: client}
}

type arcSnapRow struct {
	EntityID       string    `json:"entity_id"`
	EntityType     string    `json:"entity_type"`
	Embedding      []float32 `json:"embedding"`
	DeltaMagnitude *float64  `json:"delta_magnitude"`
	EventID        *string   `json:"event_id"`
	CreatedAt      time.Time `json:"created_at"`
}

func (s *ArcService) snapshots(ctx context.Context, entityID string, limit int) ([]arcSnapRow, error) {
	sql := `SELECT entity_id, entity_type, embedding, delta_magnitude, event_id, created_at
		FROM arc_snapshot WHERE entity_id = $id ORDER BY created_at`
	vars := map[string]any{"id": entityID}
	if limit > 0 {
		sql += " LIMIT $limit"
		vars["limit"] = limit
	}
	return db.Query[arcSnapRow](ctx, s.client, sql, vars)
}

// driftBand maps net displacement to a qualitative label.
func driftBand(displacement float64) string {
	switch {
	case displacement < 0.02:
		return "unchanged"
	case displacement < 0.1:
		return "minor evolution"
	case displacement < 0.3:
		return "significant development"
	default:
		return "dramatic transformation"
	}
}

// Baseline snapshots the current embedding of every entity of the given
// type that has one but has no snapshot yet. An empty entityType baselines
// characters. Returns the number of snapshots written.
func (s *ArcService) Baseline(ctx context.Context, entityType string) (int, error) {
	if entityType == "" {
		entityType = "character"
	}
	type embRow struct {
		ID        string    `json:"id"`
		Embedding []float32 `json:"embedding"`
	}
	if !validFieldName(entityType) {
		return 0, db.Validationf("invalid entity type %q", entityType)
	}
	rows, err := db.Query[embRow](ctx, s.client,
		`SELECT <string>id AS id, embedding FROM type::table($tb) WHERE embedding IS NOT NONE`,
		map[string]any{"tb": entityType})
	if err != nil {
		return 0, err
	}

	written := 0
	for _, row := range rows {
		existing, err := db.Query[arcSnapRow](ctx, s.client,
			`SELECT entity_id, entity_type, created_at FROM arc_snapshot WHERE entity_id = $id LIMIT 1`,
			map[string]any{"id": row.ID})
		if err != nil {
			return written, err
		}
		if len(existing) > 0 {
			continue
		}
		err = s.client.Exec(ctx, `
			CREATE arc_snapshot SET entity_id = $id, entity_type = $type,
				embedding = $emb, delta_magnitude = NONE, created_at = time::now()
		`, map[string]any{"id": row.ID, "type": entityType, "emb": row.Embedding})
		if err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// History returns the snapshot trail with cumulative drift and net
// displacement.
func (s *ArcService) History(ctx context.Context, entityID string, limit int) (*ArcHistory, error) {
	rows, err := s.snapshots(ctx, entityID, limit)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &db.NotFoundError{EntityType: "arc_snapshot", ID: entityID}
	}

	history := &ArcHistory{EntityID: entityID}
	for _, row := range rows {
		history.Snapshots = append(history.Snapshots, ArcSnapshotView{
			EntityID:       row.EntityID,
			EntityType:     row.EntityType,
			DeltaMagnitude: row.DeltaMagnitude,
			EventID:        row.EventID,
			CreatedAt:      row.CreatedAt,
		})
		if row.DeltaMagnitude != nil {
			history.CumulativeDrift += *row.DeltaMagnitude
		}
	}
	first := rows[0].Embedding
	last := rows[len(rows)-1].Embedding
	if len(first) > 0 && len(last) > 0 {
		history.NetDisplacement = 1 - vectormath.CosineSimilarity(first, last)
	}
	history.Band = driftBand(history.NetDisplacement)
	return history, nil
}

// parseWindow resolves an optional "recent:N" window spec.
func parseWindow(window string) (int, error) {
	if window == "" {
		return 0, nil
	}
	rest, ok := strings.CutPrefix(window, "recent:")
	if !ok {
		return 0, db.Validationf("unknown window spec %q, expected recent:N", window)
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 {
		return 0, db.Validationf("invalid window count in %q", window)
	}
	return n, nil
}

func (s *ArcService) windowedSnapshots(ctx context.Context, entityID string, recent int) ([]arcSnapRow, error) {
	if recent <= 0 {
		return s.snapshots(ctx, entityID, 0)
	}
	rows, err := db.Query[arcSnapRow](ctx, s.client, `
		SELECT entity_id, entity_type, embedding, delta_magnitude, event_id, created_at
		FROM arc_snapshot WHERE entity_id = $id ORDER BY created_at DESC LIMIT $limit
	`, map[string]any{"id": entityID, "limit": recent})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// Comparison relates two arcs: whether the entities converged and how
// parallel their trajectories ran.
func (s *ArcService) Comparison(ctx context.Context, entityA, entityB, window string) (*ArcComparison, error) {
	recent, err := parseWindow(window)
	if err != nil {
		return nil, err
	}
	snapsA, err := s.windowedSnapshots(ctx, entityA, recent)
	if err != nil {
		return nil, err
	}
	snapsB, err := s.windowedSnapshots(ctx, entityB, recent)
	if err != nil {
		return nil, err
	}
	if len(snapsA) < 2 || len(snapsB) < 2 {
		return nil, db.Validationf("arc comparison needs at least 2 snapshots per entity, have %d and %d",
			len(snapsA), len(snapsB))
	}

	firstA, lastA := snapsA[0].Embedding, snapsA[len(snapsA)-1].Embedding
	firstB, lastB := snapsB[0].Embedding, snapsB[len(snapsB)-1].Embedding

	return &ArcComparison{
		EntityA:    entityA,
		EntityB:    entityB,
		SnapshotsA: len(snapsA),
		SnapshotsB: len(snapsB),
		Convergence: vectormath.CosineSimilarity(lastA, lastB) -
			vectormath.CosineSimilarity(firstA, firstB),
		TrajectorySimilarity: vectormath.CosineSimilarity(
			vectormath.Subtract(lastA, firstA),
			vectormath.Subtract(lastB, firstB)),
	}, nil
}

// Drift aggregates total drift per entity and computes efficiency
// (displacement over drift) for the top movers.
func (s *ArcService) Drift(ctx context.Context, typeFilter string, limit int) ([]ArcDriftEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	sql := `SELECT entity_id, entity_type, delta_magnitude FROM arc_snapshot
		WHERE delta_magnitude IS NOT NONE`
	vars := map[string]any{}
	if typeFilter != "" {
		sql += " AND entity_type = $type"
		vars["type"] = typeFilter
	}
	rows, err := db.Query[arcSnapRow](ctx, s.client, sql, vars)
	if err != nil {
		return nil, err
	}

	totals := map[string]*ArcDriftEntry{}
	for _, row := range rows {
		entry := totals[row.EntityID]
		if entry == nil {
			entry = &ArcDriftEntry{EntityID: row.EntityID, EntityType: row.EntityType}
			totals[row.EntityID] = entry
		}
		entry.TotalDrift += *row.DeltaMagnitude
	}

	entries := make([]ArcDriftEntry, 0, len(totals))
	for _, entry := range totals {
		entries = append(entries, *entry)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].TotalDrift != entries[j].TotalDrift {
			return entries[i].TotalDrift > entries[j].TotalDrift
		}
		return entries[i].EntityID < entries[j].EntityID
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}

	for i := range entries {
		snaps, err := s.snapshots(ctx, entries[i].EntityID, 0)
		if err != nil {
			return nil, err
		}
		if len(snaps) < 2 {
			continue
		}
		first, last := snaps[0].Embedding, snaps[len(snaps)-1].Embedding
		entries[i].Displacement = 1 - vectormath.CosineSimilarity(first, last)
		if entries[i].TotalDrift > 0 {
			entries[i].Efficiency = entries[i].Displacement / entries[i].TotalDrift
		}
	}
	return entries, nil
}

// Moment returns the snapshot nearest to, but not after, the given event.
// Without an event the latest snapshot is returned.
func (s *ArcService) Moment(ctx context.Context, entityID, eventID string) (*ArcSnapshotView, error) {
	sql := `SELECT entity_id, entity_type, embedding, delta_magnitude, event_id, created_at
		FROM arc_snapshot WHERE entity_id = $id`
	vars := map[string]any{"id": entityID}

	if eventID != "" {
		type eventRow struct {
			CreatedAt time.Time `json:"created_at"`
		}
		event, err := db.QueryOne[eventRow](ctx, s.client,
			`SELECT created_at FROM type::record("event", $event)`,
			map[string]any{"event": strings.TrimPrefix(eventID, "event:")})
		if err != nil {
			return nil, err
		}
		if event == nil {
			return nil, &db.NotFoundError{EntityType: "event", ID: eventID}
		}
		sql += " AND created_at <= $cutoff"
		vars["cutoff"] = event.CreatedAt
	}
	sql += " ORDER BY created_at DESC LIMIT 1"

	row, err := db.QueryOne[arcSnapRow](ctx, s.client, sql, vars)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, &db.NotFoundError{EntityType: "arc_snapshot", ID: entityID}
	}
	return &ArcSnapshotView{
		EntityID:       row.EntityID,
		EntityType:     row.EntityType,
		DeltaMagnitude: row.DeltaMagnitude,
		EventID:        row.EventID,
		CreatedAt:      row.CreatedAt,
	}, nil
}
