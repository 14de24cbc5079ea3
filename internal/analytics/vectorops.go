package analytics

import (
	"context"
	"fmt"
	"sort"

	"github.com/raphaelgruber/narra-go/internal/db"
	"github.com/raphaelgruber/narra-go/internal/models"
	"github.com/raphaelgruber/narra-go/internal/vectormath"
)

// growthWindow is how many trailing snapshots feed the growth vector.
const growthWindow = 5

// GrowthVector summarizes the direction of an entity's recent arc deltas.
type GrowthVector struct {
	EntityID      string   `json:"entity_id"`
	SnapshotsUsed int      `json:"snapshots_used"`
	Magnitude     float64  `json:"magnitude"`
	NearestLabels []string `json:"nearest_labels"`
}

// MisperceptionVector is the direction from reality toward an observer's
// view, with the cached gap.
type MisperceptionVector struct {
	ObserverID    string   `json:"observer_id"`
	TargetID      string   `json:"target_id"`
	Gap           float64  `json:"gap"`
	Assessment    string   `json:"assessment"`
	NearestLabels []string `json:"nearest_labels"`
}

// ConvergencePoint is one pairwise similarity sample along two arcs.
type ConvergencePoint struct {
	Index      int     `json:"index"`
	Similarity float64 `json:"similarity"`
}

// ConvergenceAnalysis is the pairwise similarity series with its trend.
type ConvergenceAnalysis struct {
	EntityA string             `json:"entity_a"`
	EntityB string             `json:"entity_b"`
	Points  []ConvergencePoint `json:"points"`
	Slope   float64            `json:"slope"`
	Trend   string             `json:"trend"`
}

// MidpointResult is one entity near the semantic midpoint of a pair.
type MidpointResult struct {
	ID         string  `json:"id"`
	EntityType string  `json:"entity_type"`
	Name       string  `json:"name"`
	Similarity float64 `json:"similarity"`
}

// VectorOpsService derives pure-vector views from arc snapshots and edge
// embeddings.
type VectorOpsService struct {
	client     *db.Client
	arcs       *ArcService
	perception *PerceptionService
}

// NewVectorOpsService creates the vector operations service.
func NewVectorOpsService(client *db.Client) *VectorOpsService {
	return &VectorOpsService{
		client:     client,
		arcs:       NewArcService(client),
		perception: NewPerceptionService(client, nil),
	}
}

// Growth summarizes the direction of the entity's last few snapshot deltas
// and names the characters nearest to that direction.
func (s *VectorOpsService) Growth(ctx context.Context, entityID string) (*GrowthVector, error) {
	snaps, err := s.arcs.windowedSnapshots(ctx, entityID, growthWindow+1)
	if err != nil {
		return nil, err
	}
	if len(snaps) < 2 {
		return nil, db.Validationf("growth vector needs at least 2 snapshots, have %d", len(snaps))
	}

	dim := len(snaps[0].Embedding)
	direction := make([]float32, dim)
	for i := 1; i < len(snaps); i++ {
		direction = vectormath.Add(direction, vectormath.Subtract(snaps[i].Embedding, snaps[i-1].Embedding))
	}
	magnitude := vectormath.L2Norm(direction)

	// Project the direction from the latest position to find where the
	// entity is heading.
	probe := vectormath.Add(snaps[len(snaps)-1].Embedding, vectormath.Normalize(direction))
	labels, err := s.nearestLabels(ctx, probe, entityID, 3)
	if err != nil {
		return nil, err
	}
	return &GrowthVector{
		EntityID:      entityID,
		SnapshotsUsed: len(snaps),
		Magnitude:     magnitude,
		NearestLabels: labels,
	}, nil
}

// Misperception computes the direction from the target's reality toward
// the observer's view of them.
func (s *VectorOpsService) Misperception(ctx context.Context, observerID, targetID string) (*MisperceptionVector, error) {
	edge, err := s.perception.perceptionEdge(ctx, observerID, targetID)
	if err != nil {
		return nil, err
	}
	if len(edge.Embedding) == 0 {
		return nil, db.Validationf("perception %s->%s has no embedding yet", observerID, targetID)
	}
	targetEmb, _, err := s.perception.targetEmbedding(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if len(targetEmb) == 0 {
		return nil, db.Validationf("character %s has no embedding yet", targetID)
	}

	gap := vectormath.CosineDistance(edge.Embedding, targetEmb)
	direction := vectormath.Subtract(edge.Embedding, targetEmb)
	probe := vectormath.Add(targetEmb, vectormath.Normalize(direction))
	labels, err := s.nearestLabels(ctx, probe, targetID, 3)
	if err != nil {
		return nil, err
	}
	return &MisperceptionVector{
		ObserverID:    edge.In,
		TargetID:      edge.Out,
		Gap:           gap,
		Assessment:    gapBand(gap),
		NearestLabels: labels,
	}, nil
}

// Convergence samples pairwise cosine similarity along two arcs and fits a
// least-squares slope over the series.
func (s *VectorOpsService) Convergence(ctx context.Context, entityA, entityB, window string) (*ConvergenceAnalysis, error) {
	recent, err := parseWindow(window)
	if err != nil {
		return nil, err
	}
	snapsA, err := s.arcs.windowedSnapshots(ctx, entityA, recent)
	if err != nil {
		return nil, err
	}
	snapsB, err := s.arcs.windowedSnapshots(ctx, entityB, recent)
	if err != nil {
		return nil, err
	}
	n := len(snapsA)
	if len(snapsB) < n {
		n = len(snapsB)
	}
	if n < 2 {
		return nil, db.Validationf("convergence analysis needs at least 2 aligned snapshots, have %d", n)
	}

	analysis := &ConvergenceAnalysis{EntityA: entityA, EntityB: entityB}
	for i := 0; i < n; i++ {
		analysis.Points = append(analysis.Points, ConvergencePoint{
			Index:      i,
			Similarity: vectormath.CosineSimilarity(snapsA[i].Embedding, snapsB[i].Embedding),
		})
	}
	analysis.Slope = leastSquaresSlope(analysis.Points)
	switch {
	case analysis.Slope > 0.005:
		analysis.Trend = "converging"
	case analysis.Slope < -0.005:
		analysis.Trend = "diverging"
	default:
		analysis.Trend = "stable"
	}
	return analysis, nil
}

// Midpoint finds the entities nearest to the average of two embeddings.
func (s *VectorOpsService) Midpoint(ctx context.Context, entityA, entityB string, limit int) ([]MidpointResult, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	embA, err := s.entityEmbedding(ctx, entityA)
	if err != nil {
		return nil, err
	}
	embB, err := s.entityEmbedding(ctx, entityB)
	if err != nil {
		return nil, err
	}
	midpoint := vectormath.Midpoint(embA, embB)

	type row struct {
		ID    string  `json:"id"`
		Name  string  `json:"name"`
		Score float64 `json:"score"`
	}
	var out []MidpointResult
	for _, table := range models.EmbeddableTypes {
		rows, err := db.Query[row](ctx, s.client, fmt.Sprintf(`
			SELECT <string>id AS id, %s AS name,
				vector::similarity::cosine(embedding, $vec) AS score
			FROM %s WHERE embedding IS NOT NONE
			ORDER BY score DESC LIMIT $limit
		`, displayField(table), table), map[string]any{"vec": midpoint, "limit": limit})
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			if r.ID == entityA || r.ID == entityB {
				continue
			}
			out = append(out, MidpointResult{
				ID: r.ID, EntityType: string(table), Name: r.Name, Similarity: r.Score,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *VectorOpsService) entityEmbedding(ctx context.Context, entityID string) ([]float32, error) {
	table, key, err := models.SplitEntityID(entityID)
	if err != nil {
		return nil, err
	}
	type row struct {
		Embedding []float32 `json:"embedding"`
	}
	r, err := db.QueryOne[row](ctx, s.client,
		`SELECT embedding FROM type::record($tb, $id)`,
		map[string]any{"tb": table, "id": key})
	if err != nil {
		return nil, err
	}
	if r == nil || len(r.Embedding) == 0 {
		return nil, db.Validationf("entity %s has no embedding yet", entityID)
	}
	return r.Embedding, nil
}

// nearestLabels names the characters closest to a probe vector, excluding
// one entity.
func (s *VectorOpsService) nearestLabels(ctx context.Context, probe []float32, excludeID string, count int) ([]string, error) {
	type row struct {
		ID    string  `json:"id"`
		Name  string  `json:"name"`
		Score float64 `json:"score"`
	}
	rows, err := db.Query[row](ctx, s.client, `
		SELECT <string>id AS id, name, vector::similarity::cosine(embedding, $vec) AS score
		FROM character WHERE embedding IS NOT NONE
		ORDER BY score DESC LIMIT $limit
	`, map[string]any{"vec": probe, "limit": count + 1})
	if err != nil {
		return nil, err
	}
	var labels []string
	for _, r := range rows {
		if r.ID == excludeID {
			continue
		}
		labels = append(labels, r.Name)
		if len(labels) == count {
			break
		}
	}
	return labels, nil
}

// leastSquaresSlope fits y = a + b*x over the similarity series and
// returns b.
func leastSquaresSlope(points []ConvergencePoint) float64 {
	n := float64(len(points))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for _, p := range points {
		x := float64(p.Index)
		sumX += x
		sumY += p.Similarity
		sumXY += x * p.Similarity
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}
