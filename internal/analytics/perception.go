package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/raphaelgruber/narra-go/internal/db"
	"github.com/raphaelgruber/narra-go/internal/embedding"
	"github.com/raphaelgruber/narra-go/internal/vectormath"
)

// Perception gap qualitative bands.
func gapBand(gap float64) string {
	switch {
	case gap < 0.05:
		return "remarkably accurate"
	case gap < 0.15:
		return "fairly accurate"
	case gap < 0.30:
		return "notable blind spots"
	case gap < 0.50:
		return "significantly distorted"
	default:
		return "dramatically wrong"
	}
}

// PerceptionGap measures how far an observer's view of a target diverges
// from the target's own current embedding.
type PerceptionGap struct {
	ObserverID   string  `json:"observer_id"`
	ObserverName string  `json:"observer_name"`
	TargetID     string  `json:"target_id"`
	TargetName   string  `json:"target_name"`
	Gap          float64 `json:"gap"`
	Assessment   string  `json:"assessment"`
}

// MatrixEntry is one observer row in a perception matrix.
type MatrixEntry struct {
	ObserverID   string             `json:"observer_id"`
	ObserverName string             `json:"observer_name"`
	Gap          float64            `json:"gap"`
	Assessment   string             `json:"assessment"`
	Agreement    map[string]float64 `json:"agreement"`
}

// TensionPair is one bidirectional perceives pair scored by asymmetry.
type TensionPair struct {
	CharacterA   string  `json:"character_a"`
	NameA        string  `json:"name_a"`
	CharacterB   string  `json:"character_b"`
	NameB        string  `json:"name_b"`
	Asymmetry    float64 `json:"asymmetry"`
	SharedScenes int     `json:"shared_scenes"`
	TensionScore float64 `json:"tension_score"`
}

// SimilarEdge is one relationship ranked by embedding similarity.
type SimilarEdge struct {
	EdgeID     string  `json:"edge_id"`
	EdgeType   string  `json:"edge_type"`
	FromName   string  `json:"from_name"`
	ToName     string  `json:"to_name"`
	Similarity float64 `json:"similarity"`
}

// PerceptionShift tracks how an observer's view drifted over snapshots.
type PerceptionShift struct {
	Snapshots   int     `json:"snapshots"`
	FirstToLast float64 `json:"first_to_last_drift"`
	TotalDrift  float64 `json:"total_drift"`
	CurrentGap  float64 `json:"current_gap"`
	CurrentBand string  `json:"current_band"`
}

// PerceptionService analyzes perceives-edge embeddings against reality.
type PerceptionService struct {
	client   *db.Client
	embedder embedding.Embedder
}

// NewPerceptionService creates the perception service.
func NewPerceptionService(client *db.Client, embedder embedding.Embedder) *PerceptionService {
	return &PerceptionService{client: client, embedder: embedder}
}

type perceivesEmbRow struct {
	ID        string    `json:"id"`
	In        string    `json:"in"`
	InName    string    `json:"in_name"`
	Out       string    `json:"out"`
	OutName   string    `json:"out_name"`
	Embedding []float32 `json:"embedding"`
}

func (s *PerceptionService) perceptionEdge(ctx context.Context, observerID, targetID string) (*perceivesEmbRow, error) {
	row, err := db.QueryOne[perceivesEmbRow](ctx, s.client, `
		SELECT <string>id AS id, <string>in AS in, in.name AS in_name,
			<string>out AS out, out.name AS out_name, embedding
		FROM perceives
		WHERE in = type::record("character", $observer)
		  AND out = type::record("character", $target)
	`, map[string]any{
		"observer": strings.TrimPrefix(observerID, "character:"),
		"target":   strings.TrimPrefix(targetID, "character:"),
	})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, &db.NotFoundError{EntityType: "perceives", ID: observerID + "->" + targetID}
	}
	return row, nil
}

func (s *PerceptionService) targetEmbedding(ctx context.Context, targetID string) ([]float32, string, error) {
	type row struct {
		Name      string    `json:"name"`
		Embedding []float32 `json:"embedding"`
	}
	r, err := db.QueryOne[row](ctx, s.client,
		`SELECT name, embedding FROM type::record("character", $id)`,
		map[string]any{"id": strings.TrimPrefix(targetID, "character:")})
	if err != nil {
		return nil, "", err
	}
	if r == nil {
		return nil, "", &db.NotFoundError{EntityType: "character", ID: targetID}
	}
	return r.Embedding, r.Name, nil
}

// Gap computes the perception gap for one observer-target pair.
func (s *PerceptionService) Gap(ctx context.Context, observerID, targetID string) (*PerceptionGap, error) {
	edge, err := s.perceptionEdge(ctx, observerID, targetID)
	if err != nil {
		return nil, err
	}
	if len(edge.Embedding) == 0 {
		return nil, db.Validationf("perception %s->%s has no embedding yet", observerID, targetID)
	}
	targetEmb, targetName, err := s.targetEmbedding(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if len(targetEmb) == 0 {
		return nil, db.Validationf("character %s has no embedding yet", targetID)
	}

	gap := vectormath.CosineDistance(edge.Embedding, targetEmb)
	return &PerceptionGap{
		ObserverID:   edge.In,
		ObserverName: edge.InName,
		TargetID:     edge.Out,
		TargetName:   targetName,
		Gap:          gap,
		Assessment:   gapBand(gap),
	}, nil
}

// Matrix lists every observer of the target with gaps and pairwise
// observer agreement, sorted by gap ascending.
func (s *PerceptionService) Matrix(ctx context.Context, targetID string) ([]MatrixEntry, error) {
	targetEmb, _, err := s.targetEmbedding(ctx, targetID)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query[perceivesEmbRow](ctx, s.client, `
		SELECT <string>id AS id, <string>in AS in, in.name AS in_name,
			<string>out AS out, out.name AS out_name, embedding
		FROM perceives
		WHERE out = type::record("character", $target) AND embedding IS NOT NONE
	`, map[string]any{"target": strings.TrimPrefix(targetID, "character:")})
	if err != nil {
		return nil, err
	}

	entries := make([]MatrixEntry, 0, len(rows))
	for _, row := range rows {
		entry := MatrixEntry{
			ObserverID:   row.In,
			ObserverName: row.InName,
			Agreement:    map[string]float64{},
		}
		if len(targetEmb) > 0 {
			entry.Gap = vectormath.CosineDistance(row.Embedding, targetEmb)
			entry.Assessment = gapBand(entry.Gap)
		}
		for _, other := range rows {
			if other.In == row.In {
				continue
			}
			entry.Agreement[other.InName] = vectormath.CosineSimilarity(row.Embedding, other.Embedding)
		}
		entries = append(entries, entry)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Gap < entries[j].Gap })
	return entries, nil
}

// PerspectiveSearch runs semantic search over perceives edges, optionally
// bound to one observer or target.
func (s *PerceptionService) PerspectiveSearch(ctx context.Context, query, observerID, targetID string, limit int) ([]SimilarEdge, error) {
	if s.embedder == nil || !s.embedder.IsAvailable(ctx) {
		return nil, fmt.Errorf("perspective search requires an available embedding provider")
	}
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	conditions := []string{"embedding IS NOT NONE"}
	vars := map[string]any{"vec": vector, "limit": limit}
	if observerID != "" {
		conditions = append(conditions, `in = type::record("character", $observer)`)
		vars["observer"] = strings.TrimPrefix(observerID, "character:")
	}
	if targetID != "" {
		conditions = append(conditions, `out = type::record("character", $target)`)
		vars["target"] = strings.TrimPrefix(targetID, "character:")
	}

	type row struct {
		ID      string  `json:"id"`
		InName  string  `json:"in_name"`
		OutName string  `json:"out_name"`
		Score   float64 `json:"score"`
	}
	rows, err := db.Query[row](ctx, s.client, fmt.Sprintf(`
		SELECT <string>id AS id, in.name AS in_name, out.name AS out_name,
			vector::similarity::cosine(embedding, $vec) AS score
		FROM perceives WHERE %s
		ORDER BY score DESC LIMIT $limit
	`, strings.Join(conditions, " AND ")), vars)
	if err != nil {
		return nil, err
	}

	out := make([]SimilarEdge, 0, len(rows))
	for _, r := range rows {
		out = append(out, SimilarEdge{
			EdgeID: r.ID, EdgeType: "perceives",
			FromName: r.InName, ToName: r.OutName, Similarity: r.Score,
		})
	}
	return out, nil
}

// Shift reports how the observer's perception of the target moved across
// its arc snapshots.
func (s *PerceptionService) Shift(ctx context.Context, observerID, targetID string) (*PerceptionShift, error) {
	edge, err := s.perceptionEdge(ctx, observerID, targetID)
	if err != nil {
		return nil, err
	}

	type snapRow struct {
		Embedding      []float32 `json:"embedding"`
		DeltaMagnitude *float64  `json:"delta_magnitude"`
	}
	snapshots, err := db.Query[snapRow](ctx, s.client, `
		SELECT embedding, delta_magnitude FROM arc_snapshot
		WHERE entity_id = $id ORDER BY created_at
	`, map[string]any{"id": edge.ID})
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, &db.NotFoundError{EntityType: "arc_snapshot", ID: edge.ID}
	}

	shift := &PerceptionShift{Snapshots: len(snapshots)}
	for _, snap := range snapshots {
		if snap.DeltaMagnitude != nil {
			shift.TotalDrift += *snap.DeltaMagnitude
		}
	}
	first := snapshots[0].Embedding
	last := snapshots[len(snapshots)-1].Embedding
	if len(first) > 0 && len(last) > 0 {
		shift.FirstToLast = 1 - vectormath.CosineSimilarity(first, last)
	}

	targetEmb, _, err := s.targetEmbedding(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if len(targetEmb) > 0 && len(last) > 0 {
		shift.CurrentGap = vectormath.CosineDistance(last, targetEmb)
		shift.CurrentBand = gapBand(shift.CurrentGap)
	}
	return shift, nil
}

// UnresolvedTensions scores bidirectional perceives pairs by embedding
// asymmetry, discounted by how many scenes the pair has shared.
func (s *PerceptionService) UnresolvedTensions(ctx context.Context, minAsymmetry float64, maxSharedScenes, limit int) ([]TensionPair, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	rows, err := db.Query[perceivesEmbRow](ctx, s.client, `
		SELECT <string>id AS id, <string>in AS in, in.name AS in_name,
			<string>out AS out, out.name AS out_name, embedding
		FROM perceives WHERE embedding IS NOT NONE
	`, nil)
	if err != nil {
		return nil, err
	}

	byPair := map[[2]string]perceivesEmbRow{}
	for _, row := range rows {
		byPair[[2]string{row.In, row.Out}] = row
	}

	// Batch scene membership once for every character in a pair.
	type participantRow struct {
		In  string `json:"in"`
		Out string `json:"out"`
	}
	participation, err := db.Query[participantRow](ctx, s.client,
		`SELECT <string>in AS in, <string>out AS out FROM participates_in`, nil)
	if err != nil {
		return nil, err
	}
	scenesByCharacter := map[string]map[string]bool{}
	for _, row := range participation {
		if scenesByCharacter[row.In] == nil {
			scenesByCharacter[row.In] = map[string]bool{}
		}
		scenesByCharacter[row.In][row.Out] = true
	}

	seen := map[[2]string]bool{}
	var pairs []TensionPair
	for key, forward := range byPair {
		reverseKey := [2]string{key[1], key[0]}
		if seen[key] || seen[reverseKey] {
			continue
		}
		reverse, ok := byPair[reverseKey]
		if !ok {
			continue
		}
		seen[key] = true

		asymmetry := 1 - vectormath.CosineSimilarity(forward.Embedding, reverse.Embedding)
		if asymmetry < minAsymmetry {
			continue
		}

		shared := 0
		for scene := range scenesByCharacter[key[0]] {
			if scenesByCharacter[key[1]][scene] {
				shared++
			}
		}
		if maxSharedScenes > 0 && shared > maxSharedScenes {
			continue
		}

		pairs = append(pairs, TensionPair{
			CharacterA:   forward.In,
			NameA:        forward.InName,
			CharacterB:   forward.Out,
			NameB:        forward.OutName,
			Asymmetry:    asymmetry,
			SharedScenes: shared,
			TensionScore: asymmetry / float64(shared+1),
		})
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].TensionScore != pairs[j].TensionScore {
			return pairs[i].TensionScore > pairs[j].TensionScore
		}
		return pairs[i].CharacterA < pairs[j].CharacterA
	})
	if len(pairs) > limit {
		pairs = pairs[:limit]
	}
	return pairs, nil
}

// SimilarRelationships ranks perceives and relates_to edges by similarity
// to a source pair's edge embedding, optionally blended toward a textual
// bias.
func (s *PerceptionService) SimilarRelationships(ctx context.Context, observerID, targetID, edgeType, bias string, limit int) ([]SimilarEdge, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	source, err := s.sourceEdgeEmbedding(ctx, observerID, targetID, edgeType)
	if err != nil {
		return nil, err
	}
	queryVec := source
	if bias != "" {
		if s.embedder == nil || !s.embedder.IsAvailable(ctx) {
			return nil, fmt.Errorf("bias blending requires an available embedding provider")
		}
		biasVec, err := s.embedder.Embed(ctx, bias)
		if err != nil {
			return nil, fmt.Errorf("embed bias: %w", err)
		}
		queryVec = vectormath.Blend(source, biasVec, 0.7, 0.3)
	}

	observerKey := strings.TrimPrefix(observerID, "character:")
	targetKey := strings.TrimPrefix(targetID, "character:")

	type row struct {
		ID      string  `json:"id"`
		InName  string  `json:"in_name"`
		OutName string  `json:"out_name"`
		Score   float64 `json:"score"`
	}
	var out []SimilarEdge
	for _, table := range []string{"perceives", "relates_to"} {
		rows, err := db.Query[row](ctx, s.client, fmt.Sprintf(`
			SELECT <string>id AS id, in.name AS in_name, out.name AS out_name,
				vector::similarity::cosine(embedding, $vec) AS score
			FROM %s
			WHERE embedding IS NOT NONE
			  AND !(in = type::record("character", $observer) AND out = type::record("character", $target))
			ORDER BY score DESC LIMIT $limit
		`, table), map[string]any{
			"vec": queryVec, "limit": limit,
			"observer": observerKey, "target": targetKey,
		})
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			out = append(out, SimilarEdge{
				EdgeID: r.ID, EdgeType: table,
				FromName: r.InName, ToName: r.OutName, Similarity: r.Score,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *PerceptionService) sourceEdgeEmbedding(ctx context.Context, observerID, targetID, edgeType string) ([]float32, error) {
	tables := []string{"perceives", "relates_to"}
	if edgeType == "perceives" || edgeType == "relates_to" {
		tables = []string{edgeType}
	}
	for _, table := range tables {
		type row struct {
			Embedding []float32 `json:"embedding"`
		}
		r, err := db.QueryOne[row](ctx, s.client, fmt.Sprintf(`
			SELECT embedding FROM %s
			WHERE in = type::record("character", $observer)
			  AND out = type::record("character", $target)
			  AND embedding IS NOT NONE
		`, table), map[string]any{
			"observer": strings.TrimPrefix(observerID, "character:"),
			"target":   strings.TrimPrefix(targetID, "character:"),
		})
		if err != nil {
			return nil, err
		}
		if r != nil && len(r.Embedding) > 0 {
			return r.Embedding, nil
		}
	}
	return nil, &db.NotFoundError{EntityType: "relationship edge", ID: observerID + "->" + targetID}
}
