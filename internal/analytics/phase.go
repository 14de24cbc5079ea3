package analytics

import (
	"context"
	"math"
	"sort"

	"github.com/raphaelgruber/narra-go/internal/db"
	"github.com/raphaelgruber/narra-go/internal/vectormath"
)

const (
	// temporalEncodingDim is the size of the positional encoding segment.
	temporalEncodingDim = 8
	// transitionTolerance is the soft-membership slack: an entity also
	// belongs to a phase whose centroid is within 20% of its best distance.
	transitionTolerance = 0.2
)

// PhaseWeights blend the composite similarity terms.
type PhaseWeights struct {
	Content      float64 `json:"content"`
	Neighborhood float64 `json:"neighborhood"`
	Temporal     float64 `json:"temporal"`
}

// DefaultPhaseWeights is the standard blend.
var DefaultPhaseWeights = PhaseWeights{Content: 0.6, Neighborhood: 0.25, Temporal: 0.15}

// Phase is one detected narrative phase.
type Phase struct {
	ClusterID        int             `json:"cluster_id"`
	Label            string          `json:"label"`
	Members          []ClusterMember `json:"members"`
	EntityTypeCounts map[string]int  `json:"entity_type_counts"`
	SequenceRange    []int64         `json:"sequence_range,omitempty"`
	centroid         []float64
}

// PhaseTransition is an entity softly belonging to multiple phases.
type PhaseTransition struct {
	EntityID       string  `json:"entity_id"`
	Name           string  `json:"name"`
	Phases         []int   `json:"phases"`
	BridgeStrength float64 `json:"bridge_strength"`
}

// PhaseReport is the output of a phase detection run.
type PhaseReport struct {
	Phases                        []Phase           `json:"phases"`
	Transitions                   []PhaseTransition `json:"transitions"`
	EntitiesWithoutTemporalAnchor int               `json:"entities_without_temporal_anchor"`
}

// PhaseService detects narrative phases over weighted composite vectors.
type PhaseService struct {
	client  *db.Client
	cluster *ClusterService
}

// NewPhaseService creates the phase detection service.
func NewPhaseService(client *db.Client) *PhaseService {
	return &PhaseService{client: client, cluster: NewClusterService(client)}
}

// PositionalEncoding renders a sequence number as an 8-dim sin/cos vector
// over four frequencies.
func PositionalEncoding(sequence int64) []float64 {
	out := make([]float64, temporalEncodingDim)
	for i := 0; i < temporalEncodingDim/2; i++ {
		freq := math.Pow(10000, -2*float64(i)/float64(temporalEncodingDim))
		out[2*i] = math.Sin(float64(sequence) * freq)
		out[2*i+1] = math.Cos(float64(sequence) * freq)
	}
	return out
}

// CompositeVector assembles the weighted phase vector: content segment,
// neighborhood segment, positional segment, normalized as one vector.
// A nil neighborhood or temporal part contributes a zero segment.
func CompositeVector(content []float32, neighborhood []float32, temporal []float64, weights PhaseWeights) []float64 {
	dim := len(content)
	out := make([]float64, 0, 2*dim+temporalEncodingDim)
	for _, x := range content {
		out = append(out, weights.Content*float64(x))
	}
	for i := 0; i < dim; i++ {
		if i < len(neighborhood) {
			out = append(out, weights.Neighborhood*float64(neighborhood[i]))
		} else {
			out = append(out, 0)
		}
	}
	for i := 0; i < temporalEncodingDim; i++ {
		if i < len(temporal) {
			out = append(out, weights.Temporal*temporal[i])
		} else {
			out = append(out, 0)
		}
	}

	var norm float64
	for _, x := range out {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range out {
			out[i] /= norm
		}
	}
	return out
}

type phaseInput struct {
	entity    EmbeddedEntity
	composite []float64
	sequence  *int64
}

// Detect runs phase detection over all embedded entities. Zero weights fall
// back to the defaults; requestedK of 0 means automatic.
func (s *PhaseService) Detect(ctx context.Context, requestedK int, weights PhaseWeights) (*PhaseReport, error) {
	if weights == (PhaseWeights{}) {
		weights = DefaultPhaseWeights
	}

	entities, err := s.cluster.LoadEmbedded(ctx)
	if err != nil {
		return nil, err
	}
	if len(entities) < 3 {
		return nil, db.Validationf("phase detection needs at least 3 embedded entities, have %d", len(entities))
	}

	neighborhoods, err := s.neighborhoodMeans(ctx)
	if err != nil {
		return nil, err
	}
	anchors, err := s.temporalAnchors(ctx)
	if err != nil {
		return nil, err
	}

	report := &PhaseReport{}
	inputs := make([]phaseInput, len(entities))
	vectors := make([][]float64, len(entities))
	for i, entity := range entities {
		input := phaseInput{entity: entity}
		var temporal []float64
		if seq, ok := anchors[entity.ID]; ok {
			input.sequence = &seq
			temporal = PositionalEncoding(seq)
		} else {
			report.EntitiesWithoutTemporalAnchor++
		}
		input.composite = CompositeVector(entity.Embedding, neighborhoods[entity.ID], temporal, weights)
		inputs[i] = input
		vectors[i] = input.composite
	}

	k := ClampK(requestedK, len(inputs))
	assignments, centroids := KMeans(vectors, k)

	phases := make([]Phase, k)
	for c := range phases {
		phases[c] = Phase{ClusterID: c, EntityTypeCounts: map[string]int{}, centroid: centroids[c]}
	}
	for i, input := range inputs {
		c := assignments[i]
		distance := vectormath.EuclideanDistance(vectors[i], centroids[c])
		phases[c].Members = append(phases[c].Members, ClusterMember{
			ID:         input.entity.ID,
			EntityType: input.entity.EntityType,
			Name:       input.entity.Name,
			Centrality: 1 / (1 + distance),
		})
		phases[c].EntityTypeCounts[input.entity.EntityType]++
		if input.sequence != nil {
			phases[c].SequenceRange = extendRange(phases[c].SequenceRange, *input.sequence)
		}
	}

	for c := range phases {
		if len(phases[c].Members) == 0 {
			continue
		}
		sort.SliceStable(phases[c].Members, func(i, j int) bool {
			return phases[c].Members[i].Centrality > phases[c].Members[j].Centrality
		})
		phases[c].Label = clusterLabel(phases[c].Members)
		report.Phases = append(report.Phases, phases[c])
	}
	sort.SliceStable(report.Phases, func(i, j int) bool {
		return len(report.Phases[i].Members) > len(report.Phases[j].Members)
	})

	report.Transitions = detectTransitions(inputs, report.Phases)
	return report, nil
}

// detectTransitions finds entities softly belonging to two or more phases
// and ranks them by bridge strength.
func detectTransitions(inputs []phaseInput, phases []Phase) []PhaseTransition {
	var transitions []PhaseTransition
	for _, input := range inputs {
		distances := make([]float64, len(phases))
		best := math.Inf(1)
		for c, phase := range phases {
			distances[c] = vectormath.EuclideanDistance(input.composite, phase.centroid)
			if distances[c] < best {
				best = distances[c]
			}
		}

		var memberOf []int
		similarities := make([]float64, 0, len(phases))
		for c, d := range distances {
			if d <= best*(1+transitionTolerance) {
				memberOf = append(memberOf, phases[c].ClusterID)
				similarities = append(similarities, 1/(1+d))
			}
		}
		if len(memberOf) < 2 {
			continue
		}
		sort.Sort(sort.Reverse(sort.Float64Slice(similarities)))
		transitions = append(transitions, PhaseTransition{
			EntityID:       input.entity.ID,
			Name:           input.entity.Name,
			Phases:         memberOf,
			BridgeStrength: similarities[1] / similarities[0],
		})
	}
	sort.SliceStable(transitions, func(i, j int) bool {
		return transitions[i].BridgeStrength > transitions[j].BridgeStrength
	})
	return transitions
}

// neighborhoodMeans computes, per entity, the mean embedding of the scenes
// and events it participates in.
func (s *PhaseService) neighborhoodMeans(ctx context.Context) (map[string][]float32, error) {
	type edgeEmbRow struct {
		In  string    `json:"in"`
		Emb []float32 `json:"emb"`
	}
	sums := map[string][]float64{}
	counts := map[string]int{}
	for _, table := range []string{"participates_in", "involved_in"} {
		rows, err := db.Query[edgeEmbRow](ctx, s.client,
			`SELECT <string>in AS in, out.embedding AS emb FROM `+table+` WHERE out.embedding IS NOT NONE`, nil)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if sums[row.In] == nil {
				sums[row.In] = make([]float64, len(row.Emb))
			}
			for i, x := range row.Emb {
				if i < len(sums[row.In]) {
					sums[row.In][i] += float64(x)
				}
			}
			counts[row.In]++
		}
	}

	out := make(map[string][]float32, len(sums))
	for id, sum := range sums {
		mean := make([]float32, len(sum))
		for i, x := range sum {
			mean[i] = float32(x / float64(counts[id]))
		}
		out[id] = mean
	}
	return out, nil
}

// temporalAnchors resolves a sequence number per entity: events carry their
// own, scenes inherit their event's, characters average the sequences of
// events they are involved in.
func (s *PhaseService) temporalAnchors(ctx context.Context) (map[string]int64, error) {
	out := map[string]int64{}

	type seqRow struct {
		ID       string `json:"id"`
		Sequence *int64 `json:"sequence"`
	}
	events, err := db.Query[seqRow](ctx, s.client,
		`SELECT <string>id AS id, sequence FROM event`, nil)
	if err != nil {
		return nil, err
	}
	for _, row := range events {
		if row.Sequence != nil {
			out[row.ID] = *row.Sequence
		}
	}

	scenes, err := db.Query[seqRow](ctx, s.client,
		`SELECT <string>id AS id, event.sequence AS sequence FROM scene`, nil)
	if err != nil {
		return nil, err
	}
	for _, row := range scenes {
		if row.Sequence != nil {
			out[row.ID] = *row.Sequence
		}
	}

	type involvementRow struct {
		In       string `json:"in"`
		Sequence *int64 `json:"sequence"`
	}
	involvements, err := db.Query[involvementRow](ctx, s.client,
		`SELECT <string>in AS in, out.sequence AS sequence FROM involved_in`, nil)
	if err != nil {
		return nil, err
	}
	sums := map[string]int64{}
	counts := map[string]int64{}
	for _, row := range involvements {
		if row.Sequence == nil {
			continue
		}
		sums[row.In] += *row.Sequence
		counts[row.In]++
	}
	for id, sum := range sums {
		out[id] = sum / counts[id]
	}
	return out, nil
}

// SavePhases persists a detection run, replacing any previous saved set.
func (s *PhaseService) SavePhases(ctx context.Context, phases []Phase) error {
	if err := s.client.Exec(ctx, "DELETE saved_phase", nil); err != nil {
		return err
	}
	for _, phase := range phases {
		members := make([]string, len(phase.Members))
		for i, member := range phase.Members {
			members[i] = member.ID
		}
		err := s.client.Exec(ctx, `
			CREATE saved_phase SET cluster_id = $cluster, label = $label,
				members = $members, entity_type_counts = $counts,
				sequence_range = $range, created_at = time::now()
		`, map[string]any{
			"cluster": phase.ClusterID,
			"label":   phase.Label,
			"members": members,
			"counts":  phase.EntityTypeCounts,
			"range":   phase.SequenceRange,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// LoadPhases reads the last saved detection run without recomputation.
func (s *PhaseService) LoadPhases(ctx context.Context) ([]Phase, error) {
	type savedRow struct {
		ClusterID        int            `json:"cluster_id"`
		Label            string         `json:"label"`
		Members          []string       `json:"members"`
		EntityTypeCounts map[string]int `json:"entity_type_counts"`
		SequenceRange    []int64        `json:"sequence_range"`
	}
	rows, err := db.Query[savedRow](ctx, s.client,
		`SELECT cluster_id, label, members, entity_type_counts, sequence_range
		FROM saved_phase ORDER BY cluster_id`, nil)
	if err != nil {
		return nil, err
	}
	phases := make([]Phase, 0, len(rows))
	for _, row := range rows {
		phase := Phase{
			ClusterID:        row.ClusterID,
			Label:            row.Label,
			EntityTypeCounts: row.EntityTypeCounts,
			SequenceRange:    row.SequenceRange,
		}
		for _, id := range row.Members {
			phase.Members = append(phase.Members, ClusterMember{ID: id})
		}
		phases = append(phases, phase)
	}
	return phases, nil
}

func extendRange(current []int64, seq int64) []int64 {
	if len(current) != 2 {
		return []int64{seq, seq}
	}
	if seq < current[0] {
		current[0] = seq
	}
	if seq > current[1] {
		current[1] = seq
	}
	return current
}
