package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/raphaelgruber/narra-go/internal/db"
)

// MaxDepth bounds BFS depth across analytics operations.
const MaxDepth = 5

// maxInfluencePaths caps the number of recorded propagation paths.
const maxInfluencePaths = 50

// InfluenceEdge is one hop in a propagation path.
type InfluenceEdge struct {
	From         string   `json:"from"`
	FromName     string   `json:"from_name"`
	To           string   `json:"to"`
	ToName       string   `json:"to_name"`
	RelTypes     []string `json:"rel_types"`
	TensionLevel *int     `json:"tension_level,omitempty"`
}

// InfluencePath is one complete propagation route from the source.
type InfluencePath struct {
	Edges    []InfluenceEdge `json:"edges"`
	Hops     int             `json:"hops"`
	Label    string          `json:"label"`
	Strength float64         `json:"strength"`
}

// InfluenceReport is the result of an influence propagation analysis.
type InfluenceReport struct {
	Source        string          `json:"source"`
	SourceName    string          `json:"source_name"`
	KnowledgeFact string          `json:"knowledge_fact,omitempty"`
	Paths         []InfluencePath `json:"paths"`
	Unreachable   []string        `json:"unreachable"`
}

// InfluenceService traces how information or influence spreads from a
// character through outgoing perceives edges.
type InfluenceService struct {
	client *db.Client
}

// NewInfluenceService creates the influence service.
func NewInfluenceService(client *db.Client) *InfluenceService {
	return &InfluenceService{client: client}
}

type influenceEdgeRow struct {
	In           string   `json:"in"`
	InName       string   `json:"in_name"`
	Out          string   `json:"out"`
	OutName      string   `json:"out_name"`
	RelTypes     []string `json:"rel_types"`
	TensionLevel *int     `json:"tension_level"`
}

// Propagate walks outgoing perceives edges from the source, recording
// complete paths up to maxDepth hops.
func (s *InfluenceService) Propagate(ctx context.Context, sourceID, knowledgeFact string, maxDepth int) (*InfluenceReport, error) {
	if maxDepth < 1 {
		maxDepth = 1
	}
	if maxDepth > MaxDepth {
		maxDepth = MaxDepth
	}

	edges, err := db.Query[influenceEdgeRow](ctx, s.client, `
		SELECT <string>in AS in, in.name AS in_name,
			<string>out AS out, out.name AS out_name,
			rel_types, tension_level
		FROM perceives
	`, nil)
	if err != nil {
		return nil, err
	}

	names := map[string]string{}
	outgoing := map[string][]influenceEdgeRow{}
	for _, edge := range edges {
		outgoing[edge.In] = append(outgoing[edge.In], edge)
		names[edge.In] = edge.InName
		names[edge.Out] = edge.OutName
	}

	source := sourceID
	if !strings.Contains(source, ":") {
		source = "character:" + source
	}
	sourceName := names[source]
	if sourceName == "" {
		type nameRow struct {
			Name string `json:"name"`
		}
		row, err := db.QueryOne[nameRow](ctx, s.client,
			`SELECT name FROM type::record("character", $id)`,
			map[string]any{"id": strings.TrimPrefix(source, "character:")})
		if err != nil {
			return nil, err
		}
		if row == nil {
			return nil, &db.NotFoundError{EntityType: "character", ID: sourceID}
		}
		sourceName = row.Name
	}

	report := &InfluenceReport{
		Source:        source,
		SourceName:    sourceName,
		KnowledgeFact: knowledgeFact,
	}

	// Depth-first walk with a per-path visited set so alternative routes
	// through shared nodes are still explored.
	reached := map[string]bool{}
	var walk func(node string, path []InfluenceEdge, visited map[string]bool)
	walk = func(node string, path []InfluenceEdge, visited map[string]bool) {
		if len(report.Paths) >= maxInfluencePaths {
			return
		}
		next := outgoing[node]
		terminal := len(path) >= maxDepth || len(next) == 0

		extended := false
		if !terminal {
			for _, edge := range next {
				if visited[edge.Out] {
					continue
				}
				visited[edge.Out] = true
				reached[edge.Out] = true
				extended = true
				walk(edge.Out, append(path, InfluenceEdge{
					From: edge.In, FromName: edge.InName,
					To: edge.Out, ToName: edge.OutName,
					RelTypes: edge.RelTypes, TensionLevel: edge.TensionLevel,
				}), visited)
				delete(visited, edge.Out)
				if len(report.Paths) >= maxInfluencePaths {
					return
				}
			}
		}

		if len(path) > 0 && (terminal || !extended) {
			recorded := make([]InfluenceEdge, len(path))
			copy(recorded, path)
			report.Paths = append(report.Paths, InfluencePath{
				Edges:    recorded,
				Hops:     len(recorded),
				Label:    strengthLabel(len(recorded)),
				Strength: PathStrength(recorded),
			})
		}
	}
	walk(source, nil, map[string]bool{source: true})

	for id, name := range names {
		if id != source && !reached[id] {
			report.Unreachable = append(report.Unreachable, name)
		}
	}
	sort.Strings(report.Unreachable)
	sort.SliceStable(report.Paths, func(i, j int) bool {
		return report.Paths[i].Strength > report.Paths[j].Strength
	})
	return report, nil
}

func strengthLabel(hops int) string {
	switch {
	case hops <= 1:
		return "direct"
	case hops == 2:
		return "likely"
	default:
		return "possible"
	}
}

// PathStrength scores a propagation path: a hop-count base attenuated per
// edge by tension and relationship type, clamped to [0, 1].
func PathStrength(edges []InfluenceEdge) float64 {
	if len(edges) == 0 {
		return 0
	}
	var strength float64
	switch len(edges) {
	case 1:
		strength = 1.0
	case 2:
		strength = 0.6
	default:
		strength = 0.3
	}
	for _, edge := range edges {
		if edge.TensionLevel != nil && *edge.TensionLevel >= 7 {
			strength *= 0.7
		}
		strength *= relTypeMultiplier(edge.RelTypes)
	}
	if strength < 0 {
		return 0
	}
	if strength > 1 {
		return 1
	}
	return strength
}

// relTypeMultiplier picks the most favorable multiplier among an edge's
// relationship types; an untyped edge gets the unknown default.
func relTypeMultiplier(relTypes []string) float64 {
	best := 0.0
	for _, relType := range relTypes {
		var m float64
		switch strings.ToLower(relType) {
		case "mentor", "family":
			m = 1.0
		case "ally", "friend":
			m = 0.9
		case "professional":
			m = 0.7
		case "rivalry", "rival":
			m = 0.4
		default:
			m = 0.85
		}
		if m > best {
			best = m
		}
	}
	if best == 0 {
		return 0.85
	}
	return best
}

// Summary renders a short human-readable digest of the report.
func (r *InfluenceReport) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Influence propagation from %s: %d paths, %d unreachable.",
		r.SourceName, len(r.Paths), len(r.Unreachable))
	if r.KnowledgeFact != "" {
		fmt.Fprintf(&b, " Fact: %s", r.KnowledgeFact)
	}
	return b.String()
}
