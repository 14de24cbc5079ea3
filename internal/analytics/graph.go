package analytics

import (
	"context"
	"sort"

	"github.com/raphaelgruber/narra-go/internal/db"
)

// scopeHops bounds the neighborhood when a scope entity is given.
const scopeHops = 3

// GraphMetric names a centrality measure.
type GraphMetric string

const (
	MetricDegree      GraphMetric = "degree"
	MetricBetweenness GraphMetric = "betweenness"
	MetricCloseness   GraphMetric = "closeness"
)

// NodeMetrics carries the computed centralities and derived role for one
// character.
type NodeMetrics struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Degree      float64 `json:"degree"`
	Betweenness float64 `json:"betweenness"`
	Closeness   float64 `json:"closeness"`
	Role        string  `json:"role"`
}

// Graph is the directed character graph: merged perceives and relates_to
// edges, deduped on (from, to).
type Graph struct {
	Nodes []string
	Names map[string]string
	// Adjacency holds outgoing neighbors per node.
	Adjacency map[string][]string
	// Incoming holds reverse edges, for degree computation.
	Incoming map[string][]string
}

// GraphService computes structural metrics over the character graph.
type GraphService struct {
	client *db.Client
}

// NewGraphService creates the graph analytics service.
func NewGraphService(client *db.Client) *GraphService {
	return &GraphService{client: client}
}

type graphEdgeRow struct {
	In  string `json:"in"`
	Out string `json:"out"`
}

type graphNodeRow struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// LoadGraph reads all characters and the merged edge set. When scopeID is
// non-empty the graph is restricted to nodes within three undirected hops
// of the scope entity.
func (s *GraphService) LoadGraph(ctx context.Context, scopeID string) (*Graph, error) {
	nodes, err := db.Query[graphNodeRow](ctx, s.client,
		`SELECT <string>id AS id, name FROM character ORDER BY name`, nil)
	if err != nil {
		return nil, err
	}

	type edgeKey struct{ from, to string }
	seen := map[edgeKey]bool{}
	graph := &Graph{
		Names:     map[string]string{},
		Adjacency: map[string][]string{},
		Incoming:  map[string][]string{},
	}
	for _, node := range nodes {
		graph.Nodes = append(graph.Nodes, node.ID)
		graph.Names[node.ID] = node.Name
	}

	for _, table := range []string{"perceives", "relates_to"} {
		rows, err := db.Query[graphEdgeRow](ctx, s.client,
			`SELECT <string>in AS in, <string>out AS out FROM `+table, nil)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			key := edgeKey{row.In, row.Out}
			if seen[key] || row.In == row.Out {
				continue
			}
			seen[key] = true
			graph.Adjacency[row.In] = append(graph.Adjacency[row.In], row.Out)
			graph.Incoming[row.Out] = append(graph.Incoming[row.Out], row.In)
		}
	}

	if scopeID != "" {
		graph = graph.restrict(scopeID, scopeHops)
	}
	return graph, nil
}

// restrict returns the subgraph of nodes within maxHops undirected hops of
// the start node.
func (g *Graph) restrict(start string, maxHops int) *Graph {
	keep := map[string]bool{start: true}
	frontier := []string{start}
	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		var next []string
		for _, node := range frontier {
			for _, neighbor := range append(append([]string{}, g.Adjacency[node]...), g.Incoming[node]...) {
				if !keep[neighbor] {
					keep[neighbor] = true
					next = append(next, neighbor)
				}
			}
		}
		frontier = next
	}

	out := &Graph{
		Names:     map[string]string{},
		Adjacency: map[string][]string{},
		Incoming:  map[string][]string{},
	}
	for _, node := range g.Nodes {
		if !keep[node] {
			continue
		}
		out.Nodes = append(out.Nodes, node)
		out.Names[node] = g.Names[node]
		for _, neighbor := range g.Adjacency[node] {
			if keep[neighbor] {
				out.Adjacency[node] = append(out.Adjacency[node], neighbor)
				out.Incoming[neighbor] = append(out.Incoming[neighbor], node)
			}
		}
	}
	return out
}

// Centrality computes metrics for every node, sorted by the first requested
// metric with input-order tiebreak.
func (s *GraphService) Centrality(ctx context.Context, scopeID string, sortBy GraphMetric) ([]NodeMetrics, error) {
	graph, err := s.LoadGraph(ctx, scopeID)
	if err != nil {
		return nil, err
	}
	return ComputeMetrics(graph, sortBy), nil
}

// ComputeMetrics derives degree, betweenness, closeness, and narrative role
// for every node in the graph.
func ComputeMetrics(g *Graph, sortBy GraphMetric) []NodeMetrics {
	n := len(g.Nodes)
	degree := map[string]float64{}
	if n > 1 {
		for _, node := range g.Nodes {
			degree[node] = float64(len(g.Adjacency[node])+len(g.Incoming[node])) / float64(n-1)
		}
	}
	betweenness := brandesBetweenness(g)
	closeness := closenessCentrality(g)

	metrics := make([]NodeMetrics, 0, n)
	for _, node := range g.Nodes {
		m := NodeMetrics{
			ID:          node,
			Name:        g.Names[node],
			Degree:      degree[node],
			Betweenness: betweenness[node],
			Closeness:   closeness[node],
		}
		m.Role = DeriveRole(m.Degree, m.Betweenness)
		metrics = append(metrics, m)
	}

	sort.SliceStable(metrics, func(i, j int) bool {
		switch sortBy {
		case MetricBetweenness:
			return metrics[i].Betweenness > metrics[j].Betweenness
		case MetricCloseness:
			return metrics[i].Closeness > metrics[j].Closeness
		default:
			return metrics[i].Degree > metrics[j].Degree
		}
	})
	return metrics
}

// DeriveRole maps normalized centralities to a narrative role.
func DeriveRole(degree, betweenness float64) string {
	switch {
	case degree == 0:
		return "isolated"
	case degree > 0.5:
		return "hub"
	case betweenness > 0.3 && degree < 0.5:
		return "bridge"
	case degree < 0.2 && betweenness < 0.1:
		return "peripheral"
	default:
		return "connected"
	}
}

// brandesBetweenness computes normalized directed betweenness centrality.
func brandesBetweenness(g *Graph) map[string]float64 {
	centrality := make(map[string]float64, len(g.Nodes))
	for _, node := range g.Nodes {
		centrality[node] = 0
	}

	for _, source := range g.Nodes {
		stack := make([]string, 0, len(g.Nodes))
		predecessors := map[string][]string{}
		sigma := map[string]float64{source: 1}
		distance := map[string]int{source: 0}

		queue := []string{source}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			stack = append(stack, v)
			for _, w := range g.Adjacency[v] {
				if _, visited := distance[w]; !visited {
					distance[w] = distance[v] + 1
					queue = append(queue, w)
				}
				if distance[w] == distance[v]+1 {
					sigma[w] += sigma[v]
					predecessors[w] = append(predecessors[w], v)
				}
			}
		}

		delta := map[string]float64{}
		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range predecessors[w] {
				delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
			}
			if w != source {
				centrality[w] += delta[w]
			}
		}
	}

	// Normalize for directed graphs: divide by (n-1)(n-2).
	n := float64(len(g.Nodes))
	if n > 2 {
		scale := 1 / ((n - 1) * (n - 2))
		for node := range centrality {
			centrality[node] *= scale
		}
	}
	return centrality
}

// closenessCentrality computes normalized directed closeness, using the
// reachable-set correction for disconnected graphs.
func closenessCentrality(g *Graph) map[string]float64 {
	n := len(g.Nodes)
	out := make(map[string]float64, n)
	for _, source := range g.Nodes {
		distance := map[string]int{source: 0}
		queue := []string{source}
		total := 0
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			for _, w := range g.Adjacency[v] {
				if _, visited := distance[w]; !visited {
					distance[w] = distance[v] + 1
					total += distance[w]
					queue = append(queue, w)
				}
			}
		}
		reachable := len(distance) - 1
		if reachable == 0 || total == 0 {
			out[source] = 0
			continue
		}
		out[source] = float64(reachable) / float64(total) * float64(reachable) / float64(n-1)
	}
	return out
}
