package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pathGraph builds a -> b -> c.
func pathGraph() *Graph {
	return &Graph{
		Nodes: []string{"character:a", "character:b", "character:c"},
		Names: map[string]string{
			"character:a": "Anna",
			"character:b": "Boris",
			"character:c": "Clara",
		},
		Adjacency: map[string][]string{
			"character:a": {"character:b"},
			"character:b": {"character:c"},
		},
		Incoming: map[string][]string{
			"character:b": {"character:a"},
			"character:c": {"character:b"},
		},
	}
}

func TestComputeMetricsPathGraph(t *testing.T) {
	metrics := ComputeMetrics(pathGraph(), MetricDegree)
	require.Len(t, metrics, 3)

	byID := map[string]NodeMetrics{}
	for _, m := range metrics {
		byID[m.ID] = m
	}

	// the middle node carries both edges and all shortest paths
	assert.Equal(t, 1.0, byID["character:b"].Degree)
	assert.Equal(t, 0.5, byID["character:a"].Degree)
	assert.Greater(t, byID["character:b"].Betweenness, byID["character:a"].Betweenness)

	// sorted by degree, middle node first
	assert.Equal(t, "character:b", metrics[0].ID)
}

func TestComputeMetricsEmptyGraph(t *testing.T) {
	g := &Graph{Names: map[string]string{}, Adjacency: map[string][]string{}, Incoming: map[string][]string{}}
	assert.Empty(t, ComputeMetrics(g, MetricDegree))
}

func TestDeriveRole(t *testing.T) {
	tests := []struct {
		name        string
		degree      float64
		betweenness float64
		want        string
	}{
		{"isolated", 0, 0, "isolated"},
		{"hub", 0.8, 0.1, "hub"},
		{"bridge", 0.3, 0.5, "bridge"},
		{"peripheral", 0.1, 0.05, "peripheral"},
		{"connected", 0.3, 0.2, "connected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveRole(tt.degree, tt.betweenness))
		})
	}
}

func TestRestrictLimitsHops(t *testing.T) {
	g := &Graph{
		Nodes: []string{"character:a", "character:b", "character:c", "character:d", "character:e"},
		Names: map[string]string{},
		Adjacency: map[string][]string{
			"character:a": {"character:b"},
			"character:b": {"character:c"},
			"character:c": {"character:d"},
			"character:d": {"character:e"},
		},
		Incoming: map[string][]string{
			"character:b": {"character:a"},
			"character:c": {"character:b"},
			"character:d": {"character:c"},
			"character:e": {"character:d"},
		},
	}

	sub := g.restrict("character:a", 2)
	assert.ElementsMatch(t,
		[]string{"character:a", "character:b", "character:c"}, sub.Nodes)

	// restriction follows edges in both directions
	sub = g.restrict("character:c", 1)
	assert.ElementsMatch(t,
		[]string{"character:b", "character:c", "character:d"}, sub.Nodes)
}
