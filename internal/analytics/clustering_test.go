package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampK(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		n         int
		want      int
	}{
		{"explicit request", 3, 10, 3},
		{"default from n", 0, 8, 2},
		{"default larger n", 0, 50, 5},
		{"floor of two", 1, 10, 2},
		{"capped at n-1", 9, 5, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClampK(tt.requested, tt.n))
		})
	}
}

func TestKMeansSeparatesObviousGroups(t *testing.T) {
	vectors := [][]float64{
		{0, 0}, {0.1, 0}, {0, 0.1},
		{10, 10}, {10.1, 10}, {10, 10.1},
	}
	assignments, centroids := KMeans(vectors, 2)

	require.Len(t, assignments, 6)
	require.Len(t, centroids, 2)
	assert.Equal(t, assignments[0], assignments[1])
	assert.Equal(t, assignments[0], assignments[2])
	assert.Equal(t, assignments[3], assignments[4])
	assert.Equal(t, assignments[3], assignments[5])
	assert.NotEqual(t, assignments[0], assignments[3])
}

func TestClusterEntitiesTooFew(t *testing.T) {
	entities := []EmbeddedEntity{
		{ID: "character:a", Embedding: []float32{1, 0}},
		{ID: "character:b", Embedding: []float32{0, 1}},
	}
	_, err := ClusterEntities(entities, 2)
	assert.Error(t, err)
}

func TestClusterEntitiesGroupsAndLabels(t *testing.T) {
	entities := []EmbeddedEntity{
		{ID: "character:a", EntityType: "character", Name: "Anna", Embedding: []float32{0, 0}},
		{ID: "character:b", EntityType: "character", Name: "Boris", Embedding: []float32{0.1, 0}},
		{ID: "location:c", EntityType: "location", Name: "Cafe", Embedding: []float32{10, 10}},
		{ID: "location:d", EntityType: "location", Name: "Dock", Embedding: []float32{10.1, 10}},
	}

	clusters, err := ClusterEntities(entities, 2)
	require.NoError(t, err)
	require.Len(t, clusters, 2)

	for _, cluster := range clusters {
		assert.Equal(t, len(cluster.Members), cluster.MemberCount)
		assert.NotEmpty(t, cluster.Label)
		// members sorted by centrality, best first
		for i := 1; i < len(cluster.Members); i++ {
			assert.GreaterOrEqual(t,
				cluster.Members[i-1].Centrality, cluster.Members[i].Centrality)
		}
	}
}
