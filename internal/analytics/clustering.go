package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/raphaelgruber/narra-go/internal/db"
	"github.com/raphaelgruber/narra-go/internal/models"
	"github.com/raphaelgruber/narra-go/internal/vectormath"
)

const (
	kmeansMaxIterations = 300
	kmeansTolerance     = 1e-4
)

// ClusterMember is one entity assigned to a cluster.
type ClusterMember struct {
	ID         string  `json:"id"`
	EntityType string  `json:"entity_type"`
	Name       string  `json:"name"`
	Centrality float64 `json:"centrality"`
}

// Cluster is one thematic group.
type Cluster struct {
	Label       string          `json:"label"`
	MemberCount int             `json:"member_count"`
	Members     []ClusterMember `json:"members"`
	Centroid    []float64       `json:"-"`
}

// ClusterService groups embeddable entities by embedding similarity.
type ClusterService struct {
	client *db.Client
}

// NewClusterService creates the clustering service.
func NewClusterService(client *db.Client) *ClusterService {
	return &ClusterService{client: client}
}

// EmbeddedEntity is an entity with its vector, the clustering input unit.
type EmbeddedEntity struct {
	ID         string
	EntityType string
	Name       string
	Embedding  []float32
}

// LoadEmbedded fetches all entities carrying embeddings across the
// embeddable tables.
func (s *ClusterService) LoadEmbedded(ctx context.Context) ([]EmbeddedEntity, error) {
	type row struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		Embedding []float32 `json:"embedding"`
	}
	var out []EmbeddedEntity
	for _, table := range models.EmbeddableTypes {
		rows, err := db.Query[row](ctx, s.client, fmt.Sprintf(`
			SELECT <string>id AS id, %s AS name, embedding
			FROM %s WHERE embedding IS NOT NONE
		`, displayField(table), table), nil)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			out = append(out, EmbeddedEntity{
				ID: r.ID, EntityType: string(table), Name: r.Name, Embedding: r.Embedding,
			})
		}
	}
	return out, nil
}

// Thematic clusters all embedded entities; requestedK of 0 means automatic.
func (s *ClusterService) Thematic(ctx context.Context, requestedK int) ([]Cluster, error) {
	entities, err := s.LoadEmbedded(ctx)
	if err != nil {
		return nil, err
	}
	return ClusterEntities(entities, requestedK)
}

// ClusterEntities runs k-means over the entities' embeddings. Fewer than
// three embedded entities is an error.
func ClusterEntities(entities []EmbeddedEntity, requestedK int) ([]Cluster, error) {
	n := len(entities)
	if n < 3 {
		return nil, db.Validationf("clustering needs at least 3 embedded entities, have %d", n)
	}

	k := ClampK(requestedK, n)
	vectors := make([][]float64, n)
	for i, entity := range entities {
		vectors[i] = toFloat64(entity.Embedding)
	}

	assignments, centroids := KMeans(vectors, k)

	clusters := make([]Cluster, k)
	for i := range clusters {
		clusters[i].Centroid = centroids[i]
	}
	for i, entity := range entities {
		c := assignments[i]
		distance := vectormath.EuclideanDistance(vectors[i], centroids[c])
		clusters[c].Members = append(clusters[c].Members, ClusterMember{
			ID:         entity.ID,
			EntityType: entity.EntityType,
			Name:       entity.Name,
			Centrality: 1 / (1 + distance),
		})
	}

	out := clusters[:0]
	for _, cluster := range clusters {
		if len(cluster.Members) == 0 {
			continue
		}
		sort.SliceStable(cluster.Members, func(i, j int) bool {
			return cluster.Members[i].Centrality > cluster.Members[j].Centrality
		})
		cluster.MemberCount = len(cluster.Members)
		cluster.Label = clusterLabel(cluster.Members)
		out = append(out, cluster)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MemberCount > out[j].MemberCount
	})
	return out, nil
}

// ClampK resolves the cluster count: requested, or ceil(sqrt(n/2)),
// clamped to [2, n-1].
func ClampK(requested, n int) int {
	k := requested
	if k <= 0 {
		k = int(math.Ceil(math.Sqrt(float64(n) / 2)))
	}
	if k < 2 {
		k = 2
	}
	if k > n-1 {
		k = n - 1
	}
	return k
}

// KMeans clusters vectors into k groups, returning per-vector assignments
// and final centroids. Deterministic: initial centroids are evenly spaced
// over the input order.
func KMeans(vectors [][]float64, k int) ([]int, [][]float64) {
	n := len(vectors)
	dim := len(vectors[0])

	centroids := make([][]float64, k)
	for i := range centroids {
		centroids[i] = append([]float64(nil), vectors[i*n/k]...)
	}

	assignments := make([]int, n)
	for iter := 0; iter < kmeansMaxIterations; iter++ {
		for i, vector := range vectors {
			best, bestDistance := 0, math.Inf(1)
			for c, centroid := range centroids {
				if d := vectormath.EuclideanDistance(vector, centroid); d < bestDistance {
					best, bestDistance = c, d
				}
			}
			assignments[i] = best
		}

		shift := 0.0
		counts := make([]int, k)
		sums := make([][]float64, k)
		for i := range sums {
			sums[i] = make([]float64, dim)
		}
		for i, vector := range vectors {
			c := assignments[i]
			counts[c]++
			for d, v := range vector {
				sums[c][d] += v
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			updated := make([]float64, dim)
			for d := range updated {
				updated[d] = sums[c][d] / float64(counts[c])
			}
			shift += vectormath.EuclideanDistance(centroids[c], updated)
			centroids[c] = updated
		}
		if shift < kmeansTolerance {
			break
		}
	}
	return assignments, centroids
}

// clusterLabel joins the three highest-centrality member names.
func clusterLabel(members []ClusterMember) string {
	names := make([]string, 0, 3)
	for _, member := range members {
		names = append(names, member.Name)
		if len(names) == 3 {
			break
		}
	}
	return strings.Join(names, " / ")
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
