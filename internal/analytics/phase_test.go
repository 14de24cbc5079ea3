package analytics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionalEncoding(t *testing.T) {
	enc := PositionalEncoding(0)
	require.Len(t, enc, temporalEncodingDim)
	for i := 0; i < temporalEncodingDim/2; i++ {
		assert.InDelta(t, 0, enc[2*i], 1e-9)
		assert.InDelta(t, 1, enc[2*i+1], 1e-9)
	}

	// nearby sequences encode closer than distant ones
	a := PositionalEncoding(10)
	b := PositionalEncoding(11)
	c := PositionalEncoding(500)
	assert.Less(t, euclid(a, b), euclid(a, c))
}

func euclid(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func TestCompositeVector(t *testing.T) {
	content := []float32{1, 0, 0}
	neighborhood := []float32{0, 1, 0}
	temporal := PositionalEncoding(5)

	out := CompositeVector(content, neighborhood, temporal, DefaultPhaseWeights)
	require.Len(t, out, 2*len(content)+temporalEncodingDim)

	var norm float64
	for _, x := range out {
		norm += x * x
	}
	assert.InDelta(t, 1, math.Sqrt(norm), 1e-9)
}

func TestCompositeVectorMissingSegments(t *testing.T) {
	content := []float32{1, 1}
	out := CompositeVector(content, nil, nil, DefaultPhaseWeights)
	require.Len(t, out, 2*len(content)+temporalEncodingDim)

	// neighborhood and temporal segments are zero-filled
	for _, x := range out[len(content):] {
		assert.Zero(t, x)
	}
}

func TestDefaultPhaseWeights(t *testing.T) {
	assert.InDelta(t, 1.0,
		DefaultPhaseWeights.Content+DefaultPhaseWeights.Neighborhood+DefaultPhaseWeights.Temporal,
		1e-9)
}
