package vectormath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"scaled copies", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"empty", nil, nil, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0, CosineDistance([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 1, CosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 2, CosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(v[1]), 1e-6)
	assert.InDelta(t, 1, L2Norm(v), 1e-6)

	zero := Normalize([]float32{0, 0, 0})
	assert.Equal(t, []float32{0, 0, 0}, zero)
}

func TestArithmetic(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}

	assert.Equal(t, []float32{-3, -3, -3}, Subtract(a, b))
	assert.Equal(t, []float32{5, 7, 9}, Add(a, b))
	assert.Equal(t, []float32{2, 4, 6}, Scale(a, 2))
	assert.Equal(t, []float32{2.5, 3.5, 4.5}, Midpoint(a, b))
}

func TestMean(t *testing.T) {
	vectors := [][]float32{
		{1, 2},
		{3, 4},
		{5, 6},
	}
	assert.Equal(t, []float32{3, 4}, Mean(vectors, 2))
	assert.Equal(t, []float32{0, 0}, Mean(nil, 2))
}

func TestBlendIsUnitLength(t *testing.T) {
	out := Blend([]float32{1, 0}, []float32{0, 1}, 0.7, 0.3)
	assert.InDelta(t, 1, L2Norm(out), 1e-6)
	assert.Greater(t, out[0], out[1])
}

func TestMedian(t *testing.T) {
	assert.Equal(t, float32(0), Median(nil))
	assert.Equal(t, float32(2), Median([]float32{3, 1, 2}))
	assert.Equal(t, float32(2.5), Median([]float32{4, 1, 2, 3}))
	// input must not be mutated
	in := []float32{3, 1, 2}
	Median(in)
	assert.Equal(t, []float32{3, 1, 2}, in)
}
