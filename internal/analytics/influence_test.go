package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(n int) *int { return &n }

func TestPathStrength(t *testing.T) {
	family := InfluenceEdge{RelTypes: []string{"family"}}
	rival := InfluenceEdge{RelTypes: []string{"rivalry"}}
	tense := InfluenceEdge{RelTypes: []string{"family"}, TensionLevel: intPtr(8)}

	tests := []struct {
		name  string
		edges []InfluenceEdge
		want  float64
	}{
		{"empty path", nil, 0},
		{"single family hop", []InfluenceEdge{family}, 1.0},
		{"two family hops", []InfluenceEdge{family, family}, 0.6},
		{"three family hops", []InfluenceEdge{family, family, family}, 0.3},
		{"single rivalry hop", []InfluenceEdge{rival}, 0.4},
		{"tension attenuates", []InfluenceEdge{tense}, 0.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, PathStrength(tt.edges), 1e-9)
		})
	}
}

func TestPathStrengthClamped(t *testing.T) {
	got := PathStrength([]InfluenceEdge{{RelTypes: []string{"family"}}})
	assert.LessOrEqual(t, got, 1.0)
	assert.GreaterOrEqual(t, got, 0.0)
}

func TestRelTypeMultiplier(t *testing.T) {
	assert.InDelta(t, 1.0, relTypeMultiplier([]string{"family"}), 1e-9)
	assert.InDelta(t, 0.9, relTypeMultiplier([]string{"ally"}), 1e-9)
	assert.InDelta(t, 0.4, relTypeMultiplier([]string{"rival"}), 1e-9)
	assert.InDelta(t, 0.85, relTypeMultiplier(nil), 1e-9)
	// the most favorable type wins
	assert.InDelta(t, 1.0, relTypeMultiplier([]string{"rival", "mentor"}), 1e-9)
}

func TestStrengthLabel(t *testing.T) {
	assert.Equal(t, "direct", strengthLabel(1))
	assert.Equal(t, "likely", strengthLabel(2))
	assert.Equal(t, "possible", strengthLabel(3))
}
