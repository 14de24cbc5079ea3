package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hits(ids ...string) []SearchResult {
	out := make([]SearchResult, 0, len(ids))
	for _, id := range ids {
		out = append(out, SearchResult{ID: id, EntityType: "character", Name: id})
	}
	return out
}

func resultIDs(results []SearchResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.ID)
	}
	return out
}

func TestFuseRRFRanksSharedHitsFirst(t *testing.T) {
	text := hits("character:a", "character:b", "character:c")
	semantic := hits("character:b", "character:d")

	fused := FuseRRF(10, text, semantic)

	// b appears in both lists, so it outranks the single-list top hits.
	require.NotEmpty(t, fused)
	assert.Equal(t, "character:b", fused[0].ID)
	assert.InDelta(t, 1.0, fused[0].Score, 1e-9)
	assert.ElementsMatch(t,
		[]string{"character:a", "character:b", "character:c", "character:d"},
		resultIDs(fused))
}

func TestFuseRRFNormalizesScores(t *testing.T) {
	fused := FuseRRF(10, hits("character:a", "character:b"))
	require.Len(t, fused, 2)
	assert.InDelta(t, 1.0, fused[0].Score, 1e-9)
	for _, r := range fused {
		assert.LessOrEqual(t, r.Score, 1.0)
		assert.Greater(t, r.Score, 0.0)
	}
}

func TestFuseRRFHonorsLimit(t *testing.T) {
	fused := FuseRRF(2, hits("character:a", "character:b", "character:c"))
	assert.Len(t, fused, 2)
}

func TestFuseRRFStableTiebreak(t *testing.T) {
	// Equal scores fall back to first-seen order.
	fused := FuseRRF(10, hits("character:a"), hits("character:b"))
	require.Len(t, fused, 2)
	assert.Equal(t, "character:a", fused[0].ID)
	assert.Equal(t, "character:b", fused[1].ID)
}

func TestFuseRRFEmpty(t *testing.T) {
	assert.Empty(t, FuseRRF(10))
	assert.Empty(t, FuseRRF(10, nil, nil))
}
