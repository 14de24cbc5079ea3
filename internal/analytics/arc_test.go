package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriftBand(t *testing.T) {
	assert.Equal(t, "unchanged", driftBand(0.01))
	assert.Equal(t, "minor evolution", driftBand(0.05))
	assert.Equal(t, "significant development", driftBand(0.2))
	assert.Equal(t, "dramatic transformation", driftBand(0.5))
}

func TestParseWindow(t *testing.T) {
	n, err := parseWindow("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = parseWindow("recent:5")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = parseWindow("recent:0")
	assert.Error(t, err)

	_, err = parseWindow("recent:abc")
	assert.Error(t, err)

	_, err = parseWindow("last:5")
	assert.Error(t, err)
}

func TestGapBand(t *testing.T) {
	assert.Equal(t, "remarkably accurate", gapBand(0.01))
	assert.Equal(t, "fairly accurate", gapBand(0.1))
	assert.Equal(t, "notable blind spots", gapBand(0.2))
	assert.Equal(t, "significantly distorted", gapBand(0.4))
	assert.Equal(t, "dramatically wrong", gapBand(0.8))
}
