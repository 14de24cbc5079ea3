package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/raphaelgruber/narra-go/internal/models"
)

func TestScenesSince(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	descending := []time.Time{
		base.Add(5 * time.Hour),
		base.Add(4 * time.Hour),
		base.Add(3 * time.Hour),
		base.Add(2 * time.Hour),
		base.Add(1 * time.Hour),
	}

	assert.Equal(t, 5, ScenesSince(descending, base))
	assert.Equal(t, 2, ScenesSince(descending, base.Add(3*time.Hour)))
	assert.Equal(t, 0, ScenesSince(descending, base.Add(6*time.Hour)))
	assert.Equal(t, 0, ScenesSince(nil, base))
}

func TestSignalStrength(t *testing.T) {
	assert.Equal(t, "low", SignalStrength(0))
	assert.Equal(t, "low", SignalStrength(1))
	assert.Equal(t, "medium", SignalStrength(2))
	assert.Equal(t, "medium", SignalStrength(4))
	assert.Equal(t, "high", SignalStrength(5))
}

func TestDramaticWeight(t *testing.T) {
	// staleness alone
	assert.InDelta(t, 4.0, DramaticWeight(4, nil, ""), 1e-9)

	// high tension adds 3, moderate adds 1.5
	assert.InDelta(t, 7.0, DramaticWeight(4, intPtr(8), ""), 1e-9)
	assert.InDelta(t, 5.5, DramaticWeight(4, intPtr(5), ""), 1e-9)
	assert.InDelta(t, 4.0, DramaticWeight(4, intPtr(2), ""), 1e-9)

	// enforcement bonuses
	assert.InDelta(t, 7.0, DramaticWeight(4, nil, models.EnforcementStrict), 1e-9)
	assert.InDelta(t, 5.0, DramaticWeight(4, nil, models.EnforcementWarning), 1e-9)
	assert.InDelta(t, 4.0, DramaticWeight(4, nil, models.EnforcementInformational), 1e-9)
}
