package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTimingAggregates(t *testing.T) {
	c := NewCollector()
	c.RecordTiming("tools/call:query", 10*time.Millisecond, false)
	c.RecordTiming("tools/call:query", 30*time.Millisecond, true)
	c.RecordTiming("tools/call:query", 20*time.Millisecond, false)

	snap := c.Snapshot()
	require.Len(t, snap.Operations, 1)

	op := snap.Operations[0]
	assert.Equal(t, "tools/call:query", op.Operation)
	assert.Equal(t, int64(3), op.Count)
	assert.Equal(t, int64(1), op.Errors)
	assert.Equal(t, int64(60), op.TotalTimeMs)
	assert.InDelta(t, 20.0, op.AvgTimeMs, 1e-9)
	assert.Equal(t, int64(10), op.MinTimeMs)
	assert.Equal(t, int64(30), op.MaxTimeMs)
}

func TestSnapshotSortsByOperation(t *testing.T) {
	c := NewCollector()
	c.RecordTiming("tools/call:session", time.Millisecond, false)
	c.RecordTiming("tools/call:mutate", time.Millisecond, false)
	c.RecordTiming("resources/read", time.Millisecond, false)

	snap := c.Snapshot()
	require.Len(t, snap.Operations, 3)
	assert.Equal(t, "resources/read", snap.Operations[0].Operation)
	assert.Equal(t, "tools/call:mutate", snap.Operations[1].Operation)
	assert.Equal(t, "tools/call:session", snap.Operations[2].Operation)
}

func TestSnapshotEmptyCollector(t *testing.T) {
	c := NewCollector()
	snap := c.Snapshot()
	assert.Empty(t, snap.Operations)
	assert.GreaterOrEqual(t, snap.UptimeSeconds, 0.0)
}
