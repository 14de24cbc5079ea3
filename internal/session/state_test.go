package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestState(t *testing.T) *StateManager {
	t.Helper()
	return NewStateManager(filepath.Join(t.TempDir(), "session.json"), nil)
}

func TestTouchMovesToHead(t *testing.T) {
	m := newTestState(t)
	m.Touch("character:a")
	m.Touch("character:b")
	m.Touch("character:a")

	assert.Equal(t, []string{"character:a", "character:b"}, m.Recent(0))
	assert.Equal(t, []string{"character:a"}, m.Recent(1))
}

func TestRecentCap(t *testing.T) {
	m := newTestState(t)
	for i := 0; i < recentCap+20; i++ {
		m.Touch("character:" + string(rune('a'+i%26)) + string(rune('a'+i/26)))
	}
	assert.LessOrEqual(t, len(m.Recent(0)), recentCap)
}

func TestPinUnpin(t *testing.T) {
	m := newTestState(t)

	require.NoError(t, m.Pin("character:a"))
	require.NoError(t, m.Pin("character:b"))
	require.NoError(t, m.Pin("character:a")) // idempotent
	assert.Equal(t, []string{"character:a", "character:b"}, m.Pinned())

	require.NoError(t, m.Unpin("character:a"))
	assert.Equal(t, []string{"character:b"}, m.Pinned())

	require.NoError(t, m.Unpin("character:missing"))
	assert.Equal(t, []string{"character:b"}, m.Pinned())
}

func TestStatePersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	m := NewStateManager(path, nil)
	require.NoError(t, m.Pin("character:a"))
	m.Touch("character:b")
	id, err := m.AddPendingDecision("kill off the mentor?", []string{"character:b"})
	require.NoError(t, err)

	reloaded := NewStateManager(path, nil)
	assert.Equal(t, []string{"character:a"}, reloaded.Pinned())
	assert.Equal(t, []string{"character:b"}, reloaded.Recent(0))
	decisions := reloaded.PendingDecisions()
	require.Len(t, decisions, 1)
	assert.Equal(t, id, decisions[0].ID)

	require.NoError(t, reloaded.ResolvePendingDecision(id))
	assert.Empty(t, reloaded.PendingDecisions())
}

func TestCorruptStateStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	m := NewStateManager(path, nil)
	assert.Empty(t, m.Pinned())
	assert.Empty(t, m.Recent(0))
}

func TestSessionMarks(t *testing.T) {
	m := newTestState(t)

	previous := m.MarkSessionStart()
	assert.Nil(t, previous)

	m.MarkSessionEnd()
	end := m.LastSessionEnd()
	require.NotNil(t, end)

	previous = m.MarkSessionStart()
	require.NotNil(t, previous)
	assert.Equal(t, *end, *previous)
}
