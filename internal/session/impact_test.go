package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAnalyzer(t *testing.T) *ImpactAnalyzer {
	t.Helper()
	return NewImpactAnalyzer(nil, newTestState(t))
}

func TestSeverityForDistance(t *testing.T) {
	a := newTestAnalyzer(t)

	assert.Equal(t, ImpactCritical, a.severityForDistance("character:a", 0))
	assert.Equal(t, ImpactHigh, a.severityForDistance("character:a", 1))
	assert.Equal(t, ImpactMedium, a.severityForDistance("character:a", 2))
	assert.Equal(t, ImpactLow, a.severityForDistance("character:a", 3))
	assert.Equal(t, ImpactLow, a.severityForDistance("character:a", 7))
}

func TestProtectedEntitiesAreAlwaysCritical(t *testing.T) {
	a := newTestAnalyzer(t)
	a.Protect("character:kaela")

	assert.Equal(t, ImpactCritical, a.severityForDistance("character:kaela", 3))
	assert.Equal(t, []string{"character:kaela"}, a.Protected())

	a.Unprotect("character:kaela")
	assert.Equal(t, ImpactLow, a.severityForDistance("character:kaela", 3))
	assert.Empty(t, a.Protected())
}

func TestRecordDecision(t *testing.T) {
	a := newTestAnalyzer(t)
	a.RecordDecision("promoted the rival to antagonist", []string{"character:vex"})
	a.RecordDecision("burned down the tavern", nil)

	decisions := a.Decisions()
	require.Len(t, decisions, 2)
	assert.Equal(t, "promoted the rival to antagonist", decisions[0].Description)
	assert.Equal(t, []string{"character:vex"}, decisions[0].EntityIDs)
	assert.False(t, decisions[0].RecordedAt.IsZero())
}

func TestDeferAndResolveImplication(t *testing.T) {
	a := newTestAnalyzer(t)

	id, err := a.DeferImplications("update everyone who knew the old name", []string{"character:vex"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, a.ResolveImplication(id))
	assert.Empty(t, a.state.PendingDecisions())
}
