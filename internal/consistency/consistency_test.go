package consistency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/narra-go/internal/models"
)

func TestResultAddTracksBlocking(t *testing.T) {
	r := NewResult()
	assert.True(t, r.IsValid)
	assert.False(t, r.HasBlocking)

	r.Add(Violation{Severity: SeverityInfo, Message: "minor detail"})
	assert.True(t, r.IsValid)
	assert.Equal(t, 1, r.TotalViolations)

	r.Add(Violation{Severity: SeverityWarning, Message: "questionable"})
	assert.True(t, r.IsValid)
	assert.False(t, r.HasBlocking)

	r.Add(Violation{Severity: SeverityCritical, Message: "hard contradiction"})
	assert.False(t, r.IsValid)
	assert.True(t, r.HasBlocking)
	assert.Equal(t, 3, r.TotalViolations)
}

func TestResultWarnings(t *testing.T) {
	r := NewResult()
	r.Add(Violation{Severity: SeverityCritical, Message: "blocked"})
	r.Add(Violation{Severity: SeverityWarning, Message: "watch this"})
	r.Add(Violation{Severity: SeverityInfo, Message: "fyi"})

	warnings := r.Warnings()
	require.Len(t, warnings, 2)
	assert.Equal(t, "WARNING: watch this", warnings[0])
	assert.Equal(t, "INFO: fyi", warnings[1])
}

func TestResultAllOrdersCriticalFirst(t *testing.T) {
	r := NewResult()
	r.Add(Violation{Severity: SeverityInfo, Message: "c"})
	r.Add(Violation{Severity: SeverityCritical, Message: "a"})
	r.Add(Violation{Severity: SeverityWarning, Message: "b"})

	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, SeverityCritical, all[0].Severity)
	assert.Equal(t, SeverityWarning, all[1].Severity)
	assert.Equal(t, SeverityInfo, all[2].Severity)
}

func TestAddFillsSuggestedFix(t *testing.T) {
	r := NewResult()
	r.Add(Violation{Severity: SeverityCritical, Message: "Character acts before learning the fact"})
	fix := r.BySeverity[SeverityCritical][0].SuggestedFix
	assert.NotEmpty(t, fix)

	// an explicit fix is kept
	r.Add(Violation{Severity: SeverityWarning, Message: "Circular hierarchy", SuggestedFix: "custom"})
	assert.Equal(t, "custom", r.BySeverity[SeverityWarning][0].SuggestedFix)
}

func TestSuggestedFix(t *testing.T) {
	assert.Contains(t, SuggestedFix("knows before learning it"), "learning event")
	assert.Contains(t, SuggestedFix("Circular mentorship"), "hierarchy")
	assert.Contains(t, SuggestedFix("feeling asymmetry detected"), "intentional")
	assert.Contains(t, SuggestedFix("entity may violate fact"), "universe fact")
	assert.Contains(t, SuggestedFix("contradictory labels on edges"), "duplicate")
	assert.Empty(t, SuggestedFix("something unrecognized"))
}

func TestMapSeverity(t *testing.T) {
	tests := []struct {
		name        string
		enforcement models.EnforcementLevel
		confidence  float64
		intentional bool
		want        Severity
	}{
		{"intentional always info", models.EnforcementStrict, 0.9, true, SeverityInfo},
		{"strict confident", models.EnforcementStrict, 0.9, false, SeverityCritical},
		{"strict uncertain", models.EnforcementStrict, 0.3, false, SeverityInfo},
		{"warning confident", models.EnforcementWarning, 0.8, false, SeverityWarning},
		{"warning uncertain", models.EnforcementWarning, 0.4, false, SeverityInfo},
		{"informational", models.EnforcementInformational, 0.9, false, SeverityInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapSeverity(tt.enforcement, tt.confidence, tt.intentional))
		})
	}
}
