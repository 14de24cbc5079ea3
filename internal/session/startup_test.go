package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyVerbosity(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	hourAgo := now.Add(-time.Hour)
	threeDaysAgo := now.Add(-3 * 24 * time.Hour)
	monthAgo := now.Add(-30 * 24 * time.Hour)

	tests := []struct {
		name    string
		lastEnd *time.Time
		hasData bool
		want    Verbosity
	}{
		{"empty world wins", &hourAgo, false, VerbosityEmptyWorld},
		{"data but no prior session", nil, true, VerbosityNewWorld},
		{"back within a day", &hourAgo, true, VerbosityBrief},
		{"back within a week", &threeDaysAgo, true, VerbosityStandard},
		{"long absence", &monthAgo, true, VerbosityFull},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyVerbosity(tt.lastEnd, tt.hasData, now))
		})
	}
}

func TestVerbosityRecentLimit(t *testing.T) {
	assert.Equal(t, 3, VerbosityBrief.recentLimit())
	assert.Equal(t, 10, VerbosityStandard.recentLimit())
	assert.Equal(t, 20, VerbosityFull.recentLimit())
	assert.Equal(t, 15, VerbosityNewWorld.recentLimit())
	assert.Equal(t, 0, VerbosityEmptyWorld.recentLimit())
}

func TestFormatTimeAgo(t *testing.T) {
	tests := []struct {
		elapsed time.Duration
		want    string
	}{
		{30 * time.Second, "a minute ago"},
		{10 * time.Minute, "10 minutes ago"},
		{90 * time.Minute, "an hour ago"},
		{5 * time.Hour, "5 hours ago"},
		{30 * time.Hour, "yesterday"},
		{3 * 24 * time.Hour, "3 days ago"},
		{8 * 24 * time.Hour, "a week ago"},
		{20 * 24 * time.Hour, "2 weeks ago"},
		{35 * 24 * time.Hour, "a month ago"},
		{70 * 24 * time.Hour, "2 months ago"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatTimeAgo(tt.elapsed))
	}
}

func TestOverviewPhrase(t *testing.T) {
	assert.Equal(t, "no entities yet", overviewPhrase(map[string]int{}))
	assert.Equal(t, "1 character", overviewPhrase(map[string]int{"character": 1}))
	assert.Equal(t, "3 characters, 2 locations, 1 scene",
		overviewPhrase(map[string]int{"character": 3, "location": 2, "scene": 1, "note": 9}))
}
