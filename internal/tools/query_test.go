package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/narra-go/internal/analytics"
)

func stubSearch(results []analytics.SearchResult, err error) searchFunc {
	return func(context.Context, string, analytics.SearchFilter) ([]analytics.SearchResult, error) {
		return results, err
	}
}

func TestSearchWithFallbackSkipsFallbackOnHits(t *testing.T) {
	hits := []analytics.SearchResult{{ID: "character:kaela", Name: "Kaela"}}
	fallbackCalled := false

	results, fuzzy, err := searchWithFallback(context.Background(), "kaela", analytics.SearchFilter{},
		stubSearch(hits, nil),
		func(context.Context, string, analytics.SearchFilter) ([]analytics.SearchResult, error) {
			fallbackCalled = true
			return nil, nil
		})
	require.NoError(t, err)
	assert.False(t, fuzzy)
	assert.False(t, fallbackCalled)
	assert.Equal(t, hits, results)
}

func TestSearchWithFallbackRetriesFuzzyWhenEmpty(t *testing.T) {
	fuzzyHits := []analytics.SearchResult{{ID: "character:kaela", Name: "Kaela", Score: 0.82}}

	results, fuzzy, err := searchWithFallback(context.Background(), "kayla", analytics.SearchFilter{},
		stubSearch(nil, nil),
		stubSearch(fuzzyHits, nil))
	require.NoError(t, err)
	assert.True(t, fuzzy)
	assert.Equal(t, fuzzyHits, results)
}

func TestSearchWithFallbackPropagatesErrors(t *testing.T) {
	boom := errors.New("index offline")

	_, _, err := searchWithFallback(context.Background(), "q", analytics.SearchFilter{},
		stubSearch(nil, boom), stubSearch(nil, nil))
	assert.ErrorIs(t, err, boom)

	_, _, err = searchWithFallback(context.Background(), "q", analytics.SearchFilter{},
		stubSearch(nil, nil), stubSearch(nil, boom))
	assert.ErrorIs(t, err, boom)
}
