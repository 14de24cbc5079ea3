package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenEstimate(t *testing.T) {
	assert.Equal(t, 0, TokenEstimate(""))
	assert.Equal(t, 1, TokenEstimate("abc"))
	assert.Equal(t, 1, TokenEstimate("abcd"))
	assert.Equal(t, 2, TokenEstimate("abcde"))
	assert.Equal(t, 25, TokenEstimate(strings.Repeat("x", 100)))
}

func TestTruncatePassthrough(t *testing.T) {
	short := "A short profile."
	assert.Equal(t, short, Truncate(short, 50))
}

func TestTruncatePrefersSentenceBoundary(t *testing.T) {
	content := strings.Repeat("One full sentence here. ", 40)
	out := Truncate(content, 50)

	assert.Less(t, len(out), len(content))
	assert.True(t, strings.HasSuffix(out, "…"), "truncation marks dropped content: %q", out)
	body := strings.TrimSuffix(out, " …")
	assert.True(t, strings.HasSuffix(body, "."), "cut should land on a sentence end: %q", body)
}

func TestTruncateFallsBackToWordBoundary(t *testing.T) {
	content := strings.Repeat("word ", 100)
	out := Truncate(content, 20)

	assert.True(t, strings.HasSuffix(out, "…"))
	assert.NotContains(t, strings.TrimSuffix(out, " …"), "wor ", "no mid-word cut expected")
	assert.LessOrEqual(t, len(out), 20*4+4)
}

func TestTruncateHardCut(t *testing.T) {
	content := strings.Repeat("x", 500)
	out := Truncate(content, 20)
	assert.True(t, strings.HasSuffix(out, "…"))
	assert.LessOrEqual(t, len(out), 20*4+4)
}
