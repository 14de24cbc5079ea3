package tools

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 20, clampLimit(0, 20))
	assert.Equal(t, 20, clampLimit(-5, 20))
	assert.Equal(t, 7, clampLimit(7, 20))
	assert.Equal(t, MaxLimit, clampLimit(MaxLimit+50, 20))
}

func TestClampDepth(t *testing.T) {
	assert.Equal(t, 2, clampDepth(0, 2))
	assert.Equal(t, 3, clampDepth(3, 2))
	assert.Equal(t, MaxDepth, clampDepth(99, 2))
}

func TestFinalizeFillsDefaults(t *testing.T) {
	resp := &Response{}
	result := resp.Finalize()

	require.Len(t, result.Content, 1)
	text := result.Content[0].(*mcp.TextContent).Text

	var decoded Response
	require.NoError(t, json.Unmarshal([]byte(text), &decoded))
	assert.NotNil(t, decoded.Results)
	assert.NotNil(t, decoded.Hints)
	assert.Equal(t, 0, decoded.TokenEstimate)
}

func TestFinalizeEstimatesTokens(t *testing.T) {
	resp := &Response{
		Results: []EntityResult{
			{ID: "character:a", Content: strings.Repeat("x", 400)},
			{ID: "character:b", Content: ""},
		},
		Total: 2,
	}
	result := resp.Finalize()
	text := result.Content[0].(*mcp.TextContent).Text

	var decoded Response
	require.NoError(t, json.Unmarshal([]byte(text), &decoded))
	// 100 content tokens + 30 overhead, plus 30 for the empty row
	assert.Equal(t, 160, decoded.TokenEstimate)
}

func TestCursorRoundTrip(t *testing.T) {
	cursor := EncodeCursor(40)
	offset, err := DecodeCursor(cursor)
	require.NoError(t, err)
	assert.Equal(t, 40, offset)

	offset, err = DecodeCursor("")
	require.NoError(t, err)
	assert.Equal(t, 0, offset)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("not base64!!!")
	assert.Error(t, err)

	_, err = DecodeCursor("aGVsbG8=") // valid base64, not a cursor payload
	assert.Error(t, err)
}

func TestErrorResult(t *testing.T) {
	result := ErrorResult("entity not found", "try a search first")
	assert.True(t, result.IsError)
	assert.Equal(t, "entity not found. try a search first",
		result.Content[0].(*mcp.TextContent).Text)

	result = ErrorResult("plain failure", "")
	assert.Equal(t, "plain failure", result.Content[0].(*mcp.TextContent).Text)
}

func TestConfidenceAndBoolPtr(t *testing.T) {
	score := confidence(0.75)
	require.NotNil(t, score)
	assert.InDelta(t, 0.75, *score, 1e-9)

	flag := boolPtr(true)
	require.NotNil(t, flag)
	assert.True(t, *flag)
}
