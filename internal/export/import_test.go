package export

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/narra-go/internal/db"
)

func TestParseConflictMode(t *testing.T) {
	assert.Equal(t, ConflictSkip, ParseConflictMode("skip"))
	assert.Equal(t, ConflictUpdate, ParseConflictMode("UPDATE"))
	assert.Equal(t, ConflictError, ParseConflictMode("error"))
	assert.Equal(t, ConflictError, ParseConflictMode(""))
	assert.Equal(t, ConflictError, ParseConflictMode("bogus"))
}

func TestParseDocument(t *testing.T) {
	doc, err := ParseDocument([]byte(`
version: 1
characters:
  - name: Kaela
    roles: [captain]
locations:
  - name: The Drift
`))
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Version)
	require.Len(t, doc.Characters, 1)
	assert.Equal(t, "Kaela", doc.Characters[0].Name)
	assert.Equal(t, []string{"captain"}, doc.Characters[0].Roles)
	require.Len(t, doc.Locations, 1)
}

func TestParseDocumentRejectsFutureVersion(t *testing.T) {
	_, err := ParseDocument([]byte(fmt.Sprintf("version: %d\n", FormatVersion+1)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, db.ErrValidation))
}

func TestParseDocumentRejectsMalformedYAML(t *testing.T) {
	_, err := ParseDocument([]byte("characters: [unclosed"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, db.ErrValidation))
}
