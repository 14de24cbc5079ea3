package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/narra-go/internal/models"
)

func testCharacter(key, name string, roles ...string) models.Character {
	return models.Character{
		ID:    surrealmodels.NewRecordID("character", key),
		Name:  name,
		Roles: roles,
	}
}

func testEdge(from, to string, relTypes ...string) models.Perceives {
	return models.Perceives{
		ID:       surrealmodels.NewRecordID("perceives", from+"_"+to),
		In:       surrealmodels.NewRecordID("character", from),
		Out:      surrealmodels.NewRecordID("character", to),
		RelTypes: relTypes,
	}
}

func TestBuildMermaidNodesAndEdges(t *testing.T) {
	characters := []models.Character{
		testCharacter("vex", "Vex"),
		testCharacter("kaela", "Kaela"),
	}
	edges := []models.Perceives{testEdge("kaela", "vex", "rivalry")}

	diagram := buildMermaid(characters, edges, GraphOptions{Direction: "TB"})

	assert.True(t, strings.HasPrefix(diagram, "graph TB"))
	assert.Contains(t, diagram, "kaela[Kaela]")
	assert.Contains(t, diagram, "vex[Vex]")
	assert.Contains(t, diagram, "kaela --- |rivalry| vex")
	assert.Contains(t, diagram, "classDef rel_rivalry")
}

func TestBuildMermaidSortsNodesByName(t *testing.T) {
	characters := []models.Character{
		testCharacter("z", "Zara"),
		testCharacter("a", "Aldous"),
	}
	diagram := buildMermaid(characters, nil, GraphOptions{Direction: "TB"})
	assert.Less(t, strings.Index(diagram, "a[Aldous]"), strings.Index(diagram, "z[Zara]"))
}

func TestBuildMermaidDeduplicatesBidirectionalEdges(t *testing.T) {
	characters := []models.Character{
		testCharacter("a", "A"),
		testCharacter("b", "B"),
	}
	edges := []models.Perceives{
		testEdge("a", "b", "friendship"),
		testEdge("b", "a", "friendship"),
	}
	diagram := buildMermaid(characters, edges, GraphOptions{Direction: "LR"})
	assert.Equal(t, 1, strings.Count(diagram, "|friendship|"))
}

func TestBuildMermaidSkipsEdgesOutsideGraph(t *testing.T) {
	characters := []models.Character{testCharacter("a", "A")}
	edges := []models.Perceives{testEdge("a", "ghost", "family")}
	diagram := buildMermaid(characters, edges, GraphOptions{Direction: "TB"})
	assert.NotContains(t, diagram, "|family|")
}

func TestBuildMermaidIncludeRoles(t *testing.T) {
	characters := []models.Character{testCharacter("vex", "Vex", "smuggler", "spy")}
	diagram := buildMermaid(characters, nil, GraphOptions{IncludeRoles: true, Direction: "TB"})
	assert.Contains(t, diagram, `vex[Vex\n(smuggler, spy)]`)
}

func TestEdgeLabelEscape(t *testing.T) {
	assert.Equal(t, `a\|b`, edgeLabelEscape("a|b"))
	assert.Equal(t, `\[x\]`, edgeLabelEscape("[x]"))
}

func TestRelationshipColorFallback(t *testing.T) {
	assert.Contains(t, relationshipColor("family"), "#22c55e")
	assert.Contains(t, relationshipColor("Romantic"), "#ef4444")
	assert.Contains(t, relationshipColor("something else"), "#6b7280")
}
