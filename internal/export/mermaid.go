package export

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/raphaelgruber/narra-go/internal/db"
	"github.com/raphaelgruber/narra-go/internal/models"
)

// ScopeWorld renders the full character network.
const ScopeWorld = "world"

// GraphOptions controls Mermaid rendering.
type GraphOptions struct {
	// IncludeRoles adds character roles to node labels.
	IncludeRoles bool
	// Direction is the Mermaid layout direction (TB, LR, ...).
	Direction string
}

// relationshipColor maps a relationship type to a Mermaid stroke style.
func relationshipColor(relType string) string {
	switch strings.ToLower(relType) {
	case "family":
		return "stroke:#22c55e,stroke-width:2px"
	case "romantic":
		return "stroke:#ef4444,stroke-width:2px"
	case "professional":
		return "stroke:#3b82f6,stroke-width:2px"
	case "friendship":
		return "stroke:#f59e0b,stroke-width:2px"
	case "rivalry":
		return "stroke:#8b5cf6,stroke-width:2px"
	case "mentorship":
		return "stroke:#14b8a6,stroke-width:2px"
	case "alliance":
		return "stroke:#6366f1,stroke-width:2px"
	}
	return "stroke:#6b7280,stroke-width:1px"
}

func relationshipClass(relType string) string {
	return "rel_" + strings.ReplaceAll(strings.ToLower(relType), " ", "_")
}

// edgeLabelEscape escapes characters Mermaid treats specially in labels.
func edgeLabelEscape(label string) string {
	r := strings.NewReplacer("|", "\\|", "[", "\\[", "]", "\\]")
	return r.Replace(label)
}

// Mermaid renders a relationship diagram. Scope is either ScopeWorld
// for the full network or a character id for a neighborhood bounded by
// depth hops.
func (e *Exporter) Mermaid(ctx context.Context, scope string, depth int, opts GraphOptions) (string, error) {
	if opts.Direction == "" {
		opts.Direction = "TB"
	}

	var (
		characters []models.Character
		edges      []models.Perceives
		err        error
	)
	if scope == "" || scope == ScopeWorld {
		characters, err = db.Query[models.Character](ctx, e.client, "SELECT * FROM character", nil)
		if err != nil {
			return "", err
		}
		edges, err = db.Query[models.Perceives](ctx, e.client, "SELECT * FROM perceives", nil)
		if err != nil {
			return "", err
		}
	} else {
		characters, edges, err = e.neighborhood(ctx, fullID("character", scope), depth)
		if err != nil {
			return "", err
		}
	}

	diagram := buildMermaid(characters, edges, opts)
	return "```mermaid\n" + diagram + "\n```\n" + legend(), nil
}

// neighborhood walks perceives and relates_to edges both directions
// from a starting character, collecting the perceives edges seen.
func (e *Exporter) neighborhood(ctx context.Context, characterID string, maxDepth int) ([]models.Character, []models.Perceives, error) {
	if maxDepth <= 0 {
		maxDepth = 1
	}
	visited := map[string]bool{}
	seenEdges := map[string]bool{}
	var characters []models.Character
	var edges []models.Perceives

	type frame struct {
		id    string
		depth int
	}
	queue := []frame{{id: characterID}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur.id] {
			continue
		}
		visited[cur.id] = true

		ch, err := db.QueryOne[models.Character](ctx, e.client,
			`SELECT * FROM type::record("character", $key)`,
			map[string]any{"key": keyOf(cur.id)})
		if err != nil {
			return nil, nil, err
		}
		if ch == nil {
			if cur.id == characterID {
				return nil, nil, &db.NotFoundError{EntityType: "character", ID: characterID}
			}
			continue
		}
		characters = append(characters, *ch)

		if cur.depth >= maxDepth {
			continue
		}

		perceptionEdges, err := db.Query[models.Perceives](ctx, e.client,
			`SELECT * FROM perceives WHERE <string>in = $id OR <string>out = $id`,
			map[string]any{"id": cur.id})
		if err != nil {
			return nil, nil, err
		}
		for _, edge := range perceptionEdges {
			edgeID := models.RecordIDString(edge.ID)
			if !seenEdges[edgeID] {
				seenEdges[edgeID] = true
				edges = append(edges, edge)
			}
			for _, next := range []string{models.RecordIDString(edge.In), models.RecordIDString(edge.Out)} {
				if !visited[next] {
					queue = append(queue, frame{id: next, depth: cur.depth + 1})
				}
			}
		}

		related, err := db.Query[models.RelatesTo](ctx, e.client,
			`SELECT * FROM relates_to WHERE <string>in = $id OR <string>out = $id`,
			map[string]any{"id": cur.id})
		if err != nil {
			return nil, nil, err
		}
		for _, edge := range related {
			for _, next := range []string{models.RecordIDString(edge.In), models.RecordIDString(edge.Out)} {
				if !visited[next] {
					queue = append(queue, frame{id: next, depth: cur.depth + 1})
				}
			}
		}
	}

	return characters, edges, nil
}

func keyOf(id string) string {
	_, key, err := models.SplitEntityID(id)
	if err != nil {
		return id
	}
	return key
}

func nodeLabel(c *models.Character, includeRoles bool) string {
	if includeRoles && len(c.Roles) > 0 {
		return fmt.Sprintf("%s\\n(%s)", c.Name, strings.Join(c.Roles, ", "))
	}
	return c.Name
}

func buildMermaid(characters []models.Character, edges []models.Perceives, opts GraphOptions) string {
	lines := []string{"graph " + opts.Direction}

	sort.Slice(characters, func(i, j int) bool { return characters[i].Name < characters[j].Name })

	inGraph := map[string]bool{}
	for i := range characters {
		key := recordKey(characters[i].ID)
		inGraph[key] = true
		lines = append(lines, fmt.Sprintf("    %s[%s]", key, nodeLabel(&characters[i], opts.IncludeRoles)))
	}

	// Deduplicate bidirectional perceptions into one undirected edge.
	seen := map[string]bool{}
	for _, edge := range edges {
		from := recordKey(edge.In)
		to := recordKey(edge.Out)
		if !inGraph[from] || !inGraph[to] {
			continue
		}
		relType := "unknown"
		if len(edge.RelTypes) > 0 {
			relType = edge.RelTypes[0]
		}
		a, b := from, to
		if a > b {
			a, b = b, a
		}
		key := a + "|" + b + "|" + relType
		if seen[key] {
			continue
		}
		seen[key] = true
		lines = append(lines, fmt.Sprintf("    %s --- |%s| %s", from, edgeLabelEscape(relType), to))
	}

	lines = append(lines, "", "    %% Relationship type styles")
	for _, relType := range []string{
		"family", "romantic", "professional", "friendship",
		"rivalry", "mentorship", "alliance",
	} {
		lines = append(lines, fmt.Sprintf("    classDef %s %s",
			relationshipClass(relType), relationshipColor(relType)))
	}

	return strings.Join(lines, "\n")
}

func legend() string {
	return `
## Legend

| Color | Relationship Type |
|-------|-------------------|
| Green | Family |
| Red | Romantic |
| Blue | Professional |
| Amber | Friendship |
| Purple | Rivalry |
| Teal | Mentorship |
| Indigo | Alliance |
| Gray | Other |
`
}
