package analytics

import (
	"context"
	"strings"

	"github.com/raphaelgruber/narra-go/internal/db"
)

// maxConnectionPaths caps path enumeration between two characters.
const maxConnectionPaths = 10

// ConnectionStep is one hop on a path between two characters.
type ConnectionStep struct {
	EntityID       string `json:"entity_id"`
	ConnectionType string `json:"connection_type"`
}

// ConnectionPath is one route from source to target.
type ConnectionPath struct {
	Steps     []ConnectionStep `json:"steps"`
	TotalHops int              `json:"total_hops"`
}

type pathEdgeRow struct {
	Target  string   `json:"target"`
	RelType []string `json:"rel_types"`
}

// ConnectionPaths enumerates paths between two characters over perceives
// edges in both directions, breadth first so shorter paths come out
// first. With includeEvents set, shared event involvement also connects
// characters.
func (s *GraphService) ConnectionPaths(ctx context.Context, fromID, toID string, maxHops int, includeEvents bool) ([]ConnectionPath, error) {
	from := normalizeCharacterID(fromID)
	to := normalizeCharacterID(toID)
	if maxHops <= 0 {
		maxHops = 3
	}

	type queueItem struct {
		current string
		path    []ConnectionStep
		visited map[string]bool
	}
	queue := []queueItem{{
		current: from,
		path:    []ConnectionStep{{EntityID: from, ConnectionType: "start"}},
		visited: map[string]bool{from: true},
	}}

	var paths []ConnectionPath
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if item.current == to {
			paths = append(paths, ConnectionPath{
				Steps:     item.path,
				TotalHops: len(item.path) - 1,
			})
			if len(paths) >= maxConnectionPaths {
				break
			}
			continue
		}
		if len(item.path)-1 >= maxHops {
			continue
		}

		neighbors, err := s.pathNeighbors(ctx, item.current, includeEvents)
		if err != nil {
			return nil, err
		}
		for _, n := range neighbors {
			if item.visited[n.EntityID] {
				continue
			}
			visited := make(map[string]bool, len(item.visited)+1)
			for k := range item.visited {
				visited[k] = true
			}
			visited[n.EntityID] = true
			path := append(append([]ConnectionStep(nil), item.path...), n)
			queue = append(queue, queueItem{current: n.EntityID, path: path, visited: visited})
		}
	}
	return paths, nil
}

// pathNeighbors returns the characters one hop away, labeled with how the
// hop connects them.
func (s *GraphService) pathNeighbors(ctx context.Context, characterID string, includeEvents bool) ([]ConnectionStep, error) {
	var steps []ConnectionStep

	outgoing, err := db.Query[pathEdgeRow](ctx, s.client, `
		SELECT <string>out AS target, rel_types FROM perceives WHERE <string>in = $char
	`, map[string]any{"char": characterID})
	if err != nil {
		return nil, err
	}
	incoming, err := db.Query[pathEdgeRow](ctx, s.client, `
		SELECT <string>in AS target, rel_types FROM perceives WHERE <string>out = $char
	`, map[string]any{"char": characterID})
	if err != nil {
		return nil, err
	}
	for _, edge := range append(outgoing, incoming...) {
		relType := "relationship"
		if len(edge.RelType) > 0 {
			relType = edge.RelType[0]
		}
		steps = append(steps, ConnectionStep{
			EntityID:       edge.Target,
			ConnectionType: "perceives:" + relType,
		})
	}

	if includeEvents {
		type coRow struct {
			Target string `json:"target"`
			Event  string `json:"event"`
		}
		rows, err := db.Query[coRow](ctx, s.client, `
			SELECT <string>in AS target, <string>out AS event FROM involved_in
			WHERE out IN (SELECT VALUE out FROM involved_in WHERE <string>in = $char)
			AND <string>in != $char
		`, map[string]any{"char": characterID})
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			steps = append(steps, ConnectionStep{
				EntityID:       row.Target,
				ConnectionType: "shared_event:" + row.Event,
			})
		}
	}
	return steps, nil
}

// Reference is one entity that points at a target entity.
type Reference struct {
	EntityID       string `json:"entity_id"`
	EntityType     string `json:"entity_type"`
	ReferenceField string `json:"reference_field"`
}

// ReferencingEntities finds entities that reference the target: scenes a
// character participates in, events they are involved in, knowledge they
// own, scenes at a location, scenes of an event. typeFilter limits which
// referencing kinds are returned.
func (s *GraphService) ReferencingEntities(ctx context.Context, entityID string, typeFilter []string, limit int) ([]Reference, error) {
	if limit <= 0 {
		limit = 20
	}
	table, _, ok := strings.Cut(entityID, ":")
	if !ok {
		return nil, db.Validationf("malformed entity id %q (expected table:key)", entityID)
	}

	include := func(kind string) bool {
		if len(typeFilter) == 0 {
			return true
		}
		for _, t := range typeFilter {
			if strings.EqualFold(t, kind) {
				return true
			}
		}
		return false
	}

	var refs []Reference
	collect := func(ctx context.Context, sql, entityType, field string) error {
		if len(refs) >= limit {
			return nil
		}
		type idRow struct {
			ID string `json:"id"`
		}
		rows, err := db.Query[idRow](ctx, s.client, sql, map[string]any{
			"entity": entityID,
			"limit":  limit - len(refs),
		})
		if err != nil {
			return err
		}
		for _, row := range rows {
			refs = append(refs, Reference{
				EntityID:       row.ID,
				EntityType:     entityType,
				ReferenceField: field,
			})
		}
		return nil
	}

	switch table {
	case "character":
		if include("scene") {
			if err := collect(ctx, `
				SELECT <string>out AS id FROM participates_in
				WHERE <string>in = $entity LIMIT $limit
			`, "scene", "participants"); err != nil {
				return nil, err
			}
		}
		if include("event") {
			if err := collect(ctx, `
				SELECT <string>out AS id FROM involved_in
				WHERE <string>in = $entity LIMIT $limit
			`, "event", "involved_characters"); err != nil {
				return nil, err
			}
		}
		if include("knowledge") {
			if err := collect(ctx, `
				SELECT <string>id AS id FROM knowledge
				WHERE <string>character = $entity LIMIT $limit
			`, "knowledge", "character"); err != nil {
				return nil, err
			}
		}
	case "location":
		if include("scene") {
			if err := collect(ctx, `
				SELECT <string>id AS id FROM scene
				WHERE <string>location = $entity LIMIT $limit
			`, "scene", "location"); err != nil {
				return nil, err
			}
			if err := collect(ctx, `
				SELECT <string>id AS id FROM scene
				WHERE $entity IN secondary_locations.map(|$l| <string>$l) LIMIT $limit
			`, "scene", "secondary_locations"); err != nil {
				return nil, err
			}
		}
	case "event":
		if include("scene") {
			if err := collect(ctx, `
				SELECT <string>id AS id FROM scene
				WHERE <string>event = $entity LIMIT $limit
			`, "scene", "event"); err != nil {
				return nil, err
			}
		}
	default:
		return nil, db.Validationf("reverse query unsupported for entity type %q", table)
	}
	return refs, nil
}
