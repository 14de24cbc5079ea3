package consistency

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/raphaelgruber/narra-go/internal/db"
	"github.com/raphaelgruber/narra-go/internal/models"
)

// maxInvestigationDepth bounds the contradiction BFS.
const maxInvestigationDepth = 5

// CheckTimeline flags knowledge a character acts on before they could
// have learned it.
func (c *Checker) CheckTimeline(ctx context.Context, characterID string) ([]Violation, error) {
	key := strings.TrimPrefix(characterID, "character:")

	type stateRow struct {
		Target      string    `json:"target"`
		TargetKey   string    `json:"target_key"`
		SourceEvent *string   `json:"source_event"`
		LearnedAt   time.Time `json:"learned_at"`
	}
	states, err := db.Query[stateRow](ctx, c.client, `
		SELECT <string>out AS target, record::id(out) AS target_key,
			<string>source_event AS source_event, learned_at
		FROM knows
		WHERE in = type::record("character", $id) AND superseded = false
	`, map[string]any{"id": key})
	if err != nil {
		return nil, err
	}

	type sceneRow struct {
		SceneTitle    string `json:"scene_title"`
		EventTitle    string `json:"event_title"`
		EventSequence *int64 `json:"event_sequence"`
	}
	scenes, err := db.Query[sceneRow](ctx, c.client, `
		SELECT out.title AS scene_title, out.event.title AS event_title,
			out.event.sequence AS event_sequence
		FROM participates_in WHERE in = type::record("character", $id)
	`, map[string]any{"id": key})
	if err != nil {
		return nil, err
	}

	eventSequences, err := c.eventSequences(ctx)
	if err != nil {
		return nil, err
	}

	var violations []Violation
	for _, state := range states {
		if state.SourceEvent == nil {
			continue
		}
		learningSeq, ok := eventSequences[*state.SourceEvent]
		if !ok {
			continue
		}
		strict, err := c.relatedToStrictFact(ctx, state.Target)
		if err != nil {
			return nil, err
		}
		for _, scene := range scenes {
			if scene.EventSequence == nil || *scene.EventSequence >= learningSeq {
				continue
			}
			severity := SeverityWarning
			if strict {
				severity = SeverityCritical
			}
			violations = append(violations, Violation{
				FactID:    state.Target,
				FactTitle: "Timeline: knowledge before learning",
				Severity:  severity,
				Message: fmt.Sprintf(
					"Character knows about '%s' at scene '%s' (sequence %d) before learning it at event '%s' (sequence %d)",
					state.TargetKey, scene.SceneTitle, *scene.EventSequence,
					shortKey(*state.SourceEvent), learningSeq),
				Confidence:   0.9,
				SuggestedFix: SuggestedFix("before learning"),
			})
		}
	}
	return violations, nil
}

// CheckRelationships flags impossible hierarchy cycles, one-sided
// symmetric subtypes, contradictory duplicate edges, and asymmetric
// feelings.
func (c *Checker) CheckRelationships(ctx context.Context, characterID string) ([]Violation, error) {
	key := strings.TrimPrefix(characterID, "character:")
	fullID := "character:" + key

	type edgeRow struct {
		ID      string  `json:"id"`
		In      string  `json:"in"`
		Out     string  `json:"out"`
		RelType string  `json:"rel_type"`
		Subtype *string `json:"subtype"`
		Label   *string `json:"label"`
	}
	edges, err := db.Query[edgeRow](ctx, c.client, `
		SELECT <string>id AS id, <string>in AS in, <string>out AS out, rel_type, subtype, label
		FROM relates_to
		WHERE in = type::record("character", $id) OR out = type::record("character", $id)
	`, map[string]any{"id": key})
	if err != nil {
		return nil, err
	}

	var violations []Violation

	// Hierarchy cycles and missing symmetric reverses over subtypes.
	bySubtype := map[[3]string]bool{}
	for _, edge := range edges {
		if edge.Subtype != nil {
			bySubtype[[3]string{edge.In, edge.Out, *edge.Subtype}] = true
		}
	}
	seenPair := map[[2]string]bool{}
	for _, edge := range edges {
		if edge.Subtype == nil {
			continue
		}
		subtype := *edge.Subtype
		if models.HierarchicalSubtypes[subtype] && bySubtype[[3]string{edge.Out, edge.In, subtype}] {
			pair := orderedPair(edge.In, edge.Out)
			if seenPair[pair] {
				continue
			}
			seenPair[pair] = true
			violations = append(violations, Violation{
				FactID:    edge.ID,
				FactTitle: "Impossible relationship state",
				Severity:  SeverityCritical,
				Message: fmt.Sprintf("Circular %s relationship: %s and %s hold it toward each other",
					subtype, shortKey(edge.In), shortKey(edge.Out)),
				Confidence:   1.0,
				SuggestedFix: SuggestedFix("Circular"),
			})
		}
		if models.SymmetricSubtypes[subtype] && edge.In == fullID &&
			!bySubtype[[3]string{edge.Out, edge.In, subtype}] {
			violations = append(violations, Violation{
				FactID:    edge.ID,
				FactTitle: "Relationship asymmetry",
				Severity:  SeverityWarning,
				Message: fmt.Sprintf("One-sided %s relationship: %s claims it toward %s with no reverse edge",
					subtype, shortKey(edge.In), shortKey(edge.Out)),
				Confidence:   0.8,
				SuggestedFix: SuggestedFix("one-sided"),
			})
		}
	}

	// Duplicate edges between the same pair with contradictory labels.
	labelsByPair := map[[2]string][]edgeRow{}
	for _, edge := range edges {
		if edge.Label != nil {
			key := orderedPair(edge.In, edge.Out)
			labelsByPair[key] = append(labelsByPair[key], edge)
		}
	}
	for _, pairEdges := range labelsByPair {
		for i := 0; i < len(pairEdges); i++ {
			for j := i + 1; j < len(pairEdges); j++ {
				a, b := pairEdges[i], pairEdges[j]
				if a.RelType == b.RelType && *a.Label != *b.Label {
					violations = append(violations, Violation{
						FactID:    a.ID,
						FactTitle: "Contradictory relationship labels",
						Severity:  SeverityWarning,
						Message: fmt.Sprintf(
							"Duplicate %s edges between %s and %s carry contradictory labels %q and %q",
							a.RelType, shortKey(a.In), shortKey(a.Out), *a.Label, *b.Label),
						Confidence:   0.9,
						SuggestedFix: SuggestedFix("contradictory labels"),
					})
				}
			}
		}
	}

	feelingViolations, err := c.checkFeelingAsymmetry(ctx, key)
	if err != nil {
		return nil, err
	}
	violations = append(violations, feelingViolations...)
	return violations, nil
}

// checkFeelingAsymmetry flags bidirectional perceives pairs whose stated
// feelings diverge. One-way perceptions are valid and never flagged.
func (c *Checker) checkFeelingAsymmetry(ctx context.Context, key string) ([]Violation, error) {
	type perceivesRow struct {
		ID       string   `json:"id"`
		In       string   `json:"in"`
		Out      string   `json:"out"`
		Feelings *string  `json:"feelings"`
		RelTypes []string `json:"rel_types"`
	}
	edges, err := db.Query[perceivesRow](ctx, c.client, `
		SELECT <string>id AS id, <string>in AS in, <string>out AS out, feelings, rel_types
		FROM perceives
		WHERE in = type::record("character", $id) OR out = type::record("character", $id)
	`, map[string]any{"id": key})
	if err != nil {
		return nil, err
	}

	byPair := map[[2]string]perceivesRow{}
	for _, edge := range edges {
		byPair[[2]string{edge.In, edge.Out}] = edge
	}

	var violations []Violation
	fullID := "character:" + key
	for _, forward := range edges {
		if forward.In != fullID || forward.Feelings == nil {
			continue
		}
		reverse, ok := byPair[[2]string{forward.Out, forward.In}]
		if !ok || reverse.Feelings == nil || *forward.Feelings == *reverse.Feelings {
			continue
		}

		relTypes := append(append([]string{}, forward.RelTypes...), reverse.RelTypes...)
		kind, severity := asymmetrySeverity(relTypes)
		violations = append(violations, Violation{
			FactID:    forward.ID,
			FactTitle: "Relationship asymmetry",
			Severity:  severity,
			Message: fmt.Sprintf("Asymmetric %s relationship: %s feels '%s' but %s feels '%s'",
				kind, shortKey(forward.In), *forward.Feelings, shortKey(forward.Out), *reverse.Feelings),
			Confidence:   0.6,
			SuggestedFix: SuggestedFix("Asymmetric"),
		})
	}
	return violations, nil
}

// asymmetrySeverity: family and professional asymmetry is likely
// unintentional, romantic and rivalry asymmetry is often deliberate drama.
func asymmetrySeverity(relTypes []string) (string, Severity) {
	has := func(t string) bool {
		for _, r := range relTypes {
			if strings.EqualFold(r, t) {
				return true
			}
		}
		return false
	}
	switch {
	case has("family"):
		return "family", SeverityWarning
	case has("professional"):
		return "professional", SeverityWarning
	case has("romantic"):
		return "romantic", SeverityInfo
	case has("rivalry"):
		return "rivalry", SeverityInfo
	default:
		return "relationship", SeverityInfo
	}
}

// Investigate runs every checker over the entity's neighborhood up to
// maxDepth hops, returning the violations and how many entities were
// checked.
func (c *Checker) Investigate(ctx context.Context, entityID string, maxDepth int) ([]Violation, int, error) {
	if maxDepth < 1 {
		maxDepth = 1
	}
	if maxDepth > maxInvestigationDepth {
		maxDepth = maxInvestigationDepth
	}

	type queued struct {
		id    string
		depth int
	}
	visited := map[string]bool{entityID: true}
	queue := []queued{{entityID, 0}}
	var violations []Violation

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		result, err := c.CheckMutation(ctx, current.id, nil)
		if err != nil {
			return nil, 0, err
		}
		violations = append(violations, result.All()...)

		entityType, _, _ := strings.Cut(current.id, ":")
		if entityType == "character" {
			timeline, err := c.CheckTimeline(ctx, current.id)
			if err != nil {
				return nil, 0, err
			}
			relationships, err := c.CheckRelationships(ctx, current.id)
			if err != nil {
				return nil, 0, err
			}
			violations = append(violations, timeline...)
			violations = append(violations, relationships...)
		}

		if current.depth >= maxDepth {
			continue
		}
		connected, err := c.connectedEntities(ctx, current.id)
		if err != nil {
			return nil, 0, err
		}
		for _, id := range connected {
			if !visited[id] {
				visited[id] = true
				queue = append(queue, queued{id, current.depth + 1})
			}
		}
	}
	return violations, len(visited), nil
}

// connectedEntities lists direct graph neighbors by entity type.
func (c *Checker) connectedEntities(ctx context.Context, entityID string) ([]string, error) {
	entityType, key, found := strings.Cut(entityID, ":")
	if !found {
		return nil, nil
	}

	type idRow struct {
		ID string `json:"id"`
	}
	collect := func(sql string) ([]string, error) {
		rows, err := db.Query[idRow](ctx, c.client, sql, map[string]any{"id": key})
		if err != nil {
			return nil, err
		}
		out := make([]string, len(rows))
		for i, row := range rows {
			out[i] = row.ID
		}
		return out, nil
	}

	switch entityType {
	case "character":
		perceived, err := collect(`SELECT <string>out AS id FROM perceives WHERE in = type::record("character", $id)`)
		if err != nil {
			return nil, err
		}
		scenes, err := collect(`SELECT <string>out AS id FROM participates_in WHERE in = type::record("character", $id)`)
		if err != nil {
			return nil, err
		}
		return append(perceived, scenes...), nil
	case "scene":
		return collect(`SELECT <string>in AS id FROM participates_in WHERE out = type::record("scene", $id)`)
	case "fact":
		return collect(`SELECT <string>out AS id FROM applies_to WHERE in = type::record("fact", $id)`)
	default:
		return nil, nil
	}
}

func (c *Checker) eventSequences(ctx context.Context) (map[string]int64, error) {
	type row struct {
		ID       string `json:"id"`
		Sequence int64  `json:"sequence"`
	}
	rows, err := db.Query[row](ctx, c.client,
		`SELECT <string>id AS id, sequence FROM event`, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.ID] = r.Sequence
	}
	return out, nil
}

func (c *Checker) relatedToStrictFact(ctx context.Context, targetID string) (bool, error) {
	type countRow struct {
		Count int `json:"count"`
	}
	row, err := db.QueryOne[countRow](ctx, c.client, `
		SELECT count() AS count FROM fact
		WHERE enforcement_level = 'strict'
		  AND id IN (SELECT VALUE in FROM applies_to WHERE <string>out = $entity)
		GROUP ALL
	`, map[string]any{"entity": targetID})
	if err != nil {
		return false, err
	}
	return row != nil && row.Count > 0, nil
}

func orderedPair(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

func shortKey(id string) string {
	if _, key, found := strings.Cut(id, ":"); found {
		return key
	}
	return id
}
