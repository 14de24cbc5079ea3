package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/raphaelgruber/narra-go/internal/db"
	"github.com/raphaelgruber/narra-go/internal/models"
)

// ProgressFunc reports step i of n for long-running composite operations.
// A nil ProgressFunc is ignored.
type ProgressFunc func(step, total int, message string)

func (p ProgressFunc) step(i, n int, message string) {
	if p != nil {
		p(i, n, message)
	}
}

// ConflictSummary is one contradictory knowledge state.
type ConflictSummary struct {
	Target        string `json:"target"`
	CharacterID   string `json:"character_id"`
	CharacterName string `json:"character_name"`
	Certainty     string `json:"certainty"`
	TruthValue    string `json:"truth_value"`
}

// HighTensionPair is a perceives edge at or above the tension threshold.
type HighTensionPair struct {
	Observer     string  `json:"observer"`
	Target       string  `json:"target"`
	TensionLevel int     `json:"tension_level"`
	Feelings     *string `json:"feelings,omitempty"`
}

// NarrativeMomentum assesses overall story velocity.
type NarrativeMomentum struct {
	State  string `json:"state"`
	Reason string `json:"reason"`
}

// UnresolvedThread is one open narrative thread.
type UnresolvedThread struct {
	ThreadType  string   `json:"thread_type"`
	Description string   `json:"description"`
	Involves    []string `json:"involves"`
	AgeEstimate string   `json:"age_estimate,omitempty"`
}

// CharacterArcBrief summarizes one character's recent arc activity.
type CharacterArcBrief struct {
	CharacterID   string   `json:"character_id"`
	CharacterName string   `json:"character_name"`
	ArcStatus     string   `json:"arc_status"`
	SnapshotCount int      `json:"snapshot_count"`
	RecentDrift   *float64 `json:"recent_drift,omitempty"`
}

// SituationReport is the combined world-level narrative assessment.
type SituationReport struct {
	IronyHighlights  []KnowledgeAsymmetry `json:"irony_highlights"`
	Conflicts        []ConflictSummary    `json:"knowledge_conflicts"`
	HighTensionPairs []HighTensionPair    `json:"high_tension_pairs"`
	ThemeCount       int                  `json:"theme_count"`
	Suggestions      []string             `json:"suggestions"`
	Momentum         NarrativeMomentum    `json:"narrative_momentum"`
	Threads          []UnresolvedThread   `json:"unresolved_threads"`
	ArcSummaries     []CharacterArcBrief  `json:"character_arc_summaries"`
}

// PerceptionSummary is how one observer sees the dossier subject.
type PerceptionSummary struct {
	Observer     string  `json:"observer"`
	TensionLevel *int    `json:"tension_level,omitempty"`
	Feelings     *string `json:"feelings,omitempty"`
}

// ArcTrajectoryBrief is a compact arc direction readout.
type ArcTrajectoryBrief struct {
	Direction       string  `json:"direction"`
	TotalDrift      float64 `json:"total_drift"`
	SnapshotCount   int     `json:"snapshot_count"`
	MostRecentEvent *string `json:"most_recent_event,omitempty"`
}

// RelationshipBrief is one outgoing relationship with tension overlay.
type RelationshipBrief struct {
	OtherCharacter string `json:"other_character"`
	OtherName      string `json:"other_name"`
	RelType        string `json:"rel_type"`
	Tension        *int   `json:"tension,omitempty"`
}

// KnowledgeInventory totals a character's states by certainty.
type KnowledgeInventory struct {
	Knows           int `json:"knows"`
	Suspects        int `json:"suspects"`
	BelievesWrongly int `json:"believes_wrongly"`
	Uncertain       int `json:"uncertain"`
	Other           int `json:"other"`
}

// CharacterDossier is the full single-character intelligence view.
type CharacterDossier struct {
	Name                 string              `json:"name"`
	Roles                []string            `json:"roles"`
	CentralityRank       *int                `json:"centrality_rank,omitempty"`
	InfluenceReach       int                 `json:"influence_reach"`
	KnowledgeAdvantages  int                 `json:"knowledge_advantages"`
	KnowledgeBlindSpots  int                 `json:"knowledge_blind_spots"`
	FalseBeliefs         int                 `json:"false_beliefs"`
	AvgTensionTowardThem *float64            `json:"avg_tension_toward_them,omitempty"`
	KeyPerceptions       []PerceptionSummary `json:"key_perceptions"`
	Suggestions          []string            `json:"suggestions"`
	ArcTrajectory        *ArcTrajectoryBrief `json:"arc_trajectory,omitempty"`
	RelationshipMap      []RelationshipBrief `json:"relationship_map"`
	KnowledgeInventory   KnowledgeInventory  `json:"knowledge_inventory"`
}

// PairDynamic captures the dramatic state between two scene characters.
type PairDynamic struct {
	CharacterA       string  `json:"character_a"`
	CharacterB       string  `json:"character_b"`
	Asymmetries      int     `json:"asymmetries"`
	TensionLevel     *int    `json:"tension_level,omitempty"`
	Feelings         *string `json:"feelings,omitempty"`
	SharedSceneCount int     `json:"shared_scene_count"`
}

// KnowledgeReveal is a possible in-scene reveal with its weight.
type KnowledgeReveal struct {
	Revealer          string  `json:"revealer"`
	Learner           string  `json:"learner"`
	Fact              string  `json:"fact"`
	DramaticPotential float64 `json:"dramatic_potential"`
}

// FactConstraint is a universe fact binding the scene.
type FactConstraint struct {
	FactID           string `json:"fact_id"`
	Title            string `json:"title"`
	EnforcementLevel string `json:"enforcement_level"`
	Relevance        string `json:"relevance"`
}

// ScenePlan is the planning output for a cast about to meet.
type ScenePlan struct {
	Characters       []string          `json:"characters"`
	PairDynamics     []PairDynamic     `json:"pair_dynamics"`
	TotalIrony       int               `json:"total_irony_opportunities"`
	HighestTension   *HighTensionPair  `json:"highest_tension_pair,omitempty"`
	SharedScenes     int               `json:"shared_history_scenes"`
	ApplicableFacts  []string          `json:"applicable_facts"`
	Opportunities    []string          `json:"opportunities"`
	KnowledgeReveals []KnowledgeReveal `json:"knowledge_reveals"`
	FactConstraints  []FactConstraint  `json:"fact_constraints"`
}

// IntelligenceService orchestrates the analytics services into composite
// narrative reports.
type IntelligenceService struct {
	client    *db.Client
	irony     *IronyService
	graph     *GraphService
	influence *InfluenceService
	cluster   *ClusterService
}

// NewIntelligenceService creates the composite intelligence service.
func NewIntelligenceService(client *db.Client) *IntelligenceService {
	return &IntelligenceService{
		client:    client,
		irony:     NewIronyService(client),
		graph:     NewGraphService(client),
		influence: NewInfluenceService(client),
		cluster:   NewClusterService(client),
	}
}

// Situation produces the world-level narrative report.
func (s *IntelligenceService) Situation(ctx context.Context, progress ProgressFunc) (*SituationReport, error) {
	report := &SituationReport{}

	progress.step(1, 6, "analyzing dramatic irony")
	ironyReport, err := s.irony.Report(ctx, 3, 0)
	if err != nil {
		return nil, err
	}
	report.IronyHighlights = ironyReport.Asymmetries
	if len(report.IronyHighlights) > 5 {
		report.IronyHighlights = report.IronyHighlights[:5]
	}

	progress.step(2, 6, "collecting knowledge conflicts")
	report.Conflicts, err = s.knowledgeConflicts(ctx)
	if err != nil {
		return nil, err
	}

	progress.step(3, 6, "scanning tension levels")
	report.HighTensionPairs, err = s.highTensionPairs(ctx, 7, 10)
	if err != nil {
		return nil, err
	}

	progress.step(4, 6, "clustering themes")
	if clusters, err := s.cluster.Thematic(ctx, 5); err == nil {
		report.ThemeCount = len(clusters)
	}

	progress.step(5, 6, "assessing momentum")
	report.Momentum = s.momentum(ctx)
	report.Threads = s.unresolvedThreads(ctx)
	report.ArcSummaries = s.arcBriefs(ctx, 5)

	progress.step(6, 6, "composing suggestions")
	report.Suggestions = situationSuggestions(report.IronyHighlights, report.Conflicts, report.HighTensionPairs)
	return report, nil
}

// Dossier produces the full intelligence view for one character.
func (s *IntelligenceService) Dossier(ctx context.Context, characterID string, progress ProgressFunc) (*CharacterDossier, error) {
	fullID := normalizeCharacterID(characterID)
	key := strings.TrimPrefix(fullID, "character:")

	progress.step(1, 5, "loading character")
	type infoRow struct {
		Name  string   `json:"name"`
		Roles []string `json:"roles"`
	}
	info, err := db.QueryOne[infoRow](ctx, s.client,
		`SELECT name, roles FROM type::record("character", $id)`,
		map[string]any{"id": key})
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, &db.NotFoundError{EntityType: "character", ID: characterID}
	}
	dossier := &CharacterDossier{Name: info.Name, Roles: info.Roles}

	progress.step(2, 5, "computing network position")
	if metrics, err := s.graph.Centrality(ctx, "", MetricDegree); err == nil {
		for i, m := range metrics {
			if m.ID == fullID {
				rank := i + 1
				dossier.CentralityRank = &rank
				break
			}
		}
	}
	if influence, err := s.influence.Propagate(ctx, fullID, "", 3); err == nil {
		reached := map[string]bool{}
		for _, path := range influence.Paths {
			for _, edge := range path.Edges {
				reached[edge.To] = true
			}
		}
		dossier.InfluenceReach = len(reached)
	}

	progress.step(3, 5, "tallying knowledge position")
	if ironyReport, err := s.irony.Report(ctx, 0, 0); err == nil {
		for _, a := range ironyReport.Asymmetries {
			if a.KnowerID == fullID {
				dossier.KnowledgeAdvantages++
			}
			if a.UnawareID == fullID {
				dossier.KnowledgeBlindSpots++
			}
		}
	}
	dossier.FalseBeliefs, err = s.countStates(ctx, key, models.CertaintyBelievesWrongly)
	if err != nil {
		return nil, err
	}
	dossier.KnowledgeInventory, err = s.knowledgeInventory(ctx, key)
	if err != nil {
		return nil, err
	}

	progress.step(4, 5, "reading perceptions")
	dossier.AvgTensionTowardThem, dossier.KeyPerceptions, err = s.perceptionsAbout(ctx, key, 5)
	if err != nil {
		return nil, err
	}
	dossier.RelationshipMap, err = s.relationshipMap(ctx, key)
	if err != nil {
		return nil, err
	}
	dossier.ArcTrajectory = s.arcTrajectory(ctx, fullID)

	progress.step(5, 5, "composing suggestions")
	dossier.Suggestions = dossierSuggestions(dossier)
	return dossier, nil
}

// ScenePlanning analyzes the dynamics of a cast about to share a scene.
func (s *IntelligenceService) ScenePlanning(ctx context.Context, characterIDs []string, progress ProgressFunc) (*ScenePlan, error) {
	if len(characterIDs) < 2 {
		return nil, db.Validationf("scene planning needs at least 2 characters, have %d", len(characterIDs))
	}
	cast := make([]string, len(characterIDs))
	for i, id := range characterIDs {
		cast[i] = normalizeCharacterID(id)
	}
	plan := &ScenePlan{Characters: cast}

	progress.step(1, 4, "detecting pair asymmetries")
	ironyReport, err := s.irony.Report(ctx, 0, 0)
	if err != nil {
		return nil, err
	}
	inCast := map[string]bool{}
	for _, id := range cast {
		inCast[id] = true
	}
	asymmetriesByPair := map[[2]string][]KnowledgeAsymmetry{}
	for _, a := range ironyReport.Asymmetries {
		if inCast[a.KnowerID] && inCast[a.UnawareID] {
			key := pairKey(a.KnowerID, a.UnawareID)
			asymmetriesByPair[key] = append(asymmetriesByPair[key], a)
		}
	}

	progress.step(2, 4, "measuring pair dynamics")
	var castAsymmetries []KnowledgeAsymmetry
	for i := 0; i < len(cast); i++ {
		for j := i + 1; j < len(cast); j++ {
			a, b := cast[i], cast[j]
			pairAsyms := asymmetriesByPair[pairKey(a, b)]
			castAsymmetries = append(castAsymmetries, pairAsyms...)
			plan.TotalIrony += len(pairAsyms)

			tension, feelings, err := s.pairTension(ctx, a, b)
			if err != nil {
				return nil, err
			}
			if tension != nil && (plan.HighestTension == nil || *tension > plan.HighestTension.TensionLevel) {
				plan.HighestTension = &HighTensionPair{
					Observer: a, Target: b, TensionLevel: *tension, Feelings: feelings,
				}
			}

			shared, err := s.sharedSceneCount(ctx, a, b)
			if err != nil {
				return nil, err
			}
			plan.SharedScenes += shared

			plan.PairDynamics = append(plan.PairDynamics, PairDynamic{
				CharacterA:       a,
				CharacterB:       b,
				Asymmetries:      len(pairAsyms),
				TensionLevel:     tension,
				Feelings:         feelings,
				SharedSceneCount: shared,
			})
		}
	}

	progress.step(3, 4, "checking universe facts")
	plan.ApplicableFacts, plan.FactConstraints, err = s.applicableFacts(ctx, cast)
	if err != nil {
		return nil, err
	}

	progress.step(4, 4, "composing opportunities")
	plan.Opportunities = sceneOpportunities(plan.PairDynamics, plan.ApplicableFacts)
	plan.KnowledgeReveals = knowledgeReveals(castAsymmetries)
	return plan, nil
}

// PairAsymmetries returns both directions of knowledge asymmetry between
// two characters.
func (s *IntelligenceService) PairAsymmetries(ctx context.Context, characterA, characterB string) ([]KnowledgeAsymmetry, error) {
	a := normalizeCharacterID(characterA)
	b := normalizeCharacterID(characterB)
	report, err := s.irony.Report(ctx, 0, 0)
	if err != nil {
		return nil, err
	}
	var out []KnowledgeAsymmetry
	for _, asym := range report.Asymmetries {
		if (asym.KnowerID == a && asym.UnawareID == b) || (asym.KnowerID == b && asym.UnawareID == a) {
			out = append(out, asym)
		}
	}
	return out, nil
}

type knowsStateRow struct {
	In         string  `json:"in"`
	InName     string  `json:"in_name"`
	Out        string  `json:"out"`
	Certainty  string  `json:"certainty"`
	TruthValue *string `json:"truth_value"`
}

func (s *IntelligenceService) knowledgeConflicts(ctx context.Context) ([]ConflictSummary, error) {
	rows, err := db.Query[knowsStateRow](ctx, s.client, `
		SELECT <string>in AS in, in.name AS in_name, <string>out AS out, certainty, truth_value
		FROM knows WHERE superseded = false
	`, nil)
	if err != nil {
		return nil, err
	}

	byTarget := map[string][]knowsStateRow{}
	for _, row := range rows {
		byTarget[row.Out] = append(byTarget[row.Out], row)
	}

	var out []ConflictSummary
	for target, states := range byTarget {
		conflicted := map[string]bool{}
		for i := 0; i < len(states); i++ {
			for j := i + 1; j < len(states); j++ {
				if !certaintiesConflict(states[i], states[j]) {
					continue
				}
				conflicted[states[i].In] = true
				conflicted[states[j].In] = true
			}
		}
		for _, state := range states {
			if !conflicted[state.In] {
				continue
			}
			truth := "unknown"
			if state.TruthValue != nil {
				truth = *state.TruthValue
			}
			out = append(out, ConflictSummary{
				Target:        target,
				CharacterID:   state.In,
				CharacterName: state.InName,
				Certainty:     state.Certainty,
				TruthValue:    truth,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Target != out[j].Target {
			return out[i].Target < out[j].Target
		}
		return out[i].CharacterID < out[j].CharacterID
	})
	return out, nil
}

func certaintiesConflict(a, b knowsStateRow) bool {
	ca, cb := models.ParseCertainty(a.Certainty), models.ParseCertainty(b.Certainty)
	affirmative := func(c models.Certainty) bool {
		return c == models.CertaintyKnows || c == models.CertaintySuspects
	}
	if (affirmative(ca) && cb == models.CertaintyDenies) || (affirmative(cb) && ca == models.CertaintyDenies) {
		return true
	}
	if (ca == models.CertaintyKnows && cb == models.CertaintyBelievesWrongly) ||
		(cb == models.CertaintyKnows && ca == models.CertaintyBelievesWrongly) {
		return true
	}
	return a.TruthValue != nil && b.TruthValue != nil && *a.TruthValue != *b.TruthValue
}

func (s *IntelligenceService) highTensionPairs(ctx context.Context, minTension, limit int) ([]HighTensionPair, error) {
	type row struct {
		InName       string  `json:"in_name"`
		OutName      string  `json:"out_name"`
		TensionLevel int     `json:"tension_level"`
		Feelings     *string `json:"feelings"`
	}
	rows, err := db.Query[row](ctx, s.client, `
		SELECT in.name AS in_name, out.name AS out_name, tension_level, feelings
		FROM perceives
		WHERE tension_level IS NOT NONE AND tension_level >= $min
		ORDER BY tension_level DESC LIMIT $limit
	`, map[string]any{"min": minTension, "limit": limit})
	if err != nil {
		return nil, err
	}
	out := make([]HighTensionPair, 0, len(rows))
	for _, r := range rows {
		out = append(out, HighTensionPair{
			Observer: r.InName, Target: r.OutName,
			TensionLevel: r.TensionLevel, Feelings: r.Feelings,
		})
	}
	return out, nil
}

// momentum assesses story velocity from recent snapshot activity and the
// average tension level. Failures degrade to a stalling readout.
func (s *IntelligenceService) momentum(ctx context.Context) NarrativeMomentum {
	type activityRow struct {
		Recent int `json:"recent"`
		Old    int `json:"old"`
	}
	activity, _ := db.QueryOne[activityRow](ctx, s.client, `
		SELECT
			count(created_at >= time::now() - 30d) AS recent,
			count(created_at < time::now() - 30d AND created_at >= time::now() - 60d) AS old
		FROM arc_snapshot WHERE entity_type = 'character' GROUP ALL
	`, nil)

	type tensionRow struct {
		AvgTension *float64 `json:"avg_tension"`
	}
	tension, _ := db.QueryOne[tensionRow](ctx, s.client, `
		SELECT math::mean(tension_level) AS avg_tension
		FROM perceives WHERE tension_level IS NOT NONE GROUP ALL
	`, nil)

	switch {
	case activity != nil && tension != nil && tension.AvgTension != nil && *tension.AvgTension >= 7:
		return NarrativeMomentum{
			State: "climactic",
			Reason: fmt.Sprintf("High tension (avg %.1f), %d arc updates in last 30 days",
				*tension.AvgTension, activity.Recent),
		}
	case activity != nil && activity.Recent > activity.Old:
		return NarrativeMomentum{
			State: "accelerating",
			Reason: fmt.Sprintf("%d arc updates in last 30 days vs %d in previous 30 days",
				activity.Recent, activity.Old),
		}
	default:
		return NarrativeMomentum{State: "stalling", Reason: "Low arc activity and tension levels"}
	}
}

// unresolvedThreads collects open threads: secrets, high tensions, false
// beliefs, and stale arcs. Query failures drop the family silently.
func (s *IntelligenceService) unresolvedThreads(ctx context.Context) []UnresolvedThread {
	var threads []UnresolvedThread

	type secretRow struct {
		Target      string `json:"target"`
		CharacterID string `json:"character_id"`
	}
	secrets, _ := db.Query[secretRow](ctx, s.client, `
		SELECT <string>out AS target, <string>array::first(array::group(<string>in)) AS character_id
		FROM knows WHERE superseded = false AND certainty = 'knows'
		GROUP BY out HAVING count() = 1 LIMIT 5
	`, nil)
	for _, row := range secrets {
		threads = append(threads, UnresolvedThread{
			ThreadType:  "secret",
			Description: fmt.Sprintf("Only %s knows about %s", shortID(row.CharacterID), shortID(row.Target)),
			Involves:    []string{row.CharacterID, row.Target},
		})
	}

	type tensionRow struct {
		In           string `json:"in"`
		Out          string `json:"out"`
		TensionLevel int    `json:"tension_level"`
	}
	tensions, _ := db.Query[tensionRow](ctx, s.client, `
		SELECT <string>in AS in, <string>out AS out, tension_level
		FROM perceives WHERE tension_level >= 7
		ORDER BY tension_level DESC LIMIT 5
	`, nil)
	for _, row := range tensions {
		threads = append(threads, UnresolvedThread{
			ThreadType: "tension",
			Description: fmt.Sprintf("High tension (%d) between %s and %s",
				row.TensionLevel, shortID(row.In), shortID(row.Out)),
			Involves:    []string{row.In, row.Out},
			AgeEstimate: "recent",
		})
	}

	type beliefRow struct {
		In  string `json:"in"`
		Out string `json:"out"`
	}
	beliefs, _ := db.Query[beliefRow](ctx, s.client, `
		SELECT <string>in AS in, <string>out AS out
		FROM knows WHERE superseded = false AND certainty = 'believes_wrongly' LIMIT 5
	`, nil)
	for _, row := range beliefs {
		threads = append(threads, UnresolvedThread{
			ThreadType:  "false_belief",
			Description: fmt.Sprintf("%s holds false belief about %s", shortID(row.In), shortID(row.Out)),
			Involves:    []string{row.In, row.Out},
		})
	}

	stale, _ := db.Query[graphNodeRow](ctx, s.client, `
		SELECT <string>id AS id, name FROM character
		WHERE <string>id NOT IN (SELECT VALUE entity_id FROM arc_snapshot WHERE created_at >= time::now() - 30d)
		LIMIT 5
	`, nil)
	for _, row := range stale {
		threads = append(threads, UnresolvedThread{
			ThreadType:  "stale_arc",
			Description: fmt.Sprintf("%s has no recent arc development", row.Name),
			Involves:    []string{row.ID},
			AgeEstimate: "old",
		})
	}
	return threads
}

func (s *IntelligenceService) arcBriefs(ctx context.Context, limit int) []CharacterArcBrief {
	type row struct {
		EntityID      string   `json:"entity_id"`
		Name          string   `json:"name"`
		SnapshotCount int      `json:"snapshot_count"`
		RecentDrift   *float64 `json:"recent_drift"`
	}
	rows, _ := db.Query[row](ctx, s.client, `
		SELECT entity_id, count() AS snapshot_count,
			math::mean(delta_magnitude) AS recent_drift
		FROM arc_snapshot
		WHERE entity_type = 'character' AND created_at >= time::now() - 90d
		GROUP BY entity_id
		ORDER BY snapshot_count DESC LIMIT $limit
	`, map[string]any{"limit": limit})

	briefs := make([]CharacterArcBrief, 0, len(rows))
	for _, r := range rows {
		status := "unknown"
		if r.RecentDrift != nil {
			switch {
			case *r.RecentDrift > 0.5:
				status = "growing"
			case *r.RecentDrift < 0.2:
				status = "stagnant"
			default:
				status = "evolving"
			}
		}
		name := r.Name
		if name == "" {
			type nameRow struct {
				Name string `json:"name"`
			}
			if nr, err := db.QueryOne[nameRow](ctx, s.client,
				`SELECT name FROM type::record("character", $id)`,
				map[string]any{"id": strings.TrimPrefix(r.EntityID, "character:")}); err == nil && nr != nil {
				name = nr.Name
			}
		}
		briefs = append(briefs, CharacterArcBrief{
			CharacterID:   r.EntityID,
			CharacterName: name,
			ArcStatus:     status,
			SnapshotCount: r.SnapshotCount,
			RecentDrift:   r.RecentDrift,
		})
	}
	return briefs
}

func (s *IntelligenceService) countStates(ctx context.Context, key string, certainty models.Certainty) (int, error) {
	type countRow struct {
		Count int `json:"count"`
	}
	row, err := db.QueryOne[countRow](ctx, s.client, `
		SELECT count() AS count FROM knows
		WHERE in = type::record("character", $id) AND superseded = false AND certainty = $certainty
		GROUP ALL
	`, map[string]any{"id": key, "certainty": string(certainty)})
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 0, nil
	}
	return row.Count, nil
}

func (s *IntelligenceService) knowledgeInventory(ctx context.Context, key string) (KnowledgeInventory, error) {
	type row struct {
		Certainty string `json:"certainty"`
		Count     int    `json:"count"`
	}
	rows, err := db.Query[row](ctx, s.client, `
		SELECT certainty, count() AS count FROM knows
		WHERE in = type::record("character", $id) AND superseded = false
		GROUP BY certainty
	`, map[string]any{"id": key})
	if err != nil {
		return KnowledgeInventory{}, err
	}
	var inventory KnowledgeInventory
	for _, r := range rows {
		switch models.Certainty(r.Certainty) {
		case models.CertaintyKnows:
			inventory.Knows = r.Count
		case models.CertaintySuspects:
			inventory.Suspects = r.Count
		case models.CertaintyBelievesWrongly:
			inventory.BelievesWrongly = r.Count
		case models.CertaintyUncertain:
			inventory.Uncertain = r.Count
		default:
			inventory.Other += r.Count
		}
	}
	return inventory, nil
}

func (s *IntelligenceService) perceptionsAbout(ctx context.Context, key string, limit int) (*float64, []PerceptionSummary, error) {
	type row struct {
		InName       string  `json:"in_name"`
		TensionLevel *int    `json:"tension_level"`
		Feelings     *string `json:"feelings"`
	}
	rows, err := db.Query[row](ctx, s.client, `
		SELECT in.name AS in_name, tension_level, feelings
		FROM perceives WHERE out = type::record("character", $id)
		ORDER BY tension_level DESC LIMIT $limit
	`, map[string]any{"id": key, "limit": limit})
	if err != nil {
		return nil, nil, err
	}

	var sum float64
	var count int
	perceptions := make([]PerceptionSummary, 0, len(rows))
	for _, r := range rows {
		perceptions = append(perceptions, PerceptionSummary{
			Observer: r.InName, TensionLevel: r.TensionLevel, Feelings: r.Feelings,
		})
		if r.TensionLevel != nil {
			sum += float64(*r.TensionLevel)
			count++
		}
	}
	if count == 0 {
		return nil, perceptions, nil
	}
	avg := sum / float64(count)
	return &avg, perceptions, nil
}

func (s *IntelligenceService) relationshipMap(ctx context.Context, key string) ([]RelationshipBrief, error) {
	type row struct {
		Out     string `json:"out"`
		OutName string `json:"out_name"`
		RelType string `json:"rel_type"`
	}
	rows, err := db.Query[row](ctx, s.client, `
		SELECT <string>out AS out, out.name AS out_name, rel_type
		FROM relates_to WHERE in = type::record("character", $id) LIMIT 20
	`, map[string]any{"id": key})
	if err != nil {
		return nil, err
	}

	briefs := make([]RelationshipBrief, 0, len(rows))
	for _, r := range rows {
		tension, _, err := s.pairTension(ctx, "character:"+key, r.Out)
		if err != nil {
			return nil, err
		}
		briefs = append(briefs, RelationshipBrief{
			OtherCharacter: r.Out,
			OtherName:      r.OutName,
			RelType:        r.RelType,
			Tension:        tension,
		})
	}
	return briefs, nil
}

func (s *IntelligenceService) arcTrajectory(ctx context.Context, fullID string) *ArcTrajectoryBrief {
	type row struct {
		DeltaMagnitude *float64 `json:"delta_magnitude"`
		EventID        *string  `json:"event_id"`
	}
	rows, _ := db.Query[row](ctx, s.client, `
		SELECT delta_magnitude, event_id FROM arc_snapshot
		WHERE entity_id = $id AND entity_type = 'character'
		ORDER BY created_at DESC LIMIT 10
	`, map[string]any{"id": fullID})
	if len(rows) == 0 {
		return nil
	}

	brief := &ArcTrajectoryBrief{SnapshotCount: len(rows), MostRecentEvent: rows[0].EventID}
	for _, r := range rows {
		if r.DeltaMagnitude != nil {
			brief.TotalDrift += *r.DeltaMagnitude
		}
	}

	if len(rows) < 2 {
		brief.Direction = "unknown"
		return brief
	}
	var recent float64
	for i := 0; i < 3 && i < len(rows); i++ {
		if rows[i].DeltaMagnitude != nil {
			recent += *rows[i].DeltaMagnitude
		}
	}
	recent /= 3
	switch {
	case recent > 0.5:
		brief.Direction = "growing"
	case recent < 0.2:
		brief.Direction = "stable"
	default:
		brief.Direction = "declining"
	}
	return brief
}

func (s *IntelligenceService) pairTension(ctx context.Context, a, b string) (*int, *string, error) {
	keyA := strings.TrimPrefix(a, "character:")
	keyB := strings.TrimPrefix(b, "character:")
	type row struct {
		TensionLevel *int    `json:"tension_level"`
		Feelings     *string `json:"feelings"`
	}
	r, err := db.QueryOne[row](ctx, s.client, `
		SELECT tension_level, feelings FROM perceives
		WHERE (in = type::record("character", $a) AND out = type::record("character", $b))
		   OR (in = type::record("character", $b) AND out = type::record("character", $a))
		ORDER BY tension_level DESC LIMIT 1
	`, map[string]any{"a": keyA, "b": keyB})
	if err != nil {
		return nil, nil, err
	}
	if r == nil {
		return nil, nil, nil
	}
	return r.TensionLevel, r.Feelings, nil
}

func (s *IntelligenceService) sharedSceneCount(ctx context.Context, a, b string) (int, error) {
	type row struct {
		Out string `json:"out"`
	}
	query := `SELECT <string>out AS out FROM participates_in WHERE in = type::record("character", $id)`
	scenesA, err := db.Query[row](ctx, s.client, query,
		map[string]any{"id": strings.TrimPrefix(a, "character:")})
	if err != nil {
		return 0, err
	}
	scenesB, err := db.Query[row](ctx, s.client, query,
		map[string]any{"id": strings.TrimPrefix(b, "character:")})
	if err != nil {
		return 0, err
	}
	inA := map[string]bool{}
	for _, r := range scenesA {
		inA[r.Out] = true
	}
	shared := 0
	for _, r := range scenesB {
		if inA[r.Out] {
			shared++
		}
	}
	return shared, nil
}

func (s *IntelligenceService) applicableFacts(ctx context.Context, cast []string) ([]string, []FactConstraint, error) {
	keys := make([]string, len(cast))
	for i, id := range cast {
		keys[i] = strings.TrimPrefix(id, "character:")
	}
	type row struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		Enforcement string `json:"enforcement_level"`
	}
	rows, err := db.Query[row](ctx, s.client, `
		SELECT <string>id AS id, title, enforcement_level FROM fact
		WHERE id IN (SELECT VALUE in FROM applies_to WHERE <string>out INSIDE $cast)
	`, map[string]any{"cast": cast})
	if err != nil {
		return nil, nil, err
	}

	titles := make([]string, 0, len(rows))
	constraints := make([]FactConstraint, 0, len(rows))
	for _, r := range rows {
		titles = append(titles, r.Title)
		constraints = append(constraints, FactConstraint{
			FactID:           r.ID,
			Title:            r.Title,
			EnforcementLevel: r.Enforcement,
			Relevance:        "Applies to characters in this scene",
		})
	}
	return titles, constraints, nil
}

func situationSuggestions(irony []KnowledgeAsymmetry, conflicts []ConflictSummary, tensions []HighTensionPair) []string {
	var suggestions []string
	if len(irony) > 0 {
		top := irony[0]
		suggestions = append(suggestions, fmt.Sprintf(
			"High dramatic irony: %s knows something %s doesn't about %q, consider a reveal scene",
			top.KnowerName, top.UnawareName, top.FactText))
	}
	if len(conflicts) > 0 {
		suggestions = append(suggestions, fmt.Sprintf(
			"%d character(s) hold contradictory beliefs, potential confrontation or discovery moments",
			len(conflicts)))
	}
	if len(tensions) > 0 {
		top := tensions[0]
		suggestions = append(suggestions, fmt.Sprintf(
			"Highest tension (%d) between %s and %s, ripe for conflict escalation",
			top.TensionLevel, top.Observer, top.Target))
	}
	if len(suggestions) == 0 {
		suggestions = append(suggestions,
			"The narrative is relatively stable, consider introducing new secrets, misunderstandings, or conflicting goals")
	}
	return suggestions
}

func dossierSuggestions(d *CharacterDossier) []string {
	var suggestions []string
	if d.CentralityRank != nil {
		if *d.CentralityRank <= 3 {
			suggestions = append(suggestions, fmt.Sprintf(
				"%s is a central figure (rank #%d), their actions have wide narrative impact",
				d.Name, *d.CentralityRank))
		} else if *d.CentralityRank > 10 {
			suggestions = append(suggestions, fmt.Sprintf(
				"%s is peripheral (rank #%d), consider strengthening connections or making isolation a plot point",
				d.Name, *d.CentralityRank))
		}
	}
	if d.InfluenceReach == 0 {
		suggestions = append(suggestions, fmt.Sprintf(
			"%s has no influence paths, they are isolated from the information network", d.Name))
	}
	if d.KnowledgeBlindSpots > d.KnowledgeAdvantages {
		suggestions = append(suggestions, fmt.Sprintf(
			"%s has more blind spots (%d) than advantages (%d), vulnerable to surprises",
			d.Name, d.KnowledgeBlindSpots, d.KnowledgeAdvantages))
	} else if d.KnowledgeAdvantages > 0 {
		suggestions = append(suggestions, fmt.Sprintf(
			"%s holds %d knowledge advantages, potential for strategic reveals or leverage",
			d.Name, d.KnowledgeAdvantages))
	}
	if d.FalseBeliefs > 0 {
		suggestions = append(suggestions, fmt.Sprintf(
			"%s holds %d false belief(s), each is a potential turning point when corrected",
			d.Name, d.FalseBeliefs))
	}
	highTension := 0
	for _, p := range d.KeyPerceptions {
		if p.TensionLevel != nil && *p.TensionLevel >= 7 {
			highTension++
		}
	}
	if highTension > 0 {
		suggestions = append(suggestions, fmt.Sprintf(
			"%d observer(s) have high tension toward %s, unresolved conflicts ahead", highTension, d.Name))
	}
	return suggestions
}

func sceneOpportunities(dynamics []PairDynamic, applicableFacts []string) []string {
	var opportunities []string
	for _, d := range dynamics {
		if d.Asymmetries > 0 && d.SharedSceneCount == 0 {
			opportunities = append(opportunities, fmt.Sprintf(
				"%s and %s have never shared a scene but have %d knowledge asymmetries, a first meeting would be dramatic",
				shortID(d.CharacterA), shortID(d.CharacterB), d.Asymmetries))
		}
	}
	for _, d := range dynamics {
		if d.TensionLevel != nil && *d.TensionLevel >= 7 {
			opportunities = append(opportunities, fmt.Sprintf(
				"High tension (%d) between %s and %s, confrontation or reconciliation moment",
				*d.TensionLevel, shortID(d.CharacterA), shortID(d.CharacterB)))
		}
	}
	if len(applicableFacts) > 0 {
		opportunities = append(opportunities, fmt.Sprintf(
			"%d universe fact(s) apply to these characters, consider fact enforcement in the scene",
			len(applicableFacts)))
	}
	return opportunities
}

func knowledgeReveals(asymmetries []KnowledgeAsymmetry) []KnowledgeReveal {
	reveals := make([]KnowledgeReveal, 0, len(asymmetries))
	for _, a := range asymmetries {
		reveals = append(reveals, KnowledgeReveal{
			Revealer:          a.KnowerName,
			Learner:           a.UnawareName,
			Fact:              a.FactText,
			DramaticPotential: a.DramaticWeight,
		})
	}
	sort.SliceStable(reveals, func(i, j int) bool {
		return reveals[i].DramaticPotential > reveals[j].DramaticPotential
	})
	if len(reveals) > 5 {
		reveals = reveals[:5]
	}
	return reveals
}

func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

func shortID(id string) string {
	if _, key, found := strings.Cut(id, ":"); found {
		return key
	}
	return id
}

func normalizeCharacterID(id string) string {
	if strings.Contains(id, ":") {
		return id
	}
	return "character:" + id
}
