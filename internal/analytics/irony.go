package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/raphaelgruber/narra-go/internal/db"
	"github.com/raphaelgruber/narra-go/internal/models"
)

// KnowledgeAsymmetry is one (knower, unaware) pair over a shared target.
type KnowledgeAsymmetry struct {
	KnowerID       string                `json:"knower_id"`
	KnowerName     string                `json:"knower_name"`
	UnawareID      string                `json:"unaware_id"`
	UnawareName    string                `json:"unaware_name"`
	TargetID       string                `json:"target_id"`
	FactText       string                `json:"fact_text"`
	Certainty      models.Certainty      `json:"certainty"`
	LearningMethod models.LearningMethod `json:"learning_method"`
	ScenesSince    int                   `json:"scenes_since"`
	SignalStrength string                `json:"signal_strength"`
	TensionLevel   *int                  `json:"tension_level,omitempty"`
	Feelings       *string               `json:"feelings,omitempty"`
	HistoryNotes   *string               `json:"history_notes,omitempty"`
	DramaticWeight float64               `json:"dramatic_weight"`
}

// IronyReport is the output of a dramatic irony analysis.
type IronyReport struct {
	Asymmetries   []KnowledgeAsymmetry `json:"asymmetries"`
	Opportunities []string             `json:"opportunities"`
}

// IronyService finds dramatic irony: facts one character holds that
// another, dramatically relevant character has no state about.
type IronyService struct {
	client *db.Client
}

// NewIronyService creates the irony service.
func NewIronyService(client *db.Client) *IronyService {
	return &IronyService{client: client}
}

type ironyStateRow struct {
	In             string    `json:"in"`
	InName         string    `json:"in_name"`
	Out            string    `json:"out"`
	Certainty      string    `json:"certainty"`
	LearningMethod string    `json:"learning_method"`
	LearnedAt      time.Time `json:"learned_at"`
}

type ironyContextRow struct {
	In           string  `json:"in"`
	Out          string  `json:"out"`
	TensionLevel *int    `json:"tension_level"`
	Feelings     *string `json:"feelings"`
	HistoryNotes *string `json:"history_notes"`
}

type factTextRow struct {
	ID          string  `json:"id"`
	Fact        *string `json:"fact"`
	Name        *string `json:"name"`
	Enforcement *string `json:"enforcement_level"`
}

// Report computes all knowledge asymmetries with scenes_since at least
// minScenes, sorted by dramatic weight.
func (s *IronyService) Report(ctx context.Context, minScenes, opportunityCount int) (*IronyReport, error) {
	// Bulk preloads: one query per data family, never per pair.
	states, err := db.Query[ironyStateRow](ctx, s.client, `
		SELECT <string>in AS in, in.name AS in_name, <string>out AS out,
			certainty, learning_method, learned_at
		FROM knows WHERE superseded = false
	`, nil)
	if err != nil {
		return nil, err
	}

	characters, err := db.Query[graphNodeRow](ctx, s.client,
		`SELECT <string>id AS id, name FROM character`, nil)
	if err != nil {
		return nil, err
	}

	type sceneTimeRow struct {
		CreatedAt time.Time `json:"created_at"`
	}
	sceneRows, err := db.Query[sceneTimeRow](ctx, s.client,
		`SELECT created_at FROM scene ORDER BY created_at DESC`, nil)
	if err != nil {
		return nil, err
	}
	sceneTimes := make([]time.Time, len(sceneRows))
	for i, row := range sceneRows {
		sceneTimes[i] = row.CreatedAt
	}

	contexts, err := db.Query[ironyContextRow](ctx, s.client, `
		SELECT <string>in AS in, <string>out AS out, tension_level, feelings, history_notes
		FROM perceives
	`, nil)
	if err != nil {
		return nil, err
	}
	contextByPair := map[[2]string]ironyContextRow{}
	for _, row := range contexts {
		contextByPair[[2]string{row.In, row.Out}] = row
	}

	factTexts, err := s.preloadTargetTexts(ctx)
	if err != nil {
		return nil, err
	}

	knownBy := map[string]map[string]bool{}
	for _, state := range states {
		if knownBy[state.Out] == nil {
			knownBy[state.Out] = map[string]bool{}
		}
		knownBy[state.Out][state.In] = true
	}

	report := &IronyReport{}
	for _, state := range states {
		target := factTexts[state.Out]
		for _, other := range characters {
			if other.ID == state.In {
				continue
			}
			if knownBy[state.Out][other.ID] {
				continue
			}
			// Character targets: the subject of the fact is trivially
			// "unaware of" themselves, skip.
			if state.Out == other.ID {
				continue
			}

			scenesSince := ScenesSince(sceneTimes, state.LearnedAt)
			if scenesSince < minScenes {
				continue
			}

			asymmetry := KnowledgeAsymmetry{
				KnowerID:       state.In,
				KnowerName:     state.InName,
				UnawareID:      other.ID,
				UnawareName:    other.Name,
				TargetID:       state.Out,
				FactText:       target.text,
				Certainty:      models.ParseCertainty(state.Certainty),
				LearningMethod: models.ParseLearningMethod(state.LearningMethod),
				ScenesSince:    scenesSince,
				SignalStrength: SignalStrength(scenesSince),
			}
			if pairCtx, ok := contextByPair[[2]string{state.In, other.ID}]; ok {
				asymmetry.TensionLevel = pairCtx.TensionLevel
				asymmetry.Feelings = pairCtx.Feelings
				asymmetry.HistoryNotes = pairCtx.HistoryNotes
			}
			asymmetry.DramaticWeight = DramaticWeight(scenesSince, asymmetry.TensionLevel, target.enforcement)
			report.Asymmetries = append(report.Asymmetries, asymmetry)
		}
	}

	sort.SliceStable(report.Asymmetries, func(i, j int) bool {
		a, b := report.Asymmetries[i], report.Asymmetries[j]
		if a.DramaticWeight != b.DramaticWeight {
			return a.DramaticWeight > b.DramaticWeight
		}
		if signalRank(a.SignalStrength) != signalRank(b.SignalStrength) {
			return signalRank(a.SignalStrength) < signalRank(b.SignalStrength)
		}
		return a.ScenesSince > b.ScenesSince
	})

	report.Opportunities = opportunities(report.Asymmetries, opportunityCount)
	return report, nil
}

type targetText struct {
	text        string
	enforcement models.EnforcementLevel
}

// preloadTargetTexts fetches display text for every possible knows target:
// knowledge facts, characters, and universe facts with enforcement levels.
func (s *IronyService) preloadTargetTexts(ctx context.Context) (map[string]targetText, error) {
	out := map[string]targetText{}

	knowledgeRows, err := db.Query[factTextRow](ctx, s.client,
		`SELECT <string>id AS id, fact FROM knowledge`, nil)
	if err != nil {
		return nil, err
	}
	for _, row := range knowledgeRows {
		if row.Fact != nil {
			out[row.ID] = targetText{text: *row.Fact}
		}
	}

	characterRows, err := db.Query[factTextRow](ctx, s.client,
		`SELECT <string>id AS id, name FROM character`, nil)
	if err != nil {
		return nil, err
	}
	for _, row := range characterRows {
		if row.Name != nil {
			out[row.ID] = targetText{text: "the truth about " + *row.Name}
		}
	}

	factRows, err := db.Query[factTextRow](ctx, s.client,
		`SELECT <string>id AS id, title AS name, enforcement_level FROM fact`, nil)
	if err != nil {
		return nil, err
	}
	for _, row := range factRows {
		entry := targetText{}
		if row.Name != nil {
			entry.text = *row.Name
		}
		if row.Enforcement != nil {
			entry.enforcement = models.ParseEnforcementLevel(*row.Enforcement)
		}
		out[row.ID] = entry
	}
	return out, nil
}

// ScenesSince counts scenes created after learnedAt by partition point on
// a descending-sorted timestamp slice.
func ScenesSince(descendingSceneTimes []time.Time, learnedAt time.Time) int {
	lo, hi := 0, len(descendingSceneTimes)
	for lo < hi {
		mid := (lo + hi) / 2
		if descendingSceneTimes[mid].After(learnedAt) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// SignalStrength buckets scenes_since into high, medium, low.
func SignalStrength(scenesSince int) string {
	switch {
	case scenesSince >= 5:
		return "high"
	case scenesSince >= 2:
		return "medium"
	default:
		return "low"
	}
}

func signalRank(signal string) int {
	switch signal {
	case "high":
		return 0
	case "medium":
		return 1
	default:
		return 2
	}
}

// DramaticWeight scores an asymmetry by staleness, pair tension, and fact
// enforcement.
func DramaticWeight(scenesSince int, tension *int, enforcement models.EnforcementLevel) float64 {
	weight := float64(scenesSince)
	if tension != nil {
		switch {
		case *tension >= 7:
			weight += 3.0
		case *tension >= 4:
			weight += 1.5
		}
	}
	switch enforcement {
	case models.EnforcementStrict:
		weight += 3.0
	case models.EnforcementWarning:
		weight += 1.0
	}
	return weight
}

// opportunities renders narrative prompts from the top high-signal items.
func opportunities(asymmetries []KnowledgeAsymmetry, count int) []string {
	if count <= 0 {
		count = 5
	}
	var out []string
	for _, a := range asymmetries {
		if a.SignalStrength != "high" {
			continue
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%s knows %q while %s remains unaware (%d scenes elapsed)",
			a.KnowerName, a.FactText, a.UnawareName, a.ScenesSince)
		if a.Feelings != nil {
			fmt.Fprintf(&b, "; %s feels %s", a.KnowerName, *a.Feelings)
		}
		if a.HistoryNotes != nil {
			fmt.Fprintf(&b, "; history: %s", *a.HistoryNotes)
		}
		out = append(out, b.String())
		if len(out) == count {
			break
		}
	}
	return out
}
