package session

import (
	"context"
	"sort"
	"strings"

	"github.com/raphaelgruber/narra-go/internal/db"
	"github.com/raphaelgruber/narra-go/internal/repository"
)

const (
	mentionScore  = 10.0
	recencyScore  = 5.0
	proximityBase = 3.0
	pinnedScore   = 2.0
	noteScoreFrac = 0.8

	// proximityDepth bounds the relationship walk from mentioned characters.
	proximityDepth = 3
	// recentCandidates caps how many recent entities enter the candidate set.
	recentCandidates = 10

	// DefaultContextBudget is the token budget when the caller names none.
	DefaultContextBudget = 4000
	defaultMaxEntities   = 20
)

// ContextRequest asks for a working-context assembly around the entities
// the user is currently discussing.
type ContextRequest struct {
	// Mentions are entity ids ("character:ilsa") or plain names.
	Mentions    []string    `json:"mentions,omitempty"`
	MaxEntities int         `json:"max_entities,omitempty"`
	TokenBudget int         `json:"token_budget,omitempty"`
	DetailLevel DetailLevel `json:"detail_level,omitempty"`
}

// ScoredEntity is one context member with the reason it was included.
type ScoredEntity struct {
	EntitySummary
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// ContextResult is the assembled working context.
type ContextResult struct {
	Entities    []ScoredEntity `json:"entities"`
	TokenTotal  int            `json:"token_estimate"`
	Truncated   bool           `json:"truncated"`
	PinnedCount int            `json:"pinned_count"`
}

// ContextService assembles a relevance-scored entity context within a
// token budget.
type ContextService struct {
	client    *db.Client
	relations repository.RelationshipRepository
	summaries *SummaryService
	state     *StateManager
}

// NewContextService wires the context assembler.
func NewContextService(client *db.Client, relations repository.RelationshipRepository, summaries *SummaryService, state *StateManager) *ContextService {
	return &ContextService{client: client, relations: relations, summaries: summaries, state: state}
}

type candidate struct {
	id     string
	score  float64
	reason string
}

// GetContext scores the candidate set (mentioned, connected, recent,
// pinned) and fills the budget best first.
func (s *ContextService) GetContext(ctx context.Context, req ContextRequest) (*ContextResult, error) {
	budget := req.TokenBudget
	if budget <= 0 {
		budget = DefaultContextBudget
	}
	maxEntities := req.MaxEntities
	if maxEntities <= 0 {
		maxEntities = defaultMaxEntities
	}
	level := req.DetailLevel
	if level == "" {
		level = DetailSummary
	}

	scores := map[string]*candidate{}
	upsert := func(id string, score float64, reason string) {
		if existing, ok := scores[id]; ok {
			// A candidate reachable several ways keeps its best score.
			if score > existing.score {
				existing.score = score
				existing.reason = reason
			}
			return
		}
		scores[id] = &candidate{id: id, score: score, reason: reason}
	}

	mentioned, err := s.resolveMentions(ctx, req.Mentions)
	if err != nil {
		return nil, err
	}
	for _, id := range mentioned {
		upsert(id, mentionScore, "mentioned")
	}

	// Connected entities, scored by graph distance from each mention.
	for _, id := range mentioned {
		if !strings.HasPrefix(id, "character:") {
			continue
		}
		connected, err := s.relations.GetConnectedEntities(ctx, id, proximityDepth)
		if err != nil {
			continue
		}
		for _, c := range connected {
			upsert(c.ID, proximityBase/float64(c.Distance), "connected")
		}
	}

	for i, id := range s.state.Recent(recentCandidates) {
		upsert(id, recencyScore/float64(i+1), "recent")
	}
	for _, id := range s.state.Pinned() {
		upsert(id, pinnedScore, "pinned")
	}

	// Notes ride along with the mentioned entity they annotate.
	for _, id := range mentioned {
		notes, err := s.attachedNotes(ctx, id)
		if err != nil {
			continue
		}
		for _, noteID := range notes {
			upsert(noteID, mentionScore*noteScoreFrac, "note on mentioned entity")
		}
	}

	ranked := make([]*candidate, 0, len(scores))
	for _, c := range scores {
		ranked = append(ranked, c)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})

	result := &ContextResult{PinnedCount: len(s.state.Pinned())}
	for _, c := range ranked {
		if len(result.Entities) >= maxEntities {
			result.Truncated = true
			break
		}
		summary, err := s.summaries.Summarize(ctx, c.id, level)
		if err != nil {
			// Stale recents and pins can point at deleted entities.
			continue
		}
		if result.TokenTotal+summary.Tokens > budget {
			result.Truncated = true
			break
		}
		result.TokenTotal += summary.Tokens
		result.Entities = append(result.Entities, ScoredEntity{
			EntitySummary: *summary,
			Score:         c.score,
			Reason:        c.reason,
		})
	}
	return result, nil
}

type idRow struct {
	ID string `json:"id"`
}

// resolveMentions maps mention strings to entity ids. Strings already in
// "table:key" form pass through; anything else is matched by name.
func (s *ContextService) resolveMentions(ctx context.Context, mentions []string) ([]string, error) {
	var out []string
	seen := map[string]bool{}
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, mention := range mentions {
		mention = strings.TrimSpace(mention)
		if mention == "" {
			continue
		}
		if strings.Contains(mention, ":") {
			add(mention)
			continue
		}
		rows, err := db.Query[idRow](ctx, s.client, `
			SELECT <string>id AS id FROM character
			WHERE string::lowercase(name) = $name OR $name IN string::lowercase(aliases)
		`, map[string]any{"name": strings.ToLower(mention)})
		if err != nil {
			return nil, err
		}
		for _, table := range []string{"location", "event", "scene"} {
			if len(rows) > 0 {
				break
			}
			nameCol := "name"
			if table != "location" {
				nameCol = "title"
			}
			rows, err = db.Query[idRow](ctx, s.client, `
				SELECT <string>id AS id FROM type::table($table)
				WHERE string::lowercase(`+nameCol+`) = $name
			`, map[string]any{"table": table, "name": strings.ToLower(mention)})
			if err != nil {
				return nil, err
			}
		}
		for _, row := range rows {
			add(row.ID)
		}
	}
	return out, nil
}

// attachedNotes returns notes linked to the entity via note_of edges.
func (s *ContextService) attachedNotes(ctx context.Context, entityID string) ([]string, error) {
	rows, err := db.Query[idRow](ctx, s.client, `
		SELECT <string>in AS id FROM note_of WHERE <string>out = $entity
	`, map[string]any{"entity": entityID})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ID)
	}
	return out, nil
}
