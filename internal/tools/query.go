package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/narra-go/internal/analytics"
	"github.com/raphaelgruber/narra-go/internal/models"
	"github.com/raphaelgruber/narra-go/internal/session"
)

// QueryInput is the parameter envelope for the query tool. Each operation
// reads the subset of fields it needs.
type QueryInput struct {
	Operation string `json:"operation" jsonschema:"required,Operation tag selecting the read to run"`

	ID          string   `json:"id,omitempty" jsonschema:"Entity id in table:key form"`
	Query       string   `json:"query,omitempty" jsonschema:"Free-text or semantic query"`
	EntityTypes []string `json:"entity_types,omitempty" jsonschema:"Restrict to these entity types"`
	Limit       int      `json:"limit,omitempty" jsonschema:"Max results, clamped to 100"`
	Cursor      string   `json:"cursor,omitempty" jsonschema:"Opaque pagination cursor"`
	Depth       int      `json:"depth,omitempty" jsonschema:"Graph depth, clamped to 5"`

	CharacterID  string   `json:"character_id,omitempty"`
	CharacterIDs []string `json:"character_ids,omitempty"`
	ObserverID   string   `json:"observer_id,omitempty"`
	TargetID     string   `json:"target_id,omitempty"`
	EventID      string   `json:"event_id,omitempty"`
	EntityA      string   `json:"entity_a,omitempty"`
	EntityB      string   `json:"entity_b,omitempty"`
	FactID       string   `json:"fact_id,omitempty"`

	Window        string             `json:"window,omitempty" jsonschema:"Snapshot window such as recent:10"`
	Certainty     string             `json:"certainty,omitempty"`
	KnowledgeFact string             `json:"knowledge_fact,omitempty"`
	Metric        string             `json:"metric,omitempty" jsonschema:"Centrality metric: degree, betweenness, closeness"`
	Scope         string             `json:"scope,omitempty" jsonschema:"Character id scoping graph analysis"`
	EdgeType      string             `json:"edge_type,omitempty"`
	Bias          string             `json:"bias,omitempty"`
	DetailLevel   string             `json:"detail_level,omitempty" jsonschema:"minimal, summary, or full"`
	Facet         string             `json:"facet,omitempty" jsonschema:"Character facet: identity, psychology, social, narrative"`
	FacetWeights  map[string]float64 `json:"facet_weights,omitempty"`

	MinScenes       int      `json:"min_scenes,omitempty"`
	Opportunities   int      `json:"opportunities,omitempty"`
	MinAsymmetry    float64  `json:"min_asymmetry,omitempty"`
	MaxSharedScenes int      `json:"max_shared_scenes,omitempty"`
	MinSimilarity   float64  `json:"min_similarity,omitempty"`
	MinClusterSize  int      `json:"min_cluster_size,omitempty"`
	ExpectedTypes   []string `json:"expected_types,omitempty"`
	K               int      `json:"k,omitempty" jsonschema:"Cluster count, 0 for automatic"`
	IncludeEvents   bool     `json:"include_events,omitempty"`

	Fields map[string]any `json:"fields,omitempty" jsonschema:"Proposed field values for validation"`
}

type queryHandler struct {
	deps *Dependencies
}

// NewQueryHandler creates the query tool dispatcher.
func NewQueryHandler(deps *Dependencies) mcp.ToolHandlerFor[QueryInput, any] {
	h := &queryHandler{deps: deps}
	return func(ctx context.Context, req *mcp.CallToolRequest, input QueryInput) (
		*mcp.CallToolResult, any, error,
	) {
		result, err := h.dispatch(ctx, input)
		if err != nil {
			h.deps.Logger.Error("query failed", "operation", input.Operation, "error", err)
			return ErrorFor(err), nil, nil
		}
		return result, nil, nil
	}
}

func (h *queryHandler) dispatch(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	switch input.Operation {
	case "Lookup":
		return h.lookup(ctx, input)
	case "Search":
		return h.textSearch(ctx, input)
	case "FuzzySearch":
		return h.fuzzySearch(ctx, input)
	case "SemanticSearch":
		return h.search(ctx, input, h.deps.Search.SemanticSearch)
	case "HybridSearch":
		return h.search(ctx, input, h.deps.Search.HybridSearch)
	case "RerankedSearch":
		return h.search(ctx, input, h.deps.Search.RerankedSearch)
	case "FacetedSearch":
		return h.facetedSearch(ctx, input)
	case "MultiFacetSearch":
		return h.multiFacetSearch(ctx, input)
	case "SemanticJoin":
		return h.search(ctx, input, h.deps.Search.SemanticJoin)
	case "SemanticKnowledge":
		return h.semanticKnowledge(ctx, input)
	case "SemanticGraphSearch":
		return h.semanticGraphSearch(ctx, input)
	case "GraphTraversal":
		return h.graphTraversal(ctx, input)
	case "Temporal":
		return h.temporal(ctx, input)
	case "Overview":
		return h.overview(ctx, input)
	case "ListNotes":
		return h.listNotes(ctx, input)
	case "GetFact":
		return h.getFact(ctx, input)
	case "ListFacts":
		return h.listFacts(ctx, input)
	case "ReverseQuery":
		return h.reverseQuery(ctx, input)
	case "ConnectionPath":
		return h.connectionPath(ctx, input)
	case "CentralityMetrics":
		return h.centrality(ctx, input)
	case "InfluencePropagation":
		return h.influence(ctx, input)
	case "DramaticIronyReport":
		return h.ironyReport(ctx, input)
	case "ThematicClustering":
		return h.thematicClustering(ctx, input)
	case "ThematicGaps":
		return h.thematicGaps(ctx, input)
	case "NarrativePhases":
		return h.narrativePhases(ctx, input)
	case "ArcHistory":
		return h.arcHistory(ctx, input)
	case "ArcComparison":
		return h.arcComparison(ctx, input)
	case "ArcDrift":
		return h.arcDrift(ctx, input)
	case "ArcMoment":
		return h.arcMoment(ctx, input)
	case "GrowthVector":
		return h.growthVector(ctx, input)
	case "MisperceptionVector":
		return h.misperceptionVector(ctx, input)
	case "ConvergenceAnalysis":
		return h.convergenceAnalysis(ctx, input)
	case "MidpointSearch":
		return h.midpointSearch(ctx, input)
	case "PerspectiveSearch":
		return h.perspectiveSearch(ctx, input)
	case "PerceptionGap":
		return h.perceptionGap(ctx, input)
	case "PerceptionMatrix":
		return h.perceptionMatrix(ctx, input)
	case "PerceptionShift":
		return h.perceptionShift(ctx, input)
	case "UnresolvedTensions":
		return h.unresolvedTensions(ctx, input)
	case "SimilarRelationships":
		return h.similarRelationships(ctx, input)
	case "KnowledgeConflicts":
		return h.knowledgeConflicts(ctx, input)
	case "KnowledgeAsymmetries":
		return h.knowledgeAsymmetries(ctx, input)
	case "EmbeddingHealth":
		return h.embeddingHealth(ctx)
	case "WhatIf":
		return h.whatIf(ctx, input)
	case "ValidateEntity":
		return h.validateEntity(ctx, input)
	case "InvestigateContradictions":
		return h.investigate(ctx, input)
	case "SituationReport":
		return h.situationReport(ctx)
	case "CharacterDossier":
		return h.characterDossier(ctx, input)
	case "ScenePlanning":
		return h.scenePlanning(ctx, input)
	case "AnalyzeImpact":
		return h.analyzeImpact(ctx, input)
	default:
		return nil, fmt.Errorf("unknown query operation %q", input.Operation)
	}
}

// progress logs step notifications from long-running composite operations.
// The MCP layer surfaces them through the log file rather than progress
// notifications, which the stdio host does not request.
func (h *queryHandler) progress(operation string) analytics.ProgressFunc {
	return func(step, total int, message string) {
		h.deps.Logger.Info("progress", "operation", operation, "step", step, "total", total, "message", message)
	}
}

func (h *queryHandler) lookup(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	if input.ID == "" {
		return nil, fmt.Errorf("Lookup requires id")
	}
	level := session.DetailLevel(input.DetailLevel)
	if level == "" {
		level = session.DetailFull
	}
	summary, err := h.deps.Summary.Summarize(ctx, input.ID, level)
	if err != nil {
		return nil, err
	}
	h.deps.State.Touch(input.ID)

	resp := &Response{
		Results: []EntityResult{{
			ID:         summary.ID,
			EntityType: summary.EntityType,
			Name:       summary.Name,
			Content:    summary.Content,
		}},
		Total: 1,
		Hints: []string{"Use GraphTraversal or ReverseQuery to explore connections"},
	}
	return resp.Finalize(), nil
}

type searchFunc func(context.Context, string, analytics.SearchFilter) ([]analytics.SearchResult, error)

// fuzzyFallbackSimilarity is the floor applied when full-text finds nothing
// and the query is retried as a fuzzy name match.
const fuzzyFallbackSimilarity = 0.7

// searchWithFallback runs the primary search and, when it comes back empty,
// retries through the fallback. Reports whether the fallback served the page.
func searchWithFallback(ctx context.Context, query string, filter analytics.SearchFilter, primary, fallback searchFunc) ([]analytics.SearchResult, bool, error) {
	results, err := primary(ctx, query, filter)
	if err != nil {
		return nil, false, err
	}
	if len(results) > 0 {
		return results, false, nil
	}
	results, err = fallback(ctx, query, filter)
	if err != nil {
		return nil, false, err
	}
	return results, true, nil
}

// textSearch is full-text search with a fuzzy fallback so near-miss names
// still resolve.
func (h *queryHandler) textSearch(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	offset, err := DecodeCursor(input.Cursor)
	if err != nil {
		return nil, err
	}
	limit := clampLimit(input.Limit, 10)

	filter := analytics.SearchFilter{
		EntityTypes: parseEntityTypes(input.EntityTypes),
		Limit:       min(offset+limit+1, MaxLimit),
	}
	results, fuzzy, err := searchWithFallback(ctx, input.Query, filter,
		h.deps.Search.Search,
		func(ctx context.Context, query string, filter analytics.SearchFilter) ([]analytics.SearchResult, error) {
			return h.deps.Search.FuzzySearch(ctx, query, fuzzyFallbackSimilarity, filter)
		})
	if err != nil {
		return nil, err
	}
	resp := h.buildSearchPage(results, offset, limit, input.Operation)
	if fuzzy {
		resp.Hints = append(resp.Hints, "No full-text matches; results come from fuzzy name matching")
	}
	return resp.Finalize(), nil
}

func (h *queryHandler) search(ctx context.Context, input QueryInput, run searchFunc) (*mcp.CallToolResult, error) {
	offset, err := DecodeCursor(input.Cursor)
	if err != nil {
		return nil, err
	}
	limit := clampLimit(input.Limit, 10)

	filter := analytics.SearchFilter{
		EntityTypes: parseEntityTypes(input.EntityTypes),
		Limit:       min(offset+limit+1, MaxLimit),
	}
	results, err := run(ctx, input.Query, filter)
	if err != nil {
		return nil, err
	}
	return h.pageSearchResults(results, offset, limit, input.Operation), nil
}

func (h *queryHandler) fuzzySearch(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	return h.search(ctx, input, func(ctx context.Context, query string, filter analytics.SearchFilter) ([]analytics.SearchResult, error) {
		return h.deps.Search.FuzzySearch(ctx, query, input.MinSimilarity, filter)
	})
}

func (h *queryHandler) facetedSearch(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	facet, ok := models.ParseFacet(input.Facet)
	if !ok {
		return nil, fmt.Errorf("unknown facet %q", input.Facet)
	}
	return h.search(ctx, input, func(ctx context.Context, query string, filter analytics.SearchFilter) ([]analytics.SearchResult, error) {
		return h.deps.Search.FacetedSearch(ctx, query, facet, filter)
	})
}

func (h *queryHandler) multiFacetSearch(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	weights := map[models.Facet]float64{}
	for name, weight := range input.FacetWeights {
		facet, ok := models.ParseFacet(name)
		if !ok {
			return nil, fmt.Errorf("unknown facet %q", name)
		}
		weights[facet] = weight
	}
	return h.search(ctx, input, func(ctx context.Context, query string, filter analytics.SearchFilter) ([]analytics.SearchResult, error) {
		return h.deps.Search.MultiFacetSearch(ctx, query, weights, filter)
	})
}

// pageSearchResults slices a ranked result list into an envelope page.
func (h *queryHandler) pageSearchResults(results []analytics.SearchResult, offset, limit int, operation string) *mcp.CallToolResult {
	return h.buildSearchPage(results, offset, limit, operation).Finalize()
}

func (h *queryHandler) buildSearchPage(results []analytics.SearchResult, offset, limit int, operation string) *Response {
	total := len(results)
	if offset > total {
		offset = total
	}
	page := results[offset:]
	next := ""
	if len(page) > limit {
		page = page[:limit]
		next = EncodeCursor(offset + limit)
	}

	resp := &Response{Total: total, NextCursor: next}
	for _, r := range page {
		resp.Results = append(resp.Results, EntityResult{
			ID:         r.ID,
			EntityType: r.EntityType,
			Name:       r.Name,
			Content:    r.Name,
			Confidence: confidence(r.Score),
		})
	}
	resp.Hints = []string{
		fmt.Sprintf("%s returned %d of %d matches", operation, len(page), total),
		"Use Lookup on a result id for full details",
	}
	return resp
}

func (h *queryHandler) semanticKnowledge(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	matches, err := h.deps.Search.SemanticKnowledge(ctx, input.Query, input.CharacterID, clampLimit(input.Limit, 10))
	if err != nil {
		return nil, err
	}
	resp := &Response{Total: len(matches)}
	for _, m := range matches {
		content := m.Fact
		if m.CharacterName != "" {
			content += " (known by " + m.CharacterName + ")"
		}
		resp.Results = append(resp.Results, EntityResult{
			ID:         m.ID,
			EntityType: "knowledge",
			Name:       m.Fact,
			Content:    content,
			Confidence: confidence(m.Score),
		})
	}
	if len(matches) == 0 {
		resp.Hints = []string{"No knowledge matches; try broader terms or run BackfillEmbeddings"}
	} else if input.CharacterID != "" {
		resp.Hints = []string{"Filtered to one character's knowledge"}
	}
	return resp.Finalize(), nil
}

func (h *queryHandler) semanticGraphSearch(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	if input.ID == "" {
		return nil, fmt.Errorf("SemanticGraphSearch requires id")
	}
	depth := clampDepth(input.Depth, 2)
	connected, err := h.deps.Relationships.GetConnectedEntities(ctx, input.ID, depth)
	if err != nil {
		return nil, err
	}
	if len(connected) == 0 {
		resp := &Response{Hints: []string{
			fmt.Sprintf("No entities within %d hops of %s", depth, input.ID),
			"Increase depth or check the entity's relationships",
		}}
		return resp.Finalize(), nil
	}
	ids := make([]string, 0, len(connected))
	for _, c := range connected {
		ids = append(ids, c.ID)
	}
	results, err := h.deps.Search.RankByQuery(ctx, input.Query, ids, parseEntityTypes(input.EntityTypes), clampLimit(input.Limit, 10))
	if err != nil {
		return nil, err
	}
	resp := &Response{Total: len(results)}
	for _, r := range results {
		resp.Results = append(resp.Results, EntityResult{
			ID:         r.ID,
			EntityType: r.EntityType,
			Name:       r.Name,
			Content:    r.Name,
			Confidence: confidence(r.Score),
		})
	}
	resp.Hints = []string{fmt.Sprintf("Ranked %d connected entities against the query", len(connected))}
	return resp.Finalize(), nil
}

func (h *queryHandler) graphTraversal(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	if input.ID == "" {
		return nil, fmt.Errorf("GraphTraversal requires id")
	}
	connected, err := h.deps.Relationships.GetConnectedEntities(ctx, input.ID, clampDepth(input.Depth, 2))
	if err != nil {
		return nil, err
	}
	resp := &Response{Total: len(connected)}
	for _, c := range connected {
		resp.Results = append(resp.Results, EntityResult{
			ID:         c.ID,
			EntityType: strings.SplitN(c.ID, ":", 2)[0],
			Name:       c.Name,
			Content:    fmt.Sprintf("%d hops away via %s", c.Distance, c.EdgeKind),
		})
	}
	resp.Hints = []string{"Distance counts hops over relates_to and perceives, both directions"}
	return resp.Finalize(), nil
}

func (h *queryHandler) temporal(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	if input.CharacterID == "" || input.EventID == "" {
		return nil, fmt.Errorf("Temporal requires character_id and event_id")
	}
	states, err := h.deps.Knowledge.GetStatesAtEvent(ctx, input.CharacterID, input.EventID)
	if err != nil {
		return nil, err
	}
	resp := &Response{Total: len(states)}
	for _, state := range states {
		target := models.RecordIDString(state.Out)
		resp.Results = append(resp.Results, EntityResult{
			ID:         target,
			EntityType: state.Out.Table,
			Name:       target,
			Content: fmt.Sprintf("certainty=%s method=%s learned_at=%s",
				state.Certainty, state.LearningMethod, state.LearnedAt.Format("2006-01-02")),
		})
	}
	resp.Hints = []string{"States reflect what the character knew as of the event's creation time"}
	return resp.Finalize(), nil
}

func (h *queryHandler) overview(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	counts, err := h.deps.Entities.CountByType(ctx)
	if err != nil {
		return nil, err
	}
	resp := &Response{}
	for _, table := range []string{"character", "location", "event", "scene", "knowledge", "fact", "note"} {
		resp.Results = append(resp.Results, EntityResult{
			ID:         "overview:" + table,
			EntityType: "overview",
			Name:       table,
			Content:    fmt.Sprintf("%d records", counts[table]),
		})
	}
	resp.Total = len(resp.Results)
	resp.Hints = []string{"Use SituationReport for a narrative reading of the world state"}
	return resp.Finalize(), nil
}

func (h *queryHandler) listNotes(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	offset, err := DecodeCursor(input.Cursor)
	if err != nil {
		return nil, err
	}
	notes, err := h.deps.Entities.ListNotes(ctx)
	if err != nil {
		return nil, err
	}
	limit := clampLimit(input.Limit, 20)
	total := len(notes)
	if offset > total {
		offset = total
	}
	page := notes[offset:]
	next := ""
	if len(page) > limit {
		page = page[:limit]
		next = EncodeCursor(offset + limit)
	}
	resp := &Response{Total: total, NextCursor: next}
	for _, note := range page {
		modified := note.UpdatedAt
		resp.Results = append(resp.Results, EntityResult{
			ID:           models.RecordIDString(note.ID),
			EntityType:   "note",
			Name:         note.Title,
			Content:      note.Body,
			LastModified: &modified,
		})
	}
	return resp.Finalize(), nil
}

func (h *queryHandler) getFact(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	id := input.ID
	if id == "" {
		id = input.FactID
	}
	if id == "" {
		return nil, fmt.Errorf("GetFact requires id")
	}
	fact, err := h.deps.Entities.GetFact(ctx, id)
	if err != nil {
		return nil, err
	}
	modified := fact.UpdatedAt
	resp := &Response{
		Results: []EntityResult{{
			ID:           models.RecordIDString(fact.ID),
			EntityType:   "fact",
			Name:         fact.Title,
			Content:      fmt.Sprintf("%s [enforcement=%s]", fact.Description, fact.EnforcementLevel),
			LastModified: &modified,
		}},
		Total: 1,
	}
	return resp.Finalize(), nil
}

func (h *queryHandler) listFacts(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	facts, err := h.deps.Entities.ListFacts(ctx)
	if err != nil {
		return nil, err
	}
	resp := &Response{Total: len(facts)}
	for _, fact := range facts {
		modified := fact.UpdatedAt
		resp.Results = append(resp.Results, EntityResult{
			ID:           models.RecordIDString(fact.ID),
			EntityType:   "fact",
			Name:         fact.Title,
			Content:      fmt.Sprintf("%s [enforcement=%s]", fact.Description, fact.EnforcementLevel),
			LastModified: &modified,
		})
	}
	resp.Hints = []string{"Strict facts gate mutations; warnings and informational facts only annotate"}
	return resp.Finalize(), nil
}

func parseEntityTypes(names []string) []models.EntityType {
	var out []models.EntityType
	for _, name := range names {
		if t, ok := models.ParseEntityType(name); ok {
			out = append(out, t)
		}
	}
	return out
}
