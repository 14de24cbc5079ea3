package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/narra-go/internal/analytics"
)

// reportRow folds a structured analysis payload into one envelope row.
func reportRow(id, entityType, name string, payload any) EntityResult {
	data, _ := json.MarshalIndent(payload, "", "  ")
	return EntityResult{
		ID:         id,
		EntityType: entityType,
		Name:       name,
		Content:    string(data),
	}
}

func (h *queryHandler) reverseQuery(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	if input.ID == "" {
		return nil, fmt.Errorf("ReverseQuery requires id")
	}
	refs, err := h.deps.Graph.ReferencingEntities(ctx, input.ID, input.EntityTypes, clampLimit(input.Limit, 20))
	if err != nil {
		return nil, err
	}
	resp := &Response{Total: len(refs)}
	for _, ref := range refs {
		resp.Results = append(resp.Results, EntityResult{
			ID:         ref.EntityID,
			EntityType: ref.EntityType,
			Name:       ref.EntityID,
			Content:    fmt.Sprintf("References %s via %s", input.ID, ref.ReferenceField),
		})
	}
	resp.Hints = []string{
		fmt.Sprintf("Found %d entities referencing %s", len(refs), input.ID),
		"Use Lookup on specific entities for full details",
	}
	return resp.Finalize(), nil
}

func (h *queryHandler) connectionPath(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	if input.EntityA == "" || input.EntityB == "" {
		return nil, fmt.Errorf("ConnectionPath requires entity_a and entity_b")
	}
	paths, err := h.deps.Graph.ConnectionPaths(ctx, input.EntityA, input.EntityB,
		clampDepth(input.Depth, 3), input.IncludeEvents)
	if err != nil {
		return nil, err
	}
	resp := &Response{Total: len(paths)}
	for i, path := range paths {
		steps := make([]string, 0, len(path.Steps))
		for _, step := range path.Steps {
			steps = append(steps, fmt.Sprintf("%s (%s)", step.EntityID, step.ConnectionType))
		}
		resp.Results = append(resp.Results, EntityResult{
			ID:         fmt.Sprintf("path-%d", i+1),
			EntityType: "connection_path",
			Name:       fmt.Sprintf("Path %d: %d hops", i+1, path.TotalHops),
			Content:    strings.Join(steps, " -> "),
		})
	}
	if len(paths) == 0 {
		resp.Hints = []string{"No path found; try a higher depth or include_events=true"}
	} else {
		resp.Hints = []string{"Paths are breadth-first, shortest first"}
	}
	return resp.Finalize(), nil
}

func (h *queryHandler) centrality(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	metric := analytics.GraphMetric(input.Metric)
	if metric == "" {
		metric = analytics.MetricDegree
	}
	nodes, err := h.deps.Graph.Centrality(ctx, input.Scope, metric)
	if err != nil {
		return nil, err
	}
	limit := clampLimit(input.Limit, 20)
	if len(nodes) > limit {
		nodes = nodes[:limit]
	}
	resp := &Response{Total: len(nodes)}
	for _, node := range nodes {
		resp.Results = append(resp.Results, reportRow(node.ID, "centrality", node.Name, node))
	}
	resp.Hints = []string{fmt.Sprintf("Sorted by %s centrality", metric)}
	return resp.Finalize(), nil
}

func (h *queryHandler) influence(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	if input.ID == "" && input.CharacterID != "" {
		input.ID = input.CharacterID
	}
	if input.ID == "" {
		return nil, fmt.Errorf("InfluencePropagation requires id")
	}
	report, err := h.deps.Influence.Propagate(ctx, input.ID, input.KnowledgeFact, clampDepth(input.Depth, 3))
	if err != nil {
		return nil, err
	}
	resp := &Response{
		Results: []EntityResult{reportRow("influence:"+input.ID, "influence_report", report.Summary(), report)},
		Total:   1,
		Hints:   []string{"Paths are capped at 50; each path visits a node at most once"},
	}
	return resp.Finalize(), nil
}

func (h *queryHandler) ironyReport(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	report, err := h.deps.Irony.Report(ctx, input.MinScenes, input.Opportunities)
	if err != nil {
		return nil, err
	}
	resp := &Response{Total: len(report.Asymmetries)}
	for i, asym := range report.Asymmetries {
		resp.Results = append(resp.Results, reportRow(
			fmt.Sprintf("irony-%d", i+1), "dramatic_irony", asym.FactText, asym))
	}
	resp.Hints = report.Opportunities
	return resp.Finalize(), nil
}

func (h *queryHandler) thematicClustering(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	clusters, err := h.deps.Clusters.Thematic(ctx, input.K)
	if err != nil {
		return nil, err
	}
	resp := &Response{Total: len(clusters)}
	for i, cluster := range clusters {
		resp.Results = append(resp.Results, reportRow(
			fmt.Sprintf("cluster-%d", i+1), "theme_cluster", cluster.Label, cluster))
	}
	resp.Hints = []string{"Clusters are k-means over entity embeddings; labels are the central members"}
	return resp.Finalize(), nil
}

func (h *queryHandler) thematicGaps(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	gaps, err := h.deps.Clusters.ThematicGaps(ctx, input.MinClusterSize, input.ExpectedTypes)
	if err != nil {
		return nil, err
	}
	resp := &Response{Total: len(gaps)}
	for i, gap := range gaps {
		resp.Results = append(resp.Results, reportRow(
			fmt.Sprintf("gap-%d", i+1), "thematic_gap", gap.ClusterLabel, gap))
	}
	resp.Hints = []string{"Use ThematicClustering for the raw cluster data"}
	return resp.Finalize(), nil
}

func (h *queryHandler) narrativePhases(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	report, err := h.deps.Phases.Detect(ctx, input.K, analytics.PhaseWeights{})
	if err != nil {
		return nil, err
	}
	resp := &Response{Total: len(report.Phases)}
	for _, phase := range report.Phases {
		resp.Results = append(resp.Results, reportRow(
			fmt.Sprintf("phase-%d", phase.ClusterID), "narrative_phase", phase.Label, phase))
	}
	for _, transition := range report.Transitions {
		resp.Results = append(resp.Results, reportRow(
			fmt.Sprintf("transition-%d-%d", transition.Phases[0], transition.Phases[1]),
			"phase_transition", "bridge", transition))
	}
	if report.EntitiesWithoutTemporalAnchor > 0 {
		resp.Hints = append(resp.Hints, fmt.Sprintf(
			"%d entities lack a temporal anchor and cluster on content alone",
			report.EntitiesWithoutTemporalAnchor))
	}
	return resp.Finalize(), nil
}

func (h *queryHandler) arcHistory(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	if input.ID == "" {
		return nil, fmt.Errorf("ArcHistory requires id")
	}
	history, err := h.deps.Arcs.History(ctx, input.ID, clampLimit(input.Limit, 50))
	if err != nil {
		return nil, err
	}
	resp := &Response{
		Results: []EntityResult{reportRow("arc:"+input.ID, "arc_history",
			fmt.Sprintf("%s (%s)", input.ID, history.Band), history)},
		Total: 1,
		Hints: []string{"Cumulative drift sums per-snapshot deltas; net displacement compares first to last"},
	}
	return resp.Finalize(), nil
}

func (h *queryHandler) arcComparison(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	if input.EntityA == "" || input.EntityB == "" {
		return nil, fmt.Errorf("ArcComparison requires entity_a and entity_b")
	}
	comparison, err := h.deps.Arcs.Comparison(ctx, input.EntityA, input.EntityB, input.Window)
	if err != nil {
		return nil, err
	}
	resp := &Response{
		Results: []EntityResult{reportRow(
			fmt.Sprintf("arc-compare:%s:%s", input.EntityA, input.EntityB),
			"arc_comparison", "arc comparison", comparison)},
		Total: 1,
		Hints: []string{"Positive convergence means the entities drifted toward each other over the window"},
	}
	return resp.Finalize(), nil
}

func (h *queryHandler) arcDrift(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	entries, err := h.deps.Arcs.Drift(ctx, firstOf(input.EntityTypes), clampLimit(input.Limit, 10))
	if err != nil {
		return nil, err
	}
	resp := &Response{Total: len(entries)}
	for _, entry := range entries {
		resp.Results = append(resp.Results, reportRow(entry.EntityID, "arc_drift", entry.EntityID, entry))
	}
	resp.Hints = []string{"Efficiency near 1.0 is directed change; near 0 is oscillation"}
	return resp.Finalize(), nil
}

func (h *queryHandler) arcMoment(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	if input.ID == "" {
		return nil, fmt.Errorf("ArcMoment requires id")
	}
	snapshot, err := h.deps.Arcs.Moment(ctx, input.ID, input.EventID)
	if err != nil {
		return nil, err
	}
	resp := &Response{
		Results: []EntityResult{reportRow("arc-moment:"+input.ID, "arc_moment", input.ID, snapshot)},
		Total:   1,
	}
	return resp.Finalize(), nil
}

func (h *queryHandler) growthVector(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	if input.ID == "" {
		return nil, fmt.Errorf("GrowthVector requires id")
	}
	growth, err := h.deps.VectorOps.Growth(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	resp := &Response{
		Results: []EntityResult{reportRow("growth:"+input.ID, "growth_vector", input.ID, growth)},
		Total:   1,
		Hints:   []string{"Nearest labels show where the entity is heading in embedding space"},
	}
	return resp.Finalize(), nil
}

func (h *queryHandler) misperceptionVector(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	if input.ObserverID == "" || input.TargetID == "" {
		return nil, fmt.Errorf("MisperceptionVector requires observer_id and target_id")
	}
	result, err := h.deps.VectorOps.Misperception(ctx, input.ObserverID, input.TargetID)
	if err != nil {
		return nil, err
	}
	resp := &Response{
		Results: []EntityResult{reportRow(
			fmt.Sprintf("misperception:%s:%s", input.ObserverID, input.TargetID),
			"misperception_vector", result.Assessment, result)},
		Total: 1,
	}
	return resp.Finalize(), nil
}

func (h *queryHandler) convergenceAnalysis(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	if input.EntityA == "" || input.EntityB == "" {
		return nil, fmt.Errorf("ConvergenceAnalysis requires entity_a and entity_b")
	}
	analysis, err := h.deps.VectorOps.Convergence(ctx, input.EntityA, input.EntityB, input.Window)
	if err != nil {
		return nil, err
	}
	resp := &Response{
		Results: []EntityResult{reportRow(
			fmt.Sprintf("convergence:%s:%s", input.EntityA, input.EntityB),
			"convergence_analysis", analysis.Trend, analysis)},
		Total: 1,
	}
	return resp.Finalize(), nil
}

func (h *queryHandler) midpointSearch(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	if input.EntityA == "" || input.EntityB == "" {
		return nil, fmt.Errorf("MidpointSearch requires entity_a and entity_b")
	}
	results, err := h.deps.VectorOps.Midpoint(ctx, input.EntityA, input.EntityB, clampLimit(input.Limit, 10))
	if err != nil {
		return nil, err
	}
	resp := &Response{Total: len(results)}
	for _, r := range results {
		resp.Results = append(resp.Results, reportRow(r.ID, "midpoint_match", r.Name, r))
	}
	resp.Hints = []string{"Entities nearest the semantic midpoint of the two inputs"}
	return resp.Finalize(), nil
}

func (h *queryHandler) perspectiveSearch(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	edges, err := h.deps.Perception.PerspectiveSearch(ctx, input.Query, input.ObserverID, input.TargetID, clampLimit(input.Limit, 10))
	if err != nil {
		return nil, err
	}
	resp := &Response{Total: len(edges)}
	for i, edge := range edges {
		resp.Results = append(resp.Results, reportRow(
			fmt.Sprintf("perspective-%d", i+1), "perspective", edge.FromName+" -> "+edge.ToName, edge))
	}
	return resp.Finalize(), nil
}

func (h *queryHandler) perceptionGap(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	if input.ObserverID == "" || input.TargetID == "" {
		return nil, fmt.Errorf("PerceptionGap requires observer_id and target_id")
	}
	gap, err := h.deps.Perception.Gap(ctx, input.ObserverID, input.TargetID)
	if err != nil {
		return nil, err
	}
	resp := &Response{
		Results: []EntityResult{reportRow(
			fmt.Sprintf("gap:%s:%s", input.ObserverID, input.TargetID),
			"perception_gap", gap.Assessment, gap)},
		Total: 1,
	}
	return resp.Finalize(), nil
}

func (h *queryHandler) perceptionMatrix(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	if input.TargetID == "" {
		return nil, fmt.Errorf("PerceptionMatrix requires target_id")
	}
	entries, err := h.deps.Perception.Matrix(ctx, input.TargetID)
	if err != nil {
		return nil, err
	}
	resp := &Response{Total: len(entries)}
	for i, entry := range entries {
		resp.Results = append(resp.Results, reportRow(
			fmt.Sprintf("matrix-%d", i+1), "perception_matrix", entry.ObserverName, entry))
	}
	resp.Hints = []string{"Sorted most accurate observer first"}
	return resp.Finalize(), nil
}

func (h *queryHandler) perceptionShift(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	if input.ObserverID == "" || input.TargetID == "" {
		return nil, fmt.Errorf("PerceptionShift requires observer_id and target_id")
	}
	shift, err := h.deps.Perception.Shift(ctx, input.ObserverID, input.TargetID)
	if err != nil {
		return nil, err
	}
	resp := &Response{
		Results: []EntityResult{reportRow(
			fmt.Sprintf("shift:%s:%s", input.ObserverID, input.TargetID),
			"perception_shift", shift.CurrentBand, shift)},
		Total: 1,
	}
	return resp.Finalize(), nil
}

func (h *queryHandler) unresolvedTensions(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	pairs, err := h.deps.Perception.UnresolvedTensions(ctx, input.MinAsymmetry, input.MaxSharedScenes, clampLimit(input.Limit, 10))
	if err != nil {
		return nil, err
	}
	resp := &Response{Total: len(pairs)}
	for i, pair := range pairs {
		resp.Results = append(resp.Results, reportRow(
			fmt.Sprintf("tension-%d", i+1), "unresolved_tension",
			pair.CharacterA+" / "+pair.CharacterB, pair))
	}
	resp.Hints = []string{"High asymmetry with few shared scenes marks tension the story has not yet staged"}
	return resp.Finalize(), nil
}

func (h *queryHandler) similarRelationships(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	if input.ObserverID == "" || input.TargetID == "" {
		return nil, fmt.Errorf("SimilarRelationships requires observer_id and target_id")
	}
	edges, err := h.deps.Perception.SimilarRelationships(ctx, input.ObserverID, input.TargetID,
		input.EdgeType, input.Bias, clampLimit(input.Limit, 10))
	if err != nil {
		return nil, err
	}
	resp := &Response{Total: len(edges)}
	for i, edge := range edges {
		resp.Results = append(resp.Results, reportRow(
			fmt.Sprintf("similar-%d", i+1), "similar_relationship",
			edge.FromName+" -> "+edge.ToName, edge))
	}
	return resp.Finalize(), nil
}

func (h *queryHandler) knowledgeConflicts(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	if input.TargetID == "" {
		return nil, fmt.Errorf("KnowledgeConflicts requires target_id")
	}
	conflicts, err := h.deps.Knowledge.FindConflicts(ctx, input.TargetID)
	if err != nil {
		return nil, err
	}
	resp := &Response{Total: len(conflicts)}
	for i, conflict := range conflicts {
		resp.Results = append(resp.Results, reportRow(
			fmt.Sprintf("conflict-%d", i+1), "knowledge_conflict", input.TargetID, conflict))
	}
	if len(conflicts) == 0 {
		resp.Hints = []string{"No conflicting certainty states about this target"}
	}
	return resp.Finalize(), nil
}

func (h *queryHandler) knowledgeAsymmetries(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	if input.EntityA == "" || input.EntityB == "" {
		return nil, fmt.Errorf("KnowledgeAsymmetries requires entity_a and entity_b")
	}
	asymmetries, err := h.deps.Intelligence.PairAsymmetries(ctx, input.EntityA, input.EntityB)
	if err != nil {
		return nil, err
	}
	resp := &Response{Total: len(asymmetries)}
	for i, asym := range asymmetries {
		resp.Results = append(resp.Results, reportRow(
			fmt.Sprintf("asymmetry-%d", i+1), "knowledge_asymmetry", asym.FactText, asym))
	}
	return resp.Finalize(), nil
}

func (h *queryHandler) embeddingHealth(ctx context.Context) (*mcp.CallToolResult, error) {
	report, err := h.deps.Embedding.Health(ctx)
	if err != nil {
		return nil, err
	}
	resp := &Response{
		Results: []EntityResult{reportRow("embedding-health", "embedding_health", "embedding health", report)},
		Total:   1,
		Hints:   []string{"Run BackfillEmbeddings to clear stale or missing vectors"},
	}
	return resp.Finalize(), nil
}

func firstOf(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
