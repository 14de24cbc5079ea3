package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (h *queryHandler) whatIf(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	if input.CharacterID == "" || input.FactID == "" {
		return nil, fmt.Errorf("WhatIf requires character_id and fact_id")
	}
	report, err := h.deps.Embedding.WhatIf(ctx, input.CharacterID, input.FactID, input.Certainty)
	if err != nil {
		return nil, err
	}
	resp := &Response{
		Results: []EntityResult{reportRow(
			fmt.Sprintf("what-if:%s:%s", input.CharacterID, input.FactID),
			"what_if_analysis",
			fmt.Sprintf("What if %s learned %q? (%s impact)", report.CharacterName, report.Fact, report.ImpactLabel),
			report)},
		Total: 1,
		Hints: []string{"Nothing was written; use mutate RecordKnowledge to apply the change"},
	}
	if len(report.Conflicts) > 0 {
		resp.Hints = append(resp.Hints,
			fmt.Sprintf("%d existing knowledge entries may conflict", len(report.Conflicts)))
	}
	return resp.Finalize(), nil
}

func (h *queryHandler) validateEntity(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	if input.ID == "" {
		return nil, fmt.Errorf("ValidateEntity requires id")
	}
	result, err := h.deps.Consistency.CheckMutation(ctx, input.ID, input.Fields)
	if err != nil {
		return nil, err
	}
	resp := &Response{Total: result.TotalViolations}
	for i, violation := range result.All() {
		resp.Results = append(resp.Results, reportRow(
			fmt.Sprintf("violation-%d", i+1), "consistency_violation",
			violation.FactTitle, violation))
	}
	if result.IsValid {
		resp.Hints = []string{"No blocking violations; the proposed fields are consistent"}
	} else {
		resp.Hints = []string{"Critical violations would block this mutation"}
	}
	return resp.Finalize(), nil
}

func (h *queryHandler) investigate(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	if input.ID == "" {
		return nil, fmt.Errorf("InvestigateContradictions requires id")
	}
	violations, visited, err := h.deps.Consistency.Investigate(ctx, input.ID, clampDepth(input.Depth, 2))
	if err != nil {
		return nil, err
	}
	resp := &Response{Total: len(violations)}
	for i, violation := range violations {
		resp.Results = append(resp.Results, reportRow(
			fmt.Sprintf("finding-%d", i+1), "consistency_violation",
			violation.FactTitle, violation))
	}
	resp.Hints = []string{fmt.Sprintf("Checked %d entities around %s", visited, input.ID)}
	return resp.Finalize(), nil
}

func (h *queryHandler) situationReport(ctx context.Context) (*mcp.CallToolResult, error) {
	report, err := h.deps.Intelligence.Situation(ctx, h.progress("SituationReport"))
	if err != nil {
		return nil, err
	}
	resp := &Response{
		Results: []EntityResult{reportRow("situation-report", "situation_report", "situation report", report)},
		Total:   1,
		Hints:   report.Suggestions,
	}
	return resp.Finalize(), nil
}

func (h *queryHandler) characterDossier(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	if input.CharacterID == "" {
		return nil, fmt.Errorf("CharacterDossier requires character_id")
	}
	dossier, err := h.deps.Intelligence.Dossier(ctx, input.CharacterID, h.progress("CharacterDossier"))
	if err != nil {
		return nil, err
	}
	resp := &Response{
		Results: []EntityResult{reportRow(
			"dossier:"+input.CharacterID, "character_dossier", dossier.Name, dossier)},
		Total: 1,
		Hints: dossier.Suggestions,
	}
	return resp.Finalize(), nil
}

func (h *queryHandler) scenePlanning(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	if len(input.CharacterIDs) < 2 {
		return nil, fmt.Errorf("ScenePlanning requires at least two character_ids")
	}
	plan, err := h.deps.Intelligence.ScenePlanning(ctx, input.CharacterIDs, h.progress("ScenePlanning"))
	if err != nil {
		return nil, err
	}
	resp := &Response{
		Results: []EntityResult{reportRow("scene-plan", "scene_plan", "scene planning", plan)},
		Total:   1,
		Hints:   []string{"Opportunities rank what this cast can dramatize right now"},
	}
	return resp.Finalize(), nil
}

func (h *queryHandler) analyzeImpact(ctx context.Context, input QueryInput) (*mcp.CallToolResult, error) {
	if input.ID == "" {
		return nil, fmt.Errorf("AnalyzeImpact requires id")
	}
	report, err := h.deps.Impact.Analyze(ctx, input.ID, clampDepth(input.Depth, 3))
	if err != nil {
		return nil, err
	}
	resp := &Response{Total: len(report.Affected)}
	for _, entry := range report.Affected {
		resp.Results = append(resp.Results, reportRow(entry.ID, "impact", entry.Name, entry))
	}
	resp.Hints = []string{
		fmt.Sprintf("A change to %s touches %d entities within depth %d",
			input.ID, len(report.Affected), report.Depth),
		"Protected entities always read as critical",
	}
	return resp.Finalize(), nil
}
