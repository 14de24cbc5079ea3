package resources

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerPrompts(server *mcp.Server) {
	server.AddPrompt(&mcp.Prompt{
		Name:        "getting_started",
		Description: "Orient a new session: load the world overview and working context",
	}, staticPromptHandler(gettingStartedPrompt))

	server.AddPrompt(&mcp.Prompt{
		Name:        "consistency_review",
		Description: "Walk the consistency report and propose fixes for each violation",
	}, staticPromptHandler(consistencyReviewPrompt))

	server.AddPrompt(&mcp.Prompt{
		Name:        "irony_analysis",
		Description: "Surface dramatic irony: who is missing what, and where it pays off",
	}, staticPromptHandler(ironyAnalysisPrompt))

	server.AddPrompt(&mcp.Prompt{
		Name:        "scene_planning",
		Description: "Plan a scene for a cast: tensions, secrets, and knowledge gaps in play",
		Arguments: []*mcp.PromptArgument{
			{Name: "characters", Description: "Comma-separated character ids for the scene cast", Required: true},
		},
	}, scenePlanningHandler)
}

func staticPromptHandler(text string) mcp.PromptHandler {
	return func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return &mcp.GetPromptResult{
			Messages: []*mcp.PromptMessage{
				{Role: "user", Content: &mcp.TextContent{Text: text}},
			},
		}, nil
	}
}

func scenePlanningHandler(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	cast := ""
	if req != nil && req.Params != nil {
		cast = req.Params.Arguments["characters"]
	}
	text := fmt.Sprintf(scenePlanningPrompt, cast)
	return &mcp.GetPromptResult{
		Messages: []*mcp.PromptMessage{
			{Role: "user", Content: &mcp.TextContent{Text: text}},
		},
	}, nil
}

const gettingStartedPrompt = `Begin by calling the session tool with operation BeginSession to get the
world overview, recent entities, and any pending decisions. Then call query
with operation SituationReport for hot entities and unresolved tensions.
Pin the entities the user is working on so they stay in context.`

const consistencyReviewPrompt = `Read narra://consistency/issues. For each violation, look up the entities
involved with the query tool, decide whether the contradiction is intentional
story design or an authoring mistake, and propose a concrete fix: a mutation
for mistakes, or a note documenting the intent for deliberate contradictions.
Handle critical severity first.`

const ironyAnalysisPrompt = `Call query with operation DramaticIronyReport. For each high-scoring item,
explain who holds the fact, who is missing it, and what scene could exploit
the gap. Cross-check with narra://analysis/tension-matrix to find pairs where
a knowledge gap and high tension coincide.`

const scenePlanningPrompt = `Plan a scene for this cast: %s. Call query with operation ScenePlanning and
those character ids, then summarize the pairwise tensions, what each character
knows that the others do not, and which perceptions would shift if the hidden
facts surfaced on stage.`
