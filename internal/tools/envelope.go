package tools

import (
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/narra-go/internal/session"
)

// Dispatcher-level clamps.
const (
	MaxLimit = 100
	MaxDepth = 5
)

// EntityResult is one row in the response envelope.
type EntityResult struct {
	ID           string     `json:"id"`
	EntityType   string     `json:"entity_type"`
	Name         string     `json:"name"`
	Content      string     `json:"content"`
	Confidence   *float64   `json:"confidence,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
}

// Response is the uniform envelope every query/mutate operation returns.
type Response struct {
	Results       []EntityResult `json:"results"`
	Total         int            `json:"total"`
	NextCursor    string         `json:"next_cursor,omitempty"`
	Hints         []string       `json:"hints"`
	TokenEstimate int            `json:"token_estimate"`
	Truncated     *bool          `json:"truncated,omitempty"`
}

// Finalize fills the token estimate and renders the envelope as a tool
// result.
func (r *Response) Finalize() *mcp.CallToolResult {
	if r.Results == nil {
		r.Results = []EntityResult{}
	}
	if r.Hints == nil {
		r.Hints = []string{}
	}
	if r.TokenEstimate == 0 {
		r.TokenEstimate = estimateTokens(r.Results)
	}
	data, _ := json.MarshalIndent(r, "", "  ")
	return TextResult(string(data))
}

// estimateTokens approximates the envelope cost: content at four chars
// per token plus a fixed overhead per row.
func estimateTokens(results []EntityResult) int {
	total := 0
	for _, r := range results {
		total += session.TokenEstimate(r.Content) + 30
	}
	return total
}

// confidence boxes a score for the envelope.
func confidence(score float64) *float64 {
	return &score
}

// boolPtr boxes a truncation flag.
func boolPtr(b bool) *bool {
	return &b
}

// clampLimit applies the dispatcher limit ceiling with a default.
func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// clampDepth applies the dispatcher depth ceiling with a default.
func clampDepth(depth, fallback int) int {
	if depth <= 0 {
		return fallback
	}
	if depth > MaxDepth {
		return MaxDepth
	}
	return depth
}

// jsonContent renders any payload as a pretty-printed JSON tool result.
// Used by operations whose natural shape is not the entity envelope.
func jsonContent(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ErrorResult("failed to encode response", err.Error())
	}
	return TextResult(string(data))
}

// Per-operation token budgets by operation class.
const (
	budgetLookup    = 1000
	budgetDefault   = 2000
	budgetAnalysis  = 3000
	budgetComposite = 4000
)
