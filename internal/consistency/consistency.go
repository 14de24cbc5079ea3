// Package consistency validates mutations against universe facts and the
// structural rules of the world graph. Critical violations block the
// mutation; lesser ones surface as notices.
package consistency

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/raphaelgruber/narra-go/internal/db"
	"github.com/raphaelgruber/narra-go/internal/models"
)

// checkTimeout bounds a single validation run.
const checkTimeout = 2 * time.Second

// Severity orders violations by importance.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Violation is one detected consistency problem.
type Violation struct {
	FactID       string   `json:"fact_id"`
	FactTitle    string   `json:"fact_title"`
	Severity     Severity `json:"severity"`
	Message      string   `json:"message"`
	Confidence   float64  `json:"confidence"`
	Intentional  bool     `json:"auto_detected_as_intentional"`
	SuggestedFix string   `json:"suggested_fix,omitempty"`
}

// Result groups violations by severity.
type Result struct {
	IsValid         bool                     `json:"is_valid"`
	BySeverity      map[Severity][]Violation `json:"violations_by_severity"`
	TotalViolations int                      `json:"total_violations"`
	HasBlocking     bool                     `json:"has_blocking_violations"`
}

// NewResult creates an empty, valid result.
func NewResult() *Result {
	return &Result{IsValid: true, BySeverity: map[Severity][]Violation{}}
}

// Add records a violation, filling in its suggested fix and updating the
// blocking status.
func (r *Result) Add(v Violation) {
	if v.SuggestedFix == "" {
		v.SuggestedFix = SuggestedFix(v.Message)
	}
	if v.Severity == SeverityCritical {
		r.IsValid = false
		r.HasBlocking = true
	}
	r.BySeverity[v.Severity] = append(r.BySeverity[v.Severity], v)
	r.TotalViolations++
}

// Warnings renders the non-blocking violations as notice strings.
func (r *Result) Warnings() []string {
	var out []string
	for _, v := range r.BySeverity[SeverityWarning] {
		out = append(out, "WARNING: "+v.Message)
	}
	for _, v := range r.BySeverity[SeverityInfo] {
		out = append(out, "INFO: "+v.Message)
	}
	return out
}

// All returns every violation, critical first.
func (r *Result) All() []Violation {
	var out []Violation
	for _, sev := range []Severity{SeverityCritical, SeverityWarning, SeverityInfo} {
		out = append(out, r.BySeverity[sev]...)
	}
	return out
}

// SuggestedFix proposes a remedy based on the violation message.
func SuggestedFix(message string) string {
	switch {
	case strings.Contains(message, "before learning"):
		return "Move the learning event to before this scene, or remove the character from the scene"
	case strings.Contains(message, "Circular"):
		return "Remove one side of the hierarchy, characters cannot hold it in both directions"
	case strings.Contains(message, "asymmetry") || strings.Contains(message, "Asymmetric") ||
		strings.Contains(message, "one-sided"):
		return "Review whether the asymmetry is intentional dramatic tension or an error"
	case strings.Contains(message, "may violate fact"):
		return "Review the entity against the universe fact, update the entity or adjust the fact scope"
	case strings.Contains(message, "contradictory labels"):
		return "Merge or remove one of the duplicate relationship edges"
	default:
		return ""
	}
}

// MapSeverity derives a violation severity from the fact's enforcement
// level, the detection confidence, and whether the contradiction looks
// intentional.
func MapSeverity(enforcement models.EnforcementLevel, confidence float64, intentional bool) Severity {
	if intentional {
		return SeverityInfo
	}
	switch {
	case enforcement == models.EnforcementStrict && confidence > 0.5:
		return SeverityCritical
	case enforcement == models.EnforcementWarning && confidence > 0.5:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Checker validates entities against universe facts and graph structure.
type Checker struct {
	client *db.Client
	logger *slog.Logger
}

// NewChecker creates a consistency checker.
func NewChecker(client *db.Client, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{client: client, logger: logger}
}

type factRow struct {
	ID               string  `json:"id"`
	Title            string  `json:"title"`
	Description      string  `json:"description"`
	EnforcementLevel string  `json:"enforcement_level"`
	Scope            *string `json:"scope"`
}

// CheckMutation validates an update to an existing entity.
func (c *Checker) CheckMutation(ctx context.Context, entityID string, fields map[string]any) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	return c.validate(ctx, entityID, fields)
}

// CheckCreation validates the payload of a new entity. Only globally
// applicable facts are considered since nothing links to it yet.
func (c *Checker) CheckCreation(ctx context.Context, entityType string, fields map[string]any) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	return c.validate(ctx, entityType+":__new__", fields)
}

func (c *Checker) validate(ctx context.Context, entityID string, fields map[string]any) (*Result, error) {
	result := NewResult()

	facts, err := c.applicableFacts(ctx, entityID)
	if err != nil {
		return nil, err
	}

	// Knowledge records hold character beliefs; contradictions there are
	// usually deliberate (unreliable narrator, dramatic irony).
	entityType, _, _ := strings.Cut(entityID, ":")
	intentional := entityType == "knowledge"

	data := strings.ToLower(flattenFields(fields))
	for _, fact := range facts {
		if !factInScope(fact, entityID) {
			continue
		}
		if violation := evaluateFact(fact, data, intentional); violation != nil {
			result.Add(*violation)
		}
	}

	c.logger.Debug("consistency check",
		"entity", entityID,
		"facts_checked", len(facts),
		"violations", result.TotalViolations,
		"blocking", result.HasBlocking)
	return result, nil
}

// applicableFacts returns the facts linked to the entity, or every strict
// fact when nothing is linked: strict facts apply globally by default.
func (c *Checker) applicableFacts(ctx context.Context, entityID string) ([]factRow, error) {
	linked, err := db.Query[factRow](ctx, c.client, `
		SELECT <string>id AS id, title, description, enforcement_level, scope
		FROM fact WHERE id IN (SELECT VALUE in FROM applies_to WHERE <string>out = $entity)
	`, map[string]any{"entity": entityID})
	if err != nil {
		return nil, err
	}
	if len(linked) > 0 {
		return linked, nil
	}
	return db.Query[factRow](ctx, c.client, `
		SELECT <string>id AS id, title, description, enforcement_level, scope
		FROM fact WHERE enforcement_level = 'strict'
	`, nil)
}

// factInScope applies the fact's optional scope string. A scope of the
// form "character:<key>" restricts the fact to that character; anything
// else is treated as global.
func factInScope(fact factRow, entityID string) bool {
	if fact.Scope == nil || *fact.Scope == "" {
		return true
	}
	scope := *fact.Scope
	if !strings.Contains(scope, ":") {
		return true
	}
	return scope == entityID
}

// evaluateFact looks for negation patterns around the fact's keywords in
// the mutation payload.
func evaluateFact(fact factRow, data string, intentional bool) *Violation {
	title := strings.ToLower(fact.Title)
	description := strings.ToLower(fact.Description)
	if !detectPotentialViolation(data, title, description) {
		return nil
	}
	confidence := matchConfidence(data, title)
	return &Violation{
		FactID:      fact.ID,
		FactTitle:   fact.Title,
		Severity:    MapSeverity(models.ParseEnforcementLevel(fact.EnforcementLevel), confidence, intentional),
		Message:     fmt.Sprintf("Entity may violate fact: %s. %s", fact.Title, fact.Description),
		Confidence:  confidence,
		Intentional: intentional,
	}
}

var negationWords = []string{"no ", "not ", "cannot ", "never ", "without ", "lacks "}

// detectPotentialViolation flags negation patterns near fact keywords, and
// direct mentions of terms a prohibition fact forbids.
func detectPotentialViolation(data, title, description string) bool {
	for _, keyword := range factKeywords(title, description) {
		pos := strings.Index(data, keyword)
		if pos < 0 {
			continue
		}
		start := pos - 20
		if start < 0 {
			start = 0
		}
		window := data[start:pos]
		for _, neg := range negationWords {
			if strings.Contains(window, neg) {
				return true
			}
		}
	}
	if forbidden, ok := strings.CutPrefix(title, "no "); ok || strings.Contains(description, "prohibited") {
		forbidden = strings.TrimSpace(forbidden)
		if forbidden != "" && strings.Contains(data, forbidden) {
			return true
		}
	}
	return false
}

func factKeywords(title, description string) []string {
	var out []string
	for _, word := range strings.Fields(title + " " + description) {
		if len(word) > 3 {
			out = append(out, word)
		}
	}
	return out
}

// matchConfidence scores the keyword overlap between payload and fact
// title, scaled into [0.3, 0.9]: keyword heuristics are never certain.
func matchConfidence(data, title string) float64 {
	var keywords []string
	for _, word := range strings.Fields(title) {
		if len(word) > 3 {
			keywords = append(keywords, word)
		}
	}
	if len(keywords) == 0 {
		return 0.5
	}
	matches := 0
	for _, keyword := range keywords {
		if strings.Contains(data, keyword) {
			matches++
		}
	}
	return 0.3 + float64(matches)/float64(len(keywords))*0.6
}

func flattenFields(fields map[string]any) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v; ", k, fields[k])
	}
	return b.String()
}
