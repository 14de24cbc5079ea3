package session

import (
	"context"
	"sync"
	"time"

	"github.com/raphaelgruber/narra-go/internal/repository"
)

// ImpactSeverity ranks how strongly a change to one entity affects another.
type ImpactSeverity string

const (
	ImpactCritical ImpactSeverity = "critical"
	ImpactHigh     ImpactSeverity = "high"
	ImpactMedium   ImpactSeverity = "medium"
	ImpactLow      ImpactSeverity = "low"
)

// defaultImpactDepth is the BFS depth for impact analysis.
const defaultImpactDepth = 3

// ImpactEntry is one entity affected by a proposed change.
type ImpactEntry struct {
	ID        string         `json:"id"`
	Name      string         `json:"name,omitempty"`
	Distance  int            `json:"distance"`
	EdgeKind  string         `json:"edge_kind,omitempty"`
	Severity  ImpactSeverity `json:"severity"`
	Protected bool           `json:"protected,omitempty"`
}

// ImpactReport is the blast radius of a proposed change.
type ImpactReport struct {
	Target   ImpactEntry   `json:"target"`
	Affected []ImpactEntry `json:"affected"`
	Depth    int           `json:"depth"`
}

// DecisionRecord is an applied narrative decision kept for the session.
type DecisionRecord struct {
	Description string    `json:"description"`
	EntityIDs   []string  `json:"entity_ids,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// ImpactAnalyzer walks the relationship graph around a change target and
// tracks protected entities and decision journals.
type ImpactAnalyzer struct {
	relations repository.RelationshipRepository
	state     *StateManager

	mu        sync.Mutex
	protected map[string]bool
	decisions []DecisionRecord
}

// NewImpactAnalyzer wires the impact analyzer.
func NewImpactAnalyzer(relations repository.RelationshipRepository, state *StateManager) *ImpactAnalyzer {
	return &ImpactAnalyzer{
		relations: relations,
		state:     state,
		protected: map[string]bool{},
	}
}

// severityForDistance maps graph distance to severity. Protected entities
// are promoted to critical regardless of distance.
func (a *ImpactAnalyzer) severityForDistance(entityID string, distance int) ImpactSeverity {
	if a.protected[entityID] {
		return ImpactCritical
	}
	switch {
	case distance == 0:
		return ImpactCritical
	case distance == 1:
		return ImpactHigh
	case distance == 2:
		return ImpactMedium
	default:
		return ImpactLow
	}
}

// Analyze reports the entities a change to entityID would touch, ordered
// closest first.
func (a *ImpactAnalyzer) Analyze(ctx context.Context, entityID string, depth int) (*ImpactReport, error) {
	if depth <= 0 {
		depth = defaultImpactDepth
	}
	connected, err := a.relations.GetConnectedEntities(ctx, entityID, depth)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	report := &ImpactReport{
		Target: ImpactEntry{
			ID:        entityID,
			Distance:  0,
			Severity:  a.severityForDistance(entityID, 0),
			Protected: a.protected[entityID],
		},
		Depth:    depth,
		Affected: make([]ImpactEntry, 0, len(connected)),
	}
	for _, c := range connected {
		report.Affected = append(report.Affected, ImpactEntry{
			ID:        c.ID,
			Name:      c.Name,
			Distance:  c.Distance,
			EdgeKind:  c.EdgeKind,
			Severity:  a.severityForDistance(c.ID, c.Distance),
			Protected: a.protected[c.ID],
		})
	}
	return report, nil
}

// Protect marks an entity so any impact touching it reads as critical.
func (a *ImpactAnalyzer) Protect(entityID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.protected[entityID] = true
}

// Unprotect clears the protection mark.
func (a *ImpactAnalyzer) Unprotect(entityID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.protected, entityID)
}

// Protected lists the protected entity IDs.
func (a *ImpactAnalyzer) Protected() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.protected))
	for id := range a.protected {
		out = append(out, id)
	}
	return out
}

// RecordDecision journals an applied decision for the session.
func (a *ImpactAnalyzer) RecordDecision(description string, entityIDs []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.decisions = append(a.decisions, DecisionRecord{
		Description: description,
		EntityIDs:   entityIDs,
		RecordedAt:  time.Now().UTC(),
	})
}

// Decisions returns the journal in recording order.
func (a *ImpactAnalyzer) Decisions() []DecisionRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]DecisionRecord(nil), a.decisions...)
}

// DeferImplications parks follow-up work on the persistent pending list
// and returns its ID.
func (a *ImpactAnalyzer) DeferImplications(description string, entityIDs []string) (string, error) {
	return a.state.AddPendingDecision(description, entityIDs)
}

// ResolveImplication closes a deferred implication by ID.
func (a *ImpactAnalyzer) ResolveImplication(id string) error {
	return a.state.ResolvePendingDecision(id)
}
