// Package analytics implements the read-side intelligence over the world
// graph: search, graph metrics, influence, irony, clustering, perception,
// arcs, phases, and vector derivations.
package analytics

import (
	"fmt"
	"strings"

	"github.com/raphaelgruber/narra-go/internal/models"
)

// MaxLimit caps result counts across all analytics operations.
const MaxLimit = 100

// MetadataOp is a filter predicate operator.
type MetadataOp string

const (
	OpContains MetadataOp = "contains"
	OpEq       MetadataOp = "eq"
	OpGte      MetadataOp = "gte"
	OpLte      MetadataOp = "lte"
)

// MetadataPredicate filters on an entity field.
type MetadataPredicate struct {
	Field string     `json:"field"`
	Op    MetadataOp `json:"op"`
	Value any        `json:"value"`
}

// SearchFilter narrows search candidates. Zero value means no restriction.
type SearchFilter struct {
	EntityTypes []models.EntityType `json:"entity_types,omitempty"`
	Limit       int                 `json:"limit,omitempty"`
	MinScore    float64             `json:"min_score,omitempty"`
	Predicates  []MetadataPredicate `json:"predicates,omitempty"`
}

// EffectiveLimit returns the clamped result limit.
func (f SearchFilter) EffectiveLimit(fallback int) int {
	limit := f.Limit
	if limit <= 0 {
		limit = fallback
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return limit
}

// tables returns the candidate tables after entity-type filtering. When
// embeddableOnly is set, non-embeddable requested types are dropped.
func (f SearchFilter) tables(embeddableOnly bool) []models.EntityType {
	source := []models.EntityType{
		models.TypeCharacter, models.TypeLocation, models.TypeEvent,
		models.TypeScene, models.TypeKnowledge, models.TypeFact, models.TypeNote,
	}
	if embeddableOnly {
		source = models.EmbeddableTypes
	}
	if len(f.EntityTypes) == 0 {
		return source
	}
	var out []models.EntityType
	for _, t := range source {
		for _, want := range f.EntityTypes {
			if t == want {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// predicateSQL renders the metadata predicates as a WHERE fragment with
// bind variables. Predicates with invalid field names or unknown operators
// are silently ignored.
func (f SearchFilter) predicateSQL(vars map[string]any) string {
	var clauses []string
	for i, pred := range f.Predicates {
		if !validFieldName(pred.Field) {
			continue
		}
		bind := fmt.Sprintf("p%d", i)
		switch pred.Op {
		case OpContains:
			clauses = append(clauses, fmt.Sprintf("%s CONTAINS $%s", pred.Field, bind))
		case OpEq:
			clauses = append(clauses, fmt.Sprintf("%s = $%s", pred.Field, bind))
		case OpGte:
			clauses = append(clauses, fmt.Sprintf("%s >= $%s", pred.Field, bind))
		case OpLte:
			clauses = append(clauses, fmt.Sprintf("%s <= $%s", pred.Field, bind))
		default:
			continue
		}
		vars[bind] = pred.Value
	}
	if len(clauses) == 0 {
		return ""
	}
	return " AND " + strings.Join(clauses, " AND ")
}

func validFieldName(field string) bool {
	for _, r := range field {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '.':
		default:
			return false
		}
	}
	return field != ""
}

// displayField maps a table to its human-readable name column.
func displayField(t models.EntityType) string {
	switch t {
	case models.TypeCharacter, models.TypeLocation:
		return "name"
	case models.TypeKnowledge:
		return "fact"
	default:
		return "title"
	}
}
