// Package models defines the typed record shapes of the Narra world graph.
package models

import (
	"fmt"
	"strings"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// EntityType enumerates the record tables addressable through the tools.
type EntityType string

const (
	TypeCharacter EntityType = "character"
	TypeLocation  EntityType = "location"
	TypeEvent     EntityType = "event"
	TypeScene     EntityType = "scene"
	TypeKnowledge EntityType = "knowledge"
	TypeFact      EntityType = "fact"
	TypeNote      EntityType = "note"
)

// EmbeddableTypes are the tables carrying an embedding column, in the
// canonical scan order used by semantic search.
var EmbeddableTypes = []EntityType{
	TypeCharacter, TypeLocation, TypeEvent, TypeScene, TypeKnowledge,
}

// ParseEntityType maps a lowercase table name to an EntityType.
func ParseEntityType(s string) (EntityType, bool) {
	switch strings.ToLower(s) {
	case "character":
		return TypeCharacter, true
	case "location":
		return TypeLocation, true
	case "event":
		return TypeEvent, true
	case "scene":
		return TypeScene, true
	case "knowledge":
		return TypeKnowledge, true
	case "fact":
		return TypeFact, true
	case "note":
		return TypeNote, true
	}
	return "", false
}

// IsEmbeddable reports whether the type carries an embedding column.
func (t EntityType) IsEmbeddable() bool {
	for _, e := range EmbeddableTypes {
		if e == t {
			return true
		}
	}
	return false
}

// SplitEntityID parses "table:key" into its parts.
func SplitEntityID(id string) (table, key string, err error) {
	parts := strings.SplitN(id, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed entity id %q (expected table:key)", id)
	}
	return parts[0], parts[1], nil
}

// RecordID builds a SurrealDB record id from "table:key" notation.
func RecordID(id string) (surrealmodels.RecordID, error) {
	table, key, err := SplitEntityID(id)
	if err != nil {
		return surrealmodels.RecordID{}, err
	}
	return surrealmodels.NewRecordID(table, key), nil
}

// MustRecordID builds a record id, panicking on malformed input.
// Use only with ids already validated by the dispatcher.
func MustRecordID(id string) surrealmodels.RecordID {
	rid, err := RecordID(id)
	if err != nil {
		panic(err)
	}
	return rid
}

// RecordIDString renders a RecordID back to "table:key" notation.
func RecordIDString(id surrealmodels.RecordID) string {
	return fmt.Sprintf("%s:%v", id.Table, id.ID)
}
