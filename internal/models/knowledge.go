package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Certainty describes how firmly a character holds a knowledge state.
type Certainty string

const (
	CertaintyKnows           Certainty = "knows"
	CertaintySuspects        Certainty = "suspects"
	CertaintyBelievesWrongly Certainty = "believes_wrongly"
	CertaintyUncertain       Certainty = "uncertain"
	CertaintyDenies          Certainty = "denies"
	CertaintyAssumes         Certainty = "assumes"
	CertaintyForgotten       Certainty = "forgotten"
)

// ParseCertainty normalizes a certainty string, defaulting to knows.
func ParseCertainty(s string) Certainty {
	switch Certainty(s) {
	case CertaintySuspects, CertaintyBelievesWrongly, CertaintyUncertain,
		CertaintyDenies, CertaintyAssumes, CertaintyForgotten:
		return Certainty(s)
	}
	return CertaintyKnows
}

// LearningMethod describes how a knowledge state was acquired.
type LearningMethod string

const (
	MethodWitnessed  LearningMethod = "witnessed"
	MethodTold       LearningMethod = "told"
	MethodOverheard  LearningMethod = "overheard"
	MethodDiscovered LearningMethod = "discovered"
	MethodDeduced    LearningMethod = "deduced"
	MethodInferred   LearningMethod = "inferred"
	MethodAssumed    LearningMethod = "assumed"
	MethodRead       LearningMethod = "read"
	MethodRemembered LearningMethod = "remembered"
	MethodInitial    LearningMethod = "initial"
)

// ParseLearningMethod normalizes a method string, defaulting to told.
func ParseLearningMethod(s string) LearningMethod {
	switch LearningMethod(s) {
	case MethodWitnessed, MethodOverheard, MethodDiscovered, MethodDeduced,
		MethodInferred, MethodAssumed, MethodRead, MethodRemembered, MethodInitial:
		return LearningMethod(s)
	}
	return MethodTold
}

// Knowledge is a fact record owned by a character, with optional provenance.
type Knowledge struct {
	ID              surrealmodels.RecordID  `json:"id"`
	Fact            string                  `json:"fact"`
	Character       surrealmodels.RecordID  `json:"character"`
	SourceEvent     *surrealmodels.RecordID `json:"source_event,omitempty"`
	SourceCharacter *surrealmodels.RecordID `json:"source_character,omitempty"`
	Embedding       []float32               `json:"embedding,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
}

// KnowsEdge is a character's knowledge state about a target (knowledge fact
// or another character). At most one non-superseded state exists per
// (character, target); history is preserved through superseded records.
type KnowsEdge struct {
	ID              surrealmodels.RecordID  `json:"id"`
	In              surrealmodels.RecordID  `json:"in"`
	Out             surrealmodels.RecordID  `json:"out"`
	Certainty       Certainty               `json:"certainty"`
	LearningMethod  LearningMethod          `json:"learning_method"`
	SourceCharacter *surrealmodels.RecordID `json:"source_character,omitempty"`
	SourceEvent     *surrealmodels.RecordID `json:"source_event,omitempty"`
	Premises        []string                `json:"premises"`
	TruthValue      *string                 `json:"truth_value,omitempty"`
	LearnedAt       time.Time               `json:"learned_at"`
	Superseded      bool                    `json:"superseded"`
}

// KnowledgeInput is the payload for recording a knowledge state.
type KnowledgeInput struct {
	CharacterID     string   `json:"character_id"`
	TargetID        string   `json:"target_id,omitempty"`
	Fact            string   `json:"fact,omitempty"`
	Certainty       string   `json:"certainty,omitempty"`
	Method          string   `json:"method,omitempty"`
	SourceCharacter string   `json:"source_character_id,omitempty"`
	EventID         string   `json:"event_id,omitempty"`
	Premises        []string `json:"premises,omitempty"`
	TruthValue      string   `json:"truth_value,omitempty"`
}
