package models

import (
	"testing"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

func TestParseEntityType(t *testing.T) {
	tests := []struct {
		in   string
		want EntityType
		ok   bool
	}{
		{"character", TypeCharacter, true},
		{"Character", TypeCharacter, true},
		{"SCENE", TypeScene, true},
		{"fact", TypeFact, true},
		{"note", TypeNote, true},
		{"widget", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseEntityType(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseEntityType(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestIsEmbeddable(t *testing.T) {
	for _, embeddable := range EmbeddableTypes {
		if !embeddable.IsEmbeddable() {
			t.Errorf("%s should be embeddable", embeddable)
		}
	}
	if TypeFact.IsEmbeddable() {
		t.Error("fact should not be embeddable")
	}
	if TypeNote.IsEmbeddable() {
		t.Error("note should not be embeddable")
	}
}

func TestSplitEntityID(t *testing.T) {
	table, key, err := SplitEntityID("character:kaela")
	if err != nil {
		t.Fatalf("SplitEntityID failed: %v", err)
	}
	if table != "character" || key != "kaela" {
		t.Errorf("got (%q, %q), want (character, kaela)", table, key)
	}

	// Keys may themselves contain colons (uuids with prefixes etc.)
	table, key, err = SplitEntityID("scene:act1:opening")
	if err != nil {
		t.Fatalf("SplitEntityID failed: %v", err)
	}
	if table != "scene" || key != "act1:opening" {
		t.Errorf("got (%q, %q), want (scene, act1:opening)", table, key)
	}

	for _, bad := range []string{"", "character", ":key", "table:"} {
		if _, _, err := SplitEntityID(bad); err == nil {
			t.Errorf("SplitEntityID(%q) should fail", bad)
		}
	}
}

func TestRecordIDRoundTrip(t *testing.T) {
	rid, err := RecordID("location:the_drift")
	if err != nil {
		t.Fatalf("RecordID failed: %v", err)
	}
	if got := RecordIDString(rid); got != "location:the_drift" {
		t.Errorf("round trip got %q", got)
	}

	if _, err := RecordID("malformed"); err == nil {
		t.Error("RecordID should reject ids without a table")
	}
}

func TestRecordIDString(t *testing.T) {
	rid := surrealmodels.NewRecordID("event", "heist")
	if got := RecordIDString(rid); got != "event:heist" {
		t.Errorf("RecordIDString = %q, want event:heist", got)
	}
}

func TestParseCertainty(t *testing.T) {
	tests := []struct {
		in   string
		want Certainty
	}{
		{"knows", CertaintyKnows},
		{"suspects", CertaintySuspects},
		{"believes_wrongly", CertaintyBelievesWrongly},
		{"denies", CertaintyDenies},
		{"forgotten", CertaintyForgotten},
		{"", CertaintyKnows},
		{"gibberish", CertaintyKnows},
	}
	for _, tt := range tests {
		if got := ParseCertainty(tt.in); got != tt.want {
			t.Errorf("ParseCertainty(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseLearningMethod(t *testing.T) {
	tests := []struct {
		in   string
		want LearningMethod
	}{
		{"witnessed", MethodWitnessed},
		{"overheard", MethodOverheard},
		{"initial", MethodInitial},
		{"", MethodTold},
		{"osmosis", MethodTold},
	}
	for _, tt := range tests {
		if got := ParseLearningMethod(tt.in); got != tt.want {
			t.Errorf("ParseLearningMethod(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseEnforcementLevel(t *testing.T) {
	tests := []struct {
		in   string
		want EnforcementLevel
	}{
		{"strict", EnforcementStrict},
		{"warning", EnforcementWarning},
		{"informational", EnforcementInformational},
		{"", EnforcementInformational},
		{"nope", EnforcementInformational},
	}
	for _, tt := range tests {
		if got := ParseEnforcementLevel(tt.in); got != tt.want {
			t.Errorf("ParseEnforcementLevel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
