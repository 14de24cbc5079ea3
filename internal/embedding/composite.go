// Package embedding generates and maintains entity embeddings: composite
// text construction, provider clients, staleness tracking, and regeneration.
package embedding

import (
	"fmt"
	"sort"
	"strings"

	"github.com/raphaelgruber/narra-go/internal/models"
)

// RelationshipRef is a (rel_type, target name) pair for composite text.
type RelationshipRef struct {
	RelType    string
	TargetName string
}

// PerceptionRef is a (name, perception text) pair for composite text.
type PerceptionRef struct {
	Name string
	Text string
}

// SceneRef is a (title, optional summary) pair for composite text.
type SceneRef struct {
	Title   string
	Summary *string
}

// KnowledgeRef is a (fact, certainty) pair for composite text.
type KnowledgeRef struct {
	Fact      string
	Certainty models.Certainty
}

// CharacterComposite builds the primary composite for a character: identity,
// profile sections, relationships, and outbound perceptions. Aim is a rich
// but concise description, roughly 50 to 200 words.
func CharacterComposite(c *models.Character, relationships []RelationshipRef, perceptions []PerceptionRef) string {
	var parts []string

	rolesText := ""
	if len(c.Roles) > 0 {
		rolesText = "who is a " + strings.Join(c.Roles, ", ")
	}
	parts = append(parts, fmt.Sprintf("%s is a character %s", c.Name, rolesText))

	if len(c.Aliases) > 0 {
		parts = append(parts, "Also known as "+strings.Join(c.Aliases, ", "))
	}

	parts = append(parts, profileParts(c.Profile)...)

	if len(relationships) > 0 {
		descs := make([]string, len(relationships))
		for i, rel := range relationships {
			descs[i] = fmt.Sprintf("%s with %s", rel.RelType, rel.TargetName)
		}
		parts = append(parts, "They have relationships: "+strings.Join(descs, ", "))
	}

	if len(perceptions) > 0 {
		descs := make([]string, len(perceptions))
		for i, p := range perceptions {
			descs[i] = fmt.Sprintf("sees %s as %s", p.Name, p.Text)
		}
		parts = append(parts, "They "+strings.Join(descs, ", and "))
	}

	return strings.Join(parts, ". ") + "."
}

// profileParts renders profile sections with sorted keys so output is
// deterministic.
func profileParts(profile map[string][]string) []string {
	keys := make([]string, 0, len(profile))
	for key := range profile {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var parts []string
	for _, key := range keys {
		entries := profile[key]
		if len(entries) == 0 {
			continue
		}
		label := strings.ReplaceAll(key, "_", " ")
		parts = append(parts, label+": "+strings.Join(entries, "; "))
	}
	return parts
}

// LocationComposite builds the composite for a location.
func LocationComposite(l *models.Location) string {
	description := ""
	if l.Description != nil {
		description = ". " + *l.Description
	}
	return fmt.Sprintf("%s is a %s%s.", l.Name, l.LocType, description)
}

// EventComposite builds the composite for an event.
func EventComposite(e *models.Event) string {
	description := ""
	if e.Description != nil {
		description = ". " + *e.Description
	}
	return fmt.Sprintf("%s%s. Sequence: %d.", e.Title, description, e.Sequence)
}

// SceneComposite builds the composite for a scene with its resolved event
// and location names.
func SceneComposite(s *models.Scene, eventTitle, locationName string) string {
	parts := []string{s.Title}
	if s.Summary != nil {
		parts = append(parts, *s.Summary)
	}

	var context []string
	if locationName != "" {
		context = append(context, "at "+locationName)
	}
	if eventTitle != "" {
		context = append(context, "during "+eventTitle)
	}
	if len(context) > 0 {
		parts = append(parts, "Takes place "+strings.Join(context, " "))
	}

	return strings.Join(parts, ". ") + "."
}

// certaintyPhrase renders a knowledge fact through the holder's certainty.
func certaintyPhrase(name, fact string, certainty models.Certainty) string {
	switch certainty {
	case models.CertaintyBelievesWrongly:
		return fmt.Sprintf("%s wrongly believes that %s", name, fact)
	case models.CertaintySuspects:
		return fmt.Sprintf("%s suspects that %s", name, fact)
	case models.CertaintyDenies:
		return fmt.Sprintf("%s denies that %s", name, fact)
	case models.CertaintyUncertain:
		return fmt.Sprintf("%s is uncertain whether %s", name, fact)
	case models.CertaintyAssumes:
		return fmt.Sprintf("%s assumes that %s", name, fact)
	case models.CertaintyForgotten:
		return fmt.Sprintf("%s has forgotten that %s", name, fact)
	default:
		return fmt.Sprintf("%s knows that %s", name, fact)
	}
}

// KnowledgeComposite builds the composite for a knowledge record. Certainty
// shapes the phrasing so the embedding carries the epistemic stance; the
// learning method is appended for provenance context.
func KnowledgeComposite(fact, characterName string, certainty models.Certainty, method models.LearningMethod) string {
	methodPhrase := ""
	switch method {
	case models.MethodWitnessed:
		methodPhrase = " They witnessed this."
	case models.MethodTold:
		methodPhrase = " They were told this."
	case models.MethodOverheard:
		methodPhrase = " They overheard this."
	case models.MethodDiscovered:
		methodPhrase = " They discovered this."
	case models.MethodDeduced:
		methodPhrase = " They deduced this."
	case models.MethodRead:
		methodPhrase = " They read about this."
	case models.MethodRemembered:
		methodPhrase = " They remembered this."
	case models.MethodInitial:
		methodPhrase = " They knew this from the start."
	}
	return certaintyPhrase(characterName, fact, certainty) + "." + methodPhrase
}

// PerspectiveComposite builds the composite for one character's view of
// another: the perceives edge, the observer's knowledge about the target,
// and scenes they shared.
func PerspectiveComposite(observerName, targetName string, edge *models.Perceives, subtype *string, knowledge []KnowledgeRef, sharedScenes []SceneRef) string {
	parts := []string{fmt.Sprintf("%s's perspective on %s", observerName, targetName)}

	if len(edge.RelTypes) > 0 {
		relStr := strings.Join(edge.RelTypes, ", ")
		if subtype != nil {
			parts = append(parts, fmt.Sprintf("%s has a %s (%s) relationship with %s", observerName, relStr, *subtype, targetName))
		} else {
			parts = append(parts, fmt.Sprintf("%s has a %s relationship with %s", observerName, relStr, targetName))
		}
	}
	if edge.Feelings != nil {
		parts = append(parts, fmt.Sprintf("%s feels that %s", observerName, *edge.Feelings))
	}
	if edge.Perception != nil {
		parts = append(parts, fmt.Sprintf("%s perceives %s as %s", observerName, targetName, *edge.Perception))
	}
	if edge.TensionLevel != nil {
		parts = append(parts, fmt.Sprintf("Tension level: %d/10", *edge.TensionLevel))
	}
	if edge.HistoryNotes != nil {
		parts = append(parts, "History: "+*edge.HistoryNotes)
	}
	for _, k := range knowledge {
		parts = append(parts, certaintyPhrase(observerName, k.Fact, k.Certainty))
	}
	if len(sharedScenes) > 0 {
		parts = append(parts, "They shared experiences: "+joinSceneRefs(sharedScenes))
	}

	return strings.Join(parts, ". ") + "."
}

func joinSceneRefs(scenes []SceneRef) string {
	descs := make([]string, len(scenes))
	for i, s := range scenes {
		if s.Summary != nil {
			descs[i] = fmt.Sprintf("%q - %s", s.Title, *s.Summary)
		} else {
			descs[i] = fmt.Sprintf("%q", s.Title)
		}
	}
	return strings.Join(descs, "; ")
}

// RelationshipComposite builds the composite for a relates_to edge.
func RelationshipComposite(fromName string, fromRoles []string, toName string, toRoles []string, relType string, subtype, label *string) string {
	rolesSuffix := func(roles []string) string {
		if len(roles) == 0 {
			return ""
		}
		return " (" + strings.Join(roles, ", ") + ")"
	}

	parts := []string{fmt.Sprintf("Relationship between %s%s and %s%s: %s bond",
		fromName, rolesSuffix(fromRoles), toName, rolesSuffix(toRoles), relType)}
	if subtype != nil {
		parts = append(parts, "Subtype: "+*subtype)
	}
	if label != nil {
		parts = append(parts, *label)
	}
	return strings.Join(parts, ". ") + "."
}

// IdentityComposite builds the identity facet: name, roles, aliases. Short
// and stable.
func IdentityComposite(c *models.Character) string {
	var parts []string
	if len(c.Roles) > 0 {
		parts = append(parts, fmt.Sprintf("%s is a %s", c.Name, strings.Join(c.Roles, ", ")))
	} else {
		parts = append(parts, c.Name+" is a character")
	}
	if len(c.Aliases) > 0 {
		parts = append(parts, "Also known as "+strings.Join(c.Aliases, ", "))
	}
	return strings.Join(parts, ". ") + "."
}

// PsychologyComposite builds the psychology facet from profile sections only.
func PsychologyComposite(c *models.Character) string {
	if len(c.Profile) == 0 {
		return c.Name + " has no defined psychological profile."
	}
	parts := append([]string{c.Name + "'s psychology"}, profileParts(c.Profile)...)
	return strings.Join(parts, ". ") + "."
}

// SocialComposite builds the social facet: relationships plus how others
// perceive this character.
func SocialComposite(c *models.Character, relationships []RelationshipRef, perceptionsOf []PerceptionRef) string {
	parts := []string{c.Name + "'s social network"}

	if len(relationships) > 0 {
		descs := make([]string, len(relationships))
		for i, rel := range relationships {
			descs[i] = fmt.Sprintf("%s with %s", rel.RelType, rel.TargetName)
		}
		parts = append(parts, "Relationships: "+strings.Join(descs, ", "))
	}
	if len(perceptionsOf) > 0 {
		descs := make([]string, len(perceptionsOf))
		for i, p := range perceptionsOf {
			descs[i] = fmt.Sprintf("%s sees them as %s", p.Name, p.Text)
		}
		parts = append(parts, "Perceived by others: "+strings.Join(descs, "; "))
	}
	if len(relationships) == 0 && len(perceptionsOf) == 0 {
		parts = append(parts, "No relationships or perceptions recorded")
	}

	return strings.Join(parts, ". ") + "."
}

// NarrativeComposite builds the narrative facet: scene participation plus
// knowledge held.
func NarrativeComposite(characterName string, scenes []SceneRef, knowledge []KnowledgeRef) string {
	parts := []string{characterName + "'s narrative involvement"}

	if len(scenes) > 0 {
		parts = append(parts, "Participates in: "+joinSceneRefs(scenes))
	}
	if len(knowledge) > 0 {
		descs := make([]string, len(knowledge))
		for i, k := range knowledge {
			phrase := certaintyPhrase(characterName, k.Fact, k.Certainty)
			descs[i] = strings.TrimPrefix(phrase, characterName+" ")
		}
		parts = append(parts, characterName+" "+strings.Join(descs, "; "))
	}
	if len(scenes) == 0 && len(knowledge) == 0 {
		parts = append(parts, "No scenes or knowledge recorded")
	}

	return strings.Join(parts, ". ") + "."
}

// NoteComposite builds the composite for a note, truncating the body.
func NoteComposite(n *models.Note) string {
	return n.Title + ": " + truncateWords(n.Body, 200)
}

// FactComposite builds the composite for a universe fact.
func FactComposite(f *models.UniverseFact) string {
	var parts []string
	if len(f.Categories) > 0 {
		parts = append(parts, fmt.Sprintf("%s (%s)", f.Title, strings.Join(f.Categories, ", ")))
	} else {
		parts = append(parts, f.Title)
	}
	parts = append(parts, f.Description)
	parts = append(parts, "Enforcement: "+string(f.EnforcementLevel))
	return strings.Join(parts, ". ") + "."
}

func truncateWords(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return text
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
