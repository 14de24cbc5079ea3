package resources

// importTemplateYAML is a minimal world document clients can copy when
// authoring an ImportYaml payload.
const importTemplateYAML = `version: 1

characters:
  - id: ilsa
    name: Ilsa Lund
    aliases: [the stranger]
    roles: [protagonist]
    profile:
      desire:
        - leave the city safely
      secret:
        - already holds the letters of transit

locations:
  - id: ricks_cafe
    name: "Rick's Cafe Americain"
    loc_type: building
    description: Nightclub and gambling den, neutral ground.

events:
  - id: arrival
    title: Ilsa arrives in Casablanca
    sequence: 10
    date: "1941-12-01"
    date_precision: day

scenes:
  - title: First meeting at the cafe
    event_id: event:arrival
    location_id: location:ricks_cafe
    participants:
      - character_id: character:ilsa
        role: focal

relationships:
  - from_character_id: character:ilsa
    to_character_id: character:rick
    rel_type: romantic
    subtype: estranged

perceptions:
  - observer_id: character:ilsa
    target_id: character:rick
    perception: Bitter but still trustworthy
    tension_level: 7

knowledge:
  - character_id: character:ilsa
    fact: The letters of transit are hidden in the piano
    certainty: knows
    method: witnessed
    event_id: event:arrival

notes:
  - title: Continuity reminder
    body: Ilsa never says where she got the letters.
    attach_to: [character:ilsa]

facts:
  - title: Exit visas require German approval
    description: No one leaves Casablanca without papers signed by the occupation.
    enforcement_level: strict
    applies_to: [character:ilsa]
`

// importSchemaDoc documents the world document format field by field.
const importSchemaDoc = `# World document format

Version ` + "`1`" + `. Every section is optional; sections are imported in
dependency order (characters, locations, events, scenes, relationships,
perceptions, knowledge, notes, facts). Entity ` + "`id`" + ` fields are bare
record keys; cross-references use the ` + "`table:key`" + ` form. Omitted ids
are generated.

Conflict handling is controlled by the ` + "`on_conflict`" + ` parameter of the
ImportYaml mutation: ` + "`error`" + ` (default) fails the row, ` + "`skip`" + `
leaves the existing record untouched, ` + "`update`" + ` merges the incoming
fields. Per-row errors are collected; processing continues.

## characters
- ` + "`name`" + ` (required), ` + "`aliases`" + `, ` + "`roles`" + `: strings
- ` + "`profile`" + `: map of section name to bullet lines

## locations
- ` + "`name`" + ` (required), ` + "`description`" + `, ` + "`loc_type`" + `

## events
- ` + "`title`" + ` (required), ` + "`sequence`" + ` (timeline order, required)
- ` + "`date`" + `, ` + "`date_precision`" + ` (day, month, year, era)

## scenes
- ` + "`title`" + `, ` + "`event_id`" + `, ` + "`location_id`" + ` (required)
- ` + "`secondary_locations`" + `: additional location refs
- ` + "`participants`" + `: list of ` + "`character_id`" + ` plus optional ` + "`role`" + ` and ` + "`notes`" + `

## relationships
- ` + "`from_character_id`" + `, ` + "`to_character_id`" + `, ` + "`rel_type`" + ` (required)
- ` + "`rel_type`" + `: family, romantic, professional, friendship, rivalry, mentorship, alliance, other
- ` + "`subtype`" + `, ` + "`label`" + `: free-form qualifiers

## perceptions
- ` + "`observer_id`" + `, ` + "`target_id`" + ` (required)
- ` + "`perception`" + `, ` + "`feelings`" + `, ` + "`history_notes`" + `: free text
- ` + "`tension_level`" + `: 0 to 10

## knowledge
- ` + "`character_id`" + `, ` + "`fact`" + ` (required)
- ` + "`certainty`" + `: knows, suspects, believes_wrongly, uncertain, denies, assumes, forgotten
- ` + "`method`" + `: witnessed, told, overheard, discovered, deduced, inferred, assumed, read, remembered, initial
- ` + "`source_character_id`" + `, ` + "`event_id`" + `: provenance refs

## notes
- ` + "`title`" + `, ` + "`body`" + ` (required)
- ` + "`attach_to`" + `: entity refs the note annotates

## facts
- ` + "`title`" + `, ` + "`description`" + ` (required)
- ` + "`enforcement_level`" + `: informational, warning, strict
- ` + "`scope`" + `, ` + "`categories`" + `: classification
- ` + "`applies_to`" + `: entity refs the fact constrains
`
