// Package repository provides integration tests for the SurrealDB-backed
// repositories.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/raphaelgruber/narra-go/internal/db"
	"github.com/raphaelgruber/narra-go/internal/models"
)

var testDB *db.Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testDB, err = db.NewClient(ctx, db.Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

func TestCharacterCRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewEntityRepository(testDB)

	created, err := repo.CreateCharacter(ctx, models.CharacterInput{
		Name:    "Kaela Voss",
		Aliases: []string{"The Drift Captain"},
		Roles:   []string{"captain"},
		Profile: map[string][]string{"wound": {"lost her first ship"}},
	})
	if err != nil {
		t.Fatalf("CreateCharacter failed: %v", err)
	}
	id := models.RecordIDString(created.ID)
	defer func() {
		_ = repo.DeleteCharacter(ctx, id)
	}()

	if created.Name != "Kaela Voss" {
		t.Errorf("Expected name 'Kaela Voss', got %q", created.Name)
	}
	if len(created.Profile["wound"]) != 1 {
		t.Errorf("Expected profile wound section, got %v", created.Profile)
	}

	fetched, err := repo.GetCharacter(ctx, id)
	if err != nil {
		t.Fatalf("GetCharacter failed: %v", err)
	}
	if fetched == nil || fetched.Name != "Kaela Voss" {
		t.Fatalf("GetCharacter returned %v", fetched)
	}

	updated, err := repo.UpdateCharacter(ctx, id, map[string]any{"roles": []string{"captain", "smuggler"}})
	if err != nil {
		t.Fatalf("UpdateCharacter failed: %v", err)
	}
	if len(updated.Roles) != 2 {
		t.Errorf("Expected 2 roles after update, got %v", updated.Roles)
	}
	if !updated.EmbeddingStale {
		t.Error("Updating roles should raise embedding_stale")
	}
	if !updated.SocialStale {
		t.Error("Updating roles should raise social_stale")
	}
}

func TestCreateCharacterRequiresName(t *testing.T) {
	ctx := context.Background()
	repo := NewEntityRepository(testDB)

	_, err := repo.CreateCharacter(ctx, models.CharacterInput{})
	if !errors.Is(err, db.ErrValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestUpdateCharacterNotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewEntityRepository(testDB)

	_, err := repo.UpdateCharacter(ctx, "character:nope", map[string]any{"name": "Ghost"})
	if !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected not-found error, got %v", err)
	}
}

func TestUpdateRejectsBadFieldName(t *testing.T) {
	ctx := context.Background()
	repo := NewEntityRepository(testDB)

	_, err := repo.UpdateCharacter(ctx, "character:any", map[string]any{"name; DELETE character": "x"})
	if !errors.Is(err, db.ErrValidation) {
		t.Errorf("Expected validation error for bad field name, got %v", err)
	}
}

func TestSceneRequiresEventAndLocation(t *testing.T) {
	ctx := context.Background()
	repo := NewEntityRepository(testDB)

	_, err := repo.CreateScene(ctx, models.SceneInput{Title: "Orphan Scene"})
	if !errors.Is(err, db.ErrValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}

	_, err = repo.CreateScene(ctx, models.SceneInput{
		Title:      "Dangling Scene",
		EventID:    "event:missing",
		LocationID: "location:missing",
	})
	if !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected not-found error for missing event, got %v", err)
	}
}

func TestSceneLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewEntityRepository(testDB)

	event, err := repo.CreateEvent(ctx, models.EventInput{Title: "The Heist", Sequence: 10})
	if err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	eventID := models.RecordIDString(event.ID)

	location, err := repo.CreateLocation(ctx, models.LocationInput{Name: "Vault District"})
	if err != nil {
		t.Fatalf("CreateLocation failed: %v", err)
	}
	locationID := models.RecordIDString(location.ID)

	scene, err := repo.CreateScene(ctx, models.SceneInput{
		Title:      "Cracking the Vault",
		EventID:    eventID,
		LocationID: locationID,
	})
	if err != nil {
		t.Fatalf("CreateScene failed: %v", err)
	}
	sceneID := models.RecordIDString(scene.ID)

	// Location and event deletion is blocked while the scene references them
	if err := repo.DeleteLocation(ctx, locationID); !errors.Is(err, db.ErrReferentialIntegrity) {
		t.Errorf("Expected referential integrity error deleting referenced location, got %v", err)
	}
	if err := repo.DeleteEvent(ctx, eventID); !errors.Is(err, db.ErrReferentialIntegrity) {
		t.Errorf("Expected referential integrity error deleting referenced event, got %v", err)
	}

	if err := repo.DeleteScene(ctx, sceneID); err != nil {
		t.Fatalf("DeleteScene failed: %v", err)
	}
	if err := repo.DeleteLocation(ctx, locationID); err != nil {
		t.Errorf("DeleteLocation after scene removal failed: %v", err)
	}
	if err := repo.DeleteEvent(ctx, eventID); err != nil {
		t.Errorf("DeleteEvent after scene removal failed: %v", err)
	}
}

func TestNoteAttachment(t *testing.T) {
	ctx := context.Background()
	repo := NewEntityRepository(testDB)

	character, err := repo.CreateCharacter(ctx, models.CharacterInput{Name: "Note Target"})
	if err != nil {
		t.Fatalf("CreateCharacter failed: %v", err)
	}
	characterID := models.RecordIDString(character.ID)
	defer func() {
		_ = repo.DeleteCharacter(ctx, characterID)
	}()

	note, err := repo.CreateNote(ctx, "Research", "The vault uses a rotating cipher.")
	if err != nil {
		t.Fatalf("CreateNote failed: %v", err)
	}
	noteID := models.RecordIDString(note.ID)
	defer func() {
		_ = repo.DeleteNote(ctx, noteID)
	}()

	if err := repo.AttachNote(ctx, noteID, characterID); err != nil {
		t.Fatalf("AttachNote failed: %v", err)
	}

	// Second attach hits the unique pair index
	if err := repo.AttachNote(ctx, noteID, characterID); !errors.Is(err, db.ErrConflict) {
		t.Errorf("Expected conflict on duplicate attach, got %v", err)
	}

	if err := repo.DetachNote(ctx, noteID, characterID); err != nil {
		t.Fatalf("DetachNote failed: %v", err)
	}
}

func TestFactLinking(t *testing.T) {
	ctx := context.Background()
	repo := NewEntityRepository(testDB)

	character, err := repo.CreateCharacter(ctx, models.CharacterInput{Name: "Fact Target"})
	if err != nil {
		t.Fatalf("CreateCharacter failed: %v", err)
	}
	characterID := models.RecordIDString(character.ID)
	defer func() {
		_ = repo.DeleteCharacter(ctx, characterID)
	}()

	fact, err := repo.CreateFact(ctx, models.FactInput{
		Title:            "No magic indoors",
		Description:      "Spellcasting fails inside warded buildings.",
		EnforcementLevel: "strict",
	})
	if err != nil {
		t.Fatalf("CreateFact failed: %v", err)
	}
	factID := models.RecordIDString(fact.ID)
	defer func() {
		_ = repo.DeleteFact(ctx, factID)
	}()

	if fact.EnforcementLevel != models.EnforcementStrict {
		t.Errorf("Expected strict enforcement, got %q", fact.EnforcementLevel)
	}

	if err := repo.LinkFact(ctx, factID, characterID); err != nil {
		t.Fatalf("LinkFact failed: %v", err)
	}
	if err := repo.LinkFact(ctx, factID, characterID); !errors.Is(err, db.ErrConflict) {
		t.Errorf("Expected conflict on duplicate link, got %v", err)
	}
	if err := repo.UnlinkFact(ctx, factID, characterID); err != nil {
		t.Fatalf("UnlinkFact failed: %v", err)
	}
}

func TestCountByType(t *testing.T) {
	ctx := context.Background()
	repo := NewEntityRepository(testDB)

	character, err := repo.CreateCharacter(ctx, models.CharacterInput{Name: "Count Me"})
	if err != nil {
		t.Fatalf("CreateCharacter failed: %v", err)
	}
	defer func() {
		_ = repo.DeleteCharacter(ctx, models.RecordIDString(character.ID))
	}()

	counts, err := repo.CountByType(ctx)
	if err != nil {
		t.Fatalf("CountByType failed: %v", err)
	}
	if counts["character"] < 1 {
		t.Errorf("Expected at least 1 character, got %d", counts["character"])
	}
	if _, ok := counts["scene"]; !ok {
		t.Error("CountByType should include every table, even empty ones")
	}
}

func TestKnowledgeSupersedeOnWrite(t *testing.T) {
	ctx := context.Background()
	entities := NewEntityRepository(testDB)
	knowledge := NewKnowledgeRepository(testDB)

	character, err := entities.CreateCharacter(ctx, models.CharacterInput{Name: "Doubting Dain"})
	if err != nil {
		t.Fatalf("CreateCharacter failed: %v", err)
	}
	characterID := models.RecordIDString(character.ID)
	defer func() {
		_ = entities.DeleteCharacter(ctx, characterID)
	}()

	record, _, err := knowledge.CreateKnowledge(ctx, models.KnowledgeInput{
		CharacterID: characterID,
		Fact:        "The vault has a second entrance.",
		Certainty:   "suspects",
	})
	if err != nil {
		t.Fatalf("CreateKnowledge failed: %v", err)
	}
	targetID := models.RecordIDString(record.ID)
	defer func() {
		_ = knowledge.DeleteKnowledge(ctx, targetID)
	}()

	// A second state about the same target supersedes the first
	updated, err := knowledge.RecordState(ctx, models.KnowledgeInput{
		CharacterID: characterID,
		TargetID:    targetID,
		Certainty:   "knows",
		Method:      "witnessed",
	})
	if err != nil {
		t.Fatalf("RecordState failed: %v", err)
	}
	if updated.Certainty != models.CertaintyKnows {
		t.Errorf("Expected certainty knows, got %q", updated.Certainty)
	}

	history, err := knowledge.GetStateHistory(ctx, characterID, targetID)
	if err != nil {
		t.Fatalf("GetStateHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("Expected 2 states in history, got %d", len(history))
	}
	if !history[0].Superseded {
		t.Error("First state should be superseded")
	}
	if history[1].Superseded {
		t.Error("Latest state should not be superseded")
	}

	current, err := knowledge.GetCurrentStates(ctx, characterID)
	if err != nil {
		t.Fatalf("GetCurrentStates failed: %v", err)
	}
	if len(current) != 1 {
		t.Fatalf("Expected 1 current state, got %d", len(current))
	}
	if current[0].Certainty != models.CertaintyKnows {
		t.Errorf("Current state should be the latest, got certainty %q", current[0].Certainty)
	}
}

func TestKnowledgeStatesAtEvent(t *testing.T) {
	ctx := context.Background()
	entities := NewEntityRepository(testDB)
	knowledge := NewKnowledgeRepository(testDB)

	character, err := entities.CreateCharacter(ctx, models.CharacterInput{Name: "Timeline Tova"})
	if err != nil {
		t.Fatalf("CreateCharacter failed: %v", err)
	}
	characterID := models.RecordIDString(character.ID)
	defer func() {
		_ = entities.DeleteCharacter(ctx, characterID)
	}()

	rumor, err := entities.CreateEvent(ctx, models.EventInput{Title: "The Rumor", Sequence: 1})
	if err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	rumorID := models.RecordIDString(rumor.ID)
	reveal, err := entities.CreateEvent(ctx, models.EventInput{Title: "The Reveal", Sequence: 2})
	if err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	revealID := models.RecordIDString(reveal.ID)
	defer func() {
		_ = entities.DeleteEvent(ctx, rumorID)
		_ = entities.DeleteEvent(ctx, revealID)
	}()

	// The state tied to the rumor event carries the event's timestamp, even
	// though this write happens after both events were created.
	record, _, err := knowledge.CreateKnowledge(ctx, models.KnowledgeInput{
		CharacterID: characterID,
		Fact:        "The heir is alive.",
		Certainty:   "suspects",
		Method:      "overheard",
		EventID:     rumorID,
	})
	if err != nil {
		t.Fatalf("CreateKnowledge failed: %v", err)
	}
	targetID := models.RecordIDString(record.ID)
	defer func() {
		_ = knowledge.DeleteKnowledge(ctx, targetID)
	}()

	if _, err := knowledge.RecordState(ctx, models.KnowledgeInput{
		CharacterID: characterID,
		TargetID:    targetID,
		Certainty:   "knows",
		Method:      "witnessed",
		EventID:     revealID,
	}); err != nil {
		t.Fatalf("RecordState failed: %v", err)
	}

	atRumor, err := knowledge.GetStatesAtEvent(ctx, characterID, rumorID)
	if err != nil {
		t.Fatalf("GetStatesAtEvent failed: %v", err)
	}
	if len(atRumor) != 1 {
		t.Fatalf("Expected 1 state as of the rumor event, got %d", len(atRumor))
	}
	if atRumor[0].Certainty != models.CertaintySuspects {
		t.Errorf("As of the rumor the character only suspects, got %q", atRumor[0].Certainty)
	}

	atReveal, err := knowledge.GetStatesAtEvent(ctx, characterID, revealID)
	if err != nil {
		t.Fatalf("GetStatesAtEvent failed: %v", err)
	}
	if len(atReveal) != 1 {
		t.Fatalf("Expected 1 state as of the reveal event, got %d", len(atReveal))
	}
	if atReveal[0].Certainty != models.CertaintyKnows {
		t.Errorf("As of the reveal the character knows, got %q", atReveal[0].Certainty)
	}
}

func TestConnectedEntitiesBoundedTraversal(t *testing.T) {
	ctx := context.Background()
	entities := NewEntityRepository(testDB)
	relationships := NewRelationshipRepository(testDB)

	names := []string{"Hub Hana", "Link Liesl", "Far Fenn"}
	ids := make([]string, len(names))
	for i, name := range names {
		character, err := entities.CreateCharacter(ctx, models.CharacterInput{Name: name})
		if err != nil {
			t.Fatalf("CreateCharacter failed: %v", err)
		}
		ids[i] = models.RecordIDString(character.ID)
	}
	defer func() {
		for _, id := range ids {
			_ = entities.DeleteCharacter(ctx, id)
		}
	}()

	if _, err := relationships.CreateRelationship(ctx, models.RelationshipInput{
		FromCharacterID: ids[0],
		ToCharacterID:   ids[1],
		RelType:         "ally",
	}); err != nil {
		t.Fatalf("CreateRelationship failed: %v", err)
	}
	if _, err := relationships.UpsertPerception(ctx, models.PerceptionInput{
		ObserverID: ids[1],
		TargetID:   ids[2],
	}); err != nil {
		t.Fatalf("UpsertPerception failed: %v", err)
	}

	// Depth zero returns nothing, not the character's immediate neighbors
	none, err := relationships.GetConnectedEntities(ctx, ids[0], 0)
	if err != nil {
		t.Fatalf("GetConnectedEntities failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("Depth 0 should return no entities, got %d", len(none))
	}

	one, err := relationships.GetConnectedEntities(ctx, ids[0], 1)
	if err != nil {
		t.Fatalf("GetConnectedEntities failed: %v", err)
	}
	if len(one) != 1 || one[0].ID != ids[1] || one[0].Distance != 1 {
		t.Fatalf("Depth 1 should reach only the direct neighbor, got %v", one)
	}

	two, err := relationships.GetConnectedEntities(ctx, ids[0], 2)
	if err != nil {
		t.Fatalf("GetConnectedEntities failed: %v", err)
	}
	if len(two) != 2 {
		t.Fatalf("Depth 2 should reach both neighbors, got %v", two)
	}
	if two[0].ID != ids[1] || two[0].EdgeKind != "relates_to" {
		t.Errorf("First hop should arrive via relates_to, got %v", two[0])
	}
	if two[1].ID != ids[2] || two[1].Distance != 2 || two[1].EdgeKind != "perceives" {
		t.Errorf("Second hop should arrive via perceives at distance 2, got %v", two[1])
	}

	// Requests past the cap are clamped, not rejected
	clamped, err := relationships.GetConnectedEntities(ctx, ids[0], 99)
	if err != nil {
		t.Fatalf("GetConnectedEntities failed: %v", err)
	}
	if len(clamped) != 2 {
		t.Errorf("Clamped traversal should match depth 2, got %v", clamped)
	}

	if _, err := relationships.GetConnectedEntities(ctx, "character:nobody", 0); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected not-found error for unknown character, got %v", err)
	}
}
