// Package db provides integration tests for SurrealDB operations.
package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testDB *Client
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

	testDB, err = NewClient(ctx, Config{
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

func TestInitSchemaIdempotent(t *testing.T) {
	ctx := context.Background()
	if err := testDB.InitSchema(ctx); err != nil {
		t.Fatalf("second InitSchema should not error: %v", err)
	}
}

func TestExecAndQuery(t *testing.T) {
	ctx := context.Background()

	err := testDB.Exec(ctx, `CREATE character:exec_test SET name = $name`, map[string]any{"name": "Exec Test"})
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	defer func() {
		_ = testDB.Exec(ctx, `DELETE character:exec_test`, nil)
	}()

	type row struct {
		Name string `json:"name"`
	}
	rows, err := Query[row](ctx, testDB, `SELECT name FROM character WHERE name = $name`,
		map[string]any{"name": "Exec Test"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rows))
	}
	if rows[0].Name != "Exec Test" {
		t.Errorf("Expected name 'Exec Test', got %q", rows[0].Name)
	}
}

func TestQueryOne(t *testing.T) {
	ctx := context.Background()

	type row struct {
		Value int `json:"value"`
	}
	got, err := QueryOne[row](ctx, testDB, `SELECT 42 AS value FROM [{}]`, nil)
	if err != nil {
		t.Fatalf("QueryOne failed: %v", err)
	}
	if got == nil || got.Value != 42 {
		t.Errorf("Expected value 42, got %v", got)
	}

	missing, err := QueryOne[row](ctx, testDB, `SELECT * FROM character WHERE name = "does not exist"`, nil)
	if err != nil {
		t.Fatalf("QueryOne on empty result failed: %v", err)
	}
	if missing != nil {
		t.Error("QueryOne should return nil for no rows")
	}
}

func TestEmbeddingMetaRoundTrip(t *testing.T) {
	ctx := context.Background()

	if err := testDB.RecordEmbeddingMeta(ctx, "ollama", "nomic-embed-text", 768); err != nil {
		t.Fatalf("RecordEmbeddingMeta failed: %v", err)
	}

	meta, err := testDB.GetEmbeddingMeta(ctx)
	if err != nil {
		t.Fatalf("GetEmbeddingMeta failed: %v", err)
	}
	if meta == nil {
		t.Fatal("GetEmbeddingMeta returned nil after record")
	}
	if meta.EmbeddingModel != "nomic-embed-text" {
		t.Errorf("Expected model 'nomic-embed-text', got %q", meta.EmbeddingModel)
	}
	if meta.EmbeddingDimension != 768 {
		t.Errorf("Expected dimension 768, got %d", meta.EmbeddingDimension)
	}

	// Upsert overwrites
	if err := testDB.RecordEmbeddingMeta(ctx, "openai", "text-embedding-3-small", 1536); err != nil {
		t.Fatalf("Second RecordEmbeddingMeta failed: %v", err)
	}
	meta, err = testDB.GetEmbeddingMeta(ctx)
	if err != nil {
		t.Fatalf("GetEmbeddingMeta after upsert failed: %v", err)
	}
	if meta.EmbeddingProvider != "openai" || meta.EmbeddingDimension != 1536 {
		t.Errorf("Meta should reflect latest record, got %+v", meta)
	}
}

func TestWipeData(t *testing.T) {
	ctx := context.Background()

	if err := testDB.Exec(ctx, `CREATE character:wipe_test SET name = "Wipe Me"`, nil); err != nil {
		t.Fatalf("Failed to create record: %v", err)
	}

	if err := testDB.WipeData(ctx); err != nil {
		t.Fatalf("WipeData failed: %v", err)
	}

	type row struct {
		Name string `json:"name"`
	}
	rows, err := Query[row](ctx, testDB, `SELECT name FROM character`, nil)
	if err != nil {
		t.Fatalf("Query after wipe failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("Expected no characters after wipe, got %d", len(rows))
	}
}
