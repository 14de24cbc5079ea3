//go:build integration

package tools_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/narra-go/internal/config"
	"github.com/raphaelgruber/narra-go/internal/session"
	"github.com/raphaelgruber/narra-go/internal/tools"
)

// testLogger creates a logger for test visibility.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// connectedSession starts a server with all tools registered over
// in-memory transports and returns a connected client session.
func connectedSession(t *testing.T, ctx context.Context, deps *tools.Dependencies) *mcp.ClientSession {
	t.Helper()

	impl := &mcp.Implementation{
		Name:    "test-narra",
		Version: "0.0.1-test",
	}
	server := mcp.NewServer(impl, nil)
	tools.RegisterAll(server, deps)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	go func() {
		_ = server.Run(ctx, serverTransport)
	}()
	time.Sleep(50 * time.Millisecond)

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)
	clientSession, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err, "client should connect successfully")
	t.Cleanup(func() { _ = clientSession.Close() })
	return clientSession
}

func TestRegisteredTools(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	deps := &tools.Dependencies{
		Logger: testLogger(),
		Config: &config.Config{MaxTokenBudget: 8000},
		State:  session.NewStateManager(filepath.Join(t.TempDir(), "session.json"), nil),
	}
	clientSession := connectedSession(t, ctx, deps)

	result, err := clientSession.ListTools(ctx, nil)
	require.NoError(t, err)
	require.Len(t, result.Tools, 5)

	names := make(map[string]bool, len(result.Tools))
	for _, tool := range result.Tools {
		names[tool.Name] = true
		assert.NotEmpty(t, tool.Description, "tool %s should be described", tool.Name)
	}
	for _, want := range []string{"query", "mutate", "session", "export_world", "generate_graph"} {
		assert.True(t, names[want], "tool %s should be registered", want)
	}
}

func TestSessionToolPinWithoutDatabase(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	deps := &tools.Dependencies{
		Logger: testLogger(),
		Config: &config.Config{MaxTokenBudget: 8000},
		State:  session.NewStateManager(filepath.Join(t.TempDir(), "session.json"), nil),
	}
	clientSession := connectedSession(t, ctx, deps)

	result, err := clientSession.CallTool(ctx, &mcp.CallToolParams{
		Name:      "session",
		Arguments: map[string]any{"operation": "PinEntity", "id": "character:kaela"},
	})
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := result.Content[0].(*mcp.TextContent).Text
	var resp tools.Response
	require.NoError(t, json.Unmarshal([]byte(text), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "pinned", resp.Results[0].Content)
	assert.Equal(t, []string{"character:kaela"}, deps.State.Pinned())
}

func TestSessionToolRejectsUnknownOperation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	deps := &tools.Dependencies{
		Logger: testLogger(),
		Config: &config.Config{MaxTokenBudget: 8000},
		State:  session.NewStateManager(filepath.Join(t.TempDir(), "session.json"), nil),
	}
	clientSession := connectedSession(t, ctx, deps)

	result, err := clientSession.CallTool(ctx, &mcp.CallToolParams{
		Name:      "session",
		Arguments: map[string]any{"operation": "Nope"},
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].(*mcp.TextContent).Text, "unknown session operation")
}
