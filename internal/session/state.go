// Package session tracks per-user working state: recent accesses, pins,
// pending decisions, and the context and summary services built on them.
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// recentCap bounds the MRU recent-access list.
const recentCap = 100

// PendingDecision is a narrative decision the user deferred.
type PendingDecision struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	EntityIDs   []string  `json:"entity_ids"`
	CreatedAt   time.Time `json:"created_at"`
}

type persistedState struct {
	Recent           []string          `json:"recent"`
	Pinned           []string          `json:"pinned"`
	PendingDecisions []PendingDecision `json:"pending_decisions"`
	LastSessionStart *time.Time        `json:"last_session_start,omitempty"`
	LastSessionEnd   *time.Time        `json:"last_session_end,omitempty"`
}

// StateManager holds session state behind a single lock and persists it
// to one JSON file.
type StateManager struct {
	mu     sync.Mutex
	path   string
	state  persistedState
	logger *slog.Logger
}

// NewStateManager loads existing state from path, or starts fresh when
// the file is missing or unreadable.
func NewStateManager(path string, logger *slog.Logger) *StateManager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &StateManager{path: path, logger: logger}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, &m.state); err != nil {
			logger.Warn("failed to parse session state, starting fresh", "path", path, "error", err)
			m.state = persistedState{}
		}
	}
	return m
}

// save writes the state file. Callers hold the lock.
func (m *StateManager) save() error {
	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create session state dir: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("write session state: %w", err)
	}
	return nil
}

// Touch records an entity access, moving it to the head of the recent
// list.
func (m *StateManager) Touch(entityID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	recent := make([]string, 0, len(m.state.Recent)+1)
	recent = append(recent, entityID)
	for _, id := range m.state.Recent {
		if id != entityID {
			recent = append(recent, id)
		}
	}
	if len(recent) > recentCap {
		recent = recent[:recentCap]
	}
	m.state.Recent = recent

	if err := m.save(); err != nil {
		m.logger.Warn("failed to persist session state", "error", err)
	}
}

// Recent returns up to limit most recently accessed entity IDs.
func (m *StateManager) Recent(limit int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.state.Recent) {
		limit = len(m.state.Recent)
	}
	return append([]string(nil), m.state.Recent[:limit]...)
}

// Pin adds an entity to the pinned set.
func (m *StateManager) Pin(entityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.state.Pinned {
		if id == entityID {
			return nil
		}
	}
	m.state.Pinned = append(m.state.Pinned, entityID)
	return m.save()
}

// Unpin removes an entity from the pinned set.
func (m *StateManager) Unpin(entityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pinned := m.state.Pinned[:0]
	for _, id := range m.state.Pinned {
		if id != entityID {
			pinned = append(pinned, id)
		}
	}
	m.state.Pinned = pinned
	return m.save()
}

// Pinned returns the pinned entity IDs.
func (m *StateManager) Pinned() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.state.Pinned...)
}

// AddPendingDecision records a deferred decision and returns its ID.
func (m *StateManager) AddPendingDecision(description string, entityIDs []string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	decision := PendingDecision{
		ID:          uuid.NewString(),
		Description: description,
		EntityIDs:   entityIDs,
		CreatedAt:   time.Now().UTC(),
	}
	m.state.PendingDecisions = append(m.state.PendingDecisions, decision)
	return decision.ID, m.save()
}

// ResolvePendingDecision removes a decision by ID. Unknown IDs are a
// no-op.
func (m *StateManager) ResolvePendingDecision(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	decisions := m.state.PendingDecisions[:0]
	for _, d := range m.state.PendingDecisions {
		if d.ID != id {
			decisions = append(decisions, d)
		}
	}
	m.state.PendingDecisions = decisions
	return m.save()
}

// PendingDecisions returns the open decisions.
func (m *StateManager) PendingDecisions() []PendingDecision {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PendingDecision(nil), m.state.PendingDecisions...)
}

// LastSessionEnd returns when the previous session ended, if known.
func (m *StateManager) LastSessionEnd() *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.LastSessionEnd
}

// MarkSessionStart stamps the new session and returns when the previous
// one ended.
func (m *StateManager) MarkSessionStart() *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	previous := m.state.LastSessionEnd
	now := time.Now().UTC()
	m.state.LastSessionStart = &now
	if err := m.save(); err != nil {
		m.logger.Warn("failed to persist session state", "error", err)
	}
	return previous
}

// MarkSessionEnd stamps the session end.
func (m *StateManager) MarkSessionEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	m.state.LastSessionEnd = &now
	if err := m.save(); err != nil {
		m.logger.Warn("failed to persist session state", "error", err)
	}
}
