package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/narra-go/internal/db"
	"github.com/raphaelgruber/narra-go/internal/models"
)

// DetailLevel selects how much of an entity's content a summary carries.
type DetailLevel string

const (
	DetailMinimal DetailLevel = "minimal"
	DetailSummary DetailLevel = "summary"
	DetailFull    DetailLevel = "full"
)

const (
	// summaryThresholdTokens is the content size above which the summary
	// level truncates instead of passing content through.
	summaryThresholdTokens = 200
	// summaryTargetTokens is the truncation target at the summary level.
	summaryTargetTokens = 50
	// summaryCacheTTL bounds how long a cached summary stays fresh even
	// when the source content is unchanged.
	summaryCacheTTL = 5 * time.Minute
	// minimalTokens is the flat cost charged for a minimal rendering.
	minimalTokens = 5
)

// TokenEstimate approximates the token cost of a string at four
// characters per token, rounded up.
func TokenEstimate(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + 3) / 4
}

// EntitySummary is one entity rendered at a detail level.
type EntitySummary struct {
	ID          string      `json:"id"`
	EntityType  string      `json:"entity_type"`
	Name        string      `json:"name"`
	Content     string      `json:"content,omitempty"`
	DetailLevel DetailLevel `json:"detail_level"`
	Tokens      int         `json:"tokens"`
	Truncated   bool        `json:"truncated"`
}

type cachedSummary struct {
	summary       EntitySummary
	sourceVersion string
	cachedAt      time.Time
}

// SummaryService renders entities at minimal, summary, or full detail,
// caching the truncated summary level keyed by content hash.
type SummaryService struct {
	client *db.Client

	mu    sync.Mutex
	cache map[string]cachedSummary
}

// NewSummaryService creates a summary service.
func NewSummaryService(client *db.Client) *SummaryService {
	return &SummaryService{client: client, cache: map[string]cachedSummary{}}
}

type contentRow struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Content *string `json:"content"`
}

// contentColumns maps each table to name and content expressions. Tables
// without a single prose column fall back to their composite text.
var contentColumns = map[string]string{
	"character": `name, composite_text AS content`,
	"location":  `name, description AS content`,
	"event":     `title AS name, description AS content`,
	"scene":     `title AS name, summary AS content`,
	"knowledge": `fact AS name, fact AS content`,
	"fact":      `title AS name, description AS content`,
	"note":      `title AS name, body AS content`,
}

// fetch loads the entity's display name and prose content.
func (s *SummaryService) fetch(ctx context.Context, entityID string) (*contentRow, error) {
	table, key, err := models.SplitEntityID(entityID)
	if err != nil {
		return nil, db.Validationf("%v", err)
	}
	columns, ok := contentColumns[table]
	if !ok {
		return nil, db.Validationf("unknown entity type %q", table)
	}
	row, err := db.QueryOne[contentRow](ctx, s.client, fmt.Sprintf(
		`SELECT <string>id AS id, %s FROM type::record($table, $key)`, columns),
		map[string]any{"table": table, "key": key})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, &db.NotFoundError{EntityType: table, ID: entityID}
	}
	return row, nil
}

// Summarize renders the entity at the requested detail level.
func (s *SummaryService) Summarize(ctx context.Context, entityID string, level DetailLevel) (*EntitySummary, error) {
	row, err := s.fetch(ctx, entityID)
	if err != nil {
		return nil, err
	}
	table, _, _ := models.SplitEntityID(entityID)
	summary := s.render(entityID, table, row, level)
	return &summary, nil
}

func (s *SummaryService) render(entityID, table string, row *contentRow, level DetailLevel) EntitySummary {
	content := ""
	if row.Content != nil {
		content = *row.Content
	}

	switch level {
	case DetailMinimal:
		return EntitySummary{
			ID:          entityID,
			EntityType:  table,
			Name:        row.Name,
			DetailLevel: DetailMinimal,
			Tokens:      minimalTokens,
		}
	case DetailFull:
		return EntitySummary{
			ID:          entityID,
			EntityType:  table,
			Name:        row.Name,
			Content:     content,
			DetailLevel: DetailFull,
			Tokens:      minimalTokens + TokenEstimate(content),
		}
	}

	if TokenEstimate(content) <= summaryThresholdTokens {
		return EntitySummary{
			ID:          entityID,
			EntityType:  table,
			Name:        row.Name,
			Content:     content,
			DetailLevel: DetailSummary,
			Tokens:      minimalTokens + TokenEstimate(content),
		}
	}

	version := sourceVersion(row.Name, content)
	cacheKey := entityID + ":summary"

	s.mu.Lock()
	if c, ok := s.cache[cacheKey]; ok && c.sourceVersion == version &&
		time.Since(c.cachedAt) < summaryCacheTTL {
		s.mu.Unlock()
		return c.summary
	}
	s.mu.Unlock()

	truncated := Truncate(content, summaryTargetTokens)
	summary := EntitySummary{
		ID:          entityID,
		EntityType:  table,
		Name:        row.Name,
		Content:     truncated,
		DetailLevel: DetailSummary,
		Tokens:      minimalTokens + TokenEstimate(truncated),
		Truncated:   true,
	}

	s.mu.Lock()
	s.cache[cacheKey] = cachedSummary{summary: summary, sourceVersion: version, cachedAt: time.Now()}
	s.mu.Unlock()
	return summary
}

// Invalidate drops any cached summary for the entity. Mutations call this
// so the next read reflects the new content.
func (s *SummaryService) Invalidate(entityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, entityID+":summary")
}

func sourceVersion(name, content string) string {
	h := sha256.Sum256([]byte(name + "\x00" + content))
	return hex.EncodeToString(h[:8])
}

// Truncate shortens content to roughly target tokens, preferring sentence
// boundaries, then word boundaries, then a hard cut. The result carries a
// trailing ellipsis when anything was dropped.
func Truncate(content string, targetTokens int) string {
	budget := targetTokens * 4
	if len(content) <= budget {
		return content
	}

	window := content[:budget]
	if cut := lastSentenceEnd(window); cut > budget/2 {
		return strings.TrimSpace(window[:cut]) + " …"
	}
	if cut := strings.LastIndexByte(window, ' '); cut > budget/2 {
		return strings.TrimSpace(window[:cut]) + " …"
	}
	return strings.TrimSpace(window) + " …"
}

func lastSentenceEnd(s string) int {
	best := -1
	for _, sep := range []string{". ", "! ", "? "} {
		if i := strings.LastIndex(s, sep); i+1 > best {
			best = i + 1
		}
	}
	return best
}
