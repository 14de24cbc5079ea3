package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/raphaelgruber/narra-go/internal/db"
	"github.com/raphaelgruber/narra-go/internal/repository"
)

// Verbosity selects how much orientation a resuming session gets.
type Verbosity string

const (
	VerbosityBrief      Verbosity = "brief"
	VerbosityStandard   Verbosity = "standard"
	VerbosityFull       Verbosity = "full"
	VerbosityNewWorld   Verbosity = "new_world"
	VerbosityEmptyWorld Verbosity = "empty_world"
)

// recentLimit is how many recent entities each tier surfaces.
func (v Verbosity) recentLimit() int {
	switch v {
	case VerbosityBrief:
		return 3
	case VerbosityStandard:
		return 10
	case VerbosityFull:
		return 20
	case VerbosityNewWorld:
		return 15
	default:
		return 0
	}
}

// StartupContext orients a session that is resuming work on a world.
type StartupContext struct {
	Verbosity        Verbosity         `json:"verbosity"`
	TimeAway         string            `json:"time_away,omitempty"`
	WorldOverview    map[string]int    `json:"world_overview"`
	RecentEntities   []EntitySummary   `json:"recent_entities,omitempty"`
	PinnedEntities   []string          `json:"pinned_entities,omitempty"`
	PendingDecisions []PendingDecision `json:"pending_decisions,omitempty"`
	Summary          string            `json:"summary"`
}

// StartupService builds the resume context shown at session start.
type StartupService struct {
	client    *db.Client
	entities  repository.EntityRepository
	summaries *SummaryService
	state     *StateManager
}

// NewStartupService wires the startup context builder.
func NewStartupService(client *db.Client, entities repository.EntityRepository, summaries *SummaryService, state *StateManager) *StartupService {
	return &StartupService{client: client, entities: entities, summaries: summaries, state: state}
}

// ClassifyVerbosity picks the tier from the time away and whether the
// world holds any data.
func ClassifyVerbosity(lastSessionEnd *time.Time, hasData bool, now time.Time) Verbosity {
	if !hasData {
		return VerbosityEmptyWorld
	}
	if lastSessionEnd == nil {
		return VerbosityNewWorld
	}
	elapsed := now.Sub(*lastSessionEnd)
	switch {
	case elapsed < 24*time.Hour:
		return VerbosityBrief
	case elapsed < 7*24*time.Hour:
		return VerbosityStandard
	default:
		return VerbosityFull
	}
}

// FormatTimeAgo renders an elapsed duration in conversational buckets.
func FormatTimeAgo(elapsed time.Duration) string {
	switch {
	case elapsed < time.Hour:
		minutes := int(elapsed.Minutes())
		if minutes <= 1 {
			return "a minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	case elapsed < 24*time.Hour:
		hours := int(elapsed.Hours())
		if hours == 1 {
			return "an hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case elapsed < 48*time.Hour:
		return "yesterday"
	case elapsed < 7*24*time.Hour:
		return fmt.Sprintf("%d days ago", int(elapsed.Hours()/24))
	case elapsed < 30*24*time.Hour:
		weeks := int(elapsed.Hours() / 24 / 7)
		if weeks == 1 {
			return "a week ago"
		}
		return fmt.Sprintf("%d weeks ago", weeks)
	default:
		months := int(elapsed.Hours() / 24 / 30)
		if months == 1 {
			return "a month ago"
		}
		return fmt.Sprintf("%d months ago", months)
	}
}

// Begin stamps the session start and builds the resume context.
func (s *StartupService) Begin(ctx context.Context) (*StartupContext, error) {
	previousEnd := s.state.MarkSessionStart()

	overview, err := s.worldOverview(ctx)
	if err != nil {
		return nil, err
	}
	hasData := false
	for _, n := range overview {
		if n > 0 {
			hasData = true
			break
		}
	}

	now := time.Now().UTC()
	verbosity := ClassifyVerbosity(previousEnd, hasData, now)

	result := &StartupContext{
		Verbosity:        verbosity,
		WorldOverview:    overview,
		PinnedEntities:   s.state.Pinned(),
		PendingDecisions: s.state.PendingDecisions(),
	}
	if previousEnd != nil {
		result.TimeAway = FormatTimeAgo(now.Sub(*previousEnd))
	}

	for _, id := range s.state.Recent(verbosity.recentLimit()) {
		summary, err := s.summaries.Summarize(ctx, id, DetailMinimal)
		if err != nil {
			continue
		}
		result.RecentEntities = append(result.RecentEntities, *summary)
	}

	result.Summary = s.summaryText(result)
	return result, nil
}

// worldOverview counts the core record and perception tables.
func (s *StartupService) worldOverview(ctx context.Context) (map[string]int, error) {
	counts, err := s.entities.CountByType(ctx)
	if err != nil {
		return nil, err
	}
	type countRow struct {
		Count int `json:"count"`
	}
	rows, err := db.Query[countRow](ctx, s.client,
		`SELECT count() AS count FROM perceives GROUP ALL`, nil)
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		counts["perceives"] = rows[0].Count
	} else {
		counts["perceives"] = 0
	}
	return counts, nil
}

func (s *StartupService) summaryText(c *StartupContext) string {
	var b strings.Builder
	switch c.Verbosity {
	case VerbosityEmptyWorld:
		return "This world is empty. Create characters, locations, and events to begin."
	case VerbosityNewWorld:
		fmt.Fprintf(&b, "Resuming an existing world: %s.", overviewPhrase(c.WorldOverview))
	case VerbosityBrief:
		fmt.Fprintf(&b, "Welcome back (%s).", c.TimeAway)
	case VerbosityStandard:
		fmt.Fprintf(&b, "Welcome back, last session was %s. World: %s.",
			c.TimeAway, overviewPhrase(c.WorldOverview))
	default:
		fmt.Fprintf(&b, "It has been a while (%s). World: %s.",
			c.TimeAway, overviewPhrase(c.WorldOverview))
	}

	if len(c.RecentEntities) > 0 {
		names := make([]string, 0, len(c.RecentEntities))
		for _, e := range c.RecentEntities {
			names = append(names, e.Name)
		}
		fmt.Fprintf(&b, " Recently active: %s.", strings.Join(names, ", "))
	}
	if n := len(c.PendingDecisions); n > 0 {
		if n == 1 {
			b.WriteString(" 1 decision is still pending.")
		} else {
			fmt.Fprintf(&b, " %d decisions are still pending.", n)
		}
	}
	return b.String()
}

func overviewPhrase(overview map[string]int) string {
	parts := make([]string, 0, 4)
	for _, key := range []string{"character", "location", "event", "scene"} {
		if n := overview[key]; n > 0 {
			label := key
			if n != 1 {
				label += "s"
			}
			parts = append(parts, fmt.Sprintf("%d %s", n, label))
		}
	}
	if len(parts) == 0 {
		return "no entities yet"
	}
	return strings.Join(parts, ", ")
}
