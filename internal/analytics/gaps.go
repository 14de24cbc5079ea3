package analytics

import (
	"context"
	"sort"
	"strings"
)

// ThematicGap is a theme cluster missing entity types a complete theme
// would carry.
type ThematicGap struct {
	ClusterLabel string   `json:"cluster_label"`
	MemberCount  int      `json:"member_count"`
	PresentTypes []string `json:"present_types"`
	MissingTypes []string `json:"missing_types"`
	Severity     float64  `json:"severity"`
	Reading      string   `json:"reading"`
	TopMembers   []string `json:"top_members"`
}

// ThematicGaps clusters the world and reports themes lacking the expected
// entity types, most incomplete first.
func (s *ClusterService) ThematicGaps(ctx context.Context, minClusterSize int, expectedTypes []string) ([]ThematicGap, error) {
	if minClusterSize <= 0 {
		minClusterSize = 3
	}
	if len(expectedTypes) == 0 {
		expectedTypes = []string{"character", "event"}
	}

	clusters, err := s.Thematic(ctx, 0)
	if err != nil {
		return nil, err
	}

	var gaps []ThematicGap
	for _, cluster := range clusters {
		if cluster.MemberCount < minClusterSize {
			continue
		}
		present := map[string]bool{}
		for _, member := range cluster.Members {
			present[member.EntityType] = true
		}
		var missing []string
		for _, t := range expectedTypes {
			if !present[strings.ToLower(t)] {
				missing = append(missing, strings.ToLower(t))
			}
		}
		if len(missing) == 0 {
			continue
		}

		presentTypes := make([]string, 0, len(present))
		for t := range present {
			presentTypes = append(presentTypes, t)
		}
		sort.Strings(presentTypes)

		top := make([]string, 0, 5)
		for _, member := range cluster.Members {
			top = append(top, member.Name+" ("+member.EntityType+")")
			if len(top) == 5 {
				break
			}
		}

		gaps = append(gaps, ThematicGap{
			ClusterLabel: cluster.Label,
			MemberCount:  cluster.MemberCount,
			PresentTypes: presentTypes,
			MissingTypes: missing,
			Severity:     float64(len(missing)) / float64(len(expectedTypes)),
			Reading:      gapReading(present, missing),
			TopMembers:   top,
		})
	}

	sort.SliceStable(gaps, func(i, j int) bool {
		return gaps[i].Severity > gaps[j].Severity
	})
	return gaps, nil
}

// gapReading names the narrative shape of a gap pattern.
func gapReading(present map[string]bool, missing []string) string {
	missingSet := map[string]bool{}
	for _, t := range missing {
		missingSet[t] = true
	}
	switch {
	case present["event"] && !present["character"]:
		return "Events without protagonists: who drives this theme?"
	case present["character"] && !present["event"]:
		return "Characters without plot: what happens to embody this?"
	case missingSet["scene"]:
		return "No scenes ground this theme: where does it come to life?"
	case present["character"] && missingSet["knowledge"]:
		return "Characters lack associated knowledge: what do they know?"
	default:
		return "Theme has structural gaps: consider adding the missing entity types."
	}
}
