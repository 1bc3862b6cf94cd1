package graph

import (
	"sort"

	"github.com/specforge/specforge/pkg/models"
)

// impactSeverity grades the share of the graph affected by a change.
func impactSeverity(ratio float64) models.Severity {
	switch {
	case ratio < 0.2:
		return models.SeverityLow
	case ratio < 0.5:
		return models.SeverityMedium
	default:
		return models.SeverityHigh
	}
}

// AnalyzeImpact computes which nodes are affected when the given nodes
// change, by BFS over the reverse dependency adjacency: if u depends on v and
// v changes, u is affected. DirectlyAffected are one reverse hop away;
// TransitivelyAffected is the full reverse closure (direct included). The
// impact ratio is |affected| / |total nodes|.
func AnalyzeImpact(snap *models.GraphSnapshot, changed []string) *models.ImpactAnalysis {
	reverse := make(map[string][]string)
	total := make(map[string]struct{})
	for _, node := range snap.Nodes {
		total[node.ID] = struct{}{}
	}
	for _, edge := range snap.Edges {
		if !edge.Kind.IsDependency() {
			continue
		}
		reverse[edge.TargetID] = append(reverse[edge.TargetID], edge.SourceID)
		total[edge.SourceID] = struct{}{}
		total[edge.TargetID] = struct{}{}
	}

	changedSet := make(map[string]struct{}, len(changed))
	for _, id := range changed {
		changedSet[id] = struct{}{}
	}

	direct := make(map[string]struct{})
	for _, id := range changed {
		for _, dependent := range reverse[id] {
			if _, isChanged := changedSet[dependent]; !isChanged {
				direct[dependent] = struct{}{}
			}
		}
	}

	transitive := make(map[string]struct{})
	queue := append([]string(nil), changed...)
	visited := make(map[string]struct{}, len(changed))
	for _, id := range changed {
		visited[id] = struct{}{}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dependent := range reverse[id] {
			if _, seen := visited[dependent]; seen {
				continue
			}
			visited[dependent] = struct{}{}
			transitive[dependent] = struct{}{}
			queue = append(queue, dependent)
		}
	}

	analysis := &models.ImpactAnalysis{
		DirectlyAffected:     sortedKeys(direct),
		TransitivelyAffected: sortedKeys(transitive),
	}
	if len(total) > 0 {
		analysis.ImpactRatio = float64(len(transitive)) / float64(len(total))
	}
	analysis.Severity = impactSeverity(analysis.ImpactRatio)
	return analysis
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
