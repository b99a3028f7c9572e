package graphquery

import (
	"context"
	"sort"
)

// Community is one connected component of the undirected graph view.
// Density is internalEdges / (n*(n-1)/2) within the component.
type Community struct {
	ID            int                `json:"id"`
	Size          int                `json:"size"`
	InternalEdges int                `json:"internal_edges"`
	Density       float64            `json:"density"`
	NodeIDs       []string           `json:"node_ids"`
}

// CommunityReport is the result of community detection. Modularity is
// an approximation summing, per community,
// internal/total - (expected/total)^2; it is not the result of a true
// modularity-optimizing clustering.
type CommunityReport struct {
	Communities []Community `json:"communities"`
	Modularity  float64     `json:"modularity"`
}

// DetectCommunities finds connected components via an iterative
// depth-first search over the undirected adjacency view and reports the
// components with at least minSize nodes, largest first.
func (e *Engine) DetectCommunities(ctx context.Context, datasetID string, minSize int) (CommunityReport, error) {
	v, err := e.load(ctx, datasetID)
	if err != nil {
		return CommunityReport{}, err
	}
	if minSize < 1 {
		minSize = 1
	}

	visited := make(map[string]bool, len(v.nodes))
	var components [][]string

	// Stack-based DFS avoids recursion depth limits on long chains.
	for id := range v.nodes {
		if visited[id] {
			continue
		}
		var component []string
		stack := []string{id}
		visited[id] = true
		for len(stack) > 0 {
			current := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			component = append(component, current)
			for _, neighborID := range v.undirected[current] {
				if !visited[neighborID] {
					visited[neighborID] = true
					stack = append(stack, neighborID)
				}
			}
		}
		components = append(components, component)
	}

	totalEdges := len(v.edges)
	report := CommunityReport{}
	for _, component := range components {
		if len(component) < minSize {
			continue
		}

		member := make(map[string]bool, len(component))
		for _, id := range component {
			member[id] = true
		}
		internal := 0
		for _, edge := range v.edges {
			if member[edge.SourceNodeID] && member[edge.TargetNodeID] {
				internal++
			}
		}

		sort.Strings(component)
		community := Community{
			Size:          len(component),
			InternalEdges: internal,
			Density:       density(internal, len(component)),
			NodeIDs:       component,
		}
		report.Communities = append(report.Communities, community)

		if totalEdges > 0 {
			// Expected edges if the component's degree share were random.
			degreeSum := 0
			for _, id := range component {
				degreeSum += len(v.undirected[id])
			}
			fraction := float64(internal) / float64(totalEdges)
			expected := float64(degreeSum) / (2 * float64(totalEdges))
			report.Modularity += fraction - expected*expected
		}
	}

	sort.Slice(report.Communities, func(i, j int) bool {
		if report.Communities[i].Size != report.Communities[j].Size {
			return report.Communities[i].Size > report.Communities[j].Size
		}
		return report.Communities[i].NodeIDs[0] < report.Communities[j].NodeIDs[0]
	})
	for i := range report.Communities {
		report.Communities[i].ID = i + 1
	}

	return report, nil
}
