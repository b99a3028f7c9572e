package learning

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/signalhouse/magpie/pkg/common"
	"github.com/signalhouse/magpie/pkg/similarity"
	"github.com/signalhouse/magpie/pkg/store"
)

const (
	minNodeFrequency = 3
	minEdgeFrequency = 2
)

// Suggestion is a proposed dictionary entity mined from graph data.
type Suggestion struct {
	CanonicalName string   `json:"canonical_name"`
	EntityType    string   `json:"entity_type"`
	Frequency     int      `json:"frequency"`
	Confidence    float64  `json:"confidence"`
	Aliases       []string `json:"aliases,omitempty"`
}

type labelGroup struct {
	label     string
	nodeType  common.NodeType
	rawLabels map[string]bool
	docs      map[string]bool
	frequency int
	edgeHits  int
	newest    time.Time
	linked    bool
}

// SuggestNewEntities mines a dataset's nodes grouped by (type, label)
// and proposes dictionary entries for groups seen at least three times,
// or twice when the label also participates in a repeated edge pattern.
// Labels already in the dictionary are skipped. Suggestions are ranked
// by a capped confidence heuristic and returned best first.
func (e *Engine) SuggestNewEntities(ctx context.Context, datasetID string) ([]Suggestion, error) {
	nodes, err := e.graph.ListNodes(ctx, store.NodeFilter{DatasetID: datasetID})
	if err != nil {
		return nil, err
	}
	edges, err := e.graph.ListEdges(ctx, store.EdgeFilter{DatasetID: datasetID})
	if err != nil {
		return nil, err
	}
	known, err := e.knownLabels(ctx)
	if err != nil {
		return nil, err
	}

	groups := make(map[string]*labelGroup)
	nodeGroup := make(map[string]*labelGroup)
	for _, node := range nodes {
		label := strings.TrimSpace(node.Label)
		if label == "" {
			continue
		}
		if known[strings.ToLower(label)] {
			continue
		}

		key := string(node.Type) + "|" + strings.ToLower(label)
		group, ok := groups[key]
		if !ok {
			group = &labelGroup{
				label:     label,
				nodeType:  node.Type,
				rawLabels: make(map[string]bool),
				docs:      make(map[string]bool),
			}
			groups[key] = group
		}
		group.frequency++
		group.rawLabels[label] = true
		if node.DocumentID != "" {
			group.docs[node.DocumentID] = true
		}
		if node.UpdatedAt.After(group.newest) {
			group.newest = node.UpdatedAt
		}
		if node.Properties.String(common.PropGraphEntityID) != "" {
			group.linked = true
		}
		nodeGroup[node.ID] = group
	}

	// A (node, edgeType) pattern recurring across edges lowers the
	// frequency bar for that label.
	patterns := make(map[string]int)
	for _, edge := range edges {
		patterns[edge.SourceNodeID+"|"+string(edge.Type)]++
		patterns[edge.TargetNodeID+"|"+string(edge.Type)]++
	}
	for _, edge := range edges {
		for _, nodeID := range []string{edge.SourceNodeID, edge.TargetNodeID} {
			group, ok := nodeGroup[nodeID]
			if !ok {
				continue
			}
			if count := patterns[nodeID+"|"+string(edge.Type)]; count > group.edgeHits {
				group.edgeHits = count
			}
		}
	}

	var suggestions []Suggestion
	for _, group := range groups {
		if group.frequency < minNodeFrequency &&
			!(group.edgeHits >= minEdgeFrequency && group.frequency >= minEdgeFrequency) {
			continue
		}

		suggestions = append(suggestions, Suggestion{
			CanonicalName: group.label,
			EntityType:    string(group.nodeType),
			Frequency:     group.frequency,
			Confidence:    suggestionConfidence(group),
			Aliases:       aliasVariants(group.label),
		})
	}

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Confidence != suggestions[j].Confidence {
			return suggestions[i].Confidence > suggestions[j].Confidence
		}
		return suggestions[i].CanonicalName < suggestions[j].CanonicalName
	})
	return suggestions, nil
}

func (e *Engine) knownLabels(ctx context.Context) (map[string]bool, error) {
	entities, err := e.dict.FindEntities(ctx, store.EntityFilter{})
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool)
	for _, entity := range entities {
		known[strings.ToLower(entity.CanonicalName)] = true
		for _, alias := range entity.Aliases {
			known[strings.ToLower(alias.Alias)] = true
		}
	}
	return known, nil
}

// suggestionConfidence combines frequency, recency, intra-group label
// similarity and context variety. Each factor is capped so none
// dominates: frequency up to +0.3, recency up to +0.2, similarity up to
// +0.2, variety up to +0.1, plus +0.1 when the label was previously
// linked to a dictionary entity. Base 0.5, clamped to [0,1].
func suggestionConfidence(group *labelGroup) float64 {
	confidence := 0.5

	confidence += min(0.3, float64(group.frequency)*0.05)

	if !group.newest.IsZero() {
		age := time.Since(group.newest)
		switch {
		case age <= 24*time.Hour:
			confidence += 0.2
		case age <= 7*24*time.Hour:
			confidence += 0.1
		}
	}

	confidence += min(0.2, averageLabelSimilarity(group.rawLabels)*0.2)
	confidence += min(0.1, float64(len(group.docs))*0.025)
	if group.linked {
		confidence += 0.1
	}

	return max(0, min(1, confidence))
}

// averageLabelSimilarity scores how consistently a label is written
// across its raw surface forms. A single form counts as fully
// consistent.
func averageLabelSimilarity(rawLabels map[string]bool) float64 {
	labels := make([]string, 0, len(rawLabels))
	for label := range rawLabels {
		labels = append(labels, label)
	}
	if len(labels) <= 1 {
		return 1.0
	}

	sum, pairs := 0.0, 0
	for i := 0; i < len(labels); i++ {
		for j := i + 1; j < len(labels); j++ {
			sum += similarity.Similarity(labels[i], labels[j])
			pairs++
		}
	}
	return sum / float64(pairs)
}

// aliasVariants generates the mechanical spelling variants of a label:
// whitespace-stripped, underscored, hyphenated and lowercased.
func aliasVariants(label string) []string {
	fields := strings.Fields(label)

	candidates := []string{
		strings.Join(fields, ""),
		strings.Join(fields, "_"),
		strings.Join(fields, "-"),
		strings.ToLower(label),
	}

	seen := make(map[string]bool)
	var variants []string
	for _, candidate := range candidates {
		if candidate == "" || candidate == label {
			continue
		}
		key := strings.ToLower(candidate)
		if seen[key] {
			continue
		}
		seen[key] = true
		variants = append(variants, candidate)
	}
	return variants
}
