package extraction

import (
	"regexp"
	"strings"

	"github.com/signalhouse/magpie/pkg/ai"
	"github.com/signalhouse/magpie/pkg/common"
)

// ParsedNode is one extracted entity before persistence.
type ParsedNode struct {
	Label      string
	Type       string
	Properties common.Properties
}

// ParsedEdge is one extracted relationship, endpoints referenced by
// entity label.
type ParsedEdge struct {
	Source     string
	Target     string
	Type       string
	Weight     float64
	Properties common.Properties
}

// ParsedResult is the shape-normalized output of one LLM response.
type ParsedResult struct {
	Nodes []ParsedNode
	Edges []ParsedEdge
}

// Wire shapes. Models answer either {nodes, edges} or the older
// {entities, relationships} vocabulary, with several aliases per field;
// every variant lands in the same ParsedResult.
type wireNode struct {
	Label      string            `json:"label"`
	Name       string            `json:"name"`
	EntityName string            `json:"entity_name"`
	Type       string            `json:"type"`
	EntityType string            `json:"entity_type"`
	Confidence *float64          `json:"confidence"`
	Properties common.Properties `json:"properties"`
}

type wireEdge struct {
	Source           string            `json:"source"`
	SourceEntity     string            `json:"source_entity"`
	Target           string            `json:"target"`
	TargetEntity     string            `json:"target_entity"`
	Type             string            `json:"type"`
	RelationshipType string            `json:"relationship_type"`
	Weight           *float64          `json:"weight"`
	Strength         *float64          `json:"strength"`
	Properties       common.Properties `json:"properties"`
}

type wirePayload struct {
	Nodes         []wireNode `json:"nodes"`
	Edges         []wireEdge `json:"edges"`
	Entities      []wireNode `json:"entities"`
	Relationships []wireEdge `json:"relationships"`
}

// ParseResponse decodes a raw LLM response into nodes and edges. It
// tries, in order: a fenced json code block, the first {...} object,
// the first [...] array, and finally a line-oriented heuristic parser
// for structured prose. Returns a ParseError when every strategy
// fails.
func ParseResponse(raw string) (*ParsedResult, error) {
	for _, candidate := range jsonCandidates(raw) {
		var payload wirePayload
		if err := ai.UnmarshalFlexible(candidate, &payload); err == nil {
			if result := payload.normalize(); len(result.Nodes) > 0 || len(result.Edges) > 0 {
				return result, nil
			}
		}
		// A bare array is a node list without the wrapper object.
		var nodes []wireNode
		if err := ai.UnmarshalFlexible(candidate, &nodes); err == nil && len(nodes) > 0 {
			payload = wirePayload{Nodes: nodes}
			if result := payload.normalize(); len(result.Nodes) > 0 {
				return result, nil
			}
		}
	}

	if result := parseStructuredText(raw); len(result.Nodes) > 0 {
		return result, nil
	}

	return nil, &common.ParseError{Reason: "no nodes or edges in response", Raw: raw}
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

func jsonCandidates(raw string) []string {
	var candidates []string
	if m := fencedJSON.FindStringSubmatch(raw); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if start := strings.Index(raw, "{"); start != -1 {
		if end := strings.LastIndex(raw, "}"); end > start {
			candidates = append(candidates, raw[start:end+1])
		}
	}
	if start := strings.Index(raw, "["); start != -1 {
		if end := strings.LastIndex(raw, "]"); end > start {
			candidates = append(candidates, raw[start:end+1])
		}
	}
	return candidates
}

func (p wirePayload) normalize() *ParsedResult {
	result := &ParsedResult{}

	for _, n := range append(p.Nodes, p.Entities...) {
		label := firstNonEmpty(n.Label, n.Name, n.EntityName)
		if strings.TrimSpace(label) == "" {
			continue
		}
		props := n.Properties.Clone()
		if n.Confidence != nil {
			props = props.Merge(common.Properties{common.PropConfidence: *n.Confidence})
		}
		result.Nodes = append(result.Nodes, ParsedNode{
			Label:      strings.TrimSpace(label),
			Type:       firstNonEmpty(n.Type, n.EntityType),
			Properties: props,
		})
	}

	for _, e := range append(p.Edges, p.Relationships...) {
		source := strings.TrimSpace(firstNonEmpty(e.Source, e.SourceEntity))
		target := strings.TrimSpace(firstNonEmpty(e.Target, e.TargetEntity))
		if source == "" || target == "" {
			continue
		}
		weight := 1.0
		if e.Weight != nil {
			weight = *e.Weight
		} else if e.Strength != nil {
			weight = *e.Strength
		}
		result.Edges = append(result.Edges, ParsedEdge{
			Source:     source,
			Target:     target,
			Type:       firstNonEmpty(e.Type, e.RelationshipType),
			Weight:     weight,
			Properties: e.Properties.Clone(),
		})
	}

	return result
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Heuristic fallback for models that answer in structured prose instead
// of JSON. Recognizes entity lines like "- Nike (brand)" and relation
// lines like "Nike -> competes_with -> Adidas". Confidence is reduced:
// explicit entity lines get 0.8, endpoints that only appear inside a
// relation line get 0.5.
var (
	entityLine   = regexp.MustCompile(`^[\s\-\*\d.)]*(.+?)\s*\(([A-Za-z_ ]+)\)\s*$`)
	relationLine = regexp.MustCompile(`^[\s\-\*\d.)]*(.+?)\s*(?:->|=>|--)\s*([A-Za-z_ ]+?)\s*(?:->|=>|--)\s*(.+?)\s*$`)
)

func parseStructuredText(raw string) *ParsedResult {
	result := &ParsedResult{}
	seen := make(map[string]bool)

	addNode := func(label, nodeType string, confidence float64) {
		label = strings.TrimSpace(label)
		key := strings.ToLower(label)
		if label == "" || seen[key] {
			return
		}
		seen[key] = true
		result.Nodes = append(result.Nodes, ParsedNode{
			Label:      label,
			Type:       strings.TrimSpace(nodeType),
			Properties: common.Properties{common.PropConfidence: confidence},
		})
	}

	for _, line := range strings.Split(raw, "\n") {
		if m := relationLine.FindStringSubmatch(line); m != nil {
			addNode(m[1], "", 0.5)
			addNode(m[3], "", 0.5)
			result.Edges = append(result.Edges, ParsedEdge{
				Source: strings.TrimSpace(m[1]),
				Target: strings.TrimSpace(m[3]),
				Type:   strings.TrimSpace(m[2]),
				Weight: 0.5,
			})
			continue
		}
		if m := entityLine.FindStringSubmatch(line); m != nil {
			if _, known := MapNodeType(m[2]); known {
				addNode(m[1], m[2], 0.8)
			}
		}
	}

	return result
}
