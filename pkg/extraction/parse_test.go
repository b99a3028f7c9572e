package extraction

import (
	"testing"

	"github.com/signalhouse/magpie/pkg/common"
)

func TestParseResponseFencedJSON(t *testing.T) {
	raw := "Here is what I found:\n```json\n" +
		`{"nodes":[{"label":"Nike","type":"brand"},{"label":"Adidas","type":"brand"}],` +
		`"edges":[{"source":"Nike","target":"Adidas","type":"competes_with","weight":0.8}]}` +
		"\n```\nLet me know if you need more."

	result, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if len(result.Nodes) != 2 || len(result.Edges) != 1 {
		t.Fatalf("got %d nodes / %d edges, want 2/1", len(result.Nodes), len(result.Edges))
	}
	if result.Edges[0].Weight != 0.8 {
		t.Errorf("edge weight = %v, want 0.8", result.Edges[0].Weight)
	}
}

// Both response vocabularies must land in the same parsed shape.
func TestParseResponseShapeEquivalence(t *testing.T) {
	modern := `{"nodes":[{"label":"Nike","type":"brand"},{"label":"running","type":"topic"}],` +
		`"edges":[{"source":"Nike","target":"running","type":"discusses","weight":0.7}]}`
	legacy := `{"entities":[{"name":"Nike","entity_type":"brand"},{"name":"running","entity_type":"topic"}],` +
		`"relationships":[{"source_entity":"Nike","target_entity":"running","relationship_type":"discusses","strength":0.7}]}`

	a, err := ParseResponse(modern)
	if err != nil {
		t.Fatalf("ParseResponse(modern): %v", err)
	}
	b, err := ParseResponse(legacy)
	if err != nil {
		t.Fatalf("ParseResponse(legacy): %v", err)
	}

	if len(a.Nodes) != len(b.Nodes) || len(a.Edges) != len(b.Edges) {
		t.Fatalf("shapes disagree: %d/%d nodes, %d/%d edges",
			len(a.Nodes), len(b.Nodes), len(a.Edges), len(b.Edges))
	}
	for i := range a.Nodes {
		if a.Nodes[i].Label != b.Nodes[i].Label || a.Nodes[i].Type != b.Nodes[i].Type {
			t.Errorf("node %d differs: %+v vs %+v", i, a.Nodes[i], b.Nodes[i])
		}
	}
	if a.Edges[0].Weight != b.Edges[0].Weight || a.Edges[0].Type != b.Edges[0].Type {
		t.Errorf("edge differs: %+v vs %+v", a.Edges[0], b.Edges[0])
	}
}

func TestParseResponseObjectInProse(t *testing.T) {
	raw := `Sure! The extraction result is {"nodes":[{"label":"Berlin","type":"location"}]} as requested.`

	result, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if len(result.Nodes) != 1 || result.Nodes[0].Label != "Berlin" {
		t.Errorf("nodes = %+v, want Berlin", result.Nodes)
	}
}

func TestParseResponseBareArray(t *testing.T) {
	raw := `[{"name":"Nike","type":"brand"},{"name":"Puma","type":"brand"}]`

	result, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if len(result.Nodes) != 2 {
		t.Errorf("nodes = %d, want 2", len(result.Nodes))
	}
}

func TestParseResponseStructuredText(t *testing.T) {
	raw := `Entities found in the post:
- Nike (brand)
- Adidas (brand)

Relationships:
Nike -> competes_with -> Adidas`

	result, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if len(result.Nodes) != 2 {
		t.Fatalf("nodes = %+v, want 2", result.Nodes)
	}
	for _, n := range result.Nodes {
		if got := n.Properties.Confidence(0); got != 0.8 {
			t.Errorf("node %s confidence = %v, want reduced 0.8", n.Label, got)
		}
	}
	if len(result.Edges) != 1 || result.Edges[0].Type != "competes_with" {
		t.Fatalf("edges = %+v, want one competes_with", result.Edges)
	}
	if result.Edges[0].Weight != 0.5 {
		t.Errorf("heuristic edge weight = %v, want 0.5", result.Edges[0].Weight)
	}
}

func TestParseResponseStructuredTextBackfillsEndpoints(t *testing.T) {
	raw := "Nike -> mentions -> marathon"

	result, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if len(result.Nodes) != 2 {
		t.Fatalf("nodes = %+v, want endpoints backfilled", result.Nodes)
	}
	for _, n := range result.Nodes {
		if got := n.Properties.Confidence(0); got != 0.5 {
			t.Errorf("backfilled node %s confidence = %v, want 0.5", n.Label, got)
		}
	}
}

func TestParseResponseUnparseable(t *testing.T) {
	_, err := ParseResponse("I am sorry, I cannot help with that request.")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !common.IsParseError(err) {
		t.Errorf("error = %v, want ParseError", err)
	}
}
