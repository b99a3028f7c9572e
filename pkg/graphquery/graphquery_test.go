package graphquery

import (
	"context"
	"testing"

	"github.com/signalhouse/magpie/pkg/common"
	"github.com/signalhouse/magpie/pkg/store/memory"
)

// buildGraph creates labeled nodes and directed edges between them,
// returning the nodes by label.
func buildGraph(t *testing.T, mem *memory.Store, labels []string, edges [][2]string) map[string]*common.GraphNode {
	t.Helper()
	ctx := context.Background()

	nodes := make(map[string]*common.GraphNode, len(labels))
	for _, label := range labels {
		node := &common.GraphNode{DatasetID: "ds", Type: common.NodeTypeTopic, Label: label}
		if err := mem.CreateNode(ctx, node); err != nil {
			t.Fatalf("CreateNode(%s): %v", label, err)
		}
		nodes[label] = node
	}
	for _, pair := range edges {
		if err := mem.CreateEdge(ctx, &common.GraphEdge{
			DatasetID:    "ds",
			SourceNodeID: nodes[pair[0]].ID,
			TargetNodeID: nodes[pair[1]].ID,
			Type:         common.EdgeTypeRelatedTo,
			Weight:       1,
		}); err != nil {
			t.Fatalf("CreateEdge(%s->%s): %v", pair[0], pair[1], err)
		}
	}
	return nodes
}

func newTestEngine(t *testing.T) (*Engine, *memory.Store) {
	t.Helper()
	mem := memory.NewStore()
	engine, err := NewEngine(NewEngineParams{Graph: mem})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine, mem
}

func TestShortestPath(t *testing.T) {
	ctx := context.Background()
	engine, mem := newTestEngine(t)

	nodes := buildGraph(t, mem,
		[]string{"A", "B", "C", "D"},
		[][2]string{{"A", "B"}, {"B", "C"}, {"A", "D"}, {"D", "C"}},
	)

	path, err := engine.ShortestPath(ctx, "ds", nodes["A"].ID, nodes["C"].ID, 5)
	if err != nil {
		t.Fatalf("ShortestPath: %v", err)
	}
	if path == nil {
		t.Fatal("expected a path")
	}
	if path.Length != 2 {
		t.Errorf("Length = %d, want 2", path.Length)
	}
	if len(path.Nodes) != 3 || len(path.Edges) != 2 {
		t.Errorf("path shape = %d nodes / %d edges, want 3/2", len(path.Nodes), len(path.Edges))
	}
	if path.Nodes[0].ID != nodes["A"].ID || path.Nodes[len(path.Nodes)-1].ID != nodes["C"].ID {
		t.Errorf("path endpoints wrong: %v", path.Nodes)
	}
}

func TestShortestPathSelf(t *testing.T) {
	ctx := context.Background()
	engine, mem := newTestEngine(t)

	nodes := buildGraph(t, mem, []string{"A"}, nil)

	path, err := engine.ShortestPath(ctx, "ds", nodes["A"].ID, nodes["A"].ID, 5)
	if err != nil {
		t.Fatalf("ShortestPath: %v", err)
	}
	if path == nil || path.Length != 0 || len(path.Nodes) != 1 {
		t.Errorf("self path = %+v, want single-node path of distance 0", path)
	}
}

func TestShortestPathUnreachable(t *testing.T) {
	ctx := context.Background()
	engine, mem := newTestEngine(t)

	// B->A exists, so A cannot reach B over the directed relation.
	nodes := buildGraph(t, mem, []string{"A", "B"}, [][2]string{{"B", "A"}})

	path, err := engine.ShortestPath(ctx, "ds", nodes["A"].ID, nodes["B"].ID, 5)
	if err != nil {
		t.Fatalf("ShortestPath: %v", err)
	}
	if path != nil {
		t.Errorf("expected nil for unreachable target, got %+v", path)
	}
}

func TestShortestPathDepthBound(t *testing.T) {
	ctx := context.Background()
	engine, mem := newTestEngine(t)

	nodes := buildGraph(t, mem,
		[]string{"A", "B", "C", "D"},
		[][2]string{{"A", "B"}, {"B", "C"}, {"C", "D"}},
	)

	path, err := engine.ShortestPath(ctx, "ds", nodes["A"].ID, nodes["D"].ID, 2)
	if err != nil {
		t.Fatalf("ShortestPath: %v", err)
	}
	if path != nil {
		t.Errorf("expected nil beyond maxDepth, got length %d", path.Length)
	}
}

func TestNeighbors(t *testing.T) {
	ctx := context.Background()
	engine, mem := newTestEngine(t)

	nodes := buildGraph(t, mem,
		[]string{"A", "B", "C", "D"},
		// C->A: undirected expansion still reaches C from A.
		[][2]string{{"A", "B"}, {"C", "A"}, {"B", "D"}},
	)

	direct, err := engine.Neighbors(ctx, "ds", nodes["A"].ID, 1, nil)
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}
	if len(direct) != 2 {
		t.Errorf("depth 1 neighbors = %d, want 2 (B and C)", len(direct))
	}

	all, err := engine.Neighbors(ctx, "ds", nodes["A"].ID, 2, nil)
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("depth 2 neighbors = %d, want 3", len(all))
	}
}

func TestNeighborsTypeFilter(t *testing.T) {
	ctx := context.Background()
	engine, mem := newTestEngine(t)

	hub := &common.GraphNode{DatasetID: "ds", Type: common.NodeTypeBrand, Label: "Nike"}
	topic := &common.GraphNode{DatasetID: "ds", Type: common.NodeTypeTopic, Label: "running"}
	author := &common.GraphNode{DatasetID: "ds", Type: common.NodeTypeAuthor, Label: "@runner"}
	for _, node := range []*common.GraphNode{hub, topic, author} {
		if err := mem.CreateNode(ctx, node); err != nil {
			t.Fatalf("CreateNode: %v", err)
		}
	}
	for _, target := range []*common.GraphNode{topic, author} {
		if err := mem.CreateEdge(ctx, &common.GraphEdge{
			DatasetID:    "ds",
			SourceNodeID: hub.ID,
			TargetNodeID: target.ID,
			Type:         common.EdgeTypeRelatedTo,
			Weight:       1,
		}); err != nil {
			t.Fatalf("CreateEdge: %v", err)
		}
	}

	got, err := engine.Neighbors(ctx, "ds", hub.ID, 1, []common.NodeType{common.NodeTypeTopic})
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}
	if len(got) != 1 || got[0].Type != common.NodeTypeTopic {
		t.Errorf("filtered neighbors = %+v, want only the topic", got)
	}
}

func TestDensity(t *testing.T) {
	ctx := context.Background()
	engine, mem := newTestEngine(t)

	buildGraph(t, mem,
		[]string{"A", "B", "C", "D"},
		[][2]string{{"A", "B"}, {"B", "C"}, {"C", "D"}},
	)

	got, err := engine.Density(ctx, "ds")
	if err != nil {
		t.Fatalf("Density: %v", err)
	}
	if got != 0.5 {
		t.Errorf("Density = %v, want 0.5 (3 edges over 6 possible)", got)
	}
}

func TestDensityTinyGraph(t *testing.T) {
	ctx := context.Background()
	engine, mem := newTestEngine(t)
	buildGraph(t, mem, []string{"A"}, nil)

	got, err := engine.Density(ctx, "ds")
	if err != nil {
		t.Fatalf("Density: %v", err)
	}
	if got != 0 {
		t.Errorf("Density = %v, want 0 for a single node", got)
	}
}

func TestAveragePathLength(t *testing.T) {
	ctx := context.Background()
	engine, mem := newTestEngine(t)

	buildGraph(t, mem,
		[]string{"A", "B", "C"},
		[][2]string{{"A", "B"}, {"B", "C"}},
	)

	got, err := engine.AveragePathLength(ctx, "ds")
	if err != nil {
		t.Fatalf("AveragePathLength: %v", err)
	}
	// Reachable pairs: A->B (1), A->C (2), B->C (1).
	want := 4.0 / 3.0
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("AveragePathLength = %v, want %v", got, want)
	}
}

func TestDetectCommunities(t *testing.T) {
	ctx := context.Background()
	engine, mem := newTestEngine(t)

	// Triangle A-B-C plus pair D-E plus isolated F.
	buildGraph(t, mem,
		[]string{"A", "B", "C", "D", "E", "F"},
		[][2]string{{"A", "B"}, {"B", "C"}, {"C", "A"}, {"D", "E"}},
	)

	report, err := engine.DetectCommunities(ctx, "ds", 2)
	if err != nil {
		t.Fatalf("DetectCommunities: %v", err)
	}
	if len(report.Communities) != 2 {
		t.Fatalf("communities = %d, want 2 (isolated node filtered)", len(report.Communities))
	}

	first := report.Communities[0]
	if first.Size != 3 || first.InternalEdges != 3 {
		t.Errorf("largest community = %+v, want triangle", first)
	}
	if first.Density != 1.0 {
		t.Errorf("triangle density = %v, want 1.0", first.Density)
	}
	if first.ID != 1 || report.Communities[1].ID != 2 {
		t.Errorf("community ids not assigned by rank: %+v", report.Communities)
	}

	second := report.Communities[1]
	if second.Size != 2 || second.Density != 1.0 {
		t.Errorf("pair community = %+v", second)
	}
}

func TestCentralityDegree(t *testing.T) {
	ctx := context.Background()
	engine, mem := newTestEngine(t)

	nodes := buildGraph(t, mem,
		[]string{"hub", "a", "b", "c"},
		[][2]string{{"a", "hub"}, {"b", "hub"}, {"hub", "c"}},
	)

	ranked, err := engine.Centrality(ctx, "ds", CentralityDegree, 2)
	if err != nil {
		t.Fatalf("Centrality: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("limit not applied, got %d results", len(ranked))
	}
	if ranked[0].Node.ID != nodes["hub"].ID || ranked[0].Score != 3 {
		t.Errorf("top = %+v, want hub with degree 3", ranked[0])
	}
	if ranked[0].Rank != 1 || ranked[1].Rank != 2 {
		t.Errorf("ranks not assigned: %+v", ranked)
	}
}

func TestCentralityBetweenness(t *testing.T) {
	ctx := context.Background()
	engine, mem := newTestEngine(t)

	nodes := buildGraph(t, mem,
		[]string{"A", "M", "B"},
		[][2]string{{"A", "M"}, {"M", "B"}},
	)

	ranked, err := engine.Centrality(ctx, "ds", CentralityBetweenness, 3)
	if err != nil {
		t.Fatalf("Centrality: %v", err)
	}
	if ranked[0].Node.ID != nodes["M"].ID || ranked[0].Score != 1 {
		t.Errorf("top = %+v, want M on the single A->B path", ranked[0])
	}
}

func TestCentralityCloseness(t *testing.T) {
	ctx := context.Background()
	engine, mem := newTestEngine(t)

	nodes := buildGraph(t, mem,
		[]string{"A", "B", "C"},
		[][2]string{{"A", "B"}, {"B", "C"}},
	)

	ranked, err := engine.Centrality(ctx, "ds", CentralityCloseness, 3)
	if err != nil {
		t.Fatalf("Centrality: %v", err)
	}
	// A reaches B (1) and C (2): closeness 2/3. B reaches C only: 1.
	if ranked[0].Node.ID != nodes["B"].ID || ranked[0].Score != 1 {
		t.Errorf("top = %+v, want B with closeness 1", ranked[0])
	}
}
