// Package graphquery provides read-only analytics over the persisted
// property graph: shortest paths, neighborhood expansion, connected
// components, centrality and density. No operation mutates the graph,
// so everything here is safe to run concurrently with extraction.
package graphquery

import (
	"context"
	"fmt"
	"sort"

	"github.com/signalhouse/magpie/pkg/common"
	"github.com/signalhouse/magpie/pkg/store"
)

// Engine is the graph query engine.
//
// An Engine should be created using NewEngine.
type Engine struct {
	graph store.GraphStore
}

// NewEngineParams defines the configuration parameters for creating a
// new query Engine.
type NewEngineParams struct {
	Graph store.GraphStore
}

// NewEngine creates and returns a new Engine configured with the
// provided parameters.
func NewEngine(params NewEngineParams) (*Engine, error) {
	if params.Graph == nil {
		return nil, fmt.Errorf("graphquery: graph store is required")
	}
	return &Engine{graph: params.Graph}, nil
}

// view is one dataset's graph loaded into adjacency form. Queries walk
// this snapshot, so results are eventually consistent with concurrent
// writes.
type view struct {
	nodes map[string]common.GraphNode
	edges []common.GraphEdge

	// out holds directed adjacency, undirected the symmetric closure.
	out        map[string][]common.GraphEdge
	undirected map[string][]string
}

func (e *Engine) load(ctx context.Context, datasetID string) (*view, error) {
	nodes, err := e.graph.ListNodes(ctx, store.NodeFilter{DatasetID: datasetID})
	if err != nil {
		return nil, err
	}
	edges, err := e.graph.ListEdges(ctx, store.EdgeFilter{DatasetID: datasetID})
	if err != nil {
		return nil, err
	}

	v := &view{
		nodes:      make(map[string]common.GraphNode, len(nodes)),
		edges:      edges,
		out:        make(map[string][]common.GraphEdge),
		undirected: make(map[string][]string),
	}
	for _, node := range nodes {
		v.nodes[node.ID] = node
	}
	for _, edge := range edges {
		v.out[edge.SourceNodeID] = append(v.out[edge.SourceNodeID], edge)
		v.undirected[edge.SourceNodeID] = append(v.undirected[edge.SourceNodeID], edge.TargetNodeID)
		v.undirected[edge.TargetNodeID] = append(v.undirected[edge.TargetNodeID], edge.SourceNodeID)
	}
	return v, nil
}

// Path is a directed node/edge chain between two nodes. Length counts
// edges, so a path from a node to itself has length 0.
type Path struct {
	Nodes  []common.GraphNode `json:"nodes"`
	Edges  []common.GraphEdge `json:"edges"`
	Length int                `json:"length"`
}

// ShortestPath finds the shortest directed path from source to target
// using breadth-first search bounded by maxDepth. Returns nil when the
// target is unreachable within the bound.
func (e *Engine) ShortestPath(ctx context.Context, datasetID, sourceID, targetID string, maxDepth int) (*Path, error) {
	v, err := e.load(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	source, ok := v.nodes[sourceID]
	if !ok {
		return nil, &common.NotFoundError{Kind: "node", ID: sourceID}
	}
	if _, ok := v.nodes[targetID]; !ok {
		return nil, &common.NotFoundError{Kind: "node", ID: targetID}
	}
	if maxDepth <= 0 {
		maxDepth = 10
	}

	if sourceID == targetID {
		return &Path{Nodes: []common.GraphNode{source}, Length: 0}, nil
	}

	prev := map[string]hop{sourceID: {}}
	depth := map[string]int{sourceID: 0}
	queue := []string{sourceID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if depth[current] >= maxDepth {
			continue
		}

		for _, edge := range v.out[current] {
			next := edge.TargetNodeID
			if _, seen := prev[next]; seen {
				continue
			}
			prev[next] = hop{nodeID: current, edge: edge}
			depth[next] = depth[current] + 1

			if next == targetID {
				return reconstructPath(v, prev, sourceID, targetID), nil
			}
			queue = append(queue, next)
		}
	}

	return nil, nil
}

// hop records how a node was discovered during BFS.
type hop struct {
	nodeID string
	edge   common.GraphEdge
}

func reconstructPath(v *view, prev map[string]hop, sourceID, targetID string) *Path {
	var nodes []common.GraphNode
	var edges []common.GraphEdge

	for current := targetID; ; {
		nodes = append([]common.GraphNode{v.nodes[current]}, nodes...)
		if current == sourceID {
			break
		}
		step := prev[current]
		edges = append([]common.GraphEdge{step.edge}, edges...)
		current = step.nodeID
	}

	return &Path{Nodes: nodes, Edges: edges, Length: len(edges)}
}

// Neighbors expands the undirected neighborhood of a node up to depth
// hops, optionally restricted to a node-type allow-list. The start node
// itself is not included.
func (e *Engine) Neighbors(ctx context.Context, datasetID, nodeID string, depth int, typeFilter []common.NodeType) ([]common.GraphNode, error) {
	v, err := e.load(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if _, ok := v.nodes[nodeID]; !ok {
		return nil, &common.NotFoundError{Kind: "node", ID: nodeID}
	}
	if depth <= 0 {
		depth = 1
	}

	allowed := make(map[common.NodeType]bool, len(typeFilter))
	for _, t := range typeFilter {
		allowed[t] = true
	}

	visited := map[string]bool{nodeID: true}
	frontier := []string{nodeID}
	var result []common.GraphNode

	for range depth {
		var next []string
		for _, current := range frontier {
			for _, neighborID := range v.undirected[current] {
				if visited[neighborID] {
					continue
				}
				visited[neighborID] = true
				next = append(next, neighborID)

				neighbor := v.nodes[neighborID]
				if len(allowed) > 0 && !allowed[neighbor.Type] {
					continue
				}
				result = append(result, neighbor)
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Density returns |E| / (|V|*(|V|-1)/2) for the dataset, 0 for graphs
// with fewer than two nodes.
func (e *Engine) Density(ctx context.Context, datasetID string) (float64, error) {
	v, err := e.load(ctx, datasetID)
	if err != nil {
		return 0, err
	}
	return density(len(v.edges), len(v.nodes)), nil
}

func density(edgeCount, nodeCount int) float64 {
	if nodeCount < 2 {
		return 0
	}
	possible := float64(nodeCount) * float64(nodeCount-1) / 2
	return float64(edgeCount) / possible
}

// AveragePathLength returns the mean BFS distance over all ordered,
// reachable node pairs, 0 when no pair is connected.
func (e *Engine) AveragePathLength(ctx context.Context, datasetID string) (float64, error) {
	v, err := e.load(ctx, datasetID)
	if err != nil {
		return 0, err
	}

	totalDist, pairs := 0, 0
	for id := range v.nodes {
		for _, dist := range bfsDistances(v, id) {
			if dist > 0 {
				totalDist += dist
				pairs++
			}
		}
	}
	if pairs == 0 {
		return 0, nil
	}
	return float64(totalDist) / float64(pairs), nil
}

// bfsDistances walks the directed graph from start and returns the hop
// count to every reachable node, including start at distance 0.
func bfsDistances(v *view, start string) map[string]int {
	dist := map[string]int{start: 0}
	queue := []string{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, edge := range v.out[current] {
			if _, seen := dist[edge.TargetNodeID]; seen {
				continue
			}
			dist[edge.TargetNodeID] = dist[current] + 1
			queue = append(queue, edge.TargetNodeID)
		}
	}
	return dist
}
