// Package normalize finds and merges duplicate graph nodes. Merging is
// the single mutating primitive and is applied atomically through the
// store; every merge is recorded in the normalization audit log.
package normalize

import (
	"context"
	"fmt"
	"time"

	"github.com/signalhouse/magpie/pkg/common"
	"github.com/signalhouse/magpie/pkg/leaselock"
	"github.com/signalhouse/magpie/pkg/logger"
	"github.com/signalhouse/magpie/pkg/similarity"
	"github.com/signalhouse/magpie/pkg/store"
)

const defaultThreshold = 0.85

// Locker serializes merges touching the same target node across
// processes. *leaselock.Client satisfies it; a nil Locker runs merges
// unguarded, which is safe for single-process use and tests.
type Locker interface {
	WithLease(ctx context.Context, key string, opts leaselock.Options, fn func(ctx context.Context) error) error
}

// Engine is the entity normalization engine.
//
// An Engine should be created using NewEngine.
type Engine struct {
	graph     store.GraphStore
	locks     Locker
	threshold float64
}

// NewEngineParams defines the configuration parameters for creating a
// new Engine.
type NewEngineParams struct {
	Graph store.GraphStore
	Locks Locker

	// DefaultThreshold is the similarity cutoff used when an operation
	// is called with a threshold of 0.
	DefaultThreshold float64
}

// NewEngine creates and returns a new Engine configured with the
// provided parameters.
func NewEngine(params NewEngineParams) (*Engine, error) {
	if params.Graph == nil {
		return nil, fmt.Errorf("normalize: graph store is required")
	}
	threshold := params.DefaultThreshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	return &Engine{
		graph:     params.Graph,
		locks:     params.Locks,
		threshold: threshold,
	}, nil
}

// FindSimilarNodes returns nodes of the same dataset and type whose
// label similarity to node is at or above threshold, excluding the node
// itself.
func (e *Engine) FindSimilarNodes(ctx context.Context, node *common.GraphNode, threshold float64) ([]common.GraphNode, error) {
	if threshold <= 0 {
		threshold = e.threshold
	}

	candidates, err := e.graph.ListNodes(ctx, store.NodeFilter{
		DatasetID: node.DatasetID,
		NodeType:  node.Type,
	})
	if err != nil {
		return nil, err
	}

	var similar []common.GraphNode
	for _, candidate := range candidates {
		if candidate.ID == node.ID {
			continue
		}
		if similarity.Similarity(candidate.Label, node.Label) >= threshold {
			similar = append(similar, candidate)
		}
	}
	return similar, nil
}

// DuplicateGroup is one set of nodes considered duplicates of each
// other. Nodes keeps the seed node first.
type DuplicateGroup struct {
	NodeType common.NodeType    `json:"node_type"`
	Nodes    []common.GraphNode `json:"nodes"`
}

// FindDuplicates scans the dataset's nodes ordered by label and greedily
// groups every node within threshold similarity of an unprocessed seed.
// Only groups of size >= 2 are returned. When nodeType is empty every
// node type present in the dataset is scanned separately, which bounds
// the O(n^2) comparisons per type.
func (e *Engine) FindDuplicates(ctx context.Context, datasetID string, nodeType common.NodeType, threshold float64) ([]DuplicateGroup, error) {
	if threshold <= 0 {
		threshold = e.threshold
	}

	nodes, err := e.graph.ListNodes(ctx, store.NodeFilter{
		DatasetID: datasetID,
		NodeType:  nodeType,
	})
	if err != nil {
		return nil, err
	}

	byType := make(map[common.NodeType][]common.GraphNode)
	for _, node := range nodes {
		byType[node.Type] = append(byType[node.Type], node)
	}

	var groups []DuplicateGroup
	for typ, typed := range byType {
		processed := make(map[string]bool, len(typed))

		// ListNodes returns label order, so seeds walk alphabetically.
		for i, seed := range typed {
			if processed[seed.ID] {
				continue
			}
			processed[seed.ID] = true

			group := []common.GraphNode{seed}
			for _, candidate := range typed[i+1:] {
				if processed[candidate.ID] {
					continue
				}
				if similarity.Similarity(seed.Label, candidate.Label) >= threshold {
					processed[candidate.ID] = true
					group = append(group, candidate)
				}
			}

			if len(group) >= 2 {
				groups = append(groups, DuplicateGroup{NodeType: typ, Nodes: group})
			}
		}
	}

	return groups, nil
}

// MergeNodes merges the source nodes into the target: every edge
// touching a source is rewritten to the target, properties are unioned
// into the target (later sources win on collision), the sources are
// deleted and one audit entry is appended per merged node. The whole
// merge is atomic; concurrent merges on the same target are serialized
// through the lock service when one is configured.
func (e *Engine) MergeNodes(ctx context.Context, sourceIDs []string, targetID string, method common.NormalizationMethod, confidence float64) error {
	if len(sourceIDs) == 0 {
		return nil
	}
	if method == "" {
		method = common.NormalizationManual
	}

	merge := func(ctx context.Context) error {
		target, err := e.graph.GetNode(ctx, targetID)
		if err != nil {
			return err
		}

		props := target.Properties.Clone()
		entries := make([]common.NormalizationLogEntry, 0, len(sourceIDs))
		ids := make([]string, 0, len(sourceIDs))
		for _, id := range sourceIDs {
			if id == targetID {
				continue
			}
			source, err := e.graph.GetNode(ctx, id)
			if err != nil {
				return err
			}
			props = props.Merge(source.Properties)
			ids = append(ids, id)
			entries = append(entries, common.NormalizationLogEntry{
				DatasetID:      target.DatasetID,
				OriginalEntity: source.Label,
				NormalizedTo:   target.Label,
				Method:         method,
				Confidence:     confidence,
				Timestamp:      time.Now(),
			})
		}
		if len(ids) == 0 {
			return nil
		}

		return e.graph.ApplyMerge(ctx, store.MergePlan{
			DatasetID:        target.DatasetID,
			TargetID:         targetID,
			SourceIDs:        ids,
			TargetProperties: props,
			LogEntries:       entries,
		})
	}

	if e.locks == nil {
		return merge(ctx)
	}
	return e.locks.WithLease(ctx, "merge:"+targetID, leaselock.Options{
		TTL:  time.Minute,
		Wait: true,
	}, merge)
}

// Result accumulates the outcome of a multi-group normalization run.
// A failed group is recorded in Errors and does not stop the others.
type Result struct {
	GroupsFound int      `json:"groups_found"`
	GroupsDone  int      `json:"groups_done"`
	NodesMerged int      `json:"nodes_merged"`
	Errors      []string `json:"errors,omitempty"`
}

// Options tunes a normalization run.
type Options struct {
	Threshold float64
	NodeType  common.NodeType
}

// NormalizeNodesByKey merges, for each user-pinned key node, all
// similar nodes of the same type into a canonical representative. A key
// node in the similar set wins representative selection; otherwise the
// node with the highest confidence property does.
func (e *Engine) NormalizeNodesByKey(ctx context.Context, keyNodeIDs []string, opts Options) (Result, error) {
	result := Result{}

	keySet := make(map[string]bool, len(keyNodeIDs))
	for _, id := range keyNodeIDs {
		keySet[id] = true
	}

	merged := make(map[string]bool)
	for _, keyID := range keyNodeIDs {
		if merged[keyID] {
			continue
		}

		node, err := e.graph.GetNode(ctx, keyID)
		if err != nil {
			result.Errors = append(result.Errors, (&common.MergeFailure{TargetID: keyID, Err: err}).Error())
			continue
		}

		similar, err := e.FindSimilarNodes(ctx, node, opts.Threshold)
		if err != nil {
			result.Errors = append(result.Errors, (&common.MergeFailure{TargetID: keyID, Err: err}).Error())
			continue
		}
		if len(similar) == 0 {
			continue
		}

		group := append([]common.GraphNode{*node}, similar...)
		result.GroupsFound++

		target := pickRepresentative(group, keySet)
		sourceIDs := make([]string, 0, len(group)-1)
		for _, member := range group {
			if member.ID != target.ID {
				sourceIDs = append(sourceIDs, member.ID)
			}
		}

		if err := e.MergeNodes(ctx, sourceIDs, target.ID, common.NormalizationManual, 1.0); err != nil {
			result.Errors = append(result.Errors, (&common.MergeFailure{TargetID: target.ID, Err: err}).Error())
			continue
		}

		result.GroupsDone++
		result.NodesMerged += len(sourceIDs)
		for _, id := range sourceIDs {
			merged[id] = true
		}
	}

	return result, nil
}

// NormalizeAfterExtraction runs duplicate detection over the node types
// a document touched and merges every group found. Called as non-fatal
// post-processing after extraction.
func (e *Engine) NormalizeAfterExtraction(ctx context.Context, datasetID, documentID string) (Result, error) {
	result := Result{}

	docNodes, err := e.graph.ListNodes(ctx, store.NodeFilter{
		DatasetID:  datasetID,
		DocumentID: documentID,
	})
	if err != nil {
		return result, err
	}
	if len(docNodes) == 0 {
		return result, nil
	}

	types := make(map[common.NodeType]bool)
	for _, node := range docNodes {
		types[node.Type] = true
	}

	for typ := range types {
		groups, err := e.FindDuplicates(ctx, datasetID, typ, 0)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}

		for _, group := range groups {
			result.GroupsFound++

			target := pickRepresentative(group.Nodes, nil)
			sourceIDs := make([]string, 0, len(group.Nodes)-1)
			for _, member := range group.Nodes {
				if member.ID != target.ID {
					sourceIDs = append(sourceIDs, member.ID)
				}
			}

			if err := e.MergeNodes(ctx, sourceIDs, target.ID, common.NormalizationFuzzyMatch, 0.9); err != nil {
				result.Errors = append(result.Errors, (&common.MergeFailure{TargetID: target.ID, Err: err}).Error())
				continue
			}
			result.GroupsDone++
			result.NodesMerged += len(sourceIDs)
		}
	}

	logger.Debug("post-extraction normalization finished",
		"dataset", datasetID,
		"document", documentID,
		"groups", result.GroupsDone,
		"merged", result.NodesMerged,
		"errors", len(result.Errors))

	return result, nil
}

// pickRepresentative prefers a key node, then the highest confidence
// property, then the oldest node for a stable outcome.
func pickRepresentative(group []common.GraphNode, keySet map[string]bool) common.GraphNode {
	best := group[0]
	for _, node := range group[1:] {
		if betterRepresentative(node, best, keySet) {
			best = node
		}
	}
	return best
}

func betterRepresentative(a, b common.GraphNode, keySet map[string]bool) bool {
	aKey, bKey := keySet[a.ID], keySet[b.ID]
	if aKey != bKey {
		return aKey
	}
	aConf := a.Properties.Confidence(0)
	bConf := b.Properties.Confidence(0)
	if aConf != bConf {
		return aConf > bConf
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
