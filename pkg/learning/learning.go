// Package learning grows the entity dictionary from extraction output:
// it records usage of known entities, turns recurring unknown labels
// into learned entities, infers aliases from graph data and recomputes
// confidence from usage statistics.
package learning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/signalhouse/magpie/pkg/common"
	"github.com/signalhouse/magpie/pkg/dictionary"
	"github.com/signalhouse/magpie/pkg/logger"
	"github.com/signalhouse/magpie/pkg/similarity"
	"github.com/signalhouse/magpie/pkg/store"
)

const (
	defaultMatchThreshold = 0.8
	defaultLearnThreshold = 0.7
)

// Engine is the entity learning engine.
//
// An Engine should be created using NewEngine.
type Engine struct {
	dict  *dictionary.Service
	graph store.GraphStore

	matchThreshold float64
	learnThreshold float64
}

// NewEngineParams defines the configuration parameters for creating a
// new learning Engine.
//
// MatchThreshold is the similarity above which an extracted label is
// treated as a use of an existing entity. LearnThreshold is the minimum
// extraction confidence for auto-creating a learned entity.
type NewEngineParams struct {
	Dictionary     *dictionary.Service
	Graph          store.GraphStore
	MatchThreshold float64
	LearnThreshold float64
}

// NewEngine creates and returns a new Engine configured with the
// provided parameters.
func NewEngine(params NewEngineParams) (*Engine, error) {
	if params.Dictionary == nil {
		return nil, fmt.Errorf("learning: dictionary service is required")
	}
	if params.Graph == nil {
		return nil, fmt.Errorf("learning: graph store is required")
	}

	matchThreshold := params.MatchThreshold
	if matchThreshold <= 0 {
		matchThreshold = defaultMatchThreshold
	}
	learnThreshold := params.LearnThreshold
	if learnThreshold <= 0 {
		learnThreshold = defaultLearnThreshold
	}

	return &Engine{
		dict:           params.Dictionary,
		graph:          params.Graph,
		matchThreshold: matchThreshold,
		learnThreshold: learnThreshold,
	}, nil
}

// Result summarizes one learning pass.
type Result struct {
	UsageRecorded   int      `json:"usage_recorded"`
	AliasesAdded    int      `json:"aliases_added"`
	EntitiesCreated int      `json:"entities_created"`
	Errors          []string `json:"errors,omitempty"`
}

// LearnFromExtraction reconciles freshly extracted nodes against the
// dictionary. Exact canonical hits record usage; near hits record usage
// and learn the extracted label as an alias; confident misses create a
// new entity with source "learned". Per-node failures are collected,
// never fatal.
func (e *Engine) LearnFromExtraction(ctx context.Context, nodes []common.GraphNode) Result {
	result := Result{}

	for _, node := range nodes {
		label := strings.TrimSpace(node.Label)
		if label == "" {
			continue
		}

		if err := e.learnNode(ctx, node, label, &result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", label, err))
		}
	}

	if result.EntitiesCreated > 0 || result.AliasesAdded > 0 {
		logger.Debug("learning pass finished",
			"usage", result.UsageRecorded,
			"aliases", result.AliasesAdded,
			"created", result.EntitiesCreated,
			"errors", len(result.Errors))
	}

	return result
}

func (e *Engine) learnNode(ctx context.Context, node common.GraphNode, label string, result *Result) error {
	entities, err := e.dict.FindEntities(ctx, store.EntityFilter{EntityType: string(node.Type)})
	if err != nil {
		return err
	}

	// Exact canonical name hit.
	for i := range entities {
		if strings.EqualFold(entities[i].CanonicalName, label) {
			if err := e.dict.UpdateEntityFromUsage(ctx, entities[i].ID, store.UsageEvent{Similarity: 1.0}); err != nil {
				return err
			}
			result.UsageRecorded++
			return nil
		}
	}

	// Near hit: record usage and learn the surface form as an alias.
	bestIdx, bestSim := -1, 0.0
	for i := range entities {
		sim := similarity.Similarity(entities[i].CanonicalName, label)
		if sim >= e.matchThreshold && sim > bestSim {
			bestIdx, bestSim = i, sim
		}
	}
	if bestIdx >= 0 {
		entity := entities[bestIdx]
		if err := e.dict.UpdateEntityFromUsage(ctx, entity.ID, store.UsageEvent{
			Alias:      label,
			Similarity: bestSim,
		}); err != nil {
			return err
		}
		result.UsageRecorded++

		added, err := e.AddAliasIfNotExists(ctx, entity.ID, label, bestSim)
		if err != nil {
			return err
		}
		if added {
			result.AliasesAdded++
		}
		return nil
	}

	// Miss: auto-create when the extraction itself was confident.
	confidence := node.Properties.Confidence(0)
	if confidence < e.learnThreshold {
		return nil
	}

	err = e.dict.AddEntity(ctx, &common.DictionaryEntity{
		EntityType:      string(node.Type),
		CanonicalName:   label,
		ConfidenceScore: confidence,
		Source:          common.EntitySourceLearned,
		Metadata: common.EntityMetadata{
			UsageCount: 1,
		},
	})
	if err != nil {
		if common.IsConflict(err) {
			// Raced with a concurrent learner; treat as a usage hit.
			return nil
		}
		return err
	}
	result.EntitiesCreated++
	return nil
}

// AddAliasIfNotExists attaches alias to the entity unless it already
// exists (case-insensitive) or equals the canonical name. Reports
// whether a new alias row was created.
func (e *Engine) AddAliasIfNotExists(ctx context.Context, entityID, alias string, sim float64) (bool, error) {
	entity, err := e.dict.GetEntity(ctx, entityID)
	if err != nil {
		return false, err
	}

	if strings.EqualFold(entity.CanonicalName, alias) {
		return false, nil
	}
	for _, existing := range entity.Aliases {
		if strings.EqualFold(existing.Alias, alias) {
			return false, nil
		}
	}

	now := time.Now()
	err = e.dict.AddAlias(ctx, &common.EntityAlias{
		EntityID:        entityID,
		Alias:           alias,
		Type:            "learned",
		SimilarityScore: sim,
		MatchCount:      1,
		LastMatchedAt:   &now,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpdateEntityConfidence recomputes an entity's confidence from its
// source and accumulated usage: a per-source base plus 0.01 per usage,
// saturating at 1.0. The score never decreases.
func (e *Engine) UpdateEntityConfidence(ctx context.Context, entityID string) error {
	entity, err := e.dict.GetEntity(ctx, entityID)
	if err != nil {
		return err
	}

	recomputed := min(1.0, sourceBaseConfidence(entity.Source)+float64(entity.Metadata.UsageCount)*0.01)
	if recomputed <= entity.ConfidenceScore {
		return nil
	}

	entity.ConfidenceScore = recomputed
	return e.dict.UpdateEntity(ctx, entity)
}

func sourceBaseConfidence(source common.EntitySource) float64 {
	switch source {
	case common.EntitySourceManual:
		return 0.9
	case common.EntitySourceImported:
		return 0.8
	case common.EntitySourceAutoDiscovered:
		return 0.6
	case common.EntitySourceLearned:
		return 0.5
	default:
		return 0.5
	}
}

// DiscoverEntityAliases scans a dataset's graph for node labels that are
// near-matches of known canonical names and records them as aliases.
// Returns the number of aliases added.
func (e *Engine) DiscoverEntityAliases(ctx context.Context, datasetID string) (int, error) {
	entities, err := e.dict.FindEntities(ctx, store.EntityFilter{})
	if err != nil {
		return 0, err
	}
	nodes, err := e.graph.ListNodes(ctx, store.NodeFilter{DatasetID: datasetID})
	if err != nil {
		return 0, err
	}

	added := 0
	for i := range entities {
		entity := entities[i]
		for _, node := range nodes {
			if !strings.EqualFold(string(node.Type), entity.EntityType) {
				continue
			}
			if strings.EqualFold(node.Label, entity.CanonicalName) {
				continue
			}
			sim := similarity.Similarity(node.Label, entity.CanonicalName)
			if sim < e.matchThreshold {
				continue
			}
			ok, err := e.AddAliasIfNotExists(ctx, entity.ID, node.Label, sim)
			if err != nil {
				logger.Warn("alias discovery failed", "entity", entity.CanonicalName, "alias", node.Label, "error", err)
				continue
			}
			if ok {
				added++
			}
		}
	}
	return added, nil
}
