// Package store defines the persistence contracts for the knowledge
// graph, the entity dictionary and segment status tracking. The graph
// and dictionary stores are abstract: the extraction, normalization and
// query engines never touch SQL directly.
package store

import (
	"context"
	"time"

	"github.com/signalhouse/magpie/pkg/common"
)

// NodeFilter narrows graph node queries. Zero values mean "no filter"
// for every field except DatasetID, which is always required.
type NodeFilter struct {
	DatasetID  string
	DocumentID string
	SegmentID  string
	NodeType   common.NodeType
	Label      string
}

// EdgeFilter narrows graph edge queries.
type EdgeFilter struct {
	DatasetID    string
	SourceNodeID string
	TargetNodeID string
	EdgeType     common.EdgeType
}

// MergePlan describes one atomic node merge: every edge endpoint in
// SourceIDs is rewritten to TargetID, the target receives the merged
// property bag, the sources are deleted and one log entry is appended
// per merged node. The store MUST apply the whole plan in a single
// transaction.
type MergePlan struct {
	DatasetID        string
	TargetID         string
	SourceIDs        []string
	TargetProperties common.Properties
	LogEntries       []common.NormalizationLogEntry
}

// GraphCounts is a node/edge type histogram for a dataset.
type GraphCounts struct {
	Nodes       int                     `json:"nodes"`
	Edges       int                     `json:"edges"`
	NodesByType map[common.NodeType]int `json:"nodes_by_type"`
	EdgesByType map[common.EdgeType]int `json:"edges_by_type"`
}

// GraphStore persists nodes and edges. Deleting a node cascades its
// edges; an edge never outlives either endpoint.
type GraphStore interface {
	CreateNode(ctx context.Context, node *common.GraphNode) error
	UpdateNode(ctx context.Context, node *common.GraphNode) error
	GetNode(ctx context.Context, id string) (*common.GraphNode, error)
	DeleteNode(ctx context.Context, id string) error
	ListNodes(ctx context.Context, filter NodeFilter) ([]common.GraphNode, error)

	CreateEdge(ctx context.Context, edge *common.GraphEdge) error
	UpdateEdge(ctx context.Context, edge *common.GraphEdge) error
	DeleteEdge(ctx context.Context, id string) error
	ListEdges(ctx context.Context, filter EdgeFilter) ([]common.GraphEdge, error)

	// FindEdge resolves the (source, target, type) uniqueness key.
	FindEdge(ctx context.Context, datasetID, sourceID, targetID string, edgeType common.EdgeType) (*common.GraphEdge, error)

	// ApplyMerge executes a merge plan atomically.
	ApplyMerge(ctx context.Context, plan MergePlan) error

	// ListNormalizationLog returns the append-only merge audit trail for
	// a dataset, newest first.
	ListNormalizationLog(ctx context.Context, datasetID string, limit int) ([]common.NormalizationLogEntry, error)

	Counts(ctx context.Context, datasetID string) (GraphCounts, error)
}

// EntityFilter narrows dictionary queries.
type EntityFilter struct {
	EntityType    string
	Source        common.EntitySource
	CanonicalName string
	MinConfidence float64
}

// UsageEvent reports one observed use of a dictionary entity during
// extraction. Alias is the matched alias text, empty when the canonical
// name itself matched.
type UsageEvent struct {
	Alias      string
	MatchedAt  time.Time
	Similarity float64
}

// DictionaryStats summarizes the dictionary for reporting.
type DictionaryStats struct {
	TotalEntities     int                         `json:"total_entities"`
	TotalAliases      int                         `json:"total_aliases"`
	EntitiesByType    map[string]int              `json:"entities_by_type"`
	EntitiesBySource  map[common.EntitySource]int `json:"entities_by_source"`
	AverageConfidence float64                     `json:"average_confidence"`
}

// DictionaryStore persists dictionary entities with their aliases.
// CreateEntity persists the entity and its aliases atomically and must
// fail with a common.ConflictError on a duplicate global entity id or
// a duplicate (entityType, canonicalName) pair.
type DictionaryStore interface {
	CreateEntity(ctx context.Context, entity *common.DictionaryEntity) error
	UpdateEntity(ctx context.Context, entity *common.DictionaryEntity) error
	GetEntity(ctx context.Context, id string) (*common.DictionaryEntity, error)
	DeleteEntity(ctx context.Context, id string) error

	// ListEntities returns entities with aliases attached.
	ListEntities(ctx context.Context, filter EntityFilter) ([]common.DictionaryEntity, error)

	UpsertAlias(ctx context.Context, alias *common.EntityAlias) error
	DeleteAlias(ctx context.Context, id string) error

	Stats(ctx context.Context) (DictionaryStats, error)
}

// SegmentStore is the document-store collaborator that owns segment
// content and the per-segment status field used as the extraction
// idempotency marker.
type SegmentStore interface {
	GetSegment(ctx context.Context, id string) (*common.Segment, error)
	ListPendingSegments(ctx context.Context, documentID string) ([]common.Segment, error)
	SetStatus(ctx context.Context, segmentID string, status common.SegmentStatus) error
}
