// Package memory provides an in-memory implementation of the store
// interfaces. It backs unit tests and the single-process dev mode; the
// postgres implementation in pkg/store/pgx is used in production.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/signalhouse/magpie/pkg/common"
	"github.com/signalhouse/magpie/pkg/store"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Store holds graph, dictionary and segment state behind one mutex.
// Merge plans apply atomically under the lock, matching the
// transactional guarantee of the postgres store.
type Store struct {
	mu sync.Mutex

	nodes    map[string]*common.GraphNode
	edges    map[string]*common.GraphEdge
	mergeLog []common.NormalizationLogEntry

	entities map[string]*common.DictionaryEntity
	aliases  map[string]*common.EntityAlias

	segments map[string]*common.Segment
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		nodes:    make(map[string]*common.GraphNode),
		edges:    make(map[string]*common.GraphEdge),
		entities: make(map[string]*common.DictionaryEntity),
		aliases:  make(map[string]*common.EntityAlias),
		segments: make(map[string]*common.Segment),
	}
}

var (
	_ store.GraphStore      = (*Store)(nil)
	_ store.DictionaryStore = (*Store)(nil)
	_ store.SegmentStore    = (*Store)(nil)
)

func newID() string {
	id, err := gonanoid.New()
	if err != nil {
		// gonanoid only fails when the OS entropy source is broken.
		panic(err)
	}
	return id
}

// --- GraphStore ---

func (s *Store) CreateNode(ctx context.Context, node *common.GraphNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if node.ID == "" {
		node.ID = newID()
	}
	now := time.Now()
	node.CreatedAt = now
	node.UpdatedAt = now

	cp := *node
	s.nodes[node.ID] = &cp
	return nil
}

func (s *Store) UpdateNode(ctx context.Context, node *common.GraphNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.nodes[node.ID]
	if !ok {
		return &common.NotFoundError{Kind: "node", ID: node.ID}
	}
	node.CreatedAt = existing.CreatedAt
	node.UpdatedAt = time.Now()

	cp := *node
	s.nodes[node.ID] = &cp
	return nil
}

func (s *Store) GetNode(ctx context.Context, id string) (*common.GraphNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[id]
	if !ok {
		return nil, &common.NotFoundError{Kind: "node", ID: id}
	}
	cp := *node
	return &cp, nil
}

func (s *Store) DeleteNode(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[id]; !ok {
		return &common.NotFoundError{Kind: "node", ID: id}
	}
	delete(s.nodes, id)
	s.deleteEdgesTouchingLocked(id)
	return nil
}

func (s *Store) deleteEdgesTouchingLocked(nodeID string) {
	for id, edge := range s.edges {
		if edge.SourceNodeID == nodeID || edge.TargetNodeID == nodeID {
			delete(s.edges, id)
		}
	}
}

func (s *Store) ListNodes(ctx context.Context, filter store.NodeFilter) ([]common.GraphNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []common.GraphNode
	for _, node := range s.nodes {
		if filter.DatasetID != "" && node.DatasetID != filter.DatasetID {
			continue
		}
		if filter.DocumentID != "" && node.DocumentID != filter.DocumentID {
			continue
		}
		if filter.SegmentID != "" && node.SegmentID != filter.SegmentID {
			continue
		}
		if filter.NodeType != "" && node.Type != filter.NodeType {
			continue
		}
		if filter.Label != "" && node.Label != filter.Label {
			continue
		}
		out = append(out, *node)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Label != out[j].Label {
			return out[i].Label < out[j].Label
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CreateEdge(ctx context.Context, edge *common.GraphEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[edge.SourceNodeID]; !ok {
		return &common.NotFoundError{Kind: "node", ID: edge.SourceNodeID}
	}
	if _, ok := s.nodes[edge.TargetNodeID]; !ok {
		return &common.NotFoundError{Kind: "node", ID: edge.TargetNodeID}
	}

	if edge.ID == "" {
		edge.ID = newID()
	}
	now := time.Now()
	edge.CreatedAt = now
	edge.UpdatedAt = now

	cp := *edge
	s.edges[edge.ID] = &cp
	return nil
}

func (s *Store) UpdateEdge(ctx context.Context, edge *common.GraphEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.edges[edge.ID]
	if !ok {
		return &common.NotFoundError{Kind: "edge", ID: edge.ID}
	}
	edge.CreatedAt = existing.CreatedAt
	edge.UpdatedAt = time.Now()

	cp := *edge
	s.edges[edge.ID] = &cp
	return nil
}

func (s *Store) DeleteEdge(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.edges[id]; !ok {
		return &common.NotFoundError{Kind: "edge", ID: id}
	}
	delete(s.edges, id)
	return nil
}

func (s *Store) ListEdges(ctx context.Context, filter store.EdgeFilter) ([]common.GraphEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []common.GraphEdge
	for _, edge := range s.edges {
		if filter.DatasetID != "" && edge.DatasetID != filter.DatasetID {
			continue
		}
		if filter.SourceNodeID != "" && edge.SourceNodeID != filter.SourceNodeID {
			continue
		}
		if filter.TargetNodeID != "" && edge.TargetNodeID != filter.TargetNodeID {
			continue
		}
		if filter.EdgeType != "" && edge.Type != filter.EdgeType {
			continue
		}
		out = append(out, *edge)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) FindEdge(ctx context.Context, datasetID, sourceID, targetID string, edgeType common.EdgeType) (*common.GraphEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, edge := range s.edges {
		if edge.DatasetID == datasetID &&
			edge.SourceNodeID == sourceID &&
			edge.TargetNodeID == targetID &&
			edge.Type == edgeType {
			cp := *edge
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) ApplyMerge(ctx context.Context, plan store.MergePlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.nodes[plan.TargetID]
	if !ok {
		return &common.NotFoundError{Kind: "node", ID: plan.TargetID}
	}

	sourceSet := make(map[string]bool, len(plan.SourceIDs))
	for _, id := range plan.SourceIDs {
		if id == plan.TargetID {
			continue
		}
		if _, ok := s.nodes[id]; !ok {
			return &common.NotFoundError{Kind: "node", ID: id}
		}
		sourceSet[id] = true
	}

	for _, edge := range s.edges {
		if sourceSet[edge.SourceNodeID] {
			edge.SourceNodeID = plan.TargetID
			edge.UpdatedAt = time.Now()
		}
		if sourceSet[edge.TargetNodeID] {
			edge.TargetNodeID = plan.TargetID
			edge.UpdatedAt = time.Now()
		}
	}

	// Rewriting may have produced self-loops; drop them.
	for id, edge := range s.edges {
		if edge.SourceNodeID == edge.TargetNodeID {
			delete(s.edges, id)
		}
	}

	if plan.TargetProperties != nil {
		target.Properties = plan.TargetProperties.Clone()
	}
	target.UpdatedAt = time.Now()

	for id := range sourceSet {
		delete(s.nodes, id)
	}

	for _, entry := range plan.LogEntries {
		if entry.ID == "" {
			entry.ID = newID()
		}
		if entry.Timestamp.IsZero() {
			entry.Timestamp = time.Now()
		}
		s.mergeLog = append(s.mergeLog, entry)
	}

	return nil
}

func (s *Store) ListNormalizationLog(ctx context.Context, datasetID string, limit int) ([]common.NormalizationLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []common.NormalizationLogEntry
	for i := len(s.mergeLog) - 1; i >= 0; i-- {
		if datasetID != "" && s.mergeLog[i].DatasetID != datasetID {
			continue
		}
		out = append(out, s.mergeLog[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) Counts(ctx context.Context, datasetID string) (store.GraphCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := store.GraphCounts{
		NodesByType: make(map[common.NodeType]int),
		EdgesByType: make(map[common.EdgeType]int),
	}
	for _, node := range s.nodes {
		if node.DatasetID != datasetID {
			continue
		}
		counts.Nodes++
		counts.NodesByType[node.Type]++
	}
	for _, edge := range s.edges {
		if edge.DatasetID != datasetID {
			continue
		}
		counts.Edges++
		counts.EdgesByType[edge.Type]++
	}
	return counts, nil
}

// --- DictionaryStore ---

func nameKey(entityType, canonicalName string) string {
	return strings.ToLower(strings.TrimSpace(entityType)) + "|" + strings.ToLower(strings.TrimSpace(canonicalName))
}

func (s *Store) CreateEntity(ctx context.Context, entity *common.DictionaryEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.entities {
		if entity.EntityID != "" && existing.EntityID == entity.EntityID {
			return &common.ConflictError{Field: "entity_id", Value: entity.EntityID}
		}
		if nameKey(existing.EntityType, existing.CanonicalName) == nameKey(entity.EntityType, entity.CanonicalName) {
			return &common.ConflictError{Field: "canonical_name", Value: entity.CanonicalName}
		}
	}

	if entity.ID == "" {
		entity.ID = newID()
	}
	now := time.Now()
	entity.CreatedAt = now
	entity.UpdatedAt = now

	// Aliases are persisted atomically with the entity.
	for i := range entity.Aliases {
		if entity.Aliases[i].ID == "" {
			entity.Aliases[i].ID = newID()
		}
		entity.Aliases[i].EntityID = entity.ID
		cp := entity.Aliases[i]
		s.aliases[cp.ID] = &cp
	}

	cp := *entity
	cp.Aliases = nil
	s.entities[entity.ID] = &cp
	return nil
}

func (s *Store) UpdateEntity(ctx context.Context, entity *common.DictionaryEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entities[entity.ID]
	if !ok {
		return &common.NotFoundError{Kind: "dictionary entity", ID: entity.ID}
	}
	entity.CreatedAt = existing.CreatedAt
	entity.UpdatedAt = time.Now()

	cp := *entity
	cp.Aliases = nil
	s.entities[entity.ID] = &cp
	return nil
}

func (s *Store) GetEntity(ctx context.Context, id string) (*common.DictionaryEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entity, ok := s.entities[id]
	if !ok {
		return nil, &common.NotFoundError{Kind: "dictionary entity", ID: id}
	}
	cp := *entity
	cp.Aliases = s.aliasesForLocked(id)
	return &cp, nil
}

func (s *Store) DeleteEntity(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[id]; !ok {
		return &common.NotFoundError{Kind: "dictionary entity", ID: id}
	}
	delete(s.entities, id)
	for aliasID, alias := range s.aliases {
		if alias.EntityID == id {
			delete(s.aliases, aliasID)
		}
	}
	return nil
}

func (s *Store) aliasesForLocked(entityID string) []common.EntityAlias {
	var out []common.EntityAlias
	for _, alias := range s.aliases {
		if alias.EntityID == entityID {
			out = append(out, *alias)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}

func (s *Store) ListEntities(ctx context.Context, filter store.EntityFilter) ([]common.DictionaryEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []common.DictionaryEntity
	for _, entity := range s.entities {
		if filter.EntityType != "" && !strings.EqualFold(entity.EntityType, filter.EntityType) {
			continue
		}
		if filter.Source != "" && entity.Source != filter.Source {
			continue
		}
		if filter.CanonicalName != "" && !strings.EqualFold(entity.CanonicalName, filter.CanonicalName) {
			continue
		}
		if filter.MinConfidence > 0 && entity.ConfidenceScore < filter.MinConfidence {
			continue
		}
		cp := *entity
		cp.Aliases = s.aliasesForLocked(entity.ID)
		out = append(out, cp)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CanonicalName < out[j].CanonicalName })
	return out, nil
}

func (s *Store) UpsertAlias(ctx context.Context, alias *common.EntityAlias) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[alias.EntityID]; !ok {
		return &common.NotFoundError{Kind: "dictionary entity", ID: alias.EntityID}
	}

	// Alias text is unique per entity: a duplicate updates telemetry.
	for _, existing := range s.aliases {
		if existing.EntityID == alias.EntityID && strings.EqualFold(existing.Alias, alias.Alias) {
			existing.MatchCount += alias.MatchCount
			if alias.LastMatchedAt != nil {
				existing.LastMatchedAt = alias.LastMatchedAt
			}
			if alias.SimilarityScore > 0 {
				existing.SimilarityScore = alias.SimilarityScore
			}
			alias.ID = existing.ID
			return nil
		}
	}

	if alias.ID == "" {
		alias.ID = newID()
	}
	cp := *alias
	s.aliases[alias.ID] = &cp
	return nil
}

func (s *Store) DeleteAlias(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.aliases[id]; !ok {
		return &common.NotFoundError{Kind: "alias", ID: id}
	}
	delete(s.aliases, id)
	return nil
}

func (s *Store) Stats(ctx context.Context) (store.DictionaryStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := store.DictionaryStats{
		EntitiesByType:   make(map[string]int),
		EntitiesBySource: make(map[common.EntitySource]int),
	}
	var confidenceSum float64
	for _, entity := range s.entities {
		stats.TotalEntities++
		stats.EntitiesByType[entity.EntityType]++
		stats.EntitiesBySource[entity.Source]++
		confidenceSum += entity.ConfidenceScore
	}
	stats.TotalAliases = len(s.aliases)
	if stats.TotalEntities > 0 {
		stats.AverageConfidence = confidenceSum / float64(stats.TotalEntities)
	}
	return stats, nil
}

// --- SegmentStore ---

// PutSegment seeds a segment, used by tests and the dev ingest path.
func (s *Store) PutSegment(segment *common.Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if segment.ID == "" {
		segment.ID = newID()
	}
	if segment.Status == "" {
		segment.Status = common.SegmentPending
	}
	cp := *segment
	s.segments[segment.ID] = &cp
}

func (s *Store) GetSegment(ctx context.Context, id string) (*common.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	segment, ok := s.segments[id]
	if !ok {
		return nil, &common.NotFoundError{Kind: "segment", ID: id}
	}
	cp := *segment
	return &cp, nil
}

func (s *Store) ListPendingSegments(ctx context.Context, documentID string) ([]common.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []common.Segment
	for _, segment := range s.segments {
		if segment.DocumentID != documentID {
			continue
		}
		if segment.Status != common.SegmentPending {
			continue
		}
		out = append(out, *segment)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SetStatus(ctx context.Context, segmentID string, status common.SegmentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	segment, ok := s.segments[segmentID]
	if !ok {
		return &common.NotFoundError{Kind: "segment", ID: segmentID}
	}
	segment.Status = status
	return nil
}
