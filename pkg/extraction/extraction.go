// Package extraction runs the LLM extraction pipeline: it turns pending
// document segments into graph nodes and edges, reconciling extracted
// labels against the entity dictionary and handing the persisted result
// to the normalization and learning engines. Segment status doubles as
// the idempotency marker, so a crashed worker can re-run a document
// without duplicating work.
package extraction

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/signalhouse/magpie/internal/util"
	"github.com/signalhouse/magpie/pkg/ai"
	"github.com/signalhouse/magpie/pkg/common"
	"github.com/signalhouse/magpie/pkg/dictionary"
	"github.com/signalhouse/magpie/pkg/learning"
	"github.com/signalhouse/magpie/pkg/logger"
	"github.com/signalhouse/magpie/pkg/normalize"
	"github.com/signalhouse/magpie/pkg/store"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxRetries = 3
	defaultParallel   = 4

	// Dictionary similarity above which an extracted label is linked to
	// an existing entity via the graphEntityId property.
	entityLinkThreshold = 0.9
)

// Config selects the provider, model and prompt for one extraction run.
// A call-site Config overrides the orchestrator defaults field by
// field; the defaults play the role of per-dataset settings.
type Config struct {
	Provider       string  `json:"provider,omitempty"`
	Model          string  `json:"model,omitempty"`
	PromptID       string  `json:"prompt_id,omitempty"`
	ContentType    string  `json:"content_type,omitempty"`
	HybridEnabled  bool    `json:"hybrid_enabled,omitempty"`
	MatchThreshold float64 `json:"match_threshold,omitempty"`
}

func (c Config) merge(override *Config) Config {
	if override == nil {
		return c
	}
	out := c
	if override.Provider != "" {
		out.Provider = override.Provider
	}
	if override.Model != "" {
		out.Model = override.Model
	}
	if override.PromptID != "" {
		out.PromptID = override.PromptID
	}
	if override.ContentType != "" {
		out.ContentType = override.ContentType
	}
	if override.HybridEnabled {
		out.HybridEnabled = true
	}
	if override.MatchThreshold > 0 {
		out.MatchThreshold = override.MatchThreshold
	}
	return out
}

// Orchestrator drives per-segment extraction and the document-level
// batch fan-out.
//
// An Orchestrator should be created using NewOrchestrator.
type Orchestrator struct {
	graph      store.GraphStore
	segments   store.SegmentStore
	dict       *dictionary.Service
	pre        *Preprocessor
	normalizer *normalize.Engine
	learner    *learning.Engine
	providers  map[string]ai.Completer
	defaults   Config
	progress   ProgressSink
	maxRetries int
	parallel   int
}

// NewOrchestratorParams defines the configuration parameters for
// creating a new Orchestrator. Dictionary, Normalizer, Learner and
// Progress are optional; leaving one nil disables the corresponding
// pipeline step.
type NewOrchestratorParams struct {
	Graph      store.GraphStore
	Segments   store.SegmentStore
	Dictionary *dictionary.Service
	Normalizer *normalize.Engine
	Learner    *learning.Engine
	Providers  map[string]ai.Completer
	Defaults   Config
	Progress   ProgressSink
	MaxRetries int
	Parallel   int
}

// NewOrchestrator creates and returns a new Orchestrator configured
// with the provided parameters.
func NewOrchestrator(params NewOrchestratorParams) (*Orchestrator, error) {
	if params.Graph == nil {
		return nil, fmt.Errorf("extraction: graph store is required")
	}
	if params.Segments == nil {
		return nil, fmt.Errorf("extraction: segment store is required")
	}
	if len(params.Providers) == 0 {
		return nil, fmt.Errorf("extraction: at least one AI provider is required")
	}
	if params.MaxRetries <= 0 {
		params.MaxRetries = defaultMaxRetries
	}
	if params.Parallel <= 0 {
		params.Parallel = defaultParallel
	}

	o := &Orchestrator{
		graph:      params.Graph,
		segments:   params.Segments,
		dict:       params.Dictionary,
		normalizer: params.Normalizer,
		learner:    params.Learner,
		providers:  params.Providers,
		defaults:   params.Defaults,
		progress:   params.Progress,
		maxRetries: params.MaxRetries,
		parallel:   params.Parallel,
	}
	if params.Dictionary != nil {
		pre, err := NewPreprocessor(NewPreprocessorParams{
			Dictionary: params.Dictionary,
			Threshold:  params.Defaults.MatchThreshold,
		})
		if err != nil {
			return nil, err
		}
		o.pre = pre
	}
	return o, nil
}

func (o *Orchestrator) resolveCompleter(cfg Config) (ai.Completer, error) {
	if cfg.Provider == "" {
		return nil, &common.ConfigurationError{Missing: "provider"}
	}
	completer, ok := o.providers[cfg.Provider]
	if !ok {
		return nil, &common.NotFoundError{Kind: "provider", ID: cfg.Provider}
	}
	if cfg.Model == "" {
		return nil, &common.ConfigurationError{Missing: "model"}
	}
	return completer, nil
}

// SegmentResult reports one segment run.
type SegmentResult struct {
	SegmentID    string `json:"segment_id"`
	Skipped      bool   `json:"skipped"`
	NodesCreated int    `json:"nodes_created"`
	EdgesCreated int    `json:"edges_created"`
}

// ExtractSegment runs the full pipeline for one segment. A segment that
// is already processing, or that already has nodes attached, is skipped
// so re-delivered jobs are harmless. Configuration and prompt
// resolution failures are returned before any status transition or LLM
// call; failures after that mark the segment errored.
func (o *Orchestrator) ExtractSegment(ctx context.Context, segmentID, batchID string, override *Config) (*SegmentResult, error) {
	segment, err := o.segments.GetSegment(ctx, segmentID)
	if err != nil {
		return nil, err
	}
	result := &SegmentResult{SegmentID: segment.ID}

	if segment.Status == common.SegmentProcessing {
		logger.Debug("[Extraction] Segment already processing, skipping", "segment_id", segment.ID)
		result.Skipped = true
		return result, nil
	}
	existing, err := o.graph.ListNodes(ctx, store.NodeFilter{DatasetID: segment.DatasetID, SegmentID: segment.ID})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		logger.Debug("[Extraction] Segment already has nodes, skipping", "segment_id", segment.ID, "nodes", len(existing))
		result.Skipped = true
		return result, nil
	}

	cfg := o.defaults.merge(override)
	completer, err := o.resolveCompleter(cfg)
	if err != nil {
		return nil, err
	}
	template, err := selectPrompt(cfg.PromptID, cfg.ContentType)
	if err != nil {
		return nil, err
	}

	if err := o.segments.SetStatus(ctx, segment.ID, common.SegmentProcessing); err != nil {
		return nil, err
	}
	o.publish(ProgressEvent{
		BatchID: batchID, DatasetID: segment.DatasetID, DocumentID: segment.DocumentID,
		SegmentID: segment.ID, Stage: ProgressProcessingSegment,
	})

	prompt := RenderPrompt(template, segment)
	var matches []dictionary.Match
	if cfg.HybridEnabled && o.pre != nil {
		matches, err = o.pre.PreprocessText(ctx, segment.Content)
		if err != nil {
			logger.Warn("[Extraction] Dictionary preprocessing failed, continuing unconstrained", "segment_id", segment.ID, "error", err)
			matches = nil
		}
		prompt = BuildConstrainedPrompt(prompt, matches)
	}

	o.publish(ProgressEvent{
		BatchID: batchID, DatasetID: segment.DatasetID, DocumentID: segment.DocumentID,
		SegmentID: segment.ID, Stage: ProgressLLMCall,
	})
	raw, err := util.RetryWithContext(ctx, o.maxRetries, func(ctx context.Context) (string, error) {
		return completer.GenerateCompletion(ctx, prompt, ai.WithModel(cfg.Model))
	})
	if err != nil {
		return nil, o.failSegment(ctx, segment, batchID, fmt.Errorf("LLM call failed: %w", err))
	}

	parsed, err := ParseResponse(raw)
	if err != nil {
		return nil, o.failSegment(ctx, segment, batchID, err)
	}

	o.publish(ProgressEvent{
		BatchID: batchID, DatasetID: segment.DatasetID, DocumentID: segment.DocumentID,
		SegmentID: segment.ID, Stage: ProgressCreatingNodes,
	})
	persisted, labelToID, created, err := o.persistNodes(ctx, segment, parsed)
	if err != nil {
		return nil, o.failSegment(ctx, segment, batchID, fmt.Errorf("failed to persist nodes: %w", err))
	}
	result.NodesCreated = created

	o.publish(ProgressEvent{
		BatchID: batchID, DatasetID: segment.DatasetID, DocumentID: segment.DocumentID,
		SegmentID: segment.ID, Stage: ProgressCreatingEdges,
	})
	edges, err := o.persistEdges(ctx, segment, parsed, labelToID)
	if err != nil {
		return nil, o.failSegment(ctx, segment, batchID, fmt.Errorf("failed to persist edges: %w", err))
	}
	result.EdgesCreated = edges

	if cfg.HybridEnabled && o.pre != nil && len(matches) > 0 {
		o.pre.UpdateEntityUsageFromExtraction(ctx, matches, parsed.Nodes)
	}
	o.postProcess(ctx, segment, persisted)

	if err := o.segments.SetStatus(ctx, segment.ID, common.SegmentCompleted); err != nil {
		return nil, err
	}
	o.publish(ProgressEvent{
		BatchID: batchID, DatasetID: segment.DatasetID, DocumentID: segment.DocumentID,
		SegmentID: segment.ID, Stage: ProgressCompleted,
		NodesCreated: result.NodesCreated, EdgesCreated: result.EdgesCreated,
	})
	return result, nil
}

func (o *Orchestrator) failSegment(ctx context.Context, segment *common.Segment, batchID string, cause error) error {
	if err := o.segments.SetStatus(ctx, segment.ID, common.SegmentError); err != nil {
		logger.Warn("[Extraction] Failed to mark segment errored", "segment_id", segment.ID, "error", err)
	}
	o.publish(ProgressEvent{
		BatchID: batchID, DatasetID: segment.DatasetID, DocumentID: segment.DocumentID,
		SegmentID: segment.ID, Stage: ProgressError, Error: cause.Error(),
	})
	return cause
}

// postProcess runs the normalization and learning hooks. Both are
// advisory: a failure is logged and the segment still completes.
func (o *Orchestrator) postProcess(ctx context.Context, segment *common.Segment, nodes []common.GraphNode) {
	if o.normalizer != nil {
		if _, err := o.normalizer.NormalizeAfterExtraction(ctx, segment.DatasetID, segment.DocumentID); err != nil {
			logger.Warn("[Extraction] Post-extraction normalization failed", "segment_id", segment.ID, "error", err)
		}
	}
	if o.learner != nil {
		learned := o.learner.LearnFromExtraction(ctx, nodes)
		if len(learned.Errors) > 0 {
			logger.Warn("[Extraction] Learning pass reported errors", "segment_id", segment.ID, "errors", len(learned.Errors))
		}
	}
}

func (o *Orchestrator) persistNodes(
	ctx context.Context,
	segment *common.Segment,
	parsed *ParsedResult,
) ([]common.GraphNode, map[string]string, int, error) {
	labelToID := make(map[string]string, len(parsed.Nodes))
	persisted := make([]common.GraphNode, 0, len(parsed.Nodes))
	created := 0

	register := func(label, id string) {
		labelToID[strings.ToLower(strings.TrimSpace(label))] = id
		labelToID[collapseLabel(label)] = id
	}

	for _, n := range parsed.Nodes {
		label := strings.TrimSpace(n.Label)
		if label == "" {
			continue
		}
		nodeType, known := MapNodeType(n.Type)
		if !known {
			logger.Warn("[Extraction] Unrecognized node type, defaulting", "type", n.Type, "label", label, "default", nodeType)
		}

		existing, err := o.findExistingNode(ctx, segment.DatasetID, nodeType, label, n.Properties)
		if err != nil {
			return nil, nil, 0, err
		}
		if existing != nil {
			existing.Properties = existing.Properties.Merge(n.Properties)
			if err := o.graph.UpdateNode(ctx, existing); err != nil {
				return nil, nil, 0, err
			}
			register(label, existing.ID)
			persisted = append(persisted, *existing)
			continue
		}

		props := n.Properties.Clone()
		if props == nil {
			props = common.Properties{}
		}
		o.linkDictionaryEntity(ctx, label, props)

		node := &common.GraphNode{
			DatasetID:  segment.DatasetID,
			DocumentID: segment.DocumentID,
			SegmentID:  segment.ID,
			Type:       nodeType,
			Label:      label,
			Properties: props,
		}
		if err := o.graph.CreateNode(ctx, node); err != nil {
			return nil, nil, 0, err
		}
		register(label, node.ID)
		persisted = append(persisted, *node)
		created++
	}

	return persisted, labelToID, created, nil
}

// findExistingNode resolves the node dedup key in decreasing strictness:
// exact label, exact normalized_name, then case- and whitespace-
// insensitive comparison of both.
func (o *Orchestrator) findExistingNode(
	ctx context.Context,
	datasetID string,
	nodeType common.NodeType,
	label string,
	props common.Properties,
) (*common.GraphNode, error) {
	exact, err := o.graph.ListNodes(ctx, store.NodeFilter{DatasetID: datasetID, NodeType: nodeType, Label: label})
	if err != nil {
		return nil, err
	}
	if len(exact) > 0 {
		return &exact[0], nil
	}

	normalized := props.String(common.PropNormalizedName)
	if normalized == "" {
		normalized = strings.ToLower(strings.Join(strings.Fields(label), " "))
	}

	typed, err := o.graph.ListNodes(ctx, store.NodeFilter{DatasetID: datasetID, NodeType: nodeType})
	if err != nil {
		return nil, err
	}
	for i := range typed {
		if candidate := typed[i].Properties.String(common.PropNormalizedName); candidate != "" && candidate == normalized {
			return &typed[i], nil
		}
	}
	collapsed := collapseLabel(label)
	for i := range typed {
		if collapseLabel(typed[i].Label) == collapsed {
			return &typed[i], nil
		}
		if candidate := typed[i].Properties.String(common.PropNormalizedName); candidate != "" && collapseLabel(candidate) == collapsed {
			return &typed[i], nil
		}
	}
	return nil, nil
}

// linkDictionaryEntity attaches graphEntityId when the label matches a
// dictionary entity above the link threshold, and registers the label
// as an alias when it differs from the canonical name.
func (o *Orchestrator) linkDictionaryEntity(ctx context.Context, label string, props common.Properties) {
	if o.dict == nil {
		return
	}
	matches, err := o.dict.FindMatchingEntities(ctx, label, entityLinkThreshold)
	if err != nil {
		logger.Warn("[Extraction] Dictionary lookup failed", "label", label, "error", err)
		return
	}
	if len(matches) == 0 || matches[0].Similarity <= entityLinkThreshold {
		return
	}
	best := matches[0]
	props[common.PropGraphEntityID] = entityRef(best.Entity)

	if o.learner != nil && !strings.EqualFold(label, best.Entity.CanonicalName) {
		if _, err := o.learner.AddAliasIfNotExists(ctx, best.Entity.ID, label, best.Similarity); err != nil {
			logger.Warn("[Extraction] Failed to register alias", "entity_id", best.Entity.ID, "alias", label, "error", err)
		}
	}
}

func entityRef(entity common.DictionaryEntity) string {
	if entity.EntityID != "" {
		return entity.EntityID
	}
	return entity.ID
}

func (o *Orchestrator) persistEdges(
	ctx context.Context,
	segment *common.Segment,
	parsed *ParsedResult,
	labelToID map[string]string,
) (int, error) {
	resolve := func(label string) (string, bool) {
		if id, ok := labelToID[strings.ToLower(strings.TrimSpace(label))]; ok {
			return id, true
		}
		id, ok := labelToID[collapseLabel(label)]
		return id, ok
	}

	persisted := 0
	for _, e := range parsed.Edges {
		sourceID, ok := resolve(e.Source)
		if !ok {
			logger.Warn("[Extraction] Edge source not resolved, skipping", "segment_id", segment.ID, "source", e.Source)
			continue
		}
		targetID, ok := resolve(e.Target)
		if !ok {
			logger.Warn("[Extraction] Edge target not resolved, skipping", "segment_id", segment.ID, "target", e.Target)
			continue
		}
		if sourceID == targetID {
			continue
		}
		edgeType, known := MapEdgeType(e.Type)
		if !known {
			logger.Warn("[Extraction] Unrecognized edge type, defaulting", "type", e.Type, "default", edgeType)
		}
		weight := clampWeight(e.Weight)

		existing, err := o.graph.FindEdge(ctx, segment.DatasetID, sourceID, targetID, edgeType)
		if err != nil {
			return persisted, err
		}
		if existing != nil {
			existing.Weight = (existing.Weight + weight) / 2
			existing.Properties = existing.Properties.Merge(e.Properties)
			if err := o.graph.UpdateEdge(ctx, existing); err != nil {
				return persisted, err
			}
			continue
		}

		edge := &common.GraphEdge{
			DatasetID:    segment.DatasetID,
			SourceNodeID: sourceID,
			TargetNodeID: targetID,
			Type:         edgeType,
			Weight:       weight,
			Properties:   e.Properties.Clone(),
		}
		if err := o.graph.CreateEdge(ctx, edge); err != nil {
			return persisted, err
		}
		persisted++
	}
	return persisted, nil
}

func clampWeight(w float64) float64 {
	if w <= 0 {
		return 1
	}
	if w > 1 {
		return 1
	}
	return w
}

func collapseLabel(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

// BatchResult reports one document batch run.
type BatchResult struct {
	BatchID      string   `json:"batch_id"`
	Segments     int      `json:"segments"`
	Completed    int      `json:"completed"`
	Skipped      int      `json:"skipped"`
	Failed       int      `json:"failed"`
	NodesCreated int      `json:"nodes_created"`
	EdgesCreated int      `json:"edges_created"`
	Errors       []string `json:"errors,omitempty"`
}

// ExtractDocument fans pending segments of a document out over a
// bounded worker pool. A failing segment is recorded and the batch
// continues; only context cancellation and configuration errors stop
// the batch.
func (o *Orchestrator) ExtractDocument(ctx context.Context, documentID string, override *Config) (*BatchResult, error) {
	cfg := o.defaults.merge(override)
	if _, err := o.resolveCompleter(cfg); err != nil {
		return nil, err
	}

	segments, err := o.segments.ListPendingSegments(ctx, documentID)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{BatchID: uuid.NewString(), Segments: len(segments)}
	if len(segments) == 0 {
		return result, nil
	}

	datasetID := segments[0].DatasetID
	logger.Info("[Extraction] Processing document", "document_id", documentID, "segments", len(segments), "batch_id", result.BatchID)
	o.publish(ProgressEvent{
		BatchID: result.BatchID, DatasetID: datasetID, DocumentID: documentID, Stage: ProgressStarted,
		Message: fmt.Sprintf("%d segments", len(segments)),
	})

	var mu sync.Mutex
	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(o.parallel)
	for _, segment := range segments {
		s := segment
		eg.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
			}

			segResult, err := o.ExtractSegment(gCtx, s.ID, result.BatchID, override)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("segment %s: %v", s.ID, err))
				return nil
			}
			if segResult.Skipped {
				result.Skipped++
				return nil
			}
			result.Completed++
			result.NodesCreated += segResult.NodesCreated
			result.EdgesCreated += segResult.EdgesCreated
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return result, err
	}

	o.publish(ProgressEvent{
		BatchID: result.BatchID, DatasetID: datasetID, DocumentID: documentID, Stage: ProgressCompleted,
		Message:      fmt.Sprintf("%d completed, %d failed, %d skipped", result.Completed, result.Failed, result.Skipped),
		NodesCreated: result.NodesCreated, EdgesCreated: result.EdgesCreated,
	})
	logger.Info("[Extraction] Document processed", "document_id", documentID,
		"completed", result.Completed, "failed", result.Failed, "skipped", result.Skipped)
	return result, nil
}
