package extraction

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/signalhouse/magpie/pkg/ai"
	"github.com/signalhouse/magpie/pkg/common"
	"github.com/signalhouse/magpie/pkg/dictionary"
	"github.com/signalhouse/magpie/pkg/store"
	"github.com/signalhouse/magpie/pkg/store/memory"
)

const competitorResponse = `{"nodes":[` +
	`{"label":"Nike","type":"brand","properties":{"confidence":0.9}},` +
	`{"label":"Adidas","type":"brand","properties":{"confidence":0.85}}],` +
	`"edges":[{"source":"Nike","target":"Adidas","type":"competes_with","weight":0.8}]}`

// fakeCompleter answers by prompt substring; an empty mapped response
// simulates a provider outage.
type fakeCompleter struct {
	mu         sync.Mutex
	responses  map[string]string
	fallback   string
	calls      int
	lastPrompt string
}

func (f *fakeCompleter) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastPrompt = prompt
	for key, response := range f.responses {
		if strings.Contains(prompt, key) {
			if response == "" {
				return "", errors.New("model unavailable")
			}
			return response, nil
		}
	}
	return f.fallback, nil
}

func (f *fakeCompleter) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	return errors.New("not used in these tests")
}

func (f *fakeCompleter) ResetMetrics() {}

func (f *fakeCompleter) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingSink struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (r *recordingSink) Publish(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingSink) stages() []ProgressStage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ProgressStage, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Stage)
	}
	return out
}

type orchestratorFixture struct {
	orchestrator *Orchestrator
	store        *memory.Store
	completer    *fakeCompleter
	sink         *recordingSink
	dict         *dictionary.Service
}

func newFixture(t *testing.T, completer *fakeCompleter, withDictionary bool) *orchestratorFixture {
	t.Helper()
	mem := memory.NewStore()
	sink := &recordingSink{}

	params := NewOrchestratorParams{
		Graph:     mem,
		Segments:  mem,
		Providers: map[string]ai.Completer{"test": completer},
		Defaults:  Config{Provider: "test", Model: "test-model"},
		Progress:  sink,
		Parallel:  2,
	}
	var dict *dictionary.Service
	if withDictionary {
		var err error
		dict, err = dictionary.NewService(dictionary.NewServiceParams{Store: mem})
		if err != nil {
			t.Fatalf("NewService: %v", err)
		}
		params.Dictionary = dict
	}

	orchestrator, err := NewOrchestrator(params)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return &orchestratorFixture{orchestrator: orchestrator, store: mem, completer: completer, sink: sink, dict: dict}
}

func seedSegment(mem *memory.Store, id, content string) *common.Segment {
	segment := &common.Segment{
		ID:         id,
		DatasetID:  "ds",
		DocumentID: "doc-1",
		Content:    content,
	}
	mem.PutSegment(segment)
	return segment
}

func TestExtractSegmentPersistsGraph(t *testing.T) {
	ctx := context.Background()
	completer := &fakeCompleter{fallback: competitorResponse}
	f := newFixture(t, completer, false)
	segment := seedSegment(f.store, "seg-1", "Nike und Adidas dominate the sneaker market")

	result, err := f.orchestrator.ExtractSegment(ctx, segment.ID, "batch-1", nil)
	if err != nil {
		t.Fatalf("ExtractSegment: %v", err)
	}
	if result.Skipped {
		t.Fatal("segment unexpectedly skipped")
	}
	if result.NodesCreated != 2 || result.EdgesCreated != 1 {
		t.Errorf("created %d nodes / %d edges, want 2/1", result.NodesCreated, result.EdgesCreated)
	}

	nodes, err := f.store.ListNodes(ctx, store.NodeFilter{DatasetID: "ds"})
	if err != nil {
		t.Fatalf("ListNodes: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("persisted nodes = %d, want 2", len(nodes))
	}
	for _, n := range nodes {
		if n.SegmentID != segment.ID || n.DocumentID != "doc-1" {
			t.Errorf("node %s missing provenance: %+v", n.Label, n)
		}
	}

	edges, err := f.store.ListEdges(ctx, store.EdgeFilter{DatasetID: "ds"})
	if err != nil {
		t.Fatalf("ListEdges: %v", err)
	}
	if len(edges) != 1 || edges[0].Type != common.EdgeTypeCompetesWith || edges[0].Weight != 0.8 {
		t.Fatalf("edges = %+v, want one competes_with of weight 0.8", edges)
	}

	got, err := f.store.GetSegment(ctx, segment.ID)
	if err != nil {
		t.Fatalf("GetSegment: %v", err)
	}
	if got.Status != common.SegmentCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}

	wantStages := []ProgressStage{ProgressProcessingSegment, ProgressLLMCall, ProgressCreatingNodes, ProgressCreatingEdges, ProgressCompleted}
	gotStages := f.sink.stages()
	if len(gotStages) != len(wantStages) {
		t.Fatalf("stages = %v, want %v", gotStages, wantStages)
	}
	for i := range wantStages {
		if gotStages[i] != wantStages[i] {
			t.Errorf("stage %d = %s, want %s", i, gotStages[i], wantStages[i])
		}
	}
}

func TestExtractSegmentIdempotent(t *testing.T) {
	ctx := context.Background()
	completer := &fakeCompleter{fallback: competitorResponse}
	f := newFixture(t, completer, false)
	segment := seedSegment(f.store, "seg-1", "Nike vs Adidas")

	if _, err := f.orchestrator.ExtractSegment(ctx, segment.ID, "", nil); err != nil {
		t.Fatalf("first run: %v", err)
	}
	callsAfterFirst := completer.callCount()

	result, err := f.orchestrator.ExtractSegment(ctx, segment.ID, "", nil)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !result.Skipped {
		t.Error("second run not skipped")
	}
	if completer.callCount() != callsAfterFirst {
		t.Error("second run reached the LLM")
	}

	nodes, err := f.store.ListNodes(ctx, store.NodeFilter{DatasetID: "ds"})
	if err != nil {
		t.Fatalf("ListNodes: %v", err)
	}
	if len(nodes) != 2 {
		t.Errorf("nodes duplicated: %d", len(nodes))
	}
}

func TestExtractSegmentParseFailure(t *testing.T) {
	ctx := context.Background()
	completer := &fakeCompleter{fallback: "I am sorry, I cannot help with that."}
	f := newFixture(t, completer, false)
	segment := seedSegment(f.store, "seg-1", "some post")

	_, err := f.orchestrator.ExtractSegment(ctx, segment.ID, "", nil)
	if !common.IsParseError(err) {
		t.Fatalf("error = %v, want ParseError", err)
	}

	got, err := f.store.GetSegment(ctx, segment.ID)
	if err != nil {
		t.Fatalf("GetSegment: %v", err)
	}
	if got.Status != common.SegmentError {
		t.Errorf("status = %s, want error", got.Status)
	}

	stages := f.sink.stages()
	if stages[len(stages)-1] != ProgressError {
		t.Errorf("last stage = %s, want error", stages[len(stages)-1])
	}
}

func TestExtractSegmentConfigError(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStore()
	orchestrator, err := NewOrchestrator(NewOrchestratorParams{
		Graph:     mem,
		Segments:  mem,
		Providers: map[string]ai.Completer{"test": &fakeCompleter{}},
	})
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	segment := seedSegment(mem, "seg-1", "some post")

	_, err = orchestrator.ExtractSegment(ctx, segment.ID, "", nil)
	if !common.IsConfiguration(err) {
		t.Fatalf("error = %v, want ConfigurationError", err)
	}

	// Configuration failures are surfaced before any status transition.
	got, err := mem.GetSegment(ctx, segment.ID)
	if err != nil {
		t.Fatalf("GetSegment: %v", err)
	}
	if got.Status != common.SegmentPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
}

func TestExtractDocumentBatchContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	completer := &fakeCompleter{
		responses: map[string]string{"broken segment": "no structure here"},
		fallback:  competitorResponse,
	}
	f := newFixture(t, completer, false)
	seedSegment(f.store, "seg-1", "first good post about Nike")
	seedSegment(f.store, "seg-2", "broken segment content")
	seedSegment(f.store, "seg-3", "third good post about Nike")

	result, err := f.orchestrator.ExtractDocument(ctx, "doc-1", nil)
	if err != nil {
		t.Fatalf("ExtractDocument: %v", err)
	}
	if result.Segments != 3 {
		t.Errorf("segments = %d, want 3", result.Segments)
	}
	if result.Failed != 1 || len(result.Errors) != 1 {
		t.Errorf("failed = %d, errors = %v, want exactly one", result.Failed, result.Errors)
	}
	if result.Completed != 2 {
		t.Errorf("completed = %d, want 2", result.Completed)
	}

	broken, err := f.store.GetSegment(ctx, "seg-2")
	if err != nil {
		t.Fatalf("GetSegment: %v", err)
	}
	if broken.Status != common.SegmentError {
		t.Errorf("broken segment status = %s, want error", broken.Status)
	}
}

func TestExtractSegmentDedupesAcrossSegments(t *testing.T) {
	ctx := context.Background()
	response := `{"nodes":[{"label":"Nike","type":"brand","properties":{"confidence":0.95}},` +
		`{"label":"Puma","type":"brand"}],"edges":[]}`
	completer := &fakeCompleter{fallback: response}
	f := newFixture(t, completer, false)

	// Nike already exists from an earlier segment.
	existing := &common.GraphNode{
		DatasetID: "ds", SegmentID: "seg-0", Type: common.NodeTypeBrand, Label: "Nike",
		Properties: common.Properties{common.PropSentiment: "positive"},
	}
	if err := f.store.CreateNode(ctx, existing); err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	segment := seedSegment(f.store, "seg-1", "Nike and Puma release new shoes")

	result, err := f.orchestrator.ExtractSegment(ctx, segment.ID, "", nil)
	if err != nil {
		t.Fatalf("ExtractSegment: %v", err)
	}
	if result.NodesCreated != 1 {
		t.Errorf("created = %d, want 1 (only Puma is new)", result.NodesCreated)
	}

	nodes, err := f.store.ListNodes(ctx, store.NodeFilter{DatasetID: "ds", NodeType: common.NodeTypeBrand})
	if err != nil {
		t.Fatalf("ListNodes: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("brand nodes = %d, want 2", len(nodes))
	}

	merged, err := f.store.GetNode(ctx, existing.ID)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if merged.Properties.String(common.PropSentiment) != "positive" {
		t.Error("existing property lost during merge")
	}
	if merged.Properties.Confidence(0) != 0.95 {
		t.Error("new properties not merged onto the existing node")
	}
}

func TestExtractSegmentHybridConstrainsAndLinks(t *testing.T) {
	ctx := context.Background()
	completer := &fakeCompleter{fallback: competitorResponse}
	f := newFixture(t, completer, true)

	nike := &common.DictionaryEntity{EntityType: "brand", CanonicalName: "Nike"}
	if err := f.dict.AddEntity(ctx, nike); err != nil {
		t.Fatalf("AddEntity: %v", err)
	}
	segment := seedSegment(f.store, "seg-1", "Nike and Adidas on the track")

	override := &Config{HybridEnabled: true}
	if _, err := f.orchestrator.ExtractSegment(ctx, segment.ID, "", override); err != nil {
		t.Fatalf("ExtractSegment: %v", err)
	}

	if !strings.Contains(completer.lastPrompt, "Known entities") || !strings.Contains(completer.lastPrompt, "Nike") {
		t.Error("prompt was not constrained with known entities")
	}

	// The extracted Nike node links back to the dictionary entity, and
	// the reconciliation recorded a usage event.
	nodes, err := f.store.ListNodes(ctx, store.NodeFilter{DatasetID: "ds", Label: "Nike"})
	if err != nil {
		t.Fatalf("ListNodes: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("Nike nodes = %d, want 1", len(nodes))
	}
	if nodes[0].Properties.String(common.PropGraphEntityID) != nike.ID {
		t.Errorf("graphEntityId = %q, want %q", nodes[0].Properties.String(common.PropGraphEntityID), nike.ID)
	}

	got, err := f.dict.GetEntity(ctx, nike.ID)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if got.Metadata.UsageCount != 1 {
		t.Errorf("usage count = %d, want 1", got.Metadata.UsageCount)
	}
}
