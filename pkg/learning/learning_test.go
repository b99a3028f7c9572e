package learning

import (
	"context"
	"strings"
	"testing"

	"github.com/signalhouse/magpie/pkg/common"
	"github.com/signalhouse/magpie/pkg/dictionary"
	"github.com/signalhouse/magpie/pkg/store"
	"github.com/signalhouse/magpie/pkg/store/memory"
)

func newTestEngine(t *testing.T) (*Engine, *dictionary.Service, *memory.Store) {
	t.Helper()
	mem := memory.NewStore()
	dict, err := dictionary.NewService(dictionary.NewServiceParams{Store: mem})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	engine, err := NewEngine(NewEngineParams{Dictionary: dict, Graph: mem})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine, dict, mem
}

func mustAddEntity(t *testing.T, dict *dictionary.Service, entity *common.DictionaryEntity) *common.DictionaryEntity {
	t.Helper()
	if err := dict.AddEntity(context.Background(), entity); err != nil {
		t.Fatalf("AddEntity(%s): %v", entity.CanonicalName, err)
	}
	return entity
}

func TestLearnFromExtractionExactHit(t *testing.T) {
	ctx := context.Background()
	engine, dict, _ := newTestEngine(t)

	entity := mustAddEntity(t, dict, &common.DictionaryEntity{
		EntityType:      "brand",
		CanonicalName:   "Nike",
		ConfidenceScore: 0.5,
	})

	result := engine.LearnFromExtraction(ctx, []common.GraphNode{
		{DatasetID: "ds", Type: common.NodeTypeBrand, Label: "nike"},
	})
	if result.UsageRecorded != 1 || result.EntitiesCreated != 0 || result.AliasesAdded != 0 {
		t.Fatalf("result = %+v, want one usage hit", result)
	}

	got, err := dict.GetEntity(ctx, entity.ID)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if got.Metadata.UsageCount != 1 {
		t.Errorf("UsageCount = %d, want 1", got.Metadata.UsageCount)
	}
}

func TestLearnFromExtractionNearHitAddsAlias(t *testing.T) {
	ctx := context.Background()
	engine, dict, _ := newTestEngine(t)

	entity := mustAddEntity(t, dict, &common.DictionaryEntity{
		EntityType:    "brand",
		CanonicalName: "Nike",
	})

	result := engine.LearnFromExtraction(ctx, []common.GraphNode{
		{DatasetID: "ds", Type: common.NodeTypeBrand, Label: "Nikee"},
	})
	if result.UsageRecorded != 1 || result.AliasesAdded != 1 {
		t.Fatalf("result = %+v, want usage + alias", result)
	}

	got, err := dict.GetEntity(ctx, entity.ID)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	found := false
	for _, alias := range got.Aliases {
		if alias.Alias == "Nikee" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected alias Nikee, got %+v", got.Aliases)
	}
}

func TestLearnFromExtractionCreatesLearnedEntity(t *testing.T) {
	ctx := context.Background()
	engine, dict, _ := newTestEngine(t)

	result := engine.LearnFromExtraction(ctx, []common.GraphNode{
		{
			DatasetID:  "ds",
			Type:       common.NodeTypeBrand,
			Label:      "Allbirds",
			Properties: common.Properties{common.PropConfidence: 0.85},
		},
		{
			// Below the learn threshold: ignored.
			DatasetID:  "ds",
			Type:       common.NodeTypeBrand,
			Label:      "maybe-a-brand",
			Properties: common.Properties{common.PropConfidence: 0.4},
		},
	})
	if result.EntitiesCreated != 1 {
		t.Fatalf("result = %+v, want 1 created entity", result)
	}

	entities, err := dict.FindEntities(ctx, store.EntityFilter{EntityType: "brand"})
	if err != nil {
		t.Fatalf("FindEntities: %v", err)
	}
	if len(entities) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(entities))
	}
	got := entities[0]
	if got.CanonicalName != "Allbirds" || got.Source != common.EntitySourceLearned {
		t.Errorf("entity = %+v, want learned Allbirds", got)
	}
	if got.ConfidenceScore != 0.85 {
		t.Errorf("ConfidenceScore = %v, want extraction confidence", got.ConfidenceScore)
	}
}

func TestAddAliasIfNotExists(t *testing.T) {
	ctx := context.Background()
	engine, dict, _ := newTestEngine(t)

	entity := mustAddEntity(t, dict, &common.DictionaryEntity{
		EntityType:    "brand",
		CanonicalName: "Nike",
		Aliases:       []common.EntityAlias{{Alias: "NIKE Inc"}},
	})

	added, err := engine.AddAliasIfNotExists(ctx, entity.ID, "nike inc", 0.9)
	if err != nil {
		t.Fatalf("AddAliasIfNotExists: %v", err)
	}
	if added {
		t.Error("case-variant of existing alias should not be re-added")
	}

	added, err = engine.AddAliasIfNotExists(ctx, entity.ID, "NIKE", 1.0)
	if err != nil {
		t.Fatalf("AddAliasIfNotExists: %v", err)
	}
	if added {
		t.Error("canonical name must not become an alias")
	}

	added, err = engine.AddAliasIfNotExists(ctx, entity.ID, "Just Do It brand", 0.8)
	if err != nil {
		t.Fatalf("AddAliasIfNotExists: %v", err)
	}
	if !added {
		t.Error("new alias should be added")
	}
}

func TestUpdateEntityConfidence(t *testing.T) {
	ctx := context.Background()
	engine, dict, _ := newTestEngine(t)

	entity := mustAddEntity(t, dict, &common.DictionaryEntity{
		EntityType:      "brand",
		CanonicalName:   "Nike",
		ConfidenceScore: 0.5,
		Source:          common.EntitySourceLearned,
		Metadata:        common.EntityMetadata{UsageCount: 10},
	})

	if err := engine.UpdateEntityConfidence(ctx, entity.ID); err != nil {
		t.Fatalf("UpdateEntityConfidence: %v", err)
	}

	got, err := dict.GetEntity(ctx, entity.ID)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if diff := got.ConfidenceScore - 0.6; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("ConfidenceScore = %v, want 0.6", got.ConfidenceScore)
	}
}

func TestUpdateEntityConfidenceNeverDecreases(t *testing.T) {
	ctx := context.Background()
	engine, dict, _ := newTestEngine(t)

	entity := mustAddEntity(t, dict, &common.DictionaryEntity{
		EntityType:      "brand",
		CanonicalName:   "Nike",
		ConfidenceScore: 0.95,
		Source:          common.EntitySourceLearned,
	})

	if err := engine.UpdateEntityConfidence(ctx, entity.ID); err != nil {
		t.Fatalf("UpdateEntityConfidence: %v", err)
	}

	got, err := dict.GetEntity(ctx, entity.ID)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if got.ConfidenceScore != 0.95 {
		t.Errorf("ConfidenceScore = %v, must not decrease", got.ConfidenceScore)
	}
}

func TestDiscoverEntityAliases(t *testing.T) {
	ctx := context.Background()
	engine, dict, mem := newTestEngine(t)

	entity := mustAddEntity(t, dict, &common.DictionaryEntity{
		EntityType:    "brand",
		CanonicalName: "Nike",
	})

	for _, node := range []*common.GraphNode{
		{DatasetID: "ds", Type: common.NodeTypeBrand, Label: "Nikee"},
		{DatasetID: "ds", Type: common.NodeTypeBrand, Label: "nike"},
		{DatasetID: "ds", Type: common.NodeTypeBrand, Label: "Adidas"},
	} {
		if err := mem.CreateNode(ctx, node); err != nil {
			t.Fatalf("CreateNode: %v", err)
		}
	}

	added, err := engine.DiscoverEntityAliases(ctx, "ds")
	if err != nil {
		t.Fatalf("DiscoverEntityAliases: %v", err)
	}
	if added != 1 {
		t.Fatalf("added = %d, want 1 (only the near-match)", added)
	}

	got, err := dict.GetEntity(ctx, entity.ID)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if len(got.Aliases) != 1 || got.Aliases[0].Alias != "Nikee" {
		t.Errorf("aliases = %+v, want only Nikee", got.Aliases)
	}
}

func TestSuggestNewEntities(t *testing.T) {
	ctx := context.Background()
	engine, dict, mem := newTestEngine(t)

	// Already known: must not be suggested.
	mustAddEntity(t, dict, &common.DictionaryEntity{
		EntityType:    "brand",
		CanonicalName: "Nike",
	})

	for range 3 {
		if err := mem.CreateNode(ctx, &common.GraphNode{
			DatasetID: "ds", DocumentID: "doc1",
			Type: common.NodeTypeBrand, Label: "Allbirds",
		}); err != nil {
			t.Fatalf("CreateNode: %v", err)
		}
	}
	for range 3 {
		if err := mem.CreateNode(ctx, &common.GraphNode{
			DatasetID: "ds", DocumentID: "doc1",
			Type: common.NodeTypeBrand, Label: "Nike",
		}); err != nil {
			t.Fatalf("CreateNode: %v", err)
		}
	}
	if err := mem.CreateNode(ctx, &common.GraphNode{
		DatasetID: "ds", Type: common.NodeTypeBrand, Label: "rare brand",
	}); err != nil {
		t.Fatalf("CreateNode: %v", err)
	}

	suggestions, err := engine.SuggestNewEntities(ctx, "ds")
	if err != nil {
		t.Fatalf("SuggestNewEntities: %v", err)
	}
	if len(suggestions) != 1 {
		t.Fatalf("expected 1 suggestion, got %+v", suggestions)
	}
	got := suggestions[0]
	if got.CanonicalName != "Allbirds" || got.Frequency != 3 {
		t.Errorf("suggestion = %+v", got)
	}
	if got.Confidence < 0.5 || got.Confidence > 1.0 {
		t.Errorf("Confidence = %v, want within [0.5, 1.0]", got.Confidence)
	}
	// Single word: only the lowercased variant survives.
	if len(got.Aliases) != 1 || got.Aliases[0] != "allbirds" {
		t.Errorf("Aliases = %v, want [allbirds]", got.Aliases)
	}
}

func TestSuggestNewEntitiesEdgePatternLowersBar(t *testing.T) {
	ctx := context.Background()
	engine, _, mem := newTestEngine(t)

	puma1 := &common.GraphNode{DatasetID: "ds", Type: common.NodeTypeBrand, Label: "Puma"}
	puma2 := &common.GraphNode{DatasetID: "ds", Type: common.NodeTypeBrand, Label: "puma"}
	a1 := &common.GraphNode{DatasetID: "ds", Type: common.NodeTypeAuthor, Label: "@alice"}
	a2 := &common.GraphNode{DatasetID: "ds", Type: common.NodeTypeAuthor, Label: "@bob"}
	for _, node := range []*common.GraphNode{puma1, puma2, a1, a2} {
		if err := mem.CreateNode(ctx, node); err != nil {
			t.Fatalf("CreateNode: %v", err)
		}
	}
	for _, src := range []string{a1.ID, a2.ID} {
		if err := mem.CreateEdge(ctx, &common.GraphEdge{
			DatasetID:    "ds",
			SourceNodeID: src,
			TargetNodeID: puma1.ID,
			Type:         common.EdgeTypeMentions,
			Weight:       1,
		}); err != nil {
			t.Fatalf("CreateEdge: %v", err)
		}
	}

	suggestions, err := engine.SuggestNewEntities(ctx, "ds")
	if err != nil {
		t.Fatalf("SuggestNewEntities: %v", err)
	}

	if len(suggestions) != 1 || !strings.EqualFold(suggestions[0].CanonicalName, "puma") {
		t.Fatalf("suggestions = %+v, want only the repeated-edge-pattern label", suggestions)
	}
	if suggestions[0].Frequency != 2 {
		t.Errorf("Frequency = %d, want 2", suggestions[0].Frequency)
	}
}
