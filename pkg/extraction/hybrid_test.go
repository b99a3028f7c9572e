package extraction

import (
	"context"
	"strings"
	"testing"

	"github.com/signalhouse/magpie/pkg/common"
	"github.com/signalhouse/magpie/pkg/dictionary"
	"github.com/signalhouse/magpie/pkg/store/memory"
)

func newTestPreprocessor(t *testing.T) (*Preprocessor, *dictionary.Service, *memory.Store) {
	t.Helper()
	mem := memory.NewStore()
	dict, err := dictionary.NewService(dictionary.NewServiceParams{Store: mem})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	pre, err := NewPreprocessor(NewPreprocessorParams{Dictionary: dict})
	if err != nil {
		t.Fatalf("NewPreprocessor: %v", err)
	}
	return pre, dict, mem
}

func seedEntity(t *testing.T, dict *dictionary.Service, name, entityType string, aliases ...string) *common.DictionaryEntity {
	t.Helper()
	entity := &common.DictionaryEntity{EntityType: entityType, CanonicalName: name}
	for _, a := range aliases {
		entity.Aliases = append(entity.Aliases, common.EntityAlias{Alias: a})
	}
	if err := dict.AddEntity(context.Background(), entity); err != nil {
		t.Fatalf("AddEntity(%s): %v", name, err)
	}
	return entity
}

func TestBuildConstrainedPrompt(t *testing.T) {
	pre, dict, _ := newTestPreprocessor(t)
	seedEntity(t, dict, "Nike", "brand", "NIKE Inc")
	seedEntity(t, dict, "running", "topic")

	matches, err := pre.PreprocessText(context.Background(), "Just bought new Nike shoes for running")
	if err != nil {
		t.Fatalf("PreprocessText: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(matches))
	}

	prompt := BuildConstrainedPrompt("Extract entities.", matches)
	if !strings.Contains(prompt, "Known entities") {
		t.Error("prompt missing the known-entities block")
	}
	if !strings.Contains(prompt, "brand:") || !strings.Contains(prompt, "topic:") {
		t.Error("known entities not grouped by type")
	}
	if !strings.Contains(prompt, "Nike") || !strings.Contains(prompt, "NIKE Inc") {
		t.Error("canonical name or alias missing from the block")
	}
	if !strings.Contains(prompt, "precision over recall") {
		t.Error("extraction rules missing")
	}
}

func TestBuildConstrainedPromptNoMatches(t *testing.T) {
	base := "Extract entities."
	if got := BuildConstrainedPrompt(base, nil); got != base {
		t.Errorf("prompt changed without matches: %q", got)
	}
}

func TestUpdateEntityUsageFromExtraction(t *testing.T) {
	ctx := context.Background()
	pre, dict, _ := newTestPreprocessor(t)
	nike := seedEntity(t, dict, "Nike", "brand")
	adidas := seedEntity(t, dict, "Adidas", "brand")

	matches, err := pre.PreprocessText(ctx, "Nike and Adidas both posted today")
	if err != nil {
		t.Fatalf("PreprocessText: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(matches))
	}

	// The model only extracted Nike.
	nodes := []ParsedNode{{Label: "Nike", Type: "brand"}}
	if recorded := pre.UpdateEntityUsageFromExtraction(ctx, matches, nodes); recorded != 1 {
		t.Errorf("recorded = %d, want 1", recorded)
	}

	got, err := dict.GetEntity(ctx, nike.ID)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if got.Metadata.UsageCount != 1 {
		t.Errorf("Nike usage count = %d, want 1", got.Metadata.UsageCount)
	}
	unused, err := dict.GetEntity(ctx, adidas.ID)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if unused.Metadata.UsageCount != 0 {
		t.Errorf("Adidas usage count = %d, want 0", unused.Metadata.UsageCount)
	}
}
