package extraction

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/signalhouse/magpie/pkg/dictionary"
	"github.com/signalhouse/magpie/pkg/logger"
	"github.com/signalhouse/magpie/pkg/store"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// Token budget for the known-entities block appended to a prompt.
	// The block is truncated type by type to stay under it.
	knownEntitiesTokenBudget = 1024

	promptTokenEncoding = "o200k_base"
)

// Preprocessor runs the dictionary pass that turns a plain extraction
// prompt into a constrained one: known entities found in the segment
// text are listed for the model so it reuses canonical names instead of
// inventing variants.
type Preprocessor struct {
	dict      *dictionary.Service
	threshold float64
}

// NewPreprocessorParams defines the configuration parameters for
// creating a new Preprocessor.
type NewPreprocessorParams struct {
	Dictionary *dictionary.Service
	// Threshold for dictionary matching; 0 uses the service default.
	Threshold float64
}

// NewPreprocessor creates and returns a new Preprocessor configured
// with the provided parameters.
func NewPreprocessor(params NewPreprocessorParams) (*Preprocessor, error) {
	if params.Dictionary == nil {
		return nil, fmt.Errorf("extraction: dictionary service is required")
	}
	return &Preprocessor{dict: params.Dictionary, threshold: params.Threshold}, nil
}

// PreprocessText finds every known dictionary entity mentioned in the
// content.
func (p *Preprocessor) PreprocessText(ctx context.Context, content string) ([]dictionary.Match, error) {
	return p.dict.FindMatchingEntities(ctx, content, p.threshold)
}

// BuildConstrainedPrompt appends a known-entities block and extraction
// rules to the base prompt. Matches are grouped by entity type; the
// block is trimmed to a token budget so a large dictionary cannot crowd
// out the segment content.
func BuildConstrainedPrompt(base string, matches []dictionary.Match) string {
	if len(matches) == 0 {
		return base
	}

	byType := make(map[string][]dictionary.Match)
	for _, m := range matches {
		byType[m.Entity.EntityType] = append(byType[m.Entity.EntityType], m)
	}
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	var block strings.Builder
	block.WriteString("\n\nKnown entities already in the knowledge base:\n")
	budget := knownEntitiesTokenBudget - countTokens(block.String())
	for _, t := range types {
		var section strings.Builder
		fmt.Fprintf(&section, "%s:\n", t)
		for _, m := range byType[t] {
			line := "- " + m.Entity.CanonicalName
			if aliases := aliasList(m); aliases != "" {
				line += " (also known as: " + aliases + ")"
			}
			section.WriteString(line + "\n")
		}
		cost := countTokens(section.String())
		if cost > budget {
			logger.Debug("[Extraction] Known-entities block truncated", "entity_type", t, "budget", budget)
			break
		}
		budget -= cost
		block.WriteString(section.String())
	}
	block.WriteString(`
Rules:
- When one of the known entities appears in the text, use its canonical name exactly as listed.
- Prefer relating known entities to each other over creating new ones.
- Only extract entities the text clearly supports; precision over recall.`)

	return base + block.String()
}

func aliasList(m dictionary.Match) string {
	if len(m.Entity.Aliases) == 0 {
		return ""
	}
	names := make([]string, 0, len(m.Entity.Aliases))
	for _, a := range m.Entity.Aliases {
		names = append(names, a.Alias)
	}
	return strings.Join(names, ", ")
}

func countTokens(text string) int {
	enc, err := tiktoken.GetEncoding(promptTokenEncoding)
	if err != nil {
		// Fall back to a rough 4-chars-per-token estimate.
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// UpdateEntityUsageFromExtraction reconciles the dictionary matches
// against what the model actually extracted and records a usage event
// for every match whose canonical name came back as a node label.
// Returns the number of usage events recorded.
func (p *Preprocessor) UpdateEntityUsageFromExtraction(ctx context.Context, matches []dictionary.Match, nodes []ParsedNode) int {
	used := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		used[strings.ToLower(n.Label)] = true
	}

	recorded := 0
	now := time.Now()
	for _, m := range matches {
		if !used[strings.ToLower(m.Entity.CanonicalName)] {
			continue
		}
		event := store.UsageEvent{
			Alias:      m.Alias,
			MatchedAt:  now,
			Similarity: m.Similarity,
		}
		if err := p.dict.UpdateEntityFromUsage(ctx, m.Entity.ID, event); err != nil {
			logger.Warn("[Extraction] Failed to record entity usage", "entity_id", m.Entity.ID, "error", err)
			continue
		}
		recorded++
	}
	return recorded
}
