package extraction

import (
	"sort"
	"strings"

	"github.com/signalhouse/magpie/pkg/common"
)

// Every template asks for the same output shape so the parser does not
// care which one produced the response. Placeholders are filled from
// the segment by RenderPrompt.

const outputInstructions = `Respond with a single JSON object of the form:
{"nodes": [{"label": "...", "type": "...", "properties": {"confidence": 0.0}}],
 "edges": [{"source": "...", "target": "...", "type": "...", "weight": 0.0}]}
Node types: author, brand, topic, hashtag, influencer, location, organization, product, event.
Edge types: mentions, sentiment, interacts_with, competes_with, discusses, shares_topic, follows, collaborates, influences, located_in, part_of, related_to.
Do not invent entities that are not present in the text.`

var promptTemplates = map[string]string{
	"social": `You analyze social media posts. Extract the entities and relationships from the post below.
Platform: {{platform}}
Author: {{author}}
Date: {{date}}
Engagement: {{engagement}}

Post:
{{content}}

` + outputInstructions,

	"news": `You analyze news articles. Extract the entities and relationships from the article below, including organizations, people, locations and events.

Article:
{{content}}

` + outputInstructions,

	"academic": `You analyze academic text. Extract the entities and relationships from the excerpt below, including authors, institutions, topics and cited works.

Excerpt:
{{content}}

` + outputInstructions,

	"legal": `You analyze legal documents. Extract the entities and relationships from the passage below, including parties, organizations, locations and referenced events.

Passage:
{{content}}

` + outputInstructions,

	"medical": `You analyze medical text. Extract the entities and relationships from the passage below, including organizations, products, topics and locations. Do not speculate beyond the text.

Passage:
{{content}}

` + outputInstructions,

	"financial": `You analyze financial text. Extract the entities and relationships from the passage below, including companies, products, markets and events.

Passage:
{{content}}

` + outputInstructions,

	"document": `Extract the entities and relationships from the text below.

Text:
{{content}}

` + outputInstructions,
}

const defaultPromptID = "document"

// PromptIDs returns the known prompt identifiers, sorted.
func PromptIDs() []string {
	ids := make([]string, 0, len(promptTemplates))
	for id := range promptTemplates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// selectPrompt resolves the template for a segment. An explicit prompt
// id wins and must exist; otherwise the content type selects one, and
// anything unknown falls back to the generic document template.
func selectPrompt(promptID, contentType string) (string, error) {
	if promptID != "" {
		template, ok := promptTemplates[promptID]
		if !ok {
			return "", &common.NotFoundError{Kind: "prompt", ID: promptID}
		}
		return template, nil
	}
	if template, ok := promptTemplates[strings.ToLower(contentType)]; ok {
		return template, nil
	}
	return promptTemplates[defaultPromptID], nil
}

// RenderPrompt fills a template's placeholders from the segment.
// Missing segment fields render as "unknown" so the model is not shown
// dangling placeholders.
func RenderPrompt(template string, segment *common.Segment) string {
	orUnknown := func(v string) string {
		if strings.TrimSpace(v) == "" {
			return "unknown"
		}
		return v
	}
	r := strings.NewReplacer(
		"{{content}}", segment.Content,
		"{{platform}}", orUnknown(segment.Platform),
		"{{author}}", orUnknown(segment.Author),
		"{{date}}", orUnknown(segment.Date),
		"{{engagement}}", orUnknown(segment.Engagement),
	)
	return r.Replace(template)
}
