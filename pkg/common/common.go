package common

import "time"

// NodeType classifies a graph node. The set below covers the types the
// extraction prompts ask for, but the field is open: custom types coming
// from manual imports are stored as-is.
type NodeType string

const (
	NodeTypeAuthor       NodeType = "author"
	NodeTypeBrand        NodeType = "brand"
	NodeTypeTopic        NodeType = "topic"
	NodeTypeHashtag      NodeType = "hashtag"
	NodeTypeInfluencer   NodeType = "influencer"
	NodeTypeLocation     NodeType = "location"
	NodeTypeOrganization NodeType = "organization"
	NodeTypeProduct      NodeType = "product"
	NodeTypeEvent        NodeType = "event"
)

// EdgeType classifies a graph edge. Unlike NodeType this enum is closed:
// unrecognized relationship types are mapped to EdgeTypeRelatedTo before
// persistence.
type EdgeType string

const (
	EdgeTypeMentions      EdgeType = "mentions"
	EdgeTypeSentiment     EdgeType = "sentiment"
	EdgeTypeInteractsWith EdgeType = "interacts_with"
	EdgeTypeCompetesWith  EdgeType = "competes_with"
	EdgeTypeDiscusses     EdgeType = "discusses"
	EdgeTypeSharesTopic   EdgeType = "shares_topic"
	EdgeTypeFollows       EdgeType = "follows"
	EdgeTypeCollaborates  EdgeType = "collaborates"
	EdgeTypeInfluences    EdgeType = "influences"
	EdgeTypeLocatedIn     EdgeType = "located_in"
	EdgeTypePartOf        EdgeType = "part_of"
	EdgeTypeRelatedTo     EdgeType = "related_to"
)

// ValidEdgeTypes lists every member of the closed edge enum.
var ValidEdgeTypes = []EdgeType{
	EdgeTypeMentions, EdgeTypeSentiment, EdgeTypeInteractsWith,
	EdgeTypeCompetesWith, EdgeTypeDiscusses, EdgeTypeSharesTopic,
	EdgeTypeFollows, EdgeTypeCollaborates, EdgeTypeInfluences,
	EdgeTypeLocatedIn, EdgeTypePartOf, EdgeTypeRelatedTo,
}

// IsValidEdgeType reports whether t is a member of the closed edge enum.
func IsValidEdgeType(t EdgeType) bool {
	for _, v := range ValidEdgeTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Properties is the open property bag carried by nodes and edges.
// Well-known keys are validated where they matter; unknown keys pass
// through storage untouched.
type Properties map[string]any

// Well-known property keys.
const (
	PropNormalizedName = "normalized_name"
	PropConfidence     = "confidence"
	PropSentimentScore = "sentiment_score"
	PropSentiment      = "sentiment"
	PropContext        = "context"
	PropPlatform       = "platform"
	PropTemporalData   = "temporal_data"
	PropGraphEntityID  = "graphEntityId"
)

// Confidence returns the confidence property, or def when absent or not
// numeric.
func (p Properties) Confidence(def float64) float64 {
	return p.Float(PropConfidence, def)
}

// Float reads a numeric property, tolerating the float64/float32/int
// shapes that survive a round-trip through JSON decoding.
func (p Properties) Float(key string, def float64) float64 {
	if p == nil {
		return def
	}
	switch v := p[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

// String reads a string property, or "" when absent.
func (p Properties) String(key string) string {
	if p == nil {
		return ""
	}
	if s, ok := p[key].(string); ok {
		return s
	}
	return ""
}

// Merge copies every key of other into p, later writes winning on
// collision. Returns p so callers can chain on a nil map.
func (p Properties) Merge(other Properties) Properties {
	if p == nil {
		p = make(Properties, len(other))
	}
	for k, v := range other {
		p[k] = v
	}
	return p
}

// Clone returns a shallow copy of p.
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// GraphNode is a typed entity in the persisted property graph.
//
// (DatasetID, Type, Label) is the natural dedup key before normalization.
// After normalization the graphEntityId property references the
// dictionary entity the node was resolved to.
type GraphNode struct {
	ID         string     `json:"id"`
	DatasetID  string     `json:"dataset_id"`
	DocumentID string     `json:"document_id,omitempty"`
	SegmentID  string     `json:"segment_id,omitempty"`
	Type       NodeType   `json:"type"`
	Label      string     `json:"label"`
	Properties Properties `json:"properties,omitempty"`
	CreatedAt  time.Time  `json:"created_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at,omitempty"`
}

// GraphEdge is a typed, weighted relationship between two nodes of the
// same dataset. At most one edge exists per (source, target, type) per
// dataset; repeated extractions merge weight and properties instead of
// duplicating.
type GraphEdge struct {
	ID           string     `json:"id"`
	DatasetID    string     `json:"dataset_id"`
	SourceNodeID string     `json:"source_node_id"`
	TargetNodeID string     `json:"target_node_id"`
	Type         EdgeType   `json:"type"`
	Weight       float64    `json:"weight"`
	Properties   Properties `json:"properties,omitempty"`
	CreatedAt    time.Time  `json:"created_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at,omitempty"`
}

// EntitySource records how a dictionary entity came to exist.
type EntitySource string

const (
	EntitySourceManual         EntitySource = "manual"
	EntitySourceImported       EntitySource = "imported"
	EntitySourceAutoDiscovered EntitySource = "auto_discovered"
	EntitySourceLearned        EntitySource = "learned"
)

// EntityMetadata carries usage telemetry and descriptive fields for a
// dictionary entity.
type EntityMetadata struct {
	UsageCount         int        `json:"usage_count,omitempty" yaml:"usage_count,omitempty"`
	LastUsed           *time.Time `json:"last_used,omitempty" yaml:"last_used,omitempty"`
	ExtractionPatterns []string   `json:"extraction_patterns,omitempty" yaml:"extraction_patterns,omitempty"`
	Description        string     `json:"description,omitempty" yaml:"description,omitempty"`
	Category           string     `json:"category,omitempty" yaml:"category,omitempty"`
	Tags               []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// DictionaryEntity is a canonical entity in the dictionary. EntityID is
// an optional URI-like global identifier (e.g. "wikidata:Q123") and is
// globally unique when present. CanonicalName is unique per EntityType.
type DictionaryEntity struct {
	ID              string         `json:"id" yaml:"id"`
	EntityID        string         `json:"entity_id,omitempty" yaml:"entity_id,omitempty"`
	EntityType      string         `json:"entity_type" yaml:"entity_type"`
	CanonicalName   string         `json:"canonical_name" yaml:"canonical_name"`
	ConfidenceScore float64        `json:"confidence_score" yaml:"confidence_score"`
	Source          EntitySource   `json:"source" yaml:"source"`
	Metadata        EntityMetadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Aliases         []EntityAlias  `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	CreatedAt       time.Time      `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt       time.Time      `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// EntityAlias maps variant surface text onto its owning entity.
// Alias text is unique per entity; re-adding an existing alias upserts
// the usage telemetry instead of inserting a duplicate row.
type EntityAlias struct {
	ID              string     `json:"id" yaml:"id"`
	EntityID        string     `json:"entity_id" yaml:"entity_id"`
	Alias           string     `json:"alias" yaml:"alias"`
	Language        string     `json:"language,omitempty" yaml:"language,omitempty"`
	Script          string     `json:"script,omitempty" yaml:"script,omitempty"`
	Type            string     `json:"type,omitempty" yaml:"type,omitempty"`
	SimilarityScore float64    `json:"similarity_score,omitempty" yaml:"similarity_score,omitempty"`
	MatchCount      int        `json:"match_count,omitempty" yaml:"match_count,omitempty"`
	LastMatchedAt   *time.Time `json:"last_matched_at,omitempty" yaml:"last_matched_at,omitempty"`
}

// NormalizationMethod identifies how a node merge was decided.
type NormalizationMethod string

const (
	NormalizationManual     NormalizationMethod = "manual"
	NormalizationFuzzyMatch NormalizationMethod = "fuzzy_match"
	NormalizationExactMatch NormalizationMethod = "exact_match"
	NormalizationLLM        NormalizationMethod = "llm_assisted"
)

// NormalizationLogEntry is one row of the append-only merge audit trail.
type NormalizationLogEntry struct {
	ID             string              `json:"id"`
	DatasetID      string              `json:"dataset_id"`
	OriginalEntity string              `json:"original_entity"`
	NormalizedTo   string              `json:"normalized_to"`
	Method         NormalizationMethod `json:"method"`
	Confidence     float64             `json:"confidence"`
	Timestamp      time.Time           `json:"timestamp"`
}

// SegmentStatus is the per-segment extraction state machine, persisted
// on the document store and used as the idempotency marker.
type SegmentStatus string

const (
	SegmentPending    SegmentStatus = "pending"
	SegmentProcessing SegmentStatus = "processing"
	SegmentCompleted  SegmentStatus = "completed"
	SegmentError      SegmentStatus = "error"
)

// Segment is one unit of extraction work: a contiguous slice of a
// document (or a single social post).
type Segment struct {
	ID         string        `json:"id"`
	DatasetID  string        `json:"dataset_id"`
	DocumentID string        `json:"document_id"`
	Content    string        `json:"content"`
	Platform   string        `json:"platform,omitempty"`
	Author     string        `json:"author,omitempty"`
	Date       string        `json:"date,omitempty"`
	Engagement string        `json:"engagement,omitempty"`
	Status     SegmentStatus `json:"status"`
}
