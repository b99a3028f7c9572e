package extraction

import (
	"strings"

	"github.com/signalhouse/magpie/pkg/common"
)

// Models rarely stick to the exact type vocabulary the prompt asks for.
// The synonym tables below fold the common variants onto the canonical
// enums; anything still unrecognized falls back to a safe default
// instead of failing the segment.

var nodeTypeSynonyms = map[string]common.NodeType{
	"person":      common.NodeTypeAuthor,
	"user":        common.NodeTypeAuthor,
	"account":     common.NodeTypeAuthor,
	"writer":      common.NodeTypeAuthor,
	"company":     common.NodeTypeOrganization,
	"corporation": common.NodeTypeOrganization,
	"business":    common.NodeTypeOrganization,
	"org":         common.NodeTypeOrganization,
	"institution": common.NodeTypeOrganization,
	"place":       common.NodeTypeLocation,
	"city":        common.NodeTypeLocation,
	"country":     common.NodeTypeLocation,
	"region":      common.NodeTypeLocation,
	"tag":         common.NodeTypeHashtag,
	"keyword":     common.NodeTypeTopic,
	"subject":     common.NodeTypeTopic,
	"theme":       common.NodeTypeTopic,
	"concept":     common.NodeTypeTopic,
	"item":        common.NodeTypeProduct,
	"goods":       common.NodeTypeProduct,
	"service":     common.NodeTypeProduct,
	"celebrity":   common.NodeTypeInfluencer,
	"creator":     common.NodeTypeInfluencer,
	"conference":  common.NodeTypeEvent,
	"happening":   common.NodeTypeEvent,
}

var validNodeTypes = map[common.NodeType]bool{
	common.NodeTypeAuthor:       true,
	common.NodeTypeBrand:        true,
	common.NodeTypeTopic:        true,
	common.NodeTypeHashtag:      true,
	common.NodeTypeInfluencer:   true,
	common.NodeTypeLocation:     true,
	common.NodeTypeOrganization: true,
	common.NodeTypeProduct:      true,
	common.NodeTypeEvent:        true,
}

// MapNodeType folds a raw model-reported type onto the canonical node
// type set. The second return reports whether the input was recognized;
// unrecognized input maps to organization.
func MapNodeType(raw string) (common.NodeType, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, " ", "_")
	if validNodeTypes[common.NodeType(key)] {
		return common.NodeType(key), true
	}
	if mapped, ok := nodeTypeSynonyms[key]; ok {
		return mapped, true
	}
	return common.NodeTypeOrganization, false
}

var edgeTypeSynonyms = map[string]common.EdgeType{
	"refers_to":         common.EdgeTypeMentions,
	"references":        common.EdgeTypeMentions,
	"talks_about":       common.EdgeTypeDiscusses,
	"discusses_about":   common.EdgeTypeDiscusses,
	"sentiment_toward":  common.EdgeTypeSentiment,
	"feels_about":       common.EdgeTypeSentiment,
	"competes":          common.EdgeTypeCompetesWith,
	"competitor_of":     common.EdgeTypeCompetesWith,
	"rival_of":          common.EdgeTypeCompetesWith,
	"works_with":        common.EdgeTypeCollaborates,
	"partners_with":     common.EdgeTypeCollaborates,
	"collaborates_with": common.EdgeTypeCollaborates,
	"interacts":         common.EdgeTypeInteractsWith,
	"replies_to":        common.EdgeTypeInteractsWith,
	"located":           common.EdgeTypeLocatedIn,
	"based_in":          common.EdgeTypeLocatedIn,
	"member_of":         common.EdgeTypePartOf,
	"belongs_to":        common.EdgeTypePartOf,
	"subsidiary_of":     common.EdgeTypePartOf,
	"shares_topic_with": common.EdgeTypeSharesTopic,
	"influenced":        common.EdgeTypeInfluences,
	"endorses":          common.EdgeTypeInfluences,
	"offers":            common.EdgeTypeRelatedTo,
	"uses_hashtag":      common.EdgeTypeRelatedTo,
	"associated_with":   common.EdgeTypeRelatedTo,
}

// MapEdgeType folds a raw relationship type onto the closed edge enum.
// Unrecognized input maps to related_to.
func MapEdgeType(raw string) (common.EdgeType, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")
	if common.IsValidEdgeType(common.EdgeType(key)) {
		return common.EdgeType(key), true
	}
	if mapped, ok := edgeTypeSynonyms[key]; ok {
		return mapped, true
	}
	return common.EdgeTypeRelatedTo, false
}
