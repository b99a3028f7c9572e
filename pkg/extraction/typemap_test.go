package extraction

import (
	"testing"

	"github.com/signalhouse/magpie/pkg/common"
)

func TestMapNodeType(t *testing.T) {
	tests := []struct {
		raw   string
		want  common.NodeType
		known bool
	}{
		{"brand", common.NodeTypeBrand, true},
		{"Brand", common.NodeTypeBrand, true},
		{"  topic  ", common.NodeTypeTopic, true},
		{"person", common.NodeTypeAuthor, true},
		{"company", common.NodeTypeOrganization, true},
		{"Corporation", common.NodeTypeOrganization, true},
		{"city", common.NodeTypeLocation, true},
		{"keyword", common.NodeTypeTopic, true},
		{"widget", common.NodeTypeOrganization, false},
		{"", common.NodeTypeOrganization, false},
	}
	for _, tt := range tests {
		got, known := MapNodeType(tt.raw)
		if got != tt.want || known != tt.known {
			t.Errorf("MapNodeType(%q) = (%s, %v), want (%s, %v)", tt.raw, got, known, tt.want, tt.known)
		}
	}
}

func TestMapEdgeType(t *testing.T) {
	tests := []struct {
		raw   string
		want  common.EdgeType
		known bool
	}{
		{"mentions", common.EdgeTypeMentions, true},
		{"Competes With", common.EdgeTypeCompetesWith, true},
		{"competitor_of", common.EdgeTypeCompetesWith, true},
		{"works-with", common.EdgeTypeCollaborates, true},
		{"based_in", common.EdgeTypeLocatedIn, true},
		{"offers", common.EdgeTypeRelatedTo, true},
		{"uses_hashtag", common.EdgeTypeRelatedTo, true},
		{"zaps", common.EdgeTypeRelatedTo, false},
	}
	for _, tt := range tests {
		got, known := MapEdgeType(tt.raw)
		if got != tt.want || known != tt.known {
			t.Errorf("MapEdgeType(%q) = (%s, %v), want (%s, %v)", tt.raw, got, known, tt.want, tt.known)
		}
	}
}
