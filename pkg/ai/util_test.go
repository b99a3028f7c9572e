package ai

import (
	"testing"
)

func TestUnmarshalFlexible_ObjectVariants(t *testing.T) {
	type entity struct {
		Label string `json:"label"`
		Type  string `json:"type,omitempty"`
	}

	tests := []struct {
		name  string
		input string
		want  entity
	}{
		{
			name:  "valid json object",
			input: `{"label":"Nike"}`,
			want:  entity{Label: "Nike"},
		},
		{
			name:  "unquoted key and single quotes",
			input: `{label: 'Nike'}`,
			want:  entity{Label: "Nike"},
		},
		{
			name:  "trailing comma",
			input: `{"label":"Nike",}`,
			want:  entity{Label: "Nike"},
		},
		{
			name:  "missing endbracket",
			input: `{"label":"Nike`,
			want:  entity{Label: "Nike"},
		},
		{
			name:  "stringified invalid json object",
			input: `"{label: 'Nike'}"`,
			want:  entity{Label: "Nike"},
		},
		{
			name:  "duplicate leading brace",
			input: "{\n{\n  \"label\": \"Nike\"\n}\n",
			want:  entity{Label: "Nike"},
		},
		{
			name:  "duplicate leading brace no newlines",
			input: `{ { "label": "Nike" }`,
			want:  entity{Label: "Nike"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got entity
			if err := UnmarshalFlexible(tc.input, &got); err != nil {
				t.Fatalf("UnmarshalFlexible() error = %v", err)
			}
			if got.Label != tc.want.Label || got.Type != tc.want.Type {
				t.Fatalf("UnmarshalFlexible() got = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestUnmarshalFlexible_ArrayVariants(t *testing.T) {
	type entity struct {
		Label string `json:"label"`
	}

	input := `[{label:'A'},{label:'B',}]`
	var got []entity
	if err := UnmarshalFlexible(input, &got); err != nil {
		t.Fatalf("UnmarshalFlexible() error = %v", err)
	}
	if len(got) != 2 || got[0].Label != "A" || got[1].Label != "B" {
		t.Fatalf("UnmarshalFlexible() got = %+v, want two entities A,B", got)
	}
}

func TestUnmarshalFlexible_Unrecoverable(t *testing.T) {
	type entity struct {
		Label string `json:"label"`
	}

	var got entity
	if err := UnmarshalFlexible("hello", &got); err == nil {
		t.Fatalf("UnmarshalFlexible() expected error for unrecoverable input")
	}
}

func TestUnmarshalFlexible_Stringified(t *testing.T) {
	type extraction struct {
		Label string   `json:"label"`
		Type  string   `json:"type"`
		Tags  []string `json:"tags"`
	}

	tests := []struct {
		name  string
		input string
		want  extraction
	}{
		{
			name:  "simple stringified",
			input: `"{ \"label\": \"Nike\", \"type\": \"brand\", \"tags\": [ \"sportswear\", \"footwear\" ] }"`,
			want:  extraction{Label: "Nike", Type: "brand", Tags: []string{"sportswear", "footwear"}},
		},
		{
			name:  "stringified with newlines",
			input: `"{\n  \"label\": \"Nike\",\n  \"type\": \"brand\",\n  \"tags\": [\"sportswear\", \"footwear\", \"running (incl. trail)\"]\n  }\n"`,
			want:  extraction{Label: "Nike", Type: "brand", Tags: []string{"sportswear", "footwear", "running (incl. trail)"}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got extraction
			if err := UnmarshalFlexible(tc.input, &got); err != nil {
				t.Fatalf("UnmarshalFlexible() error = %v", err)
			}
			if got.Label != tc.want.Label || got.Type != tc.want.Type {
				t.Fatalf("UnmarshalFlexible() got = %+v, want %+v", got, tc.want)
			}
			if len(got.Tags) != len(tc.want.Tags) {
				t.Fatalf("UnmarshalFlexible() tags length got = %d, want %d", len(got.Tags), len(tc.want.Tags))
			}
			for i := range got.Tags {
				if got.Tags[i] != tc.want.Tags[i] {
					t.Fatalf("UnmarshalFlexible() tags[%d] = %q, want %q", i, got.Tags[i], tc.want.Tags[i])
				}
			}
		})
	}
}
