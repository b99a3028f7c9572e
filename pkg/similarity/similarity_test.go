package similarity

import "testing"

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want float64
	}{
		{
			name: "identical strings",
			a:    "Acme Corp",
			b:    "Acme Corp",
			want: 1.0,
		},
		{
			name: "both empty",
			a:    "",
			b:    "",
			want: 1.0,
		},
		{
			name: "case insensitive",
			a:    "NIKE",
			b:    "nike",
			want: 1.0,
		},
		{
			name: "completely different",
			a:    "abc",
			b:    "xyz",
			want: 0.0,
		},
		{
			name: "one edit in four characters",
			a:    "nike",
			b:    "mike",
			want: 0.75,
		},
		{
			name: "empty against non-empty",
			a:    "",
			b:    "abcd",
			want: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if got != tt.want {
				t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSimilaritySymmetric(t *testing.T) {
	pairs := [][2]string{
		{"Acme Corp", "AcmeCorp"},
		{"nike", "adidas"},
		{"", "something"},
		{"Coca-Cola", "coca cola"},
	}

	for _, p := range pairs {
		ab := Similarity(p[0], p[1])
		ba := Similarity(p[1], p[0])
		if ab != ba {
			t.Errorf("Similarity(%q, %q) = %v but reversed = %v", p[0], p[1], ab, ba)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a    string
		b    string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"acme", "acme", 0},
	}

	for _, tt := range tests {
		if got := Levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("Levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "drops short tokens",
			text: "I am at the Acme HQ",
			want: []string{"the", "acme"},
		},
		{
			name: "splits on punctuation",
			text: "coca-cola, pepsi!",
			want: []string{"coca", "cola", "pepsi"},
		},
		{
			name: "empty input",
			text: "",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("Tokenize(%q) = %v, want %v", tt.text, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Tokenize(%q)[%d] = %q, want %q", tt.text, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestMatchPhrase(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		text      string
		wantScore float64
	}{
		{
			name:      "exact token sequence",
			candidate: "Acme Corp",
			text:      "I really love Acme Corp products",
			wantScore: 1.0,
		},
		{
			name:      "single token with one edit",
			candidate: "AcmeCorp",
			text:      "I love AcmeCorps products",
			wantScore: 1.0,
		},
		{
			name:      "partial window match",
			candidate: "Acme Global Corp",
			text:      "news about Acme Global Inc today",
			wantScore: 2.0 / 3.0,
		},
		{
			name:      "no usable tokens",
			candidate: "a b",
			text:      "whatever text",
			wantScore: 0,
		},
		{
			name:      "text shorter than candidate",
			candidate: "one two three four",
			text:      "one two",
			wantScore: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchPhrase(tt.candidate, tt.text)
			if got.Score != tt.wantScore {
				t.Errorf("MatchPhrase(%q, %q).Score = %v, want %v", tt.candidate, tt.text, got.Score, tt.wantScore)
			}
			if tt.wantScore > 0 && got.MatchedText == "" {
				t.Errorf("MatchPhrase(%q, %q) returned empty MatchedText", tt.candidate, tt.text)
			}
		})
	}
}
