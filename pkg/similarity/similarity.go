// Package similarity provides the Levenshtein-based string similarity
// shared by dictionary matching, duplicate detection and alias
// discovery. All functions are pure and safe for concurrent use.
package similarity

import (
	"regexp"
	"strings"
)

var tokenSplitRe = regexp.MustCompile(`\W+`)

// Similarity scores two strings in [0,1] as
// (maxLen - levenshtein(a,b)) / maxLen over case-normalized input.
// It is symmetric, Similarity(a,a) == 1 and Similarity("","") == 1.
func Similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))

	if a == b {
		return 1.0
	}

	maxLen := max(len([]rune(a)), len([]rune(b)))
	if maxLen == 0 {
		return 1.0
	}

	dist := Levenshtein(a, b)
	return float64(maxLen-dist) / float64(maxLen)
}

// Levenshtein computes the edit distance between a and b using the
// two-row dynamic programming formulation.
func Levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)

	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

// Tokenize splits text on non-word characters, lowercases the tokens
// and drops tokens of length <= 2. Short connective words rarely carry
// entity signal and only inflate window scores.
func Tokenize(text string) []string {
	parts := tokenSplitRe.Split(strings.ToLower(text), -1)
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if len(p) > 2 {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

// TokenSimilarity scores two strings by comparing their joined token
// streams, so punctuation and casing differences do not count as edits.
func TokenSimilarity(a, b string) float64 {
	ta := strings.Join(Tokenize(a), " ")
	tb := strings.Join(Tokenize(b), " ")
	return Similarity(ta, tb)
}

// PhraseMatch is the result of sliding a candidate phrase across a text.
type PhraseMatch struct {
	Score       float64
	MatchedText string
}

// MatchPhrase slides an N-token window (N = token count of candidate)
// across the token stream of text. An exact token-sequence hit scores
// 1.0; otherwise tokens within Levenshtein distance 1 of their window
// position count as matched and the score is matchedTokens/N. Returns
// the best window found, or a zero score when the candidate or text has
// no usable tokens.
func MatchPhrase(candidate, text string) PhraseMatch {
	candTokens := Tokenize(candidate)
	textTokens := Tokenize(text)

	n := len(candTokens)
	if n == 0 || len(textTokens) < n {
		return PhraseMatch{}
	}

	best := PhraseMatch{}
	for i := 0; i+n <= len(textTokens); i++ {
		window := textTokens[i : i+n]

		matched := 0
		for j := range candTokens {
			if window[j] == candTokens[j] {
				matched++
				continue
			}
			if Levenshtein(window[j], candTokens[j]) <= 1 {
				matched++
			}
		}

		score := float64(matched) / float64(n)
		if exactSequence(window, candTokens) {
			score = 1.0
		}
		if score > best.Score {
			best = PhraseMatch{
				Score:       score,
				MatchedText: strings.Join(window, " "),
			}
		}
		if best.Score == 1.0 {
			break
		}
	}

	return best
}

func exactSequence(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
