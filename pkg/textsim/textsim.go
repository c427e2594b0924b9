// Package textsim computes similarity between two scene descriptions.
// The ratio feeds the novelty filter that decides whether a fresh
// description is different enough from the last spoken one to announce.
package textsim

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Ratio returns a similarity score in [0, 1] between two texts using
// sequence matching over lowercased word tokens. Identical texts score
// 1.0, texts with no shared words score 0.0. Comparison is
// case-insensitive and whitespace-normalized.
func Ratio(a, b string) float64 {
	ta := tokenize(a)
	tb := tokenize(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1.0
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}
	return difflib.NewMatcher(ta, tb).Ratio()
}

func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}
