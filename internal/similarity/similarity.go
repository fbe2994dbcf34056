// Package similarity scores how alike two free-text names are.
package similarity

import (
	"math"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// ContainmentScore is the ratio given when one name contains the other.
const ContainmentScore = 0.9

var editOptions = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

// Ratio returns a similarity in [0,1]. Case-insensitive equality is 1.0, containment in
// either direction is 0.9, and everything else is the normalized edit-distance ratio
// (maxLen - distance) / maxLen. It runs in O(len(a)*len(b)).
func Ratio(a, b string) float64 {
	a = normalize(a)
	b = normalize(b)

	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return ContainmentScore
	}

	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}

	distance := levenshtein.DistanceForStrings(ra, rb, editOptions)
	ratio := float64(maxLen-distance) / float64(maxLen)
	if ratio < 0 {
		return 0
	}
	return ratio
}

// Score is Ratio expressed as a 0-100 confidence.
func Score(a, b string) int {
	return Confidence(Ratio(a, b))
}

// Confidence converts a ratio to 0-100. Only an exact ratio of 1 maps to 100; near-equal
// long names that would round up are held at 99.
func Confidence(ratio float64) int {
	score := int(math.Round(ratio * 100))
	if score >= 100 && ratio < 1 {
		return 99
	}
	return score
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
