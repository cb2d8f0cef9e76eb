// Package learn maintains the per-user learning stores: merchant patterns,
// category and payment-method preferences, and email-sender parsing
// patterns with global promotion.
package learn

import (
	"strings"
	"unicode"
)

// SimilarityThreshold is the minimum normalized similarity accepted by
// fuzzy merchant lookup.
const SimilarityThreshold = 0.75

// containmentSimilarity is assigned when one normalized string contains
// the other, regardless of edit distance ("SBUX" inside "Starbucks").
const containmentSimilarity = 0.85

// Words stripped before comparison; they carry no merchant identity.
var commonWords = map[string]bool{
	"the": true, "ltd": true, "pvt": true, "private": true, "limited": true,
	"india": true, "inc": true, "llc": true, "co": true, "corp": true,
	"store": true, "online": true,
}

// NormalizeMerchant lowercases, strips punctuation, and drops common
// filler words. Used as the MerchantPattern key.
func NormalizeMerchant(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	fields := strings.Fields(b.String())
	kept := fields[:0]
	for _, f := range fields {
		if !commonWords[f] {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, " ")
}

// Similarity computes normalized similarity between two merchant strings
// in [0,1]. Containment in either direction scores a flat 0.85; otherwise
// it is 1 - levenshtein/maxLen over the normalized forms.
func Similarity(a, b string) float64 {
	na, nb := NormalizeMerchant(a), NormalizeMerchant(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	// Compact forms catch abbreviations like "SBUX" in "Starbucks":
	// containment is checked on letters only, both directions.
	ca, cb := strings.ReplaceAll(na, " ", ""), strings.ReplaceAll(nb, " ", "")
	if contained(ca, cb) || contained(cb, ca) {
		return containmentSimilarity
	}

	dist := levenshtein(na, nb)
	maxLen := len([]rune(na))
	if l := len([]rune(nb)); l > maxLen {
		maxLen = l
	}
	return 1.0 - float64(dist)/float64(maxLen)
}

// Match reports whether two merchant strings are the same merchant under
// the fuzzy rules.
func Match(a, b string) (bool, float64) {
	sim := Similarity(a, b)
	return sim >= SimilarityThreshold, sim
}

// contained reports whether needle is "inside" haystack: a contiguous
// substring of at least 3 characters, or a short abbreviation (3-6
// characters) whose characters mostly appear in order, so "sbux" counts
// as contained in "starbucks".
func contained(needle, haystack string) bool {
	if len(needle) < 3 || len(needle) > len(haystack) {
		return false
	}
	if strings.Contains(haystack, needle) {
		return true
	}
	if len(needle) > 6 {
		return false
	}
	matched := 0
	i := 0
	for _, r := range haystack {
		if i < len(needle) && byte(r) == needle[i] {
			matched++
			i++
		}
	}
	// Skip at most one character of the abbreviation.
	return matched >= len(needle)-1 && matched >= 3
}

// levenshtein computes edit distance with two rolling rows.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
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
			curr[j] = min3(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
