package reconcile

import (
	"fmt"
	"strings"
)

// SimilarityFunc scores two strings in [0,1], 1 meaning identical. The
// reconciler passes the candidate header first and the canonical name second.
type SimilarityFunc func(header, target string) float64

// Similarity metric names accepted by SimilarityByName.
const (
	MetricGestalt     = "gestalt"
	MetricLevenshtein = "levenshtein"
)

// SimilarityByName resolves a configured metric name.
func SimilarityByName(name string) (SimilarityFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", MetricGestalt:
		return GestaltRatio, nil
	case MetricLevenshtein:
		return LevenshteinRatio, nil
	}
	return nil, fmt.Errorf("unknown similarity metric %q", name)
}

// GestaltRatio is the Ratcliff/Obershelp similarity 2*M/T, where M is the
// number of characters in matching blocks and T the total length of both
// strings. Comparison is case-sensitive and the result depends on argument
// order: GestaltRatio(a, b) equals difflib.SequenceMatcher(None, a, b).ratio()
// for short strings (no junk heuristics).
func GestaltRatio(a, b string) float64 {
	ra := []rune(a)
	rb := []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1.0
	}
	return 2.0 * float64(matchingChars(ra, rb, 0, len(ra), 0, len(rb))) / float64(total)
}

// matchingChars sums the sizes of the matching blocks of a[alo:ahi] and b[blo:bhi].
func matchingChars(a, b []rune, alo, ahi, blo, bhi int) int {
	i, j, k := longestMatch(a, b, alo, ahi, blo, bhi)
	if k == 0 {
		return 0
	}
	return k +
		matchingChars(a, b, alo, i, blo, j) +
		matchingChars(a, b, i+k, ahi, j+k, bhi)
}

// longestMatch finds the longest common block. Among equally long blocks the
// one starting earliest in a wins, then earliest in b.
func longestMatch(a, b []rune, alo, ahi, blo, bhi int) (besti, bestj, bestk int) {
	besti, bestj = alo, blo
	prev := make([]int, bhi-blo+1)
	cur := make([]int, bhi-blo+1)
	for i := alo; i < ahi; i++ {
		for j := blo; j < bhi; j++ {
			if a[i] != b[j] {
				cur[j-blo+1] = 0
				continue
			}
			k := prev[j-blo] + 1
			cur[j-blo+1] = k
			if k > bestk {
				besti, bestj, bestk = i-k+1, j-k+1, k
			}
		}
		prev, cur = cur, prev
	}
	return besti, bestj, bestk
}

// LevenshteinRatio calculates similarity ratio (0-1). Case-sensitive.
func LevenshteinRatio(s1, s2 string) float64 {
	r1 := []rune(s1)
	r2 := []rune(s2)
	maxLen := max(len(r1), len(r2))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - (float64(levenshtein(r1, r2)) / float64(maxLen))
}

func levenshtein(r1, r2 []rune) int {
	len1, len2 := len(r1), len(r2)

	row := make([]int, len2+1)
	for i := 0; i <= len2; i++ {
		row[i] = i
	}

	for i := 1; i <= len1; i++ {
		prev := i
		for j := 1; j <= len2; j++ {
			val := row[j]
			if r1[i-1] == r2[j-1] {
				val = row[j-1]
			} else {
				val = min(row[j-1]+1, prev+1, row[j]+1)
			}
			row[j-1] = prev
			prev = val
		}
		row[len2] = prev
	}
	return row[len2]
}
