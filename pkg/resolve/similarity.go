package resolve

import "strings"

// maxCompareLen bounds the edit-distance computation; name keys longer than
// this are truncated before comparison.
const maxCompareLen = 64

// Similarity scores two normalized keys in [0, 1]. It is the maximum of a
// length-normalized bounded edit distance and a token overlap score that
// understands abbreviations ("univ" matches "university", "j" matches
// "john"). Exact equality scores 1.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}

	editScore := 1 - float64(editDistance(truncate(a), truncate(b)))/float64(max(len(a), len(b)))
	overlap := tokenOverlap(strings.Fields(a), strings.Fields(b))
	return max(editScore, overlap)
}

func truncate(s string) string {
	if len(s) > maxCompareLen {
		return s[:maxCompareLen]
	}
	return s
}

// editDistance is the classic Levenshtein DP over bytes (keys are folded to
// ASCII by normalization).
func editDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// tokenOverlap is a Dice coefficient over name tokens where a token also
// matches an abbreviation of itself: a single letter matches any token with
// the same initial, and a prefix of four or more letters matches the full
// token. "state univ" and "state university" overlap fully.
func tokenOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	used := make([]bool, len(b))
	matched := 0
	for _, ta := range a {
		for j, tb := range b {
			if used[j] || !tokensMatch(ta, tb) {
				continue
			}
			used[j] = true
			matched++
			break
		}
	}

	return float64(2*matched) / float64(len(a)+len(b))
}

func tokensMatch(a, b string) bool {
	if a == b {
		return true
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	if len(a) == 1 {
		return a[0] == b[0]
	}
	return len(a) >= 4 && strings.HasPrefix(b, a)
}
