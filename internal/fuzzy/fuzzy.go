// Package fuzzy suggests the closest known word for a mistyped one.
package fuzzy

import "strings"

// Distance is the case-insensitive Levenshtein distance between a and b,
// counted in runes.
func Distance(a, b string) int {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))
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

// Similarity scores a and b from 0 (unrelated) to 1 (equal ignoring case).
func Similarity(a, b string) float64 {
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1
	}
	return 1 - float64(Distance(a, b))/float64(longest)
}

// Closest returns the candidate most similar to input. A prefix match wins
// outright; otherwise the best candidate must reach minScore.
func Closest(input string, candidates []string, minScore float64) (string, bool) {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return "", false
	}

	best, bestScore := "", 0.0
	for _, c := range candidates {
		if strings.HasPrefix(strings.ToLower(c), input) {
			return c, true
		}
		if score := Similarity(c, input); score > bestScore {
			best, bestScore = c, score
		}
	}
	if bestScore < minScore {
		return "", false
	}
	return best, true
}
