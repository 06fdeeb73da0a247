package graph

import "github.com/hbollon/go-edlib"

// Suggest returns the known project id most similar to a failed
// lookup, for "did you mean" hints on a locate()/lookup() miss —
// grounded in the teacher's own fuzzy_matcher.go, which scores
// candidate names with edlib.StringsSimilarity(..., JaroWinkler). Only
// a match at or above the threshold is returned.
func (g *Graph) Suggest(id string) (string, bool) {
	const threshold = 0.75
	best := ""
	bestScore := 0.0
	for _, p := range g.All() {
		score, err := edlib.StringsSimilarity(id, p.ID, edlib.JaroWinkler)
		if err != nil {
			continue
		}
		if score > bestScore {
			bestScore = score
			best = p.ID
		}
	}
	if bestScore >= threshold {
		return best, true
	}
	return "", false
}
