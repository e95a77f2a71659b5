package aggregate

import (
	"sort"

	"dajam-backend/internal/models"
)

// Borda scores ranked ballots. Each ballot lists option indices from most to
// least preferred; with N options the first position earns N points and the
// last earns 1.
//
// A ballot that ranks only a prefix gives nothing to the options it leaves
// out. Duplicate and out-of-range indices inside a ballot are skipped and do
// not use up a place.
//
// Results are sorted by score, highest first. The sort is stable, so options
// with equal scores keep their input order and still get distinct,
// consecutive ranks.
func Borda(options []string, ballots [][]int) []models.VoteResult {
	n := len(options)
	scores := make([]int, n)
	firsts := make([]int, n)

	for _, ballot := range ballots {
		seen := make(map[int]bool, len(ballot))
		place := 0
		for _, idx := range ballot {
			if idx < 0 || idx >= n || seen[idx] {
				continue
			}
			seen[idx] = true
			scores[idx] += n - place
			if place == 0 {
				firsts[idx]++
			}
			place++
		}
	}

	maxScore := n * len(ballots)
	results := make([]models.VoteResult, n)
	for i, opt := range options {
		results[i] = models.VoteResult{
			Option:     opt,
			Count:      firsts[i],
			Score:      scores[i],
			Percentage: percentage(scores[i], maxScore),
		}
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})

	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}
