// Package aggregate derives results from a session's data rows. Everything
// here is pure: callers hand in rows in insertion order and get a fresh view
// back. Nothing is patched incrementally.
package aggregate

import (
	"math"

	"dajam-backend/internal/models"
)

type Mode string

const (
	ModeSingle   Mode = "single"
	ModeMultiple Mode = "multiple"
)

func (m Mode) Valid() bool {
	return m == ModeSingle || m == ModeMultiple
}

// Vote is one row of a poll. Single-choice rows carry one index.
type Vote struct {
	Selected []int
}

func SingleVote(index int) Vote { return Vote{Selected: []int{index}} }

func MultiVote(indices ...int) Vote { return Vote{Selected: indices} }

// Tally counts votes per option, keeping the order of options.
//
// The denominator of Percentage is the number of rows (voters), so in
// multiple mode percentages can add up to more than 100. Out-of-range
// indices are ignored but the row still counts as a voter.
func Tally(options []string, votes []Vote, mode Mode) []models.VoteResult {
	counts := make([]int, len(options))

	for _, v := range votes {
		if mode == ModeMultiple {
			for _, idx := range v.Selected {
				if idx >= 0 && idx < len(counts) {
					counts[idx]++
				}
			}
			continue
		}
		if len(v.Selected) == 0 {
			continue
		}
		if idx := v.Selected[0]; idx >= 0 && idx < len(counts) {
			counts[idx]++
		}
	}

	total := len(votes)
	results := make([]models.VoteResult, len(options))
	for i, opt := range options {
		results[i] = models.VoteResult{
			Option:     opt,
			Count:      counts[i],
			Percentage: percentage(counts[i], total),
		}
	}
	return results
}

// TotalCount sums the counts of results.
func TotalCount(results []models.VoteResult) int {
	sum := 0
	for _, r := range results {
		sum += r.Count
	}
	return sum
}

// RoundPercentage rounds p for display. Aggregation itself never rounds.
func RoundPercentage(p float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(p*scale) / scale
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
