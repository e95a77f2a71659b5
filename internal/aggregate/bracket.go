package aggregate

import (
	"fmt"
	"sort"

	"dajam-backend/internal/apperr"
	"dajam-backend/internal/models"
)

// MatchID names a match by its round and position, e.g. "r8-m0".
func MatchID(round, position int) string {
	return fmt.Sprintf("r%d-m%d", round, position)
}

func IsPowerOfTwo(n int) bool {
	return n >= 2 && n&(n-1) == 0
}

// CreateBracket pairs candidates in input order, (0,1), (2,3), ..., into the
// first round. The round value equals size.
func CreateBracket(candidates []models.Candidate, size int) ([]models.BracketMatch, error) {
	if !IsPowerOfTwo(size) {
		return nil, &apperr.ValidationError{
			Op:      "create bracket",
			Message: fmt.Sprintf("bracket size %d is not a power of two", size),
			Fields:  map[string]string{"bracket_size": "must be a power of two"},
		}
	}
	if len(candidates) != size {
		return nil, &apperr.ValidationError{
			Op:      "create bracket",
			Message: fmt.Sprintf("got %d candidates for a bracket of %d", len(candidates), size),
			Fields:  map[string]string{"candidates": "count must equal bracket size"},
		}
	}

	matches := make([]models.BracketMatch, 0, size/2)
	for i := 0; i < size; i += 2 {
		pos := i / 2
		matches = append(matches, models.BracketMatch{
			ID:         MatchID(size, pos),
			Round:      size,
			Position:   pos,
			CandidateA: candidates[i],
			CandidateB: candidates[i+1],
		})
	}
	return matches, nil
}

// SelectWinner records candidateID as the winner of m. The id must belong to
// one of the two candidates.
func SelectWinner(m *models.BracketMatch, candidateID string) error {
	if candidateID == "" || (candidateID != m.CandidateA.ID && candidateID != m.CandidateB.ID) {
		return &apperr.ValidationError{
			Op:      "select winner",
			Message: fmt.Sprintf("candidate %q is not in match %s", candidateID, m.ID),
		}
	}
	m.WinnerID = candidateID
	return nil
}

// AdvanceToNextRound pairs the winners of current, (m0,m1), (m2,m3), ..., into
// a round half the size. A round with a single match is the final, so the
// result is empty: the tournament is complete.
func AdvanceToNextRound(current []models.BracketMatch) ([]models.BracketMatch, error) {
	if len(current) <= 1 {
		return nil, nil
	}
	if len(current)%2 != 0 {
		return nil, &apperr.ValidationError{
			Op:      "advance round",
			Message: fmt.Sprintf("round has an odd number of matches (%d)", len(current)),
		}
	}

	winners := make([]models.Candidate, 0, len(current))
	for i := range current {
		w, ok := current[i].Winner()
		if !ok {
			return nil, &apperr.ValidationError{
				Op:      "advance round",
				Message: fmt.Sprintf("match %s has no winner", current[i].ID),
			}
		}
		winners = append(winners, w)
	}

	round := current[0].Round / 2
	next := make([]models.BracketMatch, 0, len(winners)/2)
	for i := 0; i < len(winners); i += 2 {
		pos := i / 2
		next = append(next, models.BracketMatch{
			ID:         MatchID(round, pos),
			Round:      round,
			Position:   pos,
			CandidateA: winners[i],
			CandidateB: winners[i+1],
		})
	}
	return next, nil
}

// RoundMatches returns the matches of forest that belong to round, in
// position order.
func RoundMatches(forest []models.BracketMatch, round int) []models.BracketMatch {
	var out []models.BracketMatch
	for _, m := range forest {
		if m.Round == round {
			out = append(out, m)
		}
	}
	sortByPosition(out)
	return out
}

// Champion is the winner of the final match.
func Champion(final models.BracketMatch) (models.Candidate, bool) {
	return final.Winner()
}

// RunnerUp is the other finalist.
func RunnerUp(final models.BracketMatch) (models.Candidate, bool) {
	return final.Loser()
}

// Semifinalists are the four candidates of the round where round == 4, if
// the bracket was large enough to have one.
func Semifinalists(forest []models.BracketMatch) []models.Candidate {
	semis := RoundMatches(forest, 4)
	out := make([]models.Candidate, 0, len(semis)*2)
	for _, m := range semis {
		out = append(out, m.CandidateA, m.CandidateB)
	}
	return out
}

func sortByPosition(ms []models.BracketMatch) {
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].Position < ms[j].Position })
}
