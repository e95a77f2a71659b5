package aggregate

import (
	"fmt"

	"dajam-backend/internal/apperr"
	"dajam-backend/internal/models"
)

// Selection is one decided match, as recorded in a tournament's history and
// persisted as a bracket_selections row.
type Selection struct {
	MatchID  string `json:"match_id"`
	Round    int    `json:"round"`
	WinnerID string `json:"winner_id"`
}

// Tournament walks one participant through a bracket, match by match. All
// rounds played so far stay in the forest so that Undo can step back across
// a round boundary.
//
// Not safe for concurrent use.
type Tournament struct {
	size    int
	forest  []models.BracketMatch
	round   int
	pointer int
	history []Selection
}

func NewTournament(candidates []models.Candidate, size int) (*Tournament, error) {
	first, err := CreateBracket(candidates, size)
	if err != nil {
		return nil, err
	}
	return &Tournament{
		size:   size,
		forest: first,
		round:  size,
	}, nil
}

// ReplayTournament rebuilds a tournament from a participant's recorded
// selections, oldest first.
func ReplayTournament(candidates []models.Candidate, size int, selections []Selection) (*Tournament, error) {
	t, err := NewTournament(candidates, size)
	if err != nil {
		return nil, err
	}
	for _, sel := range selections {
		cur, ok := t.Current()
		if !ok {
			break
		}
		if sel.MatchID != cur.ID {
			return nil, &apperr.ValidationError{
				Op:      "replay tournament",
				Message: fmt.Sprintf("selection for %s does not match current match %s", sel.MatchID, cur.ID),
			}
		}
		if _, err := t.Select(sel.WinnerID); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Tournament) Size() int { return t.size }
func (t *Tournament) Round() int { return t.round }
func (t *Tournament) Pointer() int { return t.pointer }

// Matches returns a copy of every match created so far.
func (t *Tournament) Matches() []models.BracketMatch {
	out := make([]models.BracketMatch, len(t.forest))
	copy(out, t.forest)
	return out
}

// RoundMatches returns a copy of the current round.
func (t *Tournament) RoundMatches() []models.BracketMatch {
	return RoundMatches(t.forest, t.round)
}

func (t *Tournament) History() []Selection {
	out := make([]Selection, len(t.history))
	copy(out, t.history)
	return out
}

// Done reports whether the final has a winner.
func (t *Tournament) Done() bool {
	return t.pointer >= len(t.roundIndexes(t.round))
}

// Current returns the match waiting for a decision.
func (t *Tournament) Current() (models.BracketMatch, bool) {
	idx := t.roundIndexes(t.round)
	if t.pointer >= len(idx) {
		return models.BracketMatch{}, false
	}
	return t.forest[idx[t.pointer]], true
}

// Champion returns the tournament winner once Done.
func (t *Tournament) Champion() (models.Candidate, bool) {
	if !t.Done() || t.round != 2 {
		return models.Candidate{}, false
	}
	idx := t.roundIndexes(2)
	return t.forest[idx[0]].Winner()
}

// Select decides the current match. When it was the last match of its round
// the next round is built straight away; the final leaves the tournament
// done.
func (t *Tournament) Select(candidateID string) (Selection, error) {
	idx := t.roundIndexes(t.round)
	if t.pointer >= len(idx) {
		return Selection{}, &apperr.ValidationError{
			Op:      "select winner",
			Message: "tournament is already complete",
		}
	}

	m := &t.forest[idx[t.pointer]]
	if err := SelectWinner(m, candidateID); err != nil {
		return Selection{}, err
	}

	sel := Selection{MatchID: m.ID, Round: m.Round, WinnerID: candidateID}
	t.history = append(t.history, sel)
	t.pointer++

	if t.pointer == len(idx) {
		next, err := AdvanceToNextRound(t.RoundMatches())
		if err != nil {
			return Selection{}, err
		}
		if len(next) > 0 {
			t.forest = append(t.forest, next...)
			t.round = next[0].Round
			t.pointer = 0
		}
	}
	return sel, nil
}

// Undo reverts the most recent selection. It returns false when there is
// nothing to undo.
func (t *Tournament) Undo() bool {
	if len(t.history) == 0 {
		return false
	}
	t.history = t.history[:len(t.history)-1]

	if t.pointer > 0 {
		// Same round: step back and reopen that match.
		t.pointer--
		t.clearWinner(t.roundIndexes(t.round)[t.pointer])
		return true
	}

	// First match of a round: the last selection closed the previous round.
	// Drop the current round and reopen the previous round's last match.
	kept := t.forest[:0]
	for _, m := range t.forest {
		if m.Round != t.round {
			kept = append(kept, m)
		}
	}
	t.forest = kept
	t.round *= 2

	prev := t.roundIndexes(t.round)
	t.pointer = len(prev) - 1
	t.clearWinner(prev[t.pointer])
	return true
}

func (t *Tournament) clearWinner(i int) {
	t.forest[i].WinnerID = ""
}

// roundIndexes returns forest indexes of round in position order. Matches of
// a round are appended in position order, so forest order is enough.
func (t *Tournament) roundIndexes(round int) []int {
	var idx []int
	for i := range t.forest {
		if t.forest[i].Round == round {
			idx = append(idx, i)
		}
	}
	return idx
}
