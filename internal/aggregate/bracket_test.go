package aggregate

import (
	"errors"
	"fmt"
	"testing"

	"dajam-backend/internal/apperr"
	"dajam-backend/internal/models"
)

func candidates(n int) []models.Candidate {
	out := make([]models.Candidate, n)
	for i := range out {
		out[i] = models.Candidate{ID: fmt.Sprintf("c%d", i), Name: fmt.Sprintf("Candidate %d", i)}
	}
	return out
}

func TestCreateBracket_PairsInOrder(t *testing.T) {
	matches, err := CreateBracket(candidates(8), 8)
	if err != nil {
		t.Fatalf("CreateBracket returned error: %v", err)
	}
	if len(matches) != 4 {
		t.Fatalf("expected 4 matches, got %d", len(matches))
	}
	for i, m := range matches {
		if m.Round != 8 || m.Position != i {
			t.Fatalf("match %d has round %d position %d", i, m.Round, m.Position)
		}
		if m.CandidateA.ID != fmt.Sprintf("c%d", 2*i) || m.CandidateB.ID != fmt.Sprintf("c%d", 2*i+1) {
			t.Fatalf("match %d pairs %s vs %s", i, m.CandidateA.ID, m.CandidateB.ID)
		}
		if m.Decided() {
			t.Fatalf("new match %s should be undecided", m.ID)
		}
	}
	if matches[0].ID != "r8-m0" {
		t.Fatalf("unexpected match id %q", matches[0].ID)
	}
}

func TestCreateBracket_RejectsBadSizes(t *testing.T) {
	cases := []struct {
		name  string
		count int
		size  int
	}{
		{"not power of two", 6, 6},
		{"too small", 1, 1},
		{"count mismatch", 7, 8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := CreateBracket(candidates(tc.count), tc.size)
			var verr *apperr.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestSelectWinner_RejectsForeignCandidate(t *testing.T) {
	matches, _ := CreateBracket(candidates(2), 2)
	if err := SelectWinner(&matches[0], "nobody"); err == nil {
		t.Fatalf("expected error for candidate outside the match")
	}
	if matches[0].Decided() {
		t.Fatalf("match should stay undecided after a rejected selection")
	}
}

func TestAdvance_EightToChampion(t *testing.T) {
	round, _ := CreateBracket(candidates(8), 8)
	var forest []models.BracketMatch
	forest = append(forest, round...)

	wantSizes := []int{4, 2, 1}
	for step, want := range wantSizes {
		for i := range round {
			if err := SelectWinner(&round[i], round[i].CandidateA.ID); err != nil {
				t.Fatalf("SelectWinner returned error: %v", err)
			}
		}
		copy(forest[len(forest)-len(round):], round)

		next, err := AdvanceToNextRound(round)
		if err != nil {
			t.Fatalf("step %d: AdvanceToNextRound returned error: %v", step, err)
		}
		if len(next) != want/2 && !(want == 1 && len(next) == 0) {
			t.Fatalf("step %d: got %d matches", step, len(next))
		}
		if want == 1 {
			break
		}
		forest = append(forest, next...)
		round = next
	}

	if len(round) != 1 {
		t.Fatalf("expected a single final, got %d matches", len(round))
	}
	final := round[0]
	done, err := AdvanceToNextRound(round)
	if err != nil || len(done) != 0 {
		t.Fatalf("expected final to advance to nothing, got %v %v", done, err)
	}

	champ, ok := Champion(final)
	if !ok || champ.ID != "c0" {
		t.Fatalf("expected c0 to be champion, got %+v", champ)
	}
	runnerUp, ok := RunnerUp(final)
	if !ok || runnerUp.ID != "c4" {
		t.Fatalf("expected c4 to be runner-up, got %+v", runnerUp)
	}

	semis := Semifinalists(forest)
	if len(semis) != 4 {
		t.Fatalf("expected 4 semifinalists, got %d", len(semis))
	}
	if semis[0].ID != "c0" || semis[1].ID != "c2" || semis[2].ID != "c4" || semis[3].ID != "c6" {
		t.Fatalf("unexpected semifinalists %+v", semis)
	}
}

func TestAdvance_RequiresDecidedMatches(t *testing.T) {
	round, _ := CreateBracket(candidates(4), 4)
	_ = SelectWinner(&round[0], round[0].CandidateB.ID)

	if _, err := AdvanceToNextRound(round); err == nil {
		t.Fatalf("expected error when a match has no winner")
	}
}

func TestAdvance_EmptyInput(t *testing.T) {
	next, err := AdvanceToNextRound(nil)
	if err != nil || len(next) != 0 {
		t.Fatalf("expected empty result, got %v %v", next, err)
	}
}
