package models

import "github.com/google/uuid"

// VoteResult is a derived, never-persisted view of one option.
// Score and Rank are only set for ranked polls.
type VoteResult struct {
	Option     string  `json:"option"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
	Score      int     `json:"score,omitempty"`
	Rank       int     `json:"rank,omitempty"`
}

type Candidate struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url,omitempty"`
}

// BracketMatch is one pairing. Round is the bracket size remaining
// (8, 4, 2); WinnerID is empty until decided.
type BracketMatch struct {
	ID         string    `json:"id"`
	Round      int       `json:"round"`
	Position   int       `json:"position"`
	CandidateA Candidate `json:"candidate_a"`
	CandidateB Candidate `json:"candidate_b"`
	WinnerID   string    `json:"winner_id,omitempty"`
}

func (m *BracketMatch) Decided() bool { return m.WinnerID != "" }

// Winner returns the winning candidate, or false when undecided.
func (m *BracketMatch) Winner() (Candidate, bool) {
	switch m.WinnerID {
	case "":
		return Candidate{}, false
	case m.CandidateA.ID:
		return m.CandidateA, true
	case m.CandidateB.ID:
		return m.CandidateB, true
	}
	return Candidate{}, false
}

// Loser returns the candidate that did not win, or false when undecided.
func (m *BracketMatch) Loser() (Candidate, bool) {
	switch m.WinnerID {
	case m.CandidateA.ID:
		return m.CandidateB, m.WinnerID != ""
	case m.CandidateB.ID:
		return m.CandidateA, m.WinnerID != ""
	}
	return Candidate{}, false
}

// WordCount is one entry of a word cloud.
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// SessionResults is what the results endpoint and the websocket hub push.
type SessionResults struct {
	SessionID        uuid.UUID    `json:"session_id"`
	AppType          AppType      `json:"app_type"`
	Kind             ResultKind   `json:"kind"`
	ParticipantCount int          `json:"participant_count"`
	TotalRows        int          `json:"total_rows"`
	Options          []VoteResult `json:"options,omitempty"`
	Words            []WordCount  `json:"words,omitempty"`
}
