package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DataRow is one append-only contribution to a session. Table is the
// app-defined logical table ("votes", "word_entries", ...).
type DataRow struct {
	ID            uuid.UUID       `json:"id"`
	SessionID     uuid.UUID       `json:"session_id"`
	ParticipantID *uuid.UUID      `json:"participant_id,omitempty"`
	Table         string          `json:"table"`
	PayloadJSON   json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Submission is a queued row waiting for the worker pool to persist it.
type Submission struct {
	ID            uuid.UUID       `json:"id"`
	SessionID     uuid.UUID       `json:"session_id"`
	ParticipantID *uuid.UUID      `json:"participant_id,omitempty"`
	Table         string          `json:"table"`
	PayloadJSON   json.RawMessage `json:"payload"`
	QueuedAt      time.Time       `json:"queued_at"`
	Attempts      int             `json:"attempts"`
}

func (s *Submission) Row() *DataRow {
	return &DataRow{
		ID:            s.ID,
		SessionID:     s.SessionID,
		ParticipantID: s.ParticipantID,
		Table:         s.Table,
		PayloadJSON:   s.PayloadJSON,
	}
}

type SubmitRowRequest struct {
	Payload json.RawMessage `json:"payload"`
}

// Payload shapes per app. Rows carry one of these in PayloadJSON.

type VotePayload struct {
	OptionIndex   *int  `json:"option_index,omitempty"`
	OptionIndices []int `json:"option_indices,omitempty"`
}

// Indices merges both fields, the single index first. Validation and
// tallying both read a vote through it.
func (v VotePayload) Indices() []int {
	if v.OptionIndex == nil {
		return v.OptionIndices
	}
	return append([]int{*v.OptionIndex}, v.OptionIndices...)
}

type RankingPayload struct {
	Ranking []int `json:"ranking"`
}

type BracketSelectionPayload struct {
	MatchID  string `json:"match_id"`
	Round    int    `json:"round"`
	WinnerID string `json:"winner_id"`
}

type WordPayload struct {
	Word string `json:"word"`
}
