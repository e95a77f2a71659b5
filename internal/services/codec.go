package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"dajam-backend/internal/aggregate"
	"dajam-backend/internal/apperr"
	"dajam-backend/internal/models"
)

// Codec converts between an app's typed value and the opaque JSON stored in
// sessions, participants and rows.
type Codec[T any] interface {
	Encode(v T) (json.RawMessage, error)
	Decode(raw json.RawMessage) (T, error)
}

type JSONCodec[T any] struct{}

func (JSONCodec[T]) Encode(v T) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T: %w", v, err)
	}
	return data, nil
}

// Decode treats empty input and JSON null as the zero value.
func (JSONCodec[T]) Decode(raw json.RawMessage) (T, error) {
	var v T
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return v, nil
	}
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return v, fmt.Errorf("failed to decode %T: %w", v, err)
	}
	return v, nil
}

func DecodeConfig[T any](s *models.Session) (T, error) {
	return JSONCodec[T]{}.Decode(s.ConfigJSON)
}

func DecodeMetadata[T any](p *models.Participant) (T, error) {
	return JSONCodec[T]{}.Decode(p.MetadataJSON)
}

func DecodePayload[T any](row *models.DataRow) (T, error) {
	return JSONCodec[T]{}.Decode(row.PayloadJSON)
}

type PollConfig struct {
	Options []string       `json:"options"`
	Mode    aggregate.Mode `json:"mode"`
}

type RankingConfig struct {
	Options []string `json:"options"`
}

type TournamentConfig struct {
	Candidates  []models.Candidate `json:"candidates"`
	BracketSize int                `json:"bracket_size"`
}

// Size is the bracket size, defaulting to the number of candidates.
func (c TournamentConfig) Size() int {
	if c.BracketSize > 0 {
		return c.BracketSize
	}
	return len(c.Candidates)
}

// Progress is the participant metadata used to resume a multi-step app
// where the participant left off.
type Progress struct {
	Round   int  `json:"round,omitempty"`
	Pointer int  `json:"pointer"`
	Done    bool `json:"done,omitempty"`
}

type ProgressMetadata struct {
	Progress *Progress `json:"progress,omitempty"`
}

const maxWordLength = 64

// normalizeJSON defaults empty input to {} and rejects anything that is not
// valid JSON.
func normalizeJSON(op, field string, raw json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(raw) {
		return nil, &apperr.ValidationError{
			Op:      op,
			Message: field + " must be valid JSON",
			Fields:  map[string]string{field: "must be valid JSON"},
		}
	}
	return raw, nil
}

// ValidateConfig checks that raw is a usable config for appType.
func ValidateConfig(appType models.AppType, raw json.RawMessage) error {
	const op = "validate config"
	invalid := func(field, msg string) error {
		return &apperr.ValidationError{Op: op, Message: msg, Fields: map[string]string{field: msg}}
	}

	switch appType {
	case models.AppPoll:
		cfg, err := JSONCodec[PollConfig]{}.Decode(raw)
		if err != nil {
			return invalid("config", "poll config is malformed")
		}
		if len(cfg.Options) < 2 {
			return invalid("options", "a poll needs at least two options")
		}
		if cfg.Mode != "" && !cfg.Mode.Valid() {
			return invalid("mode", "mode must be single or multiple")
		}
	case models.AppRanking:
		cfg, err := JSONCodec[RankingConfig]{}.Decode(raw)
		if err != nil {
			return invalid("config", "ranking config is malformed")
		}
		if len(cfg.Options) < 2 {
			return invalid("options", "a ranking needs at least two options")
		}
	case models.AppTournament:
		cfg, err := JSONCodec[TournamentConfig]{}.Decode(raw)
		if err != nil {
			return invalid("config", "tournament config is malformed")
		}
		seen := make(map[string]bool, len(cfg.Candidates))
		for _, c := range cfg.Candidates {
			if c.ID == "" || seen[c.ID] {
				return invalid("candidates", "candidate ids must be present and unique")
			}
			seen[c.ID] = true
		}
		if _, err := aggregate.CreateBracket(cfg.Candidates, cfg.Size()); err != nil {
			return err
		}
	}
	return nil
}

// ValidatePayload checks a row payload against the session's app and config.
func ValidatePayload(s *models.Session, raw json.RawMessage) error {
	const op = "validate payload"
	invalid := func(msg string) error {
		return &apperr.ValidationError{Op: op, Message: msg, Fields: map[string]string{"payload": msg}}
	}

	switch s.AppType {
	case models.AppPoll:
		cfg, err := DecodeConfig[PollConfig](s)
		if err != nil {
			return err
		}
		vote, err := JSONCodec[models.VotePayload]{}.Decode(raw)
		if err != nil {
			return invalid("vote is malformed")
		}
		indices := vote.Indices()
		// An empty multiple-choice vote is a voter who picked nothing.
		if len(indices) == 0 && cfg.Mode != aggregate.ModeMultiple {
			return invalid("vote selects no option")
		}
		if cfg.Mode != aggregate.ModeMultiple && len(indices) > 1 {
			return invalid("single-choice poll accepts one option")
		}
		for _, idx := range indices {
			if idx < 0 || idx >= len(cfg.Options) {
				return invalid(fmt.Sprintf("option %d does not exist", idx))
			}
		}
	case models.AppRanking:
		cfg, err := DecodeConfig[RankingConfig](s)
		if err != nil {
			return err
		}
		ranking, err := JSONCodec[models.RankingPayload]{}.Decode(raw)
		if err != nil {
			return invalid("ranking is malformed")
		}
		if len(ranking.Ranking) == 0 {
			return invalid("ranking is empty")
		}
		for _, idx := range ranking.Ranking {
			if idx < 0 || idx >= len(cfg.Options) {
				return invalid(fmt.Sprintf("option %d does not exist", idx))
			}
		}
	case models.AppTournament:
		cfg, err := DecodeConfig[TournamentConfig](s)
		if err != nil {
			return err
		}
		sel, err := JSONCodec[models.BracketSelectionPayload]{}.Decode(raw)
		if err != nil {
			return invalid("selection is malformed")
		}
		if sel.MatchID == "" || !aggregate.IsPowerOfTwo(sel.Round) || sel.Round > cfg.Size() {
			return invalid("selection names no valid match")
		}
		found := false
		for _, c := range cfg.Candidates {
			if c.ID == sel.WinnerID {
				found = true
				break
			}
		}
		if !found {
			return invalid("winner is not a candidate")
		}
	case models.AppWordCloud:
		word, err := JSONCodec[models.WordPayload]{}.Decode(raw)
		if err != nil {
			return invalid("word entry is malformed")
		}
		w := aggregate.NormalizeWord(word.Word)
		if w == "" {
			return invalid("word is empty")
		}
		if utf8.RuneCountInString(w) > maxWordLength {
			return invalid(fmt.Sprintf("word is longer than %d characters", maxWordLength))
		}
	}
	return nil
}
