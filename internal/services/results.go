package services

import (
	"context"

	"github.com/google/uuid"

	"dajam-backend/internal/aggregate"
	"dajam-backend/internal/models"
)

// ResultsService turns a session's rows into the aggregated view clients
// render. It always recomputes from the full row set.
type ResultsService struct {
	directory *SessionDirectory
}

func NewResultsService(directory *SessionDirectory) *ResultsService {
	return &ResultsService{directory: directory}
}

func (s *ResultsService) Compute(ctx context.Context, sessionID uuid.UUID) (*models.SessionResults, error) {
	session, err := s.directory.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	participants, err := s.directory.ReloadParticipants(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rows, err := s.directory.ReloadData(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return DeriveResults(session, participants, rows)
}

// DeriveResults aggregates rows according to the session's app type. Rows
// from banned participants stay stored but are left out here, as are rows
// that do not decode.
func DeriveResults(session *models.Session, participants []*models.Participant, rows []*models.DataRow) (*models.SessionResults, error) {
	kind := session.AppType.ResultKind()
	res := &models.SessionResults{
		SessionID:        session.ID,
		AppType:          session.AppType,
		Kind:             kind,
		ParticipantCount: len(models.FilterActive(participants)),
	}

	banned := make(map[uuid.UUID]bool)
	for _, p := range participants {
		if p.IsBanned {
			banned[p.ID] = true
		}
	}

	table := session.AppType.DataTable()
	var counted []*models.DataRow
	for _, r := range rows {
		if r.Table != table {
			continue
		}
		if r.ParticipantID != nil && banned[*r.ParticipantID] {
			continue
		}
		counted = append(counted, r)
	}

	switch kind {
	case models.ResultTally:
		cfg, err := DecodeConfig[PollConfig](session)
		if err != nil {
			return nil, err
		}
		mode := cfg.Mode
		if mode == "" {
			mode = aggregate.ModeSingle
		}
		var votes []aggregate.Vote
		for _, r := range counted {
			v, err := DecodePayload[models.VotePayload](r)
			if err != nil {
				continue
			}
			votes = append(votes, toVote(v))
		}
		res.TotalRows = len(votes)
		res.Options = aggregate.Tally(cfg.Options, votes, mode)

	case models.ResultBorda:
		cfg, err := DecodeConfig[RankingConfig](session)
		if err != nil {
			return nil, err
		}
		var ballots [][]int
		for _, r := range counted {
			b, err := DecodePayload[models.RankingPayload](r)
			if err != nil {
				continue
			}
			ballots = append(ballots, b.Ranking)
		}
		res.TotalRows = len(ballots)
		res.Options = aggregate.Borda(cfg.Options, ballots)

	case models.ResultChampions:
		cfg, err := DecodeConfig[TournamentConfig](session)
		if err != nil {
			return nil, err
		}
		var picks []aggregate.ChampionPick
		for _, r := range counted {
			sel, err := DecodePayload[models.BracketSelectionPayload](r)
			if err != nil || sel.Round != 2 {
				continue
			}
			pick := aggregate.ChampionPick{WinnerID: sel.WinnerID}
			if r.ParticipantID != nil {
				pick.ParticipantID = r.ParticipantID.String()
			}
			picks = append(picks, pick)
		}
		res.TotalRows = len(counted)
		res.Options = aggregate.ChampionTally(cfg.Candidates, picks)

	case models.ResultWords:
		var words []string
		for _, r := range counted {
			w, err := DecodePayload[models.WordPayload](r)
			if err != nil {
				continue
			}
			words = append(words, w.Word)
		}
		res.TotalRows = len(words)
		res.Words = aggregate.CountWords(words)

	default:
		res.TotalRows = len(counted)
	}

	return res, nil
}

func toVote(v models.VotePayload) aggregate.Vote {
	return aggregate.MultiVote(v.Indices()...)
}
