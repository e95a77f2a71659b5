package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"dajam-backend/internal/models"
)

type voteFlags struct {
	option  int
	options string
	ranking string
	word    string
	match   string
	round   int
	winner  string
	payload string
}

func newVoteCmd(opts *options) *cobra.Command {
	f := &voteFlags{option: -1}

	cmd := &cobra.Command{
		Use:   "vote <app> <code>",
		Short: "Submit a vote, ranking, bracket pick or word",
		Example: `  dajam vote poll ABC234 --option 1
  dajam vote ranking ABC234 --ranking 2,0,1
  dajam vote tournament ABC234 --match r1m1 --round 1 --winner c2
  dajam vote wordcloud ABC234 --word sunny`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			appType, code := parseTarget(args)
			payload, err := f.payloadFor(appType)
			if err != nil {
				return err
			}

			e, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			rec, err := remembered(cmd.Context(), e, appType, code)
			if err != nil {
				return err
			}

			id, err := e.api.Submit(cmd.Context(), rec.SessionID, rec.Token, payload)
			if isNotFound(err) {
				e.cache.Forget(cmd.Context(), appType, code)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "submitted %s\n", id)
			return nil
		},
	}

	cmd.Flags().IntVar(&f.option, "option", -1, "Poll option index")
	cmd.Flags().StringVar(&f.options, "options", "", "Comma-separated poll option indices (multiple-choice polls)")
	cmd.Flags().StringVar(&f.ranking, "ranking", "", "Comma-separated option indices, best first")
	cmd.Flags().StringVar(&f.word, "word", "", "Word cloud entry")
	cmd.Flags().StringVar(&f.match, "match", "", "Bracket match id")
	cmd.Flags().IntVar(&f.round, "round", 1, "Bracket round")
	cmd.Flags().StringVar(&f.winner, "winner", "", "Winning candidate id")
	cmd.Flags().StringVar(&f.payload, "payload", "", "Raw JSON payload, overrides the other flags")
	return cmd
}

func (f *voteFlags) payloadFor(appType models.AppType) (interface{}, error) {
	if f.payload != "" {
		if !json.Valid([]byte(f.payload)) {
			return nil, fmt.Errorf("--payload is not valid JSON")
		}
		return json.RawMessage(f.payload), nil
	}

	switch appType {
	case models.AppPoll:
		if f.options != "" {
			indices, err := parseIndices(f.options)
			if err != nil {
				return nil, err
			}
			return models.VotePayload{OptionIndices: indices}, nil
		}
		if f.option < 0 {
			return nil, fmt.Errorf("poll votes need --option or --options")
		}
		idx := f.option
		return models.VotePayload{OptionIndex: &idx}, nil
	case models.AppRanking:
		indices, err := parseIndices(f.ranking)
		if err != nil {
			return nil, err
		}
		if len(indices) == 0 {
			return nil, fmt.Errorf("ranking votes need --ranking")
		}
		return models.RankingPayload{Ranking: indices}, nil
	case models.AppTournament:
		if f.match == "" || f.winner == "" {
			return nil, fmt.Errorf("bracket picks need --match and --winner")
		}
		return models.BracketSelectionPayload{MatchID: f.match, Round: f.round, WinnerID: f.winner}, nil
	case models.AppWordCloud:
		if strings.TrimSpace(f.word) == "" {
			return nil, fmt.Errorf("word cloud entries need --word")
		}
		return models.WordPayload{Word: f.word}, nil
	case models.AppQuiz, models.AppBingo:
		return nil, fmt.Errorf("%s submissions need --payload", appType)
	}
	return nil, fmt.Errorf("unknown app type %q", appType)
}

func parseIndices(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid index %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}
