package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dajam-backend/internal/models"
	"dajam-backend/internal/participation"
)

type createFlags struct {
	app        string
	title      string
	hostName   string
	options    []string
	candidates []string
	multiple   bool
	public     bool
	max        int
	expiresIn  time.Duration
	config     string
}

func newCreateCmd(opts *options) *cobra.Command {
	f := &createFlags{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session and print its share code",
		Example: `  dajam create --app poll --title "Lunch?" --option Pizza --option Tacos
  dajam create --app tournament --candidate Cats --candidate Dogs --host-name Ada`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request()
			if err != nil {
				return err
			}

			e, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			resp, err := e.api.CreateSession(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printSession(out, resp.Session)
			fmt.Fprintf(out, "  share: %s\n", resp.ShareURL)

			if resp.Host != nil {
				err := e.cache.Remember(cmd.Context(), participation.Record{
					SessionID:     resp.Session.ID,
					SessionCode:   resp.Session.Code,
					AppType:       resp.Session.AppType,
					ParticipantID: resp.Host.ID,
					DisplayName:   resp.Host.DisplayName,
					Role:          resp.Host.Role,
					Token:         resp.Token,
				})
				if err != nil {
					return fmt.Errorf("failed to remember host participation: %w", err)
				}
				fmt.Fprintf(out, "  joined as %s (%s)\n", resp.Host.DisplayName, resp.Host.Role)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&f.app, "app", string(models.AppPoll), "App type: poll, ranking, tournament, wordcloud, quiz, bingo")
	cmd.Flags().StringVar(&f.title, "title", "", "Session title")
	cmd.Flags().StringVar(&f.hostName, "host-name", "", "Join as host under this name")
	cmd.Flags().StringArrayVar(&f.options, "option", nil, "Poll or ranking option (repeatable)")
	cmd.Flags().StringArrayVar(&f.candidates, "candidate", nil, "Tournament candidate (repeatable)")
	cmd.Flags().BoolVar(&f.multiple, "multiple", false, "Allow several options per poll vote")
	cmd.Flags().BoolVar(&f.public, "public", false, "List the session publicly")
	cmd.Flags().IntVar(&f.max, "max", 0, "Maximum participants (0 for no limit)")
	cmd.Flags().DurationVar(&f.expiresIn, "expires-in", 0, "Close the session after this long")
	cmd.Flags().StringVar(&f.config, "config", "", "Raw JSON config, overrides --option and --candidate")
	return cmd
}

func (f *createFlags) request() (models.CreateSessionRequest, error) {
	req := models.CreateSessionRequest{
		AppType:  models.AppType(strings.ToLower(f.app)),
		Title:    f.title,
		IsPublic: f.public,
		HostName: f.hostName,
	}
	if !req.AppType.Valid() {
		return req, fmt.Errorf("unknown app type %q", f.app)
	}
	if f.max > 0 {
		limit := f.max
		req.MaxParticipants = &limit
	}
	if f.expiresIn > 0 {
		at := time.Now().Add(f.expiresIn).UTC()
		req.ExpiresAt = &at
	}

	if f.config != "" {
		if !json.Valid([]byte(f.config)) {
			return req, fmt.Errorf("--config is not valid JSON")
		}
		req.Config = json.RawMessage(f.config)
		return req, nil
	}

	var cfg interface{}
	switch req.AppType {
	case models.AppPoll:
		mode := "single"
		if f.multiple {
			mode = "multiple"
		}
		cfg = map[string]interface{}{"options": f.options, "mode": mode}
	case models.AppRanking:
		cfg = map[string]interface{}{"options": f.options}
	case models.AppTournament:
		candidates := make([]models.Candidate, len(f.candidates))
		for i, name := range f.candidates {
			candidates[i] = models.Candidate{ID: fmt.Sprintf("c%d", i+1), Name: name}
		}
		cfg = map[string]interface{}{"candidates": candidates}
	default:
		cfg = map[string]interface{}{}
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return req, fmt.Errorf("failed to encode config: %w", err)
	}
	req.Config = raw
	return req, nil
}
