package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"dajam-backend/internal/apperr"
	"dajam-backend/internal/codes"
	"dajam-backend/internal/models"
	"dajam-backend/internal/participation"
)

func newJoinCmd(opts *options) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "join <app> <code>",
		Short: "Join a session by its share code",
		Long: `Join a session by app type and share code. Joining the same session
again from this device resumes the earlier participant.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			appType, code := parseTarget(args)
			rec, resumed, err := join(cmd.Context(), e, appType, code, name)
			if err != nil {
				return err
			}

			verb := "joined"
			if resumed {
				verb = "resumed"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s/%s as %s (%s)\n", verb, rec.AppType, rec.SessionCode, rec.DisplayName, rec.Role)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name (a random one is picked when empty)")
	return cmd
}

func parseTarget(args []string) (models.AppType, string) {
	return models.AppType(strings.ToLower(args[0])), codes.Format(args[1])
}

// join resumes a remembered participation when the server still knows the
// participant, and joins fresh otherwise.
func join(ctx context.Context, e *env, appType models.AppType, code, name string) (*participation.Record, bool, error) {
	snap, err := e.api.LoadSession(ctx, appType, code)
	if err != nil {
		return nil, false, err
	}
	session := snap.Session

	rec, found, err := e.cache.Resume(ctx, appType, session.Code)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read participation cache: %w", err)
	}
	if found && rec.SessionID == session.ID && stillPresent(snap.Participants, rec.ParticipantID) {
		return rec, true, nil
	}
	if found {
		if err := e.cache.Forget(ctx, appType, session.Code); err != nil {
			return nil, false, fmt.Errorf("failed to forget stale participation: %w", err)
		}
	}

	resp, err := e.api.JoinSession(ctx, session.ID, models.JoinSessionRequest{DisplayName: name})
	if err != nil {
		return nil, false, err
	}

	fresh := participation.Record{
		SessionID:     session.ID,
		SessionCode:   session.Code,
		AppType:       session.AppType,
		ParticipantID: resp.Participant.ID,
		DisplayName:   resp.Participant.DisplayName,
		Role:          resp.Participant.Role,
		Token:         resp.Token,
	}
	if err := e.cache.Remember(ctx, fresh); err != nil {
		return nil, false, fmt.Errorf("failed to remember participation: %w", err)
	}
	return &fresh, resp.Resumed, nil
}

func stillPresent(participants []*models.Participant, id uuid.UUID) bool {
	for _, p := range participants {
		if p.ID == id {
			return !p.IsBanned
		}
	}
	return false
}

// remembered returns the cached participation for a session or a
// NotFoundError telling the user to join first.
func remembered(ctx context.Context, e *env, appType models.AppType, code string) (*participation.Record, error) {
	rec, found, err := e.cache.Resume(ctx, appType, code)
	if err != nil {
		return nil, fmt.Errorf("failed to read participation cache: %w", err)
	}
	if !found || rec.Token == "" {
		return nil, &apperr.NotFoundError{
			Op:      "resume",
			Message: fmt.Sprintf("not joined to %s/%s from this device; run: dajam join %s %s", appType, code, appType, code),
		}
	}
	return rec, nil
}

func isNotFound(err error) bool {
	var nf *apperr.NotFoundError
	return errors.As(err, &nf)
}
