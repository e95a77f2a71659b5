package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"dajam-backend/internal/changefeed"
	"dajam-backend/internal/client"
	"dajam-backend/internal/models"
	"dajam-backend/internal/subscription"
)

func newWatchCmd(opts *options) *cobra.Command {
	var (
		baseDelay  time.Duration
		maxDelay   time.Duration
		maxRetries int
	)

	cmd := &cobra.Command{
		Use:   "watch <app> <code>",
		Short: "Follow live results until interrupted",
		Long: `Follow a joined session's results. Every change on the session
refetches the results; dropped connections are retried with backoff.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			e, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			appType, code := parseTarget(args)
			rec, err := remembered(ctx, e, appType, code)
			if err != nil {
				return err
			}

			w := &watcher{
				out:       cmd.OutOrStdout(),
				api:       e.api,
				sessionID: rec.SessionID,
			}
			feed := changefeed.NewWSFeed(opts.server, rec.Token)
			mgr := subscription.NewManager(feed, subscription.Config{
				SessionID:     rec.SessionID,
				Tables:        []changefeed.TableFilter{{Table: appType.DataTable(), Kind: changefeed.KindAll}},
				BaseDelay:     baseDelay,
				MaxDelay:      maxDelay,
				MaxRetries:    maxRetries,
				Reload:        w.reload,
				OnStateChange: w.state,
			})

			startFeed(ctx, mgr, w, cmd.ErrOrStderr())

			<-ctx.Done()
			mgr.Unsubscribe()
			return nil
		},
	}

	cmd.Flags().DurationVar(&baseDelay, "base-delay", subscription.DefaultBaseDelay, "First reconnect delay")
	cmd.Flags().DurationVar(&maxDelay, "max-delay", subscription.DefaultMaxDelay, "Reconnect delay cap")
	cmd.Flags().IntVar(&maxRetries, "max-retries", subscription.DefaultMaxRetries, "Reconnect attempts before giving up")
	return cmd
}

type watcher struct {
	out       io.Writer
	api       *client.Client
	sessionID uuid.UUID

	mu sync.Mutex
}

// reload refetches results whatever changed; the event is only a hint.
func (w *watcher) reload(ctx context.Context, _ changefeed.Event) error {
	res, err := w.api.Results(ctx, w.sessionID)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.out, "\n%s\n", time.Now().Format("15:04:05"))
	printResults(w.out, res)
	return nil
}

// startFeed connects and prints the first snapshot. After a failed connect
// the results are fetched directly so the manager keeps its retry schedule.
func startFeed(ctx context.Context, mgr *subscription.Manager, w *watcher, errOut io.Writer) {
	if err := mgr.Connect(ctx); err != nil {
		fmt.Fprintln(errOut, errorText(err))
		if err := w.reload(ctx, changefeed.Event{}); err != nil {
			fmt.Fprintln(errOut, errorText(err))
		}
		return
	}
	if err := mgr.Reload(ctx); err != nil {
		fmt.Fprintln(errOut, errorText(err))
	}
}

// state runs under the manager's lock and only prints.
func (w *watcher) state(s subscription.State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.out, "connection: %s\n", stateText(s))
}

func newResultsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "results <app> <code>",
		Short: "Print a session's current results",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			appType, code := parseTarget(args)
			snap, err := e.api.LoadSession(cmd.Context(), appType, code)
			if err != nil {
				return err
			}
			res, err := e.api.Results(cmd.Context(), snap.Session.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printSession(out, snap.Session)
			if res.Kind == models.ResultNone {
				fmt.Fprintf(out, "  %d rows submitted\n", res.TotalRows)
				return nil
			}
			printResults(out, res)
			return nil
		},
	}
}
