package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"dajam-backend/internal/changefeed"
	"dajam-backend/internal/client"
	"dajam-backend/internal/models"
	"dajam-backend/internal/subscription"
)

func TestStartFeed_FailedConnectKeepsRetryBudget(t *testing.T) {
	f, srv := newFakeServer(t)
	broker := changefeed.NewBroker()
	broker.FailSubscribes(1, errors.New("feed unavailable"))

	var out, errOut bytes.Buffer
	w := &watcher{out: &out, api: client.New(srv.URL, "device-1"), sessionID: f.session.ID}
	mgr := subscription.NewManager(broker, subscription.Config{
		SessionID:  f.session.ID,
		Tables:     []changefeed.TableFilter{{Table: models.AppPoll.DataTable(), Kind: changefeed.KindAll}},
		BaseDelay:  time.Hour,
		MaxDelay:   time.Hour,
		MaxRetries: 3,
		Jitter:     func() time.Duration { return 0 },
		Reload:     w.reload,
	})
	t.Cleanup(mgr.Unsubscribe)

	startFeed(context.Background(), mgr, w, &errOut)

	if got := mgr.RetryCount(); got != 1 {
		t.Fatalf("expected the scheduled retry to be kept, got retry count %d", got)
	}
	if mgr.State() != subscription.StateError {
		t.Fatalf("expected error state, got %s", mgr.State())
	}
	if n := broker.Subscribers(f.session.ID); n != 0 {
		t.Fatalf("expected no immediate reconnect, got %d subscribers", n)
	}
	if !strings.Contains(errOut.String(), "feed unavailable") {
		t.Fatalf("expected the connect error to be printed, got %q", errOut.String())
	}
	if !strings.Contains(out.String(), "Pizza") {
		t.Fatalf("expected results to be printed, got %q", out.String())
	}
}

func TestStartFeed_ConnectedPrintsSnapshot(t *testing.T) {
	f, srv := newFakeServer(t)
	broker := changefeed.NewBroker()

	var out, errOut bytes.Buffer
	w := &watcher{out: &out, api: client.New(srv.URL, "device-1"), sessionID: f.session.ID}
	mgr := subscription.NewManager(broker, subscription.Config{
		SessionID: f.session.ID,
		Reload:    w.reload,
	})
	t.Cleanup(mgr.Unsubscribe)

	startFeed(context.Background(), mgr, w, &errOut)

	if mgr.State() != subscription.StateConnected {
		t.Fatalf("expected connected, got %s", mgr.State())
	}
	if errOut.Len() != 0 {
		t.Fatalf("unexpected error output %q", errOut.String())
	}
	if !strings.Contains(out.String(), "Pizza") {
		t.Fatalf("expected results to be printed, got %q", out.String())
	}
}
