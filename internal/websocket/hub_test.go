package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"dajam-backend/internal/changefeed"
	"dajam-backend/internal/middleware"
	"dajam-backend/internal/models"
	"dajam-backend/internal/subscription"
)

type stubSessions struct {
	session *models.Session
}

func (s *stubSessions) GetSession(_ context.Context, id uuid.UUID) (*models.Session, error) {
	if s.session == nil || s.session.ID != id {
		return nil, errors.New("not found")
	}
	return s.session, nil
}

type countingResults struct {
	calls atomic.Int32
}

func (c *countingResults) Compute(_ context.Context, id uuid.UUID) (*models.SessionResults, error) {
	n := c.calls.Add(1)
	return &models.SessionResults{SessionID: id, Kind: models.ResultTally, TotalRows: int(n)}, nil
}

type hubFixture struct {
	hub     *Hub
	broker  *changefeed.Broker
	auth    *middleware.JWTAuth
	session *models.Session
	server  *httptest.Server
}

func newHubFixture(t *testing.T) *hubFixture {
	return newHubFixtureWith(t, FeedSettings{})
}

func newHubFixtureWith(t *testing.T, settings FeedSettings) *hubFixture {
	t.Helper()
	session := &models.Session{ID: uuid.New(), AppType: models.AppPoll, IsActive: true}
	broker := changefeed.NewBroker()
	auth := middleware.NewJWTAuth("hub-secret", time.Hour)
	hub := NewHub(broker, &stubSessions{session: session}, &countingResults{}, auth, settings)

	r := chi.NewRouter()
	r.Get("/sessions/{id}/ws", hub.HandleWebSocket)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &hubFixture{hub: hub, broker: broker, auth: auth, session: session, server: srv}
}

func (f *hubFixture) url(sessionID uuid.UUID, token string) string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/sessions/" + sessionID.String() + "/ws?token=" + token
}

func (f *hubFixture) token(t *testing.T, sessionID uuid.UUID) string {
	t.Helper()
	token, err := f.auth.IssueToken(&models.Participant{ID: uuid.New(), SessionID: sessionID, Role: models.RoleParticipant})
	if err != nil {
		t.Fatalf("IssueToken returned error: %v", err)
	}
	return token
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// readUntil reads messages until one has the wanted type.
func readUntil(t *testing.T, ws *websocket.Conn, want string) envelope {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %q message: %v", want, err)
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("unreadable message %s: %v", data, err)
		}
		if env.Type == want {
			return env
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_RejectsBadTokens(t *testing.T) {
	f := newHubFixture(t)

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "nope"},
		{"other session", f.token(t, uuid.New())},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(f.url(f.session.ID, tc.token), nil)
			if err == nil {
				t.Fatalf("expected dial to fail")
			}
			if resp == nil || resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %+v", resp)
			}
		})
	}
}

func TestHub_PushesChangesAndResults(t *testing.T) {
	f := newHubFixture(t)

	ws, _, err := websocket.DefaultDialer.Dial(f.url(f.session.ID, f.token(t, f.session.ID)), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer ws.Close()

	readUntil(t, ws, models.WSTypeResults)
	waitFor(t, "feed subscription", func() bool { return f.broker.Subscribers(f.session.ID) == 1 })

	f.broker.Publish(context.Background(), changefeed.Event{SessionID: f.session.ID, Table: "votes", Kind: changefeed.KindInsert})

	changed := readUntil(t, ws, models.WSTypeChanged)
	var ev models.ChangedEvent
	if err := json.Unmarshal(changed.Payload, &ev); err != nil {
		t.Fatalf("unreadable changed payload: %v", err)
	}
	if ev.Table != "votes" || ev.Kind != "insert" || ev.SessionID != f.session.ID {
		t.Fatalf("unexpected changed event %+v", ev)
	}

	results := readUntil(t, ws, models.WSTypeResults)
	var res models.SessionResults
	if err := json.Unmarshal(results.Payload, &res); err != nil {
		t.Fatalf("unreadable results payload: %v", err)
	}
	if res.SessionID != f.session.ID || res.TotalRows < 2 {
		t.Fatalf("expected recomputed results, got %+v", res)
	}
}

func TestHub_SharesOneSubscriptionAndStopsWithLastConnection(t *testing.T) {
	f := newHubFixture(t)
	url := f.url(f.session.ID, f.token(t, f.session.ID))

	first, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	second, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	waitFor(t, "two connections", func() bool { return f.hub.Connections(f.session.ID) == 2 })
	if n := f.broker.Subscribers(f.session.ID); n != 1 {
		t.Fatalf("expected one shared subscription, got %d", n)
	}

	first.Close()
	waitFor(t, "one connection", func() bool { return f.hub.Connections(f.session.ID) == 1 })
	if n := f.broker.Subscribers(f.session.ID); n != 1 {
		t.Fatalf("expected subscription to survive while a client remains, got %d", n)
	}

	second.Close()
	waitFor(t, "subscription teardown", func() bool { return f.broker.Subscribers(f.session.ID) == 0 })
	if n := f.hub.Connections(f.session.ID); n != 0 {
		t.Fatalf("expected no connections, got %d", n)
	}
}

func TestHub_NewClientRestartsExhaustedFeed(t *testing.T) {
	f := newHubFixtureWith(t, FeedSettings{
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		MaxRetries: 1,
		Jitter:     func() time.Duration { return 0 },
	})
	// Initial connect plus the single retry both fail.
	f.broker.FailSubscribes(2, errors.New("feed down"))
	url := f.url(f.session.ID, f.token(t, f.session.ID))

	first, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer first.Close()

	waitFor(t, "retries to run out", func() bool {
		state, _ := f.hub.FeedState(f.session.ID)
		return f.broker.PendingFailures() == 0 && state == subscription.StateError
	})
	time.Sleep(20 * time.Millisecond)
	if state, _ := f.hub.FeedState(f.session.ID); state != subscription.StateError {
		t.Fatalf("expected feed to stay in error without a new client, got %s", state)
	}

	second, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer second.Close()

	waitFor(t, "feed to reconnect", func() bool {
		state, _ := f.hub.FeedState(f.session.ID)
		return state == subscription.StateConnected && f.broker.Subscribers(f.session.ID) == 1
	})

	for {
		env := readUntil(t, first, models.WSTypeState)
		var msg map[string]string
		json.Unmarshal(env.Payload, &msg)
		if msg["state"] == string(subscription.StateConnected) {
			break
		}
	}
}

func TestRoom_PushStateKeepsLatest(t *testing.T) {
	rm := &room{states: make(chan subscription.State, 1), done: make(chan struct{})}

	rm.pushState(subscription.StateConnecting)
	rm.pushState(subscription.StateError)
	rm.pushState(subscription.StateConnected)

	if got := <-rm.states; got != subscription.StateConnected {
		t.Fatalf("expected latest state, got %s", got)
	}
}
