package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"dajam-backend/internal/apperr"
	"dajam-backend/internal/models"
)

// WSFeed subscribes through the server's session websocket. It is what the
// CLI uses: the server relays its own change feed as "changed" messages.
type WSFeed struct {
	BaseURL string
	Token   string
	Dialer  *websocket.Dialer
}

func NewWSFeed(baseURL, token string) *WSFeed {
	return &WSFeed{BaseURL: baseURL, Token: token, Dialer: websocket.DefaultDialer}
}

// SessionURL turns an http(s) API base into the ws(s) endpoint for a session.
func SessionURL(baseURL, sessionID, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("failed to parse server URL: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/api/v1/sessions/" + sessionID + "/ws"
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (f *WSFeed) Subscribe(ctx context.Context, req Request) (Subscription, error) {
	endpoint, err := SessionURL(f.BaseURL, req.SessionID.String(), f.Token)
	if err != nil {
		return nil, err
	}

	dialer := f.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, &apperr.TransportError{Op: "subscribe", Message: "failed to open session websocket", Err: err}
	}

	sub := &wsSubscription{
		conn:   conn,
		req:    req,
		events: make(chan Event, eventBuffer),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	go sub.run()
	return sub, nil
}

type wsSubscription struct {
	conn   *websocket.Conn
	req    Request
	events chan Event
	errs   chan error
	done   chan struct{}
	once   sync.Once
	closed bool
	mu     sync.Mutex
}

func (s *wsSubscription) Events() <-chan Event { return s.events }
func (s *wsSubscription) Errors() <-chan error { return s.errs }

func (s *wsSubscription) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		err = s.conn.Close()
		<-s.done
	})
	return err
}

func (s *wsSubscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type wsEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (s *wsSubscription) run() {
	defer close(s.done)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.isClosed() {
				s.errs <- &apperr.TransportError{Op: "receive", Message: "session websocket closed", Err: err}
			}
			return
		}

		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type != models.WSTypeChanged {
			continue
		}
		var changed models.ChangedEvent
		if err := json.Unmarshal(env.Payload, &changed); err != nil {
			continue
		}
		e := Event{SessionID: changed.SessionID, Table: changed.Table, Kind: Kind(changed.Kind)}
		if s.req.Matches(e) {
			offer(s.events, e)
		}
	}
}
