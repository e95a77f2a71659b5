package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"dajam-backend/internal/changefeed"
	"dajam-backend/internal/middleware"
	"dajam-backend/internal/models"
	"dajam-backend/internal/subscription"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const writeWait = 10 * time.Second

type SessionSource interface {
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

type ResultsSource interface {
	Compute(ctx context.Context, id uuid.UUID) (*models.SessionResults, error)
}

type TokenParser interface {
	ParseToken(token string) (*middleware.Claims, error)
}

// FeedSettings tunes the per-session subscription managers.
type FeedSettings struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
	// Jitter overrides the reconnect jitter; nil keeps the default.
	Jitter func() time.Duration
}

// Hub fans session changes out to websocket clients. Each session with at
// least one connection owns one subscription manager; it is stopped when
// the last connection leaves.
type Hub struct {
	mu       sync.Mutex
	rooms    map[uuid.UUID]*room
	feed     changefeed.Feed
	sessions SessionSource
	results  ResultsSource
	auth     TokenParser
	settings FeedSettings
}

type room struct {
	mu      sync.Mutex
	conns   []*conn
	manager *subscription.Manager

	// states holds the latest manager state for relayStates. It never
	// blocks the manager, which reports states under its own lock.
	states chan subscription.State
	done   chan struct{}
}

func newRoom() *room {
	rm := &room{
		states: make(chan subscription.State, 1),
		done:   make(chan struct{}),
	}
	go rm.relayStates()
	return rm
}

// pushState replaces any undelivered state with s.
func (rm *room) pushState(s subscription.State) {
	for {
		select {
		case rm.states <- s:
			return
		default:
		}
		select {
		case <-rm.states:
		default:
		}
	}
}

func (rm *room) relayStates() {
	for {
		select {
		case <-rm.done:
			return
		case s := <-rm.states:
			rm.broadcast(models.WSMessage{Type: models.WSTypeState, Payload: stateMessage(s)})
		}
	}
}

// conn serializes writes; gorilla allows one concurrent writer.
type conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *conn) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func NewHub(feed changefeed.Feed, sessions SessionSource, results ResultsSource, auth TokenParser, settings FeedSettings) *Hub {
	return &Hub{
		rooms:    make(map[uuid.UUID]*room),
		feed:     feed,
		sessions: sessions,
		results:  results,
		auth:     auth,
		settings: settings,
	}
}

// HandleWebSocket serves GET /sessions/{id}/ws?token=...
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	// Authenticate via token query param
	claims, err := h.auth.ParseToken(r.URL.Query().Get("token"))
	if err != nil || claims.SessionID != sessionID {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	session, err := h.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	c := &conn{ws: ws}
	h.register(session, c)
	h.sendResults(context.Background(), sessionID, c)

	// Keep connection alive and handle disconnect
	go func() {
		defer h.unregister(sessionID, c)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) register(session *models.Session, c *conn) {
	h.mu.Lock()
	rm, exists := h.rooms[session.ID]
	if !exists {
		rm = newRoom()
		rm.manager = h.newManager(session, rm)
		h.rooms[session.ID] = rm
	}
	rm.mu.Lock()
	rm.conns = append(rm.conns, c)
	total := len(rm.conns)
	rm.mu.Unlock()
	h.mu.Unlock()

	log.Printf("WebSocket connected: session %s (total: %d)", session.ID, total)

	if !exists {
		if err := rm.manager.Connect(context.Background()); err != nil {
			log.Printf("websocket hub: change feed for session %s unavailable: %v", session.ID, err)
		}
		return
	}

	state := rm.manager.State()
	c.sendJSON(models.WSMessage{Type: models.WSTypeState, Payload: stateMessage(state)})

	// Retries were used up before this client arrived; a new viewer is
	// the cue to try the feed again.
	if state == subscription.StateError {
		if err := rm.manager.Reload(context.Background()); err != nil {
			log.Printf("websocket hub: change feed for session %s still unavailable: %v", session.ID, err)
		}
	}
}

func (h *Hub) unregister(sessionID uuid.UUID, c *conn) {
	h.mu.Lock()
	rm, ok := h.rooms[sessionID]
	if !ok {
		h.mu.Unlock()
		c.ws.Close()
		return
	}
	rm.mu.Lock()
	for i, other := range rm.conns {
		if other == c {
			rm.conns = append(rm.conns[:i], rm.conns[i+1:]...)
			break
		}
	}
	empty := len(rm.conns) == 0
	rm.mu.Unlock()
	if empty {
		delete(h.rooms, sessionID)
	}
	h.mu.Unlock()

	c.ws.Close()
	if empty {
		rm.manager.Unsubscribe()
		close(rm.done)
	}
	log.Printf("WebSocket disconnected: session %s", sessionID)
}

func (h *Hub) newManager(session *models.Session, rm *room) *subscription.Manager {
	sessionID := session.ID
	return subscription.NewManager(h.feed, subscription.Config{
		SessionID: sessionID,
		Tables: []changefeed.TableFilter{
			{Table: models.TableSessions, Kind: changefeed.KindAll},
			{Table: session.AppType.DataTable(), Kind: changefeed.KindAll},
		},
		BaseDelay:  h.settings.BaseDelay,
		MaxDelay:   h.settings.MaxDelay,
		MaxRetries: h.settings.MaxRetries,
		Jitter:     h.settings.Jitter,
		Reload: func(ctx context.Context, e changefeed.Event) error {
			rm.broadcast(models.WSMessage{
				Type: models.WSTypeChanged,
				Payload: models.ChangedEvent{
					SessionID: e.SessionID,
					Table:     e.Table,
					Kind:      string(e.Kind),
				},
			})
			res, err := h.results.Compute(ctx, sessionID)
			if err != nil {
				return err
			}
			rm.broadcast(models.WSMessage{Type: models.WSTypeResults, Payload: res})
			return nil
		},
		OnStateChange: rm.pushState,
	})
}

func (h *Hub) sendResults(ctx context.Context, sessionID uuid.UUID, c *conn) {
	res, err := h.results.Compute(ctx, sessionID)
	if err != nil {
		log.Printf("websocket hub: failed to compute results for session %s: %v", sessionID, err)
		return
	}
	c.sendJSON(models.WSMessage{Type: models.WSTypeResults, Payload: res})
}

// FeedState reports the change feed state of a session with clients.
func (h *Hub) FeedState(sessionID uuid.UUID) (subscription.State, bool) {
	h.mu.Lock()
	rm, ok := h.rooms[sessionID]
	h.mu.Unlock()
	if !ok {
		return subscription.StateDisconnected, false
	}
	return rm.manager.State(), true
}

// Connections reports how many clients are attached to a session.
func (h *Hub) Connections(sessionID uuid.UUID) int {
	h.mu.Lock()
	rm, ok := h.rooms[sessionID]
	h.mu.Unlock()
	if !ok {
		return 0
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.conns)
}

// SendToSession sends a message to every client of a session.
func (h *Hub) SendToSession(sessionID uuid.UUID, msg interface{}) {
	h.mu.Lock()
	rm, ok := h.rooms[sessionID]
	h.mu.Unlock()
	if ok {
		rm.broadcast(msg)
	}
}

func (rm *room) broadcast(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	rm.mu.Lock()
	conns := make([]*conn, len(rm.conns))
	copy(conns, rm.conns)
	rm.mu.Unlock()

	for _, c := range conns {
		c.send(data)
	}
}

func (c *conn) sendJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.send(data)
}

func stateMessage(s subscription.State) map[string]string {
	return map[string]string{"state": string(s)}
}
