// Package subscription keeps one live change-feed subscription per session
// and turns change notices into reloads. It reconnects with exponential
// backoff and gives up after a bounded number of retries.
package subscription

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"dajam-backend/internal/changefeed"
	"dajam-backend/internal/models"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// ReloadFunc refetches whatever the event names. The event is only a hint.
type ReloadFunc func(ctx context.Context, e changefeed.Event) error

type Config struct {
	SessionID uuid.UUID
	// Tables besides participants, which is always included.
	Tables []changefeed.TableFilter

	BaseDelay      time.Duration
	MaxDelay       time.Duration
	MaxRetries     int
	ConnectTimeout time.Duration

	Reload ReloadFunc
	// OnStateChange is called with the manager lock held and must not call
	// back into the manager.
	OnStateChange func(State)

	Scheduler Scheduler
	Jitter    func() time.Duration
}

type Manager struct {
	feed changefeed.Feed
	cfg  Config
	req  changefeed.Request

	mu         sync.Mutex
	state      State
	retries    int
	hadFailure bool
	gen        int
	sub        changefeed.Subscription
	stop       chan struct{}
	cancel     context.CancelFunc
	timer      Timer

	reloadMu sync.Mutex
}

func NewManager(feed changefeed.Feed, cfg Config) *Manager {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = realScheduler{}
	}
	if cfg.Jitter == nil {
		cfg.Jitter = DefaultJitter
	}

	return &Manager{
		feed:  feed,
		cfg:   cfg,
		req:   buildRequest(cfg.SessionID, cfg.Tables),
		state: StateDisconnected,
	}
}

func buildRequest(sessionID uuid.UUID, tables []changefeed.TableFilter) changefeed.Request {
	req := changefeed.Request{SessionID: sessionID}
	hasParticipants := false
	for _, t := range tables {
		if t.Table == models.TableParticipants {
			hasParticipants = true
		}
		req.Tables = append(req.Tables, t)
	}
	if !hasParticipants {
		req.Tables = append(req.Tables, changefeed.TableFilter{Table: models.TableParticipants, Kind: changefeed.KindAll})
	}
	return req
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) RetryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retries
}

// Connect opens the subscription. It is a no-op while connecting or
// connected. A failed attempt schedules the first retry and returns the
// transport error.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnected || m.state == StateConnecting {
		m.mu.Unlock()
		return nil
	}
	m.gen++
	gen := m.gen
	m.stopTimerLocked()
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	return m.attempt(ctx, gen)
}

// Reload fetches fresh state once. When automatic retries have been used
// up it instead resets the retry budget and reconnects; a successful
// reconnect resyncs on its own.
func (m *Manager) Reload(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateError {
		m.mu.Unlock()
		m.runReload(ctx, m.resyncEvent())
		return nil
	}
	m.retries = 0
	m.gen++
	gen := m.gen
	m.stopTimerLocked()
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	if err := m.attempt(ctx, gen); err != nil {
		m.runReload(ctx, m.resyncEvent())
		return err
	}
	return nil
}

// Unsubscribe tears everything down. Calling it again is harmless.
func (m *Manager) Unsubscribe() {
	m.mu.Lock()
	m.gen++
	m.stopTimerLocked()
	sub := m.sub
	m.sub = nil
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.retries = 0
	m.hadFailure = false
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
}

func (m *Manager) attempt(ctx context.Context, gen int) error {
	cctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	sub, err := m.feed.Subscribe(cctx, m.req)
	cancel()

	m.mu.Lock()
	if gen != m.gen {
		// Torn down while we were dialing.
		m.mu.Unlock()
		if sub != nil {
			sub.Close()
		}
		return nil
	}
	if err != nil {
		m.failLocked(err, gen)
		m.mu.Unlock()
		return err
	}

	resync := m.hadFailure
	m.hadFailure = false
	m.retries = 0
	m.sub = sub
	stop := make(chan struct{})
	m.stop = stop
	connCtx, connCancel := context.WithCancel(context.Background())
	m.cancel = connCancel
	m.setStateLocked(StateConnected)
	m.mu.Unlock()

	go m.pump(connCtx, sub, stop, gen)

	if resync {
		m.runReload(connCtx, m.resyncEvent())
	}
	return nil
}

func (m *Manager) pump(ctx context.Context, sub changefeed.Subscription, stop <-chan struct{}, gen int) {
	for {
		select {
		case <-stop:
			return
		case e := <-sub.Events():
			m.runReload(ctx, e)
		case err := <-sub.Errors():
			m.mu.Lock()
			if gen != m.gen || m.sub != sub {
				m.mu.Unlock()
				return
			}
			m.sub = nil
			if m.stop != nil {
				close(m.stop)
				m.stop = nil
			}
			if m.cancel != nil {
				m.cancel()
				m.cancel = nil
			}
			m.failLocked(err, gen)
			m.mu.Unlock()
			sub.Close()
			return
		}
	}
}

// failLocked moves to error and schedules the next retry if any are left.
func (m *Manager) failLocked(err error, gen int) {
	m.hadFailure = true
	m.setStateLocked(StateError)

	if m.retries >= m.cfg.MaxRetries {
		log.Printf("subscription %s: giving up after %d retries: %v", m.cfg.SessionID, m.retries, err)
		return
	}

	delay := Backoff(m.retries, m.cfg.BaseDelay, m.cfg.MaxDelay) + m.cfg.Jitter()
	m.retries++
	log.Printf("subscription %s: %v (retry %d/%d in %s)", m.cfg.SessionID, err, m.retries, m.cfg.MaxRetries, delay)

	m.timer = m.cfg.Scheduler.AfterFunc(delay, func() { m.retry(gen) })
}

func (m *Manager) retry(gen int) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateError {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	_ = m.attempt(context.Background(), gen)
}

func (m *Manager) runReload(ctx context.Context, e changefeed.Event) {
	if m.cfg.Reload == nil {
		return
	}
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	if err := m.cfg.Reload(ctx, e); err != nil {
		log.Printf("subscription %s: reload after %s change failed: %v", m.cfg.SessionID, e.Table, err)
	}
}

func (m *Manager) resyncEvent() changefeed.Event {
	return changefeed.Event{SessionID: m.cfg.SessionID, Kind: changefeed.KindAll, At: time.Now().UTC()}
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	if m.cfg.OnStateChange != nil {
		m.cfg.OnStateChange(s)
	}
}
