package changefeed

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"dajam-backend/internal/apperr"
)

// Broker is an in-process Feed and Publisher. The CLI uses it when no
// server-side feed is configured and tests use it to inject failures.
type Broker struct {
	mu       sync.Mutex
	subs     map[uuid.UUID]map[*brokerSub]struct{}
	failures []error
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[uuid.UUID]map[*brokerSub]struct{})}
}

// FailSubscribes makes the next n Subscribe calls return err.
func (b *Broker) FailSubscribes(n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < n; i++ {
		b.failures = append(b.failures, err)
	}
}

// PendingFailures counts injected failures not yet consumed.
func (b *Broker) PendingFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.failures)
}

// Drop cuts every live subscription for sessionID with err, as if the
// transport had gone away.
func (b *Broker) Drop(sessionID uuid.UUID, err error) {
	b.mu.Lock()
	subs := b.subs[sessionID]
	delete(b.subs, sessionID)
	b.mu.Unlock()

	for s := range subs {
		s.fail(err)
	}
}

// Subscribers counts live subscriptions for sessionID.
func (b *Broker) Subscribers(sessionID uuid.UUID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[sessionID])
}

func (b *Broker) Subscribe(ctx context.Context, req Request) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, &apperr.TransportError{Op: "subscribe", Message: "context done", Err: err}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.failures) > 0 {
		err := b.failures[0]
		b.failures = b.failures[1:]
		return nil, &apperr.TransportError{Op: "subscribe", Message: "subscribe rejected", Err: err}
	}

	s := &brokerSub{
		broker: b,
		req:    req,
		events: make(chan Event, eventBuffer),
		errs:   make(chan error, 1),
	}
	if b.subs[req.SessionID] == nil {
		b.subs[req.SessionID] = make(map[*brokerSub]struct{})
	}
	b.subs[req.SessionID][s] = struct{}{}
	return s, nil
}

func (b *Broker) Publish(_ context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs[e.SessionID] {
		if s.req.Matches(e) {
			offer(s.events, e)
		}
	}
	return nil
}

func (b *Broker) remove(s *brokerSub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.subs[s.req.SessionID]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(b.subs, s.req.SessionID)
		}
	}
}

type brokerSub struct {
	broker *Broker
	req    Request
	events chan Event
	errs   chan error
	once   sync.Once
}

func (s *brokerSub) Events() <-chan Event { return s.events }
func (s *brokerSub) Errors() <-chan error { return s.errs }

func (s *brokerSub) Close() error {
	s.once.Do(func() { s.broker.remove(s) })
	return nil
}

func (s *brokerSub) fail(err error) {
	s.once.Do(func() {
		s.errs <- &apperr.TransportError{Op: "receive", Message: "change feed connection lost", Err: err}
	})
}
