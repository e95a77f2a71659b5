package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"dajam-backend/internal/apperr"
)

// RedisPublisher announces changes on the session's pub/sub channel.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}
	if err := p.client.Publish(ctx, Channel(e.SessionID), data).Err(); err != nil {
		return &apperr.TransportError{Op: "publish", Message: "failed to publish change event", Err: err}
	}
	return nil
}

// RedisFeed subscribes to session channels on a dedicated pub/sub client.
type RedisFeed struct {
	client *redis.Client
}

func NewRedisFeed(client *redis.Client) *RedisFeed {
	return &RedisFeed{client: client}
}

func (f *RedisFeed) Subscribe(ctx context.Context, req Request) (Subscription, error) {
	pubsub := f.client.Subscribe(ctx, Channel(req.SessionID))

	// Wait for the subscribe confirmation so a dead server fails here and
	// not on the first read.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, &apperr.TransportError{Op: "subscribe", Message: "failed to subscribe to " + Channel(req.SessionID), Err: err}
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &redisSubscription{
		pubsub: pubsub,
		req:    req,
		events: make(chan Event, eventBuffer),
		errs:   make(chan error, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go sub.run(subCtx)
	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	req    Request
	events chan Event
	errs   chan error
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) Events() <-chan Event { return s.events }
func (s *redisSubscription) Errors() <-chan error { return s.errs }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.pubsub.Close()
		<-s.done
	})
	return err
}

func (s *redisSubscription) run(ctx context.Context) {
	defer close(s.done)

	for {
		msg, err := s.pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
				return
			}
			s.errs <- &apperr.TransportError{Op: "receive", Message: "change feed connection lost", Err: err}
			return
		}

		var e Event
		if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
			// The payload is only a hint; an unreadable one still means
			// something changed.
			log.Printf("changefeed: unreadable payload on %s: %v", msg.Channel, err)
			e = Event{SessionID: s.req.SessionID, Kind: KindAll}
			if len(s.req.Tables) > 0 {
				e.Table = s.req.Tables[0].Table
			}
		}
		if s.req.Matches(e) {
			offer(s.events, e)
		}
	}
}
