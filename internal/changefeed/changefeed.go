// Package changefeed carries "something changed in this session" notices
// from writers to live subscribers. Delivery is best effort: subscribers
// treat an event as a hint to reload, never as the data itself.
package changefeed

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
	KindAll    Kind = "*"
)

type Event struct {
	SessionID uuid.UUID `json:"session_id"`
	Table     string    `json:"table"`
	Kind      Kind      `json:"kind"`
	At        time.Time `json:"at"`
}

// TableFilter registers interest in one logical table.
type TableFilter struct {
	Table string
	Kind  Kind
}

// Request is one multiplexed subscription covering every table a session
// consumer cares about.
type Request struct {
	SessionID uuid.UUID
	Tables    []TableFilter
}

// Matches reports whether e is for this session and one of its tables.
// A request without tables matches every table.
func (r Request) Matches(e Event) bool {
	if e.SessionID != r.SessionID {
		return false
	}
	if len(r.Tables) == 0 {
		return true
	}
	for _, f := range r.Tables {
		if f.Table != e.Table {
			continue
		}
		if f.Kind == "" || f.Kind == KindAll || e.Kind == KindAll || f.Kind == e.Kind {
			return true
		}
	}
	return false
}

// Subscription is a live stream of events. Errors carries at most one
// transport failure, after which no more events arrive.
type Subscription interface {
	Events() <-chan Event
	Errors() <-chan error
	Close() error
}

type Feed interface {
	Subscribe(ctx context.Context, req Request) (Subscription, error)
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Channel is the pub/sub channel name for a session.
func Channel(sessionID uuid.UUID) string {
	return "session_changes:" + sessionID.String()
}

const eventBuffer = 64

// offer hands e to a subscriber without blocking. A full buffer already
// holds a pending reload trigger, so dropping is harmless.
func offer(ch chan<- Event, e Event) {
	select {
	case ch <- e:
	default:
	}
}
