// Package apperr holds the caller-visible error taxonomy shared by the
// session directory, the subscription manager and the HTTP layer.
package apperr

import "fmt"

// NotFoundError means a session, code or participant did not resolve.
// It is shown to the user as-is and never retried automatically.
type NotFoundError struct {
	Op      string
	Message string
	Err     error
}

func (e *NotFoundError) Error() string { return format(e.Op, e.Message, e.Err) }
func (e *NotFoundError) Unwrap() error { return e.Err }

// CreationError means the store rejected a session write. Callers may retry.
type CreationError struct {
	Op      string
	Message string
	Err     error
}

func (e *CreationError) Error() string { return format(e.Op, e.Message, e.Err) }
func (e *CreationError) Unwrap() error { return e.Err }

// JoinError means a participant could not be added: the session is closed,
// full, or the write failed.
type JoinError struct {
	Op      string
	Message string
	Err     error
}

func (e *JoinError) Error() string { return format(e.Op, e.Message, e.Err) }
func (e *JoinError) Unwrap() error { return e.Err }

// TransportError is a change-feed subscribe or delivery failure.
type TransportError struct {
	Op      string
	Message string
	Err     error
}

func (e *TransportError) Error() string { return format(e.Op, e.Message, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError covers malformed input: bad codes, bad bracket sizes,
// unknown app types, undecided matches.
type ValidationError struct {
	Op      string
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string { return format(e.Op, e.Message, nil) }

func format(op, msg string, err error) string {
	s := msg
	if op != "" {
		s = op + ": " + msg
	}
	if err != nil {
		return fmt.Sprintf("%s: %v", s, err)
	}
	return s
}
