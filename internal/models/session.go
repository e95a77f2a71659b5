package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Session struct {
	ID              uuid.UUID       `json:"id"`
	Code            string          `json:"code"`
	AppType         AppType         `json:"app_type"`
	Title           string          `json:"title"`
	ConfigJSON      json.RawMessage `json:"config"`
	IsActive        bool            `json:"is_active"`
	IsPublic        bool            `json:"is_public"`
	MaxParticipants *int            `json:"max_participants,omitempty"`
	ExpiresAt       *time.Time      `json:"expires_at,omitempty"`
	ClosedAt        *time.Time      `json:"closed_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Expired reports whether the session has an expiry that lies before now.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}

// Snapshot is everything a client needs to render a session from scratch.
type Snapshot struct {
	Session      *Session       `json:"session"`
	Participants []*Participant `json:"participants"`
	Rows         []*DataRow     `json:"rows"`
}

// ActiveParticipants returns the roster without banned participants.
func (s *Snapshot) ActiveParticipants() []*Participant {
	return FilterActive(s.Participants)
}

type CreateSessionRequest struct {
	AppType         AppType         `json:"app_type"`
	Title           string          `json:"title"`
	Config          json.RawMessage `json:"config"`
	MaxParticipants *int            `json:"max_participants"`
	IsPublic        bool            `json:"is_public"`
	ExpiresAt       *time.Time      `json:"expires_at"`
	HostName        string          `json:"host_name"`
}

type CreateSessionResponse struct {
	Session  *Session     `json:"session"`
	Host     *Participant `json:"host,omitempty"`
	Token    string       `json:"token,omitempty"`
	ShareURL string       `json:"share_url"`
}
