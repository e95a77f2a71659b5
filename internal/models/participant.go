package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleHost        Role = "host"
	RoleModerator   Role = "moderator"
	RoleParticipant Role = "participant"
	RoleSpectator   Role = "spectator"
)

func (r Role) Valid() bool {
	switch r {
	case RoleHost, RoleModerator, RoleParticipant, RoleSpectator:
		return true
	}
	return false
}

type Participant struct {
	ID           uuid.UUID       `json:"id"`
	SessionID    uuid.UUID       `json:"session_id"`
	UserID       *string         `json:"user_id,omitempty"`
	DisplayName  string          `json:"display_name"`
	Role         Role            `json:"role"`
	IsBanned     bool            `json:"is_banned"`
	JoinedAt     time.Time       `json:"joined_at"`
	MetadataJSON json.RawMessage `json:"metadata"`
}

// FilterActive drops banned participants, keeping roster order.
func FilterActive(participants []*Participant) []*Participant {
	out := make([]*Participant, 0, len(participants))
	for _, p := range participants {
		if !p.IsBanned {
			out = append(out, p)
		}
	}
	return out
}

// Host returns the first participant tagged as host, or nil.
func Host(participants []*Participant) *Participant {
	for _, p := range participants {
		if p.Role == RoleHost {
			return p
		}
	}
	return nil
}

type JoinSessionRequest struct {
	DisplayName string          `json:"display_name"`
	Metadata    json.RawMessage `json:"metadata"`
}

type JoinSessionResponse struct {
	Participant *Participant `json:"participant"`
	Token       string       `json:"token"`
	Resumed     bool         `json:"resumed"`
}
