package models

import "github.com/google/uuid"

// WebSocket message types
const (
	WSTypeChanged = "changed"
	WSTypeResults = "results"
	WSTypeState   = "connection_state"
)

type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type ChangedEvent struct {
	SessionID uuid.UUID `json:"session_id"`
	Table     string    `json:"table"`
	Kind      string    `json:"kind"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
