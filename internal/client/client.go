// Package client talks to the session API over HTTP. API errors are mapped
// back onto the apperr taxonomy so callers branch on the same types the
// server raised.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"dajam-backend/internal/apperr"
	"dajam-backend/internal/models"
)

// DeviceIDHeader mirrors the header the server resumes participations by.
const DeviceIDHeader = "X-Device-ID"

type Client struct {
	BaseURL  string
	DeviceID string
	HTTP     *http.Client
}

func New(baseURL, deviceID string) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		DeviceID: deviceID,
		HTTP:     &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.CreateSessionResponse, error) {
	var resp models.CreateSessionResponse
	if err := c.do(ctx, "create", http.MethodPost, "/sessions", "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LoadSession resolves a share code to a full snapshot.
func (c *Client) LoadSession(ctx context.Context, appType models.AppType, code string) (*models.Snapshot, error) {
	path := "/codes/" + url.PathEscape(string(appType)) + "/" + url.PathEscape(code)
	var snap models.Snapshot
	if err := c.do(ctx, "load", http.MethodGet, path, "", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) JoinSession(ctx context.Context, sessionID uuid.UUID, req models.JoinSessionRequest) (*models.JoinSessionResponse, error) {
	var resp models.JoinSessionResponse
	if err := c.do(ctx, "join", http.MethodPost, sessionPath(sessionID, "/join"), "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Participants(ctx context.Context, sessionID uuid.UUID) ([]*models.Participant, error) {
	var resp struct {
		Participants []*models.Participant `json:"participants"`
	}
	if err := c.do(ctx, "participants", http.MethodGet, sessionPath(sessionID, "/participants"), "", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Participants, nil
}

func (c *Client) Rows(ctx context.Context, sessionID uuid.UUID) ([]*models.DataRow, error) {
	var resp struct {
		Rows []*models.DataRow `json:"rows"`
	}
	if err := c.do(ctx, "rows", http.MethodGet, sessionPath(sessionID, "/rows"), "", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

func (c *Client) Results(ctx context.Context, sessionID uuid.UUID) (*models.SessionResults, error) {
	var res models.SessionResults
	if err := c.do(ctx, "results", http.MethodGet, sessionPath(sessionID, "/results"), "", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Submit queues a row. The server answers before the row is stored.
func (c *Client) Submit(ctx context.Context, sessionID uuid.UUID, token string, payload interface{}) (uuid.UUID, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	var resp struct {
		ID uuid.UUID `json:"id"`
	}
	body := models.SubmitRowRequest{Payload: raw}
	if err := c.do(ctx, "submit", http.MethodPost, sessionPath(sessionID, "/rows"), token, body, &resp); err != nil {
		return uuid.Nil, err
	}
	return resp.ID, nil
}

func (c *Client) CloseSession(ctx context.Context, sessionID uuid.UUID, token string) error {
	return c.do(ctx, "close", http.MethodPost, sessionPath(sessionID, "/close"), token, nil, nil)
}

func (c *Client) BanParticipant(ctx context.Context, sessionID, participantID uuid.UUID, token string) error {
	path := sessionPath(sessionID, "/participants/"+participantID.String()+"/ban")
	return c.do(ctx, "ban", http.MethodPost, path, token, nil, nil)
}

func sessionPath(id uuid.UUID, suffix string) string {
	return "/sessions/" + id.String() + suffix
}

func (c *Client) do(ctx context.Context, op, method, path, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+"/api/v1"+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.DeviceID != "" {
		req.Header.Set(DeviceIDHeader, c.DeviceID)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return &apperr.TransportError{Op: op, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(op, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

// APIError is a server error that has no closer apperr equivalent.
type APIError struct {
	Status int
	models.APIError
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d %s, request %s)", e.Message, e.Status, e.Code, e.RequestID)
}

func decodeError(op string, resp *http.Response) error {
	var env models.ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &env); err != nil || env.Error.Code == "" {
		env.Error = models.APIError{Code: http.StatusText(resp.StatusCode), Message: strings.TrimSpace(string(data))}
	}
	e := env.Error

	switch e.Code {
	case "VALIDATION_ERROR":
		return &apperr.ValidationError{Op: op, Message: e.Message, Fields: e.Fields}
	case "NOT_FOUND":
		return &apperr.NotFoundError{Op: op, Message: e.Message}
	case "JOIN_REJECTED":
		return &apperr.JoinError{Op: op, Message: e.Message}
	case "CREATION_FAILED":
		return &apperr.CreationError{Op: op, Message: e.Message}
	}
	return &APIError{Status: resp.StatusCode, APIError: e}
}
