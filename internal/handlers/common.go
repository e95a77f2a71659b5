package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"dajam-backend/internal/apperr"
	"dajam-backend/internal/middleware"
	"dajam-backend/internal/models"
	"dajam-backend/internal/participation"
)

// DeviceIDHeader carries the client's device identity. When present, joins
// are remembered and resumed per device.
const DeviceIDHeader = "X-Device-ID"

// sessionService is the part of services.SessionDirectory the handlers use.
type sessionService interface {
	CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.Session, *models.Participant, error)
	LoadSession(ctx context.Context, appType models.AppType, code string) (*models.Snapshot, error)
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	JoinSession(ctx context.Context, id uuid.UUID, displayName string, metadata json.RawMessage) (*models.Participant, error)
	ResumeParticipant(ctx context.Context, sessionID, participantID uuid.UUID) (*models.Participant, error)
	CloseSession(ctx context.Context, id uuid.UUID) error
	ReloadParticipants(ctx context.Context, id uuid.UUID) ([]*models.Participant, error)
	ReloadData(ctx context.Context, id uuid.UUID) ([]*models.DataRow, error)
	PrepareSubmission(ctx context.Context, sessionID, participantID uuid.UUID, payload json.RawMessage) (*models.Submission, error)
	BanParticipant(ctx context.Context, sessionID, participantID uuid.UUID) error
	UpdateMetadata(ctx context.Context, participantID uuid.UUID, metadata json.RawMessage) (*models.Participant, error)
	ListPublic(ctx context.Context, appType models.AppType) ([]*models.Session, error)
}

type resultsService interface {
	Compute(ctx context.Context, id uuid.UUID) (*models.SessionResults, error)
}

type tokenIssuer interface {
	IssueToken(p *models.Participant) (string, error)
}

type submissionQueue interface {
	Enqueue(ctx context.Context, sub *models.Submission) error
}

// CacheFactory opens the participation cache of one device.
type CacheFactory func(deviceID string) *participation.Cache

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get(middleware.RequestIDHeader),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			Fields:    fields,
			RequestID: r.Header.Get(middleware.RequestIDHeader),
		},
	}
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *apperr.ValidationError
		nerr *apperr.NotFoundError
		jerr *apperr.JoinError
		cerr *apperr.CreationError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", verr.Message, verr.Fields, r))
	case errors.As(err, &nerr):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", nerr.Message, r))
	case errors.As(err, &jerr):
		writeJSON(w, http.StatusConflict, errorResp("JOIN_REJECTED", jerr.Message, r))
	case errors.As(err, &cerr):
		writeJSON(w, http.StatusServiceUnavailable, errorResp("CREATION_FAILED", cerr.Message, r))
	default:
		log.Printf("handlers: %s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	}
}

func parseIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid "+name, r))
		return uuid.Nil, false
	}
	return id, true
}

// sessionClaims returns the token claims when they belong to sessionID,
// writing a 403 otherwise.
func sessionClaims(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID) (*middleware.Claims, bool) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil || claims.SessionID != sessionID {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Token is for another session", r))
		return nil, false
	}
	return claims, true
}

// deviceCache returns the participation cache for the calling device, or
// nil when the request carries no device id.
func deviceCache(r *http.Request, factory CacheFactory) *participation.Cache {
	if factory == nil {
		return nil
	}
	deviceID := r.Header.Get(DeviceIDHeader)
	if deviceID == "" {
		return nil
	}
	return factory(deviceID)
}
