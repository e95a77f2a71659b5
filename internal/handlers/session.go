package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dajam-backend/internal/codes"
	"dajam-backend/internal/models"
	"dajam-backend/internal/participation"
)

type SessionHandler struct {
	directory   sessionService
	results     resultsService
	auth        tokenIssuer
	caches      CacheFactory
	frontendURL string
}

func NewSessionHandler(directory sessionService, results resultsService, auth tokenIssuer, caches CacheFactory, frontendURL string) *SessionHandler {
	return &SessionHandler{
		directory:   directory,
		results:     results,
		auth:        auth,
		caches:      caches,
		frontendURL: frontendURL,
	}
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	session, host, err := h.directory.CreateSession(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := models.CreateSessionResponse{
		Session:  session,
		Host:     host,
		ShareURL: codes.ShareURL(h.frontendURL, string(session.AppType), session.Code),
	}
	if host != nil {
		token, err := h.auth.IssueToken(host)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		resp.Token = token
		h.remember(r, session, host, token)
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (h *SessionHandler) ListPublic(w http.ResponseWriter, r *http.Request) {
	appType := models.AppType(r.URL.Query().Get("app_type"))

	sessions, err := h.directory.ListPublic(r.Context(), appType)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []*models.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// Load resolves GET /codes/{appType}/{code} to a snapshot.
func (h *SessionHandler) Load(w http.ResponseWriter, r *http.Request) {
	appType := models.AppType(chi.URLParam(r, "appType"))
	code := chi.URLParam(r, "code")

	snap, err := h.directory.LoadSession(r.Context(), appType, code)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	if _, ok := sessionClaims(w, r, id); !ok {
		return
	}

	if err := h.directory.CloseSession(r.Context(), id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Session closed"})
}

func (h *SessionHandler) Results(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	res, err := h.results.Compute(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *SessionHandler) remember(r *http.Request, session *models.Session, p *models.Participant, token string) {
	cache := deviceCache(r, h.caches)
	if cache == nil {
		return
	}
	err := cache.Remember(r.Context(), participation.Record{
		SessionID:     session.ID,
		SessionCode:   session.Code,
		AppType:       session.AppType,
		ParticipantID: p.ID,
		DisplayName:   p.DisplayName,
		Role:          p.Role,
		Token:         token,
	})
	if err != nil {
		log.Printf("handlers: failed to remember participation for device: %v", err)
	}
}
