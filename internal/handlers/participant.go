package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"dajam-backend/internal/middleware"
	"dajam-backend/internal/models"
	"dajam-backend/internal/participation"
)

type ParticipantHandler struct {
	directory sessionService
	auth      tokenIssuer
	caches    CacheFactory
}

func NewParticipantHandler(directory sessionService, auth tokenIssuer, caches CacheFactory) *ParticipantHandler {
	return &ParticipantHandler{directory: directory, auth: auth, caches: caches}
}

// Join adds the caller to a session. A device that already joined the same
// session within the resume window gets its old participant back.
func (h *ParticipantHandler) Join(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	var req models.JoinSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	session, err := h.directory.GetSession(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	cache := deviceCache(r, h.caches)
	if cache != nil {
		if resp, ok := h.resume(r, cache, session); ok {
			writeJSON(w, http.StatusOK, resp)
			return
		}
	}

	p, err := h.directory.JoinSession(r.Context(), id, req.DisplayName, req.Metadata)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	token, err := h.auth.IssueToken(p)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if cache != nil {
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
			log.Printf("handlers: failed to remember participation in %s: %v", session.ID, err)
		}
	}

	writeJSON(w, http.StatusCreated, models.JoinSessionResponse{Participant: p, Token: token})
}

func (h *ParticipantHandler) resume(r *http.Request, cache *participation.Cache, session *models.Session) (*models.JoinSessionResponse, bool) {
	rec, found, err := cache.Resume(r.Context(), session.AppType, session.Code)
	if err != nil {
		log.Printf("handlers: participation lookup failed: %v", err)
		return nil, false
	}
	if !found || rec.SessionID != session.ID {
		return nil, false
	}

	p, err := h.directory.ResumeParticipant(r.Context(), session.ID, rec.ParticipantID)
	if err != nil {
		// Banned or gone: forget it and join fresh.
		cache.Forget(r.Context(), session.AppType, session.Code)
		return nil, false
	}
	token, err := h.auth.IssueToken(p)
	if err != nil {
		return nil, false
	}
	rec.Token = token
	if err := cache.Remember(r.Context(), *rec); err != nil {
		log.Printf("handlers: failed to refresh participation in %s: %v", session.ID, err)
	}
	return &models.JoinSessionResponse{Participant: p, Token: token, Resumed: true}, true
}

func (h *ParticipantHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.directory.GetSession(r.Context(), id); err != nil {
		handleServiceError(w, r, err)
		return
	}

	participants, err := h.directory.ReloadParticipants(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if r.URL.Query().Get("include_banned") != "true" {
		participants = models.FilterActive(participants)
	}
	if participants == nil {
		participants = []*models.Participant{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"participants": participants})
}

func (h *ParticipantHandler) Ban(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	pid, ok := parseIDParam(w, r, "pid")
	if !ok {
		return
	}
	claims, ok := sessionClaims(w, r, id)
	if !ok {
		return
	}
	if claims.ParticipantID == pid {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "You cannot ban yourself", r))
		return
	}

	if err := h.directory.BanParticipant(r.Context(), id, pid); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Participant banned"})
}

func (h *ParticipantHandler) UpdateMetadata(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", "Missing participant token", r))
		return
	}

	var req struct {
		Metadata json.RawMessage `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	p, err := h.directory.UpdateMetadata(r.Context(), claims.ParticipantID, req.Metadata)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// History lists the calling device's resumable participations.
func (h *ParticipantHandler) History(w http.ResponseWriter, r *http.Request) {
	cache := deviceCache(r, h.caches)
	if cache == nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Missing "+DeviceIDHeader+" header", r))
		return
	}

	recs, err := cache.History(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	for i := range recs {
		recs[i].Token = ""
	}
	if recs == nil {
		recs = []participation.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"participations": recs})
}
