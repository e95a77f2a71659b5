package handlers

import (
	"encoding/json"
	"net/http"

	"dajam-backend/internal/models"
)

type RowHandler struct {
	directory sessionService
	queue     submissionQueue
}

func NewRowHandler(directory sessionService, queue submissionQueue) *RowHandler {
	return &RowHandler{directory: directory, queue: queue}
}

func (h *RowHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.directory.GetSession(r.Context(), id); err != nil {
		handleServiceError(w, r, err)
		return
	}

	rows, err := h.directory.ReloadData(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if rows == nil {
		rows = []*models.DataRow{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rows": rows})
}

// Submit validates the row and queues it. The row shows up through the
// change feed once a worker has stored it.
func (h *RowHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	claims, ok := sessionClaims(w, r, id)
	if !ok {
		return
	}

	var req models.SubmitRowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	sub, err := h.directory.PrepareSubmission(r.Context(), id, claims.ParticipantID, req.Payload)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if err := h.queue.Enqueue(r.Context(), sub); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":     sub.ID,
		"status": "queued",
	})
}
