package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/haldanelabs/nightshift/internal/domain"
)

type ObservationHandler struct {
	observations domain.ObservationStore
}

func NewObservationHandler(observations domain.ObservationStore) *ObservationHandler {
	return &ObservationHandler{observations: observations}
}

type createObservationRequest struct {
	SourceType string `json:"source_type"`
	Content    string `json:"content"`
}

// Create handles POST /v1/users/{userID}/observations. Observations queue for
// the next sleep job; nothing is extracted inline.
func (h *ObservationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromURL(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req createObservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if req.SourceType == "" {
		req.SourceType = "conversation"
	}

	obs := &domain.Observation{
		UserID:     userID,
		SourceType: req.SourceType,
		Content:    req.Content,
	}
	if err := h.observations.Create(r.Context(), obs); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, obs)
}
