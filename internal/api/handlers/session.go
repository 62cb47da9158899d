package handlers

import (
	"errors"
	"net/http"

	"github.com/haldanelabs/nightshift/internal/domain"
	"github.com/haldanelabs/nightshift/internal/store"
)

type SessionHandler struct {
	sessions domain.SessionContextStore
}

func NewSessionHandler(sessions domain.SessionContextStore) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Get handles GET /v1/users/{userID}/session. Expired snapshots read as not
// found; the next sleep job regenerates them.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromURL(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	sc, err := h.sessions.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no session context")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sc)
}
