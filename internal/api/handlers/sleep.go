package handlers

import (
	"errors"
	"net/http"

	"github.com/haldanelabs/nightshift/internal/domain"
	"github.com/haldanelabs/nightshift/internal/service"
	"github.com/haldanelabs/nightshift/internal/store"
)

type SleepHandler struct {
	engine *service.SleepEngine
	jobs   domain.SleepJobStore
}

func NewSleepHandler(engine *service.SleepEngine, jobs domain.SleepJobStore) *SleepHandler {
	return &SleepHandler{engine: engine, jobs: jobs}
}

// TriggerRun handles POST /v1/users/{userID}/sleep and runs one full job
// synchronously.
func (h *SleepHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromURL(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	job, err := h.engine.Run(r.Context(), userID, "manual")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// GetLatestJob handles GET /v1/users/{userID}/jobs/latest.
func (h *SleepHandler) GetLatestJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromURL(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	job, err := h.jobs.GetLatest(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no jobs for user")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}
