package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/haldanelabs/nightshift/internal/domain"
	"github.com/haldanelabs/nightshift/internal/service"
)

type KnowledgeHandler struct {
	learnings domain.LearningStore
	beliefs   domain.BeliefStore
	conflicts domain.ConflictStore
	former    *service.BeliefFormer
}

func NewKnowledgeHandler(learnings domain.LearningStore, beliefs domain.BeliefStore, conflicts domain.ConflictStore, former *service.BeliefFormer) *KnowledgeHandler {
	return &KnowledgeHandler{learnings: learnings, beliefs: beliefs, conflicts: conflicts, former: former}
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func queryFloat(r *http.Request, key string) float64 {
	f, _ := strconv.ParseFloat(r.URL.Query().Get(key), 64)
	return f
}

// ListLearnings handles GET /v1/users/{userID}/learnings.
func (h *KnowledgeHandler) ListLearnings(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromURL(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	f := domain.LearningFilter{
		Category:      domain.LearningCategory(r.URL.Query().Get("category")),
		Status:        domain.LearningStatus(r.URL.Query().Get("status")),
		MinConfidence: queryFloat(r, "min_confidence"),
		Limit:         queryInt(r, "limit"),
		Offset:        queryInt(r, "offset"),
	}
	learnings, err := h.learnings.List(r.Context(), userID, f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"learnings": learnings, "count": len(learnings)})
}

// ListBeliefs handles GET /v1/users/{userID}/beliefs.
func (h *KnowledgeHandler) ListBeliefs(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromURL(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	f := domain.BeliefFilter{
		Type:          domain.BeliefType(r.URL.Query().Get("type")),
		Status:        domain.BeliefStatus(r.URL.Query().Get("status")),
		MinConfidence: queryFloat(r, "min_confidence"),
		Limit:         queryInt(r, "limit"),
		Offset:        queryInt(r, "offset"),
	}
	beliefs, err := h.beliefs.List(r.Context(), userID, f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"beliefs": beliefs, "count": len(beliefs)})
}

// ListConflicts handles GET /v1/users/{userID}/conflicts.
func (h *KnowledgeHandler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromURL(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	conflicts, err := h.conflicts.ListUnresolved(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conflicts": conflicts, "count": len(conflicts)})
}

type backfillRequest struct {
	BatchSize int `json:"batch_size"`
}

// BackfillBeliefs handles POST /v1/users/{userID}/beliefs/backfill.
func (h *KnowledgeHandler) BackfillBeliefs(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromURL(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req backfillRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	stats, err := h.former.BackfillBeliefs(r.Context(), userID, req.BatchSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
