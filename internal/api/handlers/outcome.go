package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/haldanelabs/nightshift/internal/domain"
	"github.com/haldanelabs/nightshift/internal/service"
	"github.com/haldanelabs/nightshift/internal/store"
)

type OutcomeHandler struct {
	outcomes *service.OutcomeService
}

func NewOutcomeHandler(outcomes *service.OutcomeService) *OutcomeHandler {
	return &OutcomeHandler{outcomes: outcomes}
}

type outcomeSourceRequest struct {
	Kind     string  `json:"kind"`
	SourceID string  `json:"source_id"`
	Weight   float64 `json:"weight"`
}

type createOutcomeRequest struct {
	ActionType string                 `json:"action_type"`
	Content    string                 `json:"content"`
	Reasoning  string                 `json:"reasoning"`
	Sources    []outcomeSourceRequest `json:"sources"`
}

// Create handles POST /v1/users/{userID}/outcomes.
func (h *OutcomeHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromURL(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req createOutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	var sources []domain.OutcomeSource
	for _, src := range req.Sources {
		id, err := uuid.Parse(src.SourceID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid source_id: "+src.SourceID)
			return
		}
		kind := domain.SourceKind(src.Kind)
		switch kind {
		case domain.SourceLearning, domain.SourceBelief, domain.SourceMemory:
		default:
			writeError(w, http.StatusBadRequest, "invalid source kind: "+src.Kind)
			return
		}
		sources = append(sources, domain.OutcomeSource{Kind: kind, SourceID: id, Weight: src.Weight})
	}

	o, err := h.outcomes.RecordOutcome(r.Context(), &domain.Outcome{
		UserID:     userID,
		ActionType: domain.ActionType(req.ActionType),
		Content:    req.Content,
		Reasoning:  req.Reasoning,
	}, sources)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

type feedbackRequest struct {
	Signal string `json:"signal"`
	Origin string `json:"origin"`
}

// RecordFeedback handles POST /v1/users/{userID}/outcomes/{id}/feedback. The
// signal is applied during the next sleep job's propagation pass.
func (h *OutcomeHandler) RecordFeedback(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromURL(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	outcomeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid outcome id")
		return
	}

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	signal := domain.FeedbackSignal(req.Signal)
	switch signal {
	case domain.FeedbackPositive, domain.FeedbackNegative, domain.FeedbackNeutral:
	default:
		writeError(w, http.StatusBadRequest, "signal must be positive, negative, or neutral")
		return
	}
	origin := domain.FeedbackOrigin(req.Origin)
	if origin == "" {
		origin = domain.OriginUserExplicit
	}

	if err := h.outcomes.RecordFeedback(r.Context(), outcomeID, userID, signal, origin); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "outcome not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}
