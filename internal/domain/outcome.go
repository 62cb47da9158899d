package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActionType is the kind of action the assistant took when producing an outcome.
type ActionType string

const (
	ActionRecall         ActionType = "recall"
	ActionSuggestion     ActionType = "suggestion"
	ActionPrediction     ActionType = "prediction"
	ActionAnswer         ActionType = "answer"
	ActionRecommendation ActionType = "recommendation"
	ActionCompletion     ActionType = "completion"
)

// FeedbackSignal is the user-observed result of an action.
type FeedbackSignal string

const (
	FeedbackPositive FeedbackSignal = "positive"
	FeedbackNegative FeedbackSignal = "negative"
	FeedbackNeutral  FeedbackSignal = "neutral"
	FeedbackUnknown  FeedbackSignal = "unknown"
)

// HasEffect reports whether the signal carries feedback worth propagating.
func (s FeedbackSignal) HasEffect() bool {
	return s == FeedbackPositive || s == FeedbackNegative
}

// FeedbackOrigin records where a feedback signal came from.
type FeedbackOrigin string

const (
	OriginUserExplicit FeedbackOrigin = "user_explicit"
	OriginUserImplicit FeedbackOrigin = "user_implicit"
	OriginSystem       FeedbackOrigin = "system"
)

// Outcome records one action the system took, the knowledge that informed it,
// and the eventual real-world feedback.
type Outcome struct {
	ID                 uuid.UUID      `json:"id"`
	UserID             uuid.UUID      `json:"user_id"`
	ActionType         ActionType     `json:"action_type"`
	Content            string         `json:"content"`
	Reasoning          string         `json:"reasoning,omitempty"`
	Feedback           FeedbackSignal `json:"feedback"`
	FeedbackOrigin     FeedbackOrigin `json:"feedback_origin,omitempty"`
	FeedbackAt         *time.Time     `json:"feedback_at,omitempty"`
	FeedbackPropagated bool           `json:"feedback_propagated"`
	CreatedAt          time.Time      `json:"created_at"`
}

// SourceKind identifies which knowledge table an outcome source points into.
type SourceKind string

const (
	SourceLearning SourceKind = "learning"
	SourceBelief   SourceKind = "belief"
	SourceMemory   SourceKind = "memory"
)

// OutcomeSource links an outcome to one contributing piece of knowledge with a
// contribution weight.
type OutcomeSource struct {
	ID        uuid.UUID  `json:"id"`
	OutcomeID uuid.UUID  `json:"outcome_id"`
	Kind      SourceKind `json:"kind"`
	SourceID  uuid.UUID  `json:"source_id"`
	Weight    float64    `json:"weight"`
	CreatedAt time.Time  `json:"created_at"`
}
