package domain

import (
	"time"

	"github.com/google/uuid"
)

// LearningCategory classifies what kind of statement a learning makes about the user.
type LearningCategory string

const (
	CategoryPreference    LearningCategory = "preference"
	CategoryHabit         LearningCategory = "habit"
	CategoryRelationship  LearningCategory = "relationship"
	CategoryGoal          LearningCategory = "goal"
	CategorySkill         LearningCategory = "skill"
	CategoryContext       LearningCategory = "context"
	CategoryIdentity      LearningCategory = "identity"
	CategoryCommunication LearningCategory = "communication"
)

// ValidLearningCategory reports whether s is a known category.
func ValidLearningCategory(s string) bool {
	switch LearningCategory(s) {
	case CategoryPreference, CategoryHabit, CategoryRelationship, CategoryGoal,
		CategorySkill, CategoryContext, CategoryIdentity, CategoryCommunication:
		return true
	}
	return false
}

type LearningStatus string

const (
	LearningActive      LearningStatus = "active"
	LearningInvalidated LearningStatus = "invalidated"
	LearningSuperseded  LearningStatus = "superseded"
	LearningWeakened    LearningStatus = "weakened"
	LearningArchived    LearningStatus = "archived"
)

// Strength is the human-readable confidence band. It is always derived from
// confidence and evidence count, never set independently.
type Strength string

const (
	StrengthWeak       Strength = "weak"
	StrengthModerate   Strength = "moderate"
	StrengthStrong     Strength = "strong"
	StrengthDefinitive Strength = "definitive"
)

// Learning is a confidence-weighted statement about the user derived from
// observed evidence.
type Learning struct {
	ID               uuid.UUID        `json:"id"`
	UserID           uuid.UUID        `json:"user_id"`
	Category         LearningCategory `json:"category"`
	Statement        string           `json:"statement"`
	Reasoning        string           `json:"reasoning,omitempty"`
	Strength         Strength         `json:"strength"`
	Confidence       float64          `json:"confidence"`
	EvidenceCount    int              `json:"evidence_count"`
	Status           LearningStatus   `json:"status"`
	ValidFrom        *time.Time       `json:"valid_from,omitempty"`
	ValidUntil       *time.Time       `json:"valid_until,omitempty"`
	LastReinforcedAt *time.Time       `json:"last_reinforced_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// LearningEvidence links a learning to one source observation. At most one row
// exists per (learning, source) pair.
type LearningEvidence struct {
	ID         uuid.UUID `json:"id"`
	LearningID uuid.UUID `json:"learning_id"`
	SourceType string    `json:"source_type"`
	SourceID   uuid.UUID `json:"source_id"`
	Excerpt    string    `json:"excerpt,omitempty"`
	Confidence float64   `json:"confidence"`
	Supports   bool      `json:"supports"`
	CreatedAt  time.Time `json:"created_at"`
}

// Observation is one raw piece of source text (conversation, email, calendar)
// queued for fact extraction.
type Observation struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	SourceType  string     `json:"source_type"`
	Content     string     `json:"content"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ExtractedFact is one structured fact returned by the external extraction
// service for a single observation.
type ExtractedFact struct {
	Category   LearningCategory `json:"category"`
	Statement  string           `json:"statement"`
	Reasoning  string           `json:"reasoning,omitempty"`
	Confidence float64          `json:"confidence"`
	Excerpt    string           `json:"excerpt,omitempty"`
}
