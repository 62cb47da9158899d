package domain

import (
	"time"

	"github.com/google/uuid"
)

// BeliefType classifies the kind of proposition a belief makes.
type BeliefType string

const (
	BeliefFact         BeliefType = "fact"
	BeliefPreference   BeliefType = "preference"
	BeliefCapability   BeliefType = "capability"
	BeliefState        BeliefType = "state"
	BeliefRelationship BeliefType = "relationship"
	BeliefIntention    BeliefType = "intention"
	BeliefIdentity     BeliefType = "identity"
)

type BeliefStatus string

const (
	BeliefActive      BeliefStatus = "active"
	BeliefUncertain   BeliefStatus = "uncertain"
	BeliefInvalidated BeliefStatus = "invalidated"
	BeliefSuperseded  BeliefStatus = "superseded"
	BeliefWeakened    BeliefStatus = "weakened"
	BeliefArchived    BeliefStatus = "archived"
)

// ConfidenceEntry is one point in a belief's confidence history. The belief's
// current confidence always equals the value of the last appended entry.
type ConfidenceEntry struct {
	Timestamp  time.Time  `json:"timestamp"`
	Value      float64    `json:"value"`
	Reason     string     `json:"reason"`
	EvidenceID *uuid.UUID `json:"evidence_id,omitempty"`
}

// Belief is a higher-order proposition consolidated from one or more learnings.
type Belief struct {
	ID                  uuid.UUID         `json:"id"`
	UserID              uuid.UUID         `json:"user_id"`
	Proposition         string            `json:"proposition"`
	Type                BeliefType        `json:"type"`
	Domain              string            `json:"domain,omitempty"`
	PriorConfidence     float64           `json:"prior_confidence"`
	CurrentConfidence   float64           `json:"current_confidence"`
	History             []ConfidenceEntry `json:"confidence_history"`
	SupportingCount     int               `json:"supporting_count"`
	ContradictingCount  int               `json:"contradicting_count"`
	ValidFrom           *time.Time        `json:"valid_from,omitempty"`
	ValidUntil          *time.Time        `json:"valid_until,omitempty"`
	DependsOn           []uuid.UUID       `json:"depends_on,omitempty"`
	DerivedFromLearning *uuid.UUID        `json:"derived_from_learning,omitempty"`
	Status              BeliefStatus      `json:"status"`
	SupersededBy        *uuid.UUID        `json:"superseded_by,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

type BeliefEvidenceType string

const (
	EvidenceDirect       BeliefEvidenceType = "direct"
	EvidenceInferred     BeliefEvidenceType = "inferred"
	EvidenceLearned      BeliefEvidenceType = "learned"
	EvidenceValidated    BeliefEvidenceType = "validated"
	EvidenceContradicted BeliefEvidenceType = "contradicted"
)

// BeliefEvidence links a belief to one supporting or contradicting observation.
type BeliefEvidence struct {
	ID           uuid.UUID          `json:"id"`
	BeliefID     uuid.UUID          `json:"belief_id"`
	SourceType   string             `json:"source_type"`
	SourceID     uuid.UUID          `json:"source_id"`
	Excerpt      string             `json:"excerpt,omitempty"`
	EvidenceType BeliefEvidenceType `json:"evidence_type"`
	Supports     bool               `json:"supports"`
	Strength     float64            `json:"strength"`
	CreatedAt    time.Time          `json:"created_at"`
}

type ConflictType string

const (
	ConflictContradiction ConflictType = "contradiction"
	ConflictOverlap       ConflictType = "overlap"
	ConflictTemporal      ConflictType = "temporal"
)

type ConflictStatus string

const (
	ConflictUnresolved ConflictStatus = "unresolved"
	ConflictResolved   ConflictStatus = "resolved"
	ConflictEscalated  ConflictStatus = "escalated"
)

// BeliefConflict pairs two beliefs that cannot both hold as stated. BeliefA and
// BeliefB are stored in canonical (sorted) order so the unresolved-pair lookup
// is idempotent.
type BeliefConflict struct {
	ID         uuid.UUID      `json:"id"`
	UserID     uuid.UUID      `json:"user_id"`
	BeliefA    uuid.UUID      `json:"belief_a"`
	BeliefB    uuid.UUID      `json:"belief_b"`
	Type       ConflictType   `json:"conflict_type"`
	Status     ConflictStatus `json:"status"`
	WinnerID   *uuid.UUID     `json:"winner_id,omitempty"`
	DetectedAt time.Time      `json:"detected_at"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
}
