package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LearningFilter narrows learning list queries. Zero values mean "no filter".
type LearningFilter struct {
	Category      LearningCategory
	Status        LearningStatus
	MinConfidence float64
	Limit         int
	Offset        int
}

type LearningStore interface {
	Create(ctx context.Context, l *Learning) error
	GetByID(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*Learning, error)
	List(ctx context.Context, userID uuid.UUID, f LearningFilter) ([]Learning, error)

	// FindSimilar is a keyword/substring heuristic scoped to
	// (user, category, status=active). A placeholder for a semantic backend.
	FindSimilar(ctx context.Context, userID uuid.UUID, category LearningCategory, statement string) ([]Learning, error)

	// Reinforce sets confidence, strength, evidence count and touches
	// last_reinforced_at in a single statement.
	Reinforce(ctx context.Context, id uuid.UUID, confidence float64, strength Strength, evidenceCount int) error

	// NudgeConfidence shifts confidence by delta in a single clamped
	// statement, recomputing strength and touching last_reinforced_at
	// without changing the evidence count. Deltas from concurrent callers
	// compose.
	NudgeConfidence(ctx context.Context, id uuid.UUID, userID uuid.UUID, delta float64) error

	// SetDecayed sets confidence, strength and status in a single statement.
	SetDecayed(ctx context.Context, id uuid.UUID, confidence float64, strength Strength, status LearningStatus) error

	UpdateStatus(ctx context.Context, id uuid.UUID, status LearningStatus) error
	ListStale(ctx context.Context, userID uuid.UUID, before time.Time) ([]Learning, error)
	ListArchivable(ctx context.Context, userID uuid.UUID, maxConfidence float64, before time.Time) ([]Learning, error)

	// ListEligibleForFormation returns active, confident learnings not yet
	// consumed by any belief, either as its derived-from source or as
	// merged evidence, oldest first.
	ListEligibleForFormation(ctx context.Context, userID uuid.UUID, minConfidence float64, limit int) ([]Learning, error)
	UpsertEvidence(ctx context.Context, e *LearningEvidence) error
	ListDistinctUserIDs(ctx context.Context) ([]uuid.UUID, error)
}

// BeliefFilter narrows belief list queries.
type BeliefFilter struct {
	Type          BeliefType
	Status        BeliefStatus
	MinConfidence float64
	Limit         int
	Offset        int
}

type BeliefStore interface {
	Create(ctx context.Context, b *Belief) error
	GetByID(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*Belief, error)
	List(ctx context.Context, userID uuid.UUID, f BeliefFilter) ([]Belief, error)
	FindSimilar(ctx context.Context, userID uuid.UUID, beliefType BeliefType, proposition string) ([]Belief, error)
	GetByDerivedFrom(ctx context.Context, userID uuid.UUID, learningID uuid.UUID) (*Belief, error)

	// ApplyBayesianUpdate is the only sanctioned way to mutate a belief's
	// confidence from evidence. It appends a history entry (capped), updates
	// the supporting/contradicting counters, applies the status transition
	// rule and persists everything in one statement.
	ApplyBayesianUpdate(ctx context.Context, id uuid.UUID, userID uuid.UUID, evidenceStrength float64, supports bool, reason string, evidenceID *uuid.UUID) (*Belief, error)

	// SetDecayed lowers confidence by decay, appending a history entry and
	// optionally flipping status, in one statement.
	SetDecayed(ctx context.Context, id uuid.UUID, confidence float64, status BeliefStatus) error

	UpdateStatus(ctx context.Context, id uuid.UUID, status BeliefStatus) error
	ListStale(ctx context.Context, userID uuid.UUID, before time.Time) ([]Belief, error)
	ListArchivable(ctx context.Context, userID uuid.UUID, maxConfidence float64, before time.Time) ([]Belief, error)
	UpsertEvidence(ctx context.Context, e *BeliefEvidence) error
}

type ConflictStore interface {
	// Record upserts by canonical pair: if an unresolved conflict for the
	// unordered pair exists it is returned unchanged.
	Record(ctx context.Context, c *BeliefConflict) (*BeliefConflict, error)
	GetByID(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*BeliefConflict, error)
	ListUnresolved(ctx context.Context, userID uuid.UUID) ([]BeliefConflict, error)
	CountUnresolved(ctx context.Context, userID uuid.UUID) (int, error)
	Resolve(ctx context.Context, id uuid.UUID, winnerID uuid.UUID) error
	Escalate(ctx context.Context, id uuid.UUID) error
}

type OutcomeStore interface {
	Create(ctx context.Context, o *Outcome, sources []OutcomeSource) error
	GetByID(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*Outcome, error)
	ListSources(ctx context.Context, outcomeID uuid.UUID) ([]OutcomeSource, error)
	SetFeedback(ctx context.Context, id uuid.UUID, userID uuid.UUID, signal FeedbackSignal, origin FeedbackOrigin) error

	// ListPendingPropagation returns the oldest feedback-bearing outcomes not
	// yet propagated, up to limit.
	ListPendingPropagation(ctx context.Context, userID uuid.UUID, limit int) ([]Outcome, error)
	CountPendingPropagation(ctx context.Context, userID uuid.UUID) (int, error)

	// MarkPropagated flips feedback_propagated exactly once and reports
	// whether this call performed the flip.
	MarkPropagated(ctx context.Context, id uuid.UUID) (bool, error)

	SummarizeFeedback(ctx context.Context, userID uuid.UUID, since time.Time) (OutcomeSummary, error)
	DeletePropagatedOlderThan(ctx context.Context, userID uuid.UUID, cutoff time.Time) (int64, error)
}

type ObservationStore interface {
	Create(ctx context.Context, o *Observation) error
	ListUnprocessed(ctx context.Context, userID uuid.UUID, limit int) ([]Observation, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
}

type SleepJobStore interface {
	Create(ctx context.Context, j *SleepJob) error
	Update(ctx context.Context, j *SleepJob) error
	GetLatest(ctx context.Context, userID uuid.UUID) (*SleepJob, error)
}

type SessionContextStore interface {
	// Replace fully regenerates the snapshot for the user (no incremental merge).
	Replace(ctx context.Context, s *SessionContext) error
	Get(ctx context.Context, userID uuid.UUID) (*SessionContext, error)
}

// Extractor is the external LLM-backed fact extraction service.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]ExtractedFact, error)
}

// MatchKind is a similarity classifier verdict between two statements.
type MatchKind string

const (
	MatchDistinct      MatchKind = "distinct"
	MatchDuplicate     MatchKind = "duplicate"
	MatchContradiction MatchKind = "contradiction"
	MatchTemporal      MatchKind = "temporal"
)

// Verdict is the classifier's judgement of a statement pair.
type Verdict struct {
	Kind    MatchKind
	Overlap float64
}

// SimilarityClassifier decides whether two propositions duplicate or conflict
// with each other. The default implementation is a keyword heuristic; the
// interface exists so an embedding-backed classifier can replace it without
// touching the orchestrator.
type SimilarityClassifier interface {
	Classify(existing, incoming string) Verdict
	Contradicts(existing, incoming string) bool
}
