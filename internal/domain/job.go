package domain

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobSkipped   JobStatus = "skipped"
)

// TaskType names one stage of the sleep compute pipeline. SleepTaskOrder below
// is the execution order; later tasks assume the database state left by earlier
// ones.
type TaskType string

const (
	TaskFeedbackPropagation TaskType = "feedback_propagation"
	TaskLearningExtraction  TaskType = "learning_extraction"
	TaskBeliefFormation     TaskType = "belief_formation"
	TaskConfidenceDecay     TaskType = "confidence_decay"
	TaskConflictResolution  TaskType = "conflict_resolution"
	TaskArchival            TaskType = "archival"
	TaskSessionPrep         TaskType = "session_prep"
)

// SleepTaskOrder is the fixed priority order for one job. Feedback is applied
// before new knowledge is formed; session_prep always runs last.
var SleepTaskOrder = []TaskType{
	TaskFeedbackPropagation,
	TaskLearningExtraction,
	TaskBeliefFormation,
	TaskConfidenceDecay,
	TaskConflictResolution,
	TaskArchival,
	TaskSessionPrep,
}

type TaskStatus string

const (
	TaskCompleted     TaskStatus = "completed"
	TaskFailed        TaskStatus = "failed"
	TaskSkippedStatus TaskStatus = "skipped"
)

// TaskDetails carries per-task effect counts. Zero fields are omitted from the
// persisted JSON.
type TaskDetails struct {
	Processed    int `json:"processed,omitempty"`
	Created      int `json:"created,omitempty"`
	Reinforced   int `json:"reinforced,omitempty"`
	Contradicted int `json:"contradicted,omitempty"`
	Formed       int `json:"formed,omitempty"`
	Merged       int `json:"merged,omitempty"`
	Conflicts    int `json:"conflicts,omitempty"`
	Skipped      int `json:"skipped,omitempty"`
	Propagated   int `json:"propagated,omitempty"`
	Decayed      int `json:"decayed,omitempty"`
	Weakened     int `json:"weakened,omitempty"`
	Resolved     int `json:"resolved,omitempty"`
	Escalated    int `json:"escalated,omitempty"`
	Archived     int `json:"archived,omitempty"`
	Deleted      int `json:"deleted,omitempty"`
}

// TaskResult is the recorded outcome of one pipeline task within a job.
type TaskResult struct {
	Task       TaskType    `json:"task"`
	Status     TaskStatus  `json:"status"`
	DurationMS int64       `json:"duration_ms"`
	Details    TaskDetails `json:"details"`
	Error      string      `json:"error,omitempty"`
}

// SleepJob is one orchestrator run for one user. Append-only once started: only
// status and the task list mutate.
type SleepJob struct {
	ID         uuid.UUID    `json:"id"`
	UserID     uuid.UUID    `json:"user_id"`
	Trigger    string       `json:"trigger"`
	Status     JobStatus    `json:"status"`
	Tasks      []TaskResult `json:"tasks"`
	Summary    string       `json:"summary,omitempty"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	DurationMS int64        `json:"duration_ms"`
	CreatedAt  time.Time    `json:"created_at"`
}

// BeliefSnapshot is a denormalized belief row for fast session reads.
type BeliefSnapshot struct {
	ID          uuid.UUID  `json:"id"`
	Proposition string     `json:"proposition"`
	Type        BeliefType `json:"type"`
	Confidence  float64    `json:"confidence"`
}

// LearningSnapshot is a denormalized learning row for fast session reads.
type LearningSnapshot struct {
	ID         uuid.UUID        `json:"id"`
	Statement  string           `json:"statement"`
	Category   LearningCategory `json:"category"`
	Confidence float64          `json:"confidence"`
	Strength   Strength         `json:"strength"`
}

// OutcomeSummary aggregates recent feedback for the session snapshot.
type OutcomeSummary struct {
	Total    int `json:"total"`
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Neutral  int `json:"neutral"`
}

// SessionContext is a time-boxed snapshot of a user's top knowledge, fully
// regenerated on each orchestrator run.
type SessionContext struct {
	ID                  uuid.UUID          `json:"id"`
	UserID              uuid.UUID          `json:"user_id"`
	TopBeliefs          []BeliefSnapshot   `json:"top_beliefs"`
	TopLearnings        []LearningSnapshot `json:"top_learnings"`
	Outcomes            OutcomeSummary     `json:"outcomes"`
	PendingConflicts    int                `json:"pending_conflicts"`
	PendingPropagations int                `json:"pending_propagations"`
	GeneratedAt         time.Time          `json:"generated_at"`
	ExpiresAt           time.Time          `json:"expires_at"`
}
