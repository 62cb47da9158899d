package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/haldanelabs/nightshift/internal/confidence"
	"github.com/haldanelabs/nightshift/internal/domain"
)

// EngineConfig carries every tuning knob for one engine instance. Nothing here
// is global: construct one config per engine.
type EngineConfig struct {
	// BudgetMS is the wall-clock budget for one job. The default sits under
	// common serverless hard limits.
	BudgetMS int64

	DecayRate      float64
	DecayStartDays int

	// ArchivalThreshold is the confidence below which decayed items weaken and
	// stale items archive.
	ArchivalThreshold float64

	// ConflictGap is the confidence gap at which a conflict auto-resolves.
	ConflictGap float64

	OutcomeRetentionDays int
	SessionTTL           time.Duration

	PropagationLimit  int
	ObservationLimit  int
	FormationBatch    int
	SnapshotSize      int
	FeedbackWindowDay int
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BudgetMS:             25000,
		DecayRate:            0.05,
		DecayStartDays:       14,
		ArchivalThreshold:    0.20,
		ConflictGap:          0.30,
		OutcomeRetentionDays: 180,
		SessionTTL:           24 * time.Hour,
		PropagationLimit:     100,
		ObservationLimit:     50,
		FormationBatch:       50,
		SnapshotSize:         10,
		FeedbackWindowDay:    7,
	}
}

// SleepEngine runs the consolidation pipeline for one user at a time: feedback
// first, then new knowledge, then maintenance, then the session snapshot.
type SleepEngine struct {
	cfg EngineConfig

	consolidator *Consolidator
	former       *BeliefFormer
	outcomes     *OutcomeService

	learnings    domain.LearningStore
	beliefs      domain.BeliefStore
	conflicts    domain.ConflictStore
	outcomeStore domain.OutcomeStore
	jobs         domain.SleepJobStore
	sessions     domain.SessionContextStore

	logger *zap.Logger
}

func NewSleepEngine(
	cfg EngineConfig,
	consolidator *Consolidator,
	former *BeliefFormer,
	outcomes *OutcomeService,
	learnings domain.LearningStore,
	beliefs domain.BeliefStore,
	conflicts domain.ConflictStore,
	outcomeStore domain.OutcomeStore,
	jobs domain.SleepJobStore,
	sessions domain.SessionContextStore,
	logger *zap.Logger,
) *SleepEngine {
	return &SleepEngine{
		cfg:          cfg,
		consolidator: consolidator,
		former:       former,
		outcomes:     outcomes,
		learnings:    learnings,
		beliefs:      beliefs,
		conflicts:    conflicts,
		outcomeStore: outcomeStore,
		jobs:         jobs,
		sessions:     sessions,
		logger:       logger,
	}
}

// runTask executes one pipeline task with panic isolation. A panic inside a
// task is recorded as that task's failure, never raised past the engine.
func (e *SleepEngine) runTask(ctx context.Context, userID uuid.UUID, task domain.TaskType) (result domain.TaskResult) {
	start := time.Now()
	result = domain.TaskResult{Task: task, Status: domain.TaskCompleted}

	defer func() {
		result.DurationMS = time.Since(start).Milliseconds()
		if r := recover(); r != nil {
			result.Status = domain.TaskFailed
			result.Error = fmt.Sprintf("panic: %v", r)
			e.logger.Error("task panicked",
				zap.String("task", string(task)),
				zap.Any("panic", r))
		}
	}()

	details, err := e.dispatch(ctx, userID, task)
	result.Details = details
	if err != nil {
		result.Status = domain.TaskFailed
		result.Error = err.Error()
		e.logger.Warn("task failed",
			zap.String("task", string(task)),
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}
	return result
}

func (e *SleepEngine) dispatch(ctx context.Context, userID uuid.UUID, task domain.TaskType) (domain.TaskDetails, error) {
	switch task {
	case domain.TaskFeedbackPropagation:
		stats, err := e.outcomes.ProcessPendingPropagations(ctx, userID, e.cfg.PropagationLimit)
		return domain.TaskDetails{Propagated: stats.Propagated, Skipped: stats.Skipped}, err
	case domain.TaskLearningExtraction:
		stats, err := e.consolidator.ProcessPending(ctx, userID, e.cfg.ObservationLimit)
		return domain.TaskDetails{
			Processed:    stats.Processed,
			Created:      stats.Created,
			Reinforced:   stats.Reinforced,
			Contradicted: stats.Contradicted,
			Skipped:      stats.Skipped,
		}, err
	case domain.TaskBeliefFormation:
		stats, err := e.former.FormBeliefs(ctx, userID, e.cfg.FormationBatch)
		return domain.TaskDetails{
			Formed:    stats.Formed,
			Merged:    stats.Merged,
			Skipped:   stats.Skipped,
			Conflicts: stats.Conflicts,
		}, err
	case domain.TaskConfidenceDecay:
		return e.runDecay(ctx, userID)
	case domain.TaskConflictResolution:
		return e.runConflictResolution(ctx, userID)
	case domain.TaskArchival:
		return e.runArchival(ctx, userID)
	case domain.TaskSessionPrep:
		return e.runSessionPrep(ctx, userID)
	}
	return domain.TaskDetails{}, fmt.Errorf("unknown task %q", task)
}

// runDecay lowers confidence on items untouched for decayStartDays. Items that
// fall below the archival threshold weaken here; the archival task handles the
// final transition.
func (e *SleepEngine) runDecay(ctx context.Context, userID uuid.UUID) (domain.TaskDetails, error) {
	var details domain.TaskDetails
	cutoff := time.Now().UTC().AddDate(0, 0, -e.cfg.DecayStartDays)

	stale, err := e.learnings.ListStale(ctx, userID, cutoff)
	if err != nil {
		return details, err
	}
	for _, l := range stale {
		decayed := confidence.Decay(l.Confidence, e.cfg.DecayRate)
		status := l.Status
		if decayed < e.cfg.ArchivalThreshold {
			status = domain.LearningWeakened
			details.Weakened++
		}
		if err := e.learnings.SetDecayed(ctx, l.ID, decayed, confidence.ClassifyLearning(decayed), status); err != nil {
			e.logger.Warn("learning decay failed, continuing",
				zap.String("learning_id", l.ID.String()),
				zap.Error(err))
			continue
		}
		details.Decayed++
	}

	staleBeliefs, err := e.beliefs.ListStale(ctx, userID, cutoff)
	if err != nil {
		return details, err
	}
	for _, b := range staleBeliefs {
		decayed := confidence.Decay(b.CurrentConfidence, e.cfg.DecayRate)
		status := b.Status
		if decayed < e.cfg.ArchivalThreshold {
			status = domain.BeliefWeakened
			details.Weakened++
		}
		if err := e.beliefs.SetDecayed(ctx, b.ID, decayed, status); err != nil {
			e.logger.Warn("belief decay failed, continuing",
				zap.String("belief_id", b.ID.String()),
				zap.Error(err))
			continue
		}
		details.Decayed++
	}
	return details, nil
}

// runConflictResolution auto-resolves conflicts with a decisive confidence gap
// and escalates the rest for a human decision.
func (e *SleepEngine) runConflictResolution(ctx context.Context, userID uuid.UUID) (domain.TaskDetails, error) {
	var details domain.TaskDetails

	unresolved, err := e.conflicts.ListUnresolved(ctx, userID)
	if err != nil {
		return details, err
	}

	for _, c := range unresolved {
		a, err := e.beliefs.GetByID(ctx, c.BeliefA, userID)
		if err != nil {
			e.logger.Warn("conflict belief missing", zap.String("conflict_id", c.ID.String()), zap.Error(err))
			continue
		}
		b, err := e.beliefs.GetByID(ctx, c.BeliefB, userID)
		if err != nil {
			e.logger.Warn("conflict belief missing", zap.String("conflict_id", c.ID.String()), zap.Error(err))
			continue
		}

		gap := a.CurrentConfidence - b.CurrentConfidence
		if gap < 0 {
			gap = -gap
		}
		if gap < e.cfg.ConflictGap {
			if err := e.conflicts.Escalate(ctx, c.ID); err != nil {
				e.logger.Warn("conflict escalation failed", zap.String("conflict_id", c.ID.String()), zap.Error(err))
				continue
			}
			details.Escalated++
			continue
		}

		winner, loser := a, b
		if b.CurrentConfidence > a.CurrentConfidence {
			winner, loser = b, a
		}
		if err := e.conflicts.Resolve(ctx, c.ID, winner.ID); err != nil {
			e.logger.Warn("conflict resolution failed", zap.String("conflict_id", c.ID.String()), zap.Error(err))
			continue
		}
		if err := e.beliefs.UpdateStatus(ctx, loser.ID, domain.BeliefUncertain); err != nil {
			e.logger.Warn("demoting conflict loser failed", zap.String("belief_id", loser.ID.String()), zap.Error(err))
		}
		details.Resolved++
	}
	return details, nil
}

// runArchival archives low-confidence stale items and hard-deletes outcomes
// whose propagation completed long ago.
func (e *SleepEngine) runArchival(ctx context.Context, userID uuid.UUID) (domain.TaskDetails, error) {
	var details domain.TaskDetails
	cutoff := time.Now().UTC().AddDate(0, 0, -e.cfg.DecayStartDays)

	learnings, err := e.learnings.ListArchivable(ctx, userID, e.cfg.ArchivalThreshold, cutoff)
	if err != nil {
		return details, err
	}
	for _, l := range learnings {
		if err := e.learnings.UpdateStatus(ctx, l.ID, domain.LearningArchived); err != nil {
			e.logger.Warn("archiving learning failed", zap.String("learning_id", l.ID.String()), zap.Error(err))
			continue
		}
		details.Archived++
	}

	beliefs, err := e.beliefs.ListArchivable(ctx, userID, e.cfg.ArchivalThreshold, cutoff)
	if err != nil {
		return details, err
	}
	for _, b := range beliefs {
		if err := e.beliefs.UpdateStatus(ctx, b.ID, domain.BeliefArchived); err != nil {
			e.logger.Warn("archiving belief failed", zap.String("belief_id", b.ID.String()), zap.Error(err))
			continue
		}
		details.Archived++
	}

	retention := time.Now().UTC().AddDate(0, 0, -e.cfg.OutcomeRetentionDays)
	deleted, err := e.outcomeStore.DeletePropagatedOlderThan(ctx, userID, retention)
	if err != nil {
		return details, err
	}
	details.Deleted = int(deleted)
	return details, nil
}

// runSessionPrep fully regenerates the session snapshot. It runs even when
// earlier tasks were skipped for budget: a partial knowledge base still gets a
// usable snapshot.
func (e *SleepEngine) runSessionPrep(ctx context.Context, userID uuid.UUID) (domain.TaskDetails, error) {
	var details domain.TaskDetails
	now := time.Now().UTC()

	beliefs, err := e.beliefs.List(ctx, userID, domain.BeliefFilter{
		Status: domain.BeliefActive,
		Limit:  e.cfg.SnapshotSize,
	})
	if err != nil {
		return details, err
	}
	topBeliefs := make([]domain.BeliefSnapshot, 0, len(beliefs))
	for _, b := range beliefs {
		topBeliefs = append(topBeliefs, domain.BeliefSnapshot{
			ID:          b.ID,
			Proposition: b.Proposition,
			Type:        b.Type,
			Confidence:  b.CurrentConfidence,
		})
	}

	learnings, err := e.learnings.List(ctx, userID, domain.LearningFilter{
		Status: domain.LearningActive,
		Limit:  e.cfg.SnapshotSize,
	})
	if err != nil {
		return details, err
	}
	topLearnings := make([]domain.LearningSnapshot, 0, len(learnings))
	for _, l := range learnings {
		topLearnings = append(topLearnings, domain.LearningSnapshot{
			ID:         l.ID,
			Statement:  l.Statement,
			Category:   l.Category,
			Confidence: l.Confidence,
			Strength:   l.Strength,
		})
	}

	summary, err := e.outcomeStore.SummarizeFeedback(ctx, userID, now.AddDate(0, 0, -e.cfg.FeedbackWindowDay))
	if err != nil {
		return details, err
	}
	pendingConflicts, err := e.conflicts.CountUnresolved(ctx, userID)
	if err != nil {
		return details, err
	}
	pendingPropagations, err := e.outcomeStore.CountPendingPropagation(ctx, userID)
	if err != nil {
		return details, err
	}

	sc := &domain.SessionContext{
		UserID:              userID,
		TopBeliefs:          topBeliefs,
		TopLearnings:        topLearnings,
		Outcomes:            summary,
		PendingConflicts:    pendingConflicts,
		PendingPropagations: pendingPropagations,
		GeneratedAt:         now,
		ExpiresAt:           now.Add(e.cfg.SessionTTL),
	}
	if err := e.sessions.Replace(ctx, sc); err != nil {
		return details, err
	}
	details.Created = 1
	return details, nil
}

// Run executes one full job for one user. Tasks run strictly sequentially in
// the fixed order; the budget is checked before each task and exhaustion marks
// the remainder skipped, except session_prep which always runs.
func (e *SleepEngine) Run(ctx context.Context, userID uuid.UUID, trigger string) (*domain.SleepJob, error) {
	job := &domain.SleepJob{
		UserID:  userID,
		Trigger: trigger,
		Status:  domain.JobPending,
	}
	if err := e.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create sleep job: %w", err)
	}

	start := time.Now().UTC()
	job.Status = domain.JobRunning
	job.StartedAt = &start
	if err := e.jobs.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("start sleep job: %w", err)
	}

	e.logger.Info("sleep job started",
		zap.String("job_id", job.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("trigger", trigger))

	executed, failed := 0, 0
	for _, task := range domain.SleepTaskOrder {
		overBudget := time.Since(start).Milliseconds() >= e.cfg.BudgetMS
		if overBudget && task != domain.TaskSessionPrep {
			job.Tasks = append(job.Tasks, domain.TaskResult{Task: task, Status: domain.TaskSkippedStatus})
			continue
		}

		result := e.runTask(ctx, userID, task)
		job.Tasks = append(job.Tasks, result)
		executed++
		if result.Status == domain.TaskFailed {
			failed++
		}
	}

	finished := time.Now().UTC()
	job.FinishedAt = &finished
	job.DurationMS = finished.Sub(start).Milliseconds()
	job.Status = domain.JobCompleted
	if executed > 0 && failed == executed {
		job.Status = domain.JobFailed
	}
	job.Summary = buildSummary(job.Tasks)

	if err := e.jobs.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("finish sleep job: %w", err)
	}

	e.logger.Info("sleep job finished",
		zap.String("job_id", job.ID.String()),
		zap.String("status", string(job.Status)),
		zap.Int64("duration_ms", job.DurationMS),
		zap.String("summary", job.Summary))
	return job, nil
}

// buildSummary concatenates one clause per non-trivial task outcome. Purely
// observational: nothing reads it back.
func buildSummary(tasks []domain.TaskResult) string {
	var clauses []string
	for _, t := range tasks {
		switch t.Status {
		case domain.TaskFailed:
			clauses = append(clauses, fmt.Sprintf("%s failed: %s", t.Task, t.Error))
			continue
		case domain.TaskSkippedStatus:
			continue
		}

		d := t.Details
		switch t.Task {
		case domain.TaskFeedbackPropagation:
			if d.Propagated > 0 {
				clauses = append(clauses, fmt.Sprintf("propagated %d outcomes", d.Propagated))
			}
		case domain.TaskLearningExtraction:
			if d.Created > 0 || d.Reinforced > 0 {
				clauses = append(clauses, fmt.Sprintf("learned %d new, reinforced %d", d.Created, d.Reinforced))
			}
		case domain.TaskBeliefFormation:
			if d.Formed > 0 || d.Merged > 0 {
				clauses = append(clauses, fmt.Sprintf("formed %d beliefs, merged %d", d.Formed, d.Merged))
			}
		case domain.TaskConfidenceDecay:
			if d.Decayed > 0 {
				clauses = append(clauses, fmt.Sprintf("decayed %d items", d.Decayed))
			}
		case domain.TaskConflictResolution:
			if d.Resolved > 0 || d.Escalated > 0 {
				clauses = append(clauses, fmt.Sprintf("resolved %d conflicts, escalated %d", d.Resolved, d.Escalated))
			}
		case domain.TaskArchival:
			if d.Archived > 0 || d.Deleted > 0 {
				clauses = append(clauses, fmt.Sprintf("archived %d, deleted %d outcomes", d.Archived, d.Deleted))
			}
		case domain.TaskSessionPrep:
			clauses = append(clauses, "session context refreshed")
		}
	}
	return strings.Join(clauses, "; ")
}
