package service

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/haldanelabs/nightshift/internal/domain"
)

const (
	positiveBaseChange = 0.05
	negativeBaseChange = -0.08

	// Scaled changes smaller than this are noise and skipped.
	minScaledChange = 0.01
	// Scaled changes are clamped to this magnitude regardless of weight.
	maxScaledChange = 0.15
)

// PropagationStats aggregates one propagation pass.
type PropagationStats struct {
	Propagated int `json:"propagated"`
	Updated    int `json:"updated"`
	Skipped    int `json:"skipped"`
}

// OutcomeService records actions the system took and feeds real-world feedback
// back into the confidence of the knowledge that informed them.
type OutcomeService struct {
	outcomes  domain.OutcomeStore
	learnings domain.LearningStore
	beliefs   domain.BeliefStore
	logger    *zap.Logger
}

func NewOutcomeService(outcomes domain.OutcomeStore, learnings domain.LearningStore, beliefs domain.BeliefStore, logger *zap.Logger) *OutcomeService {
	return &OutcomeService{
		outcomes:  outcomes,
		learnings: learnings,
		beliefs:   beliefs,
		logger:    logger,
	}
}

// RecordOutcome persists the outcome and its contributing sources. Sources with
// no explicit weight default to full contribution.
func (s *OutcomeService) RecordOutcome(ctx context.Context, o *domain.Outcome, sources []domain.OutcomeSource) (*domain.Outcome, error) {
	if o.Feedback == "" {
		o.Feedback = domain.FeedbackUnknown
	}
	if err := s.outcomes.Create(ctx, o, sources); err != nil {
		return nil, fmt.Errorf("record outcome: %w", err)
	}
	return o, nil
}

// RecordFeedback attaches a feedback signal to an existing outcome.
func (s *OutcomeService) RecordFeedback(ctx context.Context, id uuid.UUID, userID uuid.UUID, signal domain.FeedbackSignal, origin domain.FeedbackOrigin) error {
	return s.outcomes.SetFeedback(ctx, id, userID, signal, origin)
}

// PropagateOutcome pushes an outcome's feedback into each contributing source.
// Neutral and unknown signals are a zero-cost success. The outcome is reloaded
// at entry so an already-propagated outcome is a no-op even on a stale caller
// copy, and marked propagated exactly once regardless of per-source results.
func (s *OutcomeService) PropagateOutcome(ctx context.Context, id uuid.UUID, userID uuid.UUID) (PropagationStats, error) {
	var stats PropagationStats

	o, err := s.outcomes.GetByID(ctx, id, userID)
	if err != nil {
		return stats, fmt.Errorf("load outcome: %w", err)
	}
	if o.FeedbackPropagated {
		return stats, nil
	}
	if !o.Feedback.HasEffect() {
		return stats, nil
	}

	baseChange := positiveBaseChange
	if o.Feedback == domain.FeedbackNegative {
		baseChange = negativeBaseChange
	}
	isPositive := o.Feedback == domain.FeedbackPositive

	sources, err := s.outcomes.ListSources(ctx, o.ID)
	if err != nil {
		return stats, fmt.Errorf("list outcome sources: %w", err)
	}

	for _, src := range sources {
		scaled := baseChange * src.Weight
		if math.Abs(scaled) < minScaledChange {
			stats.Skipped++
			continue
		}
		if scaled > maxScaledChange {
			scaled = maxScaledChange
		} else if scaled < -maxScaledChange {
			scaled = -maxScaledChange
		}

		switch src.Kind {
		case domain.SourceMemory:
			// Informational only, no confidence to adjust.
			stats.Skipped++
		case domain.SourceLearning:
			if err := s.learnings.NudgeConfidence(ctx, src.SourceID, userID, scaled); err != nil {
				s.logger.Warn("nudging learning confidence failed",
					zap.String("learning_id", src.SourceID.String()),
					zap.Error(err))
				stats.Skipped++
				continue
			}
			stats.Updated++
		case domain.SourceBelief:
			strength := math.Abs(scaled) * 2
			if _, err := s.beliefs.ApplyBayesianUpdate(ctx, src.SourceID, userID, strength, isPositive, "outcome feedback", &o.ID); err != nil {
				s.logger.Warn("belief feedback update failed",
					zap.String("belief_id", src.SourceID.String()),
					zap.Error(err))
				stats.Skipped++
				continue
			}
			stats.Updated++
		default:
			stats.Skipped++
		}
	}

	flipped, err := s.outcomes.MarkPropagated(ctx, o.ID)
	if err != nil {
		return stats, fmt.Errorf("mark outcome propagated: %w", err)
	}
	if flipped {
		stats.Propagated++
	}
	return stats, nil
}

// ProcessPendingPropagations propagates the oldest feedback-bearing outcomes up
// to limit, sequentially, isolating per-outcome failures.
func (s *OutcomeService) ProcessPendingPropagations(ctx context.Context, userID uuid.UUID, limit int) (PropagationStats, error) {
	pending, err := s.outcomes.ListPendingPropagation(ctx, userID, limit)
	if err != nil {
		return PropagationStats{}, fmt.Errorf("list pending propagations: %w", err)
	}

	var total PropagationStats
	for _, o := range pending {
		stats, err := s.PropagateOutcome(ctx, o.ID, userID)
		if err != nil {
			s.logger.Warn("outcome propagation failed, continuing",
				zap.String("outcome_id", o.ID.String()),
				zap.Error(err))
			continue
		}
		total.Propagated += stats.Propagated
		total.Updated += stats.Updated
		total.Skipped += stats.Skipped
	}
	return total, nil
}
