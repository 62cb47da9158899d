// Package service implements the consolidation engine: learning consolidation,
// belief formation, outcome feedback propagation and the sleep compute
// orchestrator that schedules them.
package service

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/haldanelabs/nightshift/internal/confidence"
	"github.com/haldanelabs/nightshift/internal/domain"
	"github.com/haldanelabs/nightshift/internal/extract"
)

const (
	// Incoming confidence more than this above the existing learning's marks
	// the new wording as a refinement candidate.
	refinementMargin = 0.20

	// Reinforcement weighting: evidence count saturates the weight at this many
	// observations.
	reinforceSaturation = 5
	reinforceBonus      = 0.1
)

// ConsolidationAction says what ConsolidateFact did with the incoming fact.
type ConsolidationAction string

const (
	ActionCreated      ConsolidationAction = "created"
	ActionReinforced   ConsolidationAction = "reinforced"
	ActionContradicted ConsolidationAction = "contradicted"
)

// ConsolidationResult reports the disposition of one extracted fact.
type ConsolidationResult struct {
	Action     ConsolidationAction `json:"action"`
	Learning   *domain.Learning    `json:"learning,omitempty"`
	Refinement bool                `json:"refinement,omitempty"`
}

// Consolidator folds extracted facts into the learning base: reinforce what is
// already known, surface contradictions, create what is new.
type Consolidator struct {
	learnings    domain.LearningStore
	observations domain.ObservationStore
	extractor    domain.Extractor
	classifier   domain.SimilarityClassifier
	logger       *zap.Logger
}

func NewConsolidator(learnings domain.LearningStore, observations domain.ObservationStore, extractor domain.Extractor, classifier domain.SimilarityClassifier, logger *zap.Logger) *Consolidator {
	return &Consolidator{
		learnings:    learnings,
		observations: observations,
		extractor:    extractor,
		classifier:   classifier,
		logger:       logger,
	}
}

// reinforcedConfidence biases a weighted average toward the side with more
// accumulated evidence.
func reinforcedConfidence(old, incoming float64, evidenceCount int) float64 {
	base := (old + incoming) / 2
	weight := math.Min(float64(evidenceCount)/reinforceSaturation, 1)
	return math.Min(1, base+reinforceBonus*weight)
}

// ConsolidateFact merges one extracted fact into the learning base. A similar
// active learning is either contradicted (left for conflict handling) or
// reinforced; otherwise a new learning is created with its first evidence link.
func (c *Consolidator) ConsolidateFact(ctx context.Context, userID uuid.UUID, fact domain.ExtractedFact, sourceType string, sourceID uuid.UUID) (*ConsolidationResult, error) {
	similar, err := c.learnings.FindSimilar(ctx, userID, fact.Category, fact.Statement)
	if err != nil {
		return nil, fmt.Errorf("find similar learnings: %w", err)
	}

	if len(similar) > 0 {
		existing := similar[0]

		if c.classifier.Contradicts(existing.Statement, fact.Statement) {
			c.logger.Info("fact contradicts existing learning",
				zap.String("learning_id", existing.ID.String()),
				zap.String("statement", fact.Statement))
			return &ConsolidationResult{Action: ActionContradicted, Learning: &existing}, nil
		}

		refinement := fact.Confidence > existing.Confidence+refinementMargin

		newConf := confidence.Clamp(reinforcedConfidence(existing.Confidence, fact.Confidence, existing.EvidenceCount+1))
		newCount := existing.EvidenceCount + 1
		if err := c.learnings.Reinforce(ctx, existing.ID, newConf, confidence.ClassifyLearning(newConf), newCount); err != nil {
			return nil, fmt.Errorf("reinforce learning: %w", err)
		}
		if err := c.learnings.UpsertEvidence(ctx, &domain.LearningEvidence{
			LearningID: existing.ID,
			SourceType: sourceType,
			SourceID:   sourceID,
			Excerpt:    fact.Excerpt,
			Confidence: fact.Confidence,
			Supports:   true,
		}); err != nil {
			return nil, fmt.Errorf("upsert learning evidence: %w", err)
		}

		existing.Confidence = newConf
		existing.Strength = confidence.ClassifyLearning(newConf)
		existing.EvidenceCount = newCount
		return &ConsolidationResult{Action: ActionReinforced, Learning: &existing, Refinement: refinement}, nil
	}

	l := &domain.Learning{
		UserID:        userID,
		Category:      fact.Category,
		Statement:     fact.Statement,
		Reasoning:     fact.Reasoning,
		Confidence:    confidence.Clamp(fact.Confidence),
		Strength:      confidence.ClassifyLearning(fact.Confidence),
		EvidenceCount: 1,
		Status:        domain.LearningActive,
	}
	if err := c.learnings.Create(ctx, l); err != nil {
		return nil, fmt.Errorf("create learning: %w", err)
	}
	if err := c.learnings.UpsertEvidence(ctx, &domain.LearningEvidence{
		LearningID: l.ID,
		SourceType: sourceType,
		SourceID:   sourceID,
		Excerpt:    fact.Excerpt,
		Confidence: fact.Confidence,
		Supports:   true,
	}); err != nil {
		return nil, fmt.Errorf("upsert learning evidence: %w", err)
	}
	return &ConsolidationResult{Action: ActionCreated, Learning: l}, nil
}

// ExtractionStats aggregates one observation-processing pass.
type ExtractionStats struct {
	Processed    int `json:"processed"`
	Created      int `json:"created"`
	Reinforced   int `json:"reinforced"`
	Contradicted int `json:"contradicted"`
	Skipped      int `json:"skipped"`
}

// ProcessObservation extracts facts from one observation and consolidates each.
// A failure on one fact does not abort its siblings.
func (c *Consolidator) ProcessObservation(ctx context.Context, obs domain.Observation) (ExtractionStats, error) {
	var stats ExtractionStats

	if !extract.WorthExtracting(obs.Content) {
		stats.Skipped++
		if err := c.observations.MarkProcessed(ctx, obs.ID); err != nil {
			return stats, fmt.Errorf("mark observation processed: %w", err)
		}
		return stats, nil
	}

	facts, err := c.extractor.Extract(ctx, obs.Content)
	if err != nil {
		return stats, fmt.Errorf("extract facts: %w", err)
	}

	for _, fact := range facts {
		res, err := c.ConsolidateFact(ctx, obs.UserID, fact, obs.SourceType, obs.ID)
		if err != nil {
			c.logger.Warn("consolidation failed for fact, continuing",
				zap.String("observation_id", obs.ID.String()),
				zap.String("statement", fact.Statement),
				zap.Error(err))
			continue
		}
		stats.Processed++
		switch res.Action {
		case ActionCreated:
			stats.Created++
		case ActionReinforced:
			stats.Reinforced++
		case ActionContradicted:
			stats.Contradicted++
		}
	}

	if err := c.observations.MarkProcessed(ctx, obs.ID); err != nil {
		return stats, fmt.Errorf("mark observation processed: %w", err)
	}
	return stats, nil
}

// ProcessPending drains unprocessed observations for a user, isolating failures
// per observation.
func (c *Consolidator) ProcessPending(ctx context.Context, userID uuid.UUID, limit int) (ExtractionStats, error) {
	observations, err := c.observations.ListUnprocessed(ctx, userID, limit)
	if err != nil {
		return ExtractionStats{}, fmt.Errorf("list unprocessed observations: %w", err)
	}

	var total ExtractionStats
	for _, obs := range observations {
		stats, err := c.ProcessObservation(ctx, obs)
		if err != nil {
			c.logger.Warn("observation processing failed, continuing",
				zap.String("observation_id", obs.ID.String()),
				zap.Error(err))
			continue
		}
		total.Processed += stats.Processed
		total.Created += stats.Created
		total.Reinforced += stats.Reinforced
		total.Contradicted += stats.Contradicted
		total.Skipped += stats.Skipped
	}
	return total, nil
}
