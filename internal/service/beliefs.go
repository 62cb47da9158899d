package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/haldanelabs/nightshift/internal/domain"
	"github.com/haldanelabs/nightshift/internal/store"
)

const (
	// FormationMinConfidence is the floor below which a learning is not
	// promoted to a belief.
	FormationMinConfidence = 0.5

	// backfillCap bounds a backfill run so a pathological base cannot loop
	// forever.
	backfillCap = 10000
)

// categoryToBeliefType is the fixed promotion mapping from learning categories
// to belief types.
var categoryToBeliefType = map[domain.LearningCategory]domain.BeliefType{
	domain.CategoryPreference:    domain.BeliefPreference,
	domain.CategoryHabit:         domain.BeliefState,
	domain.CategoryRelationship:  domain.BeliefRelationship,
	domain.CategoryGoal:          domain.BeliefIntention,
	domain.CategorySkill:         domain.BeliefCapability,
	domain.CategoryContext:       domain.BeliefFact,
	domain.CategoryIdentity:      domain.BeliefIdentity,
	domain.CategoryCommunication: domain.BeliefPreference,
}

// FormationStats aggregates one belief formation pass.
type FormationStats struct {
	Formed    int `json:"formed"`
	Merged    int `json:"merged"`
	Skipped   int `json:"skipped"`
	Conflicts int `json:"conflicts"`
}

// BeliefFormer promotes high-confidence learnings into beliefs, merging
// duplicates and recording conflicts along the way.
type BeliefFormer struct {
	beliefs    domain.BeliefStore
	learnings  domain.LearningStore
	conflicts  domain.ConflictStore
	classifier domain.SimilarityClassifier
	logger     *zap.Logger

	// MinConfidence is the formation eligibility floor.
	MinConfidence float64
}

func NewBeliefFormer(beliefs domain.BeliefStore, learnings domain.LearningStore, conflicts domain.ConflictStore, classifier domain.SimilarityClassifier, logger *zap.Logger) *BeliefFormer {
	return &BeliefFormer{
		beliefs:       beliefs,
		learnings:     learnings,
		conflicts:     conflicts,
		classifier:    classifier,
		logger:        logger,
		MinConfidence: FormationMinConfidence,
	}
}

// buildProposition normalizes a learning statement into a belief proposition.
func buildProposition(statement string) string {
	p := strings.TrimSpace(statement)
	if p == "" {
		return p
	}
	switch p[len(p)-1] {
	case '.', '!', '?':
	default:
		p += "."
	}
	return p
}

// FormBeliefFromLearning promotes one learning. Formation is idempotent per
// learning: if a belief already derives from it, the call is a skip. A
// near-duplicate existing belief absorbs the learning as supporting evidence
// instead of creating a new row.
func (f *BeliefFormer) FormBeliefFromLearning(ctx context.Context, l domain.Learning) (*domain.Belief, FormationStats, error) {
	var stats FormationStats

	if _, err := f.beliefs.GetByDerivedFrom(ctx, l.UserID, l.ID); err == nil {
		stats.Skipped++
		return nil, stats, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, stats, fmt.Errorf("check derived belief: %w", err)
	}

	beliefType, ok := categoryToBeliefType[l.Category]
	if !ok {
		beliefType = domain.BeliefFact
	}
	proposition := buildProposition(l.Statement)

	similar, err := f.beliefs.FindSimilar(ctx, l.UserID, beliefType, proposition)
	if err != nil {
		return nil, stats, fmt.Errorf("find similar beliefs: %w", err)
	}

	type pendingConflict struct {
		other uuid.UUID
		kind  domain.ConflictType
	}
	var pending []pendingConflict

	for _, existing := range similar {
		verdict := f.classifier.Classify(existing.Proposition, proposition)
		switch verdict.Kind {
		case domain.MatchDuplicate:
			merged, err := f.beliefs.ApplyBayesianUpdate(ctx, existing.ID, l.UserID, l.Confidence, true, "merged duplicate learning", &l.ID)
			if err != nil {
				return nil, stats, fmt.Errorf("merge duplicate belief: %w", err)
			}
			// The evidence link marks the learning as consumed so later
			// passes do not re-merge it and ratchet the confidence.
			if err := f.beliefs.UpsertEvidence(ctx, &domain.BeliefEvidence{
				BeliefID:     merged.ID,
				SourceType:   "learning",
				SourceID:     l.ID,
				Excerpt:      l.Statement,
				EvidenceType: domain.EvidenceLearned,
				Supports:     true,
				Strength:     l.Confidence,
			}); err != nil {
				return nil, stats, fmt.Errorf("link merged evidence: %w", err)
			}
			stats.Merged++
			return merged, stats, nil
		case domain.MatchContradiction:
			pending = append(pending, pendingConflict{other: existing.ID, kind: domain.ConflictContradiction})
		case domain.MatchTemporal:
			pending = append(pending, pendingConflict{other: existing.ID, kind: domain.ConflictTemporal})
		}
	}

	b := &domain.Belief{
		UserID:              l.UserID,
		Proposition:         proposition,
		Type:                beliefType,
		Domain:              string(l.Category),
		PriorConfidence:     l.Confidence,
		CurrentConfidence:   l.Confidence,
		SupportingCount:     1,
		DerivedFromLearning: &l.ID,
		Status:              domain.BeliefActive,
	}
	if err := f.beliefs.Create(ctx, b); err != nil {
		return nil, stats, fmt.Errorf("create belief: %w", err)
	}

	if err := f.beliefs.UpsertEvidence(ctx, &domain.BeliefEvidence{
		BeliefID:     b.ID,
		SourceType:   "learning",
		SourceID:     l.ID,
		Excerpt:      l.Statement,
		EvidenceType: domain.EvidenceLearned,
		Supports:     true,
		Strength:     l.Confidence,
	}); err != nil {
		return nil, stats, fmt.Errorf("link belief evidence: %w", err)
	}

	for _, pc := range pending {
		a, bID := store.CanonicalPair(b.ID, pc.other)
		if _, err := f.conflicts.Record(ctx, &domain.BeliefConflict{
			UserID:  l.UserID,
			BeliefA: a,
			BeliefB: bID,
			Type:    pc.kind,
			Status:  domain.ConflictUnresolved,
		}); err != nil {
			f.logger.Warn("recording belief conflict failed",
				zap.String("belief_id", b.ID.String()),
				zap.Error(err))
			continue
		}
		stats.Conflicts++
	}

	stats.Formed++
	return b, stats, nil
}

// FormBeliefs runs one formation pass over eligible learnings. Failures on one
// learning do not abort the pass.
func (f *BeliefFormer) FormBeliefs(ctx context.Context, userID uuid.UUID, batchSize int) (FormationStats, error) {
	eligible, err := f.learnings.ListEligibleForFormation(ctx, userID, f.MinConfidence, batchSize)
	if err != nil {
		return FormationStats{}, fmt.Errorf("list eligible learnings: %w", err)
	}

	var total FormationStats
	for _, l := range eligible {
		_, stats, err := f.FormBeliefFromLearning(ctx, l)
		if err != nil {
			f.logger.Warn("belief formation failed for learning, continuing",
				zap.String("learning_id", l.ID.String()),
				zap.Error(err))
			continue
		}
		total.Formed += stats.Formed
		total.Merged += stats.Merged
		total.Skipped += stats.Skipped
		total.Conflicts += stats.Conflicts
	}
	return total, nil
}

// BackfillBeliefs repeatedly runs formation passes until a pass yields fewer
// formed+skipped than the batch size, or the safety cap is hit. Resumable: each
// pass re-queries eligibility, so interrupted backfills pick up where they left
// off.
func (f *BeliefFormer) BackfillBeliefs(ctx context.Context, userID uuid.UUID, batchSize int) (FormationStats, error) {
	if batchSize <= 0 {
		batchSize = 50
	}

	var total FormationStats
	seen := 0
	for seen < backfillCap {
		stats, err := f.FormBeliefs(ctx, userID, batchSize)
		if err != nil {
			return total, err
		}
		total.Formed += stats.Formed
		total.Merged += stats.Merged
		total.Skipped += stats.Skipped
		total.Conflicts += stats.Conflicts

		progressed := stats.Formed + stats.Skipped
		seen += progressed
		if progressed < batchSize {
			break
		}
	}
	return total, nil
}
