package service

import (
	"context"
	"math"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/haldanelabs/nightshift/internal/domain"
)

func newTestOutcomeService() (*OutcomeService, *mockOutcomeStore, *mockLearningStore, *mockBeliefStore) {
	outcomes := newMockOutcomeStore()
	learnings := newMockLearningStore()
	beliefs := newMockBeliefStore()
	s := NewOutcomeService(outcomes, learnings, beliefs, zap.NewNop())
	return s, outcomes, learnings, beliefs
}

func seedOutcome(t *testing.T, s *OutcomeService, userID uuid.UUID, signal domain.FeedbackSignal, sources []domain.OutcomeSource) *domain.Outcome {
	t.Helper()
	o, err := s.RecordOutcome(context.Background(), &domain.Outcome{
		UserID:     userID,
		ActionType: domain.ActionSuggestion,
		Content:    "suggested a morning slot",
	}, sources)
	if err != nil {
		t.Fatalf("record outcome: %v", err)
	}
	if signal != "" {
		if err := s.RecordFeedback(context.Background(), o.ID, userID, signal, domain.OriginUserExplicit); err != nil {
			t.Fatalf("record feedback: %v", err)
		}
	}
	return o
}

func TestPropagateOutcome_NudgesLearning(t *testing.T) {
	s, _, learnings, _ := newTestOutcomeService()
	userID := uuid.New()

	l := &domain.Learning{UserID: userID, Category: domain.CategoryPreference, Statement: "User prefers mornings", Confidence: 0.6}
	if err := learnings.Create(context.Background(), l); err != nil {
		t.Fatalf("create learning: %v", err)
	}

	o := seedOutcome(t, s, userID, domain.FeedbackPositive, []domain.OutcomeSource{
		{Kind: domain.SourceLearning, SourceID: l.ID, Weight: 1.0},
	})

	stats, err := s.PropagateOutcome(context.Background(), o.ID, userID)
	if err != nil {
		t.Fatalf("PropagateOutcome: %v", err)
	}
	if stats.Propagated != 1 || stats.Updated != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	got, _ := learnings.GetByID(context.Background(), l.ID, userID)
	if math.Abs(got.Confidence-0.65) > 1e-9 {
		t.Errorf("expected confidence 0.65 after +0.05 nudge, got %.3f", got.Confidence)
	}
}

func TestPropagateOutcome_NudgeClampsAtCeiling(t *testing.T) {
	s, _, learnings, _ := newTestOutcomeService()
	userID := uuid.New()

	l := &domain.Learning{UserID: userID, Category: domain.CategoryPreference, Statement: "User prefers mornings", Confidence: 0.97}
	if err := learnings.Create(context.Background(), l); err != nil {
		t.Fatalf("create learning: %v", err)
	}

	o := seedOutcome(t, s, userID, domain.FeedbackPositive, []domain.OutcomeSource{
		{Kind: domain.SourceLearning, SourceID: l.ID, Weight: 1.0},
	})
	if _, err := s.PropagateOutcome(context.Background(), o.ID, userID); err != nil {
		t.Fatalf("PropagateOutcome: %v", err)
	}

	got, _ := learnings.GetByID(context.Background(), l.ID, userID)
	if math.Abs(got.Confidence-0.99) > 1e-9 {
		t.Errorf("expected nudge to clamp at 0.99, got %.3f", got.Confidence)
	}
	if got.Strength != domain.StrengthDefinitive {
		t.Errorf("clamped confidence should classify as definitive, got %s", got.Strength)
	}
}

func TestPropagateOutcome_NegativeFeedbackLowersBelief(t *testing.T) {
	s, _, _, beliefs := newTestOutcomeService()
	userID := uuid.New()

	b := &domain.Belief{UserID: userID, Proposition: "User prefers mornings.", Type: domain.BeliefPreference, PriorConfidence: 0.8, CurrentConfidence: 0.8}
	if err := beliefs.Create(context.Background(), b); err != nil {
		t.Fatalf("create belief: %v", err)
	}

	o := seedOutcome(t, s, userID, domain.FeedbackNegative, []domain.OutcomeSource{
		{Kind: domain.SourceBelief, SourceID: b.ID, Weight: 1.0},
	})

	if _, err := s.PropagateOutcome(context.Background(), o.ID, userID); err != nil {
		t.Fatalf("PropagateOutcome: %v", err)
	}

	got, _ := beliefs.GetByID(context.Background(), b.ID, userID)
	if got.CurrentConfidence >= 0.8 {
		t.Errorf("negative feedback should lower confidence, got %.3f", got.CurrentConfidence)
	}
	if got.ContradictingCount != 1 {
		t.Errorf("expected contradicting count 1, got %d", got.ContradictingCount)
	}
}

func TestPropagateOutcome_Idempotent(t *testing.T) {
	s, _, learnings, _ := newTestOutcomeService()
	userID := uuid.New()

	l := &domain.Learning{UserID: userID, Category: domain.CategoryPreference, Statement: "User prefers mornings", Confidence: 0.6}
	if err := learnings.Create(context.Background(), l); err != nil {
		t.Fatalf("create learning: %v", err)
	}

	o := seedOutcome(t, s, userID, domain.FeedbackPositive, []domain.OutcomeSource{
		{Kind: domain.SourceLearning, SourceID: l.ID, Weight: 1.0},
	})

	if _, err := s.PropagateOutcome(context.Background(), o.ID, userID); err != nil {
		t.Fatalf("first propagation: %v", err)
	}
	after, _ := learnings.GetByID(context.Background(), l.ID, userID)

	stats, err := s.PropagateOutcome(context.Background(), o.ID, userID)
	if err != nil {
		t.Fatalf("second propagation: %v", err)
	}
	if stats.Propagated != 0 || stats.Updated != 0 {
		t.Fatalf("second propagation must be a no-op, got %+v", stats)
	}

	again, _ := learnings.GetByID(context.Background(), l.ID, userID)
	if again.Confidence != after.Confidence {
		t.Errorf("confidence changed on repeated propagation: %.3f -> %.3f", after.Confidence, again.Confidence)
	}
}

func TestPropagateOutcome_SkipsTinyAndMemorySources(t *testing.T) {
	s, _, learnings, _ := newTestOutcomeService()
	userID := uuid.New()

	l := &domain.Learning{UserID: userID, Category: domain.CategoryPreference, Statement: "User prefers mornings", Confidence: 0.6}
	if err := learnings.Create(context.Background(), l); err != nil {
		t.Fatalf("create learning: %v", err)
	}

	o := seedOutcome(t, s, userID, domain.FeedbackPositive, []domain.OutcomeSource{
		{Kind: domain.SourceLearning, SourceID: l.ID, Weight: 0.1},
		{Kind: domain.SourceMemory, SourceID: uuid.New(), Weight: 1.0},
	})

	stats, err := s.PropagateOutcome(context.Background(), o.ID, userID)
	if err != nil {
		t.Fatalf("PropagateOutcome: %v", err)
	}
	if stats.Updated != 0 || stats.Skipped != 2 {
		t.Fatalf("expected both sources skipped, got %+v", stats)
	}

	got, _ := learnings.GetByID(context.Background(), l.ID, userID)
	if got.Confidence != 0.6 {
		t.Errorf("tiny scaled change must not move confidence, got %.3f", got.Confidence)
	}
}

func TestPropagateOutcome_NeutralIsNoOp(t *testing.T) {
	s, outcomes, _, _ := newTestOutcomeService()
	userID := uuid.New()

	o := seedOutcome(t, s, userID, domain.FeedbackNeutral, nil)
	stats, err := s.PropagateOutcome(context.Background(), o.ID, userID)
	if err != nil {
		t.Fatalf("PropagateOutcome: %v", err)
	}
	if stats.Propagated != 0 {
		t.Fatalf("neutral feedback must not propagate, got %+v", stats)
	}
	got, _ := outcomes.GetByID(context.Background(), o.ID, userID)
	if got.FeedbackPropagated {
		t.Error("neutral outcome must not be marked propagated")
	}
}

func TestProcessPendingPropagations(t *testing.T) {
	s, outcomes, learnings, _ := newTestOutcomeService()
	userID := uuid.New()

	l := &domain.Learning{UserID: userID, Category: domain.CategoryPreference, Statement: "User prefers mornings", Confidence: 0.5}
	if err := learnings.Create(context.Background(), l); err != nil {
		t.Fatalf("create learning: %v", err)
	}

	for i := 0; i < 3; i++ {
		seedOutcome(t, s, userID, domain.FeedbackPositive, []domain.OutcomeSource{
			{Kind: domain.SourceLearning, SourceID: l.ID, Weight: 1.0},
		})
	}

	stats, err := s.ProcessPendingPropagations(context.Background(), userID, 10)
	if err != nil {
		t.Fatalf("ProcessPendingPropagations: %v", err)
	}
	if stats.Propagated != 3 {
		t.Fatalf("expected 3 propagated, got %+v", stats)
	}

	pending, _ := outcomes.CountPendingPropagation(context.Background(), userID)
	if pending != 0 {
		t.Errorf("expected no pending propagations, got %d", pending)
	}

	got, _ := learnings.GetByID(context.Background(), l.ID, userID)
	if math.Abs(got.Confidence-0.65) > 1e-9 {
		t.Errorf("expected three +0.05 nudges to land at 0.65, got %.3f", got.Confidence)
	}
}
