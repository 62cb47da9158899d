package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/haldanelabs/nightshift/internal/domain"
	"github.com/haldanelabs/nightshift/internal/extract"
	"github.com/haldanelabs/nightshift/internal/store"
)

type engineFixture struct {
	engine       *SleepEngine
	learnings    *mockLearningStore
	beliefs      *mockBeliefStore
	conflicts    *mockConflictStore
	outcomes     *mockOutcomeStore
	observations *mockObservationStore
	jobs         *mockJobStore
	sessions     *mockSessionStore
	extractor    *extract.MockExtractor
}

func newEngineFixture(cfg EngineConfig) *engineFixture {
	fx := &engineFixture{
		learnings:    newMockLearningStore(),
		beliefs:      newMockBeliefStore(),
		conflicts:    newMockConflictStore(),
		outcomes:     newMockOutcomeStore(),
		observations: newMockObservationStore(),
		jobs:         newMockJobStore(),
		sessions:     newMockSessionStore(),
		extractor:    extract.NewMockExtractor(),
	}
	fx.learnings.beliefs = fx.beliefs
	logger := zap.NewNop()
	classifier := NewKeywordClassifier()
	consolidator := NewConsolidator(fx.learnings, fx.observations, fx.extractor, classifier, logger)
	former := NewBeliefFormer(fx.beliefs, fx.learnings, fx.conflicts, classifier, logger)
	outcomes := NewOutcomeService(fx.outcomes, fx.learnings, fx.beliefs, logger)
	fx.engine = NewSleepEngine(cfg, consolidator, former, outcomes,
		fx.learnings, fx.beliefs, fx.conflicts, fx.outcomes, fx.jobs, fx.sessions, logger)
	return fx
}

func TestRun_FullPipelineOrder(t *testing.T) {
	fx := newEngineFixture(DefaultEngineConfig())
	userID := uuid.New()

	job, err := fx.engine.Run(context.Background(), userID, "manual")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if job.Status != domain.JobCompleted {
		t.Fatalf("expected completed job, got %s", job.Status)
	}
	if len(job.Tasks) != len(domain.SleepTaskOrder) {
		t.Fatalf("expected %d task results, got %d", len(domain.SleepTaskOrder), len(job.Tasks))
	}
	for i, task := range domain.SleepTaskOrder {
		if job.Tasks[i].Task != task {
			t.Errorf("task %d = %s, want %s", i, job.Tasks[i].Task, task)
		}
	}
	if job.FinishedAt == nil {
		t.Error("job missing finish timestamp")
	}
}

func TestRun_BudgetTruncationStillPreparesSession(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.BudgetMS = 0
	fx := newEngineFixture(cfg)
	userID := uuid.New()

	job, err := fx.engine.Run(context.Background(), userID, "manual")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if job.Status != domain.JobCompleted {
		t.Fatalf("budget exhaustion is not a failure, got %s", job.Status)
	}

	for _, tr := range job.Tasks {
		if tr.Task == domain.TaskSessionPrep {
			if tr.Status != domain.TaskCompleted {
				t.Errorf("session_prep must run despite exhausted budget, got %s", tr.Status)
			}
			continue
		}
		if tr.Status != domain.TaskSkippedStatus {
			t.Errorf("task %s should be skipped under zero budget, got %s", tr.Task, tr.Status)
		}
	}

	if _, err := fx.sessions.Get(context.Background(), userID); err != nil {
		t.Errorf("expected a fresh session context, got %v", err)
	}
}

func TestRun_EndToEndConsolidation(t *testing.T) {
	fx := newEngineFixture(DefaultEngineConfig())
	userID := uuid.New()
	ctx := context.Background()

	fx.extractor.Response = []domain.ExtractedFact{{
		Category:   domain.CategoryPreference,
		Statement:  "User prefers morning meetings",
		Confidence: 0.7,
	}}
	obs := &domain.Observation{
		UserID:     userID,
		SourceType: "conversation",
		Content:    "I prefer my meetings in the morning, ideally before ten if the calendar allows.",
	}
	if err := fx.observations.Create(ctx, obs); err != nil {
		t.Fatalf("create observation: %v", err)
	}

	job, err := fx.engine.Run(ctx, userID, "manual")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if job.Status != domain.JobCompleted {
		t.Fatalf("expected completed job, got %s (summary %q)", job.Status, job.Summary)
	}

	if len(fx.learnings.items) != 1 {
		t.Fatalf("expected 1 learning from extraction, got %d", len(fx.learnings.items))
	}
	if len(fx.beliefs.items) != 1 {
		t.Fatalf("expected belief formation to promote the learning, got %d beliefs", len(fx.beliefs.items))
	}

	sc, err := fx.sessions.Get(ctx, userID)
	if err != nil {
		t.Fatalf("session context: %v", err)
	}
	if len(sc.TopBeliefs) != 1 || len(sc.TopLearnings) != 1 {
		t.Errorf("snapshot has %d beliefs / %d learnings, want 1/1",
			len(sc.TopBeliefs), len(sc.TopLearnings))
	}
	if job.Summary == "" {
		t.Error("expected a non-empty job summary")
	}
}

func TestRun_AutoResolvesDecisiveConflict(t *testing.T) {
	fx := newEngineFixture(DefaultEngineConfig())
	userID := uuid.New()
	ctx := context.Background()

	strong := &domain.Belief{UserID: userID, Proposition: "User prefers mornings.", Type: domain.BeliefPreference, CurrentConfidence: 0.9}
	weak := &domain.Belief{UserID: userID, Proposition: "User prefers evenings.", Type: domain.BeliefPreference, CurrentConfidence: 0.5}
	if err := fx.beliefs.Create(ctx, strong); err != nil {
		t.Fatal(err)
	}
	if err := fx.beliefs.Create(ctx, weak); err != nil {
		t.Fatal(err)
	}
	a, b := store.CanonicalPair(strong.ID, weak.ID)
	if _, err := fx.conflicts.Record(ctx, &domain.BeliefConflict{
		UserID: userID, BeliefA: a, BeliefB: b, Type: domain.ConflictContradiction,
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := fx.engine.Run(ctx, userID, "manual"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	unresolved, _ := fx.conflicts.CountUnresolved(ctx, userID)
	if unresolved != 0 {
		t.Fatalf("expected conflict resolved, %d still unresolved", unresolved)
	}
	for _, c := range fx.conflicts.items {
		if c.Status != domain.ConflictResolved {
			t.Fatalf("expected resolved status, got %s", c.Status)
		}
		if c.WinnerID == nil || *c.WinnerID != strong.ID {
			t.Error("expected the higher-confidence belief to win")
		}
	}

	loser, _ := fx.beliefs.GetByID(ctx, weak.ID, userID)
	if loser.Status != domain.BeliefUncertain {
		t.Errorf("expected loser to become uncertain, got %s", loser.Status)
	}
}

func TestRun_EscalatesCloseConflict(t *testing.T) {
	fx := newEngineFixture(DefaultEngineConfig())
	userID := uuid.New()
	ctx := context.Background()

	first := &domain.Belief{UserID: userID, Proposition: "User prefers mornings.", Type: domain.BeliefPreference, CurrentConfidence: 0.6}
	second := &domain.Belief{UserID: userID, Proposition: "User prefers evenings.", Type: domain.BeliefPreference, CurrentConfidence: 0.5}
	if err := fx.beliefs.Create(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := fx.beliefs.Create(ctx, second); err != nil {
		t.Fatal(err)
	}
	a, b := store.CanonicalPair(first.ID, second.ID)
	if _, err := fx.conflicts.Record(ctx, &domain.BeliefConflict{
		UserID: userID, BeliefA: a, BeliefB: b, Type: domain.ConflictContradiction,
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := fx.engine.Run(ctx, userID, "manual"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, c := range fx.conflicts.items {
		if c.Status != domain.ConflictEscalated {
			t.Errorf("close conflict should escalate, got %s", c.Status)
		}
	}
}

func TestRun_DecayWeakensStaleItems(t *testing.T) {
	fx := newEngineFixture(DefaultEngineConfig())
	userID := uuid.New()
	ctx := context.Background()

	l := &domain.Learning{UserID: userID, Category: domain.CategoryHabit, Statement: "User checks email hourly", Confidence: 0.21}
	if err := fx.learnings.Create(ctx, l); err != nil {
		t.Fatal(err)
	}
	// Backdate past the decay window.
	fx.learnings.items[l.ID].UpdatedAt = time.Now().UTC().AddDate(0, 0, -30)

	if _, err := fx.engine.Run(ctx, userID, "manual"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, _ := fx.learnings.GetByID(ctx, l.ID, userID)
	if got.Confidence >= 0.21 {
		t.Errorf("expected decay to lower confidence, got %.3f", got.Confidence)
	}
	if got.Status != domain.LearningWeakened {
		t.Errorf("expected weakened status below archival threshold, got %s", got.Status)
	}
}

func TestRun_ArchivalDeletesOldPropagatedOutcomes(t *testing.T) {
	fx := newEngineFixture(DefaultEngineConfig())
	userID := uuid.New()
	ctx := context.Background()

	o := &domain.Outcome{UserID: userID, ActionType: domain.ActionAnswer, Content: "answered", Feedback: domain.FeedbackPositive}
	if err := fx.outcomes.Create(ctx, o, nil); err != nil {
		t.Fatal(err)
	}
	fx.outcomes.items[o.ID].FeedbackPropagated = true
	fx.outcomes.items[o.ID].CreatedAt = time.Now().UTC().AddDate(0, 0, -200)

	job, err := fx.engine.Run(ctx, userID, "manual")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, ok := fx.outcomes.items[o.ID]; ok {
		t.Error("expected 200-day-old propagated outcome to be deleted")
	}

	var archival *domain.TaskResult
	for i := range job.Tasks {
		if job.Tasks[i].Task == domain.TaskArchival {
			archival = &job.Tasks[i]
		}
	}
	if archival == nil || archival.Details.Deleted != 1 {
		t.Errorf("archival task should report one deletion, got %+v", archival)
	}
}
