package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haldanelabs/nightshift/internal/confidence"
	"github.com/haldanelabs/nightshift/internal/domain"
	"github.com/haldanelabs/nightshift/internal/store"
)

// In-memory store doubles. They mirror the persistence semantics the services
// rely on (canonical conflict pairs, single-flip propagation marks, capped
// belief history) without a database.

type mockLearningStore struct {
	items    map[uuid.UUID]*domain.Learning
	evidence []domain.LearningEvidence

	// beliefs, when wired, lets eligibility mirror the NOT EXISTS
	// exclusions of the real query.
	beliefs *mockBeliefStore
}

func newMockLearningStore() *mockLearningStore {
	return &mockLearningStore{items: make(map[uuid.UUID]*domain.Learning)}
}

func (m *mockLearningStore) Create(ctx context.Context, l *domain.Learning) error {
	l.ID = uuid.New()
	if l.Status == "" {
		l.Status = domain.LearningActive
	}
	if l.EvidenceCount == 0 {
		l.EvidenceCount = 1
	}
	now := time.Now().UTC()
	l.LastReinforcedAt = &now
	l.CreatedAt = now
	l.UpdatedAt = now
	cp := *l
	m.items[l.ID] = &cp
	return nil
}

func (m *mockLearningStore) GetByID(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*domain.Learning, error) {
	l, ok := m.items[id]
	if !ok || l.UserID != userID {
		return nil, store.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *mockLearningStore) List(ctx context.Context, userID uuid.UUID, f domain.LearningFilter) ([]domain.Learning, error) {
	var out []domain.Learning
	for _, l := range m.items {
		if l.UserID != userID {
			continue
		}
		if f.Category != "" && l.Category != f.Category {
			continue
		}
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		if f.MinConfidence > 0 && l.Confidence < f.MinConfidence {
			continue
		}
		out = append(out, *l)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *mockLearningStore) FindSimilar(ctx context.Context, userID uuid.UUID, category domain.LearningCategory, statement string) ([]domain.Learning, error) {
	var out []domain.Learning
	for _, l := range m.items {
		if l.UserID != userID || l.Category != category || l.Status != domain.LearningActive {
			continue
		}
		if shareToken(l.Statement, statement) {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (m *mockLearningStore) Reinforce(ctx context.Context, id uuid.UUID, conf float64, strength domain.Strength, evidenceCount int) error {
	l, ok := m.items[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	l.Confidence = conf
	l.Strength = strength
	l.EvidenceCount = evidenceCount
	l.LastReinforcedAt = &now
	l.UpdatedAt = now
	return nil
}

func (m *mockLearningStore) NudgeConfidence(ctx context.Context, id uuid.UUID, userID uuid.UUID, delta float64) error {
	l, ok := m.items[id]
	if !ok || l.UserID != userID {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	l.Confidence = confidence.Clamp(l.Confidence + delta)
	l.Strength = confidence.ClassifyLearning(l.Confidence)
	l.LastReinforcedAt = &now
	l.UpdatedAt = now
	return nil
}

func (m *mockLearningStore) SetDecayed(ctx context.Context, id uuid.UUID, conf float64, strength domain.Strength, status domain.LearningStatus) error {
	l, ok := m.items[id]
	if !ok {
		return store.ErrNotFound
	}
	l.Confidence = conf
	l.Strength = strength
	l.Status = status
	l.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *mockLearningStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.LearningStatus) error {
	l, ok := m.items[id]
	if !ok {
		return store.ErrNotFound
	}
	l.Status = status
	return nil
}

func (m *mockLearningStore) ListStale(ctx context.Context, userID uuid.UUID, before time.Time) ([]domain.Learning, error) {
	var out []domain.Learning
	for _, l := range m.items {
		if l.UserID == userID && l.Status == domain.LearningActive && l.UpdatedAt.Before(before) {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (m *mockLearningStore) ListArchivable(ctx context.Context, userID uuid.UUID, maxConfidence float64, before time.Time) ([]domain.Learning, error) {
	var out []domain.Learning
	for _, l := range m.items {
		if l.UserID != userID || l.Confidence >= maxConfidence || !l.UpdatedAt.Before(before) {
			continue
		}
		if l.Status == domain.LearningActive || l.Status == domain.LearningWeakened {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (m *mockLearningStore) ListEligibleForFormation(ctx context.Context, userID uuid.UUID, minConfidence float64, limit int) ([]domain.Learning, error) {
	var out []domain.Learning
	for _, l := range m.items {
		if l.UserID == userID && l.Status == domain.LearningActive && l.Confidence >= minConfidence && !m.consumedByBelief(l.ID) {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// consumedByBelief mirrors the eligibility exclusions: a learning with a
// derived belief or a merged evidence link is done with formation.
func (m *mockLearningStore) consumedByBelief(learningID uuid.UUID) bool {
	if m.beliefs == nil {
		return false
	}
	for _, b := range m.beliefs.items {
		if b.DerivedFromLearning != nil && *b.DerivedFromLearning == learningID {
			return true
		}
	}
	for _, e := range m.beliefs.evidence {
		if e.SourceType == "learning" && e.SourceID == learningID {
			return true
		}
	}
	return false
}

func (m *mockLearningStore) UpsertEvidence(ctx context.Context, e *domain.LearningEvidence) error {
	for i, ex := range m.evidence {
		if ex.LearningID == e.LearningID && ex.SourceType == e.SourceType && ex.SourceID == e.SourceID {
			e.ID = ex.ID
			m.evidence[i] = *e
			return nil
		}
	}
	e.ID = uuid.New()
	e.CreatedAt = time.Now().UTC()
	m.evidence = append(m.evidence, *e)
	return nil
}

func (m *mockLearningStore) ListDistinctUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, l := range m.items {
		if !seen[l.UserID] {
			seen[l.UserID] = true
			out = append(out, l.UserID)
		}
	}
	return out, nil
}

type mockBeliefStore struct {
	items    map[uuid.UUID]*domain.Belief
	evidence []domain.BeliefEvidence
}

func newMockBeliefStore() *mockBeliefStore {
	return &mockBeliefStore{items: make(map[uuid.UUID]*domain.Belief)}
}

func (m *mockBeliefStore) Create(ctx context.Context, b *domain.Belief) error {
	b.ID = uuid.New()
	if b.Status == "" {
		b.Status = domain.BeliefActive
	}
	if len(b.History) == 0 {
		b.History = []domain.ConfidenceEntry{{
			Timestamp: time.Now().UTC(),
			Value:     b.CurrentConfidence,
			Reason:    "initial",
		}}
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	cp := *b
	m.items[b.ID] = &cp
	return nil
}

func (m *mockBeliefStore) GetByID(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*domain.Belief, error) {
	b, ok := m.items[id]
	if !ok || b.UserID != userID {
		return nil, store.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *mockBeliefStore) List(ctx context.Context, userID uuid.UUID, f domain.BeliefFilter) ([]domain.Belief, error) {
	var out []domain.Belief
	for _, b := range m.items {
		if b.UserID != userID {
			continue
		}
		if f.Type != "" && b.Type != f.Type {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if f.MinConfidence > 0 && b.CurrentConfidence < f.MinConfidence {
			continue
		}
		out = append(out, *b)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *mockBeliefStore) FindSimilar(ctx context.Context, userID uuid.UUID, beliefType domain.BeliefType, proposition string) ([]domain.Belief, error) {
	var out []domain.Belief
	for _, b := range m.items {
		if b.UserID != userID || b.Type != beliefType || b.Status != domain.BeliefActive {
			continue
		}
		if shareToken(b.Proposition, proposition) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *mockBeliefStore) GetByDerivedFrom(ctx context.Context, userID uuid.UUID, learningID uuid.UUID) (*domain.Belief, error) {
	for _, b := range m.items {
		if b.UserID == userID && b.DerivedFromLearning != nil && *b.DerivedFromLearning == learningID {
			cp := *b
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockBeliefStore) ApplyBayesianUpdate(ctx context.Context, id uuid.UUID, userID uuid.UUID, evidenceStrength float64, supports bool, reason string, evidenceID *uuid.UUID) (*domain.Belief, error) {
	b, ok := m.items[id]
	if !ok || b.UserID != userID {
		return nil, store.ErrNotFound
	}
	res := confidence.BayesianUpdate(b.CurrentConfidence, evidenceStrength, supports)
	b.History = append(b.History, domain.ConfidenceEntry{
		Timestamp:  time.Now().UTC(),
		Value:      res.Posterior,
		Reason:     reason,
		EvidenceID: evidenceID,
	})
	if supports {
		b.SupportingCount++
	} else {
		b.ContradictingCount++
	}
	b.CurrentConfidence = res.Posterior
	b.Status = confidence.NextStatus(b.Status, res.Posterior, b.SupportingCount, b.ContradictingCount)
	b.UpdatedAt = time.Now().UTC()
	cp := *b
	return &cp, nil
}

func (m *mockBeliefStore) SetDecayed(ctx context.Context, id uuid.UUID, conf float64, status domain.BeliefStatus) error {
	b, ok := m.items[id]
	if !ok {
		return store.ErrNotFound
	}
	b.CurrentConfidence = conf
	b.Status = status
	b.History = append(b.History, domain.ConfidenceEntry{
		Timestamp: time.Now().UTC(),
		Value:     conf,
		Reason:    "decay",
	})
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *mockBeliefStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BeliefStatus) error {
	b, ok := m.items[id]
	if !ok {
		return store.ErrNotFound
	}
	b.Status = status
	return nil
}

func (m *mockBeliefStore) ListStale(ctx context.Context, userID uuid.UUID, before time.Time) ([]domain.Belief, error) {
	var out []domain.Belief
	for _, b := range m.items {
		if b.UserID != userID || !b.UpdatedAt.Before(before) {
			continue
		}
		if b.Status == domain.BeliefActive || b.Status == domain.BeliefUncertain {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *mockBeliefStore) ListArchivable(ctx context.Context, userID uuid.UUID, maxConfidence float64, before time.Time) ([]domain.Belief, error) {
	var out []domain.Belief
	for _, b := range m.items {
		if b.UserID != userID || b.CurrentConfidence >= maxConfidence || !b.UpdatedAt.Before(before) {
			continue
		}
		if b.Status == domain.BeliefUncertain || b.Status == domain.BeliefWeakened {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *mockBeliefStore) UpsertEvidence(ctx context.Context, e *domain.BeliefEvidence) error {
	for i, ex := range m.evidence {
		if ex.BeliefID == e.BeliefID && ex.SourceType == e.SourceType && ex.SourceID == e.SourceID {
			e.ID = ex.ID
			m.evidence[i] = *e
			return nil
		}
	}
	e.ID = uuid.New()
	e.CreatedAt = time.Now().UTC()
	m.evidence = append(m.evidence, *e)
	return nil
}

type mockConflictStore struct {
	items map[uuid.UUID]*domain.BeliefConflict
}

func newMockConflictStore() *mockConflictStore {
	return &mockConflictStore{items: make(map[uuid.UUID]*domain.BeliefConflict)}
}

func (m *mockConflictStore) Record(ctx context.Context, c *domain.BeliefConflict) (*domain.BeliefConflict, error) {
	a, b := store.CanonicalPair(c.BeliefA, c.BeliefB)
	for _, existing := range m.items {
		if existing.BeliefA == a && existing.BeliefB == b && existing.Status == domain.ConflictUnresolved {
			cp := *existing
			return &cp, nil
		}
	}
	c.ID = uuid.New()
	c.BeliefA = a
	c.BeliefB = b
	c.Status = domain.ConflictUnresolved
	c.DetectedAt = time.Now().UTC()
	cp := *c
	m.items[c.ID] = &cp
	return c, nil
}

func (m *mockConflictStore) GetByID(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*domain.BeliefConflict, error) {
	c, ok := m.items[id]
	if !ok || c.UserID != userID {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockConflictStore) ListUnresolved(ctx context.Context, userID uuid.UUID) ([]domain.BeliefConflict, error) {
	var out []domain.BeliefConflict
	for _, c := range m.items {
		if c.UserID == userID && c.Status == domain.ConflictUnresolved {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *mockConflictStore) CountUnresolved(ctx context.Context, userID uuid.UUID) (int, error) {
	list, _ := m.ListUnresolved(ctx, userID)
	return len(list), nil
}

func (m *mockConflictStore) Resolve(ctx context.Context, id uuid.UUID, winnerID uuid.UUID) error {
	c, ok := m.items[id]
	if !ok || c.Status != domain.ConflictUnresolved {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	c.Status = domain.ConflictResolved
	c.WinnerID = &winnerID
	c.ResolvedAt = &now
	return nil
}

func (m *mockConflictStore) Escalate(ctx context.Context, id uuid.UUID) error {
	c, ok := m.items[id]
	if !ok || c.Status != domain.ConflictUnresolved {
		return store.ErrNotFound
	}
	c.Status = domain.ConflictEscalated
	return nil
}

type mockOutcomeStore struct {
	items   map[uuid.UUID]*domain.Outcome
	sources map[uuid.UUID][]domain.OutcomeSource
}

func newMockOutcomeStore() *mockOutcomeStore {
	return &mockOutcomeStore{
		items:   make(map[uuid.UUID]*domain.Outcome),
		sources: make(map[uuid.UUID][]domain.OutcomeSource),
	}
}

func (m *mockOutcomeStore) Create(ctx context.Context, o *domain.Outcome, sources []domain.OutcomeSource) error {
	o.ID = uuid.New()
	if o.Feedback == "" {
		o.Feedback = domain.FeedbackUnknown
	}
	o.CreatedAt = time.Now().UTC()
	cp := *o
	m.items[o.ID] = &cp
	for i := range sources {
		sources[i].ID = uuid.New()
		sources[i].OutcomeID = o.ID
		if sources[i].Weight == 0 {
			sources[i].Weight = 1.0
		}
	}
	m.sources[o.ID] = append([]domain.OutcomeSource(nil), sources...)
	return nil
}

func (m *mockOutcomeStore) GetByID(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*domain.Outcome, error) {
	o, ok := m.items[id]
	if !ok || o.UserID != userID {
		return nil, store.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOutcomeStore) ListSources(ctx context.Context, outcomeID uuid.UUID) ([]domain.OutcomeSource, error) {
	return append([]domain.OutcomeSource(nil), m.sources[outcomeID]...), nil
}

func (m *mockOutcomeStore) SetFeedback(ctx context.Context, id uuid.UUID, userID uuid.UUID, signal domain.FeedbackSignal, origin domain.FeedbackOrigin) error {
	o, ok := m.items[id]
	if !ok || o.UserID != userID {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	o.Feedback = signal
	o.FeedbackOrigin = origin
	o.FeedbackAt = &now
	return nil
}

func (m *mockOutcomeStore) ListPendingPropagation(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Outcome, error) {
	var out []domain.Outcome
	for _, o := range m.items {
		if o.UserID == userID && !o.FeedbackPropagated && o.Feedback.HasEffect() {
			out = append(out, *o)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockOutcomeStore) CountPendingPropagation(ctx context.Context, userID uuid.UUID) (int, error) {
	list, _ := m.ListPendingPropagation(ctx, userID, 0)
	return len(list), nil
}

func (m *mockOutcomeStore) MarkPropagated(ctx context.Context, id uuid.UUID) (bool, error) {
	o, ok := m.items[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if o.FeedbackPropagated {
		return false, nil
	}
	o.FeedbackPropagated = true
	return true, nil
}

func (m *mockOutcomeStore) SummarizeFeedback(ctx context.Context, userID uuid.UUID, since time.Time) (domain.OutcomeSummary, error) {
	var sum domain.OutcomeSummary
	for _, o := range m.items {
		if o.UserID != userID || o.CreatedAt.Before(since) {
			continue
		}
		sum.Total++
		switch o.Feedback {
		case domain.FeedbackPositive:
			sum.Positive++
		case domain.FeedbackNegative:
			sum.Negative++
		case domain.FeedbackNeutral:
			sum.Neutral++
		}
	}
	return sum, nil
}

func (m *mockOutcomeStore) DeletePropagatedOlderThan(ctx context.Context, userID uuid.UUID, cutoff time.Time) (int64, error) {
	var deleted int64
	for id, o := range m.items {
		if o.UserID == userID && o.FeedbackPropagated && o.CreatedAt.Before(cutoff) {
			delete(m.items, id)
			delete(m.sources, id)
			deleted++
		}
	}
	return deleted, nil
}

type mockObservationStore struct {
	items map[uuid.UUID]*domain.Observation
}

func newMockObservationStore() *mockObservationStore {
	return &mockObservationStore{items: make(map[uuid.UUID]*domain.Observation)}
}

func (m *mockObservationStore) Create(ctx context.Context, o *domain.Observation) error {
	o.ID = uuid.New()
	o.CreatedAt = time.Now().UTC()
	cp := *o
	m.items[o.ID] = &cp
	return nil
}

func (m *mockObservationStore) ListUnprocessed(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Observation, error) {
	var out []domain.Observation
	for _, o := range m.items {
		if o.UserID == userID && o.ProcessedAt == nil {
			out = append(out, *o)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockObservationStore) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	o, ok := m.items[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	o.ProcessedAt = &now
	return nil
}

type mockJobStore struct {
	jobs map[uuid.UUID]*domain.SleepJob
}

func newMockJobStore() *mockJobStore {
	return &mockJobStore{jobs: make(map[uuid.UUID]*domain.SleepJob)}
}

func (m *mockJobStore) Create(ctx context.Context, j *domain.SleepJob) error {
	j.ID = uuid.New()
	j.CreatedAt = time.Now().UTC()
	cp := *j
	m.jobs[j.ID] = &cp
	return nil
}

func (m *mockJobStore) Update(ctx context.Context, j *domain.SleepJob) error {
	if _, ok := m.jobs[j.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *j
	m.jobs[j.ID] = &cp
	return nil
}

func (m *mockJobStore) GetLatest(ctx context.Context, userID uuid.UUID) (*domain.SleepJob, error) {
	var latest *domain.SleepJob
	for _, j := range m.jobs {
		if j.UserID != userID {
			continue
		}
		if latest == nil || j.CreatedAt.After(latest.CreatedAt) {
			latest = j
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

type mockSessionStore struct {
	items map[uuid.UUID]*domain.SessionContext
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{items: make(map[uuid.UUID]*domain.SessionContext)}
}

func (m *mockSessionStore) Replace(ctx context.Context, sc *domain.SessionContext) error {
	if existing, ok := m.items[sc.UserID]; ok {
		sc.ID = existing.ID
	} else {
		sc.ID = uuid.New()
	}
	cp := *sc
	m.items[sc.UserID] = &cp
	return nil
}

func (m *mockSessionStore) Get(ctx context.Context, userID uuid.UUID) (*domain.SessionContext, error) {
	sc, ok := m.items[userID]
	if !ok || !sc.ExpiresAt.After(time.Now().UTC()) {
		return nil, store.ErrNotFound
	}
	cp := *sc
	return &cp, nil
}

// shareToken reports whether the two statements share any token longer than
// three characters, approximating the ILIKE-any-token store query.
func shareToken(a, b string) bool {
	tb := tokenize(strings.ToLower(b))
	for tok := range tokenize(strings.ToLower(a)) {
		if tb[tok] {
			return true
		}
	}
	return false
}
