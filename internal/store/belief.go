package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haldanelabs/nightshift/internal/confidence"
	"github.com/haldanelabs/nightshift/internal/domain"
)

// historyCap bounds the persisted confidence history; the oldest entry is
// dropped first.
const historyCap = 50

// maxUpdateAttempts bounds the optimistic retry loop on guarded confidence
// updates.
const maxUpdateAttempts = 3

const beliefColumns = `id, user_id, proposition, type, domain, prior_confidence, current_confidence, confidence_history, supporting_count, contradicting_count, valid_from, valid_until, depends_on, derived_from_learning, status, superseded_by, created_at, updated_at`

type BeliefStore struct {
	db *pgxpool.Pool
}

func NewBeliefStore(db *pgxpool.Pool) *BeliefStore {
	return &BeliefStore{db: db}
}

func scanBelief(row pgx.Row, b *domain.Belief) error {
	return row.Scan(&b.ID, &b.UserID, &b.Proposition, &b.Type, &b.Domain,
		&b.PriorConfidence, &b.CurrentConfidence, &b.History,
		&b.SupportingCount, &b.ContradictingCount, &b.ValidFrom, &b.ValidUntil,
		&b.DependsOn, &b.DerivedFromLearning, &b.Status, &b.SupersededBy,
		&b.CreatedAt, &b.UpdatedAt)
}

func collectBeliefs(rows pgx.Rows) ([]domain.Belief, error) {
	defer rows.Close()
	var beliefs []domain.Belief
	for rows.Next() {
		var b domain.Belief
		if err := scanBelief(rows, &b); err != nil {
			return nil, fmt.Errorf("scan belief row: %w", err)
		}
		beliefs = append(beliefs, b)
	}
	return beliefs, rows.Err()
}

func (s *BeliefStore) Create(ctx context.Context, b *domain.Belief) error {
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
	return s.db.QueryRow(ctx,
		`INSERT INTO beliefs (user_id, proposition, type, domain, prior_confidence, current_confidence, confidence_history, supporting_count, contradicting_count, valid_from, valid_until, depends_on, derived_from_learning, status, superseded_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 RETURNING id, created_at, updated_at`,
		b.UserID, b.Proposition, b.Type, b.Domain, b.PriorConfidence, b.CurrentConfidence,
		b.History, b.SupportingCount, b.ContradictingCount, b.ValidFrom, b.ValidUntil,
		b.DependsOn, b.DerivedFromLearning, b.Status, b.SupersededBy,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
}

func (s *BeliefStore) GetByID(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*domain.Belief, error) {
	b := &domain.Belief{}
	err := scanBelief(s.db.QueryRow(ctx,
		`SELECT `+beliefColumns+` FROM beliefs WHERE id = $1 AND user_id = $2`,
		id, userID,
	), b)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (s *BeliefStore) List(ctx context.Context, userID uuid.UUID, f domain.BeliefFilter) ([]domain.Belief, error) {
	conditions := []string{"user_id = $1"}
	args := []any{userID}

	if f.Type != "" {
		args = append(args, f.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.MinConfidence > 0 {
		args = append(args, f.MinConfidence)
		conditions = append(conditions, fmt.Sprintf("current_confidence >= $%d", len(args)))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, f.Offset)

	query := fmt.Sprintf(
		`SELECT %s FROM beliefs WHERE %s ORDER BY current_confidence DESC, created_at DESC LIMIT $%d OFFSET $%d`,
		beliefColumns, strings.Join(conditions, " AND "), len(args)-1, len(args),
	)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list beliefs: %w", err)
	}
	return collectBeliefs(rows)
}

// FindSimilar matches active beliefs of the same type whose proposition
// contains any significant token of the candidate proposition.
func (s *BeliefStore) FindSimilar(ctx context.Context, userID uuid.UUID, beliefType domain.BeliefType, proposition string) ([]domain.Belief, error) {
	tokens := keywords(proposition)
	if len(tokens) == 0 {
		return nil, nil
	}

	args := []any{userID, beliefType}
	var likes []string
	for _, tok := range tokens {
		args = append(args, "%"+tok+"%")
		likes = append(likes, fmt.Sprintf("proposition ILIKE $%d", len(args)))
	}

	query := fmt.Sprintf(
		`SELECT %s FROM beliefs
		 WHERE user_id = $1 AND type = $2 AND status = 'active' AND (%s)
		 ORDER BY current_confidence DESC
		 LIMIT 20`,
		beliefColumns, strings.Join(likes, " OR "),
	)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find similar beliefs: %w", err)
	}
	return collectBeliefs(rows)
}

func (s *BeliefStore) GetByDerivedFrom(ctx context.Context, userID uuid.UUID, learningID uuid.UUID) (*domain.Belief, error) {
	b := &domain.Belief{}
	err := scanBelief(s.db.QueryRow(ctx,
		`SELECT `+beliefColumns+` FROM beliefs WHERE user_id = $1 AND derived_from_learning = $2 LIMIT 1`,
		userID, learningID,
	), b)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

// ApplyBayesianUpdate loads the belief, runs the confidence model, appends a
// history entry, adjusts the evidence counters and the status, and persists
// confidence, history, counters and status in one statement. The statement is
// guarded on the updated_at read earlier: a concurrent writer invalidates the
// guard and the read-compute-write is retried from a fresh row, so no update
// is silently lost.
func (s *BeliefStore) ApplyBayesianUpdate(ctx context.Context, id uuid.UUID, userID uuid.UUID, evidenceStrength float64, supports bool, reason string, evidenceID *uuid.UUID) (*domain.Belief, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		b, err := s.GetByID(ctx, id, userID)
		if err != nil {
			return nil, err
		}

		res := confidence.BayesianUpdate(b.CurrentConfidence, evidenceStrength, supports)

		b.History = append(b.History, domain.ConfidenceEntry{
			Timestamp:  time.Now().UTC(),
			Value:      res.Posterior,
			Reason:     reason,
			EvidenceID: evidenceID,
		})
		if len(b.History) > historyCap {
			b.History = b.History[len(b.History)-historyCap:]
		}

		if supports {
			b.SupportingCount++
		} else {
			b.ContradictingCount++
		}

		b.CurrentConfidence = res.Posterior
		b.Status = confidence.NextStatus(b.Status, res.Posterior, b.SupportingCount, b.ContradictingCount)

		err = s.db.QueryRow(ctx,
			`UPDATE beliefs
			 SET current_confidence = $1, confidence_history = $2, supporting_count = $3, contradicting_count = $4, status = $5, updated_at = NOW()
			 WHERE id = $6 AND user_id = $7 AND updated_at = $8
			 RETURNING updated_at`,
			b.CurrentConfidence, b.History, b.SupportingCount, b.ContradictingCount, b.Status, id, userID, b.UpdatedAt,
		).Scan(&b.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			// Guard failed: the row changed (or vanished) since the read.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("apply bayesian update: %w", err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("apply bayesian update: belief %s kept changing concurrently", id)
}

// SetDecayed lowers confidence and appends a decay history entry in a single
// statement, keeping current_confidence equal to the last history value.
func (s *BeliefStore) SetDecayed(ctx context.Context, id uuid.UUID, conf float64, status domain.BeliefStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE beliefs
		 SET current_confidence = $1,
		     status = $2,
		     confidence_history = (
		         CASE WHEN jsonb_array_length(confidence_history) >= $3
		              THEN confidence_history - 0
		              ELSE confidence_history END
		     ) || jsonb_build_array(jsonb_build_object('timestamp', to_jsonb(NOW()), 'value', $1::float8, 'reason', 'decay')),
		     updated_at = NOW()
		 WHERE id = $4`,
		conf, status, historyCap, id,
	)
	if err != nil {
		return fmt.Errorf("decay belief: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *BeliefStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BeliefStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE beliefs SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *BeliefStore) ListStale(ctx context.Context, userID uuid.UUID, before time.Time) ([]domain.Belief, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+beliefColumns+` FROM beliefs
		 WHERE user_id = $1 AND status IN ('active', 'uncertain') AND updated_at < $2`,
		userID, before,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale beliefs: %w", err)
	}
	return collectBeliefs(rows)
}

func (s *BeliefStore) ListArchivable(ctx context.Context, userID uuid.UUID, maxConfidence float64, before time.Time) ([]domain.Belief, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+beliefColumns+` FROM beliefs
		 WHERE user_id = $1 AND status IN ('uncertain', 'weakened') AND current_confidence < $2 AND updated_at < $3`,
		userID, maxConfidence, before,
	)
	if err != nil {
		return nil, fmt.Errorf("list archivable beliefs: %w", err)
	}
	return collectBeliefs(rows)
}

// UpsertEvidence creates the evidence link once per (belief, source) pair.
func (s *BeliefStore) UpsertEvidence(ctx context.Context, e *domain.BeliefEvidence) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO belief_evidence (belief_id, source_type, source_id, excerpt, evidence_type, supports, strength)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (belief_id, source_type, source_id) DO UPDATE
		 SET excerpt = EXCLUDED.excerpt, evidence_type = EXCLUDED.evidence_type, supports = EXCLUDED.supports, strength = EXCLUDED.strength
		 RETURNING id, created_at`,
		e.BeliefID, e.SourceType, e.SourceID, e.Excerpt, e.EvidenceType, e.Supports, e.Strength,
	).Scan(&e.ID, &e.CreatedAt)
}
