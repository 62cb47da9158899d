package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haldanelabs/nightshift/internal/domain"
)

const outcomeColumns = `id, user_id, action_type, content, reasoning, feedback, feedback_origin, feedback_at, feedback_propagated, created_at`

type OutcomeStore struct {
	db *pgxpool.Pool
}

func NewOutcomeStore(db *pgxpool.Pool) *OutcomeStore {
	return &OutcomeStore{db: db}
}

func scanOutcome(row pgx.Row, o *domain.Outcome) error {
	return row.Scan(&o.ID, &o.UserID, &o.ActionType, &o.Content, &o.Reasoning,
		&o.Feedback, &o.FeedbackOrigin, &o.FeedbackAt, &o.FeedbackPropagated, &o.CreatedAt)
}

// Create persists the outcome and its source rows in one transaction.
func (s *OutcomeStore) Create(ctx context.Context, o *domain.Outcome, sources []domain.OutcomeSource) error {
	if o.Feedback == "" {
		o.Feedback = domain.FeedbackUnknown
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin outcome tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`INSERT INTO outcomes (user_id, action_type, content, reasoning, feedback, feedback_origin)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		o.UserID, o.ActionType, o.Content, o.Reasoning, o.Feedback, o.FeedbackOrigin,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}

	for i := range sources {
		src := &sources[i]
		src.OutcomeID = o.ID
		if src.Weight == 0 {
			src.Weight = 1.0
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO outcome_sources (outcome_id, kind, source_id, weight)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id, created_at`,
			src.OutcomeID, src.Kind, src.SourceID, src.Weight,
		).Scan(&src.ID, &src.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert outcome source: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (s *OutcomeStore) GetByID(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*domain.Outcome, error) {
	o := &domain.Outcome{}
	err := scanOutcome(s.db.QueryRow(ctx,
		`SELECT `+outcomeColumns+` FROM outcomes WHERE id = $1 AND user_id = $2`,
		id, userID,
	), o)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

func (s *OutcomeStore) ListSources(ctx context.Context, outcomeID uuid.UUID) ([]domain.OutcomeSource, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, outcome_id, kind, source_id, weight, created_at
		 FROM outcome_sources WHERE outcome_id = $1 ORDER BY created_at ASC`,
		outcomeID,
	)
	if err != nil {
		return nil, fmt.Errorf("list outcome sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.OutcomeSource
	for rows.Next() {
		var src domain.OutcomeSource
		if err := rows.Scan(&src.ID, &src.OutcomeID, &src.Kind, &src.SourceID, &src.Weight, &src.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outcome source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

func (s *OutcomeStore) SetFeedback(ctx context.Context, id uuid.UUID, userID uuid.UUID, signal domain.FeedbackSignal, origin domain.FeedbackOrigin) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE outcomes SET feedback = $1, feedback_origin = $2, feedback_at = NOW() WHERE id = $3 AND user_id = $4`,
		signal, origin, id, userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *OutcomeStore) ListPendingPropagation(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Outcome, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+outcomeColumns+` FROM outcomes
		 WHERE user_id = $1 AND feedback_propagated = FALSE AND feedback IN ('positive', 'negative')
		 ORDER BY created_at ASC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending propagations: %w", err)
	}
	defer rows.Close()

	var outcomes []domain.Outcome
	for rows.Next() {
		var o domain.Outcome
		if err := scanOutcome(rows, &o); err != nil {
			return nil, fmt.Errorf("scan outcome row: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func (s *OutcomeStore) CountPendingPropagation(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM outcomes
		 WHERE user_id = $1 AND feedback_propagated = FALSE AND feedback IN ('positive', 'negative')`,
		userID,
	).Scan(&count)
	return count, err
}

// MarkPropagated flips the flag exactly once; the WHERE guard makes retries
// no-ops.
func (s *OutcomeStore) MarkPropagated(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE outcomes SET feedback_propagated = TRUE WHERE id = $1 AND feedback_propagated = FALSE`,
		id,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *OutcomeStore) SummarizeFeedback(ctx context.Context, userID uuid.UUID, since time.Time) (domain.OutcomeSummary, error) {
	var sum domain.OutcomeSummary
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE feedback = 'positive'),
		        COUNT(*) FILTER (WHERE feedback = 'negative'),
		        COUNT(*) FILTER (WHERE feedback = 'neutral')
		 FROM outcomes WHERE user_id = $1 AND created_at >= $2`,
		userID, since,
	).Scan(&sum.Total, &sum.Positive, &sum.Negative, &sum.Neutral)
	return sum, err
}

// DeletePropagatedOlderThan hard-deletes propagated outcomes past the
// retention window; their source rows cascade.
func (s *OutcomeStore) DeletePropagatedOlderThan(ctx context.Context, userID uuid.UUID, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM outcomes WHERE user_id = $1 AND feedback_propagated = TRUE AND created_at < $2`,
		userID, cutoff,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
