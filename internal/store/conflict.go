package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haldanelabs/nightshift/internal/domain"
)

const conflictColumns = `id, user_id, belief_a, belief_b, conflict_type, status, winner_id, detected_at, resolved_at`

type ConflictStore struct {
	db *pgxpool.Pool
}

func NewConflictStore(db *pgxpool.Pool) *ConflictStore {
	return &ConflictStore{db: db}
}

func scanConflict(row pgx.Row, c *domain.BeliefConflict) error {
	return row.Scan(&c.ID, &c.UserID, &c.BeliefA, &c.BeliefB, &c.Type, &c.Status,
		&c.WinnerID, &c.DetectedAt, &c.ResolvedAt)
}

// Record upserts a conflict by canonical pair. If an unresolved conflict for
// the unordered pair already exists it is returned unchanged.
func (s *ConflictStore) Record(ctx context.Context, c *domain.BeliefConflict) (*domain.BeliefConflict, error) {
	c.BeliefA, c.BeliefB = CanonicalPair(c.BeliefA, c.BeliefB)
	if c.Status == "" {
		c.Status = domain.ConflictUnresolved
	}

	existing := &domain.BeliefConflict{}
	err := scanConflict(s.db.QueryRow(ctx,
		`SELECT `+conflictColumns+` FROM belief_conflicts
		 WHERE belief_a = $1 AND belief_b = $2 AND status = 'unresolved'`,
		c.BeliefA, c.BeliefB,
	), existing)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("lookup conflict pair: %w", err)
	}

	err = s.db.QueryRow(ctx,
		`INSERT INTO belief_conflicts (user_id, belief_a, belief_b, conflict_type, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, detected_at`,
		c.UserID, c.BeliefA, c.BeliefB, c.Type, c.Status,
	).Scan(&c.ID, &c.DetectedAt)
	if err != nil {
		return nil, fmt.Errorf("insert conflict: %w", err)
	}
	return c, nil
}

func (s *ConflictStore) GetByID(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*domain.BeliefConflict, error) {
	c := &domain.BeliefConflict{}
	err := scanConflict(s.db.QueryRow(ctx,
		`SELECT `+conflictColumns+` FROM belief_conflicts WHERE id = $1 AND user_id = $2`,
		id, userID,
	), c)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (s *ConflictStore) ListUnresolved(ctx context.Context, userID uuid.UUID) ([]domain.BeliefConflict, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+conflictColumns+` FROM belief_conflicts
		 WHERE user_id = $1 AND status = 'unresolved'
		 ORDER BY detected_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list unresolved conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []domain.BeliefConflict
	for rows.Next() {
		var c domain.BeliefConflict
		if err := scanConflict(rows, &c); err != nil {
			return nil, fmt.Errorf("scan conflict row: %w", err)
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}

func (s *ConflictStore) CountUnresolved(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM belief_conflicts WHERE user_id = $1 AND status = 'unresolved'`,
		userID,
	).Scan(&count)
	return count, err
}

func (s *ConflictStore) Resolve(ctx context.Context, id uuid.UUID, winnerID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE belief_conflicts SET status = 'resolved', winner_id = $1, resolved_at = NOW() WHERE id = $2 AND status = 'unresolved'`,
		winnerID, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ConflictStore) Escalate(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE belief_conflicts SET status = 'escalated' WHERE id = $1 AND status = 'unresolved'`,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
