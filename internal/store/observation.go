package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haldanelabs/nightshift/internal/domain"
)

type ObservationStore struct {
	db *pgxpool.Pool
}

func NewObservationStore(db *pgxpool.Pool) *ObservationStore {
	return &ObservationStore{db: db}
}

func (s *ObservationStore) Create(ctx context.Context, o *domain.Observation) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO observations (user_id, source_type, content)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		o.UserID, o.SourceType, o.Content,
	).Scan(&o.ID, &o.CreatedAt)
}

func (s *ObservationStore) ListUnprocessed(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Observation, error) {
	if limit <= 0 {
		limit = 25
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, user_id, source_type, content, processed_at, created_at
		 FROM observations
		 WHERE user_id = $1 AND processed_at IS NULL
		 ORDER BY created_at ASC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed observations: %w", err)
	}
	defer rows.Close()

	var observations []domain.Observation
	for rows.Next() {
		var o domain.Observation
		if err := rows.Scan(&o.ID, &o.UserID, &o.SourceType, &o.Content, &o.ProcessedAt, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan observation row: %w", err)
		}
		observations = append(observations, o)
	}
	return observations, rows.Err()
}

func (s *ObservationStore) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE observations SET processed_at = NOW() WHERE id = $1`,
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
