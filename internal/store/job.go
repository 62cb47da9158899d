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

type SleepJobStore struct {
	db *pgxpool.Pool
}

func NewSleepJobStore(db *pgxpool.Pool) *SleepJobStore {
	return &SleepJobStore{db: db}
}

func (s *SleepJobStore) Create(ctx context.Context, j *domain.SleepJob) error {
	if j.Status == "" {
		j.Status = domain.JobPending
	}
	if j.Tasks == nil {
		j.Tasks = []domain.TaskResult{}
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO sleep_jobs (user_id, trigger_type, status, tasks, summary, started_at, finished_at, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		j.UserID, j.Trigger, j.Status, j.Tasks, j.Summary, j.StartedAt, j.FinishedAt, j.DurationMS,
	).Scan(&j.ID, &j.CreatedAt)
}

func (s *SleepJobStore) Update(ctx context.Context, j *domain.SleepJob) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE sleep_jobs SET status = $1, tasks = $2, summary = $3, started_at = $4, finished_at = $5, duration_ms = $6 WHERE id = $7`,
		j.Status, j.Tasks, j.Summary, j.StartedAt, j.FinishedAt, j.DurationMS, j.ID,
	)
	if err != nil {
		return fmt.Errorf("update sleep job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SleepJobStore) GetLatest(ctx context.Context, userID uuid.UUID) (*domain.SleepJob, error) {
	j := &domain.SleepJob{}
	err := s.db.QueryRow(ctx,
		`SELECT id, user_id, trigger_type, status, tasks, summary, started_at, finished_at, duration_ms, created_at
		 FROM sleep_jobs WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT 1`,
		userID,
	).Scan(&j.ID, &j.UserID, &j.Trigger, &j.Status, &j.Tasks, &j.Summary,
		&j.StartedAt, &j.FinishedAt, &j.DurationMS, &j.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return j, nil
}
