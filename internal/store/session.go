package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haldanelabs/nightshift/internal/domain"
)

type SessionContextStore struct {
	db *pgxpool.Pool
}

func NewSessionContextStore(db *pgxpool.Pool) *SessionContextStore {
	return &SessionContextStore{db: db}
}

// Replace fully regenerates the snapshot for the user; there is no
// incremental merge.
func (s *SessionContextStore) Replace(ctx context.Context, sc *domain.SessionContext) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO session_contexts (user_id, top_beliefs, top_learnings, outcome_summary, pending_conflicts, pending_propagations, generated_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (user_id) DO UPDATE
		 SET top_beliefs = EXCLUDED.top_beliefs,
		     top_learnings = EXCLUDED.top_learnings,
		     outcome_summary = EXCLUDED.outcome_summary,
		     pending_conflicts = EXCLUDED.pending_conflicts,
		     pending_propagations = EXCLUDED.pending_propagations,
		     generated_at = EXCLUDED.generated_at,
		     expires_at = EXCLUDED.expires_at
		 RETURNING id`,
		sc.UserID, sc.TopBeliefs, sc.TopLearnings, sc.Outcomes,
		sc.PendingConflicts, sc.PendingPropagations, sc.GeneratedAt, sc.ExpiresAt,
	).Scan(&sc.ID)
}

// Get returns the snapshot if it has not expired.
func (s *SessionContextStore) Get(ctx context.Context, userID uuid.UUID) (*domain.SessionContext, error) {
	sc := &domain.SessionContext{}
	err := s.db.QueryRow(ctx,
		`SELECT id, user_id, top_beliefs, top_learnings, outcome_summary, pending_conflicts, pending_propagations, generated_at, expires_at
		 FROM session_contexts WHERE user_id = $1 AND expires_at > NOW()`,
		userID,
	).Scan(&sc.ID, &sc.UserID, &sc.TopBeliefs, &sc.TopLearnings, &sc.Outcomes,
		&sc.PendingConflicts, &sc.PendingPropagations, &sc.GeneratedAt, &sc.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sc, nil
}
