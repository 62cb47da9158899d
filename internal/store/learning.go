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

const learningColumns = `id, user_id, category, statement, reasoning, strength, confidence, evidence_count, status, valid_from, valid_until, last_reinforced_at, created_at, updated_at`

type LearningStore struct {
	db *pgxpool.Pool
}

func NewLearningStore(db *pgxpool.Pool) *LearningStore {
	return &LearningStore{db: db}
}

func scanLearning(row pgx.Row, l *domain.Learning) error {
	return row.Scan(&l.ID, &l.UserID, &l.Category, &l.Statement, &l.Reasoning, &l.Strength,
		&l.Confidence, &l.EvidenceCount, &l.Status, &l.ValidFrom, &l.ValidUntil,
		&l.LastReinforcedAt, &l.CreatedAt, &l.UpdatedAt)
}

func collectLearnings(rows pgx.Rows) ([]domain.Learning, error) {
	defer rows.Close()
	var learnings []domain.Learning
	for rows.Next() {
		var l domain.Learning
		if err := scanLearning(rows, &l); err != nil {
			return nil, fmt.Errorf("scan learning row: %w", err)
		}
		learnings = append(learnings, l)
	}
	return learnings, rows.Err()
}

func (s *LearningStore) Create(ctx context.Context, l *domain.Learning) error {
	if l.Status == "" {
		l.Status = domain.LearningActive
	}
	if l.EvidenceCount == 0 {
		l.EvidenceCount = 1
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO learnings (user_id, category, statement, reasoning, strength, confidence, evidence_count, status, valid_from, valid_until, last_reinforced_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		 RETURNING id, last_reinforced_at, created_at, updated_at`,
		l.UserID, l.Category, l.Statement, l.Reasoning, l.Strength, l.Confidence,
		l.EvidenceCount, l.Status, l.ValidFrom, l.ValidUntil,
	).Scan(&l.ID, &l.LastReinforcedAt, &l.CreatedAt, &l.UpdatedAt)
}

func (s *LearningStore) GetByID(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*domain.Learning, error) {
	l := &domain.Learning{}
	err := scanLearning(s.db.QueryRow(ctx,
		`SELECT `+learningColumns+` FROM learnings WHERE id = $1 AND user_id = $2`,
		id, userID,
	), l)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return l, nil
}

func (s *LearningStore) List(ctx context.Context, userID uuid.UUID, f domain.LearningFilter) ([]domain.Learning, error) {
	conditions := []string{"user_id = $1"}
	args := []any{userID}

	if f.Category != "" {
		args = append(args, f.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.MinConfidence > 0 {
		args = append(args, f.MinConfidence)
		conditions = append(conditions, fmt.Sprintf("confidence >= $%d", len(args)))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, f.Offset)

	query := fmt.Sprintf(
		`SELECT %s FROM learnings WHERE %s ORDER BY confidence DESC, created_at DESC LIMIT $%d OFFSET $%d`,
		learningColumns, strings.Join(conditions, " AND "), len(args)-1, len(args),
	)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list learnings: %w", err)
	}
	return collectLearnings(rows)
}

// FindSimilar matches active learnings in the same category whose statement
// contains any significant token of the candidate statement.
func (s *LearningStore) FindSimilar(ctx context.Context, userID uuid.UUID, category domain.LearningCategory, statement string) ([]domain.Learning, error) {
	tokens := keywords(statement)
	if len(tokens) == 0 {
		return nil, nil
	}

	args := []any{userID, category}
	var likes []string
	for _, tok := range tokens {
		args = append(args, "%"+tok+"%")
		likes = append(likes, fmt.Sprintf("statement ILIKE $%d", len(args)))
	}

	query := fmt.Sprintf(
		`SELECT %s FROM learnings
		 WHERE user_id = $1 AND category = $2 AND status = 'active' AND (%s)
		 ORDER BY confidence DESC
		 LIMIT 20`,
		learningColumns, strings.Join(likes, " OR "),
	)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find similar learnings: %w", err)
	}
	return collectLearnings(rows)
}

// Reinforce atomically updates confidence, strength, evidence count and
// last_reinforced_at in a single statement.
func (s *LearningStore) Reinforce(ctx context.Context, id uuid.UUID, confidence float64, strength domain.Strength, evidenceCount int) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE learnings SET confidence = $1, strength = $2, evidence_count = $3, last_reinforced_at = NOW(), updated_at = NOW() WHERE id = $4`,
		confidence, strength, evidenceCount, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// NudgeConfidence shifts confidence by delta inside one statement so
// concurrent nudges compose instead of overwriting each other. The clamp and
// the strength bands are evaluated in SQL against the stored value.
func (s *LearningStore) NudgeConfidence(ctx context.Context, id uuid.UUID, userID uuid.UUID, delta float64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE learnings
		 SET confidence = LEAST($3, GREATEST($4, confidence + $5)),
		     strength = CASE
		         WHEN LEAST($3, GREATEST($4, confidence + $5)) >= $6 THEN 'definitive'
		         WHEN LEAST($3, GREATEST($4, confidence + $5)) >= $7 THEN 'strong'
		         WHEN LEAST($3, GREATEST($4, confidence + $5)) >= $8 THEN 'moderate'
		         ELSE 'weak'
		     END,
		     last_reinforced_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND user_id = $2`,
		id, userID,
		confidence.MaxConfidence, confidence.MinConfidence, delta,
		confidence.DefinitiveMin, confidence.StrongMin, confidence.ModerateLearningMin,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *LearningStore) SetDecayed(ctx context.Context, id uuid.UUID, confidence float64, strength domain.Strength, status domain.LearningStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE learnings SET confidence = $1, strength = $2, status = $3, updated_at = NOW() WHERE id = $4`,
		confidence, strength, status, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *LearningStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.LearningStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE learnings SET status = $1, updated_at = NOW() WHERE id = $2`,
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

// ListStale returns active learnings whose last update is older than the cutoff.
func (s *LearningStore) ListStale(ctx context.Context, userID uuid.UUID, before time.Time) ([]domain.Learning, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+learningColumns+` FROM learnings
		 WHERE user_id = $1 AND status = 'active' AND updated_at < $2`,
		userID, before,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale learnings: %w", err)
	}
	return collectLearnings(rows)
}

// ListArchivable returns weakened or low-confidence learnings untouched since
// the cutoff.
func (s *LearningStore) ListArchivable(ctx context.Context, userID uuid.UUID, maxConfidence float64, before time.Time) ([]domain.Learning, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+learningColumns+` FROM learnings
		 WHERE user_id = $1 AND status IN ('active', 'weakened') AND confidence < $2 AND updated_at < $3`,
		userID, maxConfidence, before,
	)
	if err != nil {
		return nil, fmt.Errorf("list archivable learnings: %w", err)
	}
	return collectLearnings(rows)
}

// ListEligibleForFormation returns active, confident learnings that no belief
// has consumed yet, either as its derived-from source or as merged evidence.
// Without the exclusions a formation pass would re-fetch the same oldest batch
// forever and never reach newer learnings.
func (s *LearningStore) ListEligibleForFormation(ctx context.Context, userID uuid.UUID, minConfidence float64, limit int) ([]domain.Learning, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+learningColumns+` FROM learnings
		 WHERE user_id = $1 AND status = 'active' AND confidence >= $2
		   AND NOT EXISTS (
		       SELECT 1 FROM beliefs b
		       WHERE b.user_id = learnings.user_id AND b.derived_from_learning = learnings.id
		   )
		   AND NOT EXISTS (
		       SELECT 1 FROM belief_evidence be
		       WHERE be.source_type = 'learning' AND be.source_id = learnings.id
		   )
		 ORDER BY created_at ASC
		 LIMIT $3`,
		userID, minConfidence, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list eligible learnings: %w", err)
	}
	return collectLearnings(rows)
}

// UpsertEvidence creates the evidence link once per (learning, source) pair.
func (s *LearningStore) UpsertEvidence(ctx context.Context, e *domain.LearningEvidence) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO learning_evidence (learning_id, source_type, source_id, excerpt, confidence, supports)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (learning_id, source_type, source_id) DO UPDATE
		 SET excerpt = EXCLUDED.excerpt, confidence = EXCLUDED.confidence, supports = EXCLUDED.supports
		 RETURNING id, created_at`,
		e.LearningID, e.SourceType, e.SourceID, e.Excerpt, e.Confidence, e.Supports,
	).Scan(&e.ID, &e.CreatedAt)
}

func (s *LearningStore) ListDistinctUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT user_id FROM learnings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var userIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, rows.Err()
}
