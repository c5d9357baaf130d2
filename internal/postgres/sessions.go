package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
)

const sessionColumns = `id, user_id, level_id, start_time, end_time, duration, final_score,
	coins_collected, enemies_defeated, death_count, lives_remaining, status`

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.LevelID,
		&s.StartTime,
		&s.EndTime,
		&s.Duration,
		&s.FinalScore,
		&s.CoinsCollected,
		&s.EnemiesDefeated,
		&s.DeathCount,
		&s.LivesRemaining,
		&s.Status,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSession inserts a new ACTIVE session
func (r *Repository) CreateSession(ctx context.Context, s domain.Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, level_id, start_time, end_time, duration, final_score,
			coins_collected, enemies_defeated, death_count, lives_remaining, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.ID, s.UserID, s.LevelID, s.StartTime, nullableTime(s.EndTime), s.Duration, s.FinalScore,
		s.CoinsCollected, s.EnemiesDefeated, s.DeathCount, s.LivesRemaining, s.Status,
	)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			if constraintName(err) == "sessions_level_id_fkey" {
				return domain.ErrLevelNotFound
			}
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID
func (r *Repository) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, sessionID)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("getting session: %w", err)
	}
	return s, nil
}

// UpdateActiveSession applies the provided counters while status is ACTIVE
func (r *Repository) UpdateActiveSession(ctx context.Context, sessionID string, u domain.StatsUpdate) (*domain.Session, error) {
	query := `
		UPDATE sessions SET
			final_score = COALESCE($2, final_score),
			coins_collected = COALESCE($3, coins_collected),
			enemies_defeated = COALESCE($4, enemies_defeated),
			death_count = COALESCE($5, death_count),
			lives_remaining = COALESCE($6, lives_remaining)
		WHERE id = $1 AND status = 'ACTIVE'
		RETURNING ` + sessionColumns
	row := r.pool.QueryRow(ctx, query, sessionID,
		u.FinalScore, u.CoinsCollected, u.EnemiesDefeated, u.DeathCount, u.LivesRemaining,
	)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inactiveSessionError(ctx, r.pool, sessionID)
		}
		return nil, fmt.Errorf("updating session: %w", err)
	}
	return s, nil
}

// EndAndFold performs the ACTIVE to terminal transition as a conditional
// update, so of two concurrent callers only one gets a row back, and folds
// the ended session into profile and progress in the same transaction
func (r *Repository) EndAndFold(ctx context.Context, sessionID string, end domain.SessionEnd, at time.Time) (*domain.Session, error) {
	var ended *domain.Session
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		s, err := endSession(ctx, tx, sessionID, end, at)
		if err != nil {
			return err
		}
		if _, err := applyProfileDelta(ctx, tx, s.UserID, s.ProfileDelta()); err != nil {
			return err
		}
		if s.Status == domain.SessionCompleted {
			if _, err := recordCompletion(ctx, tx, s.UserID, s.LevelID, s.Completion(), at); err != nil {
				return err
			}
		}
		ended = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ended, nil
}

func endSession(ctx context.Context, q querier, sessionID string, end domain.SessionEnd, at time.Time) (*domain.Session, error) {
	query := `
		UPDATE sessions SET
			end_time = $2,
			duration = GREATEST(0, FLOOR(EXTRACT(EPOCH FROM ($2::timestamptz - start_time))))::BIGINT,
			status = $3,
			final_score = $4,
			coins_collected = $5,
			enemies_defeated = $6,
			death_count = $7,
			lives_remaining = $8
		WHERE id = $1 AND status = 'ACTIVE'
		RETURNING ` + sessionColumns
	row := q.QueryRow(ctx, query, sessionID, at, end.Status,
		end.FinalScore, end.CoinsCollected, end.EnemiesDefeated, end.DeathCount, end.LivesRemaining,
	)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inactiveSessionError(ctx, q, sessionID)
		}
		return nil, fmt.Errorf("ending session: %w", err)
	}
	return s, nil
}

// inactiveSessionError distinguishes a missing session from a terminal one
// after a conditional update matched no row
func inactiveSessionError(ctx context.Context, q querier, sessionID string) error {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM sessions WHERE id = $1)`, sessionID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking session: %w", err)
	}
	if !exists {
		return domain.ErrSessionNotFound
	}
	return domain.ErrSessionTerminal
}

// ListSessions returns a page of a user's sessions, most recent first
func (r *Repository) ListSessions(ctx context.Context, userID string, page domain.Page) ([]domain.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1
		ORDER BY start_time DESC
		LIMIT $2 OFFSET $3`,
		userID, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	sessions := []domain.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}
