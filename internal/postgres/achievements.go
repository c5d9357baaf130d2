package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
)

const achievementColumns = `id, name, description, condition_code, threshold, points, rarity, created_at`

// ListAchievements returns the catalog ordered by ID
func (r *Repository) ListAchievements(ctx context.Context) ([]domain.Achievement, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+achievementColumns+` FROM achievements ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing achievements: %w", err)
	}
	defer rows.Close()

	var out []domain.Achievement
	for rows.Next() {
		var a domain.Achievement
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &a.Condition, &a.Threshold, &a.Points, &a.Rarity, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning achievement: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAchievement retrieves one definition
func (r *Repository) GetAchievement(ctx context.Context, achievementID string) (*domain.Achievement, error) {
	var a domain.Achievement
	err := r.pool.QueryRow(ctx, `SELECT `+achievementColumns+` FROM achievements WHERE id = $1`, achievementID).
		Scan(&a.ID, &a.Name, &a.Description, &a.Condition, &a.Threshold, &a.Points, &a.Rarity, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAchievementNotFound
		}
		return nil, fmt.Errorf("getting achievement: %w", err)
	}
	return &a, nil
}

// UpsertAchievement inserts or updates a definition keyed by ID
func (r *Repository) UpsertAchievement(ctx context.Context, a domain.Achievement) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO achievements (id, name, description, condition_code, threshold, points, rarity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			condition_code = EXCLUDED.condition_code,
			threshold = EXCLUDED.threshold,
			points = EXCLUDED.points,
			rarity = EXCLUDED.rarity`,
		a.ID, a.Name, a.Description, a.Condition, a.Threshold, a.Points, a.Rarity,
	)
	if err != nil {
		return fmt.Errorf("upserting achievement: %w", err)
	}
	return nil
}

// ListPlayerAchievements returns a user's unlocks with definitions embedded
func (r *Repository) ListPlayerAchievements(ctx context.Context, userID string) ([]domain.PlayerAchievement, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT pa.user_id, pa.achievement_id, pa.unlocked_at, pa.progress,
			a.id, a.name, a.description, a.condition_code, a.threshold, a.points, a.rarity, a.created_at
		FROM player_achievements pa
		JOIN achievements a ON a.id = pa.achievement_id
		WHERE pa.user_id = $1
		ORDER BY pa.unlocked_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing player achievements: %w", err)
	}
	defer rows.Close()

	var out []domain.PlayerAchievement
	for rows.Next() {
		var pa domain.PlayerAchievement
		var a domain.Achievement
		err := rows.Scan(
			&pa.UserID, &pa.AchievementID, &pa.UnlockedAt, &pa.Progress,
			&a.ID, &a.Name, &a.Description, &a.Condition, &a.Threshold, &a.Points, &a.Rarity, &a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning player achievement: %w", err)
		}
		pa.Achievement = &a
		out = append(out, pa)
	}
	return out, rows.Err()
}

// UnlockAchievement inserts an unlock and reports whether this call created
// it. The primary key on (user_id, achievement_id) settles races; only the
// creating call credits the points, in the same transaction as the insert.
func (r *Repository) UnlockAchievement(ctx context.Context, pa domain.PlayerAchievement, points int64) (bool, error) {
	var created bool
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var userID string
		err := tx.QueryRow(ctx, `
			INSERT INTO player_achievements (user_id, achievement_id, unlocked_at, progress)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id, achievement_id) DO NOTHING
			RETURNING user_id`,
			pa.UserID, pa.AchievementID, pa.UnlockedAt, pa.Progress,
		).Scan(&userID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			if mapped := foreignKeyError(err, "player_achievements_user_id_fkey", domain.ErrAchievementNotFound); mapped != nil {
				return mapped
			}
			return fmt.Errorf("inserting player achievement: %w", err)
		}

		if points > 0 {
			if _, err := applyProfileDelta(ctx, tx, pa.UserID, domain.ProfileDelta{Score: points}); err != nil {
				return err
			}
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}
