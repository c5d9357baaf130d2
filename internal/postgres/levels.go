package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
)

const progressColumns = `user_id, level_id, is_completed, coins_collected, enemies_defeated,
	death_count, best_score, best_time, play_count, last_played_at`

// ListLevels returns the catalog ordered by level number
func (r *Repository) ListLevels(ctx context.Context) ([]domain.Level, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, level_number, name, scene_ref, unlock_threshold, created_at, updated_at
		FROM levels
		ORDER BY level_number`)
	if err != nil {
		return nil, fmt.Errorf("listing levels: %w", err)
	}
	defer rows.Close()

	var levels []domain.Level
	for rows.Next() {
		var l domain.Level
		if err := rows.Scan(&l.ID, &l.LevelNumber, &l.Name, &l.SceneRef, &l.UnlockThreshold, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning level: %w", err)
		}
		levels = append(levels, l)
	}
	return levels, rows.Err()
}

// GetLevel retrieves a catalog entry
func (r *Repository) GetLevel(ctx context.Context, levelID string) (*domain.Level, error) {
	var l domain.Level
	err := r.pool.QueryRow(ctx, `
		SELECT id, level_number, name, scene_ref, unlock_threshold, created_at, updated_at
		FROM levels WHERE id = $1`, levelID,
	).Scan(&l.ID, &l.LevelNumber, &l.Name, &l.SceneRef, &l.UnlockThreshold, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrLevelNotFound
		}
		return nil, fmt.Errorf("getting level: %w", err)
	}
	return &l, nil
}

// UpsertLevel inserts or updates a catalog entry keyed by ID
func (r *Repository) UpsertLevel(ctx context.Context, level domain.Level) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO levels (id, level_number, name, scene_ref, unlock_threshold)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			level_number = EXCLUDED.level_number,
			name = EXCLUDED.name,
			scene_ref = EXCLUDED.scene_ref,
			unlock_threshold = EXCLUDED.unlock_threshold,
			updated_at = NOW()`,
		level.ID, level.LevelNumber, level.Name, level.SceneRef, level.UnlockThreshold,
	)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return domain.ErrLevelExists
		}
		return fmt.Errorf("upserting level: %w", err)
	}
	return nil
}

func scanProgress(row pgx.Row) (*domain.LevelProgress, error) {
	var p domain.LevelProgress
	err := row.Scan(
		&p.UserID,
		&p.LevelID,
		&p.IsCompleted,
		&p.CoinsCollected,
		&p.EnemiesDefeated,
		&p.DeathCount,
		&p.BestScore,
		&p.BestTime,
		&p.PlayCount,
		&p.LastPlayedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetLevelProgress retrieves one (user, level) record
func (r *Repository) GetLevelProgress(ctx context.Context, userID, levelID string) (*domain.LevelProgress, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+progressColumns+` FROM level_progress WHERE user_id = $1 AND level_id = $2`, userID, levelID)
	p, err := scanProgress(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProgressNotFound
		}
		return nil, fmt.Errorf("getting level progress: %w", err)
	}
	return p, nil
}

// ListLevelProgress returns all progress records of a user
func (r *Repository) ListLevelProgress(ctx context.Context, userID string) ([]domain.LevelProgress, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+progressColumns+` FROM level_progress WHERE user_id = $1 ORDER BY level_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing level progress: %w", err)
	}
	defer rows.Close()

	var out []domain.LevelProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning level progress: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// RecordCompletion folds a completion into the progress record in a single
// upsert. The merge mirrors domain.Completion.Fold.
func (r *Repository) RecordCompletion(ctx context.Context, userID, levelID string, c domain.Completion, at time.Time) (*domain.LevelProgress, error) {
	return recordCompletion(ctx, r.pool, userID, levelID, c, at)
}

func recordCompletion(ctx context.Context, q querier, userID, levelID string, c domain.Completion, at time.Time) (*domain.LevelProgress, error) {
	query := `
		INSERT INTO level_progress (user_id, level_id, is_completed, coins_collected, enemies_defeated,
			death_count, best_score, best_time, play_count, last_played_at)
		VALUES ($1, $2, TRUE, $3, $4, $5, $6, $7, 1, $8)
		ON CONFLICT (user_id, level_id) DO UPDATE SET
			is_completed = TRUE,
			coins_collected = GREATEST(level_progress.coins_collected, EXCLUDED.coins_collected),
			enemies_defeated = GREATEST(level_progress.enemies_defeated, EXCLUDED.enemies_defeated),
			death_count = level_progress.death_count + EXCLUDED.death_count,
			best_score = GREATEST(level_progress.best_score, EXCLUDED.best_score),
			best_time = EXCLUDED.best_time,
			play_count = level_progress.play_count + 1,
			last_played_at = EXCLUDED.last_played_at
		RETURNING ` + progressColumns
	row := q.QueryRow(ctx, query, userID, levelID, c.Coins, c.Enemies, c.Deaths, c.Score, c.Duration, at)
	p, err := scanProgress(row)
	if err != nil {
		if mapped := foreignKeyError(err, "level_progress_user_id_fkey", domain.ErrLevelNotFound); mapped != nil {
			return nil, mapped
		}
		return nil, fmt.Errorf("recording completion: %w", err)
	}
	return p, nil
}
