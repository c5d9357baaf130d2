package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
)

// ReplaceLeaderboard swaps in a full snapshot inside one transaction. The
// advisory lock serializes concurrent recomputes across server instances.
func (r *Repository) ReplaceLeaderboard(ctx context.Context, snapshot domain.Snapshot) error {
	var rows [][]any
	for period, entries := range snapshot.Entries {
		for _, e := range entries {
			rows = append(rows, []any{e.UserID, string(period), e.Rank, e.TotalScore, e.CalculatedAt})
		}
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, leaderboardLockKey); err != nil {
			return fmt.Errorf("acquiring leaderboard lock: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM leaderboard_entries`); err != nil {
			return fmt.Errorf("clearing leaderboard: %w", err)
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"leaderboard_entries"},
			[]string{"user_id", "period", "rank", "total_score", "calculated_at"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("copying leaderboard rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replacing leaderboard: %w", err)
	}

	r.logger.Debug("leaderboard snapshot stored", "rows", len(rows))
	return nil
}

// GetLeaderboard returns the top rows of a period in rank order
func (r *Repository) GetLeaderboard(ctx context.Context, period domain.Period, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT l.user_id, u.username, l.period, l.rank, l.total_score, l.calculated_at
		FROM leaderboard_entries l
		JOIN users u ON u.id = l.user_id
		WHERE l.period = $1
		ORDER BY l.rank
		LIMIT NULLIF($2, 0)`, string(period), limit)
	if err != nil {
		return nil, fmt.Errorf("querying leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []domain.LeaderboardEntry{}
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Username, &e.Period, &e.Rank, &e.TotalScore, &e.CalculatedAt); err != nil {
			return nil, fmt.Errorf("scanning leaderboard entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetLeaderboardEntry returns one user's row in a period
func (r *Repository) GetLeaderboardEntry(ctx context.Context, period domain.Period, userID string) (*domain.LeaderboardEntry, error) {
	var e domain.LeaderboardEntry
	err := r.pool.QueryRow(ctx, `
		SELECT l.user_id, u.username, l.period, l.rank, l.total_score, l.calculated_at
		FROM leaderboard_entries l
		JOIN users u ON u.id = l.user_id
		WHERE l.period = $1 AND l.user_id = $2`, string(period), userID,
	).Scan(&e.UserID, &e.Username, &e.Period, &e.Rank, &e.TotalScore, &e.CalculatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPlayerNotRanked
		}
		return nil, fmt.Errorf("getting leaderboard entry: %w", err)
	}
	return &e, nil
}
