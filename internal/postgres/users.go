package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
)

const profileColumns = `user_id, total_score, total_coins_collected, total_enemies_defeated, total_deaths,
	total_play_time_seconds, current_lives, highest_score_achieved, created_at, updated_at`

// CreateUser inserts a user and its profile in one transaction
func (r *Repository) CreateUser(ctx context.Context, user domain.User, profile domain.Profile) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, username, email, password_hash, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			user.ID, user.Username, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt,
		)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO profiles (user_id, current_lives, created_at, updated_at)
			VALUES ($1, $2, $3, $4)`,
			user.ID, profile.CurrentLives, profile.CreatedAt, profile.UpdatedAt,
		)
		return err
	})
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return domain.ErrUserExists
		}
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID
func (r *Repository) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return r.getUser(ctx, `WHERE id = $1`, userID)
}

// GetUserByUsername retrieves a user by username
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getUser(ctx, `WHERE username = $1`, username)
}

func (r *Repository) getUser(ctx context.Context, where string, arg string) (*domain.User, error) {
	query := `SELECT id, username, email, password_hash, created_at, updated_at FROM users ` + where
	var u domain.User
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return &u, nil
}

func scanProfile(row pgx.Row) (*domain.Profile, error) {
	var p domain.Profile
	err := row.Scan(
		&p.UserID,
		&p.TotalScore,
		&p.TotalCoinsCollected,
		&p.TotalEnemiesDefeated,
		&p.TotalDeaths,
		&p.TotalPlayTimeSeconds,
		&p.CurrentLives,
		&p.HighestScoreAchieved,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetProfile retrieves a profile by user ID
func (r *Repository) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID)
	p, err := scanProfile(row)
	if err != nil && !errors.Is(err, domain.ErrProfileNotFound) {
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return p, err
}

// UpdateProfile sets the provided fields
func (r *Repository) UpdateProfile(ctx context.Context, userID string, u domain.ProfileUpdate) (*domain.Profile, error) {
	query := `
		UPDATE profiles SET
			total_score = COALESCE($2, total_score),
			total_coins_collected = COALESCE($3, total_coins_collected),
			total_enemies_defeated = COALESCE($4, total_enemies_defeated),
			total_deaths = COALESCE($5, total_deaths),
			total_play_time_seconds = COALESCE($6, total_play_time_seconds),
			current_lives = COALESCE($7, current_lives),
			highest_score_achieved = COALESCE($8, highest_score_achieved),
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + profileColumns
	row := r.pool.QueryRow(ctx, query, userID,
		u.TotalScore, u.TotalCoinsCollected, u.TotalEnemiesDefeated, u.TotalDeaths,
		u.TotalPlayTimeSeconds, u.CurrentLives, u.HighestScoreAchieved,
	)
	p, err := scanProfile(row)
	if err != nil && !errors.Is(err, domain.ErrProfileNotFound) {
		return nil, profileWriteError(err, "updating profile")
	}
	return p, err
}

// ApplyProfileDelta adds the delta in a single statement
func (r *Repository) ApplyProfileDelta(ctx context.Context, userID string, d domain.ProfileDelta) (*domain.Profile, error) {
	return applyProfileDelta(ctx, r.pool, userID, d)
}

// applyProfileDelta relies on BIGINT arithmetic raising numeric_value_out_of_range
// to refuse an overflowing counter
func applyProfileDelta(ctx context.Context, q querier, userID string, d domain.ProfileDelta) (*domain.Profile, error) {
	query := `
		UPDATE profiles SET
			total_score = total_score + $2,
			total_coins_collected = total_coins_collected + $3,
			total_enemies_defeated = total_enemies_defeated + $4,
			total_deaths = total_deaths + $5,
			total_play_time_seconds = total_play_time_seconds + $6,
			current_lives = COALESCE($7, current_lives),
			highest_score_achieved = GREATEST(highest_score_achieved, $8),
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + profileColumns
	row := q.QueryRow(ctx, query, userID,
		d.Score, d.Coins, d.Enemies, d.Deaths, d.PlayTime, d.Lives, d.HighestScore,
	)
	p, err := scanProfile(row)
	if err != nil && !errors.Is(err, domain.ErrProfileNotFound) {
		return nil, profileWriteError(err, "applying profile delta")
	}
	return p, err
}

// ListStandings reads every profile joined with its username
func (r *Repository) ListStandings(ctx context.Context) ([]domain.ProfileStanding, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.user_id, u.username, p.total_score
		FROM profiles p
		JOIN users u ON u.id = p.user_id`)
	if err != nil {
		return nil, fmt.Errorf("listing standings: %w", err)
	}
	defer rows.Close()

	var standings []domain.ProfileStanding
	for rows.Next() {
		var s domain.ProfileStanding
		if err := rows.Scan(&s.UserID, &s.Username, &s.TotalScore); err != nil {
			return nil, fmt.Errorf("scanning standing: %w", err)
		}
		standings = append(standings, s)
	}
	return standings, rows.Err()
}
