package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ThanhSi1008/tilevania-sub000/internal/config"
	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
	"github.com/ThanhSi1008/tilevania-sub000/internal/store"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgNumericOutOfRange   = "22003"
)

// querier is satisfied by both the pool and a transaction, so single
// statements can run alone or as one step of a larger unit of work
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// leaderboardLockKey is the advisory lock taken by every snapshot swap
const leaderboardLockKey int64 = 0x1eade7b0a7d

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ store.Store = (*Repository)(nil)

// NewRepository creates a new PostgreSQL repository, retrying the initial
// connection with exponential backoff
func NewRepository(ctx context.Context, cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(cfg.ConnectRetries)), ctx)
	err = backoff.Retry(func() error {
		if err := pool.Ping(ctx); err != nil {
			logger.Warn("postgres ping failed, retrying", "error", err)
			return err
		}
		return nil
	}, b)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks the database is reachable
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// schema is applied in order at startup; every statement is idempotent
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(64) PRIMARY KEY,
		username VARCHAR(32) NOT NULL UNIQUE,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS profiles (
		user_id VARCHAR(64) PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		total_score BIGINT NOT NULL DEFAULT 0 CHECK (total_score >= 0),
		total_coins_collected BIGINT NOT NULL DEFAULT 0 CHECK (total_coins_collected >= 0),
		total_enemies_defeated BIGINT NOT NULL DEFAULT 0 CHECK (total_enemies_defeated >= 0),
		total_deaths BIGINT NOT NULL DEFAULT 0 CHECK (total_deaths >= 0),
		total_play_time_seconds BIGINT NOT NULL DEFAULT 0 CHECK (total_play_time_seconds >= 0),
		current_lives BIGINT NOT NULL DEFAULT 3 CHECK (current_lives >= 0),
		highest_score_achieved BIGINT NOT NULL DEFAULT 0 CHECK (highest_score_achieved >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS levels (
		id VARCHAR(64) PRIMARY KEY,
		level_number INT NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL,
		scene_ref VARCHAR(255) NOT NULL DEFAULT '',
		unlock_threshold BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS level_progress (
		user_id VARCHAR(64) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		level_id VARCHAR(64) NOT NULL REFERENCES levels(id) ON DELETE CASCADE,
		is_completed BOOLEAN NOT NULL DEFAULT FALSE,
		coins_collected BIGINT NOT NULL DEFAULT 0,
		enemies_defeated BIGINT NOT NULL DEFAULT 0,
		death_count BIGINT NOT NULL DEFAULT 0,
		best_score BIGINT NOT NULL DEFAULT 0,
		best_time BIGINT NOT NULL DEFAULT 0,
		play_count BIGINT NOT NULL DEFAULT 0,
		last_played_at TIMESTAMPTZ,
		PRIMARY KEY (user_id, level_id)
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id VARCHAR(64) PRIMARY KEY,
		user_id VARCHAR(64) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		level_id VARCHAR(64) NOT NULL REFERENCES levels(id),
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ,
		duration BIGINT NOT NULL DEFAULT 0,
		final_score BIGINT NOT NULL DEFAULT 0,
		coins_collected BIGINT NOT NULL DEFAULT 0,
		enemies_defeated BIGINT NOT NULL DEFAULT 0,
		death_count BIGINT NOT NULL DEFAULT 0,
		lives_remaining BIGINT NOT NULL DEFAULT 0,
		status VARCHAR(16) NOT NULL DEFAULT 'ACTIVE'
			CHECK (status IN ('ACTIVE', 'COMPLETED', 'ABANDONED', 'FAILED'))
	)`,
	`CREATE TABLE IF NOT EXISTS achievements (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		condition_code VARCHAR(64) NOT NULL,
		threshold BIGINT NOT NULL DEFAULT 0,
		points BIGINT NOT NULL DEFAULT 0,
		rarity VARCHAR(16) NOT NULL DEFAULT 'COMMON',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS player_achievements (
		user_id VARCHAR(64) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		achievement_id VARCHAR(64) NOT NULL REFERENCES achievements(id) ON DELETE CASCADE,
		unlocked_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		progress BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, achievement_id)
	)`,
	`CREATE TABLE IF NOT EXISTS leaderboard_entries (
		user_id VARCHAR(64) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		period VARCHAR(16) NOT NULL,
		rank BIGINT NOT NULL,
		total_score BIGINT NOT NULL,
		calculated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, period),
		UNIQUE (period, rank)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_user_start ON sessions(user_id, start_time DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_profiles_score ON profiles(total_score DESC)`,
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	for _, migration := range schema {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// pgCode returns the SQLSTATE of a Postgres error, or "" for other errors
func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// constraintName returns the violated constraint, or "" for other errors
func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

// profileWriteError maps constraint failures of a profile write to domain
// errors: a CHECK (>= 0) violation or a BIGINT overflow
func profileWriteError(err error, action string) error {
	switch pgCode(err) {
	case pgCheckViolation:
		return domain.ErrNegativeAmount
	case pgNumericOutOfRange:
		return domain.ErrCounterOverflow
	}
	return fmt.Errorf("%s: %w", action, err)
}

// foreignKeyError maps a foreign key violation to the not-found error of
// the missing parent. userFKey names the constraint pointing at users.
func foreignKeyError(err error, userFKey string, other error) error {
	if pgCode(err) != pgForeignKeyViolation {
		return nil
	}
	if constraintName(err) == userFKey {
		return domain.ErrUserNotFound
	}
	return other
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
