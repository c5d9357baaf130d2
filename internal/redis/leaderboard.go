package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ThanhSi1008/tilevania-sub000/internal/config"
	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
)

// ErrCacheMiss is returned when no snapshot has been written for a period
var ErrCacheMiss = errors.New("leaderboard snapshot not cached")

// LeaderboardCache holds the latest ranked snapshot per period. Each period
// is a sorted set of user IDs scored by rank, a hash of user ID to entry, and
// a meta hash whose presence marks the snapshot as cached.
type LeaderboardCache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewLeaderboardCache connects to Redis and returns the cache
func NewLeaderboardCache(ctx context.Context, cfg *config.RedisConfig, logger *slog.Logger) (*LeaderboardCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewLeaderboardCacheFromClient(client, logger), nil
}

// NewLeaderboardCacheFromClient wraps an existing client
func NewLeaderboardCacheFromClient(client *redis.Client, logger *slog.Logger) *LeaderboardCache {
	return &LeaderboardCache{
		client: client,
		logger: logger,
	}
}

// Close closes the Redis connection
func (c *LeaderboardCache) Close() error {
	return c.client.Close()
}

// Ping checks Redis is reachable
func (c *LeaderboardCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func ranksKey(period domain.Period) string {
	return fmt.Sprintf("leaderboard:%s:ranks", period)
}

func entriesKey(period domain.Period) string {
	return fmt.Sprintf("leaderboard:%s:entries", period)
}

func metaKey(period domain.Period) string {
	return fmt.Sprintf("leaderboard:%s:meta", period)
}

// StoreSnapshot replaces every period of the cached snapshot. Rows are staged
// under temporary keys and renamed into place inside MULTI so readers never
// observe a half-written period.
func (c *LeaderboardCache) StoreSnapshot(ctx context.Context, snapshot domain.Snapshot) error {
	for _, period := range domain.Periods {
		if err := c.storePeriod(ctx, period, snapshot.Entries[period], snapshot.CalculatedAt); err != nil {
			return err
		}
	}
	c.logger.Debug("leaderboard snapshot cached", "calculated_at", snapshot.CalculatedAt)
	return nil
}

func (c *LeaderboardCache) storePeriod(ctx context.Context, period domain.Period, entries []domain.LeaderboardEntry, calculatedAt time.Time) error {
	ranks, rows := ranksKey(period), entriesKey(period)
	tmpRanks, tmpRows := ranks+":tmp", rows+":tmp"

	if len(entries) > 0 {
		members := make([]redis.Z, 0, len(entries))
		fields := make([]any, 0, len(entries)*2)
		for _, e := range entries {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("encoding leaderboard entry: %w", err)
			}
			members = append(members, redis.Z{Score: float64(e.Rank), Member: e.UserID})
			fields = append(fields, e.UserID, data)
		}

		pipe := c.client.Pipeline()
		pipe.Del(ctx, tmpRanks, tmpRows)
		pipe.ZAdd(ctx, tmpRanks, members...)
		pipe.HSet(ctx, tmpRows, fields...)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("staging leaderboard %s: %w", period, err)
		}
	}

	var topScore int64
	if len(entries) > 0 {
		topScore = entries[0].TotalScore
	}

	tx := c.client.TxPipeline()
	if len(entries) > 0 {
		tx.Rename(ctx, tmpRanks, ranks)
		tx.Rename(ctx, tmpRows, rows)
	} else {
		tx.Del(ctx, ranks, rows)
	}
	tx.Del(ctx, metaKey(period))
	tx.HSet(ctx, metaKey(period),
		"calculated_at", calculatedAt.UTC().Format(time.RFC3339Nano),
		"total_players", len(entries),
		"top_score", topScore,
	)
	if _, err := tx.Exec(ctx); err != nil {
		return fmt.Errorf("publishing leaderboard %s: %w", period, err)
	}
	return nil
}

func (c *LeaderboardCache) cached(ctx context.Context, period domain.Period) error {
	n, err := c.client.Exists(ctx, metaKey(period)).Result()
	if err != nil {
		return fmt.Errorf("checking leaderboard cache: %w", err)
	}
	if n == 0 {
		return ErrCacheMiss
	}
	return nil
}

// TopN returns the first n cached rows of a period in rank order
func (c *LeaderboardCache) TopN(ctx context.Context, period domain.Period, n int) ([]domain.LeaderboardEntry, error) {
	if err := c.cached(ctx, period); err != nil {
		return nil, err
	}

	userIDs, err := c.client.ZRange(ctx, ranksKey(period), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top n: %w", err)
	}
	entries := make([]domain.LeaderboardEntry, 0, len(userIDs))
	if len(userIDs) == 0 {
		return entries, nil
	}

	values, err := c.client.HMGet(ctx, entriesKey(period), userIDs...).Result()
	if err != nil {
		return nil, fmt.Errorf("getting leaderboard rows: %w", err)
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var e domain.LeaderboardEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decoding leaderboard entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Entry returns one user's cached row
func (c *LeaderboardCache) Entry(ctx context.Context, period domain.Period, userID string) (*domain.LeaderboardEntry, error) {
	if err := c.cached(ctx, period); err != nil {
		return nil, err
	}

	raw, err := c.client.HGet(ctx, entriesKey(period), userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrPlayerNotRanked
		}
		return nil, fmt.Errorf("getting leaderboard entry: %w", err)
	}
	var e domain.LeaderboardEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("decoding leaderboard entry: %w", err)
	}
	return &e, nil
}

// Stats returns the size and top score of a cached period
func (c *LeaderboardCache) Stats(ctx context.Context, period domain.Period) (*domain.LeaderboardStats, error) {
	result, err := c.client.HGetAll(ctx, metaKey(period)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting leaderboard meta: %w", err)
	}
	if len(result) == 0 {
		return nil, ErrCacheMiss
	}

	total, _ := strconv.ParseInt(result["total_players"], 10, 64)
	top, _ := strconv.ParseInt(result["top_score"], 10, 64)
	return &domain.LeaderboardStats{
		Period:       period,
		TotalPlayers: total,
		TopScore:     top,
	}, nil
}
