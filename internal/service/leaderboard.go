package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThanhSi1008/tilevania-sub000/internal/config"
	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
	"github.com/ThanhSi1008/tilevania-sub000/internal/metrics"
	"github.com/ThanhSi1008/tilevania-sub000/internal/redis"
	"github.com/ThanhSi1008/tilevania-sub000/internal/store"
)

// LeaderboardCache serves the latest snapshot without touching the store
type LeaderboardCache interface {
	TopN(ctx context.Context, period domain.Period, n int) ([]domain.LeaderboardEntry, error)
	Entry(ctx context.Context, period domain.Period, userID string) (*domain.LeaderboardEntry, error)
	Stats(ctx context.Context, period domain.Period) (*domain.LeaderboardStats, error)
}

// LeaderboardService reads ranked snapshots, from the cache when one is
// configured and populated, otherwise from the store
type LeaderboardService struct {
	cache   LeaderboardCache
	store   store.LeaderboardStore
	config  *config.LeaderboardConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewLeaderboardService creates a new leaderboard service. cache may be nil.
func NewLeaderboardService(
	cache LeaderboardCache,
	st store.LeaderboardStore,
	cfg *config.LeaderboardConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *LeaderboardService {
	return &LeaderboardService{
		cache:   cache,
		store:   st,
		config:  cfg,
		metrics: m,
		logger:  orDiscard(logger),
	}
}

// GetTopN returns the first n rows of a period
func (s *LeaderboardService) GetTopN(ctx context.Context, period domain.Period, n int) ([]domain.LeaderboardEntry, error) {
	if n < 0 {
		return nil, domain.ErrInvalidRequest
	}
	if n == 0 {
		n = s.config.DefaultLimit
	}
	if n > s.config.MaxLimit {
		n = s.config.MaxLimit
	}

	if s.cache != nil {
		entries, err := s.cache.TopN(ctx, period, n)
		if s.cacheHit(err) {
			return entries, nil
		}
	}

	entries, err := s.store.GetLeaderboard(ctx, period, n)
	if err != nil {
		return nil, fmt.Errorf("getting leaderboard: %w", err)
	}
	return entries, nil
}

// GetPlayerRank returns the user's row in a period
func (s *LeaderboardService) GetPlayerRank(ctx context.Context, period domain.Period, userID string) (*domain.LeaderboardEntry, error) {
	if userID == "" {
		return nil, domain.ErrMissingUserID
	}

	if s.cache != nil {
		entry, err := s.cache.Entry(ctx, period, userID)
		if errors.Is(err, domain.ErrPlayerNotRanked) {
			s.metrics.CacheRead("hit")
			return nil, err
		}
		if s.cacheHit(err) {
			return entry, nil
		}
	}

	return s.store.GetLeaderboardEntry(ctx, period, userID)
}

// GetStats returns the size and top score of a period
func (s *LeaderboardService) GetStats(ctx context.Context, period domain.Period) (*domain.LeaderboardStats, error) {
	if s.cache != nil {
		stats, err := s.cache.Stats(ctx, period)
		if s.cacheHit(err) {
			return stats, nil
		}
	}

	entries, err := s.store.GetLeaderboard(ctx, period, 0)
	if err != nil {
		return nil, fmt.Errorf("getting leaderboard: %w", err)
	}
	stats := &domain.LeaderboardStats{Period: period, TotalPlayers: int64(len(entries))}
	if len(entries) > 0 {
		stats.TopScore = entries[0].TotalScore
	}
	return stats, nil
}

// cacheHit records the cache outcome and reports whether err means the
// cached value can be served
func (s *LeaderboardService) cacheHit(err error) bool {
	switch {
	case err == nil:
		s.metrics.CacheRead("hit")
		return true
	case errors.Is(err, redis.ErrCacheMiss):
		s.metrics.CacheRead("miss")
		s.logger.Debug("leaderboard cache miss")
	default:
		s.metrics.CacheRead("error")
		s.logger.Warn("leaderboard cache read failed, falling back to store", "error", err)
	}
	return false
}
