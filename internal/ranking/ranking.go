// Package ranking recomputes leaderboard snapshots from profile aggregates.
package ranking

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
	"github.com/ThanhSi1008/tilevania-sub000/internal/metrics"
	"github.com/ThanhSi1008/tilevania-sub000/internal/redis"
	"github.com/ThanhSi1008/tilevania-sub000/internal/store"
)

const lockName = "leaderboard:recompute"

// Store is the persistence the engine needs
type Store interface {
	ListStandings(ctx context.Context) ([]domain.ProfileStanding, error)
	store.LeaderboardStore
}

// Cache holds the published snapshot and the cross-process recompute lock
type Cache interface {
	StoreSnapshot(ctx context.Context, snapshot domain.Snapshot) error
	TryLock(ctx context.Context, name string, ttl time.Duration) (*redis.Lock, bool, error)
}

// Broadcaster announces a freshly published period
type Broadcaster interface {
	BroadcastLeaderboard(period domain.Period, entries []domain.LeaderboardEntry)
}

// Rank orders standings by descending score and assigns ranks 1..N. Equal
// scores are ordered by username and then user id so a recompute over the
// same standings always yields the same ranks.
func Rank(standings []domain.ProfileStanding, period domain.Period, at time.Time) []domain.LeaderboardEntry {
	sorted := slices.Clone(standings)
	slices.SortFunc(sorted, func(a, b domain.ProfileStanding) int {
		if c := cmp.Compare(b.TotalScore, a.TotalScore); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Username, b.Username); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})

	entries := make([]domain.LeaderboardEntry, len(sorted))
	for i, s := range sorted {
		entries[i] = domain.LeaderboardEntry{
			UserID:       s.UserID,
			Username:     s.Username,
			Period:       period,
			Rank:         int64(i + 1),
			TotalScore:   s.TotalScore,
			CalculatedAt: at,
		}
	}
	return entries
}

// Engine runs full recomputes. Recomputes are serialized in-process by a
// mutex and across processes by the cache lock when a cache is configured;
// the store swap itself is atomic.
type Engine struct {
	store       Store
	cache       Cache
	broadcaster Broadcaster
	metrics     *metrics.Metrics
	lockTTL     time.Duration
	logger      *slog.Logger
	now         func() time.Time

	mu sync.Mutex
}

// NewEngine creates a new ranking engine. cache and broadcaster may be nil.
func NewEngine(st Store, cache Cache, broadcaster Broadcaster, m *metrics.Metrics, lockTTL time.Duration, logger *slog.Logger) *Engine {
	return &Engine{
		store:       st,
		cache:       cache,
		broadcaster: broadcaster,
		metrics:     m,
		lockTTL:     lockTTL,
		logger:      logger,
		now:         time.Now,
	}
}

// Recompute rebuilds every period from the current profiles and publishes
// the result. It returns domain.ErrRecomputeInProgress when another process
// holds the recompute lock.
func (e *Engine) Recompute(ctx context.Context) (*domain.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cache != nil {
		lock, ok, err := e.cache.TryLock(ctx, lockName, e.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquiring recompute lock: %w", err)
		}
		if !ok {
			return nil, domain.ErrRecomputeInProgress
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				e.logger.Warn("failed to release recompute lock", "error", err)
			}
		}()
	}

	start := time.Now()
	snapshot, err := e.recompute(ctx)
	e.metrics.RecomputeFinished(time.Since(start), err)
	if err != nil {
		e.logger.Error("leaderboard recompute failed", "error", err)
		return nil, err
	}

	e.logger.Info("leaderboard recomputed",
		"players", len(snapshot.Entries[domain.PeriodAllTime]),
		"duration", time.Since(start),
	)
	return snapshot, nil
}

func (e *Engine) recompute(ctx context.Context) (*domain.Snapshot, error) {
	standings, err := e.store.ListStandings(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading standings: %w", err)
	}

	at := e.now().UTC()
	snapshot := domain.Snapshot{
		CalculatedAt: at,
		Entries:      make(map[domain.Period][]domain.LeaderboardEntry, len(domain.Periods)),
	}
	// WEEKLY and DAILY are ranked on the all-time total, the same as
	// ALLTIME, until windowed scoring is defined.
	for _, period := range domain.Periods {
		snapshot.Entries[period] = Rank(standings, period, at)
	}

	if err := e.store.ReplaceLeaderboard(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("storing snapshot: %w", err)
	}

	if e.cache != nil {
		if err := e.cache.StoreSnapshot(ctx, snapshot); err != nil {
			e.logger.Warn("failed to cache leaderboard snapshot", "error", err)
		}
	}

	if e.broadcaster != nil {
		for _, period := range domain.Periods {
			e.broadcaster.BroadcastLeaderboard(period, snapshot.Entries[period])
		}
	}
	return &snapshot, nil
}

// WarmCache copies the last stored snapshot into the cache
func (e *Engine) WarmCache(ctx context.Context) error {
	if e.cache == nil {
		return nil
	}

	snapshot := domain.Snapshot{Entries: make(map[domain.Period][]domain.LeaderboardEntry)}
	for _, period := range domain.Periods {
		entries, err := e.store.GetLeaderboard(ctx, period, 0)
		if err != nil {
			return fmt.Errorf("reading stored leaderboard: %w", err)
		}
		snapshot.Entries[period] = entries
		if len(entries) > 0 && entries[0].CalculatedAt.After(snapshot.CalculatedAt) {
			snapshot.CalculatedAt = entries[0].CalculatedAt
		}
	}
	if snapshot.CalculatedAt.IsZero() {
		e.logger.Info("no stored leaderboard to warm cache from")
		return nil
	}

	if err := e.cache.StoreSnapshot(ctx, snapshot); err != nil {
		return fmt.Errorf("warming leaderboard cache: %w", err)
	}
	e.logger.Info("leaderboard cache warmed", "calculated_at", snapshot.CalculatedAt)
	return nil
}

// IsBusy reports whether err means a recompute was already running
func IsBusy(err error) bool {
	return errors.Is(err, domain.ErrRecomputeInProgress)
}
