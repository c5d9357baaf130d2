package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ThanhSi1008/tilevania-sub000/internal/config"
	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
	"github.com/ThanhSi1008/tilevania-sub000/internal/redis"
)

func leaderboardSnapshot(scores ...int64) domain.Snapshot {
	at := time.Now().UTC()
	snap := domain.Snapshot{CalculatedAt: at, Entries: map[domain.Period][]domain.LeaderboardEntry{}}
	for _, period := range domain.Periods {
		for i, s := range scores {
			snap.Entries[period] = append(snap.Entries[period], domain.LeaderboardEntry{
				UserID: []string{"u1", "u2", "u3"}[i], Period: period, Rank: int64(i + 1), TotalScore: s, CalculatedAt: at,
			})
		}
	}
	return snap
}

func TestLeaderboardReadsStoreWithoutCache(t *testing.T) {
	st := seedStore(t)
	ctx := context.Background()
	if err := st.ReplaceLeaderboard(ctx, leaderboardSnapshot(50, 20)); err != nil {
		t.Fatalf("replace: %v", err)
	}

	svc := NewLeaderboardService(nil, st, &config.LeaderboardConfig{DefaultLimit: 10, MaxLimit: 100}, nil, nil)
	top, err := svc.GetTopN(ctx, domain.PeriodAllTime, 0)
	if err != nil || len(top) != 2 {
		t.Fatalf("top = %v, %v", top, err)
	}
	e, err := svc.GetPlayerRank(ctx, domain.PeriodWeekly, "u2")
	if err != nil || e.Rank != 2 {
		t.Fatalf("rank = %+v, %v", e, err)
	}
	if _, err := svc.GetPlayerRank(ctx, domain.PeriodWeekly, "ghost"); !errors.Is(err, domain.ErrPlayerNotRanked) {
		t.Errorf("expected not ranked, got %v", err)
	}
	stats, err := svc.GetStats(ctx, domain.PeriodDaily)
	if err != nil || stats.TotalPlayers != 2 || stats.TopScore != 50 {
		t.Errorf("stats = %+v, %v", stats, err)
	}
}

func TestLeaderboardPrefersCache(t *testing.T) {
	st := seedStore(t)
	ctx := context.Background()
	if err := st.ReplaceLeaderboard(ctx, leaderboardSnapshot(50, 20)); err != nil {
		t.Fatalf("replace: %v", err)
	}

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := redis.NewLeaderboardCacheFromClient(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc := NewLeaderboardService(cache, st, &config.LeaderboardConfig{DefaultLimit: 10, MaxLimit: 2}, nil, nil)

	// empty cache falls back to the store
	top, err := svc.GetTopN(ctx, domain.PeriodAllTime, 10)
	if err != nil || len(top) != 2 || top[0].TotalScore != 50 {
		t.Fatalf("fallback top = %v, %v", top, err)
	}

	if err := cache.StoreSnapshot(ctx, leaderboardSnapshot(70, 60, 10)); err != nil {
		t.Fatalf("store snapshot: %v", err)
	}
	top, err = svc.GetTopN(ctx, domain.PeriodAllTime, 10)
	if err != nil || len(top) != 2 || top[0].TotalScore != 70 {
		t.Fatalf("cached top = %v, %v", top, err)
	}
	e, err := svc.GetPlayerRank(ctx, domain.PeriodAllTime, "u3")
	if err != nil || e.TotalScore != 10 {
		t.Fatalf("cached rank = %+v, %v", e, err)
	}
}
