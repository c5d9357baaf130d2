package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
	"github.com/ThanhSi1008/tilevania-sub000/internal/ranking"
)

// Recomputer rebuilds the published leaderboards
type Recomputer interface {
	Recompute(ctx context.Context) (*domain.Snapshot, error)
	WarmCache(ctx context.Context) error
}

// RecomputeWorker periodically recomputes the leaderboards
type RecomputeWorker struct {
	engine   Recomputer
	interval time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewRecomputeWorker creates a new recompute worker
func NewRecomputeWorker(engine Recomputer, interval time.Duration, logger *slog.Logger) *RecomputeWorker {
	return &RecomputeWorker{
		engine:   engine,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start warms the cache from the last stored snapshot and begins the
// background recompute loop
func (w *RecomputeWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.engine.WarmCache(ctx); err != nil {
		w.logger.Warn("failed to warm leaderboard cache", "error", err)
	}

	w.logger.Info("recompute worker started", "interval", w.interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background recompute loop and waits for a running cycle
func (w *RecomputeWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("recompute worker stopped")
	return nil
}

func (w *RecomputeWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single recompute cycle. A cycle that finds another
// recompute in progress is skipped.
func (w *RecomputeWorker) RunOnce(ctx context.Context) {
	startTime := time.Now()

	snapshot, err := w.engine.Recompute(ctx)
	switch {
	case ranking.IsBusy(err):
		w.logger.Debug("recompute already in progress, skipping cycle")
	case err != nil:
		w.logger.Error("leaderboard recompute failed", "error", err)
	default:
		w.logger.Info("recompute cycle completed",
			"duration", time.Since(startTime),
			"players", len(snapshot.Entries[domain.PeriodAllTime]),
		)
	}
}

// IsRunning returns whether the worker is currently running
func (w *RecomputeWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
