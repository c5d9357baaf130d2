package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
)

type fakeEngine struct {
	recomputes atomic.Int32
	warms      atomic.Int32
	err        error
}

func (f *fakeEngine) Recompute(ctx context.Context) (*domain.Snapshot, error) {
	f.recomputes.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Snapshot{CalculatedAt: time.Now()}, nil
}

func (f *fakeEngine) WarmCache(ctx context.Context) error {
	f.warms.Add(1)
	return nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRecomputeWorkerRunsOnTicker(t *testing.T) {
	engine := &fakeEngine{}
	w := NewRecomputeWorker(engine, 10*time.Millisecond, discard())

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !w.IsRunning() {
		t.Fatal("worker not running after start")
	}

	deadline := time.Now().Add(2 * time.Second)
	for engine.recomputes.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if engine.warms.Load() != 1 {
		t.Errorf("warms = %d, want 1", engine.warms.Load())
	}
	if engine.recomputes.Load() < 2 {
		t.Errorf("recomputes = %d, want at least 2", engine.recomputes.Load())
	}
	if w.IsRunning() {
		t.Error("worker still running after stop")
	}
}

func TestRecomputeWorkerSurvivesFailures(t *testing.T) {
	engine := &fakeEngine{err: domain.ErrRecomputeInProgress}
	w := NewRecomputeWorker(engine, time.Hour, discard())

	w.RunOnce(context.Background())
	engine.err = errors.New("database down")
	w.RunOnce(context.Background())

	if engine.recomputes.Load() != 2 {
		t.Errorf("recomputes = %d, want 2", engine.recomputes.Load())
	}
}

func TestRecomputeWorkerStopWithoutStart(t *testing.T) {
	w := NewRecomputeWorker(&fakeEngine{}, time.Hour, discard())
	if err := w.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
