// Package statsync pushes an active session's cumulative counters to the
// server on a fixed interval. Pushes are fire-and-forget: failures are
// dropped and the next tick or the final end payload supersedes them.
package statsync

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
)

// DefaultInterval is the push period when none is configured
const DefaultInterval = 10 * time.Second

// Pusher delivers one stats update
type Pusher interface {
	PushStats(ctx context.Context, msg domain.StatsMessage) error
}

// Source reports the session's current cumulative counters
type Source interface {
	Snapshot() domain.StatsUpdate
}

// Synchronizer runs at most one push loop at a time
type Synchronizer struct {
	pusher      Pusher
	interval    time.Duration
	pushTimeout time.Duration
	logger      *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a synchronizer. A zero interval uses DefaultInterval.
func New(pusher Pusher, interval time.Duration, logger *slog.Logger) *Synchronizer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Synchronizer{
		pusher:      pusher,
		interval:    interval,
		pushTimeout: interval,
		logger:      logger,
	}
}

// Start begins pushing for the session, replacing any running loop
func (s *Synchronizer) Start(sessionID, userID string, src Source) {
	s.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.run(ctx, done, sessionID, userID, src)
}

// Stop ends the push loop and waits for it to exit. It is safe to call
// when nothing is running.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Synchronizer) run(ctx context.Context, done chan struct{}, sessionID, userID string, src Source) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.push(ctx, sessionID, userID, src.Snapshot())
		}
	}
}

func (s *Synchronizer) push(ctx context.Context, sessionID, userID string, stats domain.StatsUpdate) {
	pushCtx, cancel := context.WithTimeout(ctx, s.pushTimeout)
	defer cancel()

	msg := domain.StatsMessage{
		SessionID: sessionID,
		UserID:    userID,
		Stats:     stats,
		SentAt:    time.Now().UTC(),
	}
	if err := s.pusher.PushStats(pushCtx, msg); err != nil {
		s.logger.Debug("stats push dropped", "session_id", sessionID, "error", err)
	}
}
