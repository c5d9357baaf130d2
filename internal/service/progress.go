package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
	"github.com/ThanhSi1008/tilevania-sub000/internal/store"
)

// ProgressService reads and records per-level progress
type ProgressService struct {
	store  store.LevelStore
	logger *slog.Logger
	now    Clock
}

// NewProgressService creates a new progress service
func NewProgressService(st store.LevelStore, logger *slog.Logger) *ProgressService {
	return &ProgressService{store: st, logger: orDiscard(logger), now: time.Now}
}

// List returns every progress record of the user
func (s *ProgressService) List(ctx context.Context, userID string) ([]domain.LevelProgress, error) {
	progress, err := s.store.ListLevelProgress(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing level progress: %w", err)
	}
	if progress == nil {
		progress = []domain.LevelProgress{}
	}
	return progress, nil
}

// Get returns one (user, level) record
func (s *ProgressService) Get(ctx context.Context, userID, levelID string) (*domain.LevelProgress, error) {
	if levelID == "" {
		return nil, domain.ErrMissingLevelID
	}
	return s.store.GetLevelProgress(ctx, userID, levelID)
}

// Complete folds a completed attempt into the record with the same rules
// as ending a session COMPLETED
func (s *ProgressService) Complete(ctx context.Context, userID, levelID string, c domain.Completion) (*domain.LevelProgress, error) {
	if userID == "" {
		return nil, domain.ErrMissingUserID
	}
	if levelID == "" {
		return nil, domain.ErrMissingLevelID
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	p, err := s.store.RecordCompletion(ctx, userID, levelID, c, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("completing level: %w", err)
	}
	s.logger.Info("level completed", "user_id", userID, "level_id", levelID, "best_score", p.BestScore, "play_count", p.PlayCount)
	return p, nil
}
