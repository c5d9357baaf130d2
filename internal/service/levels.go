package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
	"github.com/ThanhSi1008/tilevania-sub000/internal/store"
)

// LevelService serves the level catalog
type LevelService struct {
	store  store.LevelStore
	logger *slog.Logger
}

// NewLevelService creates a new level service
func NewLevelService(st store.LevelStore, logger *slog.Logger) *LevelService {
	return &LevelService{store: st, logger: orDiscard(logger)}
}

// List returns the catalog ordered by level number
func (s *LevelService) List(ctx context.Context) ([]domain.Level, error) {
	levels, err := s.store.ListLevels(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing levels: %w", err)
	}
	if levels == nil {
		levels = []domain.Level{}
	}
	return levels, nil
}

// Get returns one catalog entry
func (s *LevelService) Get(ctx context.Context, levelID string) (*domain.Level, error) {
	if levelID == "" {
		return nil, domain.ErrMissingLevelID
	}
	return s.store.GetLevel(ctx, levelID)
}

// Seed upserts the configured catalog
func (s *LevelService) Seed(ctx context.Context, levels []domain.Level) error {
	for _, l := range levels {
		if strings.TrimSpace(l.ID) == "" || l.LevelNumber <= 0 {
			return fmt.Errorf("%w: level %q needs an id and a positive level number", domain.ErrValidation, l.Name)
		}
		if err := s.store.UpsertLevel(ctx, l); err != nil {
			return fmt.Errorf("seeding level %s: %w", l.ID, err)
		}
	}
	s.logger.Info("level catalog seeded", "count", len(levels))
	return nil
}
