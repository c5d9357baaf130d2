// Package achievement evaluates unlock conditions against lifetime profiles.
//
// The (user, achievement) uniqueness of the store is the only guard against
// concurrent unlocks: an insert that finds the pair present is treated as
// already unlocked, and points are only added by the insert that created it.
package achievement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
	"github.com/ThanhSi1008/tilevania-sub000/internal/metrics"
	"github.com/ThanhSi1008/tilevania-sub000/internal/store"
)

// Store is the persistence the engine needs
type Store interface {
	store.AchievementStore
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
}

// Notifier pushes an event to a user's live connections
type Notifier interface {
	NotifyUser(userID, eventType string, payload any)
}

// Engine evaluates and records achievement unlocks
type Engine struct {
	store    Store
	registry *Registry
	metrics  *metrics.Metrics
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine creates a new evaluation engine
func NewEngine(st Store, registry *Registry, m *metrics.Metrics, notifier Notifier, logger *slog.Logger) *Engine {
	return &Engine{
		store:    st,
		registry: registry,
		metrics:  m,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Catalog returns every achievement definition
func (e *Engine) Catalog(ctx context.Context) ([]domain.Achievement, error) {
	defs, err := e.store.ListAchievements(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing achievements: %w", err)
	}
	if defs == nil {
		defs = []domain.Achievement{}
	}
	return defs, nil
}

// Unlocked returns the user's unlocks with definitions embedded
func (e *Engine) Unlocked(ctx context.Context, userID string) ([]domain.PlayerAchievement, error) {
	if userID == "" {
		return nil, domain.ErrMissingUserID
	}
	unlocks, err := e.store.ListPlayerAchievements(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing player achievements: %w", err)
	}
	if unlocks == nil {
		unlocks = []domain.PlayerAchievement{}
	}
	return unlocks, nil
}

// Seed validates and upserts the configured catalog
func (e *Engine) Seed(ctx context.Context, defs []domain.Achievement) error {
	for _, a := range defs {
		if a.ID == "" {
			return fmt.Errorf("%w: achievement %q needs an id", domain.ErrValidation, a.Name)
		}
		if _, ok := e.registry.Get(a.Condition); !ok {
			return fmt.Errorf("achievement %s: %w", a.ID, domain.ErrUnknownCondition)
		}
		if a.Rarity == "" {
			a.Rarity = domain.RarityCommon
		}
		if err := e.store.UpsertAchievement(ctx, a); err != nil {
			return fmt.Errorf("seeding achievement %s: %w", a.ID, err)
		}
	}
	e.logger.Info("achievement catalog seeded", "count", len(defs))
	return nil
}

// Evaluate checks every achievement the user has not unlocked against the
// current profile and unlocks those whose condition holds. It returns only
// the unlocks created by this call. A failing definition is logged and
// skipped so the rest of the catalog is still evaluated.
func (e *Engine) Evaluate(ctx context.Context, userID string) ([]domain.PlayerAchievement, error) {
	if userID == "" {
		return nil, domain.ErrMissingUserID
	}

	profile, err := e.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	existing, err := e.store.ListPlayerAchievements(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing player achievements: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, pa := range existing {
		have[pa.AchievementID] = true
	}
	defs, err := e.store.ListAchievements(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing achievements: %w", err)
	}

	unlocked := []domain.PlayerAchievement{}
	for _, a := range defs {
		if have[a.ID] {
			continue
		}
		met, value, err := e.registry.Met(a, *profile)
		if err != nil {
			e.logger.Warn("skipping achievement", "achievement_id", a.ID, "error", err)
			continue
		}
		if !met {
			continue
		}

		pa, created, err := e.record(ctx, userID, a, value)
		if err != nil {
			e.logger.Error("failed to unlock achievement", "user_id", userID, "achievement_id", a.ID, "error", err)
		}
		if created {
			unlocked = append(unlocked, pa)
		}
	}

	if len(unlocked) > 0 {
		e.logger.Info("achievements unlocked", "user_id", userID, "count", len(unlocked))
	}
	return unlocked, nil
}

// Unlock unlocks one achievement regardless of its condition. Repeating it
// reports AlreadyUnlocked instead of failing.
func (e *Engine) Unlock(ctx context.Context, userID, achievementID string) (*domain.UnlockResult, error) {
	if userID == "" {
		return nil, domain.ErrMissingUserID
	}
	a, err := e.store.GetAchievement(ctx, achievementID)
	if err != nil {
		return nil, err
	}
	profile, err := e.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	var progress int64
	if _, v, err := e.registry.Met(*a, *profile); err == nil {
		progress = v
	}

	pa, created, err := e.record(ctx, userID, *a, progress)
	if err != nil {
		return nil, err
	}
	if created {
		return &domain.UnlockResult{PlayerAchievement: pa}, nil
	}

	unlocks, err := e.store.ListPlayerAchievements(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing player achievements: %w", err)
	}
	for _, u := range unlocks {
		if u.AchievementID == achievementID {
			return &domain.UnlockResult{PlayerAchievement: u, AlreadyUnlocked: true}, nil
		}
	}
	return &domain.UnlockResult{PlayerAchievement: pa, AlreadyUnlocked: true}, nil
}

// record stores the unlock with its points credited and, only when this
// call created it, announces it
func (e *Engine) record(ctx context.Context, userID string, a domain.Achievement, progress int64) (domain.PlayerAchievement, bool, error) {
	def := a
	pa := domain.PlayerAchievement{
		UserID:        userID,
		AchievementID: a.ID,
		UnlockedAt:    e.now().UTC(),
		Progress:      progress,
	}

	created, err := e.store.UnlockAchievement(ctx, pa, a.Points)
	if err != nil {
		return pa, false, fmt.Errorf("recording unlock: %w", err)
	}
	pa.Achievement = &def
	if !created {
		return pa, false, nil
	}

	e.metrics.AchievementUnlocked(string(a.Rarity))
	if e.notifier != nil {
		e.notifier.NotifyUser(userID, domain.EventAchievementUnlocked, pa)
	}
	return pa, true, nil
}
