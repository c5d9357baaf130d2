package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
	"github.com/ThanhSi1008/tilevania-sub000/internal/store"
)

// ProfileService reads and adjusts lifetime profiles
type ProfileService struct {
	store  store.ProfileStore
	logger *slog.Logger
}

// NewProfileService creates a new profile service
func NewProfileService(st store.ProfileStore, logger *slog.Logger) *ProfileService {
	return &ProfileService{store: st, logger: orDiscard(logger)}
}

// Get returns the user's profile
func (s *ProfileService) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	if userID == "" {
		return nil, domain.ErrMissingUserID
	}
	return s.store.GetProfile(ctx, userID)
}

// Update sets the provided fields
func (s *ProfileService) Update(ctx context.Context, userID string, update domain.ProfileUpdate) (*domain.Profile, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}
	p, err := s.store.UpdateProfile(ctx, userID, update)
	if err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	return p, nil
}

// IncrementDeaths adds amount deaths, one when amount is nil
func (s *ProfileService) IncrementDeaths(ctx context.Context, userID string, amount *int64) (*domain.Profile, error) {
	n := int64(1)
	if amount != nil {
		n = *amount
	}
	if n < 0 {
		return nil, domain.ErrNegativeAmount
	}
	return s.apply(ctx, userID, domain.ProfileDelta{Deaths: n})
}

// SetLives replaces the current lives
func (s *ProfileService) SetLives(ctx context.Context, userID string, amount *int64) (*domain.Profile, error) {
	n, err := requireAmount(amount)
	if err != nil {
		return nil, err
	}
	return s.Update(ctx, userID, domain.ProfileUpdate{CurrentLives: &n})
}

// AddScore adds to the lifetime score
func (s *ProfileService) AddScore(ctx context.Context, userID string, amount *int64) (*domain.Profile, error) {
	n, err := requireAmount(amount)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, userID, domain.ProfileDelta{Score: n})
}

// AddCoins adds to the lifetime coin count
func (s *ProfileService) AddCoins(ctx context.Context, userID string, amount *int64) (*domain.Profile, error) {
	n, err := requireAmount(amount)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, userID, domain.ProfileDelta{Coins: n})
}

// AddPlayTime adds seconds to the lifetime play time
func (s *ProfileService) AddPlayTime(ctx context.Context, userID string, amount *int64) (*domain.Profile, error) {
	n, err := requireAmount(amount)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, userID, domain.ProfileDelta{PlayTime: n})
}

func (s *ProfileService) apply(ctx context.Context, userID string, delta domain.ProfileDelta) (*domain.Profile, error) {
	if userID == "" {
		return nil, domain.ErrMissingUserID
	}
	p, err := s.store.ApplyProfileDelta(ctx, userID, delta)
	if err != nil {
		return nil, fmt.Errorf("adjusting profile: %w", err)
	}
	return p, nil
}

func requireAmount(amount *int64) (int64, error) {
	if amount == nil || *amount < 0 {
		return 0, domain.ErrNegativeAmount
	}
	return *amount, nil
}
