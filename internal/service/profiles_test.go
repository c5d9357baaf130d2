package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
)

func TestProfileIncrements(t *testing.T) {
	svc := NewProfileService(seedStore(t), nil)
	ctx := context.Background()

	if _, err := svc.IncrementDeaths(ctx, "u1", nil); err != nil {
		t.Fatalf("increment deaths: %v", err)
	}
	if _, err := svc.IncrementDeaths(ctx, "u1", int64p(2)); err != nil {
		t.Fatalf("increment deaths: %v", err)
	}
	if _, err := svc.AddScore(ctx, "u1", int64p(150)); err != nil {
		t.Fatalf("add score: %v", err)
	}
	if _, err := svc.AddCoins(ctx, "u1", int64p(12)); err != nil {
		t.Fatalf("add coins: %v", err)
	}
	if _, err := svc.AddPlayTime(ctx, "u1", int64p(60)); err != nil {
		t.Fatalf("add play time: %v", err)
	}
	p, err := svc.SetLives(ctx, "u1", int64p(1))
	if err != nil {
		t.Fatalf("set lives: %v", err)
	}

	if p.TotalDeaths != 3 || p.TotalScore != 150 || p.TotalCoinsCollected != 12 || p.TotalPlayTimeSeconds != 60 || p.CurrentLives != 1 {
		t.Errorf("unexpected profile %+v", p)
	}
}

func TestProfileRejectsNegativeOrMissingAmounts(t *testing.T) {
	svc := NewProfileService(seedStore(t), nil)
	ctx := context.Background()

	cases := map[string]func() error{
		"deaths":   func() error { _, err := svc.IncrementDeaths(ctx, "u1", int64p(-1)); return err },
		"lives":    func() error { _, err := svc.SetLives(ctx, "u1", nil); return err },
		"score":    func() error { _, err := svc.AddScore(ctx, "u1", int64p(-5)); return err },
		"coins":    func() error { _, err := svc.AddCoins(ctx, "u1", nil); return err },
		"playtime": func() error { _, err := svc.AddPlayTime(ctx, "u1", int64p(-1)); return err },
		"update": func() error {
			_, err := svc.Update(ctx, "u1", domain.ProfileUpdate{TotalScore: int64p(-1)})
			return err
		},
	}
	for name, call := range cases {
		if err := call(); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
	}

	p, _ := svc.Get(ctx, "u1")
	if p.TotalScore != 0 || p.TotalDeaths != 0 || p.CurrentLives != domain.DefaultLives {
		t.Errorf("profile changed by rejected calls: %+v", p)
	}
}

func TestProfileUnknownUser(t *testing.T) {
	svc := NewProfileService(seedStore(t), nil)
	if _, err := svc.AddScore(context.Background(), "ghost", int64p(1)); !errors.Is(err, domain.ErrProfileNotFound) {
		t.Errorf("expected profile not found, got %v", err)
	}
}

func TestProfileCountersDoNotWrap(t *testing.T) {
	svc := NewProfileService(seedStore(t), nil)
	ctx := context.Background()

	if _, err := svc.AddScore(ctx, "u1", int64p(math.MaxInt64)); err != nil {
		t.Fatalf("add score: %v", err)
	}
	_, err := svc.AddScore(ctx, "u1", int64p(1))
	if !errors.Is(err, domain.ErrCounterOverflow) || !domain.IsValidationError(err) {
		t.Fatalf("expected overflow validation error, got %v", err)
	}
	p, err := svc.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.TotalScore != math.MaxInt64 {
		t.Errorf("total score = %d, want unchanged MaxInt64", p.TotalScore)
	}
}
