package service

import (
	"context"
	"errors"
	"testing"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
)

func TestCompleteIsMonotonic(t *testing.T) {
	svc := NewProgressService(seedStore(t), nil)
	ctx := context.Background()

	completions := []domain.Completion{
		{Score: 300, Coins: 10, Enemies: 4, Deaths: 1, Duration: 120},
		{Score: 900, Coins: 6, Enemies: 9, Deaths: 0, Duration: 80},
		{Score: 450, Coins: 12, Enemies: 2, Deaths: 2, Duration: 200},
	}
	var p *domain.LevelProgress
	for _, c := range completions {
		var err error
		p, err = svc.Complete(ctx, "u1", "level-1", c)
		if err != nil {
			t.Fatalf("complete: %v", err)
		}
	}

	if p.BestScore != 900 || p.CoinsCollected != 12 || p.EnemiesDefeated != 9 {
		t.Errorf("maxima not kept: %+v", p)
	}
	if p.PlayCount != 3 || p.DeathCount != 3 || !p.IsCompleted {
		t.Errorf("unexpected counters: %+v", p)
	}
	// bestTime follows the latest completion, not the fastest
	if p.BestTime != 200 {
		t.Errorf("best time = %d, want 200", p.BestTime)
	}
}

func TestCompleteValidation(t *testing.T) {
	svc := NewProgressService(seedStore(t), nil)
	ctx := context.Background()

	if _, err := svc.Complete(ctx, "u1", "", domain.Completion{}); !errors.Is(err, domain.ErrMissingLevelID) {
		t.Errorf("expected missing level id, got %v", err)
	}
	if _, err := svc.Complete(ctx, "u1", "level-1", domain.Completion{Score: -1}); !errors.Is(err, domain.ErrNegativeAmount) {
		t.Errorf("expected negative amount, got %v", err)
	}
	if _, err := svc.Complete(ctx, "u1", "level-9", domain.Completion{}); !errors.Is(err, domain.ErrLevelNotFound) {
		t.Errorf("expected level not found, got %v", err)
	}
}

func TestProgressListEmpty(t *testing.T) {
	svc := NewProgressService(seedStore(t), nil)
	list, err := svc.List(context.Background(), "u2")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Errorf("expected empty non-nil list, got %#v", list)
	}
}
