package store

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
)

func seedMemory(t *testing.T) *Memory {
	t.Helper()
	ctx := context.Background()
	m := NewMemory()
	now := time.Now()
	if err := m.CreateUser(ctx, domain.User{ID: "u1", Username: "user1", Email: "user1@example.com"}, domain.NewProfile("u1", now)); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if err := m.UpsertLevel(ctx, domain.Level{ID: "lvl-1", LevelNumber: 1, Name: "Caves", SceneRef: "Level 1"}); err != nil {
		t.Fatalf("UpsertLevel() error = %v", err)
	}
	if err := m.UpsertAchievement(ctx, domain.Achievement{ID: "a1", Name: "First", Condition: "TOTAL_SCORE", Threshold: 1, Points: 10}); err != nil {
		t.Fatalf("UpsertAchievement() error = %v", err)
	}
	return m
}

func TestCreateUserRejectsDuplicates(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()

	err := m.CreateUser(ctx, domain.User{ID: "u2", Username: "user1", Email: "other@example.com"}, domain.NewProfile("u2", time.Now()))
	if !errors.Is(err, domain.ErrUserExists) {
		t.Errorf("duplicate username error = %v, expected ErrUserExists", err)
	}
	err = m.CreateUser(ctx, domain.User{ID: "u3", Username: "user3", Email: "user1@example.com"}, domain.NewProfile("u3", time.Now()))
	if !errors.Is(err, domain.ErrUserExists) {
		t.Errorf("duplicate email error = %v, expected ErrUserExists", err)
	}
	if _, err := m.GetProfile(ctx, "u2"); !errors.Is(err, domain.ErrProfileNotFound) {
		t.Errorf("profile for rejected user should not exist, got %v", err)
	}
}

func TestEndAndFoldTransitionsOnce(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()
	start := time.Now().Add(-90 * time.Second)
	if err := m.CreateSession(ctx, domain.Session{ID: "s1", UserID: "u1", LevelID: "lvl-1", StartTime: start, Status: domain.SessionActive}); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.EndAndFold(ctx, "s1", domain.SessionEnd{Status: domain.SessionCompleted, FinalScore: 10}, time.Now())
			if err == nil {
				atomic.AddInt32(&wins, 1)
			} else if !errors.Is(err, domain.ErrSessionTerminal) {
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("EndAndFold succeeded %d times, expected exactly 1", wins)
	}
	s, _ := m.GetSession(ctx, "s1")
	if s.Duration < 90 {
		t.Errorf("Duration = %d, expected at least 90", s.Duration)
	}
	if _, err := m.UpdateActiveSession(ctx, "s1", domain.StatsUpdate{}); !errors.Is(err, domain.ErrSessionTerminal) {
		t.Errorf("update after end error = %v, expected ErrSessionTerminal", err)
	}
	p, _ := m.GetProfile(ctx, "u1")
	if p.TotalScore != 10 {
		t.Errorf("TotalScore = %d, expected the single fold of 10", p.TotalScore)
	}
	lp, err := m.GetLevelProgress(ctx, "u1", "lvl-1")
	if err != nil || lp.PlayCount != 1 {
		t.Errorf("GetLevelProgress() = %+v, %v, expected one completion", lp, err)
	}
}

func TestEndAndFoldFailureLeavesSessionActive(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()
	if err := m.CreateSession(ctx, domain.Session{ID: "s1", UserID: "u1", LevelID: "lvl-1", StartTime: time.Now(), Status: domain.SessionActive}); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	full := int64(math.MaxInt64)
	if _, err := m.UpdateProfile(ctx, "u1", domain.ProfileUpdate{TotalScore: &full}); err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}

	end := domain.SessionEnd{Status: domain.SessionCompleted, FinalScore: 5, CoinsCollected: 2}
	if _, err := m.EndAndFold(ctx, "s1", end, time.Now()); !errors.Is(err, domain.ErrCounterOverflow) {
		t.Fatalf("EndAndFold() error = %v, expected ErrCounterOverflow", err)
	}
	s, _ := m.GetSession(ctx, "s1")
	if s.Status != domain.SessionActive || s.EndTime != nil {
		t.Errorf("session after failed fold = %+v, expected untouched ACTIVE", s)
	}
	p, _ := m.GetProfile(ctx, "u1")
	if p.TotalCoinsCollected != 0 {
		t.Errorf("TotalCoinsCollected = %d, expected no partial fold", p.TotalCoinsCollected)
	}
	if _, err := m.GetLevelProgress(ctx, "u1", "lvl-1"); !errors.Is(err, domain.ErrProgressNotFound) {
		t.Errorf("GetLevelProgress() error = %v, expected no progress written", err)
	}

	zero := int64(0)
	if _, err := m.UpdateProfile(ctx, "u1", domain.ProfileUpdate{TotalScore: &zero}); err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if _, err := m.EndAndFold(ctx, "s1", end, time.Now()); err != nil {
		t.Fatalf("retried EndAndFold() error = %v", err)
	}
	p, _ = m.GetProfile(ctx, "u1")
	if p.TotalScore != 5 || p.TotalCoinsCollected != 2 {
		t.Errorf("profile after retry = %+v, expected score 5 and coins 2", p)
	}
}

func TestApplyProfileDeltaRejectsOverflow(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()

	if _, err := m.ApplyProfileDelta(ctx, "u1", domain.ProfileDelta{Score: math.MaxInt64}); err != nil {
		t.Fatalf("ApplyProfileDelta() error = %v", err)
	}
	_, err := m.ApplyProfileDelta(ctx, "u1", domain.ProfileDelta{Score: 1, Coins: 4})
	if !errors.Is(err, domain.ErrCounterOverflow) || !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("ApplyProfileDelta() error = %v, expected ErrCounterOverflow", err)
	}
	p, _ := m.GetProfile(ctx, "u1")
	if p.TotalScore != math.MaxInt64 || p.TotalCoinsCollected != 0 {
		t.Errorf("profile = %+v, expected the rejected delta to change nothing", p)
	}
}

func TestUnlockAchievementUnique(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()

	var inserted int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.UnlockAchievement(ctx, domain.PlayerAchievement{UserID: "u1", AchievementID: "a1", UnlockedAt: time.Now()}, 10)
			if err != nil {
				t.Errorf("UnlockAchievement() error = %v", err)
			}
			if ok {
				atomic.AddInt32(&inserted, 1)
			}
		}()
	}
	wg.Wait()

	if inserted != 1 {
		t.Fatalf("inserted %d rows, expected 1", inserted)
	}
	list, _ := m.ListPlayerAchievements(ctx, "u1")
	if len(list) != 1 || list[0].Achievement == nil || list[0].Achievement.Name != "First" {
		t.Errorf("ListPlayerAchievements() = %+v", list)
	}
	p, _ := m.GetProfile(ctx, "u1")
	if p.TotalScore != 10 {
		t.Errorf("TotalScore = %d, expected points credited once", p.TotalScore)
	}
}

func TestUnlockAchievementCreditFailureRecordsNothing(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()
	full := int64(math.MaxInt64)
	if _, err := m.UpdateProfile(ctx, "u1", domain.ProfileUpdate{TotalScore: &full}); err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}

	ok, err := m.UnlockAchievement(ctx, domain.PlayerAchievement{UserID: "u1", AchievementID: "a1", UnlockedAt: time.Now()}, 10)
	if ok || !errors.Is(err, domain.ErrCounterOverflow) {
		t.Fatalf("UnlockAchievement() = %v, %v, expected ErrCounterOverflow", ok, err)
	}
	if list, _ := m.ListPlayerAchievements(ctx, "u1"); len(list) != 0 {
		t.Errorf("ListPlayerAchievements() = %+v, expected no unlock recorded", list)
	}
}

func TestListSessionsPaging(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()
	base := time.Now()
	for i, id := range []string{"s1", "s2", "s3"} {
		s := domain.Session{ID: id, UserID: "u1", LevelID: "lvl-1", StartTime: base.Add(time.Duration(i) * time.Minute), Status: domain.SessionActive}
		if err := m.CreateSession(ctx, s); err != nil {
			t.Fatalf("CreateSession() error = %v", err)
		}
	}

	page, err := m.ListSessions(ctx, "u1", domain.Page{Limit: 2})
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(page) != 2 || page[0].ID != "s3" || page[1].ID != "s2" {
		t.Errorf("first page = %v, expected s3,s2", ids(page))
	}
	page, _ = m.ListSessions(ctx, "u1", domain.Page{Limit: 2, Offset: 2})
	if len(page) != 1 || page[0].ID != "s1" {
		t.Errorf("second page = %v, expected s1", ids(page))
	}
}

func TestUpsertLevelRejectsDuplicateNumber(t *testing.T) {
	m := seedMemory(t)
	err := m.UpsertLevel(context.Background(), domain.Level{ID: "lvl-x", LevelNumber: 1, Name: "Clash"})
	if !errors.Is(err, domain.ErrLevelExists) {
		t.Errorf("error = %v, expected ErrLevelExists", err)
	}
}

func ids(sessions []domain.Session) []string {
	out := make([]string, len(sessions))
	for i, s := range sessions {
		out[i] = s.ID
	}
	return out
}
