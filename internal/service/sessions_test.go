package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ThanhSi1008/tilevania-sub000/internal/config"
	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
	"github.com/ThanhSi1008/tilevania-sub000/internal/store"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) NotifyUser(userID, eventType string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, userID+":"+eventType)
}

func seedStore(t *testing.T) *store.Memory {
	t.Helper()
	st := store.NewMemory()
	ctx := context.Background()
	now := time.Now()
	for _, id := range []string{"u1", "u2"} {
		user := domain.User{ID: id, Username: "name-" + id, Email: id + "@example.com", PasswordHash: "x"}
		if err := st.CreateUser(ctx, user, domain.NewProfile(id, now)); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	if err := st.UpsertLevel(ctx, domain.Level{ID: "level-1", LevelNumber: 1, Name: "Level 1", SceneRef: "Level 1"}); err != nil {
		t.Fatalf("seed level: %v", err)
	}
	return st
}

func newSessionService(st *store.Memory, n Notifier) *SessionService {
	return NewSessionService(st, &config.SessionConfig{DefaultHistoryLimit: 20, MaxHistoryLimit: 100}, nil, n, nil)
}

func int64p(v int64) *int64 { return &v }

func TestStartRequiresIDs(t *testing.T) {
	svc := newSessionService(seedStore(t), nil)
	ctx := context.Background()

	if _, err := svc.Start(ctx, "", "level-1"); !errors.Is(err, domain.ErrMissingUserID) {
		t.Errorf("expected missing user id, got %v", err)
	}
	if _, err := svc.Start(ctx, "u1", " "); !errors.Is(err, domain.ErrMissingLevelID) {
		t.Errorf("expected missing level id, got %v", err)
	}
	if _, err := svc.Start(ctx, "u1", "nope"); !errors.Is(err, domain.ErrLevelNotFound) {
		t.Errorf("expected level not found, got %v", err)
	}

	s, err := svc.Start(ctx, "u1", "level-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.Status != domain.SessionActive || s.ID == "" {
		t.Errorf("unexpected session %+v", s)
	}
}

func TestEndAccumulatesProfile(t *testing.T) {
	st := seedStore(t)
	notifier := &recordingNotifier{}
	svc := newSessionService(st, notifier)
	ctx := context.Background()

	for _, end := range []domain.SessionEnd{
		{Status: domain.SessionAbandoned, FinalScore: 250, CoinsCollected: 30, LivesRemaining: 2},
		{Status: domain.SessionFailed, FinalScore: 500, CoinsCollected: 45, DeathCount: 3},
	} {
		s, err := svc.Start(ctx, "u1", "level-1")
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		if _, err := svc.End(ctx, "u1", s.ID, end); err != nil {
			t.Fatalf("end: %v", err)
		}
	}

	p, err := st.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if p.TotalScore != 750 || p.TotalCoinsCollected != 75 {
		t.Errorf("totals = %d/%d, want 750/75", p.TotalScore, p.TotalCoinsCollected)
	}
	if p.HighestScoreAchieved != 500 || p.TotalDeaths != 3 || p.CurrentLives != 0 {
		t.Errorf("unexpected profile %+v", p)
	}
	if len(notifier.events) != 2 || notifier.events[0] != "u1:"+domain.EventSessionEnded {
		t.Errorf("unexpected notifications %v", notifier.events)
	}
	if _, err := st.GetLevelProgress(ctx, "u1", "level-1"); !errors.Is(err, domain.ErrProgressNotFound) {
		t.Errorf("non-completed sessions must not record progress, got %v", err)
	}
}

func TestEndComputesDuration(t *testing.T) {
	st := seedStore(t)
	svc := newSessionService(st, nil)
	ctx := context.Background()

	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return start }
	s, _ := svc.Start(ctx, "u1", "level-1")

	svc.now = func() time.Time { return start.Add(95*time.Second + 400*time.Millisecond) }
	ended, err := svc.End(ctx, "u1", s.ID, domain.SessionEnd{Status: domain.SessionCompleted, FinalScore: 10})
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended.Duration != 95 || ended.EndTime == nil {
		t.Errorf("duration = %d end=%v, want 95", ended.Duration, ended.EndTime)
	}

	p, _ := st.GetProfile(ctx, "u1")
	if p.TotalPlayTimeSeconds != 95 {
		t.Errorf("play time = %d, want 95", p.TotalPlayTimeSeconds)
	}
	prog, err := st.GetLevelProgress(ctx, "u1", "level-1")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if !prog.IsCompleted || prog.BestTime != 95 || prog.PlayCount != 1 {
		t.Errorf("unexpected progress %+v", prog)
	}
}

func TestTerminalSessionIsImmutable(t *testing.T) {
	st := seedStore(t)
	svc := newSessionService(st, nil)
	ctx := context.Background()

	s, _ := svc.Start(ctx, "u1", "level-1")
	end := domain.SessionEnd{Status: domain.SessionCompleted, FinalScore: 100, CoinsCollected: 5}
	if _, err := svc.End(ctx, "u1", s.ID, end); err != nil {
		t.Fatalf("first end: %v", err)
	}

	if _, err := svc.End(ctx, "u1", s.ID, end); !errors.Is(err, domain.ErrSessionTerminal) {
		t.Fatalf("second end: expected terminal, got %v", err)
	}
	if _, err := svc.Update(ctx, "u1", s.ID, domain.StatsUpdate{FinalScore: int64p(9999)}); !errors.Is(err, domain.ErrSessionTerminal) {
		t.Fatalf("late update: expected terminal, got %v", err)
	}

	p, _ := st.GetProfile(ctx, "u1")
	if p.TotalScore != 100 || p.TotalCoinsCollected != 5 {
		t.Errorf("profile folded twice: %+v", p)
	}
	prog, _ := st.GetLevelProgress(ctx, "u1", "level-1")
	if prog.PlayCount != 1 {
		t.Errorf("play count = %d, want 1", prog.PlayCount)
	}
	got, _ := st.GetSession(ctx, s.ID)
	if got.FinalScore != 100 {
		t.Errorf("terminal session modified: %+v", got)
	}
}

func TestFailedFoldKeepsSessionRetryable(t *testing.T) {
	st := seedStore(t)
	svc := newSessionService(st, nil)
	ctx := context.Background()
	s, _ := svc.Start(ctx, "u1", "level-1")

	full := int64(math.MaxInt64)
	if _, err := st.UpdateProfile(ctx, "u1", domain.ProfileUpdate{TotalScore: &full}); err != nil {
		t.Fatalf("update profile: %v", err)
	}
	end := domain.SessionEnd{Status: domain.SessionCompleted, FinalScore: 250, CoinsCollected: 30}
	if _, err := svc.End(ctx, "u1", s.ID, end); !errors.Is(err, domain.ErrCounterOverflow) {
		t.Fatalf("end with overflowing fold: expected ErrCounterOverflow, got %v", err)
	}
	got, _ := st.GetSession(ctx, s.ID)
	if got.Status != domain.SessionActive {
		t.Fatalf("status after failed fold = %s, want ACTIVE", got.Status)
	}

	zero := int64(0)
	if _, err := st.UpdateProfile(ctx, "u1", domain.ProfileUpdate{TotalScore: &zero}); err != nil {
		t.Fatalf("reset profile: %v", err)
	}
	ended, err := svc.End(ctx, "u1", s.ID, end)
	if err != nil {
		t.Fatalf("retried end: %v", err)
	}
	if ended.Status != domain.SessionCompleted {
		t.Errorf("status = %s, want COMPLETED", ended.Status)
	}
	p, _ := st.GetProfile(ctx, "u1")
	if p.TotalScore != 250 || p.TotalCoinsCollected != 30 {
		t.Errorf("profile after retry = %+v, want score 250 and coins 30", p)
	}
	prog, _ := st.GetLevelProgress(ctx, "u1", "level-1")
	if prog == nil || prog.PlayCount != 1 {
		t.Errorf("progress after retry = %+v, want one completion", prog)
	}
}

func TestConcurrentEndFoldsOnce(t *testing.T) {
	st := seedStore(t)
	svc := newSessionService(st, nil)
	ctx := context.Background()
	s, _ := svc.Start(ctx, "u1", "level-1")

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.End(ctx, "u1", s.ID, domain.SessionEnd{Status: domain.SessionCompleted, FinalScore: 40})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, domain.ErrSessionTerminal) {
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("wins = %d, want 1", wins)
	}
	p, _ := st.GetProfile(ctx, "u1")
	if p.TotalScore != 40 {
		t.Errorf("total score = %d, want 40", p.TotalScore)
	}
}

func TestUpdateAppliesOnlyProvidedFields(t *testing.T) {
	svc := newSessionService(seedStore(t), nil)
	ctx := context.Background()
	s, _ := svc.Start(ctx, "u1", "level-1")

	if _, err := svc.Update(ctx, "u1", s.ID, domain.StatsUpdate{FinalScore: int64p(120), CoinsCollected: int64p(7)}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := svc.Update(ctx, "u1", s.ID, domain.StatsUpdate{LivesRemaining: int64p(2)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.FinalScore != 120 || got.CoinsCollected != 7 || got.LivesRemaining != 2 || got.Status != domain.SessionActive {
		t.Errorf("unexpected session %+v", got)
	}

	if _, err := svc.Update(ctx, "u1", "missing", domain.StatsUpdate{}); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := svc.Update(ctx, "u1", s.ID, domain.StatsUpdate{FinalScore: int64p(-1)}); !errors.Is(err, domain.ErrNegativeAmount) {
		t.Errorf("expected negative amount, got %v", err)
	}
}

func TestSessionOwnership(t *testing.T) {
	svc := newSessionService(seedStore(t), nil)
	ctx := context.Background()
	s, _ := svc.Start(ctx, "u1", "level-1")

	if _, err := svc.Get(ctx, "u2", s.ID); !errors.Is(err, domain.ErrNotOwner) {
		t.Errorf("get: expected not owner, got %v", err)
	}
	if _, err := svc.End(ctx, "u2", s.ID, domain.SessionEnd{Status: domain.SessionAbandoned}); !errors.Is(err, domain.ErrNotOwner) {
		t.Errorf("end: expected not owner, got %v", err)
	}
	if _, err := svc.Update(ctx, "", s.ID, domain.StatsUpdate{FinalScore: int64p(1)}); !errors.Is(err, domain.ErrMissingUserID) {
		t.Errorf("anonymous update: expected missing user id, got %v", err)
	}
	got, _ := svc.Get(ctx, "u1", s.ID)
	if got.FinalScore != 0 {
		t.Errorf("anonymous update applied: %+v", got)
	}
}

func TestEndRejectsNonTerminalStatus(t *testing.T) {
	svc := newSessionService(seedStore(t), nil)
	ctx := context.Background()
	s, _ := svc.Start(ctx, "u1", "level-1")

	if _, err := svc.End(ctx, "u1", s.ID, domain.SessionEnd{Status: domain.SessionActive}); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Errorf("expected invalid status, got %v", err)
	}
}

func TestHistoryPaging(t *testing.T) {
	st := seedStore(t)
	svc := newSessionService(st, nil)
	svc.config.MaxHistoryLimit = 2
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		svc.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		s, _ := svc.Start(ctx, "u1", "level-1")
		ids = append(ids, s.ID)
	}

	page, err := svc.History(ctx, "u1", 50, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(page) != 2 || page[0].ID != ids[2] || page[1].ID != ids[1] {
		t.Errorf("unexpected first page %+v", page)
	}
	page, _ = svc.History(ctx, "u1", 0, 2)
	if len(page) != 1 || page[0].ID != ids[0] {
		t.Errorf("unexpected second page %+v", page)
	}
	if _, err := svc.History(ctx, "u1", 1, -1); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("expected invalid request, got %v", err)
	}
}
