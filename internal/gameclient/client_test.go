package gameclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
)

func writeEnvelope(w http.ResponseWriter, status int, data any, errMsg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": status < 300,
		"data":    data,
		"error":   errMsg,
	})
}

func TestRegisterStoresTokenForLaterCalls(t *testing.T) {
	var gotAuth atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/register", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusCreated, Identity{User: domain.User{ID: "u1", Username: "user1"}, Token: "tok"}, "")
	})
	mux.HandleFunc("POST /api/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		var req domain.StartSessionRequest
		json.NewDecoder(r.Body).Decode(&req)
		writeEnvelope(w, http.StatusCreated, domain.Session{ID: "s1", LevelID: req.LevelID, Status: domain.SessionActive}, "")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL)
	ctx := context.Background()
	if _, err := c.Register(ctx, "user1", "user1@example.com", "password123"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if c.UserID() != "u1" {
		t.Errorf("user id = %q", c.UserID())
	}

	s, err := c.StartSession(ctx, "level-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.ID != "s1" || s.LevelID != "level-1" {
		t.Errorf("session = %+v", s)
	}
	if gotAuth.Load() != "Bearer tok" {
		t.Errorf("authorization header = %v", gotAuth.Load())
	}
}

func TestAPIErrorUnwrapsToKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusConflict, nil, "conflict: session already ended")
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.EndSession(context.Background(), "s1", domain.SessionEnd{Status: domain.SessionCompleted})

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict {
		t.Fatalf("expected api error 409, got %v", err)
	}
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected conflict kind, got %v", err)
	}
	if apiErr.Message != "conflict: session already ended" {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestReadsRetryServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeEnvelope(w, http.StatusServiceUnavailable, nil, "busy")
			return
		}
		writeEnvelope(w, http.StatusOK, []domain.Level{{ID: "level-1", LevelNumber: 1}}, "")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRetry(2), WithTimeout(2*time.Second))
	levels, err := c.ListLevels(context.Background())
	if err != nil {
		t.Fatalf("list levels: %v", err)
	}
	if len(levels) != 1 || calls.Load() != 2 {
		t.Errorf("levels %d after %d calls", len(levels), calls.Load())
	}
}

func TestWritesAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeEnvelope(w, http.StatusServiceUnavailable, nil, "busy")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRetry(3))
	if err := c.PushStats(context.Background(), domain.StatsMessage{SessionID: "s1"}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestUserScopedCallsNeedIdentity(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")
	if _, err := c.EvaluateAchievements(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("expected not authenticated, got %v", err)
	}
}

func TestAdminKeyOnlySentToAdminRoutes(t *testing.T) {
	var recomputeKey, readKey atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/admin/leaderboard/recompute", func(w http.ResponseWriter, r *http.Request) {
		recomputeKey.Store(r.Header.Get("X-Admin-Key"))
		writeEnvelope(w, http.StatusOK, map[string]any{}, "")
	})
	mux.HandleFunc("GET /api/v1/leaderboard", func(w http.ResponseWriter, r *http.Request) {
		readKey.Store(r.Header.Get("X-Admin-Key"))
		writeEnvelope(w, http.StatusOK, []domain.LeaderboardEntry{}, "")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL, WithAdminKey("ops"))
	ctx := context.Background()
	if err := c.RecomputeLeaderboard(ctx); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if _, err := c.Leaderboard(ctx, domain.PeriodAllTime, 10); err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if recomputeKey.Load() != "ops" {
		t.Errorf("recompute admin key = %v, want ops", recomputeKey.Load())
	}
	if readKey.Load() != "" {
		t.Errorf("leaderboard read carried admin key %v", readKey.Load())
	}
}
