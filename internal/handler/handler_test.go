package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ThanhSi1008/tilevania-sub000/internal/achievement"
	"github.com/ThanhSi1008/tilevania-sub000/internal/auth"
	"github.com/ThanhSi1008/tilevania-sub000/internal/config"
	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
	"github.com/ThanhSi1008/tilevania-sub000/internal/ranking"
	"github.com/ThanhSi1008/tilevania-sub000/internal/service"
	"github.com/ThanhSi1008/tilevania-sub000/internal/store"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

const testAdminKey = "operator-key"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.DefaultConfig()
	st := store.NewMemory()
	tokens := auth.NewTokenIssuer(&cfg.Auth)

	levels := service.NewLevelService(st, logger)
	if err := levels.Seed(context.Background(), []domain.Level{
		{ID: "level-1", LevelNumber: 1, Name: "Level 1", SceneRef: "Level 1"},
	}); err != nil {
		t.Fatalf("seed levels: %v", err)
	}
	achievements := achievement.NewEngine(st, achievement.DefaultRegistry(), nil, nil, logger)
	if err := achievements.Seed(context.Background(), []domain.Achievement{
		{ID: "first-steps", Name: "First Steps", Condition: achievement.ConditionTotalScore, Threshold: 100, Points: 10},
	}); err != nil {
		t.Fatalf("seed achievements: %v", err)
	}

	h := NewHandler(Deps{
		Users:        service.NewUserService(st, auth.NewHasher(4), tokens, logger),
		Sessions:     service.NewSessionService(st, &cfg.Session, nil, nil, logger),
		Profiles:     service.NewProfileService(st, logger),
		Progress:     service.NewProgressService(st, logger),
		Levels:       levels,
		Leaderboard:  service.NewLeaderboardService(nil, st, &cfg.Leaderboard, nil, logger),
		Achievements: achievements,
		Ranking:      ranking.NewEngine(st, nil, nil, nil, time.Second, logger),
		Tokens:       tokens,
		AdminKey:     testAdminKey,
		Store:        st,
	}, logger)

	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, token string, body any) (int, envelope) {
	t.Helper()
	return callWithHeader(t, srv, method, path, token, nil, body)
}

func callWithHeader(t *testing.T, srv *httptest.Server, method, path, token string, header http.Header, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return resp.StatusCode, env
}

func register(t *testing.T, srv *httptest.Server, username string) (string, string) {
	t.Helper()
	status, env := call(t, srv, http.MethodPost, "/api/v1/auth/register", "", domain.RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "password123",
	})
	if status != http.StatusCreated {
		t.Fatalf("register %s: status %d (%s)", username, status, env.Error)
	}
	var result service.AuthResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode auth result: %v", err)
	}
	return result.User.ID, result.Token
}

func TestRegisterAndLogin(t *testing.T) {
	srv := newTestServer(t)
	userID, token := register(t, srv, "user1")
	if userID == "" || token == "" {
		t.Fatal("register returned no identity")
	}

	status, env := call(t, srv, http.MethodGet, "/api/v1/users/"+userID+"/profile", token, nil)
	if status != http.StatusOK {
		t.Fatalf("get profile: status %d", status)
	}
	var profile domain.Profile
	json.Unmarshal(env.Data, &profile)
	if profile.TotalScore != 0 || profile.TotalCoinsCollected != 0 {
		t.Errorf("fresh profile = %+v", profile)
	}

	status, _ = call(t, srv, http.MethodPost, "/api/v1/auth/register", "", domain.RegisterRequest{
		Username: "user1", Email: "other@example.com", Password: "password123",
	})
	if status != http.StatusConflict {
		t.Errorf("duplicate register: status %d, want 409", status)
	}

	status, _ = call(t, srv, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "user1", Password: "password123"})
	if status != http.StatusOK {
		t.Errorf("login: status %d", status)
	}
	status, _ = call(t, srv, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "user1", Password: "wrong-pass"})
	if status != http.StatusUnauthorized {
		t.Errorf("bad login: status %d, want 401", status)
	}
	status, _ = call(t, srv, http.MethodPost, "/api/v1/auth/register", "", domain.RegisterRequest{
		Username: "ab", Email: "ab@example.com", Password: "password123",
	})
	if status != http.StatusBadRequest {
		t.Errorf("short username: status %d, want 400", status)
	}
}

func TestOwnershipEnforced(t *testing.T) {
	srv := newTestServer(t)
	_, tokenA := register(t, srv, "alice")
	userB, _ := register(t, srv, "bobby")

	if status, _ := call(t, srv, http.MethodGet, "/api/v1/users/"+userB+"/profile", tokenA, nil); status != http.StatusForbidden {
		t.Errorf("foreign profile: status %d, want 403", status)
	}
	if status, _ := call(t, srv, http.MethodGet, "/api/v1/users/"+userB+"/profile", "", nil); status != http.StatusUnauthorized {
		t.Errorf("anonymous profile: status %d, want 401", status)
	}
	if status, _ := call(t, srv, http.MethodGet, "/api/v1/users/"+userB+"/profile", "not-a-token", nil); status != http.StatusUnauthorized {
		t.Errorf("garbage token: status %d, want 401", status)
	}
	if status, _ := call(t, srv, http.MethodPost, "/api/v1/sessions", tokenA, map[string]string{
		"user_id": userB, "level_id": "level-1",
	}); status != http.StatusForbidden {
		t.Errorf("start for another user: status %d, want 403", status)
	}
}

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t)
	userID, token := register(t, srv, "runner")

	if status, _ := call(t, srv, http.MethodPost, "/api/v1/sessions", token, map[string]string{}); status != http.StatusBadRequest {
		t.Errorf("start without level: status %d, want 400", status)
	}

	status, env := call(t, srv, http.MethodPost, "/api/v1/sessions", token, map[string]string{"level_id": "level-1"})
	if status != http.StatusCreated {
		t.Fatalf("start: status %d (%s)", status, env.Error)
	}
	var session domain.Session
	json.Unmarshal(env.Data, &session)
	if session.ID == "" || session.Status != domain.SessionActive {
		t.Fatalf("started session = %+v", session)
	}
	path := "/api/v1/sessions/" + session.ID

	if status, _ := call(t, srv, http.MethodPatch, path, token, map[string]int64{"final_score": 120}); status != http.StatusOK {
		t.Errorf("update: status %d", status)
	}

	end := domain.SessionEnd{Status: domain.SessionCompleted, FinalScore: 250, CoinsCollected: 30, LivesRemaining: 2}
	status, env = call(t, srv, http.MethodPost, path+"/end", token, end)
	if status != http.StatusOK {
		t.Fatalf("end: status %d (%s)", status, env.Error)
	}

	if status, _ := call(t, srv, http.MethodPost, path+"/end", token, end); status != http.StatusConflict {
		t.Errorf("second end: status %d, want 409", status)
	}
	if status, _ := call(t, srv, http.MethodPatch, path, token, map[string]int64{"final_score": 999}); status != http.StatusConflict {
		t.Errorf("update after end: status %d, want 409", status)
	}

	_, env = call(t, srv, http.MethodGet, "/api/v1/users/"+userID+"/profile", token, nil)
	var profile domain.Profile
	json.Unmarshal(env.Data, &profile)
	if profile.TotalScore != 250 || profile.TotalCoinsCollected != 30 {
		t.Errorf("profile after end = %+v", profile)
	}

	_, env = call(t, srv, http.MethodGet, "/api/v1/users/"+userID+"/progress/level-1", token, nil)
	var progress domain.LevelProgress
	json.Unmarshal(env.Data, &progress)
	if !progress.IsCompleted || progress.PlayCount != 1 || progress.BestScore != 250 {
		t.Errorf("progress after end = %+v", progress)
	}

	status, env = call(t, srv, http.MethodGet, "/api/v1/users/"+userID+"/sessions?limit=5", token, nil)
	var history []domain.Session
	json.Unmarshal(env.Data, &history)
	if status != http.StatusOK || len(history) != 1 {
		t.Errorf("history: status %d, %d sessions", status, len(history))
	}

	if status, _ := call(t, srv, http.MethodGet, "/api/v1/sessions/missing", token, nil); status != http.StatusNotFound {
		t.Errorf("unknown session: status %d, want 404", status)
	}
}

func TestProfileAmountValidation(t *testing.T) {
	srv := newTestServer(t)
	userID, token := register(t, srv, "counter")
	base := "/api/v1/users/" + userID + "/profile"

	if status, _ := call(t, srv, http.MethodPost, base+"/score", token, map[string]int64{"amount": -5}); status != http.StatusBadRequest {
		t.Errorf("negative amount: status %d, want 400", status)
	}
	if status, _ := call(t, srv, http.MethodPost, base+"/coins", token, `{"amount":"ten"}`); status != http.StatusBadRequest {
		t.Errorf("non-numeric amount: status %d, want 400", status)
	}
	if status, _ := call(t, srv, http.MethodPost, base+"/playtime", token, `{}`); status != http.StatusBadRequest {
		t.Errorf("missing amount: status %d, want 400", status)
	}

	if status, _ := call(t, srv, http.MethodPost, base+"/score", token, map[string]int64{"amount": math.MaxInt64}); status != http.StatusOK {
		t.Fatalf("max score: status %d, want 200", status)
	}
	if status, env := call(t, srv, http.MethodPost, base+"/score", token, map[string]int64{"amount": 1}); status != http.StatusBadRequest {
		t.Errorf("overflowing score: status %d (%s), want 400", status, env.Error)
	}

	status, env := call(t, srv, http.MethodPost, base+"/deaths", token, nil)
	var profile domain.Profile
	json.Unmarshal(env.Data, &profile)
	if status != http.StatusOK || profile.TotalDeaths != 1 {
		t.Errorf("increment deaths: status %d, deaths %d", status, profile.TotalDeaths)
	}

	status, env = call(t, srv, http.MethodPut, base+"/lives", token, map[string]int64{"amount": 3})
	json.Unmarshal(env.Data, &profile)
	if status != http.StatusOK || profile.CurrentLives != 3 {
		t.Errorf("set lives: status %d, lives %d", status, profile.CurrentLives)
	}
}

func TestUnlockAchievementIsIdempotent(t *testing.T) {
	srv := newTestServer(t)
	userID, token := register(t, srv, "hunter")
	path := "/api/v1/users/" + userID + "/achievements/first-steps/unlock"

	status, env := call(t, srv, http.MethodPost, path, token, nil)
	if status != http.StatusCreated {
		t.Fatalf("first unlock: status %d (%s)", status, env.Error)
	}
	status, env = call(t, srv, http.MethodPost, path, token, nil)
	var result domain.UnlockResult
	json.Unmarshal(env.Data, &result)
	if status != http.StatusOK || !result.AlreadyUnlocked {
		t.Errorf("repeat unlock: status %d, result %+v", status, result)
	}

	_, env = call(t, srv, http.MethodGet, "/api/v1/users/"+userID+"/achievements", token, nil)
	var unlocked []domain.PlayerAchievement
	json.Unmarshal(env.Data, &unlocked)
	if len(unlocked) != 1 || unlocked[0].Achievement == nil {
		t.Errorf("unlocked = %+v", unlocked)
	}

	_, env = call(t, srv, http.MethodGet, "/api/v1/users/"+userID+"/profile", token, nil)
	var profile domain.Profile
	json.Unmarshal(env.Data, &profile)
	if profile.TotalScore != 10 {
		t.Errorf("points credited %d, want 10", profile.TotalScore)
	}

	if status, _ := call(t, srv, http.MethodPost, "/api/v1/users/"+userID+"/achievements/nope/unlock", token, nil); status != http.StatusNotFound {
		t.Errorf("unknown achievement: status %d, want 404", status)
	}
}

func TestLeaderboardRecompute(t *testing.T) {
	srv := newTestServer(t)
	lowID, lowToken := register(t, srv, "low")
	highID, highToken := register(t, srv, "high")
	call(t, srv, http.MethodPost, "/api/v1/users/"+lowID+"/profile/score", lowToken, map[string]int64{"amount": 900})
	call(t, srv, http.MethodPost, "/api/v1/users/"+highID+"/profile/score", highToken, map[string]int64{"amount": 5200})

	recompute := "/api/v1/admin/leaderboard/recompute"
	if status, _ := call(t, srv, http.MethodPost, recompute, "", nil); status != http.StatusForbidden {
		t.Errorf("anonymous recompute: status %d, want 403", status)
	}
	if status, _ := call(t, srv, http.MethodPost, recompute, lowToken, nil); status != http.StatusForbidden {
		t.Errorf("player recompute: status %d, want 403", status)
	}
	wrongKey := http.Header{AdminKeyHeader: []string{"guess"}}
	if status, _ := callWithHeader(t, srv, http.MethodPost, recompute, lowToken, wrongKey, nil); status != http.StatusForbidden {
		t.Errorf("wrong key recompute: status %d, want 403", status)
	}
	adminKey := http.Header{AdminKeyHeader: []string{testAdminKey}}
	if status, env := callWithHeader(t, srv, http.MethodPost, recompute, "", adminKey, nil); status != http.StatusOK {
		t.Fatalf("recompute: status %d (%s)", status, env.Error)
	}

	status, env := call(t, srv, http.MethodGet, "/api/v1/leaderboard?period=weekly&limit=10", "", nil)
	var entries []domain.LeaderboardEntry
	json.Unmarshal(env.Data, &entries)
	if status != http.StatusOK || len(entries) != 2 {
		t.Fatalf("leaderboard: status %d, %d entries", status, len(entries))
	}
	if entries[0].UserID != highID || entries[0].Rank != 1 || entries[1].Rank != 2 {
		t.Errorf("ranks = %+v", entries)
	}

	status, env = call(t, srv, http.MethodGet, "/api/v1/leaderboard/players/"+lowID, "", nil)
	var entry domain.LeaderboardEntry
	json.Unmarshal(env.Data, &entry)
	if status != http.StatusOK || entry.Rank != 2 {
		t.Errorf("player rank: status %d, entry %+v", status, entry)
	}

	if status, _ := call(t, srv, http.MethodGet, "/api/v1/leaderboard/players/nobody", "", nil); status != http.StatusNotFound {
		t.Errorf("unranked player: status %d, want 404", status)
	}
	if status, _ := call(t, srv, http.MethodGet, "/api/v1/leaderboard?period=monthly", "", nil); status != http.StatusBadRequest {
		t.Errorf("bad period: status %d, want 400", status)
	}
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t)
	if status, _ := call(t, srv, http.MethodGet, "/health", "", nil); status != http.StatusOK {
		t.Errorf("health: status %d", status)
	}
	if status, _ := call(t, srv, http.MethodGet, "/ready", "", nil); status != http.StatusOK {
		t.Errorf("ready: status %d", status)
	}
}
