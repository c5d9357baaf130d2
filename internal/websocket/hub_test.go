package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
)

type wireMessage struct {
	Type  string          `json:"type"`
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(2, nil, logger)
	go hub.Run()
	t.Cleanup(hub.Stop)

	upgrader := NewUpgrader(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, upgrader, r.URL.Query().Get("user"), logger, w, r)
	}))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// the pong is only sent once the hub has taken the registration
	send(t, conn, ClientMessage{Type: MessageTypePing})
	if msg := read(t, conn); msg.Type != MessageTypePong {
		t.Fatalf("expected pong, got %q", msg.Type)
	}
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func read(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg wireMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestNotifyUserReachesOnlyOwner(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "u1")

	hub.NotifyUser("u2", domain.EventSessionEnded, map[string]string{"id": "other"})
	hub.NotifyUser("u1", domain.EventAchievementUnlocked, map[string]string{"id": "mine"})

	msg := read(t, conn)
	if msg.Type != domain.EventAchievementUnlocked || msg.Topic != "user:u1" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestSubscribeRules(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "u1")

	send(t, conn, ClientMessage{Type: MessageTypeSubscribe, Topic: "user:u2"})
	if msg := read(t, conn); msg.Type != MessageTypeError {
		t.Fatalf("expected error for foreign user topic, got %+v", msg)
	}
	send(t, conn, ClientMessage{Type: MessageTypeSubscribe, Topic: "leaderboard:MONTHLY"})
	if msg := read(t, conn); msg.Type != MessageTypeError {
		t.Fatalf("expected error for unknown period, got %+v", msg)
	}

	send(t, conn, ClientMessage{Type: MessageTypeSubscribe, Topic: LeaderboardTopic(domain.PeriodAllTime)})
	if msg := read(t, conn); msg.Type != "subscribed" {
		t.Fatalf("expected ack, got %+v", msg)
	}
	if n := hub.GetSubscriberCount(LeaderboardTopic(domain.PeriodAllTime)); n != 1 {
		t.Fatalf("subscribers = %d, want 1", n)
	}

	entries := []domain.LeaderboardEntry{
		{UserID: "a", Rank: 1, TotalScore: 30},
		{UserID: "b", Rank: 2, TotalScore: 20},
		{UserID: "c", Rank: 3, TotalScore: 10},
	}
	hub.BroadcastLeaderboard(domain.PeriodDaily, entries)
	hub.BroadcastLeaderboard(domain.PeriodAllTime, entries)

	msg := read(t, conn)
	if msg.Type != MessageTypeLeaderboardUpdate || msg.Topic != "leaderboard:ALLTIME" {
		t.Fatalf("unexpected message %+v", msg)
	}
	var update LeaderboardUpdate
	if err := json.Unmarshal(msg.Data, &update); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(update.Entries) != 2 || update.TotalPlayers != 3 {
		t.Errorf("update = %d rows / %d total, want 2 / 3", len(update.Entries), update.TotalPlayers)
	}
}

func TestInvalidClientMessage(t *testing.T) {
	_, srv := startHub(t)
	conn := dial(t, srv, "u1")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := read(t, conn); msg.Type != MessageTypeError {
		t.Fatalf("expected error, got %+v", msg)
	}
}
