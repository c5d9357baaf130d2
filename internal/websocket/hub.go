package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
	"github.com/ThanhSi1008/tilevania-sub000/internal/metrics"
)

// Message types
const (
	MessageTypeLeaderboardUpdate   = domain.EventLeaderboardUpdate
	MessageTypeAchievementUnlocked = domain.EventAchievementUnlocked
	MessageTypeSessionEnded        = domain.EventSessionEnded
	MessageTypeSubscribe           = "subscribe"
	MessageTypeUnsubscribe         = "unsubscribe"
	MessageTypePing                = "ping"
	MessageTypePong                = "pong"
	MessageTypeError               = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      string    `json:"type"`
	Topic     string    `json:"topic,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// LeaderboardUpdate contains leaderboard data for broadcast
type LeaderboardUpdate struct {
	Period       domain.Period             `json:"period"`
	Entries      []domain.LeaderboardEntry `json:"entries"`
	TotalPlayers int64                     `json:"total_players"`
}

// LeaderboardTopic returns the topic a period's updates are published on
func LeaderboardTopic(period domain.Period) string {
	return "leaderboard:" + string(period)
}

// UserTopic returns the topic a user's private events are published on
func UserTopic(userID string) string {
	return "user:" + userID
}

// Hub maintains the set of active clients and routes messages to topic
// subscribers
type Hub struct {
	// Subscribed clients by topic
	clients map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	broadcast   chan *Message
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest

	mu sync.RWMutex

	broadcastLimit int
	metrics        *metrics.Metrics
	logger         *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client *Client
	topic  string
}

// NewHub creates a new Hub. broadcastLimit caps the rows of a leaderboard
// update; zero sends every row.
func NewHub(broadcastLimit int, m *metrics.Metrics, logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:        make(map[string]map[*Client]bool),
		allClients:     make(map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan *Message, 256),
		subscribe:      make(chan *subscriptionRequest),
		unsubscribe:    make(chan *subscriptionRequest),
		broadcastLimit: broadcastLimit,
		metrics:        m,
		logger:         logger,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.addLocked(client, UserTopic(client.userID))
			h.mu.Unlock()
			h.metrics.ClientConnected()
			h.logger.Debug("client registered", "client_id", client.id, "user_id", client.userID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				for topic := range h.clients {
					h.removeLocked(client, topic)
				}
				close(client.send)
				h.metrics.ClientDisconnected()
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			h.addLocked(req.client, req.topic)
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "topic", req.topic)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			h.removeLocked(req.client, req.topic)
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "topic", req.topic)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

func (h *Hub) addLocked(client *Client, topic string) {
	if _, ok := h.clients[topic]; !ok {
		h.clients[topic] = make(map[*Client]bool)
	}
	h.clients[topic][client] = true
}

func (h *Hub) removeLocked(client *Client, topic string) {
	if clients, ok := h.clients[topic]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, topic)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// broadcastMessage sends a message to the topic's subscribers
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	for client := range h.clients[message.Topic] {
		select {
		case client.send <- data:
		default:
			// Client's buffer is full, skip
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

func (h *Hub) publish(message *Message) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "topic", message.Topic)
	}
}

// BroadcastLeaderboard publishes a recomputed period to its subscribers
func (h *Hub) BroadcastLeaderboard(period domain.Period, entries []domain.LeaderboardEntry) {
	total := int64(len(entries))
	if h.broadcastLimit > 0 && len(entries) > h.broadcastLimit {
		entries = entries[:h.broadcastLimit]
	}
	h.publish(&Message{
		Type:  MessageTypeLeaderboardUpdate,
		Topic: LeaderboardTopic(period),
		Data: LeaderboardUpdate{
			Period:       period,
			Entries:      entries,
			TotalPlayers: total,
		},
		Timestamp: time.Now(),
	})
}

// NotifyUser publishes a private event to every connection of the user
func (h *Hub) NotifyUser(userID, eventType string, payload any) {
	h.publish(&Message{
		Type:      eventType,
		Topic:     UserTopic(userID),
		Data:      payload,
		Timestamp: time.Now(),
	})
}

// Register adds a client to the hub and subscribes it to its user topic
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe adds a client to a topic
func (h *Hub) Subscribe(client *Client, topic string) {
	h.subscribe <- &subscriptionRequest{client: client, topic: topic}
}

// Unsubscribe removes a client from a topic
func (h *Hub) Unsubscribe(client *Client, topic string) {
	h.unsubscribe <- &subscriptionRequest{client: client, topic: topic}
}

// GetSubscriberCount returns the number of subscribers of a topic
func (h *Hub) GetSubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}

// allowed reports whether the client may subscribe to topic. Leaderboard
// topics are public; user topics only to their owner.
func allowed(client *Client, topic string) bool {
	if period, ok := strings.CutPrefix(topic, "leaderboard:"); ok {
		_, err := domain.ParsePeriod(period)
		return err == nil
	}
	return topic == UserTopic(client.userID)
}
