package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
	"github.com/ThanhSi1008/tilevania-sub000/internal/websocket"
)

var errPushDisabled = errors.New("push notifications are disabled")

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck reports ready once the store answers
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if h.deps.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.deps.Store.Ping(ctx); err != nil {
			h.logger.Warn("readiness check failed", "error", err)
			h.writeJSON(w, http.StatusServiceUnavailable, APIResponse{
				Success: false,
				Error:   "store unavailable",
			})
			return
		}
	}
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// HandleWebSocket upgrades an authenticated connection. Browsers cannot set
// headers on the upgrade request, so the token comes from the query string.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.deps.Hub == nil {
		h.writeError(w, http.StatusServiceUnavailable, errPushDisabled)
		return
	}
	caller, err := h.deps.Tokens.Verify(r.URL.Query().Get("token"))
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, domain.ErrInvalidToken)
		return
	}
	websocket.ServeWs(h.deps.Hub, h.deps.Upgrader, caller.UserID, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	if h.deps.Hub == nil {
		h.writeError(w, http.StatusServiceUnavailable, errPushDisabled)
		return
	}
	h.writeSuccess(w, map[string]any{
		"total_connections": h.deps.Hub.GetTotalConnections(),
	})
}
