package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	gorillaws "github.com/gorilla/websocket"

	"github.com/ThanhSi1008/tilevania-sub000/internal/achievement"
	"github.com/ThanhSi1008/tilevania-sub000/internal/auth"
	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
	"github.com/ThanhSi1008/tilevania-sub000/internal/metrics"
	"github.com/ThanhSi1008/tilevania-sub000/internal/ranking"
	"github.com/ThanhSi1008/tilevania-sub000/internal/service"
	"github.com/ThanhSi1008/tilevania-sub000/internal/websocket"
)

// TokenVerifier resolves a bearer token to its caller
type TokenVerifier interface {
	Verify(token string) (auth.Caller, error)
}

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the HTTP layer dispatches to
type Deps struct {
	Users        *service.UserService
	Sessions     *service.SessionService
	Profiles     *service.ProfileService
	Progress     *service.ProgressService
	Levels       *service.LevelService
	Leaderboard  *service.LeaderboardService
	Achievements *achievement.Engine
	Ranking      *ranking.Engine

	Tokens   TokenVerifier
	AdminKey string
	Hub      *websocket.Hub
	Upgrader *gorillaws.Upgrader
	Metrics  *metrics.Metrics
	Store    Pinger
}

// Handler provides HTTP handlers for the game API
type Handler struct {
	deps   Deps
	logger *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Deps, logger *slog.Logger) *Handler {
	return &Handler{
		deps:   deps,
		logger: logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data any) {
	h.writeData(w, http.StatusOK, data)
}

func (h *Handler) writeData(w http.ResponseWriter, status int, data any) {
	h.writeJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeServiceError maps an error kind to its status. Anything unclassified
// is logged and answered generically.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			"op", op,
			"path", r.URL.Path,
			"error", err,
		)
		h.writeError(w, status, domain.ErrInternal)
		return
	}
	h.writeError(w, status, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON request body. Malformed bodies, including non-numeric
// amounts, are validation errors.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ErrInvalidRequest
	}
	return nil
}

// queryInt parses an optional integer query parameter
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, domain.ErrInvalidRequest
	}
	return v, nil
}

// queryPeriod parses the period query parameter, defaulting to ALLTIME
func queryPeriod(r *http.Request) (domain.Period, error) {
	raw := r.URL.Query().Get("period")
	if raw == "" {
		return domain.PeriodAllTime, nil
	}
	return domain.ParsePeriod(raw)
}
