package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
)

// StartSession opens a session for the caller
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req domain.StartSessionRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	userID := callerID(r)
	if req.UserID != "" && req.UserID != userID {
		h.writeError(w, http.StatusForbidden, domain.ErrNotOwner)
		return
	}

	session, err := h.deps.Sessions.Start(r.Context(), userID, req.LevelID)
	if err != nil {
		h.writeServiceError(w, r, "start session", err)
		return
	}

	h.writeData(w, http.StatusCreated, session)
}

// GetSession returns one of the caller's sessions
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.deps.Sessions.Get(r.Context(), callerID(r), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeServiceError(w, r, "get session", err)
		return
	}

	h.writeSuccess(w, session)
}

// UpdateSession applies a partial stats update to an active session
func (h *Handler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	var stats domain.StatsUpdate
	if err := decode(r, &stats); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	session, err := h.deps.Sessions.Update(r.Context(), callerID(r), chi.URLParam(r, "sessionID"), stats)
	if err != nil {
		h.writeServiceError(w, r, "update session", err)
		return
	}

	h.writeSuccess(w, session)
}

// EndSession closes a session and folds its stats into the profile
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	var end domain.SessionEnd
	if err := decode(r, &end); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	session, err := h.deps.Sessions.End(r.Context(), callerID(r), chi.URLParam(r, "sessionID"), end)
	if err != nil {
		h.writeServiceError(w, r, "end session", err)
		return
	}

	h.writeSuccess(w, session)
}

// SessionHistory returns a page of the user's sessions, most recent first
func (h *Handler) SessionHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	sessions, err := h.deps.Sessions.History(r.Context(), chi.URLParam(r, "userID"), limit, offset)
	if err != nil {
		h.writeServiceError(w, r, "session history", err)
		return
	}

	h.writeSuccess(w, sessions)
}
