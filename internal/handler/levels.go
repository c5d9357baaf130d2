package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
)

// ListLevels returns the level catalog
func (h *Handler) ListLevels(w http.ResponseWriter, r *http.Request) {
	levels, err := h.deps.Levels.List(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "list levels", err)
		return
	}

	h.writeSuccess(w, levels)
}

// GetLevel returns a catalog entry by id
func (h *Handler) GetLevel(w http.ResponseWriter, r *http.Request) {
	level, err := h.deps.Levels.Get(r.Context(), chi.URLParam(r, "levelID"))
	if err != nil {
		h.writeServiceError(w, r, "get level", err)
		return
	}

	h.writeSuccess(w, level)
}

// ListProgress returns every level record of the user
func (h *Handler) ListProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.deps.Progress.List(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeServiceError(w, r, "list progress", err)
		return
	}

	h.writeSuccess(w, progress)
}

// GetProgress returns the user's record for one level
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.deps.Progress.Get(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "levelID"))
	if err != nil {
		h.writeServiceError(w, r, "get progress", err)
		return
	}

	h.writeSuccess(w, progress)
}

// CompleteLevel records a level completion outside a session
func (h *Handler) CompleteLevel(w http.ResponseWriter, r *http.Request) {
	var c domain.Completion
	if err := decode(r, &c); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	progress, err := h.deps.Progress.Complete(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "levelID"), c)
	if err != nil {
		h.writeServiceError(w, r, "complete level", err)
		return
	}

	h.writeSuccess(w, progress)
}
