package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
)

// GetProfile returns the user's lifetime stats
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.deps.Profiles.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeServiceError(w, r, "get profile", err)
		return
	}

	h.writeSuccess(w, profile)
}

// UpdateProfile overwrites the provided profile fields
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var update domain.ProfileUpdate
	if err := decode(r, &update); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	profile, err := h.deps.Profiles.Update(r.Context(), chi.URLParam(r, "userID"), update)
	if err != nil {
		h.writeServiceError(w, r, "update profile", err)
		return
	}

	h.writeSuccess(w, profile)
}

type amountOp func(ctx context.Context, userID string, amount *int64) (*domain.Profile, error)

// applyAmount decodes {"amount": n} and applies it with op
func (h *Handler) applyAmount(w http.ResponseWriter, r *http.Request, name string, op amountOp, optional bool) {
	var req domain.AmountRequest
	if r.ContentLength != 0 || !optional {
		if err := decode(r, &req); err != nil {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	profile, err := op(r.Context(), chi.URLParam(r, "userID"), req.Amount)
	if err != nil {
		h.writeServiceError(w, r, name, err)
		return
	}

	h.writeSuccess(w, profile)
}

// IncrementDeaths adds to the death counter; an empty body counts one death
func (h *Handler) IncrementDeaths(w http.ResponseWriter, r *http.Request) {
	h.applyAmount(w, r, "increment deaths", h.deps.Profiles.IncrementDeaths, true)
}

// SetLives sets the current lives
func (h *Handler) SetLives(w http.ResponseWriter, r *http.Request) {
	h.applyAmount(w, r, "set lives", h.deps.Profiles.SetLives, false)
}

// AddScore adds to the total score
func (h *Handler) AddScore(w http.ResponseWriter, r *http.Request) {
	h.applyAmount(w, r, "add score", h.deps.Profiles.AddScore, false)
}

// AddCoins adds to the coin total
func (h *Handler) AddCoins(w http.ResponseWriter, r *http.Request) {
	h.applyAmount(w, r, "add coins", h.deps.Profiles.AddCoins, false)
}

// AddPlayTime adds seconds to the play time total
func (h *Handler) AddPlayTime(w http.ResponseWriter, r *http.Request) {
	h.applyAmount(w, r, "add play time", h.deps.Profiles.AddPlayTime, false)
}
