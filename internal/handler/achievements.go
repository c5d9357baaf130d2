package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ListAchievements returns the achievement catalog
func (h *Handler) ListAchievements(w http.ResponseWriter, r *http.Request) {
	catalog, err := h.deps.Achievements.Catalog(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "list achievements", err)
		return
	}

	h.writeSuccess(w, catalog)
}

// ListUnlocked returns the user's unlocks with their definitions
func (h *Handler) ListUnlocked(w http.ResponseWriter, r *http.Request) {
	unlocked, err := h.deps.Achievements.Unlocked(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeServiceError(w, r, "list unlocked achievements", err)
		return
	}

	h.writeSuccess(w, unlocked)
}

// UnlockAchievement answers 201 on the first unlock and 200 on a repeat
func (h *Handler) UnlockAchievement(w http.ResponseWriter, r *http.Request) {
	result, err := h.deps.Achievements.Unlock(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "achievementID"))
	if err != nil {
		h.writeServiceError(w, r, "unlock achievement", err)
		return
	}

	status := http.StatusCreated
	if result.AlreadyUnlocked {
		status = http.StatusOK
	}
	h.writeData(w, status, result)
}

// EvaluateAchievements unlocks everything the profile now qualifies for and
// returns only the new unlocks
func (h *Handler) EvaluateAchievements(w http.ResponseWriter, r *http.Request) {
	unlocked, err := h.deps.Achievements.Evaluate(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeServiceError(w, r, "evaluate achievements", err)
		return
	}

	h.writeSuccess(w, unlocked)
}
