package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// GetLeaderboard returns the top ranks of a period
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	period, err := queryPeriod(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	entries, err := h.deps.Leaderboard.GetTopN(r.Context(), period, limit)
	if err != nil {
		h.writeServiceError(w, r, "get leaderboard", err)
		return
	}

	h.writeSuccess(w, entries)
}

// GetPlayerRank returns one player's row or 404 when unranked
func (h *Handler) GetPlayerRank(w http.ResponseWriter, r *http.Request) {
	period, err := queryPeriod(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	entry, err := h.deps.Leaderboard.GetPlayerRank(r.Context(), period, chi.URLParam(r, "userID"))
	if err != nil {
		h.writeServiceError(w, r, "get player rank", err)
		return
	}

	h.writeSuccess(w, entry)
}

// GetLeaderboardStats returns the size and freshness of a period
func (h *Handler) GetLeaderboardStats(w http.ResponseWriter, r *http.Request) {
	period, err := queryPeriod(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	stats, err := h.deps.Leaderboard.GetStats(r.Context(), period)
	if err != nil {
		h.writeServiceError(w, r, "get leaderboard stats", err)
		return
	}

	h.writeSuccess(w, stats)
}

// RecomputeLeaderboard rebuilds every period now. A recompute already
// running elsewhere answers 409.
func (h *Handler) RecomputeLeaderboard(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.deps.Ranking.Recompute(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "recompute leaderboard", err)
		return
	}

	h.writeSuccess(w, snapshot)
}
