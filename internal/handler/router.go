package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)
	if h.deps.Metrics != nil {
		r.Handle("/metrics", h.deps.Metrics.Handler())
	}

	// WebSocket endpoint, authenticated by the token query parameter
	r.Get("/ws", h.HandleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)

		// Public catalogs and rankings
		r.Get("/levels", h.ListLevels)
		r.Get("/levels/{levelID}", h.GetLevel)
		r.Get("/achievements", h.ListAchievements)
		r.Get("/leaderboard", h.GetLeaderboard)
		r.Get("/leaderboard/stats", h.GetLeaderboardStats)
		r.Get("/leaderboard/players/{userID}", h.GetPlayerRank)

		// Operator routes; the periodic worker owns recompute otherwise
		r.Route("/admin", func(r chi.Router) {
			r.Use(h.requireAdmin)
			r.Post("/leaderboard/recompute", h.RecomputeLeaderboard)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)

			r.Get("/ws/stats", h.GetWebSocketStats)

			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", h.StartSession)
				r.Route("/{sessionID}", func(r chi.Router) {
					r.Get("/", h.GetSession)
					r.Patch("/", h.UpdateSession)
					r.Post("/end", h.EndSession)
				})
			})

			r.Route("/users/{userID}", func(r chi.Router) {
				r.Use(h.requireOwner)

				r.Get("/sessions", h.SessionHistory)

				r.Get("/profile", h.GetProfile)
				r.Patch("/profile", h.UpdateProfile)
				r.Post("/profile/deaths", h.IncrementDeaths)
				r.Put("/profile/lives", h.SetLives)
				r.Post("/profile/score", h.AddScore)
				r.Post("/profile/coins", h.AddCoins)
				r.Post("/profile/playtime", h.AddPlayTime)

				r.Get("/progress", h.ListProgress)
				r.Get("/progress/{levelID}", h.GetProgress)
				r.Post("/progress/{levelID}/complete", h.CompleteLevel)

				r.Get("/achievements", h.ListUnlocked)
				r.Post("/achievements/evaluate", h.EvaluateAchievements)
				r.Post("/achievements/{achievementID}/unlock", h.UnlockAchievement)
			})
		})
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
