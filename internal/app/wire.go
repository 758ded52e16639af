package app

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/habitquest/platform/internal/auth"
	"github.com/habitquest/platform/internal/handler"
	"github.com/habitquest/platform/internal/infra"
	"github.com/habitquest/platform/internal/service"
)

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Progress    *service.ProgressService
	Hub         *infra.NotificationHub
	JWTMgr      *auth.JWTManager
	Logger      *slog.Logger
	Health      map[string]infra.Pinger
	CORSOrigins string
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	logger := deps.Logger
	jwtMgr := deps.JWTMgr
	origins := deps.CORSOrigins
	if origins == "" {
		origins = "*"
	}

	progressHandler := handler.NewProgressHandler(deps.Progress, deps.Hub, logger)

	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORSWithOrigins(origins))
	r.Use(handler.JSONContentType)

	// Public
	r.Get("/health", handler.HealthHandler(deps.Health))
	r.Get("/players/{id}/progress", progressHandler.PublicProgress)

	// Player-authenticated routes
	r.Route("/progress", func(r chi.Router) {
		r.Use(auth.AuthenticatePlayer(jwtMgr))

		r.Get("/me", progressHandler.Me)
		r.Post("/sessions", progressHandler.StartSession)
		r.Post("/habits/completed", progressHandler.HabitCompleted)
		r.Post("/photos", progressHandler.PhotoAdded)
		r.Post("/models", progressHandler.ModelCreated)
		r.Post("/ai-habits", progressHandler.AIHabitCreated)
		r.Post("/reset", progressHandler.Reset)

		r.Get("/daily-rewards", progressHandler.DailyRewards)
		r.Post("/daily-reward/claim", progressHandler.ClaimDailyReward)

		r.Get("/achievements", progressHandler.Achievements)
		r.Get("/achievements/stats", progressHandler.AchievementStats)
		r.Get("/achievements/{id}/progress", progressHandler.AchievementProgress)

		r.Get("/trophies", progressHandler.Trophies)
		r.Get("/trophies/stats", progressHandler.TrophyStats)

		r.Get("/notifications", progressHandler.Notifications)
		r.Delete("/notifications", progressHandler.ClearNotifications)
		r.Get("/notifications/stream", progressHandler.StreamNotifications)
	})

	// Service-to-service routes (habit tracker)
	r.Route("/internal", func(r chi.Router) {
		r.Use(auth.AuthenticateService(jwtMgr))

		r.Put("/players/{id}/perfect-months", progressHandler.SetPerfectMonths)
	})

	return r
}
