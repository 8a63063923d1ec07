package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/CeoatNorthstar/qhub-auth/internal/api/http/handlers"
	"github.com/CeoatNorthstar/qhub-auth/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health *handlers.HealthHandler
	Auth   *handlers.AuthHandler
	Quota  *handlers.QuotaHandler
	Gate   *auth.Gate
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/logout", cfg.Auth.Logout)

	authGroup.Post("/logout-all", cfg.Gate.Handle, cfg.Auth.LogoutAll)
	authGroup.Get("/verify", cfg.Gate.Handle, cfg.Auth.Verify)
	authGroup.Get("/sessions", cfg.Gate.Handle, cfg.Auth.ListSessions)
	authGroup.Delete("/sessions/:id", cfg.Gate.Handle, cfg.Auth.RevokeSession)
	authGroup.Post("/deactivate", cfg.Gate.Handle, cfg.Auth.Deactivate)

	quota := app.Group("/quota")
	quota.Get("/limits", cfg.Gate.Optional(), cfg.Quota.Limits)
	quota.Get("", cfg.Gate.Handle, cfg.Quota.Usage)
	quota.Post("/:resource/consume", cfg.Gate.Handle, cfg.Quota.Consume)
	quota.Post("/:resource/release", cfg.Gate.Handle, cfg.Quota.Release)
}
