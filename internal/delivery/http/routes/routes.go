package routes

import (
	"peer-match/internal/delivery/http/handler"
	"peer-match/internal/delivery/http/middleware"

	"github.com/gofiber/fiber/v3"
)

type Registry struct {
	Health  *handler.HealthHandler
	Metrics *handler.MetricsHandler
	Auth    *handler.AuthHandler
	Consent *handler.ConsentHandler
	Trigger *handler.TriggerHandler

	AuthMiddleware *middleware.AuthMiddleware
	CronMiddleware *middleware.CronSecretMiddleware
}

func (r *Registry) Register(app *fiber.App) {
	if app == nil || r == nil {
		return
	}

	r.registerHealth(app)
	r.registerAPI(app)
}

func (r *Registry) registerHealth(app *fiber.App) {
	if r.Health != nil {
		r.Health.RegisterRoutes(app)
	}
	if r.Metrics != nil {
		r.Metrics.RegisterRoutes(app)
	}
}

func (r *Registry) registerAPI(app *fiber.App) {
	v1 := app.Group("/api").Group("/v1")

	if r.Auth != nil {
		r.Auth.RegisterRoutes(v1.Group("/auth"))
	}

	if r.Consent != nil && r.AuthMiddleware != nil {
		r.Consent.RegisterRoutes(v1.Group("/matches", r.AuthMiddleware.Middleware()))
	}

	if r.Trigger != nil && r.CronMiddleware != nil {
		r.Trigger.RegisterRoutes(v1, r.CronMiddleware.Middleware())
	}
}
