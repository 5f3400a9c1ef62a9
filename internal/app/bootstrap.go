package app

import (
	"fmt"
	"strings"

	"peer-match/internal/config"
	"peer-match/internal/delivery/http/handler"
	"peer-match/internal/delivery/http/middleware"
	"peer-match/internal/delivery/http/routes"
	"peer-match/internal/logger"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

type App struct {
	Fiber     *fiber.App
	Container *Container
}

// New builds the HTTP application on top of an already wired container.
func New(c *Container) *App {
	f := fiber.New(fiber.Config{AppName: c.Config.App.AppName})

	registerGlobalMiddleware(f, c.Logger)
	registerRoutes(f, c)

	return &App{Fiber: f, Container: c}
}

func Bootstrap(cfg config.Config, l *zap.Logger) (*App, func() error, error) {
	c, err := NewContainer(cfg, l)
	if err != nil {
		return nil, nil, err
	}
	return New(c), c.Close, nil
}

func registerGlobalMiddleware(app *fiber.App, l *zap.Logger) {
	if app == nil {
		return
	}

	app.Use(middleware.NewAccessLogMiddleware(logger.Component(l, logger.ComponentHTTP)).Middleware())
	app.Use(middleware.NewErrorMiddleware(l).Middleware())
}

func registerRoutes(app *fiber.App, c *Container) {
	if app == nil || c == nil {
		return
	}

	var db, cache handler.Pinger
	if c.DB != nil {
		db = c.DB
	}
	if c.Redis != nil {
		cache = c.Redis
	}

	reg := &routes.Registry{
		Health:  handler.NewHealthHandler(db, cache),
		Metrics: handler.NewMetricsHandler(c.Registry),
		Auth:    handler.NewAuthHandler(c.Auth),
		Consent: handler.NewConsentHandler(c.Consent),
		Trigger: handler.NewTriggerHandler(c.MatchRun, c.ReminderSweep, c.Redelivery),

		AuthMiddleware: middleware.NewAuthMiddleware(c.JWT),
		CronMiddleware: middleware.NewCronSecretMiddleware(c.Config.Cron.SecretHash),
	}
	reg.Register(app)
}

func ListenAddr(port string) (string, error) {
	p := strings.TrimSpace(port)
	if p == "" {
		return "", fmt.Errorf("empty HTTP port")
	}
	if strings.HasPrefix(p, ":") {
		return p, nil
	}
	return ":" + p, nil
}
