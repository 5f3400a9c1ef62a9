package handler

import (
	"context"
	"time"

	"peer-match/internal/delivery/http/middleware"
	"peer-match/internal/pkg/response"

	"github.com/gofiber/fiber/v3"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db    Pinger
	cache Pinger
}

// NewHealthHandler reports the database as required and the cache as optional: locks fall back to
// the database compare-and-set when Redis is down.
func NewHealthHandler(db, cache Pinger) *HealthHandler {
	return &HealthHandler{db: db, cache: cache}
}

func (h *HealthHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Get("/health", h.Health)
}

func (h *HealthHandler) Health(c fiber.Ctx) error {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			return middleware.NewAppError(fiber.StatusServiceUnavailable, "Database unavailable", nil, err)
		}
	}
	out := map[string]string{"status": "up"}
	if h.cache != nil {
		ctx, cancel := context.WithTimeout(c.Context(), time.Second)
		defer cancel()
		out["cache"] = "up"
		if err := h.cache.Ping(ctx); err != nil {
			out["cache"] = "down"
		}
	}
	return response.OK(c, out)
}
