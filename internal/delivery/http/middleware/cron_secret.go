package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"golang.org/x/crypto/bcrypt"
)

const CronSecretHeader = "X-Cron-Secret"

// CronSecretMiddleware admits scheduled triggers carrying the shared secret whose bcrypt hash is
// configured. With no hash configured every request is rejected.
type CronSecretMiddleware struct {
	hash []byte
}

func NewCronSecretMiddleware(secretHash string) *CronSecretMiddleware {
	return &CronSecretMiddleware{hash: []byte(strings.TrimSpace(secretHash))}
}

func (m *CronSecretMiddleware) Middleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		secret := strings.TrimSpace(c.Get(CronSecretHeader))
		if secret == "" || len(m.hash) == 0 {
			return NewAppError(fiber.StatusUnauthorized, "Unauthorized", nil, nil)
		}
		if err := bcrypt.CompareHashAndPassword(m.hash, []byte(secret)); err != nil {
			return NewAppError(fiber.StatusUnauthorized, "Unauthorized", nil, err)
		}
		return c.Next()
	}
}
