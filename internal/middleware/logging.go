package middleware

import (
	"time"

	"github.com/bundlehub/backend/pkg/logger"
	"github.com/gofiber/fiber/v2"
)

// RequestLogger logs one line per request after it completes.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		fields := map[string]interface{}{
			"method":      c.Method(),
			"path":        c.Path(),
			"status":      c.Response().StatusCode(),
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.IP(),
		}
		if user := GetCurrentUser(c); user != nil {
			fields["user_id"] = user.ID.String()
		}

		logger.Info("http_request", fields)
		return err
	}
}
