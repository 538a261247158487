package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// Audit emits one structured log line per request.
func Audit(logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		event := logger.Info()
		if err != nil {
			event = logger.Warn().Err(err)
		}
		event.
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Dur("duration", time.Since(start)).
			Str("request_id", RequestIDFrom(c)).
			Str("user_id", UserID(c)).
			Msg("request completed")
		return err
	}
}
