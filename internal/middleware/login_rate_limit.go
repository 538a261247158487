package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/towlink/towlink/internal/apperr"
)

// LoginRateLimit limits login attempts per phone or IP using Redis if available.
func LoginRateLimit(cache *redis.Client, maxPerMin int, logger zerolog.Logger) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next() // no-op without Redis
		}
		var req struct {
			Phone string `json:"phone"`
		}
		_ = c.BodyParser(&req)
		subject := strings.TrimSpace(req.Phone)
		if subject == "" {
			subject = c.IP()
		}
		key := "rl:login:" + subject
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			logger.Warn().Err(err).Msg("login rate limit unavailable")
			return c.Next() // fail-open on cache errors
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return apperr.New(apperr.CodeRateLimit, "too many login attempts, try again later")
		}
		return c.Next()
	}
}
