package middleware

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/towlink/towlink/internal/apperr"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "idempotency:v1:"
	inProgressMarker     = "__in_progress__"
	idempotencyTimeout   = 2 * time.Second
)

type storedResponse struct {
	Status  int               `json:"status"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// Idempotency replays the stored response for a repeated Idempotency-Key on
// unsafe methods. Keys are scoped per authenticated user. Requests without
// the header pass through untouched.
func Idempotency(cache *redis.Client, ttl time.Duration, logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch strings.ToUpper(c.Method()) {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := c.Get(idempotencyKeyHeader)
		if key == "" || cache == nil {
			return c.Next()
		}
		cacheKey := idempotencyPrefix + UserID(c) + ":" + c.Path() + ":" + key
		log := logger.With().Str("idempotency_key", key).Logger()

		ctx, cancel := context.WithTimeout(context.Background(), idempotencyTimeout)
		defer cancel()

		reserved, err := cache.SetNX(ctx, cacheKey, inProgressMarker, ttl).Result()
		if err != nil {
			log.Error().Err(err).Msg("idempotency reservation failed")
			return apperr.Wrap(apperr.CodeInternal, err, "idempotency store failure")
		}
		if !reserved {
			return replay(c, cache, cacheKey, log)
		}

		if err := c.Next(); err != nil {
			release(cache, cacheKey)
			return err
		}
		if c.Response().StatusCode() >= fiber.StatusBadRequest {
			release(cache, cacheKey)
			return nil
		}

		stored := storedResponse{
			Status:  c.Response().StatusCode(),
			Body:    string(c.Response().Body()),
			Headers: map[string]string{},
		}
		c.Response().Header.VisitAll(func(k, v []byte) {
			stored.Headers[string(k)] = string(v)
		})

		payload, err := json.Marshal(stored)
		if err != nil {
			log.Error().Err(err).Msg("failed to encode idempotent response")
			release(cache, cacheKey)
			return nil
		}

		persistCtx, persistCancel := context.WithTimeout(context.Background(), idempotencyTimeout)
		defer persistCancel()
		if err := cache.Set(persistCtx, cacheKey, payload, ttl).Err(); err != nil {
			log.Error().Err(err).Msg("failed to persist idempotent response")
			cache.Del(persistCtx, cacheKey)
		}
		return nil
	}
}

func replay(c *fiber.Ctx, cache *redis.Client, cacheKey string, log zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), idempotencyTimeout)
	defer cancel()

	cached, err := cache.Get(ctx, cacheKey).Result()
	if err == redis.Nil || cached == inProgressMarker {
		return apperr.New(apperr.CodeIdempotency, "duplicate request currently processing")
	}
	if err != nil {
		log.Error().Err(err).Msg("idempotency lookup failed")
		return apperr.Wrap(apperr.CodeInternal, err, "idempotency store failure")
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(cached), &stored); err != nil {
		log.Warn().Err(err).Msg("failed to decode stored idempotent response")
		return apperr.New(apperr.CodeIdempotency, "duplicate request")
	}
	for header, value := range stored.Headers {
		if strings.EqualFold(header, fiber.HeaderContentLength) {
			continue
		}
		c.Set(header, value)
	}
	return c.Status(stored.Status).SendString(stored.Body)
}

func release(cache *redis.Client, cacheKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), idempotencyTimeout)
	defer cancel()
	cache.Del(ctx, cacheKey) // best effort cleanup
}
