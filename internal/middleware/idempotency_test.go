package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/towlink/towlink/internal/logging"
)

func setupTestApp(t *testing.T) (*fiber.App, *int32, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	app := fiber.New()
	var calls int32
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	app.Post("/wallet/credit", func(c *fiber.Ctx) error {
		n := atomic.AddInt32(&calls, 1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"ok": true, "call": n})
	})
	app.Post("/wallet/debit", func(c *fiber.Ctx) error {
		atomic.AddInt32(&calls, 1)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false})
	})

	cleanup := func() {
		cache.Close()
		mr.Close()
	}

	return app, &calls, cleanup
}

func post(t *testing.T, app *fiber.App, path, key string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, body
}

func TestIdempotencyPassesThroughWithoutHeader(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	post(t, app, "/wallet/credit", "")
	post(t, app, "/wallet/credit", "")

	if got := atomic.LoadInt32(calls); got != 2 {
		t.Fatalf("expected handler to run twice, ran %d times", got)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	status, payload := post(t, app, "/wallet/credit", "abc123")
	if status != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, status)
	}

	status2, cached := post(t, app, "/wallet/credit", "abc123")
	if status2 != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, status2)
	}
	if string(cached) != string(payload) {
		t.Fatalf("expected cached payload %s got %s", string(payload), string(cached))
	}
	if got := atomic.LoadInt32(calls); got != 1 {
		t.Fatalf("expected handler to run once, ran %d times", got)
	}

	var decoded map[string]any
	if err := json.Unmarshal(cached, &decoded); err != nil {
		t.Fatalf("cached payload invalid json: %v", err)
	}
}

func TestIdempotencyDoesNotCacheFailures(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	post(t, app, "/wallet/debit", "retry-me")
	post(t, app, "/wallet/debit", "retry-me")

	if got := atomic.LoadInt32(calls); got != 2 {
		t.Fatalf("expected failed request to be retried, ran %d times", got)
	}
}
