package routes

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/towlink/towlink/internal/auth"
	"github.com/towlink/towlink/internal/config"
	"github.com/towlink/towlink/internal/identity"
	"github.com/towlink/towlink/internal/middleware"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger zerolog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps, s *Services) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.Env)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.Env)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	app.Use(middleware.Metrics())

	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	authn := middleware.JWTAuth(s.Auth)

	RegisterAuthRoutes(app, d, s, authn)

	ids := identity.NewHandler(s.Identity)
	app.Get("/me", authn, ids.Me)
	app.Patch("/me/location", authn, ids.UpdateLocation)

	RegisterRideRoutes(app, s, authn)
	RegisterWalletRoutes(app, d, s, authn)
	RegisterNotificationRoutes(app, s, authn)
	return nil
}

// RegisterAuthRoutes wires registration and token endpoints.
func RegisterAuthRoutes(r fiber.Router, d Deps, s *Services, authn fiber.Handler) {
	h := auth.NewHandler(s.Identity, s.Auth)
	ids := identity.NewHandler(s.Identity)

	group := r.Group("/auth")
	group.Post("/register", ids.Register)
	group.Post("/login", middleware.LoginRateLimit(d.Cache, d.Cfg.LoginRateLimit, d.Logger), h.Login)
	group.Post("/refresh", h.Refresh)
	group.Post("/logout", authn, h.Logout)
}
