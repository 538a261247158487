package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/towlink/towlink/internal/config"
	"github.com/towlink/towlink/internal/responses"
	"github.com/towlink/towlink/internal/routes"
)

// Server wraps the Fiber application, the push gateway and the wired services.
type Server struct {
	app      *fiber.App
	push     *http.Server
	cfg      config.Config
	deps     routes.Deps
	services *routes.Services
	logger   zerolog.Logger
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger zerolog.Logger) (*Server, error) {
	deps := routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger}
	services := routes.NewServices(deps)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return responses.Error(c, logger, cfg.IsProd(), err)
		},
	})
	if err := routes.Setup(app, deps, services); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", services.Hub)
	push := &http.Server{
		Addr:              cfg.WSAddress(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{app: app, push: push, cfg: cfg, deps: deps, services: services, logger: logger}, nil
}

// App exposes the Fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start provisions bootstrap records and starts the background workers. The
// workers stop when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.services.Bootstrap(ctx, s.deps); err != nil {
		return err
	}
	s.services.Dispatcher.Start(ctx)
	if s.services.Relay != nil {
		if err := s.services.Relay.Subscribe(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Listen serves the API and the push gateway until one of them fails.
func (s *Server) Listen() error {
	errCh := make(chan error, 2)
	go func() {
		if err := s.push.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		errCh <- s.app.Listen(s.cfg.Address())
	}()
	s.logger.Info().Str("addr", s.cfg.Address()).Str("ws_addr", s.cfg.WSAddress()).Msg("server listening")
	return <-errCh
}

// Shutdown stops accepting requests, then drains the push queue. The context
// passed to Start must already be cancelled for the drain to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	err := errors.Join(s.app.ShutdownWithContext(ctx), s.push.Shutdown(ctx))

	drained := make(chan struct{})
	go func() {
		s.services.Dispatcher.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		s.logger.Warn().Msg("push queue not drained before deadline")
	}
	return errors.Join(err, s.services.Close())
}
