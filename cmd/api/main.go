package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/towlink/towlink/internal/config"
	"github.com/towlink/towlink/internal/infra"
	"github.com/towlink/towlink/internal/logging"
	"github.com/towlink/towlink/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.AppName, cfg.LogLevel)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect postgres")
		}
		defer db.Close()

		if cfg.AutoMigrate {
			if err := infra.Migrate(ctx, db, "up"); err != nil {
				logger.Fatal().Err(err).Msg("migrate")
			}
		}
	} else {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory storage")
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect redis")
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn().Err(err).Msg("close redis")
			}
		}()
	}

	srv, err := server.New(cfg, db, cache, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build server")
	}
	if err := srv.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("start workers")
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-srvErrCh:
		if err != nil {
			logger.Error().Err(err).Msg("server error")
			os.Exit(1)
		}
		return
	}

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
		os.Exit(1)
	}

	logger.Info().Msg("server exited cleanly")
}
