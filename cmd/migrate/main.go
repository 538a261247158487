package main

import (
	"context"
	"flag"
	"os"

	"github.com/towlink/towlink/internal/config"
	"github.com/towlink/towlink/internal/infra"
	"github.com/towlink/towlink/internal/logging"
)

func main() {
	cmd := flag.String("cmd", "up", "goose command: up|down|status|version|reset")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("migrate", "info")
		bootLogger.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(cfg.AppName+"-migrate", cfg.LogLevel)

	ctx := context.Background()
	pool, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := infra.Migrate(ctx, pool, *cmd, flag.Args()...); err != nil {
		logger.Error().Err(err).Str("cmd", *cmd).Msg("migration failed")
		pool.Close()
		os.Exit(1)
	}
	logger.Info().Str("cmd", *cmd).Msg("migration complete")
}
