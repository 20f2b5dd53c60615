package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/core"
	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/metrics"
	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/server"
	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/pkg/config"
	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/pkg/logging"
)

func main() {
	logger := logging.New(logging.LevelInfo)
	slog.SetDefault(logger)

	cfg, err := config.Load(logger, "config")
	if err != nil {
		logger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger = logging.New(logging.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := core.New(logger, cfg)
	go c.Run(ctx)

	app := server.NewApp(logger, ctx, cfg, c)
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}
