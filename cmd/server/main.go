package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"peer-match/internal/app"
	"peer-match/internal/config"
	"peer-match/internal/database/migration"
	"peer-match/internal/logger"

	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("failed to load config", zap.Error(err))
	}

	l, err := logger.New(logger.Options{
		JSON:        cfg.Log.JSON,
		Debug:       cfg.Log.Debug,
		Service:     cfg.App.AppName,
		Environment: cfg.App.Environment,
	})
	if err != nil {
		zap.L().Fatal("failed to build logger", zap.Error(err))
	}
	defer func() { _ = l.Sync() }()

	bootstrap, cleanup, err := app.Bootstrap(cfg, l)
	if err != nil {
		l.Fatal("failed to bootstrap app", zap.Error(err))
	}
	defer func() {
		if err := cleanup(); err != nil {
			l.Error("cleanup error", zap.Error(err))
		}
	}()

	if cfg.Database.MigrateOnStart {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := migration.Runner{Dir: cfg.Database.MigrationsDir, Logger: logger.Component(l, logger.ComponentMigration)}.
			Run(ctx, bootstrap.Container.DB.SQLDB())
		cancel()
		if err != nil {
			l.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	addr, err := app.ListenAddr(cfg.App.HTTPPort)
	if err != nil {
		l.Fatal("invalid HTTP port", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- bootstrap.Fiber.Listen(addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("server error", zap.Error(err))
		}
	case sig := <-sigCh:
		l.Info("shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := bootstrap.Fiber.ShutdownWithContext(ctx); err != nil {
			l.Error("shutdown error", zap.Error(err))
		}
	}
}
