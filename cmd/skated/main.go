package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/park285/skate-duel/internal/app"
	appcfg "github.com/park285/skate-duel/internal/config"
	"github.com/park285/skate-duel/internal/obslog"
	"github.com/park285/skate-duel/internal/schedule"
	"go.uber.org/zap"
)

func main() {
	if err := appcfg.LoadDotEnv(); err != nil {
		log.Fatalf("env error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Fatal("config_error", zap.Error(err))
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	deps, err := app.New(startCtx, cfg)
	cancel()
	if err != nil {
		logger.Fatal("init_error", zap.Error(err))
	}

	sched, err := schedule.New(deps.Sweeps(), cfg.SweepInterval)
	if err != nil {
		_ = deps.Close(context.Background())
		logger.Fatal("schedule_error", zap.Error(err))
	}
	sched.Start()
	logger.Info("skated_started",
		zap.String("db", cfg.DBDialect),
		zap.Bool("remote", deps.Remote != nil),
		zap.String("notify", cfg.NotifyMode),
		zap.Duration("response_window", cfg.ResponseWindow),
	)

	// Wait for termination signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("skated_stopping", zap.String("signal", sig.String()))

	if err := sched.Stop(); err != nil {
		logger.Warn("schedule_stop_error", zap.Error(err))
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := deps.Close(shutdownCtx); err != nil {
		logger.Warn("shutdown_error", zap.Error(err))
	}
}
