package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/agora-forum/agora/internal/app"
	"github.com/agora-forum/agora/pkg/config"
	"github.com/agora-forum/agora/pkg/logging"
	"github.com/agora-forum/agora/pkg/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting Agora nightly worker", zap.Bool("run_once", cfg.Scheduler.RunOnce))

	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}

	runErr := application.RunWorker(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := application.Close(closeCtx); err != nil {
		logger.Warn("Shutdown incomplete", zap.Error(err))
	}

	if runErr != nil {
		logger.Error("Worker stopped with error", zap.Error(runErr))
		os.Exit(1)
	}
	logger.Info("Worker exited")
}
