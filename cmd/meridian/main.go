package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/meridian-erp/meridian-erp/internal/app"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runtime, err := app.NewRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error("boot", slog.Any("error", err))
		os.Exit(1)
	}
	defer runtime.Close()

	logger.Info("engine ready",
		slog.String("env", cfg.AppEnv),
		slog.String("currency", cfg.DefaultCurrency))

	// The engine is a library host: embedding processes call the
	// services on Runtime. Standalone it just waits for a signal.
	<-ctx.Done()
	logger.Info("shutting down")
}
