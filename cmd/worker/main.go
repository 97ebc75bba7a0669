package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"

	"GiftCardPay/internal/app"
	"GiftCardPay/internal/config"
	"GiftCardPay/internal/logger"
	"GiftCardPay/internal/worker"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(errors.Wrap(err, "config load failed"))
	}

	log := logger.SetupLogger(cfg.Env)
	log.Info("starting worker", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, log, cfg)
	if err != nil {
		log.Error("failed to initialize app", logger.Err(err))
		panic(errors.Wrap(err, "failed to initialize app"))
	}
	defer application.Close()

	w := worker.New(log, application.Store, application.Verifier, cfg.Worker.Schedule, cfg.Worker.Concurrency)

	// First sweep right away so orders don't wait a full interval after a restart.
	if _, err := w.RunOnce(ctx); err != nil {
		log.Error("initial sweep failed", logger.Err(err))
	}
	if err := w.Run(ctx); err != nil {
		log.Error("worker stopped with error", logger.Err(err))
		panic(errors.Wrap(err, "worker run"))
	}
}
