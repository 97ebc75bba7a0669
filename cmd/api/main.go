package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"GiftCardPay/internal/app"
	"GiftCardPay/internal/config"
	internalhttp "GiftCardPay/internal/http"
	"GiftCardPay/internal/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(errors.Wrap(err, "config load failed"))
	}

	log := logger.SetupLogger(cfg.Env)
	log.Info("starting api", slog.String("env", cfg.Env))

	ctx := context.Background()
	application, err := app.New(ctx, log, cfg)
	if err != nil {
		log.Error("failed to initialize app", logger.Err(err))
		panic(errors.Wrap(err, "failed to initialize app"))
	}
	defer application.Close()

	h := internalhttp.NewHandler(log, application.Orders, application.Verifier, cfg.Worker.WatchEvery)
	srv := internalhttp.NewServer(log, h, cfg.Auth.JWTSecret)
	if cfg.Auth.JWTSecret == "" {
		log.Warn("JWT_SECRET not set, admin endpoints disabled")
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("api listening", slog.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", logger.Err(err))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	log.Info("received shutdown signal", slog.String("signal", sig.String()))

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		log.Error("server shutdown failed", logger.Err(err))
	}
	log.Info("api stopped")
}
