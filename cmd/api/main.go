package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanwahyu/sentiment-api/internal/app"
	"github.com/bryanwahyu/sentiment-api/internal/config"
	"github.com/bryanwahyu/sentiment-api/internal/infra/httpserver"
	"github.com/bryanwahyu/sentiment-api/internal/infra/scheduler"
	"github.com/bryanwahyu/sentiment-api/internal/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// load config
	cfg, err := config.Load(config.Path())
	if err != nil {
		fatal(logger, "config.load", err)
	}
	if err := cfg.Validate(); err != nil {
		fatal(logger, "config.invalid", err)
	}

	ctx := context.Background()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		fatal(logger, "app.build", err)
	}
	defer a.Close()

	// reconciliation terjadwal (opsional)
	sched, err := scheduler.New(cfg.Sync.Schedule, a.History, cfg.Sync.Timeout, logger)
	if err != nil {
		fatal(logger, "scheduler.init", err)
	}
	if sched != nil {
		sched.Start()
	}

	limiter := middleware.NewRateLimiter(cfg.Server.RateCapacity, cfg.Server.RatePerSecond)
	defer limiter.Close()

	handler := httpserver.NewRouter(a.Analysis, a.History, httpserver.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		APIKeys:        cfg.Auth.APIKeys,
		Limiter:        limiter,
		Checks:         a.Checks,
		MaxUpload:      cfg.Analysis.MaxUploadBytes,
		BatchTimeout:   cfg.Analysis.BatchTimeout,
		Logger:         logger,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server.listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "server.error", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("server.shutdown")

	ctx2, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Error("server.shutdown_failed", "error", err)
	}
	if sched != nil {
		sched.Stop(ctx2)
	}
}

func fatal(logger *slog.Logger, event string, err error) {
	logger.Error(event, "error", err)
	os.Exit(1)
}
