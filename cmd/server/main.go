package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tech-advisor/internal/app"
	"tech-advisor/internal/config"
	"tech-advisor/internal/web"
)

const (
	sweepInterval   = time.Minute
	shutdownTimeout = 10 * time.Second
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load(config.Path())
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	// ---- Service ----
	saveOpts, err := app.SaveOptions(cfg)
	if err != nil {
		slog.Error("failed to set up file saving", "err", err)
		os.Exit(1)
	}
	a, err := app.New(ctx, cfg, saveOpts...)
	if err != nil {
		slog.Error("failed to create chat service", "err", err)
		os.Exit(1)
	}
	go a.SweepIdle(ctx, sweepInterval, logger)

	// ---- HTTP ----
	site := &web.Server{Chat: a.Chat, Logger: logger, Model: a.Gateway.Model()}
	srv := web.NewHTTPServer(cfg.ListenAddr, site.Handler(), cfg.RequestTimeout)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "err", err)
		}
	}()

	slog.Info("listening", "addr", "http://"+cfg.ListenAddr, "model", cfg.Model, "dialog", cfg.Dialog)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "err", err)
		os.Exit(1)
	}
}
