package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"tech-advisor/handler"
	"tech-advisor/internal/app"
	"tech-advisor/internal/config"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// ---- Configuration (read only here) ----
	cfg, err := config.Load(config.Path())
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if cfg.SessionTable == "" {
		// Each cold start gets a fresh process, so in-memory sessions do not
		// survive between invocations.
		slog.Warn("SESSION_TABLE is not set; sessions are kept in memory per instance")
	}

	// ---- Service ----
	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to create chat service", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(a.Chat)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.WithLogger(logger).Handle)
}
