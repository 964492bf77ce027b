// Package app assembles the chat service from a loaded configuration. Both
// entry points share it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"tech-advisor/internal/config"
	"tech-advisor/internal/export"
	"tech-advisor/internal/integrations/dialog"
	"tech-advisor/internal/integrations/openai"
	"tech-advisor/internal/integrations/paramstore"
	"tech-advisor/internal/repository"
	"tech-advisor/internal/usecase"
)

type App struct {
	Chat    *usecase.ChatService
	Gateway *openai.Client
	// Memory is set when sessions live in process memory and need sweeping.
	Memory *repository.MemoryStore
}

// New wires the chat service. AWS clients are created only when a session
// table or parameter prefix is configured. extra options are applied last.
func New(ctx context.Context, cfg *config.Config, extra ...usecase.Option) (*App, error) {
	gateway := openai.NewClient(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithTemperature(cfg.Temperature),
		openai.WithMaxTokens(cfg.MaxTokens),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
	)

	envFile := config.NewEnvFile(cfg.EnvFile)
	opts := []usecase.Option{
		usecase.WithSystemPrompt(cfg.SystemPrompt),
		usecase.WithKeyWriter(envFile),
	}
	sources := []usecase.KeySource{envFile}

	a := &App{Gateway: gateway}
	var store repository.SessionStore

	if cfg.UsesAWS() {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("app: load AWS config: %w", err)
		}
		if cfg.ParamPrefix != "" {
			params, err := paramstore.New(awsssm.NewFromConfig(awsCfg), cfg.ParamPrefix)
			if err != nil {
				return nil, fmt.Errorf("app: parameter store: %w", err)
			}
			sources = append(sources, params)
		}
		if cfg.SessionTable != "" {
			dynamo, err := repository.NewDynamoStore(awsdynamodb.NewFromConfig(awsCfg), cfg.SessionTable, cfg.SessionIdleTimeout)
			if err != nil {
				return nil, fmt.Errorf("app: session table: %w", err)
			}
			store = dynamo
		}
	}
	if store == nil {
		a.Memory = repository.NewMemoryStore(cfg.SessionIdleTimeout)
		store = a.Memory
	}

	opts = append(opts, usecase.WithKeySources(sources...))
	opts = append(opts, extra...)
	chat, err := usecase.NewChatService(gateway, store, opts...)
	if err != nil {
		return nil, fmt.Errorf("app: chat service: %w", err)
	}
	a.Chat = chat
	return a, nil
}

// SaveOptions builds the saver for the configured dialog mode. In directory
// mode new sessions start in the export directory.
func SaveOptions(cfg *config.Config) ([]usecase.Option, error) {
	var prompter export.Prompter
	var opts []usecase.Option
	switch cfg.Dialog {
	case config.DialogDirectory:
		dir, err := dialog.NewDirectory(cfg.ExportDir)
		if err != nil {
			return nil, err
		}
		prompter = dir
		opts = append(opts, usecase.WithSaveDir(cfg.ExportDir))
	default:
		prompter = dialog.NewNative("Save file")
	}
	saver, err := export.NewSaver(prompter)
	if err != nil {
		return nil, fmt.Errorf("app: saver: %w", err)
	}
	return append(opts, usecase.WithSaver(saver)), nil
}

// SweepIdle drops expired in-memory sessions every interval until ctx ends.
func (a *App) SweepIdle(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if a.Memory == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.Memory.Sweep(); n > 0 {
				logger.Info("swept idle sessions", "removed", n, "remaining", a.Memory.Len())
			}
		}
	}
}
