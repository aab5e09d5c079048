package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/classify"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/config"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/orchestrator"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/provider"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/provider/anthropic"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/provider/assistant"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/provider/cmdbot"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/provider/glean"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/provider/openai"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/server"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/storage"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/telemetry"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/tool"
)

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	shutdown, err := telemetry.InitTracer("ondo-ai-gateway", logger)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("tracer shutdown failed", "error", err)
		}
	}()

	registry := buildRegistry(cfg)

	tools := tool.NewRegistry()
	tool.RegisterBuiltins(tools)
	executor := tool.NewExecutor(tools, cfg.Tools.Timeout)

	classifier := classify.New(classify.Config{
		Mode:                classify.Mode(cfg.Classifier.Mode),
		ConfidenceThreshold: cfg.Classifier.ConfidenceThreshold,
	})

	loop := orchestrator.NewLoop(registry, executor, cfg.Tools.MaxRounds, logger)

	interactionLog, err := buildInteractionLog(cfg)
	if err != nil {
		logger.Error("failed to open interaction log", "error", err)
		os.Exit(1)
	}
	if interactionLog != nil {
		defer interactionLog.Close()
	}

	srv := server.New(cfg.Server.Port, cfg.Server.RequestTimeout, server.Deps{
		Registry:            registry,
		Loop:                loop,
		Classifier:          classifier,
		Tools:               tools,
		Log:                 interactionLog,
		ConfidenceThreshold: cfg.Classifier.ConfidenceThreshold,
	}, logger)

	if err := srv.Start(); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func buildRegistry(cfg *config.Config) *provider.Registry {
	registry := provider.NewRegistry()
	registry.Register("openai", func() provider.Adapter {
		return openai.New(cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.BaseURL)
	})
	registry.Register("anthropic", func() provider.Adapter {
		return anthropic.New(cfg.Providers.Anthropic.APIKey, cfg.Providers.Anthropic.BaseURL)
	})
	registry.Register("glean", func() provider.Adapter {
		return glean.New(cfg.Providers.Glean.APIKey, cfg.Providers.Glean.BaseURL)
	})
	registry.Register("assistant", func() provider.Adapter {
		return assistant.New(cfg.Providers.Assistant.APIKey, cfg.Providers.Assistant.BaseURL)
	})
	registry.Register("cmdbot", func() provider.Adapter {
		return cmdbot.New(cfg.Providers.Cmdbot.Command, cfg.Providers.Cmdbot.Args, cfg.Providers.Cmdbot.Timeout)
	})
	return registry
}

func buildInteractionLog(cfg *config.Config) (storage.InteractionLog, error) {
	switch cfg.Storage.Type {
	case "sqlite":
		path := cfg.Storage.Path
		if path == "" {
			path = "gateway.db"
		}
		return storage.NewSQLiteLog(path)
	case "none":
		return nil, nil
	default:
		return storage.NewMemoryLog(), nil
	}
}
