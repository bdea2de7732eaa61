package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/galaxy/internal/api"
	"github.com/MikeSquared-Agency/galaxy/internal/config"
	"github.com/MikeSquared-Agency/galaxy/internal/hermes"
	"github.com/MikeSquared-Agency/galaxy/internal/llm"
	"github.com/MikeSquared-Agency/galaxy/internal/processor"
	"github.com/MikeSquared-Agency/galaxy/internal/slack"
	"github.com/MikeSquared-Agency/galaxy/internal/store"
	"github.com/MikeSquared-Agency/galaxy/internal/tracker"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("galaxy starting", "port", cfg.Port, "provider", cfg.LLMProvider)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Language-model gateway
	gw, err := buildGateway(cfg)
	if err != nil {
		slog.Error("failed to configure gateway", "error", err)
		os.Exit(1)
	}
	slog.Info("gateway ready",
		"reasoning_model", cfg.ReasoningModel,
		"generation_model", cfg.GenerationModel,
		"embedding_model", cfg.EmbeddingModel,
	)

	trackerOpts := []tracker.Option{tracker.WithRetention(cfg.TrackerRetention)}

	// Database (optional; run history only)
	var db *store.Store
	if cfg.DatabaseURL != "" {
		db, err = store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare run history schema", "error", err)
			os.Exit(1)
		}
		trackerOpts = append(trackerOpts, tracker.WithRecorder(db))
		slog.Info("database connected")
	} else {
		slog.Warn("DATABASE_URL not set, run history is in-memory only")
	}

	// NATS/Hermes (optional; run events and request/reply)
	var hermesClient *hermes.Client
	if cfg.NatsURL != "" {
		hermesClient, err = hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer hermesClient.Close()
		trackerOpts = append(trackerOpts, tracker.WithPublisher(hermesClient))
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS_URL not set, request/reply transport disabled")
	}

	tr := tracker.New(slog.Default(), trackerOpts...)

	// Slack poster (optional; suggestions are still returned to the caller)
	var poster processor.SuggestionPoster
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		poster = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, slog.Default())
		slog.Info("slack poster ready", "channel", cfg.SlackChannel)
	}

	proc := processor.New(gw, tr, poster, processor.Options{
		Host:            cfg.PlatformHost,
		HookConcurrency: cfg.HookConcurrency,
		StageTimeout:    cfg.StageTimeout,
	}, slog.Default())

	if hermesClient != nil {
		if err := proc.RegisterHandlers(hermesClient); err != nil {
			slog.Error("failed to register request handlers", "error", err)
			os.Exit(1)
		}
	}

	// HTTP API
	srv := api.NewServer(cfg.Port, cfg.APIToken, proc, tr, slog.Default())
	if db != nil {
		srv.SetHistory(db)
	}
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	slog.Info("galaxy ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}
	cancel()
	slog.Info("galaxy stopped")
}

// buildGateway selects the completion backend. Embeddings always go through
// OpenAI, so an OpenAI key is required for either provider.
func buildGateway(cfg config.Config) (*llm.Client, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is required")
	}
	openai := llm.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)

	var completer llm.Completer
	switch cfg.LLMProvider {
	case "openai":
		completer = openai
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, errors.New("ANTHROPIC_API_KEY is required for the anthropic provider")
		}
		completer = llm.NewAnthropic(cfg.AnthropicAPIKey)
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}

	return llm.NewClient(completer, openai, llm.Options{
		Models: llm.Models{
			Reasoning:  cfg.ReasoningModel,
			Generation: cfg.GenerationModel,
			Embedding:  cfg.EmbeddingModel,
		},
		RPS:    cfg.GatewayRPS,
		Logger: slog.Default(),
	}), nil
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
