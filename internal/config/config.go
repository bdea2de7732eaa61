package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        int
	NatsURL     string
	NatsToken   string
	DatabaseURL string
	LogLevel    string

	LLMProvider     string // "openai" or "anthropic"
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	ReasoningModel  string
	GenerationModel string
	EmbeddingModel  string
	GatewayRPS      float64

	HookConcurrency  int
	StageTimeout     time.Duration
	TrackerRetention int
	PlatformHost     string

	SlackBotToken string
	SlackChannel  string
	APIToken      string
}

func Load() Config {
	return Config{
		Port:             envInt("GALAXY_PORT", 8760),
		NatsURL:          envStr("NATS_URL", ""),
		NatsToken:        envStr("NATS_TOKEN", ""),
		DatabaseURL:      envStr("DATABASE_URL", ""),
		LogLevel:         envStr("LOG_LEVEL", "info"),
		LLMProvider:      envStr("LLM_PROVIDER", "openai"),
		OpenAIAPIKey:     envStr("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    envStr("OPENAI_BASE_URL", ""),
		AnthropicAPIKey:  envStr("ANTHROPIC_API_KEY", ""),
		ReasoningModel:   envStr("GALAXY_REASONING_MODEL", "o4-mini"),
		GenerationModel:  envStr("GALAXY_GENERATION_MODEL", "gpt-4.1-mini"),
		EmbeddingModel:   envStr("GALAXY_EMBEDDING_MODEL", "text-embedding-3-small"),
		GatewayRPS:       envFloat("GALAXY_GATEWAY_RPS", 5),
		HookConcurrency:  envInt("GALAXY_HOOK_CONCURRENCY", 5),
		StageTimeout:     envDuration("GALAXY_STAGE_TIMEOUT", 60*time.Second),
		TrackerRetention: envInt("GALAXY_TRACKER_RETENTION", 500),
		PlatformHost:     envStr("GALAXY_PLATFORM_HOST", "farcaster.xyz"),
		SlackBotToken:    envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:     envStr("SLACK_HOOKS_CHANNEL", ""),
		APIToken:         envStr("GALAXY_API_TOKEN", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// envDuration accepts Go duration strings ("90s") or a bare number of seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
