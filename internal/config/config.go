package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	PlatformDiscord = "discord"
	PlatformDummy   = "dummy"

	ProviderOpenAI = "openai"
	ProviderDummy  = "dummy"

	DeliveryChunked = "chunked"
	DeliveryDirect  = "direct"

	// MaxHistoryLimit is the largest page Discord returns for one history fetch.
	MaxHistoryLimit = 100
	// MaxChunkSize is Discord's per-message character limit.
	MaxChunkSize = 2000
)

// Config holds configuration for the relay process.
type Config struct {
	Env      string
	LogLevel string

	Platform       string
	DiscordToken   string
	ChannelID      string
	TriggerPrefix  string
	HistoryLimit   int
	SystemPrompt   string
	IncludeTrigger bool

	DeliveryMode string
	ChunkSize    int
	Placeholder  string

	ModelProvider string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	OpenAITimeout time.Duration

	CircuitThreshold int
	CircuitCooldown  time.Duration

	JournalPath string
	NodeID      int64

	DummyFeedScript     string
	DummySendScript     string
	DummyProviderScript string
}

// IsProduction reports whether RELAY_ENV selects production behavior.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads relay configuration from environment variables. In development
// a .env file in the working directory is loaded first; variables already set
// in the environment win.
func Load() (Config, error) {
	env := envOrDefault("RELAY_ENV", "development")
	if env == "development" {
		_ = godotenv.Load(".env")
	}

	platform := envOrDefault("RELAY_PLATFORM", PlatformDiscord)
	if platform != PlatformDiscord && platform != PlatformDummy {
		return Config{}, fmt.Errorf("RELAY_PLATFORM must be %q or %q, got %q", PlatformDiscord, PlatformDummy, platform)
	}
	modelProvider := envOrDefault("RELAY_MODEL_PROVIDER", ProviderOpenAI)
	if modelProvider != ProviderOpenAI && modelProvider != ProviderDummy {
		return Config{}, fmt.Errorf("RELAY_MODEL_PROVIDER must be %q or %q, got %q", ProviderOpenAI, ProviderDummy, modelProvider)
	}

	discordToken := envFirst("DISCORD_TOKEN", "TOKEN")
	if platform == PlatformDiscord && discordToken == "" {
		return Config{}, fmt.Errorf("DISCORD_TOKEN is required in environment when RELAY_PLATFORM=%s", PlatformDiscord)
	}
	openaiKey := envFirst("OPENAI_API_KEY", "API_KEY")
	if modelProvider == ProviderOpenAI && openaiKey == "" {
		return Config{}, fmt.Errorf("OPENAI_API_KEY is required in environment when RELAY_MODEL_PROVIDER=%s", ProviderOpenAI)
	}
	channelID := envFirst("RELAY_CHANNEL_ID", "CHANNEL_ID")
	if channelID == "" {
		return Config{}, fmt.Errorf("RELAY_CHANNEL_ID is required in environment")
	}

	triggerPrefix := os.Getenv("RELAY_TRIGGER_PREFIX")
	if _, set := os.LookupEnv("RELAY_TRIGGER_PREFIX"); !set {
		triggerPrefix = "!"
	}
	if triggerPrefix == "" {
		return Config{}, fmt.Errorf("RELAY_TRIGGER_PREFIX must not be empty")
	}

	historyLimit, err := envIntInRange("RELAY_HISTORY_LIMIT", 15, 1, MaxHistoryLimit)
	if err != nil {
		return Config{}, err
	}
	chunkSize, err := envIntInRange("RELAY_CHUNK_SIZE", MaxChunkSize, 1, MaxChunkSize)
	if err != nil {
		return Config{}, err
	}

	deliveryMode := envOrDefault("RELAY_DELIVERY_MODE", DeliveryChunked)
	if deliveryMode != DeliveryChunked && deliveryMode != DeliveryDirect {
		return Config{}, fmt.Errorf("RELAY_DELIVERY_MODE must be %q or %q, got %q", DeliveryChunked, DeliveryDirect, deliveryMode)
	}

	timeoutSeconds, err := envIntInRange("OPENAI_TIMEOUT_SECONDS", 0, 0, -1)
	if err != nil {
		return Config{}, err
	}
	threshold, err := envIntInRange("RELAY_CIRCUIT_THRESHOLD", 5, 0, -1)
	if err != nil {
		return Config{}, err
	}
	cooldownSeconds, err := envIntInRange("RELAY_CIRCUIT_COOLDOWN_SECONDS", 30, 1, -1)
	if err != nil {
		return Config{}, err
	}
	nodeID, err := envIntInRange("RELAY_NODE_ID", 1, 0, 1023)
	if err != nil {
		return Config{}, err
	}

	journalPath := "./chatrelay.db"
	if v, set := os.LookupEnv("RELAY_JOURNAL_PATH"); set {
		journalPath = strings.TrimSpace(v)
	}

	defaultLevel := "info"
	if env == "development" {
		defaultLevel = "debug"
	}

	return Config{
		Env:                 env,
		LogLevel:            envOrDefault("RELAY_LOG_LEVEL", defaultLevel),
		Platform:            platform,
		DiscordToken:        discordToken,
		ChannelID:           channelID,
		TriggerPrefix:       triggerPrefix,
		HistoryLimit:        historyLimit,
		SystemPrompt:        envOrDefault("RELAY_SYSTEM_PROMPT", "You are a friendly chatbot."),
		IncludeTrigger:      envBoolOrDefault("RELAY_INCLUDE_TRIGGER", true),
		DeliveryMode:        deliveryMode,
		ChunkSize:           chunkSize,
		Placeholder:         envOrDefault("RELAY_PLACEHOLDER", "Generating response, please wait..."),
		ModelProvider:       modelProvider,
		OpenAIAPIKey:        openaiKey,
		OpenAIBaseURL:       os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:         envOrDefault("OPENAI_MODEL", "gpt-3.5-turbo"),
		OpenAITimeout:       time.Duration(timeoutSeconds) * time.Second,
		CircuitThreshold:    threshold,
		CircuitCooldown:     time.Duration(cooldownSeconds) * time.Second,
		JournalPath:         journalPath,
		NodeID:              int64(nodeID),
		DummyFeedScript:     envOrDefault("RELAY_DUMMY_FEED_SCRIPT", "ok"),
		DummySendScript:     envOrDefault("RELAY_DUMMY_SEND_SCRIPT", "ok"),
		DummyProviderScript: envOrDefault("RELAY_DUMMY_PROVIDER_SCRIPT", "ok"),
	}, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envFirst returns the first non-empty value among keys.
func envFirst(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

// envIntInRange parses key as an int within [lo, hi]. hi < 0 means unbounded.
func envIntInRange(key string, fallback, lo, hi int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	if n < lo || (hi >= 0 && n > hi) {
		if hi < 0 {
			return 0, fmt.Errorf("%s must be >= %d, got %d", key, lo, n)
		}
		return 0, fmt.Errorf("%s must be between %d and %d, got %d", key, lo, hi, n)
	}
	return n, nil
}

func envBoolOrDefault(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "1" || strings.EqualFold(v, "true")
}
