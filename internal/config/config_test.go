package config

import (
	"strings"
	"testing"
	"time"
)

func setupRelayEnv(t *testing.T) {
	t.Helper()
	t.Setenv("RELAY_ENV", "test")
	t.Setenv("DISCORD_TOKEN", "test-token")
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("RELAY_CHANNEL_ID", "123")
	t.Setenv("RELAY_PLATFORM", "discord")
	t.Setenv("RELAY_MODEL_PROVIDER", "openai")
}

func TestLoad_Defaults(t *testing.T) {
	setupRelayEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.TriggerPrefix != "!" {
		t.Fatalf("unexpected trigger prefix: %q", cfg.TriggerPrefix)
	}
	if cfg.HistoryLimit != 15 {
		t.Fatalf("unexpected history limit: %d", cfg.HistoryLimit)
	}
	if cfg.SystemPrompt != "You are a friendly chatbot." {
		t.Fatalf("unexpected system prompt: %q", cfg.SystemPrompt)
	}
	if cfg.OpenAIModel != "gpt-3.5-turbo" {
		t.Fatalf("unexpected model: %s", cfg.OpenAIModel)
	}
	if cfg.DeliveryMode != DeliveryChunked || cfg.ChunkSize != 2000 {
		t.Fatalf("unexpected delivery: %s/%d", cfg.DeliveryMode, cfg.ChunkSize)
	}
	if cfg.Placeholder != "Generating response, please wait..." {
		t.Fatalf("unexpected placeholder: %q", cfg.Placeholder)
	}
	if !cfg.IncludeTrigger {
		t.Fatal("expected include trigger by default")
	}
	if cfg.CircuitThreshold != 5 || cfg.CircuitCooldown != 30*time.Second {
		t.Fatalf("unexpected circuit: %d/%s", cfg.CircuitThreshold, cfg.CircuitCooldown)
	}
	if cfg.JournalPath != "./chatrelay.db" {
		t.Fatalf("unexpected journal path: %s", cfg.JournalPath)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("unexpected log level: %s", cfg.LogLevel)
	}
}

func TestLoad_LegacyNames(t *testing.T) {
	t.Setenv("RELAY_ENV", "test")
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("RELAY_CHANNEL_ID", "")
	t.Setenv("TOKEN", "legacy-token")
	t.Setenv("API_KEY", "legacy-key")
	t.Setenv("CHANNEL_ID", "456")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.DiscordToken != "legacy-token" || cfg.OpenAIAPIKey != "legacy-key" || cfg.ChannelID != "456" {
		t.Fatalf("legacy names not honored: %+v", cfg)
	}
}

func TestLoad_RequiresToken(t *testing.T) {
	setupRelayEnv(t)
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("TOKEN", "")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "DISCORD_TOKEN") {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestLoad_DummyPlatformNeedsNoToken(t *testing.T) {
	setupRelayEnv(t)
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("TOKEN", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("API_KEY", "")
	t.Setenv("RELAY_PLATFORM", "dummy")
	t.Setenv("RELAY_MODEL_PROVIDER", "dummy")
	if _, err := Load(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestLoad_RequiresChannel(t *testing.T) {
	setupRelayEnv(t)
	t.Setenv("RELAY_CHANNEL_ID", "")
	t.Setenv("CHANNEL_ID", "")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "RELAY_CHANNEL_ID") {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestLoad_ValidationNamesVariable(t *testing.T) {
	cases := map[string]string{
		"RELAY_HISTORY_LIMIT":            "101",
		"RELAY_CHUNK_SIZE":               "2001",
		"RELAY_DELIVERY_MODE":            "stream",
		"RELAY_PLATFORM":                 "slack",
		"RELAY_MODEL_PROVIDER":           "gemini",
		"OPENAI_TIMEOUT_SECONDS":         "-1",
		"RELAY_CIRCUIT_THRESHOLD":        "abc",
		"RELAY_CIRCUIT_COOLDOWN_SECONDS": "0",
		"RELAY_NODE_ID":                  "1024",
		"RELAY_TRIGGER_PREFIX":           "",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setupRelayEnv(t)
			t.Setenv(key, value)
			_, err := Load()
			if err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			}
			if !strings.Contains(err.Error(), key) {
				t.Fatalf("unexpected err: %v", err)
			}
		})
	}
}

func TestLoad_EmptyJournalPathDisables(t *testing.T) {
	setupRelayEnv(t)
	t.Setenv("RELAY_JOURNAL_PATH", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.JournalPath != "" {
		t.Fatalf("expected journal disabled, got %q", cfg.JournalPath)
	}
}

func TestLoad_Overrides(t *testing.T) {
	setupRelayEnv(t)
	t.Setenv("RELAY_DELIVERY_MODE", "direct")
	t.Setenv("RELAY_INCLUDE_TRIGGER", "false")
	t.Setenv("RELAY_TRIGGER_PREFIX", "?")
	t.Setenv("OPENAI_TIMEOUT_SECONDS", "20")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.DeliveryMode != DeliveryDirect || cfg.IncludeTrigger || cfg.TriggerPrefix != "?" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.OpenAITimeout != 20*time.Second {
		t.Fatalf("unexpected timeout: %s", cfg.OpenAITimeout)
	}
}
