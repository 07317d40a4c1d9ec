package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/control"
	"github.com/chatrelay/chatrelay/internal/conversation"
	"github.com/chatrelay/chatrelay/internal/db"
	"github.com/chatrelay/chatrelay/internal/discord"
	"github.com/chatrelay/chatrelay/internal/dummy"
	"github.com/chatrelay/chatrelay/internal/id"
	"github.com/chatrelay/chatrelay/internal/logging"
	"github.com/chatrelay/chatrelay/internal/model"
	"github.com/chatrelay/chatrelay/internal/openai"
	"github.com/chatrelay/chatrelay/internal/platform"
	"github.com/chatrelay/chatrelay/internal/relay"
)

// chatPlatform is a platform that can deliver inbound events.
type chatPlatform interface {
	platform.Platform
	Run(ctx context.Context, handler platform.Handler) error
	Close() error
}

// discordRequestTimeout bounds each Discord REST call.
const discordRequestTimeout = 20 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatal("invalid configuration", err)
	}
	logging.Setup(os.Stderr, logging.Options{
		JSON:  cfg.IsProduction(),
		Level: logging.ParseLevel(cfg.LogLevel),
	})

	if err := id.Init(cfg.NodeID); err != nil {
		fatal("failed to init id node", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var journal *db.Journal
	var processEventID *int64
	if cfg.JournalPath != "" {
		journal, err = db.Open(cfg.JournalPath)
		if err != nil {
			fatal("failed to open journal", err)
		}
		defer journal.Close()

		eventID, err := journal.Record(ctx, nil, db.EventProcessStarted, map[string]any{
			"role":     "relay",
			"pid":      os.Getpid(),
			"platform": cfg.Platform,
			"provider": cfg.ModelProvider,
			"delivery": cfg.DeliveryMode,
		})
		if err != nil {
			slog.Warn("failed to log process.started", "error", err)
		} else {
			processEventID = &eventID
		}
	}

	chat, err := newPlatform(&cfg)
	if err != nil {
		fatal("failed to init platform", err)
	}
	defer chat.Close()

	provider, err := newModelProvider(&cfg)
	if err != nil {
		fatal("failed to init model provider", err)
	}

	r, err := relay.New(newRelayOptions(&cfg, chat, provider, journal, processEventID))
	if err != nil {
		fatal("failed to init relay", err)
	}

	slog.Info("relay starting",
		"platform", cfg.Platform,
		"channel_id", cfg.ChannelID,
		"provider", cfg.ModelProvider,
		"model", provider.Model(),
		"delivery", cfg.DeliveryMode,
		"history_limit", cfg.HistoryLimit,
	)
	runErr := chat.Run(ctx, r.Handle)

	if journal != nil {
		reason := "signal"
		if runErr != nil {
			reason = "error"
		} else if ctx.Err() == nil {
			reason = "feed_exhausted"
		}
		if _, err := journal.Record(context.Background(), processEventID, db.EventProcessStopped, map[string]any{"reason": reason}); err != nil {
			slog.Warn("failed to log process.stopped", "error", err)
		}
	}
	if runErr != nil {
		fatal("platform stopped", runErr)
	}
	slog.Info("relay stopped")
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func newPlatform(cfg *config.Config) (chatPlatform, error) {
	switch cfg.Platform {
	case config.PlatformDiscord:
		return discord.NewClient(cfg.DiscordToken, discordRequestTimeout)
	case config.PlatformDummy:
		return dummy.NewPlatform(cfg.ChannelID, cfg.DummyFeedScript, cfg.DummySendScript)
	default:
		return nil, fmt.Errorf("unsupported platform: %s", cfg.Platform)
	}
}

func newModelProvider(cfg *config.Config) (model.Provider, error) {
	switch cfg.ModelProvider {
	case config.ProviderOpenAI:
		return openai.NewClient(openai.Config{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.OpenAITimeout,
		})
	case config.ProviderDummy:
		return dummy.NewProvider(cfg.OpenAIModel, cfg.DummyProviderScript)
	default:
		return nil, fmt.Errorf("unsupported model provider: %s", cfg.ModelProvider)
	}
}

func newDelivery(cfg *config.Config, sender platform.Sender) relay.Delivery {
	if cfg.DeliveryMode == config.DeliveryDirect {
		return &relay.DirectDelivery{Sender: sender}
	}
	return &relay.ChunkedDelivery{
		Sender:      sender,
		Placeholder: cfg.Placeholder,
		ChunkSize:   cfg.ChunkSize,
	}
}

func newRelayOptions(cfg *config.Config, chat platform.Platform, provider model.Provider, journal *db.Journal, parentID *int64) relay.Options {
	opts := relay.Options{
		ChannelID:     cfg.ChannelID,
		TriggerPrefix: cfg.TriggerPrefix,
		HistoryLimit:  cfg.HistoryLimit,
		Platform:      chat,
		Provider:      provider,
		Assembler: &conversation.StandardAssembler{
			SystemPrompt:   cfg.SystemPrompt,
			TriggerPrefix:  cfg.TriggerPrefix,
			IncludeTrigger: cfg.IncludeTrigger,
		},
		Delivery:      newDelivery(cfg, chat),
		ParentEventID: parentID,
	}
	if cfg.CircuitThreshold > 0 {
		opts.Breaker = control.NewCircuitBreaker(cfg.CircuitThreshold, cfg.CircuitCooldown)
	}
	// A nil *db.Journal must stay a nil interface.
	if journal != nil {
		opts.Journal = journal
	}
	return opts
}
