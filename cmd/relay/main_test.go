package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/db"
	"github.com/chatrelay/chatrelay/internal/discord"
	"github.com/chatrelay/chatrelay/internal/dummy"
	"github.com/chatrelay/chatrelay/internal/openai"
	"github.com/chatrelay/chatrelay/internal/relay"
)

func dummyConfig() config.Config {
	return config.Config{
		Platform:            config.PlatformDummy,
		ModelProvider:       config.ProviderDummy,
		ChannelID:           "chan",
		TriggerPrefix:       "!",
		HistoryLimit:        15,
		SystemPrompt:        "be brief",
		IncludeTrigger:      true,
		DeliveryMode:        config.DeliveryChunked,
		ChunkSize:           2000,
		Placeholder:         "hold on",
		OpenAIModel:         "gpt-3.5-turbo",
		CircuitThreshold:    5,
		CircuitCooldown:     30 * time.Second,
		DummyFeedScript:     "msg:hello",
		DummySendScript:     "ok",
		DummyProviderScript: "msg:hi there",
	}
}

func TestNewPlatform(t *testing.T) {
	cfg := dummyConfig()
	p, err := newPlatform(&cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*dummy.Platform); !ok {
		t.Fatalf("expected dummy platform, got %T", p)
	}

	cfg.Platform = config.PlatformDiscord
	cfg.DiscordToken = "token"
	p, err = newPlatform(&cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*discord.Client); !ok {
		t.Fatalf("expected discord client, got %T", p)
	}

	cfg.Platform = "irc"
	if _, err := newPlatform(&cfg); err == nil {
		t.Fatal("expected unsupported platform error")
	}
}

func TestNewModelProvider(t *testing.T) {
	cfg := dummyConfig()
	p, err := newModelProvider(&cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*dummy.Provider); !ok {
		t.Fatalf("expected dummy provider, got %T", p)
	}

	cfg.ModelProvider = config.ProviderOpenAI
	cfg.OpenAIAPIKey = "key"
	p, err = newModelProvider(&cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*openai.Client); !ok {
		t.Fatalf("expected openai client, got %T", p)
	}
	if p.Model() != "gpt-3.5-turbo" {
		t.Fatalf("unexpected model: %s", p.Model())
	}

	cfg.ModelProvider = "gemini"
	if _, err := newModelProvider(&cfg); err == nil {
		t.Fatal("expected unsupported provider error")
	}
}

func TestNewDelivery(t *testing.T) {
	cfg := dummyConfig()
	p, _ := dummy.NewPlatform("chan", "", "")
	if d, ok := newDelivery(&cfg, p).(*relay.ChunkedDelivery); !ok || d.Placeholder != "hold on" || d.ChunkSize != 2000 {
		t.Fatalf("unexpected chunked delivery: %#v", d)
	}
	cfg.DeliveryMode = config.DeliveryDirect
	if _, ok := newDelivery(&cfg, p).(*relay.DirectDelivery); !ok {
		t.Fatal("expected direct delivery")
	}
}

func TestNewRelayOptions_DisabledParts(t *testing.T) {
	cfg := dummyConfig()
	cfg.CircuitThreshold = 0
	p, _ := dummy.NewPlatform("chan", "", "")
	prov, _ := dummy.NewProvider("m", "")

	opts := newRelayOptions(&cfg, p, prov, nil, nil)
	if opts.Breaker != nil {
		t.Fatal("expected breaker disabled at threshold 0")
	}
	if opts.Journal != nil {
		t.Fatal("expected nil journal interface")
	}
}

// Runs the dummy feed end to end through the same wiring main uses.
func TestDummyWiring_EndToEnd(t *testing.T) {
	cfg := dummyConfig()
	journal, err := db.Open(t.TempDir() + "/relay.db")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { journal.Close() })

	chat, err := newPlatform(&cfg)
	if err != nil {
		t.Fatal(err)
	}
	provider, err := newModelProvider(&cfg)
	if err != nil {
		t.Fatal(err)
	}
	r, err := relay.New(newRelayOptions(&cfg, chat, provider, journal, nil))
	if err != nil {
		t.Fatal(err)
	}
	if err := chat.Run(context.Background(), r.Handle); err != nil {
		t.Fatal(err)
	}

	actions := chat.(*dummy.Platform).Actions()
	var kinds []string
	for _, a := range actions {
		kinds = append(kinds, a.Kind)
	}
	if got := strings.Join(kinds, ","); got != "typing,reply,edit" {
		t.Fatalf("unexpected actions: %s", got)
	}
	if actions[1].Content != "hold on" || actions[2].Content != "hi there" {
		t.Fatalf("unexpected contents: %+v", actions)
	}
	turns := provider.(*dummy.Provider).LastTurns()
	if len(turns) != 2 || turns[0].Content != "be brief" || turns[1].Content != "hello" {
		t.Fatalf("unexpected window: %+v", turns)
	}

	var n int
	if err := journal.DB.QueryRow(`SELECT COUNT(*) FROM events WHERE event_type = ?`, db.EventReplySent).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected one reply.sent event, got %d", n)
	}
}
