// Package discord adapts a discordgo session to the platform interfaces.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/chatrelay/chatrelay/internal/platform"
)

// Intents requested at login. MessageContent is privileged and must be
// enabled for the application in the developer portal.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsMessageContent

// Client is a discordgo-backed platform.Platform.
type Client struct {
	session *discordgo.Session

	mu   sync.RWMutex
	self platform.Author
}

// NewClient creates a session for a bot token. No connection is made until
// Open. requestTimeout bounds each REST call; 0 keeps the discordgo default.
func NewClient(token string, requestTimeout time.Duration) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("discord token is required")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = Intents
	// One message event at a time.
	s.SyncEvents = true
	if requestTimeout > 0 {
		s.Client.Timeout = requestTimeout
	}

	c := &Client{session: s}
	s.AddHandler(c.onReady)
	return c, nil
}

// Session exposes the underlying session.
func (c *Client) Session() *discordgo.Session { return c.session }

// OnMessage registers handler for message-created events. ctx is passed
// through to every invocation.
func (c *Client) OnMessage(ctx context.Context, handler platform.Handler) {
	c.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m == nil || m.Message == nil {
			return
		}
		handler(ctx, toMessage(m.Message))
	})
}

// Open logs in and starts the gateway connection.
func (c *Client) Open() error {
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("discord login: %w", err)
	}
	return nil
}

// Run registers handler, logs in and blocks until ctx is done.
func (c *Client) Run(ctx context.Context, handler platform.Handler) error {
	c.OnMessage(ctx, handler)
	if err := c.Open(); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (c *Client) Close() error {
	return c.session.Close()
}

func (c *Client) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r == nil || r.User == nil {
		return
	}
	c.mu.Lock()
	c.self = toAuthor(r.User)
	c.mu.Unlock()
	slog.Info("bot is online", "component", "discord", "bot_id", r.User.ID, "bot_username", r.User.Username)
}

// Self returns the identity recorded from the Ready event.
func (c *Client) Self() platform.Author {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.self
}

// RecentMessages returns up to limit messages, newest first as Discord
// returns them.
func (c *Client) RecentMessages(ctx context.Context, channelID string, limit int) ([]platform.Message, error) {
	msgs, err := c.session.ChannelMessages(channelID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch channel messages: %w", err)
	}
	out := make([]platform.Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		out = append(out, toMessage(m))
	}
	return out, nil
}

func (c *Client) Typing(ctx context.Context, channelID string) error {
	if err := c.session.ChannelTyping(channelID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send typing: %w", err)
	}
	return nil
}

func (c *Client) Send(ctx context.Context, channelID, content string) (platform.Message, error) {
	m, err := c.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return platform.Message{}, fmt.Errorf("send message: %w", err)
	}
	return toMessage(m), nil
}

func (c *Client) Reply(ctx context.Context, to platform.Message, content string) (platform.Message, error) {
	ref := &discordgo.MessageReference{MessageID: to.ID, ChannelID: to.ChannelID}
	m, err := c.session.ChannelMessageSendReply(to.ChannelID, content, ref, discordgo.WithContext(ctx))
	if err != nil {
		return platform.Message{}, fmt.Errorf("send reply: %w", err)
	}
	return toMessage(m), nil
}

func (c *Client) Edit(ctx context.Context, msg platform.Message, content string) (platform.Message, error) {
	m, err := c.session.ChannelMessageEdit(msg.ChannelID, msg.ID, content, discordgo.WithContext(ctx))
	if err != nil {
		return platform.Message{}, fmt.Errorf("edit message: %w", err)
	}
	return toMessage(m), nil
}

func toAuthor(u *discordgo.User) platform.Author {
	if u == nil {
		return platform.Author{}
	}
	return platform.Author{ID: u.ID, Username: u.Username, Bot: u.Bot}
}

func toMessage(m *discordgo.Message) platform.Message {
	created := m.Timestamp
	if created.IsZero() {
		if ts, err := discordgo.SnowflakeTimestamp(m.ID); err == nil {
			created = ts
		}
	}
	return platform.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		Author:    toAuthor(m.Author),
		Content:   m.Content,
		CreatedAt: created,
	}
}
