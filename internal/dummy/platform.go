package dummy

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/chatrelay/chatrelay/internal/platform"
)

// Action kinds recorded by Platform.
const (
	ActionTyping = "typing"
	ActionSend   = "send"
	ActionReply  = "reply"
	ActionEdit   = "edit"
)

// Action is one outbound call made against the Platform.
type Action struct {
	Kind      string
	ChannelID string
	MessageID string // message created or edited
	ReplyTo   string // trigger id for replies
	Content   string
}

var (
	// Bot is the identity the dummy platform reports as its own.
	Bot = platform.Author{ID: "bot", Username: "Relay Bot", Bot: true}
	// User authors every scripted inbound message.
	User = platform.Author{ID: "user", Username: "Jane Doe"}
)

// Platform is an in-memory platform.Platform. Fed and sent messages share
// one channel history.
type Platform struct {
	mu        sync.Mutex
	channelID string
	feed      *scriptRunner
	send      *scriptRunner
	history   []platform.Message
	actions   []Action
	seq       int64
	epoch     time.Time
	fetchErr  error
}

func NewPlatform(channelID, feedScript, sendScript string) (*Platform, error) {
	feed, err := newRunner(feedScript)
	if err != nil {
		return nil, err
	}
	send, err := newRunner(sendScript)
	if err != nil {
		return nil, err
	}
	return &Platform{
		channelID: channelID,
		feed:      feed,
		send:      send,
		epoch:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

func (p *Platform) Self() platform.Author { return Bot }

// Seed appends messages to the channel history.
func (p *Platform) Seed(msgs ...platform.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, msgs...)
}

// Post creates a message from author in the channel history and returns it.
func (p *Platform) Post(author platform.Author, content string) platform.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.appendLocked(p.channelID, author, content)
}

// FailHistory makes RecentMessages return err. nil clears it.
func (p *Platform) FailHistory(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetchErr = err
}

// Actions returns the outbound calls made so far.
func (p *Platform) Actions() []Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Action(nil), p.actions...)
}

func (p *Platform) appendLocked(channelID string, author platform.Author, content string) platform.Message {
	p.seq++
	m := platform.Message{
		ID:        strconv.FormatInt(p.seq, 10),
		ChannelID: channelID,
		Author:    author,
		Content:   content,
		CreatedAt: p.epoch.Add(time.Duration(p.seq) * time.Second),
	}
	p.history = append(p.history, m)
	return m
}

// RecentMessages returns the newest messages first, as Discord does.
func (p *Platform) RecentMessages(ctx context.Context, channelID string, limit int) ([]platform.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	var out []platform.Message
	for _, m := range p.history {
		if m.ChannelID == channelID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (p *Platform) Typing(ctx context.Context, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actions = append(p.actions, Action{Kind: ActionTyping, ChannelID: channelID})
	return nil
}

func (p *Platform) Send(ctx context.Context, channelID, content string) (platform.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.nextSendLocked(); err != nil {
		return platform.Message{}, err
	}
	m := p.appendLocked(channelID, Bot, content)
	p.actions = append(p.actions, Action{Kind: ActionSend, ChannelID: channelID, MessageID: m.ID, Content: content})
	return m, nil
}

func (p *Platform) Reply(ctx context.Context, to platform.Message, content string) (platform.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.nextSendLocked(); err != nil {
		return platform.Message{}, err
	}
	m := p.appendLocked(to.ChannelID, Bot, content)
	p.actions = append(p.actions, Action{Kind: ActionReply, ChannelID: to.ChannelID, MessageID: m.ID, ReplyTo: to.ID, Content: content})
	return m, nil
}

func (p *Platform) Edit(ctx context.Context, msg platform.Message, content string) (platform.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.nextSendLocked(); err != nil {
		return platform.Message{}, err
	}
	for i := range p.history {
		if p.history[i].ID == msg.ID {
			p.history[i].Content = content
			msg = p.history[i]
			break
		}
	}
	p.actions = append(p.actions, Action{Kind: ActionEdit, ChannelID: msg.ChannelID, MessageID: msg.ID, Content: content})
	return msg, nil
}

func (p *Platform) nextSendLocked() error {
	a := p.send.next()
	switch a.kind {
	case "err":
		return &Error{Op: "send", class: emptyAs(a.arg, "platform_api")}
	case "sleep":
		sleepMillis(a.arg)
	}
	return nil
}

// Close is a no-op.
func (p *Platform) Close() error { return nil }

// Run plays the feed script once, delivering each msg/msgb64 action to
// handler as a message from User. It returns when the script is exhausted or
// ctx is done.
func (p *Platform) Run(ctx context.Context, handler platform.Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		p.mu.Lock()
		if p.feed.exhausted() {
			p.mu.Unlock()
			return nil
		}
		a := p.feed.next()
		p.mu.Unlock()

		switch a.kind {
		case "msg":
			handler(ctx, p.Post(User, a.arg))
		case "msgb64":
			raw, err := base64.StdEncoding.DecodeString(a.arg)
			if err != nil {
				return fmt.Errorf("dummy feed msgb64 decode failed: %w", err)
			}
			handler(ctx, p.Post(User, string(raw)))
		case "sleep":
			sleepMillis(a.arg)
		case "err":
			slog.WarnContext(ctx, "dummy feed error", "class", emptyAs(a.arg, "platform_api"))
		}
	}
}
