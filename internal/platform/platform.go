package platform

import (
	"context"
	"time"
)

// Author identifies who wrote a message.
type Author struct {
	ID       string
	Username string
	Bot      bool
}

// Message is a chat message as seen by the relay. It is owned by the
// platform and treated as read-only.
type Message struct {
	ID        string
	ChannelID string
	Author    Author
	Content   string
	CreatedAt time.Time
}

// Handler receives inbound message-created events.
type Handler func(ctx context.Context, m Message)

// History reads messages the platform already retains.
type History interface {
	// RecentMessages returns up to limit of the newest messages in a channel.
	// Ordering is platform-defined.
	RecentMessages(ctx context.Context, channelID string, limit int) ([]Message, error)
}

// Sender writes to a channel.
type Sender interface {
	Typing(ctx context.Context, channelID string) error
	Send(ctx context.Context, channelID, content string) (Message, error)
	Reply(ctx context.Context, to Message, content string) (Message, error)
	Edit(ctx context.Context, msg Message, content string) (Message, error)
}

// Platform is the chat platform abstraction used by the relay.
type Platform interface {
	History
	Sender
	// Self returns the bot's own identity. It is zero until the platform
	// has finished logging in.
	Self() Author
}
