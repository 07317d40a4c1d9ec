package relay

import (
	"context"
	"fmt"

	"github.com/chatrelay/chatrelay/internal/platform"
)

// DefaultChunkSize is Discord's per-message character limit.
const DefaultChunkSize = 2000

// DefaultPlaceholder is posted while the completion is in flight.
const DefaultPlaceholder = "Generating response, please wait..."

// Delivery posts a completion back to the channel.
type Delivery interface {
	// Announce runs before the completion request. It may return a message
	// that Deliver later replaces.
	Announce(ctx context.Context, trigger platform.Message) (*platform.Message, error)
	// Deliver posts text. placeholder is whatever Announce returned.
	Deliver(ctx context.Context, trigger platform.Message, placeholder *platform.Message, text string) (int, error)
}

// Chunk splits text into pieces of at most size characters (runes). Joining
// the pieces reproduces text; empty text yields no pieces.
func Chunk(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// ChunkedDelivery replies to the trigger with a placeholder, then edits the
// placeholder with the first chunk and sends the rest as new messages.
type ChunkedDelivery struct {
	Sender      platform.Sender
	Placeholder string
	ChunkSize   int
}

func (d *ChunkedDelivery) Announce(ctx context.Context, trigger platform.Message) (*platform.Message, error) {
	text := d.Placeholder
	if text == "" {
		text = DefaultPlaceholder
	}
	m, err := d.Sender.Reply(ctx, trigger, text)
	if err != nil {
		return nil, fmt.Errorf("post placeholder: %w", err)
	}
	return &m, nil
}

// Deliver returns the number of messages edited or sent.
func (d *ChunkedDelivery) Deliver(ctx context.Context, trigger platform.Message, placeholder *platform.Message, text string) (int, error) {
	chunks := Chunk(text, d.ChunkSize)
	if placeholder == nil {
		return 0, fmt.Errorf("chunked delivery without placeholder")
	}
	if len(chunks) == 0 {
		if _, err := d.Sender.Edit(ctx, *placeholder, ""); err != nil {
			return 0, fmt.Errorf("edit placeholder: %w", err)
		}
		return 1, nil
	}
	if _, err := d.Sender.Edit(ctx, *placeholder, chunks[0]); err != nil {
		return 0, fmt.Errorf("edit placeholder: %w", err)
	}
	for i, chunk := range chunks[1:] {
		if _, err := d.Sender.Send(ctx, trigger.ChannelID, chunk); err != nil {
			return i + 1, fmt.Errorf("send chunk %d/%d: %w", i+2, len(chunks), err)
		}
	}
	return len(chunks), nil
}

// DirectDelivery sends the whole completion as one new channel message. The
// platform rejects text above its length limit.
type DirectDelivery struct {
	Sender platform.Sender
}

func (d *DirectDelivery) Announce(ctx context.Context, trigger platform.Message) (*platform.Message, error) {
	return nil, nil
}

func (d *DirectDelivery) Deliver(ctx context.Context, trigger platform.Message, _ *platform.Message, text string) (int, error) {
	if _, err := d.Sender.Send(ctx, trigger.ChannelID, text); err != nil {
		return 0, fmt.Errorf("send reply: %w", err)
	}
	return 1, nil
}
