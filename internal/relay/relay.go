// Package relay turns accepted channel messages into chat completions and
// posts the result back to the channel.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chatrelay/chatrelay/internal/control"
	"github.com/chatrelay/chatrelay/internal/conversation"
	"github.com/chatrelay/chatrelay/internal/db"
	"github.com/chatrelay/chatrelay/internal/id"
	"github.com/chatrelay/chatrelay/internal/logging"
	"github.com/chatrelay/chatrelay/internal/model"
	"github.com/chatrelay/chatrelay/internal/platform"
)

// Stages reported on failure.
const (
	StageHistory     = "history_fetch"
	StagePlaceholder = "placeholder"
	StageProvider    = "provider"
	StageDelivery    = "delivery"
)

// DefaultHistoryLimit is how many recent messages are fetched per event.
const DefaultHistoryLimit = 15

// Recorder persists relay events. *db.Journal implements it.
type Recorder interface {
	Record(ctx context.Context, parentID *int64, eventType string, payload map[string]any) (int64, error)
}

// Options configures a Relay. Platform and Provider are required.
type Options struct {
	ChannelID     string
	TriggerPrefix string
	HistoryLimit  int

	Platform  platform.Platform
	Provider  model.Provider
	Assembler conversation.Assembler
	Delivery  Delivery

	// Breaker gates provider calls. nil disables it.
	Breaker *control.CircuitBreaker
	// Journal records relay events. nil disables it.
	Journal Recorder
	// ParentEventID is the journal id of the owning process.
	ParentEventID *int64
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Relay handles one inbound message at a time.
type Relay struct {
	opts Options
}

func New(opts Options) (*Relay, error) {
	if opts.Platform == nil {
		return nil, fmt.Errorf("relay: platform is required")
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("relay: provider is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("relay: channel id is required")
	}
	if opts.TriggerPrefix == "" {
		opts.TriggerPrefix = conversation.DefaultTriggerPrefix
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.Assembler == nil {
		opts.Assembler = &conversation.StandardAssembler{
			SystemPrompt:   conversation.DefaultSystemPrompt,
			TriggerPrefix:  opts.TriggerPrefix,
			IncludeTrigger: true,
		}
	}
	if opts.Delivery == nil {
		opts.Delivery = &ChunkedDelivery{Sender: opts.Platform, Placeholder: DefaultPlaceholder, ChunkSize: DefaultChunkSize}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Relay{opts: opts}, nil
}

// stageError tags a failure with the step that produced it.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return fmt.Sprintf("%s: %v", e.stage, e.err) }
func (e *stageError) Unwrap() error { return e.err }

// Handle processes one message-created event. It never returns an error:
// failures are logged once at ERROR level and journaled, nothing is posted
// to the channel about them.
func (r *Relay) Handle(ctx context.Context, m platform.Message) {
	if !conversation.Accept(m, r.opts.ChannelID, r.opts.TriggerPrefix) {
		return
	}

	relayID := id.New()
	ctx = logging.WithFields(ctx, logging.Fields{
		RelayID:   relayID,
		ChannelID: m.ChannelID,
		MessageID: m.ID,
		Component: "relay",
	})
	started := r.opts.Now()
	eventID := r.record(ctx, r.opts.ParentEventID, db.EventRelayStarted, map[string]any{
		"relay_id":   relayID,
		"channel_id": m.ChannelID,
		"message_id": m.ID,
		"author_id":  m.Author.ID,
	})

	err := r.run(ctx, m, eventID)
	if err == nil {
		return
	}

	stage := ""
	var se *stageError
	if errors.As(err, &se) {
		stage = se.stage
	}
	class := ""
	if stage == StageProvider {
		class = model.ClassifyError(err)
	}
	r.opts.Logger.ErrorContext(ctx, "relay failed",
		"stage", stage,
		"class", class,
		"elapsed_ms", r.opts.Now().Sub(started).Milliseconds(),
		"error", err,
	)
	r.record(ctx, eventID, db.EventRelayFailed, map[string]any{
		"stage": stage,
		"class": class,
	})
}

func (r *Relay) run(ctx context.Context, m platform.Message, eventID *int64) error {
	if err := r.opts.Platform.Typing(ctx, m.ChannelID); err != nil {
		r.opts.Logger.WarnContext(ctx, "typing indicator failed", "error", err)
	}

	recent, err := r.opts.Platform.RecentMessages(ctx, m.ChannelID, r.opts.HistoryLimit)
	if err != nil {
		return &stageError{stage: StageHistory, err: err}
	}
	turns := r.opts.Assembler.Assemble(m, recent, r.opts.Platform.Self())
	r.opts.Logger.DebugContext(ctx, "context assembled", "fetched", len(recent), "turns", len(turns))
	r.record(ctx, eventID, db.EventContextAssembled, map[string]any{
		"fetched": len(recent),
		"turns":   len(turns),
	})

	if b := r.opts.Breaker; b != nil && !b.Allow(r.opts.Now()) {
		r.opts.Logger.WarnContext(ctx, "provider circuit open; dropping message", "class", b.OpenedClass())
		r.record(ctx, eventID, db.EventCircuitRejected, map[string]any{"class": b.OpenedClass()})
		return nil
	}

	placeholder, err := r.opts.Delivery.Announce(ctx, m)
	if err != nil {
		return &stageError{stage: StagePlaceholder, err: err}
	}

	callStarted := r.opts.Now()
	resp, err := r.opts.Provider.ChatCompletion(ctx, turns)
	if err != nil {
		r.recordProviderFailure(ctx, eventID, err)
		return &stageError{stage: StageProvider, err: err}
	}
	if r.opts.Breaker != nil {
		r.opts.Breaker.RecordSuccess()
	}
	r.record(ctx, eventID, db.EventCompletionCompleted, map[string]any{
		"model":         r.opts.Provider.Model(),
		"input_tokens":  resp.InputTokens,
		"output_tokens": resp.OutputTokens,
		"reply_chars":   len([]rune(resp.Content)),
		"latency_ms":    r.opts.Now().Sub(callStarted).Milliseconds(),
	})

	sent, err := r.opts.Delivery.Deliver(ctx, m, placeholder, resp.Content)
	if err != nil {
		return &stageError{stage: StageDelivery, err: err}
	}
	r.opts.Logger.InfoContext(ctx, "reply sent", "messages", sent, "reply_chars", len([]rune(resp.Content)))
	r.record(ctx, eventID, db.EventReplySent, map[string]any{"messages": sent})
	return nil
}

func (r *Relay) recordProviderFailure(ctx context.Context, eventID *int64, err error) {
	b := r.opts.Breaker
	if b == nil {
		return
	}
	class := model.ClassifyError(err)
	if b.RecordFailure(class, r.opts.Now()) {
		r.opts.Logger.WarnContext(ctx, "provider circuit opened", "class", class, "cooldown", b.Cooldown)
		r.record(ctx, eventID, db.EventCircuitOpened, map[string]any{"class": class})
	}
}

// record writes a journal event and returns its id, or nil when journaling is
// off or the write failed.
func (r *Relay) record(ctx context.Context, parentID *int64, eventType string, payload map[string]any) *int64 {
	if r.opts.Journal == nil {
		return nil
	}
	eventID, err := r.opts.Journal.Record(ctx, parentID, eventType, payload)
	if err != nil {
		r.opts.Logger.WarnContext(ctx, "journal write failed", "event", eventType, "error", err)
		return nil
	}
	return &eventID
}
