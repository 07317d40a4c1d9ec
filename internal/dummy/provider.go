package dummy

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/chatrelay/chatrelay/internal/conversation"
	"github.com/chatrelay/chatrelay/internal/model"
)

// Provider is a scripted model.Provider.
type Provider struct {
	mu       sync.Mutex
	model    string
	script   *scriptRunner
	calls    int
	lastTurn []conversation.Turn
}

func NewProvider(model, script string) (*Provider, error) {
	runner, err := newRunner(script)
	if err != nil {
		return nil, err
	}
	return &Provider{model: model, script: runner}, nil
}

func (p *Provider) Model() string { return p.model }

// Calls returns how many completions were requested.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// LastTurns returns the window of the most recent request.
func (p *Provider) LastTurns() []conversation.Turn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]conversation.Turn(nil), p.lastTurn...)
}

func (p *Provider) ChatCompletion(ctx context.Context, turns []conversation.Turn) (model.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	p.lastTurn = append([]conversation.Turn(nil), turns...)
	if err := ctx.Err(); err != nil {
		return model.CompletionResponse{}, err
	}

	resp := model.CompletionResponse{InputTokens: len(turns), OutputTokens: 1}
	a := p.script.next()
	switch a.kind {
	case "err":
		return model.CompletionResponse{}, &Error{Op: "provider", class: emptyAs(a.arg, "provider_api")}
	case "sleep":
		sleepMillis(a.arg)
		resp.Content = "dummy-after-sleep"
	case "msg":
		resp.Content = a.arg
	case "msgb64":
		raw, err := base64.StdEncoding.DecodeString(a.arg)
		if err != nil {
			return model.CompletionResponse{}, fmt.Errorf("dummy provider msgb64 decode failed: %w", err)
		}
		resp.Content = string(raw)
	default:
		resp.Content = "dummy-ok"
	}
	return resp, nil
}
