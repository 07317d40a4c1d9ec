package model

import (
	"context"
	"errors"

	"github.com/chatrelay/chatrelay/internal/conversation"
)

// CompletionResponse is the common response model for model providers.
type CompletionResponse struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Provider is the completion provider abstraction used by the relay.
type Provider interface {
	ChatCompletion(ctx context.Context, turns []conversation.Turn) (CompletionResponse, error)
	Model() string
}

// ClassUnknown is reported for errors that carry no class.
const ClassUnknown = "unknown"

// ClassifyError returns the error class of a provider failure, used to key
// the circuit breaker.
func ClassifyError(err error) string {
	var c interface{ Class() string }
	if errors.As(err, &c) {
		return c.Class()
	}
	return ClassUnknown
}
