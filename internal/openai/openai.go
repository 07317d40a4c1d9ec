package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/chatrelay/chatrelay/internal/conversation"
	"github.com/chatrelay/chatrelay/internal/model"
)

// DefaultModel is the chat model used when none is configured.
const DefaultModel = openaisdk.ChatModelGPT3_5Turbo

// Error classes reported through model.ClassifyError.
const (
	ClassAuth      = "provider_auth"
	ClassRateLimit = "provider_rate_limit"
	ClassAPI       = "provider_api"
	ClassTransport = "provider_transport"
)

// Config holds client settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// Timeout bounds a single request. Zero keeps the SDK default.
	Timeout time.Duration
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client sends one chat completion request per call. It never retries.
type Client struct {
	client openaisdk.Client
	model  string
}

// NewClient creates an OpenAI client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultModel
	}
	return &Client{
		client: openaisdk.NewClient(opts...),
		model:  modelName,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// ChatCompletion sends the window and returns the first choice's content.
// No choices yields empty content, not an error.
func (c *Client) ChatCompletion(ctx context.Context, turns []conversation.Turn) (model.CompletionResponse, error) {
	params := openaisdk.ChatCompletionNewParams{
		Model:    c.model,
		Messages: convertTurns(turns),
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return model.CompletionResponse{}, classify(err)
	}

	slog.DebugContext(ctx, "chat completion finished",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"choices", len(resp.Choices))

	result := model.CompletionResponse{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}
	if len(resp.Choices) > 0 {
		result.Content = resp.Choices[0].Message.Content
	}
	return result, nil
}

func convertTurns(turns []conversation.Turn) []openaisdk.ChatCompletionMessageParamUnion {
	result := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case conversation.RoleSystem:
			result = append(result, openaisdk.SystemMessage(t.Content))
		case conversation.RoleUser:
			if t.Name == "" {
				result = append(result, openaisdk.UserMessage(t.Content))
				continue
			}
			result = append(result, openaisdk.ChatCompletionMessageParamUnion{
				OfUser: &openaisdk.ChatCompletionUserMessageParam{
					Name: openaisdk.String(t.Name),
					Content: openaisdk.ChatCompletionUserMessageParamContentUnion{
						OfString: openaisdk.String(t.Content),
					},
				},
			})
		case conversation.RoleAssistant:
			if t.Name == "" {
				result = append(result, openaisdk.AssistantMessage(t.Content))
				continue
			}
			result = append(result, openaisdk.ChatCompletionMessageParamUnion{
				OfAssistant: &openaisdk.ChatCompletionAssistantMessageParam{
					Name: openaisdk.String(t.Name),
					Content: openaisdk.ChatCompletionAssistantMessageParamContentUnion{
						OfString: openaisdk.String(t.Content),
					},
				},
			})
		}
	}
	return result
}

// Error is a classified completion failure.
type Error struct {
	class string
	err   error
}

func (e *Error) Error() string { return fmt.Sprintf("openai chat completion (%s): %v", e.class, e.err) }
func (e *Error) Unwrap() error { return e.err }
func (e *Error) Class() string { return e.class }

func classify(err error) error {
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return &Error{class: ClassAuth, err: err}
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return &Error{class: ClassRateLimit, err: err}
		default:
			return &Error{class: ClassAPI, err: err}
		}
	}
	return &Error{class: ClassTransport, err: err}
}
