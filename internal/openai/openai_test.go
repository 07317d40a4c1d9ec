package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/chatrelay/chatrelay/internal/conversation"
	"github.com/chatrelay/chatrelay/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(Config{APIKey: "test-key", BaseURL: server.URL + "/", Model: "test-model"})
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func writeCompletion(w http.ResponseWriter, choices []map[string]any) {
	resp := map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "test-model",
		"choices": choices,
		"usage": map[string]any{
			"prompt_tokens":     42,
			"completion_tokens": 7,
			"total_tokens":      49,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func TestChatCompletion_SendsWindow(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
			Name    string `json:"name"`
		} `json:"messages"`
	}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		writeCompletion(w, []map[string]any{
			{"index": 0, "finish_reason": "stop", "message": map[string]any{"role": "assistant", "content": "Hello!"}},
		})
	})

	turns := []conversation.Turn{
		{Role: conversation.RoleSystem, Content: "You are a friendly chatbot."},
		{Role: conversation.RoleUser, Content: "hi", Name: "Jane_Doe"},
		{Role: conversation.RoleAssistant, Content: "hello", Name: "Relay_Bot"},
		{Role: conversation.RoleUser, Content: "anonymous"},
	}
	result, err := client.ChatCompletion(context.Background(), turns)
	if err != nil {
		t.Fatal(err)
	}

	if result.Content != "Hello!" {
		t.Errorf("expected content 'Hello!', got %q", result.Content)
	}
	if result.InputTokens != 42 || result.OutputTokens != 7 {
		t.Errorf("unexpected usage: %+v", result)
	}
	if got.Model != "test-model" {
		t.Errorf("expected model test-model, got %q", got.Model)
	}
	if len(got.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(got.Messages))
	}
	if got.Messages[0].Role != "system" || got.Messages[0].Name != "" {
		t.Errorf("unexpected system message: %+v", got.Messages[0])
	}
	if got.Messages[1].Role != "user" || got.Messages[1].Name != "Jane_Doe" || got.Messages[1].Content != "hi" {
		t.Errorf("unexpected user message: %+v", got.Messages[1])
	}
	if got.Messages[2].Role != "assistant" || got.Messages[2].Name != "Relay_Bot" {
		t.Errorf("unexpected assistant message: %+v", got.Messages[2])
	}
	if got.Messages[3].Name != "" {
		t.Errorf("expected no name on unnamed turn, got %q", got.Messages[3].Name)
	}
}

func TestChatCompletion_EmptyChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(w, []map[string]any{})
	})

	result, err := client.ChatCompletion(context.Background(), []conversation.Turn{{Role: conversation.RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatal(err)
	}
	if result.Content != "" {
		t.Errorf("expected empty content, got %q", result.Content)
	}
	if result.InputTokens != 42 {
		t.Errorf("expected 42 input tokens, got %d", result.InputTokens)
	}
}

func TestChatCompletion_RateLimitedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","type":"requests","code":"rate_limit_exceeded","param":null}}`))
	})

	_, err := client.ChatCompletion(context.Background(), []conversation.Turn{{Role: conversation.RoleUser, Content: "hi"}})
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	if got := model.ClassifyError(err); got != ClassRateLimit {
		t.Errorf("expected class %q, got %q", ClassRateLimit, got)
	}
	if calls.Load() != 1 {
		t.Errorf("expected exactly one request, got %d", calls.Load())
	}
}

func TestChatCompletion_Unauthorized(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key","param":null}}`))
	})

	_, err := client.ChatCompletion(context.Background(), []conversation.Turn{{Role: conversation.RoleUser, Content: "hi"}})
	if got := model.ClassifyError(err); got != ClassAuth {
		t.Errorf("expected class %q, got %q", ClassAuth, got)
	}
}

func TestChatCompletion_TransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client, err := NewClient(Config{APIKey: "k", BaseURL: url + "/"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = client.ChatCompletion(context.Background(), []conversation.Turn{{Role: conversation.RoleUser, Content: "hi"}})
	if err == nil {
		t.Fatal("expected transport error")
	}
	var classified *Error
	if !errors.As(err, &classified) || classified.Class() != ClassTransport {
		t.Errorf("expected transport class, got %v", err)
	}
}

func TestNewClient_Defaults(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected missing API key error")
	}
	client, err := NewClient(Config{APIKey: "k"})
	if err != nil {
		t.Fatal(err)
	}
	if client.Model() != "gpt-3.5-turbo" {
		t.Errorf("expected default model, got %q", client.Model())
	}
}
