// Package llm wraps the chat-completion APIs that back conversation agents.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const defaultHTTPTimeout = 120 * time.Second

// ErrEmptyResponse is returned when the provider answers without any text.
var ErrEmptyResponse = errors.New("empty response content")

// Message is one turn handed to the model. Role is "user" or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion is the generated text plus token usage, when the provider reports it.
type Completion struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	HasUsage         bool
}

// Model is a chat-completion capability.
type Model interface {
	Chat(ctx context.Context, system string, messages []Message) (Completion, error)
	Name() string
}

// StatusError is a non-2xx answer from a provider.
type StatusError struct {
	Code    int
	Type    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("api error %d: %s: %s", e.Code, e.Type, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}

// Retryable reports whether the same request may succeed later.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Config describes how to build a Model.
type Config struct {
	Provider   string // "openai" or "anthropic"
	APIKey     string
	Model      string
	BaseURL    string
	MaxTokens  int
	HTTPClient *http.Client
}

// New builds the provider client named by cfg.Provider.
func New(cfg Config) (Model, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("api key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIClient(cfg), nil
	case "anthropic":
		return NewAnthropicClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func pickHTTPClient(custom *http.Client) *http.Client {
	if custom != nil {
		return custom
	}
	return &http.Client{Timeout: defaultHTTPTimeout}
}
