package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const anthropicURL = "https://api.anthropic.com/v1/messages"

const defaultMaxTokens = 8192

type AnthropicClient struct {
	apiKey    string
	model     string
	maxTokens int
	apiURL    string
	client    *http.Client
}

func NewAnthropicClient(cfg Config) *AnthropicClient {
	url := anthropicURL
	if cfg.BaseURL != "" && cfg.Provider == "anthropic" {
		url = cfg.BaseURL
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &AnthropicClient{
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: maxTokens,
		apiURL:    url,
		client:    pickHTTPClient(cfg.HTTPClient),
	}
}

// SetTestTransport points the client at a test server.
func (c *AnthropicClient) SetTestTransport(url string) {
	c.apiURL = url
}

func (c *AnthropicClient) Name() string {
	return fmt.Sprintf("Anthropic (%s)", c.model)
}

type anthropicRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Chat sends the conversation to the Messages API and returns the first text block.
func (c *AnthropicClient) Chat(ctx context.Context, system string, messages []Message) (Completion, error) {
	reqBody := anthropicRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    system,
		Messages:  messages,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return Completion{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return Completion{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(req)
	if err != nil {
		return Completion{}, fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Completion{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp anthropicError
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return Completion{}, &StatusError{Code: resp.StatusCode, Type: errResp.Error.Type, Message: errResp.Error.Message}
		}
		return Completion{}, &StatusError{Code: resp.StatusCode, Message: string(respBody)}
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return Completion{}, fmt.Errorf("unmarshal response: %w", err)
	}

	if len(apiResp.Content) == 0 {
		return Completion{}, ErrEmptyResponse
	}

	return Completion{
		Text:             apiResp.Content[0].Text,
		PromptTokens:     apiResp.Usage.InputTokens,
		CompletionTokens: apiResp.Usage.OutputTokens,
		HasUsage:         apiResp.Usage.InputTokens > 0 || apiResp.Usage.OutputTokens > 0,
	}, nil
}
