package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultOpenAIBase = "https://api.openai.com/v1"

// OpenAIClient talks to any OpenAI-compatible chat/completions endpoint,
// including Gemini's compatibility layer.
type OpenAIClient struct {
	apiKey string
	model  string
	base   string
	client *http.Client
}

func NewOpenAIClient(cfg Config) *OpenAIClient {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultOpenAIBase
	}
	return &OpenAIClient{
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		base:   base,
		client: pickHTTPClient(cfg.HTTPClient),
	}
}

func (c *OpenAIClient) Name() string {
	return fmt.Sprintf("OpenAI-compatible (%s)", c.model)
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *OpenAIClient) Chat(ctx context.Context, system string, messages []Message) (Completion, error) {
	msgs := make([]Message, 0, len(messages)+1)
	if system != "" {
		msgs = append(msgs, Message{Role: "system", Content: system})
	}
	msgs = append(msgs, messages...)

	payload := map[string]any{
		"model":    c.model,
		"messages": msgs,
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return Completion{}, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/chat/completions", c.base)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return Completion{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Completion{}, fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Completion{}, fmt.Errorf("read response: %w", err)
	}

	var parsed openAIResponse
	decodeErr := json.Unmarshal(body, &parsed)

	if resp.StatusCode >= 400 {
		if decodeErr == nil && parsed.Error != nil {
			return Completion{}, &StatusError{Code: resp.StatusCode, Type: parsed.Error.Type, Message: parsed.Error.Message}
		}
		return Completion{}, &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	if decodeErr != nil {
		return Completion{}, fmt.Errorf("unmarshal response: %w", decodeErr)
	}
	if len(parsed.Choices) == 0 {
		return Completion{}, ErrEmptyResponse
	}

	out := Completion{Text: parsed.Choices[0].Message.Content}
	if parsed.Usage != nil {
		out.PromptTokens = parsed.Usage.PromptTokens
		out.CompletionTokens = parsed.Usage.CompletionTokens
		out.HasUsage = true
	}
	return out, nil
}
