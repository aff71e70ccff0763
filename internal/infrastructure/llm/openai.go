package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"NewsDigest/internal/config"
	"NewsDigest/internal/ports"
)

// ChatClient implements ports.ChatBackend over OpenAI-compatible /chat/completions APIs.
type ChatClient struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
	guard      *guard
}

var _ ports.ChatBackend = (*ChatClient)(nil)

type chatRequest struct {
	Model           string              `json:"model"`
	Messages        []ports.ChatMessage `json:"messages"`
	MaxTokens       int                 `json:"max_tokens"`
	Temperature     float64             `json:"temperature"`
	PresencePenalty float64             `json:"presence_penalty"`
	TopP            float64             `json:"top_p"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewChatClient builds a client from configuration.
func NewChatClient(cfg config.LLMConfig, logger *slog.Logger) *ChatClient {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChatClient{
		endpoint: strings.TrimSuffix(cfg.BaseURL, "/") + "/chat/completions",
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		guard: newGuard("llm-openai", cfg.RequestsPerSecond, logger),
	}
}

// Chat sends one completion request and returns the first choice's content.
func (c *ChatClient) Chat(ctx context.Context, messages []ports.ChatMessage, params ports.ChatParams) (string, error) {
	if c == nil {
		return "", errors.New("chat client is nil")
	}
	if c.apiKey == "" || c.model == "" {
		return "", errors.New("chat client misconfigured")
	}

	body, err := json.Marshal(chatRequest{
		Model:           c.model,
		Messages:        messages,
		MaxTokens:       params.MaxTokens,
		Temperature:     params.Temperature,
		PresencePenalty: params.PresencePenalty,
		TopP:            params.TopP,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	return c.guard.do(ctx, func() (string, error) {
		return c.post(ctx, body)
	})
}

func (c *ChatClient) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("chat completion error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("chat response has no choices")
	}
	return decoded.Choices[0].Message.Content, nil
}
