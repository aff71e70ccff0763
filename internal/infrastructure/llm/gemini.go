package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"NewsDigest/internal/config"
	"NewsDigest/internal/ports"
)

// GeminiClient implements ports.ChatBackend with the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
	guard  *guard
}

var _ ports.ChatBackend = (*GeminiClient)(nil)

// NewGeminiClient connects to the Gemini API. BaseURL overrides the public endpoint.
func NewGeminiClient(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  &http.Client{Timeout: timeout},
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		model:  cfg.Model,
		guard:  newGuard("llm-gemini", cfg.RequestsPerSecond, logger),
	}, nil
}

// Chat maps system messages to the system instruction and user messages to contents.
func (g *GeminiClient) Chat(ctx context.Context, messages []ports.ChatMessage, params ports.ChatParams) (string, error) {
	var (
		system   []string
		contents []*genai.Content
	)
	for _, m := range messages {
		if m.Role == ports.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
	}
	if len(contents) == 0 {
		return "", errors.New("gemini: no user message")
	}

	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(params.MaxTokens),
		Temperature:     genai.Ptr(float32(params.Temperature)),
		TopP:            genai.Ptr(float32(params.TopP)),
		PresencePenalty: genai.Ptr(float32(params.PresencePenalty)),
	}
	if len(system) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}}}
	}

	return g.guard.do(ctx, func() (string, error) {
		result, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
		if err != nil {
			return "", fmt.Errorf("gemini generate: %w", err)
		}
		if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil ||
			len(result.Candidates[0].Content.Parts) == 0 {
			return "", errors.New("gemini returned no candidates")
		}

		var sb strings.Builder
		for _, part := range result.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
		return sb.String(), nil
	})
}
