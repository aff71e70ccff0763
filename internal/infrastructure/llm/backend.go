package llm

import (
	"context"
	"fmt"
	"log/slog"

	"NewsDigest/internal/config"
	"NewsDigest/internal/ports"
)

// New selects the backend by cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (ports.ChatBackend, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewChatClient(cfg, logger), nil
	case "gemini":
		client, err := NewGeminiClient(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
