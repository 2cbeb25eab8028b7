package ai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/portfolio-ai/backend/internal/config"
)

// NewStrategies builds the configured strategies in CHAT_STRATEGIES order.
// Hosted providers without credentials are skipped with a warning so the
// service still starts and answers from local rules.
func NewStrategies(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]Strategy, error) {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{}
	strategies := make([]Strategy, 0, len(cfg.Chat.Strategies))

	for _, name := range cfg.Chat.Strategies {
		switch name {
		case config.StrategyOllama:
			strategies = append(strategies, NewOllamaStrategy(
				cfg.Ollama.BaseURL,
				cfg.Ollama.Model,
				cfg.Ollama.Temperature,
				cfg.Ollama.NumCtx,
				httpClient,
			))

		case config.StrategyOpenAI:
			if !cfg.OpenAI.Enabled() {
				logger.Warn("skipping strategy without credentials", "strategy", name)
				continue
			}
			s, err := NewOpenAIStrategy(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model, httpClient)
			if err != nil {
				return nil, err
			}
			strategies = append(strategies, s)

		case config.StrategyArk:
			if !cfg.Ark.Enabled() {
				logger.Warn("skipping strategy without credentials", "strategy", name)
				continue
			}
			chatModel, err := cfg.Ark.NewChatModel(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to create ark chat model: %w", err)
			}
			s, err := NewArkStrategy(ctx, chatModel)
			if err != nil {
				return nil, err
			}
			strategies = append(strategies, s)

		case config.StrategyGemini:
			if !cfg.Gemini.Enabled() {
				logger.Warn("skipping strategy without credentials", "strategy", name)
				continue
			}
			s, err := NewGeminiStrategy(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, "", httpClient)
			if err != nil {
				return nil, err
			}
			strategies = append(strategies, s)

		default:
			return nil, fmt.Errorf("unknown strategy %q", name)
		}
	}

	names := make([]string, len(strategies))
	for i, s := range strategies {
		names[i] = s.Name()
	}
	logger.Info("remote strategies configured", "strategies", names)
	return strategies, nil
}
