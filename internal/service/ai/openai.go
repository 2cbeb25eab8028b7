package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/portfolio-ai/backend/internal/model/chat"
)

// OpenAIStrategy calls OpenAI or any OpenAI-compatible chat completions API.
type OpenAIStrategy struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAIStrategy builds the strategy. baseURL may point at a compatible
// gateway; httpClient may be nil.
func NewOpenAIStrategy(apiKey, baseURL, model string, httpClient *http.Client) (*OpenAIStrategy, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}

	return &OpenAIStrategy{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: 0.2,
	}, nil
}

// Name implements Strategy.
func (s *OpenAIStrategy) Name() string { return "openai" }

// Generate implements Strategy.
func (s *OpenAIStrategy) Generate(ctx context.Context, req Request) (string, error) {
	turns := req.Turns()
	messages := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, turn := range turns {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openAIRole(turn.Role),
			Content: turn.Content,
		})
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    messages,
		Temperature: s.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyReply
	}
	return content, nil
}

// Probe lists models, which every compatible server implements.
func (s *OpenAIStrategy) Probe(ctx context.Context) error {
	if _, err := s.client.ListModels(ctx); err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}
	return nil
}

func openAIRole(role chat.Role) string {
	switch role {
	case chat.RoleSystem:
		return openai.ChatMessageRoleSystem
	case chat.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
