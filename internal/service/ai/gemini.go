package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/portfolio-ai/backend/internal/model/chat"
)

// GeminiStrategy calls Google's Gemini API.
type GeminiStrategy struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGeminiStrategy creates the GenAI client. baseURL is only set in tests.
func NewGeminiStrategy(ctx context.Context, apiKey, model, baseURL string, httpClient *http.Client) (*GeminiStrategy, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiStrategy{client: client, model: model, temperature: 0.2}, nil
}

// Name implements Strategy.
func (s *GeminiStrategy) Name() string { return "gemini" }

// Generate implements Strategy.
func (s *GeminiStrategy) Generate(ctx context.Context, req Request) (string, error) {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, turn := range req.History {
		switch turn.Role {
		case chat.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(turn.Content, genai.RoleModel))
		case chat.RoleUser:
			contents = append(contents, genai.NewContentFromText(turn.Content, genai.RoleUser))
		}
	}
	if req.Message != "" {
		contents = append(contents, genai.NewContentFromText(req.Message, genai.RoleUser))
	}

	temperature := s.temperature
	config := &genai.GenerateContentConfig{Temperature: &temperature}
	if req.SystemContext != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemContext, genai.RoleUser)
	}

	result, err := s.client.Models.GenerateContent(ctx, s.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

// Probe fetches the configured model's metadata.
func (s *GeminiStrategy) Probe(ctx context.Context) error {
	if _, err := s.client.Models.Get(ctx, s.model, nil); err != nil {
		return fmt.Errorf("failed to get model %s: %w", s.model, err)
	}
	return nil
}
