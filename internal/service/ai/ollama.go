package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OllamaRequest is the body of POST /api/chat.
type OllamaRequest struct {
	Model    string              `json:"model"`
	Messages []map[string]string `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  OllamaOptions       `json:"options"`
}

// OllamaOptions tunes sampling for the local model.
type OllamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumCtx      int     `json:"num_ctx,omitempty"`
}

// OllamaResponse is the non-streaming /api/chat response.
type OllamaResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Message   *struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// OllamaStrategy talks to a locally hosted Ollama daemon.
type OllamaStrategy struct {
	baseURL     string
	model       string
	temperature float64
	numCtx      int
	httpClient  *http.Client
}

// NewOllamaStrategy builds the strategy. The client carries no timeout of its
// own; every call is bounded by the caller's context.
func NewOllamaStrategy(baseURL, model string, temperature float64, numCtx int, client *http.Client) *OllamaStrategy {
	if client == nil {
		client = &http.Client{}
	}
	return &OllamaStrategy{
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		temperature: temperature,
		numCtx:      numCtx,
		httpClient:  client,
	}
}

// Name implements Strategy.
func (s *OllamaStrategy) Name() string { return "ollama" }

// Generate implements Strategy.
func (s *OllamaStrategy) Generate(ctx context.Context, req Request) (string, error) {
	turns := req.Turns()
	messages := make([]map[string]string, len(turns))
	for i, turn := range turns {
		messages[i] = map[string]string{
			"role":    string(turn.Role),
			"content": turn.Content,
		}
	}

	jsonData, err := json.Marshal(OllamaRequest{
		Model:    s.model,
		Messages: messages,
		Stream:   false,
		Options:  OllamaOptions{Temperature: s.temperature, NumCtx: s.numCtx},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %s - %s", ErrUnexpectedCode, resp.Status, strings.TrimSpace(string(body)))
	}

	var apiResp OllamaResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if apiResp.Error != "" {
		return "", fmt.Errorf("ollama error: %s", apiResp.Error)
	}
	if apiResp.Message == nil || strings.TrimSpace(apiResp.Message.Content) == "" {
		return "", ErrEmptyReply
	}

	return strings.TrimSpace(apiResp.Message.Content), nil
}

// Probe checks that the daemon answers on its root endpoint.
func (s *OllamaStrategy) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request (is Ollama running?): %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s", ErrUnexpectedCode, resp.Status)
	}
	return nil
}
