package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Strategy names accepted in CHAT_STRATEGIES.
const (
	StrategyOllama = "ollama"
	StrategyOpenAI = "openai"
	StrategyArk    = "ark"
	StrategyGemini = "gemini"
)

// Config aggregates all service settings.
type Config struct {
	Server ServerConfig
	Log    LogConfig
	Chat   ChatConfig
	Ollama OllamaConfig
	OpenAI OpenAIConfig
	Ark    ArkConfig
	Gemini GeminiConfig
}

// Load reads configuration from the process environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads configuration from the supplied variables only.
func LoadFrom(environ map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate normalizes values and rejects impossible ones.
func (c *Config) Validate() error {
	addr, err := c.Server.addr()
	if err != nil {
		return err
	}
	c.Server.Addr = addr

	strategies := make([]string, 0, len(c.Chat.Strategies))
	for _, name := range c.Chat.Strategies {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case "":
			continue
		case StrategyOllama, StrategyOpenAI, StrategyArk, StrategyGemini:
			strategies = append(strategies, name)
		default:
			return fmt.Errorf("invalid CHAT_STRATEGIES entry %q", name)
		}
	}
	c.Chat.Strategies = strategies

	if c.Chat.Timeout <= 0 {
		return fmt.Errorf("invalid CHAT_TIMEOUT value %s: must be positive", c.Chat.Timeout)
	}
	if c.Chat.HistoryLimit < 0 {
		return fmt.Errorf("invalid CHAT_HISTORY_LIMIT value %d", c.Chat.HistoryLimit)
	}
	if c.Chat.FailureThreshold < 1 {
		c.Chat.FailureThreshold = 1
	}
	if c.Chat.RevealStep < 1 {
		c.Chat.RevealStep = 1
	}
	return nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
	Addr string
}

func (s ServerConfig) addr() (string, error) {
	port := strings.TrimSpace(s.Port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" verbatim.
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

// LogConfig controls structured logging and telemetry output.
type LogConfig struct {
	File             string `env:"LOG_FILE" envDefault:"logs/portfolio-chat.log"`
	Level            string `env:"LOG_LEVEL" envDefault:"info"`
	TelemetryEnabled bool   `env:"TELEMETRY_ENABLED" envDefault:"true"`
	TelemetryDir     string `env:"TELEMETRY_DIR" envDefault:"logs"`
}

// ChatConfig drives the response resolver and the conversation service.
type ChatConfig struct {
	Strategies       []string      `env:"CHAT_STRATEGIES" envSeparator:"," envDefault:"ollama"`
	Timeout          time.Duration `env:"CHAT_TIMEOUT" envDefault:"8s"`
	HistoryLimit     int           `env:"CHAT_HISTORY_LIMIT" envDefault:"10"`
	FailureThreshold int           `env:"CHAT_FAILURE_THRESHOLD" envDefault:"3"`
	Cooldown         time.Duration `env:"CHAT_COOLDOWN" envDefault:"1m"`
	FallbackDelay    time.Duration `env:"CHAT_FALLBACK_DELAY" envDefault:"800ms"`
	ProbeInterval    time.Duration `env:"CHAT_PROBE_INTERVAL" envDefault:"30s"`
	RevealInterval   time.Duration `env:"CHAT_REVEAL_INTERVAL" envDefault:"15ms"`
	RevealStep       int           `env:"CHAT_REVEAL_STEP" envDefault:"1"`
	Persona          string        `env:"ASSISTANT_PERSONA" envDefault:"usman-ai"`
	RulesPath        string        `env:"FALLBACK_RULES_PATH"`
	AuditDBPath      string        `env:"AUDIT_DB_PATH"`
}

// OllamaConfig points at a locally hosted Ollama daemon.
type OllamaConfig struct {
	BaseURL     string  `env:"OLLAMA_BASE_URL" envDefault:"http://127.0.0.1:11434"`
	Model       string  `env:"OLLAMA_MODEL" envDefault:"phi:latest"`
	Temperature float64 `env:"OLLAMA_TEMPERATURE" envDefault:"0.2"`
	NumCtx      int     `env:"OLLAMA_NUM_CTX" envDefault:"2048"`
}

// OpenAIConfig covers OpenAI and OpenAI-compatible endpoints.
type OpenAIConfig struct {
	APIKey  string `env:"OPENAI_API_KEY"`
	BaseURL string `env:"OPENAI_BASE_URL"`
	Model   string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
}

// Enabled reports whether an API key was provided.
func (c OpenAIConfig) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// ArkConfig describes the Volcengine Ark model.
type ArkConfig struct {
	APIKey      string  `env:"ARK_API_KEY"`
	AccessKey   string  `env:"ARK_ACCESS_KEY"`
	SecretKey   string  `env:"ARK_SECRET_KEY"`
	Model       string  `env:"ARK_MODEL"`
	BaseURL     string  `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	Region      string  `env:"ARK_REGION" envDefault:"cn-beijing"`
	Temperature float32 `env:"ARK_TEMPERATURE" envDefault:"0.2"`
	MaxTokens   int     `env:"ARK_MAX_TOKENS"`
}

// Enabled reports whether the required credentials are present.
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel creates an Ark chat model from the configuration.
func (c ArkConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY + ARK_MODEL or an AK/SK pair")
	}

	temperature := c.Temperature

	var maxTokens *int
	if c.MaxTokens > 0 {
		val := c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

// GeminiConfig describes the Google Gemini model.
type GeminiConfig struct {
	APIKey string `env:"GEMINI_API_KEY"`
	Model  string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
}

// Enabled reports whether an API key was provided.
func (c GeminiConfig) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}
