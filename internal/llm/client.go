// Package llm is a minimal client for OpenAI-compatible chat completion APIs.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bargom/hivemind/pkg/integration"
	"github.com/bargom/hivemind/pkg/integration/rest"
)

// ErrEmptyCompletion is returned when the model produced no choices.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// Role is a chat message author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Config configures the chat client.
type Config struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`

	Retry          integration.RetryConfig          `mapstructure:"retry"`
	CircuitBreaker integration.CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// DefaultConfig returns defaults for the public OpenAI endpoint.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://api.openai.com/v1",
		Model:          "gpt-4o-mini",
		Timeout:        60 * time.Second,
		Retry:          integration.DefaultRetryConfig(),
		CircuitBreaker: integration.DefaultCircuitBreakerConfig(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("llm: base_url is required")
	}
	if c.Model == "" {
		return fmt.Errorf("llm: model is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("llm: temperature must be within [0, 2]")
	}
	return nil
}

// Client sends chat completion requests.
type Client struct {
	http  *rest.Client
	model string
	cfg   Config
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ic := integration.DefaultConfig()
	ic.ServiceName = "llm"
	ic.BaseURL = cfg.BaseURL
	ic.BearerToken = cfg.APIKey
	if cfg.Timeout > 0 {
		ic.Timeout = cfg.Timeout
	}
	ic.Retry = cfg.Retry
	ic.CircuitBreaker = cfg.CircuitBreaker

	hc, err := rest.New(ic)
	if err != nil {
		return nil, err
	}
	return &Client{http: hc, model: cfg.Model, cfg: cfg}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Chat returns the assistant's reply to messages.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	return c.complete(ctx, messages, nil)
}

// ChatJSON asks for a JSON object reply and returns it raw.
func (c *Client) ChatJSON(ctx context.Context, messages []Message) (string, error) {
	return c.complete(ctx, messages, &responseFormat{Type: "json_object"})
}

func (c *Client) complete(ctx context.Context, messages []Message, format *responseFormat) (string, error) {
	req := chatRequest{
		Model:          c.model,
		Messages:       messages,
		Temperature:    c.cfg.Temperature,
		MaxTokens:      c.cfg.MaxTokens,
		ResponseFormat: format,
	}
	var resp chatResponse
	if err := c.http.PostJSON(ctx, "chat/completions", req, &resp); err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("chat completion: %s: %s", resp.Error.Type, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
