package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	anthropicAPIURL = "https://api.anthropic.com/v1/messages"

	ModelClaudeHaiku  = "claude-3-5-haiku-20241022"
	ModelClaudeSonnet = "claude-3-5-sonnet-20241022"
)

// AnthropicConfig configures an AnthropicClient.
type AnthropicConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	// RequestsPerSecond throttles outbound calls; zero disables the limiter.
	RequestsPerSecond float64
}

// AnthropicClient implements Client against Anthropic's messages API.
type AnthropicClient struct {
	cfg        AnthropicConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewAnthropicClient validates cfg, filling in defaults for any zero
// field, and returns a ready-to-use Client.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: anthropic api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = ModelClaudeSonnet
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &AnthropicClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
	}, nil
}

func (c *AnthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	return retryComplete(ctx, c.limiter, func(ctx context.Context) (string, error) {
		return c.sendRequest(ctx, prompt)
	})
}

func (c *AnthropicClient) sendRequest(ctx context.Context, prompt string) (string, error) {
	reqBody := anthropicRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
	}
	headers := map[string]string{
		"x-api-key":         c.cfg.APIKey,
		"anthropic-version": "2023-06-01",
	}

	body, status, err := postJSON(ctx, c.httpClient, anthropicAPIURL, headers, reqBody)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", handleHTTPError(status, body, func(b []byte) (string, string, bool) {
			var r anthropicResponse
			if json.Unmarshal(b, &r) == nil && r.Error != nil {
				return r.Error.Type, r.Error.Message, true
			}
			return "", "", false
		})
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("llm: unmarshal anthropic response: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("llm: anthropic error: %s - %s", apiResp.Error.Type, apiResp.Error.Message)
	}
	if len(apiResp.Content) == 0 {
		return "", fmt.Errorf("llm: empty anthropic response")
	}
	return apiResp.Content[0].Text, nil
}
