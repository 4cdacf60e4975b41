package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	defaultOllamaURL = "http://localhost:11434/api/generate"

	ModelLlama3  = "llama3"
	ModelMistral = "mistral"
)

// OllamaConfig configures an OllamaClient for local-model development and
// tests, so the pipeline can run without an Anthropic credential.
type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OllamaClient implements Client against a local Ollama daemon.
type OllamaClient struct {
	cfg        OllamaConfig
	httpClient *http.Client
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func NewOllamaClient(cfg OllamaConfig) (*OllamaClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOllamaURL
	}
	if cfg.Model == "" {
		cfg.Model = ModelLlama3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &OllamaClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	return retryComplete(ctx, nil, func(ctx context.Context) (string, error) {
		return c.sendRequest(ctx, prompt)
	})
}

func (c *OllamaClient) sendRequest(ctx context.Context, prompt string) (string, error) {
	reqBody := ollamaRequest{Model: c.cfg.Model, Prompt: prompt, Stream: false}

	body, status, err := postJSON(ctx, c.httpClient, c.cfg.BaseURL, nil, reqBody)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", handleHTTPError(status, body, func(b []byte) (string, string, bool) {
			var r ollamaResponse
			if json.Unmarshal(b, &r) == nil && r.Error != "" {
				return "ollama", r.Error, true
			}
			return "", "", false
		})
	}

	var apiResp ollamaResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("llm: unmarshal ollama response: %w", err)
	}
	if apiResp.Error != "" {
		return "", fmt.Errorf("llm: ollama error: %s", apiResp.Error)
	}
	if apiResp.Response == "" {
		return "", fmt.Errorf("llm: empty ollama response")
	}
	return apiResp.Response, nil
}
