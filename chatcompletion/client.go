// Package chatcompletion is the transport shared by backends exposing an
// OpenAI-compatible chat completions endpoint (OpenAI, OpenRouter, Groq).
package chatcompletion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xostack/multillm/provider"
)

const (
	defaultTimeout = 60 * time.Second
	maxErrorBody   = 2048
)

// Config describes one chat completions backend.
type Config struct {
	// Provider is the family name reported by ProviderName.
	Provider string
	// Endpoint is the full chat completions URL.
	Endpoint string
	// Model is sent as the request's model identifier.
	Model string
	// Timeout bounds the whole HTTP round trip. <= 0 means 60 seconds.
	Timeout time.Duration
	// Temperature is omitted from the request when nil.
	Temperature *float64
	// Headers are added to every request.
	Headers map[string]string
}

// Client sends single-message chat completion requests.
type Client struct {
	httpClient  *http.Client
	provider    string
	endpoint    string
	modelName   string
	temperature *float64
	headers     map[string]string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatCompletionChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// apiError is the error object OpenAI-compatible APIs return in the body.
// Code is a string on OpenAI and a number on OpenRouter.
type apiError struct {
	Message string          `json:"message"`
	Type    string          `json:"type"`
	Code    json.RawMessage `json:"code,omitempty"`
}

type chatCompletionResponse struct {
	ID      string                 `json:"id"`
	Model   string                 `json:"model"`
	Choices []chatCompletionChoice `json:"choices"`
	Usage   usage                  `json:"usage"`
	Error   *apiError              `json:"error,omitempty"`
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Provider == "" {
		return nil, errors.New("chat completion provider name is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%s model is required", cfg.Provider)
	}

	parsed, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid %s endpoint '%s': %w", cfg.Provider, cfg.Endpoint, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%s endpoint scheme must be http or https, got '%s'", cfg.Provider, parsed.Scheme)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		provider:    cfg.Provider,
		endpoint:    parsed.String(),
		modelName:   cfg.Model,
		temperature: cfg.Temperature,
		headers:     headers,
	}, nil
}

// Complete posts prompt as a single user message and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, apiKey, prompt string) (string, error) {
	if c.httpClient == nil {
		return "", fmt.Errorf("%s client not initialized", c.provider)
	}

	payload := chatCompletionRequest{
		Model:       c.modelName,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.temperature,
		Stream:      false,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payloadBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("request canceled: %w", ctxErr)
		}
		return "", fmt.Errorf("API error (HTTP): %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	var decoded chatCompletionResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("API request failed with status %s: %s", resp.Status, limit(body))
		}
		return "", fmt.Errorf("response parsing error: %w", err)
	}

	if decoded.Error != nil {
		return "", fmt.Errorf("API error: %s (type: %s, code: %s). HTTP status: %s",
			decoded.Error.Message, decoded.Error.Type, strings.Trim(string(decoded.Error.Code), `"`), resp.Status)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API request failed with status %s: %s", resp.Status, limit(body))
	}

	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("returned invalid structure: no choices in response %s", limit(body))
	}

	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", provider.ErrEmptyCompletion
	}
	return content, nil
}

// ProviderName returns the configured family name.
func (c *Client) ProviderName() string {
	return c.provider
}

// Model returns the model identifier sent with each request.
func (c *Client) Model() string {
	return c.modelName
}

// Endpoint returns the chat completions URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Close releases idle connections.
func (c *Client) Close() error {
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
	return nil
}

func limit(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
