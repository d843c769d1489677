// Package ollama provides a backend for a self-hosted Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/xostack/multillm/provider"
)

const (
	defaultOllamaModel = "gemma:2b"
	providerName       = "local"
	defaultPort        = "11434"
	generateAPIPath    = "/api/generate"

	// DefaultBaseURL is where a local Ollama server listens by default.
	DefaultBaseURL = "http://localhost:11434"
)

// EnvVars may hold the server address. Ollama needs no credential.
var EnvVars = []string{"OLLAMA_HOST"}

// Client talks to Ollama's native generate API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	modelName  string
	log        zerolog.Logger
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// ollamaGenerateResponse is the non-streaming /api/generate response.
type ollamaGenerateResponse struct {
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	Response  string    `json:"response"`
	Done      bool      `json:"done"`
	Error     string    `json:"error,omitempty"`
}

// NewClient creates an Ollama client. The server address comes from
// opts.BaseURL, then OLLAMA_HOST, then DefaultBaseURL. OLLAMA_HOST may be a
// bare host[:port] as Ollama itself accepts it.
func NewClient(opts provider.ClientOptions) (*Client, error) {
	baseURL := opts.BaseURLOr(hostFromEnv(provider.ResolveCredential("", "", EnvVars...)))
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama base URL '%s': %w", baseURL, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("Ollama base URL scheme must be http or https, got '%s'", parsedURL.Scheme)
	}

	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout()},
		baseURL:    strings.TrimSuffix(parsedURL.String(), "/"),
		modelName:  opts.ModelOr(defaultOllamaModel),
		log:        opts.Log(),
	}, nil
}

// hostFromEnv turns an OLLAMA_HOST value into a base URL. A value without a
// scheme gets http and, when it names no port, the default Ollama port.
func hostFromEnv(host string) string {
	if host == "" || strings.Contains(host, "://") {
		return host
	}

	hostport, path, _ := strings.Cut(host, "/")
	if _, _, err := net.SplitHostPort(hostport); err != nil {
		hostport = net.JoinHostPort(strings.Trim(hostport, "[]"), defaultPort)
	}
	if path != "" {
		return "http://" + hostport + "/" + path
	}
	return "http://" + hostport
}

// Complete sends prompt to the generate API. The credential, when present, is
// sent as a bearer token for servers behind an authenticating proxy.
func (c *Client) Complete(ctx context.Context, credential, prompt string) (string, error) {
	if c.httpClient == nil {
		return "", fmt.Errorf("Ollama client not initialized")
	}

	payloadBytes, err := json.Marshal(ollamaGenerateRequest{
		Model:  c.modelName,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal Ollama request payload: %w", err)
	}

	requestURL := c.baseURL + generateAPIPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(payloadBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create Ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return "", fmt.Errorf("Ollama request canceled: %w", ctx.Err())
		}
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("Ollama request timed out: %w", ctx.Err())
		}
		return "", fmt.Errorf("failed to send request to Ollama server at %s: %w", requestURL, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read Ollama response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp ollamaGenerateResponse
		if json.Unmarshal(responseBody, &errResp) == nil && errResp.Error != "" {
			return "", fmt.Errorf("Ollama API error (status %d): %s", resp.StatusCode, errResp.Error)
		}
		return "", fmt.Errorf("Ollama API request failed with status %s. Raw: %s", resp.Status, string(responseBody))
	}

	var ollamaResp ollamaGenerateResponse
	if err := json.Unmarshal(responseBody, &ollamaResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal Ollama response JSON: %w. Raw response: %s", err, string(responseBody))
	}

	if ollamaResp.Error != "" {
		return "", fmt.Errorf("Ollama returned an error in response: %s", ollamaResp.Error)
	}

	if !ollamaResp.Done {
		c.log.Debug().Str("model", ollamaResp.Model).Msg("Ollama response not marked done")
	}

	text := strings.TrimSpace(ollamaResp.Response)
	if text == "" {
		return "", provider.ErrEmptyCompletion
	}
	return text, nil
}

// ProviderName returns the name of this provider.
func (c *Client) ProviderName() string {
	return providerName
}

// Model returns the model name sent with each request.
func (c *Client) Model() string {
	return c.modelName
}

// BaseURL returns the server address without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Close releases idle connections.
func (c *Client) Close() error {
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
	return nil
}
