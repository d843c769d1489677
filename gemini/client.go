// Package gemini provides a backend for Google's Gemini models.
package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/xostack/multillm/provider"
)

const (
	defaultGeminiModel = "models/gemini-2.0-flash"
	providerName       = "gemini"
)

// EnvVars hold the Gemini credential.
var EnvVars = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}

// Client calls Gemini through the Google GenAI SDK. The SDK client is bound
// to an API key, so one is created per call and closed afterwards.
type Client struct {
	modelName     string
	timeout       time.Duration
	clientOptions []option.ClientOption
	log           zerolog.Logger
}

// NewClient creates a Gemini client. A non-empty opts.BaseURL replaces the
// SDK's API endpoint.
func NewClient(opts provider.ClientOptions) (*Client, error) {
	c := &Client{
		modelName: opts.ModelOr(defaultGeminiModel),
		timeout:   opts.Timeout(),
		log:       opts.Log(),
	}
	if opts.BaseURL != "" {
		c.clientOptions = append(c.clientOptions, option.WithEndpoint(opts.BaseURL))
	}
	return c, nil
}

// Complete sends prompt to the model and concatenates the text parts of the first candidate.
func (c *Client) Complete(ctx context.Context, apiKey, prompt string) (string, error) {
	if apiKey == "" {
		return "", fmt.Errorf("Gemini API key is required")
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	opts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, c.clientOptions...)
	genaiClient, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create genai client: %w", err)
	}
	defer genaiClient.Close()

	model := genaiClient.GenerativeModel(c.modelName)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("API error: %w", err)
	}
	return c.extractText(resp)
}

// extractText pulls the completion out of the first candidate.
func (c *Client) extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("API returned an invalid response")
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
			return "", fmt.Errorf("content generation blocked due to safety settings")
		}
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
			return "", fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason.String())
		}
		return "", fmt.Errorf("API returned an invalid response")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		} else {
			c.log.Debug().Str("part", fmt.Sprintf("%T", part)).Msg("ignoring non-text part")
		}
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", provider.ErrEmptyCompletion
	}
	return text, nil
}

// ProviderName returns the name of this provider.
func (c *Client) ProviderName() string {
	return providerName
}

// Model returns the model name used for generation.
func (c *Client) Model() string {
	return c.modelName
}

// Close is a no-op; SDK clients are closed after each call.
func (c *Client) Close() error {
	return nil
}
