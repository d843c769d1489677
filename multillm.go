// Package multillm dispatches structured-data prompts to several LLM providers
// behind one call.
//
// A caller names a provider and hands over a payload of key/scalar pairs. The
// payload is turned into a strict prompt, sent to the provider in a single
// round trip, and the reply is normalized into pretty-printed JSON (or
// returned untouched in raw mode).
//
// Supported provider ids (case-insensitive):
//   - "gpt", "openai": GPT models through OpenAI
//   - "openrouter": GPT models through OpenRouter
//   - "claude", "llama", "ollama", "deepseek": models through OpenRouter
//   - "gemini": Google Gemini through the GenAI SDK
//   - "groq": Groq cloud
//   - "local": a self-hosted Ollama server
//
// Example usage:
//
//	resp, err := multillm.GenerateResponse(ctx, multillm.Request{
//		Provider: "claude",
//		Payload:  prompt.Payload{"/index.html": 120, "/login": 14},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(resp.Text)
//
// For more control build a Dispatcher from a config.Config.
package multillm

import (
	"context"

	"github.com/xostack/multillm/prompt"
	"github.com/xostack/multillm/provider"
)

// Adapter is implemented by every provider adapter.
//
// Generate never returns a bare error: soft failures (empty payload, missing
// credential) and provider failures are reported through the Result so a
// caller cannot mistake an error message for model output.
type Adapter interface {
	// Generate sends payload to the provider and returns the raw completion text.
	Generate(ctx context.Context, payload prompt.Payload, credential string) provider.Result

	// ProviderName returns the lowercase name of the backend family.
	ProviderName() string

	// Model returns the model identifier in use.
	Model() string

	// Close releases resources held by the adapter. Safe to call more than once.
	Close() error
}

// Request describes one dispatch.
type Request struct {
	// Provider is the provider id. Empty means the configured default.
	Provider string
	// Payload maps keys to scalar values.
	Payload prompt.Payload
	// Credential overrides configured and environment credentials.
	Credential string
	// Model overrides the provider's configured or built-in model.
	Model string
	// ReturnRaw skips normalization and returns the completion as is.
	ReturnRaw bool
	// Task overrides the prompt task description.
	Task string
	// KeyValueFallback accepts "KEY => VALUE" lines when the reply is not JSON.
	KeyValueFallback bool
}

// Response is a successful dispatch.
type Response struct {
	// RequestID identifies the call in logs.
	RequestID string
	// Provider is the canonical provider id that served the call.
	Provider string
	// Model is the model identifier used.
	Model string
	// Raw is the completion text as returned by the provider.
	Raw string
	// Text is the normalized JSON, or Raw in raw mode.
	Text string
	// Data is the parsed document; nil in raw mode.
	Data any
}
