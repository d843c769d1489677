// Package openrouter provides backends served through OpenRouter:
// Claude, LLaMA and DeepSeek.
package openrouter

import (
	"github.com/xostack/multillm/chatcompletion"
	"github.com/xostack/multillm/provider"
)

const (
	// Endpoint is the OpenRouter chat completions URL.
	Endpoint = "https://openrouter.ai/api/v1/chat/completions"

	// appTitle identifies this client in OpenRouter's dashboard.
	appTitle = "MultiLLM-SDK"

	defaultClaudeModel   = "anthropic/claude-3.5-sonnet"
	defaultLlamaModel    = "meta-llama/llama-3.1-8b-instruct"
	defaultDeepSeekModel = "deepseek/deepseek-r1-0528-qwen3-8b:free"
)

// EnvVars hold the OpenRouter credential.
var EnvVars = []string{"OPENROUTER_API_KEY"}

// NewClaudeClient creates a Claude client.
func NewClaudeClient(opts provider.ClientOptions) (*chatcompletion.Client, error) {
	return newClient("claude", defaultClaudeModel, opts)
}

// NewLlamaClient creates a LLaMA client.
func NewLlamaClient(opts provider.ClientOptions) (*chatcompletion.Client, error) {
	return newClient("llama", defaultLlamaModel, opts)
}

// NewDeepSeekClient creates a DeepSeek client.
func NewDeepSeekClient(opts provider.ClientOptions) (*chatcompletion.Client, error) {
	return newClient("deepseek", defaultDeepSeekModel, opts)
}

func newClient(name, model string, opts provider.ClientOptions) (*chatcompletion.Client, error) {
	return chatcompletion.NewClient(chatcompletion.Config{
		Provider: name,
		Endpoint: opts.BaseURLOr(Endpoint),
		Model:    opts.ModelOr(model),
		Timeout:  opts.Timeout(),
		Headers:  map[string]string{"X-Title": appTitle},
	})
}
