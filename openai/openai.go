// Package openai provides the GPT-family backend.
//
// The family is reachable through OpenAI directly or through OpenRouter; both
// speak the chat completions protocol and differ only in endpoint, default
// model identifier and credential.
package openai

import (
	"github.com/xostack/multillm/chatcompletion"
	"github.com/xostack/multillm/provider"
)

const (
	gptProviderName        = "gpt"
	openRouterProviderName = "openrouter"

	// OpenAIEndpoint is the OpenAI chat completions URL.
	OpenAIEndpoint = "https://api.openai.com/v1/chat/completions"
	// OpenRouterEndpoint is the OpenRouter chat completions URL.
	OpenRouterEndpoint = "https://openrouter.ai/api/v1/chat/completions"

	defaultGPTModel           = "gpt-3.5-turbo"
	defaultOpenRouterGPTModel = "openai/gpt-3.5-turbo"

	temperature = 0.3
)

var (
	// EnvVars hold the OpenAI credential.
	EnvVars = []string{"OPENAI_API_KEY"}
	// OpenRouterEnvVars hold the OpenRouter credential.
	OpenRouterEnvVars = []string{"OPENROUTER_API_KEY"}
)

// NewClient creates a GPT client talking to OpenAI.
func NewClient(opts provider.ClientOptions) (*chatcompletion.Client, error) {
	return newGPTClient(gptProviderName, OpenAIEndpoint, defaultGPTModel, opts)
}

// NewOpenRouterClient creates a GPT client routed through OpenRouter.
func NewOpenRouterClient(opts provider.ClientOptions) (*chatcompletion.Client, error) {
	return newGPTClient(openRouterProviderName, OpenRouterEndpoint, defaultOpenRouterGPTModel, opts)
}

func newGPTClient(name, endpoint, model string, opts provider.ClientOptions) (*chatcompletion.Client, error) {
	temp := temperature
	return chatcompletion.NewClient(chatcompletion.Config{
		Provider:    name,
		Endpoint:    opts.BaseURLOr(endpoint),
		Model:       opts.ModelOr(model),
		Timeout:     opts.Timeout(),
		Temperature: &temp,
	})
}
