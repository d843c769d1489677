// Package groq provides a backend for Groq's OpenAI-compatible cloud API.
package groq

import (
	"github.com/xostack/multillm/chatcompletion"
	"github.com/xostack/multillm/provider"
)

const (
	defaultGroqModel = "gemma2-9b-it"
	providerName     = "groq"
	groqAPIEndpoint  = "https://api.groq.com/openai/v1/chat/completions"
)

// EnvVars hold the Groq credential.
var EnvVars = []string{"GROQ_API_KEY"}

// NewClient creates a Groq client.
func NewClient(opts provider.ClientOptions) (*chatcompletion.Client, error) {
	return chatcompletion.NewClient(chatcompletion.Config{
		Provider: providerName,
		Endpoint: opts.BaseURLOr(groqAPIEndpoint),
		Model:    opts.ModelOr(defaultGroqModel),
		Timeout:  opts.Timeout(),
	})
}
