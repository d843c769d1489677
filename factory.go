package multillm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/xostack/multillm/config"
	"github.com/xostack/multillm/gemini"
	"github.com/xostack/multillm/groq"
	"github.com/xostack/multillm/ollama"
	"github.com/xostack/multillm/openai"
	"github.com/xostack/multillm/openrouter"
	"github.com/xostack/multillm/provider"
	"github.com/xostack/multillm/rawlog"
)

// family describes one backend family and how its adapter is assembled.
type family struct {
	// name is the canonical provider id.
	name      string
	newClient func(provider.ClientOptions) (provider.Completer, error)
	envVars   []string
	// credentialOptional marks backends that run without an API key.
	credentialOptional bool
	// sliceBraces trims prose around the JSON object before parsing.
	sliceBraces bool
	// rawLog enables the diagnostic raw output log.
	rawLog bool
}

func completer[C provider.Completer](fn func(provider.ClientOptions) (C, error)) func(provider.ClientOptions) (provider.Completer, error) {
	return func(opts provider.ClientOptions) (provider.Completer, error) {
		c, err := fn(opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

var (
	gptFamily = family{
		name:        "gpt",
		newClient:   completer(openai.NewClient),
		envVars:     openai.EnvVars,
		sliceBraces: true,
		rawLog:      true,
	}
	llamaFamily = family{
		name:      "llama",
		newClient: completer(openrouter.NewLlamaClient),
		envVars:   openrouter.EnvVars,
		rawLog:    true,
	}
)

// families maps every accepted provider id, aliases included, to its family.
var families = map[string]family{
	"gemini": {
		name:      "gemini",
		newClient: completer(gemini.NewClient),
		envVars:   gemini.EnvVars,
	},
	"gpt":    gptFamily,
	"openai": gptFamily,
	"openrouter": {
		name:        "openrouter",
		newClient:   completer(openai.NewOpenRouterClient),
		envVars:     openai.OpenRouterEnvVars,
		sliceBraces: true,
		rawLog:      true,
	},
	"claude": {
		name:      "claude",
		newClient: completer(openrouter.NewClaudeClient),
		envVars:   openrouter.EnvVars,
	},
	"llama":  llamaFamily,
	"ollama": llamaFamily,
	"deepseek": {
		name:      "deepseek",
		newClient: completer(openrouter.NewDeepSeekClient),
		envVars:   openrouter.EnvVars,
	},
	"groq": {
		name:      "groq",
		newClient: completer(groq.NewClient),
		envVars:   groq.EnvVars,
	},
	"local": {
		name:               "local",
		newClient:          completer(ollama.NewClient),
		credentialOptional: true,
	},
}

// Providers returns every accepted provider id, aliases included, sorted.
func Providers() []string {
	ids := make([]string, 0, len(families))
	for id := range families {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CanonicalProvider returns the family id for a provider id or alias.
func CanonicalProvider(providerID string) (string, bool) {
	fam, ok := lookup(providerID)
	return fam.name, ok
}

func lookup(providerID string) (family, bool) {
	fam, ok := families[normalizeID(providerID)]
	return fam, ok
}

func normalizeID(providerID string) string {
	return strings.ToLower(strings.TrimSpace(providerID))
}

// AdapterOptions are per-call adapter settings.
type AdapterOptions struct {
	// Model overrides both the configured and the built-in model.
	Model string
	// Task overrides the configured prompt task.
	Task string
	// Logger is handed to the adapter and its client.
	Logger *zerolog.Logger
}

// NewAdapter builds the adapter for providerID from cfg.
//
// Settings for the provider are looked up under the id as given, then under
// the family's canonical id, so "[llms.openai]" and "[llms.gpt]" both
// configure the GPT family.
//
// Making it a variable to allow for easy mocking in tests.
var NewAdapter func(providerID string, cfg config.Config, opts AdapterOptions) (Adapter, error) = func(providerID string, cfg config.Config, opts AdapterOptions) (Adapter, error) {
	id := normalizeID(providerID)
	fam, ok := lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, id)
	}

	llmCfg, exists := cfg.GetLLMConfig(id)
	if !exists {
		llmCfg, _ = cfg.GetLLMConfig(fam.name)
	}

	model := opts.Model
	if model == "" {
		model = llmCfg.Model
	}

	client, err := fam.newClient(provider.ClientOptions{
		Model:                 model,
		BaseURL:               llmCfg.BaseURL,
		RequestTimeoutSeconds: cfg.Timeout(),
		Logger:                opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", fam.name, err)
	}

	var raw *rawlog.Writer
	if fam.rawLog && cfg.RawLogPath != "" {
		raw = rawlog.New(cfg.RawLogPath)
	}

	task := opts.Task
	if task == "" {
		task = cfg.Task
	}

	return provider.New(client, provider.Options{
		Task:               task,
		APIKey:             llmCfg.APIKey,
		EnvVars:            fam.envVars,
		CredentialOptional: fam.credentialOptional,
		RawLog:             raw,
		Logger:             opts.Logger,
	}), nil
}
