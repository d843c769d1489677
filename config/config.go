// Package config handles loading and managing multillm configuration.
//
// Configuration is read from TOML (the default) or YAML files following the
// XDG Base Directory layout, or built programmatically. Credentials may also
// come from the environment; LoadEnv reads a .env file into it.
//
// Example TOML configuration:
//
//	default_provider = "gpt"
//	request_timeout_seconds = 60
//	raw_log_path = "logs/llm_raw_output.log"
//
//	[llms.gpt]
//	model = "gpt-4o-mini"
//
//	[llms.local]
//	base_url = "http://localhost:11434"
//	model = "gemma:2b"
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	appName         = "multillm"
	configFileName  = "config.toml"
	DefaultDirPerm  = 0750 // rwxr-x---
	DefaultFilePerm = 0600 // rw------- (may contain secrets)

	// DefaultRequestTimeoutSeconds applies when no positive timeout is configured.
	DefaultRequestTimeoutSeconds = 60
	// DefaultRawLogPath is where adapters that keep a diagnostic log write.
	DefaultRawLogPath = "logs/llm_raw_output.log"
)

// Config holds the dispatch configuration.
type Config struct {
	// DefaultProvider is used when a request names no provider.
	DefaultProvider string `toml:"default_provider" yaml:"default_provider"`

	// RequestTimeoutSeconds bounds each provider round trip.
	// If <= 0, DefaultRequestTimeoutSeconds is used.
	RequestTimeoutSeconds int `toml:"request_timeout_seconds" yaml:"request_timeout_seconds"`

	// RawLogPath is the diagnostic log for providers that keep one.
	// Empty disables the log.
	RawLogPath string `toml:"raw_log_path" yaml:"raw_log_path"`

	// Task overrides the default prompt task description.
	Task string `toml:"task,omitempty" yaml:"task,omitempty"`

	// LLMs contains provider-specific settings keyed by provider id.
	LLMs map[string]LLMConfig `toml:"llms" yaml:"llms"`
}

// LLMConfig holds settings for a single provider id. All fields are optional.
type LLMConfig struct {
	// BaseURL overrides the provider endpoint (full chat completions URL for
	// REST providers, server address for the local provider).
	BaseURL string `toml:"base_url,omitempty" yaml:"base_url,omitempty"`

	// APIKey is used when a request carries no explicit credential.
	// Environment variables are consulted after it.
	APIKey string `toml:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Model overrides the provider's default model.
	Model string `toml:"model,omitempty" yaml:"model,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DefaultProvider:       "gpt",
		RequestTimeoutSeconds: DefaultRequestTimeoutSeconds,
		RawLogPath:            DefaultRawLogPath,
		LLMs:                  map[string]LLMConfig{},
	}
}

// NewConfig creates a configuration programmatically.
//
//	cfg := config.NewConfig("claude", 30, map[string]config.LLMConfig{
//		"claude": {Model: "anthropic/claude-3-haiku"},
//	})
func NewConfig(defaultProvider string, timeoutSeconds int, providers map[string]LLMConfig) Config {
	cfg := Default()
	cfg.DefaultProvider = defaultProvider
	cfg.RequestTimeoutSeconds = timeoutSeconds
	if providers != nil {
		cfg.LLMs = providers
	}
	return cfg
}

// GetLLMConfig retrieves the settings for a provider id.
func (c *Config) GetLLMConfig(provider string) (LLMConfig, bool) {
	llmCfg, exists := c.LLMs[strings.ToLower(provider)]
	return llmCfg, exists
}

// Timeout returns the effective request timeout in seconds.
func (c *Config) Timeout() int {
	if c.RequestTimeoutSeconds <= 0 {
		return DefaultRequestTimeoutSeconds
	}
	return c.RequestTimeoutSeconds
}

// Validate checks values that cannot be fixed by defaults.
func (c *Config) Validate() error {
	if c.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("invalid request_timeout_seconds: must not be negative, got %d", c.RequestTimeoutSeconds)
	}
	for name := range c.LLMs {
		if name != strings.ToLower(name) {
			return fmt.Errorf("provider key '%s' must be lowercase", name)
		}
	}
	return nil
}

// GetConfigFilePath returns $XDG_CONFIG_HOME/multillm/config.toml, falling
// back to $HOME/.config/multillm/config.toml. The file may not exist.
func GetConfigFilePath() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not determine user home directory: %w", err)
		}
		configHome = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configHome, appName, configFileName), nil
}

// Load reads the configuration from the XDG location. A missing file yields
// the defaults.
func Load() (Config, error) {
	cfgPath, err := GetConfigFilePath()
	if err != nil {
		return Config{}, fmt.Errorf("failed to determine config path: %w", err)
	}

	if _, err := os.Stat(cfgPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("failed to access config file %s: %w", cfgPath, err)
	}
	return LoadFromFile(cfgPath)
}

// LoadFromFile loads configuration from filePath, merged over the defaults.
// Files ending in .yaml or .yml are decoded as YAML, everything else as TOML.
func LoadFromFile(filePath string) (Config, error) {
	cfg := Default()

	if _, err := os.Stat(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("configuration file not found at %s", filePath)
		}
		return Config{}, fmt.Errorf("failed to access config file %s: %w", filePath, err)
	}

	if isYAML(filePath) {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", filePath, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to decode YAML config file %s: %w", filePath, err)
		}
	} else {
		meta, err := toml.DecodeFile(filePath, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("failed to decode TOML config file %s: %w", filePath, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("unknown configuration keys in %s: %v", filePath, undecoded)
		}
	}

	if cfg.LLMs == nil {
		cfg.LLMs = map[string]LLMConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration in %s: %w", filePath, err)
	}
	return cfg, nil
}

// Save writes cfg to filePath, creating parent directories. The format follows
// the file extension as in LoadFromFile.
func Save(cfg Config, filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), DefaultDirPerm); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", filepath.Dir(filePath), err)
	}

	file, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, DefaultFilePerm)
	if err != nil {
		return fmt.Errorf("failed to create config file %s: %w", filePath, err)
	}
	defer file.Close()

	if isYAML(filePath) {
		enc := yaml.NewEncoder(file)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode configuration to YAML: %w", err)
		}
		return enc.Close()
	}

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode configuration to TOML: %w", err)
	}
	return nil
}

// LoadEnv loads KEY=VALUE pairs from the given .env files (".env" when none
// are named) into the process environment. Variables already set are kept.
// Missing files are ignored.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}

	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load environment files %v: %w", existing, err)
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
