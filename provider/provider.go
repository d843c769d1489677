// Package provider defines the contract shared by every backend adapter.
//
// A backend only knows how to send a prompt and pull the completion text out
// of its response envelope (a Completer). Adapter wraps a Completer with the
// flow every backend has in common: input checks, credential resolution,
// prompt construction, diagnostic logging and conversion of failures into a
// typed Result.
package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/xostack/multillm/prompt"
	"github.com/xostack/multillm/rawlog"
)

// Sentinel texts carried by soft-failure results.
const (
	NoDataText       = "no data provided"
	NoCredentialText = "no API key provided"
)

var (
	// ErrNoData is the failure for an empty payload.
	ErrNoData = errors.New(NoDataText)
	// ErrMissingCredential is the failure when no credential could be resolved.
	ErrMissingCredential = errors.New(NoCredentialText)
	// ErrEmptyCompletion is returned by completers whose envelope held no text.
	ErrEmptyCompletion = errors.New("response did not include valid message content")
)

// Error attributes a failure to a provider.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Completer sends one prompt to a backend and returns the completion text.
type Completer interface {
	// Complete performs a single round trip with the given credential.
	Complete(ctx context.Context, credential, prompt string) (string, error)
	// ProviderName returns the lowercase family name, e.g. "gpt" or "claude".
	ProviderName() string
	// Model returns the model identifier sent to the backend.
	Model() string
	// Close releases resources held by the completer.
	Close() error
}

// Result is the outcome of Adapter.Generate. Exactly one of success or
// failure holds: on failure Err is set and Text carries a readable message.
type Result struct {
	Text string
	Err  error
}

// Failed reports whether the result is a failure.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Options configures an Adapter.
type Options struct {
	// Task is the prompt task description. Defaults to prompt.DefaultTask.
	Task string
	// APIKey is a configured credential used when the caller passes none.
	APIKey string
	// EnvVars are checked in order when neither explicit nor configured credentials exist.
	EnvVars []string
	// CredentialOptional lets the adapter run without any credential (local backends).
	CredentialOptional bool
	// RawLog receives the latest raw completion. Nil disables it.
	RawLog *rawlog.Writer
	// Logger is used when the call context carries no logger.
	Logger *zerolog.Logger
}

// Adapter runs the shared generation flow around a Completer.
// It keeps no state between calls.
type Adapter struct {
	completer Completer
	opts      Options
	logger    zerolog.Logger
}

// New wraps c.
func New(c Completer, opts Options) *Adapter {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	if strings.TrimSpace(opts.Task) == "" {
		opts.Task = prompt.DefaultTask
	}
	return &Adapter{completer: c, opts: opts, logger: logger}
}

// ProviderName returns the wrapped completer's provider name.
func (a *Adapter) ProviderName() string {
	return a.completer.ProviderName()
}

// Model returns the wrapped completer's model.
func (a *Adapter) Model() string {
	return a.completer.Model()
}

// Close closes the wrapped completer.
func (a *Adapter) Close() error {
	return a.completer.Close()
}

// Generate builds the prompt for payload, sends it and returns the raw completion.
// It never returns a bare error; failures are reported through Result.
func (a *Adapter) Generate(ctx context.Context, payload prompt.Payload, credential string) Result {
	name := a.completer.ProviderName()
	log := a.loggerFor(ctx).With().Str("provider", name).Str("model", a.completer.Model()).Logger()

	if len(payload) == 0 {
		log.Debug().Msg("empty payload")
		return Result{Text: NoDataText, Err: ErrNoData}
	}

	key := ResolveCredential(credential, a.opts.APIKey, a.opts.EnvVars...)
	if key == "" && !a.opts.CredentialOptional {
		log.Debug().Strs("env", a.opts.EnvVars).Msg("no credential resolved")
		return Result{Text: NoCredentialText, Err: ErrMissingCredential}
	}

	text, err := prompt.Build(payload, a.opts.Task)
	if err != nil {
		return failure(name, err)
	}

	raw, err := a.completer.Complete(ctx, key, text)
	if err != nil {
		log.Debug().Err(err).Msg("completion failed")
		return failure(name, err)
	}
	if strings.TrimSpace(raw) == "" {
		return failure(name, ErrEmptyCompletion)
	}

	log.Debug().Int("length", len(raw)).Str("raw", truncate(raw, 100)).Msg("raw completion")

	if err := a.opts.RawLog.Write(raw); err != nil {
		log.Warn().Err(err).Msg("failed to write raw output log")
	}

	return Result{Text: raw}
}

func (a *Adapter) loggerFor(ctx context.Context) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return a.logger
}

func failure(name string, err error) Result {
	perr := &Error{Provider: name, Err: err}
	return Result{Text: perr.Error(), Err: perr}
}

// ResolveCredential returns explicit if set, then configured, then the first
// non-empty environment variable in envVars.
func ResolveCredential(explicit, configured string, envVars ...string) string {
	if k := strings.TrimSpace(explicit); k != "" {
		return k
	}
	if k := strings.TrimSpace(configured); k != "" {
		return k
	}
	for _, name := range envVars {
		if k := strings.TrimSpace(os.Getenv(name)); k != "" {
			return k
		}
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
