// Command multillm sends a JSON payload to one of the supported LLM providers
// and prints the normalized reply.
//
// Usage:
//
//	multillm -provider claude -payload counts.json
//	echo '{"/index.html": 120}' | multillm -provider local -raw
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/xostack/multillm"
	"github.com/xostack/multillm/config"
	"github.com/xostack/multillm/prompt"
)

// CLIConfig holds command-line options.
type CLIConfig struct {
	ConfigFile    string
	Provider      string
	Model         string
	Credential    string
	Task          string
	PayloadFile   string
	Raw           bool
	KeyValue      bool
	Timeout       int
	Debug         bool
	ListProviders bool
}

func parseFlags(args []string, stderr io.Writer) (CLIConfig, error) {
	var opts CLIConfig

	fs := flag.NewFlagSet("multillm", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.ConfigFile, "config", "", "Path to a TOML or YAML config file (default: XDG location)")
	fs.StringVar(&opts.Provider, "provider", "", "Provider id; empty uses the configured default")
	fs.StringVar(&opts.Model, "model", "", "Model override")
	fs.StringVar(&opts.Credential, "key", "", "API key; overrides config and environment")
	fs.StringVar(&opts.Task, "task", "", "Task description placed at the top of the prompt")
	fs.StringVar(&opts.PayloadFile, "payload", "-", "JSON object file with the payload, - for stdin")
	fs.BoolVar(&opts.Raw, "raw", false, "Print the completion without normalization")
	fs.BoolVar(&opts.KeyValue, "kv", false, "Accept KEY => VALUE lines when the reply is not JSON")
	fs.IntVar(&opts.Timeout, "timeout", 0, "Request timeout in seconds; 0 uses the configured value")
	fs.BoolVar(&opts.Debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&opts.ListProviders, "list", false, "List supported provider ids and exit")

	if err := fs.Parse(args); err != nil {
		return CLIConfig{}, err
	}
	if opts.Timeout < 0 {
		return CLIConfig{}, fmt.Errorf("invalid timeout: must be positive, got %d", opts.Timeout)
	}
	return opts, nil
}

// readPayload decodes a JSON object of scalars. Numbers keep their literal form.
func readPayload(r io.Reader) (prompt.Payload, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var payload prompt.Payload
	if err := dec.Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return prompt.Payload{}, nil
		}
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return payload, nil
}

func openPayload(path string, stdin io.Reader) (prompt.Payload, error) {
	if path == "" || path == "-" {
		return readPayload(stdin)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open payload file: %w", err)
	}
	defer f.Close()
	return readPayload(f)
}

func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func newLogger(w io.Writer, debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}

// runCLICommand executes the command described by opts.
func runCLICommand(ctx context.Context, opts CLIConfig, stdin io.Reader, stdout, stderr io.Writer) error {
	if opts.ListProviders {
		fmt.Fprintln(stdout, "Available LLM providers:")
		for _, id := range multillm.Providers() {
			canonical, _ := multillm.CanonicalProvider(id)
			if canonical != id {
				fmt.Fprintf(stdout, "  - %s (alias of %s)\n", id, canonical)
				continue
			}
			fmt.Fprintf(stdout, "  - %s\n", id)
		}
		return nil
	}

	logger := newLogger(stderr, opts.Debug)

	if err := config.LoadEnv(); err != nil {
		logger.Warn().Err(err).Msg("ignoring .env file")
	}

	cfg, err := loadConfig(opts.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.Timeout > 0 {
		cfg.RequestTimeoutSeconds = opts.Timeout
	}

	payload, err := openPayload(opts.PayloadFile, stdin)
	if err != nil {
		return err
	}

	dispatcher, err := multillm.New(cfg, multillm.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Timeout())*time.Second)
	defer cancel()

	resp, err := dispatcher.GenerateResponse(ctx, multillm.Request{
		Provider:         opts.Provider,
		Payload:          payload,
		Credential:       opts.Credential,
		Model:            opts.Model,
		ReturnRaw:        opts.Raw,
		Task:             opts.Task,
		KeyValueFallback: opts.KeyValue,
	})
	if err != nil {
		return err
	}

	logger.Debug().Str("request_id", resp.RequestID).Str("provider", resp.Provider).Str("model", resp.Model).Msg("response received")
	fmt.Fprintln(stdout, resp.Text)
	return nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	if err := runCLICommand(context.Background(), opts, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
