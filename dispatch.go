package multillm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xostack/multillm/config"
	"github.com/xostack/multillm/normalize"
)

// Dispatcher routes requests to provider adapters. It holds only read-only
// configuration and is safe for concurrent use.
type Dispatcher struct {
	cfg    config.Config
	logger zerolog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for dispatch and provider diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// New creates a Dispatcher from cfg.
func New(cfg config.Config, opts ...Option) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.DefaultProvider != "" {
		if _, ok := lookup(cfg.DefaultProvider); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, normalizeID(cfg.DefaultProvider))
		}
	}

	d := &Dispatcher{cfg: cfg, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// GenerateResponse dispatches req with the built-in configuration.
func GenerateResponse(ctx context.Context, req Request) (*Response, error) {
	d, err := New(config.Default())
	if err != nil {
		return nil, err
	}
	return d.GenerateResponse(ctx, req)
}

// GenerateResponse sends req.Payload to the requested provider and returns the
// normalized reply.
//
// An unknown provider id yields ErrUnsupportedProvider. Every other failure,
// including an empty payload, a missing credential, a provider error and a
// reply that is not valid JSON, is wrapped in ErrProcessingFailed; the cause
// stays reachable through errors.Is and errors.As.
//
// Normalization happens exactly once, here; adapters return the completion
// text untouched.
func (d *Dispatcher) GenerateResponse(ctx context.Context, req Request) (*Response, error) {
	id := normalizeID(req.Provider)
	if id == "" {
		id = normalizeID(d.cfg.DefaultProvider)
	}

	fam, ok := lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, id)
	}

	requestID := uuid.NewString()
	log := d.logger.With().Str("request_id", requestID).Str("provider", id).Logger()
	ctx = log.WithContext(ctx)

	adapter, err := NewAdapter(id, d.cfg, AdapterOptions{Model: req.Model, Task: req.Task, Logger: &log})
	if err != nil {
		if errors.Is(err, ErrUnsupportedProvider) {
			return nil, err
		}
		return nil, processingFailed(err)
	}
	defer func() {
		if cerr := adapter.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("failed to close adapter")
		}
	}()

	log.Debug().Str("model", adapter.Model()).Int("entries", len(req.Payload)).Bool("raw", req.ReturnRaw).Msg("dispatching")

	res := adapter.Generate(ctx, req.Payload, req.Credential)
	if res.Failed() {
		log.Debug().Err(res.Err).Msg("provider call failed")
		return nil, processingFailed(res.Err)
	}

	resp := &Response{
		RequestID: requestID,
		Provider:  fam.name,
		Model:     adapter.Model(),
		Raw:       res.Text,
	}

	if req.ReturnRaw {
		resp.Text = res.Text
		return resp, nil
	}

	var opts []normalize.Option
	if fam.sliceBraces {
		opts = append(opts, normalize.WithBraceSlicing())
	}
	if req.KeyValueFallback {
		opts = append(opts, normalize.WithKeyValueFallback())
	}

	normalized, err := normalize.Normalize(res.Text, opts...)
	if err != nil {
		log.Debug().Err(err).Msg("response is not valid JSON")
		return nil, processingFailed(err)
	}

	resp.Text = normalized.Text
	resp.Data = normalized.Value
	return resp, nil
}

func processingFailed(err error) error {
	return fmt.Errorf("%w: %w", ErrProcessingFailed, err)
}
