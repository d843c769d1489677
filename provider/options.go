package provider

import (
	"time"

	"github.com/rs/zerolog"
)

const defaultRequestTimeout = 60 * time.Second

// ClientOptions are the construction settings shared by backend clients.
type ClientOptions struct {
	// Model overrides the backend's default model when non-empty.
	Model string
	// BaseURL overrides the backend's endpoint or server address when non-empty.
	BaseURL string
	// RequestTimeoutSeconds bounds one round trip. <= 0 means 60 seconds.
	RequestTimeoutSeconds int
	// Logger receives construction and request diagnostics. Nil disables logging.
	Logger *zerolog.Logger
}

// Log returns the configured logger or a disabled one.
func (o ClientOptions) Log() zerolog.Logger {
	if o.Logger == nil {
		return zerolog.Nop()
	}
	return *o.Logger
}

// Timeout returns the request timeout as a duration.
func (o ClientOptions) Timeout() time.Duration {
	if o.RequestTimeoutSeconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(o.RequestTimeoutSeconds) * time.Second
}

// ModelOr returns the override model, or def when none is set.
func (o ClientOptions) ModelOr(def string) string {
	log := o.Log()
	if o.Model != "" {
		log.Debug().Str("model", o.Model).Msg("using overridden model")
		return o.Model
	}
	log.Debug().Str("model", def).Msg("using default model")
	return def
}

// BaseURLOr returns the override base URL, or def when none is set.
func (o ClientOptions) BaseURLOr(def string) string {
	if o.BaseURL != "" {
		return o.BaseURL
	}
	return def
}
