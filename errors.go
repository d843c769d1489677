package multillm

import (
	"errors"

	"github.com/xostack/multillm/normalize"
	"github.com/xostack/multillm/prompt"
	"github.com/xostack/multillm/provider"
)

var (
	// ErrInvalidArgument reports bad input to prompt construction.
	ErrInvalidArgument = prompt.ErrInvalidArgument
	// ErrUnsupportedProvider reports an unknown provider id.
	ErrUnsupportedProvider = errors.New("unsupported LLM provider")
	// ErrMalformedOutput reports a reply that could not be parsed as structured data.
	ErrMalformedOutput = normalize.ErrMalformedOutput
	// ErrProcessingFailed wraps every failure after provider selection.
	ErrProcessingFailed = errors.New("LLM processing failed")
	// ErrNoData reports an empty payload.
	ErrNoData = provider.ErrNoData
	// ErrMissingCredential reports that no credential could be resolved.
	ErrMissingCredential = provider.ErrMissingCredential
)
