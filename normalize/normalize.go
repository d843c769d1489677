// Package normalize reduces loosely formatted model output to structured data.
//
// Models routinely wrap their answer in a markdown fence, surround it with
// explanation, or get cut off before the closing fence. Normalize strips
// that noise, strictly parses what remains as JSON and re-serializes it with
// two-space indentation so every provider yields the same shape.
package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// ErrMalformedOutput is returned when a response cannot be reduced to structured data.
var ErrMalformedOutput = errors.New("malformed output")

const fence = "```"

// fencePattern matches the first fenced block. The language tag is optional and
// must be followed by whitespace so that a one-line block such as ```true``` is
// not mistaken for a tag.
var fencePattern = regexp.MustCompile("(?s)```(?:[A-Za-z][A-Za-z0-9_+.-]*(?:[ \\t]*\\r?\\n|[ \\t]+))?(.*?)```")

// gluedTagPattern matches a json tag directly followed by an object or array.
var gluedTagPattern = regexp.MustCompile(`(?s)^(?i:json)([{\[].*)$`)

var (
	keyValuePattern = regexp.MustCompile(`^\s*(?:[-*]\s+)?(.+?)\s*=>\s*(.*?)\s*$`)
	numberPattern   = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?(?:[eE][+-]?\d+)?$`)
)

// Result is a successfully normalized response.
type Result struct {
	// Text is Value serialized with two-space indentation.
	Text string
	// Value is the parsed document. Numbers are json.Number.
	Value any
}

type options struct {
	sliceBraces      bool
	keyValueFallback bool
}

// Option tunes Normalize.
type Option func(*options)

// WithBraceSlicing retries a failed parse on the span from the first '{' to
// the last '}', discarding prose a model added around its payload.
func WithBraceSlicing() Option {
	return func(o *options) { o.sliceBraces = true }
}

// WithKeyValueFallback parses "KEY => VALUE" lines into an object when the
// text is not valid JSON.
func WithKeyValueFallback() Option {
	return func(o *options) { o.keyValueFallback = true }
}

// StripFence returns the interior of the first fenced block in raw. An opening
// fence with no closing fence (a truncated response) is dropped. Text without
// a fence is returned trimmed.
func StripFence(raw string) string {
	if m := fencePattern.FindStringSubmatch(raw); m != nil {
		return stripGluedTag(strings.TrimSpace(m[1]))
	}

	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, fence) {
		text = strings.TrimPrefix(text, fence)
		if glued := stripGluedTag(text); glued != text {
			text = glued
		} else if i := strings.IndexByte(text, '\n'); i >= 0 {
			text = text[i+1:]
		}
	}
	return strings.TrimSpace(text)
}

func stripGluedTag(text string) string {
	if m := gluedTagPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return text
}

// SliceBraces returns text from the first '{' through the last '}' inclusive.
// Text without such a span is returned unchanged.
func SliceBraces(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end == -1 || end < start {
		return text
	}
	return text[start : end+1]
}

// Normalize strips formatting from raw and strictly parses the result.
func Normalize(raw string, opts ...Option) (Result, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cleaned := StripFence(raw)

	value, err := parseStrict(cleaned)
	if err != nil && o.sliceBraces {
		if sliced := SliceBraces(cleaned); sliced != cleaned {
			if v, serr := parseStrict(sliced); serr == nil {
				value, err = v, nil
			}
		}
	}
	if err != nil {
		if !o.keyValueFallback {
			return Result{}, fmt.Errorf("%w: %w", ErrMalformedOutput, err)
		}
		kv, ok := parseKeyValueLines(cleaned)
		if !ok {
			return Result{}, fmt.Errorf("%w: %w", ErrMalformedOutput, err)
		}
		value = kv
	}

	text, err := Indent(value)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrMalformedOutput, err)
	}
	return Result{Text: text, Value: value}, nil
}

// Indent serializes v as JSON with two-space indentation and no trailing newline.
func Indent(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// parseStrict decodes exactly one JSON value from text.
func parseStrict(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty response")
		}
		return nil, err
	}

	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after JSON value at offset %d", dec.InputOffset())
	}
	return v, nil
}

func parseKeyValueLines(text string) (map[string]any, bool) {
	out := make(map[string]any)
	for _, line := range strings.Split(text, "\n") {
		m := keyValuePattern.FindStringSubmatch(line)
		if m == nil || m[1] == "" {
			continue
		}
		out[m[1]] = scalar(m[2])
	}
	return out, len(out) > 0
}

func scalar(s string) any {
	if numberPattern.MatchString(s) {
		return json.Number(s)
	}
	return s
}
