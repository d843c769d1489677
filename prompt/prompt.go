// Package prompt builds the instructional prompt sent to every provider.
//
// The prompt asks the model for plain "KEY => VALUE" lines and forbids any
// formatting wrappers. Input entries are listed highest count first so the
// model sees the most significant items before the long tail.
package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidArgument is returned when the prompt cannot be built from the given input.
var ErrInvalidArgument = errors.New("invalid argument")

// DefaultTask is used by adapters when the caller does not supply a task description.
const DefaultTask = "Analyze the following access counts and report, for each key, a short " +
	"assessment of its activity level relative to the others."

// FormatRules is the fixed output-format block included verbatim in every prompt.
const FormatRules = "Output Requirements:\n" +
	"- Return only key-value pairs (one per line).\n" +
	"- Format: <KEY> => <VALUE>\n" +
	"- Do NOT include explanations, markdown, comments, or conversational text.\n" +
	"- Do NOT wrap the output in JSON or any block formatting.\n" +
	"- Ensure output is clean and directly parseable line-by-line.\n"

const (
	inputMarker = "=== Input ===\n"
	beginMarker = "=== Begin Output ===\n"
)

// Payload maps keys to scalar values (numbers, strings or booleans).
type Payload map[string]any

// Build renders the prompt for payload and task.
func Build(payload Payload, task string) (string, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return "", fmt.Errorf("%w: prompt requires a task description", ErrInvalidArgument)
	}

	entries, err := orderedEntries(payload)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(task)
	b.WriteString("\n\n")
	b.WriteString(FormatRules)
	b.WriteString("\n")
	b.WriteString(inputMarker)
	for _, e := range entries {
		fmt.Fprintf(&b, "%s: %s\n", e.key, e.text)
	}
	b.WriteString("\n")
	b.WriteString(beginMarker)
	return b.String(), nil
}

type entry struct {
	key     string
	text    string
	sortKey float64
}

// orderedEntries returns payload entries sorted by descending numeric value.
// Non-numeric values sort as zero; ties keep key order.
func orderedEntries(payload Payload) ([]entry, error) {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]entry, 0, len(keys))
	for _, k := range keys {
		v := payload[k]
		text, err := formatScalar(v)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", ErrInvalidArgument, k, err)
		}
		n, _ := Numeric(v)
		entries = append(entries, entry{key: k, text: text, sortKey: n})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].sortKey > entries[j].sortKey
	})
	return entries, nil
}

// Numeric reports the numeric value of v when v is a number.
// Booleans are not numbers here.
func Numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func formatScalar(v any) (string, error) {
	switch s := v.(type) {
	case nil:
		return "", errors.New("nil value")
	case string:
		return s, nil
	case bool, json.Number:
		return fmt.Sprint(s), nil
	}
	if _, ok := Numeric(v); ok {
		return fmt.Sprint(v), nil
	}
	return "", fmt.Errorf("unsupported value type %T", v)
}
