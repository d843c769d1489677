// Package rawlog persists the most recent raw model output for diagnostics.
package rawlog

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultPath is where adapters that keep a diagnostic log write by default.
	DefaultPath = "logs/llm_raw_output.log"

	dirPerm  = 0750
	filePerm = 0600
)

// Writer overwrites a single file with each raw output it is given.
// A Writer with an empty Path discards everything. Concurrent writers sharing
// a path race; last write wins.
type Writer struct {
	Path string
}

// New returns a Writer for path.
func New(path string) *Writer {
	return &Writer{Path: path}
}

// Enabled reports whether the writer has somewhere to write.
func (w *Writer) Enabled() bool {
	return w != nil && w.Path != ""
}

// Write replaces the log file's contents with text, creating its directory if needed.
func (w *Writer) Write(text string) (err error) {
	if !w.Enabled() {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(w.Path), dirPerm); err != nil {
		return fmt.Errorf("failed to create log directory for %s: %w", w.Path, err)
	}

	f, err := os.OpenFile(w.Path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return fmt.Errorf("failed to open raw output log %s: %w", w.Path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close raw output log %s: %w", w.Path, cerr)
		}
	}()

	if _, err := f.WriteString(text); err != nil {
		return fmt.Errorf("failed to write raw output log %s: %w", w.Path, err)
	}
	return nil
}
