// Package output handles formatting command results in different formats.
package output

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/adamancini/keel/internal/types"
)

// TextRenderer is implemented by results with a human readable form.
type TextRenderer interface {
	RenderText(w io.Writer) error
}

// Writer handles output in the specified format.
type Writer struct {
	format types.OutputFormat
	w      io.Writer
}

// NewWriter creates a new output writer.
func NewWriter(w io.Writer, format types.OutputFormat) *Writer {
	if format == "" {
		format = types.OutputText
	}
	return &Writer{format: format, w: w}
}

// Structured reports whether output is machine readable (json or yaml).
func (w *Writer) Structured() bool {
	return w.format == types.OutputJSON || w.format == types.OutputYAML
}

// Write outputs the given value in the configured format.
func (w *Writer) Write(v interface{}) error {
	switch w.format {
	case types.OutputJSON:
		enc := json.NewEncoder(w.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case types.OutputYAML:
		enc := yaml.NewEncoder(w.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		if r, ok := v.(TextRenderer); ok {
			return r.RenderText(w.w)
		}
		if s, ok := v.(fmt.Stringer); ok {
			_, err := fmt.Fprintln(w.w, s.String())
			return err
		}
		_, err := fmt.Fprintf(w.w, "%+v\n", v)
		return err
	}
}

// Printf writes a human readable message. It is dropped in structured
// formats so that stdout stays parseable.
func (w *Writer) Printf(format string, args ...interface{}) {
	if w.Structured() {
		return
	}
	_, _ = fmt.Fprintf(w.w, format, args...)
}
