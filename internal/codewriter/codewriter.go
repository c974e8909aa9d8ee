// Package codewriter is a small helper for emitting indented source text.
package codewriter

import (
	"bytes"
	"fmt"
	"strings"
)

// Writer accumulates indented lines of text.
type Writer struct {
	buf    *bytes.Buffer
	indent string
	depth  int
}

// Option for a [Writer].
type Option func(*Writer)

// WithIndent sets the string written once per indentation level. Defaults to two spaces.
func WithIndent(indent string) Option {
	return func(w *Writer) { w.indent = indent }
}

// New creates a new, empty Writer.
func New(options ...Option) *Writer {
	w := &Writer{buf: &bytes.Buffer{}, indent: "  "}
	for _, option := range options {
		option(w)
	}
	return w
}

// L writes an indented line. An empty format writes a blank line without indentation.
func (w *Writer) L(format string, args ...any) {
	if format == "" {
		w.buf.WriteByte('\n')
		return
	}
	w.Indent()
	fmt.Fprintf(w.buf, format, args...)
	w.buf.WriteByte('\n')
}

// W writes formatted text without indentation or a trailing newline.
func (w *Writer) W(format string, args ...any) {
	fmt.Fprintf(w.buf, format, args...)
}

// Indent writes the indentation for the current depth.
func (w *Writer) Indent() {
	w.buf.WriteString(strings.Repeat(w.indent, w.depth))
}

// In calls fn with the Writer indented one level deeper.
func (w *Writer) In(fn func(w *Writer)) {
	w.depth++
	defer func() { w.depth-- }()
	fn(w)
}

// Bytes returns the text written so far.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

func (w *Writer) String() string { return w.buf.String() }
