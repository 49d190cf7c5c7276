package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	// Color definitions for terminal output
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	infoColor    = color.New(color.FgCyan)
	boldColor    = color.New(color.Bold)
)

// printer writes status lines to one stream, usually stderr so generated
// text on stdout stays clean.
type printer struct {
	w io.Writer
}

func (p printer) Success(format string, args ...interface{}) {
	successColor.Fprintf(p.w, "✓ %s\n", fmt.Sprintf(format, args...))
}

func (p printer) Error(format string, args ...interface{}) {
	errorColor.Fprintf(p.w, "✗ %s\n", fmt.Sprintf(format, args...))
}

func (p printer) Warning(format string, args ...interface{}) {
	warningColor.Fprintf(p.w, "⚠ %s\n", fmt.Sprintf(format, args...))
}

func (p printer) Info(format string, args ...interface{}) {
	infoColor.Fprintf(p.w, "ℹ %s\n", fmt.Sprintf(format, args...))
}

func (p printer) Bold(format string, args ...interface{}) {
	boldColor.Fprintln(p.w, fmt.Sprintf(format, args...))
}
