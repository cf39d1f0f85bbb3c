// Package logger provides colored, verbosity-aware CLI output.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// Logger writes leveled, optionally colored messages. All methods are safe to
// call on a nil receiver so callers can pass an optional logger without
// guarding every call site.
type Logger struct {
	mu       sync.Mutex
	verbose  bool
	useColor bool
	writer   io.Writer
}

// NewLogger creates a Logger writing to stderr. Output goes to stderr rather
// than stdout so command output stays machine-readable and the MCP stdio
// transport is never polluted.
func NewLogger(verbose, useColor bool) *Logger {
	return NewLoggerWithWriter(verbose, useColor, os.Stderr)
}

// NewLoggerWithWriter creates a Logger writing to the given writer.
func NewLoggerWithWriter(verbose, useColor bool, writer io.Writer) *Logger {
	return &Logger{
		verbose:  verbose,
		useColor: useColor,
		writer:   writer,
	}
}

// SetVerbose toggles verbose output.
func (l *Logger) SetVerbose(verbose bool) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verbose = verbose
}

// SetWriter redirects all subsequent output to w.
func (l *Logger) SetWriter(w io.Writer) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer = w
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.log("", format, args...)
}

// InfoVerbose logs an informational message only when verbose mode is on.
func (l *Logger) InfoVerbose(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.mu.Lock()
	verbose := l.verbose
	l.mu.Unlock()
	if !verbose {
		return
	}
	l.log("", format, args...)
}

// Success logs a success message.
func (l *Logger) Success(format string, args ...interface{}) {
	l.log(colorGreen, "✓ "+format, args...)
}

// Warning logs a warning message.
func (l *Logger) Warning(format string, args ...interface{}) {
	l.log(colorYellow, "⚠ "+format, args...)
}

// WarningVerbose logs a warning only when verbose mode is on.
func (l *Logger) WarningVerbose(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.mu.Lock()
	verbose := l.verbose
	l.mu.Unlock()
	if !verbose {
		return
	}
	l.Warning(format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(colorRed, "✗ "+format, args...)
}

// Debug logs a debug message only when verbose mode is on.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.mu.Lock()
	verbose := l.verbose
	l.mu.Unlock()
	if !verbose {
		return
	}
	l.log(colorGray, "[debug] "+format, args...)
}

func (l *Logger) log(color, format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if l.useColor && color != "" {
		fmt.Fprintf(l.writer, "%s%s%s\n", color, msg, colorReset)
	} else {
		fmt.Fprintln(l.writer, msg)
	}
}
