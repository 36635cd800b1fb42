// Package logger provides leveled logging for flcm.
// Warnings and errors are always printed to stderr. When verbose mode is
// enabled via the --verbose flag, debug and info messages are printed too,
// so users can follow stage transitions, index repairs and skipped documents.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Level orders log messages by importance.
type Level int

// Log levels, lowest first.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the tag printed in front of messages of this level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "LOG"
	}
}

var (
	mu        sync.RWMutex
	threshold           = LevelWarn
	output    io.Writer = os.Stderr
)

// SetVerbose lowers the threshold to debug, or restores the default of warn.
func SetVerbose(v bool) {
	if v {
		SetLevel(LevelDebug)
		return
	}
	SetLevel(LevelWarn)
}

// IsVerbose returns true if debug messages are printed.
func IsVerbose() bool {
	return Enabled(LevelDebug)
}

// SetLevel sets the lowest level that is printed.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	threshold = l
}

// Enabled reports whether messages at l are printed.
func Enabled(l Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return l >= threshold
}

// SetOutput sets the output writer. Defaults to os.Stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// Entry is a logger scoped by key=value fields, e.g. a pipeline run id.
type Entry struct {
	fields []string
}

// With returns an entry carrying one field.
func With(key, value string) *Entry {
	return (&Entry{}).With(key, value)
}

// With returns a copy of the entry with one more field.
func (e *Entry) With(key, value string) *Entry {
	fields := make([]string, len(e.fields), len(e.fields)+1)
	copy(fields, e.fields)
	return &Entry{fields: append(fields, key+"="+value)}
}

// Debug prints a debug message with the entry's fields.
func (e *Entry) Debug(format string, args ...any) { e.log(LevelDebug, format, args...) }

// Info prints an informational message with the entry's fields.
func (e *Entry) Info(format string, args ...any) { e.log(LevelInfo, format, args...) }

// Warn prints a warning with the entry's fields.
func (e *Entry) Warn(format string, args ...any) { e.log(LevelWarn, format, args...) }

// Error prints an error with the entry's fields.
func (e *Entry) Error(format string, args ...any) { e.log(LevelError, format, args...) }

func (e *Entry) log(l Level, format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if l < threshold {
		return
	}
	var b strings.Builder
	b.WriteString("[" + l.String() + "] ")
	for _, f := range e.fields {
		b.WriteString(f)
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, format, args...)
	b.WriteByte('\n')
	_, _ = io.WriteString(output, b.String())
}

var root = &Entry{}

// Debug prints a message if verbose mode is enabled.
func Debug(format string, args ...any) { root.log(LevelDebug, format, args...) }

// Info prints an informational message if verbose mode is enabled.
func Info(format string, args ...any) { root.log(LevelInfo, format, args...) }

// Warn prints a warning message.
func Warn(format string, args ...any) { root.log(LevelWarn, format, args...) }

// Error prints an error message.
func Error(format string, args ...any) { root.log(LevelError, format, args...) }

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	mu.RLock()
	defer mu.RUnlock()
	if threshold <= LevelDebug {
		fmt.Fprintf(output, "\n=== %s ===\n", name)
	}
}
