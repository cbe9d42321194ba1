// Package observability defines shared logging and metrics primitives.
package observability

import (
	"fmt"
	"log"
	"strings"
)

// Logger captures structured logging behaviours shared across layers.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field represents a key/value pair for structured logging.
type Field struct {
	Key   string
	Value any
}

// F constructs a logging field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

var defaultLogger Logger = noopLogger{}

// SetLogger overrides the global logger used by the system.
func SetLogger(logger Logger) {
	if logger == nil {
		defaultLogger = noopLogger{}
		return
	}
	defaultLogger = logger
}

// Log returns the current global logger instance.
func Log() Logger {
	return defaultLogger
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...Field) {}
func (noopLogger) Info(string, ...Field)  {}
func (noopLogger) Warn(string, ...Field)  {}
func (noopLogger) Error(string, ...Field) {}

// StdLogger adapts the standard library logger to the Logger interface.
type StdLogger struct {
	logger  *log.Logger
	verbose bool
}

// NewStdLogger wraps l; when verbose is false Debug output is suppressed.
func NewStdLogger(l *log.Logger, verbose bool) *StdLogger {
	return &StdLogger{logger: l, verbose: verbose}
}

// Debug logs at debug level when verbose output is enabled.
func (s *StdLogger) Debug(msg string, fields ...Field) {
	if !s.verbose {
		return
	}
	s.print("DEBUG", msg, fields)
}

// Info logs at info level.
func (s *StdLogger) Info(msg string, fields ...Field) {
	s.print("INFO", msg, fields)
}

// Warn logs at warning level.
func (s *StdLogger) Warn(msg string, fields ...Field) {
	s.print("WARN", msg, fields)
}

// Error logs at error level.
func (s *StdLogger) Error(msg string, fields ...Field) {
	s.print("ERROR", msg, fields)
}

func (s *StdLogger) print(level, msg string, fields []Field) {
	if s.logger == nil {
		return
	}
	if len(fields) == 0 {
		s.logger.Printf("%s %s", level, msg)
		return
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", f.Key, f.Value))
	}
	s.logger.Printf("%s %s %s", level, msg, strings.Join(parts, " "))
}
