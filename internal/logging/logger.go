// Package logging provides the process-wide structured logger. It is a
// thin component-aware wrapper around zerolog; every subsystem obtains
// a scoped logger via WithComponent and logs key/value fields.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration.
type Config struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Output     string `json:"output"`      // "stdout", "stderr", or file path
	JSONFormat bool   `json:"json_format"` // JSON lines vs console format
}

// Logger wraps a zerolog.Logger with the field helpers the rest of the
// codebase uses.
type Logger struct {
	zl zerolog.Logger
}

var (
	defaultLogger *Logger
	defaultMu     sync.RWMutex
)

// ParseLevel converts a config string into a zerolog level, defaulting
// to info for unknown values.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New creates a logger from configuration.
func New(cfg *Config) *Logger {
	var output io.Writer = os.Stdout
	switch cfg.Output {
	case "", "stdout":
	case "stderr":
		output = os.Stderr
	default:
		if file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
			output = file
		}
	}

	if !cfg.JSONFormat {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	zl := zerolog.New(output).
		Level(ParseLevel(cfg.Level)).
		With().Timestamp().Logger()

	return &Logger{zl: zl}
}

// Default returns the process-wide logger.
func Default() *Logger {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()
	if l != nil {
		return l
	}
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New(&Config{Level: "info", Output: "stdout", JSONFormat: true})
	}
	return defaultLogger
}

// SetDefault replaces the process-wide logger.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// WithComponent returns a logger scoped to a subsystem name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", component).Logger()}
}

// WithField returns a logger carrying an extra field on every entry.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

// WithError returns a logger carrying an error field.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{zl: l.zl.With().Str("error", err.Error()).Logger()}
}

func (l *Logger) emit(ev *zerolog.Event, msg string, kv []interface{}) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		switch v := kv[i+1].(type) {
		case error:
			if v != nil {
				ev = ev.Str(key, v.Error())
			}
		default:
			ev = ev.Interface(key, v)
		}
	}
	ev.Msg(msg)
}

// Debug logs at debug level with optional key/value pairs.
func (l *Logger) Debug(msg string, kv ...interface{}) { l.emit(l.zl.Debug(), msg, kv) }

// Info logs at info level with optional key/value pairs.
func (l *Logger) Info(msg string, kv ...interface{}) { l.emit(l.zl.Info(), msg, kv) }

// Warn logs at warn level with optional key/value pairs.
func (l *Logger) Warn(msg string, kv ...interface{}) { l.emit(l.zl.Warn(), msg, kv) }

// Error logs at error level with optional key/value pairs.
func (l *Logger) Error(msg string, kv ...interface{}) { l.emit(l.zl.Error(), msg, kv) }

// Fatal logs at fatal level and exits the process.
func (l *Logger) Fatal(msg string, kv ...interface{}) { l.emit(l.zl.Fatal(), msg, kv) }

// WithComponent returns a component logger from the default logger.
func WithComponent(component string) *Logger {
	return Default().WithComponent(component)
}

// Info logs on the default logger.
func Info(msg string, kv ...interface{}) { Default().Info(msg, kv...) }

// Warn logs on the default logger.
func Warn(msg string, kv ...interface{}) { Default().Warn(msg, kv...) }

// Error logs on the default logger.
func Error(msg string, kv ...interface{}) { Default().Error(msg, kv...) }
