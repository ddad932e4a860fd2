// Package logging is the structured logger shared by the simulator. Records
// carry the request_id found on the context, whichever backend is in use.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Field is one key/value attribute of a log record.
type Field struct {
	Key   string
	Value any
}

// Convenience helpers for common field types.
func String(key, value string) Field                 { return Field{Key: key, Value: value} }
func Int(key string, value int) Field                { return Field{Key: key, Value: value} }
func Uint64(key string, value uint64) Field          { return Field{Key: key, Value: value} }
func Float64(key string, value float64) Field        { return Field{Key: key, Value: value} }
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }
func Any(key string, value any) Field                { return Field{Key: key, Value: value} }

// Err records err under the "error" key as its message.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error"}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Logger is implemented by the slog and zap backends. Every component of the
// simulator takes one and defaults to Noop.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Config selects the backend, level and encoding.
type Config struct {
	Level     string    `yaml:"level"`      // debug, info, warn, error
	Format    string    `yaml:"format"`     // text or json
	Backend   string    `yaml:"backend"`    // slog or zap
	AddSource bool      `yaml:"add_source"` // caller locations
	Output    io.Writer `yaml:"-"`
}

func (c Config) output() io.Writer {
	if c.Output == nil {
		return os.Stdout
	}
	return c.Output
}

func (c Config) json() bool { return strings.EqualFold(c.Format, "json") }

// New builds a Logger for cfg. Unknown levels fall back to info and unknown
// backends to slog.
func New(cfg Config) Logger {
	if strings.EqualFold(cfg.Backend, "zap") {
		return newZap(cfg)
	}
	return newSlog(cfg)
}

// ConfigFromEnv overlays LOG_LEVEL, LOG_FORMAT and LOG_BACKEND onto base.
func ConfigFromEnv(base Config) Config {
	for _, o := range []struct {
		env string
		dst *string
	}{
		{"LOG_LEVEL", &base.Level},
		{"LOG_FORMAT", &base.Format},
		{"LOG_BACKEND", &base.Backend},
	} {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
	return base
}

// Noop drops every record.
func Noop() Logger { return noopLogger{} }

type noopLogger struct{}

func (noopLogger) With(...Field) Logger                    { return noopLogger{} }
func (noopLogger) Debug(context.Context, string, ...Field) {}
func (noopLogger) Info(context.Context, string, ...Field)  {}
func (noopLogger) Warn(context.Context, string, ...Field)  {}
func (noopLogger) Error(context.Context, string, ...Field) {}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
