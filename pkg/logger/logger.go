package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

type options struct {
	addSource bool
	output    io.Writer
}

// Option customises the logger built by New.
type Option func(*options)

// WithSource adds the caller's file and line to every record.
func WithSource() Option {
	return func(o *options) {
		o.addSource = true
	}
}

// WithOutput redirects records to w instead of stdout.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.output = w
	}
}

// New returns a logger at the given level. Production environments get JSON
// records, everything else human-readable text. Every record carries the
// environment name.
func New(lvl string, environment string, opts ...Option) *slog.Logger {
	o := options{output: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     ParseLevel(lvl),
		AddSource: o.addSource,
	}

	var handler slog.Handler
	if strings.ToLower(environment) == "prod" {
		handler = slog.NewJSONHandler(o.output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(o.output, handlerOpts)
	}

	return slog.New(handler).With(
		slog.String("environment", environment),
	)
}

// ParseLevel maps a config level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
