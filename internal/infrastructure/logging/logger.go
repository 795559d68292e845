package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/avews-bridge/internal/infrastructure/config"
)

const serviceName = "avews-bridge"

// Logger is the bridge's structured logger. Every record carries the
// service name and build version. Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a logger from the logging section of the config. JSON is the
// default format; "text" selects logfmt-style output for a terminal.
func New(cfg config.LoggingConfig, version string) *Logger {
	out := io.Writer(os.Stdout)
	if strings.EqualFold(cfg.Output, "stderr") {
		out = os.Stderr
	}
	return newLogger(out, cfg, version)
}

func newLogger(out io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.Verbose {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return &Logger{Logger: slog.New(handler).With(
		"service", serviceName,
		"version", version,
	)}
}

// parseLevel maps debug, warn/warning and error; anything else is info.
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

// With returns a child logger carrying args on every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component returns a child logger tagged component=name, e.g. "controller",
// "hub" or "api".
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default is the info-level JSON logger used until the config is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}
