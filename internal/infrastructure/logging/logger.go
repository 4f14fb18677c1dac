package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/nerrad567/mqtt-journal/internal/infrastructure/config"
)

// serviceName is attached to every log entry.
const serviceName = "mqttjournal"

// Output formats accepted in logging.format.
const (
	FormatJSON    = "json"
	FormatText    = "text"
	FormatConsole = "console"
)

// Logger wraps slog.Logger with the service and version attributes.
//
// Thread Safety: All methods are safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New creates a Logger writing to the destination named in cfg.Output:
// "stdout", "stderr" or "discard" (anything else means stdout).
//
// Parameters:
//   - cfg: Logging configuration from config.yaml
//   - version: Added as the version attribute on every entry
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, version string) *Logger {
	var w io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		w = os.Stderr
	case "discard":
		w = io.Discard
	default:
		w = os.Stdout
	}
	return NewWithWriter(cfg, version, w)
}

// NewWithWriter is New with an explicit destination; cfg.Output is ignored.
//
// The format is "json" (default), "text" (slog key=value) or "console"
// (aligned, coloured lines when w is a terminal).
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case FormatText:
		handler = slog.NewTextHandler(w, opts)
	case FormatConsole:
		handler = newConsoleHandler(w, level, useColor(w))
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(handler)}
}

// useColor reports whether w is a terminal that should get ANSI colours.
// color.NoColor already accounts for NO_COLOR and a non-terminal stdout.
func useColor(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || color.NoColor {
		return false
	}
	return f == os.Stdout || f == os.Stderr
}

// parseLevel maps debug, info, warn (or warning) and error, in any case, to
// slog levels. Anything else is info.
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

// With returns a child Logger that adds args to every entry.
//
// Example:
//
//	log := logger.With("component", "archive")
//	log.Info("pruned", "rows", n) // includes component=archive
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default returns a text logger on stderr for use before configuration is
// loaded. Stdout is left to the console printer.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: FormatText, Output: "stderr"}, "dev")
}
