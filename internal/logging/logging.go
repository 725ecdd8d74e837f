// Package logging provides centralized logging infrastructure for the relay.
// Components retrieve loggers via Component() instead of passing them through constructors.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	defaultLogger *slog.Logger
	mu            sync.RWMutex
	logLevel      = new(slog.LevelVar)
)

// Options controls how the global logger renders records.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text (colored) or json
	Output io.Writer
}

// OptionsFromEnv reads LOG_LEVEL, LOG_FORMAT and NO_COLOR.
func OptionsFromEnv() Options {
	format := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT")))
	if os.Getenv("NO_COLOR") != "" {
		format = "json"
	}
	return Options{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: format,
		Output: os.Stdout,
	}
}

// Init (re)initializes the global logger.
// Loggers obtained earlier through Component keep their old handler.
func Init(opts Options) {
	logLevel.Set(parseLogLevel(opts.Level))

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if opts.Format == "json" {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = NewColorHandler(out, handlerOpts)
	}

	mu.Lock()
	defaultLogger = slog.New(handler)
	mu.Unlock()
}

// Logger returns the global logger.
// Automatically initializes from the environment if not already done.
func Logger() *slog.Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l != nil {
		return l
	}

	Init(OptionsFromEnv())
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// Component returns a logger with component context.
// Use this at package level: var log = logging.Component("queue")
//
// The returned logger resolves the global handler on every record, so a
// package-level component logger follows a later Init.
func Component(name string) *slog.Logger {
	return slog.New(&deferredHandler{attrs: []slog.Attr{slog.String("component", name)}})
}

// WithFields returns a logger with additional fields.
func WithFields(fields ...any) *slog.Logger {
	return Logger().With(fields...)
}

// SetLevel changes the level of every logger at runtime.
func SetLevel(level string) {
	logLevel.Set(parseLogLevel(level))
}

// Level returns the current log level.
func Level() slog.Level {
	return logLevel.Level()
}

// IsDebugEnabled returns true if debug logging is enabled.
func IsDebugEnabled() bool {
	return Level() <= slog.LevelDebug
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
