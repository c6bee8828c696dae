// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger. The returned logger carries
// its own level so it filters correctly even when passed around by value.
func Setup(cfg Config) zerolog.Logger {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	var output io.Writer = cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(output).Level(level).With().Timestamp().Logger()

	// Set as global logger
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
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

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Request dispatch (method, url)
//   - Mutation-delay waits before sends
//   - Retry scheduling (attempt, wait, error class)
//   - Routine rate limit header updates
//
// Info: Normal operation events
//   - Requests that succeeded after one or more retries
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Error responses entering the retry loop
//   - Requests given up on after exhausting their budget
//   - Rate limit running low
//   - Redis mirror failures (tracking degrades to memory only)
//
// Error: Error conditions requiring attention
//   - Rate limit window exhausted
//   - Service unavailability
//   - Configuration errors
//
// Context Fields:
//   - method: HTTP method
//   - url: resolved request URL
//   - status: HTTP status code
//   - attempt/attempts: retry counters for one dispatch
//   - wait: sleep imposed before the next send
//   - error_class: error classification (client, server, rate_limit, network)
//   - resource: rate-limit bucket (core, search, ...)
//   - remaining/reset_at: rate limit window state
