// Package logging configures the zerolog loggers used by restcsv.
//
// Library packages never log through the global logger: they take a
// zerolog.Logger in their Config or options and default to zerolog.Nop().
// Only cmd/restcsv calls Setup.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs every request attempt and page.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs run start and completion.
	LevelInfo LogLevel = "info"

	// LevelWarn logs retries, partial results and cache problems.
	LevelWarn LogLevel = "warn"

	// LevelError logs failed runs only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel `yaml:"level"`

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool `yaml:"pretty"`

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer `yaml:"-"`
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// New builds a logger from cfg without touching global state.
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	level, err := ParseLevel(string(cfg.Level))
	if err != nil {
		level = LevelInfo
	}

	return zerolog.New(out).
		Level(zerologLevel(level)).
		With().
		Timestamp().
		Logger()
}

// Setup builds a logger from cfg and installs it as the global logger.
func Setup(cfg Config) zerolog.Logger {
	logger := New(cfg)
	log.Logger = logger
	return logger
}

// ParseLevel validates a level name. "warning" is accepted for "warn" and
// an empty name selects info.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return "", fmt.Errorf("unknown log level %q (want debug, info, warn or error)", s)
	}
}

func zerologLevel(level LogLevel) zerolog.Level {
	switch level {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger derives a logger for component from the global logger.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: per request detail
//   - Request attempts (params, attempt number)
//   - Pages fetched and page sizes
//   - Cache hits and stores (key, TTL)
//
// Info: run lifecycle
//   - Run started, pagination complete
//   - CSV written (rows, columns, duration)
//   - Request succeeded after retry
//
// Warn: degraded but usable results
//   - Failed request attempts that will be retried
//   - Partial results after a failed page
//   - Skipped non-object records
//   - Cache errors (request goes to the API)
//
// Error: nothing useful was produced
//   - Retries exhausted
//   - Empty result, output not written
//   - Invalid jobs and CSV write failures
//
// Context Fields:
//   - component: client, fetcher, cli
//   - run_id: uuid of one fetch run
//   - job: job name from the config file
//   - url: endpoint URL
//   - strategy: pagination strategy
//   - page: 1-based page number
//   - attempt: 1-based attempt number
//   - error_class: http, connection, timeout, generic
//   - records, rows, columns: counts
//   - output: CSV file path
