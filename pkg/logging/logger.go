// Package logging provides structured logging for the fabsync system
// using zerolog. Console output is used when attached to a terminal
// and structured JSON everywhere else, selectable with
// FABSYNC_LOG_FORMAT.
//
// Example usage:
//
//	log := logging.Default()
//	log.Info().Str("fabric", "f1").Msg("Starting reconciliation")
//
//	ctx := logging.WithLogger(context.Background(), log)
//	logging.Ctx(ctx).Debug().Msg("Using logger from context")
package logging

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Nop discards everything. Tests pass it to silence components.
var Nop = zerolog.Nop()

var defaultLogger = newDefault()

func newDefault() zerolog.Logger {
	level := levelFromEnv()
	zerolog.SetGlobalLevel(level)

	var w io.Writer = os.Stderr
	if useConsole() {
		w = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.Kitchen,
			NoColor:    os.Getenv("NO_COLOR") != "",
		}
	}

	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	if level <= zerolog.DebugLevel {
		logger = logger.With().Caller().Logger()
	}
	return logger
}

// Default returns the process-wide logger.
func Default() *zerolog.Logger {
	return &defaultLogger
}

// SetDefault replaces the process-wide logger, including zerolog's own
// global instance.
func SetDefault(logger zerolog.Logger) {
	defaultLogger = logger
	log.Logger = logger
}

// New creates a timestamped logger writing to w at the global level.
func New(w io.Writer) zerolog.Logger {
	return zerolog.New(w).Level(zerolog.GlobalLevel()).With().Timestamp().Logger()
}

// NewConsole creates a human-readable logger on stderr.
func NewConsole() zerolog.Logger {
	return New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.Kitchen,
		NoColor:    os.Getenv("NO_COLOR") != "",
	})
}

// NewJSON creates a structured JSON logger, defaulting to stderr.
func NewJSON(w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return New(w)
}

// useConsole reports whether console rendering should be used: stderr
// is a terminal and FABSYNC_LOG_FORMAT does not force JSON.
func useConsole() bool {
	if os.Getenv("FABSYNC_LOG_FORMAT") == "json" {
		return false
	}
	return isatty.IsTerminal(os.Stderr.Fd())
}

// levelFromEnv resolves the level from FABSYNC_LOG_LEVEL, defaulting
// to info. An unparsable value also falls back to info.
func levelFromEnv() zerolog.Level {
	s := os.Getenv("FABSYNC_LOG_LEVEL")
	if s == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
