package app

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/netfabric/fabsync/internal/config"
	"github.com/netfabric/fabsync/pkg/logging"
)

// NewLogger creates a configured logger based on the application
// configuration. Log level precedence (highest to lowest):
//  1. --log-level flag (explicit always wins)
//  2. -v/--verbose flag (shortcut for debug)
//  3. -q/--quiet flag (shortcut for warn)
//  4. LOG_LEVEL environment variable (already in config)
//  5. Default (info)
func NewLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(determineLogLevel(cfg))
	if err != nil {
		level = zerolog.InfoLevel
	}

	out := logOutput(cfg)
	var logger zerolog.Logger
	if useConsole(cfg, out) {
		writer := zerolog.ConsoleWriter{
			Out:     out,
			NoColor: cfg.NoColor || os.Getenv("NO_COLOR") != "",
		}
		logger = logging.New(writer)
	} else {
		logger = logging.New(out)
	}

	return logger.Level(level)
}

// determineLogLevel determines the log level using clear precedence rules.
func determineLogLevel(cfg *config.Config) string {
	// 1. Explicit --log-level always wins
	if cfg.LogLevel != "" && cfg.LogLevel != "info" {
		return validateLogLevel(cfg.LogLevel)
	}

	// 2. Conflicting boolean flags: quiet is more restrictive, use it
	if cfg.Verbose && cfg.Quiet {
		fmt.Fprintf(os.Stderr, "Warning: both --verbose and --quiet specified, using --quiet\n")
		return "warn"
	}

	// 3. Boolean shortcuts
	if cfg.Verbose {
		return "debug"
	}
	if cfg.Quiet {
		return "warn"
	}

	if cfg.LogLevel != "" {
		return validateLogLevel(cfg.LogLevel)
	}
	return "info"
}

// validateLogLevel returns the level if known, "info" otherwise.
func validateLogLevel(level string) string {
	switch level {
	case "trace", "debug", "info", "warn", "error":
		return level
	}
	fmt.Fprintf(os.Stderr, "Warning: invalid log level %q, using \"info\"\n", level)
	return "info"
}

func logOutput(cfg *config.Config) *os.File {
	if cfg.LogOutput == "stdout" {
		return os.Stdout
	}
	return os.Stderr
}

func useConsole(cfg *config.Config, out *os.File) bool {
	switch cfg.LogFormat {
	case "console":
		return true
	case "json":
		return false
	default: // auto
		return isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd())
	}
}
