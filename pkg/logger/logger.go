// Package logger builds the structured zerolog logger shared by every component.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration
type Config struct {
	Level  string    // debug, info, warn, error
	Pretty bool      // Human-readable console output instead of JSON lines
	Output io.Writer // Defaults to os.Stdout
}

// ParseLevel maps a textual level to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New creates a new structured logger
func New(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = os.Stdout
	if cfg.Output != nil {
		output = cfg.Output
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: "15:04:05",
		}
	}

	return zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
}

// SetGlobalLogger sets the package-level logger
func SetGlobalLogger(l zerolog.Logger) {
	log.Logger = l
}
