package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New creates a JSON zerolog logger configured at the provided level. If the
// level string is invalid it defaults to info.
func New(service, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	return zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", service).
		Logger().
		Level(ParseLevel(level))
}

// ParseLevel maps a level name to a zerolog level.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Discard returns a logger that drops all output. Useful for tests.
func Discard() zerolog.Logger {
	return zerolog.New(io.Discard).Level(zerolog.Disabled)
}
