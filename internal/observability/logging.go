// Package observability provides the service's structured logging
// setup. Every component gets a zerolog logger tagged with its name;
// output is JSON on stdout.
package observability

import (
	"os"

	"github.com/rs/zerolog"
)

// NewLogger creates a component-tagged logger. The level comes from
// MINEPOOL_LOG_LEVEL (debug, info, warn, error); unset or unknown
// values mean info.
func NewLogger(component string) zerolog.Logger {
	return zerolog.New(os.Stdout).
		Level(parseLevel(os.Getenv("MINEPOOL_LOG_LEVEL"))).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

func parseLevel(s string) zerolog.Level {
	switch s {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
