package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ServiceName is stamped on every log line.
const ServiceName = "exstem-proctor"

// Setup initializes the global zerolog level and returns a logger writing to
// stdout. format "pretty" selects the console writer; anything else is JSON.
func Setup(level, format string) zerolog.Logger {
	lvl := parseLevel(level)
	zerolog.SetGlobalLevel(lvl)
	return New(os.Stdout, lvl, format)
}

// New builds a logger on w without touching global state.
func New(w io.Writer, lvl zerolog.Level, format string) zerolog.Logger {
	if format == "pretty" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Caller().
		Str("service", ServiceName).
		Logger()
}

// parseLevel falls back to info for an empty or unknown level.
func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
