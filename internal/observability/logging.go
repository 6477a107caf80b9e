package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger creates a structured logger for one component.
// Level comes from YV_LOG_LEVEL (default info); YV_LOG_FORMAT=console
// switches to human-readable output.
func NewLogger(component string) zerolog.Logger {
	return NewLoggerTo(os.Stdout, component, os.Getenv("YV_LOG_LEVEL"), os.Getenv("YV_LOG_FORMAT"))
}

// NewLoggerTo is NewLogger with explicit output and settings.
func NewLoggerTo(w io.Writer, component, level, format string) zerolog.Logger {
	if strings.EqualFold(format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).
		Level(ParseLogLevel(level)).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// ParseLogLevel maps debug|info|warn|error; anything else is info.
func ParseLogLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
