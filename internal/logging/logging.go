// Package logging sets up the process-wide zerolog.Logger used everywhere
// else in the engine: structured, greppable events (reservation_id,
// exchange, currency_pair fields) in a terse one-line-per-event style.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Init builds the root logger. level is one of "trace", "debug", "info",
// "warn", "error" (case-insensitive, defaulting to "info" on anything else).
// pretty selects a human-readable console writer (development) over raw
// JSON lines (production, the shape log aggregators expect).
func Init(level string, pretty bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}

	var writer zerolog.LevelWriter
	if pretty {
		cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		writer = zerolog.MultiLevelWriter(cw)
	} else {
		writer = zerolog.MultiLevelWriter(os.Stdout)
	}

	return zerolog.New(writer).Level(parsed).With().Timestamp().Logger()
}
