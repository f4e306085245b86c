// Package logging configures the zerolog logger used for diagnostics.
package logging

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Level maps the -v count to a log level.
func Level(verbosity int) zerolog.Level {
	switch {
	case verbosity <= 0:
		return zerolog.WarnLevel
	case verbosity == 1:
		return zerolog.InfoLevel
	case verbosity == 2:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// New returns a human readable logger writing to w, normally stderr.
func New(w io.Writer, verbosity int) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly, NoColor: true}
	return zerolog.New(out).Level(Level(verbosity)).With().Timestamp().Logger()
}
