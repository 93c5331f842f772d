// Package logger builds the zerolog logger used across contactd.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger writing to stderr. Development mode gets the
// human readable console writer, caller info and debug level.
func New(dev bool) zerolog.Logger {
	return NewWithWriter(os.Stderr, dev)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, dev bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	ctx := zerolog.New(w).Level(level).With().Timestamp().Str("service", "contactd")
	if dev {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// Component returns a child logger tagged with a subsystem name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
