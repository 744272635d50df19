// Package ctxlog carries the cellar logger through context.Context.
package ctxlog

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/log"
)

type key struct{}

var discard = log.New(io.Discard)

// New returns a logger writing to w at the named level ("debug", "info",
// "warn", "error"). An unknown level falls back to info.
func New(w io.Writer, level string) *log.Logger {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	return log.NewWithOptions(w, log.Options{
		Prefix: "cellar",
		Level:  lvl,
	})
}

// Stderr returns a logger writing to os.Stderr.
func Stderr(level string) *log.Logger {
	return New(os.Stderr, level)
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *log.Logger) context.Context {
	return context.WithValue(ctx, key{}, logger)
}

// FromContext returns the logger carried by ctx. Without one, log output
// is discarded.
func FromContext(ctx context.Context) *log.Logger {
	if logger, ok := ctx.Value(key{}).(*log.Logger); ok {
		return logger
	}
	return discard
}
