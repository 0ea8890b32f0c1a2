// Package logging builds the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"

	"github.com/lmittmann/tint"
)

// New returns a JSON logger for production or a colored tint logger for development.
// Both standardize the "error" key to "err".
func New(output io.Writer, level slog.Level, development bool) *slog.Logger {
	if development {
		return slog.New(tint.NewHandler(output, &tint.Options{
			Level:      level,
			TimeFormat: "2006-01-02 15:04:05.000Z07:00",
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				if a.Key == "error" {
					a.Key = "err"
				}
				if a.Value.Kind() == slog.KindAny {
					if _, ok := a.Value.Any().(error); ok {
						return tint.Attr(9, a)
					}
				}
				return a
			},
		}))
	}

	return slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == "error" {
				a.Key = "err"
			}
			return a
		},
	}))
}

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
