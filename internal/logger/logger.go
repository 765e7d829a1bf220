package logger

import (
	"log/slog"
	"os"
)

// New returns a JSON slog logger writing to stdout.
func New() *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: false,
	})
	return slog.New(handler)
}
