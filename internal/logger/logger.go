package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/EgehanKilicarslan/authgate/internal/config"
)

func New(cfg *config.Config) *slog.Logger {
	logger := NewWithWriter(cfg, os.Stdout)

	slog.SetDefault(logger)

	return logger
}

// NewWithWriter builds the same handler as New but writes to w and leaves the default logger alone
func NewWithWriter(cfg *config.Config, w io.Writer) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	if cfg.IsProduction() {
		// JSON format
		handler = slog.NewJSONHandler(w, opts)
	} else {
		// Human-readable format
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler).With("service", "authgate")
}

// Discard returns a logger that drops everything, used by tests
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
