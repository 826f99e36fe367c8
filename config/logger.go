package config

import (
	"io"
	"log/slog"
)

// NewLogger builds the process logger described by c.
func NewLogger(w io.Writer, c LogConfig) *slog.Logger {
	var lvl slog.Level
	switch c.Level {
	case LogDebug:
		lvl = slog.LevelDebug
	case LogWarn:
		lvl = slog.LevelWarn
	case LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if c.Format == FormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
