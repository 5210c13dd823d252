package config

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger builds the process logger: JSON lines in production, text elsewhere, filtered at
// cfg.LogLevel.
func NewLogger(cfg *Config) *slog.Logger {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.level()}
	var h slog.Handler
	if cfg.Environment == "production" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// level maps LogLevel onto slog levels; validate has already rejected unknown names.
func (c *Config) level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}
