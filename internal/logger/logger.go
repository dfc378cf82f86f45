// Package logger sets up the supervisor's own operational logging: a
// colored console handler plus a size/age-bounded rotating file, distinct
// from the target's log ring buffer.
package logger

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Config describes where the supervisor's own operational log goes.
type Config struct {
	Dir        string // directory holding watchdog.log; empty disables file logging
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	Debug      bool // include slog.LevelDebug records
}

// New builds a slog.Logger that writes colored text to stderr and, if
// Dir is set, also appends plain text to a rotated watchdog.log file.
func New(cfg Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	handler := slog.Handler(NewColorTextHandler(os.Stderr, opts, true))

	if cfg.Dir != "" {
		fileW := &lj.Logger{
			Filename:   filepath.Join(cfg.Dir, "watchdog.log"),
			MaxSize:    valOr(cfg.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: valOr(cfg.MaxBackups, DefaultMaxBackups),
			MaxAge:     valOr(cfg.MaxAgeDays, DefaultMaxAgeDays),
			Compress:   cfg.Compress,
		}
		fileHandler := slog.NewTextHandler(fileW, opts)
		handler = &multiHandler{handlers: []slog.Handler{handler, fileHandler}}
	}

	return slog.New(handler)
}

// multiHandler fans a record out to every wrapped handler that is enabled
// for its level; a record is built if any wrapped handler is enabled.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
