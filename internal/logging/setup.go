package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where and how verbosely the root logger writes.
//
// If FilePath is empty, output goes to stderr. Otherwise log lines are
// appended to FilePath with size-based rotation, so a long-running
// background sync never grows an unbounded log file on-device.
type Config struct {
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	Debug      bool
}

// New builds the root Logger from cfg.
func New(cfg Config) Logger {
	var w io.Writer = os.Stderr
	if cfg.FilePath != "" {
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		w = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    maxSize,
			MaxBackups: cfg.MaxBackups,
		}
	}
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return NewSlogLogger(slog.New(h))
}

// Nop returns a logger that discards everything. Used in tests and as the
// default when a component is constructed without an explicit logger.
func Nop() Logger {
	return NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}
