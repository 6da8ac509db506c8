// Package logging builds the service's slog logger from configuration.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxLogSizeMB  = 5
	maxLogBackups = 5
	maxLogAgeDays = 14
)

// Config selects level, format and destination of the logs.
type Config struct {
	// Level is one of debug, info, warn or error. Unknown values fall back to info.
	Level string `yaml:"level"`
	// Format is "text" or "json" (default).
	Format string `yaml:"format"`
	// File, when set, receives the logs through a size-rotated writer instead of stderr.
	File string `yaml:"file"`
}

// New creates a logger for cfg and installs it as the slog default. The returned closer releases
// the log file, if any.
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	path := strings.TrimSpace(cfg.File)
	if path == "" {
		logger := slog.New(newHandler(cfg.Format, os.Stderr, opts))
		slog.SetDefault(logger)
		return logger, io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		logger := slog.New(newHandler(cfg.Format, os.Stderr, opts))
		slog.SetDefault(logger)
		return logger, io.NopCloser(nil), err
	}

	writer := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxLogSizeMB,
		MaxBackups: maxLogBackups,
		MaxAge:     maxLogAgeDays,
		Compress:   true,
	}

	logger := slog.New(newHandler(cfg.Format, writer, opts))
	slog.SetDefault(logger)
	return logger, writer, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newHandler(format string, out io.Writer, opts *slog.HandlerOptions) slog.Handler {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "text":
		return slog.NewTextHandler(out, opts)
	default:
		return slog.NewJSONHandler(out, opts)
	}
}
