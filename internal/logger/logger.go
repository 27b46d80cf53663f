// Package logger sets up the zerolog logger. Logs go to a file because the
// terminal belongs to the TUI.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tatianab/adventure-gm/internal/config"
)

// Setup opens cfg.LogFile for appending and returns a logger writing JSON
// lines to it. The global zerolog logger is pointed at the same file.
// Callers close the returned Closer on exit.
func Setup(cfg *config.Config) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if s := strings.TrimSpace(cfg.LogLevel); s != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(s))
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("parse log level %q: %w", cfg.LogLevel, err)
		}
		level = l
	}

	if cfg.LogFile == "" {
		return zerolog.Nop(), io.NopCloser(nil), nil
	}
	if dir := filepath.Dir(cfg.LogFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
	}

	logger := New(f, level)
	log.Logger = logger
	return logger, f, nil
}

// New returns a timestamped logger writing to w at the given level.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
