// Package logging builds the daemon's slog.Logger from the logging config
// section and optionally tees records to a live event sink.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/large-farva/ldsentinel/internal/config"
)

// ParseLevel maps a config level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("logging: unknown level %q", name)
	}
}

// New returns a logger writing to the console or to cfg.File. When sink is
// non-nil, records at info and above are also published to it. The returned
// closer releases the log file, if one was opened.
func New(cfg config.LoggingConfig, sink Sink) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		out    io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)
	if cfg.Flow == "file" {
		if dir := filepath.Dir(cfg.File); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("logging: %w", err)
			}
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("logging: %w", err)
		}
		out, closer = f, f
	}

	return slog.New(newHandler(out, cfg.Format, level, sink)), closer, nil
}

func newHandler(out io.Writer, format string, level slog.Level, sink Sink) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}
	if sink != nil {
		h = NewTeeHandler(h, sink, slog.LevelInfo)
	}
	return h
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
