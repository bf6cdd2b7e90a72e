// Package logging builds the process logger from the log section of the config.
package logging

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Service    string
	Level      string
	Format     string // "text" or "json"
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Setup returns a logger writing to stdout, or to a rotated file when Options.File is set.
// The returned closer releases the file and is a no-op otherwise. The standard library
// logger is bridged to the same handler.
func Setup(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		out    io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)
	if path := strings.TrimSpace(opts.File); path != "" {
		rotator := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    orDefault(opts.MaxSizeMB, 100),
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		out = rotator
		closer = rotator
	}

	handler, err := newHandler(out, opts.Format, level)
	if err != nil {
		return nil, nil, err
	}

	var attrs []slog.Attr
	if service := strings.TrimSpace(opts.Service); service != "" {
		attrs = append(attrs, slog.String("service", service))
	}
	handler = handler.WithAttrs(attrs)

	logger := slog.New(handler)

	stdBridge := slog.NewLogLogger(handler, slog.LevelInfo)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return logger, closer, nil
}

func newHandler(out io.Writer, format string, level slog.Level) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return slog.NewTextHandler(out, opts), nil
	case "json":
		return slog.NewJSONHandler(out, opts), nil
	default:
		return nil, fmt.Errorf("logging: unsupported format %q", format)
	}
}

// ParseLevel maps debug/info/warn/error to a slog level. Empty means info.
func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", raw)
	}
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
