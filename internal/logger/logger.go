package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default logging configuration constants
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes how the service logs.
type Config struct {
	Slog SlogConfig
	File FileConfig
}

// SlogConfig selects the slog handler.
type SlogConfig struct {
	Level      string // debug, info, warn, error (default info)
	Format     string // text or json (default text)
	Color      bool   // ANSI level colors, text format only
	TimeStamps bool
	Source     bool
}

// FileConfig enables a rotating log file. Rotation parameters follow
// lumberjack semantics.
type FileConfig struct {
	Path       string
	MaxSizeMB  int  // megabytes before rotation (default 10)
	MaxBackups int  // number of backups to keep (default 3)
	MaxAgeDays int  // days to keep (default 7)
	Compress   bool // Gzip rotated files
}

// Writer returns the rotating file writer, or nil when no path is set.
func (c FileConfig) Writer() io.WriteCloser {
	if c.Path == "" {
		return nil
	}
	return &lj.Logger{
		Filename:   c.Path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// NewSlogger builds a logger writing to the configured file, or to
// fallback (os.Stderr when nil) if no file is configured. The returned
// closer releases the file and is never nil.
func (c Config) NewSlogger(fallback io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(c.Slog.Level)
	if err != nil {
		return nil, nil, err
	}
	var (
		w      io.Writer = fallback
		closer io.Closer = nopCloser{}
	)
	if fw := c.File.Writer(); fw != nil {
		w, closer = fw, fw
	}
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: c.Slog.Source}
	if !c.Slog.TimeStamps {
		opts.ReplaceAttr = dropTime
	}
	var h slog.Handler
	switch strings.ToLower(c.Slog.Format) {
	case "", "text":
		if c.Slog.Color {
			h = NewColorTextHandler(w, opts, c.Slog.TimeStamps)
		} else {
			h = slog.NewTextHandler(w, opts)
		}
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", c.Slog.Format)
	}
	return slog.New(h), closer, nil
}

func dropTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
