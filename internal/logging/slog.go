package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

type SlogLogger struct {
	l *slog.Logger
}

func NewSlogLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{l: l}
}

func (s *SlogLogger) Debug(ctx context.Context, msg string, args ...any) {
	s.l.DebugContext(ctx, msg, args...)
}

func (s *SlogLogger) Info(ctx context.Context, msg string, args ...any) {
	s.l.InfoContext(ctx, msg, args...)
}

func (s *SlogLogger) Warn(ctx context.Context, msg string, args ...any) {
	s.l.WarnContext(ctx, msg, args...)
}

func (s *SlogLogger) Error(ctx context.Context, msg string, args ...any) {
	s.l.ErrorContext(ctx, msg, args...)
}

func (s *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{l: s.l.With(args...)}
}

// Options configures New.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json or text
	// File, when set, receives a copy of every record and is rotated by size.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// New builds a SlogLogger writing to stderr and, optionally, to a rotated
// log file. The returned closer releases the file; it is a no-op without one.
func New(opts Options) (*SlogLogger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		w      io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		}
		w = io.MultiWriter(os.Stderr, lj)
		closer = lj
	}

	return NewSlogLogger(slog.New(newHandler(w, opts.Format, level))), closer, nil
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	ho := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, ho)
	}
	return slog.NewJSONHandler(w, ho)
}

// ParseLevel maps a level name to slog.Level. Empty means info.
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
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
