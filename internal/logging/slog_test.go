package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) (*SlogLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	l := slog.New(h)
	return NewSlogLogger(l), &buf
}

func TestSlogLogger_Levels_WriteExpectedOutput(t *testing.T) {
	log, buf := newTestLogger(t)
	ctx := context.Background()

	log.Debug(ctx, "dbg", "a", 1)
	log.Info(ctx, "inf", "b", 2)
	log.Warn(ctx, "wrn", "c", 3)
	log.Error(ctx, "err", "d", 4)

	out := buf.String()

	tests := []struct {
		level string
		msg   string
		key   string
		val   string
	}{
		{"DEBUG", "dbg", "a", "1"},
		{"INFO", "inf", "b", "2"},
		{"WARN", "wrn", "c", "3"},
		{"ERROR", "err", "d", "4"},
	}

	for _, tc := range tests {
		if !strings.Contains(out, "level="+tc.level) {
			t.Fatalf("expected line with level=%s in output:\n%s", tc.level, out)
		}
		if !strings.Contains(out, "msg="+tc.msg) {
			t.Fatalf("expected line with msg=%q in output:\n%s", tc.msg, out)
		}
		if !strings.Contains(out, tc.key+"="+tc.val) {
			t.Fatalf("expected attribute %s=%s in output:\n%s", tc.key, tc.val, out)
		}
	}
}

func TestSlogLogger_With_AddsAttributes(t *testing.T) {
	log, buf := newTestLogger(t)
	ctx := context.Background()

	log2 := log.With("run_id", "123", "azienda_id", 7)
	log2.Info(ctx, "hello", "k", "v")

	out := buf.String()
	for _, s := range []string{"level=INFO", "msg=hello", "run_id=123", "azienda_id=7", "k=v"} {
		if !strings.Contains(out, s) {
			t.Fatalf("expected %q in output, got:\n%s", s, out)
		}
	}
}

func TestNopLogger_Discards(t *testing.T) {
	var l Logger = NopLogger{}
	ctx := context.Background()
	l.Debug(ctx, "x")
	l.Info(ctx, "x")
	l.Warn(ctx, "x")
	l.Error(ctx, "x")
	require.NotNil(t, l.With("a", 1))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNew_WritesToRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.log")
	log, closer, err := New(Options{Level: "info", Format: "json", File: path, MaxSizeMB: 1, MaxBackups: 1})
	require.NoError(t, err)

	log.Info(context.Background(), "cycle completed", "pushed", 3)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"msg":"cycle completed"`)
	require.Contains(t, string(data), `"pushed":3`)
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, _, err := New(Options{Level: "verbose"})
	require.Error(t, err)
}
