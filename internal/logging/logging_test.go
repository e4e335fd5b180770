package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingHandler struct{}

func (failingHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("boom") }
func (h failingHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h failingHandler) WithGroup(string) slog.Handler           { return h }

func TestMultiHandler_FansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelDebug}),
		nil,
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	logger := slog.New(h).With(slog.String("component", "test"))

	logger.Info("info message")
	logger.Warn("warn message")

	assert.Contains(t, a.String(), "info message")
	assert.Contains(t, a.String(), "warn message")
	assert.NotContains(t, b.String(), "info message")
	assert.Contains(t, b.String(), "warn message")
	assert.Contains(t, b.String(), "component=test")
}

func TestMultiHandler_JoinsErrors(t *testing.T) {
	h := NewMultiHandler(failingHandler{}, failingHandler{})
	err := h.Handle(context.Background(), slog.NewRecord(time.Time{}, slog.LevelInfo, "msg", 0))
	assert.ErrorContains(t, err, "boom")
}

func TestMultiHandler_DisabledWhenEmpty(t *testing.T) {
	assert.False(t, NewMultiHandler().Enabled(context.Background(), slog.LevelError))
}

func TestConsoleHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewConsoleHandler(&buf, slog.LevelInfo, false)).
		With(slog.String("path", "/lib/libfoo.so")).
		WithGroup("scan")

	logger.Debug("hidden")
	logger.Warn("Invalid ELF BuildID", slog.Int("keys", 0))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Equal(t, "WARN  Invalid ELF BuildID path=/lib/libfoo.so scan.keys=0\n", out)
}

func TestConsoleHandler_Color(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewConsoleHandler(&buf, slog.LevelInfo, true)).Error("failed")
	assert.Contains(t, buf.String(), "\033[31m")
}

func TestSlogTracer(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewConsoleHandler(&buf, slog.LevelDebug, false))
	tracer := NewSlogTracer(logger)

	tracer.Error("Invalid ELF BuildID '%s' for %s", "<null>", "libfoo.so")
	tracer.Warning("w %d", 1)
	tracer.Information("i %d", 2)
	tracer.Verbose("v %d", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "ERROR Invalid ELF BuildID '<null>' for libfoo.so", lines[0])
	assert.Equal(t, "WARN  w 1", lines[1])
	assert.Equal(t, "INFO  i 2", lines[2])
	assert.Equal(t, "DEBUG v 3", lines[3])
}

func TestSlogTracer_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewSlogTracer(slog.New(NewConsoleHandler(&buf, slog.LevelInfo, false)))
	tracer.Verbose("debug details")
	assert.Empty(t, buf.String())
}

func TestSetup_WritesRunLog(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	logger, closer, err := Setup(Config{
		Level:   slog.LevelInfo,
		Console: &console,
		LogDir:  dir,
		RunID:   "01HZZZZZZZZZZZZZZZZZZZZZZZ",
	})
	require.NoError(t, err)

	logger.Info("scan complete", slog.Int("files", 3))
	require.NoError(t, closer.Close())

	assert.Contains(t, console.String(), "scan complete")

	matches, err := filepath.Glob(filepath.Join(dir, "*_01HZZZZZZZZZZZZZZZZZZZZZZZ.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &record))
	assert.Equal(t, "scan complete", record["msg"])
	assert.Equal(t, "01HZZZZZZZZZZZZZZZZZZZZZZZ", record["run_id"])
	assert.EqualValues(t, schemaVersion, record["schema_version"])
	assert.EqualValues(t, 3, record["files"])
}

func TestSetup_LogDirIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	_, _, err := Setup(Config{LogDir: file})
	assert.Error(t, err)
}

func TestGenerateRunID(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := GenerateRunID()
		_, err := ulid.ParseStrict(id)
		require.NoError(t, err, "run id %q should be a ULID", id)
		assert.False(t, seen[id], "duplicate run id %s", id)
		seen[id] = true
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
		wantErr  bool
	}{
		{"debug", slog.LevelDebug, false},
		{"Verbose", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"WARNING", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidLogLevel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}
