package logging

import (
	"context"
	"fmt"
	"log/slog"
)

// Tracer is a printf-style diagnostic sink. It satisfies elfkeys.Tracer.
type Tracer interface {
	Error(format string, args ...any)
	Warning(format string, args ...any)
	Information(format string, args ...any)
	Verbose(format string, args ...any)
}

// SlogTracer forwards Tracer messages to a slog.Logger. Verbose maps to
// slog.LevelDebug.
type SlogTracer struct {
	logger *slog.Logger
}

// NewSlogTracer creates a Tracer backed by logger, or slog.Default() when nil.
func NewSlogTracer(logger *slog.Logger) *SlogTracer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogTracer{logger: logger}
}

// Error logs at slog.LevelError.
func (t *SlogTracer) Error(format string, args ...any) {
	t.log(slog.LevelError, format, args)
}

// Warning logs at slog.LevelWarn.
func (t *SlogTracer) Warning(format string, args ...any) {
	t.log(slog.LevelWarn, format, args)
}

// Information logs at slog.LevelInfo.
func (t *SlogTracer) Information(format string, args ...any) {
	t.log(slog.LevelInfo, format, args)
}

// Verbose logs at slog.LevelDebug.
func (t *SlogTracer) Verbose(format string, args ...any) {
	t.log(slog.LevelDebug, format, args)
}

func (t *SlogTracer) log(level slog.Level, format string, args []any) {
	ctx := context.Background()
	if !t.logger.Enabled(ctx, level) {
		return
	}
	t.logger.Log(ctx, level, fmt.Sprintf(format, args...))
}

// NopTracer discards all diagnostics.
type NopTracer struct{}

func (NopTracer) Error(string, ...any)       {}
func (NopTracer) Warning(string, ...any)     {}
func (NopTracer) Information(string, ...any) {}
func (NopTracer) Verbose(string, ...any)     {}
