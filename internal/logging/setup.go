package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
)

// File permissions for log files
const (
	logDirPerm  os.FileMode = 0o750
	logFilePerm os.FileMode = 0o600

	// schemaVersion is attached to every JSON log record.
	schemaVersion = 1
)

// Static errors
var (
	// ErrInvalidLogLevel indicates a log level name that is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")

	// ErrLogDirNotDirectory indicates the log directory path names a non-directory.
	ErrLogDirNotDirectory = errors.New("log directory is not a directory")
)

// Config holds all configuration for logger setup.
type Config struct {
	Level slog.Level

	// Console receives human-readable output; nil disables console logging.
	Console io.Writer
	// Color enables ANSI colours on the console.
	Color bool

	// LogDir receives a JSON run log "<host>_<timestamp>_<runid>.json" when set.
	LogDir string
	// RunID identifies the run; GenerateRunID() is used when empty.
	RunID string
}

// Setup builds a logger from cfg. The returned closer flushes and closes the
// run log file and must be called before exit.
func Setup(cfg Config) (*slog.Logger, io.Closer, error) {
	runID := cfg.RunID
	if runID == "" {
		runID = GenerateRunID()
	}

	var handlers []slog.Handler
	if cfg.Console != nil {
		handlers = append(handlers, NewConsoleHandler(cfg.Console, cfg.Level, cfg.Color))
	}

	var closer io.Closer = nopCloser{}
	if cfg.LogDir != "" {
		logF, err := openRunLog(cfg.LogDir, runID)
		if err != nil {
			return nil, nil, err
		}
		hostname, _ := os.Hostname()
		jsonHandler := slog.NewJSONHandler(logF, &slog.HandlerOptions{Level: cfg.Level}).WithAttrs([]slog.Attr{
			slog.String("hostname", hostname),
			slog.Int("pid", os.Getpid()),
			slog.Int("schema_version", schemaVersion),
			slog.String("run_id", runID),
		})
		handlers = append(handlers, jsonHandler)
		closer = logF
	}

	return slog.New(NewMultiHandler(handlers...)), closer, nil
}

func openRunLog(dir, runID string) (*os.File, error) {
	if err := os.MkdirAll(dir, logDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid log directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrLogDirNotDirectory, dir)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	name := fmt.Sprintf("%s_%s_%s.json", hostname, time.Now().UTC().Format("20060102T150405Z"), runID)
	path := filepath.Join(dir, name)

	// #nosec G304 - path is built from the configured directory and a generated name
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY|syscall.O_NOFOLLOW, logFilePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

// GenerateRunID returns a new ULID for run identification. ULIDs sort by
// creation time, so run log file names sort chronologically too.
func GenerateRunID() string {
	return ulid.Make().String()
}

// ParseLevel converts "debug", "info", "warn"/"warning" or "error" to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug", "verbose":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, name)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
