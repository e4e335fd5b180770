// Package main provides the symkeys command, which prints the symbol store
// keys of ELF binaries.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/isseis/go-symstore-keys/internal/config"
	"github.com/isseis/go-symstore-keys/internal/logging"
	"github.com/isseis/go-symstore-keys/internal/scanner"
	"github.com/isseis/go-symstore-keys/internal/symstore"
	"github.com/isseis/go-symstore-keys/internal/terminal"
)

const (
	formatText = "text"
	formatJSON = "json"
)

var (
	errNoPathsProvided = errors.New("at least one file or directory path must be provided")
	errInvalidFormat   = errors.New("invalid output format")
)

type symkeysConfig struct {
	paths       []string
	cfg         *config.Config
	flags       symstore.KeyTypeFlags
	format      string
	quiet       bool
	interactive bool
}

// jsonKey and jsonResult are the records written by -format json.
type jsonKey struct {
	Index      string `json:"index"`
	FullPath   string `json:"full_path"`
	ClrSpecial bool   `json:"clr_special"`
}

type jsonResult struct {
	File    string    `json:"file"`
	Keys    []jsonKey `json:"keys"`
	Skipped bool      `json:"skipped"`
	Reason  string    `json:"reason,omitempty"`
	Error   string    `json:"error,omitempty"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, fs, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		printUsage(fs, stderr)
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	caps := terminal.NewCapabilities(fileOf(stdout), terminal.Options{ForceInteractive: opts.interactive})
	color := caps.SupportsColor()

	level, err := opts.cfg.LogLevel()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if opts.quiet && level < slog.LevelError {
		level = slog.LevelError
	}
	logger, closer, err := logging.Setup(logging.Config{
		Level:   level,
		Console: stderr,
		Color:   terminal.NewCapabilities(fileOf(stderr), terminal.Options{ForceInteractive: opts.interactive}).SupportsColor(),
		LogDir:  opts.cfg.Logging.LogDir,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error setting up logging: %v\n", err)
		return 1
	}
	defer func() { _ = closer.Close() }()

	s, err := scanner.New(scanner.Options{
		Flags:     opts.flags,
		Recursive: opts.cfg.Scan.Recursive,
		Workers:   opts.cfg.Scan.Workers,
		CacheSize: opts.cfg.Scan.CacheSize,
		Logger:    logger,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	logger.Debug("scan started", slog.String("keys", opts.flags.String()), slog.Int("paths", len(opts.paths)))
	results, err := s.Scan(ctx, opts.paths)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: scan aborted: %v\n", err)
		return 1
	}

	switch opts.format {
	case formatJSON:
		err = writeJSON(stdout, results)
	default:
		writeText(stdout, stderr, results, color)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error writing output: %v\n", err)
		return 1
	}

	sum := scanner.Summarize(results)
	logger.Info("scan complete",
		slog.Int("files", sum.Files),
		slog.Int("keys", sum.Keys),
		slog.Int("skipped", sum.Skipped),
		slog.Int("failed", sum.Failed))
	if !opts.quiet && opts.format == formatText {
		_, _ = fmt.Fprintf(stderr, "\nSummary: %d files, %d keys, %d skipped, %d failed\n",
			sum.Files, sum.Keys, sum.Skipped, sum.Failed)
	}
	if sum.Failed > 0 {
		return 1
	}
	return 0
}

func parseArgs(args []string, stderr io.Writer) (*symkeysConfig, *flag.FlagSet, error) {
	options := struct {
		configPath  string
		keys        string
		recursive   bool
		workers     int
		format      string
		logLevel    string
		logDir      string
		quiet       bool
		interactive bool
	}{}

	fs := flag.NewFlagSet("symkeys", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printUsage(fs, stderr) }
	fs.StringVar(&options.configPath, "config", "", "Path to a TOML configuration file")
	fs.StringVar(&options.keys, "keys", "", "Comma separated key types: identity, symbol, clr or all (default: identity,symbol,clr)")
	fs.BoolVar(&options.recursive, "r", false, "Descend into subdirectories")
	fs.IntVar(&options.workers, "workers", config.DefaultWorkers, "Number of files processed concurrently")
	fs.StringVar(&options.format, "format", formatText, "Output format: text or json")
	fs.StringVar(&options.logLevel, "log-level", "", "Log level: debug, info, warn or error (default: info)")
	fs.StringVar(&options.logDir, "log-dir", "", "Directory for the JSON run log")
	fs.BoolVar(&options.quiet, "quiet", false, "Only log errors and omit the summary")
	fs.BoolVar(&options.interactive, "interactive", false, "Force interactive (coloured) output")

	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}

	if fs.NArg() == 0 {
		return nil, fs, errNoPathsProvided
	}

	cfg := config.Default()
	if options.configPath != "" {
		loaded, err := config.Load(options.configPath)
		if err != nil {
			return nil, fs, err
		}
		cfg = loaded
	}

	// Flags given on the command line win over the configuration file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "keys":
			cfg.Keys.Types = strings.Split(options.keys, ",")
		case "r":
			cfg.Scan.Recursive = options.recursive
		case "workers":
			cfg.Scan.Workers = options.workers
		case "log-level":
			cfg.Logging.Level = options.logLevel
		case "log-dir":
			cfg.Logging.LogDir = options.logDir
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, fs, err
	}

	format := strings.ToLower(options.format)
	if format != formatText && format != formatJSON {
		return nil, fs, fmt.Errorf("%w: %q (must be %s or %s)", errInvalidFormat, options.format, formatText, formatJSON)
	}

	flags, err := cfg.KeyFlags()
	if err != nil {
		return nil, fs, err
	}

	return &symkeysConfig{
		paths:       fs.Args(),
		cfg:         cfg,
		flags:       flags,
		format:      format,
		quiet:       options.quiet,
		interactive: options.interactive,
	}, fs, nil
}

func printUsage(fs *flag.FlagSet, w io.Writer) {
	if fs == nil {
		return
	}
	_, _ = fmt.Fprintf(w, "Usage: %s [flags] <path> [<path>...]\n", filepath.Base(os.Args[0]))
	fs.PrintDefaults()
}

// writeText prints one "<file>: <index>" line per key. Failures go to stderr.
func writeText(stdout, stderr io.Writer, results []scanner.Result, color bool) {
	for _, r := range results {
		if r.Err != nil {
			_, _ = fmt.Fprintf(stderr, "%s: %s\n", r.Path, terminal.Colorize(color, terminal.Red, "FAILED: "+r.Err.Error()))
			continue
		}
		for _, key := range r.Keys {
			index := key.Index
			if key.IsClrSpecialFile {
				index = terminal.Colorize(color, terminal.Yellow, index)
			} else {
				index = terminal.Colorize(color, terminal.Cyan, index)
			}
			_, _ = fmt.Fprintf(stdout, "%s: %s\n", r.Path, index)
		}
	}
}

func writeJSON(w io.Writer, results []scanner.Result) error {
	out := make([]jsonResult, 0, len(results))
	for _, r := range results {
		jr := jsonResult{
			File:    r.Path,
			Keys:    make([]jsonKey, 0, len(r.Keys)),
			Skipped: r.Skipped,
			Reason:  r.Reason,
		}
		if r.Err != nil {
			jr.Error = r.Err.Error()
		}
		for _, key := range r.Keys {
			jr.Keys = append(jr.Keys, jsonKey{
				Index:      key.Index,
				FullPath:   key.FullPathName,
				ClrSpecial: key.IsClrSpecialFile,
			})
		}
		out = append(out, jr)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// fileOf returns w as an *os.File when it is one, for terminal detection.
func fileOf(w io.Writer) *os.File {
	if f, ok := w.(*os.File); ok {
		return f
	}
	return nil
}
