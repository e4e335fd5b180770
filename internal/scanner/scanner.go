// Package scanner derives symbol store keys for many files at once. A file
// that cannot be read or is not an eligible ELF binary never aborts the scan;
// its outcome is recorded in its Result.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/isseis/go-symstore-keys/internal/elffile"
	"github.com/isseis/go-symstore-keys/internal/elfkeys"
	"github.com/isseis/go-symstore-keys/internal/logging"
	"github.com/isseis/go-symstore-keys/internal/symstore"
)

// ErrInvalidWorkers indicates a non-positive worker count.
var ErrInvalidWorkers = errors.New("workers must be positive")

// Options configures a Scanner.
type Options struct {
	Flags     symstore.KeyTypeFlags
	Recursive bool
	Workers   int
	// CacheSize is the number of per-file results kept; 0 disables caching.
	CacheSize int
	Logger    *slog.Logger
}

// Result is the outcome for one file.
type Result struct {
	Path string
	Keys []symstore.SymbolStoreKey

	// DebugLink is the .gnu_debuglink name, when present.
	DebugLink string

	// Skipped is set for files that are not eligible ELF binaries.
	Skipped bool
	Reason  string

	// Err is set when the file could not be read.
	Err error
}

// Summary counts scan outcomes.
type Summary struct {
	Files   int
	Keys    int
	Skipped int
	Failed  int
}

// cacheKey identifies a file version and request.
type cacheKey struct {
	path    string
	size    int64
	modTime int64
	flags   symstore.KeyTypeFlags
}

// Scanner derives keys for files and directory trees.
type Scanner struct {
	opts   Options
	logger *slog.Logger
	tracer logging.Tracer
	cache  *lru.Cache[cacheKey, Result]
	open   func(path string) (*elffile.File, error)
}

// New creates a Scanner.
func New(opts Options) (*Scanner, error) {
	if opts.Workers < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWorkers, opts.Workers)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "scanner"))

	s := &Scanner{
		opts:   opts,
		logger: logger,
		tracer: logging.NewSlogTracer(logger),
		open:   elffile.Open,
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New[cacheKey, Result](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create result cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Scan expands paths (directories are listed, recursively when configured)
// and derives keys for every regular file found. Results follow the order of
// the arguments and, within a directory, lexical order. Only cancellation of
// ctx returns an error.
func (s *Scanner) Scan(ctx context.Context, paths []string) ([]Result, error) {
	var results []Result
	var pending []int
	for _, p := range paths {
		expanded, err := s.expand(ctx, p)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			results = append(results, Result{Path: p, Err: err})
			continue
		}
		for _, file := range expanded {
			pending = append(pending, len(results))
			results = append(results, Result{Path: file})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for _, i := range pending {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.ScanFile(results[i].Path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Debug("scan finished", slog.Int("files", len(results)))
	return results, nil
}

// ScanFile derives keys for a single file.
func (s *Scanner) ScanFile(path string) Result {
	info, err := os.Lstat(path)
	if err != nil {
		return Result{Path: path, Err: err}
	}

	key := cacheKey{path: path, size: info.Size(), modTime: info.ModTime().UnixNano(), flags: s.opts.Flags}
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			cached.Keys = slices.Clone(cached.Keys)
			return cached
		}
	}

	res := s.derive(path)
	if s.cache != nil && res.Err == nil {
		s.cache.Add(key, res)
	}
	return res
}

func (s *Scanner) derive(path string) Result {
	res := Result{Path: path}

	f, err := s.open(path)
	if err != nil {
		if errors.Is(err, elffile.ErrNotELF) || errors.Is(err, elffile.ErrMalformedELF) {
			res.Skipped = true
			res.Reason = err.Error()
			return res
		}
		res.Err = err
		s.logger.Warn("failed to open file", slog.String("path", path), slog.Any("error", err))
		return res
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			s.logger.Warn("error closing file", slog.String("path", path), slog.Any("error", closeErr))
		}
	}()

	gen := elfkeys.NewGenerator(s.tracer, f, path)
	if !gen.IsValid() {
		res.Skipped = true
		res.Reason = fmt.Sprintf("ELF type %s is not an executable or shared object", f.HeaderType())
		return res
	}

	res.Keys = elfkeys.Collect(gen.Keys(s.opts.Flags))
	if name, _, err := f.DebugLink(); err == nil {
		res.DebugLink = name
	}
	return res
}

// expand returns the regular files named by path.
func (s *Scanner) expand(ctx context.Context, path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if p == path {
				return walkErr
			}
			s.logger.Warn("skipping unreadable path", slog.String("path", p), slog.Any("error", walkErr))
			return nil
		}
		if d.IsDir() {
			if p != path && !s.opts.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Summarize counts the outcomes in results.
func Summarize(results []Result) Summary {
	var sum Summary
	for _, r := range results {
		sum.Files++
		sum.Keys += len(r.Keys)
		switch {
		case r.Err != nil:
			sum.Failed++
		case r.Skipped:
			sum.Skipped++
		}
	}
	return sum
}
