package safefileio

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
)

// MaxBinarySize is the largest file OpenForRead accepts (4 GB).
const MaxBinarySize = 4 << 30

// MaxFileSize is the maximum allowed file size for ReadFile (16 MB).
const MaxFileSize = 16 * 1024 * 1024

// OpenForRead opens path read-only. The final path component must not be a
// symbolic link and must name a regular file no larger than MaxBinarySize.
func OpenForRead(path string) (*os.File, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilePath, err)
	}

	// #nosec G304 - absPath is cleaned above and O_NOFOLLOW refuses symlinks
	file, err := os.OpenFile(absPath, os.O_RDONLY|syscall.O_NOFOLLOW, 0)
	if err != nil {
		if isSymlinkOpenError(err) {
			return nil, fmt.Errorf("%w: %s", ErrIsSymlink, path)
		}
		return nil, err
	}

	info, err := validateFile(file, path)
	if err == nil && info.Size() > MaxBinarySize {
		err = fmt.Errorf("%w: %s: %d bytes (max %d)", ErrFileTooLarge, path, info.Size(), int64(MaxBinarySize))
	}
	if err != nil {
		closeQuietly(file)
		return nil, err
	}
	return file, nil
}

// ReadFile reads a small file through OpenForRead, enforcing MaxFileSize.
func ReadFile(path string) ([]byte, error) {
	file, err := OpenForRead(path)
	if err != nil {
		return nil, err
	}
	defer closeQuietly(file)

	content, err := io.ReadAll(io.LimitReader(file, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if int64(len(content)) > MaxFileSize {
		return nil, fmt.Errorf("%w: %s", ErrFileTooLarge, path)
	}
	return content, nil
}

// validateFile checks if the file is a regular file and returns its FileInfo.
// The descriptor is used so the check applies to the file actually opened.
func validateFile(file *os.File, path string) (os.FileInfo, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s (%s)", ErrNotRegularFile, path, info.Mode().Type())
	}
	return info, nil
}

func closeQuietly(file *os.File) {
	if err := file.Close(); err != nil {
		slog.Warn("error closing file", slog.String("path", file.Name()), slog.Any("error", err))
	}
}
