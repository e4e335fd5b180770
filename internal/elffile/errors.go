package elffile

import (
	"errors"
	"fmt"

	"github.com/isseis/go-symstore-keys/internal/elfkeys"
)

// Static errors
var (
	// ErrNotELF indicates the file does not start with the ELF magic number.
	ErrNotELF = errors.New("file is not an ELF binary")

	// ErrMalformedELF indicates the file has the ELF magic number but its
	// headers cannot be parsed.
	ErrMalformedELF = errors.New("malformed ELF file")

	// ErrNoDebugLink indicates the file has no .gnu_debuglink section.
	ErrNoDebugLink = errors.New("no .gnu_debuglink section")

	// ErrInvalidVirtualAddress indicates a read outside the section contents.
	ErrInvalidVirtualAddress = fmt.Errorf("invalid virtual address: %w", elfkeys.ErrSectionDecode)

	// ErrBadInputFormat indicates section contents that cannot be decoded.
	ErrBadInputFormat = fmt.Errorf("bad input format: %w", elfkeys.ErrSectionDecode)
)
