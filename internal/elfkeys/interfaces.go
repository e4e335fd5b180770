package elfkeys

import (
	"errors"
	"fmt"
)

// HeaderType is the ELF object file type as seen by the key generator.
type HeaderType int

const (
	// HeaderOther covers ET_NONE and processor/OS specific types.
	HeaderOther HeaderType = iota
	// HeaderRelocatable is ET_REL.
	HeaderRelocatable
	// HeaderExecutable is ET_EXEC.
	HeaderExecutable
	// HeaderShared is ET_DYN.
	HeaderShared
	// HeaderCore is ET_CORE.
	HeaderCore
)

// String returns a string representation of HeaderType.
func (h HeaderType) String() string {
	switch h {
	case HeaderOther:
		return "other"
	case HeaderRelocatable:
		return "relocatable"
	case HeaderExecutable:
		return "executable"
	case HeaderShared:
		return "shared"
	case HeaderCore:
		return "core"
	default:
		return fmt.Sprintf("unknown(%d)", int(h))
	}
}

// ErrSectionDecode is wrapped by Section implementations when section data
// cannot be decoded (bad offset or malformed contents).
var ErrSectionDecode = errors.New("section decode failed")

// Section is a named ELF section whose contents can be read.
type Section interface {
	// ReadString reads a NUL-terminated string starting at offset within the
	// section contents. Decode failures wrap ErrSectionDecode.
	ReadString(offset uint64) (string, error)
}

// ELFView is the parsed view of an ELF binary consumed by the generator.
type ELFView interface {
	// IsValid reports whether the file parsed as a structurally valid ELF file.
	IsValid() bool

	// HeaderType returns the object file type from the ELF header.
	HeaderType() HeaderType

	// BuildID returns the GNU build id bytes, or nil when absent.
	BuildID() []byte

	// FindSectionByName returns the section with the given name, if any.
	FindSectionByName(name string) (Section, bool)
}

// Tracer receives diagnostics about anomalies found during derivation.
type Tracer interface {
	Error(format string, args ...any)
	Verbose(format string, args ...any)
}
