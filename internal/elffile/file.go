// Package elffile provides the parsed ELF view used for symbol store key
// derivation. It is a thin layer over debug/elf that reads the GNU build id
// note and decodes named sections without ever failing hard on malformed
// optional data.
package elffile

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/isseis/go-symstore-keys/internal/elfkeys"
	"github.com/isseis/go-symstore-keys/internal/safefileio"
)

// elfMagic is the ELF magic number bytes.
var elfMagic = []byte("\x7fELF")

// maxSectionSize bounds how much of a note or link section is read.
const maxSectionSize = 1 << 20

// File is a parsed ELF binary. It implements elfkeys.ELFView.
type File struct {
	path   string
	ef     *elf.File
	closer io.Closer

	buildIDOnce sync.Once
	buildID     []byte
}

var _ elfkeys.ELFView = (*File)(nil)

// Open opens the ELF binary at path through safefileio and parses its headers.
func Open(path string) (*File, error) {
	f, err := safefileio.OpenForRead(path)
	if err != nil {
		return nil, err
	}

	file, err := NewFile(f)
	if err != nil {
		if closeErr := f.Close(); closeErr != nil {
			slog.Warn("error closing file after ELF parse failure", slog.String("path", path), slog.Any("error", closeErr))
		}
		return nil, err
	}
	file.path = path
	file.closer = f
	return file, nil
}

// NewFile parses an ELF binary from r. The caller keeps ownership of r.
func NewFile(r io.ReaderAt) (*File, error) {
	magic := make([]byte, len(elfMagic))
	if _, err := r.ReadAt(magic, 0); err != nil || !bytes.Equal(magic, elfMagic) {
		return nil, ErrNotELF
	}

	ef, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedELF, err)
	}
	return &File{ef: ef}, nil
}

// Path returns the path the file was opened from, or "" for NewFile.
func (f *File) Path() string {
	return f.path
}

// Close releases the underlying file when it was opened by Open.
func (f *File) Close() error {
	if f.closer == nil {
		return nil
	}
	err := f.closer.Close()
	f.closer = nil
	return err
}

// IsValid reports whether the ELF identification bytes describe a file this
// package understands.
func (f *File) IsValid() bool {
	if f.ef == nil {
		return false
	}
	h := f.ef.FileHeader
	if h.Class != elf.ELFCLASS32 && h.Class != elf.ELFCLASS64 {
		return false
	}
	if h.Data != elf.ELFDATA2LSB && h.Data != elf.ELFDATA2MSB {
		return false
	}
	return h.Version == elf.EV_CURRENT
}

// HeaderType maps the ELF object file type.
func (f *File) HeaderType() elfkeys.HeaderType {
	switch f.ef.Type {
	case elf.ET_EXEC:
		return elfkeys.HeaderExecutable
	case elf.ET_DYN:
		return elfkeys.HeaderShared
	case elf.ET_REL:
		return elfkeys.HeaderRelocatable
	case elf.ET_CORE:
		return elfkeys.HeaderCore
	default:
		return elfkeys.HeaderOther
	}
}

// Machine returns the target architecture.
func (f *File) Machine() elf.Machine {
	return f.ef.Machine
}

// BuildID returns the NT_GNU_BUILD_ID note payload, or nil when the binary
// has none. The result is computed once.
func (f *File) BuildID() []byte {
	f.buildIDOnce.Do(func() {
		f.buildID = f.findBuildID()
	})
	return f.buildID
}

// FindSectionByName returns the first section with the given name.
func (f *File) FindSectionByName(name string) (elfkeys.Section, bool) {
	s := f.ef.Section(name)
	if s == nil {
		return nil, false
	}
	return &Section{s: s}, true
}

// DebugLink returns the file name and CRC32 recorded in .gnu_debuglink.
func (f *File) DebugLink() (string, uint32, error) {
	s := f.ef.Section(elfkeys.DebugLinkSectionName)
	if s == nil {
		return "", 0, ErrNoDebugLink
	}
	sec := &Section{s: s}
	data, err := sec.data()
	if err != nil {
		return "", 0, err
	}
	name, err := readCString(data, 0)
	if err != nil {
		return "", 0, err
	}
	// The CRC follows the NUL-terminated name, 4-byte aligned.
	crcOff := align4(uint64(len(name)) + 1)
	if crcOff+4 > uint64(len(data)) {
		return name, 0, fmt.Errorf("%w: debug link CRC missing", ErrBadInputFormat)
	}
	return name, f.ef.ByteOrder.Uint32(data[crcOff:]), nil
}

// Section is a named section of a File.
type Section struct {
	s *elf.Section
}

// ReadString reads a NUL-terminated string at offset within the section.
func (s *Section) ReadString(offset uint64) (string, error) {
	data, err := s.data()
	if err != nil {
		return "", err
	}
	return readCString(data, offset)
}

func (s *Section) data() ([]byte, error) {
	if s.s.Type == elf.SHT_NOBITS {
		return nil, fmt.Errorf("%w: section %s has no file data", ErrBadInputFormat, s.s.Name)
	}
	if s.s.Size > maxSectionSize {
		return nil, fmt.Errorf("%w: section %s too large (%d bytes)", ErrBadInputFormat, s.s.Name, s.s.Size)
	}
	data, err := s.s.Data()
	if err != nil {
		return nil, fmt.Errorf("%w: section %s: %w", ErrInvalidVirtualAddress, s.s.Name, err)
	}
	return data, nil
}

func readCString(data []byte, offset uint64) (string, error) {
	if offset >= uint64(len(data)) {
		return "", fmt.Errorf("%w: offset %d beyond %d bytes", ErrInvalidVirtualAddress, offset, len(data))
	}
	rest := data[offset:]
	end := bytes.IndexByte(rest, 0)
	if end < 0 {
		return "", fmt.Errorf("%w: unterminated string at offset %d", ErrBadInputFormat, offset)
	}
	return string(rest[:end]), nil
}

func align4(n uint64) uint64 {
	return (n + 3) &^ 3
}

// errNoteTruncated stops note iteration on malformed data.
var errNoteTruncated = errors.New("truncated note")
