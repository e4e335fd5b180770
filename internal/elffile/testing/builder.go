//go:build test

// Package elffiletesting provides helpers that build minimal ELF64 images for tests.
package elffiletesting

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	headerSize     = 64
	progHeaderSize = 56
	sectHeaderSize = 64
)

// RawSection is an extra section written verbatim.
type RawSection struct {
	Name string
	Type elf.SectionType
	Data []byte
}

// Image describes an ELF64 little-endian image.
type Image struct {
	// Type is the object file type; zero means ET_DYN.
	Type elf.Type

	// BuildID is written as a GNU build id note. Nil omits the note.
	BuildID []byte

	// BuildIDInSegment places the note in a PT_NOTE segment instead of the
	// .note.gnu.build-id section.
	BuildIDInSegment bool

	// DebugLink is written to .gnu_debuglink with CRC DebugLinkCRC. Empty omits
	// the section.
	DebugLink    string
	DebugLinkCRC uint32

	// Sections are appended after the generated ones.
	Sections []RawSection
}

// GNUBuildIDNote encodes id as an NT_GNU_BUILD_ID note.
func GNUBuildIDNote(id []byte) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint32(4))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(id)))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(3))
	buf.WriteString("GNU\x00")
	buf.Write(id)
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

// DebugLinkData encodes a .gnu_debuglink payload.
func DebugLinkData(name string, crc uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString(name)
	buf.WriteByte(0)
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
	_ = binary.Write(&buf, binary.LittleEndian, crc)
	return buf.Bytes()
}

// Bytes renders the image.
func (img Image) Bytes() []byte {
	typ := img.Type
	if typ == 0 {
		typ = elf.ET_DYN
	}

	var sections []RawSection
	var noteSegment []byte
	if img.BuildID != nil {
		note := GNUBuildIDNote(img.BuildID)
		if img.BuildIDInSegment {
			noteSegment = note
		} else {
			sections = append(sections, RawSection{Name: ".note.gnu.build-id", Type: elf.SHT_NOTE, Data: note})
		}
	}
	if img.DebugLink != "" {
		sections = append(sections, RawSection{Name: ".gnu_debuglink", Type: elf.SHT_PROGBITS, Data: DebugLinkData(img.DebugLink, img.DebugLinkCRC)})
	}
	sections = append(sections, img.Sections...)

	// Section name string table.
	shstrtab := []byte{0}
	nameOffsets := make([]uint32, len(sections))
	for i, s := range sections {
		nameOffsets[i] = uint32(len(shstrtab))
		shstrtab = append(shstrtab, s.Name...)
		shstrtab = append(shstrtab, 0)
	}
	shstrtabName := uint32(len(shstrtab))
	shstrtab = append(shstrtab, ".shstrtab"...)
	shstrtab = append(shstrtab, 0)

	offset := uint64(headerSize)
	var phnum uint16
	var phoff uint64
	if noteSegment != nil {
		phnum = 1
		phoff = offset
		offset += progHeaderSize
	}

	body := new(bytes.Buffer)
	place := func(data []byte) uint64 {
		for (offset+uint64(body.Len()))%8 != 0 {
			body.WriteByte(0)
		}
		off := offset + uint64(body.Len())
		body.Write(data)
		return off
	}

	var noteOff uint64
	if noteSegment != nil {
		noteOff = place(noteSegment)
	}

	headers := []elf.Section64{{}}
	for i, s := range sections {
		off := place(s.Data)
		size := uint64(len(s.Data))
		headers = append(headers, elf.Section64{
			Name:      nameOffsets[i],
			Type:      uint32(s.Type),
			Off:       off,
			Size:      size,
			Addralign: 4,
		})
	}
	strOff := place(shstrtab)
	headers = append(headers, elf.Section64{
		Name:      shstrtabName,
		Type:      uint32(elf.SHT_STRTAB),
		Off:       strOff,
		Size:      uint64(len(shstrtab)),
		Addralign: 1,
	})
	shoff := place(nil)

	var ident [elf.EI_NIDENT]byte
	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	hdr := elf.Header64{
		Ident:     ident,
		Type:      uint16(typ),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Phoff:     phoff,
		Shoff:     shoff,
		Ehsize:    headerSize,
		Phentsize: progHeaderSize,
		Phnum:     phnum,
		Shentsize: sectHeaderSize,
		Shnum:     uint16(len(headers)),
		Shstrndx:  uint16(len(headers) - 1),
	}

	out := new(bytes.Buffer)
	_ = binary.Write(out, binary.LittleEndian, hdr)
	if noteSegment != nil {
		_ = binary.Write(out, binary.LittleEndian, elf.Prog64{
			Type:   uint32(elf.PT_NOTE),
			Flags:  uint32(elf.PF_R),
			Off:    noteOff,
			Filesz: uint64(len(noteSegment)),
			Memsz:  uint64(len(noteSegment)),
			Align:  4,
		})
	}
	out.Write(body.Bytes())
	for _, h := range headers {
		_ = binary.Write(out, binary.LittleEndian, h)
	}
	return out.Bytes()
}

// WriteFile writes img to dir/name and returns the path.
func WriteFile(t *testing.T, dir, name string, img Image) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	err := os.WriteFile(path, img.Bytes(), 0o644) //nolint:gosec // test helper: 0644 is intentional for test files
	require.NoError(t, err)
	return path
}
