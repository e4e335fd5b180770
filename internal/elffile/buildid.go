package elffile

import (
	"debug/elf"
	"encoding/binary"
	"io"
	"log/slog"
)

const (
	// ntGNUBuildID is NT_GNU_BUILD_ID from binutils/include/elf/common.h.
	ntGNUBuildID = 3

	gnuBuildIDSection = ".note.gnu.build-id"
	noteHeaderSize    = 12
)

// gnuNoteName is the note owner of GNU notes, including the terminator.
const gnuNoteName = "GNU\x00"

// findBuildID looks for the GNU build id note in .note.gnu.build-id first,
// then in any other note section, then in PT_NOTE segments.
func (f *File) findBuildID() []byte {
	if s := f.ef.Section(gnuBuildIDSection); s != nil && s.Type == elf.SHT_NOTE {
		if id := f.buildIDFromReader(s.Open(), s.Size); id != nil {
			return id
		}
	}

	for _, s := range f.ef.Sections {
		if s.Type != elf.SHT_NOTE || s.Name == gnuBuildIDSection {
			continue
		}
		if id := f.buildIDFromReader(s.Open(), s.Size); id != nil {
			return id
		}
	}

	for _, p := range f.ef.Progs {
		if p.Type != elf.PT_NOTE {
			continue
		}
		if id := f.buildIDFromReader(p.Open(), p.Filesz); id != nil {
			return id
		}
	}

	return nil
}

func (f *File) buildIDFromReader(r io.Reader, size uint64) []byte {
	if size == 0 || size > maxSectionSize {
		return nil
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		slog.Debug("failed to read ELF note data", slog.String("path", f.path), slog.Any("error", err))
		return nil
	}
	id, err := parseGNUBuildIDNote(data, f.ef.ByteOrder)
	if err != nil {
		slog.Debug("malformed ELF note", slog.String("path", f.path), slog.Any("error", err))
		return nil
	}
	return id
}

// parseGNUBuildIDNote walks the notes in data and returns the descriptor of
// the first NT_GNU_BUILD_ID note owned by "GNU". It returns (nil, nil) when
// no such note exists.
func parseGNUBuildIDNote(data []byte, order binary.ByteOrder) ([]byte, error) {
	for len(data) >= noteHeaderSize {
		nameSize := uint64(order.Uint32(data[0:4]))
		descSize := uint64(order.Uint32(data[4:8]))
		noteType := order.Uint32(data[8:12])
		data = data[noteHeaderSize:]

		nameEnd := align4(nameSize)
		descEnd := nameEnd + align4(descSize)
		if nameEnd > uint64(len(data)) || nameEnd+descSize > uint64(len(data)) {
			return nil, errNoteTruncated
		}

		if noteType == ntGNUBuildID && string(data[:nameSize]) == gnuNoteName {
			id := make([]byte, descSize)
			copy(id, data[nameEnd:nameEnd+descSize])
			return id, nil
		}

		if descEnd >= uint64(len(data)) {
			return nil, nil
		}
		data = data[descEnd:]
	}
	return nil, nil
}
