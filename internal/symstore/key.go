package symstore

import (
	"encoding/hex"
	"strings"
)

// SymbolStoreKey addresses one file in a symbol store.
type SymbolStoreKey struct {
	// Index is the store-relative path, e.g. "libfoo.so/elf-buildid-<hex>/libfoo.so".
	Index string

	// FullPathName is the file name or path the key resolves to.
	FullPathName string

	// IsClrSpecialFile marks keys of the diagnostic modules shipped with the
	// CoreCLR runtime. It does not take part in equality.
	IsClrSpecialFile bool
}

// Equal reports whether both keys address the same index and target file.
func (k SymbolStoreKey) Equal(other SymbolStoreKey) bool {
	return k.Index == other.Index && k.FullPathName == other.FullPathName
}

// String returns the index path.
func (k SymbolStoreKey) String() string {
	return k.Index
}

// BuildKey builds a key whose index has the form "file/prefix-id/file".
//
// When file is empty the lower-cased file name of path is used. When prefix
// is empty the "prefix-" part is omitted. The id is encoded as lower-case
// hexadecimal.
func BuildKey(path, prefix string, id []byte, file string, clrSpecialFile bool) SymbolStoreKey {
	if file == "" {
		file = strings.ToLower(FileName(path))
	}

	var b strings.Builder
	b.Grow(2*len(file) + len(prefix) + 2*len(id) + 3)
	b.WriteString(file)
	b.WriteByte('/')
	if prefix != "" {
		b.WriteString(prefix)
		b.WriteByte('-')
	}
	b.WriteString(ToHexString(id))
	b.WriteByte('/')
	b.WriteString(file)

	return SymbolStoreKey{
		Index:            b.String(),
		FullPathName:     path,
		IsClrSpecialFile: clrSpecialFile,
	}
}

// ToHexString encodes bytes as lower-case hexadecimal.
func ToHexString(b []byte) string {
	return hex.EncodeToString(b)
}

// FileName returns the last element of path. Both '/' and '\' are treated as
// separators so that Windows-style paths recorded on other hosts resolve to
// the same name.
func FileName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

// IsValidIndex reports whether index is usable as a store path: non-empty,
// relative, '/'-separated, and free of empty, "." or ".." elements, control
// characters and backslashes.
func IsValidIndex(index string) bool {
	if index == "" {
		return false
	}
	for _, r := range index {
		if r < 0x20 || r == 0x7f || r == '\\' {
			return false
		}
	}
	for _, elem := range strings.Split(index, "/") {
		if elem == "" || elem == "." || elem == ".." {
			return false
		}
	}
	return true
}
