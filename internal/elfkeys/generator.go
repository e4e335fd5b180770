package elfkeys

import (
	"fmt"
	"iter"
	"path/filepath"
	"slices"

	"github.com/isseis/go-symstore-keys/internal/symstore"
)

const (
	// SymbolFileExtension is the extension of stripped debug files.
	SymbolFileExtension = ".dbg"

	// IdentityPrefix tags keys of the binary itself.
	IdentityPrefix = "elf-buildid"
	// SymbolPrefix tags keys of debug files.
	SymbolPrefix = "elf-buildid-sym"
	// CoreClrPrefix tags keys of the CoreCLR diagnostic modules.
	CoreClrPrefix = "elf-buildid-coreclr"

	// CoreClrFileName is the file name of the CoreCLR runtime core module.
	CoreClrFileName = "libcoreclr.so"

	// DebugLinkSectionName names the section that records the debug file name.
	DebugLinkSectionName = ".gnu_debuglink"

	// SymbolFileLeafName is the file name under which debug files are stored.
	SymbolFileLeafName = "_.debug"

	// BuildIDLength is the only build id length keys are derived for.
	BuildIDLength = 20
)

// coreClrSpecialFiles are built together with libcoreclr.so and share its build id.
var coreClrSpecialFiles = []string{
	"libmscordaccore.so",
	"libmscordbi.so",
	"libsos.so",
	"SOS.NETCore.dll",
}

// CoreClrSpecialFiles returns a copy of the CoreCLR companion file names in
// emission order.
func CoreClrSpecialFiles() []string {
	return slices.Clone(coreClrSpecialFiles)
}

func isCoreClrSpecialFile(name string) bool {
	return slices.Contains(coreClrSpecialFiles, name)
}

// Generator derives the keys of one ELF binary.
type Generator struct {
	tracer Tracer
	view   ELFView
	path   string
}

// NewGenerator creates a Generator for the binary parsed as view and located
// at path. A nil tracer discards diagnostics.
func NewGenerator(tracer Tracer, view ELFView, path string) *Generator {
	if tracer == nil {
		tracer = nopTracer{}
	}
	return &Generator{
		tracer: tracer,
		view:   view,
		path:   path,
	}
}

// IsValid reports whether the binary is a valid ELF executable or shared object.
func (g *Generator) IsValid() bool {
	if g.view == nil || !g.view.IsValid() {
		return false
	}
	switch g.view.HeaderType() {
	case HeaderExecutable, HeaderShared:
		return true
	default:
		return false
	}
}

// Keys returns the keys selected by flags. Ineligible binaries yield an empty
// sequence; a missing or malformed build id is also reported to the tracer.
func (g *Generator) Keys(flags symstore.KeyTypeFlags) iter.Seq[symstore.SymbolStoreKey] {
	return func(yield func(symstore.SymbolStoreKey) bool) {
		if !g.IsValid() {
			return
		}

		buildID := g.view.BuildID()
		if len(buildID) != BuildIDLength {
			id := "<null>"
			if buildID != nil {
				id = symstore.ToHexString(buildID)
			}
			g.tracer.Error("Invalid ELF BuildID '%s' for %s", id, g.path)
			return
		}

		symbolFile := filepath.Ext(g.path) == SymbolFileExtension

		var symbolFileName string
		if !symbolFile && flags.Has(symstore.SymbolKey) {
			symbolFileName = g.debugLinkName()
		}

		for key := range Keys(flags, g.path, buildID, symbolFile, symbolFileName) {
			if !yield(key) {
				return
			}
		}
	}
}

// debugLinkName returns the debug file name recorded in .gnu_debuglink, or
// "" when the section is absent or cannot be decoded.
func (g *Generator) debugLinkName() string {
	section, ok := g.view.FindSectionByName(DebugLinkSectionName)
	if !ok {
		return ""
	}
	name, err := section.ReadString(0)
	if err != nil {
		g.tracer.Verbose("ELF %s section in %s: %v", DebugLinkSectionName, g.path, err)
		return ""
	}
	return name
}

// Keys derives keys from already extracted binary properties.
//
// path is the binary's file name or path, buildID its 20 byte build id,
// symbolFile whether the binary is itself a debug file, and symbolFileName
// the name recorded in .gnu_debuglink ("" when unknown). It panics when path
// is empty or buildID is not 20 bytes long.
func Keys(flags symstore.KeyTypeFlags, path string, buildID []byte, symbolFile bool, symbolFileName string) iter.Seq[symstore.SymbolStoreKey] {
	if path == "" {
		panic("elfkeys: empty path")
	}
	if len(buildID) != BuildIDLength {
		panic(fmt.Sprintf("elfkeys: build id must be %d bytes, got %d", BuildIDLength, len(buildID)))
	}
	id := slices.Clone(buildID)

	return func(yield func(symstore.SymbolStoreKey) bool) {
		fileName := symstore.FileName(path)

		if flags.Has(symstore.IdentityKey) {
			var key symstore.SymbolStoreKey
			if symbolFile {
				key = symstore.BuildKey(path, SymbolPrefix, id, SymbolFileLeafName, false)
			} else {
				key = symstore.BuildKey(path, IdentityPrefix, id, "", isCoreClrSpecialFile(fileName))
			}
			if !yield(key) {
				return
			}
		}

		if symbolFile {
			return
		}

		if flags.Has(symstore.SymbolKey) {
			name := symbolFileName
			if name == "" {
				name = path + SymbolFileExtension
			}
			if !yield(symstore.BuildKey(name, SymbolPrefix, id, SymbolFileLeafName, false)) {
				return
			}
		}

		if flags.Has(symstore.ClrKeys) && fileName == CoreClrFileName {
			for _, special := range coreClrSpecialFiles {
				if !yield(symstore.BuildKey(special, CoreClrPrefix, id, "", false)) {
					return
				}
			}
		}
	}
}

// Collect materializes a key sequence.
func Collect(seq iter.Seq[symstore.SymbolStoreKey]) []symstore.SymbolStoreKey {
	return slices.Collect(seq)
}

type nopTracer struct{}

func (nopTracer) Error(string, ...any)   {}
func (nopTracer) Verbose(string, ...any) {}
