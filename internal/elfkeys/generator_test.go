//go:build test

package elfkeys

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isseis/go-symstore-keys/internal/symstore"
)

type fakeSection struct {
	data string
	err  error
}

func (s fakeSection) ReadString(offset uint64) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.data[offset:], nil
}

type fakeView struct {
	valid      bool
	header     HeaderType
	buildID    []byte
	sections   map[string]Section
	lookups    int
	lookupsMux sync.Mutex
}

func (v *fakeView) IsValid() bool          { return v.valid }
func (v *fakeView) HeaderType() HeaderType { return v.header }
func (v *fakeView) BuildID() []byte        { return v.buildID }

func (v *fakeView) FindSectionByName(name string) (Section, bool) {
	v.lookupsMux.Lock()
	v.lookups++
	v.lookupsMux.Unlock()
	s, ok := v.sections[name]
	return s, ok
}

type recordingTracer struct {
	errors  []string
	verbose []string
}

func (r *recordingTracer) Error(format string, args ...any) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func (r *recordingTracer) Verbose(format string, args ...any) {
	r.verbose = append(r.verbose, fmt.Sprintf(format, args...))
}

func sharedView(id []byte) *fakeView {
	return &fakeView{valid: true, header: HeaderShared, buildID: id}
}

func indexes(keys []symstore.SymbolStoreKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.Index
	}
	return out
}

func TestGenerator_IsValid(t *testing.T) {
	id := bytes.Repeat([]byte{0x11}, 20)

	tests := []struct {
		name     string
		view     ELFView
		expected bool
	}{
		{"shared", &fakeView{valid: true, header: HeaderShared, buildID: id}, true},
		{"executable", &fakeView{valid: true, header: HeaderExecutable, buildID: id}, true},
		{"relocatable", &fakeView{valid: true, header: HeaderRelocatable, buildID: id}, false},
		{"core dump", &fakeView{valid: true, header: HeaderCore, buildID: id}, false},
		{"other", &fakeView{valid: true, header: HeaderOther, buildID: id}, false},
		{"invalid", &fakeView{valid: false, header: HeaderShared, buildID: id}, false},
		{"nil view", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := NewGenerator(nil, tt.view, "libfoo.so")
			assert.Equal(t, tt.expected, gen.IsValid())
			if !tt.expected {
				assert.Empty(t, Collect(gen.Keys(symstore.AllKeys)))
			}
		})
	}
}

func TestGenerator_IdentityKeyOnly(t *testing.T) {
	for _, header := range []HeaderType{HeaderShared, HeaderExecutable} {
		t.Run(header.String(), func(t *testing.T) {
			view := &fakeView{valid: true, header: header, buildID: bytes.Repeat([]byte{0x42}, 20)}
			keys := Collect(NewGenerator(nil, view, "/opt/app/bin/server").Keys(symstore.IdentityKey))
			require.Len(t, keys, 1)
			assert.Equal(t, "server/elf-buildid-"+strings.Repeat("42", 20)+"/server", keys[0].Index)
			assert.Equal(t, 0, view.lookups, "debug link must not be read for identity keys")
		})
	}
}

func TestGenerator_InvalidBuildID(t *testing.T) {
	tests := []struct {
		name       string
		buildID    []byte
		expectedID string
	}{
		{"absent", nil, "<null>"},
		{"short", []byte{0xde, 0xad, 0xbe, 0xef}, "deadbeef"},
		{"long", bytes.Repeat([]byte{0x01}, 21), strings.Repeat("01", 21)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer := &recordingTracer{}
			gen := NewGenerator(tracer, sharedView(tt.buildID), "/lib/libfoo.so")

			assert.Empty(t, Collect(gen.Keys(symstore.AllKeys)))
			require.Len(t, tracer.errors, 1)
			assert.Contains(t, tracer.errors[0], tt.expectedID)
			assert.Contains(t, tracer.errors[0], "/lib/libfoo.so")
		})
	}
}

func TestGenerator_NoDiagnosticForIneligibleFile(t *testing.T) {
	tracer := &recordingTracer{}
	view := &fakeView{valid: true, header: HeaderRelocatable}
	assert.Empty(t, Collect(NewGenerator(tracer, view, "foo.o").Keys(symstore.AllKeys)))
	assert.Empty(t, tracer.errors)
}

func TestGenerator_IdentityAndSymbolWithoutDebugLink(t *testing.T) {
	id := bytes.Repeat([]byte{0xAA}, 20)
	hexID := strings.Repeat("aa", 20)

	keys := Collect(NewGenerator(nil, sharedView(id), "libfoo.so").Keys(symstore.IdentityKey | symstore.SymbolKey))

	require.Len(t, keys, 2)
	assert.Equal(t, "libfoo.so/elf-buildid-"+hexID+"/libfoo.so", keys[0].Index)
	assert.Equal(t, "libfoo.so", keys[0].FullPathName)
	assert.Equal(t, "_.debug/elf-buildid-sym-"+hexID+"/_.debug", keys[1].Index)
	assert.Equal(t, "libfoo.so.dbg", keys[1].FullPathName)
}

func TestGenerator_SymbolKeyUsesDebugLink(t *testing.T) {
	view := sharedView(bytes.Repeat([]byte{0x10}, 20))
	view.sections = map[string]Section{
		DebugLinkSectionName: fakeSection{data: "libfoo.so.debug"},
	}

	keys := Collect(NewGenerator(nil, view, "/usr/lib/libfoo.so").Keys(symstore.SymbolKey))

	require.Len(t, keys, 1)
	assert.Equal(t, "libfoo.so.debug", keys[0].FullPathName)
	assert.Equal(t, "_.debug/elf-buildid-sym-"+strings.Repeat("10", 20)+"/_.debug", keys[0].Index)
}

func TestGenerator_DebugLinkDecodeFailureFallsBack(t *testing.T) {
	tracer := &recordingTracer{}
	view := sharedView(bytes.Repeat([]byte{0x10}, 20))
	view.sections = map[string]Section{
		DebugLinkSectionName: fakeSection{err: fmt.Errorf("%w: offset out of range", ErrSectionDecode)},
	}

	keys := Collect(NewGenerator(tracer, view, "/usr/lib/libfoo.so").Keys(symstore.SymbolKey))

	require.Len(t, keys, 1)
	assert.Equal(t, "/usr/lib/libfoo.so.dbg", keys[0].FullPathName)
	assert.Empty(t, tracer.errors)
	require.Len(t, tracer.verbose, 1)
	assert.Contains(t, tracer.verbose[0], DebugLinkSectionName)
}

func TestGenerator_CoreClrCompanions(t *testing.T) {
	id := bytes.Repeat([]byte{0xBB}, 20)
	hexID := strings.Repeat("bb", 20)

	keys := Collect(NewGenerator(nil, sharedView(id), "/usr/share/dotnet/libcoreclr.so").Keys(symstore.ClrKeys))

	require.Len(t, keys, len(CoreClrSpecialFiles()))
	assert.Len(t, keys, 4)
	for i, name := range CoreClrSpecialFiles() {
		lower := strings.ToLower(name)
		assert.Equal(t, lower+"/elf-buildid-coreclr-"+hexID+"/"+lower, keys[i].Index)
		assert.Equal(t, name, keys[i].FullPathName)
		assert.Contains(t, keys[i].Index, hexID, "companion keys share the core module build id")
	}
}

func TestGenerator_CoreClrCompanionsRequireCoreModule(t *testing.T) {
	keys := Collect(NewGenerator(nil, sharedView(bytes.Repeat([]byte{0x01}, 20)), "libother.so").Keys(symstore.ClrKeys))
	assert.Empty(t, keys)
}

func TestGenerator_SymbolFileEmitsOnlyIdentity(t *testing.T) {
	id := bytes.Repeat([]byte{0xCC}, 20)
	hexID := strings.Repeat("cc", 20)

	for _, path := range []string{"libfoo.so.dbg", "/symbols/libcoreclr.so.dbg"} {
		t.Run(path, func(t *testing.T) {
			view := sharedView(id)
			keys := Collect(NewGenerator(nil, view, path).Keys(symstore.AllKeys))

			require.Len(t, keys, 1)
			assert.Equal(t, "_.debug/elf-buildid-sym-"+hexID+"/_.debug", keys[0].Index)
			assert.Equal(t, path, keys[0].FullPathName)
			assert.Equal(t, 0, view.lookups)
		})
	}

	t.Run("without identity flag", func(t *testing.T) {
		keys := Collect(NewGenerator(nil, sharedView(id), "libfoo.so.dbg").Keys(symstore.SymbolKey | symstore.ClrKeys))
		assert.Empty(t, keys)
	})
}

func TestGenerator_ClrSpecialFileIdentityTag(t *testing.T) {
	id := bytes.Repeat([]byte{0x05}, 20)

	sos := Collect(NewGenerator(nil, sharedView(id), "/x/libsos.so").Keys(symstore.IdentityKey))
	plain := Collect(NewGenerator(nil, sharedView(id), "/x/libfoo.so").Keys(symstore.IdentityKey))

	require.Len(t, sos, 1)
	require.Len(t, plain, 1)
	assert.True(t, sos[0].IsClrSpecialFile)
	assert.False(t, plain[0].IsClrSpecialFile)
	assert.Equal(t, "libsos.so/elf-buildid-"+strings.Repeat("05", 20)+"/libsos.so", sos[0].Index)
}

func TestGenerator_EmissionOrder(t *testing.T) {
	id := bytes.Repeat([]byte{0x07}, 20)
	keys := Collect(NewGenerator(nil, sharedView(id), "libcoreclr.so").Keys(symstore.AllKeys))

	idx := indexes(keys)
	require.Len(t, idx, 6)
	assert.True(t, strings.HasPrefix(idx[0], "libcoreclr.so/elf-buildid-"))
	assert.True(t, strings.HasPrefix(idx[1], "_.debug/elf-buildid-sym-"))
	for _, k := range idx[2:] {
		assert.Contains(t, k, "/elf-buildid-coreclr-")
	}
}

func TestGenerator_Idempotent(t *testing.T) {
	view := sharedView(bytes.Repeat([]byte{0x09}, 20))
	gen := NewGenerator(nil, view, "libcoreclr.so")

	seq := gen.Keys(symstore.AllKeys)
	first := Collect(seq)
	second := Collect(seq)
	third := Collect(gen.Keys(symstore.AllKeys))

	require.Len(t, first, len(second))
	for i := range first {
		assert.True(t, first[i].Equal(second[i]))
		assert.True(t, first[i].Equal(third[i]))
	}
}

func TestGenerator_EarlyStop(t *testing.T) {
	gen := NewGenerator(nil, sharedView(bytes.Repeat([]byte{0x0A}, 20)), "libcoreclr.so")

	var got []symstore.SymbolStoreKey
	for key := range gen.Keys(symstore.AllKeys) {
		got = append(got, key)
		break
	}
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Index, "/elf-buildid-")
}

func TestGenerator_ConcurrentEnumeration(t *testing.T) {
	gen := NewGenerator(nil, sharedView(bytes.Repeat([]byte{0x0B}, 20)), "libcoreclr.so")
	expected := indexes(Collect(gen.Keys(symstore.AllKeys)))

	var wg sync.WaitGroup
	results := make([][]string, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = indexes(Collect(gen.Keys(symstore.AllKeys)))
		}()
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, expected, r)
	}
}

func TestKeys_ContractViolations(t *testing.T) {
	assert.Panics(t, func() { Keys(symstore.IdentityKey, "", bytes.Repeat([]byte{1}, 20), false, "") })
	assert.Panics(t, func() { Keys(symstore.IdentityKey, "libfoo.so", nil, false, "") })
	assert.Panics(t, func() { Keys(symstore.IdentityKey, "libfoo.so", []byte{1, 2, 3}, false, "") })
}

func TestKeys_EmptyFlags(t *testing.T) {
	assert.Empty(t, Collect(Keys(symstore.None, "libcoreclr.so", bytes.Repeat([]byte{1}, 20), false, "")))
}

func TestKeys_DoesNotAliasBuildID(t *testing.T) {
	id := bytes.Repeat([]byte{0x01}, 20)
	seq := Keys(symstore.IdentityKey, "libfoo.so", id, false, "")
	id[0] = 0xFF

	keys := Collect(seq)
	require.Len(t, keys, 1)
	assert.Equal(t, "libfoo.so/elf-buildid-"+strings.Repeat("01", 20)+"/libfoo.so", keys[0].Index)
}

func TestCoreClrSpecialFiles_ReturnsCopy(t *testing.T) {
	names := CoreClrSpecialFiles()
	names[0] = "changed"
	assert.Equal(t, "libmscordaccore.so", CoreClrSpecialFiles()[0])
}

func TestHeaderType_String(t *testing.T) {
	assert.Equal(t, "shared", HeaderShared.String())
	assert.Equal(t, "executable", HeaderExecutable.String())
	assert.Equal(t, "unknown(99)", HeaderType(99).String())
}
