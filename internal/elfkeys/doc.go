// Package elfkeys derives the symbol store keys that index an ELF binary, its
// stripped debug companion and, for the CoreCLR runtime core module, the
// diagnostic modules that are built and shipped together with it.
//
// # Usage
//
//	f, err := elffile.Open("/usr/share/dotnet/shared/libcoreclr.so")
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//
//	gen := elfkeys.NewGenerator(tracer, f, f.Path())
//	for key := range gen.Keys(symstore.IdentityKey | symstore.ClrKeys) {
//	    fmt.Println(key.Index)
//	}
//
// # Key layout
//
//   - identity: "libfoo.so/elf-buildid-<id>/libfoo.so"
//   - symbol:   "_.debug/elf-buildid-sym-<id>/_.debug"
//   - coreclr:  "libsos.so/elf-buildid-coreclr-<id>/libsos.so"
//
// Binaries that are not valid executables or shared objects, or that carry
// no 20 byte build id, yield no keys. Derivation never fails; anomalies are
// reported through the Tracer.
package elfkeys
