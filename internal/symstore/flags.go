// Package symstore defines the symbol store key model shared by the key
// generators: the requested key categories, the key value type and the
// primitive that encodes a build identity into a store index path.
package symstore

import (
	"fmt"
	"strings"
)

// KeyTypeFlags selects which categories of keys a generator emits.
type KeyTypeFlags uint

const (
	// None requests no keys.
	None KeyTypeFlags = 0

	// IdentityKey requests the key for the binary itself.
	IdentityKey KeyTypeFlags = 1 << (iota - 1)

	// SymbolKey requests the key for the binary's companion debug file.
	SymbolKey

	// ClrKeys requests the keys of the diagnostic modules shipped alongside
	// the CoreCLR runtime core module.
	ClrKeys

	// AllKeys requests every category.
	AllKeys = IdentityKey | SymbolKey | ClrKeys
)

var flagNames = []struct {
	flag KeyTypeFlags
	name string
}{
	{IdentityKey, "identity"},
	{SymbolKey, "symbol"},
	{ClrKeys, "clr"},
}

// Has reports whether every category in f is set.
func (k KeyTypeFlags) Has(f KeyTypeFlags) bool {
	return f != None && k&f == f
}

// String returns the set categories joined by "|", or "none".
func (k KeyTypeFlags) String() string {
	var parts []string
	for _, fn := range flagNames {
		if k.Has(fn.flag) {
			parts = append(parts, fn.name)
		}
	}
	if rest := k &^ AllKeys; rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint(rest)))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ParseKeyTypeFlags converts category names ("identity", "symbol", "clr",
// "all") into flags. Names are case-insensitive and may themselves be comma
// separated lists.
func ParseKeyTypeFlags(names []string) (KeyTypeFlags, error) {
	flags := None
	for _, entry := range names {
		for _, raw := range strings.Split(entry, ",") {
			name := strings.ToLower(strings.TrimSpace(raw))
			if name == "" {
				continue
			}
			if name == "all" {
				flags |= AllKeys
				continue
			}
			found := false
			for _, fn := range flagNames {
				if fn.name == name {
					flags |= fn.flag
					found = true
					break
				}
			}
			if !found {
				return None, fmt.Errorf("%w: %q", ErrUnknownKeyType, raw)
			}
		}
	}
	return flags, nil
}
