package keymap

import (
	"fmt"
	"maps"
	"slices"

	"go-piano/input"
)

// Bindings maps a key ID ("a", "shift+a", "ctrl+1") to a pitch offset from
// the layout's lowest key. Offsets are unique within a table.
type Bindings map[string]int

// Clone returns an independent copy
func (b Bindings) Clone() Bindings {
	if b == nil {
		return Bindings{}
	}
	return maps.Clone(b)
}

// KeyAt returns the key bound to offset, if any
func (b Bindings) KeyAt(offset int) (string, bool) {
	for k, off := range b {
		if off == offset {
			return k, true
		}
	}
	return "", false
}

// Keys returns the bound key IDs sorted by offset
func (b Bindings) Keys() []string {
	keys := slices.Collect(maps.Keys(b))
	slices.SortFunc(keys, func(x, y string) int { return b[x] - b[y] })
	return keys
}

// Validate checks that every key ID is canonical and every offset lies in the
// layout and is used once.
func (b Bindings) Validate(l Layout) error {
	seen := make(map[int]string, len(b))
	for key, off := range b {
		if id, ok := input.KeyID(key); !ok || id != key {
			return fmt.Errorf("%w: %q is not a bindable key", ErrBindingConflict, key)
		}
		if off < 0 || off >= l.Size() {
			return fmt.Errorf("%w: %q offset %d outside %s-key layout", ErrPitchOutOfRange, key, off, l)
		}
		if other, dup := seen[off]; dup {
			return fmt.Errorf("%w: %q and %q share offset %d", ErrBindingConflict, key, other, off)
		}
		seen[off] = key
	}
	return nil
}
