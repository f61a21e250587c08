package ir

import (
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface over the document value types used for
// canonical rendering. Only Null, Str, Int, Bool, List and Doc implement it.
// There is no float type: floats break determinism of digests.
type Value interface {
	value()
}

// Null is an explicit JSON null.
type Null struct{}

// Str is a string value.
type Str string

// Int is an integer value. Always int64, never float64.
type Int int64

// Bool is a boolean value.
type Bool bool

// List is an ordered list of values.
type List []Value

// Doc is a map of string keys to values. Use SortedKeys for deterministic
// iteration.
type Doc map[string]Value

func (Null) value() {}
func (Str) value()  {}
func (Int) value()  {}
func (Bool) value() {}
func (List) value() {}
func (Doc) value()  {}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings uses UTF-8 byte order, which differs for
// supplementary-plane characters.
func (d Doc) SortedKeys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings by UTF-16 code units.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}
