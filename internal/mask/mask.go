package mask

import (
	"fmt"
	"math/bits"
	"strings"
)

// Limit is the maximum number of states, and separately of transitions,
// a model may declare.
const Limit = 62

// ModelTooLargeError is returned when a model declares more states or
// transitions than fit in a mask.
type ModelTooLargeError struct {
	Kind  string // "state" or "transition"
	Count int
	Limit int
}

func (e *ModelTooLargeError) Error() string {
	return fmt.Sprintf("workflow contains too many %ss: %d exceeds limit of %d", e.Kind, e.Count, e.Limit)
}

// Index maps names to masks and back for one domain (states or transitions).
//
// Masks are assigned in insertion order starting at 1<<0. The zero mask is
// bound to ZeroName and is never assigned by Add.
type Index struct {
	kind     string
	zeroName string
	names    []string
	masks    map[string]uint64
}

// NewIndex creates an empty index. kind is used in error messages; zeroName
// is the name reported for the zero mask.
func NewIndex(kind, zeroName string) *Index {
	return &Index{
		kind:     kind,
		zeroName: zeroName,
		masks:    make(map[string]uint64),
	}
}

// Add assigns a mask to name if it has none yet and returns the mask.
// Returns ModelTooLargeError once Limit is exceeded.
func (x *Index) Add(name string) (uint64, error) {
	if m, ok := x.masks[name]; ok {
		return m, nil
	}
	if name == x.zeroName {
		return 0, nil
	}
	if len(x.names) >= Limit {
		return 0, &ModelTooLargeError{Kind: x.kind, Count: len(x.names) + 1, Limit: Limit}
	}
	m := uint64(1) << len(x.names)
	x.names = append(x.names, name)
	x.masks[name] = m
	return m, nil
}

// Mask returns the mask for name.
func (x *Index) Mask(name string) (uint64, bool) {
	if name == x.zeroName {
		return 0, true
	}
	m, ok := x.masks[name]
	return m, ok
}

// Name returns the name of a single-bit mask, or "" if unknown.
func (x *Index) Name(m uint64) string {
	if m == 0 {
		return x.zeroName
	}
	if bits.OnesCount64(m) != 1 {
		return ""
	}
	i := bits.TrailingZeros64(m)
	if i >= len(x.names) {
		return ""
	}
	return x.names[i]
}

// Names returns the names of every bit set in m, in mask order.
// Bits with no name are skipped.
func (x *Index) Names(m uint64) []string {
	var out []string
	Each(m, func(bit uint64) {
		if n := x.Name(bit); n != "" {
			out = append(out, n)
		}
	})
	return out
}

// Len returns the number of assigned masks, excluding the zero mask.
func (x *Index) Len() int {
	return len(x.names)
}

// All returns every assigned name in mask order.
func (x *Index) All() []string {
	out := make([]string, len(x.names))
	copy(out, x.names)
	return out
}

// Full returns the union of all assigned masks.
func (x *Index) Full() uint64 {
	if len(x.names) == 0 {
		return 0
	}
	return uint64(1)<<len(x.names) - 1
}

// ZeroName returns the name bound to the zero mask.
func (x *Index) ZeroName() string {
	return x.zeroName
}

// Clone returns an independent copy of the index.
func (x *Index) Clone() *Index {
	c := &Index{
		kind:     x.kind,
		zeroName: x.zeroName,
		names:    append([]string(nil), x.names...),
		masks:    make(map[string]uint64, len(x.masks)),
	}
	for k, v := range x.masks {
		c.masks[k] = v
	}
	return c
}

// Each calls fn for every set bit of m in ascending order.
func Each(m uint64, fn func(bit uint64)) {
	for m != 0 {
		bit := m & -m
		fn(bit)
		m &^= bit
	}
}

// Count returns the number of bits set in m.
func Count(m uint64) int {
	return bits.OnesCount64(m)
}

// Position returns the 1-based position of a single-bit mask (its state
// index), or 0 for the zero mask.
func Position(bit uint64) int {
	if bit == 0 {
		return 0
	}
	return bits.TrailingZeros64(bit) + 1
}

// Contains reports whether every bit of sub is set in m.
func Contains(m, sub uint64) bool {
	return m&sub == sub
}

// SplitNames splits a comma-separated name list, dropping spaces and empty
// entries.
func SplitNames(s string) []string {
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
