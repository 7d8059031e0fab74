// Package key turns call parameters into canonical cache keys.
//
// A key is an ordered sequence of segments: the namespace segments of a store
// followed by one fragment per parameter. Fragments are order sensitive and
// tagged for composite values so that, for example, a one element slice never
// renders the same as the bare element:
//
//	Fragment(7)              -> "7"
//	Fragment([]int{7})       -> "v[7]"
//	Fragment([2]int{1, 2})   -> "a2[1,2]"
//	Fragment(Tuple{1, "x"})  -> "1,x"
//
// Floats use strconv's shortest 'g' rendering; numerically equal floats with
// different renderings are not guaranteed to share a key.
package key

import (
	"strconv"
	"strings"
)

// Delimiter separates segments in the joined form of a Key.
const Delimiter = ","

// Key is the ordered segment sequence identifying one stored entry.
type Key []string

// New copies segs into a fresh Key.
func New(segs ...string) Key {
	k := make(Key, len(segs))
	copy(k, segs)
	return k
}

// String joins the segments with Delimiter. This is the form relational and
// remote backends store.
func (k Key) String() string { return strings.Join(k, Delimiter) }

// ID is an unambiguous encoding of the segments: ["a,b"] and ["a", "b"] share
// a String but never an ID.
func (k Key) ID() string {
	var b strings.Builder
	for _, s := range k {
		b.WriteString(strconv.Itoa(len(s)))
		b.WriteByte(':')
		b.WriteString(s)
	}
	return b.String()
}

// Append returns a new Key with segs added; k is never aliased.
func (k Key) Append(segs ...string) Key {
	out := make(Key, 0, len(k)+len(segs))
	out = append(out, k...)
	return append(out, segs...)
}

func (k Key) Equal(o Key) bool {
	if len(k) != len(o) {
		return false
	}
	for i := range k {
		if k[i] != o[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether p is a segment-wise prefix of k.
func (k Key) HasPrefix(p Key) bool {
	if len(p) > len(k) {
		return false
	}
	return k[:len(p)].Equal(p)
}

// Compare orders keys segment by segment, shorter first on a shared prefix.
func (k Key) Compare(o Key) int {
	for i := 0; i < len(k) && i < len(o); i++ {
		if c := strings.Compare(k[i], o[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(k) < len(o):
		return -1
	case len(k) > len(o):
		return 1
	}
	return 0
}
