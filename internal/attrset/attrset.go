// Package attrset implements AttributeSet, the lattice-node key used
// throughout the entropy engines: a set of non-negative attribute indices,
// totally ordered by its ascending sorted-member list.
//
// Two representations back the same type. For k <= 64 (the overwhelmingly
// common case for a flat relational table) membership is a uint64 bitmask:
// O(1) union, membership, and equality, and cheap-to-hash as a map key. For
// k > 64 a roaring bitmap carries the ordered sequence of members instead, as
// suggested for that case.
package attrset

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
)

// MaxBitmaskAttrs is the largest attribute index (exclusive) for which the
// uint64 bitmask fast path applies. Above it, Set falls back to a roaring
// bitmap.
const MaxBitmaskAttrs = 64

// Set is an AttributeSet: an immutable set of attribute indices.
type Set struct {
	mask uint64 // valid when wide == nil
	wide *roaring.Bitmap
}

// Empty is the empty AttributeSet.
var Empty = Set{}

// Single returns the singleton AttributeSet {i}.
func Single(i int) Set {
	if i < 0 {
		panic("attrset: negative attribute index")
	}
	if i < MaxBitmaskAttrs {
		return Set{mask: 1 << uint(i)}
	}
	bm := roaring.New()
	bm.Add(uint32(i))
	return Set{wide: bm}
}

// FromSlice builds an AttributeSet from a slice of attribute indices.
func FromSlice(idxs []int) Set {
	s := Empty
	for _, i := range idxs {
		s = s.Add(i)
	}
	return s
}

func (s Set) isWide() bool { return s.wide != nil }

// Add returns the AttributeSet with i added.
func (s Set) Add(i int) Set {
	if i < 0 {
		panic("attrset: negative attribute index")
	}
	if !s.isWide() && i < MaxBitmaskAttrs {
		return Set{mask: s.mask | (1 << uint(i))}
	}
	bm := s.toRoaring()
	bm.Add(uint32(i))
	return Set{wide: bm}
}

// Union returns s ∪ other.
func (s Set) Union(other Set) Set {
	if !s.isWide() && !other.isWide() {
		return Set{mask: s.mask | other.mask}
	}
	bm := s.toRoaring()
	bm.Or(other.toRoaring())
	return Set{wide: bm}
}

func (s Set) toRoaring() *roaring.Bitmap {
	if s.wide != nil {
		return s.wide.Clone()
	}
	bm := roaring.New()
	for m := s.mask; m != 0; {
		i := bits.TrailingZeros64(m)
		bm.Add(uint32(i))
		m &= m - 1
	}
	return bm
}

// Contains reports whether i is a member of s.
func (s Set) Contains(i int) bool {
	if i < 0 {
		return false
	}
	if !s.isWide() {
		if i >= MaxBitmaskAttrs {
			return false
		}
		return s.mask&(1<<uint(i)) != 0
	}
	return s.wide.Contains(uint32(i))
}

// Len returns the number of members.
func (s Set) Len() int {
	if !s.isWide() {
		return bits.OnesCount64(s.mask)
	}
	return int(s.wide.GetCardinality())
}

// Members returns the sorted ascending list of attribute indices in s.
func (s Set) Members() []int {
	if !s.isWide() {
		out := make([]int, 0, bits.OnesCount64(s.mask))
		for m := s.mask; m != 0; {
			i := bits.TrailingZeros64(m)
			out = append(out, i)
			m &= m - 1
		}
		return out
	}
	arr := s.wide.ToArray()
	out := make([]int, len(arr))
	for idx, v := range arr {
		out[idx] = int(v)
	}
	return out
}

// Max returns the largest member of s, or -1 if s is empty.
func (s Set) Max() int {
	members := s.Members()
	if len(members) == 0 {
		return -1
	}
	return members[len(members)-1]
}

// Equal reports whether s and other contain the same members.
func (s Set) Equal(other Set) bool {
	if !s.isWide() && !other.isWide() {
		return s.mask == other.mask
	}
	return s.toRoaring().Equals(other.toRoaring())
}

// Key returns a value usable as a Go map key representing this AttributeSet.
// It is the canonical textual encoding (String). Plain string order of keys
// does not follow Less ("{0, 1}" sorts before "{0}", "{10}" before "{2}"), so
// callers needing sorted iteration compare the sets with Less.
func (s Set) Key() string {
	return s.String()
}

// Less implements the total ordering from spec §3: ascending sorted-member
// list, lexicographic.
func Less(a, b Set) bool {
	am, bm := a.Members(), b.Members()
	for i := 0; i < len(am) && i < len(bm); i++ {
		if am[i] != bm[i] {
			return am[i] < bm[i]
		}
	}
	return len(am) < len(bm)
}

// String renders the set as "{a0, a1, ...}" in ascending order, used both as
// the map-key encoding and as the rendering inside output lines such as
// "Entropy for AttrSet{0, 1}: v".
func (s Set) String() string {
	members := s.Members()
	parts := make([]string, len(members))
	for i, m := range members {
		parts[i] = fmt.Sprintf("%d", m)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
