// Package valuekey implements ValueKey (spec §3): the opaque identifier of a
// tuple's value-combination on some AttributeSet. A single-attribute key is
// the dense 1..d_i re-encoding of that column's raw values; a composite key
// is a 64-bit hash of its two parent keys, used to key TID-lists and
// hashed-join groups in the TID/CNT engine (spec §4.4).
package valuekey

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Key is an opaque ValueKey.
type Key uint64

// Encoder assigns dense integer keys (1..d) to a column's raw textual
// values in first-seen order, as required by spec §4.4 step "Level-1
// initialization".
type Encoder struct {
	next uint64
	seen map[string]uint64
	raw  map[uint64]string
}

// NewEncoder returns an Encoder with no values seen yet.
func NewEncoder() *Encoder {
	return &Encoder{next: 1, seen: make(map[string]uint64), raw: make(map[uint64]string)}
}

// Encode returns the dense key for raw, assigning a new one on first sight.
func (e *Encoder) Encode(raw string) Key {
	if k, ok := e.seen[raw]; ok {
		return Key(k)
	}
	k := e.next
	e.seen[raw] = k
	e.raw[k] = raw
	e.next++
	return Key(k)
}

// Distinct returns the number of distinct raw values encoded so far.
func (e *Encoder) Distinct() int {
	return len(e.seen)
}

// Raw returns the original value a dense key was assigned to, if any. A
// backend whose column storage is the raw text itself (rather than the
// dense key) needs this to translate a Predicate's Value back into a
// literal it can bind in a query.
func (e *Encoder) Raw(k Key) (string, bool) {
	raw, ok := e.raw[uint64(k)]
	return raw, ok
}

// Combine produces the composite ValueKey for a tuple agreeing with parent
// keys a (on attribute set S) and b (on attribute {j}), per spec §3 "for a
// composite set it is the 64-bit hash of the two parent ValueKeys".
//
// The two parent keys are hashed as a single concatenated byte string rather
// than XOR'd or hashed independently and combined — concatenating preserves
// positional information (hash(a,b) != hash(b,a) in general and collisions
// require an actual hash collision on the combined bytes, not merely a+b
// cancelling out), which is the approximation spec §9 requires documenting.
// A 64-bit digest still carries non-zero collision probability; see
// DESIGN.md and valuekey_test.go for the accepted-approximation discussion.
func Combine(a, b Key) Key {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(a))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(b))
	return Key(xxhash.Sum64(buf[:]))
}
