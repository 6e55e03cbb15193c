// Package core holds the shared numeric types the entropy engines operate
// on: EntropyMap, the AttributeSet -> value accumulator (spec §3, §4.2).
package core

import (
	"math"
	"sort"

	"entropymine/internal/attrset"
)

// EntropyMap maps an AttributeSet to a numeric value. During accumulation
// the value is Σ c(v)·log₂c(v) over non-singleton groups; after Finalize it
// is the finalized entropy H(S) = log₂n − accumulator/n.
type EntropyMap struct {
	values map[string]float64
	keys   map[string]attrset.Set
}

// NewEntropyMap returns an empty EntropyMap.
func NewEntropyMap() *EntropyMap {
	return &EntropyMap{
		values: make(map[string]float64),
		keys:   make(map[string]attrset.Set),
	}
}

// Add accumulates delta into the entry for s, creating it at zero if absent.
func (m *EntropyMap) Add(s attrset.Set, delta float64) {
	k := s.Key()
	m.values[k] += delta
	m.keys[k] = s
}

// Set overwrites the entry for s.
func (m *EntropyMap) Set(s attrset.Set, value float64) {
	k := s.Key()
	m.values[k] = value
	m.keys[k] = s
}

// Get returns the raw value stored for s and whether s is present.
func (m *EntropyMap) Get(s attrset.Set) (float64, bool) {
	v, ok := m.values[s.Key()]
	return v, ok
}

// Has reports whether s has an entry (materialized, not pruned).
func (m *EntropyMap) Has(s attrset.Set) bool {
	_, ok := m.values[s.Key()]
	return ok
}

// Delete removes the entry for s, if any.
func (m *EntropyMap) Delete(s attrset.Set) {
	delete(m.values, s.Key())
	delete(m.keys, s.Key())
}

// Len returns the number of materialized entries.
func (m *EntropyMap) Len() int {
	return len(m.values)
}

// Finalize replaces every stored accumulator a with log₂n − a/n, per spec §1
// and §4.5 "Finalization". n must be the tuple count of the run that
// produced this map. Finalize is not idempotent: calling it twice
// double-applies the transform and is a caller error.
func (m *EntropyMap) Finalize(n int) {
	logN := math.Log2(float64(n))
	for k, v := range m.values {
		m.values[k] = logN - v/float64(n)
	}
}

// Entry pairs an AttributeSet with its (post-Finalize) entropy value.
type Entry struct {
	Set   attrset.Set
	Value float64
}

// Entries returns all materialized entries in ascending lexicographic order
// of sorted members (spec §6 "Outputs"), the deterministic iteration order
// EntropyMap promises.
func (m *EntropyMap) Entries() []Entry {
	out := make([]Entry, 0, len(m.values))
	for k, v := range m.values {
		out = append(out, Entry{Set: m.keys[k], Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		return attrset.Less(out[i].Set, out[j].Set)
	})
	return out
}

// Rename applies bijection old->new physical-to-logical attribute indices to
// every key in m, producing a new EntropyMap. It must be applied only after
// Finalize (spec §4.3 "The renamer MUST be applied to EntropyMap keys only
// after finalization, never before.").
func (m *EntropyMap) Rename(physicalToLogical map[int]int) *EntropyMap {
	out := NewEntropyMap()
	for k, v := range m.values {
		s := m.keys[k]
		renamed := attrset.Empty
		for _, member := range s.Members() {
			logical, ok := physicalToLogical[member]
			if !ok {
				logical = member
			}
			renamed = renamed.Add(logical)
		}
		out.Set(renamed, v)
	}
	return out
}
