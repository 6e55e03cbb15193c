// Package store defines TupleStore, the abstraction over whatever columnar
// or relational substrate backs a run (spec §4.1): a small set of typed
// group-and-count primitives the TID/CNT and BUC engines need, and nothing
// else. It is the only layer that issues queries against a backend; the
// engines never see SQL, file paths, or connection details.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"entropymine/internal/valuekey"
)

// ErrEmptyGroup is the "⊥" result from spec §4.1/§6: group_sum_clogc and
// hashed_join_counts return it when their group set is empty
// (hashed_join_materialize does not return it). It is not an error condition for the engines — it is the prune
// signal (spec §7).
var ErrEmptyGroup = errors.New("store: empty group set")

// ErrAttributeOverlap is the "programmer error" case from spec §7: a caller
// asked the TID/CNT engine to extend S by an attribute j that is already a
// member of S. The TID/CNT engine skips such an extension silently (no log
// line, no panic); no code path currently returns this error.
var ErrAttributeOverlap = errors.New("store: attribute already present in set")

// Relation identifies a loaded or derived table within a Store. It carries
// no data itself; all access goes through the Store's primitives.
type Relation struct {
	Name string
	N    int // tuple count, set by Load
	K    int // column count
}

// Filter is a conjunction of column=value equality predicates, the
// "filter" argument threaded through BUC's recursion (spec §4.5).
type Filter []Predicate

// Predicate is a single "column = value" equality constraint, value encoded
// as a ValueKey (spec §3) rather than a raw string so stores never have to
// re-derive the dense encoding.
type Predicate struct {
	Column int
	Value  valuekey.Key
}

// And returns a new Filter with pred appended; the receiver is left
// unmodified so callers can branch a filter across sibling recursion frames
// without aliasing (spec §4.5 "f' = filter ∧ (col_i = v)").
func (f Filter) And(pred Predicate) Filter {
	out := make(Filter, len(f), len(f)+1)
	copy(out, f)
	return append(out, pred)
}

// ValueCount pairs a group's value-vector with its multiplicity, the
// group_values primitive's result shape (spec §6).
type ValueCount struct {
	Values []valuekey.Key
	Count  int
}

// JoinCounts is the result of hashed_join_counts: a table of (composite
// ValueKey, count) pairs restricted to count > 1 (spec §4.1).
type JoinCounts struct {
	Table string // backend-assigned name, passed to hashed_join_materialize
	Rows  []JoinCountRow
}

// JoinCountRow is one row of a JoinCounts table.
type JoinCountRow struct {
	Val   valuekey.Key
	Count int
}

// TIDValue pairs a tuple identifier with the ValueKey it carries in a
// TID-list (spec §3 "TID-list for S").
type TIDValue struct {
	TID int
	Val valuekey.Key
}

// Store is the TupleStore contract (spec §4.1, §6). Every method may return
// a backend error (fatal, per spec §7); group_sum_clogc/hashed_join_counts
// signal emptiness via ErrEmptyGroup rather than an error value, so callers
// must check errors.Is(err, ErrEmptyGroup) before treating a non-nil error as
// fatal.
type Store interface {
	// Load ingests a k-column tabular source, assigning TIDs 1..n in file
	// order, and reports the resulting Relation.
	Load(ctx context.Context, path string, k int) (*Relation, error)

	// DistinctCount returns the number of distinct values in column col of
	// rel.
	DistinctCount(ctx context.Context, rel *Relation, col int) (int, error)

	// RenameColumn renames a physical column in rel.
	RenameColumn(ctx context.Context, rel *Relation, oldName, newName string) error

	// ColumnValues returns the full per-tuple (TID, encoded value) list for
	// a single column, unfiltered by multiplicity. This underlies the
	// TID/CNT engine's Level-1 initialization (spec §4.4 step 1-2), which
	// needs every tuple's ValueKey on a column before it can discard
	// singleton classes to build the level-1 TID-list; spec §4.1 does not
	// name this primitive explicitly but the "tblA, tblB" TID-lists that
	// hashed_join_counts/hashed_join_materialize consume have to originate
	// from somewhere, and this is that origin.
	ColumnValues(ctx context.Context, rel *Relation, col int) ([]TIDValue, error)

	// CreateTableAs materializes a derived table under name: the projection
	// of rel onto cols, restricted to rows matching filter.
	CreateTableAs(ctx context.Context, name string, rel *Relation, cols []int, filter Filter) (*Relation, error)

	// DropTable releases a table created by CreateTableAs. Safe to call on
	// an already-dropped or never-created table.
	DropTable(ctx context.Context, name string) error

	// GroupSumCLogC returns Σ cnt(g)·log₂cnt(g) over groups with cnt>1 on
	// cols under filter. Returns ErrEmptyGroup when that set is empty.
	GroupSumCLogC(ctx context.Context, rel *Relation, cols []int, filter Filter) (float64, error)

	// GroupValues returns the set of (value-vector, cnt) with cnt>1 on cols
	// under filter. An empty (nil) slice is a valid, non-error result.
	GroupValues(ctx context.Context, rel *Relation, cols []int, filter Filter) ([]ValueCount, error)

	// HashedJoinCounts is the TID/CNT engine's join primitive: it hashes
	// each TID-list's value against the other's by matching TID, groups by
	// the composite key, and keeps groups with count > 1. Returns
	// ErrEmptyGroup when the resulting table is empty.
	HashedJoinCounts(ctx context.Context, a, b []TIDValue) (JoinCounts, error)

	// HashedJoinMaterialize expands the tid-equality join of a and b into
	// (val=hash(vA,vB), tid=A.tid) rows restricted to the value-keys
	// present in counts, preserving duplicates (one row per original tuple
	// contributing).
	HashedJoinMaterialize(ctx context.Context, a, b []TIDValue, counts JoinCounts) ([]TIDValue, error)
}

type factory func() Store

var (
	mu       sync.RWMutex
	registry = make(map[string]factory)
)

// Register adds a Store constructor under name, called from a backend
// package's init(), mirroring the teacher's introspect.Register /
// dialect.RegisterDialect pattern.
func Register(name string, fn func() Store) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = fn
}

// New constructs a registered Store by name.
func New(name string) (Store, error) {
	mu.RLock()
	fn, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("store: backend %q is not registered", name)
	}
	return fn(), nil
}
