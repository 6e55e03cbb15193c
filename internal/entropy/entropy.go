// Package entropy is the driver glue (spec §2 "Data flow"): load the
// relation into the TupleStore, invoke the reorderer, choose an engine, let
// it write into the EntropyMap, then finalize and re-map subset indices back
// to the caller's original attribute numbering.
package entropy

import (
	"context"
	"fmt"
	"math"

	"entropymine/internal/attrset"
	"entropymine/internal/core"
	"entropymine/internal/engine/buc"
	"entropymine/internal/engine/tidcnt"
	"entropymine/internal/reorder"
	"entropymine/internal/store"
)

// Engine selects which enumeration engine computes the EntropyMap.
type Engine int

const (
	// TIDCNT selects the level-wise join-based engine (spec §4.4).
	TIDCNT Engine = iota
	// BUC selects the top-down recursive partitioning engine (spec §4.5).
	BUC
	// Auto picks TIDCNT or BUC using the heuristic SPEC_FULL.md's
	// "Supplemented features" section adapts from the original source.
	Auto
)

// ParseEngine parses a config/flag value into an Engine.
func ParseEngine(s string) (Engine, error) {
	switch s {
	case "tidcnt":
		return TIDCNT, nil
	case "buc":
		return BUC, nil
	case "auto", "":
		return Auto, nil
	default:
		return 0, fmt.Errorf("entropy: unknown engine %q (want tidcnt, buc, or auto)", s)
	}
}

func (e Engine) String() string {
	switch e {
	case TIDCNT:
		return "tidcnt"
	case BUC:
		return "buc"
	case Auto:
		return "auto"
	default:
		return "unknown"
	}
}

// Result is the outcome of a Run: the finalized, logically-renamed
// EntropyMap plus the run metadata a caller (e.g. cmd/entropyctl) wants to
// report.
type Result struct {
	Map        *core.EntropyMap
	N          int
	K          int
	EngineUsed Engine
}

// Run executes the full pipeline: load -> reorder -> engine -> finalize ->
// rename (spec §2 "Data flow").
func Run(ctx context.Context, st store.Store, path string, k int, engine Engine) (*Result, error) {
	rel, err := st.Load(ctx, path, k)
	if err != nil {
		return nil, fmt.Errorf("entropy: load: %w", err)
	}

	mapping, err := reorder.Reorder(ctx, st, rel)
	if err != nil {
		return nil, fmt.Errorf("entropy: reorder: %w", err)
	}

	chosen := engine
	if chosen == Auto {
		chosen, err = chooseAuto(ctx, st, rel)
		if err != nil {
			return nil, fmt.Errorf("entropy: auto engine selection: %w", err)
		}
	}

	m := core.NewEntropyMap()
	switch chosen {
	case TIDCNT:
		if err := tidcnt.Run(ctx, st, rel, m); err != nil {
			return nil, fmt.Errorf("entropy: tidcnt: %w", err)
		}
	case BUC:
		if err := buc.Run(ctx, st, rel, m); err != nil {
			return nil, fmt.Errorf("entropy: buc: %w", err)
		}
	default:
		return nil, fmt.Errorf("entropy: unresolved engine %v", chosen)
	}

	m.Finalize(rel.N)
	renamed := m.Rename(mapping.PhysicalToLogical)

	return &Result{Map: renamed, N: rel.N, K: k, EngineUsed: chosen}, nil
}

// chooseAuto implements the original source's engine-selection heuristic
// (SPEC_FULL.md supplemented feature 2): favor TID/CNT when k is small
// (bounded join fan-out from the level-wise queue) and the top-ranked column
// after reordering is highly selective (distinct_count > n/2, which keeps
// level-1 TID-lists short); BUC otherwise.
func chooseAuto(ctx context.Context, st store.Store, rel *store.Relation) (Engine, error) {
	const smallK = 8
	if rel.K > smallK {
		return BUC, nil
	}
	dc, err := st.DistinctCount(ctx, rel, 0)
	if err != nil {
		return 0, err
	}
	if dc*2 > rel.N {
		return TIDCNT, nil
	}
	return BUC, nil
}

// MaterializeAbsent enumerates every non-empty subset of {0..k-1} absent
// from m (pruned, or never materialized) and returns it with the maximal
// entropy log₂n, per spec §6 "Absent subsets... MAY be emitted by the
// caller on demand; the core does not emit them." This is caller-side
// convenience, not engine behavior (SPEC_FULL.md supplemented feature 3).
//
// Cost is O(2^k): only sensible for the small-k regime the CLI's
// column-order/bench commands operate in.
func MaterializeAbsent(m *core.EntropyMap, k, n int) []core.Entry {
	logN := math.Log2(float64(n))
	var out []core.Entry
	for mask := 1; mask < (1 << uint(k)); mask++ {
		var members []int
		for i := 0; i < k; i++ {
			if mask&(1<<uint(i)) != 0 {
				members = append(members, i)
			}
		}
		s := attrset.FromSlice(members)
		if m.Has(s) {
			continue
		}
		out = append(out, core.Entry{Set: s, Value: logN})
	}
	return out
}

// Conditional computes H(Y|X) = H(X∪Y) - H(X) from an already-finalized
// EntropyMap (spec §1 "computable as H(X∪Y) − H(X) from this output"). It
// does not touch engine accumulation; an absent subset (pruned, or never
// materialized) is treated as log₂n per spec §6.
func Conditional(m *core.EntropyMap, n int, x, y attrset.Set) float64 {
	logN := math.Log2(float64(n))
	union := x.Union(y)
	hUnion, ok := m.Get(union)
	if !ok {
		hUnion = logN
	}
	hX, ok := m.Get(x)
	if !ok {
		hX = logN
	}
	return hUnion - hX
}
