// Package reorder implements the column reorderer (spec §4.3): it ranks
// physical columns by distinct-count descending, stable tie-break on
// original index, then relabels them to col0..col_{k-1} in the new order so
// both engines see the most-distinct attribute first and prune sooner.
package reorder

import (
	"context"
	"fmt"
	"sort"

	"entropymine/internal/store"
)

// Mapping is the bijection the reorderer produces. PhysicalToLogical[p] is
// the original (logical) attribute index of the data now living at physical
// position p, the form core.EntropyMap.Rename expects (spec §3
// "Attribute-rename map").
type Mapping struct {
	PhysicalToLogical map[int]int
	Order             []int // Order[p] = original logical index placed at physical position p
}

func physicalColName(i int) string {
	return fmt.Sprintf("col%d", i)
}

// Reorder ranks rel's columns by DistinctCount descending (stable on
// original index for ties), renames them in place to col0..col_{k-1} in the
// new order, and returns the resulting Mapping. It must run once, right
// after Load, before either engine sees the relation (spec §4.3
// "Rationale").
func Reorder(ctx context.Context, st store.Store, rel *store.Relation) (*Mapping, error) {
	k := rel.K
	type ranked struct {
		origIdx  int
		distinct int
	}
	cols := make([]ranked, k)
	for i := 0; i < k; i++ {
		dc, err := st.DistinctCount(ctx, rel, i)
		if err != nil {
			return nil, fmt.Errorf("reorder: distinct_count(%d): %w", i, err)
		}
		cols[i] = ranked{origIdx: i, distinct: dc}
	}

	sort.SliceStable(cols, func(i, j int) bool {
		return cols[i].distinct > cols[j].distinct
	})

	order := make([]int, k)
	for p, c := range cols {
		order[p] = c.origIdx
	}

	if err := applyPermutation(ctx, st, rel, order); err != nil {
		return nil, err
	}

	physicalToLogical := make(map[int]int, k)
	for p, origIdx := range order {
		physicalToLogical[p] = origIdx
	}
	return &Mapping{PhysicalToLogical: physicalToLogical, Order: order}, nil
}

// applyPermutation relabels rel's physical columns so that position p holds
// whatever data order[p] used to name. RenameColumn only renames — it never
// moves data — so the permutation is realized purely by routing every
// rename through a disjoint set of temporary names first; otherwise renaming
// col2 -> col0 while col0 -> col2 is still pending would collide on the
// intermediate state.
func applyPermutation(ctx context.Context, st store.Store, rel *store.Relation, order []int) error {
	k := len(order)
	tmp := make([]string, k)
	for p := 0; p < k; p++ {
		tmp[p] = fmt.Sprintf("__reorder_tmp_%d", p)
		if err := st.RenameColumn(ctx, rel, physicalColName(order[p]), tmp[p]); err != nil {
			return fmt.Errorf("reorder: stage rename of column %d: %w", order[p], err)
		}
	}
	for p := 0; p < k; p++ {
		if err := st.RenameColumn(ctx, rel, tmp[p], physicalColName(p)); err != nil {
			return fmt.Errorf("reorder: finalize rename to position %d: %w", p, err)
		}
	}
	return nil
}
