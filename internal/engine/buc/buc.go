// Package buc implements the BUC engine (spec §4.5): a top-down recursive
// partitioning that descends the attribute lattice and, at each node, sums
// the c·log₂c contribution, pruning whenever no value in the current
// partition is shared by more than one tuple.
//
// This implementation is the filter-based variant (spec §4.5 "Two
// implementation variants"): the underlying relation is never re-projected,
// recursion carries a growing conjunctive equality Filter instead. Chosen
// because every Store call already pays a round-trip (SQL network call, or
// a full in-memory scan) per node; filter composition is a zero-cost slice
// append, whereas the materialized variant would add a CreateTableAs/
// DropTable pair per recursion frame on top of that cost.
package buc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"entropymine/internal/attrset"
	"entropymine/internal/core"
	"entropymine/internal/store"
)

func clogc(c int) float64 {
	return float64(c) * math.Log2(float64(c))
}

// Run computes EntropyMap[S] for every non-empty S with a non-singleton
// class, the same contract as tidcnt.Run (spec §4.4/§4.5 "same output
// contract").
func Run(ctx context.Context, st store.Store, rel *store.Relation, m *core.EntropyMap) error {
	return descend(ctx, st, rel, attrset.Empty, nil, m)
}

// descend implements runBUC(rel, S, filter) from spec §4.5.
func descend(ctx context.Context, st store.Store, rel *store.Relation, prefix attrset.Set, filter store.Filter, m *core.EntropyMap) error {
	k := rel.K
	prev := prefix.Max()

	for i := prev + 1; i < k; i++ {
		sPrime := prefix.Add(i)

		if i == k-1 {
			c, err := st.GroupSumCLogC(ctx, rel, []int{i}, filter)
			if err != nil {
				if errors.Is(err, store.ErrEmptyGroup) {
					continue
				}
				return fmt.Errorf("buc: group_sum_clogc(%s): %w", sPrime, err)
			}
			m.Add(sPrime, c)
			continue
		}

		values, err := st.GroupValues(ctx, rel, []int{i}, filter)
		if err != nil {
			return fmt.Errorf("buc: group_values(%d): %w", i, err)
		}
		if len(values) == 0 {
			continue // no non-singleton group on column i under filter: skip (I3)
		}

		for _, vc := range values {
			fPrime := filter.And(store.Predicate{Column: i, Value: vc.Values[0]})
			m.Add(sPrime, clogc(vc.Count))
			if err := descend(ctx, st, rel, sPrime, fPrime, m); err != nil {
				return err
			}
		}
	}
	return nil
}

// RunConcurrent fans independent sibling subtrees (distinct values v at the
// same (S', i) node, and distinct i at the same level) across an errgroup
// bounded to maxConcurrency, per spec §5's "Parallelism opportunity exists
// across independent subtrees of BUC (siblings at any level)". EntropyMap
// writes are serialized through mu.
func RunConcurrent(ctx context.Context, st store.Store, rel *store.Relation, m *core.EntropyMap, maxConcurrency int) error {
	g, gctx := errgroup.WithContext(ctx)
	if maxConcurrency > 0 {
		g.SetLimit(maxConcurrency)
	}
	sm := &syncEntropyMap{m: m}

	if err := descendConcurrent(gctx, g, st, rel, attrset.Empty, nil, sm, maxConcurrency); err != nil {
		return err
	}
	return g.Wait()
}

// syncEntropyMap serializes writes to an EntropyMap shared across goroutines
// (spec §5(a) "writes to EntropyMap are serialized").
type syncEntropyMap struct {
	mu sync.Mutex
	m  *core.EntropyMap
}

func (s *syncEntropyMap) Add(set attrset.Set, delta float64) {
	s.mu.Lock()
	s.m.Add(set, delta)
	s.mu.Unlock()
}

func descendConcurrent(ctx context.Context, g *errgroup.Group, st store.Store, rel *store.Relation, prefix attrset.Set, filter store.Filter, m *syncEntropyMap, maxConcurrency int) error {
	k := rel.K
	prev := prefix.Max()

	for i := prev + 1; i < k; i++ {
		i := i
		sPrime := prefix.Add(i)

		if i == k-1 {
			c, err := st.GroupSumCLogC(ctx, rel, []int{i}, filter)
			if err != nil {
				if errors.Is(err, store.ErrEmptyGroup) {
					continue
				}
				return fmt.Errorf("buc: group_sum_clogc(%s): %w", sPrime, err)
			}
			m.Add(sPrime, c)
			continue
		}

		values, err := st.GroupValues(ctx, rel, []int{i}, filter)
		if err != nil {
			return fmt.Errorf("buc: group_values(%d): %w", i, err)
		}
		if len(values) == 0 {
			continue
		}

		for _, vc := range values {
			vc := vc
			fPrime := filter.And(store.Predicate{Column: i, Value: vc.Values[0]})
			m.Add(sPrime, clogc(vc.Count))
			g.Go(func() error {
				return descendConcurrent(ctx, g, st, rel, sPrime, fPrime, m, maxConcurrency)
			})
		}
	}
	return nil
}
