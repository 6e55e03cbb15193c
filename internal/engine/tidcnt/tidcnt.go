// Package tidcnt implements the TID/CNT engine (spec §4.4): a bottom-up,
// level-wise builder over tuple-identifier lists keyed by value-hash,
// extending surviving prefixes one attribute at a time and pruning branches
// whose intermediate join becomes empty.
package tidcnt

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
	"entropymine/internal/valuekey"
)

func clogc(c int) float64 {
	return float64(c) * math.Log2(float64(c))
}

type queued struct {
	s    attrset.Set
	last int
}

// Run computes EntropyMap[S] for every non-empty S that has at least one
// non-singleton class, per spec §4.4's contract, writing into m.
func Run(ctx context.Context, st store.Store, rel *store.Relation, m *core.EntropyMap) error {
	k := rel.K

	tidLists := make(map[string][]store.TIDValue, k)
	singleton := make([][]store.TIDValue, k)
	var queue []queued

	for j := 0; j < k; j++ {
		colVals, err := st.ColumnValues(ctx, rel, j)
		if err != nil {
			return fmt.Errorf("tidcnt: column_values(%d): %w", j, err)
		}
		tl := nonSingletonTIDList(colVals)
		if len(tl) == 0 {
			// Level-1 attribute j has no duplicate value: {j} is absent
			// from the map per I2, and every S ⊇ {j} is pruned per I3.
			continue
		}
		singleton[j] = tl
		s := attrset.Single(j)
		tidLists[s.Key()] = tl
		m.Add(s, sumCLogC(tl))
		queue = append(queue, queued{s: s, last: j})
	}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		sTL, ok := tidLists[item.s.Key()]
		if !ok {
			continue
		}
		for j := item.last + 1; j < k; j++ {
			if item.s.Contains(j) {
				// Defensive: the work queue only ever advances past
				// item.last, so this would indicate a programmer error in
				// the enqueue logic, not bad input (spec §7). Skip rather
				// than corrupt the accumulator.
				continue
			}
			jTL := singleton[j]
			if jTL == nil {
				continue // {j} itself pruned => S' pruned (I3)
			}

			counts, err := st.HashedJoinCounts(ctx, sTL, jTL)
			if err != nil {
				if errors.Is(err, store.ErrEmptyGroup) {
					continue // prune: CNT empty
				}
				return fmt.Errorf("tidcnt: hashed_join_counts(%s,+%d): %w", item.s, j, err)
			}

			sPrime := item.s.Add(j)
			var sum float64
			for _, row := range counts.Rows {
				sum += clogc(row.Count)
			}
			m.Add(sPrime, sum)

			joined, err := st.HashedJoinMaterialize(ctx, sTL, jTL, counts)
			if err != nil {
				return fmt.Errorf("tidcnt: hashed_join_materialize(%s,+%d): %w", item.s, j, err)
			}
			tidLists[sPrime.Key()] = joined
			queue = append(queue, queued{s: sPrime, last: j})
		}
	}
	return nil
}

// RunConcurrent is behaviorally equivalent to Run but fans the different-j
// extensions of each dequeued prefix out across an errgroup bounded to
// maxConcurrency, exploiting the "independent extensions of TID/CNT" opening
// spec §5 names explicitly. EntropyMap writes are serialized through mu, and
// the next-level queue is built level-by-level rather than through a shared
// FIFO so the determinism guarantee (I4, commutative addition) holds
// regardless of completion order within a level.
func RunConcurrent(ctx context.Context, st store.Store, rel *store.Relation, m *core.EntropyMap, maxConcurrency int) error {
	k := rel.K
	var mu sync.Mutex

	tidLists := make(map[string][]store.TIDValue, k)
	singleton := make([][]store.TIDValue, k)
	level := make([]queued, 0, k)

	for j := 0; j < k; j++ {
		colVals, err := st.ColumnValues(ctx, rel, j)
		if err != nil {
			return fmt.Errorf("tidcnt: column_values(%d): %w", j, err)
		}
		tl := nonSingletonTIDList(colVals)
		if len(tl) == 0 {
			continue
		}
		singleton[j] = tl
		s := attrset.Single(j)
		tidLists[s.Key()] = tl
		m.Add(s, sumCLogC(tl))
		level = append(level, queued{s: s, last: j})
	}

	for len(level) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		if maxConcurrency > 0 {
			g.SetLimit(maxConcurrency)
		}
		var nextMu sync.Mutex
		var next []queued

		for _, item := range level {
			item := item
			mu.Lock()
			sTL := tidLists[item.s.Key()]
			mu.Unlock()
			for j := item.last + 1; j < k; j++ {
				j := j
				if item.s.Contains(j) {
					continue
				}
				jTL := singleton[j]
				if jTL == nil {
					continue
				}
				g.Go(func() error {
					counts, err := st.HashedJoinCounts(gctx, sTL, jTL)
					if err != nil {
						if errors.Is(err, store.ErrEmptyGroup) {
							return nil
						}
						return fmt.Errorf("tidcnt: hashed_join_counts(%s,+%d): %w", item.s, j, err)
					}
					sPrime := item.s.Add(j)
					var sum float64
					for _, row := range counts.Rows {
						sum += clogc(row.Count)
					}
					joined, err := st.HashedJoinMaterialize(gctx, sTL, jTL, counts)
					if err != nil {
						return fmt.Errorf("tidcnt: hashed_join_materialize(%s,+%d): %w", item.s, j, err)
					}

					mu.Lock()
					m.Add(sPrime, sum)
					tidLists[sPrime.Key()] = joined
					mu.Unlock()

					nextMu.Lock()
					next = append(next, queued{s: sPrime, last: j})
					nextMu.Unlock()
					return nil
				})
			}
		}
		if err := g.Wait(); err != nil {
			return err
		}
		level = next
	}
	return nil
}

func nonSingletonTIDList(colVals []store.TIDValue) []store.TIDValue {
	counts := make(map[valuekey.Key]int, len(colVals))
	for _, v := range colVals {
		counts[v.Val]++
	}
	var tl []store.TIDValue
	for _, v := range colVals {
		if counts[v.Val] >= 2 {
			tl = append(tl, v)
		}
	}
	return tl
}

func sumCLogC(tl []store.TIDValue) float64 {
	counts := make(map[valuekey.Key]int, len(tl))
	for _, v := range tl {
		counts[v.Val]++
	}
	var sum float64
	for _, c := range counts {
		sum += clogc(c)
	}
	return sum
}
