package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entropymine/internal/store"
)

func loadTestRows(t *testing.T, name string, rows [][]string) (*Store, *store.Relation) {
	t.Helper()
	s := New().(*Store)
	rel, err := s.LoadRows(name, rows)
	require.NoError(t, err)
	return s, rel
}

// S2 — Functional dependency 0->1: [(1,a),(1,a),(2,b),(2,b),(3,c),(3,c)].
func TestGroupSumCLogCFunctionalDependency(t *testing.T) {
	ctx := context.Background()
	s, rel := loadTestRows(t, "s2", [][]string{
		{"1", "a"}, {"1", "a"}, {"2", "b"}, {"2", "b"}, {"3", "c"}, {"3", "c"},
	})
	sum, err := s.GroupSumCLogC(ctx, rel, []int{0}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, sum, 1e-9) // 3 groups of 2: 3*(2*log2(2)) = 6
}

// S5 — prune triggers: all-distinct column returns ErrEmptyGroup.
func TestGroupSumCLogCEmptyGroupIsPruneSignal(t *testing.T) {
	ctx := context.Background()
	s, rel := loadTestRows(t, "s5col1", [][]string{
		{"a", "a"}, {"a", "b"}, {"b", "c"}, {"b", "d"},
	})
	_, err := s.GroupSumCLogC(ctx, rel, []int{1}, nil)
	assert.ErrorIs(t, err, store.ErrEmptyGroup)
}

func TestGroupValuesFiltersSingletons(t *testing.T) {
	ctx := context.Background()
	s, rel := loadTestRows(t, "groupvalues", [][]string{
		{"a"}, {"a"}, {"b"},
	})
	groups, err := s.GroupValues(ctx, rel, []int{0}, nil)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, 2, groups[0].Count)
}

func TestDistinctCount(t *testing.T) {
	ctx := context.Background()
	s, rel := loadTestRows(t, "distinct", [][]string{
		{"a", "x"}, {"b", "x"}, {"c", "y"},
	})
	dc0, err := s.DistinctCount(ctx, rel, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, dc0)

	dc1, err := s.DistinctCount(ctx, rel, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, dc1)
}

func TestHashedJoinCountsAndMaterialize(t *testing.T) {
	ctx := context.Background()
	s := New().(*Store)

	a := []store.TIDValue{{TID: 1, Val: 10}, {TID: 2, Val: 10}, {TID: 3, Val: 20}, {TID: 4, Val: 20}}
	b := []store.TIDValue{{TID: 1, Val: 100}, {TID: 2, Val: 100}, {TID: 3, Val: 200}, {TID: 4, Val: 300}}

	counts, err := s.HashedJoinCounts(ctx, a, b)
	require.NoError(t, err)
	require.Len(t, counts.Rows, 1) // only (10,100) pair repeats (tids 1,2); (20,200) and (20,300) are singletons

	materialized, err := s.HashedJoinMaterialize(ctx, a, b, counts)
	require.NoError(t, err)
	require.Len(t, materialized, 2)
	for _, row := range materialized {
		assert.Contains(t, []int{1, 2}, row.TID)
	}
}

func TestHashedJoinCountsAllSingletonsIsEmptyGroup(t *testing.T) {
	ctx := context.Background()
	s := New().(*Store)
	a := []store.TIDValue{{TID: 1, Val: 1}, {TID: 2, Val: 2}}
	b := []store.TIDValue{{TID: 1, Val: 1}, {TID: 2, Val: 2}}
	_, err := s.HashedJoinCounts(ctx, a, b)
	assert.ErrorIs(t, err, store.ErrEmptyGroup)
}

func TestCreateTableAsProjectsAndFilters(t *testing.T) {
	ctx := context.Background()
	s, rel := loadTestRows(t, "base", [][]string{
		{"a", "x"}, {"a", "y"}, {"b", "z"},
	})
	col0Vals, err := s.GroupValues(ctx, rel, []int{0}, nil)
	require.NoError(t, err)
	require.Len(t, col0Vals, 1)
	filterVal := col0Vals[0].Values[0]

	derived, err := s.CreateTableAs(ctx, "derived", rel, []int{1}, store.Filter{{Column: 0, Value: filterVal}})
	require.NoError(t, err)
	assert.Equal(t, 2, derived.N)
	assert.Equal(t, 1, derived.K)

	require.NoError(t, s.DropTable(ctx, "derived"))
}
