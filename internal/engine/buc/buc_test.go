package buc

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entropymine/internal/attrset"
	"entropymine/internal/core"
	"entropymine/internal/store/memory"
)

func runOn(t *testing.T, rows [][]string) (*core.EntropyMap, int) {
	t.Helper()
	ctx := context.Background()
	s := memory.New().(*memory.Store)
	rel, err := s.LoadRows(t.Name(), rows)
	require.NoError(t, err)
	m := core.NewEntropyMap()
	require.NoError(t, Run(ctx, s, rel, m))
	m.Finalize(rel.N)
	return m, rel.N
}

func assertEntropyClose(t *testing.T, m *core.EntropyMap, n int, members []int, want float64) {
	t.Helper()
	s := attrset.FromSlice(members)
	if !m.Has(s) {
		assert.InDelta(t, math.Log2(float64(n)), want, 1e-9, "absent subset must equal log2(n)")
		return
	}
	v, _ := m.Get(s)
	assert.InDelta(t, want, v, 1e-9)
}

func TestFunctionalDependency(t *testing.T) {
	m, n := runOn(t, [][]string{
		{"1", "a"}, {"1", "a"}, {"2", "b"}, {"2", "b"}, {"3", "c"}, {"3", "c"},
	})
	want := math.Log2(6) - 1.0
	assertEntropyClose(t, m, n, []int{0}, want)
	assertEntropyClose(t, m, n, []int{1}, want)
	assertEntropyClose(t, m, n, []int{0, 1}, want)
}

func TestConstantColumn(t *testing.T) {
	m, n := runOn(t, [][]string{
		{"x", "1"}, {"x", "2"}, {"x", "3"}, {"x", "4"}, {"x", "5"}, {"x", "6"},
	})
	assertEntropyClose(t, m, n, []int{0}, 0)
	assertEntropyClose(t, m, n, []int{1}, math.Log2(6))
	assertEntropyClose(t, m, n, []int{0, 1}, math.Log2(6))
}

func TestPruneTriggers(t *testing.T) {
	m, n := runOn(t, [][]string{
		{"a", "a", "a"}, {"a", "b", "b"}, {"b", "c", "c"}, {"b", "d", "d"},
	})
	assertEntropyClose(t, m, n, []int{0}, 1)
	for _, s := range [][]int{{1}, {2}, {0, 1}, {0, 2}, {1, 2}, {0, 1, 2}} {
		assert.False(t, m.Has(attrset.FromSlice(s)), "subset %v must be pruned", s)
		assertEntropyClose(t, m, n, s, math.Log2(float64(n)))
	}
}

// S6 — three-way partial duplicates, exercises the leaf short-circuit and a
// depth-3 extension.
func TestThreeWayPartialDuplicates(t *testing.T) {
	m, n := runOn(t, [][]string{
		{"a", "x", "1"}, {"a", "x", "1"}, {"a", "y", "2"}, {"a", "y", "2"},
		{"b", "x", "1"}, {"b", "x", "2"},
	})
	// col0="a" (4x), "b" (2x); two classes of size >=2 -> accumulator 4*log2(4)+2*log2(2)=10
	assertEntropyClose(t, m, n, []int{0}, math.Log2(6)-10.0/6)
}

func TestRunConcurrentAgreesWithRun(t *testing.T) {
	ctx := context.Background()
	rows := [][]string{
		{"a", "x", "1"}, {"a", "x", "1"}, {"a", "y", "2"}, {"a", "y", "2"},
		{"b", "x", "1"}, {"b", "x", "2"},
	}
	s1 := memory.New().(*memory.Store)
	rel1, err := s1.LoadRows("seq", rows)
	require.NoError(t, err)
	seq := core.NewEntropyMap()
	require.NoError(t, Run(ctx, s1, rel1, seq))
	seq.Finalize(rel1.N)

	s2 := memory.New().(*memory.Store)
	rel2, err := s2.LoadRows("conc", rows)
	require.NoError(t, err)
	conc := core.NewEntropyMap()
	require.NoError(t, RunConcurrent(ctx, s2, rel2, conc, 4))
	conc.Finalize(rel2.N)

	require.Equal(t, seq.Len(), conc.Len())
	for _, e := range seq.Entries() {
		v, ok := conc.Get(e.Set)
		require.True(t, ok, "missing subset %s in concurrent result", e.Set)
		assert.InDelta(t, e.Value, v, 1e-9)
	}
}
