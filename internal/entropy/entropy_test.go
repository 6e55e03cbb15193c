package entropy

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entropymine/internal/attrset"
	"entropymine/internal/store/memory"
)

func writeCSV(t *testing.T, rows [][]string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "rel.csv")
	var sb []byte
	for _, row := range rows {
		for i, v := range row {
			if i > 0 {
				sb = append(sb, ',')
			}
			sb = append(sb, v...)
		}
		sb = append(sb, '\n')
	}
	require.NoError(t, os.WriteFile(path, sb, 0o644))
	return path
}

func TestRunTIDCNTAndBUCAgree(t *testing.T) {
	rows := [][]string{
		{"a", "x", "1"}, {"a", "x", "1"}, {"a", "y", "2"}, {"a", "y", "2"},
		{"b", "x", "1"}, {"b", "x", "2"},
	}
	path := writeCSV(t, rows)
	ctx := context.Background()

	tidStore := memory.New()
	tidResult, err := Run(ctx, tidStore, path, 3, TIDCNT)
	require.NoError(t, err)

	bucStore := memory.New()
	bucResult, err := Run(ctx, bucStore, path, 3, BUC)
	require.NoError(t, err)

	require.Equal(t, tidResult.Map.Len(), bucResult.Map.Len())
	for _, e := range tidResult.Map.Entries() {
		v, ok := bucResult.Map.Get(e.Set)
		require.True(t, ok, "subset %s missing from BUC result", e.Set)
		assert.InDelta(t, e.Value, v, 1e-9)
	}
}

func TestRunReorderInvariance(t *testing.T) {
	// S2 scenario: both columns have distinct_count 3, so the stable reorder
	// keeps the input order and the renamed output must match the FD 0->1.
	rows := [][]string{
		{"1", "a"}, {"1", "a"}, {"2", "b"}, {"2", "b"}, {"3", "c"}, {"3", "c"},
	}
	path := writeCSV(t, rows)
	ctx := context.Background()

	s := memory.New()
	result, err := Run(ctx, s, path, 2, BUC)
	require.NoError(t, err)

	want := math.Log2(6) - 1.0
	for _, members := range [][]int{{0}, {1}, {0, 1}} {
		v, ok := result.Map.Get(attrset.FromSlice(members))
		require.True(t, ok)
		assert.InDelta(t, want, v, 1e-9)
	}
}

func TestRunReorderPermutesPhysicalColumns(t *testing.T) {
	// Column 0 ("a","a","b","b") has distinct_count 2; column 1 is all-distinct
	// (distinct_count 4), so the reorderer (rank by distinct_count descending)
	// must swap them, making logical column 1 physical position 0. If
	// RenameColumn were a naming no-op (the bug this guards against), the
	// engine would compute over the wrong physical data and Rename would
	// mislabel the result instead of just relabeling it.
	rows := [][]string{
		{"a", "x"}, {"a", "y"}, {"b", "z"}, {"b", "w"},
	}
	path := writeCSV(t, rows)
	ctx := context.Background()

	s := memory.New()
	result, err := Run(ctx, s, path, 2, BUC)
	require.NoError(t, err)

	v0, ok := result.Map.Get(attrset.Single(0))
	require.True(t, ok)
	assert.InDelta(t, 1.0, v0, 1e-9, "H(col0) should reflect col0's two size-2 groups regardless of physical placement")

	// {0,1} is all-distinct, so it stays absent and its entropy is log2(n) = 2.
	_, ok = result.Map.Get(attrset.FromSlice([]int{0, 1}))
	require.False(t, ok)
	assert.InDelta(t, 2.0, math.Log2(float64(result.N)), 1e-9)
}

func TestMaterializeAbsentFillsLogN(t *testing.T) {
	rows := [][]string{
		{"a", "a", "a"}, {"a", "b", "b"}, {"b", "c", "c"}, {"b", "d", "d"},
	}
	path := writeCSV(t, rows)
	ctx := context.Background()

	s := memory.New()
	result, err := Run(ctx, s, path, 3, TIDCNT)
	require.NoError(t, err)

	absent := MaterializeAbsent(result.Map, 3, result.N)
	// Only {0} is materialized by the engine; the other 6 non-empty
	// subsets of {0,1,2} are absent and must fill in at log2(4).
	assert.Len(t, absent, 6)
	for _, e := range absent {
		assert.InDelta(t, math.Log2(4), e.Value, 1e-9)
	}
}

func TestConditionalEntropy(t *testing.T) {
	rows := [][]string{{"0", "0"}, {"0", "1"}, {"1", "0"}, {"1", "1"}}
	path := writeCSV(t, rows)
	ctx := context.Background()

	s := memory.New()
	result, err := Run(ctx, s, path, 2, BUC)
	require.NoError(t, err)

	// Independent columns: H(Y|X) = H(X,Y) - H(X) = 2 - 1 = 1.
	hYgivenX := Conditional(result.Map, result.N, attrset.Single(0), attrset.Single(1))
	assert.InDelta(t, 1.0, hYgivenX, 1e-9)
}

func TestParseEngine(t *testing.T) {
	e, err := ParseEngine("tidcnt")
	require.NoError(t, err)
	assert.Equal(t, TIDCNT, e)

	e, err = ParseEngine("")
	require.NoError(t, err)
	assert.Equal(t, Auto, e)

	_, err = ParseEngine("bogus")
	assert.Error(t, err)
}
