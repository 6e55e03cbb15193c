package mysql

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"entropymine/internal/store"
)

// setupMySQL mirrors the teacher's apply.setupMySQL helper: a disposable
// MySQL container validates this TupleStore's SQL against a real server,
// since internal/store/memory already covers the primitives' semantics.
func setupMySQL(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcmysql.Run(ctx, "mysql:8.0",
		tcmysql.WithDatabase("entropymine"),
		tcmysql.WithUsername("root"),
		tcmysql.WithPassword("testpass"),
	)
	require.NoError(t, err, "failed to start MySQL container")

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "parseTime=true")
	require.NoError(t, err, "failed to get connection string")
	return dsn
}

func writeCSV(t *testing.T, rows [][]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rel.csv")
	var content string
	for _, row := range rows {
		for i, v := range row {
			if i > 0 {
				content += ","
			}
			content += v
		}
		content += "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestMySQLStoreGroupSumCLogCIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dsn := setupMySQL(t)
	ctx := context.Background()

	s, err := Open(ctx, dsn)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	path := writeCSV(t, [][]string{
		{"1", "a"}, {"1", "a"}, {"2", "b"}, {"2", "b"}, {"3", "c"}, {"3", "c"},
	})
	rel, err := s.Load(ctx, path, 2)
	require.NoError(t, err)
	assert.Equal(t, 6, rel.N)

	sum, err := s.GroupSumCLogC(ctx, rel, []int{0}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, sum, 1e-9)

	dc, err := s.DistinctCount(ctx, rel, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, dc)
}

func TestMySQLStoreHashedJoinIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dsn := setupMySQL(t)
	ctx := context.Background()

	s, err := Open(ctx, dsn)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	path := writeCSV(t, [][]string{
		{"a", "x"}, {"a", "x"}, {"a", "y"}, {"b", "x"},
	})
	rel, err := s.Load(ctx, path, 2)
	require.NoError(t, err)

	col0, err := s.ColumnValues(ctx, rel, 0)
	require.NoError(t, err)
	col1, err := s.ColumnValues(ctx, rel, 1)
	require.NoError(t, err)

	counts, err := s.HashedJoinCounts(ctx, col0, col1)
	require.NoError(t, err)
	assert.NotEmpty(t, counts.Rows)

	joined, err := s.HashedJoinMaterialize(ctx, col0, col1, counts)
	require.NoError(t, err)
	assert.NotEmpty(t, joined)
}

func TestMySQLStoreEmptyGroupIsPruneSignalIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dsn := setupMySQL(t)
	ctx := context.Background()

	s, err := Open(ctx, dsn)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	path := writeCSV(t, [][]string{{"a", "a"}, {"a", "b"}, {"b", "c"}, {"b", "d"}})
	rel, err := s.Load(ctx, path, 2)
	require.NoError(t, err)

	_, err = s.GroupSumCLogC(ctx, rel, []int{1}, nil)
	assert.ErrorIs(t, err, store.ErrEmptyGroup)
}
