package mysql

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"entropymine/internal/store"
)

const insertBatchSize = 500

// Load stages a headerless k-column CSV file into a fresh table, assigning
// TIDs 1..n via AUTO_INCREMENT in file order (spec §4.1 "load").
func (s *Store) Load(ctx context.Context, path string, k int) (*store.Relation, error) {
	table := relationTableName(path)

	ddl, err := buildStagingDDL(table, k)
	if err != nil {
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(table)); err != nil {
		return nil, fmt.Errorf("mysql store: drop existing staging table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("mysql store: create staging table: %w", err)
	}
	s.names[table] = defaultNames(k)
	s.states[table] = freshStates(s.names[table])
	for i := 0; i < k; i++ {
		s.colType[table+"."+colName(i)] = stagingColType
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mysql store: open %s: %w", path, err)
	}
	defer f.Close()

	n, err := s.bulkInsert(ctx, table, k, f)
	if err != nil {
		return nil, err
	}

	return &store.Relation{Name: table, N: n, K: k}, nil
}

// bulkInsert reads the CSV rows and inserts them in batches, feeding every
// raw value through the column's dense encoder in first-seen order so later
// GroupValues/ColumnValues calls reproduce identical ValueKeys (spec §4.4
// "Re-encode the raw column values as dense integer keys 1..d_i").
func (s *Store) bulkInsert(ctx context.Context, table string, k int, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = k

	names := s.names[table]
	states := s.states[table]
	colStates := make([]*colState, k)
	for i, n := range names {
		colStates[i] = states[n]
	}
	cols := make([]string, k)
	for i := range cols {
		cols[i] = quoteIdent(names[i])
	}
	insertPrefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", quoteIdent(table), strings.Join(cols, ", "))
	rowPlaceholder := "(" + strings.TrimSuffix(strings.Repeat("?,", k), ",") + ")"

	n := 0
	batch := make([]any, 0, insertBatchSize*k)
	placeholders := make([]string, 0, insertBatchSize)

	flush := func() error {
		if len(placeholders) == 0 {
			return nil
		}
		stmt := insertPrefix + strings.Join(placeholders, ", ")
		if _, err := s.db.ExecContext(ctx, stmt, batch...); err != nil {
			return fmt.Errorf("mysql store: bulk insert into %s: %w", table, err)
		}
		batch = batch[:0]
		placeholders = placeholders[:0]
		return nil
	}

	for {
		row, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, fmt.Errorf("mysql store: read input row: %w", err)
		}
		for i, v := range row {
			colStates[i].enc.Encode(v)
			batch = append(batch, v)
		}
		placeholders = append(placeholders, rowPlaceholder)
		n++
		if len(placeholders) >= insertBatchSize {
			if err := flush(); err != nil {
				return 0, err
			}
		}
	}
	if err := flush(); err != nil {
		return 0, err
	}
	return n, nil
}

func relationTableName(path string) string {
	base := path
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}
	base = strings.TrimSuffix(base, ".csv")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		base = "relation"
	}
	return "em_" + base
}
