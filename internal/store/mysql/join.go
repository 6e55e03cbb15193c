package mysql

import (
	"context"
	"fmt"
	"sort"

	"entropymine/internal/store"
	"entropymine/internal/valuekey"
)

// ColumnValues returns the full (TID, encoded value) list for col, ordered by
// TID, re-running col's dense encoder over the stored raw text (spec §4.4
// Level-1 initialization "Re-encode the raw column values as dense integer
// keys 1..d_i"). The encoder already saw every value at Load time, so this
// re-encode is a pure lookup, not a re-assignment.
func (s *Store) ColumnValues(ctx context.Context, rel *store.Relation, col int) ([]store.TIDValue, error) {
	names, ok := s.names[rel.Name]
	if !ok || col < 0 || col >= len(names) {
		return nil, fmt.Errorf("mysql store: column_values: column %d not tracked for relation %q", col, rel.Name)
	}
	cs, err := s.stateAt(rel.Name, col)
	if err != nil {
		return nil, fmt.Errorf("mysql store: column_values: %w", err)
	}
	enc := cs.enc

	q := fmt.Sprintf("SELECT tid, %s FROM %s ORDER BY tid", quoteIdent(names[col]), quoteIdent(rel.Name))
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("mysql store: column_values: %w", err)
	}
	defer rows.Close()

	out := make([]store.TIDValue, 0, rel.N)
	for rows.Next() {
		var tid int
		var raw string
		if err := rows.Scan(&tid, &raw); err != nil {
			return nil, fmt.Errorf("mysql store: column_values scan: %w", err)
		}
		out = append(out, store.TIDValue{TID: tid, Val: enc.Encode(raw)})
	}
	return out, rows.Err()
}

// HashedJoinCounts performs the tid-equality inner join of two TID-lists
// entirely in Go (the lists are already materialized slices, not SQL tables,
// regardless of backend; spec §4.4 "Level extension" step 2), grouping by the
// composite ValueKey and keeping groups with count > 1.
func (s *Store) HashedJoinCounts(_ context.Context, a, b []store.TIDValue) (store.JoinCounts, error) {
	byTID := indexByTID(b)
	counts := make(map[valuekey.Key]int)
	for _, av := range a {
		bv, ok := byTID[av.TID]
		if !ok {
			continue
		}
		counts[valuekey.Combine(av.Val, bv)]++
	}

	s.seq++
	name := fmt.Sprintf("__joincounts_%d", s.seq)

	var rows []store.JoinCountRow
	for val, cnt := range counts {
		if cnt > 1 {
			rows = append(rows, store.JoinCountRow{Val: val, Count: cnt})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Val < rows[j].Val })
	if len(rows) == 0 {
		return store.JoinCounts{}, store.ErrEmptyGroup
	}
	return store.JoinCounts{Table: name, Rows: rows}, nil
}

// HashedJoinMaterialize expands the tid-equality join of a and b into
// (val, tid) rows restricted to value-keys present in counts, mirroring
// HashedJoinCounts's in-Go approach.
func (s *Store) HashedJoinMaterialize(_ context.Context, a, b []store.TIDValue, counts store.JoinCounts) ([]store.TIDValue, error) {
	survive := make(map[valuekey.Key]bool, len(counts.Rows))
	for _, row := range counts.Rows {
		survive[row.Val] = true
	}
	byTID := indexByTID(b)
	var out []store.TIDValue
	for _, av := range a {
		bv, ok := byTID[av.TID]
		if !ok {
			continue
		}
		combined := valuekey.Combine(av.Val, bv)
		if survive[combined] {
			out = append(out, store.TIDValue{TID: av.TID, Val: combined})
		}
	}
	return out, nil
}

func indexByTID(tids []store.TIDValue) map[int]valuekey.Key {
	m := make(map[int]valuekey.Key, len(tids))
	for _, t := range tids {
		m[t.TID] = t.Val
	}
	return m
}
