package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"entropymine/internal/store"
	"entropymine/internal/valuekey"
)

// DistinctCount returns COUNT(DISTINCT col).
func (s *Store) DistinctCount(ctx context.Context, rel *store.Relation, col int) (int, error) {
	names := s.names[rel.Name]
	if col < 0 || col >= len(names) {
		return 0, fmt.Errorf("mysql store: distinct_count: column %d out of range", col)
	}
	q := fmt.Sprintf("SELECT COUNT(DISTINCT %s) FROM %s", quoteIdent(names[col]), quoteIdent(rel.Name))
	var n int
	if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("mysql store: distinct_count: %w", err)
	}
	return n, nil
}

// RenameColumn issues ALTER TABLE ... CHANGE, then re-keys the tracked
// names/states entries so the encoder that was trained on this physical
// column's data follows its new name rather than staying attached to its old
// position (see Store.states doc comment — this is what makes a
// column-reorder permutation, which is implemented purely as a sequence of
// RenameColumn calls, actually take effect).
func (s *Store) RenameColumn(ctx context.Context, rel *store.Relation, oldName, newName string) error {
	typ := s.colType[rel.Name+"."+oldName]
	if typ == "" {
		typ = stagingColType
	}
	q := fmt.Sprintf("ALTER TABLE %s CHANGE %s %s %s", quoteIdent(rel.Name), quoteIdent(oldName), quoteIdent(newName), typ)
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("mysql store: rename_column %s->%s: %w", oldName, newName, err)
	}
	delete(s.colType, rel.Name+"."+oldName)
	s.colType[rel.Name+"."+newName] = typ

	names := s.names[rel.Name]
	for i, n := range names {
		if n == oldName {
			names[i] = newName
			break
		}
	}
	states := s.states[rel.Name]
	if cs, ok := states[oldName]; ok {
		delete(states, oldName)
		states[newName] = cs
	}
	return nil
}

// filterSQL renders a Filter as a WHERE clause fragment (without the
// leading WHERE) plus its bound arguments. Predicate values are ValueKeys
// (the dense per-column encoding, spec §3), but the staging table stores the
// original raw text, so each value is translated back through that column's
// encoder before binding — the encoder already assigned it at Load time, so
// Raw is a pure lookup, never a fresh allocation.
func (s *Store) filterSQL(rel *store.Relation, filter store.Filter) (string, []any, error) {
	if len(filter) == 0 {
		return "1=1", nil, nil
	}
	clauses := make([]string, len(filter))
	args := make([]any, len(filter))
	for i, p := range filter {
		cs, err := s.stateAt(rel.Name, p.Column)
		if err != nil {
			return "", nil, fmt.Errorf("mysql store: filter: %w", err)
		}
		raw, ok := cs.enc.Raw(p.Value)
		if !ok {
			return "", nil, fmt.Errorf("mysql store: filter value for column %d has no known raw encoding", p.Column)
		}
		clauses[i] = fmt.Sprintf("%s = ?", quoteIdent(s.names[rel.Name][p.Column]))
		args[i] = raw
	}
	return strings.Join(clauses, " AND "), args, nil
}

// colList renders cols (logical positions within rel) as a quoted,
// comma-separated identifier list, resolved through rel's current
// position->name mapping rather than the col{i} formula, so it stays correct
// for a CreateTableAs-derived relation whose positions don't follow that
// convention (see CreateTableAs's doc comment).
func (s *Store) colList(rel *store.Relation, cols []int) (string, error) {
	names := s.names[rel.Name]
	out := make([]string, len(cols))
	for i, c := range cols {
		if c < 0 || c >= len(names) {
			return "", fmt.Errorf("mysql store: column %d out of range for relation %q", c, rel.Name)
		}
		out[i] = quoteIdent(names[c])
	}
	return strings.Join(out, ", "), nil
}

// GroupSumCLogC computes Σ cnt·log₂cnt over groups with cnt>1 via a
// GROUP BY ... HAVING COUNT(*) > 1 subquery, matching spec §4.1.
func (s *Store) GroupSumCLogC(ctx context.Context, rel *store.Relation, cols []int, filter store.Filter) (float64, error) {
	where, args, err := s.filterSQL(rel, filter)
	if err != nil {
		return 0, err
	}
	cl, err := s.colList(rel, cols)
	if err != nil {
		return 0, err
	}
	q := fmt.Sprintf(
		"SELECT SUM(cnt * LOG2(cnt)) FROM (SELECT COUNT(*) AS cnt FROM %s WHERE %s GROUP BY %s HAVING COUNT(*) > 1) t",
		quoteIdent(rel.Name), where, cl,
	)
	var sum sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&sum); err != nil {
		return 0, fmt.Errorf("mysql store: group_sum_clogc: %w", err)
	}
	if !sum.Valid {
		return 0, store.ErrEmptyGroup
	}
	return sum.Float64, nil
}

// GroupValues returns (value-vector, cnt) rows with cnt>1, with each raw
// text value re-encoded through its column's dense encoder so the returned
// ValueKeys are usable as Predicate values in a subsequent recursion step
// (spec §4.5's filter-based descent re-applies them via filterSQL above).
func (s *Store) GroupValues(ctx context.Context, rel *store.Relation, cols []int, filter store.Filter) ([]store.ValueCount, error) {
	where, args, err := s.filterSQL(rel, filter)
	if err != nil {
		return nil, err
	}
	cl, err := s.colList(rel, cols)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(
		"SELECT %s, COUNT(*) AS cnt FROM %s WHERE %s GROUP BY %s HAVING COUNT(*) > 1",
		cl, quoteIdent(rel.Name), where, cl,
	)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("mysql store: group_values: %w", err)
	}
	defer rows.Close()

	colStates := make([]*colState, len(cols))
	for i, c := range cols {
		cs, err := s.stateAt(rel.Name, c)
		if err != nil {
			return nil, fmt.Errorf("mysql store: group_values: %w", err)
		}
		colStates[i] = cs
	}

	var out []store.ValueCount
	for rows.Next() {
		scanTargets := make([]any, len(cols)+1)
		raw := make([]string, len(cols))
		for i := range cols {
			scanTargets[i] = &raw[i]
		}
		var cnt int
		scanTargets[len(cols)] = &cnt
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("mysql store: group_values scan: %w", err)
		}
		values := make([]valuekey.Key, len(cols))
		for i := range cols {
			values[i] = colStates[i].enc.Encode(raw[i])
		}
		out = append(out, store.ValueCount{Values: values, Count: cnt})
	}
	return out, rows.Err()
}

// CreateTableAs materializes CREATE TABLE name AS SELECT cols FROM rel
// WHERE filter, preceded by a defensive DROP TABLE IF EXISTS so retries and
// recursion re-entry are idempotent. The resulting relation's columns keep
// their source physical names rather than a fresh col0..col_{len(cols)-1}
// run; position i of the derived relation is mapped to the name of source
// column cols[i], so callers address it by positions within cols, which
// colList/stateAt resolve through that mapping. Neither engine exercises this path —
// BUC uses the filter-based variant (see package buc) and TID/CNT never
// projects a derived table — so this only matters for direct callers of the
// materialized-BUC variant sketched in spec §4.5.
func (s *Store) CreateTableAs(ctx context.Context, name string, rel *store.Relation, cols []int, filter store.Filter) (*store.Relation, error) {
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(name)); err != nil {
		return nil, fmt.Errorf("mysql store: create_table_as: drop existing %s: %w", name, err)
	}
	where, args, err := s.filterSQL(rel, filter)
	if err != nil {
		return nil, err
	}
	cl, err := s.colList(rel, cols)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("CREATE TABLE %s AS SELECT %s FROM %s WHERE %s", quoteIdent(name), cl, quoteIdent(rel.Name), where)
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return nil, fmt.Errorf("mysql store: create_table_as %s: %w", name, err)
	}
	// The derived table keeps the source columns' physical names (a plain
	// SELECT projection does not rename), so its tracked names/encoders are
	// the parent's, restricted to cols, not a fresh col0..col_{k-1} run.
	srcNames := s.names[rel.Name]
	names := make([]string, len(cols))
	states := make(map[string]*colState, len(cols))
	for i, c := range cols {
		cs, err := s.stateAt(rel.Name, c)
		if err != nil {
			return nil, fmt.Errorf("mysql store: create_table_as: %w", err)
		}
		names[i] = srcNames[c]
		states[srcNames[c]] = cs
		s.colType[name+"."+srcNames[c]] = stagingColType
	}
	s.names[name] = names
	s.states[name] = states

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(name)).Scan(&n); err != nil {
		return nil, fmt.Errorf("mysql store: create_table_as: count rows: %w", err)
	}
	return &store.Relation{Name: name, N: n, K: len(cols)}, nil
}

// DropTable issues DROP TABLE IF EXISTS, safe to call repeatedly, used by
// every scoped-acquisition exit path the BUC materialized variant and every
// TID/CNT intermediate rely on (spec §5).
func (s *Store) DropTable(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(name)); err != nil {
		return fmt.Errorf("mysql store: drop_table %s: %w", name, err)
	}
	return nil
}
