// Package memory provides an in-process reference TupleStore backend: every
// primitive operates directly on Go slices and maps rather than issuing SQL.
// It exists as the executable specification of the TupleStore primitives'
// semantics (spec §4.1, §6) and as the fixture engine tests run against,
// mirroring how the teacher threads a small shared context struct
// (introspectCtx in the retired introspect/mysql package) through a set of
// per-primitive functions, adapted here from "introspect metadata" to
// "evaluate a group-and-count primitive in memory".
package memory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"entropymine/internal/store"
	"entropymine/internal/valuekey"
)

func init() {
	store.Register("memory", New)
}

type relation struct {
	name     string
	names    []string
	nameIdx  map[string]int
	columns  [][]valuekey.Key // columns[c][row]
	encoders []*valuekey.Encoder
	n        int
	k        int
}

// Store is the in-memory TupleStore backend.
type Store struct {
	mu        sync.Mutex
	relations map[string]*relation
	seq       int
}

// New constructs an empty in-memory Store.
func New() store.Store {
	return &Store{relations: make(map[string]*relation)}
}

// LoadRows is a test/driver convenience that loads a relation directly from
// in-memory rows rather than a file, bypassing CSV parsing. Production code
// should use Load.
func (s *Store) LoadRows(name string, rows [][]string) (*store.Relation, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("memory store: empty relation")
	}
	k := len(rows[0])
	rel := s.newRelation(name, k)
	for _, row := range rows {
		if len(row) != k {
			return nil, fmt.Errorf("memory store: row has %d columns, want %d", len(row), k)
		}
		for c, raw := range row {
			rel.columns[c] = append(rel.columns[c], rel.encoders[c].Encode(raw))
		}
	}
	rel.n = len(rows)
	return &store.Relation{Name: name, N: rel.n, K: k}, nil
}

func (s *Store) newRelation(name string, k int) *relation {
	names := make([]string, k)
	nameIdx := make(map[string]int, k)
	for i := range names {
		names[i] = fmt.Sprintf("col%d", i)
		nameIdx[names[i]] = i
	}
	rel := &relation{
		name:     name,
		names:    names,
		nameIdx:  nameIdx,
		columns:  make([][]valuekey.Key, k),
		encoders: make([]*valuekey.Encoder, k),
	}
	for i := range rel.encoders {
		rel.encoders[i] = valuekey.NewEncoder()
	}
	s.mu.Lock()
	s.relations[name] = rel
	s.mu.Unlock()
	return rel
}

// Load ingests a headerless CSV file of k columns, assigning TIDs 1..n in
// file order (spec §4.1 "load").
func (s *Store) Load(_ context.Context, path string, k int) (*store.Relation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("memory store: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = k

	name := relNameFromPath(path)
	rel := s.newRelation(name, k)

	n := 0
	for {
		row, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("memory store: read %s: %w", path, err)
		}
		for c, raw := range row {
			rel.columns[c] = append(rel.columns[c], rel.encoders[c].Encode(raw))
		}
		n++
	}
	rel.n = n
	return &store.Relation{Name: name, N: n, K: k}, nil
}

func relNameFromPath(path string) string {
	base := path
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}
	return strings.TrimSuffix(base, ".csv")
}

func (s *Store) get(rel *store.Relation) (*relation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.relations[rel.Name]
	if !ok {
		return nil, fmt.Errorf("memory store: relation %q not found", rel.Name)
	}
	return r, nil
}

// resolve maps a caller's logical column position to the physical slot that
// currently holds it. RenameColumn only ever relabels r.names/r.nameIdx, never
// moves r.columns/r.encoders data, so every other primitive must go through
// this indirection rather than indexing r.columns[col] directly — otherwise a
// reorder (internal/reorder) would relabel columns without actually
// permuting which data each logical position sees, silently breaking I4.
func (r *relation) resolve(col int) (int, error) {
	idx, ok := r.nameIdx[fmt.Sprintf("col%d", col)]
	if !ok {
		return 0, fmt.Errorf("memory store: no column at logical position %d", col)
	}
	return idx, nil
}

func (r *relation) resolveCols(cols []int) ([]int, error) {
	out := make([]int, len(cols))
	for i, c := range cols {
		idx, err := r.resolve(c)
		if err != nil {
			return nil, err
		}
		out[i] = idx
	}
	return out, nil
}

func (r *relation) resolveFilter(filter store.Filter) (store.Filter, error) {
	if len(filter) == 0 {
		return filter, nil
	}
	out := make(store.Filter, len(filter))
	for i, p := range filter {
		idx, err := r.resolve(p.Column)
		if err != nil {
			return nil, err
		}
		out[i] = store.Predicate{Column: idx, Value: p.Value}
	}
	return out, nil
}

// DistinctCount returns the number of distinct values in column col.
func (s *Store) DistinctCount(_ context.Context, rel *store.Relation, col int) (int, error) {
	r, err := s.get(rel)
	if err != nil {
		return 0, err
	}
	idx, err := r.resolve(col)
	if err != nil {
		return 0, err
	}
	seen := make(map[valuekey.Key]struct{})
	for _, v := range r.columns[idx] {
		seen[v] = struct{}{}
	}
	return len(seen), nil
}

// RenameColumn renames a physical column by name.
func (s *Store) RenameColumn(_ context.Context, rel *store.Relation, oldName, newName string) error {
	r, err := s.get(rel)
	if err != nil {
		return err
	}
	idx, ok := r.nameIdx[oldName]
	if !ok {
		return fmt.Errorf("memory store: column %q not found", oldName)
	}
	delete(r.nameIdx, oldName)
	r.names[idx] = newName
	r.nameIdx[newName] = idx
	return nil
}

// ColumnValues returns the full (TID, value) list for col, TIDs 1-based in
// load order, unfiltered by multiplicity (spec §4.4 Level-1 initialization).
func (s *Store) ColumnValues(_ context.Context, rel *store.Relation, col int) ([]store.TIDValue, error) {
	r, err := s.get(rel)
	if err != nil {
		return nil, err
	}
	idx, err := r.resolve(col)
	if err != nil {
		return nil, err
	}
	out := make([]store.TIDValue, r.n)
	for row := 0; row < r.n; row++ {
		out[row] = store.TIDValue{TID: row + 1, Val: r.columns[idx][row]}
	}
	return out, nil
}

// CreateTableAs projects cols under filter into a freshly named relation.
func (s *Store) CreateTableAs(_ context.Context, name string, rel *store.Relation, cols []int, filter store.Filter) (*store.Relation, error) {
	r, err := s.get(rel)
	if err != nil {
		return nil, err
	}
	resolvedCols, err := r.resolveCols(cols)
	if err != nil {
		return nil, err
	}
	resolvedFilter, err := r.resolveFilter(filter)
	if err != nil {
		return nil, err
	}
	out := s.newRelation(name, len(cols))
	for row := 0; row < r.n; row++ {
		if !matches(r, row, resolvedFilter) {
			continue
		}
		for c, col := range resolvedCols {
			out.columns[c] = append(out.columns[c], r.columns[col][row])
		}
		out.n++
	}
	return &store.Relation{Name: name, N: out.n, K: len(cols)}, nil
}

// DropTable releases a materialized relation.
func (s *Store) DropTable(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.relations, name)
	return nil
}

func matches(r *relation, row int, filter store.Filter) bool {
	for _, p := range filter {
		if r.columns[p.Column][row] != p.Value {
			return false
		}
	}
	return true
}

func groupKey(r *relation, row int, cols []int) string {
	var sb strings.Builder
	for _, c := range cols {
		sb.WriteString(strconv.FormatUint(uint64(r.columns[c][row]), 36))
		sb.WriteByte('|')
	}
	return sb.String()
}

// GroupSumCLogC returns Σ cnt(g)·log₂cnt(g) over groups with cnt>1 on cols
// under filter (spec §4.1), or ErrEmptyGroup when no such group exists.
func (s *Store) GroupSumCLogC(_ context.Context, rel *store.Relation, cols []int, filter store.Filter) (float64, error) {
	r, err := s.get(rel)
	if err != nil {
		return 0, err
	}
	resolvedCols, err := r.resolveCols(cols)
	if err != nil {
		return 0, err
	}
	resolvedFilter, err := r.resolveFilter(filter)
	if err != nil {
		return 0, err
	}
	counts := make(map[string]int)
	for row := 0; row < r.n; row++ {
		if !matches(r, row, resolvedFilter) {
			continue
		}
		counts[groupKey(r, row, resolvedCols)]++
	}
	return sumCLogCFromCounts(counts)
}

func sumCLogCFromCounts(counts map[string]int) (float64, error) {
	var sum float64
	any := false
	for _, c := range counts {
		if c <= 1 {
			continue
		}
		any = true
		sum += clogc(c)
	}
	if !any {
		return 0, store.ErrEmptyGroup
	}
	return sum, nil
}

func clogc(c int) float64 {
	return float64(c) * math.Log2(float64(c))
}

// GroupValues returns the set of (value-vector, cnt) with cnt>1 on cols
// under filter.
func (s *Store) GroupValues(_ context.Context, rel *store.Relation, cols []int, filter store.Filter) ([]store.ValueCount, error) {
	r, err := s.get(rel)
	if err != nil {
		return nil, err
	}
	resolvedCols, err := r.resolveCols(cols)
	if err != nil {
		return nil, err
	}
	resolvedFilter, err := r.resolveFilter(filter)
	if err != nil {
		return nil, err
	}
	type group struct {
		values []valuekey.Key
		count  int
	}
	groups := make(map[string]*group)
	order := make([]string, 0)
	for row := 0; row < r.n; row++ {
		if !matches(r, row, resolvedFilter) {
			continue
		}
		key := groupKey(r, row, resolvedCols)
		g, ok := groups[key]
		if !ok {
			values := make([]valuekey.Key, len(resolvedCols))
			for i, c := range resolvedCols {
				values[i] = r.columns[c][row]
			}
			g = &group{values: values}
			groups[key] = g
			order = append(order, key)
		}
		g.count++
	}
	var out []store.ValueCount
	for _, key := range order {
		g := groups[key]
		if g.count > 1 {
			out = append(out, store.ValueCount{Values: g.values, Count: g.count})
		}
	}
	return out, nil
}

// HashedJoinCounts performs a tid-equality inner join of a and b, grouping
// by the composite hash of their values, keeping groups with count > 1
// (spec §4.4 "Level extension" step 2).
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

	s.mu.Lock()
	s.seq++
	name := fmt.Sprintf("__joincounts_%d", s.seq)
	s.mu.Unlock()

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
// (val=hash(vA,vB), tid) rows restricted to value-keys present in counts
// (spec §4.4 "materialize the S' TID-list by re-joining to keep only rows
// whose hashed key survived in CNT").
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
