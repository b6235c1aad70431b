package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dreamware/vitessgw/internal/wireval"
)

// memTable is the shared in-memory relational store backing both concrete
// adapters. It is not a real SQL engine: it supports exactly the
// operations the Postgres and SQLite adapters need to exercise the
// Adapter contract and the error taxonomy (insert/select-all/constraint
// checking), generalizing the teacher's MemoryStore from a flat byte map
// to a table of typed rows. Persistence of the underlying engine is
// explicitly out of scope.
type memTable struct {
	mu      sync.RWMutex
	tables  map[string]*tableDef
	nextIDs map[string]int64
}

type tableDef struct {
	name        string
	columns     []Field
	rows        []Row
	uniqueCols  map[string]bool
	notNullCols map[string]bool
	pkColumn    string
}

func newMemTable() *memTable {
	return &memTable{
		tables:  map[string]*tableDef{},
		nextIDs: map[string]int64{},
	}
}

// ensureTable creates table on first reference with a permissive schema;
// real DDL parsing is out of scope, so CREATE TABLE statements are
// recognized only far enough to register constraint columns (see
// parseCreateTable in sql.go).
func (m *memTable) ensureTable(name string) *tableDef {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[name]
	if !ok {
		t = &tableDef{
			name:        name,
			uniqueCols:  map[string]bool{},
			notNullCols: map[string]bool{},
		}
		m.tables[name] = t
	}
	return t
}

func (m *memTable) insert(table string, row Row) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table]
	if !ok {
		return 0, fmt.Errorf("engine: unknown table %q", table)
	}

	for col := range t.notNullCols {
		if v, ok := row[col]; !ok || v.IsNull() {
			return 0, &constraintError{kind: ConstraintNotNull, column: col, table: table}
		}
	}
	for col := range t.uniqueCols {
		v, ok := row[col]
		if !ok || v.IsNull() {
			continue
		}
		for _, existing := range t.rows {
			if ev, ok := existing[col]; ok && ev.Equal(v) {
				return 0, &constraintError{kind: ConstraintUnique, column: col, table: table}
			}
		}
	}

	var id int64
	if t.pkColumn != "" {
		if _, has := row[t.pkColumn]; !has {
			m.nextIDs[table]++
			id = m.nextIDs[table]
			row[t.pkColumn] = wireval.NewInt64(id)
		} else if v, ok := row[t.pkColumn].AsFloat64(); ok {
			id = int64(v)
			if id > m.nextIDs[table] {
				m.nextIDs[table] = id
			}
		}
	}

	t.rows = append(t.rows, row)
	return id, nil
}

func (m *memTable) selectAll(table string) (QueryResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[table]
	if !ok {
		return QueryResult{}, fmt.Errorf("engine: unknown table %q", table)
	}
	rows := make([]Row, len(t.rows))
	copy(rows, t.rows)
	return QueryResult{Rows: rows, RowCount: len(rows), Fields: fieldsFromRows(rows)}, nil
}

func fieldsFromRows(rows []Row) []Field {
	seen := map[string]bool{}
	var names []string
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	sort.Strings(names)
	fields := make([]Field, len(names))
	for i, n := range names {
		fields[i] = Field{Name: n, Type: TypeUnknown}
	}
	return fields
}

// constraintError is the raw internal error insert returns before the
// per-dialect adapter wraps it as a realistic *pgconn.PgError or
// sqlite3.Error for classification.
type constraintError struct {
	kind  ConstraintKind
	table string
	column string
}

func (e *constraintError) Error() string {
	return fmt.Sprintf("constraint violation (%s) on %s.%s", e.kind, e.table, e.column)
}
