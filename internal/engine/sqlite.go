package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mattn/go-sqlite3"
)

// SQLiteEngine is the SQLite-family adapter: inbound Postgres-dialect SQL
// is run through dialect.ToSQLite and $n-placeholders through
// ToSQLitePlaceholders before reaching the shared in-memory store, and
// constraint violations are raised as sqlite3.Error with the matching
// extended result code, mirroring how vitess itself depends on
// mattn/go-sqlite3 for its embedded test server.
type SQLiteEngine struct {
	shard  string
	mem    *memTable
	closed atomic.Bool
}

func NewSQLiteEngine(shard string) *SQLiteEngine {
	return &SQLiteEngine{shard: shard, mem: newMemTable()}
}

func (s *SQLiteEngine) Type() EngineType { return EngineSQLite }

func (s *SQLiteEngine) translate(sql string) (string, error) {
	sql = ToSQLite(sql)
	rewritten, _, err := ToSQLitePlaceholders(sql)
	if err != nil {
		return "", err
	}
	return rewritten, nil
}

func (s *SQLiteEngine) Query(ctx context.Context, sql string, params []any) (QueryResult, error) {
	if s.closed.Load() {
		return QueryResult{}, &GatewayError{Code: CodeAlreadyClosed, Shard: s.shard, Err: fmt.Errorf("engine closed")}
	}
	start := time.Now()
	sql, err := s.translate(sql)
	if err != nil {
		return QueryResult{}, err
	}
	table, ok := parseSelectTable(sql)
	if !ok {
		return QueryResult{}, ClassifySQLite(s.shard, sqliteSyntaxError(sql))
	}
	result, err := s.mem.selectAll(table)
	if err != nil {
		return QueryResult{}, ClassifySQLite(s.shard, err)
	}
	result.Duration = time.Since(start)
	return result, nil
}

func (s *SQLiteEngine) Execute(ctx context.Context, sql string, params []any) (ExecuteResult, error) {
	if s.closed.Load() {
		return ExecuteResult{}, &GatewayError{Code: CodeAlreadyClosed, Shard: s.shard, Err: fmt.Errorf("engine closed")}
	}
	sql, err := s.translate(sql)
	if err != nil {
		return ExecuteResult{}, err
	}
	if d, ok := parseCreateTable(sql); ok {
		t := s.mem.ensureTable(d.table)
		t.pkColumn = d.pkColumn
		for _, c := range d.uniqueCols {
			t.uniqueCols[c] = true
		}
		for _, c := range d.notNullCols {
			t.notNullCols[c] = true
		}
		return ExecuteResult{}, nil
	}
	if table, row, ok := parseInsert(sql, params); ok {
		s.mem.ensureTable(table)
		id, err := s.mem.insert(table, row)
		if err != nil {
			return ExecuteResult{}, ClassifySQLite(s.shard, toSQLiteError(err))
		}
		return ExecuteResult{Affected: 1, LastInsertID: idValue(id)}, nil
	}
	return ExecuteResult{}, ClassifySQLite(s.shard, sqliteSyntaxError(sql))
}

func (s *SQLiteEngine) BeginTransaction(ctx context.Context) (TransactionHandle, error) {
	if s.closed.Load() {
		return nil, &GatewayError{Code: CodeAlreadyClosed, Shard: s.shard, Err: fmt.Errorf("engine closed")}
	}
	return newMemTxHandle(s.shard, s, ClassifySQLite), nil
}

func (s *SQLiteEngine) Close() error {
	s.closed.Store(true)
	return nil
}

func sqliteSyntaxError(sql string) error {
	return sqlite3.Error{Code: sqlite3.ErrError, ExtendedCode: sqlite3.ErrError}
}

func toSQLiteError(err error) error {
	ce, ok := err.(*constraintError)
	if !ok {
		return err
	}
	ext := sqlite3.ErrConstraintUnique
	switch ce.kind {
	case ConstraintUnique:
		ext = sqlite3.ErrConstraintUnique
	case ConstraintNotNull:
		ext = sqlite3.ErrConstraintNotNull
	case ConstraintForeignKey:
		ext = sqlite3.ErrConstraintForeignKey
	case ConstraintCheck:
		ext = sqlite3.ErrConstraintCheck
	case ConstraintPrimaryKey:
		ext = sqlite3.ErrConstraintPrimaryKey
	}
	return sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: ext}
}
