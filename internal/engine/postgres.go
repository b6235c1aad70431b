package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresEngine is the Postgres-family adapter: an in-memory relational
// store that accepts Postgres-dialect SQL unmodified and raises
// *pgconn.PgError with real SQLSTATE codes on constraint violation, the
// way the pack's Postgres-oriented services (citus-mcp, kubernaut) expect
// to classify errors from a live driver.
type PostgresEngine struct {
	shard string
	mem   *memTable
	txs   sync.Map // token -> *memTxHandle
	closed atomic.Bool
}

// NewPostgresEngine constructs a fresh, empty Postgres-family adapter.
func NewPostgresEngine(shard string) *PostgresEngine {
	return &PostgresEngine{shard: shard, mem: newMemTable()}
}

func (p *PostgresEngine) Type() EngineType { return EnginePostgres }

func (p *PostgresEngine) Query(ctx context.Context, sql string, params []any) (QueryResult, error) {
	if p.closed.Load() {
		return QueryResult{}, &GatewayError{Code: CodeAlreadyClosed, Shard: p.shard, Err: fmt.Errorf("engine closed")}
	}
	start := time.Now()
	table, ok := parseSelectTable(sql)
	if !ok {
		return QueryResult{}, ClassifyPostgres(p.shard, pgSyntaxError(sql))
	}
	result, err := p.mem.selectAll(table)
	if err != nil {
		return QueryResult{}, ClassifyPostgres(p.shard, err)
	}
	result.Duration = time.Since(start)
	return result, nil
}

func (p *PostgresEngine) Execute(ctx context.Context, sql string, params []any) (ExecuteResult, error) {
	if p.closed.Load() {
		return ExecuteResult{}, &GatewayError{Code: CodeAlreadyClosed, Shard: p.shard, Err: fmt.Errorf("engine closed")}
	}
	if d, ok := parseCreateTable(sql); ok {
		t := p.mem.ensureTable(d.table)
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
		p.mem.ensureTable(table)
		id, err := p.mem.insert(table, row)
		if err != nil {
			return ExecuteResult{}, ClassifyPostgres(p.shard, toPgError(err))
		}
		return ExecuteResult{Affected: 1, LastInsertID: idValue(id)}, nil
	}
	return ExecuteResult{}, ClassifyPostgres(p.shard, pgSyntaxError(sql))
}

func (p *PostgresEngine) BeginTransaction(ctx context.Context) (TransactionHandle, error) {
	if p.closed.Load() {
		return nil, &GatewayError{Code: CodeAlreadyClosed, Shard: p.shard, Err: fmt.Errorf("engine closed")}
	}
	h := newMemTxHandle(p.shard, p, ClassifyPostgres)
	return h, nil
}

func (p *PostgresEngine) Close() error {
	p.closed.Store(true)
	return nil
}

func pgSyntaxError(sql string) error {
	return &pgconn.PgError{Code: "42601", Message: fmt.Sprintf("syntax error near %q", truncate(sql, 40))}
}

func toPgError(err error) error {
	ce, ok := err.(*constraintError)
	if !ok {
		return err
	}
	code := "23000"
	switch ce.kind {
	case ConstraintUnique:
		code = "23505"
	case ConstraintNotNull:
		code = "23502"
	case ConstraintForeignKey:
		code = "23503"
	case ConstraintCheck:
		code = "23514"
	}
	return &pgconn.PgError{Code: code, Message: ce.Error(), ColumnName: ce.column, TableName: ce.table}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// newRandomUUID returns a random UUID string from the uuid library. No
// code path in this package calls it: the SQLite-dialect rewrite of
// gen_random_uuid() in dialect.go produces a randomblob-based expression
// instead.
func newRandomUUID() string {
	return uuid.NewString()
}
