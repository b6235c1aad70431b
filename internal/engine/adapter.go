// Package engine implements the storage-engine adapter abstraction: a
// narrow interface two concrete in-memory adapters satisfy (a Postgres-
// family engine and a SQLite-family engine), the error taxonomy engine
// errors are classified into, and the dialect translation between the two
// SQL flavors.
package engine

import (
	"context"
	"time"

	"github.com/dreamware/vitessgw/internal/wireval"
)

// Field describes one column of a QueryResult.
type Field struct {
	Name       string
	Type       CanonicalType
	NativeType string
}

// CanonicalType is the small canonical set field types are mapped to.
type CanonicalType string

const (
	TypeInt       CanonicalType = "int"
	TypeBigInt    CanonicalType = "bigint"
	TypeFloat     CanonicalType = "float"
	TypeNumeric   CanonicalType = "numeric"
	TypeText      CanonicalType = "text"
	TypeBool      CanonicalType = "bool"
	TypeJSON      CanonicalType = "json"
	TypeDate      CanonicalType = "date"
	TypeTime      CanonicalType = "time"
	TypeTimestamp CanonicalType = "timestamp"
	TypeUUID      CanonicalType = "uuid"
	TypeBytea     CanonicalType = "bytea"
	TypeUnknown   CanonicalType = "unknown"
)

// Row is an ordered field-to-value mapping (insertion order preserved by
// Fields, not by the map itself).
type Row map[string]wireval.Value

// QueryResult is the result of a read.
type QueryResult struct {
	Rows     []Row
	RowCount int
	Fields   []Field
	Duration time.Duration
}

// ExecuteResult is the result of a write.
type ExecuteResult struct {
	Affected     int
	LastInsertID wireval.Value // Null if none
}

// EngineType discriminates which concrete adapter a tablet wraps.
type EngineType string

const (
	EnginePostgres EngineType = "postgres"
	EngineSQLite   EngineType = "sqlite"
)

// TransactionHandle is a per-shard transaction as exposed by an adapter.
// It is guarded by a three-valued state tag; all operations check state
// before proceeding, and terminal-state re-entry in the same direction is
// a no-op (the idempotence contract).
type TransactionHandle interface {
	ID() string
	State() TxState
	Query(ctx context.Context, sql string, params []any) (QueryResult, error)
	Execute(ctx context.Context, sql string, params []any) (ExecuteResult, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// Prepare transitions an active handle to prepared and returns an
	// opaque token; the decision must be durable before it returns.
	Prepare(ctx context.Context) (string, error)
	CommitPrepared(ctx context.Context, token string) error
	RollbackPrepared(ctx context.Context, token string) error
}

// TxState is the transaction-handle lifecycle tag.
type TxState string

const (
	TxActive       TxState = "active"
	TxPrepared     TxState = "prepared"
	TxCommitted    TxState = "committed"
	TxRolledBack   TxState = "rolled_back"
)

// Adapter is the narrow capability set every storage engine exposes:
// query/execute/beginTransaction/close, plus a discriminated engine-type
// tag. Dialect translation is never a method here; it is a pure function
// (ToSQLite, ToSQLitePlaceholders) that the SQLite-family adapter applies
// to incoming sql inside its own Query/Execute. The tablet passes sql to
// the adapter unchanged.
type Adapter interface {
	Type() EngineType
	Query(ctx context.Context, sql string, params []any) (QueryResult, error)
	Execute(ctx context.Context, sql string, params []any) (ExecuteResult, error)
	BeginTransaction(ctx context.Context) (TransactionHandle, error)
	Close() error
}
