package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dreamware/vitessgw/internal/wireval"
)

// classifyFunc adapts a raw memTable/constraint error into the taxonomy,
// shard- and dialect-specific (ClassifyPostgres or ClassifySQLite).
type classifyFunc func(shard string, err error) error

// memTxHandle is the TransactionHandle both in-memory adapters share: its
// state machine (active -> prepared -> committed/rolled_back) matches the
// three-valued tag the design notes specify, and terminal-state re-entry
// in the same direction is a no-op.
type memTxHandle struct {
	id       string
	shard    string
	mem      *memTable
	classify classifyFunc

	mu    sync.Mutex
	state TxState
	token string
}

func newMemTxHandle(shard string, owner interface{ Type() EngineType }, classify classifyFunc) *memTxHandle {
	var mem *memTable
	switch o := owner.(type) {
	case *PostgresEngine:
		mem = o.mem
	case *SQLiteEngine:
		mem = o.mem
	}
	return &memTxHandle{
		id:       uuid.NewString(),
		shard:    shard,
		mem:      mem,
		classify: classify,
		state:    TxActive,
	}
}

func (h *memTxHandle) ID() string    { return h.id }
func (h *memTxHandle) State() TxState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *memTxHandle) checkActive() error {
	if h.state != TxActive {
		return &GatewayError{Code: CodeTransactionError, Shard: h.shard,
			Err: fmt.Errorf("transaction %s is not active (state=%s)", h.id, h.state)}
	}
	return nil
}

func (h *memTxHandle) Query(ctx context.Context, sql string, params []any) (QueryResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkActive(); err != nil {
		return QueryResult{}, err
	}
	table, ok := parseSelectTable(sql)
	if !ok {
		return QueryResult{}, h.classify(h.shard, errUnsupportedStatement)
	}
	result, err := h.mem.selectAll(table)
	if err != nil {
		return QueryResult{}, h.classify(h.shard, err)
	}
	return result, nil
}

func (h *memTxHandle) Execute(ctx context.Context, sql string, params []any) (ExecuteResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkActive(); err != nil {
		return ExecuteResult{}, err
	}
	table, row, ok := parseInsert(sql, params)
	if !ok {
		return ExecuteResult{}, h.classify(h.shard, errUnsupportedStatement)
	}
	h.mem.ensureTable(table)
	id, err := h.mem.insert(table, row)
	if err != nil {
		return ExecuteResult{}, h.classify(h.shard, err)
	}
	return ExecuteResult{Affected: 1, LastInsertID: idValue(id)}, nil
}

// Commit and Rollback are idempotent in their own direction: repeating
// the terminal call is a no-op success, and crossing from the other
// terminal state is a TRANSACTION_ERROR.
func (h *memTxHandle) Commit(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case TxActive, TxPrepared:
		h.state = TxCommitted
		return nil
	case TxCommitted:
		return nil
	default:
		return &GatewayError{Code: CodeTransactionError, Shard: h.shard,
			Err: fmt.Errorf("cannot commit transaction %s in state %s", h.id, h.state)}
	}
}

func (h *memTxHandle) Rollback(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case TxActive, TxPrepared:
		h.state = TxRolledBack
		return nil
	case TxRolledBack:
		return nil
	default:
		return &GatewayError{Code: CodeTransactionError, Shard: h.shard,
			Err: fmt.Errorf("cannot rollback transaction %s in state %s", h.id, h.state)}
	}
}

var tokenCounter atomic.Uint64

func (h *memTxHandle) Prepare(ctx context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != TxActive {
		return "", &GatewayError{Code: CodeTransactionError, Shard: h.shard,
			Err: fmt.Errorf("cannot prepare transaction %s in state %s", h.id, h.state)}
	}
	h.state = TxPrepared
	h.token = fmt.Sprintf("prep-%s-%d", h.id, tokenCounter.Add(1))
	return h.token, nil
}

func (h *memTxHandle) CommitPrepared(ctx context.Context, token string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == TxCommitted {
		return nil // idempotent
	}
	if h.state != TxPrepared || token != h.token {
		return &GatewayError{Code: CodeTransactionError, Shard: h.shard,
			Err: fmt.Errorf("commitPrepared: bad token or state for transaction %s", h.id)}
	}
	h.state = TxCommitted
	return nil
}

func (h *memTxHandle) RollbackPrepared(ctx context.Context, token string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == TxRolledBack {
		return nil
	}
	if h.state != TxPrepared || token != h.token {
		return &GatewayError{Code: CodeTransactionError, Shard: h.shard,
			Err: fmt.Errorf("rollbackPrepared: bad token or state for transaction %s", h.id)}
	}
	h.state = TxRolledBack
	return nil
}

func idValue(id int64) wireval.Value {
	if id == 0 {
		return wireval.Null
	}
	return wireval.NewInt64(id)
}
