package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/dreamware/vitessgw/internal/engine"
	"github.com/dreamware/vitessgw/internal/twopc"
)

// IsolationLevel is the isolation requested of a distributed transaction's
// per-shard begin.
type IsolationLevel string

const (
	IsolationReadUncommitted IsolationLevel = "read_uncommitted"
	IsolationReadCommitted   IsolationLevel = "read_committed"
	IsolationRepeatableRead  IsolationLevel = "repeatable_read"
	IsolationSerializable    IsolationLevel = "serializable"
)

// TxOptions configures a distributed transaction opened via
// Gateway.Transaction. Only Timeout takes effect: it bounds the
// transaction's context. Isolation and ReadOnly are accepted but are not
// passed to the per-shard begin and are not enforced; the in-memory
// adapters do not implement distinct isolation levels.
type TxOptions struct {
	Isolation IsolationLevel
	ReadOnly  bool
	Timeout   time.Duration
}

// TxHandle is the per-transaction handle passed to a Gateway.Transaction
// body: its Query/Execute thread every call through the distributed
// transaction's own per-shard handle, opening one lazily on first touch
// of a given shard.
type TxHandle struct {
	ctx   context.Context
	gtid  string
	coord *twopc.Coordinator
}

// Query runs sql as a read against shard within this transaction.
func (h *TxHandle) Query(shard, sql string, params []any) (engine.QueryResult, error) {
	return h.coord.QueryOn(h.ctx, h.gtid, shard, sql, params)
}

// Execute runs sql as a write against shard within this transaction.
func (h *TxHandle) Execute(shard, sql string, params []any) (engine.ExecuteResult, error) {
	return h.coord.ExecuteOn(h.ctx, h.gtid, shard, sql, params)
}

// SetCoordinator installs the distributed-transaction coordinator a
// Gateway dispatches Transaction calls through.
func (g *Gateway) SetCoordinator(c *twopc.Coordinator) {
	g.coordinator = c
}

// Transaction opens a DistributedTransaction, runs body against a
// TxHandle threading per-shard calls through it, and resolves the
// transaction on body's return: prepare-then-commit on success, abort on
// error. A transaction that ends up touching at most one shard skips the
// full 2PC protocol and commits that shard's handle directly.
func (g *Gateway) Transaction(ctx context.Context, opts TxOptions, body func(*TxHandle) error) error {
	if g.coordinator == nil {
		return engine.New(engine.CodeUnsupported, "", fmt.Errorf("gateway: distributed transactions not configured"))
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	d := g.coordinator.Begin()
	handle := &TxHandle{ctx: ctx, gtid: d.GTID(), coord: g.coordinator}

	if err := body(handle); err != nil {
		_ = g.coordinator.Abort(ctx, d.GTID())
		return err
	}

	if len(d.Shards()) <= 1 {
		return g.coordinator.CommitSingleShard(ctx, d.GTID())
	}

	result, err := g.coordinator.Prepare(ctx, d.GTID())
	if err != nil {
		_ = g.coordinator.Abort(ctx, d.GTID())
		return err
	}
	if !result.Success {
		_ = g.coordinator.Abort(ctx, d.GTID())
		return engine.New(engine.CodeTransactionError, "", fmt.Errorf("gateway: prepare failed for %d of %d shard(s)", len(result.Failed), len(d.Shards())))
	}
	return g.coordinator.Commit(ctx, d.GTID())
}
