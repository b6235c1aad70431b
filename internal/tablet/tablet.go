// Package tablet implements the per-shard query executor: a thin process
// that owns exactly one engine.Adapter and exposes query, execute, and
// transaction-lifecycle operations over it, tracking health and latency
// the way the cluster's shard owners always have.
package tablet

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dreamware/vitessgw/internal/engine"
)

// State mirrors the teacher's shard lifecycle tags, generalized from
// active/migrating/deleted to the tablet's own serving states.
type State string

const (
	StateServing    State = "serving"
	StateNotServing State = "not_serving"
	StateDraining   State = "draining"
)

// OperationStats counts queries, executes, and transactions handled by
// this tablet, updated atomically so hot paths never take a lock just to
// bump a counter.
type OperationStats struct {
	Queries      uint64
	Executes     uint64
	Transactions uint64
	Errors       uint64
}

// Health is a point-in-time snapshot of a tablet's serving state and
// observed latency percentiles, the shape returned to a gateway's health
// probe and to an admin status endpoint.
type Health struct {
	Shard   string
	State   State
	P50     time.Duration
	P95     time.Duration
	P99     time.Duration
	Queries uint64
	Errors  uint64
}

// Tablet owns one shard's engine.Adapter and the open transactions against
// it, generalizing the teacher's Shard (which owned a storage.Store and a
// ShardState) to own a swappable engine.Adapter and a transaction
// registry instead of a single KV backend.
type Tablet struct {
	shard string

	mu     sync.RWMutex
	state  State
	engine engine.Adapter

	stats OperationStats

	txMu            sync.Mutex
	txs             map[string]*txEntry
	maxTransactions int
	txTimeout       time.Duration

	latencyMu sync.Mutex
	latencies []time.Duration // bounded ring of recent op durations for percentile estimates

	queryDuration prometheus.Histogram
	errorCounter  prometheus.Counter

	logger *zap.Logger
}

const defaultMaxTransactions = 1000
const latencyWindowSize = 1000
const defaultTxTimeout = 30 * time.Second

// txEntry pairs a live transaction handle with the deadline past which it
// is forcibly rolled back, implementing the per-shard transaction timeout:
// a prepared-but-unresolved (or simply abandoned active) transaction must
// release its locks once its deadline elapses.
type txEntry struct {
	handle   engine.TransactionHandle
	deadline time.Time
}

// New constructs a tablet bound to adapter for shard, starting in the
// serving state.
func New(shardName string, adapter engine.Adapter) *Tablet {
	t := &Tablet{
		shard:           shardName,
		state:           StateServing,
		engine:          adapter,
		txs:             map[string]*txEntry{},
		maxTransactions: defaultMaxTransactions,
		txTimeout:       defaultTxTimeout,
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "vitessgw_tablet_query_duration_seconds",
			Help:        "Observed latency of tablet query and execute operations.",
			ConstLabels: prometheus.Labels{"shard": shardName},
			Buckets:     prometheus.DefBuckets,
		}),
		errorCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "vitessgw_tablet_errors_total",
			Help:        "Count of tablet operations that returned an error.",
			ConstLabels: prometheus.Labels{"shard": shardName},
		}),
		logger: zap.NewNop(),
	}
	return t
}

// SetLogger installs l for this tablet's lifecycle and error logging,
// replacing the no-op default New constructs with.
func (t *Tablet) SetLogger(l *zap.Logger) {
	t.logger = l.With(zap.String("shard", t.shard))
}

// SetTxTimeout overrides the deadline after which an unresolved
// transaction is forcibly rolled back and marked expired.
func (t *Tablet) SetTxTimeout(d time.Duration) {
	t.txTimeout = d
}

// Describe and Collect satisfy prometheus.Collector so a tablet can be
// registered directly with a registry.
func (t *Tablet) Describe(ch chan<- *prometheus.Desc) {
	t.queryDuration.Describe(ch)
	t.errorCounter.Describe(ch)
}

func (t *Tablet) Collect(ch chan<- prometheus.Metric) {
	t.queryDuration.Collect(ch)
	t.errorCounter.Collect(ch)
}

func (t *Tablet) Shard() string { return t.shard }

func (t *Tablet) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// SetState transitions the tablet's serving state, mirroring the
// teacher's SetState pattern of an exclusive lock around a bare
// assignment.
func (t *Tablet) SetState(s State) {
	t.mu.Lock()
	prev := t.state
	t.state = s
	t.mu.Unlock()
	if prev != s {
		t.logger.Info("tablet state transition", zap.String("from", string(prev)), zap.String("to", string(s)))
	}
}

func (t *Tablet) recordLatency(d time.Duration) {
	t.latencyMu.Lock()
	defer t.latencyMu.Unlock()
	t.latencies = append(t.latencies, d)
	if len(t.latencies) > latencyWindowSize {
		t.latencies = t.latencies[len(t.latencies)-latencyWindowSize:]
	}
}

func (t *Tablet) percentiles() (p50, p95, p99 time.Duration) {
	t.latencyMu.Lock()
	defer t.latencyMu.Unlock()
	n := len(t.latencies)
	if n == 0 {
		return 0, 0, 0
	}
	sorted := make([]time.Duration, n)
	copy(sorted, t.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	pick := func(pct float64) time.Duration {
		idx := int(pct * float64(n))
		if idx >= n {
			idx = n - 1
		}
		return sorted[idx]
	}
	return pick(0.50), pick(0.95), pick(0.99)
}

// currentEngine returns the active adapter under the read lock, so a
// concurrent switchEngine cannot be observed mid-swap.
func (t *Tablet) currentEngine() engine.Adapter {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.engine
}

// EngineType reports which storage adapter this tablet currently wraps,
// the value a status or health endpoint reports alongside a shard's id.
func (t *Tablet) EngineType() engine.EngineType {
	return t.currentEngine().Type()
}

var errNotServing = fmt.Errorf("tablet: not serving")

func (t *Tablet) checkServing() error {
	if t.State() != StateServing {
		return &engine.GatewayError{Code: engine.CodeNotReady, Shard: t.shard, Err: errNotServing}
	}
	return nil
}

// Query executes a read-only statement against the active engine.
func (t *Tablet) Query(ctx context.Context, sql string, params []any) (engine.QueryResult, error) {
	if err := t.checkServing(); err != nil {
		return engine.QueryResult{}, err
	}
	start := time.Now()
	result, err := t.currentEngine().Query(ctx, sql, params)
	t.finish(start, err)
	atomic.AddUint64(&t.stats.Queries, 1)
	return result, err
}

// Execute runs a write statement outside of any explicit transaction.
func (t *Tablet) Execute(ctx context.Context, sql string, params []any) (engine.ExecuteResult, error) {
	if err := t.checkServing(); err != nil {
		return engine.ExecuteResult{}, err
	}
	start := time.Now()
	result, err := t.currentEngine().Execute(ctx, sql, params)
	t.finish(start, err)
	atomic.AddUint64(&t.stats.Executes, 1)
	return result, err
}

func (t *Tablet) finish(start time.Time, err error) {
	d := time.Since(start)
	t.recordLatency(d)
	t.queryDuration.Observe(d.Seconds())
	if err != nil {
		atomic.AddUint64(&t.stats.Errors, 1)
		t.errorCounter.Inc()
		t.logger.Warn("operation failed", zap.Error(err), zap.Duration("duration", d))
	}
}

// BeginTransaction opens a transaction against the active engine and
// registers it under its handle ID, enforcing maxTransactions.
func (t *Tablet) BeginTransaction(ctx context.Context) (engine.TransactionHandle, error) {
	if err := t.checkServing(); err != nil {
		return nil, err
	}
	t.txMu.Lock()
	if len(t.txs) >= t.maxTransactions {
		t.txMu.Unlock()
		return nil, &engine.GatewayError{Code: engine.CodeTransactionError, Shard: t.shard,
			Err: fmt.Errorf("tablet: max transactions (%d) reached", t.maxTransactions)}
	}
	t.txMu.Unlock()

	h, err := t.currentEngine().BeginTransaction(ctx)
	if err != nil {
		return nil, err
	}
	t.txMu.Lock()
	t.txs[h.ID()] = &txEntry{handle: h, deadline: time.Now().Add(t.txTimeout)}
	t.txMu.Unlock()
	atomic.AddUint64(&t.stats.Transactions, 1)
	return h, nil
}

// GetTransaction looks up a previously opened transaction by ID, used by
// the coordinator to continue a transaction across separate RPCs. A
// transaction past its deadline is treated as absent; resolveTransaction
// is the path that turns that into a TRANSACTION_EXPIRED error instead.
func (t *Tablet) GetTransaction(id string) (engine.TransactionHandle, bool) {
	t.txMu.Lock()
	defer t.txMu.Unlock()
	e, ok := t.txs[id]
	if !ok || time.Now().After(e.deadline) {
		return nil, false
	}
	return e.handle, true
}

// resolveTransaction looks up id for a mutating operation, reaping and
// rolling back an entry whose deadline has passed and reporting that
// explicitly as TRANSACTION_EXPIRED rather than TRANSACTION_NOT_FOUND, so
// a stale resolve attempt gets the taxonomy code the design specifies.
func (t *Tablet) resolveTransaction(ctx context.Context, id string) (engine.TransactionHandle, error) {
	t.txMu.Lock()
	e, ok := t.txs[id]
	if !ok {
		t.txMu.Unlock()
		return nil, &engine.GatewayError{Code: engine.CodeTransactionNotFound, Shard: t.shard,
			Err: fmt.Errorf("tablet: no such transaction %q", id)}
	}
	if time.Now().After(e.deadline) {
		delete(t.txs, id)
		t.txMu.Unlock()
		_ = e.handle.Rollback(ctx)
		t.logger.Warn("transaction expired", zap.String("tx", id))
		return nil, &engine.GatewayError{Code: engine.CodeTransactionExpired, Shard: t.shard,
			Err: fmt.Errorf("tablet: transaction %q expired", id)}
	}
	t.txMu.Unlock()
	return e.handle, nil
}

// forgetTransaction removes a transaction from the registry once it
// reaches a terminal state, so the registry doesn't grow without bound.
func (t *Tablet) forgetTransaction(id string) {
	t.txMu.Lock()
	defer t.txMu.Unlock()
	delete(t.txs, id)
}

// Commit commits and forgets the named transaction.
func (t *Tablet) Commit(ctx context.Context, id string) error {
	h, err := t.resolveTransaction(ctx, id)
	if err != nil {
		return err
	}
	err = h.Commit(ctx)
	t.forgetTransaction(id)
	return err
}

// Rollback rolls back and forgets the named transaction.
func (t *Tablet) Rollback(ctx context.Context, id string) error {
	h, err := t.resolveTransaction(ctx, id)
	if err != nil {
		return err
	}
	err = h.Rollback(ctx)
	t.forgetTransaction(id)
	return err
}

// Prepare prepares the named transaction for two-phase commit, keeping it
// registered so a later CommitPrepared/RollbackPrepared can find it.
func (t *Tablet) Prepare(ctx context.Context, id string) (string, error) {
	h, err := t.resolveTransaction(ctx, id)
	if err != nil {
		return "", err
	}
	return h.Prepare(ctx)
}

// CommitPrepared resolves an in-doubt prepared transaction to committed.
func (t *Tablet) CommitPrepared(ctx context.Context, id, token string) error {
	h, err := t.resolveTransaction(ctx, id)
	if err != nil {
		return err
	}
	err = h.CommitPrepared(ctx, token)
	if err == nil {
		t.forgetTransaction(id)
	}
	return err
}

// RollbackPrepared resolves an in-doubt prepared transaction to aborted.
func (t *Tablet) RollbackPrepared(ctx context.Context, id, token string) error {
	h, err := t.resolveTransaction(ctx, id)
	if err != nil {
		return err
	}
	err = h.RollbackPrepared(ctx, token)
	if err == nil {
		t.forgetTransaction(id)
	}
	return err
}

// SwitchEngine hot-swaps the active adapter for a freshly constructed one,
// refusing to do so while any transaction is open. This is the tablet
// analogue of the teacher's SetState(Migrating) dance: probe, swap, close
// the old adapter, all under the exclusive lock so no query observes a
// half-swapped tablet.
func (t *Tablet) SwitchEngine(next engine.Adapter) error {
	t.txMu.Lock()
	openTxs := len(t.txs)
	t.txMu.Unlock()
	if openTxs > 0 {
		return &engine.GatewayError{Code: engine.CodeTransactionError, Shard: t.shard,
			Err: fmt.Errorf("tablet: cannot switch engine with %d open transactions", openTxs)}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// A trivial transaction is the one probe every adapter answers
	// regardless of schema: Query requires a table name to already exist,
	// which a freshly constructed engine has no reason to have.
	probe, err := next.BeginTransaction(context.Background())
	if err != nil {
		return &engine.GatewayError{Code: engine.CodeConnectionFailed, Shard: t.shard,
			Err: fmt.Errorf("tablet: probe of new engine failed: %w", err)}
	}
	if err := probe.Rollback(context.Background()); err != nil {
		return &engine.GatewayError{Code: engine.CodeConnectionFailed, Shard: t.shard,
			Err: fmt.Errorf("tablet: probe of new engine failed: %w", err)}
	}

	old := t.engine
	t.engine = next
	t.logger.Info("engine switched", zap.String("new_type", string(next.Type())))
	if old != nil {
		if err := old.Close(); err != nil {
			t.logger.Warn("old engine close failed", zap.Error(err))
		}
	}
	return nil
}

// Stats returns a snapshot of operation counters.
func (t *Tablet) Stats() OperationStats {
	return OperationStats{
		Queries:      atomic.LoadUint64(&t.stats.Queries),
		Executes:     atomic.LoadUint64(&t.stats.Executes),
		Transactions: atomic.LoadUint64(&t.stats.Transactions),
		Errors:       atomic.LoadUint64(&t.stats.Errors),
	}
}

// HealthSnapshot returns the current serving state and latency
// percentiles, the payload served at the tablet's health endpoint.
func (t *Tablet) HealthSnapshot() Health {
	p50, p95, p99 := t.percentiles()
	return Health{
		Shard:   t.shard,
		State:   t.State(),
		P50:     p50,
		P95:     p95,
		P99:     p99,
		Queries: atomic.LoadUint64(&t.stats.Queries),
		Errors:  atomic.LoadUint64(&t.stats.Errors),
	}
}

// Close shuts the tablet down: it rolls back every open transaction
// (best-effort, logging failures rather than returning them), clears the
// transaction registry, and closes the active adapter.
func (t *Tablet) Close() error {
	t.SetState(StateNotServing)

	t.txMu.Lock()
	for id, e := range t.txs {
		if err := e.handle.Rollback(context.Background()); err != nil {
			t.logger.Warn("rollback on close failed", zap.String("tx", id), zap.Error(err))
		}
	}
	t.txs = map[string]*txEntry{}
	t.txMu.Unlock()

	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.engine.Close()
}
