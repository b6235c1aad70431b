// Package twopc implements the distributed-transaction coordinator: a
// registry of in-flight cross-shard transactions driven through begin,
// per-shard execution, prepare, commit, and abort, with a durable prepare
// log backing crash recovery.
package twopc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/vitessgw/internal/engine"
)

// Phase is a distributed transaction's coordinator-visible lifecycle tag.
type Phase string

const (
	PhaseActive    Phase = "active"
	PhasePrepared  Phase = "prepared"
	PhaseCommitted Phase = "committed"
	PhaseAborted   Phase = "aborted"
	PhaseExpired   Phase = "expired"
)

// ShardParticipant is the per-shard surface a coordinator needs to drive a
// distributed transaction: open a handle, resolve it later by id through
// prepare/commit/rollback, and look it up for recovery. *tablet.Tablet
// satisfies this directly.
type ShardParticipant interface {
	BeginTransaction(ctx context.Context) (engine.TransactionHandle, error)
	GetTransaction(id string) (engine.TransactionHandle, bool)
	Prepare(ctx context.Context, id string) (string, error)
	CommitPrepared(ctx context.Context, id, token string) error
	RollbackPrepared(ctx context.Context, id, token string) error
	Commit(ctx context.Context, id string) error
	Rollback(ctx context.Context, id string) error
}

// participant tracks one shard's handle within a single DistributedTransaction.
type participant struct {
	shard    string
	handle   engine.TransactionHandle
	token    string
	prepared bool
}

// DistributedTransaction is one cross-shard transaction's coordinator-side
// state: its gtid, the participants it has touched so far (in first-touch
// order, for deterministic log replay), and its current phase.
type DistributedTransaction struct {
	mu    sync.Mutex
	gtid  string
	phase Phase

	order        []string // shard names in first-touch order
	participants map[string]*participant
}

// GTID returns the transaction's global identifier.
func (d *DistributedTransaction) GTID() string { return d.gtid }

// Phase returns the transaction's current coordinator-side phase.
func (d *DistributedTransaction) Phase() Phase {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase
}

// Shards returns the participant shard names touched so far, in
// first-touch order.
func (d *DistributedTransaction) Shards() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// PrepareResult summarizes one prepare round.
type PrepareResult struct {
	Success  bool
	Prepared []string
	Failed   map[string]error
}

// newGTID allocates a monotonic-looking, globally unique transaction id.
// The counter component keeps log entries sortable by creation order
// within a single coordinator process; the uuid suffix keeps them unique
// across restarts without a persisted counter.
var gtidCounter uint64
var gtidMu sync.Mutex

func newGTID() string {
	gtidMu.Lock()
	gtidCounter++
	n := gtidCounter
	gtidMu.Unlock()
	return fmt.Sprintf("gtid-%d-%s", n, uuid.NewString())
}

// Coordinator owns the gtid registry and drives every distributed
// transaction's lifecycle against a fixed set of shard participants.
type Coordinator struct {
	shards map[string]ShardParticipant
	log    *PrepareLog
	logger *zap.Logger

	prepareTimeout time.Duration
	commitTimeout  time.Duration
	commitRetries  int

	mu  sync.Mutex
	txs map[string]*DistributedTransaction
}

const (
	defaultPrepareTimeout = 5 * time.Second
	defaultCommitTimeout  = 5 * time.Second
	defaultCommitRetries  = 3
)

// New constructs a Coordinator dispatching to shards, durably logging
// prepare decisions to log.
func New(shards map[string]ShardParticipant, log *PrepareLog) *Coordinator {
	return &Coordinator{
		shards:         shards,
		log:            log,
		logger:         zap.NewNop(),
		prepareTimeout: defaultPrepareTimeout,
		commitTimeout:  defaultCommitTimeout,
		commitRetries:  defaultCommitRetries,
		txs:            map[string]*DistributedTransaction{},
	}
}

// SetLogger installs l for this coordinator's lifecycle logging.
func (c *Coordinator) SetLogger(l *zap.Logger) { c.logger = l }

// SetPrepareTimeout overrides the deadline applied to a full prepare round.
func (c *Coordinator) SetPrepareTimeout(d time.Duration) { c.prepareTimeout = d }

// SetCommitTimeout overrides the per-attempt deadline applied to each
// commitPrepared call.
func (c *Coordinator) SetCommitTimeout(d time.Duration) { c.commitTimeout = d }

// Begin allocates a new distributed transaction with an empty participant
// set and registers it in the gtid registry.
func (c *Coordinator) Begin() *DistributedTransaction {
	d := &DistributedTransaction{
		gtid:         newGTID(),
		phase:        PhaseActive,
		participants: map[string]*participant{},
	}
	c.mu.Lock()
	c.txs[d.gtid] = d
	c.mu.Unlock()
	return d
}

// Lookup returns the distributed transaction registered under gtid.
func (c *Coordinator) Lookup(gtid string) (*DistributedTransaction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.txs[gtid]
	return d, ok
}

func (c *Coordinator) forget(gtid string) {
	c.mu.Lock()
	delete(c.txs, gtid)
	c.mu.Unlock()
}

func (c *Coordinator) participantFor(ctx context.Context, d *DistributedTransaction, shard string) (*participant, error) {
	d.mu.Lock()
	if p, ok := d.participants[shard]; ok {
		d.mu.Unlock()
		return p, nil
	}
	d.mu.Unlock()

	sp, ok := c.shards[shard]
	if !ok {
		return nil, engine.New(engine.CodeKeyspaceNotFound, shard, fmt.Errorf("twopc: no participant registered for shard %q", shard))
	}
	h, err := sp.BeginTransaction(ctx)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.participants[shard]; ok {
		return p, nil // a concurrent executeOn beat us to it
	}
	p := &participant{shard: shard, handle: h}
	d.participants[shard] = p
	d.order = append(d.order, shard)
	return p, nil
}

// ExecuteOn runs sql as a write against shard within gtid's transaction,
// opening a participant handle on first touch.
func (c *Coordinator) ExecuteOn(ctx context.Context, gtid, shard, sql string, params []any) (engine.ExecuteResult, error) {
	d, ok := c.Lookup(gtid)
	if !ok {
		return engine.ExecuteResult{}, engine.New(engine.CodeTransactionNotFound, shard, fmt.Errorf("twopc: no such transaction %q", gtid))
	}
	p, err := c.participantFor(ctx, d, shard)
	if err != nil {
		return engine.ExecuteResult{}, err
	}
	return p.handle.Execute(ctx, sql, params)
}

// QueryOn runs sql as a read against shard within gtid's transaction,
// opening a participant handle on first touch.
func (c *Coordinator) QueryOn(ctx context.Context, gtid, shard, sql string, params []any) (engine.QueryResult, error) {
	d, ok := c.Lookup(gtid)
	if !ok {
		return engine.QueryResult{}, engine.New(engine.CodeTransactionNotFound, shard, fmt.Errorf("twopc: no such transaction %q", gtid))
	}
	p, err := c.participantFor(ctx, d, shard)
	if err != nil {
		return engine.QueryResult{}, err
	}
	return p.handle.Query(ctx, sql, params)
}

// Prepare runs the prepare phase across every participant in parallel.
// The decision is recorded durably only when every participant prepares
// successfully; a coordinator crash before that record lands means
// recovery finds no durable intent and aborts, matching the all-or-
// nothing durability boundary the design calls for.
func (c *Coordinator) Prepare(ctx context.Context, gtid string) (PrepareResult, error) {
	d, ok := c.Lookup(gtid)
	if !ok {
		return PrepareResult{}, engine.New(engine.CodeTransactionNotFound, "", fmt.Errorf("twopc: no such transaction %q", gtid))
	}

	pctx, cancel := context.WithTimeout(ctx, c.prepareTimeout)
	defer cancel()

	shards := d.Shards()
	var mu sync.Mutex
	failed := map[string]error{}
	group, gctx := errgroup.WithContext(pctx)
	for _, shard := range shards {
		shard := shard
		group.Go(func() error {
			d.mu.Lock()
			p := d.participants[shard]
			d.mu.Unlock()
			sp := c.shards[shard]
			token, err := sp.Prepare(gctx, p.handle.ID())
			if err != nil {
				mu.Lock()
				failed[shard] = err
				mu.Unlock()
				c.logger.Warn("prepare failed", zap.String("gtid", gtid), zap.String("shard", shard), zap.Error(err))
				return nil
			}
			d.mu.Lock()
			p.token = token
			p.prepared = true
			d.mu.Unlock()
			return nil
		})
	}
	_ = group.Wait() // per-participant errors are collected into failed, never aborts the round

	result := PrepareResult{Success: len(failed) == 0, Failed: failed}
	for _, shard := range shards {
		d.mu.Lock()
		p := d.participants[shard]
		d.mu.Unlock()
		if p.prepared {
			result.Prepared = append(result.Prepared, shard)
		}
	}

	d.mu.Lock()
	if result.Success {
		d.phase = PhasePrepared
	}
	d.mu.Unlock()

	if result.Success && c.log != nil {
		entry := PrepareLogEntry{GTID: gtid, Phase: PhasePrepared, Participants: c.snapshot(d)}
		if err := c.log.Append(entry); err != nil {
			return result, fmt.Errorf("twopc: durable prepare record failed: %w", err)
		}
	}
	return result, nil
}

func (c *Coordinator) snapshot(d *DistributedTransaction) []PreparedParticipant {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]PreparedParticipant, 0, len(d.order))
	for _, shard := range d.order {
		p := d.participants[shard]
		out = append(out, PreparedParticipant{Shard: shard, TxID: p.handle.ID(), Token: p.token})
	}
	return out
}

// Commit drives every prepared participant to committed, making up to
// commitRetries attempts per commitPrepared call (commitPrepared is
// idempotent, so a retried call after a transient failure is always
// safe). A participant still failing after retries is returned in the
// error but does not stop the others from being driven to completion;
// Recover is the path that eventually resolves it.
func (c *Coordinator) Commit(ctx context.Context, gtid string) error {
	d, ok := c.Lookup(gtid)
	if !ok {
		return engine.New(engine.CodeTransactionNotFound, "", fmt.Errorf("twopc: no such transaction %q", gtid))
	}
	if d.Phase() != PhasePrepared {
		if d.Phase() == PhaseCommitted {
			return nil // idempotent
		}
		return engine.New(engine.CodeTransactionError, "", fmt.Errorf("twopc: transaction %q is not prepared", gtid))
	}

	shards := d.Shards()
	var mu sync.Mutex
	unresolved := map[string]error{}
	group, gctx := errgroup.WithContext(ctx)
	for _, shard := range shards {
		shard := shard
		group.Go(func() error {
			d.mu.Lock()
			p := d.participants[shard]
			d.mu.Unlock()
			if !p.prepared {
				return nil
			}
			sp := c.shards[shard]
			var lastErr error
			for attempt := 0; attempt < c.commitRetries; attempt++ {
				cctx, cancel := context.WithTimeout(gctx, c.commitTimeout)
				err := sp.CommitPrepared(cctx, p.handle.ID(), p.token)
				cancel()
				if err == nil {
					lastErr = nil
					break
				}
				lastErr = err
				c.logger.Warn("commitPrepared retry", zap.String("gtid", gtid), zap.String("shard", shard),
					zap.Int("attempt", attempt+1), zap.Error(err))
			}
			if lastErr != nil {
				mu.Lock()
				unresolved[shard] = lastErr
				mu.Unlock()
			}
			return nil
		})
	}
	_ = group.Wait()

	if len(unresolved) > 0 {
		c.logger.Warn("commit left participants unresolved", zap.String("gtid", gtid), zap.Int("count", len(unresolved)))
		return fmt.Errorf("twopc: commit left %d participant(s) unresolved for %s, pending recovery", len(unresolved), gtid)
	}

	d.mu.Lock()
	d.phase = PhaseCommitted
	d.mu.Unlock()
	if c.log != nil {
		_ = c.log.Append(PrepareLogEntry{GTID: gtid, Phase: PhaseCommitted})
	}
	c.forget(gtid)
	return nil
}

// CommitSingleShard optimizes away the full 2PC protocol for a
// transaction that ended up touching exactly one shard: it commits that
// shard's handle directly rather than running prepare+commitPrepared,
// since there is no cross-shard atomicity to coordinate.
func (c *Coordinator) CommitSingleShard(ctx context.Context, gtid string) error {
	d, ok := c.Lookup(gtid)
	if !ok {
		return engine.New(engine.CodeTransactionNotFound, "", fmt.Errorf("twopc: no such transaction %q", gtid))
	}
	shards := d.Shards()
	if len(shards) > 1 {
		return fmt.Errorf("twopc: CommitSingleShard called with %d participants", len(shards))
	}
	defer c.forget(gtid)
	if len(shards) == 0 {
		d.mu.Lock()
		d.phase = PhaseCommitted
		d.mu.Unlock()
		return nil
	}
	d.mu.Lock()
	p := d.participants[shards[0]]
	d.mu.Unlock()
	if err := p.handle.Commit(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	d.phase = PhaseCommitted
	d.mu.Unlock()
	return nil
}

// Abort rolls back every participant: a plain rollback for one never
// prepared, rollbackPrepared for one that was. Errors are logged but
// never stop the rest of the participants from being rolled back.
func (c *Coordinator) Abort(ctx context.Context, gtid string) error {
	d, ok := c.Lookup(gtid)
	if !ok {
		return engine.New(engine.CodeTransactionNotFound, "", fmt.Errorf("twopc: no such transaction %q", gtid))
	}

	for _, shard := range d.Shards() {
		d.mu.Lock()
		p := d.participants[shard]
		d.mu.Unlock()
		sp, ok := c.shards[shard]
		if !ok {
			continue
		}
		var err error
		if p.prepared {
			err = sp.RollbackPrepared(ctx, p.handle.ID(), p.token)
		} else {
			err = sp.Rollback(ctx, p.handle.ID())
		}
		if err != nil {
			c.logger.Warn("abort participant failed", zap.String("gtid", gtid), zap.String("shard", shard), zap.Error(err))
		}
	}

	d.mu.Lock()
	d.phase = PhaseAborted
	d.mu.Unlock()
	if c.log != nil {
		_ = c.log.Append(PrepareLogEntry{GTID: gtid, Phase: PhaseAborted})
	}
	c.forget(gtid)
	return nil
}

// RecoverResult summarizes one recovery pass over the durable log.
type RecoverResult struct {
	Committed []string
	Aborted   []string
	Pending   []string // awaiting an unreachable participant
}

// Recover scans the durable prepare log for transactions that reached
// PhasePrepared but never a terminal record, then resolves each: if
// every participant is still resolvable (its tablet still reports the
// transaction, prepared), commitPrepared drives it to committed;
// otherwise whatever participants remain are rolled back and the
// transaction is marked aborted. A gtid with a participant whose shard
// is unreachable (not registered, or the tablet no longer knows the
// transaction) is left pending rather than guessed at.
func (c *Coordinator) Recover(ctx context.Context) (RecoverResult, error) {
	var result RecoverResult
	if c.log == nil {
		return result, nil
	}
	entries, err := c.log.ReadAll()
	if err != nil {
		return result, err
	}
	pending := pendingFromLog(entries)

	for gtid, participants := range pending {
		allPrepared := true
		reachable := true
		for _, p := range participants {
			sp, ok := c.shards[p.Shard]
			if !ok {
				reachable = false
				break
			}
			h, ok := sp.GetTransaction(p.TxID)
			if !ok {
				reachable = false
				break
			}
			if h.State() != engine.TxPrepared {
				allPrepared = false
			}
		}

		if !reachable {
			result.Pending = append(result.Pending, gtid)
			continue
		}

		if allPrepared {
			for _, p := range participants {
				sp := c.shards[p.Shard]
				if err := sp.CommitPrepared(ctx, p.TxID, p.Token); err != nil {
					c.logger.Warn("recover: commitPrepared failed", zap.String("gtid", gtid), zap.String("shard", p.Shard), zap.Error(err))
				}
			}
			_ = c.log.Append(PrepareLogEntry{GTID: gtid, Phase: PhaseCommitted})
			result.Committed = append(result.Committed, gtid)
		} else {
			for _, p := range participants {
				sp := c.shards[p.Shard]
				if err := sp.RollbackPrepared(ctx, p.TxID, p.Token); err != nil {
					c.logger.Warn("recover: rollbackPrepared failed", zap.String("gtid", gtid), zap.String("shard", p.Shard), zap.Error(err))
				}
			}
			_ = c.log.Append(PrepareLogEntry{GTID: gtid, Phase: PhaseAborted})
			result.Aborted = append(result.Aborted, gtid)
		}
		c.forget(gtid)
	}
	return result, nil
}
