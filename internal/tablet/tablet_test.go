package tablet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/vitessgw/internal/engine"
)

func newTestTablet(t *testing.T) *Tablet {
	t.Helper()
	ad := engine.NewPostgresEngine("shard-0")
	tb := New("shard-0", ad)
	ctx := context.Background()
	_, err := tb.Execute(ctx, "CREATE TABLE t (id SERIAL PRIMARY KEY, name TEXT)", nil)
	require.NoError(t, err)
	return tb
}

func TestTabletQueryAndExecute(t *testing.T) {
	tb := newTestTablet(t)
	ctx := context.Background()

	res, err := tb.Execute(ctx, "INSERT INTO t (name) VALUES ($1)", []any{"alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Affected)

	q, err := tb.Query(ctx, "SELECT * FROM t", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, q.RowCount)

	stats := tb.Stats()
	assert.Equal(t, uint64(1), stats.Queries)
	assert.Equal(t, uint64(2), stats.Executes) // CREATE TABLE + INSERT
}

func TestTabletRejectsOperationsWhenNotServing(t *testing.T) {
	tb := newTestTablet(t)
	tb.SetState(StateNotServing)

	_, err := tb.Query(context.Background(), "SELECT * FROM t", nil)
	require.Error(t, err)
	ge, ok := engine.AsGatewayError(err)
	require.True(t, ok)
	assert.Equal(t, engine.CodeNotReady, ge.Code)
}

func TestTabletTransactionLifecycle(t *testing.T) {
	tb := newTestTablet(t)
	ctx := context.Background()

	h, err := tb.BeginTransaction(ctx)
	require.NoError(t, err)

	_, ok := tb.GetTransaction(h.ID())
	assert.True(t, ok)

	require.NoError(t, tb.Commit(ctx, h.ID()))

	_, ok = tb.GetTransaction(h.ID())
	assert.False(t, ok)
}

func TestTabletTwoPhaseCommitViaTablet(t *testing.T) {
	tb := newTestTablet(t)
	ctx := context.Background()

	h, err := tb.BeginTransaction(ctx)
	require.NoError(t, err)

	token, err := tb.Prepare(ctx, h.ID())
	require.NoError(t, err)

	require.NoError(t, tb.CommitPrepared(ctx, h.ID(), token))

	_, ok := tb.GetTransaction(h.ID())
	assert.False(t, ok)
}

func TestTabletTransactionExpiresAfterTimeout(t *testing.T) {
	tb := newTestTablet(t)
	tb.SetTxTimeout(time.Millisecond)
	ctx := context.Background()

	h, err := tb.BeginTransaction(ctx)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	_, ok := tb.GetTransaction(h.ID())
	assert.False(t, ok, "expired transaction should no longer be visible")

	err = tb.Commit(ctx, h.ID())
	require.Error(t, err)
	ge, ok := engine.AsGatewayError(err)
	require.True(t, ok)
	assert.Equal(t, engine.CodeTransactionExpired, ge.Code)
}

func TestTabletSwitchEngineRefusesWithOpenTransactions(t *testing.T) {
	tb := newTestTablet(t)
	ctx := context.Background()

	_, err := tb.BeginTransaction(ctx)
	require.NoError(t, err)

	err = tb.SwitchEngine(engine.NewPostgresEngine("shard-0"))
	assert.Error(t, err)
}

func TestTabletSwitchEngineSwapsCleanly(t *testing.T) {
	tb := newTestTablet(t)
	next := engine.NewPostgresEngine("shard-0")
	require.NoError(t, next.Close()) // closed and never handed to SwitchEngine; the swap below uses a fresh adapter
	require.NoError(t, tb.SwitchEngine(engine.NewPostgresEngine("shard-0")))

	ctx := context.Background()
	_, err := tb.Execute(ctx, "CREATE TABLE t (id SERIAL PRIMARY KEY)", nil)
	require.NoError(t, err)
}

func TestTabletSwitchEngineRejectsFailingProbeAndKeepsOldEngine(t *testing.T) {
	tb := newTestTablet(t)
	ctx := context.Background()

	broken := engine.NewPostgresEngine("shard-0")
	require.NoError(t, broken.Close()) // a closed engine fails every call, including the probe

	err := tb.SwitchEngine(broken)
	require.Error(t, err)
	ge, ok := engine.AsGatewayError(err)
	require.True(t, ok)
	assert.Equal(t, engine.CodeConnectionFailed, ge.Code)

	// the old engine must still be in place and serving
	_, err = tb.Query(ctx, "SELECT * FROM t", nil)
	require.NoError(t, err)
}

func TestTabletCloseRollsBackOpenTransactions(t *testing.T) {
	tb := newTestTablet(t)
	ctx := context.Background()

	h, err := tb.BeginTransaction(ctx)
	require.NoError(t, err)

	require.NoError(t, tb.Close())

	_, ok := tb.GetTransaction(h.ID())
	assert.False(t, ok, "closed tablet should have cleared its transaction registry")
}

func TestTabletHealthSnapshotTracksErrors(t *testing.T) {
	tb := newTestTablet(t)
	ctx := context.Background()

	_, err := tb.Query(ctx, "not a real statement", nil)
	require.Error(t, err)

	h := tb.HealthSnapshot()
	assert.Equal(t, uint64(1), h.Errors)
	assert.Equal(t, StateServing, h.State)
}
