package twopc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/vitessgw/internal/engine"
	"github.com/dreamware/vitessgw/internal/tablet"
)

func newTestShard(t *testing.T, name string) *tablet.Tablet {
	t.Helper()
	ad := engine.NewPostgresEngine(name)
	tb := tablet.New(name, ad)
	_, err := tb.Execute(context.Background(), "CREATE TABLE t (id SERIAL PRIMARY KEY, name TEXT)", nil)
	require.NoError(t, err)
	return tb
}

func newTestLog(t *testing.T) *PrepareLog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prepare.log")
	log, err := OpenPrepareLog(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	return log
}

func newTestCoordinator(t *testing.T, shardNames ...string) (*Coordinator, map[string]*tablet.Tablet) {
	t.Helper()
	shards := map[string]ShardParticipant{}
	tablets := map[string]*tablet.Tablet{}
	for _, name := range shardNames {
		tb := newTestShard(t, name)
		shards[name] = tb
		tablets[name] = tb
	}
	return New(shards, newTestLog(t)), tablets
}

func TestCoordinatorTwoShardCommitSucceeds(t *testing.T) {
	c, tablets := newTestCoordinator(t, "-80", "80-")
	ctx := context.Background()

	d := c.Begin()
	_, err := c.ExecuteOn(ctx, d.GTID(), "-80", "INSERT INTO t (name) VALUES ($1)", []any{"alice"})
	require.NoError(t, err)
	_, err = c.ExecuteOn(ctx, d.GTID(), "80-", "INSERT INTO t (name) VALUES ($1)", []any{"bob"})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"-80", "80-"}, d.Shards())

	res, err := c.Prepare(ctx, d.GTID())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, res.Prepared, 2)

	require.NoError(t, c.Commit(ctx, d.GTID()))

	for _, name := range []string{"-80", "80-"} {
		q, err := tablets[name].Query(ctx, "SELECT * FROM t", nil)
		require.NoError(t, err)
		assert.Equal(t, 1, q.RowCount)
	}

	_, ok := c.Lookup(d.GTID())
	assert.False(t, ok, "committed transaction should be forgotten")
}

func TestCoordinatorBodyErrorAbortsAllParticipants(t *testing.T) {
	c, tablets := newTestCoordinator(t, "-80", "80-")
	ctx := context.Background()

	d := c.Begin()
	_, err := c.ExecuteOn(ctx, d.GTID(), "-80", "INSERT INTO t (name) VALUES ($1)", []any{"alice"})
	require.NoError(t, err)
	_, err = c.ExecuteOn(ctx, d.GTID(), "80-", "INSERT INTO t (name) VALUES ($1)", []any{"bob"})
	require.NoError(t, err)

	require.NoError(t, c.Abort(ctx, d.GTID()))

	for _, name := range []string{"-80", "80-"} {
		q, err := tablets[name].Query(ctx, "SELECT * FROM t", nil)
		require.NoError(t, err)
		assert.Equal(t, 0, q.RowCount, "aborted transaction must leave no rows")
	}
}

func TestCoordinatorSingleShardSkipsTwoPhaseCommit(t *testing.T) {
	c, tablets := newTestCoordinator(t, "-80", "80-")
	ctx := context.Background()

	d := c.Begin()
	_, err := c.ExecuteOn(ctx, d.GTID(), "-80", "INSERT INTO t (name) VALUES ($1)", []any{"alice"})
	require.NoError(t, err)

	require.NoError(t, c.CommitSingleShard(ctx, d.GTID()))

	q, err := tablets["-80"].Query(ctx, "SELECT * FROM t", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, q.RowCount)
}

func TestCoordinatorUnreachableShardFailsPrepare(t *testing.T) {
	c, _ := newTestCoordinator(t, "-80")
	ctx := context.Background()

	d := c.Begin()
	_, err := c.ExecuteOn(ctx, d.GTID(), "nonexistent-shard", "INSERT INTO t (name) VALUES ($1)", []any{"x"})
	require.Error(t, err)
	ge, ok := engine.AsGatewayError(err)
	require.True(t, ok)
	assert.Equal(t, engine.CodeKeyspaceNotFound, ge.Code)
}

func TestCoordinatorRecoverCommitsStillPreparedParticipants(t *testing.T) {
	shards := map[string]ShardParticipant{}
	tablets := map[string]*tablet.Tablet{}
	for _, name := range []string{"-80", "80-"} {
		tb := newTestShard(t, name)
		shards[name] = tb
		tablets[name] = tb
	}
	log := newTestLog(t)
	ctx := context.Background()

	c := New(shards, log)
	d := c.Begin()
	_, err := c.ExecuteOn(ctx, d.GTID(), "-80", "INSERT INTO t (name) VALUES ($1)", []any{"alice"})
	require.NoError(t, err)
	_, err = c.ExecuteOn(ctx, d.GTID(), "80-", "INSERT INTO t (name) VALUES ($1)", []any{"bob"})
	require.NoError(t, err)

	res, err := c.Prepare(ctx, d.GTID())
	require.NoError(t, err)
	require.True(t, res.Success)

	// Simulate a coordinator crash right after the durable prepare record:
	// a fresh Coordinator sharing the same log and tablets (which still
	// hold their prepared handles in memory) must finish the transaction.
	c2 := New(shards, log)
	result, err := c2.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{d.GTID()}, result.Committed)
	assert.Empty(t, result.Aborted)
	assert.Empty(t, result.Pending)

	for _, name := range []string{"-80", "80-"} {
		q, err := tablets[name].Query(ctx, "SELECT * FROM t", nil)
		require.NoError(t, err)
		assert.Equal(t, 1, q.RowCount)
	}
}

func TestCoordinatorRecoverAbortsWhenAParticipantNeverPrepared(t *testing.T) {
	shards := map[string]ShardParticipant{}
	for _, name := range []string{"-80", "80-"} {
		shards[name] = newTestShard(t, name)
	}
	path := filepath.Join(t.TempDir(), "prepare.log")

	// Hand-write a prepare log entry whose second participant's txId was
	// never actually prepared on that tablet, modeling a coordinator that
	// crashed mid prepare-round after durably recording an optimistic
	// intent it should not have.
	log, err := OpenPrepareLog(path)
	require.NoError(t, err)
	require.NoError(t, log.Append(PrepareLogEntry{
		GTID:  "gtid-fake-1",
		Phase: PhasePrepared,
		Participants: []PreparedParticipant{
			{Shard: "-80", TxID: "bogus-tx-id", Token: "bogus-token"},
			{Shard: "80-", TxID: "bogus-tx-id-2", Token: "bogus-token-2"},
		},
	}))
	require.NoError(t, log.Close())

	log2, err := OpenPrepareLog(path)
	require.NoError(t, err)
	defer log2.Close()

	c := New(shards, log2)
	result, err := c.Recover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Committed)
	assert.Empty(t, result.Aborted)
	assert.Equal(t, []string{"gtid-fake-1"}, result.Pending, "unresolvable txId must stay pending rather than guessed at")
}

func TestPrepareLogAppendAndReadAllRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prepare.log")
	log, err := OpenPrepareLog(path)
	require.NoError(t, err)
	defer log.Close()

	require.NoError(t, log.Append(PrepareLogEntry{GTID: "gtid-1", Phase: PhasePrepared, Participants: []PreparedParticipant{{Shard: "-80", TxID: "tx-1", Token: "tok-1"}}}))
	require.NoError(t, log.Append(PrepareLogEntry{GTID: "gtid-1", Phase: PhaseCommitted}))

	entries, err := log.ReadAll()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, PhasePrepared, entries[0].Phase)
	assert.Equal(t, PhaseCommitted, entries[1].Phase)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
