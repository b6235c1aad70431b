package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresEngineInsertAndQuery(t *testing.T) {
	ctx := context.Background()
	e := NewPostgresEngine("shard-0")
	_, err := e.Execute(ctx, "CREATE TABLE users (id SERIAL PRIMARY KEY, email TEXT UNIQUE NOT NULL)", nil)
	require.NoError(t, err)

	res, err := e.Execute(ctx, "INSERT INTO users (email) VALUES ($1)", []any{"a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Affected)

	q, err := e.Query(ctx, "SELECT * FROM users", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, q.RowCount)
}

func TestPostgresEngineUniqueViolation(t *testing.T) {
	ctx := context.Background()
	e := NewPostgresEngine("shard-0")
	_, err := e.Execute(ctx, "CREATE TABLE users (id SERIAL PRIMARY KEY, email TEXT UNIQUE)", nil)
	require.NoError(t, err)
	_, err = e.Execute(ctx, "INSERT INTO users (email) VALUES ($1)", []any{"dup@example.com"})
	require.NoError(t, err)

	_, err = e.Execute(ctx, "INSERT INTO users (email) VALUES ($1)", []any{"dup@example.com"})
	require.Error(t, err)
	ge, ok := AsGatewayError(err)
	require.True(t, ok)
	assert.Equal(t, CodeConstraintViolation, ge.Code)
	assert.Equal(t, ConstraintUnique, ge.Constraint)
}

func TestSQLiteEngineTranslatesDialect(t *testing.T) {
	ctx := context.Background()
	e := NewSQLiteEngine("shard-0")
	_, err := e.Execute(ctx, "CREATE TABLE users (id SERIAL PRIMARY KEY, email VARCHAR(255) NOT NULL)", nil)
	require.NoError(t, err)

	_, err = e.Execute(ctx, "INSERT INTO users (email) VALUES ($1)", []any{"a@example.com"})
	require.NoError(t, err)
}

func TestSQLiteEngineNotNullViolation(t *testing.T) {
	ctx := context.Background()
	e := NewSQLiteEngine("shard-0")
	_, err := e.Execute(ctx, "CREATE TABLE users (id SERIAL PRIMARY KEY, email TEXT NOT NULL)", nil)
	require.NoError(t, err)

	_, err = e.Execute(ctx, "INSERT INTO users (email) VALUES ($1)", []any{nil})
	require.Error(t, err)
	ge, ok := AsGatewayError(err)
	require.True(t, ok)
	assert.Equal(t, ConstraintNotNull, ge.Constraint)
}

func TestTransactionHandleLifecycle(t *testing.T) {
	ctx := context.Background()
	e := NewPostgresEngine("shard-0")
	_, err := e.Execute(ctx, "CREATE TABLE t (id SERIAL PRIMARY KEY)", nil)
	require.NoError(t, err)

	h, err := e.BeginTransaction(ctx)
	require.NoError(t, err)
	assert.Equal(t, TxActive, h.State())

	token, err := h.Prepare(ctx)
	require.NoError(t, err)
	assert.Equal(t, TxPrepared, h.State())

	require.NoError(t, h.CommitPrepared(ctx, token))
	require.NoError(t, h.CommitPrepared(ctx, token)) // idempotent
	assert.Equal(t, TxCommitted, h.State())
}

func TestTransactionHandleRollbackPreparedIdempotent(t *testing.T) {
	ctx := context.Background()
	e := NewPostgresEngine("shard-0")
	h, err := e.BeginTransaction(ctx)
	require.NoError(t, err)
	token, err := h.Prepare(ctx)
	require.NoError(t, err)
	require.NoError(t, h.RollbackPrepared(ctx, token))
	require.NoError(t, h.RollbackPrepared(ctx, token))
}

func TestTransactionHandleCrossingStatesFails(t *testing.T) {
	ctx := context.Background()
	e := NewPostgresEngine("shard-0")
	h, err := e.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, h.Rollback(ctx))
	err = h.Commit(ctx)
	assert.Error(t, err)
}
