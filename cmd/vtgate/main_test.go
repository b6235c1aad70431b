package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/vitessgw/internal/engine"
	"github.com/dreamware/vitessgw/internal/gateway"
	"github.com/dreamware/vitessgw/internal/tablet"
	"github.com/dreamware/vitessgw/internal/transport"
	"github.com/dreamware/vitessgw/internal/vschema"
	"github.com/dreamware/vitessgw/internal/wire"
)

func TestParseTabletAddrs(t *testing.T) {
	out, err := parseTabletAddrs("-80=http://a:9001,80-=http://b:9001")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"-80": "http://a:9001", "80-": "http://b:9001"}, out)

	out, err = parseTabletAddrs("")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = parseTabletAddrs("justashardname")
	assert.Error(t, err)

	_, err = parseTabletAddrs("shard=")
	assert.Error(t, err)
}

func TestNewEngineSelectsAdapterByName(t *testing.T) {
	pg, err := newEngine("postgres", "-80")
	require.NoError(t, err)
	assert.Equal(t, engine.EnginePostgres, pg.Type())

	lite, err := newEngine("sqlite", "-80")
	require.NoError(t, err)
	assert.Equal(t, engine.EngineSQLite, lite.Type())

	_, err = newEngine("mongodb", "-80")
	assert.Error(t, err)
}

// buildTestKeyspace wires one unsharded keyspace backed by a single
// in-memory tablet, the minimal configuration an embedded-mode gateway
// needs to answer a query over the wire.
func buildTestKeyspace(t *testing.T) (*gateway.Gateway, *keyspaceStatus) {
	t.Helper()
	vs := vschema.NewBuilder().Keyspace("accounts", false).Build()

	tb := tablet.New("-", engine.NewSQLiteEngine("-"))
	ctx := context.Background()
	_, err := tb.Execute(ctx, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)", nil)
	require.NoError(t, err)
	_, err = tb.Execute(ctx, "INSERT INTO users (id, name) VALUES (1, 'alice')", nil)
	require.NoError(t, err)

	router := gateway.NewRouter("accounts", vs)
	gw := gateway.New(router, map[string]gateway.ShardExecutor{"-": tb})

	status := &keyspaceStatus{
		keyspace: "accounts",
		vs:       vs,
		engine:   "sqlite",
		shards:   map[string]shardHealthSource{"-": localHealthSource{tb: tb}},
	}
	return gw, status
}

func TestWiredGatewayServesQueryAndStatusOverRPC(t *testing.T) {
	gw, status := buildTestKeyspace(t)

	mux := http.NewServeMux()
	mux.Handle("/rpc", transport.NewServer(transport.GatewayHandler(gw, nil, status)))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	queryReq := wire.Request{Header: wire.NewHeader(wire.TypeQuery, 0), SQL: "SELECT id, name FROM users"}
	body, err := wire.SerializeRequest(queryReq)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/rpc", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out wire.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotNil(t, out.Result)
	require.Len(t, out.Result.Rows, 1)
	assert.Equal(t, "alice", out.Result.Rows[0]["name"].Str)

	statusReq := wire.Request{Header: wire.NewHeader(wire.TypeStatus, 0)}
	body, err = wire.SerializeRequest(statusReq)
	require.NoError(t, err)

	resp, err = http.Post(srv.URL+"/rpc", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotNil(t, out.Status)
	assert.Equal(t, "accounts", out.Status.Keyspace)
	assert.Equal(t, 1, out.Status.ShardCount)
}

func TestWiredGatewayRejectsTransactionWithoutCoordinator(t *testing.T) {
	gw, status := buildTestKeyspace(t)

	mux := http.NewServeMux()
	mux.Handle("/rpc", transport.NewServer(transport.GatewayHandler(gw, nil, status)))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	beginReq := wire.Request{Header: wire.NewHeader(wire.TypeBegin, 0)}
	body, err := wire.SerializeRequest(beginReq)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/rpc", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out wire.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotNil(t, out.Error)
	assert.Equal(t, string(engine.CodeUnsupported), out.Error.Code)
}
