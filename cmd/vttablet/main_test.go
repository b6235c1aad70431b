package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/vitessgw/internal/engine"
	"github.com/dreamware/vitessgw/internal/tablet"
	"github.com/dreamware/vitessgw/internal/transport"
	"github.com/dreamware/vitessgw/internal/wire"
)

func TestGetenvReturnsDefaultWhenUnset(t *testing.T) {
	os.Unsetenv("VTTABLET_TEST_VAR")
	assert.Equal(t, "fallback", getenv("VTTABLET_TEST_VAR", "fallback"))

	os.Setenv("VTTABLET_TEST_VAR", "set")
	defer os.Unsetenv("VTTABLET_TEST_VAR")
	assert.Equal(t, "set", getenv("VTTABLET_TEST_VAR", "fallback"))
}

func TestGetDurationFallsBackOnMissingOrMalformed(t *testing.T) {
	os.Unsetenv("VTTABLET_TEST_DUR")
	assert.Equal(t, 30*time.Second, getDuration("VTTABLET_TEST_DUR", 30*time.Second))

	os.Setenv("VTTABLET_TEST_DUR", "not-a-duration")
	defer os.Unsetenv("VTTABLET_TEST_DUR")
	assert.Equal(t, 30*time.Second, getDuration("VTTABLET_TEST_DUR", 30*time.Second))

	os.Setenv("VTTABLET_TEST_DUR", "5s")
	assert.Equal(t, 5*time.Second, getDuration("VTTABLET_TEST_DUR", 30*time.Second))
}

func TestNewEngineSelectsAdapterByName(t *testing.T) {
	pg, err := newEngine("postgres", "shard-0")
	require.NoError(t, err)
	assert.Equal(t, engine.EnginePostgres, pg.Type())

	lite, err := newEngine("", "shard-0")
	require.NoError(t, err)
	assert.Equal(t, engine.EngineSQLite, lite.Type())

	_, err = newEngine("oracle", "shard-0")
	assert.Error(t, err)
}

func TestWiredMuxServesRPCAndHealthz(t *testing.T) {
	tb := tablet.New("shard-0", engine.NewSQLiteEngine("shard-0"))
	ctx := context.Background()
	_, err := tb.Execute(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY)", nil)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.Handle("/rpc", transport.NewServer(transport.TabletHandler(tb)))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if tb.State() != tablet.StateServing {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req := wire.Request{Header: wire.NewHeader(wire.TypeQuery, 0), SQL: "SELECT id FROM t"}
	body, err := wire.SerializeRequest(req)
	require.NoError(t, err)

	rpcResp, err := http.Post(srv.URL+"/rpc", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer rpcResp.Body.Close()
	assert.Equal(t, http.StatusOK, rpcResp.StatusCode)

	var out wire.Response
	require.NoError(t, json.NewDecoder(rpcResp.Body).Decode(&out))
	require.NotNil(t, out.Result)
	assert.Equal(t, 0, out.Result.RowCount)

	tb.SetState(tablet.StateNotServing)
	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
