// Package main implements the tablet service, the per-shard process that
// owns one storage-engine adapter and answers wire requests for it.
//
// Each tablet:
//   - Serves exactly one shard of one keyspace
//   - Wraps a single engine.Adapter (postgres or sqlite, both in-memory)
//   - Answers query/execute/batch/begin/commit/rollback/health over HTTP
//   - Reports its own health and latency percentiles
//
// Configuration:
//   - VTTABLET_SHARD: shard identifier this process serves (required)
//   - VTTABLET_ENGINE: "postgres" or "sqlite" (default "sqlite")
//   - VTTABLET_LISTEN: listen address (default ":9001")
//   - VTTABLET_TX_TIMEOUT: transaction timeout, counted from begin (default "30s")
//
// Example usage:
//
//	VTTABLET_SHARD=shard-0 VTTABLET_ENGINE=postgres VTTABLET_LISTEN=:9001 ./vttablet
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dreamware/vitessgw/internal/engine"
	"github.com/dreamware/vitessgw/internal/tablet"
	"github.com/dreamware/vitessgw/internal/transport"
)

func main() {
	shardName := mustGetenv("VTTABLET_SHARD")
	engineName := getenv("VTTABLET_ENGINE", "sqlite")
	listen := getenv("VTTABLET_LISTEN", ":9001")
	txTimeout := getDuration("VTTABLET_TX_TIMEOUT", 30*time.Second)

	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
	defer logger.Sync()

	adapter, err := newEngine(engineName, shardName)
	if err != nil {
		log.Fatalf("engine: %v", err)
	}

	tb := tablet.New(shardName, adapter)
	tb.SetLogger(logger)
	tb.SetTxTimeout(txTimeout)

	reg := prometheus.NewRegistry()
	reg.MustRegister(tb)

	mux := http.NewServeMux()
	mux.Handle("/rpc", transport.NewServer(transport.TabletHandler(tb)))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if tb.State() != tablet.StateServing {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	httpSrv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("vttablet[%s] serving shard %q via %s on %s", shardName, shardName, engineName, listen)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	tb.SetState(tablet.StateNotServing)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Printf("http server shutdown error: %v", err)
	}
	if err := tb.Close(); err != nil {
		log.Printf("tablet close error: %v", err)
	}
	log.Printf("vttablet[%s] stopped", shardName)
}

func newEngine(name, shard string) (engine.Adapter, error) {
	switch name {
	case "postgres":
		return engine.NewPostgresEngine(shard), nil
	case "sqlite", "":
		return engine.NewSQLiteEngine(shard), nil
	default:
		return nil, &unknownEngineError{name: name}
	}
}

type unknownEngineError struct{ name string }

func (e *unknownEngineError) Error() string {
	return "unknown engine type " + e.name + " (want \"postgres\" or \"sqlite\")"
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustGetenv(k string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	log.Fatalf("missing env %s", k)
	return ""
}

func getDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
