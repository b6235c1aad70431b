// Package main implements the gateway service: the keyspace-wide entry
// point that parses a declarative VSchema, routes incoming statements to
// shards, scatters and aggregates their results, and optionally drives
// cross-shard transactions through a two-phase-commit coordinator.
//
// Two deployment modes are supported, chosen by VTGATE_MODE:
//
//   - "embedded" (default): the gateway owns its shards' tablets directly,
//     in the same process. Every shard is a genuine engine.Adapter, so
//     cross-shard transactions work end to end through an in-process
//     two-phase-commit coordinator.
//   - "remote": the gateway reaches each shard's tablet over the wire via
//     VTGATE_TABLETS (a comma-separated shard=http://host:port list). This
//     is the multi-process deployment, but it only serves autocommit
//     statements — a wire-connected tablet has no prepare/commit-prepared
//     message to drive a distributed transaction with, so no coordinator
//     is started in this mode.
//
// Configuration:
//   - VTGATE_KEYSPACE: keyspace name this gateway serves (required)
//   - VTGATE_VSCHEMA_FILE: path to the keyspace's VSchema JSON (required)
//   - VTGATE_MODE: "embedded" or "remote" (default "embedded")
//   - VTGATE_ENGINE: engine for embedded-mode shards, "postgres" or "sqlite" (default "sqlite")
//   - VTGATE_TABLETS: shard=addr pairs for remote mode, e.g. "-80=http://t1:9001,80-=http://t2:9001"
//   - VTGATE_PREPARE_LOG: path to the durable prepare log in embedded mode (default "./vtgate-prepare.log")
//   - VTGATE_LISTEN: listen address (default ":9000")
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/vitessgw/internal/engine"
	"github.com/dreamware/vitessgw/internal/gateway"
	"github.com/dreamware/vitessgw/internal/tablet"
	"github.com/dreamware/vitessgw/internal/transport"
	"github.com/dreamware/vitessgw/internal/twopc"
	"github.com/dreamware/vitessgw/internal/vschema"
)

func main() {
	keyspace := mustGetenv("VTGATE_KEYSPACE")
	vschemaPath := mustGetenv("VTGATE_VSCHEMA_FILE")
	mode := getenv("VTGATE_MODE", "embedded")
	listen := getenv("VTGATE_LISTEN", ":9000")
	engineName := getenv("VTGATE_ENGINE", "sqlite")

	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
	defer logger.Sync()

	raw, err := os.ReadFile(vschemaPath)
	if err != nil {
		log.Fatalf("read vschema: %v", err)
	}
	vs, err := vschema.Parse(raw)
	if err != nil {
		log.Fatalf("parse vschema: %v", err)
	}
	if result := vschema.Validate(vs); !result.Valid {
		log.Fatalf("invalid vschema: %v", result.Errors)
	}

	router := gateway.NewRouter(keyspace, vs)
	shardNames := vs.GetShards(keyspace)

	var closers []func() error
	var coord *twopc.Coordinator
	shards := make(map[string]gateway.ShardExecutor, len(shardNames))
	healthSources := make(map[string]shardHealthSource, len(shardNames))

	switch mode {
	case "embedded":
		participants := make(map[string]twopc.ShardParticipant, len(shardNames))
		for _, name := range shardNames {
			adapter, err := newEngine(engineName, name)
			if err != nil {
				log.Fatalf("engine for shard %q: %v", name, err)
			}
			tb := tablet.New(name, adapter)
			tb.SetLogger(logger)
			shards[name] = tb
			participants[name] = tb
			healthSources[name] = localHealthSource{tb: tb}
			closers = append(closers, tb.Close)
		}
		logPath := getenv("VTGATE_PREPARE_LOG", "./vtgate-prepare.log")
		prepLog, err := twopc.OpenPrepareLog(logPath)
		if err != nil {
			log.Fatalf("open prepare log: %v", err)
		}
		coord = twopc.New(participants, prepLog)
		coord.SetLogger(logger)
		if _, err := coord.Recover(context.Background()); err != nil {
			log.Printf("prepare log recovery: %v", err)
		}
	case "remote":
		addrs, err := parseTabletAddrs(getenv("VTGATE_TABLETS", ""))
		if err != nil {
			log.Fatalf("VTGATE_TABLETS: %v", err)
		}
		for _, name := range shardNames {
			addr, ok := addrs[name]
			if !ok {
				log.Fatalf("no tablet address configured for shard %q", name)
			}
			client := transport.NewClient(addr)
			client.SetLogger(logger)
			rt := transport.NewRemoteTablet(name, client)
			shards[name] = rt
			healthSources[name] = remoteHealthSource{shard: name, client: client}
		}
	default:
		log.Fatalf("unknown VTGATE_MODE %q (want \"embedded\" or \"remote\")", mode)
	}

	gw := gateway.New(router, shards)
	gw.SetLogger(logger)
	if coord != nil {
		gw.SetCoordinator(coord)
	}

	status := &keyspaceStatus{keyspace: keyspace, vs: vs, engine: engineName, shards: healthSources}

	mux := http.NewServeMux()
	mux.Handle("/rpc", transport.NewServer(transport.GatewayHandler(gw, coord, status)))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	httpSrv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("vtgate[%s] mode=%s serving %d shard(s) on %s", keyspace, mode, len(shardNames), listen)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Printf("http server shutdown error: %v", err)
	}
	for _, close := range closers {
		if err := close(); err != nil {
			log.Printf("shard close error: %v", err)
		}
	}
	log.Printf("vtgate[%s] stopped", keyspace)
}

func newEngine(name, shard string) (engine.Adapter, error) {
	switch name {
	case "postgres":
		return engine.NewPostgresEngine(shard), nil
	case "sqlite", "":
		return engine.NewSQLiteEngine(shard), nil
	default:
		return nil, fmt.Errorf("unknown engine type %q (want \"postgres\" or \"sqlite\")", name)
	}
}

// parseTabletAddrs parses a "shard=addr,shard=addr" list into a map.
func parseTabletAddrs(spec string) (map[string]string, error) {
	out := map[string]string{}
	if spec == "" {
		return out, nil
	}
	for _, pair := range strings.Split(spec, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 || kv[0] == "" || kv[1] == "" {
			return nil, fmt.Errorf("malformed shard=addr pair %q", pair)
		}
		out[kv[0]] = kv[1]
	}
	return out, nil
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
