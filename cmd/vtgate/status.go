package main

import (
	"context"
	"fmt"

	"github.com/dreamware/vitessgw/internal/engine"
	"github.com/dreamware/vitessgw/internal/tablet"
	"github.com/dreamware/vitessgw/internal/transport"
	"github.com/dreamware/vitessgw/internal/vschema"
	"github.com/dreamware/vitessgw/internal/wire"
)

// shardHealthSource reports one shard's health, regardless of whether the
// shard is served in-process or over the wire.
type shardHealthSource interface {
	Health(ctx context.Context) (wire.ShardHealth, error)
}

type localHealthSource struct{ tb *tablet.Tablet }

func (l localHealthSource) Health(ctx context.Context) (wire.ShardHealth, error) {
	snap := l.tb.HealthSnapshot()
	return wire.ShardHealth{
		ID:         snap.Shard,
		Healthy:    snap.State == tablet.StateServing,
		Engine:     string(l.tb.EngineType()),
		QueryCount: int64(snap.Queries),
		ErrorCount: int64(snap.Errors),
		Latency:    &wire.Latency{P50: snap.P50.Seconds(), P95: snap.P95.Seconds(), P99: snap.P99.Seconds()},
	}, nil
}

type remoteHealthSource struct {
	shard  string
	client *transport.Client
}

func (r remoteHealthSource) Health(ctx context.Context) (wire.ShardHealth, error) {
	resp, err := r.client.Send(ctx, wire.Request{Header: wire.NewHeader(wire.TypeHealth, 0), Shard: r.shard})
	if err != nil {
		return wire.ShardHealth{}, err
	}
	if resp.Health == nil {
		return wire.ShardHealth{}, engine.New(engine.CodeConnectionFailed, r.shard, fmt.Errorf("vtgate: health response from %q missing health body", r.shard))
	}
	return *resp.Health, nil
}

// keyspaceStatus assembles the status/schema/vschema responses a Gateway
// itself is deliberately too narrow to hold, from the configuration this
// process was started with.
type keyspaceStatus struct {
	keyspace string
	vs       *vschema.VSchema
	engine   string
	shards   map[string]shardHealthSource
}

func (k *keyspaceStatus) Status(ctx context.Context) (wire.ClusterStatus, error) {
	names := k.vs.GetShards(k.keyspace)
	out := wire.ClusterStatus{Keyspace: k.keyspace, ShardCount: len(names), Engine: k.engine}
	for _, name := range names {
		src, ok := k.shards[name]
		if !ok {
			out.Shards = append(out.Shards, wire.ShardHealth{ID: name, Healthy: false})
			continue
		}
		h, err := src.Health(ctx)
		if err != nil {
			out.Shards = append(out.Shards, wire.ShardHealth{ID: name, Healthy: false})
			continue
		}
		out.Shards = append(out.Shards, h)
		out.TotalQueries += h.QueryCount
		out.TotalErrors += h.ErrorCount
	}
	return out, nil
}

func (k *keyspaceStatus) Schema(ctx context.Context) ([]wire.TableInfo, error) {
	kv, ok := k.vs.Keyspaces[k.keyspace]
	if !ok {
		return nil, nil
	}
	tables := make([]wire.TableInfo, 0, len(kv.Tables))
	for name, tbl := range kv.Tables {
		seen := map[string]bool{}
		var cols []wire.ColumnInfo
		for _, cv := range tbl.ColumnVindexes {
			for _, c := range cv.Columns {
				if seen[c] {
					continue
				}
				seen[c] = true
				cols = append(cols, wire.ColumnInfo{Name: c, Type: "unknown"})
			}
		}
		tables = append(tables, wire.TableInfo{Name: name, Kind: "table", Columns: cols})
	}
	return tables, nil
}

func (k *keyspaceStatus) VSchema(ctx context.Context) (*vschema.VSchema, error) {
	return k.vs, nil
}

var _ transport.StatusProvider = (*keyspaceStatus)(nil)
