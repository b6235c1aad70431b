package transport

import (
	"context"
	"fmt"

	"github.com/dreamware/vitessgw/internal/engine"
	"github.com/dreamware/vitessgw/internal/tablet"
	"github.com/dreamware/vitessgw/internal/wire"
)

// TabletHandler adapts a *tablet.Tablet to the wire protocol's
// shard-scoped message types. Non-shard-scoped query/execute/batch codes
// are served identically to their shard-* counterparts, since a tablet
// only ever answers for its own shard.
func TabletHandler(tb *tablet.Tablet) Handler {
	return func(ctx context.Context, req wire.Request) wire.Response {
		switch req.Type {
		case wire.TypeQuery, wire.TypeShardQuery:
			return handleTabletQuery(ctx, tb, req)
		case wire.TypeExecute, wire.TypeShardExecute:
			return handleTabletExecute(ctx, tb, req)
		case wire.TypeBatch, wire.TypeShardBatch:
			return handleTabletBatch(ctx, tb, req)
		case wire.TypeBegin:
			return handleTabletBegin(ctx, tb, req)
		case wire.TypeCommit:
			return handleTabletCommit(ctx, tb, req)
		case wire.TypeRollback:
			return handleTabletRollback(ctx, tb, req)
		case wire.TypeHealth:
			return handleTabletHealth(tb, req)
		default:
			return errorResponse(req.Header, engine.New(engine.CodeUnsupported, tb.Shard(), fmt.Errorf("tablet: unsupported message type %s", req.Type)))
		}
	}
}

func handleTabletQuery(ctx context.Context, tb *tablet.Tablet, req wire.Request) wire.Response {
	params := paramsFromWire(req.Params)
	var res engine.QueryResult
	var err error
	if req.TxID != "" {
		h, ok := tb.GetTransaction(req.TxID)
		if !ok {
			return errorResponse(req.Header, engine.New(engine.CodeTransactionNotFound, tb.Shard(), fmt.Errorf("tablet: no such transaction %q", req.TxID)))
		}
		res, err = h.Query(ctx, req.SQL, params)
	} else {
		res, err = tb.Query(ctx, req.SQL, params)
	}
	if err != nil {
		return errorResponse(req.Header, err)
	}
	return resultResponse(req.Header, queryResultToResultBody(res))
}

func handleTabletExecute(ctx context.Context, tb *tablet.Tablet, req wire.Request) wire.Response {
	params := paramsFromWire(req.Params)
	var res engine.ExecuteResult
	var err error
	if req.TxID != "" {
		h, ok := tb.GetTransaction(req.TxID)
		if !ok {
			return errorResponse(req.Header, engine.New(engine.CodeTransactionNotFound, tb.Shard(), fmt.Errorf("tablet: no such transaction %q", req.TxID)))
		}
		res, err = h.Execute(ctx, req.SQL, params)
	} else {
		res, err = tb.Execute(ctx, req.SQL, params)
	}
	if err != nil {
		return errorResponse(req.Header, err)
	}
	return resultResponse(req.Header, executeResultToResultBody(res))
}

// handleTabletBatch runs each statement in order and stops at the first
// failure, reporting failedAt per the batch result shape; statements
// already applied before the failure are not rolled back (the batch
// request carries no transaction id to undo them within).
func handleTabletBatch(ctx context.Context, tb *tablet.Tablet, req wire.Request) wire.Response {
	results := make([]wire.ResultBody, 0, len(req.Statements))
	for i, stmt := range req.Statements {
		res, err := tb.Execute(ctx, stmt, nil)
		if err != nil {
			failedAt := i
			results = append(results, wire.ResultBody{Success: false, Error: err.Error()})
			return resultResponse(req.Header, wire.ResultBody{Results: results, Success: false, FailedAt: &failedAt})
		}
		results = append(results, executeResultToResultBody(res))
	}
	return resultResponse(req.Header, wire.ResultBody{Results: results, Success: true})
}

func handleTabletBegin(ctx context.Context, tb *tablet.Tablet, req wire.Request) wire.Response {
	h, err := tb.BeginTransaction(ctx)
	if err != nil {
		return errorResponse(req.Header, err)
	}
	hdr := req.Header
	hdr.Type = wire.TypeBegin
	return wire.Response{Header: hdr, TxID: h.ID(), Shards: []string{tb.Shard()}}
}

func handleTabletCommit(ctx context.Context, tb *tablet.Tablet, req wire.Request) wire.Response {
	if err := tb.Commit(ctx, req.TxID); err != nil {
		return errorResponse(req.Header, err)
	}
	return ackResponse(req.Header)
}

func handleTabletRollback(ctx context.Context, tb *tablet.Tablet, req wire.Request) wire.Response {
	if err := tb.Rollback(ctx, req.TxID); err != nil {
		return errorResponse(req.Header, err)
	}
	return ackResponse(req.Header)
}

func handleTabletHealth(tb *tablet.Tablet, req wire.Request) wire.Response {
	snap := tb.HealthSnapshot()
	hdr := req.Header
	hdr.Type = wire.TypeHealth
	return wire.Response{Header: hdr, Health: &wire.ShardHealth{
		ID:         snap.Shard,
		Healthy:    snap.State == tablet.StateServing,
		Engine:     string(tb.EngineType()),
		QueryCount: int64(snap.Queries),
		ErrorCount: int64(snap.Errors),
		Latency:    &wire.Latency{P50: snap.P50.Seconds(), P95: snap.P95.Seconds(), P99: snap.P99.Seconds()},
	}}
}
