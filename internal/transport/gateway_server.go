package transport

import (
	"context"
	"fmt"

	"github.com/dreamware/vitessgw/internal/engine"
	"github.com/dreamware/vitessgw/internal/gateway"
	"github.com/dreamware/vitessgw/internal/twopc"
	"github.com/dreamware/vitessgw/internal/vschema"
	"github.com/dreamware/vitessgw/internal/wire"
)

// StatusProvider supplies the admin-facing response bodies a Gateway
// itself has no reason to hold: a Gateway's shard map is deliberately
// narrow (gateway.ShardExecutor), so status/schema/vschema reporting is
// assembled by whatever owns the full keyspace configuration — normally
// cmd/vtgate's startup wiring — and handed to the handler as this
// interface.
type StatusProvider interface {
	Status(ctx context.Context) (wire.ClusterStatus, error)
	Schema(ctx context.Context) ([]wire.TableInfo, error)
	VSchema(ctx context.Context) (*vschema.VSchema, error)
}

// GatewayHandler adapts a *gateway.Gateway to the wire protocol's
// keyspace-scoped message types: query, execute, batch, begin, commit,
// rollback, status, health, schema, vschema.
//
// coord may be nil, in which case begin/commit/rollback (and any query or
// execute carrying a txId) are rejected as unsupported — a Gateway built
// without a coordinator only ever runs autocommit statements.
func GatewayHandler(gw *gateway.Gateway, coord *twopc.Coordinator, status StatusProvider) Handler {
	return func(ctx context.Context, req wire.Request) wire.Response {
		switch req.Type {
		case wire.TypeQuery:
			return handleGatewayQuery(ctx, gw, coord, req)
		case wire.TypeExecute:
			return handleGatewayExecute(ctx, gw, coord, req)
		case wire.TypeBatch:
			return handleGatewayBatch(ctx, gw, coord, req)
		case wire.TypeBegin:
			return handleGatewayBegin(coord, req)
		case wire.TypeCommit:
			return handleGatewayCommit(ctx, coord, req)
		case wire.TypeRollback:
			return handleGatewayRollback(ctx, coord, req)
		case wire.TypeStatus:
			return handleGatewayStatus(ctx, status, req)
		case wire.TypeHealth:
			return handleGatewayStatusAsHealth(ctx, status, req)
		case wire.TypeSchema:
			return handleGatewaySchema(ctx, status, req)
		case wire.TypeVSchema:
			return handleGatewayVSchema(ctx, status, req)
		default:
			return errorResponse(req.Header, engine.New(engine.CodeUnsupported, "", fmt.Errorf("gateway: unsupported message type %s", req.Type)))
		}
	}
}

func errNoCoordinator() error {
	return engine.New(engine.CodeUnsupported, "", fmt.Errorf("gateway: distributed transactions are not configured"))
}

// singleTargetShard resolves sql to exactly one shard, the requirement
// for any statement issued within an explicit transaction: a scatter
// across shards inside one statement isn't something a single prepare/
// commit round trip can make atomic on top of.
func singleTargetShard(gw *gateway.Gateway, sql string, params []any) (string, error) {
	plan, err := gw.Plan(sql, params)
	if err != nil {
		return "", err
	}
	if len(plan.Shards) != 1 {
		return "", engine.New(engine.CodeUnsupported, "", fmt.Errorf("gateway: a transaction-scoped statement must target exactly one shard, resolved %d", len(plan.Shards)))
	}
	return plan.Shards[0], nil
}

func handleGatewayQuery(ctx context.Context, gw *gateway.Gateway, coord *twopc.Coordinator, req wire.Request) wire.Response {
	params := paramsFromWire(req.Params)
	if req.TxID == "" {
		res, err := gw.Execute(ctx, req.SQL, params)
		if err != nil {
			return errorResponse(req.Header, err)
		}
		return resultResponse(req.Header, queryResultToResultBody(res))
	}
	if coord == nil {
		return errorResponse(req.Header, errNoCoordinator())
	}
	shard, err := singleTargetShard(gw, req.SQL, params)
	if err != nil {
		return errorResponse(req.Header, err)
	}
	res, err := coord.QueryOn(ctx, req.TxID, shard, req.SQL, params)
	if err != nil {
		return errorResponse(req.Header, err)
	}
	return resultResponse(req.Header, queryResultToResultBody(res))
}

func handleGatewayExecute(ctx context.Context, gw *gateway.Gateway, coord *twopc.Coordinator, req wire.Request) wire.Response {
	params := paramsFromWire(req.Params)
	if req.TxID == "" {
		res, err := gw.Execute(ctx, req.SQL, params)
		if err != nil {
			return errorResponse(req.Header, err)
		}
		return resultResponse(req.Header, wire.ResultBody{Affected: res.RowCount})
	}
	if coord == nil {
		return errorResponse(req.Header, errNoCoordinator())
	}
	shard, err := singleTargetShard(gw, req.SQL, params)
	if err != nil {
		return errorResponse(req.Header, err)
	}
	res, err := coord.ExecuteOn(ctx, req.TxID, shard, req.SQL, params)
	if err != nil {
		return errorResponse(req.Header, err)
	}
	return resultResponse(req.Header, executeResultToResultBody(res))
}

func handleGatewayBatch(ctx context.Context, gw *gateway.Gateway, coord *twopc.Coordinator, req wire.Request) wire.Response {
	results := make([]wire.ResultBody, 0, len(req.Statements))
	for i, stmt := range req.Statements {
		var body wire.ResultBody
		var err error
		if req.TxID == "" {
			var res engine.QueryResult
			res, err = gw.Execute(ctx, stmt, nil)
			body = wire.ResultBody{Affected: res.RowCount}
		} else if coord == nil {
			err = errNoCoordinator()
		} else {
			var shard string
			shard, err = singleTargetShard(gw, stmt, nil)
			if err == nil {
				var res engine.ExecuteResult
				res, err = coord.ExecuteOn(ctx, req.TxID, shard, stmt, nil)
				body = executeResultToResultBody(res)
			}
		}
		if err != nil {
			failedAt := i
			results = append(results, wire.ResultBody{Success: false, Error: err.Error()})
			return resultResponse(req.Header, wire.ResultBody{Results: results, Success: false, FailedAt: &failedAt})
		}
		results = append(results, body)
	}
	return resultResponse(req.Header, wire.ResultBody{Results: results, Success: true})
}

func handleGatewayBegin(coord *twopc.Coordinator, req wire.Request) wire.Response {
	if coord == nil {
		return errorResponse(req.Header, errNoCoordinator())
	}
	d := coord.Begin()
	hdr := req.Header
	hdr.Type = wire.TypeBegin
	return wire.Response{Header: hdr, TxID: d.GTID()}
}

func handleGatewayCommit(ctx context.Context, coord *twopc.Coordinator, req wire.Request) wire.Response {
	if coord == nil {
		return errorResponse(req.Header, errNoCoordinator())
	}
	d, ok := coord.Lookup(req.TxID)
	if !ok {
		return errorResponse(req.Header, engine.New(engine.CodeTransactionNotFound, "", fmt.Errorf("gateway: no such transaction %q", req.TxID)))
	}
	if len(d.Shards()) <= 1 {
		if err := coord.CommitSingleShard(ctx, req.TxID); err != nil {
			return errorResponse(req.Header, err)
		}
		return ackResponse(req.Header)
	}
	result, err := coord.Prepare(ctx, req.TxID)
	if err != nil {
		_ = coord.Abort(ctx, req.TxID)
		return errorResponse(req.Header, err)
	}
	if !result.Success {
		_ = coord.Abort(ctx, req.TxID)
		return errorResponse(req.Header, engine.New(engine.CodeTransactionError, "", fmt.Errorf("gateway: prepare failed for %d of %d shard(s)", len(result.Failed), len(d.Shards()))))
	}
	if err := coord.Commit(ctx, req.TxID); err != nil {
		return errorResponse(req.Header, err)
	}
	return ackResponse(req.Header)
}

func handleGatewayRollback(ctx context.Context, coord *twopc.Coordinator, req wire.Request) wire.Response {
	if coord == nil {
		return errorResponse(req.Header, errNoCoordinator())
	}
	if err := coord.Abort(ctx, req.TxID); err != nil {
		return errorResponse(req.Header, err)
	}
	return ackResponse(req.Header)
}

func handleGatewayStatus(ctx context.Context, status StatusProvider, req wire.Request) wire.Response {
	s, err := status.Status(ctx)
	if err != nil {
		return errorResponse(req.Header, err)
	}
	hdr := req.Header
	hdr.Type = wire.TypeStatus
	return wire.Response{Header: hdr, Status: &s}
}

// handleGatewayStatusAsHealth answers a liveness probe against the
// gateway itself: it's reachable and its status call succeeded. Per-shard
// health comes from each tablet's own /rpc health response, not this one.
func handleGatewayStatusAsHealth(ctx context.Context, status StatusProvider, req wire.Request) wire.Response {
	s, err := status.Status(ctx)
	if err != nil {
		return errorResponse(req.Header, err)
	}
	hdr := req.Header
	hdr.Type = wire.TypeHealth
	return wire.Response{Header: hdr, Health: &wire.ShardHealth{ID: s.Keyspace, Healthy: true, QueryCount: s.TotalQueries, ErrorCount: s.TotalErrors}}
}

func handleGatewaySchema(ctx context.Context, status StatusProvider, req wire.Request) wire.Response {
	tables, err := status.Schema(ctx)
	if err != nil {
		return errorResponse(req.Header, err)
	}
	hdr := req.Header
	hdr.Type = wire.TypeSchema
	return wire.Response{Header: hdr, Tables: tables}
}

func handleGatewayVSchema(ctx context.Context, status StatusProvider, req wire.Request) wire.Response {
	vs, err := status.VSchema(ctx)
	if err != nil {
		return errorResponse(req.Header, err)
	}
	hdr := req.Header
	hdr.Type = wire.TypeVSchema
	return wire.Response{Header: hdr, VSchema: vs}
}
