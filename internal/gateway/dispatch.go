package gateway

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/vitessgw/internal/aggregate"
	"github.com/dreamware/vitessgw/internal/engine"
	"github.com/dreamware/vitessgw/internal/tablet"
	"github.com/dreamware/vitessgw/internal/twopc"
)

// ShardExecutor is the narrow surface Gateway needs from a shard's
// tablet: enough to query, execute, and open transactions. *tablet.Tablet
// satisfies it directly for in-process dispatch; a transport-backed
// implementation satisfies it for a tablet reached over the wire.
type ShardExecutor interface {
	Query(ctx context.Context, sql string, params []any) (engine.QueryResult, error)
	Execute(ctx context.Context, sql string, params []any) (engine.ExecuteResult, error)
	BeginTransaction(ctx context.Context) (engine.TransactionHandle, error)
}

var _ ShardExecutor = (*tablet.Tablet)(nil)
var _ twopc.ShardParticipant = (*tablet.Tablet)(nil)

// Gateway is VTGate: it owns a Router bound to one keyspace's VSchema and
// a shard-name-to-executor map, and exposes the route/plan/scatter/
// execute/transaction operations.
type Gateway struct {
	router      *Router
	shards      map[string]ShardExecutor
	logger      *zap.Logger
	coordinator *twopc.Coordinator
}

// New constructs a Gateway dispatching to shards, routed via router.
func New(router *Router, shards map[string]ShardExecutor) *Gateway {
	return &Gateway{router: router, shards: shards, logger: zap.NewNop()}
}

// SetLogger installs l for this gateway's dispatch logging, replacing the
// no-op default New constructs with.
func (g *Gateway) SetLogger(l *zap.Logger) {
	g.logger = l
}

func (g *Gateway) executorFor(shard string) (ShardExecutor, error) {
	ex, ok := g.shards[shard]
	if !ok {
		return nil, engine.New(engine.CodeKeyspaceNotFound, shard, fmt.Errorf("no executor registered for shard %q", shard))
	}
	return ex, nil
}

// Plan resolves sql into a dispatchable QueryPlan.
func (g *Gateway) Plan(sql string, params []any) (QueryPlan, error) {
	return g.router.Plan(sql, params)
}

// Scatter dispatches plan to every one of its shards in parallel and
// returns their individual results in shard-list order. A single shard's
// failure fails the whole call, with that shard's id embedded in the
// returned error.
func (g *Gateway) Scatter(ctx context.Context, plan QueryPlan) ([]engine.QueryResult, error) {
	results := make([]engine.QueryResult, len(plan.Shards))
	group, gctx := errgroup.WithContext(ctx)
	for i, shard := range plan.Shards {
		i, shard := i, shard
		group.Go(func() error {
			ex, err := g.executorFor(shard)
			if err != nil {
				return err
			}
			res, err := ex.Query(gctx, plan.SQL, plan.Params)
			if err != nil {
				g.logger.Warn("shard query failed", zap.String("shard", shard), zap.Error(err))
				if ge, ok := engine.AsGatewayError(err); ok {
					ge.Shard = shard
					return ge
				}
				return engine.New(engine.CodeShardWriteError, shard, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// scatterExecute is Scatter's write-side counterpart, used for UPDATE/
// DELETE statements dispatched to multiple shards.
func (g *Gateway) scatterExecute(ctx context.Context, plan QueryPlan) (engine.ExecuteResult, error) {
	var total engine.ExecuteResult
	group, gctx := errgroup.WithContext(ctx)
	results := make([]engine.ExecuteResult, len(plan.Shards))
	for i, shard := range plan.Shards {
		i, shard := i, shard
		group.Go(func() error {
			ex, err := g.executorFor(shard)
			if err != nil {
				return err
			}
			res, err := ex.Execute(gctx, plan.SQL, plan.Params)
			if err != nil {
				g.logger.Warn("shard execute failed", zap.String("shard", shard), zap.Error(err))
				if ge, ok := engine.AsGatewayError(err); ok {
					ge.Shard = shard
					return ge
				}
				return engine.New(engine.CodeShardWriteError, shard, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return engine.ExecuteResult{}, err
	}
	for _, r := range results {
		total.Affected += r.Affected
	}
	return total, nil
}

// dispatchBatches runs a plan's per-shard row batches (a multi-row INSERT
// grouped by target shard) in parallel. Each batch entry is already a
// fully-rendered single-row INSERT statement, so dispatch needs no
// further per-row reassembly or parameter binding.
func (g *Gateway) dispatchBatches(ctx context.Context, plan QueryPlan) (engine.ExecuteResult, error) {
	var total engine.ExecuteResult
	group, gctx := errgroup.WithContext(ctx)
	totals := make([]int, len(plan.Batches))
	for i, batch := range plan.Batches {
		i, batch := i, batch
		group.Go(func() error {
			ex, err := g.executorFor(batch.Shard)
			if err != nil {
				return err
			}
			for _, sql := range batch.SQLs {
				res, err := ex.Execute(gctx, sql, nil)
				if err != nil {
					g.logger.Warn("batch insert row failed", zap.String("shard", batch.Shard), zap.Error(err))
					if ge, ok := engine.AsGatewayError(err); ok {
						ge.Shard = batch.Shard
						return ge
					}
					return engine.New(engine.CodeShardWriteError, batch.Shard, err)
				}
				totals[i] += res.Affected
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return engine.ExecuteResult{}, err
	}
	for _, n := range totals {
		total.Affected += n
	}
	return total, nil
}

// Execute runs sql end to end: plan, dispatch (scatter or single-shard),
// and — for aggregate plans — merge/aggregate the per-shard results.
func (g *Gateway) Execute(ctx context.Context, sql string, params []any) (engine.QueryResult, error) {
	plan, err := g.Plan(sql, params)
	if err != nil {
		return engine.QueryResult{}, err
	}
	return g.ExecutePlan(ctx, plan)
}

// ExecutePlan dispatches an already-resolved plan and merges its results.
// Write statements (INSERT/UPDATE/DELETE/DDL) go through the Execute path;
// everything else goes through the read-only Query path.
func (g *Gateway) ExecutePlan(ctx context.Context, plan QueryPlan) (engine.QueryResult, error) {
	if plan.IsWrite() {
		return g.executeWritePlan(ctx, plan)
	}

	switch plan.Kind {
	case PlanSingleShard, PlanMultiShard, PlanLookup, PlanUnsharded, PlanScatter:
		results, err := g.scatterOrSingle(ctx, plan)
		if err != nil {
			return engine.QueryResult{}, err
		}
		merged := aggregate.MergeResults(results)
		if plan.Aggregation != nil {
			return applyAggregation(merged, *plan.Aggregation), nil
		}
		return merged, nil
	case PlanScatterAggregate:
		results, err := g.Scatter(ctx, plan)
		if err != nil {
			return engine.QueryResult{}, err
		}
		merged := aggregate.MergeResults(results)
		return applyAggregation(merged, *plan.Aggregation), nil
	default:
		return engine.QueryResult{}, engine.New(engine.CodeUnsupported, "", fmt.Errorf("unhandled plan kind"))
	}
}

// executeWritePlan dispatches an INSERT/UPDATE/DELETE/DDL plan through the
// Execute path, choosing per-row batch dispatch when the plan grouped a
// multi-row INSERT by target shard, and single/scatter Execute otherwise.
func (g *Gateway) executeWritePlan(ctx context.Context, plan QueryPlan) (engine.QueryResult, error) {
	if len(plan.Batches) > 0 {
		res, err := g.dispatchBatches(ctx, plan)
		if err != nil {
			return engine.QueryResult{}, err
		}
		return engine.QueryResult{RowCount: res.Affected}, nil
	}

	if len(plan.Shards) == 1 {
		ex, err := g.executorFor(plan.Shards[0])
		if err != nil {
			return engine.QueryResult{}, err
		}
		res, err := ex.Execute(ctx, plan.SQL, plan.Params)
		if err != nil {
			return engine.QueryResult{}, err
		}
		return engine.QueryResult{RowCount: res.Affected}, nil
	}

	res, err := g.scatterExecute(ctx, plan)
	if err != nil {
		return engine.QueryResult{}, err
	}
	return engine.QueryResult{RowCount: res.Affected}, nil
}

func (g *Gateway) scatterOrSingle(ctx context.Context, plan QueryPlan) ([]engine.QueryResult, error) {
	if len(plan.Shards) == 1 {
		ex, err := g.executorFor(plan.Shards[0])
		if err != nil {
			return nil, err
		}
		res, err := ex.Query(ctx, plan.SQL, plan.Params)
		if err != nil {
			return nil, err
		}
		return []engine.QueryResult{res}, nil
	}
	return g.Scatter(ctx, plan)
}

// applyAggregation runs the merged rows through GROUP BY (or the
// implicit single group) and then, if present, an ORDER BY + LIMIT/
// OFFSET pass over the aggregated output.
func applyAggregation(merged engine.QueryResult, ctx aggregate.Context) engine.QueryResult {
	var result engine.QueryResult
	if len(ctx.Aggregations) == 0 {
		result = merged
	} else if len(ctx.GroupBy) == 0 {
		row := aggregate.AggregateWithoutGroupBy(merged.Rows, ctx.Aggregations)
		result = engine.QueryResult{Rows: []engine.Row{row}, RowCount: 1}
	} else {
		result = aggregate.GroupAndAggregate(merged.Rows, ctx)
	}
	if ctx.Distinct {
		result = aggregate.Deduplicate(result)
	}
	if len(ctx.OrderBy) > 0 {
		limit := len(result.Rows)
		if ctx.Limit != nil {
			limit = *ctx.Limit
		}
		offset := 0
		if ctx.Offset != nil {
			offset = *ctx.Offset
		}
		merged := aggregate.KWayMerge([][]engine.Row{result.Rows}, ctx.OrderBy, offset, limit)
		result = engine.QueryResult{Rows: merged, RowCount: len(merged)}
	} else if ctx.Limit != nil {
		offset := 0
		if ctx.Offset != nil {
			offset = *ctx.Offset
		}
		end := offset + *ctx.Limit
		if end > len(result.Rows) {
			end = len(result.Rows)
		}
		if offset > len(result.Rows) {
			offset = len(result.Rows)
		}
		result.Rows = result.Rows[offset:end]
	}
	result.RowCount = len(result.Rows)
	return result
}
