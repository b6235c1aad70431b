package gateway

import (
	"fmt"
	"strconv"

	"github.com/dreamware/vitessgw/internal/aggregate"
	"github.com/dreamware/vitessgw/internal/engine"
	"github.com/dreamware/vitessgw/internal/vindex"
	"github.com/dreamware/vitessgw/internal/vschema"
	"github.com/dreamware/vitessgw/internal/wireval"
)

// Router resolves a parsed Statement against a VSchema into a ShardRoute
// and, from there, a fully dispatchable QueryPlan. It implements the
// routing rules in priority order: the first rule whose precondition
// matches decides the plan; a matched precondition that then fails (a
// missing sharding key, an unknown vindex) fails the route outright
// rather than falling through to a looser rule.
type Router struct {
	keyspace string
	vs       *vschema.VSchema
}

// NewRouter binds a Router to one keyspace's VSchema.
func NewRouter(keyspace string, vs *vschema.VSchema) *Router {
	return &Router{keyspace: keyspace, vs: vs}
}

func resolveParamToken(tok string, params []any) any {
	switch {
	case tok == "?":
		if len(params) > 0 {
			return params[0]
		}
		return nil
	case len(tok) > 1 && tok[0] == '$':
		if n, err := strconv.Atoi(tok[1:]); err == nil && n >= 1 && n <= len(params) {
			return params[n-1]
		}
		return nil
	default:
		return tok
	}
}

// Plan resolves sql against the bound keyspace and returns the dispatch
// plan, applying the routing rules of the component design in order.
func (r *Router) Plan(sql string, params []any) (QueryPlan, error) {
	stmt := Parse(sql)

	switch stmt.Kind {
	case StmtUnsupported:
		return QueryPlan{}, engine.New(engine.CodeUnsupported, "", fmt.Errorf("unsupported statement"))
	case StmtDDL:
		return r.planDDL(stmt, params)
	case StmtSelect:
		return r.planSelect(stmt, params)
	case StmtInsert:
		return r.planInsert(stmt, params)
	case StmtUpdate, StmtDelete:
		return r.planWriteWithPredicates(stmt, params)
	default:
		return QueryPlan{}, engine.New(engine.CodeUnsupported, "", fmt.Errorf("cannot classify statement"))
	}
}

// allShards returns the full, sorted shard-name list for the bound
// keyspace, or a single pseudo-shard "-" when unsharded/unknown (rule 2).
func (r *Router) allShards() []string {
	return r.vs.GetShards(r.keyspace)
}

func (r *Router) tableExists(table string) bool {
	if !r.vs.IsSharded(r.keyspace) {
		// Unsharded keyspaces don't require every table to be declared.
		if _, ok := r.vs.Keyspaces[r.keyspace]; !ok {
			return false
		}
		return true
	}
	_, ok := r.vs.GetTable(r.keyspace, table)
	return ok
}

func (r *Router) planDDL(stmt Statement, params []any) (QueryPlan, error) {
	return QueryPlan{Kind: PlanScatter, Statement: stmt.Kind, SQL: stmt.Raw, Params: params, Shards: r.allShards()}, nil
}

// planSelect applies rules 2-6 and 10 in the order the component design
// lists them: unsharded short-circuits first, then point-equality /
// IN / range / lookup on the primary (or a named) vindex column, then
// aggregate-without-GROUP-BY falls back to ScatterAggregate.
func (r *Router) planSelect(stmt Statement, params []any) (QueryPlan, error) {
	if _, ok := r.vs.Keyspaces[r.keyspace]; !ok {
		return QueryPlan{}, engine.New(engine.CodeKeyspaceNotFound, "", fmt.Errorf("unknown keyspace %q", r.keyspace))
	}
	if !r.tableExists(stmt.Table) {
		return QueryPlan{}, engine.New(engine.CodeTableNotFound, "", fmt.Errorf("unknown table %q", stmt.Table))
	}

	aggCtx := r.aggregationContext(stmt)

	if !r.vs.IsSharded(r.keyspace) {
		plan := QueryPlan{Kind: PlanUnsharded, Statement: stmt.Kind, SQL: stmt.Raw, Params: params, Shards: r.allShards()}
		plan.Aggregation = aggCtx
		return plan, nil
	}

	shards, kind, err := r.routeByPredicates(stmt, params)
	if err != nil {
		return QueryPlan{}, err
	}
	if shards != nil {
		return QueryPlan{Kind: kind, Statement: stmt.Kind, SQL: stmt.Raw, Params: params, Shards: shards, Aggregation: aggCtx}, nil
	}

	// No predicate routed the statement: aggregate-without-GROUP-BY scatters
	// with an AggregationContext (rule 10); a bare SELECT scatters plain.
	if aggCtx != nil && len(stmt.GroupBy) == 0 {
		return QueryPlan{Kind: PlanScatterAggregate, Statement: stmt.Kind, SQL: stmt.Raw, Params: params, Shards: r.allShards(), Aggregation: aggCtx}, nil
	}
	return QueryPlan{Kind: PlanScatter, Statement: stmt.Kind, SQL: stmt.Raw, Params: params, Shards: r.allShards(), Aggregation: aggCtx}, nil
}

func (r *Router) aggregationContext(stmt Statement) *aggregate.Context {
	if len(stmt.Aggregates) == 0 && len(stmt.GroupBy) == 0 && len(stmt.OrderBy) == 0 && stmt.Limit == nil && !stmt.Distinct {
		return nil
	}
	ctx := &aggregate.Context{GroupBy: stmt.GroupBy, Distinct: stmt.Distinct, Limit: stmt.Limit, Offset: stmt.Offset}
	for _, term := range stmt.OrderBy {
		ctx.OrderBy = append(ctx.OrderBy, wireval.SortSpec{Column: term.Column, Descending: term.Descending})
	}
	for _, call := range stmt.Aggregates {
		ctx.Aggregations = append(ctx.Aggregations, aggregate.Op{
			Func: aggregate.Func(call.Func), Column: call.Column, Alias: call.Alias,
		})
	}
	return ctx
}

// routeByPredicates implements rules 3-6: point equality, IN, range, and
// lookup-vindex equality on a sharded table's predicates. Returns
// shards == nil when no predicate routed anything, signaling the caller
// to fall back to a scatter.
func (r *Router) routeByPredicates(stmt Statement, params []any) ([]string, PlanKind, error) {
	primaryCols, primaryVindex, hasPrimary := r.vs.GetPrimaryVindex(r.keyspace, stmt.Table)
	ranges, err := parseKeyspaceShardRanges(r.allShards())
	if err != nil {
		return nil, 0, engine.New(engine.CodeQueryError, "", err)
	}

	for _, pred := range stmt.Predicates {
		if hasPrimary && len(primaryCols) == 1 && pred.Column == primaryCols[0] {
			switch pred.Op {
			case "=":
				shard, planKind, err := r.routePointEquality(primaryVindex, resolveParamToken(pred.Value, params), ranges)
				if err != nil {
					return nil, 0, err
				}
				return []string{shard}, planKind, nil
			case "IN":
				return r.routeIn(primaryVindex, pred.Values, params, ranges)
			}
		}

		if v, _, ok := r.vs.GetColumnVindex(r.keyspace, stmt.Table, pred.Column); ok {
			if rv, isRange := v.(*vindex.RangeVindex); isRange && pred.Op == "BETWEEN" {
				return r.routeRange(rv, pred.Low, pred.High, ranges)
			}
			if lv, isLookup := v.(*vindex.LookupVindex); isLookup && pred.Op == "=" {
				return r.routeLookup(lv, resolveParamToken(pred.Value, params), ranges)
			}
		}
	}
	return nil, 0, nil
}

func parseKeyspaceShardRanges(names []string) ([]vindex.ShardRange, error) {
	ranges := make([]vindex.ShardRange, 0, len(names))
	for _, n := range names {
		rg, err := vindex.ParseShardRange(n)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, rg)
	}
	vindex.SortShardRanges(ranges)
	return ranges, nil
}

func (r *Router) routePointEquality(v vindex.Vindex, value any, ranges []vindex.ShardRange) (string, PlanKind, error) {
	id, err := vindex.ComputeKeyspaceId(v, value)
	if err != nil {
		return "", 0, engine.New(engine.CodeQueryError, "", err)
	}
	shard, err := vindex.RouteToShard(id, ranges)
	if err != nil {
		return "", 0, engine.New(engine.CodeQueryError, "", err)
	}
	return shard, PlanSingleShard, nil
}

func (r *Router) routeIn(v vindex.Vindex, values []string, params []any, ranges []vindex.ShardRange) ([]string, PlanKind, error) {
	seen := map[string]bool{}
	var shards []string
	for _, val := range values {
		id, err := vindex.ComputeKeyspaceId(v, resolveParamToken(val, params))
		if err != nil {
			return nil, 0, engine.New(engine.CodeQueryError, "", err)
		}
		shard, err := vindex.RouteToShard(id, ranges)
		if err != nil {
			return nil, 0, engine.New(engine.CodeQueryError, "", err)
		}
		if !seen[shard] {
			seen[shard] = true
			shards = append(shards, shard)
		}
	}
	if len(shards) == len(ranges) {
		return shards, PlanScatter, nil
	}
	return shards, PlanMultiShard, nil
}

func (r *Router) routeRange(v *vindex.RangeVindex, low, high string, ranges []vindex.ShardRange) ([]string, PlanKind, error) {
	lowID, err := v.Map(low)
	if err != nil {
		return nil, 0, engine.New(engine.CodeQueryError, "", err)
	}
	highID, err := v.Map(high)
	if err != nil {
		return nil, 0, engine.New(engine.CodeQueryError, "", err)
	}
	var shards []string
	for _, rg := range ranges {
		if vindex.CompareKeyspaceID(rg.Start, highID[0]) > 0 {
			continue
		}
		if !rg.OpenEnd && vindex.CompareKeyspaceID(rg.End, lowID[0]) <= 0 {
			continue
		}
		shards = append(shards, rg.Name)
	}
	if len(shards) == len(ranges) {
		return shards, PlanScatter, nil
	}
	return shards, PlanMultiShard, nil
}

func (r *Router) routeLookup(v *vindex.LookupVindex, value any, ranges []vindex.ShardRange) ([]string, PlanKind, error) {
	ids, err := v.Resolve(value)
	if err != nil {
		return nil, 0, engine.New(engine.CodeQueryError, "", err)
	}
	seen := map[string]bool{}
	var shards []string
	for _, id := range ids {
		shard, err := vindex.RouteToShard(id, ranges)
		if err != nil {
			return nil, 0, engine.New(engine.CodeQueryError, "", err)
		}
		if !seen[shard] {
			seen[shard] = true
			shards = append(shards, shard)
		}
	}
	return shards, PlanLookup, nil
}

// planInsert implements rule 7: the vindex column must be present in the
// column list; multi-row inserts are grouped per target shard.
func (r *Router) planInsert(stmt Statement, params []any) (QueryPlan, error) {
	if !r.tableExists(stmt.Table) {
		return QueryPlan{}, engine.New(engine.CodeTableNotFound, "", fmt.Errorf("unknown table %q", stmt.Table))
	}
	if !r.vs.IsSharded(r.keyspace) {
		return QueryPlan{Kind: PlanUnsharded, Statement: stmt.Kind, SQL: stmt.Raw, Params: params, Shards: r.allShards()}, nil
	}

	cols, v, ok := r.vs.GetPrimaryVindex(r.keyspace, stmt.Table)
	if !ok || len(cols) != 1 {
		return QueryPlan{}, engine.New(engine.CodeShardingKeyRequired, "", fmt.Errorf("no single-column primary vindex for %q", stmt.Table))
	}
	colIdx := -1
	for i, c := range stmt.Columns {
		if c == cols[0] {
			colIdx = i
			break
		}
	}
	if colIdx < 0 {
		return QueryPlan{}, engine.New(engine.CodeShardingKeyRequired, "", fmt.Errorf("sharding column %q missing from INSERT column list", cols[0]))
	}

	ranges, err := parseKeyspaceShardRanges(r.allShards())
	if err != nil {
		return QueryPlan{}, engine.New(engine.CodeQueryError, "", err)
	}

	byShard := map[string][]string{}
	var order []string
	for _, rowVals := range stmt.Values {
		if colIdx >= len(rowVals) {
			return QueryPlan{}, engine.New(engine.CodeShardingKeyRequired, "", fmt.Errorf("row missing sharding column value"))
		}
		val := routingValue(rowVals[colIdx], params)
		id, err := vindex.ComputeKeyspaceId(v, val)
		if err != nil {
			return QueryPlan{}, engine.New(engine.CodeQueryError, "", err)
		}
		shard, err := vindex.RouteToShard(id, ranges)
		if err != nil {
			return QueryPlan{}, engine.New(engine.CodeQueryError, "", err)
		}
		if _, seen := byShard[shard]; !seen {
			order = append(order, shard)
		}
		byShard[shard] = append(byShard[shard], renderInsertRow(stmt.Table, stmt.Columns, rowVals, params))
	}

	var batches []ShardBatch
	var shards []string
	for _, s := range order {
		batches = append(batches, ShardBatch{Shard: s, SQLs: byShard[s]})
		shards = append(shards, s)
	}

	kind := PlanSingleShard
	if len(shards) > 1 {
		kind = PlanMultiShard
	}
	return QueryPlan{Kind: kind, Statement: stmt.Kind, SQL: stmt.Raw, Params: params, Shards: shards, Batches: batches}, nil
}

// renderInsertRow reconstitutes a single-row INSERT statement with
// literal values substituted for placeholders, so each shard's batch can
// be executed independently of the original multi-row statement text. A
// token that is already literal SQL text (a quoted string, a bare number)
// passes through unchanged; only placeholder tokens ("?", "$n") are
// resolved against params and re-encoded as a SQL literal.
func renderInsertRow(table string, cols []string, rowVals []string, params []any) string {
	rendered := make([]string, len(rowVals))
	for i, tok := range rowVals {
		if isPlaceholderToken(tok) {
			rendered[i] = sqlLiteral(resolveParamToken(tok, params))
		} else {
			rendered[i] = tok
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, joinColumns(cols), joinValues(rendered))
}

// routingValue resolves a raw INSERT-value token to the Go value a vindex
// should map: a placeholder resolves against params (native type carried
// through unchanged); any other token is literal SQL text and must be
// unquoted before use, since a quoted string literal's surrounding quotes
// are not part of the value.
func routingValue(tok string, params []any) any {
	if isPlaceholderToken(tok) {
		return resolveParamToken(tok, params)
	}
	return unquote(tok)
}

func isPlaceholderToken(tok string) bool {
	if tok == "?" {
		return true
	}
	if len(tok) > 1 && tok[0] == '$' {
		_, err := strconv.Atoi(tok[1:])
		return err == nil
	}
	return false
}

func joinColumns(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

func joinValues(vals []string) string {
	out := ""
	for i, v := range vals {
		if i > 0 {
			out += ", "
		}
		out += v
	}
	return out
}

// sqlLiteral renders a resolved Go value as a SQL literal for the
// reconstituted per-row INSERT text.
func sqlLiteral(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + stringEscape(t) + "'"
	default:
		return fmt.Sprintf("%v", t)
	}
}

func stringEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\'')
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

// planWriteWithPredicates implements rule 8: UPDATE/DELETE without a
// sharding-key predicate scatters; with one, it routes like a SELECT.
func (r *Router) planWriteWithPredicates(stmt Statement, params []any) (QueryPlan, error) {
	if !r.tableExists(stmt.Table) {
		return QueryPlan{}, engine.New(engine.CodeTableNotFound, "", fmt.Errorf("unknown table %q", stmt.Table))
	}
	if !r.vs.IsSharded(r.keyspace) {
		return QueryPlan{Kind: PlanUnsharded, Statement: stmt.Kind, SQL: stmt.Raw, Params: params, Shards: r.allShards()}, nil
	}

	shards, kind, err := r.routeByPredicates(stmt, params)
	if err != nil {
		return QueryPlan{}, err
	}
	if shards != nil {
		return QueryPlan{Kind: kind, Statement: stmt.Kind, SQL: stmt.Raw, Params: params, Shards: shards}, nil
	}
	return QueryPlan{Kind: PlanScatter, Statement: stmt.Kind, SQL: stmt.Raw, Params: params, Shards: r.allShards()}, nil
}
