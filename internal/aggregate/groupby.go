package aggregate

import (
	"github.com/dreamware/vitessgw/internal/engine"
)

// GroupAndAggregate partitions rows by the tuple of GroupBy columns and
// applies the configured aggregations within each group. Output schema is
// the group columns followed by the aggregation columns; row order is
// unspecified unless the caller applies OrderBy afterward.
func GroupAndAggregate(rows []engine.Row, ctx Context) engine.QueryResult {
	type group struct {
		key     string
		values  engine.Row
		accums  []*accumulator
	}

	order := []string{}
	groups := map[string]*group{}

	for _, row := range rows {
		key := rowKey(row, ctx.GroupBy)
		g, ok := groups[key]
		if !ok {
			values := engine.Row{}
			for _, col := range ctx.GroupBy {
				values[col] = row[col]
			}
			accums := make([]*accumulator, len(ctx.Aggregations))
			for i, op := range ctx.Aggregations {
				accums[i] = newAccumulator(op)
			}
			g = &group{key: key, values: values, accums: accums}
			groups[key] = g
			order = append(order, key)
		}
		for _, a := range g.accums {
			a.add(row)
		}
	}

	result := engine.QueryResult{}
	for _, key := range order {
		g := groups[key]
		out := engine.Row{}
		for col, v := range g.values {
			out[col] = v
		}
		for _, a := range g.accums {
			out[a.outputName()] = a.result()
		}
		result.Rows = append(result.Rows, out)
	}
	result.RowCount = len(result.Rows)
	return result
}

// AggregateWithoutGroupBy applies every configured aggregation across all
// rows as a single implicit group, the ScatterAggregate case for a query
// with no GROUP BY clause.
func AggregateWithoutGroupBy(rows []engine.Row, ops []Op) engine.Row {
	accums := make([]*accumulator, len(ops))
	for i, op := range ops {
		accums[i] = newAccumulator(op)
	}
	for _, row := range rows {
		for _, a := range accums {
			a.add(row)
		}
	}
	out := engine.Row{}
	for _, a := range accums {
		out[a.outputName()] = a.result()
	}
	return out
}
