package aggregate

import (
	"sort"

	"github.com/dreamware/vitessgw/internal/engine"
	"github.com/dreamware/vitessgw/internal/wireval"
)

// Aggregator accumulates per-shard batches incrementally instead of
// buffering every row, so a simple aggregate without GROUP BY stays
// O(aggregations) in memory and a grouped aggregate stays
// O(groups × aggregations) rather than O(total rows).
type Aggregator struct {
	ctx Context

	// ungrouped holds the single implicit group's accumulators when
	// ctx.GroupBy is empty.
	ungrouped []*accumulator

	// grouped holds one accumulator set per distinct group key, added to
	// lazily as new keys are seen across batches.
	groupOrder  []string
	groupValues map[string]engine.Row
	groupAccums map[string][]*accumulator
}

// NewAggregator constructs a streaming aggregator for ctx.
func NewAggregator(ctx Context) *Aggregator {
	a := &Aggregator{ctx: ctx}
	if len(ctx.GroupBy) == 0 {
		a.ungrouped = make([]*accumulator, len(ctx.Aggregations))
		for i, op := range ctx.Aggregations {
			a.ungrouped[i] = newAccumulator(op)
		}
	} else {
		a.groupValues = map[string]engine.Row{}
		a.groupAccums = map[string][]*accumulator{}
	}
	return a
}

// AddRows folds one shard batch into the running accumulators. Order
// across calls does not matter: every supported aggregation function is
// associative and commutative once reduced to sum/count/extremum form.
func (a *Aggregator) AddRows(rows []engine.Row) {
	if a.ungrouped != nil {
		for _, row := range rows {
			for _, acc := range a.ungrouped {
				acc.add(row)
			}
		}
		return
	}

	for _, row := range rows {
		key := rowKey(row, a.ctx.GroupBy)
		accums, ok := a.groupAccums[key]
		if !ok {
			values := engine.Row{}
			for _, col := range a.ctx.GroupBy {
				values[col] = row[col]
			}
			accums = make([]*accumulator, len(a.ctx.Aggregations))
			for i, op := range a.ctx.Aggregations {
				accums[i] = newAccumulator(op)
			}
			a.groupValues[key] = values
			a.groupAccums[key] = accums
			a.groupOrder = append(a.groupOrder, key)
		}
		for _, acc := range accums {
			acc.add(row)
		}
	}
}

// Finalize produces the merged result. When ORDER BY is configured on
// the context, it sorts the (typically small, already-grouped) output in
// memory; the k-way merge path is for pre-aggregation row streams, not
// for the bounded number of output groups.
func (a *Aggregator) Finalize() engine.QueryResult {
	var result engine.QueryResult

	if a.ungrouped != nil {
		out := engine.Row{}
		for _, acc := range a.ungrouped {
			out[acc.outputName()] = acc.result()
		}
		result.Rows = []engine.Row{out}
	} else {
		for _, key := range a.groupOrder {
			out := engine.Row{}
			for col, v := range a.groupValues[key] {
				out[col] = v
			}
			for _, acc := range a.groupAccums[key] {
				out[acc.outputName()] = acc.result()
			}
			result.Rows = append(result.Rows, out)
		}
	}

	if len(a.ctx.OrderBy) > 0 {
		sort.SliceStable(result.Rows, func(i, j int) bool {
			for _, spec := range a.ctx.OrderBy {
				if c := wireval.Compare(result.Rows[i][spec.Column], result.Rows[j][spec.Column], spec); c != 0 {
					return c < 0
				}
			}
			return false
		})
	}

	result.RowCount = len(result.Rows)
	return result
}
