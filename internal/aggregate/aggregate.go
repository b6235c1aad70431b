// Package aggregate implements everything that happens to per-shard
// results after they come back from a scatter: concatenation,
// deduplication, cross-shard COUNT/SUM/AVG/MIN/MAX, GROUP BY, and a
// k-way merge for ORDER BY with LIMIT/OFFSET.
package aggregate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dreamware/vitessgw/internal/engine"
	"github.com/dreamware/vitessgw/internal/wireval"
)

// Func identifies a supported cross-shard aggregation function.
type Func string

const (
	FuncCount Func = "COUNT"
	FuncSum   Func = "SUM"
	FuncAvg   Func = "AVG"
	FuncMin   Func = "MIN"
	FuncMax   Func = "MAX"
)

// Op describes one aggregation column: which function, which input
// column, and the output alias.
type Op struct {
	Func   Func
	Column string
	Alias  string
}

// Context bundles everything the aggregator needs: the aggregations to
// apply, the GROUP BY columns, the ORDER BY spec, and LIMIT/OFFSET/
// DISTINCT.
type Context struct {
	Aggregations []Op
	GroupBy      []string
	OrderBy      []wireval.SortSpec
	Limit        *int
	Offset       *int
	Distinct     bool
}

// MergeResults concatenates rows from every per-shard result in input
// order, keeps the field descriptor of the first non-empty result, and
// sums row counts.
func MergeResults(results []engine.QueryResult) engine.QueryResult {
	var merged engine.QueryResult
	for _, r := range results {
		if merged.Fields == nil && len(r.Fields) > 0 {
			merged.Fields = r.Fields
		}
		merged.Rows = append(merged.Rows, r.Rows...)
		merged.RowCount += r.RowCount
	}
	return merged
}

// rowKey serializes a row's values at the given columns (or the whole
// row, sorted by column name, when columns is empty) into a string
// suitable for deep-equality grouping keys.
func rowKey(row engine.Row, columns []string) string {
	if len(columns) == 0 {
		names := make([]string, 0, len(row))
		for k := range row {
			names = append(names, k)
		}
		sort.Strings(names)
		columns = names
	}
	var b strings.Builder
	for _, c := range columns {
		b.WriteString(c)
		b.WriteByte('=')
		b.WriteString(row[c].String())
		b.WriteByte(0x1f) // unit separator, unlikely to collide with real data
	}
	return b.String()
}

// Deduplicate retains the first occurrence of each distinct row (by deep
// equality over columns, or the full row when columns is empty), stable
// with respect to input order.
func Deduplicate(result engine.QueryResult, columns ...string) engine.QueryResult {
	seen := make(map[string]bool, len(result.Rows))
	out := result
	out.Rows = make([]engine.Row, 0, len(result.Rows))
	for _, row := range result.Rows {
		key := rowKey(row, columns)
		if seen[key] {
			continue
		}
		seen[key] = true
		out.Rows = append(out.Rows, row)
	}
	out.RowCount = len(out.Rows)
	return out
}

// accumulator folds one input row's column value at a time (see add),
// implementing the per-function rules: COUNT/SUM skip nulls, AVG keeps a
// running sum and count of the raw column values, MIN/MAX use the
// cross-type ordering.
type accumulator struct {
	op       Op
	count    int64
	sum      wireval.Value
	sumIsSet bool
	extreme  wireval.Value
	hasValue bool
}

func newAccumulator(op Op) *accumulator {
	return &accumulator{op: op}
}

func (a *accumulator) add(row engine.Row) {
	switch a.op.Func {
	case FuncCount:
		v, ok := row[a.op.Column]
		if !ok || !v.IsNull() {
			a.count++
		}
	case FuncSum:
		v, ok := row[a.op.Column]
		if !ok || v.IsNull() {
			return
		}
		a.accumulateSum(v)
	case FuncAvg:
		v, ok := row[a.op.Column]
		if !ok || v.IsNull() {
			return
		}
		a.accumulateSum(v)
		a.count++
	case FuncMin, FuncMax:
		v, ok := row[a.op.Column]
		if !ok || v.IsNull() {
			return
		}
		if !a.hasValue {
			a.extreme = v
			a.hasValue = true
			return
		}
		cmp := wireval.Compare(v, a.extreme, wireval.SortSpec{})
		if (a.op.Func == FuncMin && cmp < 0) || (a.op.Func == FuncMax && cmp > 0) {
			a.extreme = v
		}
	}
}

// accumulateSum adds v to the running sum, preserving bigint precision
// when either side is a bigint (no lossy promotion to float64).
func (a *accumulator) accumulateSum(v wireval.Value) {
	if !a.sumIsSet {
		a.sum = v
		a.sumIsSet = true
		return
	}
	if a.sum.Kind == wireval.KindBigInt || v.Kind == wireval.KindBigInt {
		a.sum = addBigIntish(a.sum, v)
		return
	}
	sf, _ := a.sum.AsFloat64()
	vf, _ := v.AsFloat64()
	a.sum = wireval.NewFloat64(sf + vf)
}

func (a *accumulator) result() wireval.Value {
	switch a.op.Func {
	case FuncCount:
		return wireval.NewInt64(a.count)
	case FuncSum:
		if !a.sumIsSet {
			return wireval.Null
		}
		return a.sum
	case FuncAvg:
		if a.count == 0 {
			return wireval.Null
		}
		sf, _ := a.sum.AsFloat64()
		return wireval.NewFloat64(sf / float64(a.count))
	case FuncMin, FuncMax:
		if !a.hasValue {
			return wireval.Null
		}
		return a.extreme
	default:
		return wireval.Null
	}
}

func (a *accumulator) outputName() string {
	if a.op.Alias != "" {
		return a.op.Alias
	}
	return fmt.Sprintf("%s(%s)", a.op.Func, a.op.Column)
}
