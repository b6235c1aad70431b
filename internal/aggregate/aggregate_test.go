package aggregate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/vitessgw/internal/engine"
	"github.com/dreamware/vitessgw/internal/wireval"
)

func row(vals map[string]wireval.Value) engine.Row {
	r := engine.Row{}
	for k, v := range vals {
		r[k] = v
	}
	return r
}

func TestMergeResultsConcatenatesAndSumsCounts(t *testing.T) {
	a := engine.QueryResult{Rows: []engine.Row{row(map[string]wireval.Value{"id": wireval.NewInt64(1)})}, RowCount: 1,
		Fields: []engine.Field{{Name: "id"}}}
	b := engine.QueryResult{Rows: []engine.Row{row(map[string]wireval.Value{"id": wireval.NewInt64(2)})}, RowCount: 1}

	merged := MergeResults([]engine.QueryResult{a, b})
	assert.Equal(t, 2, merged.RowCount)
	assert.Len(t, merged.Fields, 1)
}

func TestDeduplicateKeepsFirstOccurrence(t *testing.T) {
	r1 := row(map[string]wireval.Value{"id": wireval.NewInt64(1), "name": wireval.NewString("a")})
	r2 := row(map[string]wireval.Value{"id": wireval.NewInt64(1), "name": wireval.NewString("a")})
	r3 := row(map[string]wireval.Value{"id": wireval.NewInt64(2), "name": wireval.NewString("b")})

	result := Deduplicate(engine.QueryResult{Rows: []engine.Row{r1, r2, r3}}, "id")
	assert.Equal(t, 2, result.RowCount)
}

func TestCountSkipsNulls(t *testing.T) {
	acc := newAccumulator(Op{Func: FuncCount, Column: "x"})
	acc.add(row(map[string]wireval.Value{"x": wireval.NewInt64(1)}))
	acc.add(row(map[string]wireval.Value{"x": wireval.Null}))
	acc.add(row(map[string]wireval.Value{"x": wireval.NewInt64(1)}))
	assert.Equal(t, wireval.NewInt64(2), acc.result())
}

func TestSumReturnsNullWhenAllNull(t *testing.T) {
	acc := newAccumulator(Op{Func: FuncSum, Column: "x"})
	acc.add(row(map[string]wireval.Value{"x": wireval.Null}))
	assert.True(t, acc.result().IsNull())
}

func TestSumPreservesBigIntPrecision(t *testing.T) {
	acc := newAccumulator(Op{Func: FuncSum, Column: "x"})
	acc.add(row(map[string]wireval.Value{"x": wireval.NewBigInt("9223372036854775807")}))
	acc.add(row(map[string]wireval.Value{"x": wireval.NewBigInt("1")}))
	result := acc.result()
	require.Equal(t, wireval.KindBigInt, result.Kind)
	assert.Equal(t, "9223372036854775808", result.BigInt)
}

func TestAvgAveragesRawRowsAcrossShardsNotShardAverages(t *testing.T) {
	acc := newAccumulator(Op{Func: FuncAvg, Column: "x"})
	// shard A contributes 2 raw rows summing to 30, shard B contributes 8
	// raw rows summing to 40, shards C and D contribute none: overall
	// average is 70/10=7, not the average of the two shards' own averages
	// (15 and 5), which would wrongly give 10.
	shardA := []float64{20, 10}
	shardB := []float64{5, 5, 5, 5, 5, 5, 5, 5}
	for _, v := range append(shardA, shardB...) {
		acc.add(row(map[string]wireval.Value{"x": wireval.NewFloat64(v)}))
	}
	result := acc.result()
	f, ok := result.AsFloat64()
	require.True(t, ok)
	assert.InDelta(t, 7.0, f, 0.0001)
}

func TestAvgSkipsNullsWhenAveraging(t *testing.T) {
	acc := newAccumulator(Op{Func: FuncAvg, Column: "x"})
	acc.add(row(map[string]wireval.Value{"x": wireval.Null}))
	acc.add(row(map[string]wireval.Value{"x": wireval.NewInt64(4)}))
	acc.add(row(map[string]wireval.Value{"x": wireval.NewInt64(6)}))
	result := acc.result()
	f, ok := result.AsFloat64()
	require.True(t, ok)
	assert.InDelta(t, 5.0, f, 0.0001)
}

func TestAvgReturnsNullWhenCountIsZero(t *testing.T) {
	acc := newAccumulator(Op{Func: FuncAvg, Column: "x"})
	assert.True(t, acc.result().IsNull())
}

func TestMinSkipsNullsAndUsesCrossTypeOrdering(t *testing.T) {
	acc := newAccumulator(Op{Func: FuncMin, Column: "x"})
	acc.add(row(map[string]wireval.Value{"x": wireval.Null}))
	acc.add(row(map[string]wireval.Value{"x": wireval.NewInt64(5)}))
	acc.add(row(map[string]wireval.Value{"x": wireval.NewInt64(1)}))
	assert.Equal(t, wireval.NewInt64(1), acc.result())
}

func TestMaxExtremum(t *testing.T) {
	acc := newAccumulator(Op{Func: FuncMax, Column: "x"})
	acc.add(row(map[string]wireval.Value{"x": wireval.NewInt64(5)}))
	acc.add(row(map[string]wireval.Value{"x": wireval.NewInt64(9)}))
	acc.add(row(map[string]wireval.Value{"x": wireval.NewInt64(1)}))
	assert.Equal(t, wireval.NewInt64(9), acc.result())
}

func TestGroupAndAggregatePartitionsByGroupKey(t *testing.T) {
	rows := []engine.Row{
		row(map[string]wireval.Value{"dept": wireval.NewString("eng"), "salary": wireval.NewInt64(100)}),
		row(map[string]wireval.Value{"dept": wireval.NewString("eng"), "salary": wireval.NewInt64(200)}),
		row(map[string]wireval.Value{"dept": wireval.NewString("sales"), "salary": wireval.NewInt64(50)}),
	}
	result := GroupAndAggregate(rows, Context{
		GroupBy:      []string{"dept"},
		Aggregations: []Op{{Func: FuncSum, Column: "salary", Alias: "total"}},
	})
	assert.Equal(t, 2, result.RowCount)
	totals := map[string]float64{}
	for _, r := range result.Rows {
		f, _ := r["total"].AsFloat64()
		totals[r["dept"].Str] = f
	}
	assert.Equal(t, 300.0, totals["eng"])
	assert.Equal(t, 50.0, totals["sales"])
}

func idRows(ids ...int64) []engine.Row {
	rows := make([]engine.Row, len(ids))
	for i, id := range ids {
		rows[i] = row(map[string]wireval.Value{"id": wireval.NewInt64(id)})
	}
	return rows
}

func TestKWayMergeProducesSortedPrefix(t *testing.T) {
	streams := [][]engine.Row{idRows(1, 5, 9), idRows(2, 4, 8), idRows(3, 6, 7)}
	spec := []wireval.SortSpec{{Column: "id"}}

	out := KWayMerge(streams, spec, 0, 3)
	var got []int64
	for _, r := range out {
		got = append(got, r["id"].Int64)
	}
	assert.Equal(t, []int64{1, 2, 3}, got)
}

func TestKWayMergeFullyExhaustedWithLargeLimit(t *testing.T) {
	streams := [][]engine.Row{idRows(1, 5, 9), idRows(2, 4, 8), idRows(3, 6, 7)}
	spec := []wireval.SortSpec{{Column: "id"}}

	out := KWayMerge(streams, spec, 0, math.MaxInt)
	var got []int64
	for _, r := range out {
		got = append(got, r["id"].Int64)
	}
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestKWayMergeAppliesOffset(t *testing.T) {
	streams := [][]engine.Row{idRows(1, 2, 3)}
	spec := []wireval.SortSpec{{Column: "id"}}

	out := KWayMerge(streams, spec, 1, 1)
	require.Len(t, out, 1)
	assert.Equal(t, int64(2), out[0]["id"].Int64)
}

func TestStreamingAggregatorUngroupedIsOrderIndependent(t *testing.T) {
	ctx := Context{Aggregations: []Op{{Func: FuncCount, Column: "id", Alias: "n"}}}
	agg := NewAggregator(ctx)
	agg.AddRows(idRows(1, 2))
	agg.AddRows(idRows(3))
	result := agg.Finalize()
	assert.Equal(t, int64(3), result.Rows[0]["n"].Int64)
}

func TestStreamingAggregatorGroupedAccumulatesAcrossBatches(t *testing.T) {
	ctx := Context{
		GroupBy:      []string{"dept"},
		Aggregations: []Op{{Func: FuncCount, Column: "dept", Alias: "n"}},
	}
	agg := NewAggregator(ctx)
	agg.AddRows([]engine.Row{row(map[string]wireval.Value{"dept": wireval.NewString("eng")})})
	agg.AddRows([]engine.Row{row(map[string]wireval.Value{"dept": wireval.NewString("eng")})})
	agg.AddRows([]engine.Row{row(map[string]wireval.Value{"dept": wireval.NewString("sales")})})

	result := agg.Finalize()
	assert.Equal(t, 2, result.RowCount)
}
