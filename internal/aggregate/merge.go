package aggregate

import (
	"container/heap"

	"github.com/dreamware/vitessgw/internal/engine"
	"github.com/dreamware/vitessgw/internal/wireval"
)

// stream is one shard's pre-sorted row sequence with a read cursor.
type stream struct {
	shardIndex int
	rows       []engine.Row
	pos        int
}

func (s *stream) head() (engine.Row, bool) {
	if s.pos >= len(s.rows) {
		return nil, false
	}
	return s.rows[s.pos], true
}

// mergeHeap is a min-heap over the current head row of each live stream,
// ordered by the ORDER BY spec with shard index as a deterministic
// tiebreaker.
type mergeHeap struct {
	streams []*stream
	orderBy []wireval.SortSpec
}

func (h *mergeHeap) Len() int { return len(h.streams) }

func (h *mergeHeap) Less(i, j int) bool {
	a, _ := h.streams[i].head()
	b, _ := h.streams[j].head()
	for _, spec := range h.orderBy {
		cmp := wireval.Compare(a[spec.Column], b[spec.Column], spec)
		if cmp != 0 {
			return cmp < 0
		}
	}
	return h.streams[i].shardIndex < h.streams[j].shardIndex
}

func (h *mergeHeap) Swap(i, j int) { h.streams[i], h.streams[j] = h.streams[j], h.streams[i] }

func (h *mergeHeap) Push(x any) { h.streams = append(h.streams, x.(*stream)) }

func (h *mergeHeap) Pop() any {
	old := h.streams
	n := len(old)
	item := old[n-1]
	h.streams = old[:n-1]
	return item
}

// KWayMerge merges shard-sorted row sets that are all pre-sorted by
// orderBy, repeatedly taking the current minimum head row across shards
// (ties broken by shard index). It stops once offset+limit rows have
// been produced and returns rows[offset:], doing O((offset+limit) log k)
// comparisons rather than sorting the full concatenation. Callers with no
// LIMIT pass math.MaxInt so the merge runs to exhaustion.
func KWayMerge(perShard [][]engine.Row, orderBy []wireval.SortSpec, offset, limit int) []engine.Row {
	h := &mergeHeap{orderBy: orderBy}
	for i, rows := range perShard {
		if len(rows) == 0 {
			continue
		}
		heap.Push(h, &stream{shardIndex: i, rows: rows})
	}
	heap.Init(h)

	total := 0
	for _, rows := range perShard {
		total += len(rows)
	}
	want := offset + limit
	if want > total || want < 0 {
		want = total
	}
	out := make([]engine.Row, 0, want)
	for h.Len() > 0 && len(out) < want {
		top := h.streams[0]
		row, _ := top.head()
		out = append(out, row)
		top.pos++
		if _, ok := top.head(); ok {
			heap.Fix(h, 0)
		} else {
			heap.Pop(h)
		}
	}

	if offset >= len(out) {
		return nil
	}
	return out[offset:]
}
