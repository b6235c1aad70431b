package gateway

import (
	"github.com/dreamware/vitessgw/internal/aggregate"
)

// PlanKind is the routing decision for one statement.
type PlanKind int

const (
	PlanUnsharded PlanKind = iota
	PlanSingleShard
	PlanMultiShard
	PlanScatter
	PlanScatterAggregate
	PlanLookup
)

func (k PlanKind) String() string {
	switch k {
	case PlanUnsharded:
		return "Unsharded"
	case PlanSingleShard:
		return "SingleShard"
	case PlanMultiShard:
		return "MultiShard"
	case PlanScatter:
		return "Scatter"
	case PlanScatterAggregate:
		return "ScatterAggregate"
	case PlanLookup:
		return "Lookup"
	default:
		return "Unknown"
	}
}

// ShardRoute names the shards a statement must reach.
type ShardRoute struct {
	Keyspace  string
	Shards    []string
	IsScatter bool
}

// ShardBatch is one shard's slice of a multi-row INSERT, grouped by
// target shard during planning. Each entry in SQLs is a fully-rendered
// single-row INSERT statement (placeholders already substituted), so
// dispatch needs no further per-row reassembly.
type ShardBatch struct {
	Shard string
	SQLs  []string
}

// QueryPlan is the fully-resolved execution plan for one statement.
type QueryPlan struct {
	Kind        PlanKind
	Statement   StatementKind // StmtSelect, StmtInsert, StmtUpdate, StmtDelete, StmtDDL
	SQL         string
	Params      []any
	Shards      []string
	Batches     []ShardBatch // populated for multi-row sharded INSERT
	Aggregation *aggregate.Context
}

// IsWrite reports whether the plan's statement must go through a shard's
// Execute path rather than its Query path.
func (p QueryPlan) IsWrite() bool {
	switch p.Statement {
	case StmtInsert, StmtUpdate, StmtDelete, StmtDDL:
		return true
	default:
		return false
	}
}
