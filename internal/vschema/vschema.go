// Package vschema implements the declarative sharding configuration — the
// mapping from keyspace name to its vindexes, tables, and shard list — and
// its validator, matching the VSchema entities of the data model.
package vschema

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dreamware/vitessgw/internal/vindex"
)

// TableKind classifies a table's role in sharding.
type TableKind string

const (
	TableOrdinary TableKind = "ordinary"
	TableSequence TableKind = "sequence"
	TableReference TableKind = "reference"
)

// VindexDef declares one vindex available within a keyspace.
type VindexDef struct {
	Type        string            `json:"type"`
	Params      map[string]string `json:"params,omitempty"`
	LookupTable string            `json:"lookupTable,omitempty"`
	Columns     []string          `json:"columns,omitempty"`
	From        string            `json:"from,omitempty"`
	To          string            `json:"to,omitempty"`
}

// ColumnVindex binds one or more columns of a table to a named vindex.
type ColumnVindex struct {
	Columns []string `json:"columns"`
	Name    string   `json:"name"`
}

// AutoIncrement names the column populated from a sequence table.
type AutoIncrement struct {
	Column             string `json:"column"`
	SequenceTableName  string `json:"sequenceTableName"`
}

// TableVSchema is one table's sharding configuration.
type TableVSchema struct {
	ColumnVindexes []ColumnVindex `json:"columnVindexes,omitempty"`
	AutoIncrement  *AutoIncrement `json:"autoIncrement,omitempty"`
	TableKind      TableKind      `json:"tableKind,omitempty"`
}

// KeyspaceVSchema is one keyspace's full configuration.
type KeyspaceVSchema struct {
	Sharded  bool                     `json:"sharded"`
	Vindexes map[string]VindexDef     `json:"vindexes,omitempty"`
	Tables   map[string]TableVSchema  `json:"tables,omitempty"`
	Shards   []string                 `json:"shards,omitempty"`
}

// VSchema is the mapping from keyspace name to its configuration, the
// top-level entity parsed from JSON or built with Builder.
type VSchema struct {
	Keyspaces map[string]KeyspaceVSchema `json:"keyspaces"`

	vindexMu    sync.Mutex
	vindexCache map[string]vindex.Vindex
}

// Parse decodes a VSchema from its JSON representation.
func Parse(data []byte) (*VSchema, error) {
	var vs VSchema
	if err := json.Unmarshal(data, &vs); err != nil {
		return nil, fmt.Errorf("vschema: parse failed: %w", err)
	}
	if vs.Keyspaces == nil {
		vs.Keyspaces = map[string]KeyspaceVSchema{}
	}
	return &vs, nil
}

// vindexFor instantiates (and caches) the vindex named name in keyspace ks.
// Caching matters beyond avoiding repeat work: a lookup vindex carries
// in-process table state populated by Create, which would be silently
// lost if every caller got a fresh instance.
func (vs *VSchema) vindexFor(ks string, def VindexDef, name string) (vindex.Vindex, error) {
	vs.vindexMu.Lock()
	defer vs.vindexMu.Unlock()
	if vs.vindexCache == nil {
		vs.vindexCache = map[string]vindex.Vindex{}
	}
	key := ks + "." + name
	if v, ok := vs.vindexCache[key]; ok {
		return v, nil
	}
	v, err := vindex.New(def.Type, name, def.Params)
	if err != nil {
		return nil, err
	}
	vs.vindexCache[key] = v
	return v, nil
}

// IsSharded reports whether keyspace ks is sharded. Unknown keyspaces
// report false.
func (vs *VSchema) IsSharded(ks string) bool {
	k, ok := vs.Keyspaces[ks]
	return ok && k.Sharded
}

// GetShards returns ks's shard list. Unsharded keyspaces (and unknown
// ones) report ["-"].
func (vs *VSchema) GetShards(ks string) []string {
	k, ok := vs.Keyspaces[ks]
	if !ok || !k.Sharded || len(k.Shards) == 0 {
		return []string{"-"}
	}
	return k.Shards
}

// GetTable looks up a table's configuration within a keyspace.
func (vs *VSchema) GetTable(ks, table string) (TableVSchema, bool) {
	k, ok := vs.Keyspaces[ks]
	if !ok {
		return TableVSchema{}, false
	}
	t, ok := k.Tables[table]
	return t, ok
}

// GetPrimaryVindex returns the first column-vindex of table, which the
// data model designates the primary vindex, along with its instantiated
// Vindex and the column(s) it is bound to.
func (vs *VSchema) GetPrimaryVindex(ks, table string) (columns []string, v vindex.Vindex, ok bool) {
	k, kok := vs.Keyspaces[ks]
	if !kok {
		return nil, nil, false
	}
	t, tok := k.Tables[table]
	if !tok || len(t.ColumnVindexes) == 0 {
		return nil, nil, false
	}
	cv := t.ColumnVindexes[0]
	def, dok := k.Vindexes[cv.Name]
	if !dok {
		return nil, nil, false
	}
	inst, err := vs.vindexFor(ks, def, cv.Name)
	if err != nil {
		return nil, nil, false
	}
	return cv.Columns, inst, true
}

// GetColumnVindex finds the column-vindex binding (if any) whose column
// list contains column, and instantiates it. Used by the router to
// resolve predicates on non-primary vindexed columns (range, lookup).
func (vs *VSchema) GetColumnVindex(ks, table, column string) (v vindex.Vindex, name string, ok bool) {
	k, kok := vs.Keyspaces[ks]
	if !kok {
		return nil, "", false
	}
	t, tok := k.Tables[table]
	if !tok {
		return nil, "", false
	}
	for _, cv := range t.ColumnVindexes {
		for _, c := range cv.Columns {
			if c != column {
				continue
			}
			def, dok := k.Vindexes[cv.Name]
			if !dok {
				return nil, "", false
			}
			inst, err := vs.vindexFor(ks, def, cv.Name)
			if err != nil {
				return nil, "", false
			}
			return inst, cv.Name, true
		}
	}
	return nil, "", false
}

// GetVindex instantiates the named vindex declared in keyspace ks.
func (vs *VSchema) GetVindex(ks, name string) (vindex.Vindex, bool) {
	k, ok := vs.Keyspaces[ks]
	if !ok {
		return nil, false
	}
	def, ok := k.Vindexes[name]
	if !ok {
		return nil, false
	}
	inst, err := vs.vindexFor(ks, def, name)
	if err != nil {
		return nil, false
	}
	return inst, true
}
