package vschema

// Builder offers a fluent API for constructing a VSchema in code, mirroring
// the shape of the operations list's VSchemaBuilder. Each call returns the
// same builder for chaining.
type Builder struct {
	vs      *VSchema
	current string
}

// NewBuilder starts a new, empty VSchema.
func NewBuilder() *Builder {
	return &Builder{vs: &VSchema{Keyspaces: map[string]KeyspaceVSchema{}}}
}

// Keyspace ensures ks exists (sharded per the flag) and returns the builder
// for further chaining against it.
func (b *Builder) Keyspace(name string, sharded bool) *Builder {
	k := b.vs.Keyspaces[name]
	k.Sharded = sharded
	if k.Vindexes == nil {
		k.Vindexes = map[string]VindexDef{}
	}
	if k.Tables == nil {
		k.Tables = map[string]TableVSchema{}
	}
	b.vs.Keyspaces[name] = k
	b.current = name
	return b
}

// Vindex declares a vindex within the most recently named keyspace.
func (b *Builder) Vindex(name string, def VindexDef) *Builder {
	k := b.vs.Keyspaces[b.current]
	k.Vindexes[name] = def
	b.vs.Keyspaces[b.current] = k
	return b
}

// Shards sets the shard range list of the current keyspace.
func (b *Builder) Shards(ranges ...string) *Builder {
	k := b.vs.Keyspaces[b.current]
	k.Shards = ranges
	b.vs.Keyspaces[b.current] = k
	return b
}

// Table declares a table with its column-vindexes inside the current
// keyspace.
func (b *Builder) Table(name string, kind TableKind, columnVindexes ...ColumnVindex) *Builder {
	k := b.vs.Keyspaces[b.current]
	k.Tables[name] = TableVSchema{TableKind: kind, ColumnVindexes: columnVindexes}
	b.vs.Keyspaces[b.current] = k
	return b
}

// Build returns the constructed VSchema.
func (b *Builder) Build() *VSchema {
	return b.vs
}
