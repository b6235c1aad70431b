package vindex

func init() {
	Register("null", newNullVindex)
}

// NullVindex is the identity vindex used for columns that participate in
// the VSchema (e.g. for declaring a column-vindex on a reference table)
// without actually contributing to routing: every value maps to the same
// single keyspace-id, so it is effectively non-discriminating. Matches the
// "null" entry in the VindexDef type enum.
type NullVindex struct {
	name string
}

func newNullVindex(name string, params map[string]string) (Vindex, error) {
	return &NullVindex{name: name}, nil
}

func (n *NullVindex) Name() string      { return n.name }
func (n *NullVindex) Unique() bool      { return false }
func (n *NullVindex) NeedsLookup() bool { return false }

func (n *NullVindex) Map(value any) ([]KeyspaceID, error) {
	return []KeyspaceID{{}}, nil
}
