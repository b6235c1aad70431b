// Package vindex implements the value-to-keyspace-id mapping layer: the
// functions that decide, given a sharding column's value, which 8-byte
// keyspace-id it hashes to and therefore which shard owns it.
//
// Vindexes are registered by name (hash, consistent_hash, range, lookup,
// lookup_unique, lookup_hash, numeric, binary_md5, null) and instantiated
// from a VSchema's VindexDef via New, mirroring the factory pattern real
// Vitess uses for its vindexes package.
package vindex

import (
	"fmt"
	"sync"
)

// KeyspaceID is an opaque 8-byte big-endian value, as defined by the data
// model: the output of every vindex's Map.
type KeyspaceID [8]byte

// Vindex maps column values to keyspace-ids. Unique returns true when each
// value maps to at most one keyspace-id and the mapping is reversible
// in principle (used for primary-vindex eligibility). NeedsLookup is true
// for vindexes whose Map cannot be computed synchronously from the value
// alone (the lookup family).
type Vindex interface {
	// Name is the registered type name, e.g. "hash".
	Name() string
	// Map computes the keyspace-id(s) for value. A vindex that is unique
	// returns at most one id; a non-unique vindex may return several.
	Map(value any) ([]KeyspaceID, error)
	Unique() bool
	NeedsLookup() bool
}

// Reversible is implemented by vindexes that can recover (a candidate)
// original value from a keyspace-id, grounded in real Vitess's
// Reversible/Hashing interfaces (vindexes/binary.go).
type Reversible interface {
	ReverseMap(id KeyspaceID) (any, bool)
}

// Writable is implemented by vindexes backed by mutable external state
// (the lookup family): Create/Verify/Delete drive that state.
type Writable interface {
	Create(value any, ids []KeyspaceID) error
	Verify(value any, ids []KeyspaceID) ([]bool, error)
	Delete(value any, ids []KeyspaceID) error
}

// ErrNeedsAsyncLookup is returned by Map on a lookup vindex: the mapping is
// not synchronously computable and the caller (the gateway's lookup-plan
// path) must resolve it against the lookup table instead.
var ErrNeedsAsyncLookup = fmt.Errorf("vindex: value requires asynchronous lookup resolution")

// ErrNullValue is returned by Map when value is nil/undefined; vindexes
// have no defined mapping for null.
var ErrNullValue = fmt.Errorf("vindex: cannot map a null value")

// Factory builds a Vindex instance from its declared parameters (the
// VindexDef.params map from the VSchema).
type Factory func(name string, params map[string]string) (Vindex, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register installs a vindex type under name, to be instantiated later by
// New. Mirrors real Vitess's `func init() { Register("binary", newBinary) }`
// convention; each built-in vindex type in this package registers itself
// in its own init().
func Register(typeName string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[typeName] = factory
}

// New instantiates the vindex registered under typeName with params. The
// name passed through is the VSchema-declared vindex name (distinct from
// its type), used for diagnostics.
func New(typeName, name string, params map[string]string) (Vindex, error) {
	registryMu.RLock()
	factory, ok := registry[typeName]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("vindex: unknown type %q", typeName)
	}
	return factory(name, params)
}
