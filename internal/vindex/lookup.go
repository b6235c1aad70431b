package vindex

import (
	"fmt"
	"sync"
)

func init() {
	Register("lookup", newLookupVindex(false))
	Register("lookup_unique", newLookupVindex(true))
	Register("lookup_hash", newLookupVindex(true))
}

// LookupVindex keeps shard identity in an external lookup table hosted in
// some keyspace. Map cannot compute the mapping synchronously from the
// value alone; it signals ErrNeedsAsyncLookup so the gateway's Lookup plan
// (routing rule 6) can resolve it against the lookup table instead.
// Create/Verify/Delete operate on an in-process table substituting for
// that external lookup table, sufficient to exercise the vindex contract.
type LookupVindex struct {
	name        string
	lookupTable string
	unique      bool

	mu    sync.RWMutex
	table map[string][]KeyspaceID
}

func newLookupVindex(unique bool) Factory {
	return func(name string, params map[string]string) (Vindex, error) {
		lt := params["lookupTable"]
		if lt == "" {
			return nil, fmt.Errorf("vindex %q: lookup vindex requires lookupTable", name)
		}
		return &LookupVindex{
			name:        name,
			lookupTable: lt,
			unique:      unique,
			table:       make(map[string][]KeyspaceID),
		}, nil
	}
}

func (l *LookupVindex) Name() string      { return l.name }
func (l *LookupVindex) Unique() bool      { return l.unique }
func (l *LookupVindex) NeedsLookup() bool { return true }

// Map always fails with ErrNeedsAsyncLookup: this vindex's identity lives
// in the lookup table, not in a pure function of value.
func (l *LookupVindex) Map(value any) ([]KeyspaceID, error) {
	return nil, ErrNeedsAsyncLookup
}

// Resolve looks up value's keyspace-id(s) in the backing table. This is
// what the gateway's Lookup plan calls after Map signals it must.
func (l *LookupVindex) Resolve(value any) ([]KeyspaceID, error) {
	key := fmt.Sprintf("%v", value)
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids, ok := l.table[key]
	if !ok {
		return nil, fmt.Errorf("vindex %q: no lookup entry for %v", l.name, value)
	}
	return ids, nil
}

func (l *LookupVindex) Create(value any, ids []KeyspaceID) error {
	key := fmt.Sprintf("%v", value)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.unique {
		if existing, ok := l.table[key]; ok && len(existing) > 0 {
			return fmt.Errorf("vindex %q: unique lookup collision for %v", l.name, value)
		}
	}
	l.table[key] = append(append([]KeyspaceID{}, l.table[key]...), ids...)
	return nil
}

func (l *LookupVindex) Verify(value any, ids []KeyspaceID) ([]bool, error) {
	key := fmt.Sprintf("%v", value)
	l.mu.RLock()
	existing := l.table[key]
	l.mu.RUnlock()

	results := make([]bool, len(ids))
	for i, id := range ids {
		for _, e := range existing {
			if e == id {
				results[i] = true
				break
			}
		}
	}
	return results, nil
}

func (l *LookupVindex) Delete(value any, ids []KeyspaceID) error {
	key := fmt.Sprintf("%v", value)
	l.mu.Lock()
	defer l.mu.Unlock()
	existing := l.table[key]
	kept := existing[:0:0]
	for _, e := range existing {
		remove := false
		for _, id := range ids {
			if e == id {
				remove = true
				break
			}
		}
		if !remove {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(l.table, key)
	} else {
		l.table[key] = kept
	}
	return nil
}
