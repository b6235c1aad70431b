package vindex

import (
	"crypto/md5"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
)

func init() {
	Register("hash", newHashVindex)
	Register("binary_md5", func(name string, params map[string]string) (Vindex, error) {
		return newHashVindex(name, map[string]string{"function": "md5"})
	})
}

// hashFunc computes an 8-byte digest prefix of the canonical byte encoding
// of a value. The function choice is selectable per the hash vindex spec
// (default md5-prefix; alternatives xxhash, murmur3).
type hashFunc func([]byte) [8]byte

func md5Prefix(b []byte) [8]byte {
	sum := md5.Sum(b)
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}

func xxhashPrefix(b []byte) [8]byte {
	var out [8]byte
	h := xxhash.Sum64(b)
	putUint64BE(out[:], h)
	return out
}

func murmur3Prefix(b []byte) [8]byte {
	var out [8]byte
	h := murmur3.Sum64(b)
	putUint64BE(out[:], h)
	return out
}

func putUint64BE(dst []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		dst[i] = byte(v)
		v >>= 8
	}
}

// HashVindex is the default unique vindex: it hashes the canonical byte
// encoding of the sharding column value to an 8-byte keyspace-id. It is
// unique and needs no external lookup.
type HashVindex struct {
	name string
	fn   hashFunc
}

func newHashVindex(name string, params map[string]string) (Vindex, error) {
	fn := md5Prefix
	switch params["function"] {
	case "", "md5":
		fn = md5Prefix
	case "xxhash":
		fn = xxhashPrefix
	case "murmur3":
		fn = murmur3Prefix
	default:
		return nil, fmt.Errorf("vindex %q: unknown hash function %q", name, params["function"])
	}
	return &HashVindex{name: name, fn: fn}, nil
}

func (h *HashVindex) Name() string     { return h.name }
func (h *HashVindex) Unique() bool     { return true }
func (h *HashVindex) NeedsLookup() bool { return false }

// Map implements Vindex. The input domain is integer, bigint, or string
// (including UUID text); it fails on a null value.
func (h *HashVindex) Map(value any) ([]KeyspaceID, error) {
	if value == nil {
		return nil, ErrNullValue
	}
	b, err := canonicalBytes(value)
	if err != nil {
		return nil, err
	}
	return []KeyspaceID{KeyspaceID(h.fn(b))}, nil
}

// ReverseMap is a best-effort reverse lookup: hash vindexes are one-way, so
// this always reports not-found. It exists to satisfy the Reversible
// contract the way real Vitess's binary vindex does, for diagnostic
// callers that probe every vindex uniformly.
func (h *HashVindex) ReverseMap(id KeyspaceID) (any, bool) {
	return nil, false
}

// canonicalBytes renders value into the canonical byte encoding hashed by
// the hash vindex family: integers as their decimal text, strings as their
// UTF-8 bytes.
func canonicalBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case int:
		return []byte(strconv.FormatInt(int64(v), 10)), nil
	case int32:
		return []byte(strconv.FormatInt(int64(v), 10)), nil
	case int64:
		return []byte(strconv.FormatInt(v, 10)), nil
	case uint64:
		return []byte(strconv.FormatUint(v, 10)), nil
	case float64:
		return []byte(strconv.FormatInt(int64(v), 10)), nil
	default:
		return []byte(fmt.Sprintf("%v", v)), nil
	}
}
