package vindex

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

func init() {
	Register("consistent_hash", newConsistentHashVindex)
}

const defaultVnodes = 150

// ConsistentHashVindex places vnodes tokens per shard on a 64-bit ring and
// routes a keyspace-id to the shard owning the first token clockwise from
// it. Unlike HashVindex it is shard-topology-aware: InitRing must be called
// with the live shard list before Map is usable.
type ConsistentHashVindex struct {
	name   string
	vnodes int

	tokens []ringToken // sorted by position
}

type ringToken struct {
	position uint64
	shard    string
}

func newConsistentHashVindex(name string, params map[string]string) (Vindex, error) {
	vnodes := defaultVnodes
	if raw, ok := params["vnodes"]; ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("vindex %q: invalid vnodes %q", name, raw)
		}
		vnodes = n
	}
	return &ConsistentHashVindex{name: name, vnodes: vnodes}, nil
}

func (c *ConsistentHashVindex) Name() string      { return c.name }
func (c *ConsistentHashVindex) Unique() bool       { return true }
func (c *ConsistentHashVindex) NeedsLookup() bool  { return false }

// InitRing places vnodes x len(shards) tokens on the ring. It must be
// called whenever the shard topology changes before Map/GetShard are used.
func (c *ConsistentHashVindex) InitRing(shards []string) {
	tokens := make([]ringToken, 0, len(shards)*c.vnodes)
	for _, shard := range shards {
		for i := 0; i < c.vnodes; i++ {
			key := shard + "#" + strconv.Itoa(i)
			tokens = append(tokens, ringToken{
				position: xxhash.Sum64String(key),
				shard:    shard,
			})
		}
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].position < tokens[j].position })
	c.tokens = tokens
}

// GetShard walks clockwise from keyspaceId's ring position to the first
// token and returns its shard. Returns "" if the ring is empty.
func (c *ConsistentHashVindex) GetShard(id KeyspaceID) string {
	if len(c.tokens) == 0 {
		return ""
	}
	pos := beUint64(id[:])
	idx := sort.Search(len(c.tokens), func(i int) bool { return c.tokens[i].position >= pos })
	if idx == len(c.tokens) {
		idx = 0
	}
	return c.tokens[idx].shard
}

// Map hashes value to a keyspace-id with the xxhash-prefix scheme (the
// same as HashVindex's "xxhash" variant); the ring placement is a routing concern handled by GetShard,
// not by Map itself (Map's keyspace-id is topology-independent).
func (c *ConsistentHashVindex) Map(value any) ([]KeyspaceID, error) {
	if value == nil {
		return nil, ErrNullValue
	}
	b, err := canonicalBytes(value)
	if err != nil {
		return nil, err
	}
	return []KeyspaceID{KeyspaceID(xxhashPrefix(b))}, nil
}

func beUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8 && i < len(b); i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}
