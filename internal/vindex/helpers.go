package vindex

import (
	"encoding/hex"
	"fmt"
	"sort"
)

// ShardRange is the parsed {start, end} half-open interval a shard name
// denotes, per the shard-range encoding rules: lowercase hex, dash
// separated, empty prefix/suffix for open ends, "-" for the whole space.
type ShardRange struct {
	Name  string
	Start KeyspaceID
	End   KeyspaceID
	// OpenEnd is true when the range has no upper bound ("80-" or "-").
	OpenEnd bool
}

var (
	keyspaceIDMin = KeyspaceID{}
	keyspaceIDMax = KeyspaceID{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
)

// ComputeKeyspaceId calls v.Map and fails when the result is empty,
// matching the helper of the same name in the component design.
func ComputeKeyspaceId(v Vindex, value any) (KeyspaceID, error) {
	ids, err := v.Map(value)
	if err != nil {
		return KeyspaceID{}, err
	}
	if len(ids) == 0 {
		return KeyspaceID{}, fmt.Errorf("vindex: Map produced no keyspace-id for %v", value)
	}
	return ids[0], nil
}

// ParseShardRange parses a shard name's canonical textual form into its
// half-open interval. "-" denotes the full space. Fails on bad hex or an
// inverted range (start >= end, when end is bounded).
func ParseShardRange(name string) (ShardRange, error) {
	if name == "-" {
		return ShardRange{Name: name, Start: keyspaceIDMin, End: keyspaceIDMax, OpenEnd: true}, nil
	}

	dash := -1
	for i, c := range name {
		if c == '-' {
			dash = i
			break
		}
	}
	if dash < 0 {
		return ShardRange{}, fmt.Errorf("vindex: invalid shard range %q: missing '-'", name)
	}

	startHex, endHex := name[:dash], name[dash+1:]

	start := keyspaceIDMin
	if startHex != "" {
		b, err := hex.DecodeString(padHex(startHex))
		if err != nil {
			return ShardRange{}, fmt.Errorf("vindex: invalid shard range %q: %w", name, err)
		}
		copy(start[:], b)
	}

	openEnd := endHex == ""
	end := keyspaceIDMax
	if !openEnd {
		b, err := hex.DecodeString(padHex(endHex))
		if err != nil {
			return ShardRange{}, fmt.Errorf("vindex: invalid shard range %q: %w", name, err)
		}
		copy(end[:], b)
		if compareKeyspaceID(start, end) >= 0 {
			return ShardRange{}, fmt.Errorf("vindex: invalid shard range %q: start >= end", name)
		}
	}

	return ShardRange{Name: name, Start: start, End: end, OpenEnd: openEnd}, nil
}

// padHex right-pads a hex prefix to 16 hex digits (8 bytes) so partial
// boundaries like "80" or "40" decode to the correct most-significant
// byte position.
func padHex(s string) string {
	for len(s) < 16 {
		s += "0"
	}
	if len(s) > 16 {
		s = s[:16]
	}
	return s
}

// CompareKeyspaceID orders two keyspace-ids byte-for-byte, exported for
// callers (the router's range-predicate intersection) that need to
// compare ids without going through RouteToShard.
func CompareKeyspaceID(a, b KeyspaceID) int {
	return compareKeyspaceID(a, b)
}

func compareKeyspaceID(a, b KeyspaceID) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// KeyspaceIdInShard is an inclusion test: does id fall within shard's
// half-open interval.
func KeyspaceIdInShard(id KeyspaceID, shard ShardRange) bool {
	if compareKeyspaceID(id, shard.Start) < 0 {
		return false
	}
	if shard.OpenEnd {
		return true
	}
	return compareKeyspaceID(id, shard.End) < 0
}

// RouteToShard places id inside exactly one of sortedShards (already
// parsed and sorted by Start) via binary search on the first differing
// byte, returning the owning shard's name.
func RouteToShard(id KeyspaceID, sortedShards []ShardRange) (string, error) {
	idx := sort.Search(len(sortedShards), func(i int) bool {
		return compareKeyspaceID(sortedShards[i].Start, id) > 0
	})
	// idx is the first shard whose Start is > id; the owning shard is the
	// one before it (its Start <= id < its End, or an open end).
	if idx == 0 {
		return "", fmt.Errorf("vindex: no shard owns keyspace-id %x", id)
	}
	candidate := sortedShards[idx-1]
	if !KeyspaceIdInShard(id, candidate) {
		return "", fmt.Errorf("vindex: no shard owns keyspace-id %x", id)
	}
	return candidate.Name, nil
}

// SortShardRanges sorts a slice of shard ranges by Start, ascending, the
// precondition RouteToShard's binary search requires.
func SortShardRanges(shards []ShardRange) {
	sort.Slice(shards, func(i, j int) bool {
		return compareKeyspaceID(shards[i].Start, shards[j].Start) < 0
	})
}

// ValidateShardRanges checks the VSchema invariant that shard ranges are
// disjoint and well-formed, returning a descriptive error on the first
// malformed-bounds or overlap violation found. Gaps in coverage are not
// themselves an error: they are reported back as human-readable warnings
// in gaps, leaving ranges usable for routing (a lookup simply finds no
// owner for an id that falls in one).
func ValidateShardRanges(names []string) (ranges []ShardRange, gaps []string, err error) {
	ranges = make([]ShardRange, 0, len(names))
	for _, n := range names {
		r, perr := ParseShardRange(n)
		if perr != nil {
			return nil, nil, perr
		}
		ranges = append(ranges, r)
	}
	SortShardRanges(ranges)

	if len(ranges) == 1 && ranges[0].Name == "-" {
		return ranges, nil, nil
	}

	if compareKeyspaceID(ranges[0].Start, keyspaceIDMin) != 0 {
		gaps = append(gaps, fmt.Sprintf("shard ranges leave a gap before %x", ranges[0].Start))
	}
	for i := 1; i < len(ranges); i++ {
		prevEnd := ranges[i-1].End
		if ranges[i-1].OpenEnd {
			return nil, nil, fmt.Errorf("vindex: shard %q is open-ended but followed by %q", ranges[i-1].Name, ranges[i].Name)
		}
		cmp := compareKeyspaceID(prevEnd, ranges[i].Start)
		switch {
		case cmp < 0:
			gaps = append(gaps, fmt.Sprintf("shard ranges leave a gap between %q and %q", ranges[i-1].Name, ranges[i].Name))
		case cmp > 0:
			return nil, nil, fmt.Errorf("vindex: shard ranges %q and %q overlap", ranges[i-1].Name, ranges[i].Name)
		}
	}
	if !ranges[len(ranges)-1].OpenEnd {
		gaps = append(gaps, fmt.Sprintf("shard ranges leave a gap after %q", ranges[len(ranges)-1].Name))
	}
	return ranges, gaps, nil
}
