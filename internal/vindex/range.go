package vindex

import (
	"fmt"
	"math/big"
	"strconv"

	"golang.org/x/exp/slices"
)

func init() {
	Register("range", newRangeVindex)
	Register("numeric", newRangeVindex)
}

// rangeInterval is a half-open [from, to) interval assigned to a shard.
type rangeInterval struct {
	from, to *big.Int // to == nil means unbounded upper end
	shard    string
}

// RangeVindex routes by which of a set of ordered, non-overlapping integer
// intervals a value falls in. Boundary values belong to the upper interval
// (the lower bound of each interval is inclusive, matching the half-open
// convention used throughout the shard-range model).
type RangeVindex struct {
	name      string
	intervals []rangeInterval
}

func newRangeVindex(name string, params map[string]string) (Vindex, error) {
	return &RangeVindex{name: name}, nil
}

func (r *RangeVindex) Name() string      { return r.name }
func (r *RangeVindex) Unique() bool      { return true }
func (r *RangeVindex) NeedsLookup() bool { return false }

// SetIntervals configures the ordered intervals. Each entry is
// {from, to, shard}; to == "" means unbounded.
func (r *RangeVindex) SetIntervals(entries []struct {
	From, To, Shard string
}) error {
	intervals := make([]rangeInterval, 0, len(entries))
	for _, e := range entries {
		from, ok := new(big.Int).SetString(e.From, 10)
		if !ok {
			return fmt.Errorf("vindex %q: invalid from bound %q", r.name, e.From)
		}
		var to *big.Int
		if e.To != "" {
			to, ok = new(big.Int).SetString(e.To, 10)
			if !ok {
				return fmt.Errorf("vindex %q: invalid to bound %q", r.name, e.To)
			}
		}
		intervals = append(intervals, rangeInterval{from: from, to: to, shard: e.Shard})
	}
	slices.SortFunc(intervals, func(a, b rangeInterval) int { return a.from.Cmp(b.from) })
	r.intervals = intervals
	return nil
}

// FindShard returns the shard whose interval contains v (upper bound
// exclusive), or "" if no interval matches.
func (r *RangeVindex) FindShard(v *big.Int) string {
	for _, iv := range r.intervals {
		if v.Cmp(iv.from) < 0 {
			continue
		}
		if iv.to != nil && v.Cmp(iv.to) >= 0 {
			continue
		}
		return iv.shard
	}
	return ""
}

// Map converts value to a big.Int and encodes it as an 8-byte keyspace-id
// (the same value space the range intervals are expressed in), failing on
// values that cannot be parsed as integers.
func (r *RangeVindex) Map(value any) ([]KeyspaceID, error) {
	if value == nil {
		return nil, ErrNullValue
	}
	n, err := toBigInt(value)
	if err != nil {
		return nil, err
	}
	return []KeyspaceID{bigIntToKeyspaceID(n)}, nil
}

func toBigInt(value any) (*big.Int, error) {
	switch v := value.(type) {
	case int:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	case float64:
		return big.NewInt(int64(v)), nil
	case string:
		n, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return nil, fmt.Errorf("vindex: %q is not an integer", v)
		}
		return n, nil
	default:
		n, ok := new(big.Int).SetString(fmt.Sprintf("%v", v), 10)
		if !ok {
			return nil, fmt.Errorf("vindex: cannot convert %v to integer", v)
		}
		return n, nil
	}
}

func bigIntToKeyspaceID(n *big.Int) KeyspaceID {
	var id KeyspaceID
	b := n.Bytes()
	if len(b) > 8 {
		b = b[len(b)-8:]
	}
	copy(id[8-len(b):], b)
	return id
}

// parseIntParam is a small helper shared by vindex factories that accept
// integer parameters.
func parseIntParam(params map[string]string, key string, def int) (int, error) {
	raw, ok := params[key]
	if !ok {
		return def, nil
	}
	return strconv.Atoi(raw)
}
