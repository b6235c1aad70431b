// Package wireval implements the discriminated value union that flows between
// the wire boundary and the gateway's internal engines. A column value arrives
// as an "any JSON scalar" and is promoted here to a typed Value so that
// aggregation, ordering, and dialect translation all agree on what a value is.
package wireval

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind identifies which alternative of the Value union is populated.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindBigInt
	KindFloat64
	KindString
	KindBytes
	KindTimestamp
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt64:
		return "int64"
	case KindBigInt:
		return "bigint"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindTimestamp:
		return "timestamp"
	case KindJSON:
		return "json"
	default:
		return "unknown"
	}
}

// Value is the discriminated union described in the design notes: null,
// bool, int64, bigint, float64, string, bytes, timestamp, or raw json. Only
// the field matching Kind is meaningful; the zero Value is KindNull.
//
// Bigints are carried as their decimal-string text (per the wire contract
// that bigints serialize as decimal strings) rather than as math/big.Int,
// since nothing in this system needs arithmetic beyond what fits in an
// int64-plus-string representation.
type Value struct {
	Kind    Kind
	Bool    bool
	Int64   int64
	BigInt  string
	Float64 float64
	Str     string
	Bytes   []byte
	Time    time.Time
}

// Null is the canonical null value.
var Null = Value{Kind: KindNull}

func NewBool(b bool) Value        { return Value{Kind: KindBool, Bool: b} }
func NewInt64(i int64) Value      { return Value{Kind: KindInt64, Int64: i} }
func NewBigInt(s string) Value    { return Value{Kind: KindBigInt, BigInt: s} }
func NewFloat64(f float64) Value  { return Value{Kind: KindFloat64, Float64: f} }
func NewString(s string) Value    { return Value{Kind: KindString, Str: s} }
func NewBytes(b []byte) Value     { return Value{Kind: KindBytes, Bytes: b} }
func NewTimestamp(t time.Time) Value {
	return Value{Kind: KindTimestamp, Time: t}
}
func NewJSON(raw string) Value { return Value{Kind: KindJSON, Str: raw} }

// IsNull reports whether v represents SQL NULL.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// FromAny promotes a loosely-typed Go value (as decoded from JSON) into the
// discriminated union. It reverses ToAny for null, bool, int64 and string
// values; a whole-number float64 comes back as int64, and bigints, bytes,
// timestamps and JSON, which ToAny renders as text, come back as
// KindString.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null
	case bool:
		return NewBool(t)
	case string:
		return NewString(t)
	case float64:
		// encoding/json decodes all JSON numbers as float64; recover an
		// exact int64 when the value has no fractional part and fits.
		if t == math.Trunc(t) && t >= math.MinInt64 && t <= math.MaxInt64 {
			return NewInt64(int64(t))
		}
		return NewFloat64(t)
	case int:
		return NewInt64(int64(t))
	case int64:
		return NewInt64(t)
	case []byte:
		return NewBytes(t)
	case time.Time:
		return NewTimestamp(t)
	case map[string]any, []any:
		return Value{Kind: KindJSON, Str: fmt.Sprintf("%v", t)}
	default:
		return NewString(fmt.Sprintf("%v", t))
	}
}

// ToAny demotes the typed value back to a plain Go value suitable for JSON
// encoding at the wire boundary: bytes become base64 text, bigints become
// decimal-string text, timestamps become RFC3339 text.
func (v Value) ToAny() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindInt64:
		return v.Int64
	case KindBigInt:
		return v.BigInt
	case KindFloat64:
		return v.Float64
	case KindString, KindJSON:
		return v.Str
	case KindBytes:
		return base64.StdEncoding.EncodeToString(v.Bytes)
	case KindTimestamp:
		return v.Time.UTC().Format(time.RFC3339Nano)
	default:
		return nil
	}
}

// ToNative converts the value to the plain Go type a SQL driver binds
// directly: int64, float64, string, bool, []byte, time.Time, or nil. Unlike
// ToAny, bytes and timestamps keep their native Go representation instead of
// being demoted to wire-safe text, since a driver argument list is not a
// JSON envelope.
func (v Value) ToNative() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindInt64:
		return v.Int64
	case KindBigInt:
		return v.BigInt
	case KindFloat64:
		return v.Float64
	case KindString, KindJSON:
		return v.Str
	case KindBytes:
		return v.Bytes
	case KindTimestamp:
		return v.Time
	default:
		return nil
	}
}

// MarshalJSON encodes the value the way it appears at the wire boundary:
// ToAny's plain-Go-value demotion, through the standard encoder.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToAny())
}

// UnmarshalJSON decodes a raw wire scalar back through FromAny. Without an
// accompanying Field/CanonicalType a bigint-as-decimal-string and an
// ordinary string are indistinguishable on the wire; callers that need
// exact bigint/bytes recovery should consult the column's Field type
// rather than relying on this alone, the same boundary FromAny already
// documents.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// AsFloat64 best-effort converts the value to a float64 for arithmetic
// aggregation. It returns ok=false for null or non-numeric kinds that are
// also not a parseable numeric string.
func (v Value) AsFloat64() (float64, bool) {
	switch v.Kind {
	case KindInt64:
		return float64(v.Int64), true
	case KindFloat64:
		return v.Float64, true
	case KindBigInt:
		f, err := strconv.ParseFloat(v.BigInt, 64)
		return f, err == nil
	case KindString:
		f, err := strconv.ParseFloat(v.Str, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// String renders a textual form used for fallback string comparisons and
// group-key serialization. It is not meant to be the wire representation.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindInt64:
		return strconv.FormatInt(v.Int64, 10)
	case KindBigInt:
		return v.BigInt
	case KindFloat64:
		return strconv.FormatFloat(v.Float64, 'g', -1, 64)
	case KindString, KindJSON:
		return v.Str
	case KindBytes:
		return base64.StdEncoding.EncodeToString(v.Bytes)
	case KindTimestamp:
		return v.Time.UTC().Format(time.RFC3339Nano)
	default:
		return ""
	}
}

// Equal reports deep equality, used by deduplication.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		// Allow cross-kind numeric equality (e.g. int64 vs float64 0),
		// matching loose JSON-number semantics at the boundary.
		vf, vok := v.AsFloat64()
		of, ook := other.AsFloat64()
		if vok && ook {
			return vf == of
		}
		return false
	}
	switch v.Kind {
	case KindBytes:
		return string(v.Bytes) == string(other.Bytes)
	case KindTimestamp:
		return v.Time.Equal(other.Time)
	default:
		return v == other || v.String() == other.String()
	}
}

// parseISO8601 attempts to parse s as an RFC3339-ish timestamp, used by the
// cross-type ordering fallback described in the aggregation design.
func parseISO8601(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// looksISO8601 is a cheap pre-check to avoid attempting a full parse on
// strings that plainly aren't timestamps.
func looksISO8601(s string) bool {
	return len(s) >= 10 && s[4] == '-' && s[7] == '-' && (strings.Contains(s, "T") || len(s) == 10)
}
