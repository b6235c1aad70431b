package wireval

import "time"

// SortSpec names a column and its direction, mirroring the AggregationContext
// orderBy entries described in the aggregation engine design.
type SortSpec struct {
	Column     string
	Descending bool
	NullsFirst *bool // nil means use the direction-based default
}

// nullsFirstDefault returns the default null collation for a direction: nulls
// last for ASC, nulls first for DESC.
func (s SortSpec) nullsFirstDefault() bool {
	if s.NullsFirst != nil {
		return *s.NullsFirst
	}
	return s.Descending
}

// Compare implements the cross-type ordering used by MIN/MAX/ORDER BY:
// nulls collate according to spec.NullsFirst (or direction default),
// numbers and bigints compare arithmetically, strings collate
// byte-for-byte, timestamps compare by instant, ISO-8601-parseable string
// pairs fall back to timestamp comparison, and otherwise unclassified
// mixed types fall back to comparing their textual rendering. DESC negates
// the result.
func Compare(a, b Value, spec SortSpec) int {
	if a.IsNull() || b.IsNull() {
		if a.IsNull() && b.IsNull() {
			return 0
		}
		nullsFirst := spec.nullsFirstDefault()
		if a.IsNull() {
			if nullsFirst {
				return -1
			}
			return 1
		}
		if nullsFirst {
			return 1
		}
		return -1
	}

	result := compareNonNull(a, b)
	if spec.Descending {
		return -result
	}
	return result
}

func compareNonNull(a, b Value) int {
	if af, aok := numericValue(a); aok {
		if bf, bok := numericValue(b); bok {
			return compareFloat(af, bf)
		}
	}

	if a.Kind == KindTimestamp || b.Kind == KindTimestamp {
		at, aok := asTime(a)
		bt, bok := asTime(b)
		if aok && bok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			default:
				return 0
			}
		}
	}

	if a.Kind == KindString && b.Kind == KindString {
		if looksISO8601(a.Str) && looksISO8601(b.Str) {
			at, aok := parseISO8601(a.Str)
			bt, bok := parseISO8601(b.Str)
			if aok && bok {
				switch {
				case at.Before(bt):
					return -1
				case at.After(bt):
					return 1
				default:
					return 0
				}
			}
		}
		return compareString(a.Str, b.Str)
	}

	return compareString(a.String(), b.String())
}

func numericValue(v Value) (float64, bool) {
	switch v.Kind {
	case KindInt64, KindFloat64, KindBigInt:
		return v.AsFloat64()
	default:
		return 0, false
	}
}

func asTime(v Value) (time.Time, bool) {
	if v.Kind == KindTimestamp {
		return v.Time, true
	}
	if v.Kind == KindString && looksISO8601(v.Str) {
		return parseISO8601(v.Str)
	}
	return time.Time{}, false
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
