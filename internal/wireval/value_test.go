package wireval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAnyRecoversIntegers(t *testing.T) {
	v := FromAny(float64(42))
	require.Equal(t, KindInt64, v.Kind)
	assert.Equal(t, int64(42), v.Int64)
}

func TestFromAnyKeepsFractional(t *testing.T) {
	v := FromAny(float64(4.5))
	require.Equal(t, KindFloat64, v.Kind)
	assert.Equal(t, 4.5, v.Float64)
}

func TestToAnyRoundTripsBytesAsBase64(t *testing.T) {
	v := NewBytes([]byte("hi"))
	encoded := v.ToAny()
	assert.Equal(t, "aGk=", encoded)
}

func TestCompareNullsLastAscByDefault(t *testing.T) {
	spec := SortSpec{Column: "x"}
	assert.Equal(t, -1, Compare(NewInt64(1), Null, spec))
	assert.Equal(t, 1, Compare(Null, NewInt64(1), spec))
}

func TestCompareNullsFirstDesc(t *testing.T) {
	spec := SortSpec{Column: "x", Descending: true}
	assert.Equal(t, 1, Compare(NewInt64(1), Null, spec))
}

func TestCompareNumericCrossKind(t *testing.T) {
	spec := SortSpec{Column: "x"}
	assert.Equal(t, 0, Compare(NewInt64(10), NewFloat64(10), spec))
	assert.Equal(t, -1, Compare(NewInt64(1), NewFloat64(2), spec))
}

func TestCompareTimestamps(t *testing.T) {
	spec := SortSpec{Column: "t"}
	earlier := NewTimestamp(time.Unix(100, 0))
	later := NewTimestamp(time.Unix(200, 0))
	assert.Equal(t, -1, Compare(earlier, later, spec))
	assert.Equal(t, 1, Compare(later, earlier, spec))
}

func TestCompareDescNegates(t *testing.T) {
	spec := SortSpec{Column: "x", Descending: true}
	assert.Equal(t, 1, Compare(NewInt64(1), NewInt64(2), spec))
}

func TestEqualAcrossNumericKinds(t *testing.T) {
	assert.True(t, NewInt64(5).Equal(NewFloat64(5)))
	assert.False(t, NewInt64(5).Equal(NewFloat64(6)))
}
