package vindex

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashVindexDeterministicAndLength(t *testing.T) {
	v, err := New("hash", "id_hash", nil)
	require.NoError(t, err)

	ids1, err := v.Map(int64(12345))
	require.NoError(t, err)
	ids2, err := v.Map(int64(12345))
	require.NoError(t, err)
	assert.Equal(t, ids1, ids2)
	assert.Len(t, ids1[0], 8)
}

func TestHashVindexFailsOnNull(t *testing.T) {
	v, err := New("hash", "id_hash", nil)
	require.NoError(t, err)
	_, err = v.Map(nil)
	assert.ErrorIs(t, err, ErrNullValue)
}

func TestHashVindexDistribution(t *testing.T) {
	v, err := New("hash", "id_hash", nil)
	require.NoError(t, err)

	buckets := map[byte]bool{}
	for i := int64(0); i < 1000; i++ {
		ids, err := v.Map(i)
		require.NoError(t, err)
		buckets[ids[0][0]] = true
	}
	assert.Greater(t, len(buckets), 100)
}

func TestHashVindexFunctionVariants(t *testing.T) {
	for _, fn := range []string{"md5", "xxhash", "murmur3"} {
		v, err := New("hash", "id_hash", map[string]string{"function": fn})
		require.NoError(t, err, fn)
		ids, err := v.Map("abc")
		require.NoError(t, err, fn)
		assert.Len(t, ids[0], 8, fn)
	}
}

func TestConsistentHashLoadBalance(t *testing.T) {
	v, err := New("consistent_hash", "ch", nil)
	require.NoError(t, err)
	ch := v.(*ConsistentHashVindex)
	shards := []string{"-40", "40-80", "80-c0", "c0-"}
	ch.InitRing(shards)

	counts := map[string]int{}
	for i := int64(0); i < 1000; i++ {
		ids, err := ch.Map(i)
		require.NoError(t, err)
		shard := ch.GetShard(ids[0])
		counts[shard]++
	}

	expected := 1000.0 / float64(len(shards))
	for _, shard := range shards {
		c := float64(counts[shard])
		assert.GreaterOrEqual(t, c, 0.5*expected, shard)
		assert.LessOrEqual(t, c, 1.5*expected, shard)
	}
}

func TestRangeVindexBoundaryGoesToUpperInterval(t *testing.T) {
	v, err := New("range", "r", nil)
	require.NoError(t, err)
	rv := v.(*RangeVindex)
	require.NoError(t, rv.SetIntervals([]struct{ From, To, Shard string }{
		{"0", "100", "shard-a"},
		{"100", "", "shard-b"},
	}))

	assert.Equal(t, "shard-a", rv.FindShard(big.NewInt(50)))
	assert.Equal(t, "shard-b", rv.FindShard(big.NewInt(100)))
	assert.Equal(t, "", rv.FindShard(big.NewInt(-1)))
}

func TestLookupVindexMapSignalsAsync(t *testing.T) {
	v, err := New("lookup_unique", "l", map[string]string{"lookupTable": "email_lookup"})
	require.NoError(t, err)
	_, err = v.Map("someone@example.com")
	assert.ErrorIs(t, err, ErrNeedsAsyncLookup)
}

func TestLookupVindexCreateVerifyDelete(t *testing.T) {
	v, err := New("lookup_unique", "l", map[string]string{"lookupTable": "email_lookup"})
	require.NoError(t, err)
	lv := v.(*LookupVindex)

	id := KeyspaceID{1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, lv.Create("someone@example.com", []KeyspaceID{id}))

	ids, err := lv.Resolve("someone@example.com")
	require.NoError(t, err)
	assert.Equal(t, []KeyspaceID{id}, ids)

	verified, err := lv.Verify("someone@example.com", []KeyspaceID{id})
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, verified)

	require.NoError(t, lv.Delete("someone@example.com", []KeyspaceID{id}))
	_, err = lv.Resolve("someone@example.com")
	assert.Error(t, err)
}

func TestParseShardRangeWholeSpace(t *testing.T) {
	r, err := ParseShardRange("-")
	require.NoError(t, err)
	assert.True(t, r.OpenEnd)
}

func TestParseShardRangeInverted(t *testing.T) {
	_, err := ParseShardRange("80-40")
	assert.Error(t, err)
}

func TestRouteToShardExactlyOneOwner(t *testing.T) {
	ranges, gaps, err := ValidateShardRanges([]string{"-80", "80-"})
	require.NoError(t, err)
	assert.Empty(t, gaps)

	for i := 0; i < 256; i++ {
		id := KeyspaceID{byte(i)}
		name, err := RouteToShard(id, ranges)
		require.NoError(t, err)
		owners := 0
		for _, r := range ranges {
			if KeyspaceIdInShard(id, r) {
				owners++
			}
		}
		assert.Equal(t, 1, owners)
		if i < 0x80 {
			assert.Equal(t, "-80", name)
		} else {
			assert.Equal(t, "80-", name)
		}
	}
}

func TestValidateShardRangesReportsGapAsWarningNotError(t *testing.T) {
	_, gaps, err := ValidateShardRanges([]string{"-40", "80-"})
	assert.NoError(t, err)
	assert.NotEmpty(t, gaps)
}

func TestValidateShardRangesDetectsOverlapAsError(t *testing.T) {
	_, _, err := ValidateShardRanges([]string{"-90", "80-"})
	assert.Error(t, err)
}

func TestValidateShardRangesDetectsMalformedHexAsError(t *testing.T) {
	_, _, err := ValidateShardRanges([]string{"zz-80", "80-"})
	assert.Error(t, err)
}
