package vschema

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSharded() *VSchema {
	return NewBuilder().
		Keyspace("commerce", true).
		Vindex("hash", VindexDef{Type: "hash"}).
		Shards("-80", "80-").
		Table("users", TableOrdinary, ColumnVindex{Columns: []string{"id"}, Name: "hash"}).
		Build()
}

func TestMarshalParseRoundTripPreservesSchema(t *testing.T) {
	vs := buildSharded()
	raw, err := json.Marshal(vs)
	require.NoError(t, err)

	got, err := Parse(raw)
	require.NoError(t, err)

	if diff := cmp.Diff(vs, got, cmpopts.IgnoreUnexported(VSchema{})); diff != "" {
		t.Fatalf("round trip changed schema (-want +got):\n%s", diff)
	}
}

func TestValidateGoodSchemaHasNoErrors(t *testing.T) {
	vs := buildSharded()
	result := Validate(vs)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidateMissingVindex(t *testing.T) {
	vs := NewBuilder().Keyspace("commerce", true).Build()
	result := Validate(vs)
	require.False(t, result.Valid)
	assert.Equal(t, MissingVindex, result.Errors[0].Code)
}

func TestValidateMissingPrimaryVindex(t *testing.T) {
	vs := NewBuilder().
		Keyspace("commerce", true).
		Vindex("hash", VindexDef{Type: "hash"}).
		Shards("-").
		Table("users", TableOrdinary).
		Build()
	result := Validate(vs)
	require.False(t, result.Valid)
	found := false
	for _, e := range result.Errors {
		if e.Code == MissingPrimaryVindex {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidateUnknownVindex(t *testing.T) {
	vs := NewBuilder().
		Keyspace("commerce", true).
		Vindex("hash", VindexDef{Type: "hash"}).
		Shards("-").
		Table("users", TableOrdinary, ColumnVindex{Columns: []string{"id"}, Name: "nope"}).
		Build()
	result := Validate(vs)
	require.False(t, result.Valid)
	assert.Equal(t, UnknownVindex, result.Errors[0].Code)
}

func TestValidateMissingLookupTable(t *testing.T) {
	vs := NewBuilder().
		Keyspace("commerce", true).
		Vindex("by_email", VindexDef{Type: "lookup_unique"}).
		Shards("-").
		Build()
	result := Validate(vs)
	require.False(t, result.Valid)
	assert.Equal(t, MissingLookupTable, result.Errors[0].Code)
}

func TestValidateMissingSequence(t *testing.T) {
	vs := NewBuilder().
		Keyspace("commerce", true).
		Vindex("hash", VindexDef{Type: "hash"}).
		Shards("-").
		Table("users", TableOrdinary, ColumnVindex{Columns: []string{"id"}, Name: "hash"}).
		Build()
	k := vs.Keyspaces["commerce"]
	t2 := k.Tables["users"]
	t2.AutoIncrement = &AutoIncrement{Column: "id", SequenceTableName: "users_seq"}
	k.Tables["users"] = t2
	vs.Keyspaces["commerce"] = k

	result := Validate(vs)
	require.False(t, result.Valid)
	assert.Equal(t, MissingSequence, result.Errors[0].Code)
}

func TestValidateShardRangeGapIsWarningNotError(t *testing.T) {
	vs := NewBuilder().
		Keyspace("commerce", true).
		Vindex("hash", VindexDef{Type: "hash"}).
		Shards("-40", "80-").
		Build()
	result := Validate(vs)
	require.True(t, result.Valid)
	require.NotEmpty(t, result.Warnings)
	assert.Equal(t, ShardRangeGap, result.Warnings[0].Code)
}

func TestValidateOverlappingShardRangeIsError(t *testing.T) {
	vs := NewBuilder().
		Keyspace("commerce", true).
		Vindex("hash", VindexDef{Type: "hash"}).
		Shards("-90", "80-").
		Build()
	result := Validate(vs)
	require.False(t, result.Valid)
	assert.Equal(t, InvalidShardRange, result.Errors[0].Code)
}

func TestUnshardedKeyspaceReportsDashShard(t *testing.T) {
	vs := NewBuilder().Keyspace("lookup_db", false).Build()
	assert.Equal(t, []string{"-"}, vs.GetShards("lookup_db"))
}

func TestGetPrimaryVindex(t *testing.T) {
	vs := buildSharded()
	cols, v, ok := vs.GetPrimaryVindex("commerce", "users")
	require.True(t, ok)
	assert.Equal(t, []string{"id"}, cols)
	assert.True(t, v.Unique())
}
