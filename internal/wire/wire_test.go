package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/vitessgw/internal/engine"
	"github.com/dreamware/vitessgw/internal/wireval"
)

func TestMessageTypeStringCoversEveryCode(t *testing.T) {
	for _, typ := range []MessageType{
		TypeQuery, TypeExecute, TypeBatch, TypeBegin, TypeCommit, TypeRollback,
		TypeStatus, TypeHealth, TypeSchema, TypeVSchema,
		TypeShardQuery, TypeShardExecute, TypeShardBatch,
		TypeResult, TypeError, TypeAck,
	} {
		assert.NotContains(t, typ.String(), "unknown")
	}
	assert.Contains(t, MessageType(0xff).String(), "unknown")
}

func TestRequestRoundTripsForEveryKind(t *testing.T) {
	cases := []Request{
		{Header: NewHeader(TypeQuery, 1000), SQL: "SELECT * FROM t", Keyspace: "commerce"},
		{Header: NewHeader(TypeExecute, 1000), SQL: "INSERT INTO t (id) VALUES (1)"},
		{Header: NewHeader(TypeBatch, 1000), Statements: []string{"INSERT INTO t (id) VALUES (1)", "INSERT INTO t (id) VALUES (2)"}},
		{Header: NewHeader(TypeBegin, 1000), Options: map[string]any{"isolation": "serializable"}},
		{Header: NewHeader(TypeCommit, 1000), TxID: "gtid-1-abc"},
		{Header: NewHeader(TypeRollback, 1000), TxID: "gtid-1-abc"},
		{Header: NewHeader(TypeShardQuery, 1000), SQL: "SELECT 1", Shard: "-80"},
		{Header: NewHeader(TypeShardExecute, 1000), SQL: "DELETE FROM t", Shard: "80-", Params: []wireval.Value{wireval.NewInt64(5), wireval.NewString("x")}},
		{Header: NewHeader(TypeShardBatch, 1000), Statements: []string{"INSERT INTO t (id) VALUES (1)"}, Shard: "-80"},
	}
	for _, req := range cases {
		data, ok := SerializeRequest(req)
		require.True(t, ok, "serialize %s", req.Type)
		got, ok := DeserializeRequest(data)
		require.True(t, ok, "deserialize %s", req.Type)
		assert.Equal(t, req, got, "round trip mismatch for %s", req.Type)
	}
}

func TestSafeParseReturnsNotOKOnMalformedJSON(t *testing.T) {
	_, ok := SafeParse[Request]([]byte("{not json"))
	assert.False(t, ok)
}

func TestSafeStringifyReturnsNotOKOnUnsupportedValue(t *testing.T) {
	_, ok := SafeStringify(make(chan int))
	assert.False(t, ok)
}

func TestValidateRequestRejectsMissingRequiredFields(t *testing.T) {
	cases := []struct {
		name string
		req  Request
		ok   bool
	}{
		{"query without sql", Request{Header: Header{Type: TypeQuery}}, false},
		{"query with sql", Request{Header: Header{Type: TypeQuery}, SQL: "SELECT 1"}, true},
		{"batch without statements", Request{Header: Header{Type: TypeBatch}}, false},
		{"commit without txId", Request{Header: Header{Type: TypeCommit}}, false},
		{"shard-query without shard", Request{Header: Header{Type: TypeShardQuery}, SQL: "SELECT 1"}, false},
		{"shard-query with shard", Request{Header: Header{Type: TypeShardQuery}, SQL: "SELECT 1", Shard: "-80"}, true},
		{"begin needs nothing", Request{Header: Header{Type: TypeBegin}}, true},
		{"unknown type", Request{Header: Header{Type: MessageType(0xfe)}}, false},
	}
	for _, c := range cases {
		err := ValidateRequest(c.req)
		if c.ok {
			assert.NoError(t, err, c.name)
		} else {
			assert.Error(t, err, c.name)
		}
	}
}

func TestValidateResponseRejectsMissingBody(t *testing.T) {
	assert.Error(t, ValidateResponse(Response{Header: Header{Type: TypeResult}}))
	assert.NoError(t, ValidateResponse(Response{Header: Header{Type: TypeResult}, Result: &ResultBody{RowCount: 1}}))
	assert.Error(t, ValidateResponse(Response{Header: Header{Type: TypeError}}))
	assert.NoError(t, ValidateResponse(Response{Header: Header{Type: TypeError}, Error: &ErrorBody{Code: "QUERY_ERROR", Message: "boom"}}))
	assert.NoError(t, ValidateResponse(Response{Header: Header{Type: TypeAck}}))
}

func TestErrorBodyFromGatewayErrorProjectsTaxonomyFields(t *testing.T) {
	err := engine.New(engine.CodeShardWriteError, "-80", assert.AnError)
	body := ErrorBodyFromGatewayError(err)
	assert.Equal(t, string(engine.CodeShardWriteError), body.Code)
	assert.Equal(t, "-80", body.Shard)
}

func TestResultBodyRoundTripsRowsWithNullAndBigint(t *testing.T) {
	resp := Response{
		Header: NewHeader(TypeResult, 2000),
		Result: &ResultBody{
			Rows: []engine.Row{
				{"id": wireval.NewBigInt("90071992547409921"), "name": wireval.Null},
			},
			RowCount: 1,
			Fields:   []FieldInfo{{Name: "id", Type: "bigint"}, {Name: "name", Type: "text"}},
		},
	}
	data, ok := SerializeResponse(resp)
	require.True(t, ok)
	got, ok := DeserializeResponse(data)
	require.True(t, ok)
	require.Len(t, got.Result.Rows, 1)
	assert.Equal(t, "90071992547409921", got.Result.Rows[0]["id"].Str)
	assert.True(t, got.Result.Rows[0]["name"].IsNull())
}
