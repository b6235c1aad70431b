// Package wire implements the collaborator-facing RPC envelope exchanged
// between a gateway and a tablet over the transport layer: message-type
// codes, request/response bodies, and the safe (never-panic,
// null-on-failure) JSON boundary the collaborator's protocol expects.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/dreamware/vitessgw/internal/engine"
	"github.com/dreamware/vitessgw/internal/vschema"
	"github.com/dreamware/vitessgw/internal/wireval"
)

// MessageType discriminates an envelope's body shape.
type MessageType uint8

const (
	TypeQuery        MessageType = 0x01
	TypeExecute      MessageType = 0x02
	TypeBatch        MessageType = 0x03
	TypeBegin        MessageType = 0x10
	TypeCommit       MessageType = 0x11
	TypeRollback     MessageType = 0x12
	TypeStatus       MessageType = 0x20
	TypeHealth       MessageType = 0x21
	TypeSchema       MessageType = 0x22
	TypeVSchema      MessageType = 0x23
	TypeShardQuery   MessageType = 0x30
	TypeShardExecute MessageType = 0x31
	TypeShardBatch   MessageType = 0x32
	TypeResult       MessageType = 0x80
	TypeError        MessageType = 0x81
	TypeAck          MessageType = 0x82
)

func (t MessageType) String() string {
	switch t {
	case TypeQuery:
		return "query"
	case TypeExecute:
		return "execute"
	case TypeBatch:
		return "batch"
	case TypeBegin:
		return "begin"
	case TypeCommit:
		return "commit"
	case TypeRollback:
		return "rollback"
	case TypeStatus:
		return "status"
	case TypeHealth:
		return "health"
	case TypeSchema:
		return "schema"
	case TypeVSchema:
		return "vschema"
	case TypeShardQuery:
		return "shard-query"
	case TypeShardExecute:
		return "shard-execute"
	case TypeShardBatch:
		return "shard-batch"
	case TypeResult:
		return "result"
	case TypeError:
		return "error"
	case TypeAck:
		return "ack"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(t))
	}
}

// Header is shared by every request and response envelope.
type Header struct {
	Type      MessageType `json:"type"`
	ID        string      `json:"id"`
	Timestamp int64       `json:"timestamp"`
}

// NewHeader stamps a fresh request id for typ at timestamp (epoch
// milliseconds; callers own the clock so envelopes stay deterministic
// under test).
func NewHeader(typ MessageType, timestamp int64) Header {
	return Header{Type: typ, ID: uuid.NewString(), Timestamp: timestamp}
}

// Request is the envelope for every request-shaped message: query,
// execute, batch, begin, commit, rollback, status, health, schema,
// vschema, and the shard-* variants a gateway sends to a tablet.
type Request struct {
	Header
	SQL        string         `json:"sql,omitempty"`
	Params     []wireval.Value `json:"params,omitempty"`
	Keyspace   string         `json:"keyspace,omitempty"`
	TxID       string         `json:"txId,omitempty"`
	Shard      string         `json:"shard,omitempty"`
	Statements []string       `json:"statements,omitempty"`
	Options    map[string]any `json:"options,omitempty"`
}

// Response is the envelope for result, error, and ack messages.
type Response struct {
	Header
	Result  *ResultBody    `json:"result,omitempty"`
	TxID    string         `json:"txId,omitempty"`
	Shards  []string       `json:"shards,omitempty"`
	Status  *ClusterStatus `json:"status,omitempty"`
	Health  *ShardHealth   `json:"health,omitempty"`
	Tables  []TableInfo    `json:"tables,omitempty"`
	VSchema *vschema.VSchema `json:"vschema,omitempty"`
	Error   *ErrorBody     `json:"error,omitempty"`
}

// ResultBody covers the three result shapes the design's QueryResult/
// ExecuteResult/BatchResult can take on the wire; a given response
// populates only the fields its request type produces.
type ResultBody struct {
	Rows     []engine.Row   `json:"rows,omitempty"`
	RowCount int            `json:"rowCount,omitempty"`
	Fields   []FieldInfo    `json:"fields,omitempty"`
	Duration float64        `json:"duration,omitempty"` // seconds

	Affected     int           `json:"affected,omitempty"`
	LastInsertID wireval.Value `json:"lastInsertId,omitempty"`

	Results  []ResultBody `json:"results,omitempty"`
	Success  bool         `json:"success,omitempty"`
	FailedAt *int         `json:"failedAt,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// FieldInfo is engine.Field's wire projection.
type FieldInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	NativeType string `json:"nativeType,omitempty"`
}

// ErrorBody carries the stable error-taxonomy fields.
type ErrorBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Shard    string `json:"shard,omitempty"`
	SQLState string `json:"sqlState,omitempty"`
}

// ErrorBodyFromGatewayError projects a *engine.GatewayError onto the wire
// error shape.
func ErrorBodyFromGatewayError(err error) ErrorBody {
	if ge, ok := engine.AsGatewayError(err); ok {
		return ErrorBody{Code: string(ge.Code), Message: ge.Error(), Shard: ge.Shard, SQLState: ge.SQLState}
	}
	return ErrorBody{Code: string(engine.CodeQueryError), Message: err.Error()}
}

// Latency is the p50/p95/p99 triple reported in ShardHealth, in seconds.
type Latency struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// ShardHealth is one shard's entry in a ClusterStatus.
type ShardHealth struct {
	ID         string   `json:"id"`
	Healthy    bool     `json:"healthy"`
	Engine     string   `json:"engine"`
	QueryCount int64    `json:"queryCount"`
	ErrorCount int64    `json:"errorCount"`
	LastQuery  int64    `json:"lastQuery"` // epoch ms
	Latency    *Latency `json:"latency,omitempty"`
}

// ClusterStatus is the gateway's keyspace-wide status payload.
type ClusterStatus struct {
	Keyspace     string        `json:"keyspace"`
	ShardCount   int           `json:"shardCount"`
	Engine       string        `json:"engine"`
	Shards       []ShardHealth `json:"shards"`
	TotalQueries int64         `json:"totalQueries"`
	TotalErrors  int64         `json:"totalErrors"`
}

// ColumnInfo describes one column in a schema response.
type ColumnInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// TableInfo describes one table or view in a schema response.
type TableInfo struct {
	Name    string       `json:"name"`
	Kind    string       `json:"kind"` // "table" | "view"
	Columns []ColumnInfo `json:"columns"`
}

// SafeParse decodes data into a fresh T, reporting ok=false instead of an
// error on any parse failure — the Go shape of the collaborator's
// safeJsonParse, which returns null rather than throwing.
func SafeParse[T any](data []byte) (T, bool) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		var zero T
		return zero, false
	}
	return v, true
}

// SafeStringify encodes v, reporting ok=false instead of an error if v
// cannot be marshaled — the Go shape of the collaborator's
// safeJsonStringify, which returns null for a cyclic structure rather
// than throwing. encoding/json does not loop on a cycle the way some
// dynamic-language encoders do; it instead fails with an
// *json.UnsupportedValueError once it detects unbounded recursion, which
// this folds into the same null-on-failure contract.
func SafeStringify(v any) ([]byte, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SerializeRequest and DeserializeRequest are SafeStringify/SafeParse
// specialized to Request, satisfying the round-trip property
// deserializeRequest(serializeRequest(x)) == x for every request kind.
func SerializeRequest(req Request) ([]byte, bool)    { return SafeStringify(req) }
func DeserializeRequest(data []byte) (Request, bool) { return SafeParse[Request](data) }

// SerializeResponse and DeserializeResponse are the Response counterparts.
func SerializeResponse(resp Response) ([]byte, bool)   { return SafeStringify(resp) }
func DeserializeResponse(data []byte) (Response, bool) { return SafeParse[Response](data) }
