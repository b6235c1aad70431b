package transport

import (
	"time"

	"github.com/dreamware/vitessgw/internal/engine"
	"github.com/dreamware/vitessgw/internal/wire"
	"github.com/dreamware/vitessgw/internal/wireval"
)

// paramsToWire promotes a driver-bound argument list to wire values.
func paramsToWire(params []any) []wireval.Value {
	if params == nil {
		return nil
	}
	out := make([]wireval.Value, len(params))
	for i, p := range params {
		out[i] = wireval.FromAny(p)
	}
	return out
}

// paramsFromWire demotes wire values back to the driver-bound shape a
// storage adapter expects.
func paramsFromWire(values []wireval.Value) []any {
	if values == nil {
		return nil
	}
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v.ToNative()
	}
	return out
}

func fieldsToWire(fields []engine.Field) []wire.FieldInfo {
	if fields == nil {
		return nil
	}
	out := make([]wire.FieldInfo, len(fields))
	for i, f := range fields {
		out[i] = wire.FieldInfo{Name: f.Name, Type: string(f.Type), NativeType: f.NativeType}
	}
	return out
}

func fieldsFromWire(fields []wire.FieldInfo) []engine.Field {
	if fields == nil {
		return nil
	}
	out := make([]engine.Field, len(fields))
	for i, f := range fields {
		out[i] = engine.Field{Name: f.Name, Type: engine.CanonicalType(f.Type), NativeType: f.NativeType}
	}
	return out
}

func queryResultToResultBody(res engine.QueryResult) wire.ResultBody {
	return wire.ResultBody{
		Rows:     res.Rows,
		RowCount: res.RowCount,
		Fields:   fieldsToWire(res.Fields),
		Duration: res.Duration.Seconds(),
	}
}

func resultBodyToQueryResult(body wire.ResultBody) engine.QueryResult {
	return engine.QueryResult{
		Rows:     body.Rows,
		RowCount: body.RowCount,
		Fields:   fieldsFromWire(body.Fields),
		Duration: time.Duration(body.Duration * float64(time.Second)),
	}
}

func executeResultToResultBody(res engine.ExecuteResult) wire.ResultBody {
	return wire.ResultBody{Affected: res.Affected, LastInsertID: res.LastInsertID}
}

func resultBodyToExecuteResult(body wire.ResultBody) engine.ExecuteResult {
	return engine.ExecuteResult{Affected: body.Affected, LastInsertID: body.LastInsertID}
}

func resultResponse(hdr wire.Header, body wire.ResultBody) wire.Response {
	hdr.Type = wire.TypeResult
	return wire.Response{Header: hdr, Result: &body}
}

func ackResponse(hdr wire.Header) wire.Response {
	hdr.Type = wire.TypeAck
	return wire.Response{Header: hdr}
}
