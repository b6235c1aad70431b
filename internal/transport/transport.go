// Package transport carries wire envelopes between a gateway and a
// tablet process over HTTP, generalizing the teacher's PostJSON/GetJSON
// request helpers to the RPC envelope's request/response shape and its
// single POST /rpc entry point instead of many path-specific endpoints.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/vitessgw/internal/engine"
	"github.com/dreamware/vitessgw/internal/wire"
)

const defaultTimeout = 5 * time.Second

// Handler answers one wire.Request with a wire.Response. A tablet process
// and a gateway process each install their own Handler (see
// TabletHandler and GatewayHandler) behind the same NewServer plumbing.
type Handler func(ctx context.Context, req wire.Request) wire.Response

// Client sends wire envelopes to a single peer's /rpc endpoint and decodes
// its response, playing the same role for this system that PostJSON/
// GetJSON play for node-to-coordinator calls: a small, reused HTTP client
// wrapped around one marshal-send-unmarshal round trip.
type Client struct {
	addr   string
	http   *http.Client
	logger *zap.Logger
}

// NewClient targets addr (a base URL such as "http://tablet-1:9001").
func NewClient(addr string) *Client {
	return &Client{addr: addr, http: &http.Client{Timeout: defaultTimeout}, logger: zap.NewNop()}
}

func (c *Client) SetLogger(l *zap.Logger) { c.logger = l }

// SetTimeout overrides the per-request timeout the default constructor set.
func (c *Client) SetTimeout(d time.Duration) {
	c.http = &http.Client{Timeout: d}
}

// Send posts req to the peer and decodes its response envelope. A
// transport-level failure (dial error, non-2xx status, malformed body) is
// reported as a CONNECTION_FAILED gateway error; an application-level
// failure the peer reported in the envelope's Error body is reported as
// that error's own taxonomy code.
func (c *Client) Send(ctx context.Context, req wire.Request) (wire.Response, error) {
	body, ok := wire.SerializeRequest(req)
	if !ok {
		return wire.Response{}, engine.New(engine.CodeQueryError, req.Shard, fmt.Errorf("transport: request %s could not be serialized", req.Type))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.addr+"/rpc", bytes.NewReader(body))
	if err != nil {
		return wire.Response{}, engine.New(engine.CodeConnectionFailed, req.Shard, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Warn("transport request failed", zap.String("addr", c.addr), zap.String("type", req.Type.String()), zap.Error(err))
		return wire.Response{}, engine.New(engine.CodeConnectionFailed, req.Shard, fmt.Errorf("transport: %s unreachable: %w", c.addr, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return wire.Response{}, engine.New(engine.CodeConnectionFailed, req.Shard, err)
	}
	if resp.StatusCode >= 300 {
		return wire.Response{}, engine.New(engine.CodeConnectionFailed, req.Shard, fmt.Errorf("transport: %s returned http %d", c.addr, resp.StatusCode))
	}

	out, ok := wire.DeserializeResponse(respBody)
	if !ok {
		return wire.Response{}, engine.New(engine.CodeConnectionFailed, req.Shard, fmt.Errorf("transport: malformed response from %s", c.addr))
	}
	if out.Error != nil {
		return out, &engine.GatewayError{Code: engine.Code(out.Error.Code), Shard: out.Error.Shard, SQLState: out.Error.SQLState, Err: fmt.Errorf("%s", out.Error.Message)}
	}
	return out, nil
}

// NewServer wraps handler in the single POST /rpc endpoint every peer in
// this system exposes: decode a wire.Request, dispatch it, encode the
// wire.Response. A malformed request body never reaches handler — it is
// rejected as a TypeError response before dispatch.
func NewServer(handler Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/rpc", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req, ok := wire.DeserializeRequest(body)
		if !ok {
			writeResponse(w, errorResponse(wire.Header{Type: wire.TypeError}, engine.New(engine.CodeQueryError, "", fmt.Errorf("transport: malformed request body"))))
			return
		}
		if err := wire.ValidateRequest(req); err != nil {
			writeResponse(w, errorResponse(req.Header, engine.New(engine.CodeQueryError, req.Shard, err)))
			return
		}
		writeResponse(w, handler(r.Context(), req))
	})
	return mux
}

func writeResponse(w http.ResponseWriter, resp wire.Response) {
	data, ok := wire.SerializeResponse(resp)
	if !ok {
		http.Error(w, "transport: response could not be serialized", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

// errorResponse builds a TypeError envelope that echoes hdr's id/type-
// independent fields (ID, Timestamp) while stamping TypeError itself.
func errorResponse(hdr wire.Header, err error) wire.Response {
	body := wire.ErrorBodyFromGatewayError(err)
	hdr.Type = wire.TypeError
	return wire.Response{Header: hdr, Error: &body}
}
