// Package ghl talks to GoHighLevel's MCP endpoint. The service is a
// non-standard hybrid: it accepts plain JSON-RPC 2.0 POSTs (no session
// handshake) but frames every response body as Server-Sent-Events text even
// though the transport is a single, non-streaming HTTP response.
package ghl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aiprl/april/pkg/credentials"
)

// DefaultURL is the production GHL MCP endpoint.
const DefaultURL = "https://services.leadconnectorhq.com/mcp/"

// methodListTools is the catalog discovery method. Tool invocations use the
// tool name itself as the JSON-RPC method.
const methodListTools = "tools/list"

// ToolDefinition is one entry of the remote tool catalog. Immutable once
// fetched.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// DefaultTimestampParams lists, per tool, the parameters that carry epoch
// timestamps. GHL rejects numeric timestamps, so these are coerced to
// strings before transmission. The set is declared rather than inferred
// from the schema.
var DefaultTimestampParams = map[string][]string{
	"calendars_get-calendar-events": {"query_startTime", "query_endTime"},
	"payments_list-transactions":    {"query_startAt", "query_endAt"},
}

// Bridge issues one JSON-RPC call per tool invocation and unwraps the
// pseudo-SSE response framing. It holds no per-tenant state; credentials
// are supplied per call and travel as headers, never as call arguments.
type Bridge struct {
	url             string
	client          *http.Client
	timestampParams map[string][]string

	mu     sync.Mutex
	nextID int
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithHTTPClient overrides the HTTP client (used by tests and for custom
// timeouts).
func WithHTTPClient(c *http.Client) BridgeOption {
	return func(b *Bridge) { b.client = c }
}

// WithTimestampParams replaces the declared timestamp parameter sets.
func WithTimestampParams(params map[string][]string) BridgeOption {
	return func(b *Bridge) { b.timestampParams = params }
}

// NewBridge creates a Bridge for the given endpoint URL. An empty url selects
// the production endpoint.
func NewBridge(url string, opts ...BridgeOption) *Bridge {
	if url == "" {
		url = DefaultURL
	}
	b := &Bridge{
		url:             url,
		client:          http.DefaultClient,
		timestampParams: DefaultTimestampParams,
		nextID:          1,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Call invokes one remote tool and returns the JSON-RPC result member
// unmodified. CRM payload semantics are opaque to this layer. All failures
// surface as *ToolError; nothing is retried here.
func (b *Bridge) Call(ctx context.Context, toolName string, args map[string]any, creds credentials.Bundle) (json.RawMessage, error) {
	env, err := b.roundTrip(ctx, toolName, b.coerceTimestamps(toolName, args), creds)
	if err != nil {
		return nil, err
	}
	if env.Error != nil {
		return nil, &ToolError{Kind: KindRemote, Code: env.Error.Code, Message: env.Error.Message}
	}
	return env.Result, nil
}

// ListTools fetches the remote tool catalog.
func (b *Bridge) ListTools(ctx context.Context, creds credentials.Bundle) ([]ToolDefinition, error) {
	env, err := b.roundTrip(ctx, methodListTools, map[string]any{}, creds)
	if err != nil {
		return nil, err
	}
	if env.Error != nil {
		return nil, &ToolError{Kind: KindRemote, Code: env.Error.Code, Message: env.Error.Message}
	}
	var result struct {
		Tools []ToolDefinition `json:"tools"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return nil, &ToolError{Kind: KindParse, Message: fmt.Sprintf("tool catalog: %v", err)}
	}
	return result.Tools, nil
}

func (b *Bridge) roundTrip(ctx context.Context, method string, params any, creds credentials.Bundle) (*rpcEnvelope, error) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.mu.Unlock()

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, &ToolError{Kind: KindParse, Message: fmt.Sprintf("encode request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return nil, &ToolError{Kind: KindTransport, Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+creds.PITToken)
	req.Header.Set("locationId", creds.LocationID)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	slog.Debug("GHL call", "method", method, "id", id)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, &ToolError{Kind: KindTransport, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ToolError{Kind: KindTransport, Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ToolError{
			Kind:    KindTransport,
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(raw), 300)),
		}
	}

	return parseBody(raw)
}

// parseBody unwraps the hybrid response framing. The body is SSE-shaped
// text; every "data:" line is parsed and the last structurally valid
// JSON-RPC envelope is authoritative. Earlier frames are diagnostic noise.
// A body that is plain JSON (no framing) is accepted as the envelope itself.
func parseBody(raw []byte) (*rpcEnvelope, error) {
	var last *rpcEnvelope
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimRight(line, "\r")
		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		var env rpcEnvelope
		if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &env); err != nil {
			continue
		}
		if env.JSONRPC == "" {
			continue
		}
		last = &env
	}
	if last != nil {
		return last, nil
	}

	var env rpcEnvelope
	if err := json.Unmarshal(bytes.TrimSpace(raw), &env); err == nil && env.JSONRPC != "" {
		return &env, nil
	}
	return nil, &ToolError{Kind: KindParse, Message: fmt.Sprintf("no JSON-RPC envelope in response body: %s", truncate(string(raw), 200))}
}

// coerceTimestamps stringifies the declared timestamp parameters for a tool.
// The input map is not mutated.
func (b *Bridge) coerceTimestamps(toolName string, args map[string]any) map[string]any {
	declared := b.timestampParams[toolName]
	if len(declared) == 0 || len(args) == 0 {
		return args
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	for _, name := range declared {
		switch v := out[name].(type) {
		case float64:
			out[name] = fmt.Sprintf("%d", int64(v))
		case int:
			out[name] = fmt.Sprintf("%d", v)
		case int64:
			out[name] = fmt.Sprintf("%d", v)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
