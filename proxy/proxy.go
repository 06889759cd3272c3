// Package proxy provides a callable handle over a remote tool endpoint,
// performing JSON-RPC-over-HTTP with retries, timeout, SSE fallback
// parsing, and dual trace/header propagation.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dhyansraj/mcp-mesh/mesh"
	"github.com/dhyansraj/mcp-mesh/telemetry"
	"github.com/dhyansraj/mcp-mesh/trace"
)

// rpcRequest/rpcResponse/rpcError mirror the JSON-RPC 2.0 envelope of the
// MCP tools/call wire format.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  *callResult     `json:"result"`
	Error   *rpcError       `json:"error"`
}

type callResult struct {
	Content []contentBlock `json:"content"`
	IsError bool           `json:"isError"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Proxy is a callable handle translating a local call into a JSON-RPC tool
// call against a remote endpoint. Immutable; a resolution change always
// creates a new Proxy rather than mutating this one.
type Proxy struct {
	endpoint     string // base URL, no trailing /mcp
	capability   string
	functionName string
	timeout      time.Duration
	maxAttempts  int

	http      *http.Client
	publisher *trace.Publisher
	obs       *telemetry.Observability
	agent     mesh.AgentDescriptor
	headers   map[string]string // static headers added via WithHeader
}

// Option configures a Proxy at construction time.
type Option func(*Proxy)

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Proxy) { p.http = c }
}

// WithPublisher attaches the trace publisher used to emit the per-call
// "proxy_call_wrapper" span.
func WithPublisher(pub *trace.Publisher) Option {
	return func(p *Proxy) { p.publisher = pub }
}

// WithObservability stores an Observability on the Proxy. Call does not log,
// record metrics or open spans through it.
func WithObservability(obs *telemetry.Observability) Option {
	return func(p *Proxy) { p.obs = obs }
}

// WithAgentDescriptor attaches the agent metadata embedded in span records.
func WithAgentDescriptor(a mesh.AgentDescriptor) Option {
	return func(p *Proxy) { p.agent = a }
}

// WithHeader adds a static header sent on every outgoing call, in addition
// to the trace and propagated-header channels.
func WithHeader(name, value string) Option {
	return func(p *Proxy) {
		if p.headers == nil {
			p.headers = make(map[string]string)
		}
		p.headers[name] = value
	}
}

// New builds a Proxy over endpoint for one resolved capability.
func New(endpoint, capability, functionName string, kwargs mesh.DependencyKwargs, opts ...Option) *Proxy {
	timeoutSeconds := kwargs.TimeoutSeconds
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}
	maxAttempts := kwargs.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	p := &Proxy{
		endpoint:     endpoint,
		capability:   capability,
		functionName: functionName,
		timeout:      time.Duration(timeoutSeconds) * time.Second,
		maxAttempts:  maxAttempts,
		http:         &http.Client{},
		obs:          telemetry.New(telemetry.Bundle{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Endpoint implements deptable.Proxy.
func (p *Proxy) Endpoint() string { return p.endpoint }

// Call invokes the remote tool: builds the JSON-RPC envelope, injects
// dual-channel trace context and propagated headers, POSTs to
// {endpoint}/mcp with retry/backoff, parses the response (direct JSON or
// SSE fallback), and publishes a proxy_call_wrapper span.
func (p *Proxy) Call(ctx context.Context, args map[string]any) (any, error) {
	start := trace.NowMillis()
	startWall := time.Now()

	// Minted once per Call, not per retry attempt, and threaded through to
	// callOnce so the span this method publishes below and the _parent_span
	// value propagated downstream (args fallback + header channel) are the
	// same ID every attempt sees.
	childSpanID := ""
	if _, ok := trace.TraceScopeFromContext(ctx); ok {
		childSpanID = trace.GenerateSpanID()
	}

	result, attemptErr := p.callWithRetry(ctx, args, childSpanID)

	if p.publisher != nil && p.publisher.IsAvailable() {
		tc, _ := trace.TraceScopeFromContext(ctx)
		span := mesh.SpanRecord{
			TraceID:      tc.TraceID,
			SpanID:       childSpanID,
			ParentSpan:   tc.ParentSpanID,
			FunctionName: "proxy_call_wrapper",
			StartTime:    start,
			EndTime:      trace.NowMillis(),
			DurationMs:   float64(time.Since(startWall).Microseconds()) / 1000.0,
			Success:      attemptErr == nil,
			Dependencies: []string{p.endpoint},
			Agent:        p.agent,
		}
		if attemptErr != nil {
			span.Error = attemptErr.Error()
		}
		p.publisher.PublishSpan(ctx, span)
	}

	return result, attemptErr
}

func (p *Proxy) callOnce(ctx context.Context, args map[string]any, childSpanID string) (any, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	body, err := p.buildRequestBody(ctx, args, childSpanID)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, p.endpoint+"/mcp", bytes.NewReader(body))
	if err != nil {
		return nil, &mesh.TransportError{Endpoint: p.endpoint, Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	p.applyTraceHeaders(ctx, httpReq, childSpanID)
	p.applyPropagatedHeaders(ctx, httpReq)

	resp, err := p.http.Do(httpReq)
	if err != nil {
		if callCtx.Err() != nil {
			return nil, &mesh.TimeoutError{Endpoint: p.endpoint, TimeoutSeconds: int(p.timeout.Seconds())}
		}
		return nil, &mesh.TransportError{Endpoint: p.endpoint, Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &mesh.TransportError{Endpoint: p.endpoint, StatusCode: resp.StatusCode}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &mesh.TransportError{Endpoint: p.endpoint, Cause: err}
	}

	env, err := decodeEnvelope(resp.Header.Get("Content-Type"), raw)
	if err != nil {
		return nil, &mesh.TransportError{Endpoint: p.endpoint, Cause: err}
	}

	if env.Error != nil {
		return nil, &mesh.RemoteError{Code: env.Error.Code, Message: env.Error.Message}
	}
	if env.Result == nil {
		return nil, &mesh.RemoteError{Message: "empty result"}
	}
	if env.Result.IsError {
		return nil, &mesh.RemoteError{Message: firstText(env.Result.Content)}
	}

	return parseResultValue(env.Result), nil
}

// buildRequestBody assembles the JSON-RPC envelope. childSpanID, when
// non-empty, is this outbound call's newly minted span ID — the same value
// applyTraceHeaders writes into the HTTP header pair, so both propagation
// channels agree exactly.
func (p *Proxy) buildRequestBody(ctx context.Context, args map[string]any, childSpanID string) ([]byte, error) {
	merged := make(map[string]any, len(args)+2)
	for k, v := range args {
		merged[k] = v
	}

	if tc, ok := trace.TraceScopeFromContext(ctx); ok && childSpanID != "" {
		merged["_trace_id"] = tc.TraceID
		merged["_parent_span"] = childSpanID
	}

	if headers := trace.HeadersFromContext(ctx); len(headers) > 0 {
		merged["_mesh_headers"] = headers
	}

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  "tools/call",
		Params: toolCallParams{
			Name:      p.functionName,
			Arguments: merged,
		},
	}
	return json.Marshal(req)
}

// applyTraceHeaders sets the HTTP header channel to the same trace ID and
// child span ID written into the argument fallbacks, so a downstream server
// that reads either channel observes an identical pair.
func (p *Proxy) applyTraceHeaders(ctx context.Context, req *http.Request, childSpanID string) {
	tc, ok := trace.TraceScopeFromContext(ctx)
	if !ok {
		return
	}
	req.Header.Set(trace.HeaderTraceID, tc.TraceID)
	if childSpanID != "" {
		req.Header.Set(trace.HeaderParentSpan, childSpanID)
	}
}

func (p *Proxy) applyPropagatedHeaders(ctx context.Context, req *http.Request) {
	for k, v := range trace.HeadersFromContext(ctx) {
		req.Header.Set(k, v)
	}
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}
}

func firstText(blocks []contentBlock) string {
	for _, b := range blocks {
		if b.Type == "text" {
			return b.Text
		}
	}
	return ""
}

// parseResultValue extracts the first text content block and, if it parses
// as JSON, returns the decoded value; otherwise returns the raw text.
func parseResultValue(r *callResult) any {
	text := firstText(r.Content)
	var decoded any
	if err := json.Unmarshal([]byte(text), &decoded); err == nil {
		return decoded
	}
	return text
}

