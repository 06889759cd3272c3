package agentruntime

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dhyansraj/mcp-mesh/mesh"
)

func listen(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

// wrappedExecute is the signature registerTool installs with the underlying
// MCP server (Start registers each tool added via AddTool): raw, not-yet-stripped arguments in, either a value to render as
// text content or an error.
type wrappedExecute func(ctx context.Context, req *mcpsdk.CallToolRequest, rawArgs map[string]any) (any, error)

// mcpServer hosts the MCP server in stateless mode (one request, one
// response, no session state), binding 0.0.0.0 at the configured port.
type mcpServer struct {
	sdk *mcpsdk.Server
}

func newMCPServer(agent mesh.AgentDescriptor) *mcpServer {
	sdk := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    agent.Name,
		Version: agent.Version,
	}, nil)
	return &mcpServer{sdk: sdk}
}

// registerTool installs a tool definition and its wrapped execute with the
// underlying server. The input schema is widened to tolerate the trace
// fields (_trace_id, _parent_span, _mesh_headers) the wrapper strips
// before the user handler ever sees the arguments, so their presence
// never fails validation.
func (s *mcpServer) registerTool(spec mesh.ToolSpec, fn wrappedExecute) error {
	schema, err := permissiveSchema(spec.InputSchema)
	if err != nil {
		return fmt.Errorf("mesh: tool %s: %w", spec.FunctionName, err)
	}

	tool := &mcpsdk.Tool{
		Name:        spec.FunctionName,
		Description: spec.Description,
		InputSchema: schema,
	}

	mcpsdk.AddTool(s.sdk, tool, func(ctx context.Context, req *mcpsdk.CallToolRequest, rawArgs map[string]any) (*mcpsdk.CallToolResult, any, error) {
		result, err := fn(ctx, req, rawArgs)
		if err != nil {
			return &mcpsdk.CallToolResult{
				IsError: true,
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
			}, nil, nil
		}
		text, encErr := encodeResult(result)
		if encErr != nil {
			return &mcpsdk.CallToolResult{
				IsError: true,
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: encErr.Error()}},
			}, nil, nil
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
		}, result, nil
	})
	return nil
}

// listenAndServe starts the stateless streamable-HTTP handler bound to
// 0.0.0.0:port (host is not used for binding) and returns the underlying *http.Server so the caller can shut
// it down.
func (s *mcpServer) listenAndServe(host string, port int) (*http.Server, error) {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(*http.Request) *mcpsdk.Server { return s.sdk },
		&mcpsdk.StreamableHTTPOptions{Stateless: true},
	)
	mux := http.NewServeMux()
	mux.Handle("/mcp", handler)

	addr := fmt.Sprintf("0.0.0.0:%d", port)
	srv := &http.Server{Addr: addr, Handler: mux}
	ln, err := listen(addr)
	if err != nil {
		return nil, err
	}
	go func() { _ = srv.Serve(ln) }()
	return srv, nil
}

// encodeResult renders a tool's return value as text content: strings
// pass through verbatim, everything else is JSON-encoded.
func encodeResult(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// permissiveSchema ensures the tool's declared JSON Schema accepts the
// trace fields the wrapper strips before validation would otherwise see
// them (_trace_id, _parent_span, _mesh_headers), by setting
// additionalProperties to true, replacing any value the schema gave it. An
// empty schema is
// treated as "accept any object".
func permissiveSchema(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{"type": "object", "additionalProperties": true}, nil
	}
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("decode input schema: %w", err)
	}
	schema["additionalProperties"] = true
	return schema, nil
}
