package agentruntime

import (
	"context"
	"net/http"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dhyansraj/mcp-mesh/mesh"
	"github.com/dhyansraj/mcp-mesh/telemetry"
	"github.com/dhyansraj/mcp-mesh/trace"
)

const (
	fieldTraceID     = "_trace_id"
	fieldParentSpan  = "_parent_span"
	fieldMeshHeaders = "_mesh_headers"
)

// wrapExecute decorates a tool's execute function: strip trace fields,
// install propagated headers, compute trace context, build the positional
// dependency array, run the user handler under the new trace scope, and
// publish a span on the way out regardless of outcome.
func (r *Runtime) wrapExecute(spec mesh.ToolSpec, fn ExecuteFunc) wrappedExecute {
	consumerID := spec.FunctionName
	slotCount := len(spec.Dependencies)

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, rawArgs map[string]any) (any, error) {
		start := trace.NowMillis()
		startWall := time.Now()

		cleaned, tc, newSpanID := extractTraceFields(ctx, req, rawArgs)
		ctx = trace.WithHeaders(ctx, extractPropagatedHeaders(ctx, req, rawArgs, r.allow))

		slots := r.table.GetSlots(consumerID, slotCount)
		deps := make([]Dependency, slotCount)
		injected := 0
		for i, p := range slots {
			if p == nil {
				continue
			}
			if d, ok := p.(Dependency); ok {
				deps[i] = d
				injected++
			}
		}

		var (
			result any
			fnErr  error
		)
		err := trace.RunWithTraceContext(ctx, tc, func(ctx context.Context) error {
			ctx = trace.WithTraceScope(ctx, mesh.TraceContext{TraceID: tc.TraceID, ParentSpanID: newSpanID})
			result, fnErr = fn(ctx, cleaned, deps)
			return fnErr
		})

		if r.publisher != nil && r.publisher.IsAvailable() {
			r.publisher.PublishSpan(ctx, mesh.SpanRecord{
				TraceID:              tc.TraceID,
				SpanID:               newSpanID,
				ParentSpan:           tc.ParentSpanID,
				FunctionName:         consumerID,
				StartTime:            start,
				EndTime:              trace.NowMillis(),
				DurationMs:           float64(time.Since(startWall).Microseconds()) / 1000.0,
				Success:              err == nil,
				Error:                errString(err),
				ResultType:           "string",
				ArgsCount:            len(cleaned),
				KwargsCount:          len(cleaned),
				Dependencies:         dependencyCapabilities(spec),
				InjectedDependencies: injected,
				MeshPositions:        dependencyCapabilities(spec),
				Agent:                r.descriptor,
			})
		}

		if obs := r.obs; obs != nil {
			ev := telemetry.OperationEvent{
				Type:       telemetry.OpToolExecute,
				DurationMs: float64(time.Since(startWall).Microseconds()) / 1000.0,
				Err:        err,
				Attrs:      []any{"tool", consumerID},
			}
			if err != nil {
				ev.Outcome = telemetry.OutcomeFailure
			} else {
				ev.Outcome = telemetry.OutcomeSuccess
			}
			obs.LogOperation(ctx, ev)
			obs.RecordOperationMetrics(ev)
		}

		return result, err
	}
}

// extractTraceFields reads _trace_id/_parent_span from rawArgs (falling
// back to the X-Trace-ID/X-Parent-Span headers when the MCP server exposes
// the underlying HTTP request), strips them from the arguments the user
// handler sees, and computes this invocation's TraceContext plus a freshly
// minted span ID for it.
func extractTraceFields(ctx context.Context, req *mcpsdk.CallToolRequest, rawArgs map[string]any) (map[string]any, mesh.TraceContext, string) {
	cleaned := make(map[string]any, len(rawArgs))
	for k, v := range rawArgs {
		if k == fieldTraceID || k == fieldParentSpan || k == fieldMeshHeaders {
			continue
		}
		cleaned[k] = v
	}

	var tc mesh.TraceContext
	if traceID, ok := rawArgs[fieldTraceID].(string); ok && traceID != "" {
		tc.TraceID = traceID
		if parent, ok := rawArgs[fieldParentSpan].(string); ok {
			tc.ParentSpanID = parent
		}
	} else if h := requestHeaders(req); h != nil {
		if parsed, ok := trace.ParseTraceContext(h); ok {
			tc = parsed
		}
	}
	if tc.TraceID == "" {
		tc = mesh.TraceContext{TraceID: trace.GenerateTraceID()}
	}
	return cleaned, tc, trace.GenerateSpanID()
}

// extractPropagatedHeaders reads _mesh_headers from rawArgs, falling back
// to allow-listed HTTP headers on the underlying request when available.
func extractPropagatedHeaders(ctx context.Context, req *mcpsdk.CallToolRequest, rawArgs map[string]any, allow map[string]struct{}) map[string]string {
	if raw, ok := rawArgs[fieldMeshHeaders].(map[string]any); ok {
		out := make(map[string]string, len(raw))
		for k, v := range raw {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
		return out
	}
	if h := requestHeaders(req); h != nil {
		return trace.SelectPropagatedHeaders(h, allow)
	}
	return nil
}

// requestHeaders extracts the underlying HTTP request's headers when the
// MCP server's request facilities expose one for this transport; nil for
// non-HTTP transports.
func requestHeaders(req *mcpsdk.CallToolRequest) http.Header {
	if req == nil || req.Extra == nil {
		return nil
	}
	return req.Extra.Header
}

func dependencyCapabilities(spec mesh.ToolSpec) []string {
	out := make([]string, len(spec.Dependencies))
	for i, d := range spec.Dependencies {
		out[i] = d.Capability
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
