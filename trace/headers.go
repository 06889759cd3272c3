package trace

import (
	"net/http"
	"strings"

	"github.com/dhyansraj/mcp-mesh/mesh"
)

const (
	HeaderTraceID    = "X-Trace-ID"
	HeaderParentSpan = "X-Parent-Span"
)

// ParseTraceContext reads X-Trace-ID and X-Parent-Span from an incoming
// request's headers (case-insensitive, as http.Header's Get always is) and
// returns the TraceContext they describe. ok is false when no trace ID is
// present at all.
func ParseTraceContext(h http.Header) (ctx mesh.TraceContext, ok bool) {
	traceID := h.Get(HeaderTraceID)
	if traceID == "" {
		return mesh.TraceContext{}, false
	}
	return mesh.TraceContext{
		TraceID:      traceID,
		ParentSpanID: h.Get(HeaderParentSpan),
	}, true
}

// CreateTraceHeaders emits the inverse pair for an outbound request.
func CreateTraceHeaders(traceID, spanID string) http.Header {
	h := make(http.Header, 2)
	h.Set(HeaderTraceID, traceID)
	if spanID != "" {
		h.Set(HeaderParentSpan, spanID)
	}
	return h
}

// ParseAllowList parses the comma-separated, case-insensitive header
// allow-list environment value into a lowercase set.
func ParseAllowList(raw string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, name := range strings.Split(raw, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		set[name] = struct{}{}
	}
	return set
}

// SelectPropagatedHeaders extracts the allow-listed headers (by lowercase
// name) from an incoming request into a plain map suitable for carrying
// through the async-local propagated-header channel.
func SelectPropagatedHeaders(h http.Header, allow map[string]struct{}) map[string]string {
	if len(allow) == 0 {
		return nil
	}
	out := make(map[string]string)
	for name, vals := range h {
		if len(vals) == 0 {
			continue
		}
		if _, ok := allow[strings.ToLower(name)]; ok {
			out[strings.ToLower(name)] = vals[0]
		}
	}
	return out
}
