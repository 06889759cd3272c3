package trace

import (
	"context"

	"github.com/dhyansraj/mcp-mesh/mesh"
)

// Go has no native task-local-storage primitive; context.Context threaded
// through every call spawned from a WithTraceScope/WithHeaders invocation
// gives the same nesting and isolation an async-local scope would, as long
// as callers always pass forward the context these functions return (the
// agent runtime and LLM loop both do).

type traceScopeKey struct{}
type headerScopeKey struct{}

// WithTraceScope returns a context carrying tc as the current trace scope.
// Any code that receives the returned context — directly, or via a
// goroutine spawned with it — observes tc via TraceScopeFromContext.
func WithTraceScope(ctx context.Context, tc mesh.TraceContext) context.Context {
	return context.WithValue(ctx, traceScopeKey{}, tc)
}

// TraceScopeFromContext retrieves the current trace scope, if any.
func TraceScopeFromContext(ctx context.Context) (mesh.TraceContext, bool) {
	tc, ok := ctx.Value(traceScopeKey{}).(mesh.TraceContext)
	return tc, ok
}

// WithHeaders returns a context carrying the allow-listed propagated
// headers as the current header scope.
func WithHeaders(ctx context.Context, headers map[string]string) context.Context {
	return context.WithValue(ctx, headerScopeKey{}, headers)
}

// HeadersFromContext retrieves the current propagated-header scope, if any.
func HeadersFromContext(ctx context.Context) map[string]string {
	h, _ := ctx.Value(headerScopeKey{}).(map[string]string)
	return h
}

// RunWithTraceContext runs fn under a derived context carrying tc. Two
// concurrent calls with distinct tc values never observe each other's
// scope because each derives its own child context rather than mutating
// shared state.
func RunWithTraceContext(ctx context.Context, tc mesh.TraceContext, fn func(ctx context.Context) error) error {
	return fn(WithTraceScope(ctx, tc))
}
