package agentruntime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dhyansraj/mcp-mesh/deptable"
	"github.com/dhyansraj/mcp-mesh/mesh"
	"github.com/dhyansraj/mcp-mesh/trace"
)

type fakeDependency struct{ endpoint string }

func (f fakeDependency) Endpoint() string { return f.endpoint }
func (f fakeDependency) Call(ctx context.Context, args map[string]any) (any, error) {
	return "called:" + f.endpoint, nil
}

func TestWrapExecute_StripsTraceFieldsAndInjectsDependency(t *testing.T) {
	rt := New(Config{})
	spec := mesh.ToolSpec{
		FunctionName: "echo",
		Dependencies: []mesh.DependencySpec{{Capability: "greet"}},
	}
	rt.table.Set(mesh.DependencyKey{ConsumerID: "echo", SlotIndex: 0}, "greet", fakeDependency{endpoint: "http://h:9100"})

	var gotArgs map[string]any
	var gotDeps []Dependency
	var gotCtxTrace mesh.TraceContext

	wrapped := rt.wrapExecute(spec, func(ctx context.Context, args map[string]any, deps []Dependency) (any, error) {
		gotArgs = args
		gotDeps = deps
		gotCtxTrace, _ = trace.TraceScopeFromContext(ctx)
		return "ok", nil
	})

	rawArgs := map[string]any{
		"who":          "x",
		"_trace_id":    "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"_parent_span": "bbbbbbbbbbbbbbbb",
	}
	result, err := wrapped(context.Background(), nil, rawArgs)

	require.NoError(t, err)
	require.Equal(t, "ok", result)
	require.Equal(t, map[string]any{"who": "x"}, gotArgs, "trace fields must be stripped before the user handler sees args")
	require.Len(t, gotDeps, 1)
	require.NotNil(t, gotDeps[0])
	require.Equal(t, "http://h:9100", gotDeps[0].Endpoint())
	require.Equal(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", gotCtxTrace.TraceID, "inherited trace ID must flow into the handler's context")
	require.NotEmpty(t, gotCtxTrace.ParentSpanID)
	require.NotEqual(t, "bbbbbbbbbbbbbbbb", gotCtxTrace.ParentSpanID, "the wrapper mints a fresh span ID for this invocation rather than reusing the inbound parent")
}

func TestWrapExecute_GeneratesFreshTraceWhenAbsent(t *testing.T) {
	rt := New(Config{})
	spec := mesh.ToolSpec{FunctionName: "echo"}

	var gotTrace mesh.TraceContext
	wrapped := rt.wrapExecute(spec, func(ctx context.Context, args map[string]any, deps []Dependency) (any, error) {
		gotTrace, _ = trace.TraceScopeFromContext(ctx)
		return nil, nil
	})

	_, err := wrapped(context.Background(), nil, map[string]any{})
	require.NoError(t, err)
	require.Len(t, gotTrace.TraceID, 32)
}

func TestAddTool_RejectedAfterStart(t *testing.T) {
	rt := New(Config{})
	rt.started = true
	err := rt.AddTool(mesh.ToolSpec{FunctionName: "late"}, nil)
	require.Error(t, err)
}

func TestConsumerSlotsAndKwargsLookup(t *testing.T) {
	rt := New(Config{})
	custom := mesh.DependencyKwargs{TimeoutSeconds: 5, MaxAttempts: 2}
	specs := []registeredTool{
		{spec: mesh.ToolSpec{
			FunctionName:     "t1",
			Dependencies:     []mesh.DependencySpec{{Capability: "cache"}},
			DependencyKwargs: []mesh.DependencyKwargs{custom},
		}},
	}
	consumers := rt.consumerSlots(specs)
	require.Len(t, consumers, 1)
	require.Equal(t, "t1", consumers[0].ConsumerID)

	kwargsOf := rt.kwargsLookup(specs)
	require.Equal(t, custom, kwargsOf("t1", 0))
	require.Equal(t, mesh.DefaultDependencyKwargs(), kwargsOf("unknown", 0))
}

var _ deptable.Proxy = fakeDependency{}
