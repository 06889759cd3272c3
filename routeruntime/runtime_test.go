package routeruntime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/dhyansraj/mcp-mesh/agentruntime"
	"github.com/dhyansraj/mcp-mesh/deptable"
	"github.com/dhyansraj/mcp-mesh/mesh"
	"github.com/dhyansraj/mcp-mesh/trace"
)

type fakeDep struct{ endpoint string }

func (f fakeDep) Endpoint() string { return f.endpoint }
func (f fakeDep) Call(ctx context.Context, args map[string]any) (any, error) { return nil, nil }

var (
	_ deptable.Proxy          = fakeDep{}
	_ agentruntime.Dependency = fakeDep{}
)

func TestRoute_RejectedAfterStart(t *testing.T) {
	rt := New(Config{})
	rt.started = true
	_, err := rt.Route(nil, Handler3(func(http.ResponseWriter, *http.Request, map[string]agentruntime.Dependency) {}))
	require.Error(t, err)
}

func TestRewriteRouteIDsOnce_RewritesProvisionalID(t *testing.T) {
	rt := New(Config{})

	var gotDeps map[string]agentruntime.Dependency
	var gotTraceID string
	h3 := Handler3(func(w http.ResponseWriter, r *http.Request, deps map[string]agentruntime.Dependency) {
		gotDeps = deps
		tc, _ := trace.TraceScopeFromContext(r.Context())
		gotTraceID = tc.TraceID
		w.WriteHeader(http.StatusOK)
	})

	fn, err := rt.Route([]mesh.DependencySpec{{Capability: "cache"}}, h3)
	require.NoError(t, err)
	require.Equal(t, "route_0_UNKNOWN:UNKNOWN", rt.routes[0].id)

	router := chi.NewRouter()
	router.Get("/items", fn)
	rt.Mount(router)

	rt.table.Set(mesh.DependencyKey{ConsumerID: "route_0_UNKNOWN:UNKNOWN", SlotIndex: 0}, "cache", fakeDep{endpoint: "http://e1"})

	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	req.Header.Set(trace.HeaderTraceID, "cccccccccccccccccccccccccccccccc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, "GET:/items", rt.routes[0].id, "route ID must be rewritten after the first request")
	require.Equal(t, "cccccccccccccccccccccccccccccccc", gotTraceID, "inherited trace ID from the incoming header")
	require.NotNil(t, gotDeps["cache"])
	require.Equal(t, "http://e1", gotDeps["cache"].Endpoint())

	_, stillOld := rt.table.Get(mesh.DependencyKey{ConsumerID: "route_0_UNKNOWN:UNKNOWN", SlotIndex: 0})
	require.False(t, stillOld, "the table entry must have moved to the rewritten key")
}
