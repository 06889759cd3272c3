package registryclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dhyansraj/mcp-mesh/mesh"
)

func TestHeartbeat_SmartDiffing_SkipsIdenticalTools(t *testing.T) {
	var heartbeats int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/agents" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method == http.MethodPost {
			atomic.AddInt32(&heartbeats, 1)
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	agent := mesh.AgentDescriptor{AgentID: "alpha-00000000", Name: "alpha"}
	c := New(Config{RegistryURL: srv.URL}, agent)

	tools := []mesh.ToolSpec{{FunctionName: "greet", Capability: "greeting"}}
	require.NoError(t, c.Register(context.Background(), tools))

	require.NoError(t, c.Heartbeat(context.Background(), tools))
	require.NoError(t, c.Heartbeat(context.Background(), tools))
	require.NoError(t, c.Heartbeat(context.Background(), tools))

	require.Equal(t, int32(0), atomic.LoadInt32(&heartbeats), "identical tool lists must never POST a heartbeat")

	changed := []mesh.ToolSpec{{FunctionName: "greet", Capability: "greeting"}, {FunctionName: "farewell", Capability: "parting"}}
	require.NoError(t, c.Heartbeat(context.Background(), changed))
	require.Equal(t, int32(1), atomic.LoadInt32(&heartbeats), "a changed tool list must POST exactly one heartbeat")

	require.NoError(t, c.Heartbeat(context.Background(), changed))
	require.Equal(t, int32(1), atomic.LoadInt32(&heartbeats), "re-sending the now-current list must not POST again")
}

func TestResolveEndpoint_DirectVsRegistryProxy(t *testing.T) {
	agent := mesh.AgentDescriptor{AgentID: "alpha-00000000"}
	dep := mesh.ResolvedDependency{Endpoint: "10.0.0.5:9000"}

	direct := New(Config{RegistryURL: "http://registry:8000", EndpointMode: EndpointModeDirect}, agent)
	require.Equal(t, "10.0.0.5:9000", direct.ResolveEndpoint(dep))

	proxied := New(Config{RegistryURL: "http://registry:8000", EndpointMode: EndpointModeRegistryProxy}, agent)
	require.Equal(t, "http://registry:8000/proxy/10.0.0.5:9000", proxied.ResolveEndpoint(dep))
}

func TestRegister_FailureReturnsRegistrationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	agent := mesh.AgentDescriptor{AgentID: "alpha-00000000"}
	c := New(Config{RegistryURL: srv.URL}, agent)

	err := c.Register(context.Background(), nil)
	require.Error(t, err)
	var regErr *mesh.RegistrationError
	require.ErrorAs(t, err, &regErr)
}
