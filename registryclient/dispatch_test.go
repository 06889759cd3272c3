package registryclient

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dhyansraj/mcp-mesh/deptable"
	"github.com/dhyansraj/mcp-mesh/mesh"
)

type stubProxy struct{ endpoint string }

func (s stubProxy) Endpoint() string { return s.endpoint }

func newStubProxy(dep mesh.ResolvedDependency, _ mesh.DependencyKwargs) deptable.Proxy {
	return stubProxy{endpoint: dep.Endpoint}
}

func defaultKwargs(string, int) mesh.DependencyKwargs { return mesh.DefaultDependencyKwargs() }

func TestApplyEvent_PositionPreciseRoutingIsolatesKeys(t *testing.T) {
	table := deptable.New()
	consumers := []ConsumerSlots{
		{ConsumerID: "t1", Slots: []mesh.DependencySpec{{Capability: "cache", Tags: []string{"+fast"}}}},
		{ConsumerID: "t2", Slots: []mesh.DependencySpec{{Capability: "cache", Tags: []string{"+strict"}}}},
	}

	applyEvent(table, consumers, defaultKwargs, newStubProxy, mesh.MeshEvent{
		Kind: mesh.EventDependencyAvailable, Capability: "cache",
		RequestingFunction: "t1", DepIndex: 0, HasDepIndex: true,
		Endpoint: "http://e1",
	})
	applyEvent(table, consumers, defaultKwargs, newStubProxy, mesh.MeshEvent{
		Kind: mesh.EventDependencyAvailable, Capability: "cache",
		RequestingFunction: "t2", DepIndex: 0, HasDepIndex: true,
		Endpoint: "http://e2",
	})

	p1, ok := table.Get(mesh.DependencyKey{ConsumerID: "t1", SlotIndex: 0})
	require.True(t, ok)
	require.Equal(t, "http://e1", p1.Endpoint())
	p2, ok := table.Get(mesh.DependencyKey{ConsumerID: "t2", SlotIndex: 0})
	require.True(t, ok)
	require.Equal(t, "http://e2", p2.Endpoint())

	applyEvent(table, consumers, defaultKwargs, newStubProxy, mesh.MeshEvent{
		Kind: mesh.EventDependencyUnavailable, Capability: "cache",
		RequestingFunction: "t1", DepIndex: 0, HasDepIndex: true,
	})

	_, ok = table.Get(mesh.DependencyKey{ConsumerID: "t1", SlotIndex: 0})
	require.False(t, ok)
	p2, ok = table.Get(mesh.DependencyKey{ConsumerID: "t2", SlotIndex: 0})
	require.True(t, ok, "unrelated slot must survive a position-precise removal")
	require.Equal(t, "http://e2", p2.Endpoint())
}

func TestApplyEvent_CapabilityFallbackFillsEveryMatchingSlot(t *testing.T) {
	table := deptable.New()
	consumers := []ConsumerSlots{
		{ConsumerID: "t1", Slots: []mesh.DependencySpec{{Capability: "greet"}}},
		{ConsumerID: "t2", Slots: []mesh.DependencySpec{{Capability: "greet"}, {Capability: "other"}}},
	}

	// No requestingFunction/depIndex: match by capability alone.
	applyEvent(table, consumers, defaultKwargs, newStubProxy, mesh.MeshEvent{
		Kind: mesh.EventDependencyAvailable, Capability: "greet", Endpoint: "http://g",
	})

	_, ok := table.Get(mesh.DependencyKey{ConsumerID: "t1", SlotIndex: 0})
	require.True(t, ok)
	_, ok = table.Get(mesh.DependencyKey{ConsumerID: "t2", SlotIndex: 0})
	require.True(t, ok)
	_, ok = table.Get(mesh.DependencyKey{ConsumerID: "t2", SlotIndex: 1})
	require.False(t, ok, "a slot declaring a different capability must not be touched")
}

func TestApplyEvent_DisconnectClearsWholeTable(t *testing.T) {
	table := deptable.New()
	consumers := []ConsumerSlots{{ConsumerID: "t1", Slots: []mesh.DependencySpec{{Capability: "greet"}}}}

	applyEvent(table, consumers, defaultKwargs, newStubProxy, mesh.MeshEvent{
		Kind: mesh.EventDependencyAvailable, Capability: "greet", Endpoint: "http://g",
	})
	applyEvent(table, consumers, defaultKwargs, newStubProxy, mesh.MeshEvent{
		Kind: mesh.EventRegistryDisconnected,
	})

	_, ok := table.Get(mesh.DependencyKey{ConsumerID: "t1", SlotIndex: 0})
	require.False(t, ok)
}

func TestMeshEvent_JSONRoundTrip(t *testing.T) {
	ev := mesh.MeshEvent{
		Kind: mesh.EventDependencyAvailable, Capability: "greet",
		Endpoint: "http://h:9100", FunctionName: "hello", AgentID: "beta-1",
		RequestingFunction: "echo", DepIndex: 0, HasDepIndex: true,
	}
	body, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded mesh.MeshEvent
	require.NoError(t, json.Unmarshal(body, &decoded))
	require.Equal(t, ev, decoded)

	require.Error(t, json.Unmarshal([]byte(`{"kind":"mystery"}`), &decoded))
}
