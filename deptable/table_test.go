package deptable

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dhyansraj/mcp-mesh/mesh"
)

type fakeProxy struct{ endpoint string }

func (f fakeProxy) Endpoint() string { return f.endpoint }

func TestCompositeKeyIsolation(t *testing.T) {
	tbl := New()
	k1 := mesh.DependencyKey{ConsumerID: "t1", SlotIndex: 0}
	k2 := mesh.DependencyKey{ConsumerID: "t2", SlotIndex: 0}

	tbl.Set(k1, "cache", fakeProxy{endpoint: "http://e1"})
	tbl.Set(k2, "cache", fakeProxy{endpoint: "http://e2"})

	p1, ok := tbl.Get(k1)
	require.True(t, ok)
	require.Equal(t, "http://e1", p1.Endpoint())

	tbl.Remove(k1)

	_, ok = tbl.Get(k1)
	require.False(t, ok)

	p2, ok := tbl.Get(k2)
	require.True(t, ok, "unrelated key must be untouched")
	require.Equal(t, "http://e2", p2.Endpoint())
}

func TestClearAllEmptiesTable(t *testing.T) {
	tbl := New()
	tbl.Set(mesh.DependencyKey{ConsumerID: "t1", SlotIndex: 0}, "greet", fakeProxy{endpoint: "http://e"})
	tbl.ClearAll()
	_, ok := tbl.Get(mesh.DependencyKey{ConsumerID: "t1", SlotIndex: 0})
	require.False(t, ok)
}

func TestGetSlots_UnresolvedIsNil(t *testing.T) {
	tbl := New()
	tbl.Set(mesh.DependencyKey{ConsumerID: "t1", SlotIndex: 1}, "greet", fakeProxy{endpoint: "http://e"})
	slots := tbl.GetSlots("t1", 2)
	require.Nil(t, slots[0])
	require.NotNil(t, slots[1])
}

func TestRenameConsumer_MovesAllSlotsLeavesOthers(t *testing.T) {
	tbl := New()
	tbl.Set(mesh.DependencyKey{ConsumerID: "route_0_UNKNOWN:UNKNOWN", SlotIndex: 0}, "cache", fakeProxy{endpoint: "http://e1"})
	tbl.Set(mesh.DependencyKey{ConsumerID: "route_0_UNKNOWN:UNKNOWN", SlotIndex: 1}, "auth", fakeProxy{endpoint: "http://e2"})
	tbl.Set(mesh.DependencyKey{ConsumerID: "route_1_UNKNOWN:UNKNOWN", SlotIndex: 0}, "cache", fakeProxy{endpoint: "http://e3"})

	tbl.RenameConsumer("route_0_UNKNOWN:UNKNOWN", "GET:/items")

	_, ok := tbl.Get(mesh.DependencyKey{ConsumerID: "route_0_UNKNOWN:UNKNOWN", SlotIndex: 0})
	require.False(t, ok, "old key must no longer resolve")

	p0, ok := tbl.Get(mesh.DependencyKey{ConsumerID: "GET:/items", SlotIndex: 0})
	require.True(t, ok)
	require.Equal(t, "http://e1", p0.Endpoint())

	p1, ok := tbl.Get(mesh.DependencyKey{ConsumerID: "GET:/items", SlotIndex: 1})
	require.True(t, ok)
	require.Equal(t, "http://e2", p1.Endpoint())

	other, ok := tbl.Get(mesh.DependencyKey{ConsumerID: "route_1_UNKNOWN:UNKNOWN", SlotIndex: 0})
	require.True(t, ok, "unrelated consumer must be untouched")
	require.Equal(t, "http://e3", other.Endpoint())
}

func TestConcurrentAccess(t *testing.T) {
	tbl := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			tbl.Set(mesh.DependencyKey{ConsumerID: "t", SlotIndex: i}, "c", fakeProxy{endpoint: "http://e"})
		}(i)
		go func(i int) {
			defer wg.Done()
			tbl.Get(mesh.DependencyKey{ConsumerID: "t", SlotIndex: i})
		}(i)
	}
	wg.Wait()
}
